package config

import (
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// toMap renders cfg as a generic map keyed by the YAML field names.
func toMap(cfg *Config) (map[string]any, error) {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// GetByPath retrieves a config value by dot-notation path (e.g. "ai.model").
func GetByPath(cfg *Config, path string) (any, error) {
	m, err := toMap(cfg)
	if err != nil {
		return nil, err
	}

	var current any = m
	for _, key := range strings.Split(path, ".") {
		node, ok := current.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("cannot traverse into %T at %s", current, key)
		}
		val, ok := node[key]
		if !ok {
			return nil, fmt.Errorf("key not found: %s", path)
		}
		current = val
	}
	return current, nil
}

// Sanitize returns a copy of cfg with every secret masked, suitable for
// printing.
func Sanitize(cfg *Config) *Config {
	c := *cfg

	c.AI.APIKey = maskString(c.AI.APIKey)
	c.AI.FallbackAPIKey = maskString(c.AI.FallbackAPIKey)
	c.Desk.AccessToken = maskString(c.Desk.AccessToken)
	c.Channels.Chatwoot.Secret = maskString(c.Channels.Chatwoot.Secret)
	c.Channels.Telegram.Token = maskString(c.Channels.Telegram.Token)
	c.Channels.Twilio.AuthToken = maskString(c.Channels.Twilio.AuthToken)

	return &c
}

func maskString(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return "***"
	}
	return s[:4] + "****" + s[len(s)-4:]
}

// ListPaths returns every leaf config path with its value.
func ListPaths(cfg *Config) (map[string]any, error) {
	m, err := toMap(cfg)
	if err != nil {
		return nil, err
	}
	result := make(map[string]any)
	flattenMap("", m, result)
	return result, nil
}

// SortedPaths returns the keys of a ListPaths result in order.
func SortedPaths(paths map[string]any) []string {
	keys := make([]string, 0, len(paths))
	for k := range paths {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func flattenMap(prefix string, m map[string]any, result map[string]any) {
	for k, v := range m {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if sub, ok := v.(map[string]any); ok {
			flattenMap(key, sub, result)
			continue
		}
		result[key] = v
	}
}
