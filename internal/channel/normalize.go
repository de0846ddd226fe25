package channel

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// Ignore and invalid reasons. They appear in webhook responses and logs.
const (
	ReasonNotJSONObject   = "body is not a JSON object"
	ReasonNotForm         = "body is not form encoded"
	ReasonNotUserMessage  = "not a new incoming user message"
	ReasonNoContent       = "no content or conversation_id"
	ReasonNoMessage       = "no message"
	ReasonNoChatID        = "no chat id"
	ReasonNoText          = "no text"
	ReasonFromBot         = "message from a bot"
	ReasonMissingFromBody = "missing From or Body"
)

func isJSONObject(raw []byte) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) > 0 && raw[0] == '{' && json.Valid(raw)
}

// FlexID decodes an identifier sent either as a JSON number or a string.
type FlexID string

func (id *FlexID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = FlexID(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	if i, err := n.Int64(); err == nil {
		*id = FlexID(strconv.FormatInt(i, 10))
		return nil
	}
	if f, err := n.Float64(); err == nil && f == float64(int64(f)) {
		*id = FlexID(strconv.FormatInt(int64(f), 10))
		return nil
	}
	*id = FlexID(n.String())
	return nil
}

// splitMessage splits a message into chunks that fit within the max length,
// trying to split on newlines when possible.
func splitMessage(msg string, maxLen int) []string {
	if len(msg) <= maxLen {
		return []string{msg}
	}

	var chunks []string
	for len(msg) > 0 {
		if len(msg) <= maxLen {
			chunks = append(chunks, msg)
			break
		}

		cut := maxLen
		if idx := strings.LastIndex(msg[:maxLen], "\n"); idx > maxLen/2 {
			cut = idx + 1
		} else {
			// Keep multi-byte runes whole.
			for cut > 0 && !isRuneStart(msg[cut]) {
				cut--
			}
			if cut == 0 {
				cut = maxLen
			}
		}

		chunks = append(chunks, msg[:cut])
		msg = msg[cut:]
	}
	return chunks
}

func isRuneStart(b byte) bool { return b&0xC0 != 0x80 }
