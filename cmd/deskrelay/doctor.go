package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"deskrelay/internal/config"
	"deskrelay/internal/desk"

	"github.com/fatih/color"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/spf13/cobra"
	_ "modernc.org/sqlite"
)

const remoteCheckTimeout = 10 * time.Second

var (
	passTag = color.New(color.FgGreen, color.Bold).Sprint("[PASS]")
	failTag = color.New(color.FgRed, color.Bold).Sprint("[FAIL]")
	warnTag = color.New(color.FgYellow, color.Bold).Sprint("[WARN]")
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Run diagnostic checks on your deskrelay installation",
		Long: `Verifies that the configuration, history database, listen port, AI key,
desk API and Telegram token are usable. Reports pass/fail for each check.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			fmt.Printf("deskrelay doctor v%s\n", version)
			fmt.Printf("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n\n")

			var r doctorResults

			if _, err := os.Stat(cfgPath); err != nil {
				r.fail("Config file", fmt.Sprintf("not found at %s", cfgPath))
				fmt.Printf("\nRun 'deskrelay init' to create a default configuration.\n")
				return r.summary()
			}
			r.pass("Config file", cfgPath)

			cfg, err := config.Load(cfgPath)
			if err != nil {
				r.fail("Config validation", err.Error())
				return r.summary()
			}
			r.pass("Config validation", "valid")

			if err := checkDatabase(cfg.History.DBPath); err != nil {
				r.fail("Database", err.Error())
			} else {
				r.pass("Database", cfg.History.DBPath)
			}

			if err := checkPort(cfg.Server.Host, cfg.Server.Port); err != nil {
				r.warn("Listen port", fmt.Sprintf("port %d may be in use: %v", cfg.Server.Port, err))
			} else {
				r.pass("Listen port", fmt.Sprintf(":%d available", cfg.Server.Port))
			}

			if cfg.AI.APIKey == "" {
				r.fail("AI key", fmt.Sprintf("ai.apiKey is empty (provider %s)", cfg.AI.Provider))
			} else {
				r.pass("AI key", fmt.Sprintf("%s / %s", cfg.AI.Provider, cfg.AI.Model))
			}
			if cfg.AI.FallbackProvider != "" {
				r.pass("AI fallback", fmt.Sprintf("%s / %s", cfg.AI.FallbackProvider, cfg.AI.FallbackModel))
			}

			if cfg.Desk.Configured() {
				if err := checkDesk(cmd.Context(), cfg.Desk); err != nil {
					r.fail("Desk API", deskHint(err))
				} else {
					r.pass("Desk API", cfg.Desk.APIURL)
				}
			} else if cfg.Channels.Chatwoot.Enabled {
				r.fail("Desk API", "chatwoot channel enabled but desk section incomplete")
			} else {
				r.warn("Desk API", "not configured (no mirroring or handoff)")
			}

			if cw := cfg.Channels.Chatwoot; cw.Enabled {
				if cw.AuthMode == "none" {
					r.warn("Chatwoot auth", "webhook authentication disabled")
				} else {
					r.pass("Chatwoot auth", cw.AuthMode)
				}
			}

			if tg := cfg.Channels.Telegram; tg.Enabled {
				name, err := checkTelegram(tg.Token)
				if err != nil {
					r.fail("Telegram token", err.Error())
				} else {
					r.pass("Telegram token", "@"+name)
				}
			}

			if cfg.Channels.Twilio.Enabled {
				r.pass("Twilio sender", cfg.Channels.Twilio.FromNumber)
			}

			if cfg.General.LogFile != "" {
				if err := os.MkdirAll(filepath.Dir(cfg.General.LogFile), 0o755); err != nil {
					r.warn("Log file", fmt.Sprintf("cannot create log directory: %v", err))
				} else {
					r.pass("Log file", cfg.General.LogFile)
				}
			}

			return r.summary()
		},
	}
}

func checkDeskCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check-desk",
		Short: "Check that the desk API accepts the configured access token",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(resolveConfigPath())
			if err != nil {
				return err
			}
			if !cfg.Desk.Configured() {
				return fmt.Errorf("desk.apiURL, desk.accountId and desk.accessToken must be set")
			}
			fmt.Printf("Checking %s (account %s)...\n", cfg.Desk.APIURL, cfg.Desk.AccountID)
			if err := checkDesk(cmd.Context(), cfg.Desk); err != nil {
				fmt.Printf("%s %s\n", failTag, deskHint(err))
				return err
			}
			fmt.Printf("%s desk API reachable, access token accepted\n", passTag)
			return nil
		},
	}
}

type doctorResults struct {
	passed, warned, failed int
}

func (r *doctorResults) pass(check, detail string) {
	r.passed++
	fmt.Printf("  %s %-20s %s\n", passTag, check, detail)
}

func (r *doctorResults) fail(check, detail string) {
	r.failed++
	fmt.Printf("  %s %-20s %s\n", failTag, check, detail)
}

func (r *doctorResults) warn(check, detail string) {
	r.warned++
	fmt.Printf("  %s %-20s %s\n", warnTag, check, detail)
}

func (r *doctorResults) summary() error {
	fmt.Printf("\n━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n")
	fmt.Printf("Results: %d passed, %d warnings, %d failed\n", r.passed, r.warned, r.failed)
	if r.failed > 0 {
		fmt.Printf("\nPlease fix the failed checks before running 'deskrelay serve'.\n")
		return fmt.Errorf("%d check(s) failed", r.failed)
	}
	if r.warned > 0 {
		fmt.Printf("\ndeskrelay should work but consider fixing the warnings.\n")
	} else {
		color.Green("\nAll checks passed! deskrelay is ready to run.")
	}
	return nil
}

func checkDatabase(dbPath string) error {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return fmt.Errorf("cannot create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return fmt.Errorf("cannot open: %w", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("cannot ping: %w", err)
	}
	if _, err := db.ExecContext(ctx, "CREATE TABLE IF NOT EXISTS _doctor_test (id INTEGER PRIMARY KEY)"); err != nil {
		return fmt.Errorf("not writable: %w", err)
	}
	db.ExecContext(ctx, "DROP TABLE IF EXISTS _doctor_test")
	return nil
}

func checkPort(host string, port int) error {
	ln, err := net.Listen("tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return err
	}
	ln.Close()
	return nil
}

func checkDesk(ctx context.Context, dc config.DeskConfig) error {
	ctx, cancel := context.WithTimeout(ctx, remoteCheckTimeout)
	defer cancel()

	client := desk.NewClient(desk.Config{
		APIURL:      dc.APIURL,
		AccountID:   dc.AccountID,
		AccessToken: dc.AccessToken,
		HTTPClient:  &http.Client{Timeout: remoteCheckTimeout},
		Logger:      logger,
	})
	return client.Ping(ctx)
}

// deskHint explains the common desk API failures.
func deskHint(err error) string {
	var apiErr *desk.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case http.StatusUnauthorized:
			return "401 unauthorized: check desk.accessToken (Profile settings > Access Token)"
		case http.StatusNotFound:
			return "404 not found: check desk.accountId and desk.apiURL"
		}
	}
	return err.Error()
}

// checkTelegram calls getMe and returns the bot username.
func checkTelegram(token string) (string, error) {
	bot, err := tgbotapi.NewBotAPIWithClient(token, tgbotapi.APIEndpoint, &http.Client{Timeout: remoteCheckTimeout})
	if err != nil {
		return "", fmt.Errorf("getMe failed: %w", err)
	}
	return bot.Self.UserName, nil
}
