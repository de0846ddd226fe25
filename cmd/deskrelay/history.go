package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"deskrelay/internal/domain"
	"deskrelay/internal/memory"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

func historyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "history <channel> <conversation-id>",
		Short: "Print the stored messages of one conversation",
		Long: `Prints the conversation log in the order it is sent to the model.
Channels: chatwoot, telegram, twilio_whatsapp.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ch, err := domain.ParseChannel(args[0])
			if err != nil {
				return err
			}

			cfg, _, err := loadOrDefaults(resolveConfigPath())
			if err != nil {
				return err
			}
			if _, err := os.Stat(cfg.History.DBPath); err != nil {
				return fmt.Errorf("history database not found at %s", cfg.History.DBPath)
			}

			store, err := memory.NewSQLiteStore(cfg.History.DBPath, logger)
			if err != nil {
				return err
			}
			defer store.Close()

			msgs, err := store.Query(cmd.Context(), ch, args[1])
			if err != nil {
				return err
			}
			printHistory(os.Stdout, msgs)
			return nil
		},
	}
}

var (
	userLabel = color.New(color.FgCyan, color.Bold).SprintFunc()
	botLabel  = color.New(color.FgGreen, color.Bold).SprintFunc()
	timeLabel = color.New(color.Faint).SprintFunc()
)

// printHistory writes one line per message, oldest first.
func printHistory(w io.Writer, msgs []domain.Message) {
	if len(msgs) == 0 {
		fmt.Fprintln(w, color.YellowString("no messages"))
		return
	}
	for _, m := range msgs {
		label := userLabel("user")
		if m.Sender == domain.SenderBot {
			label = botLabel("bot ")
		}
		fmt.Fprintf(w, "%s %s %s\n", timeLabel(m.CreatedAt.Local().Format(time.DateTime)), label, m.Text)
	}
	fmt.Fprintf(w, "\n%d message(s)\n", len(msgs))
}
