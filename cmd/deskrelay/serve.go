package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"deskrelay/internal/channel"
	"deskrelay/internal/config"
	"deskrelay/internal/desk"
	"deskrelay/internal/memory"
	"deskrelay/internal/provider"
	"deskrelay/internal/relay"
	"deskrelay/internal/server"

	"github.com/spf13/cobra"
)

const channelHTTPTimeout = 30 * time.Second

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the webhook server",
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}

	log, closeLog, err := newLogger(cfg.General)
	if err != nil {
		return err
	}
	defer closeLog()
	logger = log

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := memory.NewSQLiteStore(cfg.History.DBPath, logger)
	if err != nil {
		return fmt.Errorf("open history store: %w", err)
	}
	defer store.Close()

	srv, err := buildServer(ctx, cfg, store, logger)
	if err != nil {
		return err
	}

	logger.Info("deskrelay starting", "version", version, "config", cfgPath, "addr", srv.Addr())
	if err := srv.Run(ctx); err != nil {
		return err
	}
	logger.Info("deskrelay stopped")
	return nil
}

// buildServer wires the provider, desk gateway, channel adapters and
// dispatcher into an HTTP server. Nothing here calls an external API.
func buildServer(ctx context.Context, cfg *config.Config, store *memory.SQLiteStore, logger *slog.Logger) (*server.Server, error) {
	prov, err := provider.New(ctx, cfg.AI, logger)
	if err != nil {
		return nil, fmt.Errorf("build ai provider: %w", err)
	}
	if cfg.AI.APIKey == "" {
		logger.Warn("ai.apiKey is empty, every reply will be the fallback text")
	}
	responder := provider.NewResponder(prov, cfg.General.FallbackReply, logger)

	var gateway *desk.Gateway
	if cfg.Desk.Configured() {
		client := desk.NewClient(desk.Config{
			APIURL:      cfg.Desk.APIURL,
			AccountID:   cfg.Desk.AccountID,
			AccessToken: cfg.Desk.AccessToken,
			HTTPClient:  provider.SharedHTTPClient(channelHTTPTimeout),
			Logger:      logger,
		})
		gateway = desk.NewGateway(client, logger)
	}

	dcfg := relay.Config{Store: store, Responder: responder, Logger: logger}
	if gateway != nil {
		dcfg.Mirror = gateway
	}
	dispatcher := relay.NewDispatcher(dcfg)

	var handlers []server.Handler

	if cw := cfg.Channels.Chatwoot; cw.Enabled {
		if gateway == nil {
			return nil, fmt.Errorf("channels.chatwoot is enabled but the desk section is incomplete")
		}
		auth, err := channel.NewAuthenticator(channel.AuthConfig{
			Mode:            cw.AuthMode,
			Secret:          cw.Secret,
			SignatureHeader: cw.SignatureHeader,
			TokenHeader:     cw.TokenHeader,
		})
		if err != nil {
			return nil, fmt.Errorf("chatwoot webhook auth: %w", err)
		}
		if auth.Mode() == channel.AuthNone {
			logger.Warn("chatwoot webhook authentication is disabled")
		}
		route := relay.Route{
			Adapter:      channel.NewChatwoot(gateway.Client(), logger),
			SystemPrompt: cfg.PromptFor(cw.SystemPrompt),
			Handoff: relay.HandoffPolicy{
				AfterReplies: cw.Handoff.AfterReplies,
				Message:      cw.Handoff.Message,
				Escalate:     gateway.Escalate,
			},
		}
		handlers = append(handlers, server.NewChatwootHandler(dispatcher, route, auth, logger))
	}

	if tg := cfg.Channels.Telegram; tg.Enabled {
		bot := channel.NewTelegramBot(tg.Token, provider.SharedHTTPClient(channelHTTPTimeout))
		route := relay.Route{
			Adapter: channel.NewTelegram(channel.TelegramConfig{
				Bot:       bot,
				ParseMode: tg.ParseMode,
				Logger:    logger,
			}),
			SystemPrompt: cfg.PromptFor(tg.SystemPrompt),
			MirrorInbox:  tg.MirrorInboxID,
		}
		handlers = append(handlers, server.NewTelegramHandler(dispatcher, route, logger))
	}

	if tw := cfg.Channels.Twilio; tw.Enabled {
		route := relay.Route{
			Adapter: channel.NewTwilio(channel.TwilioConfig{
				API:        channel.NewTwilioAPI(tw.AccountSID, tw.AuthToken),
				FromNumber: tw.FromNumber,
				Logger:     logger,
			}),
			SystemPrompt: cfg.PromptFor(tw.SystemPrompt),
			MirrorInbox:  tw.MirrorInboxID,
		}
		handlers = append(handlers, server.NewTwilioHandler(dispatcher, route, logger))
	}

	if len(handlers) == 0 {
		logger.Warn("no channel is enabled, only /healthz will answer")
	}

	metricsPath := ""
	if cfg.Metrics.Enabled {
		metricsPath = cfg.Metrics.Endpoint
	}

	return server.New(server.Config{
		Host:        cfg.Server.Host,
		Port:        cfg.Server.Port,
		BasePath:    cfg.Server.BasePath,
		ReadTimeout: time.Duration(cfg.Server.ReadTimeoutSeconds) * time.Second,
		MetricsPath: metricsPath,
		Logger:      logger,
	}, store, handlers...), nil
}
