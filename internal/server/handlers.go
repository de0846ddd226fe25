package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"runtime/debug"

	"deskrelay/internal/channel"
	"deskrelay/internal/metrics"
	"deskrelay/internal/relay"

	"github.com/labstack/echo/v4"
)

const maxBodyBytes int64 = 1 << 20 // 1 MiB

// TwiML is the empty response Twilio expects from a messaging webhook.
const TwiML = `<?xml version="1.0" encoding="UTF-8"?><Response></Response>`

// Dispatcher runs the relay pipeline for one payload.
type Dispatcher interface {
	Dispatch(ctx context.Context, route relay.Route, raw []byte) (relay.Result, error)
}

var errBodyTooLarge = errors.New("payload too large")

func readBody(c echo.Context) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxBodyBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if int64(len(body)) > maxBodyBytes {
		return nil, errBodyTooLarge
	}
	return body, nil
}

// recoverWith turns a panic in a handler into the channel's acknowledgement
// so the platform does not redeliver the webhook.
func recoverWith(logger *slog.Logger, errp *error, respond func() error) {
	if r := recover(); r != nil {
		logger.Error("panic while handling webhook", "panic", r, "stack", string(debug.Stack()))
		*errp = respond()
	}
}

func requestLogger(base *slog.Logger, c echo.Context) *slog.Logger {
	return base.With("request_id", c.Response().Header().Get(echo.HeaderXRequestID))
}

func status(s string) map[string]string { return map[string]string{"status": s} }

func failure(s string) map[string]string { return map[string]string{"error": s} }

// --- Chatwoot ---

type ChatwootHandler struct {
	dispatcher Dispatcher
	route      relay.Route
	auth       *channel.Authenticator
	logger     *slog.Logger
}

func NewChatwootHandler(d Dispatcher, route relay.Route, auth *channel.Authenticator, logger *slog.Logger) *ChatwootHandler {
	return &ChatwootHandler{dispatcher: d, route: route, auth: auth, logger: logger.With("handler", "chatwoot_webhook")}
}

func (h *ChatwootHandler) Register(g *echo.Group) {
	g.POST("/webhook/chatwoot", h.Handle)
}

func (h *ChatwootHandler) Handle(c echo.Context) (err error) {
	log := requestLogger(h.logger, c)
	defer recoverWith(log, &err, func() error {
		return c.JSON(http.StatusOK, status("internal_error_acknowledged"))
	})

	body, err := readBody(c)
	if errors.Is(err, errBodyTooLarge) {
		return c.JSON(http.StatusRequestEntityTooLarge, failure("payload too large"))
	}
	if err != nil {
		return c.JSON(http.StatusBadRequest, failure("Invalid JSON"))
	}

	if !h.auth.Verify(c.Request().Header, body) {
		metrics.AuthRejections.Inc()
		log.Warn("desk webhook rejected", "auth_mode", h.auth.Mode(), "remote_ip", c.RealIP())
		return c.JSON(http.StatusUnauthorized, failure("unauthorized"))
	}

	res, err := h.dispatcher.Dispatch(c.Request().Context(), h.route, body)
	if err != nil {
		log.Error("desk webhook failed", "err", err)
		if errors.Is(err, relay.ErrStorage) {
			return c.JSON(http.StatusInternalServerError, failure("storage unavailable"))
		}
		return c.JSON(http.StatusOK, status("internal_error_acknowledged"))
	}

	switch res.Outcome {
	case relay.Invalid:
		return c.JSON(http.StatusBadRequest, failure("Invalid JSON"))
	case relay.Ignored:
		return c.JSON(http.StatusOK, status("ignored: "+res.Reason))
	case relay.HandedOff:
		return c.JSON(http.StatusOK, status("ok, transferred to human"))
	}
	return c.JSON(http.StatusOK, status("ok, bot replied"))
}

// --- Telegram ---

type TelegramHandler struct {
	dispatcher Dispatcher
	route      relay.Route
	logger     *slog.Logger
}

func NewTelegramHandler(d Dispatcher, route relay.Route, logger *slog.Logger) *TelegramHandler {
	return &TelegramHandler{dispatcher: d, route: route, logger: logger.With("handler", "telegram_webhook")}
}

func (h *TelegramHandler) Register(g *echo.Group) {
	g.POST("/telegram/webhook", h.Handle)
}

var telegramIgnoreStatus = map[string]string{
	channel.ReasonNoMessage: "ok_no_message",
	channel.ReasonNoChatID:  "ok_no_chat_id",
	channel.ReasonNoText:    "ok_no_text",
}

// Handle always acknowledges with 200 so Telegram does not redeliver,
// except on storage failure where a redelivery is wanted.
func (h *TelegramHandler) Handle(c echo.Context) (err error) {
	log := requestLogger(h.logger, c)
	defer recoverWith(log, &err, func() error {
		return c.JSON(http.StatusOK, status("ok_internal_error"))
	})

	body, err := readBody(c)
	if err != nil {
		log.Warn("telegram webhook body rejected", "err", err)
		return c.JSON(http.StatusOK, status("ok_invalid"))
	}

	res, err := h.dispatcher.Dispatch(c.Request().Context(), h.route, body)
	if err != nil {
		log.Error("telegram webhook failed", "err", err)
		// A 500 makes Telegram redeliver the update once storage is back.
		if errors.Is(err, relay.ErrStorage) {
			return c.JSON(http.StatusInternalServerError, failure("storage unavailable"))
		}
		return c.JSON(http.StatusOK, status("ok_internal_error"))
	}

	switch res.Outcome {
	case relay.Invalid:
		return c.JSON(http.StatusOK, status("ok_invalid"))
	case relay.Ignored:
		if s, ok := telegramIgnoreStatus[res.Reason]; ok {
			return c.JSON(http.StatusOK, status(s))
		}
		return c.JSON(http.StatusOK, status("ok_ignored"))
	}
	if res.Reason == relay.ReasonEmptyReply {
		return c.JSON(http.StatusOK, status("ok_empty_ai_response"))
	}
	return c.JSON(http.StatusOK, status("ok"))
}

// --- Twilio ---

type TwilioHandler struct {
	dispatcher Dispatcher
	route      relay.Route
	logger     *slog.Logger
}

func NewTwilioHandler(d Dispatcher, route relay.Route, logger *slog.Logger) *TwilioHandler {
	return &TwilioHandler{dispatcher: d, route: route, logger: logger.With("handler", "twilio_webhook")}
}

func (h *TwilioHandler) Register(g *echo.Group) {
	g.POST("/twilio/webhook", h.Handle)
}

// Handle replies with the empty TwiML envelope in every case; the bot
// reply is delivered through the REST API, not the webhook response.
func (h *TwilioHandler) Handle(c echo.Context) (err error) {
	log := requestLogger(h.logger, c)
	defer recoverWith(log, &err, func() error {
		return twiml(c, http.StatusInternalServerError)
	})

	body, err := readBody(c)
	if err != nil {
		log.Warn("twilio webhook body rejected", "err", err)
		return twiml(c, http.StatusOK)
	}

	if _, err := h.dispatcher.Dispatch(c.Request().Context(), h.route, body); err != nil {
		log.Error("twilio webhook failed", "err", err)
		if errors.Is(err, relay.ErrStorage) {
			return twiml(c, http.StatusInternalServerError)
		}
	}
	return twiml(c, http.StatusOK)
}

func twiml(c echo.Context, code int) error {
	return c.Blob(code, "text/xml", []byte(TwiML))
}
