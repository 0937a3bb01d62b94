package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/MrWong99/cryguard/internal/notify/telegram"
)

// Replies sent to a chat after a registration attempt.
const (
	msgRegistered         = "Registration successful. You will receive baby-cry alerts."
	msgRegistrationClosed = "Registration is currently closed."
)

// handleTelegramStart registers the chat named by the chat_id query parameter.
func (s *Server) handleTelegramStart(w http.ResponseWriter, r *http.Request) {
	if !s.cfg.ManualRegistration {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"status": "disabled",
			"reason": "manual registration disabled",
		})
		return
	}
	if s.registrar == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "notifier unavailable"})
		return
	}
	chatID := strings.TrimSpace(r.URL.Query().Get("chat_id"))
	if chatID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "chat_id is required"})
		return
	}
	if !s.register(r.Context(), chatID) {
		writeJSON(w, http.StatusForbidden, map[string]string{
			"status": "rejected",
			"reason": "new users disabled",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "registered",
		"chat_id": chatID,
	})
}

// handleTelegramWebhook registers the sender of a "/start" message pushed by
// the Bot API. Other messages are acknowledged and ignored.
func (s *Server) handleTelegramWebhook(w http.ResponseWriter, r *http.Request) {
	u, err := telegram.DecodeUpdate(r.Body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if !strings.HasPrefix(u.Text, "/start") {
		writeJSON(w, http.StatusOK, map[string]string{
			"status": "ignored",
			"reason": "not_start_command",
		})
		return
	}
	if u.ChatID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"status": "ignored",
			"reason": "missing_chat_id",
		})
		return
	}
	if s.registrar == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "notifier unavailable"})
		return
	}
	if !s.register(r.Context(), u.ChatID) {
		writeJSON(w, http.StatusForbidden, map[string]string{
			"status": "rejected",
			"reason": "new users disabled",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "registered",
		"chat_id": u.ChatID,
		"source":  "telegram_start",
	})
}

// register adds chatID and sends the matching reply. Reply failures are
// logged only.
func (s *Server) register(ctx context.Context, chatID string) bool {
	ok := s.registrar.Register(ctx, chatID, s.cfg.AcceptNewUsers)
	reply := msgRegistered
	if !ok {
		reply = msgRegistrationClosed
	}
	if err := s.registrar.SendText(ctx, chatID, reply); err != nil {
		slog.Warn("httpapi: registration reply failed", "chat_id", chatID, "err", err)
	}
	return ok
}
