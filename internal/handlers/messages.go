package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/eldtechnologies/worldmorse/internal/models"
	"github.com/eldtechnologies/worldmorse/internal/relay"
)

// SubmitMessageRequest represents the message submission body.
type SubmitMessageRequest struct {
	FromCallsign string         `json:"fromCallsign"`
	ToCallsign   *string        `json:"toCallsign"`
	Channel      string         `json:"channel"`
	Type         string         `json:"type"`
	Payload      models.Payload `json:"payload"`
}

func (req *SubmitMessageRequest) submission() (relay.Submission, error) {
	sub := relay.Submission{Payload: req.Payload}
	var err error
	if sub.FromCallsign, err = sanitizeField(req.FromCallsign, maxCallsignLen); err != nil {
		return sub, err
	}
	if sub.Channel, err = sanitizeField(req.Channel, maxChannelLen); err != nil {
		return sub, err
	}
	if sub.Type, err = sanitizeField(req.Type, maxTypeLen); err != nil {
		return sub, err
	}
	if req.ToCallsign != nil {
		to, err := sanitizeField(*req.ToCallsign, maxCallsignLen)
		if err != nil {
			return sub, err
		}
		sub.ToCallsign = &to
	}
	return sub, nil
}

// MessageResponse represents a single relayed message.
type MessageResponse struct {
	OK      bool            `json:"ok"`
	Message *models.Message `json:"message"`
}

// RecentMessagesResponse represents the recent messages response.
type RecentMessagesResponse struct {
	OK       bool             `json:"ok"`
	Messages []models.Message `json:"messages"`
}

// SubmitMessage stores a message and pushes it to the channel's subscribers.
func (h *Handler) SubmitMessage(w http.ResponseWriter, r *http.Request) {
	var req SubmitMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid_json")
		return
	}

	sub, err := req.submission()
	if err != nil {
		h.Fail(w, r, err)
		return
	}

	msg, err := h.relay.SubmitMessage(r.Context(), sub)
	if err != nil {
		h.Fail(w, r, err)
		return
	}

	h.JSON(w, http.StatusOK, MessageResponse{OK: true, Message: msg})
}

// RecentMessages returns the tail of a channel, oldest first.
func (h *Handler) RecentMessages(w http.ResponseWriter, r *http.Request) {
	channel := sanitize(r.URL.Query().Get("channel"), maxChannelLen)

	// Missing or unparseable limits fall back to the default; an explicit
	// zero or negative limit means one message.
	limit := 0
	if l, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil {
		limit = max(l, 1)
	}

	messages, err := h.relay.RecentMessages(r.Context(), channel, limit)
	if err != nil {
		h.Fail(w, r, err)
		return
	}

	h.JSON(w, http.StatusOK, RecentMessagesResponse{OK: true, Messages: messages})
}
