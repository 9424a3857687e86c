package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/eldtechnologies/worldmorse/internal/models"
	"github.com/eldtechnologies/worldmorse/internal/relay"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	maxMessageSize = 4096
)

// Subscribe upgrades to a WebSocket push subscription for
// ?callsign=&channel=. The connection receives hello first, then station
// joins and messages of the channel. Clients may send {"kind":"ping"} to
// stay online.
func (h *Handler) Subscribe(w http.ResponseWriter, r *http.Request) {
	callsign, err := sanitizeField(r.URL.Query().Get("callsign"), maxCallsignLen)
	if err != nil {
		h.Fail(w, r, err)
		return
	}
	channel, err := sanitizeField(r.URL.Query().Get("channel"), maxChannelLen)
	if err != nil {
		h.Fail(w, r, err)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	// Storage calls for the connection get their own deadline
	ctx, cancel := context.WithTimeout(context.Background(), writeWait)
	sub, err := h.relay.Attach(ctx, callsign, channel)
	cancel()
	if err != nil {
		h.logger.Error().Err(err).Str("callsign", callsign).Msg("Attach failed")
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "internal_error"),
			time.Now().Add(writeWait))
		conn.Close()
		return
	}

	go h.writePump(conn, sub)
	h.readPump(conn, sub)
}

// readPump consumes client events until the connection drops. Anything that
// does not parse or is not a ping is ignored.
func (h *Handler) readPump(conn *websocket.Conn, sub *relay.Subscriber) {
	defer func() {
		h.relay.Detach(sub)
		conn.Close()
	}()

	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				h.logger.Debug().Err(err).Str("subscriber", sub.ID).Msg("WebSocket error")
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(pongWait))

		ev, err := models.ParseEvent(data)
		if err != nil || ev.Kind != models.KindPing {
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), writeWait)
		if err := h.relay.Heartbeat(ctx, sub); err != nil {
			h.logger.Warn().Err(err).Str("callsign", sub.Callsign).Msg("Heartbeat failed")
		}
		cancel()
	}
}

// writePump drains the subscriber's queue onto the connection. A closed
// queue means the hub dropped the subscriber.
func (h *Handler) writePump(conn *websocket.Conn, sub *relay.Subscriber) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case message, ok := <-sub.Send():
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
				h.relay.Detach(sub)
				return
			}

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
