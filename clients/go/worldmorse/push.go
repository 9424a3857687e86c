package worldmorse

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/eldtechnologies/worldmorse/internal/models"
)

const (
	writeWait      = 10 * time.Second
	readWait       = 90 * time.Second
	maxMessageSize = 64 * 1024
)

var pingFrame, _ = json.Marshal(models.Event{Kind: models.KindPing})

// Subscription is a live push connection to the relay.
type Subscription struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
	once    sync.Once
}

// Subscribe dials the push endpoint at wsURL.
func Subscribe(ctx context.Context, dialer *websocket.Dialer, wsURL string) (*Subscription, error) {
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	conn, _, err := dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return nil, err
	}
	return &Subscription{conn: conn}, nil
}

// Ping sends an application heartbeat so the relay refreshes our station.
func (s *Subscription) Ping() error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteMessage(websocket.TextMessage, pingFrame)
}

// Close closes the connection. It is safe to call more than once.
func (s *Subscription) Close() error {
	var err error
	s.once.Do(func() {
		s.writeMu.Lock()
		s.conn.SetWriteDeadline(time.Now().Add(writeWait))
		s.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		s.writeMu.Unlock()
		err = s.conn.Close()
	})
	return err
}

// Run reads events until the connection fails or ctx is done, pinging every
// pingInterval. Frames that do not parse or carry an unknown kind are dropped.
// Run always closes the subscription before returning.
func (s *Subscription) Run(ctx context.Context, pingInterval time.Duration, handle func(*models.Event)) error {
	defer s.Close()

	done := make(chan struct{})
	defer close(done)

	go func() {
		var tick <-chan time.Time
		if pingInterval > 0 {
			ticker := time.NewTicker(pingInterval)
			defer ticker.Stop()
			tick = ticker.C
		}
		for {
			select {
			case <-ctx.Done():
				s.Close()
				return
			case <-done:
				return
			case <-tick:
				if err := s.Ping(); err != nil {
					s.Close()
					return
				}
			}
		}
	}()

	s.conn.SetReadLimit(maxMessageSize)
	s.conn.SetReadDeadline(time.Now().Add(readWait))
	s.conn.SetPingHandler(func(appData string) error {
		s.conn.SetReadDeadline(time.Now().Add(readWait))
		err := s.conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(writeWait))
		if errors.Is(err, websocket.ErrCloseSent) {
			return nil
		}
		return err
	})

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		s.conn.SetReadDeadline(time.Now().Add(readWait))

		ev, err := models.ParseEvent(data)
		if err != nil {
			continue
		}
		switch ev.Kind {
		case models.KindHello, models.KindStation, models.KindMessage:
			handle(ev)
		}
	}
}
