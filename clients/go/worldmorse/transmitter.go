package worldmorse

import (
	"context"
	"sync"

	"github.com/eldtechnologies/worldmorse/internal/models"
	"github.com/eldtechnologies/worldmorse/internal/morse"
)

// UtteranceSender submits a finished utterance. *Syncer implements it.
type UtteranceSender interface {
	TransmitUtterance(ctx context.Context, text, code, to string) (*models.Message, error)
}

// KeyTransmitter drives a keyer from key presses and submits every completed
// utterance.
type KeyTransmitter struct {
	ctx    context.Context
	sender UtteranceSender
	keyer  *morse.Keyer
	utter  morse.Utterance

	to      string
	clock   morse.Clock
	onEvent func(morse.KeyEvent)
	onSent  func(*models.Message, error)

	wg sync.WaitGroup
}

// TransmitterOption configures a KeyTransmitter.
type TransmitterOption func(*KeyTransmitter)

// WithRecipient addresses every utterance to a single station.
func WithRecipient(callsign string) TransmitterOption {
	return func(t *KeyTransmitter) { t.to = callsign }
}

// WithKeyerClock replaces the keyer's wall clock.
func WithKeyerClock(c morse.Clock) TransmitterOption {
	return func(t *KeyTransmitter) { t.clock = c }
}

// OnKeyEvent receives every keyer event. It runs with the keyer locked and
// must not call Press, Release or Stop.
func OnKeyEvent(f func(morse.KeyEvent)) TransmitterOption {
	return func(t *KeyTransmitter) { t.onEvent = f }
}

// OnSent receives the outcome of every submission.
func OnSent(f func(*models.Message, error)) TransmitterOption {
	return func(t *KeyTransmitter) { t.onSent = f }
}

// NewKeyTransmitter creates a transmitter. Submissions use ctx.
func NewKeyTransmitter(ctx context.Context, sender UtteranceSender, timing morse.Timing, opts ...TransmitterOption) *KeyTransmitter {
	t := &KeyTransmitter{
		ctx:    ctx,
		sender: sender,
		clock:  morse.SystemClock,
	}
	for _, opt := range opts {
		opt(t)
	}
	t.keyer = morse.NewKeyer(timing, t.handle, morse.WithClock(t.clock))
	return t
}

// Press puts the key down.
func (t *KeyTransmitter) Press() { t.keyer.Press() }

// Release lifts the key.
func (t *KeyTransmitter) Release() { t.keyer.Release() }

// Pending returns the keyed text not yet submitted.
func (t *KeyTransmitter) Pending() string { return t.utter.Text() }

// Stop discards unfinished input and waits for in-flight submissions.
func (t *KeyTransmitter) Stop() {
	t.keyer.Stop()
	t.utter.Take()
	t.wg.Wait()
}

func (t *KeyTransmitter) handle(ev morse.KeyEvent) {
	switch ev.Kind {
	case morse.EventChar:
		t.utter.Add(ev.Char)
	case morse.EventComplete:
		t.submit()
	}
	if t.onEvent != nil {
		t.onEvent(ev)
	}
}

// submit hands the utterance off without blocking the keyer.
func (t *KeyTransmitter) submit() {
	text, code := t.utter.Take()
	if text == "" {
		return
	}
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		msg, err := t.sender.TransmitUtterance(t.ctx, text, code, t.to)
		if t.onSent != nil {
			t.onSent(msg, err)
		}
	}()
}
