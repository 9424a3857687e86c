package morse

import (
	"sync"
	"time"
)

// DefaultDot is the base timing unit of a keyer.
const DefaultDot = 100 * time.Millisecond

// Symbol is a single dot or dash.
type Symbol byte

const (
	Dot  Symbol = '.'
	Dash Symbol = '-'
)

// Timing holds the keyer's thresholds, all derived from the dot length.
type Timing struct {
	Dot time.Duration
}

// DefaultTiming returns a 100ms-dot timing.
func DefaultTiming() Timing {
	return Timing{Dot: DefaultDot}
}

// DashThreshold is the press length at and above which a press is a dash.
func (t Timing) DashThreshold() time.Duration { return t.Dot * 5 / 2 }

// LetterGap is the silence after which pending symbols become a character.
func (t Timing) LetterGap() time.Duration { return 3 * t.Dot }

// WordGap is the silence after which a word separator is emitted.
func (t Timing) WordGap() time.Duration { return 7 * t.Dot }

// Classify maps a press duration to a symbol.
func Classify(d time.Duration, t Timing) Symbol {
	if d < t.DashThreshold() {
		return Dot
	}
	return Dash
}

// KeyState is either Idle or Pressed.
type KeyState interface {
	keyState()
}

// Idle is the key-up state.
type Idle struct{}

// Pressed is the key-down state, holding when the press started.
type Pressed struct {
	Since time.Time
}

func (Idle) keyState()    {}
func (Pressed) keyState() {}

// Press moves Idle to Pressed. Any other state is returned unchanged with
// ok=false.
func Press(s KeyState, now time.Time) (next KeyState, ok bool) {
	if _, idle := s.(Idle); !idle {
		return s, false
	}
	return Pressed{Since: now}, true
}

// Release moves Pressed to Idle and classifies the press. A release without a
// matching press returns ok=false.
func Release(s KeyState, now time.Time, t Timing) (next KeyState, sym Symbol, ok bool) {
	p, pressed := s.(Pressed)
	if !pressed {
		return s, 0, false
	}
	return Idle{}, Classify(now.Sub(p.Since), t), true
}

// Timer is a cancelable pending callback.
type Timer interface {
	Stop() bool
}

// Clock abstracts time for the keyer.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

func (systemClock) AfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }

// SystemClock is the wall clock.
var SystemClock Clock = systemClock{}

// KeyEventKind identifies what a keyer emitted.
type KeyEventKind int

const (
	// EventTransmit reports the key going down (On) or up.
	EventTransmit KeyEventKind = iota
	// EventSymbol reports a classified press.
	EventSymbol
	// EventChar reports a finalized character; a word boundary is Char ' '.
	EventChar
	// EventComplete follows the word boundary.
	EventComplete
)

// KeyEvent is a single keyer output.
type KeyEvent struct {
	Kind   KeyEventKind
	On     bool
	Symbol Symbol
	Char   rune
	Code   string
}

// Keyer is the press/release state machine. It owns at most one pending
// letter timer and one pending word timer.
type Keyer struct {
	mu     sync.Mutex
	timing Timing
	clock  Clock
	emit   func(KeyEvent)

	state  KeyState
	code   []byte
	letter Timer
	word   Timer
	gen    uint64
}

// KeyerOption configures a Keyer.
type KeyerOption func(*Keyer)

// WithClock replaces the wall clock.
func WithClock(c Clock) KeyerOption {
	return func(k *Keyer) { k.clock = c }
}

// NewKeyer creates a keyer. emit is called with the keyer's lock held and
// must not call back into the keyer.
func NewKeyer(timing Timing, emit func(KeyEvent), opts ...KeyerOption) *Keyer {
	if timing.Dot <= 0 {
		timing = DefaultTiming()
	}
	if emit == nil {
		emit = func(KeyEvent) {}
	}
	k := &Keyer{
		timing: timing,
		clock:  SystemClock,
		emit:   emit,
		state:  Idle{},
	}
	for _, opt := range opts {
		opt(k)
	}
	return k
}

// Press puts the key down and cancels any pending letter or word timer.
func (k *Keyer) Press() {
	k.mu.Lock()
	defer k.mu.Unlock()

	next, ok := Press(k.state, k.clock.Now())
	if !ok {
		return
	}
	k.state = next
	k.cancelTimers()
	k.emit(KeyEvent{Kind: EventTransmit, On: true})
}

// Release lifts the key, appends the classified symbol to the pending code
// and reschedules the letter and word timers.
func (k *Keyer) Release() {
	k.mu.Lock()
	defer k.mu.Unlock()

	next, sym, ok := Release(k.state, k.clock.Now(), k.timing)
	if !ok {
		return
	}
	k.state = next
	k.code = append(k.code, byte(sym))
	k.emit(KeyEvent{Kind: EventTransmit, On: false})
	k.emit(KeyEvent{Kind: EventSymbol, Symbol: sym, Code: string(k.code)})

	k.cancelTimers()
	gen := k.gen
	k.letter = k.clock.AfterFunc(k.timing.LetterGap(), func() { k.finalizeLetter(gen) })
	k.word = k.clock.AfterFunc(k.timing.WordGap(), func() { k.finalizeWord(gen) })
}

// Transmitting reports whether the key is down.
func (k *Keyer) Transmitting() bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	_, pressed := k.state.(Pressed)
	return pressed
}

// Pending returns the symbols not yet finalized into a character.
func (k *Keyer) Pending() string {
	k.mu.Lock()
	defer k.mu.Unlock()
	return string(k.code)
}

// Stop cancels pending timers and discards unfinalized symbols.
func (k *Keyer) Stop() {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.cancelTimers()
	k.code = k.code[:0]
	k.state = Idle{}
}

// cancelTimers stops both timers and invalidates any callback already in
// flight. Caller holds k.mu.
func (k *Keyer) cancelTimers() {
	k.gen++
	if k.letter != nil {
		k.letter.Stop()
		k.letter = nil
	}
	if k.word != nil {
		k.word.Stop()
		k.word = nil
	}
}

func (k *Keyer) finalizeLetter(gen uint64) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if gen != k.gen {
		return
	}
	k.letter = nil
	if len(k.code) == 0 {
		return
	}
	code := string(k.code)
	k.code = k.code[:0]
	if r, ok := Lookup(code); ok {
		k.emit(KeyEvent{Kind: EventChar, Char: r, Code: code})
	}
}

func (k *Keyer) finalizeWord(gen uint64) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if gen != k.gen {
		return
	}
	k.word = nil
	k.emit(KeyEvent{Kind: EventChar, Char: ' ', Code: WordSep})
	k.emit(KeyEvent{Kind: EventComplete})
}
