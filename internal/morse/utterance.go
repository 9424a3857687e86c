package morse

import (
	"strings"
	"sync"
)

// Utterance accumulates characters emitted by a keyer until the operator
// finishes a message.
type Utterance struct {
	mu   sync.Mutex
	text strings.Builder
}

// Add appends a decoded character. A space marks a word boundary; leading and
// repeated boundaries are ignored.
func (u *Utterance) Add(r rune) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if r == ' ' {
		s := u.text.String()
		if s == "" || strings.HasSuffix(s, " ") {
			return
		}
	}
	u.text.WriteRune(r)
}

// Text returns the accumulated plain text.
func (u *Utterance) Text() string {
	u.mu.Lock()
	defer u.mu.Unlock()
	return strings.TrimSpace(u.text.String())
}

// Code returns the accumulated text in serialized Morse.
func (u *Utterance) Code() string {
	return Encode(u.Text())
}

// Empty reports whether nothing has been keyed yet.
func (u *Utterance) Empty() bool {
	return u.Text() == ""
}

// Take returns the text and code and resets the utterance.
func (u *Utterance) Take() (text, code string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	text = strings.TrimSpace(u.text.String())
	u.text.Reset()
	return text, Encode(text)
}
