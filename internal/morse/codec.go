// Package morse converts between text and International Morse code and turns
// raw key press/release timing into characters.
package morse

import (
	"regexp"
	"strings"
	"unicode"
)

const (
	// LetterSep separates the codes of two characters in serialized form.
	LetterSep = " "
	// WordSep is the serialized code of a space.
	WordSep = "/"
)

var charToCode = map[rune]string{
	'A': ".-", 'B': "-...", 'C': "-.-.", 'D': "-..", 'E': ".",
	'F': "..-.", 'G': "--.", 'H': "....", 'I': "..", 'J': ".---",
	'K': "-.-", 'L': ".-..", 'M': "--", 'N': "-.", 'O': "---",
	'P': ".--.", 'Q': "--.-", 'R': ".-.", 'S': "...", 'T': "-",
	'U': "..-", 'V': "...-", 'W': ".--", 'X': "-..-", 'Y': "-.--",
	'Z': "--..",
	'1': ".----", '2': "..---", '3': "...--", '4': "....-", '5': ".....",
	'6': "-....", '7': "--...", '8': "---..", '9': "----.", '0': "-----",
	'.': ".-.-.-", ',': "--..--", '?': "..--..", '\'': ".----.", '!': "-.-.--",
	'/': "-..-.", '(': "-.--.", ')': "-.--.-", '&': ".-...", ':': "---...",
	';': "-.-.-.", '=': "-...-", '+': ".-.-.", '-': "-....-", '_': "..--.-",
	'"': ".-..-.", '$': "...-..-", '@': ".--.-.",
	' ': WordSep,
}

// gapRun matches the double spaces left where characters encoded to nothing.
var gapRun = regexp.MustCompile(`  +`)

var codeToChar = make(map[string]rune, len(charToCode))

func init() {
	for r, code := range charToCode {
		codeToChar[code] = r
	}
}

// CodeFor returns the dot/dash code for r. Letters are matched
// case-insensitively.
func CodeFor(r rune) (string, bool) {
	code, ok := charToCode[unicode.ToUpper(r)]
	return code, ok
}

// Lookup returns the character for a single dot/dash code.
func Lookup(code string) (rune, bool) {
	r, ok := codeToChar[code]
	return r, ok
}

// Encode uppercases text and serializes it as Morse: character codes joined
// by a single space, spaces rendered as "/". A character outside the table
// encodes to nothing, and the run of spaces it leaves becomes a word gap.
func Encode(text string) string {
	codes := make([]string, 0, len(text))
	for _, r := range strings.ToUpper(text) {
		codes = append(codes, charToCode[r])
	}
	return gapRun.ReplaceAllString(strings.Join(codes, LetterSep), " "+WordSep+" ")
}

// Decode turns serialized Morse back into uppercase text. Each "/" or empty
// token becomes a space; unknown codes decode to nothing.
func Decode(code string) string {
	if code == "" {
		return ""
	}
	var b strings.Builder
	for _, token := range strings.Split(code, LetterSep) {
		if token == WordSep || token == "" {
			b.WriteByte(' ')
			continue
		}
		if r, ok := codeToChar[token]; ok {
			b.WriteRune(r)
		}
	}
	return b.String()
}
