package morse

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncode(t *testing.T) {
	cases := map[string]string{
		"SOS":      "... --- ...",
		"cq de ja": "-.-. --.- / -.. . / .--- .-",
		"73!":      "--... ...-- -.-.--",
		"":         "",
	}
	for in, want := range cases {
		assert.Equal(t, want, Encode(in), "Encode(%q)", in)
	}
}

func TestEncodeUnknownCharactersLeaveAGap(t *testing.T) {
	assert.Equal(t, ".- / -...", Encode("a~b"))
	assert.Equal(t, "A B", Decode(Encode("a~b")))
	assert.Equal(t, ".- / -...", Encode("a~~b"))
	assert.Equal(t, " ", Encode("日本"))
	assert.Equal(t, "", Encode("~"))
}

func TestDecode(t *testing.T) {
	assert.Equal(t, "SOS", Decode("... --- ..."))
	assert.Equal(t, "HI THERE", Decode(".... .. / - .... . .-. ."))
	assert.Equal(t, "A B", Decode(".-  -..."), "empty token is a space")
	assert.Equal(t, "AB", Decode(".- ........ -..."), "unknown code is dropped")
	assert.Equal(t, "", Decode(""))
}

func TestRoundTripSupportedAlphabet(t *testing.T) {
	var alphabet strings.Builder
	for r := range charToCode {
		alphabet.WriteRune(r)
	}
	inputs := []string{
		alphabet.String(),
		"the quick brown fox jumps over the lazy dog 1234567890",
		"QSL? RST 599 (TNX) de JA1ABC @ 7.050 = +/-",
		"  leading and  double  spaces ",
	}
	for _, s := range inputs {
		require.Equal(t, strings.ToUpper(s), Decode(Encode(s)), "round trip of %q", s)
	}
}

func TestLookupAndCodeFor(t *testing.T) {
	r, ok := Lookup("..")
	require.True(t, ok)
	assert.Equal(t, 'I', r)

	_, ok = Lookup("........")
	assert.False(t, ok)

	code, ok := CodeFor('q')
	require.True(t, ok)
	assert.Equal(t, "--.-", code)

	code, ok = CodeFor(' ')
	require.True(t, ok)
	assert.Equal(t, WordSep, code)
}
