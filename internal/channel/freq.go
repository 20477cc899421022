package channel

import (
	"strconv"
	"strings"
)

// ParseFreq parses one whitespace-separated frequency token with an
// optional engineering suffix (k, M, G; case-insensitive), e.g.
// "14074000", "14074k", "14.074M". It returns ok=false for tokens that
// don't parse, which the Channel Factory treats as "skip this token",
// not as a fatal section error.
func ParseFreq(token string) (hz float64, ok bool) {
	token = strings.TrimSpace(token)
	if token == "" {
		return 0, false
	}

	mult := 1.0
	suffix := token[len(token)-1]
	switch suffix {
	case 'k', 'K':
		mult = 1e3
		token = token[:len(token)-1]
	case 'm', 'M':
		mult = 1e6
		token = token[:len(token)-1]
	case 'g', 'G':
		mult = 1e9
		token = token[:len(token)-1]
	}

	v, err := strconv.ParseFloat(token, 64)
	if err != nil {
		return 0, false
	}
	return v * mult, true
}

// FreqKeys enumerates the channel-section keys that carry frequency
// lists: freq plus freq0..freq9.
func FreqKeys() []string {
	keys := []string{"freq"}
	for i := 0; i < 10; i++ {
		keys = append(keys, "freq"+strconv.Itoa(i))
	}
	return keys
}

// Tokens splits a whitespace-separated frequency key's value into its
// individual tokens, preserving the original token text (needed so
// DeriveSSRC sees the un-normalized form, e.g. "14074k" not "14074000").
func Tokens(value string) []string {
	return strings.Fields(value)
}
