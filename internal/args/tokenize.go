package args

import (
	"strings"
	"unicode"
)

// tokenize splits plain text with shell-like rules: whitespace
// separates tokens, matching single or double quotes group their
// contents and are stripped. An unterminated quote runs to the end of
// the input.
func tokenize(s string) []string {
	var tokens []string
	var buf strings.Builder
	var quote rune
	started := false

	flush := func() {
		if started {
			tokens = append(tokens, buf.String())
			buf.Reset()
			started = false
		}
	}

	for _, r := range s {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			} else {
				buf.WriteRune(r)
			}
		case r == '\'' || r == '"':
			quote = r
			started = true
		case unicode.IsSpace(r):
			flush()
		default:
			buf.WriteRune(r)
			started = true
		}
	}
	flush()

	return tokens
}

// Quote renders a token so that tokenizing it again yields the same
// token: bare when possible, double-quoted when it contains whitespace
// or quotes. The tokenizer has no escape syntax, so a token carrying
// both quote kinds cannot be represented; its double quotes are
// dropped.
func Quote(token string) string {
	if token == "" {
		return `""`
	}
	if strings.Contains(token, `"`) && strings.Contains(token, "'") {
		token = strings.ReplaceAll(token, `"`, "")
	}
	if !strings.ContainsFunc(token, func(r rune) bool {
		return unicode.IsSpace(r) || r == '\'' || r == '"'
	}) {
		return token
	}
	if !strings.Contains(token, `"`) {
		return `"` + token + `"`
	}
	return "'" + token + "'"
}
