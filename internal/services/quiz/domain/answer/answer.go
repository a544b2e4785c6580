// Package answer extracts an answer letter from a respondent's free-text
// reply.
package answer

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/width"
)

var folder = cases.Fold()

// keywords introduce a letter ("option c", "resposta: b").
var keywords = map[string]bool{
	"answer":      true,
	"option":      true,
	"letter":      true,
	"choice":      true,
	"pick":        true,
	"choose":      true,
	"resposta":    true,
	"opção":       true,
	"opcao":       true,
	"alternativa": true,
	"letra":       true,
}

// fillers may sit between a keyword and the letter.
var fillers = map[string]bool{
	"is":  true,
	"my":  true,
	"i":   true,
	"é":   true,
	"the": true,
	"was": true,
}

// Parse returns the upper-case letter A..D a reply clearly names. Replies
// that name no letter, or that could be ordinary prose, report false.
func Parse(reply string) (string, bool) {
	text := strings.TrimSpace(width.Fold.String(reply))
	if text == "" {
		return "", false
	}
	tokens := strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	if len(tokens) == 0 {
		return "", false
	}

	if letter, ok := singleLetter(tokens[0]); ok && !looksLikeArticle(text, tokens) {
		return letter, true
	}

	for i := 0; i < len(tokens)-1; i++ {
		if !keywords[folder.String(tokens[i])] {
			continue
		}
		j := i + 1
		for j < len(tokens)-1 && fillers[folder.String(tokens[j])] {
			j++
		}
		if letter, ok := singleLetter(tokens[j]); ok {
			return letter, true
		}
	}
	return "", false
}

func singleLetter(token string) (string, bool) {
	if utf8.RuneCountInString(token) != 1 {
		return "", false
	}
	switch upper := strings.ToUpper(token); upper {
	case "A", "B", "C", "D":
		return upper, true
	}
	return "", false
}

// looksLikeArticle reports a leading "a" or "A" followed by whitespace and
// another word, as in "A bit of both". "A - mostly planning" stays an answer.
func looksLikeArticle(text string, tokens []string) bool {
	if len(tokens) == 1 || (tokens[0] != "a" && tokens[0] != "A") {
		return false
	}
	rest, ok := strings.CutPrefix(text, tokens[0])
	if !ok {
		return false
	}
	next, _ := utf8.DecodeRuneInString(rest)
	if !unicode.IsSpace(next) {
		return false
	}
	next, _ = utf8.DecodeRuneInString(strings.TrimLeftFunc(rest, unicode.IsSpace))
	return unicode.IsLetter(next)
}
