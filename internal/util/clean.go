package util

import (
	"strings"
	"unicode/utf8"
)

var charReplacementMap = map[string]string{
	"\u2018": "'", "\u2019": "'", "\u201C": "\"", "\u201D": "\"",
	"\u2013": "-", "\u2014": "--", "\u2026": "...", "\u00a0": " ",
}

// CleanText makes model output safe for a single log line: invalid UTF-8 is
// replaced, typographic punctuation is flattened and line breaks become spaces.
func CleanText(s string) string {
	if !utf8.ValidString(s) {
		s = strings.ToValidUTF8(s, string(utf8.RuneError))
	}
	for bad, good := range charReplacementMap {
		s = strings.ReplaceAll(s, bad, good)
	}
	s = strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ", "\t", " ").Replace(s)
	return strings.TrimSpace(s)
}

// Snippet cleans s and cuts it to at most max runes.
func Snippet(s string, max int) string {
	s = CleanText(s)
	if max <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max])
}
