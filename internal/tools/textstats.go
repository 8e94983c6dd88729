package tools

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

const previewRunes = 50

// TextStats holds descriptive statistics for a block of text. Lengths
// are counted in characters (runes), not bytes.
type TextStats struct {
	Words            int
	Sentences        int
	Chars            int
	CharsNoSpaces    int
	LongestWord      string
	Uppercase        int
	Lowercase        int
	WordsPerSentence float64
	Preview          string
}

// Analyze computes statistics for text. Words are whitespace-delimited
// tokens; sentences are the non-blank segments between periods. The
// longest word ignores leading and trailing punctuation, and the first
// of equally long words wins.
func Analyze(text string) TextStats {
	words := strings.Fields(text)

	sentences := 0
	for _, seg := range strings.Split(text, ".") {
		if strings.TrimSpace(seg) != "" {
			sentences++
		}
	}

	var longest string
	longestLen := 0
	for _, w := range words {
		w = strings.TrimFunc(w, unicode.IsPunct)
		if n := utf8.RuneCountInString(w); n > longestLen {
			longest, longestLen = w, n
		}
	}

	var upper, lower int
	for _, r := range text {
		switch {
		case unicode.IsUpper(r):
			upper++
		case unicode.IsLower(r):
			lower++
		}
	}

	chars := utf8.RuneCountInString(text)
	st := TextStats{
		Words:         len(words),
		Sentences:     sentences,
		Chars:         chars,
		CharsNoSpaces: chars - strings.Count(text, " "),
		LongestWord:   longest,
		Uppercase:     upper,
		Lowercase:     lower,
		Preview:       preview(text, previewRunes),
	}
	if sentences > 0 {
		st.WordsPerSentence = float64(len(words)) / float64(sentences)
	}
	return st
}

// AnalyzeText renders the text_analyzer report.
func AnalyzeText(text string) (report string) {
	defer func() {
		if p := recover(); p != nil {
			report = fmt.Sprintf("Analysis error: %v", p)
		}
	}()

	st := Analyze(text)
	avg := "0"
	if st.Sentences > 0 {
		avg = roundOneDecimal(st.WordsPerSentence)
	}

	var sb strings.Builder
	sb.WriteString("Text Analysis Results:\n")
	fmt.Fprintf(&sb, "- Word count: %d\n", st.Words)
	fmt.Fprintf(&sb, "- Sentence count: %d\n", st.Sentences)
	fmt.Fprintf(&sb, "- Character count: %d (without spaces: %d)\n", st.Chars, st.CharsNoSpaces)
	fmt.Fprintf(&sb, "- Longest word: \"%s\" (%d characters)\n", st.LongestWord, utf8.RuneCountInString(st.LongestWord))
	fmt.Fprintf(&sb, "- Uppercase letters: %d\n", st.Uppercase)
	fmt.Fprintf(&sb, "- Lowercase letters: %d\n", st.Lowercase)
	fmt.Fprintf(&sb, "- Average words per sentence: %s\n", avg)
	fmt.Fprintf(&sb, "- Text starts with: \"%s\"\n", st.Preview)
	return sb.String()
}

// roundOneDecimal rounds half to even on the exact binary value and
// always keeps one decimal place.
func roundOneDecimal(f float64) string {
	if math.IsInf(f, 0) || math.IsNaN(f) {
		return formatFloat(f)
	}
	return strconv.FormatFloat(f, 'f', 1, 64)
}

func preview(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n]) + "..."
}
