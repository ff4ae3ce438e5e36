package services

import (
	"sort"
	"strings"
	"unicode"
)

const fallbackQuery = "people activity lifestyle"

// Common Italian and English words that carry no search value.
var stopwords = map[string]struct{}{
	"il": {}, "lo": {}, "la": {}, "i": {}, "gli": {}, "le": {}, "un": {},
	"una": {}, "di": {}, "da": {}, "a": {}, "in": {}, "per": {}, "con": {},
	"su": {}, "come": {}, "che": {}, "si": {}, "non": {}, "del": {},
	"della": {}, "dei": {}, "delle": {}, "sono": {}, "è": {},
	"the": {}, "an": {}, "and": {}, "or": {}, "but": {}, "on": {}, "at": {},
	"to": {}, "for": {}, "of": {}, "with": {}, "by": {}, "from": {},
	"as": {}, "is": {}, "was": {},
}

// ExtractKeywords pulls the most frequent meaningful words out of free text.
// Words of 3 letters or fewer, stopwords and anything non-alphabetic are
// dropped; ties keep first-appearance order so results are deterministic.
func ExtractKeywords(text string, max int) []string {
	if text == "" {
		return nil
	}

	counts := make(map[string]int)
	firstSeen := make(map[string]int)

	for i, word := range strings.Fields(strings.ToLower(text)) {
		if len([]rune(word)) <= 3 {
			continue
		}
		if _, banned := stopwords[word]; banned {
			continue
		}
		if !isAlpha(word) {
			continue
		}
		if _, seen := counts[word]; !seen {
			firstSeen[word] = i
		}
		counts[word]++
	}

	keywords := make([]string, 0, len(counts))
	for word := range counts {
		keywords = append(keywords, word)
	}

	sort.SliceStable(keywords, func(a, b int) bool {
		if counts[keywords[a]] != counts[keywords[b]] {
			return counts[keywords[a]] > counts[keywords[b]]
		}
		return firstSeen[keywords[a]] < firstSeen[keywords[b]]
	})

	if len(keywords) > max {
		keywords = keywords[:max]
	}
	return keywords
}

// BuildQuery assembles a stock-footage search query from the video metadata.
// Sheet keywords take priority over extracted ones; the query is capped at
// five terms.
func BuildQuery(title, keywords, description, script, sceneContext string) string {
	allText := strings.Join([]string{title, keywords, description, script, sceneContext}, " ")
	terms := ExtractKeywords(allText, 5)

	if strings.TrimSpace(keywords) != "" {
		sheetTerms := make([]string, 0, 3)
		for _, k := range strings.Split(keywords, ",") {
			if trimmed := strings.TrimSpace(k); trimmed != "" {
				sheetTerms = append(sheetTerms, trimmed)
			}
			if len(sheetTerms) == 3 {
				break
			}
		}
		terms = append(sheetTerms, terms...)
	}

	if len(terms) > 5 {
		terms = terms[:5]
	}
	if len(terms) == 0 {
		return fallbackQuery
	}
	return strings.Join(terms, " ")
}

func isAlpha(word string) bool {
	for _, r := range word {
		if !unicode.IsLetter(r) {
			return false
		}
	}
	return len(word) > 0
}
