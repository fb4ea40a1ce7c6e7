package stream

import "strings"

// The filters run sequentially and are stable: candidates that pass keep
// their original order.

// FilterMaxSize drops candidates whose known size exceeds maxBytes.
// Candidates with unknown size pass. maxBytes 0 disables the filter.
func FilterMaxSize(cands []Candidate, maxBytes int64) []Candidate {
	if maxBytes <= 0 {
		return cands
	}
	result := cands[:0]
	for _, c := range cands {
		if c.Bytes == 0 || c.Bytes <= maxBytes {
			result = append(result, c)
		}
	}
	return result
}

// FilterBlacklist drops candidates whose combined text contains any of the
// given terms as a case-insensitive substring.
func FilterBlacklist(cands []Candidate, terms []string) []Candidate {
	if len(terms) == 0 {
		return cands
	}
	lowered := make([]string, 0, len(terms))
	for _, term := range terms {
		term = strings.ToLower(strings.TrimSpace(term))
		if term != "" {
			lowered = append(lowered, term)
		}
	}
	if len(lowered) == 0 {
		return cands
	}

	result := cands[:0]
	for _, c := range cands {
		text := c.CombinedText()
		blocked := false
		for _, term := range lowered {
			if strings.Contains(text, term) {
				blocked = true
				break
			}
		}
		if !blocked {
			result = append(result, c)
		}
	}
	return result
}

// FilterStrictLanguage drops candidates whose detected language set is
// disjoint from the preference list. An empty preference list means there's
// nothing to be strict about, so no filtering happens.
func FilterStrictLanguage(cands []Candidate, prefs []string) []Candidate {
	if len(prefs) == 0 {
		return cands
	}
	normalized := make([]string, 0, len(prefs))
	for _, pref := range prefs {
		if pref = NormalizeLangPref(pref); pref != "" {
			normalized = append(normalized, pref)
		}
	}
	if len(normalized) == 0 {
		return cands
	}

	result := cands[:0]
	for _, c := range cands {
		if languagesMatch(normalized, c.Languages) {
			result = append(result, c)
		}
	}
	return result
}

func languagesMatch(prefs, detected []string) bool {
	for _, pref := range prefs {
		for _, lang := range detected {
			if langMatches(pref, lang) {
				return true
			}
		}
	}
	return false
}
