package menulabel

import (
	"regexp"
	"strings"
)

const (
	// DefaultThreshold is the minimum score for a match to carry a label.
	DefaultThreshold = 58.0

	labelBonus = 5.0
)

var bracketRe = regexp.MustCompile(`\[([^\]]+)\]`)

// Match is the outcome of resolving a URL against a pool. Score and URL
// describe the best candidate even when Label is empty because the score
// fell below the threshold.
type Match struct {
	Label string  `json:"label,omitempty"`
	Score float64 `json:"score"`
	URL   string  `json:"matched_url,omitempty"`
}

// Labeled reports whether the match cleared the threshold.
func (m Match) Labeled() bool {
	return m.Label != ""
}

// BestMenuFor picks the candidate whose URL looks most like rawURL. The
// candidates are those of rawURL's host followed by those of the referer's
// host when it differs. Equal scores keep the earlier candidate.
func BestMenuFor(rawURL string, pool Pool, referer string, threshold float64) Match {
	if rawURL == "" {
		return Match{}
	}

	host := HostKey(rawURL)
	candidates := pool[host]
	if referer != "" {
		if rh := HostKey(referer); rh != "" && rh != host {
			if extra, ok := pool[rh]; ok {
				candidates = append(append([]Candidate(nil), candidates...), extra...)
			}
		}
	}
	if len(candidates) == 0 {
		return Match{}
	}

	target := lastSegment(rawURL)
	best, bestScore := -1, 0.0
	for i, c := range candidates {
		score := rawSimilarity(rawURL, c.URL)
		if target != "" && strings.Contains(labelTail(c.Label), target) {
			score += labelBonus
		}
		if best == -1 || score > bestScore {
			best, bestScore = i, score
		}
	}

	m := Match{
		Score: min(bestScore, 100),
		URL:   candidates[best].URL,
	}
	if bestScore >= threshold {
		m.Label = candidates[best].Label
	}
	return m
}

// labelTail returns the lowercased last bracketed part of a path-label, or
// the whole label when it has no brackets.
func labelTail(label string) string {
	if label == "" {
		return ""
	}
	groups := bracketRe.FindAllStringSubmatch(label, -1)
	if len(groups) == 0 {
		return strings.ToLower(label)
	}
	return strings.ToLower(groups[len(groups)-1][1])
}
