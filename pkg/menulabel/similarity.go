package menulabel

import (
	"math"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
)

const (
	jaccardWeight = 40.0
	lastWeight    = 20.0
	suffixWeight  = 15.0
	ratioWeight   = 25.0
)

// PathSimilarity scores how alike the paths of two URLs are, from 0 to 100.
// It blends segment-set overlap, last-segment equality, suffix containment
// and the character similarity ratio of the joined segments.
func PathSimilarity(a, b string) float64 {
	return math.Min(rawSimilarity(a, b), 100)
}

func rawSimilarity(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 100
	}

	as, bs := PathSegments(a), PathSegments(b)
	if len(as) == 0 && len(bs) == 0 {
		return 0
	}

	jaccard := jaccardIndex(as, bs)

	last := 0.0
	if len(as) > 0 && len(bs) > 0 && as[len(as)-1] == bs[len(bs)-1] {
		last = 1
	}

	ap, bp := strings.Join(as, "/"), strings.Join(bs, "/")
	suffix := 0.0
	if strings.HasSuffix(ap, bp) || strings.HasSuffix(bp, ap) {
		suffix = 1
	}

	ratio := difflib.NewMatcher(strings.Split(ap, ""), strings.Split(bp, "")).Ratio()

	return jaccard*jaccardWeight + last*lastWeight + suffix*suffixWeight + ratio*ratioWeight
}

func jaccardIndex(a, b []string) float64 {
	set := make(map[string]uint8, len(a)+len(b))
	for _, s := range a {
		set[s] |= 1
	}
	for _, s := range b {
		set[s] |= 2
	}
	inter := 0
	for _, v := range set {
		if v == 3 {
			inter++
		}
	}
	return float64(inter) / float64(max(1, len(set)))
}
