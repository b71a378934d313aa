package analytics

import (
	"sort"

	"socialpulse/internal/store/analyticsdb"
)

// Breakdown maps post id -> sentiment label -> comment count. Unlabeled
// comments appear under the empty label.
type Breakdown map[string]map[string]int

// SentimentBreakdown folds store aggregation rows into per-post buckets.
func SentimentBreakdown(counts []analyticsdb.SentimentCount) Breakdown {
	b := make(Breakdown)
	for _, c := range counts {
		if _, ok := b[c.PostID]; !ok {
			b[c.PostID] = make(map[string]int)
		}
		b[c.PostID][c.Sentiment] += c.Count
	}
	return b
}

// SortedPostIDs returns the breakdown's post ids in stable order.
func SortedPostIDs(b Breakdown) []string {
	keys := make([]string, 0, len(b))
	for k := range b {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
