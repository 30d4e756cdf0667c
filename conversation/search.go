package conversation

import (
	"sort"
	"strings"
)

// SearchResult is one conversation matched by Search, with its score.
type SearchResult struct {
	ConversationID string
	Score          float64
}

// Search scores every conversation by case-insensitive substring match
// over title, messages, and summaries, per spec.md §4.D's weighting:
// title hits count double, summary hits 1.5x, summary key-point hits
// 1x, message hits 1x.
func (s *Store) Search(query string, limit int) []SearchResult {
	if query == "" {
		return nil
	}
	if s.metrics != nil {
		s.metrics.ConversationSearchTotal.Inc()
	}
	needle := strings.ToLower(query)

	s.mu.RLock()
	defer s.mu.RUnlock()

	var results []SearchResult
	for id, conv := range s.data {
		score := scoreConversation(conv, needle)
		if score > 0 {
			results = append(results, SearchResult{ConversationID: id, Score: score})
		}
	}

	sort.Slice(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results
}

func scoreConversation(conv *Conversation, needle string) float64 {
	var score float64

	if strings.Contains(strings.ToLower(conv.Title), needle) {
		score += 2
	}
	for _, m := range conv.Messages {
		if strings.Contains(strings.ToLower(m.Content), needle) {
			score += 1
		}
	}
	for _, sm := range conv.Summaries {
		if strings.Contains(strings.ToLower(sm.Content), needle) {
			score += 1.5
		}
		for _, kp := range sm.KeyPoints {
			if strings.Contains(strings.ToLower(kp), needle) {
				score += 1
			}
		}
	}
	return score
}
