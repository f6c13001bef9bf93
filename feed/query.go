package feed

import "strings"

// likeSignals is how many recent like titles seed a personalized query.
const likeSignals = 3

const fallbackQuery = "trending"

// PersonalizedQuery joins up to three like titles, then channels, then
// topics with single spaces. It falls back to "trending" when every input
// is empty.
func PersonalizedQuery(likeTitles, channels, topics []string) string {
	terms := make([]string, 0, likeSignals+len(channels)+len(topics))
	n := 0
	for _, t := range likeTitles {
		if n == likeSignals {
			break
		}
		if t = strings.TrimSpace(t); t != "" {
			terms = append(terms, t)
			n++
		}
	}
	for _, group := range [][]string{channels, topics} {
		for _, t := range group {
			if t = strings.TrimSpace(t); t != "" {
				terms = append(terms, t)
			}
		}
	}
	if len(terms) == 0 {
		return fallbackQuery
	}
	return strings.Join(terms, " ")
}
