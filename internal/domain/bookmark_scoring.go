package domain

import (
	"net/url"
	"sort"
	"strings"
)

const (
	ScoreExactMatch     = 100.0
	ScorePrefixMatch    = 75.0
	ScoreSubstringMatch = 50.0
	ScoreFuzzyMatch     = 25.0

	// ScorePositionBonus rewards substring matches close to the start.
	ScorePositionBonus = 10.0

	// ScoreHostWeight scales matches found in the URL host instead of the title.
	ScoreHostWeight = 0.5
)

// BookmarkCandidate represents a bookmark candidate with its match score
type BookmarkCandidate struct {
	Bookmark Bookmark
	Score    float64
}

// ScoreBookmark calculates the match score for a bookmark against a query string.
// The title is matched first; the URL host is a weaker fallback.
func ScoreBookmark(queryStr string, bookmark Bookmark) float64 {
	queryStr = strings.ToLower(strings.TrimSpace(queryStr))
	if queryStr == "" {
		return 0.0
	}

	if score := scoreText(queryStr, strings.ToLower(bookmark.Title)); score > 0 {
		return score
	}

	return scoreText(queryStr, hostOf(bookmark.URL)) * ScoreHostWeight
}

func scoreText(queryStr, text string) float64 {
	if text == "" {
		return 0.0
	}

	if queryStr == text {
		return ScoreExactMatch
	}

	if strings.HasPrefix(text, queryStr) {
		return ScorePrefixMatch
	}

	if index := strings.Index(text, queryStr); index >= 0 {
		// Earlier substring matches get higher score
		return ScoreSubstringMatch + ScorePositionBonus*(1.0-float64(index)/float64(len(text)))
	}

	// Every query word appears somewhere in the text
	if words := strings.Fields(queryStr); len(words) > 1 {
		allMatch := true
		for _, word := range words {
			if !strings.Contains(text, word) {
				allMatch = false
				break
			}
		}
		if allMatch {
			return ScoreFuzzyMatch
		}
	}

	if similarity := calculateSimilarity(queryStr, text); similarity > 0.5 {
		return ScoreFuzzyMatch * similarity
	}

	return 0.0
}

// RankBookmarks returns the bookmarks matching queryStr, best match first.
// Ties keep the input order, so equally good matches stay most-recent-first.
func RankBookmarks(queryStr string, bookmarks []Bookmark) []BookmarkCandidate {
	candidates := make([]BookmarkCandidate, 0, len(bookmarks))

	for _, bookmark := range bookmarks {
		score := ScoreBookmark(queryStr, bookmark)
		if score == 0.0 {
			continue
		}
		candidates = append(candidates, BookmarkCandidate{
			Bookmark: bookmark,
			Score:    score,
		})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Score > candidates[j].Score
	})

	return candidates
}

// calculateSimilarity is the ratio of query characters present in s2.
func calculateSimilarity(s1, s2 string) float64 {
	if s1 == "" || s2 == "" {
		return 0.0
	}

	matches := 0
	for _, c := range s1 {
		if strings.ContainsRune(s2, c) {
			matches++
		}
	}

	return float64(matches) / float64(len([]rune(s1)))
}

func hostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}
