package homepage

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// BookmarkMapper converts Homepage bookmark config to importable entries
type BookmarkMapper struct{}

// NewBookmarkMapper creates a new bookmark mapper
func NewBookmarkMapper() *BookmarkMapper {
	return &BookmarkMapper{}
}

// MapBookmarks flattens the config in file order. The bookmark name becomes
// the title. Entries without an absolute http(s) href are skipped and a URL
// seen twice is kept once.
func (m *BookmarkMapper) MapBookmarks(config BookmarksConfig) ([]Entry, error) {
	entries := make([]Entry, 0)
	seen := make(map[string]bool)

	for _, category := range config {
		for _, categoryName := range sortedKeys(category) {
			for _, bookmarkMap := range category[categoryName] {
				for _, bookmarkName := range sortedKeys(bookmarkMap) {
					entryList := bookmarkMap[bookmarkName]
					// Each bookmark has a list with a single entry
					if len(entryList) == 0 {
						continue
					}
					entry := entryList[0]

					href := strings.TrimSpace(entry.Href)
					if !isWebURL(href) || seen[href] {
						continue
					}
					seen[href] = true

					title := strings.TrimSpace(bookmarkName)
					if title == "" {
						title = entry.Abbr
					}

					entries = append(entries, Entry{
						Category: categoryName,
						Title:    title,
						URL:      href,
					})
				}
			}
		}
	}

	if len(entries) == 0 {
		return nil, fmt.Errorf("no valid bookmarks found in config")
	}

	return entries, nil
}

func isWebURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// sortedKeys gives map iteration a stable order. Homepage maps usually hold
// a single key.
func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
