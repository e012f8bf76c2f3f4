package redis

const (
	// KeyPrefixBookmark is the prefix for bookmark records
	KeyPrefixBookmark = "marks:bookmark:"
	// KeyPrefixOwner is the prefix for the per-owner index (sorted by creation time)
	KeyPrefixOwner = "marks:owner:"
	// ChangesChannel is the pub/sub channel carrying change events
	ChangesChannel = "marks:bookmarks:changes"
)

// BookmarkKey returns the Redis key for a bookmark
func BookmarkKey(id string) string {
	return KeyPrefixBookmark + id
}

// OwnerKey returns the key of the sorted set indexing an owner's bookmarks
func OwnerKey(ownerID string) string {
	return KeyPrefixOwner + ownerID
}
