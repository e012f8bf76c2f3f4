package domain

// Reduce applies one change event to a most-recent-first list scoped to owner
// and reports whether the list changed. The input slice is never modified.
//
//   - insert: prepended only when it belongs to owner and its ID is not
//     already present (re-delivery and optimistic adds are no-ops)
//   - delete: drops every entry with the event's ID, whatever its owner
//   - update: ignored, bookmarks are immutable
func Reduce(list []Bookmark, owner Identity, ev ChangeEvent) ([]Bookmark, bool) {
	switch ev.Type {
	case EventInsert:
		if owner.IsZero() || ev.Row.OwnerID != owner.ID {
			return list, false
		}
		if IndexOf(list, ev.Row.ID) >= 0 {
			return list, false
		}
		next := make([]Bookmark, 0, len(list)+1)
		next = append(next, ev.Row)
		next = append(next, list...)
		return next, true

	case EventDelete:
		if IndexOf(list, ev.Row.ID) < 0 {
			return list, false
		}
		next := make([]Bookmark, 0, len(list)-1)
		for _, b := range list {
			if b.ID != ev.Row.ID {
				next = append(next, b)
			}
		}
		return next, true
	}

	return list, false
}
