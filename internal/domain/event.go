package domain

import "fmt"

// EventType is the kind of row change carried by the change feed.
type EventType string

const (
	EventInsert EventType = "insert"
	EventDelete EventType = "delete"
	EventUpdate EventType = "update"
)

// ChangeEvent is one notification from the shared bookmarks change feed.
// The feed is not scoped to an owner. For deletes only Row.ID is guaranteed.
type ChangeEvent struct {
	Type EventType `json:"type"`
	Row  Bookmark  `json:"record"`
}

// Validate rejects payloads the synchronizer cannot apply.
func (e ChangeEvent) Validate() error {
	switch e.Type {
	case EventInsert:
		if e.Row.ID == "" || e.Row.OwnerID == "" {
			return fmt.Errorf("%w: insert event without id or owner", ErrInvalidInput)
		}
	case EventDelete, EventUpdate:
		if e.Row.ID == "" {
			return fmt.Errorf("%w: %s event without id", ErrInvalidInput, e.Type)
		}
	default:
		return fmt.Errorf("%w: unknown event type %q", ErrInvalidInput, e.Type)
	}
	return nil
}
