package postgres

import (
	"fmt"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/MrSnakeDoc/marks/internal/domain"
)

// decodeNotification parses the JSON built by the bookmarks trigger:
//
//	{"type":"INSERT|UPDATE|DELETE","record":{...},"old_record":{...}}
func decodeNotification(payload string) (domain.ChangeEvent, error) {
	if !gjson.Valid(payload) {
		return domain.ChangeEvent{}, fmt.Errorf("%w: notification is not valid json", domain.ErrInvalidInput)
	}

	doc := gjson.Parse(payload)

	var ev domain.ChangeEvent
	switch op := strings.ToUpper(doc.Get("type").String()); op {
	case "INSERT":
		ev = domain.ChangeEvent{Type: domain.EventInsert, Row: decodeRecord(doc.Get("record"))}
	case "UPDATE":
		ev = domain.ChangeEvent{Type: domain.EventUpdate, Row: decodeRecord(doc.Get("record"))}
	case "DELETE":
		ev = domain.ChangeEvent{Type: domain.EventDelete, Row: decodeRecord(doc.Get("old_record"))}
	default:
		return domain.ChangeEvent{}, fmt.Errorf("%w: unknown operation %q", domain.ErrInvalidInput, op)
	}

	if err := ev.Validate(); err != nil {
		return domain.ChangeEvent{}, err
	}
	return ev, nil
}

func decodeRecord(r gjson.Result) domain.Bookmark {
	b := domain.Bookmark{
		ID:      r.Get("id").String(),
		OwnerID: r.Get("user_id").String(),
		Title:   r.Get("title").String(),
		URL:     r.Get("url").String(),
	}
	if ts := r.Get("created_at").String(); ts != "" {
		if t, err := time.Parse(time.RFC3339Nano, ts); err == nil {
			b.CreatedAt = t
		}
	}
	return b
}
