package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// StatusEntry is one record of the status audit trail.
type StatusEntry struct {
	Seq       int         `json:"seq"`
	Status    OrderStatus `json:"status"`
	Note      *string     `json:"note,omitempty"`
	ChangedBy *uuid.UUID  `json:"changed_by,omitempty"`
	ChangedAt time.Time   `json:"changed_at"`
}

// StatusHistory is an append-only event log. Entries can be read but never
// edited or removed; timestamps are non-decreasing.
type StatusHistory struct {
	entries []StatusEntry
}

// RestoreStatusHistory rebuilds a log from persisted entries ordered by seq.
func RestoreStatusHistory(entries []StatusEntry) StatusHistory {
	return StatusHistory{entries: append([]StatusEntry(nil), entries...)}
}

// Append records a new entry and returns it with Seq assigned. An entry
// stamped earlier than the previous one is moved up to the previous time.
func (h *StatusHistory) Append(status OrderStatus, note *string, changedBy *uuid.UUID, at time.Time) StatusEntry {
	if last, ok := h.Last(); ok && at.Before(last.ChangedAt) {
		at = last.ChangedAt
	}
	e := StatusEntry{
		Seq:       len(h.entries) + 1,
		Status:    status,
		Note:      note,
		ChangedBy: changedBy,
		ChangedAt: at,
	}
	h.entries = append(h.entries, e)
	return e
}

// Entries returns a copy of the log.
func (h StatusHistory) Entries() []StatusEntry {
	return append([]StatusEntry(nil), h.entries...)
}

func (h StatusHistory) Len() int {
	return len(h.entries)
}

func (h StatusHistory) Last() (StatusEntry, bool) {
	if len(h.entries) == 0 {
		return StatusEntry{}, false
	}
	return h.entries[len(h.entries)-1], true
}

// Since returns the entries after the first n.
func (h StatusHistory) Since(n int) []StatusEntry {
	if n >= len(h.entries) {
		return nil
	}
	return append([]StatusEntry(nil), h.entries[n:]...)
}

func (h StatusHistory) clone() StatusHistory {
	return StatusHistory{entries: h.Entries()}
}

func (h StatusHistory) MarshalJSON() ([]byte, error) {
	if h.entries == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(h.entries)
}

func (h *StatusHistory) UnmarshalJSON(data []byte) error {
	var entries []StatusEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return err
	}
	h.entries = entries
	return nil
}
