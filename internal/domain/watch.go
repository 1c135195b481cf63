package domain

import "time"

// AccountState is the watermark owned by a single watch loop.
type AccountState struct {
	AccountID    string
	Cursor       int64
	CursorSet    bool
	PollInterval time.Duration
	LastPolledAt time.Time
}

// Advance moves the cursor forward to position. It never moves backward.
func (s *AccountState) Advance(position int64) bool {
	if s.CursorSet && position <= s.Cursor {
		return false
	}
	s.Cursor = position
	s.CursorSet = true
	return true
}

// Seen reports whether position is at or behind the cursor.
func (s *AccountState) Seen(position int64) bool {
	return s.CursorSet && position <= s.Cursor
}

// TickStats holds statistics about a single watch loop tick.
type TickStats struct {
	AccountID string
	Fetched   int
	Seen      int
	Rejected  int
	Accepted  int
	Notified  int
	Errors    int
	Seeded    bool
	CursorOld int64
	CursorNew int64
	Duration  time.Duration
}
