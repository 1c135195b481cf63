package domain

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccountState_AdvanceIsMonotonic(t *testing.T) {
	var s AccountState

	assert.False(t, s.Seen(0))
	assert.True(t, s.Advance(30))
	assert.True(t, s.Seen(30))
	assert.True(t, s.Seen(10))
	assert.False(t, s.Seen(31))

	assert.False(t, s.Advance(20))
	assert.False(t, s.Advance(30))
	assert.Equal(t, int64(30), s.Cursor)

	assert.True(t, s.Advance(40))
	assert.Equal(t, int64(40), s.Cursor)
}

func TestRateLimitError_Wait(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	rl := &RateLimitError{Reset: now.Add(120 * time.Second)}
	assert.Equal(t, 120*time.Second, rl.Wait(now))

	rl = &RateLimitError{Reset: now.Add(-time.Second)}
	assert.Equal(t, time.Duration(0), rl.Wait(now))
}

func TestAsRateLimit(t *testing.T) {
	wrapped := fmt.Errorf("fetch user: %w", &RateLimitError{Reset: time.Unix(100, 0)})

	rl, ok := AsRateLimit(wrapped)
	require.True(t, ok)
	assert.Equal(t, time.Unix(100, 0), rl.Reset)

	_, ok = AsRateLimit(errors.New("boom"))
	assert.False(t, ok)
}

func TestErrMalformedIsTransient(t *testing.T) {
	err := fmt.Errorf("decode: %w", ErrMalformed)
	assert.ErrorIs(t, err, ErrMalformed)
	assert.ErrorIs(t, err, ErrTransient)
}

func TestNotification_Action(t *testing.T) {
	tests := []struct {
		relations Relations
		want      string
	}{
		{Relations{}, "Posted"},
		{Relations{IsReply: true}, "Replied"},
		{Relations{IsQuote: true, IsReply: true}, "Quoted"},
		{Relations{IsRepost: true, IsQuote: true}, "Reposted"},
	}
	for _, tt := range tests {
		n := Notification{Post: Post{Relations: tt.relations}}
		assert.Equal(t, tt.want, n.Action())
	}
}

func TestPostRef_Valid(t *testing.T) {
	var nilRef *PostRef
	assert.False(t, nilRef.Valid())
	assert.False(t, (&PostRef{Account: "a"}).Valid())
	assert.True(t, (&PostRef{Account: "a", PostID: "1"}).Valid())
}
