package vx

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bluebird/internal/domain"
)

const userPayload = `{
	"screen_name": "Example",
	"name": "Example Account",
	"description": "Building things with @friend",
	"profile_image_url": "https://pbs.twimg.com/profile_images/1/a_normal.jpg",
	"latest_tweets": [
		{
			"tweetID": "1002",
			"tweetURL": "https://twitter.com/Example/status/1002",
			"text": "quoting this",
			"date_epoch": 1700000100,
			"user_screen_name": "Example",
			"user_name": "Example Account",
			"qrtURL": "https://twitter.com/other/status/900",
			"media_extended": []
		},
		{
			"tweetID": "1001",
			"tweetURL": "https://twitter.com/Example/status/1001",
			"text": "@friend hello",
			"date_epoch": 1700000000,
			"user_screen_name": "Example",
			"replyingTo": "friend",
			"replyingToID": "999",
			"possibly_sensitive": true,
			"media_extended": [{"url": "https://pbs.twimg.com/media/x.jpg", "type": "image", "altText": "a cat"}]
		},
		{
			"tweetID": "1003",
			"text": "",
			"retweetURL": "https://x.com/third/status/800",
			"retweet": {"tweetID": "800"}
		}
	]
}`

func newTestSource(t *testing.T, handler http.HandlerFunc) (*Source, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	src := New(Config{
		BaseURL:        srv.URL,
		Timeout:        5 * time.Second,
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
	}, logger)
	return src, srv
}

func TestFetchLatest_ParsesSnapshot(t *testing.T) {
	src, _ := newTestSource(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/example", r.URL.Path)
		assert.Equal(t, "true", r.URL.Query().Get("with_tweets"))
		w.Header().Set("Cache-Control", "public, max-age=90")
		_, _ = io.WriteString(w, userPayload)
	})

	snap, err := src.FetchLatest(context.Background(), "example")
	require.NoError(t, err)

	assert.Equal(t, "Example", snap.CanonicalID)
	assert.Equal(t, 90*time.Second, snap.RecommendedInterval)
	require.Len(t, snap.Posts, 3)

	quote := snap.Posts[0]
	assert.Equal(t, "1002", quote.ID)
	assert.Equal(t, int64(1002), quote.Position)
	assert.Equal(t, "https://x.com/Example/status/1002", quote.URL)
	assert.True(t, quote.Relations.IsQuote)
	assert.Equal(t, &domain.PostRef{Account: "other", PostID: "900"}, quote.Related.QuoteTarget)
	assert.Equal(t, "Building things with @friend", quote.Author.Bio)
	assert.Equal(t, time.Unix(1700000100, 0).UTC(), quote.CreatedAt)

	reply := snap.Posts[1]
	assert.True(t, reply.Relations.IsReply)
	assert.True(t, reply.Sensitive)
	assert.Equal(t, &domain.PostRef{Account: "friend", PostID: "999"}, reply.Related.ReplyTarget)
	require.Len(t, reply.Media, 1)
	assert.Equal(t, "a cat", reply.Media[0].AltText)
	assert.Equal(t, "Example Account", reply.Author.Name)

	repost := snap.Posts[2]
	assert.True(t, repost.Relations.IsRepost)
	assert.Equal(t, &domain.PostRef{Account: "third", PostID: "800"}, repost.Related.RepostTarget)
	assert.Equal(t, "https://x.com/Example/status/1003", repost.URL)
	assert.Equal(t, "https://pbs.twimg.com/profile_images/1/a_normal.jpg", repost.Author.AvatarURL)
}

func TestFetchLatest_NoCacheHint(t *testing.T) {
	src, _ := newTestSource(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"screen_name": "example", "latest_tweets": []}`)
	})

	snap, err := src.FetchLatest(context.Background(), "example")
	require.NoError(t, err)
	assert.Equal(t, time.Duration(0), snap.RecommendedInterval)
	assert.Empty(t, snap.Posts)
}

func TestFetchLatest_RateLimited(t *testing.T) {
	reset := time.Now().Add(2 * time.Minute).Unix()
	src, _ := newTestSource(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Rate-Limit-Reset", strconv.FormatInt(reset, 10))
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := src.FetchLatest(context.Background(), "example")
	require.Error(t, err)

	rl, ok := domain.AsRateLimit(err)
	require.True(t, ok)
	assert.Equal(t, time.Unix(reset, 0), rl.Reset)
}

func TestFetchLatest_RateLimitedWithoutReset(t *testing.T) {
	src, _ := newTestSource(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	src.now = func() time.Time { return now }

	_, err := src.FetchLatest(context.Background(), "example")

	rl, ok := domain.AsRateLimit(err)
	require.True(t, ok)
	assert.Equal(t, now.Add(defaultRateLimitBackoff), rl.Reset)
}

func TestFetchLatest_FailuresAreTransient(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		malformed bool
	}{
		{name: "server error", status: http.StatusBadGateway},
		{name: "invalid json", status: http.StatusOK, body: `{"latest_tweets": [`, malformed: true},
		{name: "missing latest_tweets", status: http.StatusOK, body: `{"screen_name": "x"}`, malformed: true},
		{name: "post without id", status: http.StatusOK, body: `{"latest_tweets": [{"text": "hi"}]}`, malformed: true},
		{name: "non-numeric id", status: http.StatusOK, body: `{"latest_tweets": [{"tweetID": "abc"}]}`, malformed: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src, _ := newTestSource(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			})

			snap, err := src.FetchLatest(context.Background(), "example")
			assert.Nil(t, snap)
			assert.ErrorIs(t, err, domain.ErrTransient)
			if tt.malformed {
				assert.ErrorIs(t, err, domain.ErrMalformed)
			}
		})
	}
}

func TestFetchOne_RetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	src, _ := newTestSource(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/other/status/900", r.URL.Path)
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = io.WriteString(w, `{"tweetID": "900", "text": "original", "user_screen_name": "Other"}`)
	})

	post, err := src.FetchOne(context.Background(), "other", "900")
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, "original", post.Text)
	assert.Equal(t, "Other", post.Author.ScreenName)
	assert.Equal(t, "https://x.com/Other/status/900", post.URL)
}

func TestFetchOne_GivesUpAfterMaxAttempts(t *testing.T) {
	var calls atomic.Int32
	src, _ := newTestSource(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	})

	_, err := src.FetchOne(context.Background(), "other", "900")
	assert.ErrorIs(t, err, domain.ErrTransient)
	assert.Equal(t, int32(3), calls.Load())
}

func TestFetchOne_DoesNotRetryRateLimit(t *testing.T) {
	var calls atomic.Int32
	src, _ := newTestSource(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := src.FetchOne(context.Background(), "other", "900")
	_, ok := domain.AsRateLimit(err)
	assert.True(t, ok)
	assert.Equal(t, int32(1), calls.Load())
}

func TestParseMaxAge(t *testing.T) {
	tests := []struct {
		header string
		want   time.Duration
	}{
		{"", 0},
		{"no-cache", 0},
		{"max-age=60", 60 * time.Second},
		{"public, max-age=30", 30 * time.Second},
		{"Max-Age=1.5", 1500 * time.Millisecond},
		{"max-age=0", 0},
		{"max-age=abc", 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, parseMaxAge(tt.header), tt.header)
	}
}

func TestParsePostURL(t *testing.T) {
	ref, err := ParsePostURL("https://twitter.com/someone/status/12345")
	require.NoError(t, err)
	assert.Equal(t, &domain.PostRef{Account: "someone", PostID: "12345"}, ref)

	ref, err = ParsePostURL("https://x.com/someone/status/67890?s=20")
	require.NoError(t, err)
	assert.Equal(t, "67890", ref.PostID)

	_, err = ParsePostURL("https://example.com/someone/status/1")
	assert.Error(t, err)
}
