package rss

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bluebird/internal/domain"
)

const feedXML = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
  <channel>
    <title>Example Account / @Example</title>
    <link>https://nitter.example/Example</link>
    <description>Building things</description>
    <image><url>https://nitter.example/pic/avatar.jpg</url><title>Example</title><link>https://nitter.example/Example</link></image>
    <item>
      <title>hello world</title>
      <link>https://nitter.example/Example/status/1001#m</link>
      <pubDate>Tue, 14 Nov 2023 22:13:20 GMT</pubDate>
      <enclosure url="https://nitter.example/pic/media.jpg" type="image/jpeg" length="1"/>
    </item>
    <item>
      <title>R to @friend: thanks!</title>
      <link>https://nitter.example/Example/status/1002#m</link>
    </item>
    <item>
      <title>RT by @Example: something else</title>
      <link>https://nitter.example/third/status/1003#m</link>
    </item>
  </channel>
</rss>`

func newTestSource(t *testing.T, handler http.HandlerFunc) *Source {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(Config{BaseURL: srv.URL, Timeout: 5 * time.Second}, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestFetchLatest(t *testing.T) {
	src := newTestSource(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/example/rss", r.URL.Path)
		w.Header().Set("Cache-Control", "max-age=120")
		_, _ = io.WriteString(w, feedXML)
	})

	snap, err := src.FetchLatest(context.Background(), "example")
	require.NoError(t, err)

	assert.Equal(t, "Example", snap.CanonicalID)
	assert.Equal(t, 120*time.Second, snap.RecommendedInterval)
	require.Len(t, snap.Posts, 3)

	first := snap.Posts[0]
	assert.Equal(t, int64(1001), first.Position)
	assert.Equal(t, "https://x.com/Example/status/1001", first.URL)
	assert.Equal(t, "hello world", first.Text)
	assert.Equal(t, "Example Account", first.Author.Name)
	assert.Equal(t, "https://nitter.example/pic/avatar.jpg", first.Author.AvatarURL)
	require.Len(t, first.Media, 1)
	assert.Equal(t, "image", first.Media[0].Type)
	assert.False(t, first.CreatedAt.IsZero())

	assert.True(t, snap.Posts[1].Relations.IsReply)
	assert.Equal(t, "thanks!", snap.Posts[1].Text)

	assert.True(t, snap.Posts[2].Relations.IsRepost)
	assert.Equal(t, "something else", snap.Posts[2].Text)
	assert.Equal(t, &domain.PostRef{Account: "third", PostID: "1003"}, snap.Posts[2].Related.RepostTarget)
	assert.Nil(t, snap.Posts[1].Related.ReplyTarget)
}

func TestFetchLatest_Errors(t *testing.T) {
	t.Run("rate limited", func(t *testing.T) {
		src := newTestSource(t, func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Retry-After", "30")
			w.WriteHeader(http.StatusTooManyRequests)
		})
		now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
		src.now = func() time.Time { return now }

		_, err := src.FetchLatest(context.Background(), "example")
		rl, ok := domain.AsRateLimit(err)
		require.True(t, ok)
		assert.Equal(t, now.Add(30*time.Second), rl.Reset)
	})

	t.Run("not xml", func(t *testing.T) {
		src := newTestSource(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = io.WriteString(w, "definitely not a feed")
		})
		_, err := src.FetchLatest(context.Background(), "example")
		assert.ErrorIs(t, err, domain.ErrMalformed)
	})

	t.Run("item without status id", func(t *testing.T) {
		src := newTestSource(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = io.WriteString(w, `<rss version="2.0"><channel><title>x</title><item><title>a</title><link>https://nitter.example/about</link></item></channel></rss>`)
		})
		_, err := src.FetchLatest(context.Background(), "example")
		assert.ErrorIs(t, err, domain.ErrTransient)
	})

	t.Run("server error", func(t *testing.T) {
		src := newTestSource(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		})
		_, err := src.FetchLatest(context.Background(), "example")
		assert.ErrorIs(t, err, domain.ErrTransient)
	})
}

func TestFetchOne(t *testing.T) {
	src := newTestSource(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, feedXML)
	})

	post, err := src.FetchOne(context.Background(), "example", "1002")
	require.NoError(t, err)
	assert.Equal(t, "thanks!", post.Text)

	_, err = src.FetchOne(context.Background(), "example", "42")
	assert.ErrorIs(t, err, domain.ErrRelatedUnresolved)
}
