// Package rss watches accounts through Nitter-compatible RSS feeds.
package rss

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"bluebird/internal/domain"
)

const (
	SourceID   = "rss"
	SourceName = "RSS"

	postBaseURL = "https://x.com/"

	defaultRateLimitBackoff = 300 * time.Second
)

var (
	statusPattern = regexp.MustCompile(`([^/]+)/status/(\d+)`)
	handlePattern = regexp.MustCompile(`@(\w+)\s*$`)
)

type Config struct {
	BaseURL   string
	Timeout   time.Duration
	UserAgent string
}

// Source reads {base}/{account}/rss. Positions are the numeric status ids
// found in item links.
type Source struct {
	httpClient *http.Client
	parser     *gofeed.Parser
	baseURL    string
	userAgent  string
	now        func() time.Time
	logger     *slog.Logger
}

func New(cfg Config, logger *slog.Logger) *Source {
	return &Source{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		parser:     gofeed.NewParser(),
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		userAgent:  cfg.UserAgent,
		now:        time.Now,
		logger:     logger.With("source", SourceID),
	}
}

func (s *Source) ID() string   { return SourceID }
func (s *Source) Name() string { return SourceName }

func (s *Source) FetchLatest(ctx context.Context, accountID string) (*domain.Snapshot, error) {
	feed, header, err := s.fetchFeed(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("fetch feed %s: %w", accountID, err)
	}

	snapshot := &domain.Snapshot{
		RecommendedInterval: parseMaxAge(header.Get("Cache-Control")),
		CanonicalID:         canonicalHandle(feed.Title),
	}

	account := accountID
	if snapshot.CanonicalID != "" {
		account = snapshot.CanonicalID
	}

	for _, item := range feed.Items {
		post, err := transform(account, feed, item)
		if err != nil {
			return nil, fmt.Errorf("feed %s: %w", accountID, err)
		}
		snapshot.Posts = append(snapshot.Posts, post)
	}

	s.logger.Debug("fetched feed", "account", accountID, "posts", len(snapshot.Posts))

	return snapshot, nil
}

// FetchOne looks the post up in the author's current feed. Posts that have
// scrolled out of the feed cannot be resolved.
func (s *Source) FetchOne(ctx context.Context, accountID, postID string) (*domain.Post, error) {
	snapshot, err := s.FetchLatest(ctx, accountID)
	if err != nil {
		return nil, err
	}
	for i := range snapshot.Posts {
		if snapshot.Posts[i].ID == postID {
			return &snapshot.Posts[i], nil
		}
	}
	return nil, fmt.Errorf("post %s not in %s feed: %w", postID, accountID, domain.ErrRelatedUnresolved)
}

func (s *Source) fetchFeed(ctx context.Context, accountID string) (*gofeed.Feed, http.Header, error) {
	endpoint := fmt.Sprintf("%s/%s/rss", s.baseURL, url.PathEscape(accountID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/rss+xml, application/xml")
	if s.userAgent != "" {
		req.Header.Set("User-Agent", s.userAgent)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, nil, ctx.Err()
		}
		return nil, nil, fmt.Errorf("execute request: %v: %w", err, domain.ErrTransient)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, nil, &domain.RateLimitError{Reset: s.retryAfter(resp.Header)}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, nil, fmt.Errorf("unexpected status: %d: %w", resp.StatusCode, domain.ErrTransient)
	}

	feed, err := s.parser.Parse(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("parse feed: %v: %w", err, domain.ErrMalformed)
	}
	return feed, resp.Header, nil
}

// retryAfter honours Retry-After given in seconds.
func (s *Source) retryAfter(header http.Header) time.Time {
	now := s.now()
	if secs, err := strconv.Atoi(strings.TrimSpace(header.Get("Retry-After"))); err == nil && secs >= 0 {
		return now.Add(time.Duration(secs) * time.Second)
	}
	return now.Add(defaultRateLimitBackoff)
}

func transform(account string, feed *gofeed.Feed, item *gofeed.Item) (domain.Post, error) {
	m := statusPattern.FindStringSubmatch(item.Link)
	if m == nil {
		return domain.Post{}, fmt.Errorf("item %q has no status id: %w", item.Link, domain.ErrMalformed)
	}
	linkAuthor, id := m[1], m[2]
	position, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return domain.Post{}, fmt.Errorf("item %q: %v: %w", item.Link, err, domain.ErrMalformed)
	}

	title := strings.TrimSpace(item.Title)
	post := domain.Post{
		ID:       id,
		Position: position,
		Account:  account,
		URL:      postBaseURL + account + "/status/" + id,
		Text:     title,
		Author: domain.Author{
			ScreenName: account,
			Name:       displayName(feed.Title),
			Bio:        feed.Description,
		},
	}
	if feed.Image != nil {
		post.Author.AvatarURL = feed.Image.URL
	}
	if item.PublishedParsed != nil {
		post.CreatedAt = item.PublishedParsed.UTC()
	}

	// Reply items carry no parent id, so replies have no ref. Repost items
	// link to the original status, which is the ref.
	if rest, ok := strings.CutPrefix(title, "RT by @"); ok {
		post.Relations.IsRepost = true
		post.Text = afterColon(rest)
		post.Related.RepostTarget = &domain.PostRef{Account: linkAuthor, PostID: id}
	} else if rest, ok := strings.CutPrefix(title, "R to @"); ok {
		post.Relations.IsReply = true
		post.Text = afterColon(rest)
	}

	for _, enc := range item.Enclosures {
		if enc == nil || enc.URL == "" {
			continue
		}
		post.Media = append(post.Media, domain.Media{URL: enc.URL, Type: mediaType(enc.Type)})
	}

	return post, nil
}

func afterColon(s string) string {
	_, text, _ := strings.Cut(s, ":")
	return strings.TrimSpace(text)
}

func mediaType(mime string) string {
	kind, _, _ := strings.Cut(mime, "/")
	switch kind {
	case "image":
		return "image"
	case "video":
		return "video"
	default:
		return kind
	}
}

// canonicalHandle extracts the handle from a "Name / @handle" feed title.
func canonicalHandle(title string) string {
	m := handlePattern.FindStringSubmatch(title)
	if m == nil {
		return ""
	}
	return m[1]
}

func displayName(title string) string {
	name, _, found := strings.Cut(title, " / @")
	if !found {
		return ""
	}
	return strings.TrimSpace(name)
}

func parseMaxAge(header string) time.Duration {
	for _, directive := range strings.Split(header, ",") {
		value, ok := strings.CutPrefix(strings.ToLower(strings.TrimSpace(directive)), "max-age=")
		if !ok {
			continue
		}
		seconds, err := strconv.ParseFloat(value, 64)
		if err != nil || seconds <= 0 {
			return 0
		}
		return time.Duration(seconds * float64(time.Second))
	}
	return 0
}
