package vx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"bluebird/internal/domain"
)

const (
	SourceID   = "vx"
	SourceName = "vxTwitter"

	DefaultBaseURL = "https://api.vxtwitter.com"
	postBaseURL    = "https://x.com/"

	defaultRateLimitBackoff = 300 * time.Second
)

var postURLPattern = regexp.MustCompile(`^https://(?:www\.)?(?:twitter|x)\.com/([^/]+)/status/(\d+)`)

// Config holds vx source configuration.
type Config struct {
	BaseURL           string
	Timeout           time.Duration
	UserAgent         string
	RequestsPerSecond float64
	Burst             int
	MaxAttempts       int
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
}

// Source fetches account timelines and single posts from the vxtwitter API.
// One Source is shared by every watch loop; the limiter paces them together.
type Source struct {
	httpClient     *http.Client
	baseURL        string
	userAgent      string
	limiter        *rate.Limiter
	maxAttempts    int
	initialBackoff time.Duration
	maxBackoff     time.Duration
	now            func() time.Time
	logger         *slog.Logger
}

// New creates a new vx source.
func New(cfg Config, logger *slog.Logger) *Source {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}

	return &Source{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		baseURL:        strings.TrimRight(cfg.BaseURL, "/"),
		userAgent:      cfg.UserAgent,
		limiter:        limiter,
		maxAttempts:    cfg.MaxAttempts,
		initialBackoff: cfg.InitialBackoff,
		maxBackoff:     cfg.MaxBackoff,
		now:            time.Now,
		logger:         logger.With("source", SourceID),
	}
}

// ID returns the source identifier.
func (s *Source) ID() string {
	return SourceID
}

// Name returns human-readable name.
func (s *Source) Name() string {
	return SourceName
}

// FetchLatest fetches the account profile together with its latest posts.
func (s *Source) FetchLatest(ctx context.Context, accountID string) (*domain.Snapshot, error) {
	endpoint := fmt.Sprintf("%s/%s?with_tweets=true", s.baseURL, url.PathEscape(accountID))

	body, header, err := s.doRequest(ctx, endpoint)
	if err != nil {
		return nil, fmt.Errorf("fetch user %s: %w", accountID, err)
	}

	var user UserResponse
	if err := json.Unmarshal(body, &user); err != nil {
		return nil, fmt.Errorf("decode user %s: %v: %w", accountID, err, domain.ErrMalformed)
	}
	if user.LatestTweets == nil {
		return nil, fmt.Errorf("user %s: missing latest_tweets: %w", accountID, domain.ErrMalformed)
	}

	snapshot := &domain.Snapshot{
		RecommendedInterval: parseMaxAge(header.Get("Cache-Control")),
		CanonicalID:         deref(user.ScreenName),
	}

	account := accountID
	if snapshot.CanonicalID != "" {
		account = snapshot.CanonicalID
	}

	for _, t := range *user.LatestTweets {
		post, err := s.transform(account, t)
		if err != nil {
			return nil, fmt.Errorf("user %s: %w", accountID, err)
		}
		post.Author.Bio = deref(user.Description)
		if post.Author.AvatarURL == "" {
			post.Author.AvatarURL = deref(user.ProfileImageURL)
		}
		if post.Author.Name == "" {
			post.Author.Name = deref(user.Name)
		}
		snapshot.Posts = append(snapshot.Posts, post)
	}

	s.logger.Debug("fetched user",
		"account", accountID,
		"posts", len(snapshot.Posts),
		"interval", snapshot.RecommendedInterval,
	)

	return snapshot, nil
}

// FetchOne fetches a single post, retrying transient failures with backoff.
func (s *Source) FetchOne(ctx context.Context, accountID, postID string) (*domain.Post, error) {
	endpoint := fmt.Sprintf("%s/%s/status/%s", s.baseURL, url.PathEscape(accountID), url.PathEscape(postID))

	var body []byte
	var err error

	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		body, _, err = s.doRequest(ctx, endpoint)
		if err == nil {
			break
		}

		if _, limited := domain.AsRateLimit(err); limited || attempt == s.maxAttempts {
			return nil, fmt.Errorf("fetch post %s: %w", postID, err)
		}

		backoff := s.calculateBackoff(attempt)
		s.logger.Warn("request failed, retrying",
			"post_id", postID,
			"attempt", attempt,
			"backoff", backoff,
			"error", err,
		)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
	}

	var tweet Tweet
	if err := json.Unmarshal(body, &tweet); err != nil {
		return nil, fmt.Errorf("decode post %s: %v: %w", postID, err, domain.ErrMalformed)
	}

	account := accountID
	if sn := deref(tweet.UserScreenName); sn != "" {
		account = sn
	}

	post, err := s.transform(account, tweet)
	if err != nil {
		return nil, err
	}
	return &post, nil
}

func (s *Source) doRequest(ctx context.Context, endpoint string) ([]byte, http.Header, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
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
		return nil, nil, &domain.RateLimitError{Reset: s.rateLimitReset(resp.Header)}
	}

	if resp.StatusCode != http.StatusOK {
		return nil, nil, fmt.Errorf("unexpected status: %d: %w", resp.StatusCode, domain.ErrTransient)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("read body: %v: %w", err, domain.ErrTransient)
	}

	return body, resp.Header, nil
}

func (s *Source) rateLimitReset(header http.Header) time.Time {
	now := s.now()
	raw := header.Get("X-Rate-Limit-Reset")
	if raw == "" {
		return now.Add(defaultRateLimitBackoff)
	}
	epoch, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		s.logger.Warn("unparsable rate limit reset", "value", raw)
		return now.Add(defaultRateLimitBackoff)
	}
	return time.Unix(epoch, 0)
}

func (s *Source) calculateBackoff(attempt int) time.Duration {
	backoff := s.initialBackoff
	for i := 1; i < attempt; i++ {
		backoff *= 2
	}
	if s.maxBackoff > 0 && backoff > s.maxBackoff {
		backoff = s.maxBackoff
	}
	return backoff
}

func (s *Source) transform(account string, t Tweet) (domain.Post, error) {
	id := deref(t.TweetID)
	if id == "" {
		return domain.Post{}, fmt.Errorf("post missing tweetID: %w", domain.ErrMalformed)
	}

	position, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return domain.Post{}, fmt.Errorf("post %q has non-numeric id: %w", id, domain.ErrMalformed)
	}

	screenName := deref(t.UserScreenName)
	if screenName == "" {
		screenName = account
	}

	postURL := strings.Replace(deref(t.TweetURL), "twitter.com", "x.com", 1)
	if postURL == "" {
		postURL = postBaseURL + screenName + "/status/" + id
	}

	post := domain.Post{
		ID:       id,
		Position: position,
		Account:  screenName,
		URL:      postURL,
		Text:     deref(t.Text),
		Author: domain.Author{
			ScreenName: screenName,
			Name:       deref(t.UserName),
			AvatarURL:  deref(t.UserProfileImageURL),
		},
		Sensitive: t.PossiblySensitive != nil && *t.PossiblySensitive,
	}

	if t.DateEpoch != nil {
		post.CreatedAt = time.Unix(*t.DateEpoch, 0).UTC()
	}

	for _, m := range t.MediaExtended {
		if deref(m.URL) == "" {
			continue
		}
		post.Media = append(post.Media, domain.Media{
			URL:     deref(m.URL),
			Type:    deref(m.Type),
			AltText: deref(m.AltText),
		})
	}

	replyTo, replyToID := deref(t.ReplyingTo), deref(t.ReplyingToID)
	post.Relations = domain.Relations{
		IsReply:  replyTo != "" || replyToID != "",
		IsRepost: deref(t.RetweetURL) != "" || hasObject(t.Retweet),
		IsQuote:  deref(t.QrtURL) != "",
	}

	if replyTo != "" && replyToID != "" {
		post.Related.ReplyTarget = &domain.PostRef{Account: replyTo, PostID: replyToID}
	}
	if post.Relations.IsQuote {
		post.Related.QuoteTarget = s.parseRef(deref(t.QrtURL))
	}
	if rt := deref(t.RetweetURL); rt != "" {
		post.Related.RepostTarget = s.parseRef(rt)
	}

	return post, nil
}

func (s *Source) parseRef(raw string) *domain.PostRef {
	ref, err := ParsePostURL(raw)
	if err != nil {
		s.logger.Warn("failed to determine attributes for related post", "url", raw)
		return nil
	}
	return ref
}

// ParsePostURL extracts the author handle and post id from a twitter.com or x.com status URL.
func ParsePostURL(raw string) (*domain.PostRef, error) {
	m := postURLPattern.FindStringSubmatch(raw)
	if m == nil {
		return nil, errors.New("not a post url")
	}
	return &domain.PostRef{Account: m[1], PostID: m[2]}, nil
}

// parseMaxAge reads max-age from a Cache-Control header. Zero means absent.
func parseMaxAge(header string) time.Duration {
	for _, directive := range strings.Split(header, ",") {
		directive = strings.TrimSpace(directive)
		value, ok := strings.CutPrefix(strings.ToLower(directive), "max-age=")
		if !ok {
			continue
		}
		seconds, err := strconv.ParseFloat(strings.Trim(value, `"`), 64)
		if err != nil || seconds <= 0 {
			return 0
		}
		return time.Duration(seconds * float64(time.Second))
	}
	return 0
}

func hasObject(raw json.RawMessage) bool {
	trimmed := strings.TrimSpace(string(raw))
	return trimmed != "" && trimmed != "null" && trimmed != "{}"
}

func deref[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}
