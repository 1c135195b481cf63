// Package watcher implements the per-account polling state machine.
//
// A Watcher starts uninitialized. The first non-empty snapshot seeds the
// cursor to the newest position without notifying. Every later tick
// notifies for accepted posts strictly above the cursor and then moves the
// cursor to the highest position in the batch, accepted or not.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"bluebird/internal/domain"
	"bluebird/internal/filter"
)

const DefaultInterval = 60 * time.Second

// Clock abstracts time so ticks and waits can be driven from tests.
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

type Options struct {
	// DefaultInterval is used until the upstream recommends one.
	DefaultInterval time.Duration
	// MinInterval floors upstream recommendations.
	MinInterval time.Duration
	// Seed sets the cursor directly, skipping the seeding fetch.
	Seed  *int64
	Clock Clock
}

type Watcher struct {
	configured string
	fetcher    Fetcher
	notifier   Notifier
	filter     filter.Config
	opts       Options
	clock      Clock
	logger     *slog.Logger

	state domain.AccountState
}

func New(
	accountID string,
	fetcher Fetcher,
	notifier Notifier,
	filterCfg filter.Config,
	opts Options,
	logger *slog.Logger,
) *Watcher {
	if opts.DefaultInterval <= 0 {
		opts.DefaultInterval = DefaultInterval
	}
	if opts.Clock == nil {
		opts.Clock = realClock{}
	}

	w := &Watcher{
		configured: accountID,
		fetcher:    fetcher,
		notifier:   notifier,
		filter:     filterCfg,
		opts:       opts,
		clock:      opts.Clock,
		logger:     logger.With("account", accountID),
		state: domain.AccountState{
			AccountID:    accountID,
			PollInterval: opts.DefaultInterval,
		},
	}

	if opts.Seed != nil {
		w.state.Advance(*opts.Seed)
		w.logger.Info("seeded cursor from debug state", "cursor", *opts.Seed)
	}

	return w
}

// Name returns the account identifier the watcher was configured with.
func (w *Watcher) Name() string {
	return w.configured
}

// State returns a copy of the current account state.
func (w *Watcher) State() domain.AccountState {
	return w.state
}

// Run ticks until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	w.logger.Info("watching for new posts")

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		wait, _ := w.Tick(ctx)

		if err := w.clock.Sleep(ctx, wait); err != nil {
			return err
		}
	}
}

// Tick performs one fetch, classify and notify pass. It returns how long
// to wait before the next tick. Tick never sleeps.
func (w *Watcher) Tick(ctx context.Context) (time.Duration, *domain.TickStats) {
	start := w.clock.Now()
	stats := &domain.TickStats{
		AccountID: w.state.AccountID,
		CursorOld: w.state.Cursor,
	}

	snapshot, err := w.fetcher.FetchLatest(ctx, w.state.AccountID)
	w.state.LastPolledAt = start
	if err == nil && snapshot == nil {
		err = fmt.Errorf("empty snapshot: %w", domain.ErrMalformed)
	}
	if err != nil {
		stats.Errors++
		stats.CursorNew = w.state.Cursor
		return w.failureWait(err, start), stats
	}

	w.adoptCanonical(snapshot.CanonicalID)
	w.adoptInterval(snapshot.RecommendedInterval)
	stats.AccountID = w.state.AccountID

	posts := sortByPosition(snapshot.Posts)
	stats.Fetched = len(posts)

	if !w.state.CursorSet {
		w.seed(posts, stats)
	} else {
		w.process(ctx, posts, stats)
	}

	stats.CursorNew = w.state.Cursor
	stats.Duration = w.clock.Now().Sub(start)

	w.logger.Info("processed posts, sleeping",
		"fetched", stats.Fetched,
		"accepted", stats.Accepted,
		"rejected", stats.Rejected,
		"seen", stats.Seen,
		"notified", stats.Notified,
		"errors", stats.Errors,
		"cursor", w.state.Cursor,
		"interval", w.state.PollInterval,
	)

	return w.state.PollInterval, stats
}

func (w *Watcher) seed(posts []domain.Post, stats *domain.TickStats) {
	if len(posts) == 0 {
		w.logger.Debug("no posts yet, cursor remains unset")
		return
	}

	newest := posts[len(posts)-1]
	w.state.Advance(newest.Position)
	stats.Seeded = true

	w.logger.Info("set cursor", "cursor", w.state.Cursor, "post_id", newest.ID)
}

func (w *Watcher) process(ctx context.Context, posts []domain.Post, stats *domain.TickStats) {
	high := w.state.Cursor

	for i := range posts {
		post := &posts[i]

		if w.state.Seen(post.Position) {
			stats.Seen++
			w.logger.Debug("skipped post, older than cursor", "post_id", post.ID, "position", post.Position)
			continue
		}

		if post.Position > high {
			high = post.Position
		}

		decision := filter.Evaluate(post, w.filter)
		if !decision.Accepted {
			stats.Rejected++
			w.logger.Debug("skipped post",
				"post_id", post.ID,
				"reason", string(decision.Reason),
				"keyword", decision.Keyword,
			)
			continue
		}

		stats.Accepted++
		w.logger.Info("discovered new post", "post_id", post.ID, "url", post.URL)

		if w.notifier == nil {
			continue
		}

		if err := w.notifier.Notify(ctx, w.state.AccountID, post); err != nil {
			stats.Errors++
			w.logger.Error("notify failed", "post_id", post.ID, "error", err)
			continue
		}
		stats.Notified++
	}

	if w.state.Advance(high) {
		w.logger.Info("set cursor", "cursor", w.state.Cursor)
	}
}

func (w *Watcher) failureWait(err error, now time.Time) time.Duration {
	if rl, ok := domain.AsRateLimit(err); ok {
		wait := rl.Wait(now)
		w.logger.Info("waiting due to rate limit", "wait", wait, "reset", rl.Reset)
		return wait
	}

	if errors.Is(err, domain.ErrMalformed) {
		w.logger.Warn("discarded malformed snapshot", "error", err, "retry_in", w.state.PollInterval)
	} else {
		w.logger.Error("failed to fetch posts", "error", err, "retry_in", w.state.PollInterval)
	}

	return w.state.PollInterval
}

func (w *Watcher) adoptCanonical(canonical string) {
	if canonical == "" || canonical == w.state.AccountID {
		return
	}

	w.logger.Info("account resolved to canonical identifier",
		"from", w.state.AccountID,
		"to", canonical,
	)
	w.state.AccountID = canonical
	w.logger = w.logger.With("canonical", canonical)
}

func (w *Watcher) adoptInterval(recommended time.Duration) {
	if recommended <= 0 {
		return
	}
	if recommended < w.opts.MinInterval {
		recommended = w.opts.MinInterval
	}
	w.state.PollInterval = recommended
}

// sortByPosition returns a copy of posts in ascending position order.
// Posts sharing a position keep their snapshot order.
func sortByPosition(posts []domain.Post) []domain.Post {
	sorted := make([]domain.Post, len(posts))
	copy(sorted, posts)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Position < sorted[j].Position
	})
	return sorted
}
