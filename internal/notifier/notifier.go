// Package notifier turns accepted posts into notifications and delivers
// them to every configured sink.
package notifier

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"bluebird/internal/domain"
)

type Service struct {
	fetcher Fetcher
	sinks   []Sink
	now     func() time.Time
	logger  *slog.Logger
}

func New(fetcher Fetcher, sinks []Sink, logger *slog.Logger) *Service {
	return &Service{
		fetcher: fetcher,
		sinks:   sinks,
		now:     time.Now,
		logger:  logger,
	}
}

// Notify resolves the post's reply parent, quote and repost source, then
// sends the notification to every sink. Related posts that fail to resolve
// are left out. The returned error only reports sink failures.
func (s *Service) Notify(ctx context.Context, accountID string, post *domain.Post) error {
	logger := s.logger.With("account", accountID, "post_id", post.ID)

	n := &domain.Notification{
		Account:   accountID,
		Post:      *post,
		CreatedAt: s.now().UTC(),
	}

	if post.Relations.IsReply {
		n.ReplyParent = s.resolve(ctx, logger, "reply parent", post.Related.ReplyTarget)
	}
	if post.Relations.IsQuote {
		n.Quote = s.resolve(ctx, logger, "quote", post.Related.QuoteTarget)
	}
	if post.Relations.IsRepost {
		n.RepostOf = s.resolve(ctx, logger, "repost source", post.Related.RepostTarget)
	}

	if len(s.sinks) == 0 {
		logger.Debug("no sinks configured, skipped delivery")
		return nil
	}

	var errs []error
	for _, sink := range s.sinks {
		if err := sink.Send(ctx, n); err != nil {
			logger.Error("delivery failed", "sink", sink.Name(), "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", sink.Name(), err))
			continue
		}
		logger.Debug("delivered notification", "sink", sink.Name())
	}

	return errors.Join(errs...)
}

func (s *Service) resolve(ctx context.Context, logger *slog.Logger, kind string, ref *domain.PostRef) *domain.Post {
	if ref == nil {
		// The source did not report a reference for this relation.
		logger.Debug("no reference for related post", "kind", kind)
		return nil
	}
	if !ref.Valid() {
		logger.Warn("failed to determine attributes for related post", "kind", kind)
		return nil
	}
	if s.fetcher == nil {
		return nil
	}

	related, err := s.fetcher.FetchOne(ctx, ref.Account, ref.PostID)
	if err != nil {
		err = fmt.Errorf("%s %s/%s: %w: %w", kind, ref.Account, ref.PostID, domain.ErrRelatedUnresolved, err)
		logger.Warn("omitting related post", "error", err)
		return nil
	}

	return related
}
