package notifier

//go:generate mockgen -source=interfaces.go -destination=mocks/mocks.go -package=mocks

import (
	"context"

	"bluebird/internal/domain"
)

// Fetcher resolves related posts.
type Fetcher interface {
	FetchOne(ctx context.Context, accountID, postID string) (*domain.Post, error)
}

// Sink delivers a rendered notification somewhere.
type Sink interface {
	Name() string
	Send(ctx context.Context, n *domain.Notification) error
}
