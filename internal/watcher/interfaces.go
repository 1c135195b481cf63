package watcher

//go:generate mockgen -source=interfaces.go -destination=mocks/mocks.go -package=mocks

import (
	"context"

	"bluebird/internal/domain"
)

type Fetcher interface {
	FetchLatest(ctx context.Context, accountID string) (*domain.Snapshot, error)
}

type Notifier interface {
	Notify(ctx context.Context, accountID string, post *domain.Post) error
}
