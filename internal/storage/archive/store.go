package archive

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"bluebird/internal/domain"
)

const (
	KindReplyParent = "reply_parent"
	KindQuote       = "quote"
	KindRepostOf    = "repost_of"
)

type Record struct {
	ID         string     `db:"id"`
	Account    string     `db:"account"`
	PostID     string     `db:"post_id"`
	Position   int64      `db:"position"`
	URL        string     `db:"url"`
	Text       string     `db:"text"`
	Action     string     `db:"action"`
	MediaCount int        `db:"media_count"`
	PostedAt   *time.Time `db:"posted_at"`
	NotifiedAt time.Time  `db:"notified_at"`
	Related    []Related  `db:"-"`
}

type Related struct {
	NotificationID string `db:"notification_id"`
	Kind           string `db:"kind"`
	Account        string `db:"account"`
	PostID         string `db:"post_id"`
	URL            string `db:"url"`
	Text           string `db:"text"`
}

// Store archives notifications. It doubles as a notifier sink.
type Store struct {
	db     *sqlx.DB
	tm     *TransactionManager
	now    func() time.Time
	logger *slog.Logger
}

func NewStore(db *sqlx.DB, logger *slog.Logger) *Store {
	return &Store{
		db:     db,
		tm:     NewTransactionManager(db),
		now:    time.Now,
		logger: logger.With("sink", "archive"),
	}
}

func (s *Store) Name() string {
	return "archive"
}

func (s *Store) Send(ctx context.Context, n *domain.Notification) error {
	_, err := s.Save(ctx, n)
	return err
}

// Save stores n with its resolved related posts. A post already archived for
// the account is left untouched and Save reports false.
func (s *Store) Save(ctx context.Context, n *domain.Notification) (bool, error) {
	rec := Record{
		ID:         uuid.NewString(),
		Account:    n.Account,
		PostID:     n.Post.ID,
		Position:   n.Post.Position,
		URL:        n.Post.URL,
		Text:       n.Post.Text,
		Action:     n.Action(),
		MediaCount: len(n.Post.Media),
		NotifiedAt: s.now().UTC().Truncate(time.Microsecond),
	}
	if !n.Post.CreatedAt.IsZero() {
		posted := n.Post.CreatedAt.UTC()
		rec.PostedAt = &posted
	}

	var inserted bool
	err := s.tm.WithTransaction(ctx, func(ctx context.Context) error {
		var err error
		inserted, err = s.insertNotification(ctx, &rec)
		if err != nil || !inserted {
			return err
		}
		return s.insertRelated(ctx, rec.ID, related(n))
	})
	if err != nil {
		return false, fmt.Errorf("archive notification: %w", err)
	}

	if inserted {
		s.logger.Debug("archived notification", "account", rec.Account, "post_id", rec.PostID, "id", rec.ID)
	}

	return inserted, nil
}

func (s *Store) insertNotification(ctx context.Context, rec *Record) (bool, error) {
	query := s.db.Rebind(`
		INSERT INTO notifications (
			id, account, post_id, position, url, text, action, media_count, posted_at, notified_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (account, post_id) DO NOTHING`)

	res, err := GetExecutor(ctx, s.db).ExecContext(ctx, query,
		rec.ID,
		rec.Account,
		rec.PostID,
		rec.Position,
		rec.URL,
		rec.Text,
		rec.Action,
		rec.MediaCount,
		rec.PostedAt,
		rec.NotifiedAt,
	)
	if err != nil {
		return false, err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func (s *Store) insertRelated(ctx context.Context, notificationID string, rows []Related) error {
	if len(rows) == 0 {
		return nil
	}

	var sb strings.Builder
	sb.WriteString("INSERT INTO notification_related (notification_id, kind, account, post_id, url, text) VALUES ")
	valueArgs := make([]any, 0, len(rows)*6)

	for i, r := range rows {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString("(?, ?, ?, ?, ?, ?)")
		valueArgs = append(valueArgs, notificationID, r.Kind, r.Account, r.PostID, r.URL, r.Text)
	}

	_, err := GetExecutor(ctx, s.db).ExecContext(ctx, s.db.Rebind(sb.String()), valueArgs...)
	return err
}

// Recent returns the latest notifications, newest first. An empty account
// means every account.
func (s *Store) Recent(ctx context.Context, account string, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 20
	}

	query := `
		SELECT id, account, post_id, position, url, text, action, media_count, posted_at, notified_at
		FROM notifications`
	args := []any{}
	if account != "" {
		query += ` WHERE account = ?`
		args = append(args, account)
	}
	query += ` ORDER BY notified_at DESC, position DESC LIMIT ?`
	args = append(args, limit)

	var records []Record
	if err := s.db.SelectContext(ctx, &records, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("select notifications: %w", err)
	}
	if len(records) == 0 {
		return records, nil
	}

	ids := make([]string, len(records))
	for i, r := range records {
		ids[i] = r.ID
	}

	relQuery, relArgs, err := sqlx.In(`
		SELECT notification_id, kind, account, post_id, url, text
		FROM notification_related
		WHERE notification_id IN (?)
		ORDER BY kind`, ids)
	if err != nil {
		return nil, err
	}

	var rows []Related
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(relQuery), relArgs...); err != nil {
		return nil, fmt.Errorf("select related: %w", err)
	}

	byID := make(map[string]int, len(records))
	for i, r := range records {
		byID[r.ID] = i
	}
	for _, r := range rows {
		i := byID[r.NotificationID]
		records[i].Related = append(records[i].Related, r)
	}

	return records, nil
}

func related(n *domain.Notification) []Related {
	var rows []Related
	add := func(kind string, p *domain.Post) {
		if p == nil {
			return
		}
		rows = append(rows, Related{Kind: kind, Account: p.Account, PostID: p.ID, URL: p.URL, Text: p.Text})
	}
	add(KindReplyParent, n.ReplyParent)
	add(KindQuote, n.Quote)
	add(KindRepostOf, n.RepostOf)
	return rows
}
