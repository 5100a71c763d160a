package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"starcast/internal/domain"
	"starcast/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

// Open opens (or creates) the sqlite database and applies migrations.
func Open(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	if dir := filepath.Dir(cfg.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	st := &sqliteStore{db: db, log: log}
	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) SaveContent(ctx context.Context, c *domain.Content) (int64, error) {
	if err := c.Validate(); err != nil {
		return 0, err
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO content(title, description, kind, price_stars, is_active, created_at)
		 VALUES(?,?,?,?,?,?)`,
		c.Title, c.Description, string(c.Kind), c.PriceStars, boolInt(c.Active), c.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	for i, a := range c.Assets {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO content_assets(content_id, ord, kind, file_id) VALUES(?,?,?,?)`,
			id, i, string(a.Kind), a.FileID,
		); err != nil {
			return 0, err
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	c.ID = id
	return id, nil
}

func (s *sqliteStore) GetContent(ctx context.Context, id int64) (*domain.Content, error) {
	var (
		c       domain.Content
		kind    string
		active  int
		created string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, title, description, kind, price_stars, is_active, created_at
		 FROM content WHERE id = ?`, id,
	).Scan(&c.ID, &c.Title, &c.Description, &kind, &c.PriceStars, &active, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	c.Kind = domain.MediaKind(kind)
	c.Active = active != 0
	c.CreatedAt = parseTime(created)

	if c.Assets, err = s.loadAssets(ctx, c.ID); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("content %d: corrupt record: %w", c.ID, err)
	}
	return &c, nil
}

func (s *sqliteStore) loadAssets(ctx context.Context, contentID int64) ([]domain.Asset, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT kind, file_id FROM content_assets WHERE content_id = ? ORDER BY ord`, contentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var assets []domain.Asset
	for rows.Next() {
		var a domain.Asset
		var kind string
		if err := rows.Scan(&kind, &a.FileID); err != nil {
			return nil, err
		}
		a.Kind = domain.MediaKind(kind)
		assets = append(assets, a)
	}
	return assets, rows.Err()
}

func (s *sqliteStore) ListActiveContent(ctx context.Context) ([]domain.Content, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, description, kind, price_stars, created_at
		 FROM content WHERE is_active = 1 ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Content
	for rows.Next() {
		var (
			c       domain.Content
			kind    string
			created string
		)
		if err := rows.Scan(&c.ID, &c.Title, &c.Description, &kind, &c.PriceStars, &created); err != nil {
			return nil, err
		}
		c.Kind = domain.MediaKind(kind)
		c.Active = true
		c.CreatedAt = parseTime(created)
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range out {
		if out[i].Assets, err = s.loadAssets(ctx, out[i].ID); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *sqliteStore) DeleteContent(ctx context.Context, id int64) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `DELETE FROM content WHERE id = ?`, id)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	if _, err := tx.ExecContext(ctx, `DELETE FROM content_assets WHERE content_id = ?`, id); err != nil {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *sqliteStore) UpsertRecipient(ctx context.Context, r domain.Recipient) error {
	if r.JoinedAt.IsZero() {
		r.JoinedAt = time.Now()
	}
	// Re-registration refreshes display metadata but keeps the original
	// joined_at so registration order stays stable.
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users(user_id, username, first_name, last_name, joined_at, is_active)
		 VALUES(?,?,?,?,?,1)
		 ON CONFLICT(user_id) DO UPDATE SET
		   username = excluded.username,
		   first_name = excluded.first_name,
		   last_name = excluded.last_name,
		   is_active = 1`,
		r.UserID, nullStr(r.Username), nullStr(r.FirstName), nullStr(r.LastName),
		r.JoinedAt.Format(time.RFC3339Nano),
	)
	return err
}

func (s *sqliteStore) ListRecipients(ctx context.Context) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id FROM users WHERE is_active = 1 ORDER BY joined_at, user_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *sqliteStore) RecordPurchase(ctx context.Context, userID, contentID int64, stars int, paymentRef string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO purchases(user_id, content_id, stars_paid, payment_id, purchased_at)
		 VALUES(?,?,?,?,?)`,
		userID, contentID, stars, nullStr(paymentRef), time.Now().Format(time.RFC3339Nano),
	)
	return err
}

func (s *sqliteStore) HasPurchased(ctx context.Context, userID, contentID int64) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM purchases WHERE user_id = ? AND content_id = ? LIMIT 1`,
		userID, contentID,
	).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *sqliteStore) Stats(ctx context.Context) (domain.Stats, error) {
	var st domain.Stats
	row := s.db.QueryRowContext(ctx, `
		SELECT
		  (SELECT COUNT(*) FROM users WHERE is_active = 1),
		  (SELECT COUNT(*) FROM content WHERE is_active = 1),
		  (SELECT COUNT(*) FROM purchases),
		  (SELECT COALESCE(SUM(stars_paid), 0) FROM purchases)`)
	if err := row.Scan(&st.Recipients, &st.ActiveContent, &st.Purchases, &st.StarsRevenue); err != nil {
		return domain.Stats{}, err
	}
	return st, nil
}

func parseTime(raw string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}
	}
	return t
}

func boolInt(v bool) int {
	if v {
		return 1
	}
	return 0
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}
