package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/filcuan/coin-engine/internal/app/domain/content"
	"github.com/filcuan/coin-engine/internal/app/domain/visitor"
	"github.com/filcuan/coin-engine/internal/app/domain/withdrawal"
	"github.com/filcuan/coin-engine/internal/app/storage"
	"github.com/google/uuid"
)

// Store implements the storage interfaces backed by PostgreSQL. Coin
// adjustments are expressed as relative updates inside the database so
// concurrent writers can never lose each other's credits.
type Store struct {
	db *sqlx.DB
}

var _ storage.ProfileStore = (*Store)(nil)
var _ storage.CatalogStore = (*Store)(nil)
var _ storage.WithdrawalStore = (*Store)(nil)

// New creates a Store using the provided database handle.
func New(db *sqlx.DB) *Store {
	return &Store{db: db}
}

type profileRow struct {
	ID          string    `db:"id"`
	Username    string    `db:"username"`
	DisplayName string    `db:"display_name"`
	PhotoURL    string    `db:"photo_url"`
	Coins       int64     `db:"coins"`
	JoinedDate  time.Time `db:"joined_date"`
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`
}

func (r profileRow) toDomain() visitor.Profile {
	return visitor.Profile(r)
}

// --- ProfileStore -----------------------------------------------------------

func (s *Store) CreateProfile(ctx context.Context, p visitor.Profile) (visitor.Profile, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now
	if p.Coins < 0 {
		p.Coins = 0
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO profiles (id, username, display_name, photo_url, coins, joined_date, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, p.ID, p.Username, p.DisplayName, p.PhotoURL, p.Coins, p.JoinedDate, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return visitor.Profile{}, err
	}
	return p, nil
}

func (s *Store) UpdateProfile(ctx context.Context, p visitor.Profile) (visitor.Profile, error) {
	p.UpdatedAt = time.Now().UTC()

	// Coins are intentionally absent: balances move only through
	// AdjustCoins and SetCoins.
	result, err := s.db.ExecContext(ctx, `
		UPDATE profiles
		SET username = $2, display_name = $3, photo_url = $4, updated_at = $5
		WHERE id = $1
	`, p.ID, p.Username, p.DisplayName, p.PhotoURL, p.UpdatedAt)
	if err != nil {
		return visitor.Profile{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return visitor.Profile{}, sql.ErrNoRows
	}
	return s.GetProfile(ctx, p.ID)
}

func (s *Store) GetProfile(ctx context.Context, id string) (visitor.Profile, error) {
	var row profileRow
	err := s.db.GetContext(ctx, &row, `
		SELECT id, username, display_name, photo_url, coins, joined_date, created_at, updated_at
		FROM profiles
		WHERE id = $1
	`, id)
	if err != nil {
		return visitor.Profile{}, err
	}
	return row.toDomain(), nil
}

func (s *Store) AdjustCoins(ctx context.Context, id string, delta int64) (int64, error) {
	var coins int64
	err := s.db.GetContext(ctx, &coins, `
		UPDATE profiles
		SET coins = GREATEST(coins + $2, 0), updated_at = $3
		WHERE id = $1
		RETURNING coins
	`, id, delta, time.Now().UTC())
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, fmt.Errorf("profile %s not found", id)
		}
		return 0, err
	}
	return coins, nil
}

func (s *Store) SetCoins(ctx context.Context, id string, value int64) error {
	if value < 0 {
		value = 0
	}
	result, err := s.db.ExecContext(ctx, `
		UPDATE profiles SET coins = $2, updated_at = $3 WHERE id = $1
	`, id, value, time.Now().UTC())
	if err != nil {
		return err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return fmt.Errorf("profile %s not found", id)
	}
	return nil
}

// --- CatalogStore -----------------------------------------------------------

type itemRow struct {
	ID          string         `db:"id"`
	Title       string         `db:"title"`
	MediaURL    string         `db:"media_url"`
	ThemeID     string         `db:"theme_id"`
	Description string         `db:"description"`
	Tags        pq.StringArray `db:"tags"`
	CreatedAt   time.Time      `db:"created_at"`
}

func (r itemRow) toDomain() content.Item {
	return content.Item{
		ID:          r.ID,
		Title:       r.Title,
		MediaURL:    r.MediaURL,
		ThemeID:     r.ThemeID,
		Description: r.Description,
		Tags:        []string(r.Tags),
		CreatedAt:   r.CreatedAt,
	}
}

func (s *Store) UpsertItem(ctx context.Context, item content.Item) (content.Item, error) {
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO catalog_items (id, title, media_url, theme_id, description, tags, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE
		SET title = EXCLUDED.title, media_url = EXCLUDED.media_url,
		    theme_id = EXCLUDED.theme_id, description = EXCLUDED.description,
		    tags = EXCLUDED.tags
	`, item.ID, item.Title, item.MediaURL, item.ThemeID, item.Description, pq.StringArray(item.Tags), item.CreatedAt)
	if err != nil {
		return content.Item{}, err
	}
	return s.GetItem(ctx, item.ID)
}

func (s *Store) GetItem(ctx context.Context, id string) (content.Item, error) {
	var row itemRow
	err := s.db.GetContext(ctx, &row, `
		SELECT id, title, media_url, theme_id, description, tags, created_at
		FROM catalog_items
		WHERE id = $1
	`, id)
	if err != nil {
		return content.Item{}, err
	}
	return row.toDomain(), nil
}

func (s *Store) ListItems(ctx context.Context) ([]content.Item, error) {
	var rows []itemRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, title, media_url, theme_id, description, tags, created_at
		FROM catalog_items
		ORDER BY created_at DESC, id DESC
	`)
	if err != nil {
		return nil, err
	}
	items := make([]content.Item, 0, len(rows))
	for _, row := range rows {
		items = append(items, row.toDomain())
	}
	return items, nil
}

func (s *Store) DeleteItem(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM catalog_items WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return fmt.Errorf("item %s not found", id)
	}
	return nil
}

func (s *Store) UpsertTheme(ctx context.Context, theme content.Theme) (content.Theme, error) {
	if theme.ID == "" {
		theme.ID = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO themes (id, name)
		VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name
	`, theme.ID, theme.Name)
	if err != nil {
		return content.Theme{}, err
	}
	return theme, nil
}

func (s *Store) ListThemes(ctx context.Context) ([]content.Theme, error) {
	var themes []content.Theme
	err := s.db.SelectContext(ctx, &themes, `
		SELECT id, name FROM themes ORDER BY id
	`)
	if err != nil {
		return nil, err
	}
	return themes, nil
}

func (s *Store) DeleteTheme(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM themes WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return fmt.Errorf("theme %s not found", id)
	}
	return nil
}

// --- WithdrawalStore --------------------------------------------------------

type requestRow struct {
	ID             string    `db:"id"`
	ProfileID      string    `db:"profile_id"`
	Username       string    `db:"username"`
	AmountIDR      int64     `db:"amount_idr"`
	Method         string    `db:"method"`
	Status         string    `db:"status"`
	BalanceCleared bool      `db:"balance_cleared"`
	CreatedAt      time.Time `db:"created_at"`
	UpdatedAt      time.Time `db:"updated_at"`
}

func (r requestRow) toDomain() withdrawal.Request {
	return withdrawal.Request{
		ID:             r.ID,
		ProfileID:      r.ProfileID,
		Username:       r.Username,
		AmountIDR:      r.AmountIDR,
		Method:         withdrawal.Method(r.Method),
		Status:         withdrawal.Status(r.Status),
		BalanceCleared: r.BalanceCleared,
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}
}

func (s *Store) CreateRequest(ctx context.Context, req withdrawal.Request) (withdrawal.Request, error) {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	req.CreatedAt = now
	req.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO withdrawal_requests (id, profile_id, username, amount_idr, method, status, balance_cleared, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, req.ID, req.ProfileID, req.Username, req.AmountIDR, string(req.Method), string(req.Status), req.BalanceCleared, req.CreatedAt, req.UpdatedAt)
	if err != nil {
		return withdrawal.Request{}, err
	}
	return req, nil
}

func (s *Store) UpdateRequest(ctx context.Context, req withdrawal.Request) (withdrawal.Request, error) {
	req.UpdatedAt = time.Now().UTC()

	result, err := s.db.ExecContext(ctx, `
		UPDATE withdrawal_requests
		SET status = $2, balance_cleared = $3, updated_at = $4
		WHERE id = $1
	`, req.ID, string(req.Status), req.BalanceCleared, req.UpdatedAt)
	if err != nil {
		return withdrawal.Request{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return withdrawal.Request{}, sql.ErrNoRows
	}
	return s.GetRequest(ctx, req.ID)
}

func (s *Store) GetRequest(ctx context.Context, id string) (withdrawal.Request, error) {
	var row requestRow
	err := s.db.GetContext(ctx, &row, `
		SELECT id, profile_id, username, amount_idr, method, status, balance_cleared, created_at, updated_at
		FROM withdrawal_requests
		WHERE id = $1
	`, id)
	if err != nil {
		return withdrawal.Request{}, err
	}
	return row.toDomain(), nil
}

func (s *Store) ListRequests(ctx context.Context) ([]withdrawal.Request, error) {
	return s.listRequests(ctx, `
		SELECT id, profile_id, username, amount_idr, method, status, balance_cleared, created_at, updated_at
		FROM withdrawal_requests
		ORDER BY created_at DESC
	`)
}

func (s *Store) ListUnclearedRequests(ctx context.Context) ([]withdrawal.Request, error) {
	return s.listRequests(ctx, `
		SELECT id, profile_id, username, amount_idr, method, status, balance_cleared, created_at, updated_at
		FROM withdrawal_requests
		WHERE NOT balance_cleared
		ORDER BY created_at
	`)
}

func (s *Store) listRequests(ctx context.Context, query string) ([]withdrawal.Request, error) {
	var rows []requestRow
	if err := s.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, err
	}
	reqs := make([]withdrawal.Request, 0, len(rows))
	for _, row := range rows {
		reqs = append(reqs, row.toDomain())
	}
	return reqs, nil
}
