// Package postgres implements the storage interfaces backed by PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/bidwire/auction/internal/domain/auction"
	"github.com/bidwire/auction/internal/domain/user"
	"github.com/bidwire/auction/internal/storage"
)

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	email      TEXT NOT NULL UNIQUE,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS auctions (
	id             TEXT PRIMARY KEY,
	title          TEXT NOT NULL,
	description    TEXT NOT NULL DEFAULT '',
	seller_id      TEXT NOT NULL,
	starting_price BIGINT NOT NULL CHECK (starting_price > 0),
	winner_id      TEXT,
	winning_price  BIGINT,
	start_time     TIMESTAMPTZ NOT NULL,
	end_time       TIMESTAMPTZ NOT NULL,
	status         TEXT NOT NULL,
	created_at     TIMESTAMPTZ NOT NULL,
	updated_at     TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS auctions_open_expired
	ON auctions (end_time) WHERE status = 'OPEN';
`

// Store implements storage.AuctionStore and storage.UserStore on PostgreSQL.
type Store struct {
	db *sqlx.DB
}

var _ storage.AuctionStore = (*Store)(nil)
var _ storage.UserStore = (*Store)(nil)

// New creates a Store using the provided database handle.
func New(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// EnsureSchema creates the tables if they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

type auctionRow struct {
	ID            string         `db:"id"`
	Title         string         `db:"title"`
	Description   string         `db:"description"`
	SellerID      string         `db:"seller_id"`
	StartingPrice int64          `db:"starting_price"`
	WinnerID      sql.NullString `db:"winner_id"`
	WinningPrice  sql.NullInt64  `db:"winning_price"`
	StartTime     time.Time      `db:"start_time"`
	EndTime       time.Time      `db:"end_time"`
	Status        string         `db:"status"`
	CreatedAt     time.Time      `db:"created_at"`
	UpdatedAt     time.Time      `db:"updated_at"`
}

func (r auctionRow) toDomain() auction.Auction {
	a := auction.Auction{
		ID:            r.ID,
		Title:         r.Title,
		Description:   r.Description,
		SellerID:      r.SellerID,
		StartingPrice: r.StartingPrice,
		StartTime:     r.StartTime,
		EndTime:       r.EndTime,
		Status:        auction.Status(r.Status),
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
	if r.WinnerID.Valid {
		v := r.WinnerID.String
		a.WinnerID = &v
	}
	if r.WinningPrice.Valid {
		v := r.WinningPrice.Int64
		a.WinningPrice = &v
	}
	return a
}

// AuctionStore implementation ------------------------------------------------

func (s *Store) CreateAuction(ctx context.Context, a auction.Auction) (auction.Auction, error) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	a.Status = auction.StatusOpen
	a.WinnerID = nil
	a.WinningPrice = nil
	a.CreatedAt = now
	a.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO auctions (id, title, description, seller_id, starting_price,
			start_time, end_time, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, a.ID, a.Title, a.Description, a.SellerID, a.StartingPrice,
		a.StartTime, a.EndTime, a.Status, a.CreatedAt, a.UpdatedAt)
	if err != nil {
		return auction.Auction{}, fmt.Errorf("insert auction: %w", err)
	}
	return a, nil
}

func (s *Store) GetAuction(ctx context.Context, id string) (auction.Auction, error) {
	var row auctionRow
	err := s.db.GetContext(ctx, &row, `SELECT * FROM auctions WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return auction.Auction{}, storage.ErrNotFound
	}
	if err != nil {
		return auction.Auction{}, fmt.Errorf("get auction: %w", err)
	}
	return row.toDomain(), nil
}

func (s *Store) ListAuctions(ctx context.Context) ([]auction.Auction, error) {
	var rows []auctionRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT * FROM auctions ORDER BY created_at`); err != nil {
		return nil, fmt.Errorf("list auctions: %w", err)
	}
	result := make([]auction.Auction, 0, len(rows))
	for _, r := range rows {
		result = append(result, r.toDomain())
	}
	return result, nil
}

func (s *Store) ListOpenExpired(ctx context.Context, now time.Time) ([]auction.Auction, error) {
	var rows []auctionRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT * FROM auctions
		WHERE status = $1 AND end_time < $2
		ORDER BY end_time
	`, auction.StatusOpen, now.UTC())
	if err != nil {
		return nil, fmt.Errorf("list open expired: %w", err)
	}
	result := make([]auction.Auction, 0, len(rows))
	for _, r := range rows {
		result = append(result, r.toDomain())
	}
	return result, nil
}

// CloseAuction transitions an OPEN auction to SETTLED in a single
// transaction. The status guard in the UPDATE makes the transition
// exactly-once: a concurrent or repeated sweep sees zero rows affected.
func (s *Store) CloseAuction(ctx context.Context, id string, winnerID *string, winningPrice *int64) (auction.Auction, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return auction.Auction{}, fmt.Errorf("begin close auction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `
		UPDATE auctions
		SET status = $2, winner_id = $3, winning_price = $4, updated_at = $5
		WHERE id = $1 AND status = $6
	`, id, auction.StatusSettled, winnerID, winningPrice, time.Now().UTC(), auction.StatusOpen)
	if err != nil {
		return auction.Auction{}, fmt.Errorf("close auction: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return auction.Auction{}, fmt.Errorf("close auction rows: %w", err)
	}
	if affected == 0 {
		var exists int
		if err := tx.GetContext(ctx, &exists, `SELECT 1 FROM auctions WHERE id = $1`, id); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return auction.Auction{}, storage.ErrNotFound
			}
			return auction.Auction{}, fmt.Errorf("close auction check: %w", err)
		}
		return auction.Auction{}, storage.ErrAlreadySettled
	}

	var row auctionRow
	if err := tx.GetContext(ctx, &row, `SELECT * FROM auctions WHERE id = $1`, id); err != nil {
		return auction.Auction{}, fmt.Errorf("reload auction: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return auction.Auction{}, fmt.Errorf("commit close auction: %w", err)
	}
	return row.toDomain(), nil
}

// UserStore implementation ---------------------------------------------------

func (s *Store) CreateUser(ctx context.Context, u user.User) (user.User, error) {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	u.CreatedAt = now
	u.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, name, email, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
	`, u.ID, u.Name, u.Email, u.CreatedAt, u.UpdatedAt)
	if err != nil {
		return user.User{}, fmt.Errorf("insert user: %w", err)
	}
	return u, nil
}

func (s *Store) GetUserByID(ctx context.Context, id string) (user.User, error) {
	var u user.User
	row := s.db.QueryRowxContext(ctx, `
		SELECT id, name, email, created_at, updated_at FROM users WHERE id = $1
	`, id)
	if err := row.Scan(&u.ID, &u.Name, &u.Email, &u.CreatedAt, &u.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return user.User{}, storage.ErrNotFound
		}
		return user.User{}, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}
