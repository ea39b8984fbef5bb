// Package sqlite is a ports.Store backed by an embedded SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/99minutos/custody-tracker/internal/core/domain"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS counters (
		name  TEXT PRIMARY KEY,
		value INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS roles (
		actor      TEXT NOT NULL,
		role       TEXT NOT NULL,
		granted_at TEXT NOT NULL,
		PRIMARY KEY (actor, role)
	)`,
	`CREATE TABLE IF NOT EXISTS products (
		id          INTEGER PRIMARY KEY,
		sku         TEXT NOT NULL,
		description TEXT NOT NULL,
		owner       TEXT NOT NULL,
		status      TEXT NOT NULL,
		created_at  TEXT NOT NULL,
		history_len INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS history (
		product_id INTEGER NOT NULL,
		idx        INTEGER NOT NULL,
		ts         TEXT NOT NULL,
		actor      TEXT NOT NULL,
		role_label TEXT NOT NULL,
		location   TEXT NOT NULL,
		note       TEXT NOT NULL,
		status     TEXT NOT NULL,
		PRIMARY KEY (product_id, idx)
	)`,
}

const productCounter = "product_id"

// Store implements ports.Store on database/sql.
type Store struct {
	db *sql.DB
}

// NewStore creates the schema if needed and returns the store.
func NewStore(ctx context.Context, db *sql.DB) (*Store, error) {
	s := &Store{db: db}
	if err := s.migrate(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("sqlite migrate: %w", err)
		}
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) CreateProduct(ctx context.Context, p domain.Product, first domain.HistoryItem) (_ *domain.Product, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var id uint64
	err = tx.QueryRowContext(ctx,
		`INSERT INTO counters (name, value) VALUES (?, 1)
		 ON CONFLICT(name) DO UPDATE SET value = value + 1
		 RETURNING value`, productCounter).Scan(&id)
	if err != nil {
		return nil, fmt.Errorf("allocate product id: %w", err)
	}

	p.ID = id
	p.HistoryLen = 1
	first.Index = 0

	_, err = tx.ExecContext(ctx,
		`INSERT INTO products (id, sku, description, owner, status, created_at, history_len)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.SKU, p.Description, p.Owner, string(p.Status), formatTime(p.CreatedAt), p.HistoryLen)
	if err != nil {
		return nil, fmt.Errorf("insert product: %w", err)
	}
	if err = insertHistory(ctx, tx, p.ID, first); err != nil {
		return nil, err
	}
	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return &p, nil
}

func (s *Store) GetProduct(ctx context.Context, id uint64) (*domain.Product, error) {
	var (
		p         domain.Product
		status    string
		createdAt string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, sku, description, owner, status, created_at, history_len
		 FROM products WHERE id = ?`, id).
		Scan(&p.ID, &p.SKU, &p.Description, &p.Owner, &status, &createdAt, &p.HistoryLen)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrProductNotFound
		}
		return nil, fmt.Errorf("select product: %w", err)
	}
	p.Status = domain.Status(status)
	if p.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Store) UpdateProduct(ctx context.Context, p domain.Product, item domain.HistoryItem) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	res, err := tx.ExecContext(ctx,
		`UPDATE products SET owner = ?, status = ?, history_len = history_len + 1
		 WHERE id = ? AND history_len = ?`,
		p.Owner, string(p.Status), p.ID, item.Index)
	if err != nil {
		return fmt.Errorf("update product: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update product: %w", err)
	}
	if n == 0 {
		var exists int
		err = tx.QueryRowContext(ctx, `SELECT 1 FROM products WHERE id = ?`, p.ID).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrProductNotFound
		}
		if err != nil {
			return fmt.Errorf("select product: %w", err)
		}
		return domain.ErrConcurrentUpdate
	}

	if err = insertHistory(ctx, tx, p.ID, item); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (s *Store) HistoryCount(ctx context.Context, id uint64) (uint64, error) {
	var n uint64
	err := s.db.QueryRowContext(ctx, `SELECT history_len FROM products WHERE id = ?`, id).Scan(&n)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, domain.ErrProductNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("select history length: %w", err)
	}
	return n, nil
}

func (s *Store) HistoryItem(ctx context.Context, id, index uint64) (*domain.HistoryItem, error) {
	total, err := s.HistoryCount(ctx, id)
	if err != nil {
		return nil, err
	}
	if index >= total {
		return nil, domain.ErrHistoryIndexOutOfRange
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT idx, ts, actor, role_label, location, note, status
		 FROM history WHERE product_id = ? AND idx = ?`, id, index)
	item, err := scanHistory(row)
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) HistoryWindow(ctx context.Context, id, count uint64) ([]domain.HistoryItem, error) {
	total, err := s.HistoryCount(ctx, id)
	if err != nil {
		return nil, err
	}
	n := min(count, total)
	if n == 0 {
		return []domain.HistoryItem{}, nil
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT idx, ts, actor, role_label, location, note, status
		 FROM history WHERE product_id = ? AND idx >= ? AND idx < ?
		 ORDER BY idx`, id, total-n, total)
	if err != nil {
		return nil, fmt.Errorf("select history: %w", err)
	}
	defer func() { _ = rows.Close() }()

	items := make([]domain.HistoryItem, 0, n)
	for rows.Next() {
		item, err := scanHistory(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) GrantRole(ctx context.Context, actor string, role domain.Role) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO roles (actor, role, granted_at) VALUES (?, ?, ?)
		 ON CONFLICT(actor, role) DO NOTHING`,
		actor, string(role), formatTime(time.Now().UTC()))
	if err != nil {
		return fmt.Errorf("insert role: %w", err)
	}
	return nil
}

func (s *Store) ListRoles(ctx context.Context, actor string) ([]domain.Role, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT role FROM roles WHERE actor = ? ORDER BY role`, actor)
	if err != nil {
		return nil, fmt.Errorf("select roles: %w", err)
	}
	defer func() { _ = rows.Close() }()

	roles := []domain.Role{}
	for rows.Next() {
		var r string
		if err := rows.Scan(&r); err != nil {
			return nil, err
		}
		roles = append(roles, domain.Role(r))
	}
	return roles, rows.Err()
}

func insertHistory(ctx context.Context, tx *sql.Tx, productID uint64, item domain.HistoryItem) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO history (product_id, idx, ts, actor, role_label, location, note, status)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		productID, item.Index, formatTime(item.Timestamp), item.Actor, item.RoleLabel, item.Location, item.Note, string(item.Status))
	if err != nil {
		return fmt.Errorf("insert history: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanHistory(row scanner) (domain.HistoryItem, error) {
	var (
		item   domain.HistoryItem
		ts     string
		status string
	)
	if err := row.Scan(&item.Index, &ts, &item.Actor, &item.RoleLabel, &item.Location, &item.Note, &status); err != nil {
		return domain.HistoryItem{}, fmt.Errorf("scan history: %w", err)
	}
	item.Status = domain.Status(status)
	t, err := parseTime(ts)
	if err != nil {
		return domain.HistoryItem{}, err
	}
	item.Timestamp = t
	return item, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return t, nil
}
