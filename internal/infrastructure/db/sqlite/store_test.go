package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/99minutos/custody-tracker/internal/core/domain"
	"github.com/99minutos/custody-tracker/internal/core/ports"
	"github.com/99minutos/custody-tracker/internal/infrastructure/db/storetest"
)

func newFileStore(t *testing.T) ports.Store {
	t.Helper()
	ctx := context.Background()
	db, err := Open(ctx, filepath.Join(t.TempDir(), "custody.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	s, err := NewStore(ctx, db)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return s
}

func TestStore(t *testing.T) {
	storetest.Run(t, newFileStore)
}

func TestStore_MigrateIsRepeatable(t *testing.T) {
	ctx := context.Background()
	db, err := Open(ctx, filepath.Join(t.TempDir(), "custody.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer func() { _ = db.Close() }()

	first, err := NewStore(ctx, db)
	if err != nil {
		t.Fatalf("first migrate: %v", err)
	}
	if err := first.GrantRole(ctx, "a", domain.RoleAdministrator); err != nil {
		t.Fatalf("grant: %v", err)
	}

	second, err := NewStore(ctx, db)
	if err != nil {
		t.Fatalf("second migrate: %v", err)
	}
	roles, err := second.ListRoles(ctx, "a")
	if err != nil || len(roles) != 1 {
		t.Fatalf("grants lost across migrate: %v, %v", roles, err)
	}
}

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("an error '%s' was not expected when opening a stub database connection", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	for range schema {
		mock.ExpectExec("CREATE TABLE IF NOT EXISTS").WillReturnResult(sqlmock.NewResult(0, 0))
	}
	s, err := NewStore(context.Background(), db)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return s, mock
}

func TestStore_UpdateProduct_RollsBackWhenHistoryInsertFails(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE products SET owner").
		WithArgs("carrier", "in_transit", 1, 1).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO history").WillReturnError(errors.New("disk I/O error"))
	mock.ExpectRollback()

	err := s.UpdateProduct(context.Background(),
		domain.Product{ID: 1, Owner: "carrier", Status: domain.StatusInTransit},
		domain.HistoryItem{Index: 1, Timestamp: time.Now(), Status: domain.StatusInTransit})
	if err == nil {
		t.Fatal("expected error when history insert fails")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("there were unfulfilled expectations: %s", err)
	}
}

func TestStore_CreateProduct_RollsBackWhenProductInsertFails(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO counters").
		WithArgs(productCounter).
		WillReturnRows(sqlmock.NewRows([]string{"value"}).AddRow(7))
	mock.ExpectExec("INSERT INTO products").WillReturnError(errors.New("constraint failed"))
	mock.ExpectRollback()

	_, err := s.CreateProduct(context.Background(),
		domain.Product{SKU: "SKU1", Owner: "maker", Status: domain.StatusManufactured, CreatedAt: time.Now()},
		domain.HistoryItem{Timestamp: time.Now(), Status: domain.StatusManufactured})
	if err == nil {
		t.Fatal("expected error when product insert fails")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("there were unfulfilled expectations: %s", err)
	}
}

func TestStore_UpdateProduct_ConflictLeavesHistoryUntouched(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE products SET owner").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT 1 FROM products").
		WithArgs(1).
		WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))
	mock.ExpectRollback()

	err := s.UpdateProduct(context.Background(),
		domain.Product{ID: 1, Owner: "carrier", Status: domain.StatusInTransit},
		domain.HistoryItem{Index: 3})
	if !errors.Is(err, domain.ErrConcurrentUpdate) {
		t.Fatalf("expected ErrConcurrentUpdate, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("there were unfulfilled expectations: %s", err)
	}
}
