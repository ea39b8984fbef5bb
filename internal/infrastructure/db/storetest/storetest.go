// Package storetest provides a behavioural test suite shared by every
// ports.Store implementation.
package storetest

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/99minutos/custody-tracker/internal/core/domain"
	"github.com/99minutos/custody-tracker/internal/core/ports"
)

// Run executes the suite. newStore must return an empty store for each call.
func Run(t *testing.T, newStore func(t *testing.T) ports.Store) {
	t.Run("CreateAssignsIncreasingIDs", func(t *testing.T) { testCreateAssignsIncreasingIDs(t, newStore(t)) })
	t.Run("GetUnknownProduct", func(t *testing.T) { testGetUnknownProduct(t, newStore(t)) })
	t.Run("UpdateAppendsHistory", func(t *testing.T) { testUpdateAppendsHistory(t, newStore(t)) })
	t.Run("UpdateRejectsStaleIndex", func(t *testing.T) { testUpdateRejectsStaleIndex(t, newStore(t)) })
	t.Run("UpdateUnknownProduct", func(t *testing.T) { testUpdateUnknownProduct(t, newStore(t)) })
	t.Run("HistoryWindow", func(t *testing.T) { testHistoryWindow(t, newStore(t)) })
	t.Run("HistoryItemOutOfRange", func(t *testing.T) { testHistoryItemOutOfRange(t, newStore(t)) })
	t.Run("GrantRoleIsIdempotent", func(t *testing.T) { testGrantRoleIsIdempotent(t, newStore(t)) })
}

var epoch = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

func seed(t *testing.T, s ports.Store, sku string) *domain.Product {
	t.Helper()
	p, err := s.CreateProduct(context.Background(), domain.Product{
		SKU:         sku,
		Description: "widget",
		Owner:       "maker",
		Status:      domain.StatusManufactured,
		CreatedAt:   epoch,
	}, domain.HistoryItem{
		Timestamp: epoch,
		Actor:     "maker",
		RoleLabel: "Manufacturer",
		Location:  "Factory",
		Note:      "Built",
		Status:    domain.StatusManufactured,
	})
	if err != nil {
		t.Fatalf("create product: %v", err)
	}
	return p
}

func appendN(t *testing.T, s ports.Store, p *domain.Product, n int) {
	t.Helper()
	ctx := context.Background()
	for i := 0; i < n; i++ {
		cur, err := s.GetProduct(ctx, p.ID)
		if err != nil {
			t.Fatalf("get product: %v", err)
		}
		next := *cur
		next.Status = domain.StatusInTransit
		item := domain.HistoryItem{
			Index:     cur.HistoryLen,
			Timestamp: epoch.Add(time.Duration(cur.HistoryLen) * time.Minute),
			Actor:     "carrier",
			RoleLabel: "Transporter",
			Location:  "Road",
			Note:      "hop",
			Status:    domain.StatusInTransit,
		}
		if err := s.UpdateProduct(ctx, next, item); err != nil {
			t.Fatalf("update product: %v", err)
		}
	}
}

func testCreateAssignsIncreasingIDs(t *testing.T, s ports.Store) {
	a := seed(t, s, "A")
	b := seed(t, s, "B")
	if a.ID != 1 || b.ID != 2 {
		t.Fatalf("expected ids 1 and 2, got %d and %d", a.ID, b.ID)
	}
	if a.HistoryLen != 1 {
		t.Errorf("expected history length 1, got %d", a.HistoryLen)
	}

	got, err := s.GetProduct(context.Background(), b.ID)
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if got.SKU != "B" || got.Owner != "maker" || got.Status != domain.StatusManufactured {
		t.Errorf("unexpected product: %+v", got)
	}
	if !got.CreatedAt.Equal(epoch) {
		t.Errorf("created_at = %v, want %v", got.CreatedAt, epoch)
	}
}

func testGetUnknownProduct(t *testing.T, s ports.Store) {
	for _, id := range []uint64{0, 1, 99} {
		if _, err := s.GetProduct(context.Background(), id); !errors.Is(err, domain.ErrProductNotFound) {
			t.Errorf("GetProduct(%d): expected ErrProductNotFound, got %v", id, err)
		}
	}
}

func testUpdateAppendsHistory(t *testing.T, s ports.Store) {
	ctx := context.Background()
	p := seed(t, s, "A")

	next := *p
	next.Owner = "carrier"
	next.Status = domain.StatusInTransit
	item := domain.HistoryItem{Index: 1, Timestamp: epoch, Actor: "maker", RoleLabel: "TRANSFER", Location: "Dock", Note: "Pickup", Status: domain.StatusInTransit}
	if err := s.UpdateProduct(ctx, next, item); err != nil {
		t.Fatalf("update: %v", err)
	}

	got, _ := s.GetProduct(ctx, p.ID)
	if got.Owner != "carrier" || got.Status != domain.StatusInTransit || got.HistoryLen != 2 {
		t.Errorf("unexpected product after update: %+v", got)
	}
	if got.SKU != "A" || got.Description != "widget" {
		t.Errorf("update must not touch sku/description: %+v", got)
	}

	stored, err := s.HistoryItem(ctx, p.ID, 1)
	if err != nil {
		t.Fatalf("history item: %v", err)
	}
	if !reflect.DeepEqual(*stored, item) {
		t.Errorf("history item = %+v, want %+v", *stored, item)
	}
}

func testUpdateRejectsStaleIndex(t *testing.T, s ports.Store) {
	ctx := context.Background()
	p := seed(t, s, "A")

	stale := domain.HistoryItem{Index: 0, Timestamp: epoch, Status: domain.StatusRecalled}
	next := *p
	next.Status = domain.StatusRecalled
	if err := s.UpdateProduct(ctx, next, stale); !errors.Is(err, domain.ErrConcurrentUpdate) {
		t.Fatalf("expected ErrConcurrentUpdate, got %v", err)
	}

	got, _ := s.GetProduct(ctx, p.ID)
	if got.Status != domain.StatusManufactured || got.HistoryLen != 1 {
		t.Errorf("rejected update must not change state: %+v", got)
	}
	first, _ := s.HistoryItem(ctx, p.ID, 0)
	if first.Note != "Built" {
		t.Errorf("rejected update overwrote history: %+v", first)
	}
}

func testUpdateUnknownProduct(t *testing.T, s ports.Store) {
	err := s.UpdateProduct(context.Background(), domain.Product{ID: 42}, domain.HistoryItem{Index: 0})
	if !errors.Is(err, domain.ErrProductNotFound) {
		t.Fatalf("expected ErrProductNotFound, got %v", err)
	}
}

func testHistoryWindow(t *testing.T, s ports.Store) {
	ctx := context.Background()
	p := seed(t, s, "A")
	appendN(t, s, p, 4) // 5 entries total

	full, err := s.HistoryWindow(ctx, p.ID, 5)
	if err != nil {
		t.Fatalf("window: %v", err)
	}
	if len(full) != 5 {
		t.Fatalf("expected 5 entries, got %d", len(full))
	}

	cases := []struct {
		count uint64
		want  []domain.HistoryItem
	}{
		{0, []domain.HistoryItem{}},
		{1, full[4:]},
		{3, full[2:]},
		{5, full},
		{500, full},
	}
	for _, tc := range cases {
		got, err := s.HistoryWindow(ctx, p.ID, tc.count)
		if err != nil {
			t.Fatalf("window(%d): %v", tc.count, err)
		}
		if len(got) != len(tc.want) {
			t.Fatalf("window(%d): expected %d entries, got %d", tc.count, len(tc.want), len(got))
		}
		for i := range got {
			if !reflect.DeepEqual(got[i], tc.want[i]) {
				t.Errorf("window(%d)[%d] = %+v, want %+v", tc.count, i, got[i], tc.want[i])
			}
		}
	}

	for i, item := range full {
		if item.Index != uint64(i) {
			t.Errorf("entry %d has index %d", i, item.Index)
		}
	}

	if _, err := s.HistoryWindow(ctx, 99, 3); !errors.Is(err, domain.ErrProductNotFound) {
		t.Errorf("expected ErrProductNotFound, got %v", err)
	}
}

func testHistoryItemOutOfRange(t *testing.T, s ports.Store) {
	ctx := context.Background()
	p := seed(t, s, "A")

	if _, err := s.HistoryItem(ctx, p.ID, 1); !errors.Is(err, domain.ErrHistoryIndexOutOfRange) {
		t.Errorf("expected ErrHistoryIndexOutOfRange, got %v", err)
	}
	if _, err := s.HistoryItem(ctx, 99, 0); !errors.Is(err, domain.ErrProductNotFound) {
		t.Errorf("expected ErrProductNotFound, got %v", err)
	}
	n, err := s.HistoryCount(ctx, p.ID)
	if err != nil || n != 1 {
		t.Errorf("HistoryCount = %d, %v", n, err)
	}
	if _, err := s.HistoryCount(ctx, 0); !errors.Is(err, domain.ErrProductNotFound) {
		t.Errorf("expected ErrProductNotFound for id 0, got %v", err)
	}
}

func testGrantRoleIsIdempotent(t *testing.T, s ports.Store) {
	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if err := s.GrantRole(ctx, "w", domain.RoleWarehouse); err != nil {
			t.Fatalf("grant: %v", err)
		}
	}
	if err := s.GrantRole(ctx, "w", domain.RoleRetailer); err != nil {
		t.Fatalf("grant: %v", err)
	}

	roles, err := s.ListRoles(ctx, "w")
	if err != nil {
		t.Fatalf("list roles: %v", err)
	}
	if !reflect.DeepEqual(roles, []domain.Role{domain.RoleRetailer, domain.RoleWarehouse}) {
		t.Errorf("unexpected roles: %v", roles)
	}

	none, err := s.ListRoles(ctx, "nobody")
	if err != nil || len(none) != 0 {
		t.Errorf("expected no roles, got %v, %v", none, err)
	}
}
