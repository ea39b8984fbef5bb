package mongo

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/99minutos/custody-tracker/internal/core/domain"
	"github.com/99minutos/custody-tracker/internal/core/ports"
	"github.com/99minutos/custody-tracker/internal/infrastructure/db/storetest"
)

var _ ports.Store = (*Store)(nil)

var dbSeq atomic.Int64

func TestTransactionsUnsupported(t *testing.T) {
	standalone := mongo.CommandError{Code: codeIllegalOperation, Message: "Transaction numbers are only allowed on a replica set member or mongos"}
	if !transactionsUnsupported(fmt.Errorf("allocate product id: %w", standalone)) {
		t.Error("wrapped IllegalOperation must be detected")
	}
	for _, err := range []error{nil, errors.New("boom"), mongo.CommandError{Code: 112, Message: "WriteConflict"}} {
		if transactionsUnsupported(err) {
			t.Errorf("%v must not disable transactions", err)
		}
	}
}

func newTestStore(t *testing.T, uri string) *Store {
	t.Helper()
	ctx := context.Background()
	name := fmt.Sprintf("custody_test_%d_%d", time.Now().UnixNano(), dbSeq.Add(1))
	client, db, err := Connect(ctx, Config{URI: uri, Database: name})
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() {
		_ = db.Drop(context.Background())
		_ = client.Disconnect(context.Background())
	})

	s := NewStore(db)
	if err := s.EnsureIndexes(ctx); err != nil {
		t.Fatalf("ensure indexes: %v", err)
	}
	return s
}

// Runs only when MONGO_TEST_URI points at a reachable server.
func TestStore_Suite(t *testing.T) {
	uri := os.Getenv("MONGO_TEST_URI")
	if uri == "" {
		t.Skip("MONGO_TEST_URI not set")
	}

	storetest.Run(t, func(t *testing.T) ports.Store {
		return newTestStore(t, uri)
	})
}

// Runs only when MONGO_TEST_URI points at a reachable server.
func TestStore_FailedCreateLeavesNoHistorySlot(t *testing.T) {
	uri := os.Getenv("MONGO_TEST_URI")
	if uri == "" {
		t.Skip("MONGO_TEST_URI not set")
	}
	s := newTestStore(t, uri)
	ctx := context.Background()

	// Occupy the id the counter hands out next so the product insert fails.
	if _, err := s.products.InsertOne(ctx, bson.M{"_id": uint64(1), "history_len": uint64(0)}); err != nil {
		t.Fatalf("seed product: %v", err)
	}

	_, err := s.CreateProduct(ctx, domain.Product{SKU: "S", Owner: "M", Status: domain.StatusManufactured},
		domain.HistoryItem{Actor: "M", Status: domain.StatusManufactured})
	if err == nil {
		t.Fatal("expected the duplicate insert to fail")
	}

	n, err := s.history.CountDocuments(ctx, bson.M{"product_id": uint64(1)})
	if err != nil {
		t.Fatalf("count history: %v", err)
	}
	if n != 0 {
		t.Errorf("failed create left %d history documents", n)
	}
}
