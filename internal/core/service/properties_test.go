package service

import (
	"context"
	"reflect"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/99minutos/custody-tracker/internal/core/domain"
	"github.com/99minutos/custody-tracker/internal/core/ports"
)

// step applies one randomly chosen operation; denied operations are expected.
func step(f *fixture, id uint64, op int) {
	ctx := context.Background()
	switch op % 6 {
	case 0:
		_ = f.svc.TransferTo(ctx, ports.TransferInput{Actor: admin, ProductID: id, Recipient: carrier, RoleLabel: "TRANSFER"})
	case 1:
		_ = f.svc.UpdateLocationAndStatus(ctx, ports.UpdateStatusInput{Actor: carrier, ProductID: id, Status: domain.StatusInTransit})
	case 2:
		_ = f.svc.ReceiveAtWarehouse(ctx, ports.CustodyInput{Actor: warehouse, ProductID: id})
	case 3:
		_ = f.svc.DeliverToRetailer(ctx, ports.CustodyInput{Actor: retailer, ProductID: id})
	case 4:
		_ = f.svc.RecallProduct(ctx, ports.RecallInput{Actor: stranger, ProductID: id})
	default:
		_ = f.svc.RecallProduct(ctx, ports.RecallInput{Actor: maker, ProductID: id, Reason: "batch"})
	}
}

func TestProperty_HistoryIsAppendOnly(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	properties.Property("earlier entries never change and length never shrinks", prop.ForAll(
		func(ops []int) bool {
			f := newFixture(t)
			ctx := context.Background()
			id := f.create(t)

			var seen []domain.HistoryItem
			for _, op := range ops {
				step(f, id, op)
				n, err := f.svc.HistoryCount(ctx, id)
				if err != nil || n < uint64(len(seen)) {
					return false
				}
				all, err := f.svc.RecentHistory(ctx, id, n)
				if err != nil || !reflect.DeepEqual(all[:len(seen)], seen) {
					return false
				}
				p, _ := f.svc.GetProduct(ctx, id)
				if p.HistoryLen != n || all[n-1].Status != p.Status {
					return false
				}
				seen = all
			}
			return true
		},
		gen.SliceOfN(12, gen.IntRange(0, 5)),
	))

	properties.TestingRun(t)
}

func TestProperty_RecentHistoryIsTail(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	properties.Property("window equals the tail of the full history", prop.ForAll(
		func(updates int, count uint64) bool {
			f := newFixture(t)
			ctx := context.Background()
			id := f.create(t)
			for i := 0; i < updates; i++ {
				step(f, id, 1)
			}

			total, _ := f.svc.HistoryCount(ctx, id)
			all, _ := f.svc.RecentHistory(ctx, id, total)
			window, err := f.svc.RecentHistory(ctx, id, count)
			if err != nil {
				return false
			}
			k := count
			if k > total {
				k = total
			}
			if uint64(len(window)) != k {
				return false
			}
			return reflect.DeepEqual(window, all[total-k:]) || k == 0
		},
		gen.IntRange(0, 10),
		gen.UInt64Range(0, 15),
	))

	properties.TestingRun(t)
}

func TestProperty_ProductIDsIncrease(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 30
	properties := gopter.NewProperties(parameters)

	properties.Property("ids are dense and increasing regardless of denied creations", prop.ForAll(
		func(callers []bool) bool {
			f := newFixture(t)
			var next uint64 = 1
			for _, allowed := range callers {
				actor := stranger
				if allowed {
					actor = maker
				}
				id, err := f.svc.CreateProduct(context.Background(), ports.CreateProductInput{Actor: actor, SKU: "S"})
				if allowed != (err == nil) {
					return false
				}
				if allowed {
					if id != next {
						return false
					}
					next++
				}
			}
			return true
		},
		gen.SliceOf(gen.Bool()),
	))

	properties.TestingRun(t)
}
