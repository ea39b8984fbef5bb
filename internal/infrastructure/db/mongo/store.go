package mongo

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/99minutos/custody-tracker/internal/core/domain"
)

const (
	collectionCounters = "counters"
	collectionProducts = "products"
	collectionHistory  = "history"
	collectionRoles    = "roles"

	productCounter = "product_id"

	// Server error code for transactions on a standalone deployment.
	codeIllegalOperation = 20
)

// historyDoc is one arena slot: (product_id, idx) is unique.
type historyDoc struct {
	ProductID uint64             `bson:"product_id"`
	Item      domain.HistoryItem `bson:",inline"`
}

type roleDoc struct {
	Actor     string      `bson:"actor"`
	Role      domain.Role `bson:"role"`
	GrantedAt time.Time   `bson:"granted_at"`
}

// Store implements ports.Store on MongoDB. A product document carries
// history_len; history slots beyond it are invisible, so the single-document
// update of the product is the commit point of every append.
type Store struct {
	db       *mongo.Database
	counters *mongo.Collection
	products *mongo.Collection
	history  *mongo.Collection
	roles    *mongo.Collection

	// noTxn is set once the deployment rejects transactions.
	noTxn atomic.Bool
}

func NewStore(db *mongo.Database) *Store {
	return &Store{
		db:       db,
		counters: db.Collection(collectionCounters),
		products: db.Collection(collectionProducts),
		history:  db.Collection(collectionHistory),
		roles:    db.Collection(collectionRoles),
	}
}

// EnsureIndexes creates the unique keys of the history arena and role table.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	_, err := s.history.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "product_id", Value: 1}, {Key: "idx", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("history index: %w", err)
	}
	_, err = s.roles.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "actor", Value: 1}, {Key: "role", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("roles index: %w", err)
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.Client().Ping(ctx, nil)
}

func (s *Store) CreateProduct(ctx context.Context, p domain.Product, first domain.HistoryItem) (*domain.Product, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	p.HistoryLen = 1
	first.Index = 0

	err := s.withTransaction(ctx, func(ctx context.Context) error {
		var counter struct {
			Value uint64 `bson:"value"`
		}
		err := s.counters.FindOneAndUpdate(ctx,
			bson.M{"_id": productCounter},
			bson.M{"$inc": bson.M{"value": 1}},
			options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
		).Decode(&counter)
		if err != nil {
			return fmt.Errorf("allocate product id: %w", err)
		}
		p.ID = counter.Value

		// The history slot goes first; the product insert makes both visible.
		if err := s.putHistory(ctx, p.ID, first); err != nil {
			return err
		}
		if _, err := s.products.InsertOne(ctx, p); err != nil {
			if mongo.SessionFromContext(ctx) == nil {
				if _, derr := s.history.DeleteOne(ctx, bson.M{"product_id": p.ID, "idx": 0}); derr != nil {
					err = errors.Join(err, fmt.Errorf("remove history slot: %w", derr))
				}
			}
			return fmt.Errorf("insert product: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// withTransaction runs fn in a session transaction. Deployments without
// transaction support run fn directly; callers undo partial writes themselves
// when no session is attached to the context.
func (s *Store) withTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if !s.noTxn.Load() {
		sess, err := s.db.Client().StartSession()
		if err != nil {
			return fmt.Errorf("start session: %w", err)
		}
		defer sess.EndSession(ctx)

		_, err = sess.WithTransaction(ctx, func(sc mongo.SessionContext) (any, error) {
			return nil, fn(sc)
		})
		if !transactionsUnsupported(err) {
			return err
		}
		s.noTxn.Store(true)
	}
	return fn(ctx)
}

func transactionsUnsupported(err error) bool {
	var ce mongo.CommandError
	return errors.As(err, &ce) && ce.Code == codeIllegalOperation
}

func (s *Store) GetProduct(ctx context.Context, id uint64) (*domain.Product, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var p domain.Product
	if err := s.products.FindOne(ctx, bson.M{"_id": id}).Decode(&p); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrProductNotFound
		}
		return nil, fmt.Errorf("find product: %w", err)
	}
	return &p, nil
}

func (s *Store) UpdateProduct(ctx context.Context, p domain.Product, item domain.HistoryItem) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	if err := s.putHistory(ctx, p.ID, item); err != nil {
		return err
	}

	res, err := s.products.UpdateOne(ctx,
		bson.M{"_id": p.ID, "history_len": item.Index},
		bson.M{
			"$set": bson.M{"owner": p.Owner, "status": p.Status},
			"$inc": bson.M{"history_len": 1},
		},
	)
	if err != nil {
		return fmt.Errorf("update product: %w", err)
	}
	if res.MatchedCount == 0 {
		if _, err := s.GetProduct(ctx, p.ID); err != nil {
			return err
		}
		return domain.ErrConcurrentUpdate
	}
	return nil
}

// putHistory writes an arena slot. Slots at or beyond history_len are not yet
// committed, so one left behind by a failed append may be overwritten. Writers
// to the same product are serialized by the lifecycle service; the count check
// only catches a second process racing on the same product.
func (s *Store) putHistory(ctx context.Context, productID uint64, item domain.HistoryItem) error {
	committed, err := s.products.CountDocuments(ctx, bson.M{"_id": productID, "history_len": bson.M{"$gt": item.Index}})
	if err != nil {
		return fmt.Errorf("check history slot: %w", err)
	}
	if committed > 0 {
		return domain.ErrConcurrentUpdate
	}

	_, err = s.history.ReplaceOne(ctx,
		bson.M{"product_id": productID, "idx": item.Index},
		historyDoc{ProductID: productID, Item: item},
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("write history: %w", err)
	}
	return nil
}

func (s *Store) HistoryCount(ctx context.Context, id uint64) (uint64, error) {
	p, err := s.GetProduct(ctx, id)
	if err != nil {
		return 0, err
	}
	return p.HistoryLen, nil
}

func (s *Store) HistoryItem(ctx context.Context, id, index uint64) (*domain.HistoryItem, error) {
	total, err := s.HistoryCount(ctx, id)
	if err != nil {
		return nil, err
	}
	if index >= total {
		return nil, domain.ErrHistoryIndexOutOfRange
	}

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var doc historyDoc
	if err := s.history.FindOne(ctx, bson.M{"product_id": id, "idx": index}).Decode(&doc); err != nil {
		return nil, fmt.Errorf("find history: %w", err)
	}
	return &doc.Item, nil
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

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	cur, err := s.history.Find(ctx,
		bson.M{"product_id": id, "idx": bson.M{"$gte": total - n, "$lt": total}},
		options.Find().SetSort(bson.D{{Key: "idx", Value: 1}}),
	)
	if err != nil {
		return nil, fmt.Errorf("find history: %w", err)
	}
	defer func() { _ = cur.Close(ctx) }()

	items := make([]domain.HistoryItem, 0, n)
	for cur.Next(ctx) {
		var doc historyDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode history: %w", err)
		}
		items = append(items, doc.Item)
	}
	return items, cur.Err()
}

func (s *Store) GrantRole(ctx context.Context, actor string, role domain.Role) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	_, err := s.roles.UpdateOne(ctx,
		bson.M{"actor": actor, "role": role},
		bson.M{"$setOnInsert": roleDoc{Actor: actor, Role: role, GrantedAt: time.Now().UTC()}},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("grant role: %w", err)
	}
	return nil
}

func (s *Store) ListRoles(ctx context.Context, actor string) ([]domain.Role, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	cur, err := s.roles.Find(ctx, bson.M{"actor": actor}, options.Find().SetSort(bson.D{{Key: "role", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("find roles: %w", err)
	}
	defer func() { _ = cur.Close(ctx) }()

	roles := []domain.Role{}
	for cur.Next(ctx) {
		var doc roleDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode role: %w", err)
		}
		roles = append(roles, doc.Role)
	}
	return roles, cur.Err()
}
