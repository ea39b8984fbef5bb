package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/99minutos/custody-tracker/internal/core/domain"
	"github.com/99minutos/custody-tracker/internal/core/ports"
	"github.com/99minutos/custody-tracker/internal/pkg/metrics"
)

const adminOverrideNote = "adminForceUpdate"

// LifecycleService implements ports.LifecycleService. It owns the ledger,
// the role registry and the per-product locks for the lifetime of the process.
type LifecycleService struct {
	ledger   ports.Ledger
	registry *Registry
	notifier ports.Notifier
	outbox   outbox
	locks    *keyLock
	now      func() time.Time
	logger   zerolog.Logger
}

// Option customises a LifecycleService.
type Option func(*LifecycleService)

// WithClock replaces the wall clock used for history timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *LifecycleService) { s.now = now }
}

// WithLockStripes sets the number of per-product lock stripes.
func WithLockStripes(n int) Option {
	return func(s *LifecycleService) { s.locks = newKeyLock(n) }
}

func NewLifecycleService(ledger ports.Ledger, registry *Registry, notifier ports.Notifier, logger zerolog.Logger, opts ...Option) *LifecycleService {
	s := &LifecycleService{
		ledger:   ledger,
		registry: registry,
		notifier: notifier,
		locks:    newKeyLock(defaultLockStripes),
		now:      func() time.Time { return time.Now().UTC() },
		logger:   logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateProduct registers a new product owned by the caller.
func (s *LifecycleService) CreateProduct(ctx context.Context, in ports.CreateProductInput) (id uint64, err error) {
	defer s.observe(domain.OpCreateProduct, time.Now(), &err)

	g, err := s.registry.Grants(ctx, in.Actor)
	if err != nil {
		return 0, fmt.Errorf("create product: %w", err)
	}
	if !domain.Allow(domain.OpCreateProduct, in.Actor, g, nil) {
		return 0, fmt.Errorf("create product: %w", domain.ErrUnauthorized)
	}

	now := s.now()
	first := domain.HistoryItem{
		Timestamp: now,
		Actor:     in.Actor,
		RoleLabel: domain.RoleManufacturer.Label(),
		Location:  in.Location,
		Note:      in.Note,
		Status:    domain.StatusManufactured,
	}
	p, err := s.ledger.CreateProduct(ctx, domain.Product{
		SKU:         in.SKU,
		Description: in.Description,
		Owner:       in.Actor,
		Status:      domain.StatusManufactured,
		CreatedAt:   now,
	}, first)
	if err != nil {
		s.logger.Error().Err(err).Str("actor", in.Actor).Msg("failed to create product")
		return 0, fmt.Errorf("create product: %w", err)
	}
	first.Index = 0

	metrics.StatusTransitionsTotal.WithLabelValues(string(first.Status)).Inc()
	s.outbox.push(domain.ProductCreated(*p, first), domain.HistoryAdded(p.ID, first))
	s.outbox.flush(context.WithoutCancel(ctx), s.notifier)
	s.logger.Info().Uint64("product_id", p.ID).Str("sku", p.SKU).Str("actor", in.Actor).Msg("product created")
	return p.ID, nil
}

// TransferTo hands custody to the recipient. A recipient holding an explicit
// Transporter grant moves the product to InTransit.
func (s *LifecycleService) TransferTo(ctx context.Context, in ports.TransferInput) (err error) {
	defer s.observe(domain.OpTransfer, time.Now(), &err)

	return s.apply(ctx, domain.OpTransfer, in.Actor, in.ProductID, func(p *domain.Product, _ domain.Grants) (change, error) {
		if in.Recipient == "" {
			return change{}, fmt.Errorf("%w: empty recipient", domain.ErrInvalidArgument)
		}
		rg, err := s.registry.Grants(ctx, in.Recipient)
		if err != nil {
			return change{}, err
		}
		status := p.Status
		if rg.Holds(domain.RoleTransporter) {
			status = domain.StatusInTransit
		}
		return change{
			owner:     in.Recipient,
			status:    status,
			roleLabel: in.RoleLabel,
			location:  in.Location,
			note:      in.Note,
			events:    transferEvents,
		}, nil
	})
}

// UpdateLocationAndStatus records a new location and sets the status as given.
func (s *LifecycleService) UpdateLocationAndStatus(ctx context.Context, in ports.UpdateStatusInput) (err error) {
	defer s.observe(domain.OpUpdateLocationAndStatus, time.Now(), &err)

	return s.apply(ctx, domain.OpUpdateLocationAndStatus, in.Actor, in.ProductID, func(p *domain.Product, g domain.Grants) (change, error) {
		status, err := domain.ParseStatus(string(in.Status))
		if err != nil {
			return change{}, err
		}
		return change{
			owner:     p.Owner,
			status:    status,
			roleLabel: g.Label(),
			location:  in.Location,
			note:      in.Note,
		}, nil
	})
}

// ReceiveAtWarehouse makes the calling warehouse the owner.
func (s *LifecycleService) ReceiveAtWarehouse(ctx context.Context, in ports.CustodyInput) (err error) {
	defer s.observe(domain.OpReceiveAtWarehouse, time.Now(), &err)

	return s.apply(ctx, domain.OpReceiveAtWarehouse, in.Actor, in.ProductID, func(*domain.Product, domain.Grants) (change, error) {
		return change{
			owner:     in.Actor,
			status:    domain.StatusInWarehouse,
			roleLabel: domain.RoleWarehouse.Label(),
			location:  in.Location,
			note:      in.Note,
			events:    transferEvents,
		}, nil
	})
}

// DeliverToRetailer makes the calling retailer the owner.
func (s *LifecycleService) DeliverToRetailer(ctx context.Context, in ports.CustodyInput) (err error) {
	defer s.observe(domain.OpDeliverToRetailer, time.Now(), &err)

	return s.apply(ctx, domain.OpDeliverToRetailer, in.Actor, in.ProductID, func(*domain.Product, domain.Grants) (change, error) {
		return change{
			owner:     in.Actor,
			status:    domain.StatusDelivered,
			roleLabel: domain.RoleRetailer.Label(),
			location:  in.Location,
			note:      in.Note,
			events:    transferEvents,
		}, nil
	})
}

// RecallProduct marks a product as recalled from whatever state it is in.
func (s *LifecycleService) RecallProduct(ctx context.Context, in ports.RecallInput) (err error) {
	defer s.observe(domain.OpRecallProduct, time.Now(), &err)

	return s.apply(ctx, domain.OpRecallProduct, in.Actor, in.ProductID, func(p *domain.Product, g domain.Grants) (change, error) {
		return change{
			owner:     p.Owner,
			status:    domain.StatusRecalled,
			roleLabel: g.Label(),
			note:      in.Reason,
			events: func(_, next domain.Product, item domain.HistoryItem) []domain.Notification {
				return []domain.Notification{domain.ProductRecalled(next.ID, in.Actor, in.Reason, item)}
			},
		}, nil
	})
}

// AdminForceUpdateOwnerAndStatus overwrites owner and status, bypassing every
// domain rule except the Administrator check.
func (s *LifecycleService) AdminForceUpdateOwnerAndStatus(ctx context.Context, in ports.AdminOverrideInput) (err error) {
	defer s.observe(domain.OpAdminForceUpdate, time.Now(), &err)

	var previous domain.Product
	var status domain.Status
	err = s.apply(ctx, domain.OpAdminForceUpdate, in.Actor, in.ProductID, func(p *domain.Product, _ domain.Grants) (change, error) {
		if in.NewOwner == "" {
			return change{}, fmt.Errorf("%w: empty owner", domain.ErrInvalidArgument)
		}
		st, err := domain.ParseStatus(string(in.NewStatus))
		if err != nil {
			return change{}, err
		}
		previous, status = *p, st
		return change{
			owner:     in.NewOwner,
			status:    status,
			roleLabel: domain.RoleAdministrator.Label(),
			note:      adminOverrideNote,
			events:    transferEvents,
		}, nil
	})
	if err != nil {
		return err
	}

	metrics.AdminOverridesTotal.Inc()
	s.logger.Warn().
		Bool("admin_override", true).
		Uint64("product_id", in.ProductID).
		Str("actor", in.Actor).
		Str("previous_owner", previous.Owner).
		Str("previous_status", string(previous.Status)).
		Str("owner", in.NewOwner).
		Str("status", string(status)).
		Msg("administrator override applied")
	return nil
}

// GetProduct returns the current record of a product.
func (s *LifecycleService) GetProduct(ctx context.Context, id uint64) (*domain.Product, error) {
	p, err := s.ledger.GetProduct(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get product: %w", err)
	}
	return p, nil
}

// HistoryCount returns the number of history entries of a product.
func (s *LifecycleService) HistoryCount(ctx context.Context, id uint64) (uint64, error) {
	n, err := s.ledger.HistoryCount(ctx, id)
	if err != nil {
		return 0, fmt.Errorf("history count: %w", err)
	}
	return n, nil
}

// HistoryItem returns the entry at the 0-based insertion index.
func (s *LifecycleService) HistoryItem(ctx context.Context, id, index uint64) (*domain.HistoryItem, error) {
	item, err := s.ledger.HistoryItem(ctx, id, index)
	if err != nil {
		return nil, fmt.Errorf("history item: %w", err)
	}
	return item, nil
}

// RecentHistory returns the last min(count, total) entries, oldest first.
func (s *LifecycleService) RecentHistory(ctx context.Context, id, count uint64) ([]domain.HistoryItem, error) {
	items, err := s.ledger.HistoryWindow(ctx, id, count)
	if err != nil {
		return nil, fmt.Errorf("recent history: %w", err)
	}
	return items, nil
}

// change describes the effect of one authorized operation on a product.
type change struct {
	owner     string
	status    domain.Status
	roleLabel string
	location  string
	note      string
	// events returns the domain notifications emitted before HistoryAdded.
	events func(prev, next domain.Product, item domain.HistoryItem) []domain.Notification
}

func transferEvents(prev, next domain.Product, item domain.HistoryItem) []domain.Notification {
	return []domain.Notification{domain.OwnershipTransferred(next.ID, prev.Owner, next.Owner, next.Status, item)}
}

// apply runs the shared mutation flow: under the product lock it loads,
// authorizes, validates and commits product and history atomically, then it
// releases the lock and forwards the queued notifications.
// Nothing is written or emitted unless every check passes.
func (s *LifecycleService) apply(
	ctx context.Context,
	op domain.Operation,
	actor string,
	id uint64,
	build func(p *domain.Product, g domain.Grants) (change, error),
) error {
	if err := s.commit(ctx, op, actor, id, build); err != nil {
		return err
	}
	s.outbox.flush(context.WithoutCancel(ctx), s.notifier)
	return nil
}

// commit holds the product lock for load, authorization and the ledger write
// and queues the notifications describing the committed change.
func (s *LifecycleService) commit(
	ctx context.Context,
	op domain.Operation,
	actor string,
	id uint64,
	build func(p *domain.Product, g domain.Grants) (change, error),
) error {
	unlock := s.locks.Lock(id)
	defer unlock()

	p, err := s.ledger.GetProduct(ctx, id)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	g, err := s.registry.Grants(ctx, actor)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if !domain.Allow(op, actor, g, p) {
		s.logger.Debug().Str("operation", string(op)).Str("actor", actor).Uint64("product_id", id).Msg("operation denied")
		return fmt.Errorf("%s: %w", op, domain.ErrUnauthorized)
	}

	c, err := build(p, g)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	next := *p
	next.Owner = c.owner
	next.Status = c.status
	item := domain.HistoryItem{
		Index:     p.HistoryLen,
		Timestamp: s.now(),
		Actor:     actor,
		RoleLabel: c.roleLabel,
		Location:  c.location,
		Note:      c.note,
		Status:    c.status,
	}
	if err := s.ledger.UpdateProduct(ctx, next, item); err != nil {
		s.logger.Error().Err(err).Str("operation", string(op)).Uint64("product_id", id).Msg("failed to commit product update")
		return fmt.Errorf("%s: %w", op, err)
	}
	next.HistoryLen = p.HistoryLen + 1

	var notes []domain.Notification
	if c.events != nil {
		notes = c.events(*p, next, item)
	}
	notes = append(notes, domain.HistoryAdded(id, item))
	s.outbox.push(notes...)

	metrics.StatusTransitionsTotal.WithLabelValues(string(item.Status)).Inc()
	s.logger.Info().
		Str("operation", string(op)).
		Uint64("product_id", id).
		Str("actor", actor).
		Str("owner", next.Owner).
		Str("status", string(next.Status)).
		Uint64("history_index", item.Index).
		Msg("product updated")
	return nil
}

func (s *LifecycleService) observe(op domain.Operation, start time.Time, err *error) {
	metrics.OperationDuration.WithLabelValues(string(op)).Observe(time.Since(start).Seconds())
	metrics.OperationsTotal.WithLabelValues(string(op), resultLabel(*err)).Inc()
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case domain.IsNotFound(err):
		return "not_found"
	case errors.Is(err, domain.ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, domain.ErrInvalidArgument):
		return "invalid_argument"
	case errors.Is(err, domain.ErrConcurrentUpdate):
		return "conflict"
	default:
		return "error"
	}
}
