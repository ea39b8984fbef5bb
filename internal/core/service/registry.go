package service

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/99minutos/custody-tracker/internal/core/domain"
	"github.com/99minutos/custody-tracker/internal/core/ports"
	"github.com/99minutos/custody-tracker/internal/pkg/metrics"
)

// Registry manages capability grants. Only administrators may grant.
type Registry struct {
	repo   ports.RoleRepository
	logger zerolog.Logger
}

func NewRegistry(repo ports.RoleRepository, logger zerolog.Logger) *Registry {
	return &Registry{repo: repo, logger: logger}
}

// Bootstrap grants Administrator to actor without an authorization check.
// It is called once at start-up with the configured initial administrator.
func (r *Registry) Bootstrap(ctx context.Context, actor string) error {
	if actor == "" {
		return fmt.Errorf("bootstrap: %w: empty administrator identity", domain.ErrInvalidArgument)
	}
	if err := r.repo.GrantRole(ctx, actor, domain.RoleAdministrator); err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}
	r.logger.Info().Str("actor", actor).Msg("administrator bootstrapped")
	return nil
}

// Grant gives role to actor. Re-granting an existing role is a no-op.
func (r *Registry) Grant(ctx context.Context, caller string, role domain.Role, actor string) error {
	if !role.Valid() {
		return fmt.Errorf("grant: %w: unknown role %q", domain.ErrInvalidArgument, role)
	}
	if actor == "" {
		return fmt.Errorf("grant: %w: empty actor", domain.ErrInvalidArgument)
	}

	g, err := r.Grants(ctx, caller)
	if err != nil {
		return fmt.Errorf("grant: %w", err)
	}
	if !domain.Allow(domain.OpGrantRole, caller, g, nil) {
		metrics.OperationsTotal.WithLabelValues(string(domain.OpGrantRole), "unauthorized").Inc()
		return fmt.Errorf("grant: %w", domain.ErrUnauthorized)
	}

	if err := r.repo.GrantRole(ctx, actor, role); err != nil {
		metrics.OperationsTotal.WithLabelValues(string(domain.OpGrantRole), "error").Inc()
		return fmt.Errorf("grant: %w", err)
	}

	metrics.OperationsTotal.WithLabelValues(string(domain.OpGrantRole), "ok").Inc()
	metrics.RoleGrantsTotal.WithLabelValues(string(role)).Inc()
	r.logger.Info().Str("caller", caller).Str("actor", actor).Str("role", string(role)).Msg("role granted")
	return nil
}

// Grants loads the explicit grants held by actor.
func (r *Registry) Grants(ctx context.Context, actor string) (domain.Grants, error) {
	if actor == "" {
		return domain.NewGrants(), nil
	}
	roles, err := r.repo.ListRoles(ctx, actor)
	if err != nil {
		return nil, err
	}
	return domain.NewGrants(roles...), nil
}

// HasRole reports whether actor passes a capability check for role.
func (r *Registry) HasRole(ctx context.Context, role domain.Role, actor string) (bool, error) {
	g, err := r.Grants(ctx, actor)
	if err != nil {
		return false, err
	}
	return g.Satisfies(role), nil
}

// Roles lists the explicit grants of actor.
func (r *Registry) Roles(ctx context.Context, actor string) ([]domain.Role, error) {
	return r.repo.ListRoles(ctx, actor)
}
