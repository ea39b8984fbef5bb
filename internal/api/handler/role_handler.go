package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/99minutos/custody-tracker/internal/core/domain"
	"github.com/99minutos/custody-tracker/internal/core/ports"
)

// RoleHandler exposes the capability registry.
type RoleHandler struct {
	service ports.RoleService
}

func NewRoleHandler(service ports.RoleService) *RoleHandler {
	return &RoleHandler{service: service}
}

// Grant handles POST /v1/roles.
//
// @Summary      Grant a role to an actor (administrators only)
// @Tags         roles
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        body  body      grantRoleRequest  true  "Actor and role"
// @Success      201   {object}  rolesResponse
// @Failure      400   {object}  errorResponse
// @Failure      401   {object}  errorResponse
// @Failure      403   {object}  errorResponse
// @Failure      422   {object}  errorResponse
// @Router       /v1/roles [post]
func (h *RoleHandler) Grant(c echo.Context) error {
	caller, err := ctxActor(c)
	if err != nil {
		return err
	}
	var req grantRoleRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	role, err := domain.ParseRole(req.Role)
	if err != nil {
		return err
	}

	ctx := c.Request().Context()
	if err := h.service.Grant(ctx, caller, role, req.Actor); err != nil {
		return err
	}
	roles, err := h.service.Roles(ctx, req.Actor)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, toRolesResponse(req.Actor, roles))
}

// List handles GET /v1/actors/:actor/roles.
//
// @Summary      List the explicit roles of an actor
// @Tags         roles
// @Produce      json
// @Param        actor  path      string  true  "Actor identity"
// @Success      200    {object}  rolesResponse
// @Router       /v1/actors/{actor}/roles [get]
func (h *RoleHandler) List(c echo.Context) error {
	actor := c.Param("actor")
	roles, err := h.service.Roles(c.Request().Context(), actor)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toRolesResponse(actor, roles))
}

func toRolesResponse(actor string, roles []domain.Role) rolesResponse {
	out := rolesResponse{Actor: actor, Roles: make([]string, 0, len(roles))}
	for _, r := range roles {
		out.Roles = append(out.Roles, string(r))
	}
	return out
}
