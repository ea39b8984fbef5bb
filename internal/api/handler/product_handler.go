package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/99minutos/custody-tracker/internal/core/domain"
	"github.com/99minutos/custody-tracker/internal/core/ports"
)

// defaultHistoryWindow is used when GET /history is called without ?count.
const defaultHistoryWindow = 20

// ProductHandler handles HTTP requests for product lifecycle operations.
// Domain errors are returned unchanged and mapped by the central error handler.
type ProductHandler struct {
	service ports.LifecycleService
}

func NewProductHandler(service ports.LifecycleService) *ProductHandler {
	return &ProductHandler{service: service}
}

// bind decodes and validates the request body.
func bind(c echo.Context, req any) error {
	if err := c.Bind(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if err := c.Validate(req); err != nil {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	}
	return nil
}

// Create handles POST /v1/products.
//
// @Summary      Register a new product
// @Tags         products
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        body  body      createProductRequest  true  "Product details"
// @Success      201   {object}  createProductResponse
// @Failure      400   {object}  errorResponse
// @Failure      401   {object}  errorResponse
// @Failure      403   {object}  errorResponse
// @Router       /v1/products [post]
func (h *ProductHandler) Create(c echo.Context) error {
	actor, err := ctxActor(c)
	if err != nil {
		return err
	}
	var req createProductRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	id, err := h.service.CreateProduct(c.Request().Context(), ports.CreateProductInput{
		Actor:       actor,
		SKU:         req.SKU,
		Description: req.Description,
		Location:    req.Location,
		Note:        req.Note,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, createProductResponse{ID: id, Links: linksFor(id)})
}

// Get handles GET /v1/products/:id.
//
// @Summary      Get a product
// @Tags         products
// @Produce      json
// @Param        id   path      int  true  "Product id"
// @Success      200  {object}  productResponse
// @Failure      400  {object}  errorResponse
// @Failure      404  {object}  errorResponse
// @Router       /v1/products/{id} [get]
func (h *ProductHandler) Get(c echo.Context) error {
	id, err := productID(c)
	if err != nil {
		return err
	}
	p, err := h.service.GetProduct(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toProductResponse(p))
}

// Transfer handles POST /v1/products/:id/transfer.
//
// @Summary      Transfer custody to another actor
// @Tags         products
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id    path      int              true  "Product id"
// @Param        body  body      transferRequest  true  "Recipient and history details"
// @Success      202   {object}  acceptedResponse
// @Failure      400   {object}  errorResponse
// @Failure      401   {object}  errorResponse
// @Failure      403   {object}  errorResponse
// @Failure      404   {object}  errorResponse
// @Failure      409   {object}  errorResponse
// @Router       /v1/products/{id}/transfer [post]
func (h *ProductHandler) Transfer(c echo.Context) error {
	actor, id, err := h.prelude(c)
	if err != nil {
		return err
	}
	var req transferRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	err = h.service.TransferTo(c.Request().Context(), ports.TransferInput{
		Actor:     actor,
		ProductID: id,
		Recipient: req.Recipient,
		RoleLabel: req.Role,
		Location:  req.Location,
		Note:      req.Note,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusAccepted, acceptedResponse{Message: "ownership transferred"})
}

// UpdateStatus handles POST /v1/products/:id/status.
//
// @Summary      Record a new location and status
// @Tags         products
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id    path      int                  true  "Product id"
// @Param        body  body      updateStatusRequest  true  "Status update"
// @Success      202   {object}  acceptedResponse
// @Failure      400   {object}  errorResponse
// @Failure      401   {object}  errorResponse
// @Failure      403   {object}  errorResponse
// @Failure      404   {object}  errorResponse
// @Router       /v1/products/{id}/status [post]
func (h *ProductHandler) UpdateStatus(c echo.Context) error {
	actor, id, err := h.prelude(c)
	if err != nil {
		return err
	}
	var req updateStatusRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	err = h.service.UpdateLocationAndStatus(c.Request().Context(), ports.UpdateStatusInput{
		Actor:     actor,
		ProductID: id,
		Location:  req.Location,
		Note:      req.Note,
		Status:    domain.Status(req.Status),
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusAccepted, acceptedResponse{Message: "status updated"})
}

// Receive handles POST /v1/products/:id/receive.
//
// @Summary      Receive a product at the calling warehouse
// @Tags         products
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id    path      int             true  "Product id"
// @Param        body  body      custodyRequest  true  "Location and note"
// @Success      202   {object}  acceptedResponse
// @Failure      401   {object}  errorResponse
// @Failure      403   {object}  errorResponse
// @Failure      404   {object}  errorResponse
// @Router       /v1/products/{id}/receive [post]
func (h *ProductHandler) Receive(c echo.Context) error {
	return h.custody(c, h.service.ReceiveAtWarehouse, "received at warehouse")
}

// Deliver handles POST /v1/products/:id/deliver.
//
// @Summary      Deliver a product to the calling retailer
// @Tags         products
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id    path      int             true  "Product id"
// @Param        body  body      custodyRequest  true  "Location and note"
// @Success      202   {object}  acceptedResponse
// @Failure      401   {object}  errorResponse
// @Failure      403   {object}  errorResponse
// @Failure      404   {object}  errorResponse
// @Router       /v1/products/{id}/deliver [post]
func (h *ProductHandler) Deliver(c echo.Context) error {
	return h.custody(c, h.service.DeliverToRetailer, "delivered to retailer")
}

// Recall handles POST /v1/products/:id/recall.
//
// @Summary      Recall a product
// @Tags         products
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id    path      int            true  "Product id"
// @Param        body  body      recallRequest  true  "Recall reason"
// @Success      202   {object}  acceptedResponse
// @Failure      401   {object}  errorResponse
// @Failure      403   {object}  errorResponse
// @Failure      404   {object}  errorResponse
// @Router       /v1/products/{id}/recall [post]
func (h *ProductHandler) Recall(c echo.Context) error {
	actor, id, err := h.prelude(c)
	if err != nil {
		return err
	}
	var req recallRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	err = h.service.RecallProduct(c.Request().Context(), ports.RecallInput{
		Actor:     actor,
		ProductID: id,
		Reason:    req.Reason,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusAccepted, acceptedResponse{Message: "product recalled"})
}

// AdminOverride handles POST /v1/products/:id/admin-override.
//
// @Summary      Overwrite owner and status (administrators only)
// @Tags         products
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id    path      int                   true  "Product id"
// @Param        body  body      adminOverrideRequest  true  "New owner and status"
// @Success      202   {object}  acceptedResponse
// @Failure      400   {object}  errorResponse
// @Failure      401   {object}  errorResponse
// @Failure      403   {object}  errorResponse
// @Failure      404   {object}  errorResponse
// @Router       /v1/products/{id}/admin-override [post]
func (h *ProductHandler) AdminOverride(c echo.Context) error {
	actor, id, err := h.prelude(c)
	if err != nil {
		return err
	}
	var req adminOverrideRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	err = h.service.AdminForceUpdateOwnerAndStatus(c.Request().Context(), ports.AdminOverrideInput{
		Actor:     actor,
		ProductID: id,
		NewOwner:  req.Owner,
		NewStatus: domain.Status(req.Status),
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusAccepted, acceptedResponse{Message: "override applied"})
}

// HistoryCount handles GET /v1/products/:id/history/count.
//
// @Summary      Number of history entries
// @Tags         history
// @Produce      json
// @Param        id   path      int  true  "Product id"
// @Success      200  {object}  historyCountResponse
// @Failure      404  {object}  errorResponse
// @Router       /v1/products/{id}/history/count [get]
func (h *ProductHandler) HistoryCount(c echo.Context) error {
	id, err := productID(c)
	if err != nil {
		return err
	}
	n, err := h.service.HistoryCount(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, historyCountResponse{ProductID: id, Count: n})
}

// History handles GET /v1/products/:id/history.
//
// @Summary      Most recent history entries, oldest first
// @Tags         history
// @Produce      json
// @Param        id     path      int  true   "Product id"
// @Param        count  query     int  false  "Maximum number of entries (default 20)"
// @Success      200    {object}  historyResponse
// @Failure      400    {object}  errorResponse
// @Failure      404    {object}  errorResponse
// @Router       /v1/products/{id}/history [get]
func (h *ProductHandler) History(c echo.Context) error {
	id, err := productID(c)
	if err != nil {
		return err
	}
	count := uint64(defaultHistoryWindow)
	if raw := c.QueryParam("count"); raw != "" {
		count, err = strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "count must be a non-negative integer")
		}
	}

	items, err := h.service.RecentHistory(c.Request().Context(), id, count)
	if err != nil {
		return err
	}
	resp := historyResponse{ProductID: id, Count: len(items), Items: make([]historyItemResponse, 0, len(items))}
	for _, item := range items {
		resp.Items = append(resp.Items, toHistoryItemResponse(item))
	}
	return c.JSON(http.StatusOK, resp)
}

// HistoryItem handles GET /v1/products/:id/history/:index.
//
// @Summary      One history entry by 0-based index
// @Tags         history
// @Produce      json
// @Param        id     path      int  true  "Product id"
// @Param        index  path      int  true  "History index"
// @Success      200    {object}  historyItemResponse
// @Failure      400    {object}  errorResponse
// @Failure      404    {object}  errorResponse
// @Router       /v1/products/{id}/history/{index} [get]
func (h *ProductHandler) HistoryItem(c echo.Context) error {
	id, err := productID(c)
	if err != nil {
		return err
	}
	index, err := strconv.ParseUint(c.Param("index"), 10, 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid history index")
	}

	item, err := h.service.HistoryItem(c.Request().Context(), id, index)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toHistoryItemResponse(*item))
}

func (h *ProductHandler) prelude(c echo.Context) (string, uint64, error) {
	actor, err := ctxActor(c)
	if err != nil {
		return "", 0, err
	}
	id, err := productID(c)
	if err != nil {
		return "", 0, err
	}
	return actor, id, nil
}

func (h *ProductHandler) custody(c echo.Context, op func(context.Context, ports.CustodyInput) error, msg string) error {
	actor, id, err := h.prelude(c)
	if err != nil {
		return err
	}
	var req custodyRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	err = op(c.Request().Context(), ports.CustodyInput{
		Actor:     actor,
		ProductID: id,
		Location:  req.Location,
		Note:      req.Note,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusAccepted, acceptedResponse{Message: msg})
}
