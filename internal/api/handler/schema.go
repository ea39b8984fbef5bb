package handler

import (
	"time"

	"github.com/99minutos/custody-tracker/internal/core/domain"
)

// errorResponse is the standard error envelope returned on all 4xx/5xx responses.
type errorResponse struct {
	Error string `json:"error"`
}

// --- Request types ---

// Lifecycle request fields carry no validation tags: free-text fields are
// stored as given and the service checks arguments after authorization.

type createProductRequest struct {
	SKU         string `json:"sku"`
	Description string `json:"description"`
	Location    string `json:"location"`
	Note        string `json:"note"`
}

type transferRequest struct {
	Recipient string `json:"recipient"`
	Role      string `json:"role"`
	Location  string `json:"location"`
	Note      string `json:"note"`
}

type updateStatusRequest struct {
	Status   string `json:"status"`
	Location string `json:"location"`
	Note     string `json:"note"`
}

type custodyRequest struct {
	Location string `json:"location"`
	Note     string `json:"note"`
}

type recallRequest struct {
	Reason string `json:"reason"`
}

type adminOverrideRequest struct {
	Owner  string `json:"owner"`
	Status string `json:"status"`
}

type grantRoleRequest struct {
	Actor string `json:"actor" validate:"required"`
	Role  string `json:"role"  validate:"required"`
}

// --- Response types ---

type productLinks struct {
	Self    string `json:"self"`
	History string `json:"history"`
}

type createProductResponse struct {
	ID    uint64       `json:"id"`
	Links productLinks `json:"_links"`
}

type productResponse struct {
	ID           uint64       `json:"id"`
	SKU          string       `json:"sku"`
	Description  string       `json:"description"`
	Owner        string       `json:"owner"`
	Status       string       `json:"status"`
	CreatedAt    string       `json:"created_at"`
	HistoryCount uint64       `json:"history_count"`
	Links        productLinks `json:"_links"`
}

type historyItemResponse struct {
	Index     uint64 `json:"index"`
	Timestamp string `json:"timestamp"`
	Actor     string `json:"actor"`
	Role      string `json:"role"`
	Location  string `json:"location"`
	Note      string `json:"note"`
	Status    string `json:"status"`
}

type historyResponse struct {
	ProductID uint64                `json:"product_id"`
	Count     int                   `json:"count"`
	Items     []historyItemResponse `json:"items"`
}

type historyCountResponse struct {
	ProductID uint64 `json:"product_id"`
	Count     uint64 `json:"count"`
}

type rolesResponse struct {
	Actor string   `json:"actor"`
	Roles []string `json:"roles"`
}

type acceptedResponse struct {
	Message string `json:"message"`
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func toProductResponse(p *domain.Product) productResponse {
	return productResponse{
		ID:           p.ID,
		SKU:          p.SKU,
		Description:  p.Description,
		Owner:        p.Owner,
		Status:       string(p.Status),
		CreatedAt:    formatTime(p.CreatedAt),
		HistoryCount: p.HistoryLen,
		Links:        linksFor(p.ID),
	}
}

func toHistoryItemResponse(item domain.HistoryItem) historyItemResponse {
	return historyItemResponse{
		Index:     item.Index,
		Timestamp: formatTime(item.Timestamp),
		Actor:     item.Actor,
		Role:      item.RoleLabel,
		Location:  item.Location,
		Note:      item.Note,
		Status:    string(item.Status),
	}
}
