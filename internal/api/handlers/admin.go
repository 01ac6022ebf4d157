package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"payout-ledger/internal/api/middleware"
	"payout-ledger/internal/model"
	"payout-ledger/internal/service"
)

const maxAdminBody = 1 << 20

// AdminService is what the admin handlers need from the service layer.
type AdminService interface {
	Execute(ctx context.Context, action service.AdminAction) (any, error)
	BulkAdjust(ctx context.Context, items []service.BulkItem) *service.BulkResult
	DeleteAccount(ctx context.Context, accountID int64) error
	ListPending(ctx context.Context, limit int) (*service.PendingRequests, error)
	ListSystemLogs(ctx context.Context, action string, limit int) ([]*model.SystemLog, error)
}

// Reconciler checks an account against its ledger history.
type Reconciler interface {
	Reconcile(ctx context.Context, accountID int64) (*service.Reconciliation, error)
}

// AdminHandler serves the admin and system routes.
type AdminHandler struct {
	admin      AdminService
	reconciler Reconciler
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(admin AdminService, reconciler Reconciler) *AdminHandler {
	return &AdminHandler{admin: admin, reconciler: reconciler}
}

// Action returns a handler that decodes the body as the action of kind
// and executes it.
func (h *AdminHandler) Action(kind string) gin.HandlerFunc {
	return func(c *gin.Context) {
		body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxAdminBody))
		if err != nil {
			badRequest(c, "Invalid request body")
			return
		}
		h.execute(c, kind, body)
	}
}

type actionRequest struct {
	Kind    string          `json:"kind"`
	Payload json.RawMessage `json:"payload"`
}

// Execute runs a {kind, payload} envelope.
func (h *AdminHandler) Execute(c *gin.Context) {
	var req actionRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Kind == "" {
		badRequest(c, "Invalid request body")
		return
	}
	h.execute(c, req.Kind, req.Payload)
}

func (h *AdminHandler) execute(c *gin.Context, kind string, payload []byte) {
	action, err := service.DecodeAdminAction(kind, payload)
	if err != nil {
		respondError(c, err)
		return
	}

	log.Info().
		Str("kind", action.Kind()).
		Str("principal", middleware.GetPrincipal(c)).
		Str("client_ip", c.ClientIP()).
		Msg("Admin action requested")

	result, err := h.admin.Execute(c.Request.Context(), action)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"kind": action.Kind(), "result": result})
}

type bulkRequest struct {
	Items []service.BulkItem `json:"items"`
}

// Bulk applies a list of add/deduct items, each independently.
func (h *AdminHandler) Bulk(c *gin.Context) {
	var req bulkRequest
	if err := c.ShouldBindJSON(&req); err != nil || len(req.Items) == 0 {
		badRequest(c, "Invalid request body")
		return
	}
	c.JSON(http.StatusOK, h.admin.BulkAdjust(c.Request.Context(), req.Items))
}

// Reconcile reports whether an account balance matches its history.
func (h *AdminHandler) Reconcile(c *gin.Context) {
	accountID, ok := pathID(c, "id")
	if !ok {
		return
	}

	rec, err := h.reconciler.Reconcile(c.Request.Context(), accountID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

// DeleteAccount removes an account and everything it owns.
func (h *AdminHandler) DeleteAccount(c *gin.Context) {
	accountID, ok := pathID(c, "id")
	if !ok {
		return
	}

	if err := h.admin.DeleteAccount(c.Request.Context(), accountID); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Pending lists deposits and withdrawals awaiting review.
func (h *AdminHandler) Pending(c *gin.Context) {
	limit, ok := queryInt(c, "limit", 100, 1, 500)
	if !ok {
		return
	}

	pending, err := h.admin.ListPending(c.Request.Context(), limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, pending)
}

// Logs lists the newest SystemLog entries of one action.
func (h *AdminHandler) Logs(c *gin.Context) {
	limit, ok := queryInt(c, "limit", 50, 1, 500)
	if !ok {
		return
	}

	logs, err := h.admin.ListSystemLogs(c.Request.Context(), c.Query("action"), limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"logs": logs})
}
