package handlers

import (
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/coursehub-backend/internal/http/response"
	"github.com/yungbote/coursehub-backend/internal/platform/apierr"
	"github.com/yungbote/coursehub-backend/internal/platform/logger"
	"github.com/yungbote/coursehub-backend/internal/services"
)

// Flutterwave sends the configured secret hash in this header.
const webhookSignatureHeader = "verif-hash"

const maxWebhookBody = 1 << 20

type PaymentHandler struct {
	log *logger.Logger
	svc services.PaymentService
}

func NewPaymentHandler(log *logger.Logger, svc services.PaymentService) *PaymentHandler {
	return &PaymentHandler{log: log.With("handler", "PaymentHandler"), svc: svc}
}

// POST /api/payments/initialize
// body: { "course_id": "..." }
func (h *PaymentHandler) Initialize(c *gin.Context) {
	var req struct {
		CourseID uuid.UUID `json:"course_id"`
	}
	if !bindJSON(c, &req) {
		return
	}
	res, err := h.svc.InitializePayment(requestDBC(c), callerOf(c), req.CourseID)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondCreated(c, res)
}

// POST /api/payments/verify
// body: { "transaction_id": "...", "tx_ref": "..." }. The gateway redirect
// query parameters are accepted as a fallback.
func (h *PaymentHandler) Verify(c *gin.Context) {
	var req struct {
		TransactionID string `json:"transaction_id"`
		TxRef         string `json:"tx_ref"`
	}
	if c.Request.ContentLength > 0 && !bindJSON(c, &req) {
		return
	}
	if req.TransactionID == "" {
		req.TransactionID = c.Query("transaction_id")
	}
	if req.TxRef == "" {
		req.TxRef = c.Query("tx_ref")
	}
	res, err := h.svc.ReconcilePayment(requestDBC(c), services.VerifyEvidence{
		TransactionID: req.TransactionID,
		TxRef:         req.TxRef,
		Caller:        callerOf(c),
	})
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, res)
}

// POST /api/payments/webhook
// The raw body is passed through untouched so the inbox stores exactly what
// was delivered.
func (h *PaymentHandler) Webhook(c *gin.Context) {
	raw, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		response.RespondErr(c, apierr.Wrap(apierr.ErrInvalidArgument, "read body: %v", err))
		return
	}
	res, err := h.svc.ReconcilePayment(requestDBC(c), services.WebhookEvidence{
		RawBody:   raw,
		Signature: c.GetHeader(webhookSignatureHeader),
	})
	if err != nil {
		h.log.Warn("Webhook not processed", "error", err)
		response.RespondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":            res.Status,
		"already_processed": res.AlreadyProcessed,
		"ignored":           res.Ignored,
	})
}

// GET /api/admin/payments?status=&limit=
func (h *PaymentHandler) ListPayments(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	payments, err := h.svc.ListPayments(requestDBC(c), callerOf(c), c.Query("status"), limit)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, gin.H{"payments": payments})
}
