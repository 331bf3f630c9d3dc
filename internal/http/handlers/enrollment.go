package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/yungbote/coursehub-backend/internal/http/response"
	"github.com/yungbote/coursehub-backend/internal/services"
)

type EnrollmentHandler struct {
	svc services.EnrollmentService
}

func NewEnrollmentHandler(svc services.EnrollmentService) *EnrollmentHandler {
	return &EnrollmentHandler{svc: svc}
}

// POST /api/courses/:id/enroll
// Free courses only; paid courses answer 402 and go through /payments.
func (h *EnrollmentHandler) Enroll(c *gin.Context) {
	courseID, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	e, err := h.svc.EnrollFree(requestDBC(c), callerOf(c), courseID)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondCreated(c, gin.H{"enrollment": e})
}

// GET /api/enrollments
func (h *EnrollmentHandler) ListMine(c *gin.Context) {
	views, err := h.svc.ListMine(requestDBC(c), callerOf(c))
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, gin.H{"enrollments": views})
}
