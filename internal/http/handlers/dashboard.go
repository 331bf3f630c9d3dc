package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/yungbote/coursehub-backend/internal/http/response"
	"github.com/yungbote/coursehub-backend/internal/services"
)

type DashboardHandler struct {
	svc services.DashboardService
}

func NewDashboardHandler(svc services.DashboardService) *DashboardHandler {
	return &DashboardHandler{svc: svc}
}

// GET /api/dashboard
func (h *DashboardHandler) Student(c *gin.Context) {
	d, err := h.svc.Student(requestDBC(c), callerOf(c))
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, d)
}

// GET /api/admin/dashboard
func (h *DashboardHandler) Admin(c *gin.Context) {
	d, err := h.svc.Admin(requestDBC(c), callerOf(c))
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, d)
}
