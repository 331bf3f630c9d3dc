package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/yungbote/coursehub-backend/internal/http/response"
	"github.com/yungbote/coursehub-backend/internal/services"
)

type ProgressHandler struct {
	svc services.ProgressService
}

func NewProgressHandler(svc services.ProgressService) *ProgressHandler {
	return &ProgressHandler{svc: svc}
}

// PUT /api/courses/:id/lessons/:lessonId/progress
// body: { "completed": true, "watch_time_seconds": 120, "last_position_seconds": 95 }
func (h *ProgressHandler) RecordLessonProgress(c *gin.Context) {
	courseID, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	lessonID, ok := uuidParam(c, "lessonId")
	if !ok {
		return
	}
	var in services.ProgressInput
	if !bindJSON(c, &in) {
		return
	}
	res, err := h.svc.RecordLessonProgress(requestDBC(c), callerOf(c), courseID, lessonID, in)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, res)
}

// GET /api/courses/:id/progress
func (h *ProgressHandler) GetProgress(c *gin.Context) {
	courseID, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	res, err := h.svc.GetProgress(requestDBC(c), callerOf(c), courseID)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, res)
}
