package handlers

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/coursehub-backend/internal/http/response"
	"github.com/yungbote/coursehub-backend/internal/services"
)

type CourseHandler struct {
	svc services.CourseService
}

func NewCourseHandler(svc services.CourseService) *CourseHandler {
	return &CourseHandler{svc: svc}
}

// GET /api/courses?category=&q=&limit=&offset=&include_drafts=
func (h *CourseHandler) ListCourses(c *gin.Context) {
	q := services.CourseQuery{
		Category: c.Query("category"),
		Search:   c.Query("q"),
	}
	q.Limit, _ = strconv.Atoi(c.Query("limit"))
	q.Offset, _ = strconv.Atoi(c.Query("offset"))
	q.IncludeDrafts, _ = strconv.ParseBool(c.Query("include_drafts"))

	courses, err := h.svc.List(requestDBC(c), callerOf(c), q)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, gin.H{"courses": courses})
}

// GET /api/courses/:id
func (h *CourseHandler) GetCourse(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	detail, err := h.svc.Get(requestDBC(c), callerOf(c), id)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, detail)
}

// POST /api/admin/courses
func (h *CourseHandler) CreateCourse(c *gin.Context) {
	var in services.CourseInput
	if !bindJSON(c, &in) {
		return
	}
	detail, err := h.svc.Create(requestDBC(c), callerOf(c), in)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondCreated(c, detail)
}

// PATCH /api/admin/courses/:id
func (h *CourseHandler) UpdateCourse(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	var in services.CourseInput
	if !bindJSON(c, &in) {
		return
	}
	course, err := h.svc.Update(requestDBC(c), callerOf(c), id, in)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, gin.H{"course": course})
}

// DELETE /api/admin/courses/:id
func (h *CourseHandler) DeleteCourse(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	if err := h.svc.Delete(requestDBC(c), callerOf(c), id); err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, gin.H{"ok": true})
}

// POST /api/admin/courses/:id/lessons
func (h *CourseHandler) AddLesson(c *gin.Context) {
	courseID, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	var in services.LessonInput
	if !bindJSON(c, &in) {
		return
	}
	lesson, err := h.svc.AddLesson(requestDBC(c), callerOf(c), courseID, in)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondCreated(c, gin.H{"lesson": lesson})
}

// PATCH /api/admin/courses/:id/lessons/:lessonId
func (h *CourseHandler) UpdateLesson(c *gin.Context) {
	courseID, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	lessonID, ok := uuidParam(c, "lessonId")
	if !ok {
		return
	}
	var in services.LessonInput
	if !bindJSON(c, &in) {
		return
	}
	lesson, err := h.svc.UpdateLesson(requestDBC(c), callerOf(c), courseID, lessonID, in)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, gin.H{"lesson": lesson})
}

// DELETE /api/admin/courses/:id/lessons/:lessonId
func (h *CourseHandler) DeleteLesson(c *gin.Context) {
	courseID, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	lessonID, ok := uuidParam(c, "lessonId")
	if !ok {
		return
	}
	if err := h.svc.DeleteLesson(requestDBC(c), callerOf(c), courseID, lessonID); err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, gin.H{"ok": true})
}
