package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/coursehub-backend/internal/http/response"
	"github.com/yungbote/coursehub-backend/internal/services"
)

type CertificateHandler struct {
	svc services.CertificateService
}

func NewCertificateHandler(svc services.CertificateService) *CertificateHandler {
	return &CertificateHandler{svc: svc}
}

// GET /api/courses/:id/certificate[?format=json]
// Redirects to the published image, or streams the PNG when the bucket is
// unavailable.
func (h *CertificateHandler) GetCertificate(c *gin.Context) {
	courseID, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	res, err := h.svc.Render(requestDBC(c), callerOf(c), courseID)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	if c.Query("format") == "json" {
		response.RespondOK(c, gin.H{"enrollment_id": res.EnrollmentID, "url": res.URL})
		return
	}
	if res.URL != "" {
		c.Redirect(http.StatusFound, res.URL)
		return
	}
	c.Header("Content-Disposition", `inline; filename="certificate.png"`)
	c.Data(http.StatusOK, "image/png", res.PNG)
}
