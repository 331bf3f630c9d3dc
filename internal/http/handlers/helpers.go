package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/coursehub-backend/internal/http/response"
	"github.com/yungbote/coursehub-backend/internal/pkg/dbctx"
	"github.com/yungbote/coursehub-backend/internal/platform/apierr"
	"github.com/yungbote/coursehub-backend/internal/services"
)

func requestDBC(c *gin.Context) dbctx.Context {
	return dbctx.Context{Ctx: c.Request.Context()}
}

// callerOf returns the zero Caller for anonymous requests; services decide
// whether that is acceptable.
func callerOf(c *gin.Context) services.Caller {
	caller, _ := services.CallerFromContext(c.Request.Context())
	return caller
}

func uuidParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		response.RespondErr(c, apierr.Wrap(apierr.ErrInvalidArgument, "invalid %s", name))
		return uuid.Nil, false
	}
	return id, true
}

func bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		response.RespondErr(c, apierr.Wrap(apierr.ErrInvalidArgument, "invalid request body: %v", err))
		return false
	}
	return true
}
