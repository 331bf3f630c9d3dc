package services

import (
	"context"

	"github.com/google/uuid"

	types "github.com/yungbote/coursehub-backend/internal/domain"
	"github.com/yungbote/coursehub-backend/internal/platform/apierr"
	"github.com/yungbote/coursehub-backend/internal/platform/ctxutil"
)

// Caller is the identity an operation runs as. Handlers build it from the
// request context and pass it explicitly.
type Caller struct {
	UserID uuid.UUID
	Role   string
}

func (c Caller) Authenticated() bool { return c.UserID != uuid.Nil }

func (c Caller) IsAdmin() bool { return c.Authenticated() && c.Role == types.RoleAdmin }

// CallerFromContext reads the identity attached by the auth middleware.
func CallerFromContext(ctx context.Context) (Caller, error) {
	rd := ctxutil.GetRequestData(ctx)
	if rd == nil || rd.UserID == uuid.Nil {
		return Caller{}, apierr.ErrUnauthorized
	}
	return Caller{UserID: rd.UserID, Role: rd.Role}, nil
}

func requireAuthenticated(c Caller) error {
	if !c.Authenticated() {
		return apierr.ErrUnauthorized
	}
	return nil
}

func requireAdmin(c Caller) error {
	if !c.Authenticated() {
		return apierr.ErrUnauthorized
	}
	if !c.IsAdmin() {
		return apierr.Wrap(apierr.ErrForbidden, "admin role required")
	}
	return nil
}
