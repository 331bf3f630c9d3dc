package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/coursehub-backend/internal/domain"
	"github.com/yungbote/coursehub-backend/internal/http/response"
	"github.com/yungbote/coursehub-backend/internal/observability"
	"github.com/yungbote/coursehub-backend/internal/platform/apierr"
	"github.com/yungbote/coursehub-backend/internal/platform/ctxutil"
	"github.com/yungbote/coursehub-backend/internal/platform/logger"
	"github.com/yungbote/coursehub-backend/internal/services"
)

// stubAuth accepts "student" and "admin" as tokens.
type stubAuth struct {
	services.AuthService
	userID uuid.UUID
}

func (s stubAuth) SetContextFromToken(ctx context.Context, token string) (context.Context, error) {
	switch token {
	case domain.RoleStudent, domain.RoleAdmin:
		return ctxutil.WithRequestData(ctx, &ctxutil.RequestData{TokenString: token, UserID: s.userID, Role: token}), nil
	default:
		return ctx, apierr.Wrap(apierr.ErrUnauthorized, "invalid token")
	}
}

func (stubAuth) GetAccessTTL() time.Duration { return time.Minute }

func newAuthRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	am := NewAuthMiddleware(logger.NewNop(), stubAuth{userID: uuid.New()})
	r := gin.New()
	ok := func(c *gin.Context) {
		rd := ctxutil.GetRequestData(c.Request.Context())
		role := ""
		if rd != nil {
			role = rd.Role
		}
		c.JSON(http.StatusOK, gin.H{"role": role})
	}
	r.GET("/public", am.OptionalAuth(), ok)
	r.GET("/me", am.RequireAuth(), ok)
	r.GET("/admin", am.RequireAuth(), am.RequireRole(domain.RoleAdmin), ok)
	return r
}

func TestAuthMiddleware(t *testing.T) {
	r := newAuthRouter(t)
	cases := []struct {
		name       string
		path       string
		header     string
		query      string
		wantStatus int
		wantCode   string
		wantRole   string
	}{
		{"missing token", "/me", "", "", http.StatusUnauthorized, "unauthorized", ""},
		{"bad token", "/me", "Bearer nope", "", http.StatusUnauthorized, "unauthorized", ""},
		{"bearer student", "/me", "Bearer student", "", http.StatusOK, "", "student"},
		{"query token", "/me", "", "?token=admin", http.StatusOK, "", "admin"},
		{"student on admin route", "/admin", "Bearer student", "", http.StatusForbidden, "forbidden", ""},
		{"admin on admin route", "/admin", "bearer admin", "", http.StatusOK, "", "admin"},
		{"public anonymous", "/public", "", "", http.StatusOK, "", ""},
		{"public bad token ignored", "/public", "Bearer nope", "", http.StatusOK, "", ""},
		{"public with identity", "/public", "Bearer student", "", http.StatusOK, "", "student"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tc.path+tc.query, nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, req)
			if rec.Code != tc.wantStatus {
				t.Fatalf("status=%d want %d body=%s", rec.Code, tc.wantStatus, rec.Body.String())
			}
			if tc.wantCode != "" {
				var env response.ErrorEnvelope
				if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
					t.Fatalf("decode envelope: %v", err)
				}
				if env.Error.Code != tc.wantCode {
					t.Fatalf("code=%q want %q", env.Error.Code, tc.wantCode)
				}
				return
			}
			var body struct {
				Role string `json:"role"`
			}
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body.Role != tc.wantRole {
				t.Fatalf("role=%q want %q", body.Role, tc.wantRole)
			}
		})
	}
}

func TestTraceContextEchoesRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(AttachTraceContext())
	var seen *ctxutil.TraceData
	r.GET("/x", func(c *gin.Context) {
		seen = ctxutil.GetTraceData(c.Request.Context())
		c.Status(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set(headerRequestID, "req-123")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if got := rec.Header().Get(headerRequestID); got != "req-123" {
		t.Fatalf("request id header=%q", got)
	}
	if rec.Header().Get(headerTraceID) == "" {
		t.Fatalf("trace id header missing")
	}
	if seen == nil || seen.RequestID != "req-123" || seen.TraceID == "" {
		t.Fatalf("trace data=%+v", seen)
	}
}

func TestMetricsMiddlewareLabelsUnmatched(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := observability.New()
	r := gin.New()
	r.Use(Metrics(m))
	r.GET("/api/courses/:id", func(c *gin.Context) { c.Status(http.StatusOK) })

	for _, p := range []string{"/api/courses/abc", "/wp-admin.php"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, p, nil))
	}
	var buf bytes.Buffer
	if err := m.WritePrometheus(&buf); err != nil {
		t.Fatalf("WritePrometheus: %v", err)
	}
	out := buf.String()
	for _, want := range []string{`route="/api/courses/:id",status="200"`, `route="unmatched",status="404"`} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %s in\n%s", want, out)
		}
	}
}
