package services

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/yungbote/coursehub-backend/internal/data/dberr"
	"github.com/yungbote/coursehub-backend/internal/data/repos"
	types "github.com/yungbote/coursehub-backend/internal/domain"
	"github.com/yungbote/coursehub-backend/internal/pkg/dbctx"
	"github.com/yungbote/coursehub-backend/internal/platform/apierr"
	"github.com/yungbote/coursehub-backend/internal/platform/ctxutil"
	"github.com/yungbote/coursehub-backend/internal/platform/logger"
)

const minPasswordLength = 8

type RegisterInput struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

type TokenPair struct {
	AccessToken  string      `json:"access_token"`
	RefreshToken string      `json:"refresh_token"`
	ExpiresAt    time.Time   `json:"expires_at"`
	User         *types.User `json:"user"`
}

type AuthConfig struct {
	JWTSecretKey string
	AccessTTL    time.Duration
	RefreshTTL   time.Duration
	// AdminEmails are promoted to admin on registration.
	AdminEmails []string
}

type AuthService interface {
	Register(dbc dbctx.Context, in RegisterInput) (*types.User, error)
	Login(dbc dbctx.Context, email, password string) (*TokenPair, error)
	Refresh(dbc dbctx.Context, refreshToken string) (*TokenPair, error)
	Logout(dbc dbctx.Context, accessToken string) error
	SetContextFromToken(ctx context.Context, tokenString string) (context.Context, error)
	GetAccessTTL() time.Duration
}

type authService struct {
	db            *gorm.DB
	log           *logger.Logger
	userRepo      repos.UserRepo
	userTokenRepo repos.UserTokenRepo
	cfg           AuthConfig
	admins        map[string]struct{}
	now           func() time.Time
}

type accessClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

func NewAuthService(db *gorm.DB, log *logger.Logger, userRepo repos.UserRepo, userTokenRepo repos.UserTokenRepo, cfg AuthConfig) AuthService {
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = time.Hour
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = 30 * 24 * time.Hour
	}
	admins := map[string]struct{}{}
	for _, e := range cfg.AdminEmails {
		if e = strings.ToLower(strings.TrimSpace(e)); e != "" {
			admins[e] = struct{}{}
		}
	}
	return &authService{
		db:            db,
		log:           log.With("service", "AuthService"),
		userRepo:      userRepo,
		userTokenRepo: userTokenRepo,
		cfg:           cfg,
		admins:        admins,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

func (as *authService) GetAccessTTL() time.Duration { return as.cfg.AccessTTL }

func (as *authService) Register(dbc dbctx.Context, in RegisterInput) (*types.User, error) {
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if _, err := mail.ParseAddress(email); err != nil || !strings.Contains(email, "@") {
		return nil, apierr.Wrap(apierr.ErrInvalidArgument, "valid email required")
	}
	if len(in.Password) < minPasswordLength {
		return nil, apierr.Wrap(apierr.ErrInvalidArgument, "password must be at least %d characters", minPasswordLength)
	}
	existing, err := as.userRepo.GetByEmail(dbc, email)
	if err != nil {
		return nil, dberr.Map("lookup email", err)
	}
	if existing != nil {
		return nil, apierr.Wrap(apierr.ErrConflict, "email already registered")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	role := types.RoleStudent
	if _, ok := as.admins[email]; ok {
		role = types.RoleAdmin
	}
	u := &types.User{
		Email:     email,
		Password:  string(hash),
		FirstName: strings.TrimSpace(in.FirstName),
		LastName:  strings.TrimSpace(in.LastName),
		Role:      role,
	}
	if _, err := as.userRepo.Create(dbc, []*types.User{u}); err != nil {
		if dberr.IsUniqueViolation(err) {
			return nil, apierr.Wrap(apierr.ErrConflict, "email already registered")
		}
		return nil, dberr.Map("create user", err)
	}
	as.log.Info("User registered", "user_id", u.ID, "role", u.Role)
	return u, nil
}

func (as *authService) Login(dbc dbctx.Context, email, password string) (*TokenPair, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return nil, apierr.Wrap(apierr.ErrInvalidArgument, "email and password required")
	}
	u, err := as.userRepo.GetByEmail(dbc, email)
	if err != nil {
		return nil, dberr.Map("lookup email", err)
	}
	if u == nil {
		return nil, apierr.Wrap(apierr.ErrUnauthorized, "invalid credentials")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.Password), []byte(password)); err != nil {
		return nil, apierr.Wrap(apierr.ErrUnauthorized, "invalid credentials")
	}
	return as.issue(dbc, u)
}

func (as *authService) Refresh(dbc dbctx.Context, refreshToken string) (*TokenPair, error) {
	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" {
		return nil, apierr.Wrap(apierr.ErrInvalidArgument, "refresh token required")
	}
	var out *TokenPair
	err := as.db.WithContext(dbc.Ctx).Transaction(func(txx *gorm.DB) error {
		inner := dbctx.Context{Ctx: dbc.Ctx, Tx: txx}
		existing, err := as.userTokenRepo.GetByRefreshToken(inner, refreshToken)
		if err != nil {
			return dberr.Map("lookup refresh token", err)
		}
		if existing == nil {
			return apierr.Wrap(apierr.ErrUnauthorized, "unknown refresh token")
		}
		if existing.ExpiresAt.Before(as.now()) {
			return apierr.Wrap(apierr.ErrUnauthorized, "refresh token expired")
		}
		// Rotation: the presented pair is consumed.
		if err := as.userTokenRepo.DeleteByIDs(inner, []uuid.UUID{existing.ID}); err != nil {
			return dberr.Map("delete token", err)
		}
		users, err := as.userRepo.GetByIDs(inner, []uuid.UUID{existing.UserID})
		if err != nil {
			return dberr.Map("load user", err)
		}
		if len(users) == 0 {
			return apierr.Wrap(apierr.ErrUnauthorized, "user no longer exists")
		}
		out, err = as.issue(inner, users[0])
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (as *authService) Logout(dbc dbctx.Context, accessToken string) error {
	tok, err := as.userTokenRepo.GetByAccessToken(dbc, strings.TrimSpace(accessToken))
	if err != nil {
		return dberr.Map("lookup token", err)
	}
	if tok == nil {
		return nil
	}
	if err := as.userTokenRepo.DeleteByIDs(dbc, []uuid.UUID{tok.ID}); err != nil {
		return dberr.Map("delete token", err)
	}
	return nil
}

// SetContextFromToken validates the JWT and that its session still exists,
// then attaches the identity to ctx.
func (as *authService) SetContextFromToken(ctx context.Context, tokenString string) (context.Context, error) {
	tokenString = strings.TrimSpace(tokenString)
	if tokenString == "" {
		return ctx, apierr.Wrap(apierr.ErrUnauthorized, "missing token")
	}
	claims := &accessClaims{}
	parsed, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return []byte(as.cfg.JWTSecretKey), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(as.now))
	if err != nil || !parsed.Valid {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return ctx, apierr.Wrap(apierr.ErrUnauthorized, "token expired")
		}
		return ctx, apierr.Wrap(apierr.ErrUnauthorized, "invalid token")
	}
	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return ctx, apierr.Wrap(apierr.ErrUnauthorized, "invalid token subject")
	}
	tok, err := as.userTokenRepo.GetByAccessToken(dbctx.New(ctx), tokenString)
	if err != nil {
		return ctx, dberr.Map("lookup token", err)
	}
	if tok == nil || tok.UserID != userID {
		return ctx, apierr.Wrap(apierr.ErrUnauthorized, "session ended")
	}
	return ctxutil.WithRequestData(ctx, &ctxutil.RequestData{
		TokenString: tokenString,
		UserID:      userID,
		Role:        claims.Role,
	}), nil
}

func (as *authService) issue(dbc dbctx.Context, u *types.User) (*TokenPair, error) {
	now := as.now()
	exp := now.Add(as.cfg.AccessTTL)
	claims := accessClaims{
		Role: u.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.ID.String(),
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	access, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(as.cfg.JWTSecretKey))
	if err != nil {
		return nil, fmt.Errorf("sign access token: %w", err)
	}
	row := &types.UserToken{
		UserID:       u.ID,
		AccessToken:  access,
		RefreshToken: uuid.NewString(),
		ExpiresAt:    now.Add(as.cfg.RefreshTTL),
	}
	if _, err := as.userTokenRepo.Create(dbc, []*types.UserToken{row}); err != nil {
		return nil, dberr.Map("create token", err)
	}
	return &TokenPair{AccessToken: access, RefreshToken: row.RefreshToken, ExpiresAt: exp, User: u}, nil
}
