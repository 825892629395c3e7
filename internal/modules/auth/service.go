package auth

import (
	"context"
	"errors"
	"time"

	"github.com/lexiflow/core/internal/middleware"
	"github.com/lexiflow/core/internal/models"
	"github.com/lexiflow/core/internal/pkg/apperr"
	"github.com/lexiflow/core/internal/pkg/querycache"
	"github.com/lexiflow/core/internal/pkg/querykey"
	sessionpkg "github.com/lexiflow/core/internal/pkg/session"
	"github.com/lexiflow/core/internal/pkg/store"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// Service owns accounts and their sign-in sessions. It is the token verifier
// used by the auth middleware and the page guard.
type Service struct {
	users       *store.Table[models.User]
	sessions    *sessionpkg.Manager
	cache       *querycache.Cache
	defaultTier string
	log         *zap.Logger
	bcryptCost  int
}

func NewService(db *gorm.DB, sessions *sessionpkg.Manager, cache *querycache.Cache, defaultTier string, log *zap.Logger) *Service {
	return &Service{
		users:       store.NewTable[models.User](db),
		sessions:    sessions,
		cache:       cache,
		defaultTier: defaultTier,
		log:         log,
		bcryptCost:  bcrypt.DefaultCost,
	}
}

// SignUp creates an account and signs it in.
func (s *Service) SignUp(ctx context.Context, req *SignUpRequest, ip, ua string) (*models.User, string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.bcryptCost)
	if err != nil {
		return nil, "", err
	}
	u := &models.User{
		Email:        req.Email,
		PasswordHash: string(hash),
		DisplayName:  displayName(req.DisplayName, req.Email),
		Tier:         s.defaultTier,
	}
	if err := s.users.Insert(ctx, u); err != nil {
		if store.IsUniqueViolation(err) {
			return nil, "", errEmailTaken
		}
		return nil, "", err
	}
	token, err := s.startSession(ctx, u, ip, ua)
	if err != nil {
		return nil, "", err
	}
	return u, token, nil
}

// SignIn checks credentials and opens a new session.
func (s *Service) SignIn(ctx context.Context, req *SignInRequest, ip, ua string) (*models.User, string, error) {
	u, err := s.users.First(ctx, []store.Filter{store.Eq("email", req.Email)})
	if err != nil {
		if store.IsNotFound(err) {
			s.log.Info("sign-in failed: unknown email", zap.String("email", req.Email))
			return nil, "", errBadCredentials
		}
		return nil, "", err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(req.Password)); err != nil {
		s.log.Info("sign-in failed: wrong password", zap.String("email", req.Email))
		return nil, "", errBadCredentials
	}
	token, err := s.startSession(ctx, u, ip, ua)
	if err != nil {
		return nil, "", err
	}
	return u, token, nil
}

func (s *Service) startSession(ctx context.Context, u *models.User, ip, ua string) (string, error) {
	token, _, err := s.sessions.Issue(ctx, u.ID, ip, ua)
	if err != nil {
		return "", err
	}
	now := time.Now()
	if _, err := s.users.Update(ctx, map[string]any{
		"last_sign_in_at": now,
		"last_sign_in_ip": ip,
	}, store.Eq("id", u.ID)); err != nil {
		s.log.Warn("record sign-in failed", zap.String("user_id", u.ID), zap.Error(err))
	}
	u.LastSignInAt = &now
	s.cache.InvalidateQuiet(ctx, querykey.Auth.All().Scope(u.ID))
	return token, nil
}

// SignOut revokes the caller's current session.
func (s *Service) SignOut(ctx context.Context, userID, sessionID string) error {
	if sessionID == "" {
		return nil
	}
	err := s.sessions.Revoke(ctx, userID, sessionID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}
	s.cache.InvalidateQuiet(ctx, querykey.Auth.Session().Scope(userID))
	return nil
}

// VerifyToken resolves a bearer token. Any failure is AuthInvalid.
func (s *Service) VerifyToken(ctx context.Context, token string) (*middleware.Identity, error) {
	claims, err := s.sessions.Verify(ctx, token)
	if err != nil {
		return nil, apperr.AuthInvalid(err)
	}
	s.sessions.Touch(ctx, claims.UserID, claims.SessionID)
	return &middleware.Identity{UserID: claims.UserID, SessionID: claims.SessionID}, nil
}

// Session resolves a cookie token. Absent or unusable tokens yield a nil
// identity and no error.
func (s *Service) Session(ctx context.Context, token string) (*middleware.Identity, error) {
	if token == "" {
		return nil, nil
	}
	claims, err := s.sessions.Verify(ctx, token)
	if err != nil {
		return nil, nil
	}
	return &middleware.Identity{UserID: claims.UserID, SessionID: claims.SessionID}, nil
}

// User loads an account by id.
func (s *Service) User(ctx context.Context, userID string) (*models.User, error) {
	return querycache.Fetch(ctx, s.cache, querykey.Auth.User().Scope(userID), func(ctx context.Context) (*models.User, error) {
		u, err := s.users.First(ctx, []store.Filter{store.Eq("id", userID)})
		if err != nil {
			if store.IsNotFound(err) {
				return nil, apperr.NotFound("User not found")
			}
			return nil, err
		}
		return u, nil
	})
}

// TierOf returns the subscription tier of a user.
func (s *Service) TierOf(ctx context.Context, userID string) (string, error) {
	u, err := s.User(ctx, userID)
	if err != nil {
		return "", err
	}
	return u.Tier, nil
}

func (s *Service) ListSessions(ctx context.Context, userID string) ([]models.UserSession, error) {
	return s.sessions.ListActive(ctx, userID)
}

func (s *Service) RevokeSession(ctx context.Context, userID, sessionID string) error {
	if err := s.sessions.Revoke(ctx, userID, sessionID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperr.NotFound("Session not found")
		}
		return err
	}
	return nil
}

func (s *Service) RevokeOtherSessions(ctx context.Context, userID, keepSessionID string) error {
	return s.sessions.RevokeAllExcept(ctx, userID, keepSessionID)
}

// SessionTTL is how long issued tokens stay valid.
func (s *Service) SessionTTL() time.Duration { return s.sessions.TTL() }
