package session

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/lexiflow/core/internal/models"
	jwtpkg "github.com/lexiflow/core/internal/pkg/jwt"
	"gorm.io/gorm"
)

const DefaultTTL = 14 * 24 * time.Hour

// ErrRevoked is returned for a well-formed token whose session ended.
var ErrRevoked = errors.New("session expired or revoked")

// Manager persists sign-in sessions and issues tokens bound to them.
type Manager struct {
	db     *gorm.DB
	signer *jwtpkg.Signer
	ttl    time.Duration
}

func NewManager(db *gorm.DB, signer *jwtpkg.Signer, ttl time.Duration) *Manager {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Manager{db: db, signer: signer, ttl: ttl}
}

// TTL returns how long issued sessions live.
func (m *Manager) TTL() time.Duration { return m.ttl }

// Issue creates a DB session and signs a JWT bound to that session.
func (m *Manager) Issue(ctx context.Context, userID, ip, ua string) (string, *models.UserSession, error) {
	s := &models.UserSession{
		UserID:    userID,
		IP:        strings.TrimSpace(ip),
		UA:        strings.TrimSpace(ua),
		ExpiresAt: time.Now().Add(m.ttl),
	}
	if err := m.db.WithContext(ctx).Create(s).Error; err != nil {
		return "", nil, err
	}

	token, err := m.signer.Sign(userID, s.ID, m.ttl)
	if err != nil {
		_ = m.db.WithContext(ctx).Delete(s).Error
		return "", nil, err
	}
	return token, s, nil
}

// Verify parses token and checks that its session is still active.
func (m *Manager) Verify(ctx context.Context, token string) (*jwtpkg.Claims, error) {
	claims, err := m.signer.Parse(token)
	if err != nil {
		return nil, err
	}
	active, err := m.IsActive(ctx, claims.UserID, claims.SessionID)
	if err != nil {
		return nil, err
	}
	if !active {
		return nil, ErrRevoked
	}
	return claims, nil
}

func (m *Manager) IsActive(ctx context.Context, userID, sessionID string) (bool, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return false, nil
	}

	var count int64
	err := m.db.WithContext(ctx).Model(&models.UserSession{}).
		Where("id = ? AND user_id = ? AND revoked_at IS NULL AND expires_at > ?", sessionID, userID, time.Now()).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (m *Manager) Touch(ctx context.Context, userID, sessionID string) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return
	}
	_ = m.db.WithContext(ctx).Model(&models.UserSession{}).
		Where("id = ? AND user_id = ? AND revoked_at IS NULL", sessionID, userID).
		Update("updated_at", time.Now()).Error
}

func (m *Manager) ListActive(ctx context.Context, userID string) ([]models.UserSession, error) {
	sessions := make([]models.UserSession, 0)
	err := m.db.WithContext(ctx).
		Where("user_id = ? AND revoked_at IS NULL AND expires_at > ?", userID, time.Now()).
		Order("updated_at DESC, created_at DESC").
		Find(&sessions).Error
	return sessions, err
}

func (m *Manager) Revoke(ctx context.Context, userID, sessionID string) error {
	now := time.Now()
	res := m.db.WithContext(ctx).Model(&models.UserSession{}).
		Where("id = ? AND user_id = ? AND revoked_at IS NULL", sessionID, userID).
		Update("revoked_at", &now)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (m *Manager) RevokeAllExcept(ctx context.Context, userID, keepSessionID string) error {
	now := time.Now()
	query := m.db.WithContext(ctx).Model(&models.UserSession{}).
		Where("user_id = ? AND revoked_at IS NULL", userID)
	if strings.TrimSpace(keepSessionID) != "" {
		query = query.Where("id <> ?", keepSessionID)
	}
	return query.Update("revoked_at", &now).Error
}

// Prune deletes sessions that expired or were revoked before cutoff.
func (m *Manager) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res := m.db.WithContext(ctx).
		Where("expires_at < ? OR revoked_at < ?", cutoff, cutoff).
		Delete(&models.UserSession{})
	return res.RowsAffected, res.Error
}
