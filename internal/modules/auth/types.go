package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/lexiflow/core/internal/models"
)

type SignUpRequest struct {
	Email       string `json:"email"        validate:"required,max=254,email"`
	Password    string `json:"password"     validate:"required,min=8,max=128"`
	DisplayName string `json:"display_name" validate:"max=100"`
}

func (r *SignUpRequest) Normalize() {
	r.Email = strings.ToLower(strings.TrimSpace(r.Email))
	r.DisplayName = strings.TrimSpace(r.DisplayName)
}

type SignInRequest struct {
	Email    string `json:"email"    validate:"required,max=254"`
	Password string `json:"password" validate:"required,max=128"`
}

func (r *SignInRequest) Normalize() {
	r.Email = strings.ToLower(strings.TrimSpace(r.Email))
}

// UserView is the public projection of a user.
type UserView struct {
	ID           string     `json:"id"`
	Email        string     `json:"email"`
	DisplayName  string     `json:"display_name"`
	Tier         string     `json:"tier"`
	CreatedAt    time.Time  `json:"created_at"`
	LastSignInAt *time.Time `json:"last_sign_in_at"`
}

func toView(u *models.User) *UserView {
	if u == nil {
		return nil
	}
	return &UserView{
		ID:           u.ID,
		Email:        u.Email,
		DisplayName:  u.DisplayName,
		Tier:         u.Tier,
		CreatedAt:    u.CreatedAt,
		LastSignInAt: u.LastSignInAt,
	}
}

type authResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	User      *UserView `json:"user"`
}

type sessionView struct {
	ID        string    `json:"id"`
	IP        string    `json:"ip"`
	UA        string    `json:"ua"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	ExpiresAt time.Time `json:"expires_at"`
	Current   bool      `json:"current"`
}

var (
	errBadCredentials = errors.New("auth: bad credentials")
	errEmailTaken     = errors.New("auth: email taken")
)

func displayName(name, email string) string {
	if strings.TrimSpace(name) != "" {
		return name
	}
	if at := strings.IndexByte(email, '@'); at > 0 {
		return email[:at]
	}
	return email
}
