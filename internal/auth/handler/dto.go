package handler

import (
	"strings"
	"time"

	"warden/internal/auth/models"
	platformvalidation "warden/pkg/platform/validation"
	"warden/pkg/validation"
)

// RegisterRequest is the body of POST /auth/register.
type RegisterRequest struct {
	AccountID string `json:"account_id" validate:"required,notblank,accountid,max=255"`
	Password  string `json:"password" validate:"required,min=8,max=128"`
}

func (r *RegisterRequest) Normalize() {
	r.AccountID = models.NormalizeAccountID(r.AccountID)
}

func (r *RegisterRequest) Validate() error {
	return validation.Validate(r)
}

// LoginRequest is the body of POST /auth/login. Passwords are not trimmed.
type LoginRequest struct {
	AccountID string `json:"account_id" validate:"required,notblank"`
	Password  string `json:"password" validate:"required"`
}

func (r *LoginRequest) Sanitize() {
	r.AccountID = strings.TrimSpace(r.AccountID)
}

func (r *LoginRequest) Validate() error {
	if err := platformvalidation.CheckStringLength("account_id", r.AccountID, platformvalidation.MaxAccountIDLength); err != nil {
		return err
	}
	if err := platformvalidation.CheckStringLength("password", r.Password, platformvalidation.MaxPasswordLength); err != nil {
		return err
	}
	return validation.Validate(r)
}

type AccountResponse struct {
	AccountID string    `json:"account_id"`
	CreatedAt time.Time `json:"created_at"`
}

type TokenResponse struct {
	AccessToken  string    `json:"access_token"`
	TokenType    string    `json:"token_type"`
	ExpiresIn    int64     `json:"expires_in"`
	ExpiresAt    time.Time `json:"expires_at"`
	RehashNeeded bool      `json:"rehash_needed,omitempty"`
}

type MeResponse struct {
	AccountID string `json:"account_id"`
	TokenID   string `json:"token_id,omitempty"`
}
