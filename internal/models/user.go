package models

import (
	"fmt"
	"time"

	"github.com/desertthunder/moodmusic/internal/shared"
	"golang.org/x/oauth2"
)

// User is the account whose library is mirrored, along with its stored OAuth token.
type User struct {
	ID           string     `db:"id" json:"id"`
	DisplayName  string     `db:"display_name" json:"display_name"`
	AccessToken  string     `db:"access_token" json:"-"`
	RefreshToken string     `db:"refresh_token" json:"-"`
	TokenType    string     `db:"token_type" json:"-"`
	TokenExpiry  *time.Time `db:"token_expiry" json:"-"`
	SyncedAt     *time.Time `db:"synced_at" json:"synced_at,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
}

func (u *User) Validate() error {
	if u.ID == "" {
		return fmt.Errorf("%w: user id is required", shared.ErrInvalidInput)
	}
	return nil
}

// Token rebuilds the stored [oauth2.Token].
func (u *User) Token() *oauth2.Token {
	tok := &oauth2.Token{
		AccessToken:  u.AccessToken,
		RefreshToken: u.RefreshToken,
		TokenType:    u.TokenType,
	}
	if u.TokenExpiry != nil {
		tok.Expiry = *u.TokenExpiry
	}
	return tok
}

// SetToken copies tok into the stored token fields.
func (u *User) SetToken(tok *oauth2.Token) {
	u.AccessToken = tok.AccessToken
	u.RefreshToken = tok.RefreshToken
	u.TokenType = tok.TokenType
	if tok.Expiry.IsZero() {
		u.TokenExpiry = nil
	} else {
		exp := tok.Expiry
		u.TokenExpiry = &exp
	}
}

// Credential returns the bearer credential for this user.
func (u *User) Credential() Credential {
	return Credential{UserID: u.ID, Token: u.Token()}
}
