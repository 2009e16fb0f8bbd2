package user

import (
	"context"
	"time"

	"golang.org/x/oauth2"
)

type User struct {
	ID                  string
	Email               string
	GmailAccessToken    *string
	GmailRefreshToken   *string
	GmailTokenExpiresAt *int64
	IsActive            bool
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

type UserRepo interface {
	CreateUser(ctx context.Context, user *User) error
	GetUserByID(ctx context.Context, userID string) (*User, error)
	UpdateGmailTokens(ctx context.Context, userID string, token *oauth2.Token) error
}
