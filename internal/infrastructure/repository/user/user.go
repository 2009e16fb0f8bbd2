package user

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	user_domain "github.com/reworx/mailorder/internal/domain/user"
	"golang.org/x/oauth2"
)

type userRepo struct {
	db *sql.DB
}

var _ user_domain.UserRepo = (*userRepo)(nil)

func NewUserRepo(dbConn *sql.DB) user_domain.UserRepo {
	return &userRepo{db: dbConn}
}

func (r *userRepo) CreateUser(ctx context.Context, user *user_domain.User) error {
	if user.ID == "" {
		user.ID = uuid.New().String()
	}

	var gmailAccessToken, gmailRefreshToken sql.NullString
	var gmailTokenExpiresAt sql.NullInt64

	if user.GmailAccessToken != nil {
		gmailAccessToken = sql.NullString{String: *user.GmailAccessToken, Valid: true}
	}
	if user.GmailRefreshToken != nil {
		gmailRefreshToken = sql.NullString{String: *user.GmailRefreshToken, Valid: true}
	}
	if user.GmailTokenExpiresAt != nil {
		gmailTokenExpiresAt = sql.NullInt64{Int64: *user.GmailTokenExpiresAt, Valid: true}
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO users (id, email, gmail_access_token, gmail_refresh_token, gmail_token_expires_at, is_active)
		VALUES (?, ?, ?, ?, ?, TRUE)`,
		user.ID, user.Email, gmailAccessToken, gmailRefreshToken, gmailTokenExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}

	return nil
}

func (r *userRepo) GetUserByID(ctx context.Context, userID string) (*user_domain.User, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, email, gmail_access_token, gmail_refresh_token, gmail_token_expires_at, is_active, created_at, updated_at
		FROM users WHERE id = ?`, userID)

	user, err := scanUser(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get user by id: %w", err)
	}
	return user, nil
}

func (r *userRepo) UpdateGmailTokens(ctx context.Context, userID string, token *oauth2.Token) error {
	var accessToken, refreshToken sql.NullString
	var expiresAt sql.NullInt64

	if token.AccessToken != "" {
		accessToken = sql.NullString{String: token.AccessToken, Valid: true}
	}
	if token.RefreshToken != "" {
		refreshToken = sql.NullString{String: token.RefreshToken, Valid: true}
	}
	if !token.Expiry.IsZero() {
		expiresAt = sql.NullInt64{Int64: token.Expiry.Unix(), Valid: true}
	}

	_, err := r.db.ExecContext(ctx, `
		UPDATE users
		SET gmail_access_token = ?, gmail_refresh_token = ?, gmail_token_expires_at = ?, updated_at = NOW()
		WHERE id = ?`,
		accessToken, refreshToken, expiresAt, userID,
	)
	if err != nil {
		return fmt.Errorf("failed to update gmail tokens: %w", err)
	}

	return nil
}

func scanUser(row *sql.Row) (*user_domain.User, error) {
	var (
		user                 user_domain.User
		gmailAccessToken     sql.NullString
		gmailRefreshToken    sql.NullString
		gmailTokenExpiresAt  sql.NullInt64
		isActive             sql.NullBool
		createdAt, updatedAt sql.NullTime
	)

	if err := row.Scan(&user.ID, &user.Email, &gmailAccessToken, &gmailRefreshToken,
		&gmailTokenExpiresAt, &isActive, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	user.IsActive = isActive.Bool
	if gmailAccessToken.Valid {
		token := gmailAccessToken.String
		user.GmailAccessToken = &token
	}
	if gmailRefreshToken.Valid {
		token := gmailRefreshToken.String
		user.GmailRefreshToken = &token
	}
	if gmailTokenExpiresAt.Valid {
		expiresAt := gmailTokenExpiresAt.Int64
		user.GmailTokenExpiresAt = &expiresAt
	}
	if createdAt.Valid {
		user.CreatedAt = createdAt.Time
	}
	if updatedAt.Valid {
		user.UpdatedAt = updatedAt.Time
	}

	return &user, nil
}
