package services

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/base64"
	"fmt"
	"image/png"
	"log"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/raspadita/backend/internal/models"
	"github.com/skip2/go-qrcode"
	"github.com/spf13/viper"
)

const inviteTTL = 72 * time.Hour

// RegistryService owns the accounts table: one role per principal, role
// changes as idempotent upserts, never hard-deleted.
type RegistryService struct {
	db    *sql.DB
	redis *redis.Client
}

func NewRegistryService(db *sql.DB, redisClient *redis.Client) *RegistryService {
	return &RegistryService{db: db, redis: redisClient}
}

func (s *RegistryService) FindByID(id string) (*models.Account, error) {
	a := &models.Account{}
	err := s.db.QueryRow(`
		SELECT id, email, role, created_at
		FROM accounts
		WHERE id = $1`, id).Scan(&a.ID, &a.Email, &a.Role, &a.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find account by id: %w", err)
	}
	return a, nil
}

// FindByEmail treats email as a lookup key within the app even though the
// identity layer does not guarantee uniqueness; the table does.
func (s *RegistryService) FindByEmail(email string) (*models.Account, error) {
	a := &models.Account{}
	err := s.db.QueryRow(`
		SELECT id, email, role, created_at
		FROM accounts
		WHERE email = $1`, normalizeEmail(email)).Scan(&a.ID, &a.Email, &a.Role, &a.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find account by email: %w", err)
	}
	return a, nil
}

// UpsertRole creates the account or overwrites its role. Promoting an
// existing player to cashier updates the row in place, never duplicates it.
func (s *RegistryService) UpsertRole(id, email string, role models.Role) error {
	_, err := s.db.Exec(`
		INSERT INTO accounts (id, email, role, created_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (id) DO UPDATE SET role = EXCLUDED.role, email = EXCLUDED.email`,
		id, normalizeEmail(email), string(role))
	if err != nil {
		return fmt.Errorf("upsert role: %w", err)
	}
	return nil
}

func (s *RegistryService) ListByRole(role models.Role) ([]models.Account, error) {
	rows, err := s.db.Query(`
		SELECT id, email, role, created_at
		FROM accounts
		WHERE role = $1
		ORDER BY email`, string(role))
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()

	var accounts []models.Account
	for rows.Next() {
		var a models.Account
		if err := rows.Scan(&a.ID, &a.Email, &a.Role, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		accounts = append(accounts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate accounts: %w", err)
	}
	return accounts, nil
}

// InviteResult reports what happened when an email was invited or promoted.
type InviteResult struct {
	AccountID  string `json:"account_id"`
	Invited    bool   `json:"invited"`
	InviteLink string `json:"invite_link,omitempty"`
	InviteQR   string `json:"invite_qr,omitempty"` // base64 PNG of the invite link
}

// Invite upserts an account for the email with the given role. A brand-new
// email gets an invite token (stored in Redis until accepted) plus a QR image
// of the accept link for the console to display; an existing account only has
// its role upserted.
func (s *RegistryService) Invite(ctx context.Context, email string, role models.Role) (*InviteResult, error) {
	email = normalizeEmail(email)

	existing, err := s.FindByEmail(email)
	if err == nil {
		if err := s.UpsertRole(existing.ID, email, role); err != nil {
			return nil, err
		}
		return &InviteResult{AccountID: existing.ID, Invited: false}, nil
	}
	if err != ErrAccountNotFound {
		return nil, err
	}

	accountID := uuid.NewString()
	if err := s.UpsertRole(accountID, email, role); err != nil {
		return nil, err
	}

	result := &InviteResult{AccountID: accountID, Invited: true}

	token := uuid.NewString()
	if s.redis != nil {
		key := fmt.Sprintf("invite:%s", token)
		if err := s.redis.Set(ctx, key, accountID, inviteTTL).Err(); err != nil {
			log.Printf("[REGISTRY] Failed to store invite token for %s: %v", email, err)
			return result, nil
		}
	}

	link := fmt.Sprintf("%s/accept-invite?token=%s", siteURL(), token)
	result.InviteLink = link

	qrImage, err := encodeInviteQR(link)
	if err != nil {
		log.Printf("[REGISTRY] Failed to render invite QR for %s: %v", email, err)
		return result, nil
	}
	result.InviteQR = qrImage

	return result, nil
}

// ResolveInvite exchanges an invite token for the account id it was issued
// for, consuming the token.
func (s *RegistryService) ResolveInvite(ctx context.Context, token string) (string, error) {
	if s.redis == nil {
		return "", ErrInviteNotFound
	}
	key := fmt.Sprintf("invite:%s", token)
	accountID, err := s.redis.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", ErrInviteNotFound
	}
	if err != nil {
		return "", fmt.Errorf("resolve invite: %w", err)
	}
	s.redis.Del(ctx, key)
	return accountID, nil
}

func encodeInviteQR(link string) (string, error) {
	qr, err := qrcode.New(link, qrcode.Medium)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, qr.Image(256)); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

func siteURL() string {
	viper.SetDefault("site.url", "http://localhost:3000")
	return viper.GetString("site.url")
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
