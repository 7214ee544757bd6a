package services

import (
	"context"
	cryptorand "crypto/rand"
	"crypto/subtle"
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/go-redis/redis/v8"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/raspadita/backend/internal/models"
	"github.com/spf13/viper"
	"golang.org/x/crypto/argon2"
)

// AuthService is the identity boundary: it turns credentials into a signed
// principal (id + role) that the rest of the system consumes. Self-registered
// accounts default to the player role.
type AuthService struct {
	db        *sql.DB
	redis     *redis.Client
	registry  *RegistryService
	wallets   *WalletService
	validator *validator.Validate
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email" example:"player@example.com"`
	Password string `json:"password" validate:"required,min=6" example:"password123"`
}

type RegisterRequest struct {
	Email    string `json:"email" validate:"required,email" example:"player@example.com"`
	Password string `json:"password" validate:"required,min=6" example:"password123"`
}

type AcceptInviteRequest struct {
	Token    string `json:"token" validate:"required,uuid"`
	Password string `json:"password" validate:"required,min=6"`
}

type AuthResponse struct {
	Token string         `json:"token" example:"eyJhbGciOiJIUzI1NiIsInR5cCI6IkpXVCJ9..."`
	User  models.Account `json:"user"`
}

func NewAuthService(db *sql.DB, redisClient *redis.Client, registry *RegistryService, wallets *WalletService) *AuthService {
	viper.SetDefault("argon2.time", 1)
	viper.SetDefault("argon2.memory", 64*1024)
	viper.SetDefault("argon2.threads", 4)
	viper.SetDefault("argon2.key_length", 32)
	viper.SetDefault("argon2.salt_length", 16)
	viper.SetDefault("jwt.expiry_hours", 24)

	return &AuthService{
		db:        db,
		redis:     redisClient,
		registry:  registry,
		wallets:   wallets,
		validator: validator.New(),
	}
}

// Register handles player self-registration
// @Summary Register a new player
// @Description Create a player account with email and password
// @Tags auth
// @Accept json
// @Produce json
// @Param request body RegisterRequest true "Registration request"
// @Success 200 {object} AuthResponse "Registration successful"
// @Failure 400 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse "Email already registered"
// @Router /auth/register [post]
func (s *AuthService) Register(w http.ResponseWriter, r *http.Request) {
	log.Printf("[AUTH] Registration attempt from IP: %s", r.RemoteAddr)

	var req RegisterRequest
	if !s.decodeBody(w, r, &req) {
		return
	}

	hashedPassword, err := hashPassword(req.Password)
	if err != nil {
		log.Printf("[AUTH] Password hashing failed for %s: %v", req.Email, err)
		SendErrorResponse(w, "An internal error occurred", http.StatusInternalServerError, nil)
		return
	}

	accountID := uuid.NewString()
	email := normalizeEmail(req.Email)

	tx, err := s.db.Begin()
	if err != nil {
		log.Printf("[AUTH] Transaction start failed for %s: %v", email, err)
		SendErrorResponse(w, "Failed to create account", http.StatusInternalServerError, nil)
		return
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO accounts (id, email, password_hash, role, created_at)
		VALUES ($1, $2, $3, $4, NOW())`,
		accountID, email, hashedPassword, string(models.RolePlayer))
	if err != nil {
		log.Printf("[AUTH] Account creation failed for %s: %v", email, err)
		SendErrorResponse(w, "Email already registered", http.StatusConflict, nil)
		return
	}

	if err = s.wallets.EnsureWallet(tx, accountID); err != nil {
		log.Printf("[AUTH] Wallet creation failed for %s: %v", email, err)
		SendErrorResponse(w, "Failed to create account", http.StatusInternalServerError, nil)
		return
	}

	if err = tx.Commit(); err != nil {
		log.Printf("[AUTH] Transaction commit failed for %s: %v", email, err)
		SendErrorResponse(w, "Failed to create account", http.StatusInternalServerError, nil)
		return
	}

	token, err := GenerateJWT(accountID, models.RolePlayer)
	if err != nil {
		log.Printf("[AUTH] JWT generation failed for %s: %v", accountID, err)
		SendErrorResponse(w, "Failed to generate token", http.StatusInternalServerError, nil)
		return
	}

	log.Printf("[AUTH] Account created - ID: %s, Email: %s", accountID, email)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(AuthResponse{
		Token: token,
		User:  models.Account{ID: accountID, Email: email, Role: models.RolePlayer},
	})
}

// Login handles authentication
// @Summary Login
// @Description Authenticate with email and password
// @Tags auth
// @Accept json
// @Produce json
// @Param request body LoginRequest true "Login request"
// @Success 200 {object} AuthResponse "Login successful"
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse "Invalid credentials"
// @Router /auth/login [post]
func (s *AuthService) Login(w http.ResponseWriter, r *http.Request) {
	log.Printf("[AUTH] Login attempt from IP: %s", r.RemoteAddr)

	var req LoginRequest
	if !s.decodeBody(w, r, &req) {
		return
	}

	email := normalizeEmail(req.Email)

	var account models.Account
	var hashedPassword sql.NullString
	err := s.db.QueryRow(`
		SELECT id, email, password_hash, role, created_at
		FROM accounts
		WHERE email = $1`, email).
		Scan(&account.ID, &account.Email, &hashedPassword, &account.Role, &account.CreatedAt)
	if err != nil {
		log.Printf("[AUTH] Account not found for email: %s", email)
		SendErrorResponse(w, "Invalid credentials", http.StatusUnauthorized, nil)
		return
	}

	if !hashedPassword.Valid || !verifyPassword(req.Password, hashedPassword.String) {
		log.Printf("[AUTH] Invalid password for %s", email)
		SendErrorResponse(w, "Invalid credentials", http.StatusUnauthorized, nil)
		return
	}

	token, err := GenerateJWT(account.ID, account.Role)
	if err != nil {
		log.Printf("[AUTH] JWT generation failed for %s: %v", account.ID, err)
		SendErrorResponse(w, "Failed to generate token", http.StatusInternalServerError, nil)
		return
	}

	log.Printf("[AUTH] Login successful for %s (%s)", account.ID, account.Role)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(AuthResponse{Token: token, User: account})
}

// Logout denylists the presented token
// @Summary Logout
// @Description Logout and denylist the bearer token until it expires
// @Tags auth
// @Produce json
// @Success 200 {object} map[string]string "Logout successful"
// @Router /auth/logout [post]
func (s *AuthService) Logout(w http.ResponseWriter, r *http.Request) {
	token := r.Header.Get("Authorization")
	if token != "" && len(token) > 7 {
		token = token[7:] // strip "Bearer "

		if s.redis != nil {
			ctx := context.Background()
			key := fmt.Sprintf("denylist:%s", token)
			expiry := time.Duration(viper.GetInt("jwt.expiry_hours")) * time.Hour
			if err := s.redis.Set(ctx, key, "1", expiry).Err(); err != nil {
				log.Printf("[AUTH] Failed to denylist token: %v", err)
			}
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"message": "Logout successful"})
}

// AcceptInvite sets the password on an invited account
// @Summary Accept an invitation
// @Description Exchange an invite token for a usable account by setting a password
// @Tags auth
// @Accept json
// @Produce json
// @Param request body AcceptInviteRequest true "Invite acceptance"
// @Success 200 {object} AuthResponse
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse "Invite not found or expired"
// @Router /auth/accept-invite [post]
func (s *AuthService) AcceptInvite(w http.ResponseWriter, r *http.Request) {
	var req AcceptInviteRequest
	if !s.decodeBody(w, r, &req) {
		return
	}

	accountID, err := s.registry.ResolveInvite(r.Context(), req.Token)
	if err == ErrInviteNotFound {
		SendErrorResponse(w, "Invite not found or expired", http.StatusNotFound, nil)
		return
	}
	if err != nil {
		log.Printf("[AUTH] Invite resolution failed: %v", err)
		SendErrorResponse(w, "An internal error occurred", http.StatusInternalServerError, nil)
		return
	}

	hashedPassword, err := hashPassword(req.Password)
	if err != nil {
		log.Printf("[AUTH] Password hashing failed for invite %s: %v", accountID, err)
		SendErrorResponse(w, "An internal error occurred", http.StatusInternalServerError, nil)
		return
	}

	_, err = s.db.Exec(`UPDATE accounts SET password_hash = $2 WHERE id = $1`, accountID, hashedPassword)
	if err != nil {
		log.Printf("[AUTH] Password update failed for %s: %v", accountID, err)
		SendErrorResponse(w, "An internal error occurred", http.StatusInternalServerError, nil)
		return
	}

	account, err := s.registry.FindByID(accountID)
	if err != nil {
		log.Printf("[AUTH] Invited account missing: %s", accountID)
		SendErrorResponse(w, "Account not found", http.StatusNotFound, nil)
		return
	}

	token, err := GenerateJWT(account.ID, account.Role)
	if err != nil {
		SendErrorResponse(w, "Failed to generate token", http.StatusInternalServerError, nil)
		return
	}

	log.Printf("[AUTH] Invite accepted for %s (%s)", account.ID, account.Role)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(AuthResponse{Token: token, User: *account})
}

func (s *AuthService) decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	maxBytes := 1_048_576 // 1 MB
	r.Body = http.MaxBytesReader(w, r.Body, int64(maxBytes))

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		SendErrorResponse(w, "Invalid request", http.StatusBadRequest, nil)
		return false
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return false
	}
	if err := s.validator.Struct(dst); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return false
	}
	return true
}

// GenerateJWT signs a token carrying the principal id and role.
func GenerateJWT(accountID string, role models.Role) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": accountID,
		"role":    string(role),
		"jti":     uuid.NewString(),
		"exp":     time.Now().Add(time.Duration(viper.GetInt("jwt.expiry_hours")) * time.Hour).Unix(),
	})

	return token.SignedString([]byte(viper.GetString("jwt.secret_key")))
}

func hashPassword(password string) (string, error) {
	salt := make([]byte, viper.GetInt("argon2.salt_length"))
	if _, err := cryptorand.Read(salt); err != nil {
		return "", err
	}

	hash := argon2.IDKey([]byte(password), salt,
		uint32(viper.GetInt("argon2.time")),
		uint32(viper.GetInt("argon2.memory")),
		uint8(viper.GetInt("argon2.threads")),
		uint32(viper.GetInt("argon2.key_length")))
	return fmt.Sprintf("%s$%s", base64.StdEncoding.EncodeToString(salt), base64.StdEncoding.EncodeToString(hash)), nil
}

func verifyPassword(password, hashedPassword string) bool {
	parts := strings.Split(hashedPassword, "$")
	if len(parts) != 2 {
		return false
	}

	salt, err := base64.StdEncoding.DecodeString(parts[0])
	if err != nil {
		return false
	}
	hash, err := base64.StdEncoding.DecodeString(parts[1])
	if err != nil {
		return false
	}

	computedHash := argon2.IDKey([]byte(password), salt,
		uint32(viper.GetInt("argon2.time")),
		uint32(viper.GetInt("argon2.memory")),
		uint8(viper.GetInt("argon2.threads")),
		uint32(viper.GetInt("argon2.key_length")))
	return subtle.ConstantTimeCompare(hash, computedHash) == 1
}
