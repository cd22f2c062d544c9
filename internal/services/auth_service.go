package services

import (
	"context"
	cryptorand "crypto/rand"
	"crypto/subtle"
	"database/sql"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
	"github.com/tapshop/backend/internal/middleware"
	"github.com/tapshop/backend/internal/models"
	"golang.org/x/crypto/argon2"
)

var (
	errTokenRevoked = errors.New("token has been revoked")
	errTokenInvalid = errors.New("invalid token")
)

type AuthService struct {
	db        *sql.DB
	redis     *redis.Client
	validator *ValidationHelper
}

// LoginRequest represents the admin login payload
// @Description Admin login request structure
type LoginRequest struct {
	Username string `json:"username" validate:"required,min=3" example:"jdoe"`        // Admin username
	Password string `json:"password" validate:"required,min=6" example:"password123"` // Admin password
}

// AuthResponse represents the authentication response
// @Description Authentication response structure
type AuthResponse struct {
	AccessToken string               `json:"access_token" example:"eyJhbGciOiJIUzI1NiIsInR5cCI6IkpXVCJ9..."` // JWT token
	TokenType   string               `json:"token_type" example:"bearer"`
	Admin       models.AdminIdentity `json:"admin"`
}

type adminClaims struct {
	AdminID  int64  `json:"admin_id"`
	Username string `json:"username"`
	FullName string `json:"full_name"`
	jwt.RegisteredClaims
}

func NewAuthService(db *sql.DB, redisClient *redis.Client) *AuthService {
	viper.SetDefault("jwt.expiry_hours", 1)
	viper.SetDefault("argon2.time", 1)
	viper.SetDefault("argon2.memory", 64*1024)
	viper.SetDefault("argon2.threads", 4)
	viper.SetDefault("argon2.key_length", 32)
	viper.SetDefault("argon2.salt_length", 16)

	return &AuthService{
		db:        db,
		redis:     redisClient,
		validator: NewValidationHelper(),
	}
}

// Login handles admin authentication
// @Summary Admin login
// @Description Authenticate an admin and issue a bearer token
// @Tags admin
// @Accept json
// @Produce json
// @Param request body LoginRequest true "Login request"
// @Success 200 {object} AuthResponse "Login successful"
// @Failure 400 {object} ErrorResponse "Invalid request"
// @Failure 401 {object} ErrorResponse "Invalid credentials"
// @Router /admin/login [post]
func (s *AuthService) Login(w http.ResponseWriter, r *http.Request) {
	log.Info().Str("remote_addr", r.RemoteAddr).Msg("[AUTH] Login attempt")

	var req LoginRequest
	if !s.validator.decodeJSONBody(w, r, &req) {
		return
	}

	var admin models.Admin
	err := s.db.QueryRowContext(r.Context(), `
		SELECT id, username, first_name, last_name, role, password_hash
		FROM admins
		WHERE username = $1`, req.Username).
		Scan(&admin.ID, &admin.Username, &admin.FirstName, &admin.LastName, &admin.Role, &admin.PasswordHash)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			log.Error().Err(err).Msg("[AUTH] Admin lookup failed")
		}
		log.Warn().Str("username", req.Username).Msg("[AUTH] Unknown admin")
		SendErrorResponse(w, "Invalid credentials", http.StatusUnauthorized, nil)
		return
	}

	if !verifyPassword(req.Password, admin.PasswordHash) {
		log.Warn().Str("username", req.Username).Msg("[AUTH] Invalid password")
		SendErrorResponse(w, "Invalid credentials", http.StatusUnauthorized, nil)
		return
	}

	identity := models.AdminIdentity{ID: admin.ID, Username: admin.Username, FullName: admin.FullName()}
	token, err := generateJWT(identity)
	if err != nil {
		log.Error().Err(err).Int64("admin_id", admin.ID).Msg("[AUTH] JWT generation failed")
		SendErrorResponse(w, "Failed to generate token", http.StatusInternalServerError, nil)
		return
	}

	log.Info().Int64("admin_id", admin.ID).Msg("[AUTH] Login successful")
	writeJSON(w, http.StatusOK, AuthResponse{AccessToken: token, TokenType: "bearer", Admin: identity})
}

// Logout revokes the caller's token
// @Summary Admin logout
// @Description Blacklist the bearer token until it would have expired
// @Tags admin
// @Produce json
// @Security BearerAuth
// @Success 200 {object} map[string]string "Logout successful"
// @Router /admin/logout [post]
func (s *AuthService) Logout(w http.ResponseWriter, r *http.Request) {
	if token, ok := middleware.BearerToken(r); ok && s.redis != nil {
		expiry := time.Duration(viper.GetInt("jwt.expiry_hours")) * time.Hour
		if err := s.redis.Set(r.Context(), blacklistKey(token), "1", expiry).Err(); err != nil {
			log.Error().Err(err).Msg("[AUTH] Failed to blacklist token")
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "Logout successful"})
}

// ValidateToken verifies signature, expiry and revocation of an admin token
func (s *AuthService) ValidateToken(ctx context.Context, tokenString string) (*models.AdminIdentity, error) {
	claims := &adminClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		return []byte(viper.GetString("jwt.secret_key")), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil || !token.Valid {
		return nil, fmt.Errorf("%w: %v", errTokenInvalid, err)
	}
	if claims.AdminID == 0 {
		return nil, errTokenInvalid
	}

	if s.redis != nil {
		revoked, err := s.redis.Exists(ctx, blacklistKey(tokenString)).Result()
		if err != nil {
			log.Warn().Err(err).Msg("[AUTH] Blacklist check failed")
		} else if revoked > 0 {
			return nil, errTokenRevoked
		}
	}

	return &models.AdminIdentity{ID: claims.AdminID, Username: claims.Username, FullName: claims.FullName}, nil
}

// EnsureBootstrapAdmin creates the configured admin when it does not exist yet
func (s *AuthService) EnsureBootstrapAdmin(ctx context.Context, username, password string) error {
	if username == "" {
		return nil
	}
	if password == "" {
		return fmt.Errorf("bootstrap admin %q has no password configured", username)
	}

	hashed, err := hashPassword(password)
	if err != nil {
		return fmt.Errorf("failed to hash bootstrap password: %w", err)
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO admins (username, first_name, last_name, role, password_hash)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (username) DO NOTHING`,
		username, username, "", "admin", hashed)
	if err != nil {
		return fmt.Errorf("failed to create bootstrap admin: %w", err)
	}

	if n, _ := result.RowsAffected(); n > 0 {
		log.Info().Str("username", username).Msg("[AUTH] Bootstrap admin created")
	}
	return nil
}

func blacklistKey(token string) string {
	return "blacklist:" + token
}

func generateJWT(admin models.AdminIdentity) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, adminClaims{
		AdminID:  admin.ID,
		Username: admin.Username,
		FullName: admin.FullName,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Duration(viper.GetInt("jwt.expiry_hours")) * time.Hour)),
		},
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
		uint32(len(hash)))
	return subtle.ConstantTimeCompare(hash, computedHash) == 1
}
