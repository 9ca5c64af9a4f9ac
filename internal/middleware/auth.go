package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type contextKey string

const MentorIDKey contextKey = "mentor_id"

const RoleMentor = "mentor"

// MentorAuth guards mentor-only routes with an HS256 bearer token carrying
// role "mentor". With an empty secret every request passes.
type MentorAuth struct {
	Secret []byte
}

func NewMentorAuth(secret string) *MentorAuth {
	return &MentorAuth{Secret: []byte(secret)}
}

func (m *MentorAuth) Enabled() bool {
	return len(m.Secret) > 0
}

// GenerateToken issues a mentor token. Used by ops tooling and tests.
func (m *MentorAuth) GenerateToken(mentorID string, ttl time.Duration) (string, error) {
	claims := jwt.MapClaims{
		"sub":  mentorID,
		"role": RoleMentor,
		"exp":  time.Now().Add(ttl).Unix(),
		"iat":  time.Now().Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.Secret)
}

func (m *MentorAuth) Middleware(next http.Handler) http.Handler {
	if !m.Enabled() {
		return next
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Missing authorization header", r)
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid authorization format", r)
			return
		}

		token, err := jwt.Parse(parts[1], func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrSignatureInvalid
			}
			return m.Secret, nil
		})
		if err != nil {
			if errors.Is(err, jwt.ErrTokenExpired) {
				writeError(w, http.StatusUnauthorized, "TOKEN_EXPIRED", "Token has expired", r)
			} else {
				writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid token", r)
			}
			return
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok || !token.Valid {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid token claims", r)
			return
		}

		if role, _ := claims["role"].(string); role != RoleMentor {
			writeError(w, http.StatusForbidden, "FORBIDDEN", "Mentor role required", r)
			return
		}

		mentorID, _ := claims["sub"].(string)
		ctx := context.WithValue(r.Context(), MentorIDKey, mentorID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetMentorID returns the authenticated mentor, or "" on open routes.
func GetMentorID(ctx context.Context) string {
	id, _ := ctx.Value(MentorIDKey).(string)
	return id
}

func writeError(w http.ResponseWriter, status int, code, message string, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"error": map[string]interface{}{
			"code":       code,
			"message":    message,
			"request_id": GetRequestID(r.Context()),
		},
	})
}
