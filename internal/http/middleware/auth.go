package middleware

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/wolfman30/booking-platform/internal/tenancy"
)

// CallerClaims is the JWT payload identifying a caller inside a tenant.
type CallerClaims struct {
	jwt.RegisteredClaims
	TenantID   string `json:"tenant_id"`
	Role       string `json:"role"`
	ProviderID string `json:"provider_id,omitempty"`
	ClientID   string `json:"client_id,omitempty"`
}

var errNoBearer = errors.New("missing authorization header")

// CallerJWT requires an HMAC-signed caller token and stores the caller and
// its tenant in the request context.
func CallerJWT(secret string) func(http.Handler) http.Handler {
	return callerJWT(secret, true)
}

// OptionalCallerJWT accepts requests without a token. A token that is present
// must still be valid.
func OptionalCallerJWT(secret string) func(http.Handler) http.Handler {
	return callerJWT(secret, false)
}

func callerJWT(secret string, required bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString, err := bearerToken(r)
			if errors.Is(err, errNoBearer) && !required {
				next.ServeHTTP(w, r)
				return
			}
			if err != nil {
				writeUnauthorized(w, err.Error())
				return
			}
			if secret == "" {
				writeUnauthorized(w, "caller auth disabled")
				return
			}
			caller, err := ParseCallerToken(secret, tokenString)
			if err != nil {
				writeUnauthorized(w, "invalid token")
				return
			}
			ctx := tenancy.WithCaller(r.Context(), caller)
			ctx = tenancy.WithTenantID(ctx, caller.TenantID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ParseCallerToken validates tokenString and maps its claims to a caller.
func ParseCallerToken(secret, tokenString string) (tenancy.Caller, error) {
	claims := CallerClaims{}
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return []byte(secret), nil
	})
	if err != nil {
		return tenancy.Caller{}, fmt.Errorf("middleware: parse caller token: %w", err)
	}
	if !token.Valid {
		return tenancy.Caller{}, errors.New("middleware: caller token invalid")
	}
	return claims.Caller()
}

// Caller converts the claims, rejecting unknown roles and malformed ids.
func (c CallerClaims) Caller() (tenancy.Caller, error) {
	var caller tenancy.Caller
	var err error
	if caller.TenantID, err = uuid.Parse(c.TenantID); err != nil {
		return tenancy.Caller{}, errors.New("tenant_id claim must be a uuid")
	}
	if c.Subject != "" {
		// non-uuid subjects (service accounts) are allowed
		caller.UserID, _ = uuid.Parse(c.Subject)
	}
	caller.Role = tenancy.Role(strings.ToLower(c.Role))
	switch caller.Role {
	case tenancy.RoleOwner, tenancy.RoleAdmin:
	case tenancy.RoleProvider:
		if caller.ProviderID, err = uuid.Parse(c.ProviderID); err != nil {
			return tenancy.Caller{}, errors.New("provider_id claim required for provider role")
		}
	case tenancy.RoleClient:
		if caller.ClientID, err = uuid.Parse(c.ClientID); err != nil {
			return tenancy.Caller{}, errors.New("client_id claim required for client role")
		}
	default:
		return tenancy.Caller{}, errors.New("unknown role claim")
	}
	return caller, nil
}

// IssueCallerToken signs a caller token valid for ttl.
func IssueCallerToken(secret string, caller tenancy.Caller, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", errors.New("middleware: signing secret required")
	}
	now := time.Now()
	claims := CallerClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		TenantID: caller.TenantID.String(),
		Role:     string(caller.Role),
	}
	if caller.UserID != uuid.Nil {
		claims.Subject = caller.UserID.String()
	}
	if caller.ProviderID != uuid.Nil {
		claims.ProviderID = caller.ProviderID.String()
	}
	if caller.ClientID != uuid.Nil {
		claims.ClientID = caller.ClientID.String()
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

func bearerToken(r *http.Request) (string, error) {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return "", errNoBearer
	}
	if !strings.HasPrefix(auth, "Bearer ") {
		return "", errors.New("authorization header must be a bearer token")
	}
	return strings.TrimPrefix(auth, "Bearer "), nil
}

func writeUnauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg, "code": "unauthorized"})
}
