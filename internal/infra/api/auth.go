package api

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"

	"agent-hub/internal/infra/api/apiv1"
	"agent-hub/internal/infra/metrics"
)

var (
	errMissingToken = errors.New("missing token")
	errInvalidToken = errors.New("invalid token")
)

// OperatorClaims are carried by tokens minted for operators and automation.
type OperatorClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// AuthManager accepts either the static API key or an HS256 JWT signed with
// the configured secret, both as Authorization: Bearer <credential>.
type AuthManager struct {
	apiKey    []byte
	secret    []byte
	anonymous bool
	now       func() time.Time
	log       *zerolog.Logger
}

// NewAuthManager builds the guard. With neither credential configured every
// request is rejected unless allowAnonymous is set.
func NewAuthManager(apiKey, jwtSecret string, allowAnonymous bool, logger *zerolog.Logger) *AuthManager {
	l := logger.With().Str("component", "api_auth").Logger()
	return &AuthManager{
		apiKey:    []byte(apiKey),
		secret:    []byte(jwtSecret),
		anonymous: allowAnonymous,
		now:       time.Now,
		log:       &l,
	}
}

// Mint signs a token for subject valid for ttl.
func (a *AuthManager) Mint(subject string, ttl time.Duration) (string, error) {
	if len(a.secret) == 0 {
		return "", errors.New("jwt secret is not configured")
	}
	now := a.now()
	claims := OperatorClaims{
		Role: "operator",
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			Subject:   subject,
			Issuer:    "agent-hub",
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

// Authenticate returns the principal behind the request credential.
func (a *AuthManager) Authenticate(r *http.Request) (string, error) {
	hdr := r.Header.Get("Authorization")
	if hdr == "" || !strings.HasPrefix(strings.ToLower(hdr), "bearer ") {
		return "", errMissingToken
	}
	tok := strings.TrimSpace(hdr[7:])
	if tok == "" {
		return "", errMissingToken
	}
	if len(a.apiKey) > 0 && subtle.ConstantTimeCompare([]byte(tok), a.apiKey) == 1 {
		return "api-key", nil
	}
	if len(a.secret) == 0 {
		return "", errInvalidToken
	}
	claims, err := a.parse(tok)
	if err != nil {
		return "", err
	}
	return claims.Subject, nil
}

func (a *AuthManager) parse(tok string) (*OperatorClaims, error) {
	claims := &OperatorClaims{}
	tkn, err := jwt.ParseWithClaims(tok, claims, func(t *jwt.Token) (any, error) {
		return a.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(a.now),
	)
	if err != nil || !tkn.Valid || claims.Subject == "" {
		return nil, errInvalidToken
	}
	return claims, nil
}

// Middleware rejects unauthenticated requests with 401.
func (a *AuthManager) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if len(a.apiKey) == 0 && len(a.secret) == 0 {
			if a.anonymous {
				next.ServeHTTP(w, r.WithContext(apiv1.WithPrincipal(r.Context(), "anonymous")))
				return
			}
			a.log.Error().Msg("api credentials are not configured")
			metrics.IncAuthFailure("unconfigured")
			writeAuthError(w, http.StatusForbidden, "forbidden")
			return
		}
		principal, err := a.Authenticate(r)
		if err != nil {
			reason := "invalid_token"
			if errors.Is(err, errMissingToken) {
				reason = "missing"
			}
			metrics.IncAuthFailure(reason)
			writeAuthError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r.WithContext(apiv1.WithPrincipal(r.Context(), principal)))
	})
}

func writeAuthError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write([]byte(`{"error":{"code":"` + msg + `","message":"` + msg + `"}}`))
}
