package identity

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// PrincipalHeader is the platform-injected identity header: a
// base64-encoded JSON principal.
const PrincipalHeader = "X-Ms-Client-Principal"

// Resolver decodes the caller's identity once per request. Sources are
// tried in order: the platform principal header, then a bearer JWT when
// a secret is configured. Absence or a decode failure yields the
// anonymous principal, never an error.
type Resolver struct {
	header    string
	jwtSecret []byte
}

// Config contains resolver configuration.
type Config struct {
	Header    string // principal header name, defaults to PrincipalHeader
	JWTSecret string // HS256 secret for bearer tokens, empty disables them
}

// NewResolver creates a new identity resolver.
func NewResolver(cfg Config) *Resolver {
	header := cfg.Header
	if header == "" {
		header = PrincipalHeader
	}
	return &Resolver{
		header:    header,
		jwtSecret: []byte(cfg.JWTSecret),
	}
}

// Middleware resolves the principal and stores it in the request
// context.
func (r *Resolver) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		p := r.Resolve(req)
		next.ServeHTTP(w, req.WithContext(WithPrincipal(req.Context(), p)))
	})
}

// Resolve extracts the principal from the request.
func (r *Resolver) Resolve(req *http.Request) Principal {
	if p, ok := r.fromHeader(req.Header.Get(r.header)); ok {
		return p
	}
	if p, ok := r.fromBearer(req.Header.Get("Authorization")); ok {
		return p
	}
	return Anonymous()
}

// clientPrincipal mirrors the platform's header payload.
type clientPrincipal struct {
	UserID           string   `json:"userId"`
	UserDetails      string   `json:"userDetails"`
	IdentityProvider string   `json:"identityProvider"`
	UserRoles        []string `json:"userRoles"`
}

func (r *Resolver) fromHeader(value string) (Principal, bool) {
	if value == "" {
		return Principal{}, false
	}

	decoded, err := base64.StdEncoding.DecodeString(value)
	if err != nil {
		return Principal{}, false
	}

	var cp clientPrincipal
	if err := json.Unmarshal(decoded, &cp); err != nil {
		return Principal{}, false
	}

	p := Principal{
		UserID:      cp.UserID,
		DisplayName: cp.UserDetails,
		Provider:    cp.IdentityProvider,
		Roles:       cp.UserRoles,
	}
	if p.UserID == "" {
		p.UserID = "anonymous"
	}
	if p.DisplayName == "" {
		p.DisplayName = "anonymous"
	}
	if p.Provider == "" {
		p.Provider = "anonymous"
	}
	return p, true
}

func (r *Resolver) fromBearer(header string) (Principal, bool) {
	if len(r.jwtSecret) == 0 || header == "" {
		return Principal{}, false
	}

	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return Principal{}, false
	}

	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(parts[1], claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return r.jwtSecret, nil
	})
	if err != nil || !token.Valid {
		return Principal{}, false
	}

	p := Principal{
		UserID:      stringClaim(claims, "sub"),
		DisplayName: stringClaim(claims, "name"),
		Provider:    stringClaim(claims, "idp"),
	}
	if roles, ok := claims["roles"].([]interface{}); ok {
		for _, role := range roles {
			if s, ok := role.(string); ok {
				p.Roles = append(p.Roles, s)
			}
		}
	}
	if p.UserID == "" {
		return Principal{}, false
	}
	if p.DisplayName == "" {
		p.DisplayName = p.UserID
	}
	if p.Provider == "" {
		p.Provider = "jwt"
	}
	return p, true
}

func stringClaim(claims jwt.MapClaims, key string) string {
	if v, ok := claims[key].(string); ok {
		return v
	}
	return ""
}
