// Package middleware provides HTTP middleware for bearer-token authentication,
// request IDs, request logging, and rate limiting.
package middleware

import (
	"context"
	"fmt"
	"slices"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"

	"tablesheet/internal/config"
)

// JWTClaims holds the parsed claims from a validated JWT.
type JWTClaims struct {
	Subject  string
	Issuer   string
	Audience []string
	Email    *string
	Raw      map[string]interface{}
}

// JWTValidator validates a JWT token and returns the parsed claims.
type JWTValidator interface {
	Validate(ctx context.Context, tokenString string) (*JWTClaims, error)
}

// OIDCValidator validates JWTs using OIDC discovery and JWKS.
type OIDCValidator struct {
	verifier       *oidc.IDTokenVerifier
	allowedIssuers map[string]bool
}

// NewOIDCValidator creates a validator from an OIDC issuer URL.
func NewOIDCValidator(ctx context.Context, issuerURL, audience string, allowedIssuers []string) (*OIDCValidator, error) {
	provider, err := oidc.NewProvider(ctx, issuerURL)
	if err != nil {
		return nil, fmt.Errorf("oidc provider discovery: %w", err)
	}
	verifier := provider.Verifier(&oidc.Config{ClientID: audience})
	return &OIDCValidator{verifier: verifier, allowedIssuers: issuerSet(issuerURL, allowedIssuers)}, nil
}

// NewOIDCValidatorFromJWKS creates a validator from a JWKS URL (no OIDC discovery).
func NewOIDCValidatorFromJWKS(ctx context.Context, jwksURL, issuerURL, audience string, allowedIssuers []string) (*OIDCValidator, error) {
	keySet := oidc.NewRemoteKeySet(ctx, jwksURL)
	verifier := oidc.NewVerifier(issuerURL, keySet, &oidc.Config{ClientID: audience})
	return &OIDCValidator{verifier: verifier, allowedIssuers: issuerSet(issuerURL, allowedIssuers)}, nil
}

func issuerSet(issuerURL string, allowed []string) map[string]bool {
	issuers := make(map[string]bool, len(allowed))
	for _, iss := range allowed {
		issuers[iss] = true
	}
	if len(issuers) == 0 && issuerURL != "" {
		issuers[issuerURL] = true
	}
	return issuers
}

// Validate verifies the JWT using the OIDC provider's JWKS.
func (v *OIDCValidator) Validate(ctx context.Context, tokenString string) (*JWTClaims, error) {
	idToken, err := v.verifier.Verify(ctx, tokenString)
	if err != nil {
		return nil, fmt.Errorf("token verification failed: %w", err)
	}
	if len(v.allowedIssuers) > 0 && !v.allowedIssuers[idToken.Issuer] {
		return nil, fmt.Errorf("issuer %q not in allowed list", idToken.Issuer)
	}

	var raw map[string]interface{}
	if err := idToken.Claims(&raw); err != nil {
		return nil, fmt.Errorf("parse claims: %w", err)
	}

	claims := &JWTClaims{
		Subject:  idToken.Subject,
		Issuer:   idToken.Issuer,
		Audience: idToken.Audience,
		Raw:      raw,
	}
	if email, ok := raw["email"].(string); ok {
		claims.Email = &email
	}
	return claims, nil
}

// HS256Validator validates JWTs signed with a shared HS256 secret.
type HS256Validator struct {
	secret   []byte
	audience string
}

// NewHS256Validator creates a validator for local/dev HS256 tokens. A
// non-empty audience must appear in the token's aud claim.
func NewHS256Validator(secret, audience string) (*HS256Validator, error) {
	if secret == "" {
		return nil, fmt.Errorf("JWT secret is required")
	}
	return &HS256Validator{secret: []byte(secret), audience: audience}, nil
}

// Validate verifies a JWT signed with HS256 and extracts claims.
func (v *HS256Validator) Validate(_ context.Context, tokenString string) (*JWTClaims, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if v.audience != "" {
		opts = append(opts, jwt.WithAudience(v.audience))
	}
	tok, err := jwt.Parse(tokenString, func(*jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("jwt parse: %w", err)
	}

	raw, ok := tok.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("parse claims: unsupported claim type %T", tok.Claims)
	}

	claims := &JWTClaims{Raw: map[string]interface{}(raw)}
	claims.Subject, _ = raw.GetSubject()
	claims.Issuer, _ = raw.GetIssuer()
	if aud, err := raw.GetAudience(); err == nil && len(aud) > 0 {
		claims.Audience = slices.Clone([]string(aud))
	}
	if email, ok := raw["email"].(string); ok {
		claims.Email = &email
	}
	return claims, nil
}

// NewValidator builds the validator selected by cfg: OIDC discovery when an
// issuer is set, a bare JWKS when only a JWKS URL is set, HS256 otherwise.
func NewValidator(ctx context.Context, cfg config.AuthConfig) (JWTValidator, error) {
	switch {
	case cfg.JWKSURL != "":
		return NewOIDCValidatorFromJWKS(ctx, cfg.JWKSURL, cfg.IssuerURL, cfg.Audience, cfg.AllowedIssuers)
	case cfg.IssuerURL != "":
		return NewOIDCValidator(ctx, cfg.IssuerURL, cfg.Audience, cfg.AllowedIssuers)
	default:
		return NewHS256Validator(cfg.JWTSecret, cfg.Audience)
	}
}
