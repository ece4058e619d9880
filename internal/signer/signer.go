// Package signer produces time-limited signed URLs for assets served from
// the source's protected (embargoed) asset domain.
package signer

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/o2cms/cfmigrate/internal/errors"
	"github.com/o2cms/cfmigrate/internal/logger"
)

const (
	// DefaultProtectedDomain marks URLs that need signing.
	DefaultProtectedDomain = "secure.ctfassets.net"

	// CredentialLifetime is requested for every new credential; it is the
	// longest the source allows.
	CredentialLifetime = 48 * time.Hour

	// RenewMargin is how long before expiry a credential stops being reused.
	RenewMargin = 5 * time.Minute

	// TokenLifetime is the validity of one signed URL.
	TokenLifetime = 15 * time.Minute
)

// Credential is a signing secret with the policy appended to signed URLs.
type Credential struct {
	Secret    string
	Policy    string
	ExpiresAt time.Time
}

// Issuer obtains a new credential valid until expiresAt.
type Issuer interface {
	CreateAssetKey(ctx context.Context, expiresAt time.Time) (Credential, error)
}

// IssuerFunc adapts a function to Issuer.
type IssuerFunc func(ctx context.Context, expiresAt time.Time) (Credential, error)

// CreateAssetKey calls f.
func (f IssuerFunc) CreateAssetKey(ctx context.Context, expiresAt time.Time) (Credential, error) {
	return f(ctx, expiresAt)
}

// Signer signs protected asset URLs. One credential is cached and shared by
// all callers; it is safe for concurrent use.
type Signer struct {
	issuer Issuer
	domain string
	now    func() time.Time

	mu   sync.Mutex
	cred *Credential
}

// Option configures a Signer.
type Option func(*Signer)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Signer) { s.now = now }
}

// WithProtectedDomain overrides the domain whose URLs are signed.
func WithProtectedDomain(domain string) Option {
	return func(s *Signer) {
		if domain != "" {
			s.domain = domain
		}
	}
}

// New returns a Signer. A nil issuer is allowed: unprotected URLs still pass
// through, protected ones fail with a credential error.
func New(issuer Issuer, opts ...Option) *Signer {
	s := &Signer{
		issuer: issuer,
		domain: DefaultProtectedDomain,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Protected reports whether url is served from the protected domain.
func (s *Signer) Protected(url string) bool {
	return strings.Contains(url, s.domain)
}

// Sign makes protocol-relative URLs https and returns the result unchanged
// unless it is protected, in which case the returned URL carries a token
// and the credential policy. The token subject is the normalized URL.
func (s *Signer) Sign(ctx context.Context, url string) (string, error) {
	url = NormalizeURL(url)
	if !s.Protected(url) {
		return url, nil
	}

	cred, err := s.credential(ctx)
	if err != nil {
		return "", err
	}

	claims := jwt.MapClaims{
		"sub": url,
		"exp": s.now().Add(TokenLifetime).Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(cred.Secret))
	if err != nil {
		return "", errors.New(err).
			Component("signer").
			Category(errors.CategoryCredential).
			Context("operation", "sign_token").
			Build()
	}

	sep := "?"
	if strings.Contains(url, "?") {
		sep = "&"
	}
	return url + sep + "token=" + token + "&policy=" + cred.Policy, nil
}

// Warm obtains the credential ahead of the first protected download.
func (s *Signer) Warm(ctx context.Context) error {
	_, err := s.credential(ctx)
	return err
}

// credential returns the cached credential, requesting a new one when it is
// missing or within RenewMargin of expiry.
func (s *Signer) credential(ctx context.Context) (Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if s.cred != nil && now.Add(RenewMargin).Before(s.cred.ExpiresAt) {
		return *s.cred, nil
	}

	if s.issuer == nil {
		return Credential{}, errors.Newf("no management token configured for protected assets").
			Component("signer").
			Category(errors.CategoryCredential).
			Build()
	}

	expiresAt := now.Add(CredentialLifetime).Truncate(time.Second)
	cred, err := s.issuer.CreateAssetKey(ctx, expiresAt)
	if err != nil {
		return Credential{}, errors.New(err).
			Component("signer").
			Category(errors.CategoryCredential).
			Context("operation", "create_asset_key").
			Build()
	}
	if cred.Secret == "" {
		return Credential{}, errors.Newf("asset key response carried no secret").
			Component("signer").
			Category(errors.CategoryCredential).
			Build()
	}
	if cred.ExpiresAt.IsZero() {
		cred.ExpiresAt = expiresAt
	}

	s.cred = &cred
	GetLogger().Debug("asset key issued", logger.Time("expires_at", cred.ExpiresAt))
	return cred, nil
}

// NormalizeURL turns a protocol-relative URL into an https one.
func NormalizeURL(url string) string {
	if strings.HasPrefix(url, "//") {
		return "https:" + url
	}
	return url
}
