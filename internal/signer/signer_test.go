package signer

import (
	"context"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/o2cms/cfmigrate/internal/errors"
)

type fakeIssuer struct {
	mu      sync.Mutex
	calls   int
	expires []time.Time
	err     error
}

func (f *fakeIssuer) CreateAssetKey(_ context.Context, expiresAt time.Time) (Credential, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.expires = append(f.expires, expiresAt)
	if f.err != nil {
		return Credential{}, f.err
	}
	return Credential{Secret: "s3cret", Policy: "pol-" + string(rune('0'+f.calls))}, nil
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestSigner(issuer Issuer) (*Signer, *fakeClock) {
	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	return New(issuer, WithClock(clock.Now)), clock
}

func TestSignUnprotectedURL(t *testing.T) {
	t.Parallel()

	issuer := &fakeIssuer{}
	s, _ := newTestSigner(issuer)

	tests := []struct {
		in   string
		want string
	}{
		{"//images.ctfassets.net/space/a/b/photo.jpg", "https://images.ctfassets.net/space/a/b/photo.jpg"},
		{"https://downloads.ctfassets.net/space/a/b/doc.pdf", "https://downloads.ctfassets.net/space/a/b/doc.pdf"},
	}
	for _, tt := range tests {
		got, err := s.Sign(t.Context(), tt.in)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}
	assert.Equal(t, 0, issuer.calls)
}

func TestSignProtectedURL(t *testing.T) {
	t.Parallel()

	issuer := &fakeIssuer{}
	s, clock := newTestSigner(issuer)

	got, err := s.Sign(t.Context(), "//secure.ctfassets.net/space/a/b/photo.jpg")
	require.NoError(t, err)

	require.True(t, strings.HasPrefix(got, "https://secure.ctfassets.net/space/a/b/photo.jpg?token="))
	parsed, err := url.Parse(got)
	require.NoError(t, err)
	assert.Equal(t, "pol-1", parsed.Query().Get("policy"))

	claims := jwt.MapClaims{}
	_, err = jwt.ParseWithClaims(parsed.Query().Get("token"), claims,
		func(*jwt.Token) (any, error) { return []byte("s3cret"), nil },
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithTimeFunc(clock.Now),
	)
	require.NoError(t, err)
	assert.Equal(t, "https://secure.ctfassets.net/space/a/b/photo.jpg", claims["sub"])

	exp, err := claims.GetExpirationTime()
	require.NoError(t, err)
	assert.Equal(t, clock.Now().Add(TokenLifetime).Unix(), exp.Unix())

	require.Len(t, issuer.expires, 1)
	assert.Equal(t, clock.Now().Add(CredentialLifetime), issuer.expires[0])
}

func TestSignExistingQuery(t *testing.T) {
	t.Parallel()

	s, _ := newTestSigner(&fakeIssuer{})

	got, err := s.Sign(t.Context(), "https://secure.ctfassets.net/x/photo.jpg?w=100")
	require.NoError(t, err)
	assert.Contains(t, got, "photo.jpg?w=100&token=")
	assert.True(t, strings.HasSuffix(got, "&policy=pol-1"))
}

func TestCredentialReuseAndRenewal(t *testing.T) {
	t.Parallel()

	issuer := &fakeIssuer{}
	s, clock := newTestSigner(issuer)
	const u = "https://secure.ctfassets.net/x/a.png"

	_, err := s.Sign(t.Context(), u)
	require.NoError(t, err)

	clock.Advance(CredentialLifetime - RenewMargin - time.Minute)
	_, err = s.Sign(t.Context(), u)
	require.NoError(t, err)
	assert.Equal(t, 1, issuer.calls, "credential reused well before expiry")

	clock.Advance(2 * time.Minute)
	got, err := s.Sign(t.Context(), u)
	require.NoError(t, err)
	assert.Equal(t, 2, issuer.calls, "credential renewed inside the margin")
	assert.True(t, strings.HasSuffix(got, "policy=pol-2"))
}

func TestConcurrentSignIssuesOnce(t *testing.T) {
	t.Parallel()

	issuer := &fakeIssuer{}
	s, _ := newTestSigner(issuer)

	var wg sync.WaitGroup
	for range 20 {
		wg.Go(func() {
			_, err := s.Sign(context.Background(), "https://secure.ctfassets.net/x/a.png")
			assert.NoError(t, err)
		})
	}
	wg.Wait()

	assert.Equal(t, 1, issuer.calls)
}

func TestCredentialFailure(t *testing.T) {
	t.Parallel()

	t.Run("issuer error", func(t *testing.T) {
		s, _ := newTestSigner(&fakeIssuer{err: errors.NewStd("403 forbidden")})
		_, err := s.Sign(t.Context(), "https://secure.ctfassets.net/x/a.png")
		require.Error(t, err)
		assert.True(t, errors.IsCategory(err, errors.CategoryCredential))
		assert.Contains(t, err.Error(), "403")
	})

	t.Run("no issuer", func(t *testing.T) {
		s, _ := newTestSigner(nil)
		_, err := s.Sign(t.Context(), "https://secure.ctfassets.net/x/a.png")
		assert.True(t, errors.IsCategory(err, errors.CategoryCredential))

		got, err := s.Sign(t.Context(), "https://images.ctfassets.net/x/a.png")
		require.NoError(t, err)
		assert.Equal(t, "https://images.ctfassets.net/x/a.png", got)
	})

	t.Run("warm surfaces the failure", func(t *testing.T) {
		s, _ := newTestSigner(IssuerFunc(func(context.Context, time.Time) (Credential, error) {
			return Credential{}, nil
		}))
		assert.True(t, errors.IsCategory(s.Warm(t.Context()), errors.CategoryCredential))
	})
}

func TestWithProtectedDomain(t *testing.T) {
	t.Parallel()

	s := New(&fakeIssuer{}, WithProtectedDomain("assets.internal.example"))
	assert.True(t, s.Protected("https://assets.internal.example/a"))
	assert.False(t, s.Protected("https://secure.ctfassets.net/a"))
}

func TestNormalizeURL(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "https://x/a", NormalizeURL("//x/a"))
	assert.Equal(t, "http://x/a", NormalizeURL("http://x/a"))
}
