package source

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/o2cms/cfmigrate/internal/errors"
	"github.com/o2cms/cfmigrate/internal/signer"
)

const (
	cdaBase = "https://cdn.example.com/spaces/sp/environments/master"
	cmaBase = "https://api.example.com/spaces/sp/environments/master"
)

func newMockSource(t *testing.T, mutate func(*Config)) (*Client, *httpmock.MockTransport) {
	t.Helper()
	transport := httpmock.NewMockTransport()
	cfg := Config{
		SpaceID:         "sp",
		DeliveryToken:   "cda",
		ManagementToken: "cma",
		DeliveryURL:     "https://cdn.example.com",
		ManagementURL:   "https://api.example.com/",
		PageSize:        2,
		MaxAttempts:     3,
		RetryDelay:      time.Millisecond,
		Transport:       transport,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	c, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c, transport
}

// pagedResponder serves ids as items of a skip/limit listing.
func pagedResponder(t *testing.T, ids []string, item func(id string) string) httpmock.Responder {
	t.Helper()
	return func(req *http.Request) (*http.Response, error) {
		q := req.URL.Query()
		skip, _ := strconv.Atoi(q.Get("skip"))
		limit, _ := strconv.Atoi(q.Get("limit"))
		assert.Equal(t, "*", q.Get("locale"))

		end := min(skip+limit, len(ids))
		var items []json.RawMessage
		for _, id := range ids[min(skip, len(ids)):end] {
			items = append(items, json.RawMessage(item(id)))
		}
		if items == nil {
			items = []json.RawMessage{}
		}
		body, _ := json.Marshal(map[string]any{"total": len(ids), "skip": skip, "limit": limit, "items": items})
		return httpmock.NewBytesResponse(http.StatusOK, body), nil
	}
}

func TestNewRequiresCredentials(t *testing.T) {
	t.Parallel()

	_, err := New(Config{SpaceID: "sp"})
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))
}

func TestListAssetsPaginates(t *testing.T) {
	t.Parallel()
	c, transport := newMockSource(t, nil)

	ids := []string{"a1", "a2", "a3", "a4", "a5"}
	transport.RegisterResponder(http.MethodGet, cdaBase+"/assets",
		pagedResponder(t, ids, func(id string) string {
			return fmt.Sprintf(`{"sys":{"id":%q},"fields":{"file":{"en-US":{"url":"//x/%s.png"}}}}`, id, id)
		}))

	assets, err := c.ListAssets(t.Context())
	require.NoError(t, err)
	require.Len(t, assets, 5)
	assert.Equal(t, "a5", assets[4].ID())
	assert.Equal(t, "//x/a3.png", assets[2].Fields.File.Info.URL)
	assert.Equal(t, 3, transport.GetTotalCallCount())

	// cached
	_, err = c.ListAssets(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 3, transport.GetTotalCallCount())
	hits, _ := c.CacheStats()
	assert.Equal(t, int64(1), hits)
}

func TestListRecordsCachedPerSchema(t *testing.T) {
	t.Parallel()
	c, transport := newMockSource(t, nil)

	var calls atomic.Int32
	transport.RegisterResponder(http.MethodGet, cdaBase+"/entries",
		func(req *http.Request) (*http.Response, error) {
			calls.Add(1)
			assert.Equal(t, "Bearer cda", req.Header.Get("Authorization"))
			ct := req.URL.Query().Get("content_type")
			body := fmt.Sprintf(`{"total":1,"items":[{"sys":{"id":"%s-1","contentType":{"sys":{"type":"Link","linkType":"ContentType","id":%q}}},"fields":{}}]}`, ct, ct)
			return httpmock.NewStringResponse(http.StatusOK, body), nil
		})

	for range 2 {
		records, err := c.ListRecords(t.Context(), "blogPost")
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.Equal(t, "blogPost", records[0].SchemaID())
	}
	records, err := c.ListRecords(t.Context(), "author")
	require.NoError(t, err)
	assert.Equal(t, "author-1", records[0].ID())

	assert.Equal(t, int32(2), calls.Load())
}

func TestEmptyListing(t *testing.T) {
	t.Parallel()
	c, transport := newMockSource(t, nil)

	transport.RegisterResponder(http.MethodGet, cdaBase+"/entries",
		pagedResponder(t, nil, nil))

	records, err := c.ListRecords(t.Context(), "empty")
	require.NoError(t, err)
	assert.NotNil(t, records)
	assert.Empty(t, records)
}

func TestListSchemas(t *testing.T) {
	t.Parallel()
	c, transport := newMockSource(t, nil)

	transport.RegisterResponder(http.MethodGet, cdaBase+"/content_types",
		func(req *http.Request) (*http.Response, error) {
			assert.Equal(t, "1000", req.URL.Query().Get("limit"))
			return httpmock.NewStringResponse(http.StatusOK,
				`{"total":1,"items":[{"sys":{"id":"blogPost"},"name":"Blog post","fields":[{"id":"title","type":"Symbol"}]}]}`), nil
		})

	schemas, err := c.ListSchemas(t.Context())
	require.NoError(t, err)
	require.Len(t, schemas, 1)
	assert.Equal(t, "blogPost", schemas[0].ID())
	assert.Len(t, schemas[0].Fields, 1)
}

func TestRateLimitReset(t *testing.T) {
	t.Parallel()
	c, transport := newMockSource(t, nil)

	var calls atomic.Int32
	transport.RegisterResponder(http.MethodGet, cdaBase+"/locales",
		func(*http.Request) (*http.Response, error) {
			if calls.Add(1) == 1 {
				resp := httpmock.NewStringResponse(http.StatusTooManyRequests, "")
				resp.Header.Set(RateLimitResetHeader, "0")
				return resp, nil
			}
			return httpmock.NewStringResponse(http.StatusOK,
				`{"items":[{"code":"en-US","name":"English","default":true},{"code":"de-DE","name":"German"}]}`), nil
		})

	locales, err := c.ListLocales(t.Context())
	require.NoError(t, err)
	require.Len(t, locales, 2)
	assert.True(t, locales[0].Default)
	assert.Equal(t, int32(2), calls.Load())
}

func TestRateLimitExhausted(t *testing.T) {
	t.Parallel()
	c, transport := newMockSource(t, nil)

	transport.RegisterResponder(http.MethodGet, cdaBase+"/content_types",
		httpmock.NewStringResponder(http.StatusTooManyRequests, ""))

	_, err := c.ListSchemas(t.Context())
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryRateLimit))
	assert.True(t, errors.IsTransient(err))
	assert.Equal(t, 3, transport.GetTotalCallCount())
}

func TestStatusErrors(t *testing.T) {
	t.Parallel()
	c, transport := newMockSource(t, nil)

	transport.RegisterResponder(http.MethodGet, cdaBase+"/entries",
		httpmock.NewStringResponder(http.StatusNotFound, `{"sys":{"id":"NotFound"}}`))
	transport.RegisterResponder(http.MethodGet, cdaBase+"/assets",
		httpmock.NewStringResponder(http.StatusUnauthorized, `{"message":"bad token"}`))

	_, err := c.CountRecords(t.Context(), "missing")
	assert.True(t, errors.IsNotFound(err))

	_, err = c.ListAssets(t.Context())
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryHTTP))
	assert.Contains(t, err.Error(), "401")
}

func TestCountRecords(t *testing.T) {
	t.Parallel()
	c, transport := newMockSource(t, nil)

	transport.RegisterResponder(http.MethodGet, cdaBase+"/entries",
		func(req *http.Request) (*http.Response, error) {
			assert.Equal(t, "1", req.URL.Query().Get("limit"))
			return httpmock.NewStringResponse(http.StatusOK, `{"total":42,"items":[{}]}`), nil
		})

	n, err := c.CountRecords(t.Context(), "blogPost")
	require.NoError(t, err)
	assert.Equal(t, 42, n)
}

func TestCreateAssetKey(t *testing.T) {
	t.Parallel()
	c, transport := newMockSource(t, nil)

	expires := time.Unix(1_900_000_000, 0)
	transport.RegisterResponder(http.MethodPost, cmaBase+"/asset_keys",
		func(req *http.Request) (*http.Response, error) {
			assert.Equal(t, "Bearer cma", req.Header.Get("Authorization"))
			body, _ := io.ReadAll(req.Body)
			assert.JSONEq(t, `{"expiresAt":1900000000}`, string(body))
			return httpmock.NewStringResponse(http.StatusCreated, `{"secret":"sek","policy":"pol"}`), nil
		})

	var issuer signer.Issuer = c
	cred, err := issuer.CreateAssetKey(t.Context(), expires)
	require.NoError(t, err)
	assert.Equal(t, signer.Credential{Secret: "sek", Policy: "pol", ExpiresAt: expires}, cred)
}

func TestCreateAssetKeyFailures(t *testing.T) {
	t.Parallel()

	t.Run("no management token", func(t *testing.T) {
		c, _ := newMockSource(t, func(cfg *Config) { cfg.ManagementToken = "" })
		_, err := c.CreateAssetKey(t.Context(), time.Now())
		assert.True(t, errors.IsCategory(err, errors.CategoryCredential))
	})

	t.Run("forbidden", func(t *testing.T) {
		c, transport := newMockSource(t, nil)
		transport.RegisterResponder(http.MethodPost, cmaBase+"/asset_keys",
			httpmock.NewStringResponder(http.StatusForbidden, `{"message":"nope"}`))
		_, err := c.CreateAssetKey(t.Context(), time.Now())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "403")
	})
}
