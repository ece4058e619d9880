// Package source reads content from the source repository: the delivery API
// for schemas, assets and records, and the management API for asset keys.
package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/o2cms/cfmigrate/internal/content"
	"github.com/o2cms/cfmigrate/internal/errors"
	"github.com/o2cms/cfmigrate/internal/httpclient"
	"github.com/o2cms/cfmigrate/internal/logger"
	"github.com/o2cms/cfmigrate/internal/signer"
)

const (
	// RateLimitResetHeader carries the seconds to wait after a 429.
	RateLimitResetHeader = "X-Contentful-RateLimit-Reset"

	schemaListLimit = 1000
	errorBodyLimit  = 2048
)

// Locale is a locale configured in the source environment.
type Locale struct {
	Code    string `json:"code"`
	Name    string `json:"name"`
	Default bool   `json:"default"`
}

// Client reads from one source space and environment. Safe for concurrent use.
type Client struct {
	config Config
	http   *httpclient.Client
	cache  *cache.Cache

	cacheHits   atomic.Int64
	cacheMisses atomic.Int64
}

// New creates a source client.
func New(cfg Config) (*Client, error) {
	cfg.applyDefaults()
	if cfg.SpaceID == "" || cfg.DeliveryToken == "" {
		return nil, errors.Newf("source space id and delivery token are required").
			Component("source").
			Category(errors.CategoryConfiguration).
			Build()
	}

	httpCfg := httpclient.Config{
		DefaultTimeout: cfg.Timeout,
		MinInterval:    cfg.RateDelay,
		MaxAttempts:    cfg.MaxAttempts,
		RetryDelay:     cfg.RetryDelay,
		ResetHeaders:   []string{RateLimitResetHeader},
		UserAgent:      cfg.UserAgent,
		Transport:      cfg.Transport,
	}

	hc := httpclient.New(&httpCfg)
	if cfg.Observe != nil {
		hc.SetAfterResponseHook(cfg.Observe)
	}

	return &Client{
		config: cfg,
		http:   hc,
		// no janitor goroutine: expired entries are dropped on read
		cache: cache.New(cfg.CacheTTL, 0),
	}, nil
}

// Close releases idle connections.
func (c *Client) Close() {
	c.http.Close()
}

// CacheStats returns listing cache hits and misses.
func (c *Client) CacheStats() (hits, misses int64) {
	return c.cacheHits.Load(), c.cacheMisses.Load()
}

// ListSchemas returns every content type of the environment.
func (c *Client) ListSchemas(ctx context.Context) ([]content.Schema, error) {
	const key = "schemas"
	if cached, ok := c.cached(key); ok {
		if schemas, ok := cached.([]content.Schema); ok {
			return schemas, nil
		}
	}

	var page content.Collection[content.Schema]
	query := url.Values{"limit": {strconv.Itoa(schemaListLimit)}}
	if err := c.get(ctx, "list content types", c.deliveryPath("content_types"), query, &page); err != nil {
		return nil, err
	}
	if page.Total > len(page.Items) {
		GetLogger().Warn("content type listing truncated",
			logger.Int("total", page.Total),
			logger.Int("returned", len(page.Items)))
	}

	c.cache.Set(key, page.Items, cache.DefaultExpiration)
	return page.Items, nil
}

// ListAssets returns every asset, all locales included.
func (c *Client) ListAssets(ctx context.Context) ([]content.Asset, error) {
	const key = "assets"
	if cached, ok := c.cached(key); ok {
		if assets, ok := cached.([]content.Asset); ok {
			return assets, nil
		}
	}

	assets, err := paginate[content.Asset](ctx, c, "list assets", c.deliveryPath("assets"), url.Values{"locale": {"*"}})
	if err != nil {
		return nil, err
	}
	c.cache.Set(key, assets, cache.DefaultExpiration)
	return assets, nil
}

// ListRecords returns every entry of one content type, all locales
// included. Results are cached per content type so discovery and migration
// share one fetch.
func (c *Client) ListRecords(ctx context.Context, schemaID string) ([]content.Record, error) {
	key := "records:" + schemaID
	if cached, ok := c.cached(key); ok {
		if records, ok := cached.([]content.Record); ok {
			return records, nil
		}
	}

	query := url.Values{"locale": {"*"}, "content_type": {schemaID}}
	records, err := paginate[content.Record](ctx, c, "list entries", c.deliveryPath("entries"), query)
	if err != nil {
		return nil, err
	}
	c.cache.Set(key, records, cache.DefaultExpiration)
	return records, nil
}

// CountRecords returns the number of entries of a content type without
// fetching them.
func (c *Client) CountRecords(ctx context.Context, schemaID string) (int, error) {
	var page content.Collection[json.RawMessage]
	query := url.Values{"content_type": {schemaID}, "limit": {"1"}}
	if err := c.get(ctx, "count entries", c.deliveryPath("entries"), query, &page); err != nil {
		return 0, err
	}
	return page.Total, nil
}

// ListLocales returns the locales of the environment.
func (c *Client) ListLocales(ctx context.Context) ([]Locale, error) {
	const key = "locales"
	if cached, ok := c.cached(key); ok {
		if locales, ok := cached.([]Locale); ok {
			return locales, nil
		}
	}

	var page content.Collection[Locale]
	if err := c.get(ctx, "list locales", c.deliveryPath("locales"), nil, &page); err != nil {
		return nil, err
	}
	c.cache.Set(key, page.Items, cache.DefaultExpiration)
	return page.Items, nil
}

type assetKeyResponse struct {
	Secret string `json:"secret"`
	Policy string `json:"policy"`
}

// CreateAssetKey issues a signing credential valid until expiresAt. It
// makes Client a signer.Issuer.
func (c *Client) CreateAssetKey(ctx context.Context, expiresAt time.Time) (signer.Credential, error) {
	const op = "create asset key"
	if c.config.ManagementToken == "" {
		return signer.Credential{}, errors.Newf("%s: no management token configured", op).
			Component("source").
			Category(errors.CategoryCredential).
			Build()
	}

	target := fmt.Sprintf("%s/spaces/%s/environments/%s/asset_keys",
		strings.TrimRight(c.config.ManagementURL, "/"),
		url.PathEscape(c.config.SpaceID), url.PathEscape(c.config.Environment))
	body, err := json.Marshal(map[string]int64{"expiresAt": expiresAt.Unix()})
	if err != nil {
		return signer.Credential{}, err
	}

	resp, err := c.http.DoWithRetry(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := httpclient.NewRequest(ctx, http.MethodPost, target, body)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+c.config.ManagementToken)
		return req, nil
	})
	if err != nil {
		return signer.Credential{}, err
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return signer.Credential{}, c.statusError(op, resp)
	}
	defer func() { _ = resp.Body.Close() }()

	var key assetKeyResponse
	if err := json.NewDecoder(resp.Body).Decode(&key); err != nil {
		return signer.Credential{}, errors.New(fmt.Errorf("%s: decode response: %w", op, err)).
			Component("source").
			Category(errors.CategoryHTTP).
			Build()
	}
	return signer.Credential{Secret: key.Secret, Policy: key.Policy, ExpiresAt: expiresAt}, nil
}

// paginate walks skip/limit pages until total items have been read.
func paginate[T any](ctx context.Context, c *Client, op, path string, query url.Values) ([]T, error) {
	var items []T
	pageSize := c.config.PageSize

	for skip := 0; ; skip += pageSize {
		q := url.Values{}
		for k, v := range query {
			q[k] = v
		}
		q.Set("skip", strconv.Itoa(skip))
		q.Set("limit", strconv.Itoa(pageSize))

		var page content.Collection[T]
		if err := c.get(ctx, op, path, q, &page); err != nil {
			return nil, err
		}
		items = append(items, page.Items...)

		GetLogger().Debug("page fetched",
			logger.String("operation", op),
			logger.Int("skip", skip),
			logger.Int("count", len(page.Items)),
			logger.Int("total", page.Total))

		if len(page.Items) == 0 || skip+pageSize >= page.Total {
			break
		}
	}
	if items == nil {
		items = []T{}
	}
	return items, nil
}

func (c *Client) get(ctx context.Context, op, path string, query url.Values, out any) error {
	target := strings.TrimRight(c.config.DeliveryURL, "/") + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	resp, err := c.http.DoWithRetry(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, http.NoBody)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+c.config.DeliveryToken)
		return req, nil
	})
	if err != nil {
		return err
	}

	if resp.StatusCode != http.StatusOK {
		return c.statusError(op, resp)
	}
	defer func() { _ = resp.Body.Close() }()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.New(fmt.Errorf("%s: decode response: %w", op, err)).
			Component("source").
			Category(errors.CategoryHTTP).
			Context("operation", op).
			Build()
	}
	return nil
}

func (c *Client) statusError(op string, resp *http.Response) error {
	body := strings.TrimSpace(httpclient.ReadBody(resp, errorBodyLimit))
	category := errors.CategoryHTTP
	if resp.StatusCode == http.StatusNotFound {
		category = errors.CategoryNotFound
	}
	return errors.Newf("%s: unexpected status %d: %s", op, resp.StatusCode, body).
		Component("source").
		Category(category).
		Context("operation", op).
		Context("status_code", resp.StatusCode).
		Build()
}

func (c *Client) cached(key string) (any, bool) {
	v, ok := c.cache.Get(key)
	if ok {
		c.cacheHits.Add(1)
	} else {
		c.cacheMisses.Add(1)
	}
	return v, ok
}

func (c *Client) deliveryPath(resource string) string {
	return "/spaces/" + url.PathEscape(c.config.SpaceID) +
		"/environments/" + url.PathEscape(c.config.Environment) +
		"/" + resource
}
