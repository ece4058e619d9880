// Package destination is the client for the O2 CMS management API: spaces,
// environments, content types, uploads, assets and entries.
package destination

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"github.com/o2cms/cfmigrate/internal/errors"
	"github.com/o2cms/cfmigrate/internal/httpclient"
	"github.com/o2cms/cfmigrate/internal/logger"
)

const (
	errorBodyLimit = 2048

	// ContentTypeHeader carries the destination content type id on entry creation.
	ContentTypeHeader = "X-Content-Type"
)

// Config configures a Client.
type Config struct {
	BaseURL string
	Token   string

	// Timeout bounds metadata calls; TransferTimeout bounds uploads.
	Timeout         time.Duration
	TransferTimeout time.Duration

	MaxAttempts int
	RetryDelay  time.Duration

	UserAgent string
	// Transport overrides the HTTP transport (tests)
	Transport http.RoundTripper

	// Observe, when set, is called after every HTTP exchange.
	Observe func(*http.Request, *http.Response, error)
}

// Client talks to one destination. Space-scoped calls use the space and
// environment set with Bind. Safe for concurrent use once bound.
type Client struct {
	baseURL  string
	token    string
	http     *httpclient.Client
	transfer *httpclient.Client

	spaceID       string
	environmentID string
}

// New creates a destination client.
func New(cfg Config) *Client {
	base := httpclient.Config{
		DefaultTimeout: cfg.Timeout,
		MaxAttempts:    cfg.MaxAttempts,
		RetryDelay:     cfg.RetryDelay,
		UserAgent:      cfg.UserAgent,
		Transport:      cfg.Transport,
	}
	transfer := base
	transfer.DefaultTimeout = cfg.TransferTimeout

	c := &Client{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		token:    cfg.Token,
		http:     httpclient.New(&base),
		transfer: httpclient.New(&transfer),
	}
	if cfg.Observe != nil {
		c.http.SetAfterResponseHook(cfg.Observe)
		c.transfer.SetAfterResponseHook(cfg.Observe)
	}
	return c
}

// Bind returns a client scoped to a space and environment. The receiver is
// not modified.
func (c *Client) Bind(spaceID, environmentID string) *Client {
	bound := *c
	bound.spaceID = spaceID
	bound.environmentID = environmentID
	return &bound
}

// SpaceID returns the bound space.
func (c *Client) SpaceID() string { return c.spaceID }

// EnvironmentID returns the bound environment.
func (c *Client) EnvironmentID() string { return c.environmentID }

// Close releases idle connections.
func (c *Client) Close() {
	c.http.Close()
	c.transfer.Close()
}

// ListSpaces returns every space the token can access.
func (c *Client) ListSpaces(ctx context.Context) ([]Space, error) {
	var out collection[Space]
	if err := c.doJSON(ctx, "list spaces", http.MethodGet, "/v1/spaces", nil, nil, http.StatusOK, &out); err != nil {
		return nil, err
	}
	return out.Items, nil
}

// CreateSpace creates a space.
func (c *Client) CreateSpace(ctx context.Context, name, description string) (Space, error) {
	body := map[string]string{"name": name}
	if description != "" {
		body["description"] = description
	}
	var space Space
	if err := c.doJSON(ctx, "create space", http.MethodPost, "/v1/spaces", body, nil, http.StatusCreated, &space); err != nil {
		return Space{}, err
	}
	return space, nil
}

// ResolveEnvironment finds the environment of spaceID whose name or id
// equals name. When none matches, name itself is used as the id.
func (c *Client) ResolveEnvironment(ctx context.Context, spaceID, name string) (string, error) {
	var out collection[Environment]
	path := "/v1/spaces/" + url.PathEscape(spaceID) + "/environments"
	if err := c.doJSON(ctx, "list environments", http.MethodGet, path, nil, nil, http.StatusOK, &out); err != nil {
		return "", err
	}
	for _, env := range out.Items {
		if env.Name == name || env.Sys.ID == name {
			return env.Sys.ID, nil
		}
	}
	GetLogger().Warn("environment not listed, using name as id",
		logger.String("space_id", spaceID),
		logger.String("environment", name))
	return name, nil
}

// ListSchemas returns the content types of the bound environment.
func (c *Client) ListSchemas(ctx context.Context) ([]Schema, error) {
	var out collection[Schema]
	if err := c.doJSON(ctx, "list content types", http.MethodGet, c.envPath("content_types"), nil, nil, http.StatusOK, &out); err != nil {
		return nil, err
	}
	return out.Items, nil
}

// CreateSchema creates a content type and returns its id.
func (c *Client) CreateSchema(ctx context.Context, payload SchemaPayload) (string, error) {
	return c.create(ctx, "create content type", c.envPath("content_types"), payload, nil)
}

// PublishSchema publishes a content type.
func (c *Client) PublishSchema(ctx context.Context, id string) error {
	return c.publish(ctx, "publish content type", c.envPath("content_types", id, "published"))
}

// CreateAsset creates an asset from a finished upload and returns its id.
func (c *Client) CreateAsset(ctx context.Context, payload AssetPayload) (string, error) {
	return c.create(ctx, "create asset", c.envPath("assets"), payload, nil)
}

// PublishAsset publishes an asset.
func (c *Client) PublishAsset(ctx context.Context, id string) error {
	return c.publish(ctx, "publish asset", c.envPath("assets", id, "published"))
}

// CreateRecord creates an entry of the destination content type schemaID.
func (c *Client) CreateRecord(ctx context.Context, schemaID string, payload RecordPayload) (string, error) {
	header := http.Header{}
	header.Set(ContentTypeHeader, schemaID)
	return c.create(ctx, "create entry", c.envPath("entries"), payload, header)
}

// PublishRecord publishes an entry.
func (c *Client) PublishRecord(ctx context.Context, id string) error {
	return c.publish(ctx, "publish entry", c.envPath("entries", id, "published"))
}

// Upload sends a file as multipart field "file" and returns the upload id.
// The reader is rewound for every attempt.
func (c *Client) Upload(ctx context.Context, filename, contentType string, file io.ReadSeeker) (string, error) {
	const op = "upload file"

	size, err := file.Seek(0, io.SeekEnd)
	if err != nil {
		return "", errors.New(fmt.Errorf("%s: %w", op, err)).
			Component("destination").
			Category(errors.CategoryFileIO).
			Build()
	}

	prefix, suffix, formType, err := multipartFrame(filename, contentType)
	if err != nil {
		return "", err
	}

	target := c.baseURL + "/v1/spaces/" + url.PathEscape(c.spaceID) + "/uploads"
	resp, err := c.transfer.DoWithRetry(ctx, func(ctx context.Context) (*http.Request, error) {
		if _, err := file.Seek(0, io.SeekStart); err != nil {
			return nil, err
		}
		body := io.MultiReader(bytes.NewReader(prefix), file, bytes.NewReader(suffix))
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, body)
		if err != nil {
			return nil, err
		}
		req.ContentLength = int64(len(prefix)) + size + int64(len(suffix))
		req.Header.Set("Content-Type", formType)
		c.authorize(req)
		return req, nil
	})
	if err != nil {
		return "", err
	}

	var out created
	if err := c.decode(op, resp, http.StatusCreated, &out); err != nil {
		return "", err
	}
	if out.Sys.ID == "" {
		return "", c.missingID(op)
	}
	return out.Sys.ID, nil
}

// multipartFrame renders the multipart envelope around the file content.
func multipartFrame(filename, contentType string) (prefix, suffix []byte, formType string, err error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, filename))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	h.Set("Content-Type", contentType)
	if _, err := w.CreatePart(h); err != nil {
		return nil, nil, "", err
	}
	prefix = bytes.Clone(buf.Bytes())
	buf.Reset()

	if err := w.Close(); err != nil {
		return nil, nil, "", err
	}
	return prefix, bytes.Clone(buf.Bytes()), w.FormDataContentType(), nil
}

func (c *Client) create(ctx context.Context, op, path string, payload any, header http.Header) (string, error) {
	var out created
	if err := c.doJSON(ctx, op, http.MethodPost, path, payload, header, http.StatusCreated, &out); err != nil {
		return "", err
	}
	if out.Sys.ID == "" {
		return "", c.missingID(op)
	}
	return out.Sys.ID, nil
}

func (c *Client) publish(ctx context.Context, op, path string) error {
	return c.doJSON(ctx, op, http.MethodPut, path, nil, nil, http.StatusOK, nil)
}

// doJSON sends a JSON request and decodes the response into out when the
// status equals want.
func (c *Client) doJSON(ctx context.Context, op, method, path string, payload any, header http.Header, want int, out any) error {
	var data []byte
	if payload != nil {
		var err error
		data, err = json.Marshal(payload)
		if err != nil {
			return errors.New(fmt.Errorf("%s: encode body: %w", op, err)).
				Component("destination").
				Category(errors.CategoryValidation).
				Build()
		}
	}

	start := time.Now()
	resp, err := c.http.DoWithRetry(ctx, func(ctx context.Context) (*http.Request, error) {
		var body io.Reader = http.NoBody
		if data != nil {
			body = bytes.NewReader(data)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		for key, values := range header {
			for _, v := range values {
				req.Header.Add(key, v)
			}
		}
		c.authorize(req)
		return req, nil
	})
	if err != nil {
		return err
	}

	GetLogger().Debug("destination call",
		logger.String("operation", op),
		logger.Int("status", resp.StatusCode),
		logger.Duration("elapsed", time.Since(start)))

	return c.decode(op, resp, want, out)
}

func (c *Client) decode(op string, resp *http.Response, want int, out any) error {
	if resp.StatusCode != want {
		statusErr := &StatusError{
			Op:         op,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(httpclient.ReadBody(resp, errorBodyLimit)),
		}
		return errors.New(statusErr).
			Component("destination").
			Category(errors.CategoryHTTP).
			Context("operation", op).
			Context("status_code", resp.StatusCode).
			Build()
	}
	defer func() { _ = resp.Body.Close() }()

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.New(fmt.Errorf("%s: decode response: %w", op, err)).
			Component("destination").
			Category(errors.CategoryHTTP).
			Build()
	}
	return nil
}

func (c *Client) missingID(op string) error {
	return errors.Newf("%s: response carried no sys.id", op).
		Component("destination").
		Category(errors.CategoryHTTP).
		Build()
}

func (c *Client) authorize(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.token)
}

func (c *Client) envPath(parts ...string) string {
	var b strings.Builder
	b.WriteString("/v1/spaces/")
	b.WriteString(url.PathEscape(c.spaceID))
	b.WriteString("/environments/")
	b.WriteString(url.PathEscape(c.environmentID))
	for _, p := range parts {
		b.WriteByte('/')
		b.WriteString(url.PathEscape(p))
	}
	return b.String()
}
