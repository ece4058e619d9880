package migrate

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/jarcoal/httpmock"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"github.com/o2cms/cfmigrate/internal/content"
	"github.com/o2cms/cfmigrate/internal/destination"
	"github.com/o2cms/cfmigrate/internal/errors"
	"github.com/o2cms/cfmigrate/internal/httpclient"
	"github.com/o2cms/cfmigrate/internal/state"
)

const (
	testStatePath = "/state/migration_state.json"
	testTempDir   = "/tmp/cfmigrate"
	filesHost     = "https://files.example.com/"
)

func decode[T any](t *testing.T, raw string) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal([]byte(raw), &v))
	return v
}

func schemaJSON(id string, validations string) string {
	if validations == "" {
		validations = "[]"
	}
	return fmt.Sprintf(`{"sys":{"id":%q},"name":%q,"fields":[{"id":"title","name":"Title","type":"Symbol","validations":%s}]}`,
		id, id+" name", validations)
}

func assetJSON(id string) string {
	return assetURLJSON(id, "//files.example.com/"+id+".png")
}

func assetURLJSON(id, url string) string {
	return fmt.Sprintf(`{"sys":{"id":%q},"fields":{"title":{"en-US":%q},"file":{"en-US":{"url":%q,"fileName":"%s.png","contentType":"image/png"}}}}`,
		id, "Asset "+id, url, id)
}

func link(kind, id string) string {
	return fmt.Sprintf(`{"sys":{"type":"Link","linkType":%q,"id":%q}}`, kind, id)
}

func recordJSON(id, schemaID string, fields map[string]string) string {
	parts := make(map[string]json.RawMessage, len(fields))
	for name, v := range fields {
		parts[name] = json.RawMessage(`{"en-US":` + v + `}`)
	}
	data, _ := json.Marshal(parts)
	return fmt.Sprintf(`{"sys":{"id":%q,"contentType":%s},"fields":%s}`, id, link("ContentType", schemaID), data)
}

// fakeSource serves fixed listings.
type fakeSource struct {
	schemas []content.Schema
	assets  []content.Asset
	records map[string][]content.Record

	recordCalls atomic.Int32
}

func newFakeSource() *fakeSource {
	return &fakeSource{records: make(map[string][]content.Record)}
}

func (s *fakeSource) addSchema(t *testing.T, raw string) {
	s.schemas = append(s.schemas, decode[content.Schema](t, raw))
}

func (s *fakeSource) addAsset(t *testing.T, raw string) {
	s.assets = append(s.assets, decode[content.Asset](t, raw))
}

func (s *fakeSource) addRecord(t *testing.T, raw string) {
	r := decode[content.Record](t, raw)
	s.records[r.SchemaID()] = append(s.records[r.SchemaID()], r)
}

func (s *fakeSource) ListSchemas(context.Context) ([]content.Schema, error) {
	return s.schemas, nil
}

func (s *fakeSource) ListAssets(context.Context) ([]content.Asset, error) {
	return s.assets, nil
}

func (s *fakeSource) ListRecords(_ context.Context, schemaID string) ([]content.Record, error) {
	s.recordCalls.Add(1)
	return s.records[schemaID], nil
}

type createdRecord struct {
	schemaID string
	payload  destination.RecordPayload
}

// fakeDest keeps everything it is sent in memory.
type fakeDest struct {
	mu  sync.Mutex
	seq int

	existing []destination.Schema
	schemas  map[string]destination.SchemaPayload
	uploads  map[string][]byte
	assets   map[string]destination.AssetPayload
	records  map[string]createdRecord
	order    []string

	published    atomic.Int32
	publishErr   error
	uploadErr    func(filename string) error
	onRecord     func(n int)
	createRecord atomic.Int32
	createAsset  atomic.Int32
}

func newFakeDest() *fakeDest {
	return &fakeDest{
		schemas: make(map[string]destination.SchemaPayload),
		uploads: make(map[string][]byte),
		assets:  make(map[string]destination.AssetPayload),
		records: make(map[string]createdRecord),
	}
}

func (d *fakeDest) nextID(kind string) string {
	d.seq++
	id := fmt.Sprintf("%s-%d", kind, d.seq)
	d.order = append(d.order, id)
	return id
}

func (d *fakeDest) ListSchemas(context.Context) ([]destination.Schema, error) {
	return d.existing, nil
}

func (d *fakeDest) CreateSchema(_ context.Context, payload destination.SchemaPayload) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	id := d.nextID("ct")
	d.schemas[id] = payload
	return id, nil
}

func (d *fakeDest) PublishSchema(context.Context, string) error { return d.publish() }

func (d *fakeDest) Upload(_ context.Context, filename, _ string, file io.ReadSeeker) (string, error) {
	if d.uploadErr != nil {
		if err := d.uploadErr(filename); err != nil {
			return "", err
		}
	}
	data, err := io.ReadAll(file)
	if err != nil {
		return "", err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	id := d.nextID("up")
	d.uploads[id] = data
	return id, nil
}

func (d *fakeDest) CreateAsset(_ context.Context, payload destination.AssetPayload) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	id := d.nextID("as")
	d.assets[id] = payload
	d.createAsset.Add(1)
	return id, nil
}

func (d *fakeDest) PublishAsset(context.Context, string) error { return d.publish() }

func (d *fakeDest) CreateRecord(_ context.Context, schemaID string, payload destination.RecordPayload) (string, error) {
	d.mu.Lock()
	id := d.nextID("en")
	d.records[id] = createdRecord{schemaID: schemaID, payload: payload}
	d.mu.Unlock()

	n := int(d.createRecord.Add(1))
	if d.onRecord != nil {
		d.onRecord(n)
	}
	return id, nil
}

func (d *fakeDest) PublishRecord(context.Context, string) error { return d.publish() }

func (d *fakeDest) publish() error {
	d.published.Add(1)
	return d.publishErr
}

func (d *fakeDest) counts() (schemas, assets, records int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.schemas), len(d.assets), len(d.records)
}

// fakeRecorder counts outcomes and tracks pool occupancy.
type fakeRecorder struct {
	mu      sync.Mutex
	ops     map[string]int
	busy    int
	maxBusy int
}

func newFakeRecorder() *fakeRecorder {
	return &fakeRecorder{ops: make(map[string]int)}
}

func (r *fakeRecorder) RecordOperation(operation, status string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ops[operation+"/"+status]++
}

func (r *fakeRecorder) RecordDuration(string, float64) {}

func (r *fakeRecorder) RecordError(operation, errorType string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ops["error:"+operation+"/"+errorType]++
}

func (r *fakeRecorder) WorkerBusy(delta int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.busy += delta
	r.maxBusy = max(r.maxBusy, r.busy)
}

func (r *fakeRecorder) count(key string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ops[key]
}

type harness struct {
	src   *fakeSource
	dest  *fakeDest
	fs    afero.Fs
	files *httpmock.MockTransport
	rec   *fakeRecorder
	store *state.Store

	// signer is passed to the migrator when set
	signer URLSigner
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll(testTempDir, 0o755))
	h := &harness{
		src:   newFakeSource(),
		dest:  newFakeDest(),
		fs:    fs,
		files: httpmock.NewMockTransport(),
		rec:   newFakeRecorder(),
	}
	h.store = h.loadStore(t)
	return h
}

// loadStore opens the persisted state as a new process would.
func (h *harness) loadStore(t *testing.T) *state.Store {
	t.Helper()
	store := state.NewStore(state.NewFileBackend(h.fs, testStatePath))
	require.NoError(t, store.Load(t.Context()))
	return store
}

// serveFiles registers a download for every asset id.
func (h *harness) serveFiles(ids ...string) {
	for _, id := range ids {
		h.files.RegisterResponder(http.MethodGet, filesHost+id+".png",
			httpmock.NewStringResponder(http.StatusOK, "data-"+id))
	}
}

func (h *harness) migrator(t *testing.T, opts Options) *Migrator {
	t.Helper()
	client := httpclient.New(&httpclient.Config{Transport: h.files})
	t.Cleanup(client.Close)
	m, err := New(&Config{
		Source:      h.src,
		Destination: h.dest,
		Store:       h.store,
		Downloader: NewDownloader(DownloaderConfig{
			Client: client,
			Fs:     h.fs,
			Dir:    testTempDir,
		}),
		Signer:   h.signer,
		Recorder: h.rec,
		Options:  opts,
	})
	require.NoError(t, err)
	return m
}

func (h *harness) tempFiles(t *testing.T) int {
	t.Helper()
	entries, err := afero.ReadDir(h.fs, testTempDir)
	require.NoError(t, err)
	return len(entries)
}

func testOptions(workers int) Options {
	return Options{Workers: workers, CheckpointInterval: 2}
}

func isCancellation(err error) bool {
	return errors.IsCategory(err, errors.CategoryCancellation)
}
