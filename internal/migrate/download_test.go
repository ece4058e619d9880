package migrate

import (
	"crypto/tls"
	"crypto/x509"
	"io"
	"net/http"
	"sync/atomic"
	"testing"

	"github.com/jarcoal/httpmock"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/o2cms/cfmigrate/internal/errors"
	"github.com/o2cms/cfmigrate/internal/httpclient"
)

const fileURL = "https://files.example.com/photo.jpg"

func newTestDownloader(t *testing.T) (*Downloader, *httpmock.MockTransport, afero.Fs) {
	t.Helper()
	transport := httpmock.NewMockTransport()
	client := httpclient.New(&httpclient.Config{Transport: transport})
	t.Cleanup(client.Close)
	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll(testTempDir, 0o755))
	return NewDownloader(DownloaderConfig{Client: client, Fs: fs, Dir: testTempDir}), transport, fs
}

func TestDownloadWritesTempFile(t *testing.T) {
	t.Parallel()
	d, transport, fs := newTestDownloader(t)
	transport.RegisterResponder(http.MethodGet, fileURL, httpmock.NewStringResponder(http.StatusOK, "jpeg-bytes"))

	f, err := d.Download(t.Context(), fileURL, "photo.jpg")
	require.NoError(t, err)
	assert.Equal(t, int64(10), f.Size)
	assert.Contains(t, f.Name(), ".jpg")

	data, err := io.ReadAll(f)
	require.NoError(t, err)
	assert.Equal(t, "jpeg-bytes", string(data))

	require.NoError(t, f.Close())
	exists, err := afero.Exists(fs, f.Name())
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestDownloadRetriesThenSucceeds(t *testing.T) {
	t.Parallel()
	d, transport, _ := newTestDownloader(t)

	var calls atomic.Int32
	transport.RegisterResponder(http.MethodGet, fileURL, func(*http.Request) (*http.Response, error) {
		if calls.Add(1) < 3 {
			return httpmock.NewStringResponse(http.StatusBadGateway, ""), nil
		}
		return httpmock.NewStringResponse(http.StatusOK, "ok"), nil
	})

	f, err := d.Download(t.Context(), fileURL, "photo.jpg")
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.Close() })
	assert.Equal(t, int32(3), calls.Load())
}

func TestDownloadGivesUpAfterAttempts(t *testing.T) {
	t.Parallel()
	d, transport, fs := newTestDownloader(t)
	transport.RegisterResponder(http.MethodGet, fileURL, httpmock.NewStringResponder(http.StatusNotFound, ""))

	_, err := d.Download(t.Context(), fileURL, "photo.jpg")
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryHTTP))
	assert.Contains(t, err.Error(), "404")
	assert.Equal(t, DefaultDownloadAttempts, transport.GetTotalCallCount())

	entries, err := afero.ReadDir(fs, testTempDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestDownloadFallsBackOnCertificateError(t *testing.T) {
	t.Parallel()
	d, transport, _ := newTestDownloader(t)

	var calls atomic.Int32
	transport.RegisterResponder(http.MethodGet, fileURL, func(*http.Request) (*http.Response, error) {
		if calls.Add(1) <= DefaultDownloadAttempts {
			return nil, &tls.CertificateVerificationError{Err: x509.UnknownAuthorityError{}}
		}
		return httpmock.NewStringResponse(http.StatusOK, "ok"), nil
	})

	f, err := d.Download(t.Context(), fileURL, "photo.jpg")
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.Close() })
	assert.Equal(t, int32(DefaultDownloadAttempts+1), calls.Load())
}

func TestDownloadNoFallbackForOtherErrors(t *testing.T) {
	t.Parallel()
	d, transport, _ := newTestDownloader(t)
	transport.RegisterResponder(http.MethodGet, fileURL, httpmock.NewErrorResponder(errors.NewStd("connection reset")))

	_, err := d.Download(t.Context(), fileURL, "photo.jpg")
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryNetwork))
	assert.Equal(t, DefaultDownloadAttempts, transport.GetTotalCallCount())
}

func TestIsCertificateError(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"unknown authority", x509.UnknownAuthorityError{}, true},
		{"hostname", x509.HostnameError{Host: "x"}, true},
		{"expired", x509.CertificateInvalidError{Reason: x509.Expired}, true},
		{"verification", &tls.CertificateVerificationError{Err: errors.NewStd("bad")}, true},
		{"other", errors.NewStd("connection refused"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, isCertificateError(tt.err))
		})
	}
}

func TestFetchNetworkErrorCarriesTiming(t *testing.T) {
	t.Parallel()
	d, transport, _ := newTestDownloader(t)
	transport.RegisterResponder(http.MethodGet, fileURL, httpmock.NewErrorResponder(errors.NewStd("connection reset")))

	_, err := d.fetch(t.Context(), d.client, fileURL, "photo.jpg")
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryNetwork))

	var ee *errors.EnhancedError
	require.True(t, errors.As(err, &ee))
	assert.Equal(t, "asset_download", ee.Context["operation"])
	assert.Contains(t, ee.Context, "duration_ms")
}
