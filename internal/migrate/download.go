package migrate

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/afero"

	"github.com/o2cms/cfmigrate/internal/errors"
	"github.com/o2cms/cfmigrate/internal/httpclient"
	"github.com/o2cms/cfmigrate/internal/logger"
	"github.com/o2cms/cfmigrate/internal/observability/metrics"
)

// DownloaderConfig configures a Downloader.
type DownloaderConfig struct {
	// Client fetches files; its timeout bounds each attempt.
	Client *httpclient.Client
	// Fs holds temporary files. Nil means the OS filesystem.
	Fs afero.Fs
	// Dir is the temp directory; empty means the system default.
	Dir string

	Attempts int
	Backoff  time.Duration
}

// Downloader fetches asset files into temporary files.
type Downloader struct {
	client   *httpclient.Client
	insecure *httpclient.Client
	fs       afero.Fs
	dir      string
	attempts int
	backoff  time.Duration
}

// NewDownloader creates a Downloader.
func NewDownloader(cfg DownloaderConfig) *Downloader {
	client := cfg.Client
	if client == nil {
		client = httpclient.New(nil)
	}
	fs := cfg.Fs
	if fs == nil {
		fs = afero.NewOsFs()
	}
	attempts := cfg.Attempts
	if attempts <= 0 {
		attempts = DefaultDownloadAttempts
	}
	backoff := cfg.Backoff
	if backoff < 0 {
		backoff = DefaultDownloadBackoff
	}
	return &Downloader{
		client:   client,
		insecure: client.Insecure(),
		fs:       fs,
		dir:      cfg.Dir,
		attempts: attempts,
		backoff:  backoff,
	}
}

// TempFile is a downloaded file positioned at its start. Close removes it.
type TempFile struct {
	afero.File
	fs   afero.Fs
	Size int64
}

// Close closes and removes the file.
func (t *TempFile) Close() error {
	closeErr := t.File.Close()
	if err := t.fs.Remove(t.Name()); err != nil && !os.IsNotExist(err) {
		return err
	}
	return closeErr
}

// Download fetches url into a temp file named after fileName's extension.
// Each attempt is retried after the backoff. When the last attempt fails on
// certificate verification, one more attempt is made without verification.
func (d *Downloader) Download(ctx context.Context, url, fileName string) (*TempFile, error) {
	log := GetLogger().WithContext(ctx)

	var lastErr error
	for attempt := 1; attempt <= d.attempts; attempt++ {
		f, err := d.fetch(ctx, d.client, url, fileName)
		if err == nil {
			log.Debug("asset downloaded",
				logger.String("file", fileName),
				logger.String("size", humanize.Bytes(uint64(f.Size))),
				logger.Int("attempt", attempt))
			return f, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}

		if attempt == d.attempts {
			if isCertificateError(err) {
				log.Warn("certificate verification failed, retrying without verification",
					logger.String("file", fileName),
					logger.Error(err))
				if f, err = d.fetch(ctx, d.insecure, url, fileName); err == nil {
					return f, nil
				}
				lastErr = err
			}
			break
		}

		log.Debug("download attempt failed",
			logger.String("file", fileName),
			logger.Int("attempt", attempt),
			logger.Error(err))
		if err := httpclient.SleepContext(ctx, d.backoff); err != nil {
			break
		}
	}

	return nil, errors.New(lastErr).
		Component("migrate").
		Context("operation", metrics.OpAssetDownload).
		Context("attempts", d.attempts).
		Build()
}

func (d *Downloader) fetch(ctx context.Context, client *httpclient.Client, url, fileName string) (*TempFile, error) {
	req, err := httpclient.NewRequest(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	resp, err := client.Do(ctx, req)
	if err != nil {
		return nil, errors.New(err).
			Component("migrate").
			Category(errors.CategoryNetwork).
			NetworkContext(url, 0).
			Timing(metrics.OpAssetDownload, time.Since(start)).
			Build()
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Newf("download %s: unexpected status %d", fileName, resp.StatusCode).
			Component("migrate").
			Category(errors.CategoryHTTP).
			Context("status_code", resp.StatusCode).
			Build()
	}

	f, err := afero.TempFile(d.fs, d.dir, "cfmigrate-*"+path.Ext(fileName))
	if err != nil {
		return nil, fileError(err, "create temp file")
	}
	tmp := &TempFile{File: f, fs: d.fs}

	n, err := io.Copy(f, resp.Body)
	if err != nil {
		_ = tmp.Close()
		return nil, errors.New(fmt.Errorf("download %s: %w", fileName, err)).
			Component("migrate").
			Category(errors.CategoryNetwork).
			Timing(metrics.OpAssetDownload, time.Since(start)).
			Context("bytes_read", n).
			Build()
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		_ = tmp.Close()
		return nil, fileError(err, "rewind temp file")
	}
	tmp.Size = n
	return tmp, nil
}

func fileError(err error, op string) error {
	return errors.New(err).
		Component("migrate").
		Category(errors.CategoryFileIO).
		Context("operation", op).
		Build()
}

func isCertificateError(err error) bool {
	var unknownAuthority x509.UnknownAuthorityError
	var invalid x509.CertificateInvalidError
	var hostname x509.HostnameError
	var verification *tls.CertificateVerificationError
	return errors.As(err, &unknownAuthority) ||
		errors.As(err, &invalid) ||
		errors.As(err, &hostname) ||
		errors.As(err, &verification)
}
