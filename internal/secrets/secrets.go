// Package secrets resolves API tokens from config values, environment
// references and mounted secret files.
package secrets

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"

	"github.com/o2cms/cfmigrate/internal/errors"
	"github.com/o2cms/cfmigrate/internal/logger"
)

// maxSecretFileSize limits secret file reads; tokens are small.
const maxSecretFileSize = 64 * 1024

// Resolver reads secrets. The zero value uses the OS filesystem and
// environment.
type Resolver struct {
	Fs     afero.Fs
	Getenv func(string) string
}

func (r Resolver) fs() afero.Fs {
	if r.Fs == nil {
		return afero.NewOsFs()
	}
	return r.Fs
}

func (r Resolver) getenv(key string) string {
	if r.Getenv == nil {
		return os.Getenv(key)
	}
	return r.Getenv(key)
}

// Expand replaces ${VAR} and ${VAR:-default} references in s. A reference
// to an unset variable without a default is an error.
func (r Resolver) Expand(s string) (string, error) {
	if s == "" {
		return "", nil
	}

	var missing []string
	expanded := os.Expand(s, func(key string) string {
		name, def, hasDefault := strings.Cut(key, ":-")
		if value := r.getenv(name); value != "" {
			return value
		}
		if hasDefault {
			return def
		}
		missing = append(missing, name)
		return ""
	})

	if len(missing) > 0 {
		return "", errors.Newf("missing environment variable(s): %s", strings.Join(missing, ", ")).
			Component("secrets").
			Category(errors.CategoryCredential).
			Build()
	}
	return expanded, nil
}

// ReadFile reads a secret file such as a Docker or Kubernetes secret mount.
// Trailing newlines are dropped.
func (r Resolver) ReadFile(path string) (string, error) {
	clean := filepath.Clean(path)
	fail := func(format string, args ...any) error {
		return errors.Newf(format, args...).
			Component("secrets").
			Category(errors.CategoryCredential).
			Context("path", clean).
			Build()
	}

	info, err := r.fs().Stat(clean)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fail("secret file not found: %s", clean)
		}
		return "", fail("stat secret file %s: %v", clean, err)
	}
	if !info.Mode().IsRegular() {
		return "", fail("secret path is not a regular file: %s", clean)
	}
	if info.Size() > maxSecretFileSize {
		return "", fail("secret file larger than %d bytes: %s", maxSecretFileSize, clean)
	}
	if perm := info.Mode().Perm(); perm&0o077 != 0 {
		GetLogger().Warn("secret file is readable by group or others",
			logger.String("path", clean),
			logger.String("mode", fmt.Sprintf("%04o", perm)))
	}

	data, err := afero.ReadFile(r.fs(), clean)
	if err != nil {
		return "", fail("read secret file %s: %v", clean, err)
	}
	secret := strings.TrimRight(string(data), "\r\n")
	if secret == "" {
		return "", fail("secret file is empty: %s", clean)
	}
	return secret, nil
}

// Resolve returns the secret from file when set, otherwise value with
// environment references expanded.
func (r Resolver) Resolve(value, file string) (string, error) {
	if file != "" {
		return r.ReadFile(file)
	}
	return r.Expand(value)
}
