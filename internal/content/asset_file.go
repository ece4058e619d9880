package content

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"path"
)

const (
	defaultFileName    = "file"
	defaultContentType = "application/octet-stream"
)

// FileShape names the layout an asset's file field arrived in.
type FileShape int

const (
	// FileAbsent means no file payload: the asset is skipped.
	FileAbsent FileShape = iota
	// FileLocalized is {"<locale>": {url, fileName, contentType}}.
	FileLocalized
	// FileDirect is {url, fileName, contentType} without a locale wrapper.
	FileDirect
	// FileURL is a locale map whose first value is a bare URL string.
	FileURL
	// FileUnsupported is any other layout: the asset is skipped.
	FileUnsupported
)

// String returns the shape name used in logs.
func (s FileShape) String() string {
	switch s {
	case FileAbsent:
		return "absent"
	case FileLocalized:
		return "localized"
	case FileDirect:
		return "direct"
	case FileURL:
		return "url"
	default:
		return "unsupported"
	}
}

// FileInfo is the resolved file reference of an asset.
type FileInfo struct {
	URL         string
	FileName    string
	ContentType string
	Size        int64
}

// AssetFile is the file field of an asset, decoded once into one of the
// shapes above. Only the first locale's file is migrated.
type AssetFile struct {
	Shape  FileShape
	Locale string
	Info   FileInfo
}

type rawFileInfo struct {
	URL         string `json:"url"`
	FileName    string `json:"fileName"`
	ContentType string `json:"contentType"`
	Details     struct {
		Size int64 `json:"size"`
	} `json:"details"`
}

// UnmarshalJSON classifies the file payload. When the first value of the
// object is itself an object it is the localized file; otherwise an object
// carrying "url" is the file; otherwise the first value is a bare URL.
func (f *AssetFile) UnmarshalJSON(data []byte) error {
	*f = AssetFile{}

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}
	if trimmed[0] != '{' {
		f.Shape = FileUnsupported
		return nil
	}

	keys, err := orderedKeys(trimmed)
	if err != nil {
		return fmt.Errorf("decode asset file: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &fields); err != nil {
		return fmt.Errorf("decode asset file: %w", err)
	}

	first := bytes.TrimSpace(fields[keys[0]])
	switch {
	case len(first) > 0 && first[0] == '{':
		info, err := decodeFileInfo(first)
		if err != nil {
			return err
		}
		f.Shape, f.Locale, f.Info = FileLocalized, keys[0], info

	case hasKey(fields, "url"):
		info, err := decodeFileInfo(trimmed)
		if err != nil {
			return err
		}
		f.Shape, f.Info = FileDirect, info

	case len(first) > 0 && first[0] == '"':
		var rawURL string
		if err := json.Unmarshal(first, &rawURL); err != nil {
			return fmt.Errorf("decode asset file url: %w", err)
		}
		f.Shape, f.Locale = FileURL, keys[0]
		f.Info = FileInfo{
			URL:         rawURL,
			FileName:    fileNameFromURL(rawURL),
			ContentType: defaultContentType,
		}

	default:
		f.Shape = FileUnsupported
	}

	if f.Info.URL == "" && f.Shape != FileUnsupported {
		f.Shape = FileAbsent
	}
	return nil
}

// MarshalJSON emits the localized shape so a decoded asset can be stored or
// logged.
func (f AssetFile) MarshalJSON() ([]byte, error) {
	if f.Info.URL == "" {
		return []byte("null"), nil
	}
	locale := f.Locale
	if locale == "" {
		locale = DefaultLocale
	}
	return json.Marshal(map[string]rawFileInfo{locale: {
		URL:         f.Info.URL,
		FileName:    f.Info.FileName,
		ContentType: f.Info.ContentType,
	}})
}

// Present reports whether the asset carries a downloadable file.
func (f AssetFile) Present() bool {
	return f.Info.URL != "" && f.Shape != FileAbsent && f.Shape != FileUnsupported
}

func decodeFileInfo(data []byte) (FileInfo, error) {
	var raw rawFileInfo
	if err := json.Unmarshal(data, &raw); err != nil {
		return FileInfo{}, fmt.Errorf("decode asset file info: %w", err)
	}
	info := FileInfo{
		URL:         raw.URL,
		FileName:    raw.FileName,
		ContentType: raw.ContentType,
		Size:        raw.Details.Size,
	}
	if info.FileName == "" {
		info.FileName = defaultFileName
	}
	if info.ContentType == "" {
		info.ContentType = defaultContentType
	}
	return info, nil
}

func hasKey(m map[string]json.RawMessage, key string) bool {
	_, ok := m[key]
	return ok
}

// fileNameFromURL returns the last path segment of rawURL, or "file".
func fileNameFromURL(rawURL string) string {
	p := rawURL
	if u, err := url.Parse(rawURL); err == nil {
		p = u.Path
	}
	name := path.Base(p)
	if name == "" || name == "." || name == "/" {
		return defaultFileName
	}
	return name
}
