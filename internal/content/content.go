// Package content defines the source-side items moved by the migration:
// schemas, assets and records, together with the link shape used for
// cross-references. Payload shapes that vary at the source are decoded once
// into explicit types here so the rest of the code never inspects raw maps.
package content

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// DefaultLocale is used when a value arrives without a locale wrapper.
const DefaultLocale = "en-US"

// LinkType discriminates what a link points at.
type LinkType string

const (
	LinkAsset       LinkType = "Asset"
	LinkEntry       LinkType = "Entry"
	LinkUpload      LinkType = "Upload"
	LinkContentType LinkType = "ContentType"
)

// LinkSys is the sys block of a link.
type LinkSys struct {
	Type     string   `json:"type"`
	LinkType LinkType `json:"linkType"`
	ID       string   `json:"id"`
}

// Link is a typed pointer to another item.
type Link struct {
	Sys LinkSys `json:"sys"`
}

// NewLink returns a link of the given kind.
func NewLink(kind LinkType, id string) Link {
	return Link{Sys: LinkSys{Type: "Link", LinkType: kind, ID: id}}
}

// Sys holds the identity fields shared by every item.
type Sys struct {
	ID          string `json:"id"`
	Type        string `json:"type,omitempty"`
	ContentType *Link  `json:"contentType,omitempty"`
}

// Schema is a source content type definition.
type Schema struct {
	Sys          Sys     `json:"sys"`
	Name         string  `json:"name"`
	Description  string  `json:"description"`
	DisplayField string  `json:"displayField"`
	Fields       []Field `json:"fields"`
}

// ID returns the schema's source identifier.
func (s *Schema) ID() string { return s.Sys.ID }

// Field is one field of a schema.
type Field struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Type        string       `json:"type"`
	LinkType    string       `json:"linkType,omitempty"`
	Items       *FieldItems  `json:"items,omitempty"`
	Required    bool         `json:"required"`
	Localized   bool         `json:"localized"`
	Disabled    bool         `json:"disabled,omitempty"`
	Omitted     bool         `json:"omitted,omitempty"`
	Validations []Validation `json:"validations,omitempty"`
}

// FieldItems describes the element type of an Array field.
type FieldItems struct {
	Type        string       `json:"type"`
	LinkType    string       `json:"linkType,omitempty"`
	Validations []Validation `json:"validations,omitempty"`
}

// Validation is one constraint object. Kind is the object's first key, which
// names the constraint; Raw is the object as received.
type Validation struct {
	Kind string
	Raw  json.RawMessage
}

// UnmarshalJSON records the first key in document order.
func (v *Validation) UnmarshalJSON(data []byte) error {
	keys, err := orderedKeys(data)
	if err != nil {
		return fmt.Errorf("decode validation: %w", err)
	}
	v.Kind = ""
	if len(keys) > 0 {
		v.Kind = keys[0]
	}
	v.Raw = append(v.Raw[:0], data...)
	return nil
}

// MarshalJSON re-emits the constraint unchanged.
func (v Validation) MarshalJSON() ([]byte, error) {
	if len(v.Raw) == 0 {
		return []byte("{}"), nil
	}
	return v.Raw, nil
}

// Record is a typed content instance.
type Record struct {
	Sys    Sys                  `json:"sys"`
	Fields map[string]Localized `json:"fields"`
}

// ID returns the record's source identifier.
func (r *Record) ID() string { return r.Sys.ID }

// SchemaID returns the source id of the record's content type.
func (r *Record) SchemaID() string {
	if r.Sys.ContentType == nil {
		return ""
	}
	return r.Sys.ContentType.Sys.ID
}

// Asset is a binary file with metadata.
type Asset struct {
	Sys    Sys         `json:"sys"`
	Fields AssetFields `json:"fields"`
}

// ID returns the asset's source identifier.
func (a *Asset) ID() string { return a.Sys.ID }

// AssetFields are the metadata fields of an asset.
type AssetFields struct {
	Title       Localized `json:"title"`
	Description Localized `json:"description"`
	File        AssetFile `json:"file"`
}

// Collection is one page of a paginated listing.
type Collection[T any] struct {
	Total int `json:"total"`
	Skip  int `json:"skip"`
	Limit int `json:"limit"`
	Items []T `json:"items"`
}

// orderedKeys returns the top-level keys of a JSON object in document order.
func orderedKeys(data []byte) ([]string, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("expected object, got %v", tok)
	}

	var keys []string
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("expected object key, got %v", tok)
		}
		keys = append(keys, key)

		var skip json.RawMessage
		if err := dec.Decode(&skip); err != nil {
			return nil, err
		}
	}
	return keys, nil
}

// decodeAny decodes JSON keeping numbers as json.Number so large integers
// survive the round trip to the destination.
func decodeAny(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}
