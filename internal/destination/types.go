package destination

import "github.com/o2cms/cfmigrate/internal/content"

// Space is a destination space.
type Space struct {
	Sys         content.Sys `json:"sys"`
	Name        string      `json:"name"`
	Description string      `json:"description,omitempty"`
}

// ID returns the space id.
func (s Space) ID() string { return s.Sys.ID }

// Environment is an environment within a space.
type Environment struct {
	Sys  content.Sys `json:"sys"`
	Name string      `json:"name"`
}

// Schema is a content type as listed by the destination.
type Schema struct {
	Sys   content.Sys `json:"sys"`
	APIID string      `json:"apiId"`
	Name  string      `json:"name"`
}

// SchemaPayload is the create body for a content type.
type SchemaPayload struct {
	Name         string         `json:"name"`
	APIID        string         `json:"apiId"`
	Description  string         `json:"description"`
	DisplayField string         `json:"displayField,omitempty"`
	Fields       []FieldPayload `json:"fields"`
}

// FieldPayload is one field of a SchemaPayload.
type FieldPayload struct {
	ID          string               `json:"id"`
	Name        string               `json:"name"`
	Type        string               `json:"type"`
	Required    bool                 `json:"required"`
	Localized   bool                 `json:"localized"`
	LinkType    string               `json:"linkType,omitempty"`
	Items       *ItemsPayload        `json:"items,omitempty"`
	Validations []content.Validation `json:"validations,omitempty"`
}

// ItemsPayload describes Array elements.
type ItemsPayload struct {
	Type        string               `json:"type"`
	LinkType    string               `json:"linkType,omitempty"`
	Validations []content.Validation `json:"validations,omitempty"`
}

// AssetPayload is the create body for an asset.
type AssetPayload struct {
	Fields AssetFieldsPayload `json:"fields"`
}

// AssetFieldsPayload holds locale-keyed asset metadata.
type AssetFieldsPayload struct {
	Title       map[string]any         `json:"title,omitempty"`
	Description map[string]any         `json:"description,omitempty"`
	File        map[string]FilePayload `json:"file"`
}

// FilePayload points an asset at a finished upload.
type FilePayload struct {
	UploadFrom  content.Link `json:"uploadFrom"`
	FileName    string       `json:"fileName"`
	ContentType string       `json:"contentType"`
}

// RecordPayload is the create body for an entry.
type RecordPayload struct {
	Fields map[string]map[string]any `json:"fields"`
}

type collection[T any] struct {
	Items []T `json:"items"`
}

type created struct {
	Sys content.Sys `json:"sys"`
}
