// Package transform converts source items into destination create payloads.
package transform

import (
	"github.com/o2cms/cfmigrate/internal/content"
	"github.com/o2cms/cfmigrate/internal/destination"
	"github.com/o2cms/cfmigrate/internal/resolver"
)

const defaultFieldType = "Symbol"

// allowedValidations lists the constraint kinds the destination understands.
var allowedValidations = map[string]bool{
	"size":              true,
	"range":             true,
	"regexp":            true,
	"in":                true,
	"linkContentType":   true,
	"linkMimetypeGroup": true,
}

// AllowedValidation reports whether a constraint kind is carried over.
func AllowedValidation(kind string) bool {
	return allowedValidations[kind]
}

// Schema builds the content type payload for src. The apiId is the source
// id so a later run can recognise the schema at the destination.
func Schema(src *content.Schema) destination.SchemaPayload {
	name := src.Name
	if name == "" {
		name = src.ID()
	}

	fields := make([]destination.FieldPayload, 0, len(src.Fields))
	for i := range src.Fields {
		fields = append(fields, Field(&src.Fields[i]))
	}

	return destination.SchemaPayload{
		Name:         name,
		APIID:        src.ID(),
		Description:  src.Description,
		DisplayField: src.DisplayField,
		Fields:       fields,
	}
}

// Field converts one field definition.
func Field(f *content.Field) destination.FieldPayload {
	out := destination.FieldPayload{
		ID:          f.ID,
		Name:        f.Name,
		Type:        f.Type,
		Required:    f.Required,
		Localized:   f.Localized,
		Validations: filterValidations(f.Validations),
	}
	if out.Type == "" {
		out.Type = defaultFieldType
	}

	switch out.Type {
	case "Link":
		out.LinkType = f.LinkType
	case "Array":
		if f.Items != nil {
			items := &destination.ItemsPayload{
				Type:        f.Items.Type,
				LinkType:    f.Items.LinkType,
				Validations: f.Items.Validations,
			}
			if items.Type == "" {
				items.Type = defaultFieldType
			}
			out.Items = items
		}
	}
	return out
}

// filterValidations keeps constraints whose kind is allowed. A nil result
// omits the key from the payload.
func filterValidations(in []content.Validation) []content.Validation {
	var out []content.Validation
	for _, v := range in {
		if AllowedValidation(v.Kind) {
			out = append(out, v)
		}
	}
	return out
}

// AssetPayload builds the asset create body for an upload. Title and
// description keep all their locales; the file is attached under the
// default locale.
func AssetPayload(asset *content.Asset, uploadID string) destination.AssetPayload {
	info := asset.Fields.File.Info
	fields := destination.AssetFieldsPayload{
		File: map[string]destination.FilePayload{
			content.DefaultLocale: {
				UploadFrom:  content.NewLink(content.LinkUpload, uploadID),
				FileName:    info.FileName,
				ContentType: info.ContentType,
			},
		},
	}
	if !asset.Fields.Title.IsZero() {
		fields.Title = asset.Fields.Title.Values
	}
	if !asset.Fields.Description.IsZero() {
		fields.Description = asset.Fields.Description.Values
	}
	return destination.AssetPayload{Fields: fields}
}

// RecordFields rewrites every locale value of every field through the
// resolver. Empty fields and fields that did not arrive as a locale map are
// dropped.
func RecordFields(fields map[string]content.Localized, lookup resolver.Lookup) (destination.RecordPayload, error) {
	out := make(map[string]map[string]any, len(fields))
	for name, value := range fields {
		if value.IsZero() || value.Single {
			continue
		}
		locales := make(map[string]any, len(value.Values))
		for locale, v := range value.Values {
			resolved, err := resolver.Resolve(v, lookup)
			if err != nil {
				return destination.RecordPayload{}, err
			}
			locales[locale] = resolved
		}
		out[name] = locales
	}
	return destination.RecordPayload{Fields: out}, nil
}
