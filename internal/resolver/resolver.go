// Package resolver rewrites cross-references inside field values from source
// ids to destination ids, and discovers the assets a value refers to.
//
// Values are the generic JSON shapes produced by encoding/json: maps, slices
// and scalars. Nothing here performs I/O.
package resolver

import (
	"fmt"

	"github.com/o2cms/cfmigrate/internal/content"
	"github.com/o2cms/cfmigrate/internal/errors"
)

// MaxDepth bounds recursion over nested values.
const MaxDepth = 64

// ErrStructureTooDeep is wrapped by StructureError.
var ErrStructureTooDeep = errors.NewStd("value nesting exceeds maximum depth")

// StructureError reports a value nested deeper than MaxDepth.
type StructureError struct {
	Depth int
}

func (e *StructureError) Error() string {
	return fmt.Sprintf("%v (%d)", ErrStructureTooDeep, e.Depth)
}

func (e *StructureError) Unwrap() error { return ErrStructureTooDeep }

// Lookup maps source ids to destination ids.
type Lookup interface {
	AssetID(sourceID string) (string, bool)
	RecordID(sourceID string) (string, bool)
}

// MapLookup is a Lookup over plain maps.
type MapLookup struct {
	Assets  map[string]string
	Records map[string]string
}

func (m MapLookup) AssetID(id string) (string, bool) {
	v, ok := m.Assets[id]
	return v, ok
}

func (m MapLookup) RecordID(id string) (string, bool) {
	v, ok := m.Records[id]
	return v, ok
}

// Resolve returns a deep copy of value with the id of every Asset or Entry
// link replaced by its destination id. Unmapped ids are kept as they are.
// Links of other kinds are copied unchanged. Rich text embeds are reached by
// the same recursion, since their data.target is a link.
func Resolve(value any, lookup Lookup) (any, error) {
	return resolve(value, lookup, 0)
}

func resolve(value any, lookup Lookup, depth int) (any, error) {
	if depth > MaxDepth {
		return nil, tooDeep(depth)
	}

	switch v := value.(type) {
	case map[string]any:
		if kind, id, ok := linkTarget(v); ok {
			return rewriteLink(v, kind, id, lookup, depth)
		}
		out := make(map[string]any, len(v))
		for key, elem := range v {
			resolved, err := resolve(elem, lookup, depth+1)
			if err != nil {
				return nil, err
			}
			out[key] = resolved
		}
		return out, nil

	case []any:
		out := make([]any, len(v))
		for i, elem := range v {
			resolved, err := resolve(elem, lookup, depth+1)
			if err != nil {
				return nil, err
			}
			out[i] = resolved
		}
		return out, nil

	default:
		return value, nil
	}
}

// rewriteLink copies a link object, replacing only sys.id.
func rewriteLink(link map[string]any, kind content.LinkType, id string, lookup Lookup, depth int) (any, error) {
	newID := id
	switch kind {
	case content.LinkAsset:
		if mapped, ok := lookup.AssetID(id); ok {
			newID = mapped
		}
	case content.LinkEntry:
		if mapped, ok := lookup.RecordID(id); ok {
			newID = mapped
		}
	}

	out := make(map[string]any, len(link))
	for key, elem := range link {
		if key == "sys" {
			continue
		}
		resolved, err := resolve(elem, lookup, depth+1)
		if err != nil {
			return nil, err
		}
		out[key] = resolved
	}

	sys, _ := link["sys"].(map[string]any)
	newSys := make(map[string]any, len(sys))
	for key, elem := range sys {
		newSys[key] = elem
	}
	newSys["id"] = newID
	out["sys"] = newSys
	return out, nil
}

// linkTarget reports whether m is an Asset or Entry link and returns its
// kind and id.
func linkTarget(m map[string]any) (content.LinkType, string, bool) {
	sys, ok := m["sys"].(map[string]any)
	if !ok {
		return "", "", false
	}
	if t, _ := sys["type"].(string); t != "Link" {
		return "", "", false
	}
	id, ok := sys["id"].(string)
	if !ok {
		return "", "", false
	}
	kind, _ := sys["linkType"].(string)
	switch content.LinkType(kind) {
	case content.LinkAsset, content.LinkEntry:
		return content.LinkType(kind), id, true
	}
	return "", "", false
}

func tooDeep(depth int) error {
	return errors.New(&StructureError{Depth: depth}).
		Component("resolver").
		Category(errors.CategoryValidation).
		Context("max_depth", MaxDepth).
		Build()
}
