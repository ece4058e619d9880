package resolver

import (
	"maps"
	"slices"

	"github.com/o2cms/cfmigrate/internal/content"
)

// Rich text node types that embed an asset through data.target.
var assetNodeTypes = map[string]bool{
	"embedded-asset-block": true,
	"asset-hyperlink":      true,
}

// CollectAssetIDs returns the ids of every asset referenced by value, either
// as a direct link or from an embedded-asset-block / asset-hyperlink rich
// text node. Ids are deduplicated and returned in first-seen order, with
// object keys visited in sorted order.
func CollectAssetIDs(value any) ([]string, error) {
	c := collector{seen: make(map[string]struct{})}
	if err := c.walk(value, 0); err != nil {
		return nil, err
	}
	return c.ids, nil
}

type collector struct {
	ids  []string
	seen map[string]struct{}
}

func (c *collector) add(id string) {
	if id == "" {
		return
	}
	if _, dup := c.seen[id]; dup {
		return
	}
	c.seen[id] = struct{}{}
	c.ids = append(c.ids, id)
}

func (c *collector) walk(value any, depth int) error {
	if depth > MaxDepth {
		return tooDeep(depth)
	}

	switch v := value.(type) {
	case map[string]any:
		if kind, id, ok := linkTarget(v); ok && kind == content.LinkAsset {
			c.add(id)
		}
		if nodeType, _ := v["nodeType"].(string); assetNodeTypes[nodeType] {
			c.add(embeddedTargetID(v))
		}
		// sorted keys keep discovery order stable across runs
		for _, key := range slices.Sorted(maps.Keys(v)) {
			if err := c.walk(v[key], depth+1); err != nil {
				return err
			}
		}
	case []any:
		for _, elem := range v {
			if err := c.walk(elem, depth+1); err != nil {
				return err
			}
		}
	}
	return nil
}

// embeddedTargetID reads data.target.sys.id from a rich text node.
func embeddedTargetID(node map[string]any) string {
	data, _ := node["data"].(map[string]any)
	target, _ := data["target"].(map[string]any)
	sys, _ := target["sys"].(map[string]any)
	id, _ := sys["id"].(string)
	return id
}
