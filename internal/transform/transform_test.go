package transform

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/o2cms/cfmigrate/internal/content"
	"github.com/o2cms/cfmigrate/internal/resolver"
)

func decodeSchema(t *testing.T, s string) *content.Schema {
	t.Helper()
	var schema content.Schema
	require.NoError(t, json.Unmarshal([]byte(s), &schema))
	return &schema
}

func TestSchema(t *testing.T) {
	t.Parallel()

	src := decodeSchema(t, `{
		"sys":{"id":"blogPost"},
		"name":"Blog post",
		"description":"Posts",
		"displayField":"title",
		"fields":[
			{"id":"title","name":"Title","type":"Symbol","required":true,"localized":true,
			 "validations":[{"size":{"max":80}},{"unique":true},{"regexp":{"pattern":"^\\w"}}]},
			{"id":"hero","name":"Hero","type":"Link","linkType":"Asset","validations":[{"linkMimetypeGroup":["image"]}]},
			{"id":"tags","name":"Tags","type":"Array","items":{"type":"Symbol","validations":[{"in":["a","b"]}]}},
			{"id":"related","name":"Related","type":"Array","items":{"type":"Link","linkType":"Entry"}},
			{"id":"legacy","name":"Legacy","validations":[{"unique":true}]}
		]}`)

	got := Schema(src)
	data, err := json.Marshal(got)
	require.NoError(t, err)

	assert.JSONEq(t, `{
		"name":"Blog post","apiId":"blogPost","description":"Posts","displayField":"title",
		"fields":[
			{"id":"title","name":"Title","type":"Symbol","required":true,"localized":true,
			 "validations":[{"size":{"max":80}},{"regexp":{"pattern":"^\\w"}}]},
			{"id":"hero","name":"Hero","type":"Link","linkType":"Asset","required":false,"localized":false,
			 "validations":[{"linkMimetypeGroup":["image"]}]},
			{"id":"tags","name":"Tags","type":"Array","required":false,"localized":false,
			 "items":{"type":"Symbol","validations":[{"in":["a","b"]}]}},
			{"id":"related","name":"Related","type":"Array","required":false,"localized":false,
			 "items":{"type":"Link","linkType":"Entry"}},
			{"id":"legacy","name":"Legacy","type":"Symbol","required":false,"localized":false}
		]}`, string(data))
}

func TestSchemaNameDefaultsToID(t *testing.T) {
	t.Parallel()

	got := Schema(decodeSchema(t, `{"sys":{"id":"author"},"fields":[]}`))
	assert.Equal(t, "author", got.Name)
	assert.Equal(t, "author", got.APIID)
	assert.NotNil(t, got.Fields)
}

func TestValidationFiltering(t *testing.T) {
	t.Parallel()

	tests := []struct {
		kind string
		keep bool
	}{
		{"size", true},
		{"range", true},
		{"regexp", true},
		{"in", true},
		{"linkContentType", true},
		{"linkMimetypeGroup", true},
		{"unique", false},
		{"message", false},
		{"assetFileSize", false},
		{"enabledNodeTypes", false},
		{"", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.keep, AllowedValidation(tt.kind), tt.kind)
	}

	// the first key decides, even when an allowed key follows
	f := content.Field{ID: "x", Type: "Symbol", Validations: []content.Validation{
		{Kind: "message", Raw: json.RawMessage(`{"message":"m","size":{"max":1}}`)},
	}}
	assert.Nil(t, Field(&f).Validations)
}

func TestAssetPayload(t *testing.T) {
	t.Parallel()

	var asset content.Asset
	require.NoError(t, json.Unmarshal([]byte(`{
		"sys":{"id":"a1"},
		"fields":{
			"title":"Logo",
			"description":{"en-US":"Company logo","de-DE":"Firmenlogo"},
			"file":{"en-US":{"url":"//images.ctfassets.net/x/logo.svg","fileName":"logo.svg","contentType":"image/svg+xml"}}
		}}`), &asset))

	data, err := json.Marshal(AssetPayload(&asset, "up-7"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"fields":{
		"title":{"en-US":"Logo"},
		"description":{"en-US":"Company logo","de-DE":"Firmenlogo"},
		"file":{"en-US":{"uploadFrom":{"sys":{"type":"Link","linkType":"Upload","id":"up-7"}},
			"fileName":"logo.svg","contentType":"image/svg+xml"}}}}`, string(data))
}

func TestAssetPayloadWithoutMetadata(t *testing.T) {
	t.Parallel()

	var asset content.Asset
	require.NoError(t, json.Unmarshal([]byte(`{"sys":{"id":"a2"},"fields":{"file":{"url":"https://x/y"}}}`), &asset))

	data, err := json.Marshal(AssetPayload(&asset, "up-8"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"fields":{"file":{"en-US":{"uploadFrom":{"sys":{"type":"Link","linkType":"Upload","id":"up-8"}},
		"fileName":"file","contentType":"application/octet-stream"}}}}`, string(data))
}

func TestRecordFields(t *testing.T) {
	t.Parallel()

	var record content.Record
	require.NoError(t, json.Unmarshal([]byte(`{
		"sys":{"id":"e1"},
		"fields":{
			"title":{"en-US":"Hello","de-DE":"Hallo"},
			"hero":{"en-US":{"sys":{"type":"Link","linkType":"Asset","id":"a1"}}},
			"author":{"en-US":{"sys":{"type":"Link","linkType":"Entry","id":"e404"}}},
			"empty":null,
			"bare":"not localized",
			"bareLink":{"sys":{"type":"Link","linkType":"Asset","id":"a1"}}
		}}`), &record))

	lookup := resolver.MapLookup{Assets: map[string]string{"a1": "A1"}}
	payload, err := RecordFields(record.Fields, lookup)
	require.NoError(t, err)

	data, err := json.Marshal(payload)
	require.NoError(t, err)
	assert.JSONEq(t, `{"fields":{
		"title":{"en-US":"Hello","de-DE":"Hallo"},
		"hero":{"en-US":{"sys":{"type":"Link","linkType":"Asset","id":"A1"}}},
		"author":{"en-US":{"sys":{"type":"Link","linkType":"Entry","id":"e404"}}}}}`, string(data))
}
