package metaheaders

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func imageFixture() Meta {
	return Meta{
		"name":       "fake public image",
		"is_public":  true,
		"deleted":    false,
		"size":       int64(19),
		"location":   "file:///tmp/glance-tests/2",
		"created_at": time.Date(2012, 3, 8, 2, 0, 0, 0, time.UTC),
		"properties": Meta{"distro": "Ubuntu 10.04 LTS"},
	}
}

func TestEncodeHeaderNames(t *testing.T) {
	h, err := Encode(imageFixture())
	require.NoError(t, err)

	assert.Equal(t, "fake public image", h.Get("x-image-meta-name"))
	assert.Equal(t, "true", h.Get("x-image-meta-is_public"))
	assert.Equal(t, "false", h.Get("x-image-meta-deleted"))
	assert.Equal(t, "19", h.Get("x-image-meta-size"))
	assert.Equal(t, "2012-03-08T02:00:00", h.Get("x-image-meta-created_at"))
	assert.Equal(t, "Ubuntu 10.04 LTS", h.Get("x-image-meta-property-distro"))
	assert.Empty(t, h.Get("x-image-meta-properties"))
}

func TestRoundTrip(t *testing.T) {
	fixture := imageFixture()

	h, err := Encode(fixture)
	require.NoError(t, err)
	result, err := Decode(h)
	require.NoError(t, err)

	assert.Equal(t, fixture, result)
}

func TestNilValuesAreDropped(t *testing.T) {
	fixture := imageFixture()
	fixture["name"] = nil
	fixture["properties"] = Meta{"distro": "Ubuntu 10.04 LTS", "arch": nil}

	h, err := Encode(fixture)
	require.NoError(t, err)
	_, present := h[http.CanonicalHeaderKey("x-image-meta-name")]
	assert.False(t, present)

	result, err := Decode(h)
	require.NoError(t, err)

	for k, v := range fixture {
		if v == nil {
			assert.NotContains(t, result, k)
			continue
		}
		if k == "properties" {
			continue
		}
		assert.Equal(t, v, result[k])
	}
	assert.Equal(t, Meta{"distro": "Ubuntu 10.04 LTS"}, result["properties"])
}

func TestEncodedValuesAreValidHeaderText(t *testing.T) {
	h, err := Encode(imageFixture())
	require.NoError(t, err)
	for name, values := range h {
		for _, v := range values {
			for _, r := range v {
				assert.False(t, r < 0x20 || r == 0x7f, "control character in %s", name)
			}
		}
	}
}

func TestEncodeRejectsControlCharacters(t *testing.T) {
	_, err := Encode(Meta{"name": "bad\r\nX-Injected: 1"})
	assert.Error(t, err)
}

func TestEncodeRejectsUnsupportedValues(t *testing.T) {
	_, err := Encode(Meta{"checksum": []int{1, 2}})
	assert.Error(t, err)

	_, err = Encode(Meta{"properties": "distro"})
	assert.Error(t, err)
}

func TestDecodeTypedFieldErrors(t *testing.T) {
	h := http.Header{}
	h.Set("x-image-meta-size", "big")
	_, err := Decode(h)
	assert.Error(t, err)
}

func TestDecodeIgnoresForeignHeaders(t *testing.T) {
	h := http.Header{}
	h.Set("Content-Type", "application/octet-stream")
	h.Set("X-Image-Meta-Name", "img")

	m, err := Decode(h)
	require.NoError(t, err)
	assert.Equal(t, Meta{"name": "img"}, m)
}

func TestCustomPrefixes(t *testing.T) {
	codec := &Codec{
		Prefix:         "x-object-meta-",
		PropertyPrefix: "x-object-tag-",
		PropertiesKey:  "tags",
		Fields:         map[string]Kind{"bytes": Int},
	}
	fixture := Meta{"bytes": int64(42), "owner": "ops", "tags": Meta{"env": "prod"}}

	h, err := codec.Encode(fixture)
	require.NoError(t, err)
	assert.Equal(t, "prod", h.Get("x-object-tag-env"))

	result, err := codec.Decode(h)
	require.NoError(t, err)
	assert.Equal(t, fixture, result)
}

func TestRoundTripNormalisesTypes(t *testing.T) {
	cet := time.FixedZone("CET", 3600)
	created := time.Date(2012, 3, 8, 2, 0, 0, 0, cet)
	fixture := Meta{
		"size":       19,
		"created_at": created,
		"properties": Meta{"n": 3},
	}

	h, err := Encode(fixture)
	require.NoError(t, err)
	assert.Equal(t, "2012-03-08T01:00:00", h.Get("x-image-meta-created_at"))

	result, err := Decode(h)
	require.NoError(t, err)

	assert.Equal(t, int64(19), result["size"])
	decoded := result["created_at"].(time.Time)
	assert.True(t, decoded.Equal(created), "instant moved: %s", decoded)
	assert.Equal(t, time.UTC, decoded.Location())
	assert.Equal(t, Meta{"n": "3"}, result["properties"])
}

func TestEncodeRejectsDuplicateKeys(t *testing.T) {
	_, err := Encode(Meta{"Name": "a", "name": "b"})
	assert.Error(t, err)

	_, err = Encode(Meta{"property-distro": "a", "properties": Meta{"distro": "b"}})
	assert.Error(t, err)
}
