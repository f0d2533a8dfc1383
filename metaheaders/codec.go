// Package metaheaders carries object metadata in HTTP headers instead of a
// body, for endpoints whose body is binary data.
//
// A metadata mapping
//
//	{"name": "img", "size": 19, "properties": {"distro": "Ubuntu"}}
//
// is sent as
//
//	x-image-meta-name: img
//	x-image-meta-size: 19
//	x-image-meta-property-distro: Ubuntu
//
// Nil values are not sent. Decoding can not tell a key that was nil from one
// that never existed, so nil values do not survive a round trip.
package metaheaders

import (
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/net/http/httpguts"
)

// Meta is a metadata mapping. The properties key holds a nested Meta.
//
// Headers are text, so Decode returns values in the form their Kind gives
// them: Int fields as int64, Bool fields as bool, Time fields as UTC
// time.Time at second precision, and everything else, properties included,
// as string. A Meta holding those types comes back equal after a round trip.
// Other types come back as the same value in that form, e.g. an int size as
// int64 and a numeric property as its decimal string.
type Meta map[string]interface{}

// Kind tells Decode how to parse a field value.
type Kind int

const (
	String Kind = iota
	Int
	Bool
	Time
)

// TimeFormat is the text form of Time fields.
const TimeFormat = "2006-01-02T15:04:05"

// Codec flattens Meta into headers. Header names are Prefix+key for top level
// fields and PropertyPrefix+key for entries of the PropertiesKey mapping.
// Keys are lower cased on the wire.
type Codec struct {
	Prefix         string
	PropertyPrefix string
	PropertiesKey  string
	Fields         map[string]Kind
}

// DefaultCodec is the image metadata convention.
var DefaultCodec = &Codec{
	Prefix:         "x-image-meta-",
	PropertyPrefix: "x-image-meta-property-",
	PropertiesKey:  "properties",
	Fields: map[string]Kind{
		"size":       Int,
		"min_disk":   Int,
		"min_ram":    Int,
		"is_public":  Bool,
		"deleted":    Bool,
		"protected":  Bool,
		"created_at": Time,
		"updated_at": Time,
		"deleted_at": Time,
	},
}

// Encode flattens m into headers with DefaultCodec.
func Encode(m Meta) (http.Header, error) {
	return DefaultCodec.Encode(m)
}

// Decode rebuilds metadata from headers with DefaultCodec.
func Decode(h http.Header) (Meta, error) {
	return DefaultCodec.Decode(h)
}

// Encode flattens m into headers. Nil values are skipped. Times are sent in
// UTC. A value that is not a valid header field value, or two keys that are
// the same header once lower cased, is an error.
func (c *Codec) Encode(m Meta) (http.Header, error) {
	h := http.Header{}
	for key, value := range m {
		if value == nil {
			continue
		}
		if key == c.PropertiesKey {
			props, ok := asMeta(value)
			if !ok {
				return nil, errors.Errorf("%s must be a mapping, got %T", key, value)
			}
			for pk, pv := range props {
				if pv == nil {
					continue
				}
				if err := c.set(h, c.PropertyPrefix+pk, pv); err != nil {
					return nil, err
				}
			}
			continue
		}
		if err := c.set(h, c.Prefix+key, value); err != nil {
			return nil, err
		}
	}
	return h, nil
}

func (c *Codec) set(h http.Header, name string, value interface{}) error {
	name = strings.ToLower(name)
	if !httpguts.ValidHeaderFieldName(name) {
		return errors.Errorf("invalid metadata header name %q", name)
	}
	if _, exists := h[http.CanonicalHeaderKey(name)]; exists {
		return errors.Errorf("duplicate metadata header %q", name)
	}
	text, err := toText(value)
	if err != nil {
		return errors.WithMessagef(err, "metadata %s", name)
	}
	if !httpguts.ValidHeaderFieldValue(text) {
		return errors.Errorf("metadata %s: value %q is not a valid header value", name, text)
	}
	h.Set(name, text)
	return nil
}

func toText(value interface{}) (string, error) {
	switch v := value.(type) {
	case string:
		return v, nil
	case bool:
		return strconv.FormatBool(v), nil
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return fmt.Sprintf("%d", v), nil
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32), nil
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	case time.Time:
		return v.UTC().Format(TimeFormat), nil
	case *time.Time:
		if v == nil {
			return "", errors.New("nil time")
		}
		return v.UTC().Format(TimeFormat), nil
	case fmt.Stringer:
		return v.String(), nil
	}
	return "", errors.Errorf("unsupported metadata value type %T", value)
}

func asMeta(v interface{}) (Meta, bool) {
	switch m := v.(type) {
	case Meta:
		return m, true
	case map[string]interface{}:
		return m, true
	case map[string]string:
		out := make(Meta, len(m))
		for k, s := range m {
			out[k] = s
		}
		return out, true
	}
	return nil, false
}

// Decode rebuilds metadata from headers. Headers outside the prefixes are
// ignored. Fields listed in c.Fields are parsed to their Kind; everything else
// is a string. The properties mapping is present only when at least one
// property header is.
func (c *Codec) Decode(h http.Header) (Meta, error) {
	m := Meta{}
	props := Meta{}
	prefix := strings.ToLower(c.Prefix)
	propertyPrefix := strings.ToLower(c.PropertyPrefix)

	names := make([]string, 0, len(h))
	for name := range h {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		key := strings.ToLower(name)
		value := h.Get(name)
		switch {
		case propertyPrefix != "" && strings.HasPrefix(key, propertyPrefix):
			props[key[len(propertyPrefix):]] = value
		case strings.HasPrefix(key, prefix):
			field := key[len(prefix):]
			parsed, err := c.parse(field, value)
			if err != nil {
				return nil, err
			}
			m[field] = parsed
		}
	}
	if len(props) > 0 {
		m[c.PropertiesKey] = props
	}
	return m, nil
}

func (c *Codec) parse(field, value string) (interface{}, error) {
	switch c.Fields[field] {
	case Int:
		n, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
		if err != nil {
			return nil, errors.WithMessagef(err, "metadata %s", field)
		}
		return n, nil
	case Bool:
		b, err := strconv.ParseBool(strings.TrimSpace(value))
		if err != nil {
			return nil, errors.WithMessagef(err, "metadata %s", field)
		}
		return b, nil
	case Time:
		t, err := time.Parse(TimeFormat, strings.TrimSpace(value))
		if err != nil {
			return nil, errors.WithMessagef(err, "metadata %s", field)
		}
		return t, nil
	}
	return value, nil
}
