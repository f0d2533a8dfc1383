package relay

import (
	"bytes"
	"encoding"
	"encoding/json"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// TimestampFormat is how timestamps are written in JSON bodies.
const TimestampFormat = "2006-01-02T15:04:05"

// ToJSON encodes v as JSON. Every time.Time reachable from v, including
// struct fields and values behind pointers, is written with TimestampFormat.
// Struct fields follow their json tags. Map keys are sorted. Values the
// encoder does not support (channels, functions, complex numbers) are an error.
func ToJSON(v interface{}) (string, error) {
	b, err := json.Marshal(sanitize(reflect.ValueOf(v)))
	if err != nil {
		return "", errors.WithMessage(err, "json encoding error")
	}
	return string(spaceSeparators(b)), nil
}

func sanitize(v reflect.Value) interface{} {
	if !v.IsValid() {
		return nil
	}
	switch t := v.Interface().(type) {
	case time.Time:
		return t.Format(TimestampFormat)
	case *time.Time:
		if t == nil {
			return nil
		}
		return t.Format(TimestampFormat)
	case json.Marshaler:
		return t
	case encoding.TextMarshaler:
		return t
	}

	switch v.Kind() {
	case reflect.Interface, reflect.Ptr:
		if v.IsNil() {
			return nil
		}
		return sanitize(v.Elem())
	case reflect.Map:
		if v.IsNil() {
			return nil
		}
		out := make(map[string]interface{}, v.Len())
		iter := v.MapRange()
		for iter.Next() {
			key, ok := mapKey(iter.Key())
			if !ok {
				return v.Interface()
			}
			out[key] = sanitize(iter.Value())
		}
		return out
	case reflect.Slice, reflect.Array:
		if v.Kind() == reflect.Slice && v.IsNil() {
			return nil
		}
		if v.Type().Elem().Kind() == reflect.Uint8 {
			return v.Interface()
		}
		out := make([]interface{}, v.Len())
		for i := range out {
			out[i] = sanitize(v.Index(i))
		}
		return out
	case reflect.Struct:
		out := map[string]interface{}{}
		sanitizeFields(v, out)
		return out
	}
	return v.Interface()
}

func mapKey(k reflect.Value) (string, bool) {
	switch k.Kind() {
	case reflect.String:
		return k.String(), true
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(k.Int(), 10), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return strconv.FormatUint(k.Uint(), 10), true
	}
	return "", false
}

// sanitizeFields copies the encodable fields of struct v into out, keyed as
// encoding/json would name them. Fields of embedded structs are promoted
// unless an outer field has the same name.
func sanitizeFields(v reflect.Value, out map[string]interface{}) {
	t := v.Type()
	var embedded []reflect.Value
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		tag := f.Tag.Get("json")
		if tag == "-" {
			continue
		}
		name, opts := tag, ""
		if j := strings.Index(tag, ","); j >= 0 {
			name, opts = tag[:j], tag[j+1:]
		}
		if !f.IsExported() {
			continue
		}
		fv := v.Field(i)

		if f.Anonymous && name == "" {
			ft := f.Type
			if ft.Kind() == reflect.Ptr {
				ft = ft.Elem()
			}
			if ft.Kind() == reflect.Struct && ft != reflect.TypeOf(time.Time{}) {
				if fv.Kind() == reflect.Ptr {
					if fv.IsNil() {
						continue
					}
					fv = fv.Elem()
				}
				embedded = append(embedded, fv)
				continue
			}
		}
		if name == "" {
			name = f.Name
		}
		if hasOption(opts, "omitempty") && isEmptyValue(fv) {
			continue
		}
		out[name] = sanitize(fv)
	}
	for _, ev := range embedded {
		inner := map[string]interface{}{}
		sanitizeFields(ev, inner)
		for k, val := range inner {
			if _, taken := out[k]; !taken {
				out[k] = val
			}
		}
	}
}

func hasOption(opts, option string) bool {
	for _, o := range strings.Split(opts, ",") {
		if o == option {
			return true
		}
	}
	return false
}

// isEmptyValue matches the omitempty rule of encoding/json.
func isEmptyValue(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.Array, reflect.Map, reflect.Slice, reflect.String:
		return v.Len() == 0
	case reflect.Bool:
		return !v.Bool()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return v.Int() == 0
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return v.Uint() == 0
	case reflect.Float32, reflect.Float64:
		return v.Float() == 0
	case reflect.Interface, reflect.Ptr:
		return v.IsNil()
	}
	return false
}

// spaceSeparators rewrites compact JSON to use ", " and ": " between tokens.
func spaceSeparators(b []byte) []byte {
	out := make([]byte, 0, len(b)+len(b)/8)
	inString := false
	escaped := false
	for _, c := range b {
		out = append(out, c)
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case ',', ':':
			out = append(out, ' ')
		}
	}
	return out
}

// FromJSON parses a JSON document. Malformed input is a 400 fault.
func FromJSON(text string) (interface{}, error) {
	var v interface{}
	dec := json.NewDecoder(strings.NewReader(text))
	if err := dec.Decode(&v); err != nil {
		return nil, BadRequest("Malformed JSON in request body: " + err.Error())
	}
	if dec.More() {
		return nil, BadRequest("Malformed JSON in request body: unexpected data after document")
	}
	return v, nil
}

// HasBody reports whether the request announces a body: a nonzero
// Content-Length, or any Transfer-Encoding since chunked bodies have no
// length up front.
func HasBody(r *Request) bool {
	if _, ok := r.Headers[http.CanonicalHeaderKey(transferEncoding)]; ok {
		return true
	}
	length := r.Headers.Get(contentLength)
	if length == "" {
		return false
	}
	n, err := strconv.ParseInt(strings.TrimSpace(length), 10, 64)
	return err == nil && n != 0
}

// JSONResponseSerializer writes action results as JSON bodies. Actions maps
// action names to custom serializers; everything else uses Default.
type JSONResponseSerializer struct {
	Actions map[string]SerializeFunc
}

func (s *JSONResponseSerializer) Serializer(action string) (SerializeFunc, bool) {
	if s != nil {
		if fn, ok := s.Actions[action]; ok {
			return fn, true
		}
	}
	if action == DefaultAction {
		return s.Default, true
	}
	return nil, false
}

// Default sets a 200 status, a single JSON Content-Type and the encoded result.
func (s *JSONResponseSerializer) Default(rp *Response, result interface{}) error {
	body, err := ToJSON(result)
	if err != nil {
		return err
	}
	rp.StatusCode = http.StatusOK
	rp.SetContentType(jsonContentType)
	rp.Body = []byte(body)
	return nil
}

// JSONRequestDeserializer turns JSON request bodies into action arguments.
// When SupportedTypes is set, requests with a body must declare one of them.
type JSONRequestDeserializer struct {
	SupportedTypes []string
	Actions        map[string]DeserializeFunc
}

func (d *JSONRequestDeserializer) Deserializer(action string) (DeserializeFunc, bool) {
	if d != nil {
		if fn, ok := d.Actions[action]; ok {
			return fn, true
		}
	}
	if action == DefaultAction {
		return d.Default, true
	}
	return nil, false
}

// Default returns no arguments for requests without a body, otherwise the
// parsed document under the "body" key.
func (d *JSONRequestDeserializer) Default(r *Request) (Args, error) {
	if !HasBody(r) {
		return Args{}, nil
	}
	if d != nil && len(d.SupportedTypes) > 0 {
		if _, err := r.ContentType(d.SupportedTypes...); err != nil {
			return nil, err
		}
	}
	body, err := r.ReadBody()
	if err != nil {
		return nil, err
	}
	parsed, err := FromJSON(string(bytes.TrimSpace(body)))
	if err != nil {
		return nil, err
	}
	return Args{"body": parsed}, nil
}
