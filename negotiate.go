package relay

import (
	"net/http"
	"sort"
	"strconv"
	"strings"
)

// ContentType returns the base media type of the Content-Type header when it
// is one of supported. Parameters such as charset are ignored for matching
// and dropped from the result.
func ContentType(h http.Header, supported []string) (string, error) {
	value := h.Get(contentType)
	if value == "" {
		return "", &InvalidContentTypeError{}
	}
	base := value
	if i := strings.Index(base, ";"); i >= 0 {
		base = base[:i]
	}
	base = strings.TrimSpace(base)
	for _, s := range supported {
		if s == base {
			return base, nil
		}
	}
	return "", &InvalidContentTypeError{ContentType: value}
}

type acceptEntry struct {
	mediaType string
	quality   float64
}

// parseAccept splits an Accept header into entries ordered by descending
// quality. Entries with equal quality keep header order.
func parseAccept(accept string) []acceptEntry {
	var entries []acceptEntry
	for _, part := range strings.Split(accept, ",") {
		fields := strings.Split(part, ";")
		mediaType := strings.TrimSpace(fields[0])
		if mediaType == "" {
			continue
		}
		q := 1.0
		for _, param := range fields[1:] {
			kv := strings.SplitN(strings.TrimSpace(param), "=", 2)
			if len(kv) != 2 || strings.TrimSpace(kv[0]) != "q" {
				continue
			}
			if parsed, err := strconv.ParseFloat(strings.TrimSpace(kv[1]), 64); err == nil {
				q = parsed
			}
		}
		entries = append(entries, acceptEntry{mediaType: mediaType, quality: q})
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].quality > entries[j].quality
	})
	return entries
}

// BestMatchContentType picks the response media type from the Accept header.
// The highest weighted entry that is in supported wins; def is returned when
// the header is absent or nothing matches.
func BestMatchContentType(h http.Header, supported []string, def string) string {
	accept := h.Get("Accept")
	if accept == "" {
		return def
	}
	for _, entry := range parseAccept(accept) {
		if entry.quality <= 0 {
			continue
		}
		for _, s := range supported {
			if s == entry.mediaType {
				return s
			}
		}
	}
	return def
}
