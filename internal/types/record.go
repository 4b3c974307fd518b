package types

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
)

// Record is a single playlist entry as decoded from the playlist endpoint.
// Values keep their JSON shapes: objects are map[string]any, arrays are []any
// and numbers are json.Number.
type Record map[string]any

// UID returns the story identifier as a string.
func (r Record) UID() string {
	return scalarString(r["uid"])
}

// Title returns the story title, or "" if absent.
func (r Record) Title() string {
	return scalarString(r["title"])
}

// Without returns a shallow copy of r with the given keys removed.
// Keys not present in r are ignored.
func (r Record) Without(keys ...string) Record {
	drop := make(map[string]bool, len(keys))
	for _, k := range keys {
		drop[k] = true
	}

	out := make(Record, len(r))
	for k, v := range r {
		if !drop[k] {
			out[k] = v
		}
	}
	return out
}

// Keys returns the record keys in sorted order.
func (r Record) Keys() []string {
	keys := make([]string, 0, len(r))
	for k := range r {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func scalarString(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case json.Number:
		return val.String()
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	default:
		return fmt.Sprintf("%v", val)
	}
}

// Renditions maps a rendition label (e.g. "ld", "hd") to an absolute video URL.
type Renditions map[string]string

// Labels returns the rendition labels in sorted order.
func (r Renditions) Labels() []string {
	labels := make([]string, 0, len(r))
	for l := range r {
		labels = append(labels, l)
	}
	sort.Strings(labels)
	return labels
}

// Story is everything learned from one article page, before anything is
// written to disk.
type Story struct {
	SourceURL  string
	UID        string
	Title      string
	Record     Record
	Transcript string
	Renditions Renditions
}
