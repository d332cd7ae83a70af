// Package props resolves the replay decoder's tagged property containers
// into plain Go values.
//
// The decoder emits every header field as {"kind": "IntProperty", "value":
// {"int": 5}} style objects, where the effective value sits one level deep
// inside a single-key container. Higher layers never touch that wrapping
// directly; they go through Resolve and the Bag accessors here.
package props

import (
	"math"
	"strconv"
)

// Resolve returns the effective value held by a decoded property object.
// If the value container is a single-key object, the inner value is
// returned; otherwise the container is returned as-is. Malformed or
// absent input resolves to nil, never an error.
func Resolve(raw any) any {
	obj, ok := raw.(map[string]any)
	if !ok {
		return nil
	}
	container, ok := obj["value"]
	if !ok {
		return nil
	}
	if inner, ok := container.(map[string]any); ok && len(inner) == 1 {
		for _, v := range inner {
			return v
		}
	}
	return container
}

// Kind returns the property's kind tag ("IntProperty", "ArrayProperty", ...)
// or "" when absent.
func Kind(raw any) string {
	obj, ok := raw.(map[string]any)
	if !ok {
		return ""
	}
	k, _ := obj["kind"].(string)
	return k
}

// Entry is one (key, tagged value) pair of a property bag.
type Entry struct {
	Key string
	Raw map[string]any
}

// Kind returns the entry's kind tag.
func (e Entry) Kind() string { return Kind(e.Raw) }

// Value returns the entry's resolved value.
func (e Entry) Value() any { return Resolve(e.Raw) }

// Bag is the decoder's ordered key/tagged-value sequence for one object.
// Bags are read-only input and are never mutated.
type Bag []Entry

// BagFromElements parses the decoder's "elements" pair list
// ([["Key", {...}], ...]) into a Bag. Pairs that are not a two-element
// list with a string key and object value are skipped.
func BagFromElements(v any) Bag {
	list, ok := v.([]any)
	if !ok {
		return nil
	}
	bag := make(Bag, 0, len(list))
	for _, item := range list {
		pair, ok := item.([]any)
		if !ok || len(pair) != 2 {
			continue
		}
		key, ok := pair[0].(string)
		if !ok {
			continue
		}
		raw, ok := pair[1].(map[string]any)
		if !ok {
			continue
		}
		bag = append(bag, Entry{Key: key, Raw: raw})
	}
	return bag
}

// SubBag extracts the nested bag of an array element or object property
// value: {"elements": [...]} or a properties wrapper around one.
func SubBag(v any) Bag {
	obj, ok := v.(map[string]any)
	if !ok {
		return nil
	}
	if elements, ok := obj["elements"]; ok {
		return BagFromElements(elements)
	}
	if properties, ok := obj["properties"].(map[string]any); ok {
		return BagFromElements(properties["elements"])
	}
	return nil
}

// AsString returns v as a string when it is one.
func AsString(v any) (string, bool) {
	s, ok := v.(string)
	return s, ok
}

// AsFloat returns v as a float64 when it is numeric.
func AsFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	}
	return 0, false
}

// AsInt returns v as an int when it is an integral number.
func AsInt(v any) (int, bool) {
	f, ok := AsFloat(v)
	if !ok || f != math.Trunc(f) {
		return 0, false
	}
	return int(f), true
}

// AsBool returns v as a bool. The decoder serializes some boolean
// properties as 0/1 numbers.
func AsBool(v any) (bool, bool) {
	switch b := v.(type) {
	case bool:
		return b, true
	case float64:
		return b != 0, true
	}
	return false, false
}

// AsArray returns v as a generic slice when it is one.
func AsArray(v any) ([]any, bool) {
	a, ok := v.([]any)
	return a, ok
}

// AsObject returns v as a generic object when it is one.
func AsObject(v any) (map[string]any, bool) {
	o, ok := v.(map[string]any)
	return o, ok
}

// StringValue renders a scalar as its canonical string form: strings pass
// through, integral numbers print without a decimal part (the decoder
// serializes 64-bit ids as numbers in some shapes), other values yield "".
func StringValue(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case float64:
		if s == math.Trunc(s) && !math.IsInf(s, 0) {
			return strconv.FormatInt(int64(s), 10)
		}
		return strconv.FormatFloat(s, 'f', -1, 64)
	case int:
		return strconv.Itoa(s)
	}
	return ""
}

// FloatSlice reads the first n numeric entries of a generic slice.
// Returns false when v is not a slice with at least n numbers.
func FloatSlice(v any, n int) ([]float64, bool) {
	arr, ok := v.([]any)
	if !ok || len(arr) < n {
		return nil, false
	}
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		f, ok := AsFloat(arr[i])
		if !ok {
			return nil, false
		}
		out[i] = f
	}
	return out, true
}
