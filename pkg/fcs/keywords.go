package fcs

import (
	"strconv"
	"strings"

	"flowcore/pkg/flowerr"
)

// Keywords is an ordered, case-insensitive keyword map. Keys are stored upper
// case; iteration follows first insertion.
type Keywords struct {
	order  []string
	values map[string]string
}

// NewKeywords returns an empty keyword map.
func NewKeywords() *Keywords {
	return &Keywords{values: make(map[string]string)}
}

// KeywordsFromPairs builds a map from alternating key, value arguments.
func KeywordsFromPairs(pairs ...string) *Keywords {
	k := NewKeywords()
	for i := 0; i+1 < len(pairs); i += 2 {
		k.Set(pairs[i], pairs[i+1])
	}
	return k
}

func normKey(key string) string { return strings.ToUpper(strings.TrimSpace(key)) }

// Set assigns value to key, keeping the key's original position when it
// already exists.
func (k *Keywords) Set(key, value string) {
	nk := normKey(key)
	if _, ok := k.values[nk]; !ok {
		k.order = append(k.order, nk)
	}
	k.values[nk] = value
}

// SetDefault assigns value only when key is absent. It reports whether the
// value was set.
func (k *Keywords) SetDefault(key, value string) bool {
	if k.Has(key) {
		return false
	}
	k.Set(key, value)
	return true
}

// Delete removes key.
func (k *Keywords) Delete(key string) {
	nk := normKey(key)
	if _, ok := k.values[nk]; !ok {
		return
	}
	delete(k.values, nk)
	for i, o := range k.order {
		if o == nk {
			k.order = append(k.order[:i], k.order[i+1:]...)
			break
		}
	}
}

// Get returns the value for key.
func (k *Keywords) Get(key string) (string, bool) {
	if k == nil {
		return "", false
	}
	v, ok := k.values[normKey(key)]
	return v, ok
}

// Value returns the value for key or "" when absent.
func (k *Keywords) Value(key string) string {
	v, _ := k.Get(key)
	return v
}

// Has reports whether key is present.
func (k *Keywords) Has(key string) bool {
	_, ok := k.Get(key)
	return ok
}

// Len returns the number of keywords.
func (k *Keywords) Len() int {
	if k == nil {
		return 0
	}
	return len(k.order)
}

// Keys returns the keys in insertion order.
func (k *Keywords) Keys() []string {
	if k == nil {
		return nil
	}
	out := make([]string, len(k.order))
	copy(out, k.order)
	return out
}

// Map returns a copy as a plain map.
func (k *Keywords) Map() map[string]string {
	out := make(map[string]string, k.Len())
	if k == nil {
		return out
	}
	for key, v := range k.values {
		out[key] = v
	}
	return out
}

// Clone returns an independent copy.
func (k *Keywords) Clone() *Keywords {
	out := NewKeywords()
	if k == nil {
		return out
	}
	for _, key := range k.order {
		out.Set(key, k.values[key])
	}
	return out
}

// Merge adds every keyword of other that k does not already hold.
func (k *Keywords) Merge(other *Keywords) {
	for _, key := range other.Keys() {
		k.SetDefault(key, other.values[key])
	}
}

// Int parses key as a decimal integer. Values such as "1024.0" written by
// some instruments are accepted when integral.
func (k *Keywords) Int(key string) (int64, error) {
	raw, ok := k.Get(key)
	if !ok {
		return 0, flowerr.Formatf("required keyword %s missing", normKey(key))
	}
	return parseIntValue(normKey(key), raw)
}

// Float parses key as a float.
func (k *Keywords) Float(key string) (float64, bool, error) {
	raw, ok := k.Get(key)
	if !ok {
		return 0, false, nil
	}
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, false, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, true, flowerr.Formatf("keyword %s: invalid number %q", normKey(key), raw)
	}
	return v, true, nil
}

func parseIntValue(key, raw string) (int64, error) {
	s := strings.TrimSpace(raw)
	if v, err := strconv.ParseInt(s, 10, 64); err == nil {
		return v, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f != float64(int64(f)) {
		return 0, flowerr.Formatf("keyword %s: invalid integer %q", key, raw)
	}
	return int64(f), nil
}

// ParamKey formats a per-parameter keyword, e.g. ParamKey(3, "N") = "$P3N".
func ParamKey(n int, suffix string) string {
	return "$P" + strconv.Itoa(n) + strings.ToUpper(suffix)
}
