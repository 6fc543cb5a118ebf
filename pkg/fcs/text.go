package fcs

import (
	"flowcore/pkg/flowerr"
)

// parseText decodes a keyword segment (TEXT, supplemental TEXT or
// ANALYSIS). The first byte is the delimiter and must also close the
// segment; a doubled delimiter inside a token is a literal delimiter.
func parseText(raw []byte) (*Keywords, error) {
	n := len(raw)
	if n < 2 {
		return nil, flowerr.Formatf("keyword segment is %d bytes", n)
	}
	delim := raw[0]
	if raw[n-1] != delim {
		return nil, flowerr.Formatf("keyword segment does not end with delimiter %q", delim)
	}
	if raw[1] == delim {
		return nil, flowerr.Formatf("keyword segment starts with an empty keyword")
	}

	var tokens []string
	cur := make([]byte, 0, 32)
	for i := 1; i < n; i++ {
		c := raw[i]
		if c != delim {
			cur = append(cur, c)
			continue
		}
		// a doubled delimiter escapes unless the second one closes the segment
		if i+1 < n-1 && raw[i+1] == delim {
			cur = append(cur, delim)
			i++
			continue
		}
		tokens = append(tokens, string(cur))
		cur = cur[:0]
	}

	if len(tokens)%2 != 0 {
		return nil, flowerr.Formatf("keyword segment has %d tokens; keys and values must pair up", len(tokens))
	}
	kw := NewKeywords()
	for i := 0; i < len(tokens); i += 2 {
		if tokens[i] == "" {
			return nil, flowerr.Formatf("empty keyword at token %d", i)
		}
		if kw.Has(tokens[i]) {
			continue
		}
		kw.Set(tokens[i], tokens[i+1])
	}
	return kw, nil
}
