package extract

import (
	"bytes"
	"encoding/json"
	"strings"
)

// FindJSON returns the first well-formed JSON value in text that starts with
// the open byte ('[' or '{'). Model responses often wrap JSON in prose or a
// code fence; each candidate opening bracket is tried in order until one
// decodes as a complete value of the requested kind.
func FindJSON(text string, open byte) (json.RawMessage, bool) {
	text = stripCodeBlock(text)
	for i := 0; i < len(text); i++ {
		if text[i] != open {
			continue
		}
		dec := json.NewDecoder(strings.NewReader(text[i:]))
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			continue
		}
		raw = bytes.TrimSpace(raw)
		if len(raw) > 0 && raw[0] == open {
			return raw, true
		}
	}
	return nil, false
}
