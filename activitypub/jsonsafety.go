package activitypub

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
)

// JSONLimits bounds a single inbound JSON document, per spec §4.C3. All
// four are configurable (util.AppConfig) with the spec's defaults.
type JSONLimits struct {
	MaxSize         int64
	MaxDepth        int
	MaxKeys         int
	MaxStringLength int
}

// ParseBoundedJSON reads up to limits.MaxSize bytes from r, then decodes
// into out while rejecting documents that exceed depth, key-count, or
// string-length bounds. The returned raw bytes let the caller re-read
// the body (e.g. for signature verification) without hitting the wire
// twice.
func ParseBoundedJSON(r io.Reader, limits JSONLimits, out any) ([]byte, error) {
	limited := io.LimitReader(r, limits.MaxSize+1)
	raw, err := io.ReadAll(limited)
	if err != nil {
		return nil, fmt.Errorf("jsonsafety: read failed: %w", err)
	}
	if int64(len(raw)) > limits.MaxSize {
		return nil, fmt.Errorf("jsonsafety: body exceeds %d byte limit", limits.MaxSize)
	}

	if err := validateJSONShape(raw, limits); err != nil {
		return nil, err
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return nil, fmt.Errorf("jsonsafety: malformed JSON: %w", err)
	}
	return raw, nil
}

// validateJSONShape walks the token stream without building the full
// tree, so a pathologically deep or wide document is rejected before
// json.Unmarshal ever allocates it.
func validateJSONShape(raw []byte, limits JSONLimits) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	depth := 0
	keys := 0
	var inObject []bool // per open container: true for an object
	expectKey := false

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("jsonsafety: malformed JSON: %w", err)
		}

		switch v := tok.(type) {
		case json.Delim:
			switch v {
			case '{', '[':
				depth++
				if limits.MaxDepth > 0 && depth > limits.MaxDepth {
					return fmt.Errorf("jsonsafety: nesting depth exceeds %d", limits.MaxDepth)
				}
				inObject = append(inObject, v == '{')
				expectKey = v == '{'
			case '}', ']':
				depth--
				inObject = inObject[:len(inObject)-1]
				expectKey = len(inObject) > 0 && inObject[len(inObject)-1]
			}
			continue
		case string:
			if limits.MaxStringLength > 0 && len(v) > limits.MaxStringLength {
				return fmt.Errorf("jsonsafety: string value exceeds %d bytes", limits.MaxStringLength)
			}
			if !expectKey {
				break
			}
			keys++
			if limits.MaxKeys > 0 && keys > limits.MaxKeys {
				return fmt.Errorf("jsonsafety: document exceeds %d keys", limits.MaxKeys)
			}
			expectKey = false
			continue
		}
		expectKey = len(inObject) > 0 && inObject[len(inObject)-1]
	}
	return nil
}

// RequiredActivityFields are the top-level fields every inbound
// Activity must carry regardless of verb (spec §4.C3 "schema
// validation").
func RequiredActivityFields(raw map[string]any) error {
	for _, field := range []string{"type", "actor"} {
		if _, ok := raw[field]; !ok {
			return fmt.Errorf("jsonsafety: missing required field %q", field)
		}
	}
	return nil
}
