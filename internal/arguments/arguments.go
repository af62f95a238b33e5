// Package arguments parses the endpoint grammar shared by both
// integrations: a comma-separated list of "key:value" segments, e.g.
// "queue:TEST, expression:$.name=='beta', max_message_size:1024".
package arguments

import (
	"fmt"
	"strings"

	"github.com/biometria-se/async-messaged/internal/message"
)

// Parsed is the decoded endpoint string: an ordered set of key/value
// segments plus convenience accessors. Order is preserved because some
// callers (Service Bus cache keys) need the original segment order
// minus one stripped key.
type Parsed struct {
	segments []segment
}

type segment struct {
	key, value string
}

// Parse splits endpoint on top-level commas and each segment on the
// first colon. A segment lacking a colon is a configuration error.
func Parse(endpoint string) (*Parsed, error) {
	parts := splitTopLevel(endpoint)
	p := &Parsed{segments: make([]segment, 0, len(parts))}

	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		idx := strings.Index(part, ":")
		if idx < 0 {
			return nil, fmt.Errorf("%w: malformed endpoint segment %q", message.ErrConfiguration, part)
		}
		key := strings.TrimSpace(part[:idx])
		value := strings.TrimSpace(part[idx+1:])
		p.segments = append(p.segments, segment{key: key, value: value})
	}

	return p, nil
}

// splitTopLevel splits on top-level commas but keeps the inside of an expression
// value (which may itself contain commas inside brackets/quotes)
// intact, since expressions like "expression:$.\"this\"[?(@.a,@.b)]"
// must not be broken on their internal commas.
func splitTopLevel(s string) []string {
	var parts []string
	var depth int
	var inQuote byte
	start := 0

	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case inQuote != 0:
			if c == inQuote {
				inQuote = 0
			}
		case c == '\'' || c == '"' || c == '`':
			inQuote = c
		case c == '[' || c == '(':
			depth++
		case c == ']' || c == ')':
			if depth > 0 {
				depth--
			}
		case c == ',' && depth == 0:
			// Only split when this looks like a new "key:" segment
			// start, i.e. the next non-space run contains a colon
			// before the next comma at depth 0. Spaces after the comma
			// are allowed but not required.
			if isSegmentBoundary(s, i) {
				parts = append(parts, s[start:i])
				start = i + 1
			}
		}
	}
	parts = append(parts, s[start:])
	return parts
}

// isSegmentBoundary reports whether the comma at index i separates two
// endpoint segments, as opposed to sitting inside an expression value
// that wasn't bracket/quote delimited (e.g. a bare JSONPath set).
func isSegmentBoundary(s string, i int) bool {
	rest := strings.TrimLeft(s[i+1:], " ")
	colon := strings.IndexByte(rest, ':')
	if colon < 0 {
		return false
	}
	for _, r := range rest[:colon] {
		if r == ' ' {
			continue
		}
		if !isIdentChar(byte(r)) {
			return false
		}
	}
	return true
}

func isIdentChar(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

// Get returns the value for key and whether it was present.
func (p *Parsed) Get(key string) (string, bool) {
	for _, seg := range p.segments {
		if seg.key == key {
			return seg.value, true
		}
	}
	return "", false
}

// Keys returns every segment key in encounter order, including
// duplicates if present. Validate does not reject duplicates, and Get
// returns the first value for a repeated key.
func (p *Parsed) Keys() []string {
	keys := make([]string, len(p.segments))
	for i, seg := range p.segments {
		keys[i] = seg.key
	}
	return keys
}

// Validate ensures every segment key is in allowed and every key in
// required is present, matching "any other argument key is rejected".
func (p *Parsed) Validate(allowed []string, required []string) error {
	allowedSet := make(map[string]bool, len(allowed))
	for _, k := range allowed {
		allowedSet[k] = true
	}

	for _, seg := range p.segments {
		if !allowedSet[seg.key] {
			return fmt.Errorf("%w: unsupported argument %q", message.ErrConfiguration, seg.key)
		}
	}

	for _, k := range required {
		if _, ok := p.Get(k); !ok {
			return fmt.Errorf("%w: missing required argument %q", message.ErrConfiguration, k)
		}
	}

	return nil
}
