package transform

import (
	"fmt"
	"regexp"
)

// PlainTransformer is an identity transformer: the body is matched
// as-is by a regular expression anchored at the start of the body,
// with zero or one capturing group, per section 4.8.
type PlainTransformer struct{}

func (t *PlainTransformer) Transform(raw []byte) (any, error) {
	return string(raw), nil
}

func (t *PlainTransformer) Compile(expression string) (Selector, error) {
	re, err := regexp.Compile(`^(?:` + expression + `)`)
	if err != nil {
		return nil, fmt.Errorf("compiling regular expression %q: %w", expression, err)
	}
	if re.NumSubexp() > 1 {
		return nil, fmt.Errorf("only expressions that has zero or one match group is allowed")
	}
	return &plainSelector{re: re}, nil
}

type plainSelector struct {
	re *regexp.Regexp
}

func (s *plainSelector) Select(value any) ([]string, error) {
	text, ok := value.(string)
	if !ok {
		return nil, fmt.Errorf("plain selector given a non-string value")
	}

	match := s.re.FindStringSubmatch(text)
	if match == nil {
		return nil, nil
	}
	if len(match) > 1 {
		return []string{match[1]}, nil
	}
	return []string{match[0]}, nil
}
