package transform

import (
	"bytes"
	"fmt"

	"github.com/antchfx/xmlquery"
	"github.com/antchfx/xpath"
)

// XMLTransformer parses a message body as XML and compiles plain
// XPath expressions against it via antchfx/xmlquery.
type XMLTransformer struct{}

func (t *XMLTransformer) Transform(raw []byte) (any, error) {
	doc, err := xmlquery.Parse(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("decoding XML message body: %w", err)
	}
	return doc, nil
}

func (t *XMLTransformer) Compile(expression string) (Selector, error) {
	expr, err := xpath.Compile(expression)
	if err != nil {
		return nil, fmt.Errorf("compiling XPath expression %q: %w", expression, err)
	}
	return &xmlSelector{expression: expression, compiled: expr}, nil
}

type xmlSelector struct {
	expression string
	compiled   *xpath.Expr
}

func (s *xmlSelector) Select(value any) ([]string, error) {
	doc, ok := value.(*xmlquery.Node)
	if !ok {
		return nil, fmt.Errorf("xml selector given a non-document value")
	}

	nodes := xmlquery.QuerySelectorAll(doc, s.compiled)

	matches := make([]string, 0, len(nodes))
	for _, n := range nodes {
		switch n.Type {
		case xmlquery.TextNode, xmlquery.AttributeNode:
			matches = append(matches, n.InnerText())
		default:
			matches = append(matches, n.OutputXML(true))
		}
	}
	return matches, nil
}
