// Package xml escapes text for generated OpenDocument parts and reads them
// back with XPath.
//
// Parsing goes through xmlquery, which uses encoding/xml and never fetches
// external entities. Validate additionally disables internal entity
// expansion.
package xml

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strings"

	"github.com/antchfx/xmlquery"
	"github.com/antchfx/xpath"
)

// Document is a parsed XML document.
type Document struct {
	root *xmlquery.Node
}

// Node is an element, attribute or text node.
type Node struct {
	node *xmlquery.Node
}

// Parse parses XML data.
func Parse(data []byte) (*Document, error) {
	root, err := xmlquery.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parsing XML: %w", err)
	}
	return &Document{root: root}, nil
}

// Validate checks that data is well-formed. It returns the first syntax
// error, or nil.
func Validate(data []byte) error {
	decoder := xml.NewDecoder(bytes.NewReader(data))
	decoder.Entity = map[string]string{}
	for {
		_, err := decoder.Token()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("malformed XML: %w", err)
		}
	}
}

// Root returns the document element.
func (d *Document) Root() *Node {
	if d == nil || d.root == nil {
		return nil
	}
	for child := d.root.FirstChild; child != nil; child = child.NextSibling {
		if child.Type == xmlquery.ElementNode {
			return &Node{node: child}
		}
	}
	return nil
}

// XPath returns every node matching expr.
func (d *Document) XPath(expr string) ([]*Node, error) {
	return query(d.root, expr)
}

// XPathFirst returns the first node matching expr, or nil.
func (d *Document) XPathFirst(expr string) (*Node, error) {
	nodes, err := query(d.root, expr)
	if err != nil || len(nodes) == 0 {
		return nil, err
	}
	return nodes[0], nil
}

// Count evaluates a count() style expression and returns its number.
func (d *Document) Count(expr string) (int, error) {
	compiled, err := xpath.Compile(expr)
	if err != nil {
		return 0, fmt.Errorf("invalid xpath: %w", err)
	}
	v := compiled.Evaluate(xmlquery.CreateXPathNavigator(d.root))
	f, ok := v.(float64)
	if !ok {
		return 0, fmt.Errorf("xpath %q is not numeric", expr)
	}
	return int(f), nil
}

// XPath evaluates expr relative to n.
func (n *Node) XPath(expr string) ([]*Node, error) {
	if n == nil {
		return nil, nil
	}
	return query(n.node, expr)
}

func query(root *xmlquery.Node, expr string) ([]*Node, error) {
	if root == nil {
		return nil, nil
	}
	compiled, err := xpath.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid xpath: %w", err)
	}
	nodes := xmlquery.QuerySelectorAll(root, compiled)
	result := make([]*Node, len(nodes))
	for i, n := range nodes {
		result[i] = &Node{node: n}
	}
	return result, nil
}

// Name returns the local element name.
func (n *Node) Name() string {
	if n == nil || n.node == nil {
		return ""
	}
	return n.node.Data
}

// Text returns the text content of the node and its descendants.
func (n *Node) Text() string {
	if n == nil || n.node == nil {
		return ""
	}
	return n.node.InnerText()
}

// Children returns the child elements.
func (n *Node) Children() []*Node {
	if n == nil || n.node == nil {
		return nil
	}
	var children []*Node
	for child := n.node.FirstChild; child != nil; child = child.NextSibling {
		if child.Type == xmlquery.ElementNode {
			children = append(children, &Node{node: child})
		}
	}
	return children
}

// Attr returns an attribute value. A prefixed name ("draw:name") matches
// on the local part when the prefix is not recorded.
func (n *Node) Attr(name string) string {
	if n == nil || n.node == nil {
		return ""
	}
	prefix, local, ok := strings.Cut(name, ":")
	if !ok {
		prefix, local = "", name
	}
	fallback := ""
	for _, attr := range n.node.Attr {
		if attr.Name.Local != local {
			continue
		}
		if attr.Name.Space == prefix {
			return attr.Value
		}
		if fallback == "" {
			fallback = attr.Value
		}
	}
	return fallback
}

// EscapeText escapes s for element content. Runes that XML 1.0 forbids
// are dropped.
func EscapeText(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch r {
		case '&':
			b.WriteString("&amp;")
		case '<':
			b.WriteString("&lt;")
		case '>':
			b.WriteString("&gt;")
		default:
			if allowed(r) {
				b.WriteRune(r)
			}
		}
	}
	return b.String()
}

// EscapeAttr escapes s for a double-quoted attribute value.
func EscapeAttr(s string) string {
	return strings.ReplaceAll(EscapeText(s), `"`, "&quot;")
}

func allowed(r rune) bool {
	switch {
	case r == '\t', r == '\n', r == '\r':
		return true
	case r < 0x20:
		return false
	case r >= 0xD800 && r <= 0xDFFF:
		return false
	case r == 0xFFFE, r == 0xFFFF:
		return false
	}
	return r <= 0x10FFFF
}
