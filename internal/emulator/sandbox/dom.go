package sandbox

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"
)

// DOM is a parsed, read-only page.
type DOM struct {
	doc *goquery.Document
}

// ParseDOM parses an HTML page.
func ParseDOM(page string) (*DOM, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	if err != nil {
		return nil, fmt.Errorf("parse page: %w", err)
	}
	return &DOM{doc: doc}, nil
}

// Root returns the document node.
func (d *DOM) Root() *html.Node {
	return d.doc.Nodes[0]
}

// Title returns the text of the title element.
func (d *DOM) Title() string {
	return strings.TrimSpace(d.doc.Find("title").First().Text())
}

// QueryCSS returns the elements matching a CSS selector group in document
// order.
func (d *DOM) QueryCSS(selector string) ([]*html.Node, error) {
	sel, err := cascadia.Compile(selector)
	if err != nil {
		return nil, fmt.Errorf("invalid selector %q: %w", selector, err)
	}
	return cascadia.QueryAll(d.Root(), sel), nil
}

// QueryXPath returns the nodes matching an XPath expression.
func (d *DOM) QueryXPath(expr string) ([]*html.Node, error) {
	nodes, err := htmlquery.QueryAll(d.Root(), expr)
	if err != nil {
		return nil, fmt.Errorf("invalid xpath %q: %w", expr, err)
	}
	return nodes, nil
}

// InlineScripts returns the bodies of script elements without a src.
func (d *DOM) InlineScripts() []string {
	var scripts []string
	d.doc.Find("script").Each(func(_ int, s *goquery.Selection) {
		if _, external := s.Attr("src"); external {
			return
		}
		if body := strings.TrimSpace(s.Text()); body != "" {
			scripts = append(scripts, body)
		}
	})
	return scripts
}

// Attribute returns the value of attribute name on n.
func Attribute(n *html.Node, name string) (string, bool) {
	for _, attr := range n.Attr {
		if strings.EqualFold(attr.Key, name) {
			return attr.Val, true
		}
	}
	return "", false
}

// Text returns the text content of n.
func Text(n *html.Node) string {
	return goquery.NewDocumentFromNode(n).Text()
}
