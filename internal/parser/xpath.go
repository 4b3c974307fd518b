package parser

import (
	"fmt"
	"log/slog"

	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"
)

// XPathLocator finds nodes using XPath expressions.
type XPathLocator struct {
	logger *slog.Logger
}

// NewXPathLocator creates a new XPath locator.
func NewXPathLocator(logger *slog.Logger) *XPathLocator {
	return &XPathLocator{
		logger: logger.With("component", "xpath_locator"),
	}
}

// Locate implements Locator.
func (l *XPathLocator) Locate(root *html.Node, selector string) ([]*html.Node, error) {
	nodes, err := htmlquery.QueryAll(root, selector)
	if err != nil {
		return nil, fmt.Errorf("invalid xpath %q: %w", selector, err)
	}
	l.logger.Debug("xpath lookup", "selector", selector, "matches", len(nodes))
	return nodes, nil
}

// Kind implements Locator.
func (l *XPathLocator) Kind() string { return "xpath" }

// Attr returns the value of attribute name on n and whether it was present.
func Attr(n *html.Node, name string) (string, bool) {
	if n == nil || !htmlquery.ExistsAttr(n, name) {
		return "", false
	}
	return htmlquery.SelectAttr(n, name), true
}
