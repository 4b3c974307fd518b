package parser

import (
	"fmt"
	"log/slog"

	"golang.org/x/net/html"
)

// Locator finds the nodes matching a selector expression.
type Locator interface {
	// Locate returns every node under root matching selector, in document order.
	Locate(root *html.Node, selector string) ([]*html.Node, error)

	// Kind returns the selector language ("css" or "xpath").
	Kind() string
}

// NewLocator returns the locator for the given selector language.
func NewLocator(kind string, logger *slog.Logger) (Locator, error) {
	switch kind {
	case "", "css":
		return NewCSSLocator(logger), nil
	case "xpath":
		return NewXPathLocator(logger), nil
	default:
		return nil, fmt.Errorf("unsupported selector type: %s", kind)
	}
}
