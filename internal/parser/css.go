package parser

import (
	"fmt"
	"log/slog"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
)

// CSSLocator finds nodes using CSS selectors via goquery.
type CSSLocator struct {
	logger *slog.Logger
}

// NewCSSLocator creates a new CSS selector locator.
func NewCSSLocator(logger *slog.Logger) *CSSLocator {
	return &CSSLocator{
		logger: logger.With("component", "css_locator"),
	}
}

// Locate implements Locator. The selector is compiled up front so a typo
// surfaces as an error instead of an empty match.
func (l *CSSLocator) Locate(root *html.Node, selector string) ([]*html.Node, error) {
	matcher, err := cascadia.Compile(selector)
	if err != nil {
		return nil, fmt.Errorf("invalid css selector %q: %w", selector, err)
	}

	nodes := goquery.NewDocumentFromNode(root).FindMatcher(matcher).Nodes
	l.logger.Debug("css lookup", "selector", selector, "matches", len(nodes))
	return nodes, nil
}

// Kind implements Locator.
func (l *CSSLocator) Kind() string { return "css" }
