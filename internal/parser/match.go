package parser

import (
	"golang.org/x/net/html"

	"github.com/IshaanNene/storyscraper/internal/types"
)

// MatchStatus classifies how many nodes a selector hit.
type MatchStatus int

const (
	MatchNotFound MatchStatus = iota
	MatchFound
	MatchAmbiguous
)

func (s MatchStatus) String() string {
	switch s {
	case MatchFound:
		return "found"
	case MatchAmbiguous:
		return "ambiguous"
	default:
		return "not_found"
	}
}

// Match is the outcome of looking up a selector that must hit exactly one node.
type Match struct {
	Selector string
	Status   MatchStatus
	Nodes    []*html.Node
}

// LookupOne runs selector through loc and classifies the result.
// The returned error is only for selectors the locator cannot compile.
func LookupOne(loc Locator, root *html.Node, selector string) (Match, error) {
	nodes, err := loc.Locate(root, selector)
	if err != nil {
		return Match{Selector: selector}, err
	}

	m := Match{Selector: selector, Nodes: nodes}
	switch len(nodes) {
	case 0:
		m.Status = MatchNotFound
	case 1:
		m.Status = MatchFound
	default:
		m.Status = MatchAmbiguous
	}
	return m, nil
}

// Node returns the single matched node, or nil unless Status is MatchFound.
func (m Match) Node() *html.Node {
	if m.Status != MatchFound {
		return nil
	}
	return m.Nodes[0]
}

// Err converts a non-found match into a *types.ParseError for pageURL.
// It returns nil for MatchFound.
func (m Match) Err(pageURL string) error {
	switch m.Status {
	case MatchFound:
		return nil
	case MatchAmbiguous:
		return &types.ParseError{URL: pageURL, Selector: m.Selector, Err: types.ErrSelectorAmbiguous}
	default:
		return &types.ParseError{URL: pageURL, Selector: m.Selector, Err: types.ErrSelectorNotFound}
	}
}
