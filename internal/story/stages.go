package story

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/net/html"

	"github.com/IshaanNene/storyscraper/internal/fetcher"
	"github.com/IshaanNene/storyscraper/internal/parser"
	"github.com/IshaanNene/storyscraper/internal/types"
)

// Page is a fetched and parsed article page.
type Page struct {
	Request  *types.Request
	Response *types.Response
	Root     *html.Node
}

// URL returns the article URL as requested (before redirects).
func (p *Page) URL() string { return p.Request.URLString() }

// FetchPage issues the article GET and parses the body as HTML.
func FetchPage(ctx context.Context, f fetcher.Fetcher, rawURL string) (*Page, error) {
	req, err := types.NewRequest(rawURL, types.TagPage)
	if err != nil {
		return nil, err
	}

	resp, err := f.Fetch(ctx, req)
	if err != nil {
		return nil, err
	}
	if !resp.IsSuccess() {
		return nil, &types.FetchError{
			URL:        rawURL,
			StatusCode: resp.StatusCode,
			Err:        types.ErrUnexpectedStatus,
		}
	}

	root, err := resp.ParseHTML()
	if err != nil {
		return nil, &types.ParseError{URL: rawURL, Err: fmt.Errorf("parse html: %w", err)}
	}

	return &Page{Request: req, Response: resp, Root: root}, nil
}

// ExtractTranscript locates the single transcript container and returns it
// prettified.
func ExtractTranscript(page *Page, loc parser.Locator, selector string) (string, error) {
	m, err := parser.LookupOne(loc, page.Root, selector)
	if err != nil {
		return "", &types.ParseError{URL: page.URL(), Selector: selector, Err: err}
	}
	if err := m.Err(page.URL()); err != nil {
		return "", err
	}
	return parser.Prettify(m.Node()), nil
}

// DiscoverPlaylist finds the single player node and builds the absolute
// playlist URL from its attribute, using the scheme and host of the original
// page request.
func DiscoverPlaylist(page *Page, loc parser.Locator, selector, attr string) (*url.URL, error) {
	m, err := parser.LookupOne(loc, page.Root, selector)
	if err != nil {
		return nil, &types.ParseError{URL: page.URL(), Selector: selector, Err: err}
	}
	if err := m.Err(page.URL()); err != nil {
		return nil, err
	}

	raw, ok := parser.Attr(m.Node(), attr)
	raw = strings.TrimSpace(raw)
	if !ok || raw == "" {
		return nil, &types.ParseError{
			URL:      page.URL(),
			Selector: selector,
			Err:      fmt.Errorf("%w: %s", types.ErrMissingAttribute, attr),
		}
	}

	ref, err := url.Parse(raw)
	if err != nil {
		return nil, &types.ParseError{URL: page.URL(), Selector: selector, Err: fmt.Errorf("playlist path %q: %w", raw, err)}
	}

	origin := &url.URL{Scheme: page.Request.URL.Scheme, Host: page.Request.URL.Host, Path: "/"}
	return origin.ResolveReference(ref), nil
}

// FetchPlaylist GETs the playlist endpoint and returns its single record.
// Anything other than HTTP 200 is an error.
func FetchPlaylist(ctx context.Context, f fetcher.Fetcher, playlistURL *url.URL) (types.Record, error) {
	req, err := types.NewRequest(playlistURL.String(), types.TagPlaylist)
	if err != nil {
		return nil, err
	}

	resp, err := f.Fetch(ctx, req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &types.FetchError{
			URL:        req.URLString(),
			StatusCode: resp.StatusCode,
			Err:        types.ErrUnexpectedStatus,
		}
	}

	return DecodePlaylist(resp.Body, req.URLString())
}

// DecodePlaylist decodes a JSON array holding exactly one object.
// Numbers are kept as json.Number.
func DecodePlaylist(body []byte, sourceURL string) (types.Record, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var entries []any
	if err := dec.Decode(&entries); err != nil {
		return nil, &types.ParseError{URL: sourceURL, Err: fmt.Errorf("%w: %v", types.ErrPlaylistShape, err)}
	}
	if dec.More() {
		return nil, &types.ParseError{URL: sourceURL, Err: fmt.Errorf("%w: trailing data", types.ErrPlaylistShape)}
	}
	if len(entries) != 1 {
		return nil, &types.ParseError{URL: sourceURL, Err: fmt.Errorf("%w: %d elements", types.ErrPlaylistShape, len(entries))}
	}

	obj, ok := entries[0].(map[string]any)
	if !ok {
		return nil, &types.ParseError{URL: sourceURL, Err: fmt.Errorf("%w: element is %T", types.ErrPlaylistShape, entries[0])}
	}
	return types.Record(obj), nil
}

// Simplify drops the non-essential keys from rec. rec itself is untouched.
func Simplify(rec types.Record, excluded []string) types.Record {
	return rec.Without(excluded...)
}

// BuildRenditions maps each "mbr" entry's name to an absolute URL.
// Protocol-relative sources ("//host/a.mp4") get the page scheme prepended;
// absolute sources are kept and other relative sources resolve against page.
// Entries without a name or src are skipped.
func BuildRenditions(rec types.Record, page *url.URL) (types.Renditions, error) {
	list, ok := rec["mbr"].([]any)
	if !ok {
		return nil, types.ErrNoRenditions
	}

	out := make(types.Renditions, len(list))
	for _, entry := range list {
		obj, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		name, _ := obj["name"].(string)
		src, _ := obj["src"].(string)
		if name == "" || src == "" {
			continue
		}
		out[name] = absoluteSource(src, page)
	}

	if len(out) == 0 {
		return nil, types.ErrNoRenditions
	}
	return out, nil
}

func absoluteSource(src string, page *url.URL) string {
	if strings.HasPrefix(src, "//") {
		return page.Scheme + ":" + src
	}
	ref, err := url.Parse(src)
	if err != nil || ref.IsAbs() {
		return src
	}
	return page.ResolveReference(ref).String()
}
