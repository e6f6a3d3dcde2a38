package htmltext

import (
	"net/url"
	"slices"
	"strings"

	"browser-mcp/internal/domain/entity"

	"golang.org/x/net/html"
)

// skipTags never contribute anchor text.
var skipTags = []string{"script", "style", "noscript", "template", "svg"}

// ExtractLinks returns the anchors of an HTML fragment in document order.
// Hrefs are resolved against base and de-duplicated, keeping the first
// occurrence.
func ExtractLinks(fragment, base string) []entity.Link {
	doc, err := html.Parse(strings.NewReader(fragment))
	if err != nil {
		return nil
	}

	baseURL, err := url.Parse(base)
	if err != nil {
		baseURL = nil
	}

	links := make([]entity.Link, 0)
	seen := make(map[string]bool)

	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && slices.Contains(skipTags, n.Data) {
			return
		}
		if n.Type == html.ElementNode && n.Data == "a" {
			if href, ok := resolveHref(attr(n, "href"), baseURL); ok && !seen[href] {
				seen[href] = true
				links = append(links, entity.Link{Href: href, Text: nodeText(n)})
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	return links
}

func resolveHref(raw string, base *url.URL) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.HasPrefix(strings.ToLower(raw), "javascript:") {
		return "", false
	}
	ref, err := url.Parse(raw)
	if err != nil {
		return "", false
	}
	if base == nil {
		return ref.String(), true
	}
	return base.ResolveReference(ref).String(), true
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func nodeText(n *html.Node) string {
	var sb strings.Builder
	var collect func(*html.Node)
	collect = func(n *html.Node) {
		switch {
		case n.Type == html.TextNode:
			sb.WriteString(n.Data)
			sb.WriteByte(' ')
		case n.Type == html.ElementNode && slices.Contains(skipTags, n.Data):
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			collect(c)
		}
	}
	collect(n)
	return strings.Join(strings.Fields(sb.String()), " ")
}
