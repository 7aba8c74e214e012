package util

import (
	"strings"

	"golang.org/x/net/html"
)

// ParseLinks finds links ending with a specific suffix within an HTML node tree.
// It performs a depth-first search for <a> tags and checks their href attribute.
// The suffix comparison is case-insensitive and the bare root link "/" is ignored.
func ParseLinks(n *html.Node, suffix string) []string {
	var out []string
	var walk func(*html.Node)

	suffix = strings.ToLower(suffix)
	walk = func(nd *html.Node) {
		if nd.Type == html.ElementNode && nd.Data == "a" {
			for _, a := range nd.Attr {
				if a.Key != "href" {
					continue
				}
				// Strip any query string before matching the extension
				target := strings.ToLower(a.Val)
				if i := strings.IndexByte(target, '?'); i >= 0 {
					target = target[:i]
				}
				if strings.HasSuffix(target, suffix) && a.Val != "/" {
					out = append(out, a.Val)
				}
				break
			}
		}
		for c := nd.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}

	walk(n)
	return out
}
