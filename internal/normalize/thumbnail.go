package normalize

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// FirstImageSrc scans text as an HTML fragment and returns the src of the
// first <img> element in document order. This is a best-effort scan: the
// value is not validated against any image signature, and unparseable
// markup yields an empty result.
func FirstImageSrc(text string) string {
	if !strings.Contains(text, "<img") {
		return ""
	}

	root := &html.Node{Type: html.ElementNode, DataAtom: atom.Div, Data: "div"}
	nodes, err := html.ParseFragment(strings.NewReader(text), root)
	if err != nil {
		return ""
	}

	for _, node := range nodes {
		if src := findImageSrc(node); src != "" {
			return src
		}
	}

	return ""
}

func findImageSrc(node *html.Node) string {
	if node.Type == html.ElementNode && node.Data == "img" {
		for _, attr := range node.Attr {
			if attr.Key == "src" && strings.TrimSpace(attr.Val) != "" {
				return strings.TrimSpace(attr.Val)
			}
		}
	}

	for child := node.FirstChild; child != nil; child = child.NextSibling {
		if src := findImageSrc(child); src != "" {
			return src
		}
	}

	return ""
}
