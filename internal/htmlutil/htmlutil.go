// Package htmlutil walks parsed HTML documents to extract visible text (for
// C3's lemma analyzer) and absolute link targets (for C7's crawl scheduler).
// Grounded on _examples/ermug-open_search's TextProcessor.CleanHTML walk.
package htmlutil

import (
	"net/url"
	"strings"

	"golang.org/x/net/html"
)

// VisibleText walks doc and concatenates the text of every text node not
// inside a script/style/noscript element.
func VisibleText(doc []byte) string {
	root, err := html.Parse(strings.NewReader(string(doc)))
	if err != nil {
		return ""
	}
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script", "style", "noscript":
				return
			}
		}
		if n.Type == html.TextNode {
			if trimmed := strings.TrimSpace(n.Data); trimmed != "" {
				sb.WriteString(trimmed)
				sb.WriteString(" ")
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return sb.String()
}

// Links walks doc and returns every `<a href>` target resolved to an absolute
// URL against base. Non-http(s) schemes (mailto:, javascript:, ftp:, file:)
// are dropped here so C7 never has to special-case them downstream.
func Links(doc []byte, base string) []string {
	root, err := html.Parse(strings.NewReader(string(doc)))
	if err != nil {
		return nil
	}
	baseURL, err := url.Parse(base)
	if err != nil {
		return nil
	}

	var links []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "a" {
			for _, attr := range n.Attr {
				if attr.Key != "href" {
					continue
				}
				if abs := resolveHTTP(baseURL, attr.Val); abs != "" {
					links = append(links, abs)
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return links
}

func resolveHTTP(base *url.URL, href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	abs := base.ResolveReference(ref)
	if abs.Scheme != "http" && abs.Scheme != "https" {
		return ""
	}
	return abs.String()
}
