// Package sources adapts upstream services to the poll package.
package sources

import (
	"context"
	"io"
	"net/http"
	"strings"

	"github.com/jfk9w-go/flu/httpf"
	"github.com/pkg/errors"
	"golang.org/x/net/html"
)

var LivePageURL = "https://live.phish.net"

// LivePage reads the running setlist from the live page.
type LivePage struct {
	HttpClient *http.Client
	URL        string
}

func NewLivePage(httpClient *http.Client, url string) *LivePage {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	if url == "" {
		url = LivePageURL
	}

	return &LivePage{HttpClient: httpClient, URL: url}
}

func (p *LivePage) FetchSequence(ctx context.Context) ([]string, error) {
	setlist := new(setlistHandler)
	if err := httpf.GET(p.URL).
		Exchange(ctx, p.HttpClient).
		CheckStatus(http.StatusOK).
		Handle(setlist).
		Error(); err != nil {
		return nil, errors.Wrap(err, "get live page")
	}

	return setlist.titles, nil
}

type setlistHandler struct {
	titles []string
}

func (h *setlistHandler) Handle(resp *http.Response) (err error) {
	h.titles, err = ParseSetlist(resp.Body)
	return
}

// ParseSetlist returns the titles of the links inside the setlist block, in document order.
func ParseSetlist(r io.Reader) ([]string, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, errors.Wrap(err, "parse html")
	}

	body := find(doc, func(node *html.Node) bool {
		return node.Type == html.ElementNode && node.Data == "div" && hasClass(node, "setlist-body")
	})

	if body == nil {
		return nil, errors.New("setlist block not found")
	}

	titles := make([]string, 0)
	walk(body, func(node *html.Node) {
		if node.Type != html.ElementNode || node.Data != "a" {
			return
		}

		if title, ok := attr(node, "title"); ok {
			titles = append(titles, strings.TrimSpace(title))
		}
	})

	return titles, nil
}

func find(node *html.Node, match func(*html.Node) bool) *html.Node {
	if match(node) {
		return node
	}

	for child := node.FirstChild; child != nil; child = child.NextSibling {
		if found := find(child, match); found != nil {
			return found
		}
	}

	return nil
}

func walk(node *html.Node, visit func(*html.Node)) {
	visit(node)
	for child := node.FirstChild; child != nil; child = child.NextSibling {
		walk(child, visit)
	}
}

func attr(node *html.Node, key string) (string, bool) {
	for _, a := range node.Attr {
		if a.Key == key {
			return a.Val, true
		}
	}

	return "", false
}

func hasClass(node *html.Node, class string) bool {
	value, _ := attr(node, "class")
	for _, c := range strings.Fields(value) {
		if c == class {
			return true
		}
	}

	return false
}
