// Package parse extracts structured search-result items from HTML.
//
// The target site's markup is not stable, so extraction walks an ordered
// list of container selectors and uses the first one that yields any
// matches. A node that cannot produce an item is reported as skipped
// rather than silently dropped, so callers can assert skip rates.
package parse

import (
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/fanyang-dev/govpulse/internal/dates"
)

// Item is one parsed search result.
type Item struct {
	URL     string
	Title   string
	Snippet string
	Date    time.Time
	HasDate bool
}

// NodeResult reports the outcome for a single matched container node.
type NodeResult struct {
	Item    Item
	Skipped bool
	Reason  string
}

// selectorCascade lists container strategies from most to least specific.
var selectorCascade = []string{
	"ul.search-result li",
	"div.result li",
	"div.sr-list li",
	"li.search-result-item",
	"li",
}

// Parse extracts one NodeResult per matched container node. It is pure and
// total: re-parsing the same HTML yields the same sequence, and malformed
// input yields an empty one.
func Parse(html string) []NodeResult {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}

	var nodes *goquery.Selection
	for _, selector := range selectorCascade {
		if found := doc.Find(selector); found.Length() > 0 {
			nodes = found
			break
		}
	}
	if nodes == nil {
		return nil
	}

	results := make([]NodeResult, 0, nodes.Length())
	nodes.Each(func(_ int, node *goquery.Selection) {
		results = append(results, parseNode(node))
	})
	return results
}

// Items filters results down to the successfully parsed items.
func Items(results []NodeResult) []Item {
	items := make([]Item, 0, len(results))
	for _, r := range results {
		if !r.Skipped {
			items = append(items, r.Item)
		}
	}
	return items
}

func parseNode(node *goquery.Selection) NodeResult {
	anchor := node.Find("a[href]").First()
	if anchor.Length() == 0 {
		return NodeResult{Skipped: true, Reason: "no anchor"}
	}
	href, _ := anchor.Attr("href")
	href = strings.TrimSpace(href)
	if href == "" {
		return NodeResult{Skipped: true, Reason: "empty href"}
	}

	item := Item{
		URL:   href,
		Title: strings.TrimSpace(anchor.Text()),
	}

	snippet := node.Find("p.res-des").First()
	if snippet.Length() == 0 {
		snippet = node.Find("p").First()
	}
	if snippet.Length() > 0 {
		item.Snippet = squash(snippet.Text())
	}

	if d, ok := dates.Extract(node.Text()); ok {
		item.Date = d
		item.HasDate = true
	}
	return NodeResult{Item: item}
}

// squash collapses all interior whitespace runs to single spaces.
func squash(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
