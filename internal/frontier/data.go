package frontier

/*
 Frontier - manages crawl state & ordering
*/

import (
	"net/url"
)

// CrawlToken is a Frontier-issued, per-URL crawl token.
// It represents: "this URL, at this depth, is next" and carries no
// semantic policy decisions of its own.
type CrawlToken struct {
	url   url.URL
	depth int
}

// NewCrawlToken creates a new CrawlToken with the given URL and depth.
// This constructor is provided for testing and internal use.
func NewCrawlToken(u url.URL, depth int) CrawlToken {
	return CrawlToken{
		url:   u,
		depth: depth,
	}
}

func (c *CrawlToken) URL() url.URL {
	return c.url
}

func (c *CrawlToken) Depth() int {
	return c.depth
}
