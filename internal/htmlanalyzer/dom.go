package htmlanalyzer

import (
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

/*
Content isolation strategy, in priority order:
  1. Semantic containers (<main>, <article>, [role="main"])
  2. Known per-framework/per-platform selectors
  3. Chrome removal + text-density scoring over the remaining DOM

Only the node picked by this pipeline contributes visible text and
outlinks to the AnalysisResult; <title> and <meta> are read from the
whole document since they live outside any content container.
*/

func findContentNode(doc *html.Node, params ExtractParam) *html.Node {
	if node := findSemanticContainer(doc); node != nil {
		return node
	}
	if node := findKnownContainer(doc); node != nil {
		return node
	}
	return findContainerAfterChromeRemoval(doc, params)
}

func findSemanticContainer(doc *html.Node) *html.Node {
	gq := goquery.NewDocumentFromNode(doc)

	if main := gq.Find("main").First(); main.Length() > 0 {
		if node := main.Nodes[0]; isMeaningful(node) {
			return node
		}
	}
	if article := gq.Find("article").First(); article.Length() > 0 {
		if node := article.Nodes[0]; isMeaningful(node) {
			return node
		}
	}
	if roleMain := gq.Find("[role='main']").First(); roleMain.Length() > 0 {
		if node := roleMain.Nodes[0]; isMeaningful(node) {
			return node
		}
	}
	return nil
}

func findKnownContainer(doc *html.Node) *html.Node {
	gq := goquery.NewDocumentFromNode(doc)
	for _, selector := range allSelectors() {
		if elem := gq.Find(selector).First(); elem.Length() > 0 {
			if node := elem.Nodes[0]; isMeaningful(node) {
				return node
			}
		}
	}
	return nil
}

func findContainerAfterChromeRemoval(doc *html.Node, params ExtractParam) *html.Node {
	cleaned := removeExplicitChromes(doc)
	if cleaned == nil {
		return nil
	}
	node := findBestContentContainer(cleaned, params)
	if node == nil || !isMeaningful(node) {
		return nil
	}
	return node
}

var chromeElementNames = map[string]bool{
	"nav":    true,
	"header": true,
	"footer": true,
	"aside":  true,
}

var chromeAttributeKeywords = []string{
	"nav", "sidebar", "menu", "breadcrumb",
	"search", "footer", "header", "cookie",
	"consent", "signature", "quote-box",
}

func removeExplicitChromes(doc *html.Node) *html.Node {
	cloned := deepCloneNode(doc)
	if cloned == nil {
		return nil
	}
	removeChromeElements(cloned)
	removeElementsWithChromeAttributes(cloned)
	return cloned
}

func deepCloneNode(node *html.Node) *html.Node {
	if node == nil {
		return nil
	}
	cloned := &html.Node{
		Type:      node.Type,
		DataAtom:  node.DataAtom,
		Data:      node.Data,
		Namespace: node.Namespace,
	}
	if len(node.Attr) > 0 {
		cloned.Attr = make([]html.Attribute, len(node.Attr))
		copy(cloned.Attr, node.Attr)
	}
	for c := node.FirstChild; c != nil; c = c.NextSibling {
		if clonedChild := deepCloneNode(c); clonedChild != nil {
			cloned.AppendChild(clonedChild)
		}
	}
	return cloned
}

func removeChromeElements(root *html.Node) {
	var toRemove []*html.Node
	var collect func(*html.Node)
	collect = func(n *html.Node) {
		if n == nil {
			return
		}
		if n.Type == html.ElementNode && chromeElementNames[n.Data] {
			toRemove = append(toRemove, n)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			collect(c)
		}
	}
	collect(root)
	for _, n := range toRemove {
		if n.Parent != nil {
			n.Parent.RemoveChild(n)
		}
	}
}

func removeElementsWithChromeAttributes(root *html.Node) {
	var toRemove []*html.Node
	var collect func(*html.Node)
	collect = func(n *html.Node) {
		if n == nil {
			return
		}
		if n.Type == html.ElementNode && hasChromeAttribute(n) {
			toRemove = append(toRemove, n)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			collect(c)
		}
	}
	collect(root)
	for _, n := range toRemove {
		if n.Parent != nil {
			n.Parent.RemoveChild(n)
		}
	}
}

func hasChromeAttribute(n *html.Node) bool {
	for _, attr := range n.Attr {
		if attr.Key == "class" || attr.Key == "id" {
			lower := strings.ToLower(attr.Val)
			for _, kw := range chromeAttributeKeywords {
				if strings.Contains(lower, kw) {
					return true
				}
			}
		}
	}
	return false
}

func findBestContentContainer(doc *html.Node, params ExtractParam) *html.Node {
	candidates := collectCandidateNodes(doc)
	if len(candidates) == 0 {
		return nil
	}

	scores := make(map[*html.Node]float64)
	var bodyNode *html.Node
	var bodyScore float64

	for _, c := range candidates {
		score := calculateContentScore(c, params.LinkDensityThreshold)
		scores[c] = score
		if c.Data == "body" {
			bodyNode = c
			bodyScore = score
		}
	}

	var bestNode *html.Node
	var bestScore float64
	for n, s := range scores {
		if s > bestScore {
			bestScore = s
			bestNode = n
		}
	}

	if bestNode == bodyNode && bodyNode != nil {
		for n, s := range scores {
			if n == bodyNode {
				continue
			}
			if s >= params.BodySpecificityBias*bodyScore && s > bestScore*0.9 {
				bestNode = n
				bestScore = s
				break
			}
		}
	}

	return bestNode
}

func collectCandidateNodes(root *html.Node) []*html.Node {
	var candidates []*html.Node
	var collect func(*html.Node)
	collect = func(n *html.Node) {
		if n == nil {
			return
		}
		if n.Type == html.ElementNode {
			switch n.Data {
			case "div", "section", "body", "td":
				candidates = append(candidates, n)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			collect(c)
		}
	}
	collect(root)
	return candidates
}

func calculateContentScore(node *html.Node, linkDensityThreshold float64) float64 {
	var stats struct {
		nonWhitespace int
		paragraphs    int
		headings      int
		codeBlocks    int
		listItems     int
		textLength    int
		linkTextLen   int
	}

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n == nil {
			return
		}
		switch n.Type {
		case html.TextNode:
			stats.textLength += len(n.Data)
			for _, r := range n.Data {
				if !unicode.IsSpace(r) {
					stats.nonWhitespace++
				}
			}
		case html.ElementNode:
			switch n.Data {
			case "p":
				stats.paragraphs++
			case "h1", "h2", "h3":
				stats.headings++
			case "pre", "code":
				stats.codeBlocks++
			case "li":
				stats.listItems++
			case "a":
				for c := n.FirstChild; c != nil; c = c.NextSibling {
					if c.Type == html.TextNode {
						stats.linkTextLen += len(strings.TrimSpace(c.Data))
					}
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(node)

	score := float64(stats.nonWhitespace) / 50.0
	score += float64(stats.paragraphs) * 5.0
	score += float64(stats.headings) * 10.0
	score += float64(stats.codeBlocks) * 15.0
	score += float64(stats.listItems) * 2.0

	if stats.textLength > 0 {
		linkDensity := float64(stats.linkTextLen) / float64(stats.textLength)
		if linkDensity > linkDensityThreshold {
			score -= (linkDensity - linkDensityThreshold) * score
		}
	}

	return score
}

func isMeaningful(node *html.Node) bool {
	if node == nil {
		return false
	}

	var stats struct {
		textLength     int
		nonWhitespace  int
		headings       int
		paragraphs     int
		codeBlocks     int
		links          int
		linkTextLength int
	}

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n == nil {
			return
		}
		switch n.Type {
		case html.TextNode:
			stats.textLength += len(n.Data)
			for _, r := range n.Data {
				if !unicode.IsSpace(r) {
					stats.nonWhitespace++
				}
			}
		case html.ElementNode:
			switch n.Data {
			case "h1", "h2", "h3", "h4", "h5", "h6":
				stats.headings++
			case "p":
				stats.paragraphs++
			case "pre", "code":
				stats.codeBlocks++
			case "a":
				stats.links++
				for c := n.FirstChild; c != nil; c = c.NextSibling {
					if c.Type == html.TextNode {
						stats.linkTextLength += len(strings.TrimSpace(c.Data))
					}
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(node)

	const minNonWhitespace = 30
	const maxLinkDensity = 0.8

	if stats.nonWhitespace < minNonWhitespace {
		return false
	}
	if stats.textLength > 0 {
		linkDensity := float64(stats.linkTextLength) / float64(stats.textLength)
		if linkDensity > maxLinkDensity && stats.links > 2 {
			return false
		}
	}

	hasContent := stats.paragraphs >= 1 || stats.codeBlocks >= 1
	hasHeadingsWithText := stats.headings > 0 && stats.nonWhitespace >= 20

	return hasContent || hasHeadingsWithText
}

func isValidHTML(doc *html.Node) bool {
	var findHTML func(*html.Node) bool
	findHTML = func(n *html.Node) bool {
		if n.Type == html.ElementNode && n.Data == "html" {
			return true
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if findHTML(c) {
				return true
			}
		}
		return false
	}
	return findHTML(doc)
}
