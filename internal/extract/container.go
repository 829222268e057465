package extract

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"euromillions/internal/models"
)

// Container kinds, from most to least specific.
const (
	kindExplicit = "explicit"
	kindAncestor = "ancestor"
	kindDocument = "document"
	kindWindow   = "window"
)

// minTokens is the least number of numeric tokens a region must hold to
// plausibly carry a whole draw.
const minTokens = 7

// explicitSels are markup identities that signal a single result block, in
// order of preference.
var explicitSels = []cascadia.Selector{
	cascadia.MustCompile(`[class*="latest-result"], [id*="latest-result"], [class*="latest_result"], [id*="latest_result"]`),
	cascadia.MustCompile(`[class*="result"], [id*="result"], [class*="resultado"]`),
	cascadia.MustCompile(`[class*="balls"], [id*="balls"], [class*="numbers"], [id*="numbers"]`),
}

var (
	tableSel   = cascadia.MustCompile(`table`)
	noiseSel   = cascadia.MustCompile(`script, style, noscript, template, nav, footer`)
	prizeWords = []string{"prize", "winner", "premio", "acertantes", "ganadores", "tier", "categoria", "match"}
)

// region is the scope handed to the number strategies. sel is nil when no
// DOM scope isolates the draw and only the bounded text window is trusted.
// skip holds the nodes that render a date, whose digits are not numbers.
type region struct {
	sel  *goquery.Selection
	text string
	kind string
	skip map[*html.Node]bool
}

func newRegion(sel *goquery.Selection, text, kind string) region {
	r := region{sel: sel, text: text, kind: kind}
	if sel != nil {
		r.skip = dateCarrierNodes(sel)
	}
	return r
}

// skipped reports whether s renders part of a date.
func (r region) skipped(s *goquery.Selection) bool {
	return r.skip[s.Get(0)]
}

// dateCarrierNodes returns the elements of root that render a date, with
// their descendants. A carrier that also holds a whole draw, such as a
// paragraph with the date and the numbers, is kept.
func dateCarrierNodes(root *goquery.Selection) map[*html.Node]bool {
	skip := make(map[*html.Node]bool)
	root.FindMatcher(anySel).Each(func(_ int, s *goquery.Selection) {
		n := s.Get(0)
		if skip[n] || len(carriedDates(s)) == 0 || holdsDraw(s) {
			return
		}
		skip[n] = true
		s.FindMatcher(anySel).Each(func(_ int, d *goquery.Selection) {
			skip[d.Get(0)] = true
		})
	})
	return skip
}

// container is the selected draw block before prize tables are stripped.
type container struct {
	sel  *goquery.Selection
	kind string
}

func isExplicit(s *goquery.Selection) bool {
	for _, m := range explicitSels {
		if s.IsMatcher(m) {
			return true
		}
	}
	return false
}

func tokenCount(s *goquery.Selection) int {
	return len(tokenize(stripNoise(foldedText(clean(s)))))
}

// holdsDraw reports whether s has enough numeric tokens for a draw, or
// enough elements marked as balls and stars.
func holdsDraw(s *goquery.Selection) bool {
	if tokenCount(s) >= minTokens {
		return true
	}
	marked := 0
	s.FindMatcher(anySel).Each(func(_ int, c *goquery.Selection) {
		id := markup(c)
		if _, ok := leafNumber(c); ok && (containsAny(id, mainWords) || containsAny(id, starWords)) {
			marked++
		}
	})
	return marked >= models.MainCount+models.StarCount
}

// firstExplicit returns the first explicit container holding at most one
// draw date and a whole draw.
func firstExplicit(body *goquery.Selection) *goquery.Selection {
	for _, m := range explicitSels {
		var found *goquery.Selection
		body.FindMatcher(m).EachWithBreak(func(_ int, s *goquery.Selection) bool {
			if len(datesIn(s)) <= 1 && holdsDraw(s) {
				found = s
				return false
			}
			return true
		})
		if found != nil {
			return found
		}
	}
	return nil
}

// enclosing climbs from the anchor towards body and returns the smallest
// block that holds a whole draw and no other date. Explicit containers are
// preferred over plain ancestors.
func enclosing(a *anchor) container {
	for _, explicitOnly := range []bool{true, false} {
		for cur := a.sel; cur.Length() > 0 && !cur.Is("html"); cur = cur.Parent() {
			if hasOtherDate(cur, a.date) {
				break
			}
			if explicitOnly && !isExplicit(cur) {
				continue
			}
			if !holdsDraw(cur) {
				continue
			}
			switch {
			case cur.Is("body"):
				return container{sel: cur, kind: kindDocument}
			case explicitOnly:
				return container{sel: cur, kind: kindExplicit}
			default:
				return container{sel: cur, kind: kindAncestor}
			}
		}
	}
	return container{kind: kindWindow}
}

// clean returns a detached copy of s without scripts, navigation and prize
// tables, whose numbers belong to other draws or to winner counts.
func clean(s *goquery.Selection) *goquery.Selection {
	c := s.Clone()
	c.FindMatcher(noiseSel).Remove()
	c.FindMatcher(tableSel).FilterFunction(func(_ int, t *goquery.Selection) bool {
		return isPrizeTable(t)
	}).Remove()
	return c
}

func isPrizeTable(t *goquery.Selection) bool {
	head := markup(t) + " " + foldedText(t.Find("tr").First())
	return containsAny(head, prizeWords)
}

// textWindow returns the slice of folded text that follows the anchor,
// ending at the next date or after limit bytes, whichever comes first.
func textWindow(text string, a *anchor, limit int) string {
	start := 0
	literal := a.text
	if literal == "" && a.sel != nil {
		literal = foldedText(a.sel)
	}
	if literal != "" {
		if i := strings.Index(text, literal); i >= 0 {
			start = i + len(literal)
		}
	}
	rest := text[start:]
	if hits := findAllDates(rest); len(hits) > 0 {
		rest = rest[:hits[0].start]
	}
	if limit > 0 && len(rest) > limit {
		rest = rest[:limit]
	}
	return rest
}

// following returns a detached block holding copies of the elements after
// the anchor and before the next element rendering another date, or nil.
// Ancestors of that element are left out whole; their earlier children are
// kept. A text anchor is kept itself when numbers share it with the date.
func following(body *goquery.Selection, a *anchor) *goquery.Selection {
	if a.sel == nil || a.sel.Length() == 0 {
		return nil
	}
	var (
		seen     bool
		start    = a.sel.Get(0)
		taken    []*goquery.Selection
		boundary *html.Node
	)
	if a.text != "" && !hasOtherDate(a.sel, a.date) && len(tokenize(stripNoise(foldedText(a.sel)))) > 0 {
		taken = append(taken, a.sel)
	}
	body.FindMatcher(anySel).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		n := s.Get(0)
		if n == start {
			seen = true
			return true
		}
		if !seen || within(n, start) {
			return true
		}
		for _, d := range carriedDates(s) {
			if !d.Equal(a.date) {
				boundary = n
				return false
			}
		}
		taken = append(taken, s)
		return true
	})

	open := make(map[*html.Node]bool)
	if boundary != nil {
		for p := boundary.Parent; p != nil; p = p.Parent {
			open[p] = true
		}
	}
	isTaken := make(map[*html.Node]bool, len(taken))
	for _, s := range taken {
		if n := s.Get(0); !open[n] {
			isTaken[n] = true
		}
	}
	root := &html.Node{Type: html.ElementNode, Data: "div", DataAtom: atom.Div}
	for _, s := range taken {
		n := s.Get(0)
		if !isTaken[n] || isTaken[n.Parent] {
			continue
		}
		root.AppendChild(s.Clone().Get(0))
	}
	if root.FirstChild == nil {
		return nil
	}
	return goquery.NewDocumentFromNode(root).Selection
}

func within(n, root *html.Node) bool {
	for p := n.Parent; p != nil; p = p.Parent {
		if p == root {
			return true
		}
	}
	return false
}

// buildRegion turns the selected container into the scope for number
// extraction. Explicit and ancestor blocks are trusted whole. Otherwise the
// DOM strategies only see the elements between the anchor and the next
// date, and the window only the text between them.
func buildRegion(body *goquery.Selection, c container, a *anchor, limit int) region {
	switch c.kind {
	case kindExplicit, kindAncestor:
		scoped := clean(c.sel)
		text := stripNoise(foldedText(scoped))
		if limit > 0 && len(text) > limit {
			text = text[:limit]
		}
		return newRegion(scoped, text, c.kind)
	}

	var scoped *goquery.Selection
	if after := following(body, a); after != nil {
		scoped = clean(after)
	}
	var text string
	if a.text == "" && scoped != nil {
		// Attribute anchors have no literal to find in the text.
		text = foldedText(scoped)
		if limit > 0 && len(text) > limit {
			text = text[:limit]
		}
	} else {
		text = textWindow(foldedText(clean(body)), a, limit)
	}
	return newRegion(scoped, stripNoise(text), c.kind)
}
