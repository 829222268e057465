package extract

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	spaceRe   = regexp.MustCompile(`\s+`)
	numberRe  = regexp.MustCompile(`\d+(?:[.,]\d+)*`)
	clockRe   = regexp.MustCompile(`\b\d{1,2}:\d{2}(?::\d{2})?\b`)
	leafNumRe = regexp.MustCompile(`^\d{1,2}$`)
)

// Leading-symbol amounts are removed before trailing-symbol ones so that in
// "4 €17,000,000" the sign is claimed by the amount it precedes.
var (
	moneyPrefixRe = regexp.MustCompile(`[€£$]\s?\d[\d.,]*`)
	moneySuffixRe = regexp.MustCompile(`\d[\d.,]*\s?(?:€|£|\$|eur\b|euros?\b)`)
)

// nodeText returns the visible text of the selection with a space between
// every text node, so adjacent cells like <li>6</li><li>9</li> stay apart.
func nodeText(sel *goquery.Selection) string {
	var b strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			b.WriteString(n.Data)
			b.WriteByte(' ')
			return
		case html.ElementNode:
			switch n.Data {
			case "script", "style", "noscript", "template":
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, n := range sel.Nodes {
		walk(n)
	}
	text := strings.ReplaceAll(b.String(), "\u00a0", " ")
	return strings.TrimSpace(spaceRe.ReplaceAllString(text, " "))
}

// fold lowercases s and strips diacritics so "Miércoles" matches "miercoles".
func fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return strings.ToLower(out)
}

// foldedText is nodeText followed by fold.
func foldedText(sel *goquery.Selection) string {
	return fold(nodeText(sel))
}

// stripNoise removes dates, clock times and money amounts, all of which
// contain digits that would otherwise be mistaken for drawn numbers.
func stripNoise(text string) string {
	for _, hit := range findAllDates(text) {
		text = text[:hit.start] + strings.Repeat(" ", hit.end-hit.start) + text[hit.end:]
	}
	text = clockRe.ReplaceAllString(text, " ")
	text = moneyPrefixRe.ReplaceAllString(text, " ")
	return moneySuffixRe.ReplaceAllString(text, " ")
}

// tokenize returns every standalone 1-2 digit integer in text in order.
// Thousands-grouped amounts (17,000,000) are dropped, compact lists
// (6,9,25) are split, and a 14-digit run is read as seven concatenated
// zero-padded numbers.
func tokenize(text string) []int {
	var out []int
	for _, loc := range numberRe.FindAllStringIndex(text, -1) {
		if loc[0] > 0 && isLetter(text[loc[0]-1]) {
			continue
		}
		if loc[1] < len(text) && isLetter(text[loc[1]]) {
			continue
		}
		run := text[loc[0]:loc[1]]
		parts := strings.FieldsFunc(run, func(r rune) bool { return r == ',' || r == '.' })
		if len(parts) > 1 && isThousands(parts) {
			continue
		}
		for _, p := range parts {
			switch {
			case len(p) <= 2:
				n, _ := strconv.Atoi(p)
				out = append(out, n)
			case len(p) == 14:
				for i := 0; i < len(p); i += 2 {
					n, _ := strconv.Atoi(p[i : i+2])
					out = append(out, n)
				}
			}
		}
	}
	return out
}

func isThousands(parts []string) bool {
	for _, p := range parts[1:] {
		if len(p) != 3 {
			return false
		}
	}
	return true
}

func isLetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

// markup returns the lowercased class and id of the first node in sel.
func markup(sel *goquery.Selection) string {
	class, _ := sel.Attr("class")
	id, _ := sel.Attr("id")
	return strings.ToLower(class + " " + id)
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}

// leafNumber reports the value of an element whose only content is a 1-2 digit integer.
func leafNumber(sel *goquery.Selection) (int, bool) {
	if sel.Children().Length() > 0 {
		return 0, false
	}
	text := strings.TrimSpace(sel.Text())
	if !leafNumRe.MatchString(text) {
		return 0, false
	}
	n, err := strconv.Atoi(text)
	return n, err == nil
}
