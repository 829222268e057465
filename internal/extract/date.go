package extract

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"github.com/araddon/dateparse"

	"euromillions/internal/models"
)

var monthNames = map[string]time.Month{
	"january": time.January, "jan": time.January, "enero": time.January, "ene": time.January,
	"february": time.February, "feb": time.February, "febrero": time.February,
	"march": time.March, "mar": time.March, "marzo": time.March,
	"april": time.April, "apr": time.April, "abril": time.April, "abr": time.April,
	"may": time.May, "mayo": time.May,
	"june": time.June, "jun": time.June, "junio": time.June,
	"july": time.July, "jul": time.July, "julio": time.July,
	"august": time.August, "aug": time.August, "agosto": time.August, "ago": time.August,
	"september": time.September, "sept": time.September, "sep": time.September,
	"septiembre": time.September, "setiembre": time.September,
	"october": time.October, "oct": time.October, "octubre": time.October,
	"november": time.November, "nov": time.November, "noviembre": time.November,
	"december": time.December, "dec": time.December, "diciembre": time.December, "dic": time.December,
}

var (
	enWeekdays = [...]string{"sunday", "monday", "tuesday", "wednesday", "thursday", "friday", "saturday"}
	esWeekdays = [...]string{"domingo", "lunes", "martes", "miercoles", "jueves", "viernes", "sabado"}
	esMonths   = [...]string{"", "enero", "febrero", "marzo", "abril", "mayo", "junio", "julio",
		"agosto", "septiembre", "octubre", "noviembre", "diciembre"}
)

var (
	headingSel  = cascadia.MustCompile(`h1, h2, h3, h4, time, [class*="date"], [id*="date"]`)
	dateAttrSel = cascadia.MustCompile(`[datetime], [data-date], [data-draw-date]`)
	dateAttrs   = []string{"datetime", "data-date", "data-draw-date"}

	// Every date pattern carries a four-digit year.
	yearRe = regexp.MustCompile(`\d{4}`)
)

// dateHit is a date found in folded text, with its byte span.
type dateHit struct {
	date       time.Time
	text       string
	start, end int
}

// datePattern is one textual date layout. day, month and year are submatch
// indexes; month may be a name or a number.
type datePattern struct {
	name             string
	re               *regexp.Regexp
	day, month, year int
}

// datePatterns are tried in order; the first pattern that matches anywhere wins.
var datePatterns = buildDatePatterns()

func buildDatePatterns() []datePattern {
	months := alternation(keys(monthNames))
	weekdays := alternation(append(enWeekdays[:], esWeekdays[:]...))
	ord := `(?:st|nd|rd|th)?`
	return []datePattern{
		{
			name: "weekday day month year",
			re: regexp.MustCompile(`\b(?:` + weekdays + `)\.?,?\s+(?:the\s+)?(\d{1,2})` + ord +
				`\s+(?:of\s+|de\s+)?(` + months + `)\.?,?\s+(?:de\s+|del\s+)?(\d{4})\b`),
			day: 1, month: 2, year: 3,
		},
		{
			name: "weekday month day year",
			re: regexp.MustCompile(`\b(?:` + weekdays + `)\.?,?\s+(` + months + `)\.?\s+(\d{1,2})` + ord +
				`,?\s+(\d{4})\b`),
			day: 2, month: 1, year: 3,
		},
		{
			name: "day month year",
			re: regexp.MustCompile(`\b(\d{1,2})` + ord + `\s+(?:of\s+|de\s+)?(` + months +
				`)\.?,?\s+(?:de\s+|del\s+)?(\d{4})\b`),
			day: 1, month: 2, year: 3,
		},
		{
			name: "month day year",
			re:   regexp.MustCompile(`\b(` + months + `)\.?\s+(\d{1,2})` + ord + `,?\s+(\d{4})\b`),
			day:  2, month: 1, year: 3,
		},
		{
			name: "numeric day/month/year",
			re:   regexp.MustCompile(`\b(\d{1,2})[/.-](\d{1,2})[/.-](\d{4})\b`),
			day:  1, month: 2, year: 3,
		},
		{
			name: "iso",
			re:   regexp.MustCompile(`\b(\d{4})-(\d{2})-(\d{2})\b`),
			day:  3, month: 2, year: 1,
		},
	}
}

func keys(m map[string]time.Month) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

// alternation joins words longest first so "marzo" is preferred over "mar".
func alternation(words []string) string {
	sorted := append([]string(nil), words...)
	sort.Slice(sorted, func(i, j int) bool {
		if len(sorted[i]) != len(sorted[j]) {
			return len(sorted[i]) > len(sorted[j])
		}
		return sorted[i] < sorted[j]
	})
	quoted := make([]string, len(sorted))
	for i, w := range sorted {
		quoted[i] = regexp.QuoteMeta(w)
	}
	return strings.Join(quoted, "|")
}

func (p datePattern) parse(text string, m []int) (dateHit, bool) {
	group := func(i int) string { return text[m[2*i]:m[2*i+1]] }
	day, err := strconv.Atoi(group(p.day))
	if err != nil {
		return dateHit{}, false
	}
	year, err := strconv.Atoi(group(p.year))
	if err != nil {
		return dateHit{}, false
	}
	var month time.Month
	if name, ok := monthNames[group(p.month)]; ok {
		month = name
	} else if n, err := strconv.Atoi(group(p.month)); err == nil {
		month = time.Month(n)
	} else {
		return dateHit{}, false
	}
	date, ok := calendarDate(year, month, day)
	if !ok {
		return dateHit{}, false
	}
	return dateHit{date: date, text: text[m[0]:m[1]], start: m[0], end: m[1]}, true
}

// calendarDate rejects dates that time.Date would silently normalize (31 February).
func calendarDate(year int, month time.Month, day int) (time.Time, bool) {
	if month < time.January || month > time.December || day < 1 || year < 1900 || year > 2999 {
		return time.Time{}, false
	}
	t := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	return t, t.Month() == month && t.Day() == day
}

// findFirstDate applies the patterns in order and returns the first match
// of the first pattern that matches folded text at all.
func findFirstDate(text string) (dateHit, bool) {
	if !yearRe.MatchString(text) {
		return dateHit{}, false
	}
	for _, p := range datePatterns {
		for _, m := range p.re.FindAllStringSubmatchIndex(text, -1) {
			if hit, ok := p.parse(text, m); ok {
				return hit, true
			}
		}
	}
	return dateHit{}, false
}

// findAllDates returns every non-overlapping date in folded text, in text order.
func findAllDates(text string) []dateHit {
	if !yearRe.MatchString(text) {
		return nil
	}
	var hits []dateHit
	for _, p := range datePatterns {
		for _, m := range p.re.FindAllStringSubmatchIndex(text, -1) {
			if hit, ok := p.parse(text, m); ok {
				hits = append(hits, hit)
			}
		}
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].start != hits[j].start {
			return hits[i].start < hits[j].start
		}
		return hits[i].end > hits[j].end
	})
	out := hits[:0]
	end := -1
	for _, h := range hits {
		if h.start < end {
			continue
		}
		out = append(out, h)
		end = h.end
	}
	return out
}

// attrDate reads the machine-readable date of an element, if it has one.
func attrDate(s *goquery.Selection) (time.Time, bool) {
	for _, attr := range dateAttrs {
		v, ok := s.Attr(attr)
		if !ok {
			continue
		}
		if t, err := time.Parse(models.DateLayout, normalizePayloadDate(v)); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// datesIn collects the dates sel renders, in its text or in date attributes
// on it or its descendants.
func datesIn(sel *goquery.Selection) map[time.Time]bool {
	seen := make(map[time.Time]bool)
	for _, hit := range findAllDates(foldedText(sel)) {
		seen[hit.date] = true
	}
	sel.AddSelection(sel.FindMatcher(dateAttrSel)).Each(func(_ int, s *goquery.Selection) {
		if t, ok := attrDate(s); ok {
			seen[t] = true
		}
	})
	return seen
}

// hasOtherDate reports whether sel mentions any date other than date.
func hasOtherDate(sel *goquery.Selection, date time.Time) bool {
	for d := range datesIn(sel) {
		if !d.Equal(date) {
			return true
		}
	}
	return false
}

// carriedDates returns the dates an element renders itself: its date
// attribute, or dates in its text that none of its children holds whole.
// A heading split into <span>Tuesday</span> <span>04</span>... carries its
// date at the heading, not at the spans.
func carriedDates(s *goquery.Selection) []time.Time {
	if t, ok := attrDate(s); ok {
		return []time.Time{t}
	}
	hits := findAllDates(foldedText(s))
	if len(hits) == 0 {
		return nil
	}
	inChild := false
	s.Children().EachWithBreak(func(_ int, c *goquery.Selection) bool {
		inChild = len(findAllDates(foldedText(c))) > 0
		return !inChild
	})
	if inChild {
		return nil
	}
	out := make([]time.Time, len(hits))
	for i, h := range hits {
		out[i] = h.date
	}
	return out
}

// targetForms builds the textual renderings of t the source may use, in
// English and Spanish. Each form is a list of words separated in the page by
// spaces or commas.
func targetForms(t time.Time) [][]string {
	d := strconv.Itoa(t.Day())
	dd := fmt.Sprintf("%02d", t.Day())
	mm := fmt.Sprintf("%02d", int(t.Month()))
	m := strconv.Itoa(int(t.Month()))
	yyyy := strconv.Itoa(t.Year())
	enMonth := strings.ToLower(t.Month().String())
	enAbbr := enMonth[:3]
	esMonth := esMonths[t.Month()]
	enDay := enWeekdays[t.Weekday()]
	esDay := esWeekdays[t.Weekday()]
	days := []string{dd, d, d + ordinal(t.Day())}

	var forms [][]string
	for _, day := range days {
		for _, month := range []string{enMonth, enAbbr, esMonth} {
			forms = append(forms, []string{day, month, yyyy})
		}
		forms = append(forms,
			[]string{enMonth, day, yyyy},
			[]string{enAbbr, day, yyyy},
		)
	}
	for _, day := range []string{dd, d} {
		forms = append(forms, []string{day, "de", esMonth, "de", yyyy})
	}
	forms = append(forms,
		[]string{dd + "/" + mm + "/" + yyyy},
		[]string{d + "/" + m + "/" + yyyy},
		[]string{dd + "-" + mm + "-" + yyyy},
		[]string{dd + "." + mm + "." + yyyy},
		[]string{t.Format(models.DateLayout)},
	)
	// Listing pages often drop the year next to the weekday.
	for _, day := range days {
		forms = append(forms,
			[]string{enDay, day, enMonth},
			[]string{enDay, enMonth, day},
		)
	}
	for _, day := range []string{d, dd} {
		forms = append(forms, []string{esDay, day, "de", esMonth})
	}
	return forms
}

func ordinal(day int) string {
	switch {
	case day >= 11 && day <= 13:
		return "th"
	case day%10 == 1:
		return "st"
	case day%10 == 2:
		return "nd"
	case day%10 == 3:
		return "rd"
	}
	return "th"
}

// targetRegexp matches any of the target forms, bounded so "4 november"
// does not match inside "14 november". The form itself is submatch 1.
func targetRegexp(t time.Time) *regexp.Regexp {
	forms := targetForms(t)
	alts := make([]string, len(forms))
	for i, words := range forms {
		quoted := make([]string, len(words))
		for j, w := range words {
			quoted[j] = regexp.QuoteMeta(w)
		}
		alts[i] = strings.Join(quoted, `[\s,]+`)
	}
	return regexp.MustCompile(`(?:^|[^0-9a-z])(` + strings.Join(alts, "|") + `)(?:$|[^0-9a-z])`)
}

// anchor is where the draw date was found.
type anchor struct {
	sel  *goquery.Selection
	date time.Time
	text string // folded literal that matched, empty for attribute anchors
}

// locateLatest finds the date of the most prominent draw in scope: headings
// first, then date attributes, then the full text.
func locateLatest(scope *goquery.Selection) (*anchor, bool) {
	var found *anchor
	scope.FindMatcher(headingSel).EachWithBreak(func(_ int, h *goquery.Selection) bool {
		if hit, ok := findFirstDate(foldedText(h)); ok {
			found = &anchor{sel: h, date: hit.date, text: hit.text}
			return false
		}
		return true
	})
	if found != nil {
		return found, true
	}
	scope.FindMatcher(dateAttrSel).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if t, ok := attrDate(s); ok {
			found = &anchor{sel: s, date: t}
			return false
		}
		return true
	})
	if found != nil {
		return found, true
	}
	hit, ok := findFirstDate(foldedText(scope))
	if !ok {
		return nil, false
	}
	return &anchor{sel: deepestContaining(scope, hit.text), date: hit.date, text: hit.text}, true
}

// locateTarget finds where the page renders target. A machine-readable
// date attribute wins, then headings, then any element.
func locateTarget(scope *goquery.Selection, target time.Time) (*anchor, bool) {
	iso := target.Format(models.DateLayout)
	var found *anchor
	scope.FindMatcher(dateAttrSel).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if t, ok := attrDate(s); ok && t.Format(models.DateLayout) == iso {
			found = &anchor{sel: s, date: target}
			return false
		}
		return true
	})
	if found != nil {
		return found, true
	}

	re := targetRegexp(target)
	scope.FindMatcher(headingSel).EachWithBreak(func(_ int, h *goquery.Selection) bool {
		if m := re.FindStringSubmatch(foldedText(h)); m != nil {
			found = &anchor{sel: h, date: target, text: m[1]}
			return false
		}
		return true
	})
	if found != nil {
		return found, true
	}

	m := re.FindStringSubmatch(foldedText(scope))
	if m == nil {
		return nil, false
	}
	return &anchor{sel: deepestContaining(scope, m[1]), date: target, text: m[1]}, true
}

// deepestContaining descends from scope through the first child whose folded
// text still contains literal.
func deepestContaining(scope *goquery.Selection, literal string) *goquery.Selection {
	cur := scope.First()
	for {
		next := cur.Children().FilterFunction(func(_ int, c *goquery.Selection) bool {
			return strings.Contains(foldedText(c), literal)
		}).First()
		if next.Length() == 0 {
			return cur
		}
		cur = next
	}
}

// normalizePayloadDate turns a machine-readable date into ISO form, or ""
// when it cannot be read. Day-first numeric dates are tried before
// dateparse, which reads 04/11/2025 month-first.
func normalizePayloadDate(v string) string {
	v = strings.TrimSpace(v)
	if len(v) >= 10 {
		if t, err := time.Parse(models.DateLayout, v[:10]); err == nil {
			return t.Format(models.DateLayout)
		}
	}
	if hit, ok := findFirstDate(fold(v)); ok {
		return hit.date.Format(models.DateLayout)
	}
	if t, err := dateparse.ParseAny(v); err == nil {
		return t.Format(models.DateLayout)
	}
	return ""
}
