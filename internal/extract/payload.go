package extract

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"

	"euromillions/internal/models"
)

// Field aliases, compared case-insensitively.
var (
	dateAliases    = []string{"draw_date", "drawdate", "datedraw", "date"}
	numberAliases  = []string{"mainnumbers", "main_numbers", "numbers", "balls", "winningnumbers"}
	starAliases    = []string{"luckystars", "lucky_stars", "stars", "starnumbers", "star_numbers"}
	jackpotAliases = []string{"jackpot", "prize"}
	winnersAliases = []string{"winners", "prizes", "prize_tiers", "tiers"}
	tierAliases    = []string{"tier", "rank", "category", "label", "name"}
	countAliases   = []string{"winners", "count", "winner_count"}
)

var (
	scriptSel = cascadia.MustCompile(`script`)

	// Best-effort field patterns for payloads that are not valid JSON.
	dateFieldRe    = regexp.MustCompile(`(?i)(?:^|[^a-z_])["']?(?:draw_?date|date_?draw|date)["']?\s*[:=]\s*["']([^"']+)["']`)
	numberFieldRe  = regexp.MustCompile(`(?i)(?:^|[^a-z_])["']?(?:main_?numbers|winning_?numbers|numbers|balls)["']?\s*[:=]\s*\[([^\]]*)\]`)
	starFieldRe    = regexp.MustCompile(`(?i)(?:^|[^a-z_])["']?(?:lucky_?stars|star_?numbers|stars)["']?\s*[:=]\s*\[([^\]]*)\]`)
	jackpotFieldRe = regexp.MustCompile(`(?i)(?:^|[^a-z_])["']?jackpot["']?\s*[:=]\s*["']?([^"',}\]]+)`)
	digitsRe       = regexp.MustCompile(`\d+`)
)

// payloadHit is a complete draw read from a structured payload.
type payloadHit struct {
	date    string
	numbers []int
	stars   []int
	jackpot *int64
	winners map[string]int
}

// scanPayloads scans embedded script payloads for draw objects. With a target date
// it returns the first candidate for that date, otherwise the first
// well-formed candidate.
func scanPayloads(doc *goquery.Document, target string) (*payloadHit, bool) {
	var found *payloadHit
	doc.FindMatcher(scriptSel).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		for _, hit := range payloadCandidates(s.Text()) {
			if target == "" || hit.date == target {
				h := hit
				found = &h
				return false
			}
		}
		return true
	})
	return found, found != nil
}

// payloadCandidates decodes a script body as JSON, or the JSON object
// assigned inside it, and falls back to field regexes when that fails.
func payloadCandidates(payload string) []payloadHit {
	raw := strings.TrimSpace(payload)
	if raw == "" {
		return nil
	}
	if body := jsonBody(raw); body != "" {
		dec := json.NewDecoder(strings.NewReader(body))
		dec.UseNumber()
		var v any
		if err := dec.Decode(&v); err == nil {
			var out []payloadHit
			walkPayload(v, &out)
			return out
		}
	}
	return regexCandidates(html.UnescapeString(raw))
}

func jsonBody(raw string) string {
	if raw[0] == '{' || raw[0] == '[' {
		return raw
	}
	start := strings.IndexAny(raw, "{[")
	end := strings.LastIndexAny(raw, "}]")
	if start < 0 || end <= start {
		return ""
	}
	return raw[start : end+1]
}

// walkPayload collects candidates depth-first. Object keys are visited in
// sorted order so the result does not depend on map iteration.
func walkPayload(v any, out *[]payloadHit) {
	switch t := v.(type) {
	case map[string]any:
		if hit, ok := candidateFrom(t); ok {
			*out = append(*out, hit)
		}
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			walkPayload(t[k], out)
		}
	case []any:
		for _, item := range t {
			walkPayload(item, out)
		}
	}
}

func lookup(m map[string]any, aliases []string) (any, bool) {
	lower := make(map[string]any, len(m))
	for k, v := range m {
		lower[strings.ToLower(k)] = v
	}
	for _, a := range aliases {
		if v, ok := lower[a]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

func candidateFrom(m map[string]any) (payloadHit, bool) {
	dv, ok := lookup(m, dateAliases)
	if !ok {
		return payloadHit{}, false
	}
	ds, ok := dv.(string)
	if !ok {
		return payloadHit{}, false
	}
	date := normalizePayloadDate(ds)
	if date == "" {
		return payloadHit{}, false
	}
	nv, ok := lookup(m, numberAliases)
	if !ok {
		return payloadHit{}, false
	}
	sv, ok := lookup(m, starAliases)
	if !ok {
		return payloadHit{}, false
	}
	numbers, stars := payloadInts(nv), payloadInts(sv)
	if !exactGroup(numbers, models.MainCount, models.MainMin, models.MainMax) ||
		!exactGroup(stars, models.StarCount, models.StarMin, models.StarMax) {
		return payloadHit{}, false
	}
	hit := payloadHit{date: date, numbers: numbers, stars: stars}
	if jv, ok := lookup(m, jackpotAliases); ok {
		hit.jackpot = payloadJackpot(jv)
	}
	if wv, ok := lookup(m, winnersAliases); ok {
		hit.winners = payloadWinners(wv)
	}
	return hit, true
}

// payloadInts reads an array of numbers or numeric strings, or a single
// delimited string such as "6,9,25,28,45".
func payloadInts(v any) []int {
	switch t := v.(type) {
	case []any:
		out := make([]int, 0, len(t))
		for _, item := range t {
			switch x := item.(type) {
			case json.Number:
				n, err := strconv.Atoi(x.String())
				if err != nil {
					return nil
				}
				out = append(out, n)
			case string:
				n, err := strconv.Atoi(strings.TrimSpace(x))
				if err != nil {
					return nil
				}
				out = append(out, n)
			default:
				return nil
			}
		}
		return out
	case string:
		return atoiAll(digitsRe.FindAllString(t, -1))
	}
	return nil
}

func payloadJackpot(v any) *int64 {
	switch t := v.(type) {
	case json.Number:
		if n, err := t.Int64(); err == nil && n >= 0 {
			return &n
		}
		if f, err := t.Float64(); err == nil && f >= 0 {
			n := int64(f)
			return &n
		}
	case string:
		return parseJackpot(t)
	}
	return nil
}

// payloadWinners reads prize tiers either as an object keyed by tier label
// or as a list of tier objects. Entries without a readable
// count are skipped.
func payloadWinners(v any) map[string]int {
	winners := make(map[string]int)
	switch t := v.(type) {
	case map[string]any:
		for label, c := range t {
			if tier, ok := c.(map[string]any); ok {
				c, _ = lookup(tier, countAliases)
			}
			if n, ok := payloadCount(c); ok && strings.TrimSpace(label) != "" {
				winners[strings.TrimSpace(label)] = n
			}
		}
	case []any:
		for _, item := range t {
			tier, ok := item.(map[string]any)
			if !ok {
				continue
			}
			lv, ok := lookup(tier, tierAliases)
			if !ok {
				continue
			}
			cv, ok := lookup(tier, countAliases)
			if !ok {
				continue
			}
			label := strings.TrimSpace(fmt.Sprint(lv))
			if n, ok := payloadCount(cv); ok && label != "" {
				winners[label] = n
			}
		}
	}
	if len(winners) == 0 {
		return nil
	}
	return winners
}

func payloadCount(v any) (int, bool) {
	var s string
	switch t := v.(type) {
	case json.Number:
		s = t.String()
	case string:
		s = separators.Replace(strings.TrimSpace(t))
	default:
		return 0, false
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

func atoiAll(parts []string) []int {
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil
		}
		out = append(out, n)
	}
	return out
}

// exactGroup reports whether vals has exactly n distinct values in [lo,hi].
func exactGroup(vals []int, n, lo, hi int) bool {
	return len(vals) == n && len(pick(vals, n, lo, hi)) == n
}

// regexCandidates pulls date, numbers and stars fields out of a payload
// that does not decode. Each date field starts a candidate; its numbers
// are looked for after the date first, then before it.
func regexCandidates(raw string) []payloadHit {
	dates := dateFieldRe.FindAllStringSubmatchIndex(raw, -1)
	var out []payloadHit
	for i, m := range dates {
		date := normalizePayloadDate(raw[m[2]:m[3]])
		if date == "" {
			continue
		}
		after := raw[m[1]:]
		if i+1 < len(dates) {
			after = raw[m[1]:dates[i+1][0]]
		}
		before := raw[:m[0]]
		if i > 0 {
			before = raw[dates[i-1][1]:m[0]]
		}
		for _, seg := range []string{after, before} {
			if hit, ok := segmentCandidate(date, seg); ok {
				out = append(out, hit)
				break
			}
		}
	}
	return out
}

func segmentCandidate(date, seg string) (payloadHit, bool) {
	nm := numberFieldRe.FindStringSubmatch(seg)
	sm := starFieldRe.FindStringSubmatch(seg)
	if nm == nil || sm == nil {
		return payloadHit{}, false
	}
	numbers := atoiAll(digitsRe.FindAllString(nm[1], -1))
	stars := atoiAll(digitsRe.FindAllString(sm[1], -1))
	if !exactGroup(numbers, models.MainCount, models.MainMin, models.MainMax) ||
		!exactGroup(stars, models.StarCount, models.StarMin, models.StarMax) {
		return payloadHit{}, false
	}
	hit := payloadHit{date: date, numbers: numbers, stars: stars}
	if jm := jackpotFieldRe.FindStringSubmatch(seg); jm != nil {
		hit.jackpot = parseJackpot(jm[1])
	}
	return hit, true
}
