package extract

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"

	"euromillions/internal/models"
)

var (
	jackpotSel = cascadia.MustCompile(`[class*="jackpot"], [id*="jackpot"], [class*="bote"], [id*="bote"]`)
	amountRe   = regexp.MustCompile(`\d[\d.,'\s]*`)
	centsRe    = regexp.MustCompile(`[.,]\d{1,2}$`)
	separators = strings.NewReplacer(",", "", ".", "", "'", "", " ", "", "\u00a0", "")

	// Amounts written with a magnitude word are estimates, not exact figures.
	magnitudeRe = regexp.MustCompile(`^\s*(?:m|mn|mio|million|millions|millones|millon|mill|bn|billion|k|mil)\b`)
)

// parseJackpot reads the first amount in text, dropping currency symbols,
// thousands separators and a trailing cents part. It returns nil when no
// whole amount can be read, or when the amount is followed by a magnitude
// such as "million".
func parseJackpot(text string) *int64 {
	loc := amountRe.FindStringIndex(text)
	if loc == nil || magnitudeRe.MatchString(strings.ToLower(text[loc[1]:])) {
		return nil
	}
	m := strings.TrimSpace(text[loc[0]:loc[1]])
	if m == "" {
		return nil
	}
	m = centsRe.ReplaceAllString(m, "")
	n, err := strconv.ParseInt(separators.Replace(m), 10, 64)
	if err != nil || n < 0 {
		return nil
	}
	return &n
}

// parseWinners reads prize-tier rows: the first cell is the tier label, the
// second the winner count. Rows that do not parse are skipped one by one.
func parseWinners(scope *goquery.Selection) map[string]int {
	table := scope.FindMatcher(tableSel).FilterFunction(func(_ int, t *goquery.Selection) bool {
		return isPrizeTable(t)
	}).First()
	if table.Length() == 0 {
		return nil
	}
	winners := make(map[string]int)
	table.Find("tr").Each(func(_ int, row *goquery.Selection) {
		cells := row.Find("td")
		if cells.Length() < 2 {
			return
		}
		label := strings.TrimSpace(nodeText(cells.Eq(0)))
		count, err := strconv.Atoi(separators.Replace(strings.TrimSpace(nodeText(cells.Eq(1)))))
		if label == "" || err != nil || count < 0 {
			return
		}
		winners[label] = count
	})
	if len(winners) == 0 {
		return nil
	}
	return winners
}

func findJackpot(scope *goquery.Selection) *int64 {
	var jackpot *int64
	scope.FindMatcher(jackpotSel).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		jackpot = parseJackpot(nodeText(s))
		return jackpot == nil
	})
	return jackpot
}

// assemble builds the draw and applies the validation gate. Numbers and
// stars are copied and sorted ascending.
func assemble(date string, numbers, stars []int, jackpot *int64, winners map[string]int) (models.Draw, error) {
	d := models.Draw{
		DrawDate: date,
		Numbers:  append([]int(nil), numbers...),
		Stars:    append([]int(nil), stars...),
		Jackpot:  jackpot,
		Winners:  winners,
	}
	if err := d.Validate(); err != nil {
		return models.Draw{}, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	d.Normalize()
	return d, nil
}
