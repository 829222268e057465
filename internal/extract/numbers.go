package extract

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"

	"euromillions/internal/models"
)

var (
	starWords = []string{"star", "lucky", "estrella", "bonus", "extra"}
	mainWords = []string{"ball", "number", "numero", "main", "bola"}

	inlineSel = cascadia.MustCompile(`span, li, td, div, b, strong, em, i, p, a`)
	anySel    = cascadia.MustCompile(`*`)
)

// strategy recovers candidate main numbers and stars from a region. A
// group is only used when it is complete, so strategies may return partial
// groups freely.
type strategy struct {
	name     string
	needsDOM bool
	run      func(r region) (mains, stars []int, err error)
}

// strategies run from most to least specific.
var strategies = []strategy{
	{name: "marked", needsDOM: true, run: markedCarriers},
	{name: "lists", needsDOM: true, run: listedGroups},
	{name: "inline", needsDOM: true, run: inlineCarriers},
	{name: "window", run: func(r region) ([]int, []int, error) {
		mains, stars, _ := slidingWindow(tokenize(r.text))
		return mains, stars, nil
	}},
}

// cascade runs the strategies until both groups are complete. A group
// filled by an earlier strategy is never replaced. It returns the names of
// the strategies that ran and of those that contributed.
func cascade(r region) (mains, stars []int, tried, used []string, err error) {
	for _, s := range strategies {
		if len(mains) == models.MainCount && len(stars) == models.StarCount {
			break
		}
		if s.needsDOM && r.sel == nil {
			continue
		}
		tried = append(tried, s.name)
		m, st, err := s.run(r)
		if err != nil {
			return nil, nil, tried, used, err
		}
		contributed := false
		if len(mains) < models.MainCount && len(m) == models.MainCount {
			mains = m
			contributed = true
		}
		if len(stars) < models.StarCount && len(st) == models.StarCount {
			stars = st
			contributed = true
		}
		if contributed {
			used = append(used, s.name)
		}
	}
	return mains, stars, tried, used, nil
}

// pick returns up to n distinct values from vals that fall in [lo,hi], in
// order. Out-of-range values are skipped, never clamped.
func pick(vals []int, n, lo, hi int) []int {
	out := make([]int, 0, n)
	for _, v := range vals {
		if len(out) == n {
			break
		}
		if v < lo || v > hi || contains(out, v) {
			continue
		}
		out = append(out, v)
	}
	return out
}

func pickMains(vals []int) []int {
	return pick(vals, models.MainCount, models.MainMin, models.MainMax)
}

func pickStars(vals []int) []int {
	return pick(vals, models.StarCount, models.StarMin, models.StarMax)
}

func contains(vals []int, v int) bool {
	for _, x := range vals {
		if x == v {
			return true
		}
	}
	return false
}

// markedCarriers trusts elements whose class or id names them as a ball or
// a star. More marked values than a draw holds, or the same value marked
// twice, is a contradiction, not something to truncate.
func markedCarriers(r region) ([]int, []int, error) {
	var mains, stars []int
	r.sel.FindMatcher(anySel).Each(func(_ int, s *goquery.Selection) {
		if r.skipped(s) {
			return
		}
		id := markup(s)
		if strings.TrimSpace(id) == "" {
			return
		}
		n, ok := leafNumber(s)
		if !ok {
			return
		}
		switch {
		case containsAny(id, starWords):
			if n >= models.StarMin && n <= models.StarMax {
				stars = append(stars, n)
			}
		case containsAny(id, mainWords):
			if n >= models.MainMin && n <= models.MainMax {
				mains = append(mains, n)
			}
		}
	})
	if n, ok := firstRepeat(mains); ok {
		return nil, nil, fmt.Errorf("%w: main number %d marked twice", ErrValidation, n)
	}
	if n, ok := firstRepeat(stars); ok {
		return nil, nil, fmt.Errorf("%w: star %d marked twice", ErrValidation, n)
	}
	if len(mains) > models.MainCount {
		return nil, nil, fmt.Errorf("%w: %d elements marked as main numbers", ErrValidation, len(mains))
	}
	if len(stars) > models.StarCount {
		return nil, nil, fmt.Errorf("%w: %d elements marked as stars", ErrValidation, len(stars))
	}
	return mains, stars, nil
}

func firstRepeat(vals []int) (int, bool) {
	for i, v := range vals {
		if contains(vals[:i], v) {
			return v, true
		}
	}
	return 0, false
}

// numberGroup is an element whose children are all bare 1-2 digit numbers.
type numberGroup struct {
	sel    *goquery.Selection
	values []int
}

func collectGroups(r region) []numberGroup {
	var groups []numberGroup
	r.sel.FindMatcher(anySel).Each(func(_ int, s *goquery.Selection) {
		if r.skipped(s) {
			return
		}
		children := s.Children()
		if children.Length() < 2 {
			return
		}
		values := make([]int, 0, children.Length())
		all := true
		children.EachWithBreak(func(_ int, c *goquery.Selection) bool {
			n, ok := leafNumber(c)
			if !ok {
				all = false
				return false
			}
			values = append(values, n)
			return true
		})
		if all && len(values) <= models.MainCount+models.StarCount {
			groups = append(groups, numberGroup{sel: s, values: values})
		}
	})
	return groups
}

// starLabelled reports whether a group is marked or preceded by a label
// naming lucky stars.
func starLabelled(g numberGroup) bool {
	if containsAny(markup(g.sel), starWords) {
		return true
	}
	return containsAny(foldedText(g.sel.Prev()), starWords)
}

// listedGroups looks for a list of at least five valid main numbers,
// followed either by two stars in the same list or by a sibling list of
// stars, preferring one labelled as stars.
func listedGroups(r region) ([]int, []int, error) {
	groups := collectGroups(r)
	for i, g := range groups {
		mains := pickMains(g.values)
		if len(mains) < models.MainCount {
			continue
		}
		if rest := afterPicked(g.values, mains); len(rest) > 0 {
			if stars := pickStars(rest); len(stars) == models.StarCount {
				return mains, stars, nil
			}
		}
		var fallback []int
		for _, next := range groups[i+1:] {
			stars := pickStars(next.values)
			if len(stars) < models.StarCount {
				continue
			}
			if starLabelled(next) {
				return mains, stars, nil
			}
			if fallback == nil {
				fallback = stars
			}
		}
		return mains, fallback, nil
	}
	return nil, nil, nil
}

// afterPicked returns the values that follow the last picked one.
func afterPicked(vals, picked []int) []int {
	last := picked[len(picked)-1]
	for i, v := range vals {
		if v == last {
			return vals[i+1:]
		}
	}
	return nil
}

// inlineCarriers reads bare numeric leaf elements in document order: the
// first five valid values are main numbers, the next two valid values stars.
func inlineCarriers(r region) ([]int, []int, error) {
	var vals []int
	r.sel.FindMatcher(inlineSel).Each(func(_ int, s *goquery.Selection) {
		if r.skipped(s) {
			return
		}
		if n, ok := leafNumber(s); ok {
			vals = append(vals, n)
		}
	})
	mains := pickMains(vals)
	if len(mains) < models.MainCount {
		return mains, nil, nil
	}
	return mains, pickStars(afterPicked(vals, mains)), nil
}

// slidingWindow tries every starting offset in tokens: it collects five
// distinct valid main numbers, then keeps scanning for two distinct valid
// stars. The first offset that completes both groups wins.
func slidingWindow(tokens []int) ([]int, []int, bool) {
	for start := range tokens {
		mains := make([]int, 0, models.MainCount)
		i := start
		for ; i < len(tokens) && len(mains) < models.MainCount; i++ {
			v := tokens[i]
			if v >= models.MainMin && v <= models.MainMax && !contains(mains, v) {
				mains = append(mains, v)
			}
		}
		if len(mains) < models.MainCount {
			break
		}
		if stars := pickStars(tokens[i:]); len(stars) == models.StarCount {
			return mains, stars, true
		}
	}
	return nil, nil, false
}
