package models

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

const (
	// MainCount is the number of main numbers in a draw.
	MainCount = 5
	// StarCount is the number of lucky stars in a draw.
	StarCount = 2

	MainMin, MainMax = 1, 50
	StarMin, StarMax = 1, 12

	// DateLayout is the ISO calendar date used as the natural key of a draw.
	DateLayout = "2006-01-02"
)

// ErrInvalidDraw is returned by Validate for any broken invariant.
var ErrInvalidDraw = errors.New("invalid draw")

// Draw is a single EuroMillions result, keyed by its draw date.
// Jackpot and Winners are nil when the source does not publish them.
type Draw struct {
	DrawDate string         `json:"draw_date"`
	Numbers  []int          `json:"numbers"`
	Stars    []int          `json:"stars"`
	Jackpot  *int64         `json:"jackpot"`
	Winners  map[string]int `json:"winners"`
}

// Date returns the parsed draw date.
func (d *Draw) Date() (time.Time, error) {
	return time.Parse(DateLayout, d.DrawDate)
}

// Validate checks the count, range and distinctness invariants and the date syntax.
func (d *Draw) Validate() error {
	if _, err := d.Date(); err != nil {
		return fmt.Errorf("%w: draw date %q is not an ISO date", ErrInvalidDraw, d.DrawDate)
	}
	if err := checkGroup("numbers", d.Numbers, MainCount, MainMin, MainMax); err != nil {
		return err
	}
	return checkGroup("stars", d.Stars, StarCount, StarMin, StarMax)
}

// Normalize sorts numbers and stars ascending.
func (d *Draw) Normalize() {
	sort.Ints(d.Numbers)
	sort.Ints(d.Stars)
}

func checkGroup(name string, values []int, count, lo, hi int) error {
	if len(values) != count {
		return fmt.Errorf("%w: expected %d %s, got %d", ErrInvalidDraw, count, name, len(values))
	}
	seen := make(map[int]bool, count)
	for _, v := range values {
		if v < lo || v > hi {
			return fmt.Errorf("%w: %s value %d outside [%d,%d]", ErrInvalidDraw, name, v, lo, hi)
		}
		if seen[v] {
			return fmt.Errorf("%w: duplicate %s value %d", ErrInvalidDraw, name, v)
		}
		seen[v] = true
	}
	return nil
}
