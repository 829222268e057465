package extract

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"euromillions/internal/models"
)

var (
	// ErrDateNotFound means no draw date (or not the requested one) appears in the document.
	ErrDateNotFound = errors.New("draw date not found")
	// ErrIncompleteExtraction means the strategies could not recover five numbers and two stars.
	ErrIncompleteExtraction = errors.New("incomplete extraction")
	// ErrValidation means the recovered values break a draw invariant.
	ErrValidation = errors.New("validation failure")
)

// Pipeline stages, reported on failure.
const (
	StageParse     = "parse"
	StagePayload   = "structured_payload"
	StageContainer = "container_select"
	StageDate      = "date_locate"
	StageNumbers   = "number_extract"
	StageValidate  = "validate"
)

// DefaultWindow bounds the text scanned after a date anchor.
const DefaultWindow = 4000

// Options controls a single extraction.
type Options struct {
	// Target restricts extraction to one draw date. Zero means the latest
	// or most prominent draw on the page.
	Target time.Time
	// Window is the maximum number of bytes of text scanned after the date
	// anchor when no markup isolates the draw. Zero means DefaultWindow.
	Window int
}

// Result is a validated draw with the path that produced it.
type Result struct {
	Draw models.Draw
	// Strategy is "structured" or the names of the number strategies used.
	Strategy  string
	Container string
	Tried     []string
}

// Error describes a failed extraction: the stage that failed and the
// strategies tried before it.
type Error struct {
	Stage string
	Tried []string
	Err   error
}

func (e *Error) Error() string {
	if len(e.Tried) == 0 {
		return fmt.Sprintf("extract: %s: %v", e.Stage, e.Err)
	}
	return fmt.Sprintf("extract: %s (tried %s): %v", e.Stage, strings.Join(e.Tried, ", "), e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Extract parses an HTML document and returns one validated draw, or an
// *Error wrapping ErrDateNotFound, ErrIncompleteExtraction or ErrValidation.
func Extract(r io.Reader, opts Options) (*Result, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, &Error{Stage: StageParse, Err: fmt.Errorf("parsing HTML: %w", err)}
	}
	return ExtractDocument(doc, opts)
}

// ExtractDocument runs the pipeline on an already parsed document.
func ExtractDocument(doc *goquery.Document, opts Options) (*Result, error) {
	if opts.Window <= 0 {
		opts.Window = DefaultWindow
	}
	target := ""
	if !opts.Target.IsZero() {
		y, m, d := opts.Target.Date()
		opts.Target = time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
		target = opts.Target.Format(models.DateLayout)
	}
	tried := []string{"structured"}

	if hit, ok := scanPayloads(doc, target); ok {
		d, err := assemble(hit.date, hit.numbers, hit.stars, hit.jackpot, hit.winners)
		if err != nil {
			return nil, &Error{Stage: StageValidate, Tried: tried, Err: err}
		}
		return &Result{Draw: d, Strategy: "structured", Container: "payload", Tried: tried}, nil
	}

	body := doc.Find("body")
	if body.Length() == 0 {
		body = doc.Selection
	}

	var (
		a *anchor
		c container
	)
	if target != "" {
		found, ok := locateTarget(body, opts.Target)
		if !ok {
			return nil, &Error{Stage: StageDate, Tried: tried, Err: fmt.Errorf("%w: %s", ErrDateNotFound, target)}
		}
		a = found
		c = enclosing(a)
	} else {
		if explicit := firstExplicit(body); explicit != nil {
			c = container{sel: explicit, kind: kindExplicit}
			a, _ = locateLatest(explicit)
		}
		if a == nil {
			found, ok := locateLatest(body)
			if !ok {
				return nil, &Error{Stage: StageDate, Tried: tried, Err: ErrDateNotFound}
			}
			a = found
		}
		if c.sel == nil {
			c = enclosing(a)
		}
	}

	reg := buildRegion(body, c, a, opts.Window)
	mains, stars, ran, used, err := cascade(reg)
	tried = append(tried, ran...)
	if err != nil {
		return nil, &Error{Stage: StageNumbers, Tried: tried, Err: err}
	}
	if len(mains) != models.MainCount || len(stars) != models.StarCount {
		return nil, &Error{Stage: StageNumbers, Tried: tried, Err: fmt.Errorf(
			"%w: %d of %d numbers, %d of %d stars in %s container",
			ErrIncompleteExtraction, len(mains), models.MainCount, len(stars), models.StarCount, c.kind)}
	}

	var (
		jackpot *int64
		winners map[string]int
	)
	if c.sel != nil {
		jackpot = findJackpot(c.sel)
		winners = parseWinners(c.sel)
	}
	d, err := assemble(a.date.Format(models.DateLayout), mains, stars, jackpot, winners)
	if err != nil {
		return nil, &Error{Stage: StageValidate, Tried: tried, Err: err}
	}
	return &Result{Draw: d, Strategy: strings.Join(used, "+"), Container: c.kind, Tried: tried}, nil
}

// ParseDate reads an ISO draw date as used in query parameters.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(models.DateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid draw date %q, want YYYY-MM-DD", s)
	}
	return t, nil
}
