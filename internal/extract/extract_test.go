package extract

import (
	"encoding/json"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"
)

func mustDate(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := ParseDate(s)
	if err != nil {
		t.Fatalf("Expected valid date %q, but got %v", s, err)
	}
	return d
}

func run(t *testing.T, page string, opts Options) (*Result, error) {
	t.Helper()
	return Extract(strings.NewReader(page), opts)
}

func TestExtract_LatestFromLists(t *testing.T) {
	page := `<html><body>` +
		`<h2>Tuesday, 04 November 2025</h2>` +
		`<ul><li>6</li><li>9</li><li>25</li><li>28</li><li>45</li></ul>` +
		`<p>Lucky Stars</p>` +
		`<ul><li>1</li><li>4</li></ul>` +
		`</body></html>`

	res, err := run(t, page, Options{})
	if err != nil {
		t.Fatalf("Expected no error, but got %v", err)
	}

	got, err := json.Marshal(res.Draw)
	if err != nil {
		t.Fatalf("Expected draw to marshal, but got %v", err)
	}
	want := `{"draw_date":"2025-11-04","numbers":[6,9,25,28,45],"stars":[1,4],"jackpot":null,"winners":null}`
	if string(got) != want {
		t.Errorf("Expected %s, but got %s", want, got)
	}
	if res.Strategy != "lists" {
		t.Errorf("Expected strategy lists, but got %q", res.Strategy)
	}
}

func TestExtract_ExplicitContainerWithJackpotAndWinners(t *testing.T) {
	page := `<html><body>` +
		`<div class="latest-result">` +
		`<h3>Friday, 31 October 2025</h3>` +
		`<div class="balls">` +
		`<div class="ball">36</div><div class="ball">3</div><div class="ball">17</div>` +
		`<div class="ball">22</div><div class="ball">48</div>` +
		`<div class="ball star">11</div><div class="ball star">2</div>` +
		`</div>` +
		`<div class="jackpot">Jackpot: €17,000,000</div>` +
		`<table class="prizes"><tr><th>Rank</th><th>Winners</th></tr>` +
		`<tr><td>Match 5 + 2</td><td>0</td></tr>` +
		`<tr><td>Match 5 + 1</td><td>3</td></tr>` +
		`<tr><td>Match 2</td><td>n/a</td></tr></table>` +
		`</div>` +
		`<div class="news"><h3>Tuesday 28 October 2025</h3><p>1 2 3 4 5 6 7</p></div>` +
		`</body></html>`

	res, err := run(t, page, Options{})
	if err != nil {
		t.Fatalf("Expected no error, but got %v", err)
	}
	d := res.Draw
	if d.DrawDate != "2025-10-31" {
		t.Errorf("Expected date 2025-10-31, but got %s", d.DrawDate)
	}
	if !reflect.DeepEqual(d.Numbers, []int{3, 17, 22, 36, 48}) {
		t.Errorf("Expected sorted numbers [3 17 22 36 48], but got %v", d.Numbers)
	}
	if !reflect.DeepEqual(d.Stars, []int{2, 11}) {
		t.Errorf("Expected sorted stars [2 11], but got %v", d.Stars)
	}
	if d.Jackpot == nil || *d.Jackpot != 17000000 {
		t.Errorf("Expected jackpot 17000000, but got %v", d.Jackpot)
	}
	wantWinners := map[string]int{"Match 5 + 2": 0, "Match 5 + 1": 3}
	if !reflect.DeepEqual(d.Winners, wantWinners) {
		t.Errorf("Expected winners %v, but got %v", wantWinners, d.Winners)
	}
	if res.Container != kindExplicit || res.Strategy != "marked" {
		t.Errorf("Expected explicit container via marked, but got %s via %s", res.Container, res.Strategy)
	}
}

func TestExtract_Failures(t *testing.T) {
	t.Run("Four main numbers is incomplete", func(t *testing.T) {
		page := `<body><h2>Tuesday, 04 November 2025</h2>` +
			`<ul><li>6</li><li>9</li><li>25</li><li>28</li></ul>` +
			`<p>Lucky Stars</p><ul><li>1</li><li>4</li></ul></body>`
		_, err := run(t, page, Options{})
		if !errors.Is(err, ErrIncompleteExtraction) {
			t.Fatalf("Expected ErrIncompleteExtraction, but got %v", err)
		}
		var e *Error
		if !errors.As(err, &e) || e.Stage != StageNumbers {
			t.Errorf("Expected stage %s, but got %v", StageNumbers, err)
		}
		if len(e.Tried) == 0 || e.Tried[len(e.Tried)-1] != "window" {
			t.Errorf("Expected every strategy to be tried, but got %v", e.Tried)
		}
	})

	t.Run("No date anywhere", func(t *testing.T) {
		_, err := run(t, `<body><p>6 9 25 28 45 1 4</p></body>`, Options{})
		if !errors.Is(err, ErrDateNotFound) {
			t.Fatalf("Expected ErrDateNotFound, but got %v", err)
		}
	})

	t.Run("Target date absent", func(t *testing.T) {
		page := `<body><h2>Tuesday, 04 November 2025</h2><p>6 9 25 28 45 1 4</p></body>`
		_, err := run(t, page, Options{Target: mustDate(t, "2025-10-31")})
		if !errors.Is(err, ErrDateNotFound) {
			t.Fatalf("Expected ErrDateNotFound, but got %v", err)
		}
	})

	t.Run("Too many marked numbers", func(t *testing.T) {
		page := `<body><div class="latest-result"><h3>Friday, 31 October 2025</h3>` +
			`<span class="ball">1</span><span class="ball">2</span><span class="ball">3</span>` +
			`<span class="ball">4</span><span class="ball">5</span><span class="ball">6</span>` +
			`<span class="lucky-star">7</span><span class="lucky-star">8</span>` +
			`</div></body>`
		_, err := run(t, page, Options{})
		if !errors.Is(err, ErrValidation) {
			t.Fatalf("Expected ErrValidation, but got %v", err)
		}
	})
}

func TestExtract_StructuredPayloadWins(t *testing.T) {
	page := `<html><head><script type="application/json">` +
		`{"draws":[{"drawDate":"2025-11-04","mainNumbers":[50,7,14,21,33],"luckyStars":["12","3"],"jackpot":17000000}]}` +
		`</script></head><body>` +
		`<h2>Tuesday, 04 November 2025</h2>` +
		`<span class="ball">1</span><span class="ball">2</span><span class="ball">3</span>` +
		`<span class="ball">4</span><span class="ball">5</span>` +
		`<span class="star">6</span><span class="star">7</span>` +
		`</body></html>`

	res, err := run(t, page, Options{})
	if err != nil {
		t.Fatalf("Expected no error, but got %v", err)
	}
	if res.Strategy != "structured" {
		t.Errorf("Expected structured strategy, but got %q", res.Strategy)
	}
	if !reflect.DeepEqual(res.Draw.Numbers, []int{7, 14, 21, 33, 50}) {
		t.Errorf("Expected payload numbers, but got %v", res.Draw.Numbers)
	}
	if !reflect.DeepEqual(res.Draw.Stars, []int{3, 12}) {
		t.Errorf("Expected payload stars, but got %v", res.Draw.Stars)
	}
	if res.Draw.Jackpot == nil || *res.Draw.Jackpot != 17000000 {
		t.Errorf("Expected payload jackpot, but got %v", res.Draw.Jackpot)
	}

	t.Run("Payload for another date is ignored in target mode", func(t *testing.T) {
		res, err := run(t, page, Options{Target: mustDate(t, "2025-11-04")})
		if err != nil {
			t.Fatalf("Expected no error, but got %v", err)
		}
		if res.Strategy != "structured" {
			t.Errorf("Expected payload for matching date, but got %q", res.Strategy)
		}
		_, err = run(t, page, Options{Target: mustDate(t, "2025-10-31")})
		if !errors.Is(err, ErrDateNotFound) {
			t.Errorf("Expected ErrDateNotFound, but got %v", err)
		}
	})
}

func TestExtract_MalformedPayloadFallsBackToFieldPatterns(t *testing.T) {
	page := `<html><head><script>` +
		`var result = {drawDate: '2025-11-04', numbers: [6, 9, 25, 28, 45], stars: [1, 4], };` +
		`</script></head><body><p>nothing to see</p></body></html>`

	res, err := run(t, page, Options{})
	if err != nil {
		t.Fatalf("Expected no error, but got %v", err)
	}
	if res.Draw.DrawDate != "2025-11-04" || res.Strategy != "structured" {
		t.Errorf("Expected structured draw for 2025-11-04, but got %+v via %s", res.Draw, res.Strategy)
	}
}

func TestExtract_MultiDrawPages(t *testing.T) {
	wrapped := `<body>` +
		`<div class="draw"><h3>Tuesday 04 November 2025</h3>` +
		`<ul><li>6</li><li>9</li><li>25</li><li>28</li><li>45</li><li>1</li><li>4</li></ul></div>` +
		`<div class="draw"><h3>Friday 31 October 2025</h3>` +
		`<ul><li>3</li><li>17</li><li>22</li><li>36</li><li>48</li><li>2</li><li>11</li></ul></div>` +
		`</body>`
	flat := `<body>` +
		`<h3>Tuesday 04 November 2025</h3><p>6 9 25 28 45 1 4</p>` +
		`<h3>Friday 31 October 2025</h3><p>3 17 22 36 48 2 11</p>` +
		`</body>`

	newer := []int{6, 9, 25, 28, 45}
	older := []int{3, 17, 22, 36, 48}

	tests := []struct {
		name      string
		page      string
		target    string
		numbers   []int
		container string
	}{
		{"Wrapped latest", wrapped, "", newer, kindAncestor},
		{"Wrapped target", wrapped, "2025-10-31", older, kindAncestor},
		{"Flat latest", flat, "", newer, kindWindow},
		{"Flat target", flat, "2025-10-31", older, kindWindow},
		{"Flat target newer", flat, "2025-11-04", newer, kindWindow},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var opts Options
			if tt.target != "" {
				opts.Target = mustDate(t, tt.target)
			}
			res, err := run(t, tt.page, opts)
			if err != nil {
				t.Fatalf("Expected no error, but got %v", err)
			}
			if !reflect.DeepEqual(res.Draw.Numbers, tt.numbers) {
				t.Errorf("Expected %v, but got %v", tt.numbers, res.Draw.Numbers)
			}
			if res.Container != tt.container {
				t.Errorf("Expected %s container, but got %s", tt.container, res.Container)
			}
		})
	}
}

func TestExtract_SpanishAndAttributeDates(t *testing.T) {
	t.Run("Spanish heading", func(t *testing.T) {
		page := `<body><h2>Martes, 4 de noviembre de 2025</h2>` +
			`<p>Combinación ganadora: 6 - 9 - 25 - 28 - 45 Estrellas: 1 - 4</p></body>`
		for _, opts := range []Options{{}, {Target: mustDate(t, "2025-11-04")}} {
			res, err := run(t, page, opts)
			if err != nil {
				t.Fatalf("Expected no error, but got %v", err)
			}
			if res.Draw.DrawDate != "2025-11-04" || !reflect.DeepEqual(res.Draw.Stars, []int{1, 4}) {
				t.Errorf("Expected 2025-11-04 with stars [1 4], but got %+v", res.Draw)
			}
		}
	})

	t.Run("Datetime attribute", func(t *testing.T) {
		page := `<body>` +
			`<article><time datetime="2025-11-04T21:00:00+01:00">Tue 4 Nov</time>` +
			`<ol class="numbers"><li>45</li><li>6</li><li>9</li><li>25</li><li>28</li></ol>` +
			`<ol class="stars"><li>4</li><li>1</li></ol></article>` +
			`<article><time datetime="2025-10-31">Fri 31 Oct</time>` +
			`<ol class="numbers"><li>3</li><li>17</li><li>22</li><li>36</li><li>48</li></ol>` +
			`<ol class="stars"><li>2</li><li>11</li></ol></article>` +
			`</body>`
		res, err := run(t, page, Options{Target: mustDate(t, "2025-11-04")})
		if err != nil {
			t.Fatalf("Expected no error, but got %v", err)
		}
		if !reflect.DeepEqual(res.Draw.Numbers, []int{6, 9, 25, 28, 45}) {
			t.Errorf("Expected numbers of the 4 November article, but got %v", res.Draw.Numbers)
		}
		if !reflect.DeepEqual(res.Draw.Stars, []int{1, 4}) {
			t.Errorf("Expected stars of the 4 November article, but got %v", res.Draw.Stars)
		}
	})
}

func TestParseDate(t *testing.T) {
	if _, err := ParseDate("2025-11-04"); err != nil {
		t.Errorf("Expected ISO date to parse, but got %v", err)
	}
	for _, bad := range []string{"", "04/11/2025", "2025-02-30", "latest"} {
		if _, err := ParseDate(bad); err == nil {
			t.Errorf("Expected an error for %q, but got nil", bad)
		}
	}
}

func TestExtract_StarBeforeJackpot(t *testing.T) {
	tests := []struct {
		name    string
		jackpot string
	}{
		{"Leading currency sign", "€17,000,000"},
		{"Trailing currency sign", "17.000.000 €"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page := `<html><body><div class="latest-result">` +
				`<h3>Tuesday, 04 November 2025</h3>` +
				`<div class="ball">6</div><div class="ball">9</div><div class="ball">25</div>` +
				`<div class="ball">28</div><div class="ball">45</div>` +
				`<div class="ball star">1</div><div class="ball star">4</div>` +
				`<div class="jackpot">` + tt.jackpot + `</div>` +
				`</div></body></html>`

			res, err := run(t, page, Options{})
			if err != nil {
				t.Fatalf("Expected no error, but got %v", err)
			}
			if res.Container != kindExplicit || res.Strategy != "marked" {
				t.Errorf("Expected explicit container via marked, but got %s via %s", res.Container, res.Strategy)
			}
			if !reflect.DeepEqual(res.Draw.Stars, []int{1, 4}) {
				t.Errorf("Expected stars [1 4], but got %v", res.Draw.Stars)
			}
			if res.Draw.Jackpot == nil || *res.Draw.Jackpot != 17000000 {
				t.Errorf("Expected jackpot 17000000, but got %v", res.Draw.Jackpot)
			}
		})
	}
}

func TestExtract_AttributeDatesBoundDOMStrategies(t *testing.T) {
	page := `<body>` +
		`<time datetime="2025-11-04">Tue 4 Nov</time>` +
		`<ul><li>6</li><li>9</li><li>25</li><li>28</li><li>45</li><li>1</li><li>4</li></ul>` +
		`<time datetime="2025-10-31">Fri 31 Oct</time>` +
		`<ul><li>3</li><li>17</li><li>22</li><li>36</li><li>48</li><li>2</li><li>11</li></ul>` +
		`</body>`

	tests := []struct {
		name    string
		target  string
		numbers []int
		stars   []int
	}{
		{"Latest", "", []int{6, 9, 25, 28, 45}, []int{1, 4}},
		{"Older target", "2025-10-31", []int{3, 17, 22, 36, 48}, []int{2, 11}},
		{"Newer target", "2025-11-04", []int{6, 9, 25, 28, 45}, []int{1, 4}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var opts Options
			if tt.target != "" {
				opts.Target = mustDate(t, tt.target)
			}
			res, err := run(t, page, opts)
			if err != nil {
				t.Fatalf("Expected no error, but got %v", err)
			}
			if !reflect.DeepEqual(res.Draw.Numbers, tt.numbers) || !reflect.DeepEqual(res.Draw.Stars, tt.stars) {
				t.Errorf("Expected %v + %v, but got %v + %v", tt.numbers, tt.stars, res.Draw.Numbers, res.Draw.Stars)
			}
			if res.Container != kindWindow || res.Strategy != "lists" {
				t.Errorf("Expected window container via lists, but got %s via %s", res.Container, res.Strategy)
			}
		})
	}
}

func TestExtract_SplitDateHeadingIsNotRead(t *testing.T) {
	heading := `<h2><span>Tuesday</span> <span>04</span> <span>November</span> <span>2025</span></h2>`
	spans := `<span>6</span><span>9</span><span>25</span><span>28</span><span>45</span>` +
		`<span>+</span><span>1</span><span>7</span>`

	tests := []struct {
		name string
		page string
	}{
		{"Explicit container", `<body><div class="result">` + heading + spans + `</div></body>`},
		{"Plain body", `<body>` + heading + `<p>` + spans + `</p></body>`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := run(t, tt.page, Options{})
			if err != nil {
				t.Fatalf("Expected no error, but got %v", err)
			}
			if res.Draw.DrawDate != "2025-11-04" {
				t.Errorf("Expected date 2025-11-04, but got %s", res.Draw.DrawDate)
			}
			if !reflect.DeepEqual(res.Draw.Numbers, []int{6, 9, 25, 28, 45}) {
				t.Errorf("Expected numbers [6 9 25 28 45], but got %v", res.Draw.Numbers)
			}
			if !reflect.DeepEqual(res.Draw.Stars, []int{1, 7}) {
				t.Errorf("Expected stars [1 7], but got %v", res.Draw.Stars)
			}
			if res.Strategy != "inline" {
				t.Errorf("Expected strategy inline, but got %q", res.Strategy)
			}
		})
	}
}

func TestExtract_RepeatedMarkedNumber(t *testing.T) {
	page := `<body><div class="latest-result"><h3>Friday, 31 October 2025</h3>` +
		`<span class="ball">6</span><span class="ball">9</span><span class="ball">25</span>` +
		`<span class="ball">25</span><span class="ball">45</span>` +
		`<span class="lucky-star">1</span><span class="lucky-star">4</span>` +
		`</div></body>`

	_, err := run(t, page, Options{})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("Expected ErrValidation, but got %v", err)
	}
	if !strings.Contains(err.Error(), "main number 25 marked twice") {
		t.Errorf("Expected the repeated value in the error, but got %v", err)
	}
}

func TestExtract_PayloadWinners(t *testing.T) {
	page := `<html><head><script type="application/json">` +
		`{"drawDate":"2025-11-04","numbers":[6,9,25,28,45],"stars":[1,4],"jackpot":"€17,000,000",` +
		`"winners":{"rank1":0,"rank2":3,"rank3":"n/a"}}` +
		`</script></head><body></body></html>`

	res, err := run(t, page, Options{})
	if err != nil {
		t.Fatalf("Expected no error, but got %v", err)
	}
	want := map[string]int{"rank1": 0, "rank2": 3}
	if !reflect.DeepEqual(res.Draw.Winners, want) {
		t.Errorf("Expected winners %v, but got %v", want, res.Draw.Winners)
	}
	if res.Draw.Jackpot == nil || *res.Draw.Jackpot != 17000000 {
		t.Errorf("Expected jackpot 17000000, but got %v", res.Draw.Jackpot)
	}
}

func TestPayloadWinners(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    map[string]int
	}{
		{"Object of counts", `{"rank1":0,"rank2":"1,204"}`, map[string]int{"rank1": 0, "rank2": 1204}},
		{"Object of tiers", `{"5+2":{"winners":1,"prize":"€17,000,000"}}`, map[string]int{"5+2": 1}},
		{"List of tiers", `[{"tier":"5+2","winners":0},{"category":"5+1","count":"3"},{"tier":"5+0"}]`,
			map[string]int{"5+2": 0, "5+1": 3}},
		{"Nothing readable", `[{"tier":"5+2","winners":-1}]`, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dec := json.NewDecoder(strings.NewReader(tt.payload))
			dec.UseNumber()
			var v any
			if err := dec.Decode(&v); err != nil {
				t.Fatalf("Expected valid JSON, but got %v", err)
			}
			if got := payloadWinners(v); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Expected %v, but got %v", tt.want, got)
			}
		})
	}
}

func TestParseJackpot(t *testing.T) {
	tests := []struct {
		text string
		want int64
		ok   bool
	}{
		{"€17,000,000", 17000000, true},
		{"17.000.000 €", 17000000, true},
		{"Jackpot: £1,234,567.89", 1234567, true},
		{"€130 million", 0, false},
		{"£17.5m", 0, false},
		{"130 millones de euros", 0, false},
		{"Estimated €250 Mio", 0, false},
		{"no amount", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			got := parseJackpot(tt.text)
			if !tt.ok {
				if got != nil {
					t.Errorf("Expected no jackpot, but got %d", *got)
				}
				return
			}
			if got == nil || *got != tt.want {
				t.Errorf("Expected %d, but got %v", tt.want, got)
			}
		})
	}
}
