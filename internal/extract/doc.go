// Package extract recovers a single EuroMillions draw from a results page.
//
// The source site changes its markup without notice, so extraction runs as a
// cascade: embedded structured payloads are read first, and only when none
// matches does the package fall back to heuristics. The heuristic path narrows
// the document to one draw's container, locates the draw date in English or
// Spanish, and recovers five main numbers and two lucky stars through an
// ordered list of strategies (marked carriers, listed groups, inline carriers,
// sliding window over bounded text).
//
// Every call is independent: the package holds no state between calls and is
// safe to use from multiple goroutines on distinct documents. A failed
// extraction never yields a partial draw.
package extract
