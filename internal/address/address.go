// Package address handles delivery address lookup and the entrance code that
// is stored inside the address detail line.
package address

import (
	"context"
	"regexp"
	"strings"
)

const entranceLabel = "공동현관"

var entrancePattern = regexp.MustCompile(entranceLabel + `[:\s]*(\d+)`)

// Result is what an address search yields.
type Result struct {
	Line1 string `json:"address1"`
	Zip   string `json:"zipCode"`
}

// Lookup searches for an address, typically through a postcode service.
type Lookup interface {
	Open(ctx context.Context) (Result, error)
}

// LookupFunc adapts a function to Lookup.
type LookupFunc func(ctx context.Context) (Result, error)

// Open calls f.
func (f LookupFunc) Open(ctx context.Context) (Result, error) {
	return f(ctx)
}

// ComposeDetail appends the entrance code to the detail line as its own line.
func ComposeDetail(detail, entranceCode string) string {
	detail = strings.TrimSpace(detail)
	code := strings.TrimSpace(entranceCode)
	if code == "" {
		return detail
	}
	line := entranceLabel + ": " + code
	if detail == "" {
		return line
	}
	return detail + "\n" + line
}

// SplitDetail separates a stored detail line into the detail shown to the
// customer and the entrance code, if any.
func SplitDetail(stored string) (detail, entranceCode string) {
	if m := entrancePattern.FindStringSubmatch(stored); m != nil {
		entranceCode = m[1]
	}
	detail, _, _ = strings.Cut(stored, "\n")
	if entranceCode != "" && strings.HasPrefix(strings.TrimSpace(detail), entranceLabel) {
		detail = ""
	}
	return strings.TrimSpace(detail), entranceCode
}
