// Package ml implements the price-prediction model: categorical encoding,
// feature scaling, a random-forest regressor, and the artifact bundle the
// serving layer loads.
package ml

import "sort"

// CategoryEncoder maps string categories to dense integer codes, assigned
// in sorted order over the classes seen at fit time. All fields are
// exported so the encoder survives gob round-trips.
type CategoryEncoder struct {
	Classes []string
	Index   map[string]int
}

// FitCategoryEncoder builds an encoder over the distinct values present
// in the input.
func FitCategoryEncoder(values []string) *CategoryEncoder {
	seen := make(map[string]bool, len(values))
	for _, v := range values {
		seen[v] = true
	}

	classes := make([]string, 0, len(seen))
	for v := range seen {
		classes = append(classes, v)
	}
	sort.Strings(classes)

	index := make(map[string]int, len(classes))
	for i, c := range classes {
		index[c] = i
	}
	return &CategoryEncoder{Classes: classes, Index: index}
}

// Encode returns the code for a category. Values never seen at fit time
// map to 0 so prediction stays total over arbitrary request input.
func (e *CategoryEncoder) Encode(value string) float64 {
	if code, ok := e.Index[value]; ok {
		return float64(code)
	}
	return 0
}

// NumClasses returns the number of distinct categories seen at fit time.
func (e *CategoryEncoder) NumClasses() int {
	return len(e.Classes)
}
