package ml

import (
	"errors"
	"fmt"
	"sort"
)

// OneHotEncoder maps each categorical field to a block of 0/1 indicators,
// one per category observed at fit time. Categories are sorted within each
// field so the layout only depends on the set of values seen.
type OneHotEncoder struct {
	categories [NumFields][]string
	index      [NumFields]map[string]int
	offsets    [NumFields]int
	width      int
}

// FitEncoder learns the category vocabulary of every field.
func FitEncoder(records []FeatureRecord) (*OneHotEncoder, error) {
	if len(records) == 0 {
		return nil, errors.New("records is empty")
	}

	var seen [NumFields]map[string]struct{}
	for i := range seen {
		seen[i] = make(map[string]struct{})
	}
	for _, rec := range records {
		for i, v := range rec.Values() {
			seen[i][v] = struct{}{}
		}
	}

	var categories [NumFields][]string
	for i, set := range seen {
		values := make([]string, 0, len(set))
		for v := range set {
			values = append(values, v)
		}
		sort.Strings(values)
		categories[i] = values
	}
	return NewEncoder(categories)
}

// NewEncoder rebuilds an encoder from a stored vocabulary. Each field must
// hold at least one category, strictly increasing.
func NewEncoder(categories [NumFields][]string) (*OneHotEncoder, error) {
	e := &OneHotEncoder{}
	offset := 0
	for i, values := range categories {
		if len(values) == 0 {
			return nil, fmt.Errorf("field %s has no categories", FieldNames[i])
		}
		idx := make(map[string]int, len(values))
		for j, v := range values {
			if j > 0 && values[j-1] >= v {
				return nil, fmt.Errorf("field %s categories not sorted at %q", FieldNames[i], v)
			}
			idx[v] = j
		}
		e.categories[i] = append([]string(nil), values...)
		e.index[i] = idx
		e.offsets[i] = offset
		offset += len(values)
	}
	e.width = offset
	return e, nil
}

// Transform encodes one record. A value not seen at fit time leaves its
// field's block all zero.
func (e *OneHotEncoder) Transform(rec FeatureRecord) []float64 {
	vector := make([]float64, e.width)
	for i, v := range rec.Values() {
		if j, ok := e.index[i][v]; ok {
			vector[e.offsets[i]+j] = 1
		}
	}
	return vector
}

// TransformAll encodes records in order.
func (e *OneHotEncoder) TransformAll(records []FeatureRecord) [][]float64 {
	vectors := make([][]float64, len(records))
	for i, rec := range records {
		vectors[i] = e.Transform(rec)
	}
	return vectors
}

// Width is the length of every encoding.
func (e *OneHotEncoder) Width() int {
	return e.width
}

// Categories returns a copy of the vocabulary learned for field i.
func (e *OneHotEncoder) Categories(field int) []string {
	if field < 0 || field >= NumFields {
		return nil
	}
	return append([]string(nil), e.categories[field]...)
}

// FieldOffset is the position of the first indicator of field i.
func (e *OneHotEncoder) FieldOffset(field int) int {
	return e.offsets[field]
}

func (e *OneHotEncoder) vocabulary() [NumFields][]string {
	var out [NumFields][]string
	for i := range e.categories {
		out[i] = e.Categories(i)
	}
	return out
}
