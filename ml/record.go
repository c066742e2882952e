package ml

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
)

const (
	NumFields  = 5
	NumTargets = 5

	// DefaultSentinel replaces absent feature values before encoding.
	DefaultSentinel = "Unknown"
	// DefaultNeighbors is the neighbor count used when none is configured.
	DefaultNeighbors = 7
)

// FieldNames lists the categorical input columns in canonical encoding order.
var FieldNames = [NumFields]string{
	"Q002",        // education level of mother/guardian
	"Q006",        // household income bracket
	"TP_ESCOLA",   // school type
	"TP_COR_RACA", // self-reported race/ethnicity
	"SG_UF_PROVA", // exam state
}

// TargetNames lists the score columns in the order the regressor emits them.
var TargetNames = [NumTargets]string{
	"NU_NOTA_MT",
	"NU_NOTA_CN",
	"NU_NOTA_LC",
	"NU_NOTA_CH",
	"NU_NOTA_REDACAO",
}

// FeatureRecord is one student's categorical profile.
type FeatureRecord struct {
	MotherEducation string `json:"Q002"`
	HouseholdIncome string `json:"Q006"`
	SchoolType      string `json:"TP_ESCOLA"`
	RaceEthnicity   string `json:"TP_COR_RACA"`
	ExamState       string `json:"SG_UF_PROVA"`
}

// Values returns the fields in FieldNames order.
func (r FeatureRecord) Values() [NumFields]string {
	return [NumFields]string{r.MotherEducation, r.HouseholdIncome, r.SchoolType, r.RaceEthnicity, r.ExamState}
}

// RecordFromValues builds a record from values in FieldNames order.
func RecordFromValues(v [NumFields]string) FeatureRecord {
	return FeatureRecord{
		MotherEducation: v[0],
		HouseholdIncome: v[1],
		SchoolType:      v[2],
		RaceEthnicity:   v[3],
		ExamState:       v[4],
	}
}

// TargetVector holds the five predicted or observed scores.
type TargetVector struct {
	Math            float64 `json:"NU_NOTA_MT"`
	NaturalSciences float64 `json:"NU_NOTA_CN"`
	Languages       float64 `json:"NU_NOTA_LC"`
	HumanSciences   float64 `json:"NU_NOTA_CH"`
	Essay           float64 `json:"NU_NOTA_REDACAO"`
}

// Values returns the scores in TargetNames order.
func (t TargetVector) Values() [NumTargets]float64 {
	return [NumTargets]float64{t.Math, t.NaturalSciences, t.Languages, t.HumanSciences, t.Essay}
}

// TargetFromValues builds a vector from values in TargetNames order.
func TargetFromValues(v [NumTargets]float64) TargetVector {
	return TargetVector{
		Math:            v[0],
		NaturalSciences: v[1],
		Languages:       v[2],
		HumanSciences:   v[3],
		Essay:           v[4],
	}
}

// Rounded returns a copy with every score rounded to two decimals.
func (t TargetVector) Rounded() TargetVector {
	v := t.Values()
	for i := range v {
		v[i] = round2(v[i])
	}
	return TargetFromValues(v)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// ParseRecord decodes a single JSON object into a FeatureRecord. JSON null
// values are replaced by sentinel; numbers and booleans keep their literal text.
func ParseRecord(raw []byte, sentinel string) (FeatureRecord, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return FeatureRecord{}, &PredictError{Kind: InvalidInput, Err: fmt.Errorf("malformed JSON: %w", err)}
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return FeatureRecord{}, &PredictError{Kind: InvalidInput, Err: errors.New("expected a single JSON object")}
	}

	obj, ok := v.(map[string]interface{})
	if !ok {
		return FeatureRecord{}, &PredictError{Kind: InvalidInput, Err: errors.New("expected a JSON object")}
	}
	return RecordFromMap(obj, sentinel)
}

// RecordFromMap extracts the canonical fields from a decoded JSON object.
// Keys outside FieldNames are ignored.
func RecordFromMap(m map[string]interface{}, sentinel string) (FeatureRecord, error) {
	var vals [NumFields]string
	for i, name := range FieldNames {
		raw, ok := m[name]
		if !ok {
			return FeatureRecord{}, &PredictError{Kind: MissingField, Field: name}
		}
		s, err := coerceString(raw, sentinel)
		if err != nil {
			return FeatureRecord{}, &PredictError{Kind: InvalidInput, Field: name, Err: err}
		}
		vals[i] = s
	}
	return RecordFromValues(vals), nil
}

func coerceString(v interface{}, sentinel string) (string, error) {
	switch val := v.(type) {
	case nil:
		return sentinel, nil
	case string:
		return val, nil
	case json.Number:
		return val.String(), nil
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64), nil
	case bool:
		return strconv.FormatBool(val), nil
	default:
		return "", fmt.Errorf("unsupported value type %T", v)
	}
}
