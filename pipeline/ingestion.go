package pipeline

import (
	"encoding/csv"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/pkg/errors"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"scorecast/ml"
)

const (
	DefaultDelimiter = ';'
	DefaultEncoding  = "iso-8859-1"
)

// DataPoint is one raw row restricted to the feature and target columns.
type DataPoint struct {
	Line     int
	Features [ml.NumFields]string
	Missing  [ml.NumFields]bool
	// Targets holds NaN for absent or unparseable scores.
	Targets [ml.NumTargets]float64
}

// Dataset is a bulk historical export loaded into memory.
type Dataset struct {
	Source string
	Points []*DataPoint
}

// ReadOptions controls how a delimited export is decoded.
type ReadOptions struct {
	Delimiter rune
	// Encoding is a WHATWG label such as "utf-8", "iso-8859-1" or "windows-1252".
	Encoding string
}

func (o ReadOptions) withDefaults() ReadOptions {
	if o.Delimiter == 0 {
		o.Delimiter = DefaultDelimiter
	}
	if o.Encoding == "" {
		o.Encoding = DefaultEncoding
	}
	return o
}

// ReadDataset loads path. Every failure is an *ml.DataError.
func ReadDataset(path string, opts ReadOptions) (*Dataset, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, ml.NewDataError(err, "open dataset %s", path)
	}
	defer file.Close()

	ds, err := ParseDataset(file, opts)
	if err != nil {
		return nil, err
	}
	ds.Source = path
	return ds, nil
}

// ParseDataset decodes a delimited stream whose header names the columns.
func ParseDataset(r io.Reader, opts ReadOptions) (*Dataset, error) {
	opts = opts.withDefaults()
	enc, err := htmlindex.Get(opts.Encoding)
	if err != nil {
		return nil, ml.NewDataError(err, "unsupported encoding %q", opts.Encoding)
	}

	// A leading BOM overrides the configured charset for the whole stream.
	reader := csv.NewReader(transform.NewReader(r, unicode.BOMOverride(enc.NewDecoder())))
	reader.Comma = opts.Delimiter
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.ReuseRecord = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, ml.NewDataError(nil, "dataset is empty")
	}
	if err != nil {
		return nil, ml.NewDataError(errors.Wrap(err, "read header"), "malformed dataset")
	}
	featureCols, targetCols, err := locateColumns(header)
	if err != nil {
		return nil, err
	}

	ds := &Dataset{}
	line := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, ml.NewDataError(errors.Wrapf(err, "line %d", line), "malformed dataset")
		}
		ds.Points = append(ds.Points, parsePoint(record, line, featureCols, targetCols))
	}
	return ds, nil
}

func locateColumns(header []string) (features [ml.NumFields]int, targets [ml.NumTargets]int, err error) {
	index := make(map[string]int, len(header))
	for i, name := range header {
		name = strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))
		if _, dup := index[name]; !dup {
			index[name] = i
		}
	}

	var missing []string
	for i, name := range ml.FieldNames {
		col, ok := index[name]
		if !ok {
			missing = append(missing, name)
		}
		features[i] = col
	}
	for i, name := range ml.TargetNames {
		col, ok := index[name]
		if !ok {
			missing = append(missing, name)
		}
		targets[i] = col
	}
	if len(missing) > 0 {
		return features, targets, ml.NewDataError(nil, "missing required columns: %s", strings.Join(missing, ", "))
	}
	return features, targets, nil
}

func parsePoint(record []string, line int, featureCols [ml.NumFields]int, targetCols [ml.NumTargets]int) *DataPoint {
	p := &DataPoint{Line: line}
	for i, col := range featureCols {
		v := cell(record, col)
		if v == "" {
			p.Missing[i] = true
			continue
		}
		p.Features[i] = v
	}
	for i, col := range targetCols {
		p.Targets[i] = parseScore(cell(record, col))
	}
	return p
}

func cell(record []string, col int) string {
	if col >= len(record) {
		return ""
	}
	v := strings.TrimSpace(record[col])
	if !utf8.ValidString(v) {
		v = strings.ToValidUTF8(v, "\ufffd")
	}
	// detach from the line buffer csv allocated for the whole record
	return strings.Clone(v)
}

func parseScore(s string) float64 {
	if s == "" {
		return math.NaN()
	}
	v, err := strconv.ParseFloat(strings.Replace(s, ",", ".", 1), 64)
	if err != nil || math.IsInf(v, 0) {
		return math.NaN()
	}
	return v
}
