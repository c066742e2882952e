package ml

import (
	"fmt"
	"time"
)

// Predictor serves predictions from one artifact loaded at startup. When the
// load failed it stays unavailable for its whole life and every call fails
// fast with ModelUnavailable. Safe for concurrent use.
type Predictor struct {
	artifact *Artifact
	loadErr  error
}

// NewPredictor serves an artifact already in memory.
func NewPredictor(artifact *Artifact) *Predictor {
	return &Predictor{artifact: artifact}
}

// LoadPredictor never fails; inspect Ready and LoadErr.
func LoadPredictor(path string) *Predictor {
	artifact, err := LoadArtifact(path)
	if err != nil {
		return &Predictor{loadErr: err}
	}
	return &Predictor{artifact: artifact}
}

// Ready reports whether an artifact is loaded.
func (p *Predictor) Ready() bool {
	return p != nil && p.artifact != nil
}

// LoadErr is the startup load failure, or nil.
func (p *Predictor) LoadErr() error {
	if p == nil {
		return nil
	}
	return p.loadErr
}

// Sentinel is the placeholder the model was trained with for missing values.
func (p *Predictor) Sentinel() string {
	if !p.Ready() {
		return DefaultSentinel
	}
	return p.artifact.meta.Sentinel
}

func (p *Predictor) unavailable() error {
	var cause error
	if p != nil {
		cause = p.loadErr
	}
	return &PredictError{Kind: ModelUnavailable, Err: cause}
}

// Predict returns the neighbor-mean scores for rec rounded to two decimals.
func (p *Predictor) Predict(rec FeatureRecord) (result TargetVector, err error) {
	if !p.Ready() {
		return TargetVector{}, p.unavailable()
	}
	defer func() {
		if r := recover(); r != nil {
			result = TargetVector{}
			err = &PredictError{Kind: Unexpected, Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	raw, err := p.artifact.Predict(rec)
	if err != nil {
		return TargetVector{}, &PredictError{Kind: Unexpected, Err: err}
	}
	return raw.Rounded(), nil
}

// PredictJSON parses a JSON object and predicts it. Availability is checked
// before the input is looked at.
func (p *Predictor) PredictJSON(raw []byte) (TargetVector, error) {
	if !p.Ready() {
		return TargetVector{}, p.unavailable()
	}
	rec, err := ParseRecord(raw, p.Sentinel())
	if err != nil {
		return TargetVector{}, err
	}
	return p.Predict(rec)
}

// FieldInfo summarizes one encoded field.
type FieldInfo struct {
	Name       string   `json:"name"`
	Offset     int      `json:"offset"`
	Categories []string `json:"categories"`
}

// ModelInfo is a read-only view of the loaded artifact.
type ModelInfo struct {
	RunID     string       `json:"run_id"`
	CreatedAt time.Time    `json:"created_at"`
	Source    string       `json:"source"`
	Sentinel  string       `json:"sentinel"`
	Fields    []FieldInfo  `json:"fields"`
	Targets   []string     `json:"targets"`
	Width     int          `json:"width"`
	Rows      int          `json:"rows"`
	K         int          `json:"k"`
	Metric    string       `json:"metric"`
	Weights   string       `json:"weights"`
	Dropped   int          `json:"rows_dropped"`
	Metrics   *EvalMetrics `json:"metrics,omitempty"`
}

// Info summarizes the loaded artifact.
func (p *Predictor) Info() (ModelInfo, error) {
	if !p.Ready() {
		return ModelInfo{}, p.unavailable()
	}
	a := p.artifact
	info := ModelInfo{
		RunID:     a.meta.RunID,
		CreatedAt: a.meta.CreatedAt,
		Source:    a.meta.Source,
		Sentinel:  a.meta.Sentinel,
		Targets:   append([]string(nil), TargetNames[:]...),
		Width:     a.encoder.Width(),
		Rows:      a.regressor.Rows(),
		K:         a.regressor.K(),
		Metric:    MetricEuclidean,
		Weights:   WeightsUniform,
		Dropped:   a.meta.RowsDropped,
		Metrics:   a.meta.Metrics,
	}
	for i, name := range FieldNames {
		info.Fields = append(info.Fields, FieldInfo{
			Name:       name,
			Offset:     a.encoder.FieldOffset(i),
			Categories: a.encoder.Categories(i),
		})
	}
	return info, nil
}
