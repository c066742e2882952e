package ml

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"errors"
	"fmt"
	"hash/crc32"
	"os"
	"path/filepath"
	"time"
)

const (
	artifactMagic      = "SCKNNART"
	artifactVersion    = uint32(1)
	artifactHeaderSize = len(artifactMagic) + 4 + 8 + 4
)

// EvalMetrics are holdout errors measured before the final fit.
type EvalMetrics struct {
	TrainRows int                 `json:"train_rows"`
	TestRows  int                 `json:"test_rows"`
	MAE       [NumTargets]float64 `json:"mae"`
	RMSE      [NumTargets]float64 `json:"rmse"`
}

// Metadata describes the training run that produced an artifact.
type Metadata struct {
	RunID       string       `json:"run_id"`
	CreatedAt   time.Time    `json:"created_at"`
	Source      string       `json:"source"`
	Sentinel    string       `json:"sentinel"`
	RowsTotal   int          `json:"rows_total"`
	RowsUsed    int          `json:"rows_used"`
	RowsDropped int          `json:"rows_dropped"`
	Metrics     *EvalMetrics `json:"metrics,omitempty"`
}

// Artifact bundles the fitted encoder and regressor so both are always
// saved and loaded together. It is immutable once built.
type Artifact struct {
	encoder   *OneHotEncoder
	regressor *KNNRegressor
	meta      Metadata
}

// NewArtifact bundles a fitted encoder and regressor. Their widths must agree.
func NewArtifact(encoder *OneHotEncoder, regressor *KNNRegressor, meta Metadata) (*Artifact, error) {
	if encoder == nil || regressor == nil {
		return nil, errors.New("encoder and regressor are required")
	}
	if encoder.Width() != regressor.Dim() {
		return nil, fmt.Errorf("encoder width %d does not match regressor dim %d", encoder.Width(), regressor.Dim())
	}
	if regressor.Outputs() != NumTargets {
		return nil, fmt.Errorf("regressor has %d outputs, want %d", regressor.Outputs(), NumTargets)
	}
	if meta.Sentinel == "" {
		meta.Sentinel = DefaultSentinel
	}
	return &Artifact{encoder: encoder, regressor: regressor, meta: meta}, nil
}

// Accessors for the bundled parts.
func (a *Artifact) Encoder() *OneHotEncoder            { return a.encoder }
func (a *Artifact) Regressor() *KNNRegressor           { return a.regressor }
func (a *Artifact) Metadata() Metadata                 { return a.meta }
func (a *Artifact) Encode(rec FeatureRecord) []float64 { return a.encoder.Transform(rec) }

// Predict returns the unrounded neighbor mean for rec.
func (a *Artifact) Predict(rec FeatureRecord) (TargetVector, error) {
	raw, err := a.regressor.Predict(a.encoder.Transform(rec))
	if err != nil {
		return TargetVector{}, err
	}
	var v [NumTargets]float64
	copy(v[:], raw)
	return TargetFromValues(v), nil
}

type artifactPayload struct {
	Categories [NumFields][]string
	Regressor  regressorState
	Meta       Metadata
}

// MarshalBinary encodes the artifact as header + gob payload. The header
// carries a magic string, format version, payload length and CRC-32.
func (a *Artifact) MarshalBinary() ([]byte, error) {
	var payload bytes.Buffer
	err := gob.NewEncoder(&payload).Encode(artifactPayload{
		Categories: a.encoder.vocabulary(),
		Regressor:  a.regressor.state(),
		Meta:       a.meta,
	})
	if err != nil {
		return nil, fmt.Errorf("encode artifact: %w", err)
	}

	out := make([]byte, artifactHeaderSize, artifactHeaderSize+payload.Len())
	copy(out, artifactMagic)
	n := len(artifactMagic)
	binary.BigEndian.PutUint32(out[n:], artifactVersion)
	binary.BigEndian.PutUint64(out[n+4:], uint64(payload.Len()))
	binary.BigEndian.PutUint32(out[n+12:], crc32.ChecksumIEEE(payload.Bytes()))
	return append(out, payload.Bytes()...), nil
}

// UnmarshalArtifact decodes and validates bytes produced by MarshalBinary.
func UnmarshalArtifact(data []byte) (*Artifact, error) {
	if len(data) < artifactHeaderSize {
		return nil, errors.New("truncated header")
	}
	if string(data[:len(artifactMagic)]) != artifactMagic {
		return nil, errors.New("not a model artifact")
	}
	n := len(artifactMagic)
	if v := binary.BigEndian.Uint32(data[n:]); v != artifactVersion {
		return nil, fmt.Errorf("unsupported artifact version %d", v)
	}
	size := binary.BigEndian.Uint64(data[n+4:])
	sum := binary.BigEndian.Uint32(data[n+12:])
	payload := data[artifactHeaderSize:]
	if uint64(len(payload)) != size {
		return nil, fmt.Errorf("payload is %d bytes, header says %d", len(payload), size)
	}
	if crc32.ChecksumIEEE(payload) != sum {
		return nil, errors.New("checksum mismatch")
	}

	var p artifactPayload
	if err := gob.NewDecoder(bytes.NewReader(payload)).Decode(&p); err != nil {
		return nil, fmt.Errorf("decode artifact: %w", err)
	}
	encoder, err := NewEncoder(p.Categories)
	if err != nil {
		return nil, err
	}
	regressor, err := regressorFromState(p.Regressor)
	if err != nil {
		return nil, err
	}
	return NewArtifact(encoder, regressor, p.Meta)
}

// SaveArtifact writes the artifact atomically: a temp file in the target
// directory is renamed over path only after a complete write.
func SaveArtifact(path string, a *Artifact) error {
	if a == nil {
		return errors.New("artifact is nil")
	}
	data, err := a.MarshalBinary()
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create model dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp artifact: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write artifact: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close artifact: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return fmt.Errorf("chmod artifact: %w", err)
	}
	return os.Rename(tmp.Name(), path)
}
