package ml

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fitLadder(t *testing.T) *Artifact {
	t.Helper()
	a, err := FitArtifact(ladder(), 7, Metadata{RunID: "run-1", CreatedAt: time.Unix(1700000000, 0).UTC(), Source: "ladder.csv"})
	require.NoError(t, err)
	return a
}

func TestFitArtifactExactRowPrediction(t *testing.T) {
	a := fitLadder(t)

	// query row 0: mismatch ranks r0(0) r1,r6(1) r2,r7(2) r3,r8(3) -> 7 rows
	got, err := a.Predict(ladder()[0].Features)
	require.NoError(t, err)
	got = got.Rounded()
	assert.Equal(t, 485.71, got.Math)
	assert.Equal(t, 486.71, got.NaturalSciences)
	assert.Equal(t, 487.71, got.Languages)
	assert.Equal(t, 488.71, got.HumanSciences)
	assert.Equal(t, 242.86, got.Essay)
}

func TestFitArtifactMatchesReference(t *testing.T) {
	ts := ladder()
	a := fitLadder(t)

	queries := append(ts.Records(),
		FeatureRecord{MotherEducation: "a", HouseholdIncome: "b", SchoolType: "a", RaceEthnicity: "b", ExamState: "a"},
		FeatureRecord{MotherEducation: "x", HouseholdIncome: "b", SchoolType: "y", RaceEthnicity: "a", ExamState: "b"},
	)
	for _, q := range queries {
		got, err := a.Predict(q)
		require.NoError(t, err)
		assert.Equal(t, referenceMean(ts, q, 7), got.Rounded(), "query %+v", q)
	}
}

func TestFitArtifactTooFewRows(t *testing.T) {
	_, err := FitArtifact(ladder()[:6], 7, Metadata{})
	assert.Error(t, err)

	_, err = FitArtifact(nil, 7, Metadata{})
	assert.Error(t, err)
}

func TestArtifactSaveLoadRoundTrip(t *testing.T) {
	a := fitLadder(t)
	path := filepath.Join(t.TempDir(), "model", "knn.model")
	require.NoError(t, SaveArtifact(path, a))

	loaded, err := LoadArtifact(path)
	require.NoError(t, err)
	assert.Equal(t, a.Metadata(), loaded.Metadata())
	assert.Equal(t, a.Encoder().Width(), loaded.Encoder().Width())
	assert.Equal(t, 7, loaded.Regressor().K())
	assert.Equal(t, DefaultSentinel, loaded.Metadata().Sentinel)

	for _, ex := range ladder() {
		want, err := a.Predict(ex.Features)
		require.NoError(t, err)
		got, err := loaded.Predict(ex.Features)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp file must not be left behind")
}

func TestLoadArtifactNotFound(t *testing.T) {
	_, err := LoadArtifact(filepath.Join(t.TempDir(), "missing.model"))
	require.Error(t, err)
	assert.Equal(t, LoadNotFound, LoadKind(err))
}

func TestLoadArtifactCorrupt(t *testing.T) {
	data, err := fitLadder(t).MarshalBinary()
	require.NoError(t, err)

	flipped := append([]byte(nil), data...)
	flipped[len(flipped)-5] ^= 0xff

	badVersion := append([]byte(nil), data...)
	badVersion[len(artifactMagic)+3] = 9

	cases := map[string][]byte{
		"empty":       {},
		"garbage":     []byte("definitely not a model artifact"),
		"truncated":   data[:len(data)-10],
		"bit flip":    flipped,
		"bad version": badVersion,
		"header only": data[:artifactHeaderSize],
	}
	dir := t.TempDir()
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name+".model")
			require.NoError(t, os.WriteFile(path, content, 0o600))
			_, err := LoadArtifact(path)
			require.Error(t, err)
			assert.Equal(t, LoadCorrupt, LoadKind(err))
		})
	}
}

func TestNewArtifactWidthMismatch(t *testing.T) {
	enc, err := FitEncoder(ladder().Records())
	require.NoError(t, err)
	reg := NewKNNRegressor(1)
	require.NoError(t, reg.Fit([][]float64{{1, 0}}, [][]float64{{1, 2, 3, 4, 5}}))

	_, err = NewArtifact(enc, reg, Metadata{})
	assert.Error(t, err)
}
