package pipeline

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validPoint() *DataPoint {
	return &DataPoint{
		Line:     2,
		Features: [5]string{"B", "C", "1", "3", "PE"},
		Targets:  [5]float64{500, 510, 520, 530, 600},
	}
}

func TestNewDataCleaner(t *testing.T) {
	cleaner := NewDataCleaner("")
	require.NotNil(t, cleaner)
	assert.Len(t, cleaner.rules, 3)
}

func TestTargetRules(t *testing.T) {
	tests := []struct {
		name    string
		rule    CleaningRule
		mutate  func(*DataPoint)
		wantErr bool
	}{
		{name: "presence ok", rule: TargetPresenceRule{}, mutate: func(*DataPoint) {}},
		{name: "presence missing essay", rule: TargetPresenceRule{}, mutate: func(p *DataPoint) { p.Targets[4] = math.NaN() }, wantErr: true},
		{name: "positive ok", rule: PositiveTargetRule{}, mutate: func(*DataPoint) {}},
		{name: "positive zero math", rule: PositiveTargetRule{}, mutate: func(p *DataPoint) { p.Targets[0] = 0 }, wantErr: true},
		{name: "positive negative", rule: PositiveTargetRule{}, mutate: func(p *DataPoint) { p.Targets[2] = -1 }, wantErr: true},
		{name: "positive tiny", rule: PositiveTargetRule{}, mutate: func(p *DataPoint) { p.Targets[2] = 0.01 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := validPoint()
			tt.mutate(p)
			_, err := tt.rule.Apply(p)
			if (err != nil) != tt.wantErr {
				t.Errorf("%s.Apply() error = %v, wantErr %v", tt.rule.Name(), err, tt.wantErr)
			}
		})
	}
}

func TestFeatureFillRule(t *testing.T) {
	rule := NewFeatureFillRule("Desconhecido")

	p := validPoint()
	out, err := rule.Apply(p)
	require.NoError(t, err)
	assert.Same(t, p, out, "unchanged point is returned as is")

	p.Missing[3] = true
	p.Features[3] = ""
	out, err = rule.Apply(p)
	require.NoError(t, err)
	assert.Equal(t, "Desconhecido", out.Features[3])
	assert.False(t, out.Missing[3])
	assert.True(t, p.Missing[3], "input is not modified")
}

func TestDataCleanerClean(t *testing.T) {
	cleaner := NewDataCleaner("Unknown")

	missingTarget := validPoint()
	missingTarget.Line = 3
	missingTarget.Targets[1] = math.NaN()

	zeroTarget := validPoint()
	zeroTarget.Line = 4
	zeroTarget.Targets[4] = 0

	missingFeature := validPoint()
	missingFeature.Line = 5
	missingFeature.Missing[0] = true
	missingFeature.Features[0] = ""

	cleaned := cleaner.Clean([]*DataPoint{validPoint(), missingTarget, zeroTarget, missingFeature})
	require.Len(t, cleaned, 2)
	assert.Equal(t, 2, cleaned[0].Line)
	assert.Equal(t, 5, cleaned[1].Line)
	assert.Equal(t, "Unknown", cleaned[1].Features[0])
	assert.Len(t, cleaner.GetIssues(0), 2)

	stats := cleaner.GetStats()
	assert.Equal(t, int64(4), stats.TotalProcessed)
	assert.Equal(t, int64(2), stats.Passed)
	assert.Equal(t, int64(2), stats.Rejected)
	assert.Equal(t, int64(1), stats.Corrected)
	assert.Equal(t, int64(1), stats.Issues["target_presence"])
	assert.Equal(t, int64(1), stats.Issues["positive_target"])

	recent := cleaner.GetIssues(1)
	require.Len(t, recent, 1)
	assert.Equal(t, 4, recent[0].Line)
}

func TestDataCleanerCapsRecordedIssues(t *testing.T) {
	cleaner := NewDataCleaner("Unknown")

	points := make([]*DataPoint, maxRecordedIssues+500)
	for i := range points {
		p := validPoint()
		p.Line = i + 2
		p.Targets[0] = 0
		points[i] = p
	}

	assert.Empty(t, cleaner.Clean(points))
	assert.Len(t, cleaner.GetIssues(0), maxRecordedIssues)
	assert.Equal(t, int64(len(points)), cleaner.GetStats().Rejected)
	assert.Equal(t, int64(len(points)), cleaner.GetStats().Issues["positive_target"])
}
