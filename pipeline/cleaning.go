package pipeline

import (
	"fmt"
	"math"
	"sync"
	"time"

	"scorecast/ml"
)

const maxRecordedIssues = 1000

// CleaningRule inspects one point. A non-nil error rejects the point; a
// returned point replaces it for the following rules.
type CleaningRule interface {
	Apply(*DataPoint) (*DataPoint, error)
	Name() string
}

// QualityIssue records why a point was rejected.
type QualityIssue struct {
	Rule    string `json:"rule"`
	Line    int    `json:"line"`
	Message string `json:"message"`
}

// CleaningStats counts what a cleaner has seen.
type CleaningStats struct {
	TotalProcessed int64            `json:"total_processed"`
	Passed         int64            `json:"passed"`
	Rejected       int64            `json:"rejected"`
	Corrected      int64            `json:"corrected"`
	Issues         map[string]int64 `json:"issues"`
	LastClean      time.Time        `json:"last_clean"`
}

// DataCleaner drops rows that cannot be used as training signal and fills
// missing feature values.
type DataCleaner struct {
	rules []CleaningRule

	mu     sync.RWMutex
	issues []QualityIssue
	stats  CleaningStats
}

// NewDataCleaner returns a cleaner with the default rule set: every target
// must be present and strictly positive, and missing features become sentinel.
func NewDataCleaner(sentinel string) *DataCleaner {
	dc := &DataCleaner{
		stats: CleaningStats{Issues: make(map[string]int64)},
	}
	dc.AddRule(TargetPresenceRule{})
	dc.AddRule(PositiveTargetRule{})
	dc.AddRule(NewFeatureFillRule(sentinel))
	return dc
}

// AddRule appends rule; rules run in insertion order.
func (dc *DataCleaner) AddRule(rule CleaningRule) {
	dc.rules = append(dc.rules, rule)
}

// Clean returns the accepted points in input order. Rejections are counted
// in the stats; only the first maxRecordedIssues are kept for GetIssues.
func (dc *DataCleaner) Clean(points []*DataPoint) []*DataPoint {
	var cleaned []*DataPoint

	dc.mu.Lock()
	defer dc.mu.Unlock()

	for _, point := range points {
		dc.stats.TotalProcessed++
		original := point
		var pointIssues []QualityIssue

		for _, rule := range dc.rules {
			next, err := rule.Apply(point)
			if err != nil {
				pointIssues = append(pointIssues, QualityIssue{Rule: rule.Name(), Line: point.Line, Message: err.Error()})
				dc.stats.Issues[rule.Name()]++
				continue
			}
			if next != nil {
				point = next
			}
		}

		if len(pointIssues) > 0 {
			dc.stats.Rejected++
			if room := maxRecordedIssues - len(dc.issues); room > 0 {
				dc.issues = append(dc.issues, pointIssues[:min(room, len(pointIssues))]...)
			}
			continue
		}
		if point != original {
			dc.stats.Corrected++
		}
		dc.stats.Passed++
		cleaned = append(cleaned, point)
	}

	dc.stats.LastClean = time.Now()
	return cleaned
}

// GetStats returns a copy of the running counters.
func (dc *DataCleaner) GetStats() CleaningStats {
	dc.mu.RLock()
	defer dc.mu.RUnlock()

	stats := dc.stats
	stats.Issues = make(map[string]int64, len(dc.stats.Issues))
	for k, v := range dc.stats.Issues {
		stats.Issues[k] = v
	}
	return stats
}

// GetIssues returns up to limit of the most recent recorded issues.
func (dc *DataCleaner) GetIssues(limit int) []QualityIssue {
	dc.mu.RLock()
	defer dc.mu.RUnlock()

	if limit <= 0 || limit > len(dc.issues) {
		limit = len(dc.issues)
	}
	issues := make([]QualityIssue, limit)
	copy(issues, dc.issues[len(dc.issues)-limit:])
	return issues
}

// TargetPresenceRule rejects rows with any absent score.
type TargetPresenceRule struct{}

func (TargetPresenceRule) Name() string { return "target_presence" }

func (TargetPresenceRule) Apply(point *DataPoint) (*DataPoint, error) {
	for i, v := range point.Targets {
		if math.IsNaN(v) {
			return nil, fmt.Errorf("%s is missing", ml.TargetNames[i])
		}
	}
	return point, nil
}

// PositiveTargetRule rejects rows with any score <= 0: the candidate did not
// sit that part of the exam.
type PositiveTargetRule struct{}

func (PositiveTargetRule) Name() string { return "positive_target" }

func (PositiveTargetRule) Apply(point *DataPoint) (*DataPoint, error) {
	for i, v := range point.Targets {
		if v <= 0 {
			return nil, fmt.Errorf("%s is %.2f", ml.TargetNames[i], v)
		}
	}
	return point, nil
}

// FeatureFillRule replaces missing feature values with a sentinel category.
type FeatureFillRule struct {
	Sentinel string
}

func NewFeatureFillRule(sentinel string) FeatureFillRule {
	if sentinel == "" {
		sentinel = ml.DefaultSentinel
	}
	return FeatureFillRule{Sentinel: sentinel}
}

func (FeatureFillRule) Name() string { return "feature_fill" }

func (r FeatureFillRule) Apply(point *DataPoint) (*DataPoint, error) {
	filled := false
	out := *point
	for i, missing := range point.Missing {
		if missing {
			out.Features[i] = r.Sentinel
			out.Missing[i] = false
			filled = true
		}
	}
	if !filled {
		return point, nil
	}
	return &out, nil
}
