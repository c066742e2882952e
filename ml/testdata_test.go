package ml

// ladder is a 10-row set with two values per field. Row i's math score is
// 100*(i+1); other targets are derived from it so every column differs.
func ladder() TrainingSet {
	rows := [][NumFields]string{
		{"a", "a", "a", "a", "a"},
		{"a", "a", "a", "a", "b"},
		{"a", "a", "a", "b", "b"},
		{"a", "a", "b", "b", "b"},
		{"a", "b", "b", "b", "b"},
		{"b", "b", "b", "b", "b"},
		{"b", "a", "a", "a", "a"},
		{"b", "b", "a", "a", "a"},
		{"b", "b", "b", "a", "a"},
		{"b", "b", "b", "b", "a"},
	}
	ts := make(TrainingSet, len(rows))
	for i, r := range rows {
		base := float64(100 * (i + 1))
		ts[i] = Example{
			Features: RecordFromValues(r),
			Targets:  TargetVector{Math: base, NaturalSciences: base + 1, Languages: base + 2, HumanSciences: base + 3, Essay: base / 2},
		}
	}
	return ts
}

// referenceMean ranks rows by field mismatches (squared indicator distance is
// twice that count), breaks ties by row index and averages the first k.
func referenceMean(ts TrainingSet, q FeatureRecord, k int) TargetVector {
	type ranked struct{ idx, miss int }
	order := make([]ranked, len(ts))
	qv := q.Values()
	for i, ex := range ts {
		miss := 0
		for j, v := range ex.Features.Values() {
			if v != qv[j] {
				miss++
			}
		}
		order[i] = ranked{i, miss}
	}
	for i := 1; i < len(order); i++ {
		for j := i; j > 0 && order[j-1].miss > order[j].miss; j-- {
			order[j-1], order[j] = order[j], order[j-1]
		}
	}
	var sum [NumTargets]float64
	for _, r := range order[:k] {
		for j, v := range ts[r.idx].Targets.Values() {
			sum[j] += v
		}
	}
	for j := range sum {
		sum[j] /= float64(k)
	}
	return TargetFromValues(sum).Rounded()
}
