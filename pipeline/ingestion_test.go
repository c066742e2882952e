package pipeline

import (
	"bytes"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scorecast/ml"
)

func TestParseDatasetSelectsColumnsByName(t *testing.T) {
	header := []string{"NU_NOTA_REDACAO", "SG_UF_PROVA", "X", "Q006", "NU_NOTA_MT", "Q002", "TP_ESCOLA", "NU_NOTA_CN", "TP_COR_RACA", "NU_NOTA_LC", "NU_NOTA_CH"}
	rows := [][]string{
		{"620", "SP", "ignored", "C", "512,5", "B", "2", "480.1", "1", "501", "499"},
		{"", "BA", "x", "", "abc", "A", "1", "0", "3", "1", "2"},
	}
	ds, err := ParseDataset(strings.NewReader(csvOf(header, rows)), ReadOptions{Encoding: "utf-8"})
	require.NoError(t, err)
	require.Len(t, ds.Points, 2)

	p := ds.Points[0]
	assert.Equal(t, 2, p.Line)
	assert.Equal(t, [ml.NumFields]string{"B", "C", "2", "1", "SP"}, p.Features)
	assert.Equal(t, [ml.NumTargets]float64{512.5, 480.1, 501, 499, 620}, p.Targets)

	q := ds.Points[1]
	assert.True(t, q.Missing[1], "empty Q006 is missing")
	assert.Equal(t, "", q.Features[1])
	assert.True(t, math.IsNaN(q.Targets[0]), "non-numeric score is missing")
	assert.True(t, math.IsNaN(q.Targets[4]), "empty score is missing")
	assert.Equal(t, 0.0, q.Targets[1])
}

func TestParseDatasetLatin1(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteString(strings.Join(testHeader, ";") + "\n")
	buf.WriteString("1;N\xe3o sei;A;1;1;SP;500;500;500;500;500\n")

	ds, err := ParseDataset(&buf, ReadOptions{})
	require.NoError(t, err)
	require.Len(t, ds.Points, 1)
	assert.Equal(t, "Não sei", ds.Points[0].Features[0])
}

func TestParseDatasetUTF8BOM(t *testing.T) {
	input := "\ufeff" + csvOf(testHeader[1:], [][]string{{"A", "B", "1", "1", "SP", "1", "2", "3", "4", "5"}})
	ds, err := ParseDataset(strings.NewReader(input), ReadOptions{Encoding: "utf-8"})
	require.NoError(t, err)
	assert.Equal(t, "A", ds.Points[0].Features[0])
}

func TestParseDatasetUTF8BOMUnderLatin1Default(t *testing.T) {
	input := "\xef\xbb\xbf" + csvOf(testHeader, [][]string{{"1", "N\u00e3o sei", "B", "1", "1", "SP", "1", "2", "3", "4", "5"}})
	ds, err := ParseDataset(strings.NewReader(input), ReadOptions{})
	require.NoError(t, err)
	require.Len(t, ds.Points, 1)
	assert.Equal(t, "Não sei", ds.Points[0].Features[0])
	assert.Equal(t, "SP", ds.Points[0].Features[4])
}

func TestParseDatasetShortRowIsMissing(t *testing.T) {
	input := csvOf(testHeader, [][]string{{"1", "A", "B"}})
	ds, err := ParseDataset(strings.NewReader(input), ReadOptions{Encoding: "utf-8"})
	require.NoError(t, err)
	p := ds.Points[0]
	assert.True(t, p.Missing[2])
	assert.True(t, math.IsNaN(p.Targets[0]))
}

func TestParseDatasetErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		opts  ReadOptions
		msg   string
	}{
		{name: "empty", input: "", msg: "empty"},
		{name: "missing columns", input: "Q002;Q006;TP_ESCOLA\nA;B;1\n", msg: "TP_COR_RACA"},
		{name: "bad encoding", input: csvOf(testHeader, nil), opts: ReadOptions{Encoding: "klingon"}, msg: "encoding"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseDataset(strings.NewReader(tt.input), tt.opts)
			require.Error(t, err)
			var de *ml.DataError
			assert.True(t, errors.As(err, &de))
			assert.Contains(t, err.Error(), tt.msg)
		})
	}
}

func TestReadDataset(t *testing.T) {
	path := filepath.Join(t.TempDir(), "enem.csv")
	require.NoError(t, os.WriteFile(path, []byte(csvOf(testHeader, ladderRows())), 0o600))

	ds, err := ReadDataset(path, ReadOptions{Encoding: "utf-8"})
	require.NoError(t, err)
	assert.Equal(t, path, ds.Source)
	assert.Len(t, ds.Points, 10)

	_, err = ReadDataset(filepath.Join(t.TempDir(), "missing.csv"), ReadOptions{})
	var de *ml.DataError
	assert.ErrorAs(t, err, &de)
}
