package pipeline

import (
	"fmt"
	"strings"
)

var testHeader = []string{
	"NU_INSCRICAO", "Q002", "Q006", "TP_ESCOLA", "TP_COR_RACA", "SG_UF_PROVA",
	"NU_NOTA_MT", "NU_NOTA_CN", "NU_NOTA_LC", "NU_NOTA_CH", "NU_NOTA_REDACAO",
}

// ladderRows mirrors the ten-row fixture used by the ml tests: two values per
// field and math score 100*(i+1).
func ladderRows() [][]string {
	features := [][5]string{
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
	rows := make([][]string, len(features))
	for i, f := range features {
		base := 100 * (i + 1)
		rows[i] = []string{
			fmt.Sprint(1000 + i), f[0], f[1], f[2], f[3], f[4],
			fmt.Sprint(base), fmt.Sprint(base + 1), fmt.Sprint(base + 2), fmt.Sprint(base + 3), fmt.Sprint(float64(base) / 2),
		}
	}
	return rows
}

func csvOf(header []string, rows [][]string) string {
	var b strings.Builder
	b.WriteString(strings.Join(header, ";"))
	b.WriteString("\n")
	for _, r := range rows {
		b.WriteString(strings.Join(r, ";"))
		b.WriteString("\n")
	}
	return b.String()
}
