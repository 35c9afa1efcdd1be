package google

import (
	"fmt"
	"strings"

	"ricorrenti/internal/core"
	"ricorrenti/internal/ledger"
)

// parseLedger converts a values matrix (as returned by the Sheets API) into
// transactions. The first non-empty row is the header.
func parseLedger(values [][]interface{}, cols ledger.Columns) ([]core.Transaction, ledger.Drops, error) {
	rows := make([][]string, 0, len(values))
	for _, v := range values {
		row := toStrings(v)
		if isBlank(row) {
			continue
		}
		rows = append(rows, row)
	}
	if len(rows) == 0 {
		return nil, ledger.Drops{}, nil
	}

	mapper, err := ledger.NewRowMapper(cols, rows[0])
	if err != nil {
		return nil, ledger.Drops{}, err
	}
	return mapper.MapAll(rows[1:]), mapper.Drops(), nil
}

// reportValues lays out the summary table with a run caption above it.
func reportValues(report *core.Report) [][]interface{} {
	values := make([][]interface{}, 0, len(report.Groups)+2)
	values = append(values, []interface{}{
		"run_id", report.RunID,
		"generated_at", report.GeneratedAt.UTC().Format("2006-01-02T15:04:05Z"),
		"match_mode", string(report.MatchMode),
	})
	values = append(values, toCells(ledger.SummaryHeader))
	for _, g := range report.Groups {
		values = append(values, toCells(ledger.SummaryRow(g)))
	}
	return values
}

// sheetRange builds an A1 range, quoting sheet names that need it.
func sheetRange(sheet, cells string) string {
	if strings.ContainsAny(sheet, " '!:") {
		sheet = "'" + strings.ReplaceAll(sheet, "'", "''") + "'"
	}
	return sheet + "!" + cells
}

func toStrings(in []interface{}) []string {
	out := make([]string, len(in))
	for i, v := range in {
		if s, ok := v.(string); ok {
			out[i] = s
			continue
		}
		out[i] = fmt.Sprint(v)
	}
	return out
}

func toCells(in []string) []interface{} {
	out := make([]interface{}, len(in))
	for i, v := range in {
		out[i] = v
	}
	return out
}

func isBlank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
