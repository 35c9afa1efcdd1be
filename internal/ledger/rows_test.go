package ledger

import (
	"errors"
	"testing"

	"ricorrenti/internal/core"
)

func TestNewRowMapper_MissingColumns(t *testing.T) {
	_, err := NewRowMapper(DefaultColumns(), []string{"Post Date", "Memo", "Credit"})
	if !errors.Is(err, ErrMissingColumn) {
		t.Fatalf("error = %v, want ErrMissingColumn", err)
	}
}

func TestRowMapper_Map(t *testing.T) {
	header := []string{"\ufeffpost date", " Description ", "Credit", "DEBIT"}
	m, err := NewRowMapper(DefaultColumns(), header)
	if err != nil {
		t.Fatalf("NewRowMapper() error = %v", err)
	}

	tests := []struct {
		name   string
		row    []string
		wantOK bool
		want   core.Transaction
	}{
		{
			name:   "iso date",
			row:    []string{"2024-01-01", "NETFLIX.COM", "", "15.49"},
			wantOK: true,
			want:   core.Transaction{Date: core.NewDate(2024, 1, 1), Description: "NETFLIX.COM", Amount: core.Money{Cents: 1549}},
		},
		{
			name:   "us date and currency symbol",
			row:    []string{"02/15/2024", "  SPOTIFY USA ", "", "$1,234.50"},
			wantOK: true,
			want:   core.Transaction{Date: core.NewDate(2024, 2, 15), Description: "SPOTIFY USA", Amount: core.Money{Cents: 123450}},
		},
		{name: "credit row", row: []string{"2024-01-02", "REFUND", "20.00", ""}, wantOK: false},
		{name: "negative debit", row: []string{"2024-01-02", "REVERSAL", "", "-5.00"}, wantOK: false},
		{name: "zero debit", row: []string{"2024-01-02", "FEE WAIVED", "", "0.00"}, wantOK: false},
		{name: "bad date", row: []string{"yesterday", "COFFEE", "", "3.50"}, wantOK: false},
		{name: "empty description", row: []string{"2024-01-02", "   ", "", "3.50"}, wantOK: false},
		{name: "short row", row: []string{"2024-01-02", "COFFEE"}, wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := m.Map(tt.row)
			if ok != tt.wantOK {
				t.Fatalf("Map() ok = %v, want %v", ok, tt.wantOK)
			}
			if !ok {
				return
			}
			if !got.Date.Equal(tt.want.Date.Time) || got.Description != tt.want.Description || got.Amount != tt.want.Amount {
				t.Errorf("Map() = %+v, want %+v", got, tt.want)
			}
		})
	}

	drops := m.Drops()
	if drops.BadAmount != 4 || drops.BadDate != 1 || drops.EmptyDescription != 1 || drops.Total() != 6 {
		t.Errorf("Drops() = %+v", drops)
	}
}

func TestRowMapper_DateFallback(t *testing.T) {
	fallback := func(cell string) (core.Date, error) {
		if cell == "serial" {
			return core.NewDate(2024, 3, 1), nil
		}
		return core.Date{}, ErrBadDate
	}
	m, err := NewRowMapper(DefaultColumns(), []string{"Post Date", "Description", "Debit"}, WithDateFallback(fallback))
	if err != nil {
		t.Fatal(err)
	}

	got := m.MapAll([][]string{
		{"2024-01-01", "A", "1.00"},
		{"serial", "B", "2.00"},
		{"nope", "C", "3.00"},
	})
	if len(got) != 2 {
		t.Fatalf("MapAll() returned %d transactions, want 2", len(got))
	}
	if !got[1].Date.Equal(core.NewDate(2024, 3, 1).Time) {
		t.Errorf("fallback date = %s", got[1].Date)
	}
}

func TestSummaryRow(t *testing.T) {
	g := core.RecurringGroup{
		VendorKey: "NETFLIX.COM",
		Amount:    core.MustParseMoney("15.49").Decimal(),
		Count:     5,
		FirstDate: core.NewDate(2024, 1, 1),
		LastDate:  core.NewDate(2024, 5, 1),
		Cadence:   &core.Cadence{MedianGapDays: 30, Pattern: core.Monthly},
	}
	want := []string{"NETFLIX.COM", "15.49", "5", "2024-01-01", "2024-05-01", "30", "Monthly"}
	got := SummaryRow(g)
	if len(got) != len(want) {
		t.Fatalf("SummaryRow() = %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("cell %d (%s) = %q, want %q", i, SummaryHeader[i], got[i], want[i])
		}
	}

	g.Cadence = nil
	if got := SummaryRow(g); got[5] != "" || got[6] != "" {
		t.Errorf("cadence cells without cadence = %q %q, want empty", got[5], got[6])
	}
}
