package core

import (
	"testing"
	"time"
)

func TestDateValidate(t *testing.T) {
	cases := []struct {
		d  Date
		ok bool
	}{
		{NewDate(2025, 1, 1), true},
		{NewDate(2025, 12, 31), true},
		{Date{Time: time.Time{}}, false}, // zero time
	}
	for i, tc := range cases {
		err := tc.d.Validate()
		if tc.ok && err != nil {
			t.Fatalf("case %d expected ok, got %v", i, err)
		}
		if !tc.ok && err == nil {
			t.Fatalf("case %d expected error", i)
		}
	}
}

func TestDateDaysUntil(t *testing.T) {
	tests := []struct {
		name string
		from Date
		to   Date
		want int
	}{
		{"same day", NewDate(2024, 1, 1), NewDate(2024, 1, 1), 0},
		{"one month", NewDate(2024, 1, 1), NewDate(2024, 2, 1), 31},
		{"leap february", NewDate(2024, 2, 1), NewDate(2024, 3, 1), 29},
		{"one year", NewDate(2023, 3, 1), NewDate(2024, 3, 1), 366},
		{"across DST in local zone", DateOf(time.Date(2024, 3, 30, 23, 0, 0, 0, time.FixedZone("CET", 3600))), NewDate(2024, 4, 1), 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.from.DaysUntil(tt.to); got != tt.want {
				t.Errorf("DaysUntil() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestMoneyValidate(t *testing.T) {
	if err := (Money{Cents: 1}).Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
	if err := (Money{Cents: 0}).Validate(); err == nil {
		t.Fatalf("expected error for zero")
	}
}

func TestTransactionValidate(t *testing.T) {
	good := Transaction{
		Date:        NewDate(2025, 1, 1),
		Description: "NETFLIX.COM",
		Amount:      Money{Cents: 1549},
	}
	if err := good.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}

	bads := []Transaction{
		{Date: Date{Time: time.Time{}}, Description: "a", Amount: Money{Cents: 1}}, // zero date
		{Date: NewDate(2025, 1, 1), Description: "  ", Amount: Money{Cents: 1}},
		{Date: NewDate(2025, 1, 1), Description: "a", Amount: Money{Cents: 0}},
		{Date: NewDate(2025, 1, 1), Description: "a", Amount: Money{Cents: -500}},
	}
	for i, tx := range bads {
		if err := tx.Validate(); err == nil {
			t.Fatalf("case %d expected error", i)
		}
	}
}
