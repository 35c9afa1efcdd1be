package memory

import (
	"context"
	"testing"

	"ricorrenti/internal/core"
)

func TestStore_TransactionsSkipsInvalid(t *testing.T) {
	s := New(
		core.Transaction{Date: core.NewDate(2024, 1, 1), Description: "NETFLIX.COM", Amount: core.Money{Cents: 1549}},
		core.Transaction{Date: core.NewDate(2024, 1, 2), Description: "REFUND", Amount: core.Money{Cents: -500}},
		core.Transaction{Description: "NO DATE", Amount: core.Money{Cents: 100}},
	)

	txs, err := s.Transactions(context.Background())
	if err != nil {
		t.Fatalf("Transactions() error = %v", err)
	}
	if len(txs) != 1 || txs[0].Description != "NETFLIX.COM" {
		t.Errorf("Transactions() = %+v", txs)
	}

	txs[0].Description = "mutated"
	again, _ := s.Transactions(context.Background())
	if again[0].Description != "NETFLIX.COM" {
		t.Error("Transactions() should return a copy")
	}
}

func TestStore_Reports(t *testing.T) {
	s := New()
	if s.Last() != nil {
		t.Fatal("Last() on empty store should be nil")
	}
	for _, id := range []string{"a", "b"} {
		if err := s.WriteReport(context.Background(), &core.Report{RunID: id}); err != nil {
			t.Fatal(err)
		}
	}
	if got := len(s.Reports()); got != 2 {
		t.Errorf("Reports() has %d entries, want 2", got)
	}
	if s.Last().RunID != "b" {
		t.Errorf("Last().RunID = %s, want b", s.Last().RunID)
	}
}

func TestStore_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := New()
	if _, err := s.Transactions(ctx); err == nil {
		t.Error("Transactions() expected error")
	}
	if err := s.WriteReport(ctx, &core.Report{}); err == nil {
		t.Error("WriteReport() expected error")
	}
}
