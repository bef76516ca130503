package domain

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func TestProjectEntry_SplitsDeductionAcrossSubEntries(t *testing.T) {
	entry := &Entry{ID: "e1", Number: "10,20,30", Type: EntryTypeSingle, FirstAmount: 300}
	deductions := []*AdminDeduction{{ID: "d1", EntryID: "e1", DeductedFirst: 30, Kind: DeductionKindAdjustment}}

	view := ProjectEntry(entry, deductions)

	if len(view.SubEntries) != 3 {
		t.Fatalf("expected 3 sub-entries, got %d", len(view.SubEntries))
	}
	for _, sub := range view.SubEntries {
		if !sub.FirstAmount.Equal(decimal.NewFromInt(90)) {
			t.Fatalf("sub-entry %s: expected 90, got %s", sub.Number, sub.FirstAmount)
		}
	}
	if entry.FirstAmount != 300 || entry.SecondAmount != 0 {
		t.Fatalf("stored entry was modified: %+v", entry)
	}
	if !view.DisplayFirst.Equal(decimal.NewFromInt(270)) {
		t.Fatalf("expected display total 270, got %s", view.DisplayFirst)
	}
}

func TestProjectEntry_SumsAndFloors(t *testing.T) {
	entry := &Entry{ID: "e1", Number: "5 6", FirstAmount: 100, SecondAmount: 40}
	deductions := []*AdminDeduction{
		{ID: "d1", EntryID: "e1", DeductedFirst: 60, DeductedSecond: 10},
		{ID: "d2", EntryID: "e1", DeductedFirst: 80},
		{ID: "d3", EntryID: "other", DeductedFirst: 1000},
	}

	view := ProjectEntry(entry, deductions)

	if view.Deduction.First != 140 || view.Deduction.Second != 10 {
		t.Fatalf("unexpected effective deduction %+v", view.Deduction)
	}
	for _, sub := range view.SubEntries {
		if !sub.FirstAmount.IsZero() {
			t.Fatalf("expected first amount floored at 0, got %s", sub.FirstAmount)
		}
		if !sub.SecondAmount.Equal(decimal.NewFromInt(15)) {
			t.Fatalf("expected second amount 15, got %s", sub.SecondAmount)
		}
	}
}

func TestProjectAccount_Totals(t *testing.T) {
	entries := []*Entry{
		{ID: "a", Number: "1", FirstAmount: 100, SecondAmount: 50},
		{ID: "b", Number: "2,3", FirstAmount: 60},
	}
	deductions := []*AdminDeduction{{ID: "d", EntryID: "a", DeductedSecond: 20}}

	view := ProjectAccount("acct", entries, deductions)

	if view.StoredFirst != 160 || view.StoredSecond != 50 {
		t.Fatalf("unexpected stored totals %d/%d", view.StoredFirst, view.StoredSecond)
	}
	if !view.DisplaySecond.Equal(decimal.NewFromInt(30)) {
		t.Fatalf("expected display second 30, got %s", view.DisplaySecond)
	}
	if view.DeductedSecond != 20 {
		t.Fatalf("expected deducted second 20, got %d", view.DeductedSecond)
	}
}

func TestAdminDeduction_Validate(t *testing.T) {
	ok := &AdminDeduction{DeductedFirst: 1, Kind: DeductionKindWriteOff}
	if err := ok.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	empty := &AdminDeduction{Kind: DeductionKindAdjustment}
	if err := empty.Validate(); !errors.Is(err, ErrInvalidDeduction) {
		t.Fatalf("expected ErrInvalidDeduction, got %v", err)
	}
	negative := &AdminDeduction{DeductedSecond: -3, Kind: DeductionKindAdjustment}
	if err := negative.Validate(); !errors.Is(err, ErrNegativeAmount) {
		t.Fatalf("expected ErrNegativeAmount, got %v", err)
	}
}
