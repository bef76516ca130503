package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// DeductionKind labels why an admin reduced an entry's displayed amount.
type DeductionKind string

const (
	DeductionKindAdjustment DeductionKind = "adjustment"
	DeductionKindWriteOff   DeductionKind = "write_off"
)

// AdminDeduction is a display-only reduction of an entry's amounts. It never
// changes the stored entry or the account balance.
type AdminDeduction struct {
	ID             string        `json:"id"`
	EntryID        string        `json:"entry_id"`
	AccountID      string        `json:"account_id"`
	AdminID        string        `json:"admin_id"`
	DeductedFirst  int64         `json:"deducted_first"`
	DeductedSecond int64         `json:"deducted_second"`
	Kind           DeductionKind `json:"kind"`
	Metadata       JSON          `json:"metadata,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
}

func (d *AdminDeduction) RecordID() string        { return d.ID }
func (d *AdminDeduction) RecordAccountID() string { return d.AccountID }

// Validate checks the amounts and kind.
func (d *AdminDeduction) Validate() error {
	if d.DeductedFirst < 0 || d.DeductedSecond < 0 {
		return ErrNegativeAmount
	}
	if d.DeductedFirst == 0 && d.DeductedSecond == 0 {
		return ErrInvalidDeduction
	}
	switch d.Kind {
	case DeductionKindAdjustment, DeductionKindWriteOff:
	default:
		return ErrInvalidDeduction
	}
	return ValidateMetadata(d.Metadata)
}

// EffectiveDeduction is the sum of every deduction against one entry.
type EffectiveDeduction struct {
	First  int64 `json:"first"`
	Second int64 `json:"second"`
}

// SumDeductions adds up the deductions that target entryID.
func SumDeductions(entryID string, deductions []*AdminDeduction) EffectiveDeduction {
	var eff EffectiveDeduction
	for _, d := range deductions {
		if d.EntryID != entryID {
			continue
		}
		eff.First += d.DeductedFirst
		eff.Second += d.DeductedSecond
	}
	return eff
}

// SubEntryView is one virtual sub-entry as an admin sees it.
type SubEntryView struct {
	Number       string          `json:"number"`
	FirstAmount  decimal.Decimal `json:"first_amount"`
	SecondAmount decimal.Decimal `json:"second_amount"`
}

// EntryView is the admin projection of a stored entry.
type EntryView struct {
	Entry      *Entry             `json:"entry"`
	Deduction  EffectiveDeduction `json:"deduction"`
	SubEntries []SubEntryView     `json:"sub_entries"`
	// Display totals are the sums over SubEntries.
	DisplayFirst  decimal.Decimal `json:"display_first"`
	DisplaySecond decimal.Decimal `json:"display_second"`
}

// ProjectEntry builds the admin view of entry. The entry's amounts and the
// effective deduction are divided evenly across its N sub-entries and each
// sub-entry is floored at zero independently.
func ProjectEntry(entry *Entry, deductions []*AdminDeduction) EntryView {
	eff := SumDeductions(entry.ID, deductions)
	numbers := entry.Numbers()
	if len(numbers) == 0 {
		numbers = []string{entry.Number}
	}
	n := decimal.NewFromInt(int64(len(numbers)))

	first := decimal.NewFromInt(entry.FirstAmount).Div(n).Sub(decimal.NewFromInt(eff.First).Div(n))
	second := decimal.NewFromInt(entry.SecondAmount).Div(n).Sub(decimal.NewFromInt(eff.Second).Div(n))
	first = decimal.Max(first, decimal.Zero)
	second = decimal.Max(second, decimal.Zero)

	view := EntryView{
		Entry:         entry,
		Deduction:     eff,
		SubEntries:    make([]SubEntryView, 0, len(numbers)),
		DisplayFirst:  decimal.Zero,
		DisplaySecond: decimal.Zero,
	}
	for _, num := range numbers {
		view.SubEntries = append(view.SubEntries, SubEntryView{
			Number:       num,
			FirstAmount:  first,
			SecondAmount: second,
		})
		view.DisplayFirst = view.DisplayFirst.Add(first)
		view.DisplaySecond = view.DisplaySecond.Add(second)
	}
	return view
}

// AdminView is the deduction-adjusted projection of an account's entries.
type AdminView struct {
	AccountID      string          `json:"account_id"`
	Entries        []EntryView     `json:"entries"`
	StoredFirst    int64           `json:"stored_first"`
	StoredSecond   int64           `json:"stored_second"`
	DisplayFirst   decimal.Decimal `json:"display_first"`
	DisplaySecond  decimal.Decimal `json:"display_second"`
	DeductedFirst  int64           `json:"deducted_first"`
	DeductedSecond int64           `json:"deducted_second"`
}

// ProjectAccount projects every entry of an account.
func ProjectAccount(accountID string, entries []*Entry, deductions []*AdminDeduction) AdminView {
	view := AdminView{
		AccountID:     accountID,
		Entries:       make([]EntryView, 0, len(entries)),
		DisplayFirst:  decimal.Zero,
		DisplaySecond: decimal.Zero,
	}
	for _, e := range entries {
		ev := ProjectEntry(e, deductions)
		view.Entries = append(view.Entries, ev)
		view.StoredFirst += e.FirstAmount
		view.StoredSecond += e.SecondAmount
		view.DeductedFirst += ev.Deduction.First
		view.DeductedSecond += ev.Deduction.Second
		view.DisplayFirst = view.DisplayFirst.Add(ev.DisplayFirst)
		view.DisplaySecond = view.DisplaySecond.Add(ev.DisplaySecond)
	}
	return view
}
