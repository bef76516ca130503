package domain

import (
	"errors"
	"reflect"
	"testing"
)

func TestSplitNumbers(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{in: "42", want: []string{"42"}},
		{in: "10,20,30", want: []string{"10", "20", "30"}},
		{in: "10, 20  30,,", want: []string{"10", "20", "30"}},
		{in: " \t", want: []string{}},
	}

	for _, tt := range tests {
		got := SplitNumbers(tt.in)
		if len(got) == 0 && len(tt.want) == 0 {
			continue
		}
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("SplitNumbers(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestEntry_Validate(t *testing.T) {
	tests := []struct {
		name    string
		entry   Entry
		wantErr error
	}{
		{name: "valid", entry: Entry{Number: "7", Type: EntryTypePair, FirstAmount: 10}},
		{name: "bad type", entry: Entry{Number: "7", Type: "quad"}, wantErr: ErrInvalidEntryType},
		{name: "negative amount", entry: Entry{Number: "7", Type: EntryTypeSingle, SecondAmount: -1}, wantErr: ErrNegativeAmount},
		{name: "empty number", entry: Entry{Number: " , ", Type: EntryTypePanel}, wantErr: ErrEmptyNumber},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.entry.Validate()
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestEntry_TotalAndBulk(t *testing.T) {
	e := &Entry{Number: "1 2", FirstAmount: 200, SecondAmount: 100}
	if e.Total() != 300 {
		t.Fatalf("expected total 300, got %d", e.Total())
	}
	if !e.IsBulk() {
		t.Fatal("expected a bulk entry")
	}
}
