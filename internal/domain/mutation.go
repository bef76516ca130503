package domain

import (
	"encoding/json"
	"fmt"
)

// Entity tags the collection a queued mutation targets.
type Entity string

const (
	EntityAccount        Entity = "account"
	EntityEntry          Entity = "entry"
	EntityBalanceHistory Entity = "balance_history"
	EntityDeduction      Entity = "admin_deduction"
	EntitySetting        Entity = "setting"
	EntityAdminAction    Entity = "admin_action"
)

// Operation is the kind of write a mutation performs.
type Operation string

const (
	OperationCreate Operation = "create"
	OperationUpdate Operation = "update"
	OperationDelete Operation = "delete"
)

// MutationKind is the discriminator of the Mutation union.
type MutationKind string

const (
	KindEntryCreated      MutationKind = "entry.create"
	KindEntryUpdated      MutationKind = "entry.update"
	KindEntryDeleted      MutationKind = "entry.delete"
	KindBalanceAdjusted   MutationKind = "balance.adjust"
	KindSpentReset        MutationKind = "spent.reset"
	KindSpentRepaired     MutationKind = "spent.repair"
	KindHistoryReset      MutationKind = "history.reset"
	KindDeductionCreated  MutationKind = "deduction.create"
	KindDeductionDeleted  MutationKind = "deduction.delete"
	KindSettingUpdated    MutationKind = "setting.update"
	KindAdminActionLogged MutationKind = "admin_action.create"
)

// Mutation is a locally applied write awaiting remote confirmation. The set of
// implementations is closed; see the variants below.
type Mutation interface {
	Kind() MutationKind
	Entity() Entity
	Operation() Operation
	// RecordKeys lists the records the mutation touches. Two mutations that
	// share a key must reach the remote in queue order.
	RecordKeys() []string
	mutation()
}

// AccountDelta is implemented by mutations that change an account's balance
// or amount spent. ApplyTo runs the ledger math against acct.
type AccountDelta interface {
	Mutation
	TargetAccount() string
	ApplyTo(acct *Account) error
}

// AccountKey is the record key of an account.
func AccountKey(id string) string { return "account:" + id }

// EntryKey is the record key of an entry.
func EntryKey(id string) string { return "entry:" + id }

// HistoryKey is the record key of a balance history record.
func HistoryKey(id string) string { return "balance_history:" + id }

// DeductionKey is the record key of an admin deduction.
func DeductionKey(id string) string { return "admin_deduction:" + id }

// SettingKey is the record key of a setting.
func SettingKey(key string) string { return "setting:" + key }

// EntryCreated charges the entry total to the account and stores the entry.
type EntryCreated struct {
	Entry *Entry `json:"entry"`
}

func (EntryCreated) Kind() MutationKind      { return KindEntryCreated }
func (EntryCreated) Entity() Entity          { return EntityEntry }
func (EntryCreated) Operation() Operation    { return OperationCreate }
func (m EntryCreated) TargetAccount() string { return m.Entry.AccountID }
func (m EntryCreated) RecordKeys() []string {
	return []string{EntryKey(m.Entry.ID), AccountKey(m.Entry.AccountID)}
}
func (m EntryCreated) ApplyTo(acct *Account) error { return acct.Spend(m.Entry.Total()) }
func (EntryCreated) mutation()                     {}

// EntryUpdated replaces an entry and moves the total difference.
type EntryUpdated struct {
	Entry    *Entry `json:"entry"`
	Previous *Entry `json:"previous"`
}

func (EntryUpdated) Kind() MutationKind      { return KindEntryUpdated }
func (EntryUpdated) Entity() Entity          { return EntityEntry }
func (EntryUpdated) Operation() Operation    { return OperationUpdate }
func (m EntryUpdated) TargetAccount() string { return m.Entry.AccountID }
func (m EntryUpdated) RecordKeys() []string {
	return []string{EntryKey(m.Entry.ID), AccountKey(m.Entry.AccountID)}
}
func (m EntryUpdated) ApplyTo(acct *Account) error {
	return acct.ApplyEntryEdit(m.Previous.Total(), m.Entry.Total())
}
func (EntryUpdated) mutation() {}

// EntryDeleted refunds the entry total and removes the entry along with the
// deductions that targeted it.
type EntryDeleted struct {
	Entry      *Entry            `json:"entry"`
	Deductions []*AdminDeduction `json:"deductions,omitempty"`
}

func (EntryDeleted) Kind() MutationKind      { return KindEntryDeleted }
func (EntryDeleted) Entity() Entity          { return EntityEntry }
func (EntryDeleted) Operation() Operation    { return OperationDelete }
func (m EntryDeleted) TargetAccount() string { return m.Entry.AccountID }
func (m EntryDeleted) RecordKeys() []string {
	return []string{EntryKey(m.Entry.ID), AccountKey(m.Entry.AccountID)}
}
func (m EntryDeleted) ApplyTo(acct *Account) error { return acct.Refund(m.Entry.Total()) }
func (EntryDeleted) mutation()                     {}

// BalanceAdjusted is an explicit top-up or withdrawal with its history record.
type BalanceAdjusted struct {
	Record *BalanceHistoryRecord `json:"record"`
}

func (BalanceAdjusted) Kind() MutationKind      { return KindBalanceAdjusted }
func (BalanceAdjusted) Entity() Entity          { return EntityBalanceHistory }
func (BalanceAdjusted) Operation() Operation    { return OperationCreate }
func (m BalanceAdjusted) TargetAccount() string { return m.Record.AccountID }
func (m BalanceAdjusted) RecordKeys() []string {
	return []string{HistoryKey(m.Record.ID), AccountKey(m.Record.AccountID)}
}
func (m BalanceAdjusted) ApplyTo(acct *Account) error { return m.Record.Apply(acct) }
func (BalanceAdjusted) mutation()                     {}

// SpentReset zeroes amount spent.
type SpentReset struct {
	AccountID     string `json:"account_id"`
	PreviousSpent int64  `json:"previous_spent"`
}

func (SpentReset) Kind() MutationKind          { return KindSpentReset }
func (SpentReset) Entity() Entity              { return EntityAccount }
func (SpentReset) Operation() Operation        { return OperationUpdate }
func (m SpentReset) TargetAccount() string     { return m.AccountID }
func (m SpentReset) RecordKeys() []string      { return []string{AccountKey(m.AccountID)} }
func (SpentReset) ApplyTo(acct *Account) error { acct.ResetSpent(); return nil }
func (SpentReset) mutation()                   {}

// SpentRepaired overwrites amount spent with the sum of the account's entry
// totals. Spent is the locally computed sum; the remote recomputes its own.
type SpentRepaired struct {
	AccountID     string `json:"account_id"`
	Spent         int64  `json:"spent"`
	PreviousSpent int64  `json:"previous_spent"`
}

func (SpentRepaired) Kind() MutationKind            { return KindSpentRepaired }
func (SpentRepaired) Entity() Entity                { return EntityAccount }
func (SpentRepaired) Operation() Operation          { return OperationUpdate }
func (m SpentRepaired) TargetAccount() string       { return m.AccountID }
func (m SpentRepaired) RecordKeys() []string        { return []string{AccountKey(m.AccountID)} }
func (m SpentRepaired) ApplyTo(acct *Account) error { acct.SetSpent(m.Spent); return nil }
func (SpentRepaired) mutation()                     {}

// HistoryReset deletes every entry of the account and their deductions, then
// zeroes amount spent. The balance is left alone.
type HistoryReset struct {
	AccountID     string            `json:"account_id"`
	Entries       []*Entry          `json:"entries,omitempty"`
	Deductions    []*AdminDeduction `json:"deductions,omitempty"`
	PreviousSpent int64             `json:"previous_spent"`
}

func (HistoryReset) Kind() MutationKind          { return KindHistoryReset }
func (HistoryReset) Entity() Entity              { return EntityEntry }
func (HistoryReset) Operation() Operation        { return OperationDelete }
func (m HistoryReset) TargetAccount() string     { return m.AccountID }
func (HistoryReset) ApplyTo(acct *Account) error { acct.ResetSpent(); return nil }
func (m HistoryReset) RecordKeys() []string {
	keys := []string{AccountKey(m.AccountID)}
	for _, e := range m.Entries {
		keys = append(keys, EntryKey(e.ID))
	}
	return keys
}
func (HistoryReset) mutation() {}

// DeductionCreated stores an overlay deduction.
type DeductionCreated struct {
	Deduction *AdminDeduction `json:"deduction"`
}

func (DeductionCreated) Kind() MutationKind   { return KindDeductionCreated }
func (DeductionCreated) Entity() Entity       { return EntityDeduction }
func (DeductionCreated) Operation() Operation { return OperationCreate }
func (m DeductionCreated) RecordKeys() []string {
	return []string{DeductionKey(m.Deduction.ID), EntryKey(m.Deduction.EntryID)}
}
func (DeductionCreated) mutation() {}

// DeductionDeleted undoes an overlay deduction.
type DeductionDeleted struct {
	Deduction *AdminDeduction `json:"deduction"`
}

func (DeductionDeleted) Kind() MutationKind   { return KindDeductionDeleted }
func (DeductionDeleted) Entity() Entity       { return EntityDeduction }
func (DeductionDeleted) Operation() Operation { return OperationDelete }
func (m DeductionDeleted) RecordKeys() []string {
	return []string{DeductionKey(m.Deduction.ID), EntryKey(m.Deduction.EntryID)}
}
func (DeductionDeleted) mutation() {}

// SettingUpdated upserts a setting. Previous is nil when the key was unset.
type SettingUpdated struct {
	Setting  *Setting `json:"setting"`
	Previous *Setting `json:"previous,omitempty"`
}

func (SettingUpdated) Kind() MutationKind     { return KindSettingUpdated }
func (SettingUpdated) Entity() Entity         { return EntitySetting }
func (SettingUpdated) Operation() Operation   { return OperationUpdate }
func (m SettingUpdated) RecordKeys() []string { return []string{SettingKey(m.Setting.Key)} }
func (SettingUpdated) mutation()              {}

// AdminActionLogged appends an audit record.
type AdminActionLogged struct {
	Entry *AdminActionLogEntry `json:"entry"`
}

func (AdminActionLogged) Kind() MutationKind     { return KindAdminActionLogged }
func (AdminActionLogged) Entity() Entity         { return EntityAdminAction }
func (AdminActionLogged) Operation() Operation   { return OperationCreate }
func (m AdminActionLogged) RecordKeys() []string { return []string{"admin_action:" + m.Entry.ID} }
func (AdminActionLogged) mutation()              {}

type mutationEnvelope struct {
	Kind MutationKind    `json:"kind"`
	Data json.RawMessage `json:"data"`
}

// EncodeMutation serializes m with its kind discriminator.
func EncodeMutation(m Mutation) ([]byte, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s: %w", m.Kind(), err)
	}
	return json.Marshal(mutationEnvelope{Kind: m.Kind(), Data: data})
}

// DecodeMutation parses the output of EncodeMutation. Unknown kinds and
// payloads missing their record are rejected.
func DecodeMutation(payload []byte) (Mutation, error) {
	var env mutationEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, fmt.Errorf("failed to decode mutation envelope: %w", err)
	}

	var (
		m     Mutation
		err   error
		valid bool
	)
	switch env.Kind {
	case KindEntryCreated:
		var v EntryCreated
		err = json.Unmarshal(env.Data, &v)
		valid, m = v.Entry != nil, v
	case KindEntryUpdated:
		var v EntryUpdated
		err = json.Unmarshal(env.Data, &v)
		valid, m = v.Entry != nil && v.Previous != nil, v
	case KindEntryDeleted:
		var v EntryDeleted
		err = json.Unmarshal(env.Data, &v)
		valid, m = v.Entry != nil, v
	case KindBalanceAdjusted:
		var v BalanceAdjusted
		err = json.Unmarshal(env.Data, &v)
		valid, m = v.Record != nil, v
	case KindSpentReset:
		var v SpentReset
		err = json.Unmarshal(env.Data, &v)
		valid, m = v.AccountID != "", v
	case KindSpentRepaired:
		var v SpentRepaired
		err = json.Unmarshal(env.Data, &v)
		valid, m = v.AccountID != "", v
	case KindHistoryReset:
		var v HistoryReset
		err = json.Unmarshal(env.Data, &v)
		valid, m = v.AccountID != "", v
	case KindDeductionCreated:
		var v DeductionCreated
		err = json.Unmarshal(env.Data, &v)
		valid, m = v.Deduction != nil, v
	case KindDeductionDeleted:
		var v DeductionDeleted
		err = json.Unmarshal(env.Data, &v)
		valid, m = v.Deduction != nil, v
	case KindSettingUpdated:
		var v SettingUpdated
		err = json.Unmarshal(env.Data, &v)
		valid, m = v.Setting != nil, v
	case KindAdminActionLogged:
		var v AdminActionLogged
		err = json.Unmarshal(env.Data, &v)
		valid, m = v.Entry != nil, v
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMutation, env.Kind)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", env.Kind, err)
	}
	if !valid {
		return nil, fmt.Errorf("%w: %s payload is incomplete", ErrUnknownMutation, env.Kind)
	}
	return m, nil
}
