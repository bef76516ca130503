package domain

import (
	"encoding/json"
	"fmt"
)

// Remote collections. The names match the remote tables and the local cache
// collections.
const (
	CollectionAccounts       = "accounts"
	CollectionEntries        = "entries"
	CollectionBalanceHistory = "balance_history"
	CollectionDeductions     = "admin_deductions"
	CollectionSettings       = "settings"
	CollectionAdminActions   = "admin_action_logs"
)

// RealtimeCollections are the collections the merge layer follows.
var RealtimeCollections = []string{
	CollectionAccounts,
	CollectionEntries,
	CollectionBalanceHistory,
	CollectionDeductions,
	CollectionSettings,
}

// ChangeOp is the kind of change a feed reports.
type ChangeOp string

const (
	ChangeInsert ChangeOp = "insert"
	ChangeUpdate ChangeOp = "update"
	ChangeDelete ChangeOp = "delete"
)

// ChangeEvent is one row change pushed by the remote change feed. Record holds
// the row as JSON.
type ChangeEvent struct {
	Collection string          `json:"collection"`
	Op         ChangeOp        `json:"op"`
	ID         string          `json:"id"`
	AccountID  string          `json:"account_id,omitempty"`
	Record     json.RawMessage `json:"record,omitempty"`
}

// Event names
const (
	EventBalanceUpdated  = "balance-updated"
	EventSettingsUpdated = "settings-updated"
	EventCacheChanged    = "cache-changed"
)

// Event is a notification fanned out to local listeners and other sessions.
type Event interface {
	Name() string
	event()
}

// BalanceUpdated announces a new authoritative balance.
type BalanceUpdated struct {
	AccountID string `json:"accountId"`
	Balance   int64  `json:"balance"`
}

func (BalanceUpdated) Name() string { return EventBalanceUpdated }
func (BalanceUpdated) event()       {}

// SettingsUpdated announces a changed setting.
type SettingsUpdated struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

func (SettingsUpdated) Name() string { return EventSettingsUpdated }
func (SettingsUpdated) event()       {}

// CacheChanged announces that a cached record was written or removed.
type CacheChanged struct {
	Collection string   `json:"collection"`
	ID         string   `json:"id"`
	Op         ChangeOp `json:"op"`
}

func (CacheChanged) Name() string { return EventCacheChanged }
func (CacheChanged) event()       {}

// EventEnvelope is the wire form of an Event. Origin identifies the
// publishing session so it can skip its own messages.
type EventEnvelope struct {
	Name   string          `json:"name"`
	Origin string          `json:"origin"`
	Data   json.RawMessage `json:"data"`
}

// EncodeEvent wraps ev in an envelope.
func EncodeEvent(origin string, ev Event) ([]byte, error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s: %w", ev.Name(), err)
	}
	return json.Marshal(EventEnvelope{Name: ev.Name(), Origin: origin, Data: data})
}

// DecodeEvent parses an envelope produced by EncodeEvent.
func DecodeEvent(payload []byte) (Event, string, error) {
	var env EventEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, "", fmt.Errorf("failed to decode event envelope: %w", err)
	}

	var (
		ev  Event
		err error
	)
	switch env.Name {
	case EventBalanceUpdated:
		var v BalanceUpdated
		err = json.Unmarshal(env.Data, &v)
		ev = v
	case EventSettingsUpdated:
		var v SettingsUpdated
		err = json.Unmarshal(env.Data, &v)
		ev = v
	case EventCacheChanged:
		var v CacheChanged
		err = json.Unmarshal(env.Data, &v)
		ev = v
	default:
		return nil, env.Origin, fmt.Errorf("unknown event %q", env.Name)
	}
	if err != nil {
		return nil, env.Origin, fmt.Errorf("failed to decode %s: %w", env.Name, err)
	}
	return ev, env.Origin, nil
}
