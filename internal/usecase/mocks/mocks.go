package mocks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/iho/ledgersync/internal/domain"
	"github.com/iho/ledgersync/internal/usecase"
)

// ErrTxDone is returned when a finished MemoryTx is used again.
var ErrTxDone = errors.New("transaction already finished")

type remoteState struct {
	accounts   map[string]*domain.Account
	entries    map[string]*domain.Entry
	history    map[string]*domain.BalanceHistoryRecord
	deductions map[string]*domain.AdminDeduction
	settings   map[string]*domain.Setting
	audit      map[string]*domain.AdminActionLogEntry
	ops        map[string]domain.MutationKind
}

func newRemoteState() *remoteState {
	return &remoteState{
		accounts:   make(map[string]*domain.Account),
		entries:    make(map[string]*domain.Entry),
		history:    make(map[string]*domain.BalanceHistoryRecord),
		deductions: make(map[string]*domain.AdminDeduction),
		settings:   make(map[string]*domain.Setting),
		audit:      make(map[string]*domain.AdminActionLogEntry),
		ops:        make(map[string]domain.MutationKind),
	}
}

func (s *remoteState) clone() *remoteState {
	c := newRemoteState()
	for k, v := range s.accounts {
		c.accounts[k] = v.Clone()
	}
	for k, v := range s.entries {
		c.entries[k] = v.Clone()
	}
	for k, v := range s.history {
		r := *v
		c.history[k] = &r
	}
	for k, v := range s.deductions {
		d := *v
		c.deductions[k] = &d
	}
	for k, v := range s.settings {
		st := *v
		c.settings[k] = &st
	}
	for k, v := range s.audit {
		a := *v
		c.audit[k] = &a
	}
	for k, v := range s.ops {
		c.ops[k] = v
	}
	return c
}

// MemoryRemote is an in-memory remote store. Transactions work on a private
// snapshot that replaces the committed state on Commit.
type MemoryRemote struct {
	mu    sync.Mutex
	state *remoteState

	// Fail, when set, is consulted before every call with the call name
	// (for example "Accounts.GetByID"); a non-nil result is returned as the
	// call's error.
	Fail func(op string) error
}

func NewMemoryRemote() *MemoryRemote {
	return &MemoryRemote{state: newRemoteState()}
}

// Store returns the ports backed by r.
func (r *MemoryRemote) Store() usecase.RemoteStore {
	return usecase.RemoteStore{
		Tx:         memTxManager{r},
		Accounts:   memAccounts{r},
		Entries:    memEntries{r},
		History:    memHistory{r},
		Deductions: memDeductions{r},
		Settings:   memSettings{r},
		Audit:      memAudit{r},
		Operations: memOperations{r},
	}
}

// SeedAccount stores acct as committed state.
func (r *MemoryRemote) SeedAccount(acct *domain.Account) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state.accounts[acct.ID] = acct.Clone()
}

// SeedEntry stores e as committed state.
func (r *MemoryRemote) SeedEntry(e *domain.Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state.entries[e.ID] = e.Clone()
}

// SeedSetting stores s as committed state.
func (r *MemoryRemote) SeedSetting(s *domain.Setting) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := *s
	r.state.settings[s.Key] = &c
}

// Account returns a copy of the committed account.
func (r *MemoryRemote) Account(id string) (*domain.Account, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.state.accounts[id]
	if !ok {
		return nil, false
	}
	return a.Clone(), true
}

// Entry returns a copy of the committed entry.
func (r *MemoryRemote) Entry(id string) (*domain.Entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.state.entries[id]
	if !ok {
		return nil, false
	}
	return e.Clone(), true
}

// Deductions returns the committed deductions of an account.
func (r *MemoryRemote) Deductions(accountID string) []*domain.AdminDeduction {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.AdminDeduction
	for _, d := range r.state.deductions {
		if d.AccountID == accountID {
			c := *d
			out = append(out, &c)
		}
	}
	return out
}

// History returns the committed balance history of an account.
func (r *MemoryRemote) History(accountID string) []*domain.BalanceHistoryRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.BalanceHistoryRecord
	for _, h := range r.state.history {
		if h.AccountID == accountID {
			c := *h
			out = append(out, &c)
		}
	}
	return out
}

// AuditLogs returns every committed audit record.
func (r *MemoryRemote) AuditLogs() []*domain.AdminActionLogEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*domain.AdminActionLogEntry, 0, len(r.state.audit))
	for _, a := range r.state.audit {
		c := *a
		out = append(out, &c)
	}
	return out
}

// Setting returns the committed setting.
func (r *MemoryRemote) Setting(key string) (*domain.Setting, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.state.settings[key]
	if !ok {
		return nil, false
	}
	c := *s
	return &c, true
}

// Applied reports whether an operation id was committed.
func (r *MemoryRemote) Applied(opID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.state.ops[opID]
	return ok
}

func (r *MemoryRemote) check(op string) error {
	if r.Fail != nil {
		return r.Fail(op)
	}
	return nil
}

// read runs fn on the committed state.
func (r *MemoryRemote) read(op string, fn func(s *remoteState) error) error {
	if err := r.check(op); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return fn(r.state)
}

// write runs fn on the snapshot of tx.
func (r *MemoryRemote) write(op string, tx usecase.Transaction, fn func(s *remoteState) error) error {
	if err := r.check(op); err != nil {
		return err
	}
	mtx, ok := tx.(*MemoryTx)
	if !ok {
		return fmt.Errorf("unexpected transaction type %T", tx)
	}
	if mtx.done {
		return ErrTxDone
	}
	return fn(mtx.state)
}

// MemoryTx is a transaction of MemoryRemote.
type MemoryTx struct {
	remote *MemoryRemote
	state  *remoteState
	done   bool
}

func (t *MemoryTx) Commit(ctx context.Context) error {
	if t.done {
		return ErrTxDone
	}
	if err := t.remote.check("Tx.Commit"); err != nil {
		return err
	}
	t.done = true
	t.remote.mu.Lock()
	t.remote.state = t.state
	t.remote.mu.Unlock()
	return nil
}

func (t *MemoryTx) Rollback(ctx context.Context) error {
	t.done = true
	return nil
}

type memTxManager struct{ r *MemoryRemote }

func (m memTxManager) Begin(ctx context.Context) (usecase.Transaction, error) {
	if err := m.r.check("Tx.Begin"); err != nil {
		return nil, err
	}
	m.r.mu.Lock()
	defer m.r.mu.Unlock()
	return &MemoryTx{remote: m.r, state: m.r.state.clone()}, nil
}

type memAccounts struct{ r *MemoryRemote }

func (m memAccounts) GetByID(ctx context.Context, id string) (*domain.Account, error) {
	var out *domain.Account
	err := m.r.read("Accounts.GetByID", func(s *remoteState) error {
		a, ok := s.accounts[id]
		if !ok {
			return domain.ErrAccountNotFound
		}
		out = a.Clone()
		return nil
	})
	return out, err
}

func (m memAccounts) GetByIDTx(ctx context.Context, tx usecase.Transaction, id string) (*domain.Account, error) {
	var out *domain.Account
	err := m.r.write("Accounts.GetByIDTx", tx, func(s *remoteState) error {
		a, ok := s.accounts[id]
		if !ok {
			return domain.ErrAccountNotFound
		}
		out = a.Clone()
		return nil
	})
	return out, err
}

func (m memAccounts) List(ctx context.Context, limit, offset int) ([]*domain.Account, error) {
	var out []*domain.Account
	err := m.r.read("Accounts.List", func(s *remoteState) error {
		for _, a := range s.accounts {
			out = append(out, a.Clone())
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return page(out, limit, offset), err
}

func (m memAccounts) CompareAndSwap(ctx context.Context, tx usecase.Transaction, acct *domain.Account, expectedVersion int64) error {
	return m.r.write("Accounts.CompareAndSwap", tx, func(s *remoteState) error {
		stored, ok := s.accounts[acct.ID]
		if !ok {
			return domain.ErrAccountNotFound
		}
		if stored.Version != expectedVersion {
			return domain.ErrVersionConflict
		}
		acct.Version = expectedVersion + 1
		s.accounts[acct.ID] = acct.Clone()
		return nil
	})
}

type memEntries struct{ r *MemoryRemote }

func (m memEntries) GetByID(ctx context.Context, id string) (*domain.Entry, error) {
	var out *domain.Entry
	err := m.r.read("Entries.GetByID", func(s *remoteState) error {
		e, ok := s.entries[id]
		if !ok {
			return domain.ErrEntryNotFound
		}
		out = e.Clone()
		return nil
	})
	return out, err
}

func (m memEntries) GetByIDTx(ctx context.Context, tx usecase.Transaction, id string) (*domain.Entry, error) {
	var out *domain.Entry
	err := m.r.write("Entries.GetByIDTx", tx, func(s *remoteState) error {
		e, ok := s.entries[id]
		if !ok {
			return domain.ErrEntryNotFound
		}
		out = e.Clone()
		return nil
	})
	return out, err
}

func (m memEntries) ListByAccount(ctx context.Context, accountID string) ([]*domain.Entry, error) {
	var out []*domain.Entry
	err := m.r.read("Entries.ListByAccount", func(s *remoteState) error {
		for _, e := range s.entries {
			if e.AccountID == accountID {
				out = append(out, e.Clone())
			}
		}
		return nil
	})
	return out, err
}

func (m memEntries) SumTotalsTx(ctx context.Context, tx usecase.Transaction, accountID string) (int64, error) {
	var sum int64
	err := m.r.write("Entries.SumTotalsTx", tx, func(s *remoteState) error {
		for _, e := range s.entries {
			if e.AccountID == accountID {
				sum += e.Total()
			}
		}
		return nil
	})
	return sum, err
}

func (m memEntries) Upsert(ctx context.Context, tx usecase.Transaction, entry *domain.Entry) error {
	return m.r.write("Entries.Upsert", tx, func(s *remoteState) error {
		s.entries[entry.ID] = entry.Clone()
		return nil
	})
}

func (m memEntries) Delete(ctx context.Context, tx usecase.Transaction, id string) error {
	return m.r.write("Entries.Delete", tx, func(s *remoteState) error {
		delete(s.entries, id)
		return nil
	})
}

func (m memEntries) DeleteByAccount(ctx context.Context, tx usecase.Transaction, accountID string) error {
	return m.r.write("Entries.DeleteByAccount", tx, func(s *remoteState) error {
		for id, e := range s.entries {
			if e.AccountID == accountID {
				delete(s.entries, id)
			}
		}
		return nil
	})
}

type memHistory struct{ r *MemoryRemote }

func (m memHistory) ListByAccount(ctx context.Context, accountID string, limit, offset int) ([]*domain.BalanceHistoryRecord, error) {
	var out []*domain.BalanceHistoryRecord
	err := m.r.read("History.ListByAccount", func(s *remoteState) error {
		for _, h := range s.history {
			if h.AccountID == accountID {
				c := *h
				out = append(out, &c)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return page(out, limit, offset), err
}

func (m memHistory) Upsert(ctx context.Context, tx usecase.Transaction, record *domain.BalanceHistoryRecord) error {
	return m.r.write("History.Upsert", tx, func(s *remoteState) error {
		c := *record
		s.history[record.ID] = &c
		return nil
	})
}

type memDeductions struct{ r *MemoryRemote }

func (m memDeductions) ListByAccount(ctx context.Context, accountID string) ([]*domain.AdminDeduction, error) {
	var out []*domain.AdminDeduction
	err := m.r.read("Deductions.ListByAccount", func(s *remoteState) error {
		for _, d := range s.deductions {
			if d.AccountID == accountID {
				c := *d
				out = append(out, &c)
			}
		}
		return nil
	})
	return out, err
}

func (m memDeductions) Upsert(ctx context.Context, tx usecase.Transaction, d *domain.AdminDeduction) error {
	return m.r.write("Deductions.Upsert", tx, func(s *remoteState) error {
		if _, ok := s.entries[d.EntryID]; !ok {
			return domain.ErrEntryNotFound
		}
		c := *d
		s.deductions[d.ID] = &c
		return nil
	})
}

func (m memDeductions) Delete(ctx context.Context, tx usecase.Transaction, id string) error {
	return m.r.write("Deductions.Delete", tx, func(s *remoteState) error {
		delete(s.deductions, id)
		return nil
	})
}

func (m memDeductions) DeleteByEntry(ctx context.Context, tx usecase.Transaction, entryID string) error {
	return m.r.write("Deductions.DeleteByEntry", tx, func(s *remoteState) error {
		for id, d := range s.deductions {
			if d.EntryID == entryID {
				delete(s.deductions, id)
			}
		}
		return nil
	})
}

func (m memDeductions) DeleteByAccount(ctx context.Context, tx usecase.Transaction, accountID string) error {
	return m.r.write("Deductions.DeleteByAccount", tx, func(s *remoteState) error {
		for id, d := range s.deductions {
			if d.AccountID == accountID {
				delete(s.deductions, id)
			}
		}
		return nil
	})
}

type memSettings struct{ r *MemoryRemote }

func (m memSettings) Get(ctx context.Context, key string) (*domain.Setting, error) {
	var out *domain.Setting
	err := m.r.read("Settings.Get", func(s *remoteState) error {
		st, ok := s.settings[key]
		if !ok {
			return domain.ErrSettingNotFound
		}
		c := *st
		out = &c
		return nil
	})
	return out, err
}

func (m memSettings) List(ctx context.Context) ([]*domain.Setting, error) {
	var out []*domain.Setting
	err := m.r.read("Settings.List", func(s *remoteState) error {
		for _, st := range s.settings {
			c := *st
			out = append(out, &c)
		}
		return nil
	})
	return out, err
}

func (m memSettings) Upsert(ctx context.Context, tx usecase.Transaction, setting *domain.Setting) error {
	return m.r.write("Settings.Upsert", tx, func(s *remoteState) error {
		c := *setting
		s.settings[setting.Key] = &c
		return nil
	})
}

type memAudit struct{ r *MemoryRemote }

func (m memAudit) Create(ctx context.Context, tx usecase.Transaction, entry *domain.AdminActionLogEntry) error {
	return m.r.write("Audit.Create", tx, func(s *remoteState) error {
		c := *entry
		s.audit[entry.ID] = &c
		return nil
	})
}

func (m memAudit) ListByAccount(ctx context.Context, accountID string, limit, offset int) ([]*domain.AdminActionLogEntry, error) {
	var out []*domain.AdminActionLogEntry
	err := m.r.read("Audit.ListByAccount", func(s *remoteState) error {
		for _, a := range s.audit {
			if a.TargetAccountID == accountID {
				c := *a
				out = append(out, &c)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return page(out, limit, offset), err
}

type memOperations struct{ r *MemoryRemote }

func (m memOperations) MarkApplied(ctx context.Context, tx usecase.Transaction, opID string, kind domain.MutationKind) error {
	return m.r.write("Operations.MarkApplied", tx, func(s *remoteState) error {
		if _, ok := s.ops[opID]; ok {
			return domain.ErrAlreadyApplied
		}
		s.ops[opID] = kind
		return nil
	})
}

func page[T any](rows []T, limit, offset int) []T {
	if offset >= len(rows) {
		return nil
	}
	rows = rows[offset:]
	if limit > 0 && limit < len(rows) {
		rows = rows[:limit]
	}
	return rows
}

// MemoryCollection is an in-memory cache collection. Records are stored as
// JSON so callers never share memory with the cache.
type MemoryCollection[T domain.Record] struct {
	mu   sync.Mutex
	rows map[string][]byte
	ids  []string
}

func NewMemoryCollection[T domain.Record]() *MemoryCollection[T] {
	return &MemoryCollection[T]{rows: make(map[string][]byte)}
}

func (c *MemoryCollection[T]) PutMany(ctx context.Context, records []T) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, r := range records {
		data, err := json.Marshal(r)
		if err != nil {
			return err
		}
		if _, ok := c.rows[r.RecordID()]; !ok {
			c.ids = append(c.ids, r.RecordID())
		}
		c.rows[r.RecordID()] = data
	}
	return nil
}

func (c *MemoryCollection[T]) Get(ctx context.Context, id string) (T, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var zero T
	data, ok := c.rows[id]
	if !ok {
		return zero, false, nil
	}
	var out T
	if err := json.Unmarshal(data, &out); err != nil {
		return zero, false, err
	}
	return out, true, nil
}

func (c *MemoryCollection[T]) Query(ctx context.Context, filter usecase.CacheFilter, match func(T) bool) ([]T, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]T, 0, len(c.ids))
	for _, id := range c.ids {
		var r T
		if err := json.Unmarshal(c.rows[id], &r); err != nil {
			return nil, err
		}
		if filter.AccountID != "" && r.RecordAccountID() != filter.AccountID {
			continue
		}
		if match != nil && !match(r) {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func (c *MemoryCollection[T]) Delete(ctx context.Context, ids ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range ids {
		if _, ok := c.rows[id]; !ok {
			continue
		}
		delete(c.rows, id)
		for i, existing := range c.ids {
			if existing == id {
				c.ids = append(c.ids[:i], c.ids[i+1:]...)
				break
			}
		}
	}
	return nil
}

func (c *MemoryCollection[T]) Clear(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rows = make(map[string][]byte)
	c.ids = nil
	return nil
}

// NewMemoryCache returns a LocalCache backed by memory collections.
func NewMemoryCache() usecase.LocalCache {
	return usecase.LocalCache{
		Accounts:   NewMemoryCollection[*domain.Account](),
		Entries:    NewMemoryCollection[*domain.Entry](),
		History:    NewMemoryCollection[*domain.BalanceHistoryRecord](),
		Deductions: NewMemoryCollection[*domain.AdminDeduction](),
		Settings:   NewMemoryCollection[*domain.Setting](),
	}
}

// MemoryQueue is an in-memory sync queue.
type MemoryQueue struct {
	mu    sync.Mutex
	items []*domain.SyncQueueItem
	seq   int64

	EnqueueErr error
}

func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{}
}

func (q *MemoryQueue) Enqueue(ctx context.Context, m domain.Mutation) (*domain.SyncQueueItem, error) {
	if q.EnqueueErr != nil {
		return nil, q.EnqueueErr
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.seq++
	item := &domain.SyncQueueItem{
		ID:        fmt.Sprintf("op-%06d", q.seq),
		Seq:       q.seq,
		Entity:    m.Entity(),
		Operation: m.Operation(),
		Kind:      m.Kind(),
		Mutation:  m,
		CreatedAt: time.Now().UTC(),
	}
	q.items = append(q.items, item)
	c := *item
	return &c, nil
}

// Push appends a prepared item, such as one whose payload failed to decode.
func (q *MemoryQueue) Push(item *domain.SyncQueueItem) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.seq++
	item.Seq = q.seq
	if item.ID == "" {
		item.ID = fmt.Sprintf("op-%06d", q.seq)
	}
	q.items = append(q.items, item)
}

func (q *MemoryQueue) List(ctx context.Context) ([]*domain.SyncQueueItem, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]*domain.SyncQueueItem, 0, len(q.items))
	for _, item := range q.items {
		c := *item
		out = append(out, &c)
	}
	return out, nil
}

func (q *MemoryQueue) Remove(ctx context.Context, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, item := range q.items {
		if item.ID == id {
			q.items = append(q.items[:i], q.items[i+1:]...)
			return nil
		}
	}
	return nil
}

func (q *MemoryQueue) MarkFailed(ctx context.Context, id string, lastErr string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, item := range q.items {
		if item.ID == id {
			item.Attempts++
			item.LastError = lastErr
		}
	}
	return nil
}

func (q *MemoryQueue) Count(ctx context.Context) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items), nil
}

// SeqIDGenerator returns prefix-1, prefix-2, ...
type SeqIDGenerator struct {
	mu     sync.Mutex
	prefix string
	n      int
}

func NewSeqIDGenerator(prefix string) *SeqIDGenerator {
	return &SeqIDGenerator{prefix: prefix}
}

func (g *SeqIDGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%s-%d", g.prefix, g.n)
}

// MemoryFeed is an in-memory ChangeFeed. Emit delivers synchronously to every
// matching subscription.
type MemoryFeed struct {
	mu      sync.Mutex
	subs    map[int]feedSub
	next    int
	stopped int

	// FailOn makes Subscribe fail for the named collection.
	FailOn string
}

type feedSub struct {
	collection string
	accountID  string
	handler    func(domain.ChangeEvent)
}

func NewMemoryFeed() *MemoryFeed {
	return &MemoryFeed{subs: make(map[int]feedSub)}
}

func (f *MemoryFeed) Subscribe(ctx context.Context, collection, accountID string, handler func(domain.ChangeEvent)) (func(), error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if collection == f.FailOn {
		return nil, &domain.NetworkError{Op: "subscribe " + collection, Err: errors.New("listen failed")}
	}
	id := f.next
	f.next++
	f.subs[id] = feedSub{collection: collection, accountID: accountID, handler: handler}

	var once sync.Once
	return func() {
		once.Do(func() {
			f.mu.Lock()
			delete(f.subs, id)
			f.stopped++
			f.mu.Unlock()
		})
	}, nil
}

// Emit delivers ev to the subscriptions for its collection and account.
func (f *MemoryFeed) Emit(ev domain.ChangeEvent) {
	f.mu.Lock()
	var handlers []func(domain.ChangeEvent)
	for _, s := range f.subs {
		if s.collection == ev.Collection && (s.accountID == "" || s.accountID == ev.AccountID) {
			handlers = append(handlers, s.handler)
		}
	}
	f.mu.Unlock()
	for _, h := range handlers {
		h(ev)
	}
}

// Active is the number of live subscriptions.
func (f *MemoryFeed) Active() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

// Stopped is the number of subscriptions torn down.
func (f *MemoryFeed) Stopped() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stopped
}
