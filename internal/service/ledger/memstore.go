package ledger

import (
	"cmp"
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/uma-arai/sbcntr-restaurant/internal/model"
)

// MemStore はプロセス内で完結する Store 実装です
// トランザクションは1つのミューテックスで直列化され、状態のコピーに対して実行されます
type MemStore struct {
	mu    sync.Mutex
	state memState
	now   func() time.Time
}

type memState struct {
	seq          int64
	reservations map[int64]model.Reservation
	completed    []model.CompletedReservation
	tables       map[int64]model.Table
	users        map[int64]model.User
	promocodes   map[int64]model.Promocode
}

func (s memState) clone() memState {
	return memState{
		seq:          s.seq,
		reservations: maps.Clone(s.reservations),
		completed:    slices.Clone(s.completed),
		tables:       maps.Clone(s.tables),
		users:        maps.Clone(s.users),
		promocodes:   maps.Clone(s.promocodes),
	}
}

func (s *memState) nextID() int64 {
	s.seq++
	return s.seq
}

// NewMemStore は空の MemStore を作成します
func NewMemStore() *MemStore {
	return &MemStore{
		state: memState{
			reservations: map[int64]model.Reservation{},
			tables:       map[int64]model.Table{},
			users:        map[int64]model.User{},
			promocodes:   map[int64]model.Promocode{},
		},
		now: time.Now,
	}
}

// AddUser はユーザーを登録し、採番後のユーザーを返します
func (s *MemStore) AddUser(u model.User) model.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	u.ID = s.state.nextID()
	s.state.users[u.ID] = u
	return u
}

// AddPromocode は割引コードを登録し、採番後のコードを返します
func (s *MemStore) AddPromocode(p model.Promocode) model.Promocode {
	s.mu.Lock()
	defer s.mu.Unlock()
	p.ID = s.state.nextID()
	s.state.promocodes[p.ID] = p
	return p
}

// User は登録済みユーザーの現在の状態を返します
func (s *MemStore) User(id int64) (model.User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.state.users[id]
	return u, ok
}

func (s *MemStore) InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	work := s.state.clone()
	if err := fn(ctx, &memTx{state: &work, now: s.now}); err != nil {
		return err
	}
	s.state = work
	return nil
}

func (s *MemStore) GetReservation(_ context.Context, id int64) (*model.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.state.reservations[id]
	if !ok {
		return nil, model.ErrNotFound
	}
	return &r, nil
}

func (s *MemStore) ListReservations(_ context.Context, page model.Page) ([]model.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	all := slices.SortedFunc(maps.Values(s.state.reservations), func(a, b model.Reservation) int {
		return cmp.Compare(a.ID, b.ID)
	})
	return paginate(all, page), nil
}

func (s *MemStore) ListCompleted(_ context.Context, page model.Page) ([]model.CompletedReservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	all := slices.Clone(s.state.completed)
	slices.SortFunc(all, func(a, b model.CompletedReservation) int {
		if c := b.CompletedAt.Compare(a.CompletedAt); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})
	return paginate(all, page), nil
}

func (s *MemStore) ActiveReservations(_ context.Context, tableID int64, window model.Interval) ([]model.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return activeOverlapping(s.state.reservations, tableID, window), nil
}

func (s *MemStore) CreateTable(_ context.Context, table *model.Table) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.state.tables {
		if t.Number == table.Number {
			return fmt.Errorf("%w: table number %d", model.ErrDuplicate, table.Number)
		}
	}
	table.ID = s.state.nextID()
	table.CreatedAt = s.now()
	s.state.tables[table.ID] = *table
	return nil
}

func (s *MemStore) GetTable(_ context.Context, id int64) (*model.Table, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.state.tables[id]
	if !ok {
		return nil, model.ErrNotFound
	}
	return &t, nil
}

func (s *MemStore) ListTables(_ context.Context) ([]model.Table, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.SortedFunc(maps.Values(s.state.tables), func(a, b model.Table) int {
		return a.Number - b.Number
	}), nil
}

type memTx struct {
	state *memState
	now   func() time.Time
}

func (t *memTx) LockTable(_ context.Context, id int64) (*model.Table, error) {
	table, ok := t.state.tables[id]
	if !ok {
		return nil, model.ErrNotFound
	}
	return &table, nil
}

func (t *memTx) LockTableByNumber(_ context.Context, number int) (*model.Table, error) {
	for _, table := range t.state.tables {
		if table.Number == number {
			return &table, nil
		}
	}
	return nil, model.ErrNotFound
}

func (t *memTx) LockUser(_ context.Context, id int64) (*model.User, error) {
	u, ok := t.state.users[id]
	if !ok {
		return nil, model.ErrNotFound
	}
	return &u, nil
}

func (t *memTx) LockReservation(_ context.Context, id int64) (*model.Reservation, error) {
	r, ok := t.state.reservations[id]
	if !ok {
		return nil, model.ErrNotFound
	}
	return &r, nil
}

func (t *memTx) LockActiveReservations(_ context.Context, tableID int64) ([]model.Reservation, error) {
	var out []model.Reservation
	for _, r := range t.state.reservations {
		if r.TableID == tableID && r.Refundable() {
			out = append(out, r)
		}
	}
	slices.SortFunc(out, func(a, b model.Reservation) int { return cmp.Compare(a.ID, b.ID) })
	return out, nil
}

func (t *memTx) GetPromocode(_ context.Context, id int64) (*model.Promocode, error) {
	p, ok := t.state.promocodes[id]
	if !ok {
		return nil, model.ErrNotFound
	}
	return &p, nil
}

func (t *memTx) HasOverlap(_ context.Context, tableID int64, interval model.Interval) (bool, error) {
	return len(activeOverlapping(t.state.reservations, tableID, interval)) > 0, nil
}

// InsertReservation はPostgreSQLの排他制約と同じ条件で重なりを拒否します
func (t *memTx) InsertReservation(_ context.Context, r *model.Reservation) error {
	if r.Active() && len(activeOverlapping(t.state.reservations, r.TableID, r.Interval())) > 0 {
		return model.ErrOverlap
	}
	now := t.now()
	r.ID = t.state.nextID()
	r.CreatedAt = now
	r.UpdatedAt = now
	t.state.reservations[r.ID] = *r
	return nil
}

func (t *memTx) SetStatus(_ context.Context, id int64, status model.ReservationStatus) error {
	r, ok := t.state.reservations[id]
	if !ok {
		return fmt.Errorf("%w: no reservation found with ID %d", model.ErrNotFound, id)
	}
	r.Status = status
	r.UpdatedAt = t.now()
	t.state.reservations[id] = r
	return nil
}

func (t *memTx) AdjustBalance(_ context.Context, userID int64, delta decimal.Decimal) error {
	u, ok := t.state.users[userID]
	if !ok {
		return fmt.Errorf("%w: user with id %d", model.ErrNotFound, userID)
	}
	balance := u.Balance.Add(delta)
	if balance.IsNegative() {
		return fmt.Errorf("balance of user %d would become negative", userID)
	}
	u.Balance = balance
	t.state.users[userID] = u
	return nil
}

func (t *memTx) InsertCompleted(_ context.Context, c *model.CompletedReservation) error {
	for _, existing := range t.state.completed {
		if existing.ReservationID == c.ReservationID {
			return fmt.Errorf("%w: reservation %d already archived", model.ErrDuplicate, c.ReservationID)
		}
	}
	c.ID = t.state.nextID()
	t.state.completed = append(t.state.completed, *c)
	return nil
}

// DeleteTable はテーブルを削除し、予約の table_id を 0 にします
func (t *memTx) DeleteTable(_ context.Context, id int64) error {
	if _, ok := t.state.tables[id]; !ok {
		return fmt.Errorf("%w: table with id %d", model.ErrNotFound, id)
	}
	delete(t.state.tables, id)
	for rid, r := range t.state.reservations {
		if r.TableID == id {
			r.TableID = 0
			t.state.reservations[rid] = r
		}
	}
	return nil
}

func activeOverlapping(reservations map[int64]model.Reservation, tableID int64, window model.Interval) []model.Reservation {
	var out []model.Reservation
	for _, r := range reservations {
		if r.TableID == tableID && r.Active() && r.Interval().Overlaps(window) {
			out = append(out, r)
		}
	}
	slices.SortFunc(out, func(a, b model.Reservation) int { return a.StartTime.Compare(b.StartTime) })
	return out
}

func paginate[T any](all []T, page model.Page) []T {
	if page.Skip >= len(all) {
		return []T{}
	}
	end := min(page.Skip+page.Limit, len(all))
	return all[page.Skip:end]
}
