package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uma-arai/sbcntr-restaurant/internal/common/config"
	"github.com/uma-arai/sbcntr-restaurant/internal/model"
	"go.uber.org/zap"
)

var (
	testNow = time.Date(2030, 1, 1, 8, 0, 0, 0, time.UTC)
	day     = time.Date(2030, 1, 2, 0, 0, 0, 0, time.UTC)
)

func at(hour, minute int) time.Time {
	return day.Add(time.Duration(hour)*time.Hour + time.Duration(minute)*time.Minute)
}

func testRules() config.BookingConfig {
	return config.BookingConfig{
		MinDuration:  time.Hour,
		MaxDuration:  24 * time.Hour,
		MaxPartySize: 6,
		OpeningHour:  10,
		ClosingHour:  23,
		Location:     time.UTC,
	}
}

type fixture struct {
	svc   *Service
	store *MemStore
	user  model.User
	table *model.Table
}

func newFixture(t *testing.T, cache AvailabilityCache) fixture {
	t.Helper()
	store := NewMemStore()
	store.now = func() time.Time { return testNow }
	svc := NewService(store, cache, testRules(), zap.NewNop())
	svc.now = func() time.Time { return testNow }

	user := store.AddUser(model.User{Name: "Alice", Age: 30, Email: "alice@example.com", Balance: decimal.NewFromInt(1000)})
	table, err := svc.CreateTable(context.Background(), model.TableInput{Number: 1, Seats: 4, Price: decimal.NewFromInt(100)})
	require.NoError(t, err)

	return fixture{svc: svc, store: store, user: user, table: table}
}

func (f fixture) book(start time.Time, d time.Duration) (*model.Reservation, error) {
	return f.svc.Book(context.Background(), BookRequest{
		TableID:   f.table.ID,
		UserID:    f.user.ID,
		Start:     start,
		Duration:  d,
		PartySize: 2,
	})
}

func (f fixture) balance(t *testing.T) decimal.Decimal {
	t.Helper()
	u, ok := f.store.User(f.user.ID)
	require.True(t, ok)
	return u.Balance
}

func TestBook_Validation(t *testing.T) {
	f := newFixture(t, nil)

	tests := []struct {
		name    string
		mutate  func(*BookRequest)
		wantErr error
	}{
		{"長さ0", func(r *BookRequest) { r.Duration = 0 }, model.ErrInvalidInterval},
		{"負の長さ", func(r *BookRequest) { r.Duration = -time.Hour }, model.ErrInvalidInterval},
		{"最短時間未満", func(r *BookRequest) { r.Duration = 59 * time.Minute }, model.ErrTooShort},
		{"最長時間超過", func(r *BookRequest) { r.Duration = 25 * time.Hour }, model.ErrTooLong},
		{"過去の開始時刻", func(r *BookRequest) { r.Start = testNow.Add(-time.Minute) }, model.ErrInPast},
		{"人数0", func(r *BookRequest) { r.PartySize = 0 }, model.ErrInvalidPartySize},
		{"人数上限超過", func(r *BookRequest) { r.PartySize = 7 }, model.ErrInvalidPartySize},
		{"席数超過", func(r *BookRequest) { r.PartySize = 5 }, model.ErrCapacityExceeded},
		{"存在しないテーブル", func(r *BookRequest) { r.TableID = 999 }, model.ErrNotFound},
		{"存在しないユーザー", func(r *BookRequest) { r.UserID = 999 }, model.ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := BookRequest{TableID: f.table.ID, UserID: f.user.ID, Start: at(12, 0), Duration: time.Hour, PartySize: 2}
			tt.mutate(&req)
			_, err := f.svc.Book(context.Background(), req)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	reservations, err := f.svc.List(context.Background(), model.DefaultPage())
	require.NoError(t, err)
	assert.Empty(t, reservations)
	assert.True(t, decimal.NewFromInt(1000).Equal(f.balance(t)))
}

func TestBook_MinimumDurationIsInclusive(t *testing.T) {
	f := newFixture(t, nil)

	r, err := f.book(at(12, 0), time.Hour)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, r.Status)
	assert.Equal(t, at(13, 0), r.EndTime)
	assert.Equal(t, 2, r.PartySize)
}

func TestBook_Overlap(t *testing.T) {
	f := newFixture(t, nil)

	first, err := f.book(at(12, 0), 2*time.Hour)
	require.NoError(t, err)

	tests := []struct {
		name    string
		start   time.Time
		d       time.Duration
		wantErr error
	}{
		{"後半が重なる", at(13, 0), 2 * time.Hour, model.ErrOverlap},
		{"前半が重なる", at(11, 30), time.Hour, model.ErrOverlap},
		{"内包される", at(12, 30), time.Hour, model.ErrOverlap},
		{"内包する", at(11, 0), 4 * time.Hour, model.ErrOverlap},
		{"同一区間", at(12, 0), 2 * time.Hour, model.ErrOverlap},
		{"直後に接する", at(14, 0), time.Hour, nil},
		{"直前に接する", at(11, 0), time.Hour, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.book(tt.start, tt.d)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			assert.NoError(t, err)
		})
	}

	// キャンセルした区間は再び予約できる
	_, err = f.svc.Cancel(context.Background(), first.ID)
	require.NoError(t, err)
	_, err = f.book(at(12, 0), 2*time.Hour)
	assert.NoError(t, err)
}

func TestBook_OtherTableDoesNotConflict(t *testing.T) {
	f := newFixture(t, nil)
	other, err := f.svc.CreateTable(context.Background(), model.TableInput{Number: 2, Seats: 2, Price: decimal.NewFromInt(50)})
	require.NoError(t, err)

	_, err = f.book(at(12, 0), time.Hour)
	require.NoError(t, err)

	_, err = f.svc.Book(context.Background(), BookRequest{TableID: other.ID, UserID: f.user.ID, Start: at(12, 0), Duration: time.Hour, PartySize: 2})
	assert.NoError(t, err)
}

func TestBook_Pricing(t *testing.T) {
	tests := []struct {
		name        string
		discount    int
		expiresAt   time.Time
		wantPrice   string
		wantBalance string
	}{
		{"割引なし", 0, time.Time{}, "100", "900"},
		{"10%割引", 10, testNow.Add(24 * time.Hour), "90", "910"},
		{"失効済みのコードは無視", 10, testNow.Add(-time.Minute), "100", "900"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, nil)
			if tt.discount > 0 {
				p := f.store.AddPromocode(model.Promocode{Code: "OFF", ExpiresAt: tt.expiresAt, Discount: tt.discount})
				f.user = f.store.AddUser(model.User{Name: "Bob", Age: 40, Email: "bob@example.com", PromocodeID: &p.ID, Balance: decimal.NewFromInt(1000)})
			}

			r, err := f.book(at(12, 0), time.Hour)
			require.NoError(t, err)
			assert.True(t, decimal.RequireFromString(tt.wantPrice).Equal(r.Price), "price %s", r.Price)
			assert.True(t, decimal.RequireFromString(tt.wantBalance).Equal(f.balance(t)), "balance %s", f.balance(t))
		})
	}
}

func TestBook_InsufficientFunds(t *testing.T) {
	f := newFixture(t, nil)
	f.user = f.store.AddUser(model.User{Name: "Carol", Age: 25, Email: "carol@example.com", Balance: decimal.NewFromInt(99)})

	_, err := f.book(at(12, 0), time.Hour)
	assert.ErrorIs(t, err, model.ErrInsufficientFunds)
	assert.True(t, decimal.NewFromInt(99).Equal(f.balance(t)))

	free, err := f.svc.Availability(context.Background(), f.table.ID, day)
	require.NoError(t, err)
	assert.Equal(t, []model.Interval{{Start: at(10, 0), End: at(23, 0)}}, free)
}

func TestConfirm(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	r, err := f.book(at(12, 0), time.Hour)
	require.NoError(t, err)

	confirmed, err := f.svc.Confirm(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusConfirmed, confirmed.Status)

	again, err := f.svc.Confirm(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusConfirmed, again.Status)

	_, err = f.svc.Confirm(ctx, 999)
	assert.ErrorIs(t, err, model.ErrNotFound)

	other, err := f.book(at(15, 0), time.Hour)
	require.NoError(t, err)
	_, err = f.svc.Cancel(ctx, other.ID)
	require.NoError(t, err)
	_, err = f.svc.Confirm(ctx, other.ID)
	assert.ErrorIs(t, err, model.ErrInvalidTransition)
}

func TestCancel_RefundsExactlyOnce(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	r, err := f.book(at(12, 0), time.Hour)
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(900).Equal(f.balance(t)))

	for i := 0; i < 3; i++ {
		cancelled, err := f.svc.Cancel(ctx, r.ID)
		require.NoError(t, err)
		assert.Equal(t, model.StatusCancelled, cancelled.Status)
	}
	assert.True(t, decimal.NewFromInt(1000).Equal(f.balance(t)))

	got, err := f.svc.Get(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCancelled, got.Status)

	_, err = f.svc.Cancel(ctx, 999)
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestComplete(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	r, err := f.book(at(12, 0), time.Hour)
	require.NoError(t, err)
	_, err = f.svc.Confirm(ctx, r.ID)
	require.NoError(t, err)

	completed, err := f.svc.Complete(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, completed.Status)

	// 2回目は記録を増やさない
	_, err = f.svc.Complete(ctx, r.ID)
	require.NoError(t, err)

	snapshots, err := f.svc.ListCompleted(ctx, model.DefaultPage())
	require.NoError(t, err)
	require.Len(t, snapshots, 1)
	assert.Equal(t, r.ID, snapshots[0].ReservationID)
	assert.Equal(t, "Alice", snapshots[0].Name)
	assert.Equal(t, "alice@example.com", snapshots[0].Email)
	assert.Equal(t, testNow, snapshots[0].CompletedAt)

	_, err = f.svc.Cancel(ctx, r.ID)
	assert.ErrorIs(t, err, model.ErrInvalidTransition)

	// 完了しても返金はされない
	assert.True(t, decimal.NewFromInt(900).Equal(f.balance(t)))

	// 完了済みの予約は引き続き区間を占有する
	_, err = f.book(at(12, 0), time.Hour)
	assert.ErrorIs(t, err, model.ErrOverlap)
}

func TestComplete_CancelledIsRejected(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	r, err := f.book(at(12, 0), time.Hour)
	require.NoError(t, err)
	_, err = f.svc.Cancel(ctx, r.ID)
	require.NoError(t, err)

	_, err = f.svc.Complete(ctx, r.ID)
	assert.ErrorIs(t, err, model.ErrInvalidTransition)
}

func TestExpireAndFinish_OnlyFromExpectedStatus(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name        string
		prepare     func(t *testing.T, f fixture, id int64)
		apply       func(f fixture, id int64) (*model.Reservation, bool, error)
		wantChanged bool
		wantStatus  model.ReservationStatus
		wantBalance int64
		wantRecords int
	}{
		{
			name:        "保留中の予約を取り消す",
			apply:       fixture.expire,
			wantChanged: true,
			wantStatus:  model.StatusCancelled,
			wantBalance: 1000,
		},
		{
			name: "確定済みの予約は取り消さない",
			prepare: func(t *testing.T, f fixture, id int64) {
				_, err := f.svc.Confirm(ctx, id)
				require.NoError(t, err)
			},
			apply:       fixture.expire,
			wantStatus:  model.StatusConfirmed,
			wantBalance: 900,
		},
		{
			name: "確定済みの予約を完了する",
			prepare: func(t *testing.T, f fixture, id int64) {
				_, err := f.svc.Confirm(ctx, id)
				require.NoError(t, err)
			},
			apply:       fixture.finish,
			wantChanged: true,
			wantStatus:  model.StatusCompleted,
			wantBalance: 900,
			wantRecords: 1,
		},
		{
			name:        "保留中の予約は完了しない",
			apply:       fixture.finish,
			wantStatus:  model.StatusPending,
			wantBalance: 900,
		},
		{
			name: "キャンセル済みの予約は完了しない",
			prepare: func(t *testing.T, f fixture, id int64) {
				_, err := f.svc.Cancel(ctx, id)
				require.NoError(t, err)
			},
			apply:       fixture.finish,
			wantStatus:  model.StatusCancelled,
			wantBalance: 1000,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, nil)
			r, err := f.book(at(12, 0), time.Hour)
			require.NoError(t, err)
			if tt.prepare != nil {
				tt.prepare(t, f, r.ID)
			}

			got, changed, err := tt.apply(f, r.ID)
			require.NoError(t, err)
			assert.Equal(t, tt.wantChanged, changed)
			assert.Equal(t, tt.wantStatus, got.Status)

			// 2回目は何も変更しない
			_, changed, err = tt.apply(f, r.ID)
			require.NoError(t, err)
			assert.False(t, changed)

			assert.True(t, decimal.NewFromInt(tt.wantBalance).Equal(f.balance(t)), f.balance(t).String())
			snapshots, err := f.svc.ListCompleted(ctx, model.DefaultPage())
			require.NoError(t, err)
			assert.Len(t, snapshots, tt.wantRecords)
		})
	}

	f := newFixture(t, nil)
	_, _, err := f.svc.Expire(ctx, 999)
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func (f fixture) expire(id int64) (*model.Reservation, bool, error) {
	return f.svc.Expire(context.Background(), id)
}

func (f fixture) finish(id int64) (*model.Reservation, bool, error) {
	return f.svc.Finish(context.Background(), id)
}

func TestAvailability(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	_, err := f.book(at(16, 0), time.Hour)
	require.NoError(t, err)
	_, err = f.book(at(12, 0), 2*time.Hour)
	require.NoError(t, err)
	cancelled, err := f.book(at(19, 0), time.Hour)
	require.NoError(t, err)
	_, err = f.svc.Cancel(ctx, cancelled.ID)
	require.NoError(t, err)
	// 営業時間外にはみ出す予約は営業時間内に切り詰められる
	_, err = f.book(at(22, 0), 3*time.Hour)
	require.NoError(t, err)

	free, err := f.svc.Availability(ctx, f.table.ID, at(15, 0))
	require.NoError(t, err)
	assert.Equal(t, []model.Interval{
		{Start: at(10, 0), End: at(12, 0)},
		{Start: at(14, 0), End: at(16, 0)},
		{Start: at(17, 0), End: at(22, 0)},
	}, free)

	// 空き区間と予約区間で営業時間を隙間なく覆う
	var total time.Duration
	for i, iv := range free {
		total += iv.Duration()
		if i > 0 {
			assert.True(t, free[i-1].End.Before(iv.Start))
		}
	}
	assert.Equal(t, 13*time.Hour-total, 4*time.Hour)

	_, err = f.svc.Availability(ctx, 999, day)
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestAvailability_ClosingAtMidnight(t *testing.T) {
	f := newFixture(t, nil)
	rules := testRules()
	rules.ClosingHour = 24
	f.svc.rules = rules

	_, err := f.book(at(23, 0), 2*time.Hour)
	require.NoError(t, err)

	free, err := f.svc.Availability(context.Background(), f.table.ID, day)
	require.NoError(t, err)
	assert.Equal(t, []model.Interval{{Start: at(10, 0), End: at(23, 0)}}, free)

	window := f.svc.OpeningWindow(day)
	assert.Equal(t, day.AddDate(0, 0, 1), window.End)
}

func TestConcurrentBooking_NoDoubleBooking(t *testing.T) {
	f := newFixture(t, nil)
	f.user = f.store.AddUser(model.User{Name: "Dave", Age: 50, Email: "dave@example.com", Balance: decimal.NewFromInt(100000)})

	const workers = 32
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		overlaps  int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			// 30分ずつずらした2時間の予約を同時に投げる
			start := at(10, 0).Add(time.Duration(i%8) * 30 * time.Minute)
			_, err := f.book(start, 2*time.Hour)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, model.ErrOverlap):
				overlaps++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, workers, successes+overlaps)
	assert.GreaterOrEqual(t, successes, 1)

	all, err := f.svc.List(context.Background(), model.Page{Limit: model.MaxLimit})
	require.NoError(t, err)
	for i := range all {
		for j := i + 1; j < len(all); j++ {
			a, b := all[i], all[j]
			if a.TableID == b.TableID && a.Active() && b.Active() {
				assert.False(t, a.Interval().Overlaps(b.Interval()), "reservations %d and %d overlap", a.ID, b.ID)
			}
		}
	}

	charged := decimal.NewFromInt(int64(successes) * 100)
	assert.True(t, decimal.NewFromInt(100000).Sub(charged).Equal(f.balance(t)))
}

func TestDeleteTable(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	done, err := f.book(at(10, 0), time.Hour)
	require.NoError(t, err)
	_, err = f.svc.Complete(ctx, done.ID)
	require.NoError(t, err)
	pending, err := f.book(at(12, 0), time.Hour)
	require.NoError(t, err)
	confirmed, err := f.book(at(14, 0), time.Hour)
	require.NoError(t, err)
	_, err = f.svc.Confirm(ctx, confirmed.ID)
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(700).Equal(f.balance(t)))

	cancelled, err := f.svc.DeleteTable(ctx, f.table.Number)
	require.NoError(t, err)
	require.Len(t, cancelled, 2)
	assert.Equal(t, pending.ID, cancelled[0].ID)
	assert.Equal(t, confirmed.ID, cancelled[1].ID)
	assert.True(t, decimal.NewFromInt(900).Equal(f.balance(t)))

	_, err = f.svc.GetTable(ctx, f.table.ID)
	assert.ErrorIs(t, err, model.ErrNotFound)

	history, err := f.svc.Get(ctx, done.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, history.Status)

	_, err = f.svc.DeleteTable(ctx, f.table.Number)
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestCreateTable(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	_, err := f.svc.CreateTable(ctx, model.TableInput{Number: 1, Seats: 2, Price: decimal.NewFromInt(10)})
	assert.ErrorIs(t, err, model.ErrDuplicate)

	_, err = f.svc.CreateTable(ctx, model.TableInput{Number: 2, Seats: 7, Price: decimal.NewFromInt(10)})
	assert.ErrorIs(t, err, model.ErrValidation)

	_, err = f.svc.CreateTable(ctx, model.TableInput{Number: 3, Seats: 2, Price: decimal.NewFromInt(20)})
	require.NoError(t, err)
	_, err = f.svc.CreateTable(ctx, model.TableInput{Number: 2, Seats: 6, Price: decimal.NewFromInt(30)})
	require.NoError(t, err)

	tables, err := f.svc.ListTables(ctx)
	require.NoError(t, err)
	require.Len(t, tables, 3)
	assert.Equal(t, []int{1, 2, 3}, []int{tables[0].Number, tables[1].Number, tables[2].Number})
}

func TestList_Pagination(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	for h := 10; h < 16; h++ {
		_, err := f.book(at(h, 0), time.Hour)
		require.NoError(t, err)
	}

	page, err := f.svc.List(ctx, model.Page{Limit: 2, Skip: 4})
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, at(14, 0), page[0].StartTime)

	empty, err := f.svc.List(ctx, model.Page{Limit: 2, Skip: 100})
	require.NoError(t, err)
	assert.Empty(t, empty)

	_, err = f.svc.List(ctx, model.Page{Limit: 0})
	assert.ErrorIs(t, err, model.ErrValidation)
	_, err = f.svc.List(ctx, model.Page{Limit: 10, Skip: 1001})
	assert.ErrorIs(t, err, model.ErrValidation)
}

type cachedDay struct {
	version int64
	free    []model.Interval
}

// recordingCache はRedis実装と同じく、版が一致する区間だけをヒットとして返します
type recordingCache struct {
	mu          sync.Mutex
	version     int64
	entries     map[string]cachedDay
	invalidated []string
}

func newRecordingCache() *recordingCache {
	return &recordingCache{entries: map[string]cachedDay{}}
}

func (c *recordingCache) Get(_ context.Context, _ int64, date string) ([]model.Interval, int64, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[date]
	if !ok || e.version != c.version {
		return nil, c.version, false, nil
	}
	return e.free, c.version, true, nil
}

func (c *recordingCache) Set(_ context.Context, _ int64, date string, version int64, free []model.Interval) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[date] = cachedDay{version: version, free: free}
	return nil
}

func (c *recordingCache) Invalidate(_ context.Context, _ int64, dates ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.version++
	for _, d := range dates {
		delete(c.entries, d)
		c.invalidated = append(c.invalidated, d)
	}
	return nil
}

// afterReadStore は空き状況をDBから読んだ直後に afterRead を一度だけ実行します
type afterReadStore struct {
	*MemStore
	afterRead func()
}

func (s *afterReadStore) ActiveReservations(ctx context.Context, tableID int64, window model.Interval) ([]model.Reservation, error) {
	reservations, err := s.MemStore.ActiveReservations(ctx, tableID, window)
	if fn := s.afterRead; fn != nil {
		s.afterRead = nil
		fn()
	}
	return reservations, err
}

func TestAvailability_BookingDuringReadIsNotCached(t *testing.T) {
	ctx := context.Background()
	cache := newRecordingCache()
	mem := NewMemStore()
	mem.now = func() time.Time { return testNow }
	store := &afterReadStore{MemStore: mem}
	svc := NewService(store, cache, testRules(), zap.NewNop())
	svc.now = func() time.Time { return testNow }

	user := mem.AddUser(model.User{Name: "Alice", Age: 30, Email: "alice@example.com", Balance: decimal.NewFromInt(1000)})
	table, err := svc.CreateTable(ctx, model.TableInput{Number: 1, Seats: 4, Price: decimal.NewFromInt(100)})
	require.NoError(t, err)

	// DBを読んだ後、キャッシュに書く前に予約が確定する
	store.afterRead = func() {
		_, err := svc.Book(ctx, BookRequest{TableID: table.ID, UserID: user.ID, Start: at(12, 0), Duration: 2 * time.Hour, PartySize: 2})
		require.NoError(t, err)
	}

	free, err := svc.Availability(ctx, table.ID, day)
	require.NoError(t, err)
	assert.Equal(t, []model.Interval{{Start: at(10, 0), End: at(23, 0)}}, free)

	free, err = svc.Availability(ctx, table.ID, day)
	require.NoError(t, err)
	assert.Equal(t, []model.Interval{
		{Start: at(10, 0), End: at(12, 0)},
		{Start: at(14, 0), End: at(23, 0)},
	}, free)

	// 再計算した結果は現在の版で保存され、次はキャッシュから返る
	cached, version, ok, err := cache.Get(ctx, table.ID, "2030-01-02")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(1), version)
	assert.Equal(t, free, cached)
}

func TestAvailability_CacheInvalidatedOnWrite(t *testing.T) {
	cache := newRecordingCache()
	f := newFixture(t, cache)
	ctx := context.Background()

	free, err := f.svc.Availability(ctx, f.table.ID, day)
	require.NoError(t, err)
	require.Len(t, free, 1)
	assert.Contains(t, cache.entries, "2030-01-02")

	// 日付をまたぐ予約は両日のキャッシュを破棄する
	r, err := f.book(at(22, 0), 3*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, []string{"2030-01-02", "2030-01-03"}, cache.invalidated)
	assert.NotContains(t, cache.entries, "2030-01-02")

	free, err = f.svc.Availability(ctx, f.table.ID, day)
	require.NoError(t, err)
	assert.Equal(t, []model.Interval{{Start: at(10, 0), End: at(22, 0)}}, free)

	_, err = f.svc.Cancel(ctx, r.ID)
	require.NoError(t, err)
	free, err = f.svc.Availability(ctx, f.table.ID, day)
	require.NoError(t, err)
	assert.Equal(t, []model.Interval{{Start: at(10, 0), End: at(23, 0)}}, free)
}
