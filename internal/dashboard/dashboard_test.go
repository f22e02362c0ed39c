package dashboard

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"waste-portal/internal/messaging"
	"waste-portal/internal/model"
)

var fixedNow = time.Date(2026, time.March, 14, 9, 30, 0, 0, time.UTC)

type fakeBackend struct {
	mu sync.Mutex

	payments     []model.Payment
	users        []model.User
	records      []model.WasteRecord
	userPayments []model.UserPayment

	paymentsErr error
	usersErr    error
	wasteErr    error
	writeErr    error

	// listPayments overrides ListPayments when set; call counts from 1.
	listPayments func(ctx context.Context, call int) ([]model.Payment, error)

	calls   map[string]int
	created []model.Payment
	updated map[string]model.Payment
	deleted []string
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		users: []model.User{
			{ID: "u1", FirstName: "Kamal", LastName: "Perera", ResidenceID: "R1"},
			{ID: "u2", FirstName: "Nimali", LastName: "Silva", ResidenceID: "R2"},
		},
		records: []model.WasteRecord{
			{ResidenceID: "R1", WasteType: "Organic"},
		},
		calls:   make(map[string]int),
		updated: make(map[string]model.Payment),
	}
}

func (f *fakeBackend) count(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[op]++
	return f.calls[op]
}

func (f *fakeBackend) callsTo(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func (f *fakeBackend) ListPayments(ctx context.Context) ([]model.Payment, error) {
	n := f.count("list_payments")
	if f.listPayments != nil {
		return f.listPayments(ctx, n)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.Payment(nil), f.payments...), f.paymentsErr
}

func (f *fakeBackend) ListUsers(context.Context) ([]model.User, error) {
	f.count("list_users")
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.User(nil), f.users...), f.usersErr
}

func (f *fakeBackend) ListWasteRecords(context.Context) ([]model.WasteRecord, error) {
	f.count("list_waste")
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.WasteRecord(nil), f.records...), f.wasteErr
}

func (f *fakeBackend) ListUserPayments(context.Context) ([]model.UserPayment, error) {
	f.count("list_user_payments")
	return f.userPayments, f.writeErr
}

func (f *fakeBackend) CreatePayment(_ context.Context, p model.Payment) (model.Payment, error) {
	f.count("create")
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr != nil {
		return model.Payment{}, f.writeErr
	}
	p.ID = "65f1c0ffee00000000000001"
	f.created = append(f.created, p)
	f.payments = append(f.payments, p)
	return p, nil
}

func (f *fakeBackend) UpdatePayment(_ context.Context, id string, p model.Payment) error {
	f.count("update")
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr != nil {
		return f.writeErr
	}
	f.updated[id] = p
	return nil
}

func (f *fakeBackend) DeletePayment(_ context.Context, id string) error {
	f.count("delete")
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr != nil {
		return f.writeErr
	}
	f.deleted = append(f.deleted, id)
	kept := f.payments[:0]
	for _, p := range f.payments {
		if p.ID != id {
			kept = append(kept, p)
		}
	}
	f.payments = kept
	return nil
}

type recorded struct {
	mu   sync.Mutex
	keys []string
}

func (r *recorded) Record(_ context.Context, key string, _ any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.keys = append(r.keys, key)
	return nil
}

func newDashboard(t *testing.T, api *fakeBackend, match DuplicateMatch) (*Dashboard, *recorded) {
	t.Helper()
	events := &recorded{}
	d := New(api, Options{
		DuplicateMatch: match,
		Events:         events,
		Now:            func() time.Time { return fixedNow },
	})
	t.Cleanup(d.Close)
	return d, events
}

func TestWasteTypeForUser(t *testing.T) {
	d, _ := newDashboard(t, newFakeBackend(), MatchUserID)
	require.NoError(t, d.Load(context.Background()))

	assert.Equal(t, "Organic", d.WasteTypeForUser("u1"))
	assert.Equal(t, NotCollected, d.WasteTypeForUser("u2"))
	assert.Equal(t, NoData, d.WasteTypeForUser("nobody"))
}

func TestWasteTypeForUser_BeforeLoad(t *testing.T) {
	d, _ := newDashboard(t, newFakeBackend(), MatchUserID)
	assert.Equal(t, NoData, d.WasteTypeForUser("u1"))
}

func TestLoad_RowsAreSanitizedAndJoined(t *testing.T) {
	api := newFakeBackend()
	api.records[0].WasteType = "<b>Organic</b>"
	api.payments = []model.Payment{
		{ID: "p1", UserID: "u1", FirstName: "<script>x()</script>Kamal", LastName: "Perera", FlatFee: decimal.NewFromInt(10), TotalBill: decimal.NewFromInt(300)},
		{ID: "p2", UserID: "u2", FirstName: "Nimali", LastName: "Silva"},
		{ID: "p3", UserID: "gone", FirstName: "Old", LastName: "Record"},
	}
	d, _ := newDashboard(t, api, MatchUserID)

	require.NoError(t, d.Load(context.Background()))

	view := d.View()
	assert.Equal(t, StateIdle, view.State)
	assert.Empty(t, view.Error)
	require.Len(t, view.Rows, 3)
	assert.Equal(t, "p1", view.Rows[0].PaymentID)
	assert.Equal(t, "Kamal", view.Rows[0].FirstName)
	assert.Equal(t, "Organic", view.Rows[0].WasteType)
	assert.Equal(t, NotCollected, view.Rows[1].WasteType)
	assert.Equal(t, NoData, view.Rows[2].WasteType)
	assert.Len(t, view.Users, 2)
}

func TestLoad_FailureKeepsPreviousCollection(t *testing.T) {
	api := newFakeBackend()
	api.payments = []model.Payment{{ID: "p1", UserID: "u1"}}
	d, _ := newDashboard(t, api, MatchUserID)
	require.NoError(t, d.Load(context.Background()))

	api.mu.Lock()
	api.payments = nil
	api.paymentsErr = errors.New("connection refused")
	api.wasteErr = errors.New("timeout")
	api.mu.Unlock()

	err := d.Load(context.Background())

	require.Error(t, err)
	var de *Error
	require.True(t, errors.As(err, &de))
	assert.Len(t, d.Rows(), 1, "stale list retained")
	assert.Contains(t, []string{MsgLoadPayments, MsgLoadWaste}, d.Err())
	assert.Equal(t, "Organic", d.WasteTypeForUser("u1"))
	assert.Equal(t, StateIdle, d.State())
}

func TestCreate_TotalIsFlatFeeTimesThirty(t *testing.T) {
	fees := []string{"0", "1", "12.35", "99.99", "1500"}

	for _, fee := range fees {
		t.Run(fee, func(t *testing.T) {
			api := newFakeBackend()
			d, events := newDashboard(t, api, MatchUserID)
			require.NoError(t, d.Load(context.Background()))

			flat := decimal.RequireFromString(fee)
			created, err := d.Create(context.Background(), model.CreatePaymentRequest{
				UserID:     "u1",
				FlatFee:    flat,
				PaybackFee: decimal.NewFromInt(5),
			})

			require.NoError(t, err)
			require.Len(t, api.created, 1)
			sent := api.created[0]
			assert.True(t, sent.TotalBill.Equal(flat.Mul(decimal.NewFromInt(30))), "total %s", sent.TotalBill)
			assert.True(t, sent.PaybackFee.Equal(decimal.NewFromInt(5)))
			assert.Equal(t, model.PaymentStatusPending, sent.Status)
			assert.Equal(t, "2026-03-14T09:30:00Z", sent.Date)
			assert.Equal(t, "Kamal", sent.FirstName)
			assert.Equal(t, "u1", created.UserID)

			assert.Equal(t, 2, api.callsTo("list_payments"), "list refetched")
			assert.Len(t, d.Rows(), 1)
			assert.Equal(t, []string{messaging.RoutingKeyPaymentCreated}, events.keys)
		})
	}
}

func TestCreate_Duplicate(t *testing.T) {
	t.Run("same user id", func(t *testing.T) {
		api := newFakeBackend()
		api.payments = []model.Payment{{ID: "p1", UserID: "u1", FirstName: "Kamal", LastName: "Perera"}}
		d, _ := newDashboard(t, api, MatchUserID)
		require.NoError(t, d.Load(context.Background()))

		_, err := d.Create(context.Background(), model.CreatePaymentRequest{UserID: "u1", FlatFee: decimal.NewFromInt(1)})

		assert.ErrorIs(t, err, ErrDuplicatePayment)
		assert.Equal(t, "This user already has a payment entry.", d.Err())
		assert.Zero(t, api.callsTo("create"))
		// every collection resynchronized
		assert.Equal(t, 2, api.callsTo("list_payments"))
		assert.Equal(t, 2, api.callsTo("list_users"))
		assert.Equal(t, 2, api.callsTo("list_waste"))
	})

	t.Run("matching first and last name", func(t *testing.T) {
		api := newFakeBackend()
		api.users = append(api.users, model.User{ID: "u3", FirstName: "Kamal", LastName: "Perera"})
		api.payments = []model.Payment{{ID: "p1", UserID: "u1", FirstName: "Kamal", LastName: "Perera"}}
		d, _ := newDashboard(t, api, MatchName)
		require.NoError(t, d.Load(context.Background()))

		_, err := d.Create(context.Background(), model.CreatePaymentRequest{UserID: "u3", FlatFee: decimal.NewFromInt(1)})

		assert.ErrorIs(t, err, ErrDuplicatePayment)
		assert.Zero(t, api.callsTo("create"))
	})

	t.Run("namesake allowed when keyed by id", func(t *testing.T) {
		api := newFakeBackend()
		api.users = append(api.users, model.User{ID: "u3", FirstName: "Kamal", LastName: "Perera"})
		api.payments = []model.Payment{{ID: "p1", UserID: "u1", FirstName: "Kamal", LastName: "Perera"}}
		d, _ := newDashboard(t, api, MatchUserID)
		require.NoError(t, d.Load(context.Background()))

		_, err := d.Create(context.Background(), model.CreatePaymentRequest{UserID: "u3", FlatFee: decimal.NewFromInt(1)})

		assert.NoError(t, err)
		assert.Equal(t, 1, api.callsTo("create"))
	})
}

func TestCreate_InvalidInput(t *testing.T) {
	api := newFakeBackend()
	d, _ := newDashboard(t, api, MatchUserID)
	require.NoError(t, d.Load(context.Background()))

	_, err := d.Create(context.Background(), model.CreatePaymentRequest{UserID: "missing", FlatFee: decimal.NewFromInt(1)})
	assert.ErrorIs(t, err, ErrUserRequired)

	_, err = d.Create(context.Background(), model.CreatePaymentRequest{UserID: "u1", FlatFee: decimal.NewFromInt(-1)})
	assert.ErrorIs(t, err, ErrNegativeFee)

	assert.Zero(t, api.callsTo("create"))
}

func TestCreate_BackendFailure(t *testing.T) {
	api := newFakeBackend()
	d, events := newDashboard(t, api, MatchUserID)
	require.NoError(t, d.Load(context.Background()))
	api.writeErr = errors.New("500")

	_, err := d.Create(context.Background(), model.CreatePaymentRequest{UserID: "u1", FlatFee: decimal.NewFromInt(1)})

	var de *Error
	require.True(t, errors.As(err, &de))
	assert.Equal(t, MsgSavePayment, de.Message)
	assert.Equal(t, MsgSavePayment, d.Err())
	assert.Empty(t, events.keys)
	assert.Equal(t, 1, api.callsTo("list_payments"), "no refetch after failure")
}

func TestUpdate(t *testing.T) {
	api := newFakeBackend()
	api.payments = []model.Payment{{
		ID: "p1", UserID: "u1", FirstName: "Kamal", LastName: "Perera",
		FlatFee: decimal.NewFromInt(10), TotalBill: decimal.NewFromInt(300), Status: "Completed",
	}}
	d, events := newDashboard(t, api, MatchUserID)
	require.NoError(t, d.Load(context.Background()))

	// an existing payment never trips the duplicate check
	got, err := d.Update(context.Background(), "p1", model.UpdatePaymentRequest{
		FlatFee:    decimal.RequireFromString("2.5"),
		PaybackFee: decimal.NewFromInt(1),
	})

	require.NoError(t, err)
	sent := api.updated["p1"]
	assert.True(t, sent.TotalBill.Equal(decimal.NewFromInt(75)))
	assert.Equal(t, "Completed", sent.Status)
	assert.Equal(t, "u1", sent.UserID)
	assert.Equal(t, got, sent)
	assert.Equal(t, 2, api.callsTo("list_payments"))
	assert.Equal(t, []string{messaging.RoutingKeyPaymentUpdated}, events.keys)

	_, err = d.Update(context.Background(), "nope", model.UpdatePaymentRequest{})
	assert.ErrorIs(t, err, ErrPaymentNotFound)
}

func TestDelete(t *testing.T) {
	api := newFakeBackend()
	api.payments = []model.Payment{{ID: "p1", UserID: "u1"}, {ID: "p2", UserID: "u2"}}
	d, events := newDashboard(t, api, MatchUserID)
	require.NoError(t, d.Load(context.Background()))

	require.NoError(t, d.Delete(context.Background(), "p1"))

	assert.Equal(t, []string{"p1"}, api.deleted)
	rows := d.Rows()
	require.Len(t, rows, 1)
	assert.Equal(t, "p2", rows[0].PaymentID)
	assert.Equal(t, []string{messaging.RoutingKeyPaymentDeleted}, events.keys)
}

func TestDelete_FailureKeepsRows(t *testing.T) {
	api := newFakeBackend()
	api.payments = []model.Payment{{ID: "p1", UserID: "u1"}}
	d, _ := newDashboard(t, api, MatchUserID)
	require.NoError(t, d.Load(context.Background()))
	api.writeErr = errors.New("boom")

	err := d.Delete(context.Background(), "p1")

	assert.Error(t, err)
	assert.Len(t, d.Rows(), 1)
	assert.Equal(t, MsgDeletePayment, d.Err())
}

func TestDetails(t *testing.T) {
	api := newFakeBackend()
	api.userPayments = []model.UserPayment{
		{ID: "h1", UserID: "u1", TotalAmount: "300", PaymentStatus: "Completed", CreatedAt: "2026-01-01"},
		{ID: "h2", UserID: "u2", TotalAmount: "150", PaymentStatus: "pending"},
		{ID: "h3", UserID: "u1", TotalAmount: "<i>75.50</i>", PaymentStatus: " <b>pending</b> ", CreatedAt: "2026-02-01"},
	}
	d, _ := newDashboard(t, api, MatchUserID)

	details, err := d.Details(context.Background(), "u1")

	require.NoError(t, err)
	require.Len(t, details, 2)
	assert.Equal(t, "h1", details[0].ID)
	assert.True(t, details[0].Completed)
	assert.True(t, details[0].TotalAmount.Equal(decimal.NewFromInt(300)))
	assert.Equal(t, "h3", details[1].ID)
	assert.Equal(t, "pending", details[1].PaymentStatus)
	assert.False(t, details[1].Completed)
	assert.True(t, details[1].TotalAmount.Equal(decimal.RequireFromString("75.5")))
}

func TestDetails_Failure(t *testing.T) {
	api := newFakeBackend()
	api.writeErr = errors.New("down")
	d, _ := newDashboard(t, api, MatchUserID)

	_, err := d.Details(context.Background(), "u1")

	assert.Error(t, err)
	assert.Equal(t, MsgLoadDetails, d.Err())
}

func TestClose_DropsLateResult(t *testing.T) {
	api := newFakeBackend()
	entered := make(chan struct{})
	release := make(chan struct{})
	api.listPayments = func(context.Context, int) ([]model.Payment, error) {
		close(entered)
		<-release
		return []model.Payment{{ID: "late"}}, nil
	}
	d, _ := newDashboard(t, api, MatchUserID)

	loaded := make(chan error, 1)
	go func() { loaded <- d.Load(context.Background()) }()

	<-entered
	assert.Equal(t, StateLoading, d.State())
	d.Close()
	close(release)
	<-loaded

	assert.Empty(t, d.Rows())
	assert.ErrorIs(t, d.Load(context.Background()), ErrClosed)
}

func TestClose_CancelsInFlightFetch(t *testing.T) {
	api := newFakeBackend()
	entered := make(chan struct{})
	api.listPayments = func(ctx context.Context, _ int) ([]model.Payment, error) {
		close(entered)
		<-ctx.Done()
		return nil, ctx.Err()
	}
	d, _ := newDashboard(t, api, MatchUserID)

	loaded := make(chan error, 1)
	go func() { loaded <- d.Load(context.Background()) }()
	<-entered
	d.Close()

	select {
	case <-loaded:
	case <-time.After(2 * time.Second):
		t.Fatal("fetch not canceled by Close")
	}
	assert.Empty(t, d.Err(), "canceled fetch leaves no visible error")
}

func TestSupersededFetchIsDropped(t *testing.T) {
	api := newFakeBackend()
	entered := make(chan struct{})
	release := make(chan struct{})
	api.listPayments = func(_ context.Context, call int) ([]model.Payment, error) {
		if call == 1 {
			close(entered)
			<-release
			return []model.Payment{{ID: "old"}}, nil
		}
		return []model.Payment{{ID: "new"}}, nil
	}
	d, _ := newDashboard(t, api, MatchUserID)

	first := make(chan error, 1)
	go func() { first <- d.Load(context.Background()) }()
	<-entered

	require.NoError(t, d.Invalidate(context.Background()))
	close(release)
	require.NoError(t, <-first)

	rows := d.Rows()
	require.Len(t, rows, 1)
	assert.Equal(t, "new", rows[0].PaymentID)
}

func TestExport(t *testing.T) {
	api := newFakeBackend()
	api.payments = []model.Payment{{
		ID: "p1", UserID: "u1", FirstName: "Kamal", LastName: "Perera",
		FlatFee: decimal.NewFromInt(10), TotalBill: decimal.NewFromInt(300), Status: "pending",
	}, {
		ID: "p2", UserID: "u1", FirstName: "Kamal", LastName: "Perera",
		FlatFee:    decimal.RequireFromString("1234567890123.456789"),
		PaybackFee: decimal.RequireFromString("0.1"),
		TotalBill:  decimal.RequireFromString("37037036703703.70367"),
	}}
	d, _ := newDashboard(t, api, MatchUserID)
	require.NoError(t, d.Load(context.Background()))

	var buf bytes.Buffer
	require.NoError(t, d.Export(&buf))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(exportSheet)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "Payment ID", rows[0][0])
	assert.Equal(t, "Organic", rows[1][4])
	assert.Equal(t, "300", rows[1][7])
	assert.Equal(t, "1234567890123.456789", rows[2][5])
	assert.Equal(t, "0.1", rows[2][6])
	assert.Equal(t, "37037036703703.70367", rows[2][7])
}

func TestEnsureLoaded(t *testing.T) {
	api := newFakeBackend()
	d, _ := newDashboard(t, api, MatchUserID)

	require.NoError(t, d.EnsureLoaded(context.Background()))
	require.NoError(t, d.EnsureLoaded(context.Background()))

	assert.Equal(t, 1, api.callsTo("list_users"))
}
