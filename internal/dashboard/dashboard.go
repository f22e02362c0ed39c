// Package dashboard is the payment reconciliation view. It joins payments,
// users and waste records fetched from the backend into one row per payment
// and runs the admin create, update and delete operations against them.
//
// A Dashboard lives as long as the browser session that owns it. Fetches
// are bound to that lifetime: once the dashboard is closed, or a newer fetch
// of the same collection has started, a late result is dropped.
package dashboard

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"waste-portal/internal/messaging"
	"waste-portal/internal/model"
	"waste-portal/internal/sanitize"
	"waste-portal/pkg/logging"
)

type State string

const (
	StateIdle    State = "idle"
	StateLoading State = "loading"
)

// Visible messages.
const (
	MsgLoadPayments  = "Failed to load payments"
	MsgLoadUsers     = "Failed to load users"
	MsgLoadWaste     = "Failed to load waste collection data"
	MsgLoadDetails   = "Failed to load payment details"
	MsgSavePayment   = "Failed to add/update payment"
	MsgDeletePayment = "Failed to delete payment"

	MsgPaymentAdded   = "Payment added successfully"
	MsgPaymentUpdated = "Payment updated successfully"
	MsgPaymentDeleted = "Payment deleted successfully"

	NoData       = "No data"
	NotCollected = "Not collected"
)

const statusCompleted = "Completed"

var (
	ErrDuplicatePayment = errors.New("This user already has a payment entry.")
	ErrUserRequired     = errors.New("Please select a user.")
	ErrNegativeFee      = errors.New("Flat fee cannot be negative.")
	ErrPaymentNotFound  = errors.New("Payment not found.")
	ErrClosed           = errors.New("dashboard closed")
)

// Error is a failed backend operation. Message is what the dashboard shows.
type Error struct {
	Message string
	Err     error
}

func (e *Error) Error() string { return e.Message + ": " + e.Err.Error() }
func (e *Error) Unwrap() error { return e.Err }

// DuplicateMatch selects how an existing payment is matched to a user.
type DuplicateMatch string

const (
	MatchUserID DuplicateMatch = "user_id"
	MatchName   DuplicateMatch = "name"
)

// Backend is the part of the backend client the dashboard uses.
type Backend interface {
	ListPayments(ctx context.Context) ([]model.Payment, error)
	ListUsers(ctx context.Context) ([]model.User, error)
	ListWasteRecords(ctx context.Context) ([]model.WasteRecord, error)
	ListUserPayments(ctx context.Context) ([]model.UserPayment, error)
	CreatePayment(ctx context.Context, p model.Payment) (model.Payment, error)
	UpdatePayment(ctx context.Context, id string, p model.Payment) error
	DeletePayment(ctx context.Context, id string) error
}

type Options struct {
	DuplicateMatch DuplicateMatch
	Events         messaging.Recorder
	Now            func() time.Time
}

type collection int

const (
	collPayments collection = iota
	collUsers
	collWaste
	numCollections
)

type Dashboard struct {
	api    Backend
	events messaging.Recorder
	match  DuplicateMatch
	now    func() time.Time
	log    *slog.Logger

	life   context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	payments []model.Payment
	users    []model.User
	records  []model.WasteRecord
	seq      [numCollections]uint64
	inFlight int
	lastErr  string
	mounted  bool
}

func New(api Backend, opts Options) *Dashboard {
	if opts.DuplicateMatch == "" {
		opts.DuplicateMatch = MatchUserID
	}
	if opts.Events == nil {
		opts.Events = messaging.NopRecorder{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	life, cancel := context.WithCancel(context.Background())
	return &Dashboard{
		api:    api,
		events: opts.Events,
		match:  opts.DuplicateMatch,
		now:    opts.Now,
		log:    logging.Component("dashboard"),
		life:   life,
		cancel: cancel,
	}
}

// View is a snapshot for rendering.
type View struct {
	State State              `json:"state"`
	Error string             `json:"error,omitempty"`
	Rows  []model.PaymentRow `json:"rows"`
	Users []model.User       `json:"users"`
}

func (d *Dashboard) View() View {
	d.mu.Lock()
	defer d.mu.Unlock()
	return View{
		State: d.stateLocked(),
		Error: d.lastErr,
		Rows:  d.rowsLocked(),
		Users: append([]model.User(nil), d.users...),
	}
}

func (d *Dashboard) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stateLocked()
}

// Err returns the visible error, empty when the last operation succeeded.
func (d *Dashboard) Err() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastErr
}

func (d *Dashboard) stateLocked() State {
	if d.inFlight > 0 {
		return StateLoading
	}
	return StateIdle
}

func (d *Dashboard) begin() func() {
	d.mu.Lock()
	d.inFlight++
	d.mu.Unlock()
	return func() {
		d.mu.Lock()
		d.inFlight--
		d.mu.Unlock()
	}
}

func (d *Dashboard) setError(msg string) {
	d.mu.Lock()
	d.lastErr = msg
	d.mu.Unlock()
}

// bind derives a context that ends with ctx or with the dashboard, whichever
// comes first.
func (d *Dashboard) bind(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(d.life, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

// Load fetches payments, users and waste records concurrently. Each result
// replaces its collection wholesale; a failed fetch keeps the previous
// collection and sets the visible error. The returned error joins every
// failure.
func (d *Dashboard) Load(ctx context.Context) error {
	if d.life.Err() != nil {
		return ErrClosed
	}
	d.mu.Lock()
	d.mounted = true
	d.lastErr = ""
	d.mu.Unlock()

	var (
		wg   sync.WaitGroup
		errs [numCollections]error
	)
	wg.Add(int(numCollections))
	go func() {
		defer wg.Done()
		errs[collPayments] = d.fetchPayments(ctx)
	}()
	go func() {
		defer wg.Done()
		errs[collUsers] = fetch(d, ctx, collUsers, MsgLoadUsers, d.api.ListUsers, func(v []model.User) { d.users = v })
	}()
	go func() {
		defer wg.Done()
		errs[collWaste] = fetch(d, ctx, collWaste, MsgLoadWaste, d.api.ListWasteRecords, func(v []model.WasteRecord) { d.records = v })
	}()
	wg.Wait()

	return errors.Join(errs[:]...)
}

// EnsureLoaded runs the first Load of a dashboard that has never been
// loaded.
func (d *Dashboard) EnsureLoaded(ctx context.Context) error {
	d.mu.Lock()
	mounted := d.mounted
	d.mu.Unlock()
	if mounted {
		return nil
	}
	return d.Load(ctx)
}

func (d *Dashboard) fetchPayments(ctx context.Context) error {
	return fetch(d, ctx, collPayments, MsgLoadPayments, d.api.ListPayments, func(v []model.Payment) { d.payments = v })
}

// fetch runs one collection read. assign is called with d.mu held and only
// when the result is still current.
func fetch[T any](d *Dashboard, ctx context.Context, c collection, failMsg string, list func(context.Context) ([]T, error), assign func([]T)) error {
	done := d.begin()
	defer done()

	d.mu.Lock()
	d.seq[c]++
	seq := d.seq[c]
	d.mu.Unlock()

	ctx, cancel := d.bind(ctx)
	defer cancel()

	items, err := list(ctx)

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.life.Err() != nil || d.seq[c] != seq {
		return nil
	}
	if err != nil {
		d.lastErr = failMsg
		d.log.WarnContext(ctx, "fetch failed", "collection", failMsg, "error", err)
		return &Error{Message: failMsg, Err: err}
	}
	clean := sanitize.Slice(items)
	if clean == nil {
		clean = []T{}
	}
	assign(clean)
	return nil
}

// Rows returns one row per payment in source order.
func (d *Dashboard) Rows() []model.PaymentRow {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.rowsLocked()
}

func (d *Dashboard) rowsLocked() []model.PaymentRow {
	rows := make([]model.PaymentRow, 0, len(d.payments))
	for _, p := range d.payments {
		rows = append(rows, model.PaymentRow{
			PaymentID:  p.ID,
			UserID:     p.UserID,
			FirstName:  p.FirstName,
			LastName:   p.LastName,
			WasteType:  d.wasteTypeLocked(p.UserID),
			FlatFee:    p.FlatFee,
			PaybackFee: p.PaybackFee,
			TotalBill:  p.TotalBill,
			Status:     p.Status,
		})
	}
	return rows
}

// WasteTypeForUser resolves user → residence → waste record. An unknown user
// gives NoData and a user without a record gives NotCollected.
func (d *Dashboard) WasteTypeForUser(userID string) string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.wasteTypeLocked(userID)
}

func (d *Dashboard) wasteTypeLocked(userID string) string {
	user, ok := d.userLocked(userID)
	if !ok {
		return NoData
	}
	for _, r := range d.records {
		if r.ResidenceID == user.ResidenceID {
			return r.WasteType
		}
	}
	return NotCollected
}

func (d *Dashboard) userLocked(id string) (model.User, bool) {
	for _, u := range d.users {
		if u.ID == id {
			return u, true
		}
	}
	return model.User{}, false
}

func (d *Dashboard) hasPaymentLocked(u model.User) bool {
	for _, p := range d.payments {
		switch d.match {
		case MatchName:
			if p.FirstName == u.FirstName && p.LastName == u.LastName {
				return true
			}
		default:
			if p.UserID == u.ID {
				return true
			}
		}
	}
	return false
}

// Create adds a payment for a loaded user. When the user already has one,
// every cached collection is dropped and reloaded before ErrDuplicatePayment
// is returned.
func (d *Dashboard) Create(ctx context.Context, req model.CreatePaymentRequest) (model.Payment, error) {
	if req.FlatFee.IsNegative() {
		return model.Payment{}, ErrNegativeFee
	}

	d.mu.Lock()
	user, ok := d.userLocked(req.UserID)
	duplicate := ok && d.hasPaymentLocked(user)
	d.mu.Unlock()

	if !ok {
		return model.Payment{}, ErrUserRequired
	}
	if duplicate {
		if err := d.Invalidate(ctx); err != nil {
			d.log.WarnContext(ctx, "resync after duplicate", "error", err)
		}
		d.setError(ErrDuplicatePayment.Error())
		return model.Payment{}, ErrDuplicatePayment
	}

	done := d.begin()
	defer done()

	payment := sanitize.Struct(model.Payment{
		UserID:     user.ID,
		FirstName:  user.FirstName,
		LastName:   user.LastName,
		FlatFee:    req.FlatFee,
		PaybackFee: req.PaybackFee,
		TotalBill:  model.TotalFor(req.FlatFee),
		Status:     model.PaymentStatusPending,
		Date:       d.now().UTC().Format(time.RFC3339),
	})

	created, err := d.api.CreatePayment(ctx, payment)
	if err != nil {
		d.setError(MsgSavePayment)
		return model.Payment{}, &Error{Message: MsgSavePayment, Err: err}
	}

	d.record(ctx, messaging.RoutingKeyPaymentCreated, messaging.NewPaymentEvent(created))
	d.afterWrite(ctx)
	return created, nil
}

// Update recomputes the total from the edited flat fee and saves the
// payment by id. The payment keeps its owner, names and status.
func (d *Dashboard) Update(ctx context.Context, id string, req model.UpdatePaymentRequest) (model.Payment, error) {
	if req.FlatFee.IsNegative() {
		return model.Payment{}, ErrNegativeFee
	}

	d.mu.Lock()
	existing, ok := d.paymentLocked(id)
	d.mu.Unlock()
	if !ok {
		return model.Payment{}, ErrPaymentNotFound
	}

	done := d.begin()
	defer done()

	payment := existing
	payment.FlatFee = req.FlatFee
	payment.PaybackFee = req.PaybackFee
	payment.TotalBill = model.TotalFor(req.FlatFee)
	payment.Date = d.now().UTC().Format(time.RFC3339)
	if payment.Status == "" {
		payment.Status = model.PaymentStatusPending
	}
	payment = sanitize.Struct(payment)

	if err := d.api.UpdatePayment(ctx, id, payment); err != nil {
		d.setError(MsgSavePayment)
		return model.Payment{}, &Error{Message: MsgSavePayment, Err: err}
	}

	d.record(ctx, messaging.RoutingKeyPaymentUpdated, messaging.NewPaymentEvent(payment))
	d.afterWrite(ctx)
	return payment, nil
}

func (d *Dashboard) paymentLocked(id string) (model.Payment, bool) {
	for _, p := range d.payments {
		if p.ID == id {
			return p, true
		}
	}
	return model.Payment{}, false
}

// Delete removes a payment on the backend and then refetches the list.
// Nothing is removed locally before the backend confirms.
func (d *Dashboard) Delete(ctx context.Context, id string) error {
	done := d.begin()
	defer done()

	if err := d.api.DeletePayment(ctx, id); err != nil {
		d.setError(MsgDeletePayment)
		return &Error{Message: MsgDeletePayment, Err: err}
	}

	d.mu.Lock()
	deleted, ok := d.paymentLocked(id)
	d.mu.Unlock()
	if !ok {
		deleted = model.Payment{ID: id}
	}
	d.record(ctx, messaging.RoutingKeyPaymentDeleted, messaging.NewPaymentEvent(deleted))
	d.afterWrite(ctx)
	return nil
}

func (d *Dashboard) afterWrite(ctx context.Context) {
	d.setError("")
	if err := d.fetchPayments(ctx); err != nil {
		d.log.WarnContext(ctx, "refetch after write", "error", err)
	}
}

func (d *Dashboard) record(ctx context.Context, key string, event any) {
	if err := d.events.Record(ctx, key, event); err != nil {
		d.log.WarnContext(ctx, "record event", "routing_key", key, "error", err)
	}
}

// Details returns the payment history of one user in source order.
func (d *Dashboard) Details(ctx context.Context, userID string) ([]model.PaymentDetail, error) {
	done := d.begin()
	defer done()

	ctx, cancel := d.bind(ctx)
	defer cancel()

	all, err := d.api.ListUserPayments(ctx)
	if err != nil {
		d.setError(MsgLoadDetails)
		return nil, &Error{Message: MsgLoadDetails, Err: err}
	}

	var mine []model.UserPayment
	for _, p := range all {
		if p.UserID == userID {
			mine = append(mine, p)
		}
	}
	mine = sanitize.Slice(mine)

	details := make([]model.PaymentDetail, 0, len(mine))
	for _, p := range mine {
		amount, err := decimal.NewFromString(p.TotalAmount)
		if err != nil {
			d.log.DebugContext(ctx, "unparseable amount", "payment", p.ID, "amount", p.TotalAmount)
			amount = decimal.Zero
		}
		details = append(details, model.PaymentDetail{
			ID:            p.ID,
			Date:          p.CreatedAt,
			TotalAmount:   amount,
			PaymentStatus: p.PaymentStatus,
			Completed:     p.PaymentStatus == statusCompleted,
		})
	}
	return details, nil
}

// Invalidate drops every cached collection, discards in-flight results and
// reloads from the backend.
func (d *Dashboard) Invalidate(ctx context.Context) error {
	d.mu.Lock()
	d.payments = nil
	d.users = nil
	d.records = nil
	for c := range d.seq {
		d.seq[c]++
	}
	d.mu.Unlock()
	return d.Load(ctx)
}

// Close ends the dashboard lifetime. In-flight fetches are canceled and
// their results dropped.
func (d *Dashboard) Close() {
	d.cancel()
}
