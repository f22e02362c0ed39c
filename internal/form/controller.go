// Package form holds the server-side schedule forms. A Controller owns one
// draft and submits it through the same pipeline for both variants:
// validate, assemble, sanitize, size-check, then create or update.
//
// The variants differ in when input is checked. The create form uses the
// Deferred strategy and stores keystrokes raw until submission. The edit
// form uses the Immediate strategy and sanitizes each change, refusing the
// change outright when it breaks a field rule.
package form

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"time"

	"waste-portal/internal/backend"
	"waste-portal/internal/messaging"
	"waste-portal/internal/model"
	"waste-portal/internal/sanitize"
	"waste-portal/internal/validate"
	"waste-portal/pkg/logging"
)

// MaxPayloadBytes caps the serialized schedule sent to the backend.
const MaxPayloadBytes = 20000

// ViewSchedulesPath is where the edit form sends the user after saving.
const ViewSchedulesPath = "/schedule/view"

const (
	MsgCreated         = "Schedule created successfully!"
	MsgUpdated         = "Schedule updated successfully!"
	MsgSubmitFailed    = "Error submitting form."
	MsgPayloadTooLarge = "Payload too large. Please reduce the input size."
	MsgWasteTypes      = "Failed to fetch waste types."
	MsgLoadSchedule    = "Failed to load schedule."

	MsgRejectName   = "Special characters like < and > are not allowed in names."
	MsgRejectMobile = "Invalid mobile number format."
	MsgRejectEmail  = "Invalid email format."
	MsgUnknownField = "Unknown field."
)

var (
	ErrPayloadTooLarge  = errors.New(MsgPayloadTooLarge)
	ErrSubmitInProgress = errors.New("A submission is already in progress.")
	ErrNotLoaded        = errors.New("No schedule loaded.")
	ErrSuperseded       = errors.New("The schedule was reloaded or edited meanwhile.")
	ErrClosed           = errors.New("form closed")
)

var angleRe = regexp.MustCompile(`[<>]`)

// Strategy decides when field input is checked.
type Strategy string

const (
	Deferred  Strategy = "deferred"
	Immediate Strategy = "immediate"
)

type Mode string

const (
	ModeCreate Mode = "create"
	ModeUpdate Mode = "update"
)

// RejectError is a field change refused by the Immediate strategy. The draft
// is left as it was.
type RejectError struct {
	Field   string
	Message string
}

func (e *RejectError) Error() string { return e.Message }

// Error is a failed backend call. Message is what the form shows.
type Error struct {
	Message string
	Err     error
}

func (e *Error) Error() string { return e.Message + ": " + e.Err.Error() }
func (e *Error) Unwrap() error { return e.Err }

// Backend is the part of the backend client the forms use.
type Backend interface {
	CreateSchedule(ctx context.Context, s model.Schedule) (model.Schedule, error)
	UpdateSchedule(ctx context.Context, id string, s model.Schedule) error
	GetSchedule(ctx context.Context, id string) (model.Schedule, error)
	ListWasteTypes(ctx context.Context) ([]model.WasteType, error)
}

// Owner identifies the signed-in resident a schedule belongs to.
type Owner struct {
	UserID      string
	ResidenceID string
}

type Options struct {
	Events messaging.Recorder
	// Now returns the current time in the collection time zone.
	Now func() time.Time
}

// Result is a successful submission.
type Result struct {
	Message  string         `json:"message"`
	Redirect string         `json:"redirect,omitempty"`
	Schedule model.Schedule `json:"schedule"`
}

type Controller struct {
	api      Backend
	events   messaging.Recorder
	now      func() time.Time
	mode     Mode
	strategy Strategy
	log      *slog.Logger

	life   context.Context
	cancel context.CancelFunc

	mu         sync.Mutex
	draft      model.ScheduleDraft
	loaded     *model.Schedule
	submitting bool
	// gen advances on every Load and every accepted Change
	gen uint64
}

// NewCreate returns the schedule creation form.
func NewCreate(api Backend, opts Options) *Controller {
	return newController(api, opts, ModeCreate, Deferred)
}

// NewUpdate returns the schedule edit form. Load must succeed before Submit.
func NewUpdate(api Backend, opts Options) *Controller {
	return newController(api, opts, ModeUpdate, Immediate)
}

func newController(api Backend, opts Options, mode Mode, strategy Strategy) *Controller {
	if opts.Events == nil {
		opts.Events = messaging.NopRecorder{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	life, cancel := context.WithCancel(context.Background())
	return &Controller{
		api:      api,
		events:   opts.Events,
		now:      opts.Now,
		mode:     mode,
		strategy: strategy,
		log:      logging.Component("form").With("mode", string(mode)),
		life:     life,
		cancel:   cancel,
	}
}

func (c *Controller) Mode() Mode { return c.mode }
func (c *Controller) Strategy() Strategy { return c.strategy }

func (c *Controller) Draft() model.ScheduleDraft {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.draft
}

// Change applies one field edit according to the form's strategy.
func (c *Controller) Change(field, value string) error {
	if c.strategy == Immediate {
		value = sanitize.String(value)
		if err := checkImmediate(field, value); err != nil {
			return err
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.draft.Set(field, value) {
		return &RejectError{Field: field, Message: MsgUnknownField}
	}
	c.gen++
	return nil
}

func checkImmediate(field, value string) error {
	switch field {
	case model.FieldFirstName, model.FieldLastName:
		if angleRe.MatchString(value) {
			return &RejectError{Field: field, Message: MsgRejectName}
		}
	case model.FieldMobile:
		if validate.Mobile(value) != nil {
			return &RejectError{Field: field, Message: MsgRejectMobile}
		}
	case model.FieldEmail:
		if validate.Email(value) != nil {
			return &RejectError{Field: field, Message: MsgRejectEmail}
		}
	}
	return nil
}

// bind derives a context that ends with ctx or with the form, whichever
// comes first.
func (c *Controller) bind(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(c.life, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

// Load fetches the schedule to edit and fills the draft from it. A result
// that arrives after Close, after a newer Load, or after the user changed a
// field is dropped and the draft is left alone.
func (c *Controller) Load(ctx context.Context, id string) (model.Schedule, error) {
	c.mu.Lock()
	if c.life.Err() != nil {
		c.mu.Unlock()
		return model.Schedule{}, ErrClosed
	}
	c.gen++
	gen := c.gen
	c.mu.Unlock()

	ctx, cancel := c.bind(ctx)
	defer cancel()

	s, err := c.api.GetSchedule(ctx, id)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.life.Err() != nil {
		return model.Schedule{}, ErrClosed
	}
	if c.gen != gen {
		c.log.DebugContext(ctx, "late load dropped", "id", id)
		return model.Schedule{}, ErrSuperseded
	}
	if err != nil {
		return model.Schedule{}, &Error{Message: backend.Message(err, MsgLoadSchedule), Err: err}
	}
	s = sanitize.Struct(s)
	if s.ID == "" {
		s.ID = id
	}
	c.loaded = &s
	c.draft = model.DraftFrom(s)
	return s, nil
}

// Close ends the form lifetime. In-flight calls are canceled and a pending
// Load result is dropped.
func (c *Controller) Close() {
	c.cancel()
}

// Loaded returns the schedule being edited, if any.
func (c *Controller) Loaded() (model.Schedule, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.loaded == nil {
		return model.Schedule{}, false
	}
	return *c.loaded, true
}

// Options returns the selectable values. Areas and timeslots are always
// present; a failed waste type fetch comes back with the error.
func (c *Controller) Options(ctx context.Context) (model.ScheduleOptions, error) {
	ctx, cancel := c.bind(ctx)
	defer cancel()

	opts := model.ScheduleOptions{
		Areas:      append([]string(nil), model.Areas...),
		Timeslots:  append([]string(nil), model.Timeslots...),
		WasteTypes: []string{},
	}

	types, err := c.api.ListWasteTypes(ctx)
	if err != nil {
		return opts, &Error{Message: MsgWasteTypes, Err: err}
	}
	for _, t := range sanitize.Slice(types) {
		if t.Label != "" {
			opts.WasteTypes = append(opts.WasteTypes, t.Label)
		}
	}
	return opts, nil
}

// Submit runs the submission pipeline. On success the draft is reset; on any
// failure it is kept so the user can retry.
func (c *Controller) Submit(ctx context.Context, owner Owner) (Result, error) {
	c.mu.Lock()
	if c.submitting {
		c.mu.Unlock()
		return Result{}, ErrSubmitInProgress
	}
	if c.mode == ModeUpdate && c.loaded == nil {
		c.mu.Unlock()
		return Result{}, ErrNotLoaded
	}
	c.submitting = true
	draft := c.draft
	var loaded model.Schedule
	if c.loaded != nil {
		loaded = *c.loaded
	}
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.submitting = false
		c.mu.Unlock()
	}()

	if err := validate.Schedule(draft, c.now()); err != nil {
		return Result{}, err
	}

	payload := sanitize.Struct(c.assemble(draft, loaded, owner))

	body, err := json.Marshal(payload)
	if err != nil {
		return Result{}, fmt.Errorf("encode schedule: %w", err)
	}
	if len(body) > MaxPayloadBytes {
		c.log.WarnContext(ctx, "payload too large", "bytes", len(body))
		return Result{}, ErrPayloadTooLarge
	}

	ctx, cancel := c.bind(ctx)
	defer cancel()

	if c.mode == ModeCreate {
		return c.create(ctx, payload)
	}
	return c.update(ctx, payload)
}

// assemble merges the draft with the fields the user does not edit.
func (c *Controller) assemble(draft model.ScheduleDraft, loaded model.Schedule, owner Owner) model.Schedule {
	if c.mode == ModeCreate {
		return draft.Apply(model.Schedule{
			JobStatus:   false,
			UserID:      owner.UserID,
			ResidenceID: owner.ResidenceID,
		})
	}
	s := draft.Apply(loaded)
	if strings.TrimSpace(s.UserID) == "" {
		s.UserID = owner.UserID
	}
	if strings.TrimSpace(s.ResidenceID) == "" {
		s.ResidenceID = owner.ResidenceID
	}
	return s
}

func (c *Controller) create(ctx context.Context, payload model.Schedule) (Result, error) {
	created, err := c.api.CreateSchedule(ctx, payload)
	if err != nil {
		c.log.WarnContext(ctx, "create schedule", "error", err)
		return Result{}, &Error{Message: backend.Message(err, MsgSubmitFailed), Err: err}
	}

	c.reset()
	c.record(ctx, messaging.RoutingKeyScheduleCreated, created)
	return Result{Message: MsgCreated, Schedule: created}, nil
}

func (c *Controller) update(ctx context.Context, payload model.Schedule) (Result, error) {
	if err := c.api.UpdateSchedule(ctx, payload.ID, payload); err != nil {
		c.log.WarnContext(ctx, "update schedule", "id", payload.ID, "error", err)
		return Result{}, &Error{Message: backend.Message(err, MsgSubmitFailed), Err: err}
	}

	c.reset()
	c.record(ctx, messaging.RoutingKeyScheduleUpdated, payload)
	return Result{Message: MsgUpdated, Redirect: ViewSchedulesPath, Schedule: payload}, nil
}

func (c *Controller) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.draft = model.ScheduleDraft{}
	c.loaded = nil
}

func (c *Controller) record(ctx context.Context, key string, s model.Schedule) {
	if err := c.events.Record(ctx, key, messaging.NewScheduleEvent(s)); err != nil {
		c.log.WarnContext(ctx, "record event", "routing_key", key, "error", err)
	}
}
