// Package validate holds the syntactic field rules of the schedule forms.
//
// Each predicate returns nil on success or an *Error whose Reason is the
// message shown to the user. Predicates are pure; the collection date rule
// takes the current day as an argument.
package validate

import (
	"context"
	"errors"
	"reflect"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"

	"waste-portal/internal/model"
)

const (
	DateLayout           = "2006-01-02"
	MinDescriptionLength = 10
)

const (
	MsgFirstName   = "First name can only contain letters, spaces, hyphens or apostrophes."
	MsgLastName    = "Last name can only contain letters, spaces, hyphens or apostrophes."
	MsgMobile      = "Invalid mobile number. Must be 10 digits."
	MsgEmail       = "Invalid email address."
	MsgDate        = "Please select a valid collection date."
	MsgDescription = "Description must be at least 10 characters."
	MsgArea        = "Please select an area."
	MsgTimeslot    = "Please select a timeslot."
	MsgWasteType   = "Please select a waste type."
)

var (
	nameRe   = regexp.MustCompile(`^[A-Za-z\s'-]+$`)
	mobileRe = regexp.MustCompile(`^[0-9]{10}$`)
	emailRe  = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
)

// Error is a failed field rule.
type Error struct {
	Field  string
	Reason string
}

func (e *Error) Error() string {
	return e.Reason
}

func fail(field, reason string) error {
	return &Error{Field: field, Reason: reason}
}

// IsValidation reports whether err is a field rule failure.
func IsValidation(err error) bool {
	var ve *Error
	return errors.As(err, &ve)
}

func FirstName(s string) error {
	if !nameRe.MatchString(s) {
		return fail(model.FieldFirstName, MsgFirstName)
	}
	return nil
}

func LastName(s string) error {
	if !nameRe.MatchString(s) {
		return fail(model.FieldLastName, MsgLastName)
	}
	return nil
}

// Mobile accepts exactly ten ASCII digits.
func Mobile(s string) error {
	if !mobileRe.MatchString(s) {
		return fail(model.FieldMobile, MsgMobile)
	}
	return nil
}

func Email(s string) error {
	if !emailRe.MatchString(s) {
		return fail(model.FieldEmail, MsgEmail)
	}
	return nil
}

// CollectionDate accepts a YYYY-MM-DD date that is not before the calendar
// day of today, evaluated in today's location.
func CollectionDate(s string, today time.Time) error {
	if s == "" {
		return fail(model.FieldCDate, MsgDate)
	}
	d, err := time.ParseInLocation(DateLayout, s, today.Location())
	if err != nil {
		return fail(model.FieldCDate, MsgDate)
	}
	y, m, day := today.Date()
	if d.Before(time.Date(y, m, day, 0, 0, 0, 0, today.Location())) {
		return fail(model.FieldCDate, MsgDate)
	}
	return nil
}

func Description(s string) error {
	if utf8.RuneCountInString(strings.TrimSpace(s)) < MinDescriptionLength {
		return fail(model.FieldDescription, MsgDescription)
	}
	return nil
}

func Area(s string) error {
	if !model.IsArea(s) {
		return fail(model.FieldArea, MsgArea)
	}
	return nil
}

func Timeslot(s string) error {
	if !model.IsTimeslot(s) {
		return fail(model.FieldTimeslot, MsgTimeslot)
	}
	return nil
}

func WasteType(s string) error {
	if strings.TrimSpace(s) == "" {
		return fail(model.FieldType, MsgWasteType)
	}
	return nil
}

type todayKey struct{}

var structValidator = newStructValidator()

func newStructValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		return name
	})

	field := func(pred func(string) error) validator.Func {
		return func(fl validator.FieldLevel) bool {
			return pred(fl.Field().String()) == nil
		}
	}
	_ = v.RegisterValidation("personname", field(FirstName))
	_ = v.RegisterValidation("mobile", field(Mobile))
	_ = v.RegisterValidation("emailaddr", field(Email))
	_ = v.RegisterValidation("description", field(Description))
	_ = v.RegisterValidation("area", field(Area))
	_ = v.RegisterValidation("timeslot", field(Timeslot))
	_ = v.RegisterValidation("wastetype", field(WasteType))
	_ = v.RegisterValidationCtx("notpast", func(ctx context.Context, fl validator.FieldLevel) bool {
		today, ok := ctx.Value(todayKey{}).(time.Time)
		if !ok {
			today = time.Now()
		}
		return CollectionDate(fl.Field().String(), today) == nil
	})
	return v
}

var messages = map[string]string{
	model.FieldFirstName:   MsgFirstName,
	model.FieldLastName:    MsgLastName,
	model.FieldMobile:      MsgMobile,
	model.FieldEmail:       MsgEmail,
	model.FieldCDate:       MsgDate,
	model.FieldDescription: MsgDescription,
	model.FieldArea:        MsgArea,
	model.FieldTimeslot:    MsgTimeslot,
	model.FieldType:        MsgWasteType,
}

// Schedule checks every draft field in declaration order and returns the
// first failure.
func Schedule(d model.ScheduleDraft, today time.Time) error {
	ctx := context.WithValue(context.Background(), todayKey{}, today)
	err := structValidator.StructCtx(ctx, d)
	if err == nil {
		return nil
	}
	var errs validator.ValidationErrors
	if !errors.As(err, &errs) || len(errs) == 0 {
		return err
	}
	first := errs[0].Field()
	return fail(first, messages[first])
}
