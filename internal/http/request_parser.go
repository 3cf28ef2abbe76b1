// Package http provides the JSON API server and its handlers.
//
// This file implements request decoding and validation shared by the
// handlers: JSON bodies checked with struct tags, query parameters, and the
// money and percentage value types accepted on the wire.

package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"time"

	"budgetwise/internal/allocation"
	"budgetwise/internal/core"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 20

// dateLayout is the format of the start/end query filters.
const dateLayout = "2006-01-02"

// Amount is a non-negative money value accepted as a JSON number or string.
// "12,34" is read as 12.34 and values are rounded to cents.
type Amount decimal.Decimal

func (a *Amount) UnmarshalJSON(b []byte) error {
	d, err := core.ParseAmount(strings.Trim(string(b), `"`))
	if err != nil {
		return err
	}
	*a = Amount(d)
	return nil
}

// Decimal returns the amount, zero for a nil pointer.
func (a *Amount) Decimal() decimal.Decimal {
	if a == nil {
		return decimal.Zero
	}
	return decimal.Decimal(*a)
}

// Percent is a percentage in [0,100] accepted as a JSON number or string.
type Percent decimal.Decimal

func (p *Percent) UnmarshalJSON(b []byte) error {
	d, err := core.ParsePercent(strings.Trim(string(b), `"`))
	if err != nil {
		return err
	}
	*p = Percent(d)
	return nil
}

func (p *Percent) Decimal() decimal.Decimal {
	if p == nil {
		return decimal.Zero
	}
	return decimal.Decimal(*p)
}

// Ptr returns the percentage as an optional decimal.
func (p *Percent) Ptr() *decimal.Decimal {
	if p == nil {
		return nil
	}
	d := decimal.Decimal(*p)
	return &d
}

// RequestParser decodes and validates request payloads.
type RequestParser struct {
	validate *validator.Validate
}

func NewRequestParser() *RequestParser {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
	return &RequestParser{validate: v}
}

// DecodeJSON reads r's body into dst and validates it. Every failure is an
// InvalidArgument error.
func (p *RequestParser) DecodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return invalidRequest("request body is empty")
		}
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return invalidRequest("request body too large")
		}
		return invalidRequest("invalid request body: " + err.Error())
	}
	if dec.More() {
		return invalidRequest("request body must contain a single JSON object")
	}
	return p.Validate(dst)
}

// Validate checks the struct tags of v.
func (p *RequestParser) Validate(v any) error {
	err := p.validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return invalidRequest(err.Error())
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, describeFieldError(fe))
	}
	return invalidRequest(strings.Join(msgs, "; "))
}

func describeFieldError(fe validator.FieldError) string {
	field := fe.Namespace()
	if _, rest, ok := strings.Cut(field, "."); ok {
		field = rest
	}
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "gte", "min":
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "lte", "max":
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", field, fe.Param())
	}
	return fmt.Sprintf("%s is invalid (%s)", field, fe.Tag())
}

func invalidRequest(msg string) error {
	return &allocation.Error{Kind: allocation.InvalidArgument, Message: msg}
}

// QueryString returns a trimmed, required query parameter.
func QueryString(r *http.Request, name string) (string, error) {
	v := strings.TrimSpace(r.URL.Query().Get(name))
	if v == "" {
		return "", invalidRequest(name + " is required")
	}
	return v, nil
}

// QueryInt parses a required integer query parameter.
func QueryInt(r *http.Request, name string) (int, error) {
	raw, err := QueryString(r, name)
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, invalidRequest(name + " must be an integer")
	}
	return n, nil
}

// QueryLimit parses an optional positive limit, returning def when absent.
func QueryLimit(r *http.Request, def, max int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get("limit"))
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, invalidRequest("limit must be a positive integer")
	}
	if n > max {
		n = max
	}
	return n, nil
}

// MonthParams holds parsed year/month values from request parameters.
type MonthParams struct {
	Year  int
	Month int
}

// ParseMonthParams reads the required year and month query parameters.
func ParseMonthParams(r *http.Request) (MonthParams, error) {
	year, err := QueryInt(r, "year")
	if err != nil {
		return MonthParams{}, err
	}
	month, err := QueryInt(r, "month")
	if err != nil {
		return MonthParams{}, err
	}
	return MonthParams{Year: year, Month: month}, nil
}

// Open ends of a date filter. The day after farFuture must still have a
// four digit year so stored timestamps compare as text.
var (
	farPast   = time.Date(1, 1, 1, 0, 0, 0, 0, time.UTC)
	farFuture = time.Date(9999, 12, 30, 0, 0, 0, 0, time.UTC)
)

// ParseDateRange reads the optional start and end filters (YYYY-MM-DD or
// RFC 3339). Neither given means every entry; one given leaves the other
// side open.
func ParseDateRange(r *http.Request) (core.DateRange, error) {
	q := r.URL.Query()
	startRaw := strings.TrimSpace(q.Get("start"))
	endRaw := strings.TrimSpace(q.Get("end"))
	if startRaw == "" && endRaw == "" {
		return core.DateRange{}, nil
	}

	rng := core.DateRange{To: farFuture}
	if startRaw != "" {
		t, err := parseDate(startRaw)
		if err != nil {
			return core.DateRange{}, invalidRequest("start must be a date (YYYY-MM-DD)")
		}
		rng.From = t
	} else {
		rng.From = farPast
	}
	if endRaw != "" {
		t, err := parseDate(endRaw)
		if err != nil {
			return core.DateRange{}, invalidRequest("end must be a date (YYYY-MM-DD)")
		}
		rng.To = t
	}
	return rng, nil
}

func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse(dateLayout, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, err
	}
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
}

// sanitizeInput trims s and removes control characters except tab and newlines.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}
