package reports

import (
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/fichaflow/fichaflow/internal/attendance"
	"github.com/fichaflow/fichaflow/internal/shared"
)

// Filter narrows the attendance fact set before aggregation. Nil fields
// match everything, so the zero Filter is the unfiltered report.
type Filter struct {
	From    *time.Time
	To      *time.Time
	FichaID *int64
	Status  *attendance.Status
}

// ParseFilter reads the report query parameters. Dates are inclusive on
// both ends and use the YYYY-MM-DD wire format.
func ParseFilter(values url.Values) (Filter, error) {
	var f Filter

	if raw := values.Get("date_from"); raw != "" {
		t, err := time.Parse("2006-01-02", raw)
		if err != nil {
			return Filter{}, fmt.Errorf("parse date_from %q: %w", raw, shared.ErrValidation)
		}
		f.From = &t
	}
	if raw := values.Get("date_to"); raw != "" {
		t, err := time.Parse("2006-01-02", raw)
		if err != nil {
			return Filter{}, fmt.Errorf("parse date_to %q: %w", raw, shared.ErrValidation)
		}
		f.To = &t
	}
	if raw := values.Get("ficha_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			return Filter{}, fmt.Errorf("parse ficha_id %q: %w", raw, shared.ErrValidation)
		}
		f.FichaID = &id
	}
	if raw := values.Get("status"); raw != "" {
		status, err := attendance.ParseStatus(raw)
		if err != nil {
			return Filter{}, err
		}
		f.Status = &status
	}
	if f.From != nil && f.To != nil && f.To.Before(*f.From) {
		return Filter{}, fmt.Errorf("date_to before date_from: %w", shared.ErrValidation)
	}
	return f, nil
}

// Matches reports whether a fact survives the filter.
func (f Filter) Matches(fact Fact) bool {
	if f.From != nil && fact.Date.Before(*f.From) {
		return false
	}
	if f.To != nil && fact.Date.After(*f.To) {
		return false
	}
	if f.FichaID != nil && fact.FichaID != *f.FichaID {
		return false
	}
	if f.Status != nil && fact.Status != *f.Status {
		return false
	}
	return true
}

// CacheKey renders the filter as a stable cache key fragment.
func (f Filter) CacheKey() string {
	from, to, ficha, status := "-", "-", "-", "-"
	if f.From != nil {
		from = f.From.Format("2006-01-02")
	}
	if f.To != nil {
		to = f.To.Format("2006-01-02")
	}
	if f.FichaID != nil {
		ficha = strconv.FormatInt(*f.FichaID, 10)
	}
	if f.Status != nil {
		status = string(*f.Status)
	}
	return from + ":" + to + ":" + ficha + ":" + status
}

// IsZero reports whether the filter matches everything.
func (f Filter) IsZero() bool {
	return f.From == nil && f.To == nil && f.FichaID == nil && f.Status == nil
}
