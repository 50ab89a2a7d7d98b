package ingest

import (
	"net/url"
	"strings"
	"time"

	"github.com/machikado/eventops/internal/domain"
)

// dateLayouts are tried in order when parsing date-only cells.
var dateLayouts = []string{
	"2006-01-02",
	"2006/01/02",
	"2006.01.02",
	"1/2/2006",
	"01/02/2006",
	"Jan 2, 2006",
	"20060102",
}

// dateTimeLayouts are tried in order when parsing start/end cells, which
// may carry a time component.
var dateTimeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	"2006-01-02",
	"2006/01/02",
}

// ValidateRow checks one parsed row and returns its validation errors
// and warnings in field order. Errors block publish; warnings never do.
// All checks run regardless of earlier failures so operators see the
// full picture in one pass.
func ValidateRow(fields map[string]string) ([]domain.ValidationError, []domain.ValidationWarning) {
	var errs []domain.ValidationError
	var warns []domain.ValidationWarning

	if fields[FieldTitle] == "" {
		errs = append(errs, domain.ValidationError{
			Field:   FieldTitle,
			Message: "title must not be empty",
			Code:    domain.CodeEmptyTitle,
		})
	}

	switch rawURL := fields[FieldOfficialURL]; {
	case rawURL == "":
		errs = append(errs, domain.ValidationError{
			Field:   FieldOfficialURL,
			Message: "official URL is required",
			Code:    domain.CodeMissingRequired,
		})
	case !validHTTPURL(rawURL):
		errs = append(errs, domain.ValidationError{
			Field:   FieldOfficialURL,
			Message: "official URL must be a valid http(s) URL",
			Code:    domain.CodeInvalidURL,
		})
	}

	switch updated := fields[FieldUpdatedAt]; {
	case updated == "":
		errs = append(errs, domain.ValidationError{
			Field:   FieldUpdatedAt,
			Message: "update date is required",
			Code:    domain.CodeMissingRequired,
		})
	default:
		if _, ok := parseDate(updated); !ok {
			errs = append(errs, domain.ValidationError{
				Field:   FieldUpdatedAt,
				Message: "update date is not a recognized date",
				Code:    domain.CodeInvalidDate,
			})
		}
	}

	switch start := fields[FieldStartAt]; {
	case start == "":
		warns = append(warns, domain.ValidationWarning{
			Field:   FieldStartAt,
			Message: "start date is not set",
			Code:    domain.CodeMissingStartDate,
		})
	default:
		if _, ok := parseDateTime(start); !ok {
			warns = append(warns, domain.ValidationWarning{
				Field:   FieldStartAt,
				Message: "start date could not be parsed",
				Code:    domain.CodeUnparseableDate,
			})
		}
	}

	if end, ok := fields[FieldEndAt]; ok && end != "" {
		if _, ok := parseDateTime(end); !ok {
			warns = append(warns, domain.ValidationWarning{
				Field:   FieldEndAt,
				Message: "end date could not be parsed",
				Code:    domain.CodeUnparseableDate,
			})
		}
	}

	// Only warn on categories when the column is mapped but the cell is
	// empty. Files without a categories column stay quiet.
	if cats, ok := fields[FieldCategories]; ok && cats == "" {
		warns = append(warns, domain.ValidationWarning{
			Field:   FieldCategories,
			Message: "no categories assigned",
			Code:    domain.CodeMissingCategories,
		})
	}

	return errs, warns
}

// validHTTPURL reports whether s parses as an absolute http or https URL.
func validHTTPURL(s string) bool {
	u, err := url.Parse(s)
	if err != nil {
		return false
	}
	scheme := strings.ToLower(u.Scheme)
	return (scheme == "http" || scheme == "https") && u.Host != ""
}

// parseDate parses a date-only cell. The second return is false when no
// layout matches.
func parseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// parseDateTime parses a cell that may carry a time component.
func parseDateTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range dateTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
