package ingest

import (
	"testing"

	"github.com/machikado/eventops/internal/domain"
)

func rowWith(overrides map[string]string) map[string]string {
	fields := map[string]string{
		FieldTitle:       "Zoo Day",
		FieldOfficialURL: "https://zoo.example",
		FieldUpdatedAt:   "2025-05-01",
		FieldStartAt:     "2025-05-10T10:00:00Z",
		FieldAreaName:    "Harbor",
	}
	for k, v := range overrides {
		fields[k] = v
	}
	return fields
}

func hasErrorCode(errs []domain.ValidationError, code domain.ErrorCode) bool {
	for _, e := range errs {
		if e.Code == code {
			return true
		}
	}
	return false
}

func hasWarningCode(warns []domain.ValidationWarning, code domain.WarningCode) bool {
	for _, w := range warns {
		if w.Code == code {
			return true
		}
	}
	return false
}

// ============================================================================
// ValidateRow Tests
// ============================================================================

func TestValidateRow_CleanRow(t *testing.T) {
	errs, warns := ValidateRow(rowWith(nil))
	if len(errs) != 0 {
		t.Errorf("errors = %v, want none", errs)
	}
	if len(warns) != 0 {
		t.Errorf("warnings = %v, want none", warns)
	}
}

func TestValidateRow_Errors(t *testing.T) {
	tests := []struct {
		name      string
		overrides map[string]string
		wantCode  domain.ErrorCode
		wantField string
	}{
		{
			name:      "empty title",
			overrides: map[string]string{FieldTitle: ""},
			wantCode:  domain.CodeEmptyTitle,
			wantField: FieldTitle,
		},
		{
			name:      "missing official URL",
			overrides: map[string]string{FieldOfficialURL: ""},
			wantCode:  domain.CodeMissingRequired,
			wantField: FieldOfficialURL,
		},
		{
			name:      "relative URL",
			overrides: map[string]string{FieldOfficialURL: "/events/zoo"},
			wantCode:  domain.CodeInvalidURL,
			wantField: FieldOfficialURL,
		},
		{
			name:      "non-http scheme",
			overrides: map[string]string{FieldOfficialURL: "ftp://zoo.example"},
			wantCode:  domain.CodeInvalidURL,
			wantField: FieldOfficialURL,
		},
		{
			name:      "missing update date",
			overrides: map[string]string{FieldUpdatedAt: ""},
			wantCode:  domain.CodeMissingRequired,
			wantField: FieldUpdatedAt,
		},
		{
			name:      "garbage update date",
			overrides: map[string]string{FieldUpdatedAt: "next tuesday"},
			wantCode:  domain.CodeInvalidDate,
			wantField: FieldUpdatedAt,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs, _ := ValidateRow(rowWith(tt.overrides))
			if !hasErrorCode(errs, tt.wantCode) {
				t.Fatalf("errors = %v, want code %s", errs, tt.wantCode)
			}
			for _, e := range errs {
				if e.Code == tt.wantCode && e.Field != tt.wantField {
					t.Errorf("error field = %q, want %q", e.Field, tt.wantField)
				}
			}
		})
	}
}

func TestValidateRow_Warnings(t *testing.T) {
	tests := []struct {
		name      string
		overrides map[string]string
		wantCode  domain.WarningCode
	}{
		{
			name:      "missing start date",
			overrides: map[string]string{FieldStartAt: ""},
			wantCode:  domain.CodeMissingStartDate,
		},
		{
			name:      "unparseable start date",
			overrides: map[string]string{FieldStartAt: "sometime in June"},
			wantCode:  domain.CodeUnparseableDate,
		},
		{
			name:      "unparseable end date",
			overrides: map[string]string{FieldEndAt: "whenever"},
			wantCode:  domain.CodeUnparseableDate,
		},
		{
			name:      "empty categories when column mapped",
			overrides: map[string]string{FieldCategories: ""},
			wantCode:  domain.CodeMissingCategories,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs, warns := ValidateRow(rowWith(tt.overrides))
			if len(errs) != 0 {
				t.Errorf("errors = %v, want none", errs)
			}
			if !hasWarningCode(warns, tt.wantCode) {
				t.Errorf("warnings = %v, want code %s", warns, tt.wantCode)
			}
		})
	}
}

func TestValidateRow_NoCategoriesColumnNoWarning(t *testing.T) {
	// The categories key absent entirely: the file had no such column,
	// so no warning fires.
	_, warns := ValidateRow(rowWith(nil))
	if hasWarningCode(warns, domain.CodeMissingCategories) {
		t.Errorf("warnings = %v, MISSING_CATEGORIES should not fire without the column", warns)
	}
}

func TestValidateRow_CollectsAllDiagnostics(t *testing.T) {
	// Every check runs: a row can carry several errors and warnings at
	// once.
	errs, warns := ValidateRow(map[string]string{
		FieldTitle:       "",
		FieldOfficialURL: "not a url",
		FieldUpdatedAt:   "",
		FieldStartAt:     "",
		FieldAreaName:    "",
	})

	if len(errs) != 3 {
		t.Errorf("len(errors) = %d, want 3: %v", len(errs), errs)
	}
	if !hasErrorCode(errs, domain.CodeEmptyTitle) ||
		!hasErrorCode(errs, domain.CodeInvalidURL) ||
		!hasErrorCode(errs, domain.CodeMissingRequired) {
		t.Errorf("errors = %v, want EMPTY_TITLE, INVALID_URL, MISSING_REQUIRED", errs)
	}
	if !hasWarningCode(warns, domain.CodeMissingStartDate) {
		t.Errorf("warnings = %v, want MISSING_START_DATE", warns)
	}
}

// Scenario from the import flow: two rows under a minimal header, first
// clean except for a missing start date, second with an empty title.
func TestValidateRow_MinimalHeaderScenario(t *testing.T) {
	data := []byte("title,officialUrl,updatedAt\n" +
		`"Zoo Day","https://zoo.example","2025-05-01"` + "\n" +
		`"","https://bad","2025-05-02"` + "\n")

	parsed, err := Parse(data, 0)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(parsed.Rows) != 2 {
		t.Fatalf("len(Rows) = %d, want 2", len(parsed.Rows))
	}

	errs1, warns1 := ValidateRow(parsed.Rows[0].Fields)
	if len(errs1) != 0 {
		t.Errorf("row 1 errors = %v, want none", errs1)
	}
	if len(warns1) != 1 || warns1[0].Code != domain.CodeMissingStartDate {
		t.Errorf("row 1 warnings = %v, want exactly MISSING_START_DATE", warns1)
	}

	errs2, _ := ValidateRow(parsed.Rows[1].Fields)
	if len(errs2) != 1 || errs2[0].Code != domain.CodeEmptyTitle {
		t.Errorf("row 2 errors = %v, want exactly EMPTY_TITLE", errs2)
	}
}

// ============================================================================
// Date parsing Tests
// ============================================================================

func TestParseDate(t *testing.T) {
	tests := []struct {
		input string
		ok    bool
	}{
		{"2025-05-01", true},
		{"2025/05/01", true},
		{"2025.05.01", true},
		{"5/1/2025", true},
		{"May 1, 2025", true},
		{"20250501", true},
		{" 2025-05-01 ", true},
		{"", false},
		{"yesterday", false},
		{"2025-13-45", false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			_, ok := parseDate(tt.input)
			if ok != tt.ok {
				t.Errorf("parseDate(%q) ok = %v, want %v", tt.input, ok, tt.ok)
			}
		})
	}
}

func TestParseDateTime(t *testing.T) {
	tests := []struct {
		input string
		ok    bool
	}{
		{"2025-05-10T10:00:00Z", true},
		{"2025-05-10T10:00:00+09:00", true},
		{"2025-05-10T10:00", true},
		{"2025-05-10 10:00", true},
		{"2025-05-10", true},
		{"", false},
		{"10am sharp", false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			_, ok := parseDateTime(tt.input)
			if ok != tt.ok {
				t.Errorf("parseDateTime(%q) ok = %v, want %v", tt.input, ok, tt.ok)
			}
		})
	}
}
