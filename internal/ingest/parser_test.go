package ingest

import (
	"errors"
	"testing"
)

// ============================================================================
// Parse Tests
// ============================================================================

func TestParse_BasicFile(t *testing.T) {
	data := []byte("title,officialUrl,updatedAt,startAt,areaName\n" +
		"Zoo Day,https://zoo.example,2025-05-01,2025-05-10T10:00:00Z,Harbor\n" +
		"Park Picnic,https://park.example,2025-05-02,,Hillside\n")

	result, err := Parse(data, 0)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if len(result.Rows) != 2 {
		t.Fatalf("len(Rows) = %d, want 2", len(result.Rows))
	}
	if len(result.BadRows) != 0 {
		t.Errorf("len(BadRows) = %d, want 0", len(result.BadRows))
	}

	first := result.Rows[0]
	if first.Line != 2 {
		t.Errorf("first row Line = %d, want 2", first.Line)
	}
	if first.Fields[FieldTitle] != "Zoo Day" {
		t.Errorf("title = %q, want %q", first.Fields[FieldTitle], "Zoo Day")
	}
	if first.Fields[FieldOfficialURL] != "https://zoo.example" {
		t.Errorf("officialUrl = %q, want %q", first.Fields[FieldOfficialURL], "https://zoo.example")
	}
	if first.Fields[FieldAreaName] != "Harbor" {
		t.Errorf("areaName = %q, want %q", first.Fields[FieldAreaName], "Harbor")
	}
}

func TestParse_JapaneseHeaders(t *testing.T) {
	data := []byte("タイトル,公式URL,更新日,開始日,エリア\n" +
		"動物園まつり,https://zoo.example,2025-05-01,2025-05-10,みなと\n")

	result, err := Parse(data, 0)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(result.Rows) != 1 {
		t.Fatalf("len(Rows) = %d, want 1", len(result.Rows))
	}

	fields := result.Rows[0].Fields
	if fields[FieldTitle] != "動物園まつり" {
		t.Errorf("title = %q", fields[FieldTitle])
	}
	if fields[FieldAreaName] != "みなと" {
		t.Errorf("areaName = %q", fields[FieldAreaName])
	}
}

func TestParse_HeaderCaseInsensitive(t *testing.T) {
	data := []byte("TITLE,OfficialURL,UpdatedAt\nZoo Day,https://zoo.example,2025-05-01\n")

	result, err := Parse(data, 0)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(result.Rows) != 1 {
		t.Fatalf("len(Rows) = %d, want 1", len(result.Rows))
	}
	if result.Rows[0].Fields[FieldTitle] != "Zoo Day" {
		t.Errorf("title = %q", result.Rows[0].Fields[FieldTitle])
	}
}

func TestParse_CoreFieldsDefaultEmpty(t *testing.T) {
	// Columns for startAt and areaName are absent: their fields must
	// still exist with empty values.
	data := []byte("title,officialUrl,updatedAt\nZoo Day,https://zoo.example,2025-05-01\n")

	result, err := Parse(data, 0)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	fields := result.Rows[0].Fields
	for _, name := range []string{FieldStartAt, FieldAreaName} {
		v, ok := fields[name]
		if !ok {
			t.Errorf("core field %q missing from field map", name)
		}
		if v != "" {
			t.Errorf("core field %q = %q, want empty", name, v)
		}
	}

	// Optional columns stay absent entirely.
	if _, ok := fields[FieldCategories]; ok {
		t.Error("categories should not be present when its column is absent")
	}
}

func TestParse_MissingRequiredColumns(t *testing.T) {
	data := []byte("title,startAt\nZoo Day,2025-05-10\n")

	_, err := Parse(data, 0)
	var headerErr *HeaderError
	if !errors.As(err, &headerErr) {
		t.Fatalf("Parse() error = %v, want *HeaderError", err)
	}
	if len(headerErr.Missing) != 2 {
		t.Errorf("Missing = %v, want officialUrl and updatedAt", headerErr.Missing)
	}
}

func TestParse_EmptyAndHeaderOnly(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{name: "empty file", data: []byte("")},
		{name: "header only", data: []byte("title,officialUrl,updatedAt\n")},
		{name: "header only bad columns", data: []byte("just,some,columns\n")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := Parse(tt.data, 0)
			if err != nil {
				t.Fatalf("Parse() error = %v, want empty result", err)
			}
			if len(result.Rows) != 0 {
				t.Errorf("len(Rows) = %d, want 0", len(result.Rows))
			}
		})
	}
}

func TestParse_SkipsEmptyRows(t *testing.T) {
	data := []byte("title,officialUrl,updatedAt\n" +
		"Zoo Day,https://zoo.example,2025-05-01\n" +
		",,\n" +
		"Park Picnic,https://park.example,2025-05-02\n")

	result, err := Parse(data, 0)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(result.Rows) != 2 {
		t.Errorf("len(Rows) = %d, want 2 (empty row skipped)", len(result.Rows))
	}
}

func TestParse_QuotedFields(t *testing.T) {
	data := []byte("title,officialUrl,updatedAt,categories\n" +
		`"Craft Fair, Spring Edition",https://fair.example,2025-04-01,"art,kids"` + "\n")

	result, err := Parse(data, 0)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(result.Rows) != 1 {
		t.Fatalf("len(Rows) = %d, want 1", len(result.Rows))
	}

	fields := result.Rows[0].Fields
	if fields[FieldTitle] != "Craft Fair, Spring Edition" {
		t.Errorf("title = %q, embedded comma not preserved", fields[FieldTitle])
	}
	if fields[FieldCategories] != "art,kids" {
		t.Errorf("categories = %q", fields[FieldCategories])
	}
}

func TestParse_MaxRowsTruncates(t *testing.T) {
	data := []byte("title,officialUrl,updatedAt\n" +
		"A,https://a.example,2025-01-01\n" +
		"B,https://b.example,2025-01-02\n" +
		"C,https://c.example,2025-01-03\n")

	result, err := Parse(data, 2)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(result.Rows) != 2 {
		t.Errorf("len(Rows) = %d, want 2", len(result.Rows))
	}
	if !result.Truncated {
		t.Error("Truncated = false, want true")
	}
}

func TestParse_BOMStripped(t *testing.T) {
	data := append([]byte{0xEF, 0xBB, 0xBF}, []byte("title,officialUrl,updatedAt\nZoo Day,https://zoo.example,2025-05-01\n")...)

	result, err := Parse(data, 0)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(result.Rows) != 1 {
		t.Fatalf("len(Rows) = %d, want 1", len(result.Rows))
	}
	if result.Rows[0].Fields[FieldTitle] != "Zoo Day" {
		t.Errorf("title = %q, BOM broke header mapping", result.Rows[0].Fields[FieldTitle])
	}
}

// ============================================================================
// CleanCell Tests
// ============================================================================

func TestCleanCell(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "plain value", input: "hello", want: "hello"},
		{name: "surrounding whitespace", input: "  hello  ", want: "hello"},
		{name: "surrounding quotes", input: `"hello"`, want: "hello"},
		{name: "excel formula prefix", input: `="hello"`, want: "hello"},
		{name: "bare equals prefix", input: "=hello", want: "hello"},
		{name: "empty", input: "", want: ""},
		{name: "single quotes", input: "'hello'", want: "hello"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CleanCell(tt.input); got != tt.want {
				t.Errorf("CleanCell(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

// ============================================================================
// SplitList Tests
// ============================================================================

func TestSplitList(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{name: "empty", input: "", want: nil},
		{name: "whitespace only", input: "   ", want: nil},
		{name: "single value", input: "art", want: []string{"art"}},
		{name: "multiple values", input: "art,kids,outdoor", want: []string{"art", "kids", "outdoor"}},
		{name: "spaces around values", input: " art , kids ", want: []string{"art", "kids"}},
		{name: "empty parts dropped", input: "art,,kids,", want: []string{"art", "kids"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SplitList(tt.input)
			if len(got) != len(tt.want) {
				t.Fatalf("SplitList(%q) = %v, want %v", tt.input, got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("SplitList(%q)[%d] = %q, want %q", tt.input, i, got[i], tt.want[i])
				}
			}
		})
	}
}
