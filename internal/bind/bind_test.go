package bind

import (
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"
)

func assertIdentifier(t *testing.T, raw, want string) {
	t.Helper()
	got, err := Identifier(raw)
	if err != nil {
		t.Fatalf("Identifier(%q) failed: %v", raw, err)
	}
	if got != want {
		t.Fatalf("Identifier(%q): expected %q, got %q", raw, want, got)
	}
}

func assertIdentifierRejected(t *testing.T, raw string) {
	t.Helper()
	_, err := Identifier(raw)
	if err == nil {
		t.Fatalf("Identifier(%q): expected rejection, got none", raw)
	}
	if !errors.Is(err, ErrInvalidIdentifier) {
		t.Fatalf("Identifier(%q): expected ErrInvalidIdentifier, got %v", raw, err)
	}
}

// --- Identifier Grammar ---

func TestIdentifier_Bare(t *testing.T) {
	t.Parallel()
	assertIdentifier(t, "users", `"users"`)
	assertIdentifier(t, "_private", `"_private"`)
	assertIdentifier(t, "t1", `"t1"`)
}

func TestIdentifier_SchemaQualified(t *testing.T) {
	t.Parallel()
	assertIdentifier(t, "public.users", `"public"."users"`)
	assertIdentifier(t, "audit.event_log", `"audit"."event_log"`)
}

func TestIdentifier_BareFoldsToLower(t *testing.T) {
	t.Parallel()
	// Unquoted identifiers are case-insensitive server-side; quoting them
	// without folding would silently point at a different object.
	assertIdentifier(t, "Users", `"users"`)
	assertIdentifier(t, "PUBLIC.ORDERS", `"public"."orders"`)
}

func TestIdentifier_QuotedPreservesCase(t *testing.T) {
	t.Parallel()
	assertIdentifier(t, `"Users"`, `"Users"`)
	assertIdentifier(t, `"public"."Order Items"`, `"public"."Order Items"`)
}

func TestIdentifier_QuotedWithDoubledQuotes(t *testing.T) {
	t.Parallel()
	assertIdentifier(t, `"odd""name"`, `"odd""name"`)
}

func TestIdentifier_MixedQuoting(t *testing.T) {
	t.Parallel()
	assertIdentifier(t, `public."Order Items"`, `"public"."Order Items"`)
	assertIdentifier(t, `"MySchema".users`, `"MySchema"."users"`)
}

func TestIdentifier_Rejections(t *testing.T) {
	t.Parallel()
	for _, raw := range []string{
		"",
		".",
		"a.",
		".a",
		"a..b",
		"a.b.c",
		`"a"."b"."c"`,
		"user name",
		"users;",
		"users; DROP TABLE users",
		"1starts_with_digit",
		"japanese_табл",
		`"unterminated`,
		`""`,
		`"a"x`,
		"users--",
		"users)",
		"pg_catalog.pg_class'",
	} {
		assertIdentifierRejected(t, raw)
	}
}

func TestIdentifier_NoRepair(t *testing.T) {
	t.Parallel()
	// Almost-valid input must be rejected, never fixed up.
	assertIdentifierRejected(t, ` users `)
	assertIdentifierRejected(t, "users\n")
}

// --- Template Expansion ---

func TestExpand_SingleSlot(t *testing.T) {
	t.Parallel()
	got, err := Expand("VACUUM (VERBOSE) {{table}}", map[string]string{"table": "public.events"})
	if err != nil {
		t.Fatalf("Expand failed: %v", err)
	}
	if got != `VACUUM (VERBOSE) "public"."events"` {
		t.Fatalf("unexpected expansion: %q", got)
	}
}

func TestExpand_RepeatedSlot(t *testing.T) {
	t.Parallel()
	got, err := Expand("SELECT * FROM {{t}} WHERE {{t}}.id = $1", map[string]string{"t": "users"})
	if err != nil {
		t.Fatalf("Expand failed: %v", err)
	}
	if got != `SELECT * FROM "users" WHERE "users".id = $1` {
		t.Fatalf("unexpected expansion: %q", got)
	}
}

func TestExpand_WhitespaceInsideBraces(t *testing.T) {
	t.Parallel()
	got, err := Expand("ANALYZE {{ table }}", map[string]string{"table": "t"})
	if err != nil {
		t.Fatalf("Expand failed: %v", err)
	}
	if got != `ANALYZE "t"` {
		t.Fatalf("unexpected expansion: %q", got)
	}
}

func TestExpand_MissingIdentifier(t *testing.T) {
	t.Parallel()
	_, err := Expand("ANALYZE {{table}}", nil)
	if err == nil || !strings.Contains(err.Error(), "{{table}}") {
		t.Fatalf("expected missing-slot error naming the slot, got %v", err)
	}
}

func TestExpand_UnusedIdentifier(t *testing.T) {
	t.Parallel()
	_, err := Expand("SELECT 1", map[string]string{"table": "t"})
	if err == nil || !strings.Contains(err.Error(), `"table"`) {
		t.Fatalf("expected unused-identifier error, got %v", err)
	}
}

func TestExpand_InvalidIdentifierValue(t *testing.T) {
	t.Parallel()
	_, err := Expand("ANALYZE {{table}}", map[string]string{"table": "users; DROP TABLE users"})
	if err == nil {
		t.Fatal("expected rejection of injection attempt")
	}
	if !errors.Is(err, ErrInvalidIdentifier) {
		t.Fatalf("expected ErrInvalidIdentifier, got %v", err)
	}
}

func TestExpand_NoSlots(t *testing.T) {
	t.Parallel()
	got, err := Expand("SELECT 1", nil)
	if err != nil || got != "SELECT 1" {
		t.Fatalf("expected passthrough, got %q, %v", got, err)
	}
}

// --- Placeholder Scanning ---

func TestPlaceholders_Basic(t *testing.T) {
	t.Parallel()
	cases := []struct {
		sql  string
		want int
	}{
		{"SELECT 1", 0},
		{"SELECT * FROM t WHERE id = $1", 1},
		{"SELECT * FROM t WHERE a = $1 AND b = $2", 2},
		{"SELECT $1, $2, $1", 2},
		{"SELECT * FROM t WHERE c = COALESCE($1::int, 20)", 1},
	}
	for _, tc := range cases {
		got, err := Placeholders(tc.sql)
		if err != nil {
			t.Errorf("Placeholders(%q) failed: %v", tc.sql, err)
			continue
		}
		if got != tc.want {
			t.Errorf("Placeholders(%q): expected %d, got %d", tc.sql, tc.want, got)
		}
	}
}

func TestPlaceholders_Gap(t *testing.T) {
	t.Parallel()
	_, err := Placeholders("SELECT * FROM t WHERE a = $2")
	if err == nil || !strings.Contains(err.Error(), "$1") {
		t.Fatalf("expected gap error naming $1, got %v", err)
	}
	_, err = Placeholders("SELECT $1, $3")
	if err == nil || !strings.Contains(err.Error(), "$2") {
		t.Fatalf("expected gap error naming $2, got %v", err)
	}
}

func TestPlaceholders_IgnoresLiteralsAndComments(t *testing.T) {
	t.Parallel()
	cases := []struct {
		sql  string
		want int
	}{
		{`SELECT '$1'`, 0},
		{`SELECT 'it''s $2 o''clock'`, 0},
		{`SELECT "$1" FROM t`, 0},
		{`SELECT 1 -- $1 in a comment`, 0},
		{"SELECT 1 /* $1 in\na block comment */", 0},
		{"SELECT 1 /* outer /* $9 nested */ still a comment */", 0},
		{`SELECT $$body with $1$$`, 0},
		{`SELECT $fn$ $2 inside $fn$`, 0},
		{`SELECT '$2', $1`, 1},
	}
	for _, tc := range cases {
		got, err := Placeholders(tc.sql)
		if err != nil {
			t.Errorf("Placeholders(%q) failed: %v", tc.sql, err)
			continue
		}
		if got != tc.want {
			t.Errorf("Placeholders(%q): expected %d, got %d", tc.sql, tc.want, got)
		}
	}
}

// --- Coercion ---

func TestCoerce_Integer(t *testing.T) {
	t.Parallel()
	got, err := Coerce(TypeInteger, float64(42))
	if err != nil || got != int64(42) {
		t.Fatalf("expected int64(42), got %v, %v", got, err)
	}
	if _, err := Coerce(TypeInteger, 42.5); err == nil {
		t.Fatal("fractional value must not coerce to integer")
	}
	if _, err := Coerce(TypeInteger, "42"); err == nil {
		t.Fatal("string must not coerce to integer")
	}
}

func TestCoerce_Double(t *testing.T) {
	t.Parallel()
	got, err := Coerce(TypeDouble, 2.5)
	if err != nil || got != 2.5 {
		t.Fatalf("expected 2.5, got %v, %v", got, err)
	}
	got, err = Coerce(TypeDouble, int64(3))
	if err != nil || got != 3.0 {
		t.Fatalf("expected 3.0, got %v, %v", got, err)
	}
}

func TestCoerce_Boolean(t *testing.T) {
	t.Parallel()
	got, err := Coerce(TypeBoolean, true)
	if err != nil || got != true {
		t.Fatalf("expected true, got %v, %v", got, err)
	}
	if _, err := Coerce(TypeBoolean, "true"); err == nil {
		t.Fatal("string must not coerce to boolean")
	}
}

func TestCoerce_Timestamp(t *testing.T) {
	t.Parallel()
	got, err := Coerce(TypeTimestamp, "2025-06-01T12:30:00Z")
	if err != nil {
		t.Fatalf("Coerce failed: %v", err)
	}
	ts, ok := got.(time.Time)
	if !ok || !ts.Equal(time.Date(2025, 6, 1, 12, 30, 0, 0, time.UTC)) {
		t.Fatalf("unexpected timestamp %v", got)
	}
	if _, err := Coerce(TypeTimestamp, "June 1st"); err == nil {
		t.Fatal("non-RFC3339 string must be rejected")
	}
}

func TestCoerce_TextArray(t *testing.T) {
	t.Parallel()
	got, err := Coerce(TypeTextArray, []any{"a", "b"})
	if err != nil || !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Fatalf("expected [a b], got %v, %v", got, err)
	}
	got, err = Coerce(TypeTextArray, "x, y ,z")
	if err != nil || !reflect.DeepEqual(got, []string{"x", "y", "z"}) {
		t.Fatalf("expected [x y z], got %v, %v", got, err)
	}
	got, err = Coerce(TypeTextArray, "")
	if err != nil || !reflect.DeepEqual(got, []string{}) {
		t.Fatalf("expected empty slice, got %v, %v", got, err)
	}
	if _, err := Coerce(TypeTextArray, []any{"a", 1}); err == nil {
		t.Fatal("mixed array must be rejected")
	}
}

func TestCoerce_IntegerArray(t *testing.T) {
	t.Parallel()
	got, err := Coerce(TypeIntegerArray, []any{float64(1), float64(2)})
	if err != nil || !reflect.DeepEqual(got, []int64{1, 2}) {
		t.Fatalf("expected [1 2], got %v, %v", got, err)
	}
	got, err = Coerce(TypeIntegerArray, "3, 4")
	if err != nil || !reflect.DeepEqual(got, []int64{3, 4}) {
		t.Fatalf("expected [3 4], got %v, %v", got, err)
	}
	if _, err := Coerce(TypeIntegerArray, "3, x"); err == nil {
		t.Fatal("non-integer element must be rejected")
	}
}

// --- Values ---

func TestValues_OrderingAndNulls(t *testing.T) {
	t.Parallel()
	params := []Param{
		{Name: "limit", Type: TypeInteger, Required: true},
		{Name: "schema", Type: TypeText},
	}
	got, err := Values(params, map[string]any{"limit": float64(10)})
	if err != nil {
		t.Fatalf("Values failed: %v", err)
	}
	if len(got) != 2 || got[0] != int64(10) || got[1] != nil {
		t.Fatalf("expected [10 <nil>], got %v", got)
	}
}

func TestValues_MissingRequired(t *testing.T) {
	t.Parallel()
	params := []Param{{Name: "pid", Type: TypeInteger, Required: true}}
	_, err := Values(params, map[string]any{})
	if err == nil || !strings.Contains(err.Error(), `"pid"`) {
		t.Fatalf("expected missing-parameter error, got %v", err)
	}
}

func TestValues_UnknownArgument(t *testing.T) {
	t.Parallel()
	params := []Param{{Name: "pid", Type: TypeInteger, Required: true}}
	_, err := Values(params, map[string]any{"pid": float64(1), "extra": "x"})
	if err == nil || !strings.Contains(err.Error(), `"extra"`) {
		t.Fatalf("expected unknown-parameter error, got %v", err)
	}
}

func TestValues_ExplicitNullForOptional(t *testing.T) {
	t.Parallel()
	params := []Param{{Name: "schema", Type: TypeText}}
	got, err := Values(params, map[string]any{"schema": nil})
	if err != nil || got[0] != nil {
		t.Fatalf("explicit null must bind as NULL, got %v, %v", got, err)
	}
}

func TestValues_CoercionErrorNamesParameter(t *testing.T) {
	t.Parallel()
	params := []Param{{Name: "since", Type: TypeTimestamp, Required: true}}
	_, err := Values(params, map[string]any{"since": "yesterday"})
	if err == nil || !strings.Contains(err.Error(), `"since"`) {
		t.Fatalf("expected error naming the parameter, got %v", err)
	}
}
