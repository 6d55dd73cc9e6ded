// Package bind turns operation templates into executable SQL: it validates
// and splices identifiers into {{slot}} markers, verifies $N value
// placeholders, and coerces caller arguments into the Go types pgx encodes.
// Identifiers and values travel different roads on purpose. Values ride as
// wire protocol parameters and are never string-interpolated; identifiers
// cannot be parameters in PostgreSQL, so they pass a strict grammar and are
// quoted before they touch the statement text.
package bind

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
)

// ErrInvalidIdentifier marks identifier grammar failures, as opposed to
// other binding failures.
var ErrInvalidIdentifier = errors.New("invalid identifier")

// segmentPattern is the grammar for a single bare identifier segment.
var segmentPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// slotPattern matches {{name}} identifier slots in a statement template.
var slotPattern = regexp.MustCompile(`\{\{\s*([A-Za-z_][A-Za-z0-9_]*)\s*\}\}`)

// Identifier validates raw against the identifier grammar and returns its
// quoted form. The grammar admits one or two dot-separated segments; each
// segment is either bare ([A-Za-z_][A-Za-z0-9_]*) or double-quoted with
// embedded quotes doubled. Bare segments are folded to lower case, which is
// how the server would resolve them unquoted. Anything else is rejected
// outright; there is no repair or re-escaping of almost-valid input.
func Identifier(raw string) (string, error) {
	segments, err := splitIdentifier(raw)
	if err != nil {
		return "", err
	}
	return pgx.Identifier(segments).Sanitize(), nil
}

func splitIdentifier(raw string) ([]string, error) {
	if raw == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidIdentifier)
	}
	var segments []string
	i, n := 0, len(raw)
	for {
		if raw[i] == '"' {
			seg, next, err := readQuotedSegment(raw, i)
			if err != nil {
				return nil, err
			}
			segments = append(segments, seg)
			i = next
		} else {
			start := i
			for i < n && raw[i] != '.' {
				i++
			}
			seg := raw[start:i]
			if !segmentPattern.MatchString(seg) {
				return nil, fmt.Errorf("%w: bad segment %q in %q", ErrInvalidIdentifier, seg, raw)
			}
			// Bare identifiers resolve case-insensitively on the server.
			segments = append(segments, strings.ToLower(seg))
		}
		if i >= n {
			break
		}
		if raw[i] != '.' {
			return nil, fmt.Errorf("%w: unexpected %q after segment in %q", ErrInvalidIdentifier, string(raw[i]), raw)
		}
		i++
		if i >= n {
			return nil, fmt.Errorf("%w: trailing dot in %q", ErrInvalidIdentifier, raw)
		}
	}
	if len(segments) > 2 {
		return nil, fmt.Errorf("%w: %q has %d segments, at most schema.name is allowed", ErrInvalidIdentifier, raw, len(segments))
	}
	return segments, nil
}

// readQuotedSegment consumes a double-quoted segment starting at raw[start]
// and returns its unescaped content and the index after the closing quote.
func readQuotedSegment(raw string, start int) (string, int, error) {
	var sb strings.Builder
	i, n := start+1, len(raw)
	for i < n {
		if raw[i] == '"' {
			if i+1 < n && raw[i+1] == '"' {
				sb.WriteByte('"')
				i += 2
				continue
			}
			if sb.Len() == 0 {
				return "", 0, fmt.Errorf("%w: empty quoted segment in %q", ErrInvalidIdentifier, raw)
			}
			return sb.String(), i + 1, nil
		}
		sb.WriteByte(raw[i])
		i++
	}
	return "", 0, fmt.Errorf("%w: unterminated quote in %q", ErrInvalidIdentifier, raw)
}

// Expand substitutes every {{slot}} in template with the validated, quoted
// identifier supplied for it. Strict in both directions: a slot without an
// identifier and an identifier without a slot are both errors.
func Expand(template string, idents map[string]string) (string, error) {
	seen := make(map[string]bool, len(idents))
	var slotErr error
	expanded := slotPattern.ReplaceAllStringFunc(template, func(m string) string {
		name := slotPattern.FindStringSubmatch(m)[1]
		seen[name] = true
		raw, ok := idents[name]
		if !ok {
			if slotErr == nil {
				slotErr = fmt.Errorf("no identifier provided for slot {{%s}}", name)
			}
			return m
		}
		quoted, err := Identifier(raw)
		if err != nil {
			if slotErr == nil {
				slotErr = fmt.Errorf("slot {{%s}}: %w", name, err)
			}
			return m
		}
		return quoted
	})
	if slotErr != nil {
		return "", slotErr
	}
	for name := range idents {
		if !seen[name] {
			return "", fmt.Errorf("identifier %q does not match any slot in the template", name)
		}
	}
	return expanded, nil
}

// Placeholders scans sql for $N value placeholders, skipping string
// literals, quoted identifiers, dollar-quoted bodies, and comments. It
// returns the highest placeholder number after verifying the set is
// contiguous from $1.
func Placeholders(sql string) (int, error) {
	seen := make(map[int]bool)
	max := 0
	i, n := 0, len(sql)
	for i < n {
		switch c := sql[i]; {
		case c == '\'':
			i = skipQuoted(sql, i, '\'')
		case c == '"':
			i = skipQuoted(sql, i, '"')
		case c == '-' && i+1 < n && sql[i+1] == '-':
			for i < n && sql[i] != '\n' {
				i++
			}
		case c == '/' && i+1 < n && sql[i+1] == '*':
			i = skipBlockComment(sql, i)
		case c == '$':
			if end, ok := dollarQuoteEnd(sql, i); ok {
				i = end
				continue
			}
			j := i + 1
			for j < n && sql[j] >= '0' && sql[j] <= '9' {
				j++
			}
			if j > i+1 {
				if num, err := strconv.Atoi(sql[i+1 : j]); err == nil && num > 0 {
					seen[num] = true
					if num > max {
						max = num
					}
				}
			}
			i = j
		default:
			i++
		}
	}
	for k := 1; k <= max; k++ {
		if !seen[k] {
			return 0, fmt.Errorf("placeholder $%d is missing: placeholders must be numbered contiguously from $1", k)
		}
	}
	return max, nil
}

// skipQuoted consumes a quoted region starting at sql[i], honoring doubled
// quote escapes, and returns the index after the closing quote.
func skipQuoted(sql string, i int, quote byte) int {
	i++
	n := len(sql)
	for i < n {
		if sql[i] == quote {
			if i+1 < n && sql[i+1] == quote {
				i += 2
				continue
			}
			return i + 1
		}
		i++
	}
	return i
}

// skipBlockComment consumes a block comment, including nested ones, which
// PostgreSQL permits.
func skipBlockComment(sql string, i int) int {
	n := len(sql)
	depth := 0
	for i < n {
		if i+1 < n && sql[i] == '/' && sql[i+1] == '*' {
			depth++
			i += 2
			continue
		}
		if i+1 < n && sql[i] == '*' && sql[i+1] == '/' {
			depth--
			i += 2
			if depth == 0 {
				return i
			}
			continue
		}
		i++
	}
	return i
}

// dollarQuoteEnd reports whether a dollar-quoted string opens at sql[i]
// and, if so, returns the index just past its closing tag. An unterminated
// dollar quote swallows the rest of the text.
func dollarQuoteEnd(sql string, i int) (int, bool) {
	n := len(sql)
	j := i + 1
	for j < n && isTagChar(sql[j]) {
		j++
	}
	if j >= n || sql[j] != '$' {
		return 0, false
	}
	// A tag must be empty or start like an identifier; $1$ is not a tag.
	if j > i+1 {
		c := sql[i+1]
		if !(c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')) {
			return 0, false
		}
	}
	tag := sql[i : j+1]
	rest := strings.Index(sql[j+1:], tag)
	if rest < 0 {
		return n, true
	}
	return j + 1 + rest + len(tag), true
}

func isTagChar(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

// Type is a parameter's declared type. It fixes how a caller-supplied JSON
// value is coerced before it is handed to pgx.
type Type string

const (
	TypeText         Type = "text"
	TypeInteger      Type = "integer"
	TypeDouble       Type = "double"
	TypeBoolean      Type = "boolean"
	TypeTimestamp    Type = "timestamp"
	TypeTextArray    Type = "text_array"
	TypeIntegerArray Type = "integer_array"
)

// ValidType reports whether t is a known parameter type.
func ValidType(t Type) bool {
	switch t {
	case TypeText, TypeInteger, TypeDouble, TypeBoolean, TypeTimestamp, TypeTextArray, TypeIntegerArray:
		return true
	}
	return false
}

// Param is one declared value parameter of an operation. Slice position is
// wire position: params[0] binds $1.
type Param struct {
	Name     string
	Type     Type
	Required bool
}

// Values checks args against the declared params and returns the positional
// argument list in declaration order. A missing optional parameter binds as
// NULL. Unknown argument names and uncoercible values are rejected.
func Values(params []Param, args map[string]any) ([]any, error) {
	declared := make(map[string]bool, len(params))
	for _, p := range params {
		declared[p.Name] = true
	}
	for name := range args {
		if !declared[name] {
			return nil, fmt.Errorf("unknown parameter %q", name)
		}
	}
	out := make([]any, len(params))
	for i, p := range params {
		raw, ok := args[p.Name]
		if !ok || raw == nil {
			if p.Required {
				return nil, fmt.Errorf("missing required parameter %q", p.Name)
			}
			out[i] = nil
			continue
		}
		v, err := Coerce(p.Type, raw)
		if err != nil {
			return nil, fmt.Errorf("parameter %q: %v", p.Name, err)
		}
		out[i] = v
	}
	return out, nil
}

// Coerce converts a decoded JSON value into the Go type pgx encodes for the
// declared type. Coercion is strict; it never guesses across kinds, with
// one convenience: array types also accept a comma-separated string, which
// is how flat tool schemas deliver them.
func Coerce(t Type, v any) (any, error) {
	switch t {
	case TypeText:
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("expected string, got %T", v)
		}
		return s, nil

	case TypeInteger:
		return coerceInt(v)

	case TypeDouble:
		switch n := v.(type) {
		case float64:
			return n, nil
		case float32:
			return float64(n), nil
		case int:
			return float64(n), nil
		case int64:
			return float64(n), nil
		}
		return nil, fmt.Errorf("expected number, got %T", v)

	case TypeBoolean:
		b, ok := v.(bool)
		if !ok {
			return nil, fmt.Errorf("expected boolean, got %T", v)
		}
		return b, nil

	case TypeTimestamp:
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("expected RFC 3339 timestamp string, got %T", v)
		}
		ts, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return nil, fmt.Errorf("invalid timestamp %q: %v", s, err)
		}
		return ts, nil

	case TypeTextArray:
		switch arr := v.(type) {
		case []string:
			return arr, nil
		case []any:
			out := make([]string, len(arr))
			for i, item := range arr {
				s, ok := item.(string)
				if !ok {
					return nil, fmt.Errorf("array element %d: expected string, got %T", i, item)
				}
				out[i] = s
			}
			return out, nil
		case string:
			return splitCSV(arr), nil
		}
		return nil, fmt.Errorf("expected string array, got %T", v)

	case TypeIntegerArray:
		switch arr := v.(type) {
		case []int64:
			return arr, nil
		case []any:
			out := make([]int64, len(arr))
			for i, item := range arr {
				n, err := coerceInt(item)
				if err != nil {
					return nil, fmt.Errorf("array element %d: %v", i, err)
				}
				out[i] = n
			}
			return out, nil
		case string:
			parts := splitCSV(arr)
			out := make([]int64, len(parts))
			for i, part := range parts {
				n, err := strconv.ParseInt(part, 10, 64)
				if err != nil {
					return nil, fmt.Errorf("array element %d: invalid integer %q", i, part)
				}
				out[i] = n
			}
			return out, nil
		}
		return nil, fmt.Errorf("expected integer array, got %T", v)
	}
	return nil, fmt.Errorf("unsupported parameter type %q", t)
}

func coerceInt(v any) (int64, error) {
	switch n := v.(type) {
	case int:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case int64:
		return n, nil
	case float64:
		// JSON numbers decode as float64; accept only whole values.
		if n != math.Trunc(n) || math.IsInf(n, 0) || math.IsNaN(n) {
			return 0, fmt.Errorf("expected integer, got %v", n)
		}
		return int64(n), nil
	}
	return 0, fmt.Errorf("expected integer, got %T", v)
}

func splitCSV(s string) []string {
	if strings.TrimSpace(s) == "" {
		return []string{}
	}
	parts := strings.Split(s, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}
