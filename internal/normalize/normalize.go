// Package normalize drains pgx result sets into a stable, transport-safe
// shape: ordered column descriptors plus rows of plain Go values. Driver
// types that do not survive JSON encoding (UUIDs, numerics, intervals,
// ranges, geometry) are converted eagerly so no pgx type leaks to callers.
package normalize

import (
	"encoding/base64"
	"errors"
	"fmt"
	"math"
	"net"
	"net/netip"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

// ErrRowLimit is returned when a result exceeds the configured row cap.
// Results are all-or-nothing: a capped result is an error, not a silently
// shortened answer.
var ErrRowLimit = errors.New("result exceeds the row limit")

// Column describes one column of a normalized result.
type Column struct {
	Name string
	Type string
}

// Result is a fully normalized statement result. Rows are ordered as the
// server returned them; each cell is nil for SQL NULL, never a zero value.
type Result struct {
	Columns      []Column
	Rows         [][]any
	RowsAffected int64
}

// Collect drains rows into a Result, converting every cell. maxRows > 0
// aborts with ErrRowLimit once the cap is crossed. rows is always closed.
func Collect(rows pgx.Rows, maxRows int) (*Result, error) {
	defer rows.Close()

	res := &Result{Columns: columns(rows), Rows: [][]any{}}
	for rows.Next() {
		if maxRows > 0 && len(res.Rows) >= maxRows {
			return nil, fmt.Errorf("%w: more than %d rows; narrow the statement (LIMIT, WHERE) and retry", ErrRowLimit, maxRows)
		}
		values, err := rows.Values()
		if err != nil {
			return nil, err
		}
		row := make([]any, len(values))
		for i, v := range values {
			row[i] = Value(v)
		}
		res.Rows = append(res.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	res.RowsAffected = rows.CommandTag().RowsAffected()
	return res, nil
}

// columns reads the field descriptors, resolving type names through the
// connection's type map when one is available. Fakes and hijacked rows
// have no connection; those fall back to the bare OID.
func columns(rows pgx.Rows) []Column {
	fds := rows.FieldDescriptions()
	var typeMap *pgtype.Map
	if conn := rows.Conn(); conn != nil {
		typeMap = conn.TypeMap()
	}
	cols := make([]Column, len(fds))
	for i, fd := range fds {
		name := ""
		if typeMap != nil {
			if t, ok := typeMap.TypeForOID(fd.DataTypeOID); ok {
				name = t.Name
			}
		}
		if name == "" {
			name = "oid:" + strconv.FormatUint(uint64(fd.DataTypeOID), 10)
		}
		cols[i] = Column{Name: fd.Name, Type: name}
	}
	return cols
}

// Value converts a pgx-returned value to a JSON-friendly Go type.
func Value(v any) any {
	switch val := v.(type) {
	case nil:
		return nil
	case time.Time:
		return val.Format(time.RFC3339Nano)
	case float32:
		if math.IsNaN(float64(val)) {
			return "NaN"
		}
		if math.IsInf(float64(val), 1) {
			return "Infinity"
		}
		if math.IsInf(float64(val), -1) {
			return "-Infinity"
		}
		return val
	case float64:
		if math.IsNaN(val) {
			return "NaN"
		}
		if math.IsInf(val, 1) {
			return "Infinity"
		}
		if math.IsInf(val, -1) {
			return "-Infinity"
		}
		return val
	case netip.Prefix:
		return val.String()
	case net.HardwareAddr:
		return val.String()
	case pgtype.Time:
		if !val.Valid {
			return nil
		}
		us := val.Microseconds
		hours := us / 3_600_000_000
		us -= hours * 3_600_000_000
		minutes := us / 60_000_000
		us -= minutes * 60_000_000
		seconds := us / 1_000_000
		us -= seconds * 1_000_000
		if us > 0 {
			return fmt.Sprintf("%02d:%02d:%02d.%06d", hours, minutes, seconds, us)
		}
		return fmt.Sprintf("%02d:%02d:%02d", hours, minutes, seconds)
	case pgtype.Interval:
		if !val.Valid {
			return nil
		}
		parts := []string{}
		if val.Months != 0 {
			years := val.Months / 12
			months := val.Months % 12
			if years != 0 {
				parts = append(parts, fmt.Sprintf("%d year(s)", years))
			}
			if months != 0 {
				parts = append(parts, fmt.Sprintf("%d mon(s)", months))
			}
		}
		if val.Days != 0 {
			parts = append(parts, fmt.Sprintf("%d day(s)", val.Days))
		}
		if val.Microseconds != 0 {
			dur := time.Duration(val.Microseconds) * time.Microsecond
			parts = append(parts, dur.String())
		}
		if len(parts) == 0 {
			return "0"
		}
		return strings.Join(parts, " ")
	case pgtype.Numeric:
		if !val.Valid {
			return nil
		}
		if val.NaN {
			return "NaN"
		}
		if val.InfinityModifier == pgtype.Infinity {
			return "Infinity"
		}
		if val.InfinityModifier == pgtype.NegativeInfinity {
			return "-Infinity"
		}
		b, err := val.MarshalJSON()
		if err != nil {
			return nil
		}
		return string(b)
	case pgtype.Range[interface{}]:
		if !val.Valid {
			return nil
		}
		if val.LowerType == pgtype.Empty {
			return "empty"
		}
		var sb strings.Builder
		if val.LowerType == pgtype.Inclusive {
			sb.WriteByte('[')
		} else {
			sb.WriteByte('(')
		}
		if val.LowerType != pgtype.Unbounded {
			sb.WriteString(fmt.Sprintf("%v", Value(val.Lower)))
		}
		sb.WriteByte(',')
		if val.UpperType != pgtype.Unbounded {
			sb.WriteString(fmt.Sprintf("%v", Value(val.Upper)))
		}
		if val.UpperType == pgtype.Inclusive {
			sb.WriteByte(']')
		} else {
			sb.WriteByte(')')
		}
		return sb.String()
	case pgtype.Point:
		if !val.Valid {
			return nil
		}
		return fmt.Sprintf("(%g,%g)", val.P.X, val.P.Y)
	case pgtype.Line:
		if !val.Valid {
			return nil
		}
		return fmt.Sprintf("{%g,%g,%g}", val.A, val.B, val.C)
	case pgtype.Lseg:
		if !val.Valid {
			return nil
		}
		return fmt.Sprintf("[(%g,%g),(%g,%g)]", val.P[0].X, val.P[0].Y, val.P[1].X, val.P[1].Y)
	case pgtype.Box:
		if !val.Valid {
			return nil
		}
		return fmt.Sprintf("(%g,%g),(%g,%g)", val.P[0].X, val.P[0].Y, val.P[1].X, val.P[1].Y)
	case pgtype.Path:
		if !val.Valid {
			return nil
		}
		points := make([]string, len(val.P))
		for i, p := range val.P {
			points[i] = fmt.Sprintf("(%g,%g)", p.X, p.Y)
		}
		joined := strings.Join(points, ",")
		if val.Closed {
			return "(" + joined + ")"
		}
		return "[" + joined + "]"
	case pgtype.Polygon:
		if !val.Valid {
			return nil
		}
		points := make([]string, len(val.P))
		for i, p := range val.P {
			points[i] = fmt.Sprintf("(%g,%g)", p.X, p.Y)
		}
		return "(" + strings.Join(points, ",") + ")"
	case pgtype.Circle:
		if !val.Valid {
			return nil
		}
		return fmt.Sprintf("<(%g,%g),%g>", val.P.X, val.P.Y, val.R)
	case pgtype.Bits:
		if !val.Valid {
			return nil
		}
		result := make([]byte, val.Len)
		for i := int32(0); i < val.Len; i++ {
			byteIdx := i / 8
			bitIdx := 7 - (i % 8)
			if val.Bytes[byteIdx]&(1<<uint(bitIdx)) != 0 {
				result[i] = '1'
			} else {
				result[i] = '0'
			}
		}
		return string(result)
	case [16]byte:
		// UUID
		return fmt.Sprintf("%x-%x-%x-%x-%x", val[0:4], val[4:6], val[6:8], val[8:10], val[10:16])
	case []byte:
		// bytea, xml
		return base64.StdEncoding.EncodeToString(val)
	case string:
		return val
	case map[string]interface{}:
		result := make(map[string]interface{}, len(val))
		for k, v := range val {
			result[k] = Value(v)
		}
		return result
	case []interface{}:
		result := make([]interface{}, len(val))
		for i, v := range val {
			result[i] = Value(v)
		}
		return result
	default:
		return val
	}
}
