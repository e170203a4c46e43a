// Package column provides the columnar attribute representation exchanged
// between a cache dictionary, its update queue, and its backing sources.
//
// Columns are deliberately simple typed vectors: the update queue treats them
// as opaque result slots, and sources normalize whatever their transport
// returns (SQL drivers, Redis strings, JSON numbers) into the column's value
// type via NormalizeValue.
package column

import (
	"fmt"
	"strconv"
)

// Type identifies the value type of a column.
type Type uint8

const (
	TypeInvalid Type = iota
	TypeUInt64
	TypeInt64
	TypeFloat64
	TypeString
)

// String implements fmt.Stringer.
func (t Type) String() string {
	switch t {
	case TypeUInt64:
		return "UInt64"
	case TypeInt64:
		return "Int64"
	case TypeFloat64:
		return "Float64"
	case TypeString:
		return "String"
	default:
		return fmt.Sprintf("Invalid(%d)", uint8(t))
	}
}

// Column is a growable typed vector of attribute values.
//
// Implementations are not safe for concurrent mutation; the update queue
// guarantees a single writer per result column.
type Column interface {
	// Type returns the value type stored by this column.
	Type() Type

	// Len returns the number of rows.
	Len() int

	// Get returns the value at row as an untyped value.
	Get(row int) any

	// Append adds a value. The value must already have the column's exact
	// Go type; use NormalizeValue to coerce transport-level values first.
	Append(v any) error

	// AppendFrom appends the value at row of src, which must have the same
	// type as this column.
	AppendFrom(src Column, row int) error
}

// New creates an empty column of the given type.
func New(t Type) (Column, error) {
	switch t {
	case TypeUInt64:
		return &UInt64Column{}, nil
	case TypeInt64:
		return &Int64Column{}, nil
	case TypeFloat64:
		return &Float64Column{}, nil
	case TypeString:
		return &StringColumn{}, nil
	default:
		return nil, fmt.Errorf("column: unknown type %s", t)
	}
}

// UInt64Column stores unsigned 64-bit integers.
type UInt64Column struct {
	Data []uint64
}

func (c *UInt64Column) Type() Type    { return TypeUInt64 }
func (c *UInt64Column) Len() int      { return len(c.Data) }
func (c *UInt64Column) Get(row int) any { return c.Data[row] }

func (c *UInt64Column) Append(v any) error {
	u, ok := v.(uint64)
	if !ok {
		return typeMismatch(TypeUInt64, v)
	}
	c.Data = append(c.Data, u)
	return nil
}

func (c *UInt64Column) AppendFrom(src Column, row int) error {
	s, ok := src.(*UInt64Column)
	if !ok {
		return columnMismatch(TypeUInt64, src)
	}
	c.Data = append(c.Data, s.Data[row])
	return nil
}

// Int64Column stores signed 64-bit integers.
type Int64Column struct {
	Data []int64
}

func (c *Int64Column) Type() Type    { return TypeInt64 }
func (c *Int64Column) Len() int      { return len(c.Data) }
func (c *Int64Column) Get(row int) any { return c.Data[row] }

func (c *Int64Column) Append(v any) error {
	i, ok := v.(int64)
	if !ok {
		return typeMismatch(TypeInt64, v)
	}
	c.Data = append(c.Data, i)
	return nil
}

func (c *Int64Column) AppendFrom(src Column, row int) error {
	s, ok := src.(*Int64Column)
	if !ok {
		return columnMismatch(TypeInt64, src)
	}
	c.Data = append(c.Data, s.Data[row])
	return nil
}

// Float64Column stores 64-bit floats.
type Float64Column struct {
	Data []float64
}

func (c *Float64Column) Type() Type    { return TypeFloat64 }
func (c *Float64Column) Len() int      { return len(c.Data) }
func (c *Float64Column) Get(row int) any { return c.Data[row] }

func (c *Float64Column) Append(v any) error {
	f, ok := v.(float64)
	if !ok {
		return typeMismatch(TypeFloat64, v)
	}
	c.Data = append(c.Data, f)
	return nil
}

func (c *Float64Column) AppendFrom(src Column, row int) error {
	s, ok := src.(*Float64Column)
	if !ok {
		return columnMismatch(TypeFloat64, src)
	}
	c.Data = append(c.Data, s.Data[row])
	return nil
}

// StringColumn stores strings.
type StringColumn struct {
	Data []string
}

func (c *StringColumn) Type() Type    { return TypeString }
func (c *StringColumn) Len() int      { return len(c.Data) }
func (c *StringColumn) Get(row int) any { return c.Data[row] }

func (c *StringColumn) Append(v any) error {
	s, ok := v.(string)
	if !ok {
		return typeMismatch(TypeString, v)
	}
	c.Data = append(c.Data, s)
	return nil
}

func (c *StringColumn) AppendFrom(src Column, row int) error {
	s, ok := src.(*StringColumn)
	if !ok {
		return columnMismatch(TypeString, src)
	}
	c.Data = append(c.Data, s.Data[row])
	return nil
}

// maxUint64Float is the smallest float64 that does not fit in a uint64.
// math.MaxUint64 itself is not representable as a float64; the nearest
// representable value is 2^64.
const maxUint64Float = float64(1 << 63) * 2

// NormalizeValue coerces a transport-level value into the Go type stored by
// columns of type t. It accepts the numeric widenings produced by common
// transports: database/sql drivers (int64, []byte), JSON (float64), and
// Redis (string).
func NormalizeValue(t Type, v any) (any, error) {
	switch t {
	case TypeUInt64:
		switch x := v.(type) {
		case uint64:
			return x, nil
		case int64:
			if x < 0 {
				return nil, fmt.Errorf("column: negative value %d for %s", x, t)
			}
			return uint64(x), nil
		case int:
			if x < 0 {
				return nil, fmt.Errorf("column: negative value %d for %s", x, t)
			}
			return uint64(x), nil
		case float64:
			if x < 0 || x >= maxUint64Float {
				return nil, fmt.Errorf("column: value %v out of range for %s", x, t)
			}
			return uint64(x), nil
		case string:
			return strconv.ParseUint(x, 10, 64)
		case []byte:
			return strconv.ParseUint(string(x), 10, 64)
		}
	case TypeInt64:
		switch x := v.(type) {
		case int64:
			return x, nil
		case int:
			return int64(x), nil
		case uint64:
			return int64(x), nil
		case float64:
			return int64(x), nil
		case string:
			return strconv.ParseInt(x, 10, 64)
		case []byte:
			return strconv.ParseInt(string(x), 10, 64)
		}
	case TypeFloat64:
		switch x := v.(type) {
		case float64:
			return x, nil
		case float32:
			return float64(x), nil
		case int64:
			return float64(x), nil
		case int:
			return float64(x), nil
		case uint64:
			return float64(x), nil
		case string:
			return strconv.ParseFloat(x, 64)
		case []byte:
			return strconv.ParseFloat(string(x), 64)
		}
	case TypeString:
		switch x := v.(type) {
		case string:
			return x, nil
		case []byte:
			return string(x), nil
		}
	}
	return nil, fmt.Errorf("column: cannot normalize %T into %s", v, t)
}

func typeMismatch(t Type, v any) error {
	return fmt.Errorf("column: cannot append %T to %s column", v, t)
}

func columnMismatch(t Type, src Column) error {
	return fmt.Errorf("column: cannot append from %s column to %s column", src.Type(), t)
}
