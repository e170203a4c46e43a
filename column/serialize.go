package column

import (
	"encoding/binary"
	"fmt"
	"math"
)

// SerializeKeyRow appends a deterministic binary encoding of one row across
// the given key columns to buf and returns the extended buffer.
//
// The encoding is self-delimiting (a type tag per column, length-prefixed
// strings), so two distinct key tuples never serialize to the same bytes.
// It is used both to probe complex-key storage and to copy key bytes into a
// unit's arena.
func SerializeKeyRow(cols []Column, row int, buf []byte) ([]byte, error) {
	for _, c := range cols {
		if row < 0 || row >= c.Len() {
			return nil, fmt.Errorf("column: key row %d out of range (len %d)", row, c.Len())
		}

		buf = append(buf, byte(c.Type()))

		switch col := c.(type) {
		case *UInt64Column:
			buf = binary.LittleEndian.AppendUint64(buf, col.Data[row])
		case *Int64Column:
			buf = binary.LittleEndian.AppendUint64(buf, uint64(col.Data[row]))
		case *Float64Column:
			buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(col.Data[row]))
		case *StringColumn:
			s := col.Data[row]
			buf = binary.AppendUvarint(buf, uint64(len(s)))
			buf = append(buf, s...)
		default:
			return nil, fmt.Errorf("column: cannot serialize %s key column", c.Type())
		}
	}
	return buf, nil
}

// SerializeKeyRows serializes the given rows across the key columns into
// transient strings, one per row. The returned strings do not reference the
// column buffers.
func SerializeKeyRows(cols []Column, rows []int) ([]string, error) {
	if len(cols) == 0 {
		return nil, fmt.Errorf("column: no key columns")
	}

	keys := make([]string, len(rows))
	var buf []byte

	for i, row := range rows {
		var err error
		buf, err = SerializeKeyRow(cols, row, buf[:0])
		if err != nil {
			return nil, err
		}
		keys[i] = string(buf)
	}
	return keys, nil
}
