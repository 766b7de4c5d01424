package domain

import (
	"bytes"
	"encoding/json"
)

// MarshalJSON encodes the row as an object whose keys follow the column
// order. Null cells encode as JSON null.
func (r Row) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, c := range r.Cells {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(c.Column)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		if c.Value == nil {
			buf.WriteString("null")
			continue
		}
		val, err := json.Marshal(*c.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
