package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// EncodeOutcome serializes an outcome for storage.
func EncodeOutcome(o *Outcome) ([]byte, error) {
	return json.Marshal(o)
}

// DecodeOutcome restores an outcome written by EncodeOutcome. Integral numbers
// come back as int64 and all other numbers as float64.
func DecodeOutcome(data []byte) (*Outcome, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var o Outcome
	if err := dec.Decode(&o); err != nil {
		return nil, fmt.Errorf("decode outcome: %w", err)
	}
	for _, row := range o.Rows {
		for k, v := range row {
			row[k] = NormalizeValue(v)
		}
	}
	return &o, nil
}

// DecodeRows decodes a JSON array of objects into rows with normalized values.
func DecodeRows(raw json.RawMessage) ([]Row, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var rows []Row
	if err := dec.Decode(&rows); err != nil {
		return nil, fmt.Errorf("decode rows: %w", err)
	}
	for _, row := range rows {
		for k, v := range row {
			row[k] = NormalizeValue(v)
		}
	}
	return rows, nil
}

// NormalizeValue maps driver and decoder values onto the small set of scalar
// types rows carry: string, int64, float64, bool and nil.
func NormalizeValue(v interface{}) interface{} {
	switch val := v.(type) {
	case nil, string, int64, float64, bool:
		return val
	case json.Number:
		s := val.String()
		if !strings.ContainsAny(s, ".eE") {
			if n, err := strconv.ParseInt(s, 10, 64); err == nil {
				return n
			}
		}
		f, _ := val.Float64()
		return f
	case []byte:
		return string(val)
	case int:
		return int64(val)
	case int8:
		return int64(val)
	case int16:
		return int64(val)
	case int32:
		return int64(val)
	case uint8:
		return int64(val)
	case uint16:
		return int64(val)
	case uint32:
		return int64(val)
	case uint64:
		return int64(val)
	case float32:
		return float64(val)
	case time.Time:
		if val.Hour() == 0 && val.Minute() == 0 && val.Second() == 0 && val.Nanosecond() == 0 {
			return val.Format("2006-01-02")
		}
		return val.Format(time.RFC3339)
	default:
		return fmt.Sprint(val)
	}
}
