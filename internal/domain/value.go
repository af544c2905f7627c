package domain

import (
	"fmt"
	"time"
)

type ValueKind string

const (
	KindString ValueKind = "string"
	KindNumber ValueKind = "number"
	KindBool   ValueKind = "bool"
	KindTime   ValueKind = "time"
	KindNull   ValueKind = "null"
)

// CellValue is the tagged representation of a dynamic cell value inside a
// snapshot. The schema-less store hands us `any`; only the kinds below are
// representable, anything else is an EncodingError at backup time rather than
// silent data loss.
type CellValue struct {
	Kind ValueKind  `json:"kind"`
	Str  string     `json:"str,omitempty"`
	Num  float64    `json:"num,omitempty"`
	Bool bool       `json:"bool,omitempty"`
	Time *time.Time `json:"time,omitempty"`
}

func NewCellValue(v any) (CellValue, error) {
	switch val := v.(type) {
	case nil:
		return CellValue{Kind: KindNull}, nil
	case string:
		return CellValue{Kind: KindString, Str: val}, nil
	case bool:
		return CellValue{Kind: KindBool, Bool: val}, nil
	case float64:
		return CellValue{Kind: KindNumber, Num: val}, nil
	case float32:
		return CellValue{Kind: KindNumber, Num: float64(val)}, nil
	case int:
		return CellValue{Kind: KindNumber, Num: float64(val)}, nil
	case int32:
		return CellValue{Kind: KindNumber, Num: float64(val)}, nil
	case int64:
		return CellValue{Kind: KindNumber, Num: float64(val)}, nil
	case time.Time:
		t := val.UTC()
		return CellValue{Kind: KindTime, Time: &t}, nil
	default:
		return CellValue{}, &EncodingError{Reason: fmt.Sprintf("unsupported cell value type %T", v)}
	}
}

// Native converts the tagged value back into the representation the
// data-access layer stores.
func (v CellValue) Native() any {
	switch v.Kind {
	case KindString:
		return v.Str
	case KindNumber:
		return v.Num
	case KindBool:
		return v.Bool
	case KindTime:
		if v.Time == nil {
			return nil
		}
		return *v.Time
	default:
		return nil
	}
}

func (v CellValue) Equal(o CellValue) bool {
	if v.Kind != o.Kind {
		return false
	}
	switch v.Kind {
	case KindString:
		return v.Str == o.Str
	case KindNumber:
		return v.Num == o.Num
	case KindBool:
		return v.Bool == o.Bool
	case KindTime:
		if v.Time == nil || o.Time == nil {
			return v.Time == o.Time
		}
		return v.Time.Equal(*o.Time)
	default:
		return true
	}
}
