package domain

import (
	"fmt"
	"math"
	"sort"
	"time"
)

// Updatable stream columns.
const (
	ColumnTitle         = "title"
	ColumnAppInstance   = "appInstance"
	ColumnLive          = "live"
	ColumnDuration      = "duration"
	ColumnTotalViewers  = "totalViewers"
	ColumnTotalStickers = "totalStickers"
)

var updatableColumns = map[string]bool{
	ColumnTitle:         true,
	ColumnAppInstance:   true,
	ColumnLive:          true,
	ColumnDuration:      true,
	ColumnTotalViewers:  true,
	ColumnTotalStickers: true,
}

// StreamUpdates is a partial update keyed by column name. Values are what a
// JSON decoder produces: string, bool, float64 or json.Number style ints.
type StreamUpdates map[string]any

// Columns returns the update keys in a stable order.
func (u StreamUpdates) Columns() []string {
	cols := make([]string, 0, len(u))
	for c := range u {
		cols = append(cols, c)
	}
	sort.Strings(cols)
	return cols
}

// CheckColumns returns an *InvalidColumnError for the first key that is not
// an updatable column.
func (u StreamUpdates) CheckColumns() error {
	for _, col := range u.Columns() {
		if !updatableColumns[col] {
			return &InvalidColumnError{Column: col}
		}
	}
	return nil
}

// ApplyTo copies the updates onto s. It reports unknown columns and values of
// the wrong type; range checks are left to the storage validation.
func (u StreamUpdates) ApplyTo(s *Stream, now time.Time) error {
	if err := u.CheckColumns(); err != nil {
		return err
	}

	wasLive := s.Live
	for _, col := range u.Columns() {
		v := u[col]
		switch col {
		case ColumnTitle:
			str, ok := v.(string)
			if !ok {
				return typeError(col, "string")
			}
			s.Title = str
		case ColumnAppInstance:
			str, ok := v.(string)
			if !ok {
				return typeError(col, "string")
			}
			s.AppInstance = str
		case ColumnDuration:
			switch d := v.(type) {
			case string:
				s.Duration = d
			case float64, int, int64:
				s.Duration = fmt.Sprint(d)
			default:
				return typeError(col, "string")
			}
		case ColumnLive:
			b, ok := v.(bool)
			if !ok {
				return typeError(col, "boolean")
			}
			s.Live = b
		case ColumnTotalViewers:
			n, err := toInt(col, v)
			if err != nil {
				return err
			}
			s.TotalViewers = n
		case ColumnTotalStickers:
			n, err := toInt(col, v)
			if err != nil {
				return err
			}
			s.TotalStickers = n
		}
	}

	if wasLive && !s.Live {
		t := now
		s.EndedAt = &t
	}
	return nil
}

func toInt(col string, v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		if n != math.Trunc(n) {
			return 0, &InvalidFieldError{Field: col, Message: col + " must be an integer"}
		}
		return int(n), nil
	default:
		return 0, typeError(col, "integer")
	}
}

func typeError(col, want string) error {
	return &InvalidFieldError{Field: col, Message: fmt.Sprintf("%s must be a %s", col, want)}
}
