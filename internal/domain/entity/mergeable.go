package entity

import (
	"database/sql"
	"database/sql/driver"
	"fmt"
)

// Mergeable is the upstream mergeability of a pull request. The provider computes it
// asynchronously, so Unknown is a legitimate steady value and not an error.
type Mergeable int8

const (
	MergeableUnknown Mergeable = iota
	MergeableTrue
	MergeableFalse
)

func MergeableFromPtr(v *bool) Mergeable {
	switch {
	case v == nil:
		return MergeableUnknown
	case *v:
		return MergeableTrue
	default:
		return MergeableFalse
	}
}

func (m Mergeable) Known() bool {
	return m != MergeableUnknown
}

func (m Mergeable) String() string {
	switch m {
	case MergeableTrue:
		return "true"
	case MergeableFalse:
		return "false"
	default:
		return "unknown"
	}
}

// Value stores the tri-state as a nullable boolean column.
func (m Mergeable) Value() (driver.Value, error) {
	switch m {
	case MergeableTrue:
		return true, nil
	case MergeableFalse:
		return false, nil
	default:
		return nil, nil
	}
}

func (m *Mergeable) Scan(src any) error {
	var b sql.NullBool
	if err := b.Scan(src); err != nil {
		return fmt.Errorf("scan mergeable: %w", err)
	}
	switch {
	case !b.Valid:
		*m = MergeableUnknown
	case b.Bool:
		*m = MergeableTrue
	default:
		*m = MergeableFalse
	}
	return nil
}
