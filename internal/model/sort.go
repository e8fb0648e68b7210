package model

import "fmt"

type SortKey string

type SortOrder string

const (
	SortByDate SortKey = "date"
	SortByName SortKey = "name"
	SortByType SortKey = "type"

	SortAsc  SortOrder = "asc"
	SortDesc SortOrder = "desc"
)

type SortSpec struct {
	Key   SortKey   `json:"key"`
	Order SortOrder `json:"order"`
}

// DefaultSort is newest first.
func DefaultSort() SortSpec {
	return SortSpec{Key: SortByDate, Order: SortDesc}
}

func (s SortSpec) Validate() error {
	switch s.Key {
	case SortByDate, SortByName, SortByType:
	default:
		return fmt.Errorf("unknown sort key %q", s.Key)
	}
	switch s.Order {
	case SortAsc, SortDesc:
	default:
		return fmt.Errorf("unknown sort order %q", s.Order)
	}
	return nil
}
