package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/lib/pq"
)

// EnumSet is an unordered set of enum values persisted as a Postgres text array.
type EnumSet[T ~string] map[T]struct{}

// NewEnumSet builds a set from the provided values.
func NewEnumSet[T ~string](values ...T) EnumSet[T] {
	set := make(EnumSet[T], len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}

// Contains reports membership.
func (s EnumSet[T]) Contains(v T) bool {
	_, ok := s[v]
	return ok
}

// Values returns the members in lexical order.
func (s EnumSet[T]) Values() []T {
	out := make([]T, 0, len(s))
	for v := range s {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Scan implements sql.Scanner.
func (s *EnumSet[T]) Scan(src interface{}) error {
	var arr pq.StringArray
	if err := arr.Scan(src); err != nil {
		return fmt.Errorf("scan enum set: %w", err)
	}
	set := make(EnumSet[T], len(arr))
	for _, v := range arr {
		set[T(v)] = struct{}{}
	}
	*s = set
	return nil
}

// Value implements driver.Valuer.
func (s EnumSet[T]) Value() (driver.Value, error) {
	values := s.Values()
	arr := make(pq.StringArray, len(values))
	for i, v := range values {
		arr[i] = string(v)
	}
	return arr.Value()
}

// MarshalJSON renders the set as a sorted array.
func (s EnumSet[T]) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Values())
}

// UnmarshalJSON accepts an array of values.
func (s *EnumSet[T]) UnmarshalJSON(data []byte) error {
	var values []T
	if err := json.Unmarshal(data, &values); err != nil {
		return err
	}
	*s = NewEnumSet(values...)
	return nil
}
