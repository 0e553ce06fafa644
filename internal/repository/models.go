// Package repository provides database abstraction for the perf-analysis service.
package repository

import (
	"database/sql/driver"
	"encoding/json"
	"errors"

	"github.com/perf-analysis/internal/parser/hprof/leakpath"
)

// JSONField is a custom type for handling JSON fields in GORM.
type JSONField []byte

// Value implements driver.Valuer interface.
func (j JSONField) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return []byte(j), nil
}

// Scan implements sql.Scanner interface.
func (j *JSONField) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}

	switch v := value.(type) {
	case []byte:
		*j = append((*j)[0:0], v...)
		return nil
	case string:
		*j = []byte(v)
		return nil
	default:
		return errors.New("unsupported type for JSONField")
	}
}

// MarshalJSON implements json.Marshaler interface.
func (j JSONField) MarshalJSON() ([]byte, error) {
	if j == nil {
		return []byte("null"), nil
	}
	return j, nil
}

// UnmarshalJSON implements json.Unmarshaler interface.
func (j *JSONField) UnmarshalJSON(data []byte) error {
	if data == nil || string(data) == "null" {
		*j = nil
		return nil
	}
	*j = append((*j)[0:0], data...)
	return nil
}

// LeakPathExclusionRule represents the leak_path_exclusion_rules table:
// the persisted catalog backing leakpath.ExclusionsFactory.
type LeakPathExclusionRule struct {
	ID          int64  `gorm:"column:id;primaryKey;autoIncrement"`
	Kind        string `gorm:"column:kind;type:varchar(32)"` // thread | static_field | instance_field
	ThreadName  string `gorm:"column:thread_name;type:varchar(256)"`
	ClassName   string `gorm:"column:class_name;type:varchar(512)"`
	FieldName   string `gorm:"column:field_name;type:varchar(256)"`
	Status      string `gorm:"column:status;type:varchar(32)"` // always_reachable | weakly_reachable | never_reachable
	Description string `gorm:"column:description;type:varchar(512)"`
	Enabled     bool   `gorm:"column:enabled"`
}

// TableName returns the table name for LeakPathExclusionRule.
func (LeakPathExclusionRule) TableName() string {
	return "leak_path_exclusion_rules"
}

// ToRule converts a LeakPathExclusionRule to leakpath.ExclusionRule. An
// unrecognized Kind or Status degrades to the least-restrictive value
// rather than failing the whole catalog load.
func (r *LeakPathExclusionRule) ToRule() leakpath.ExclusionRule {
	rule := leakpath.ExclusionRule{
		ThreadName: r.ThreadName,
		ClassName:  r.ClassName,
		FieldName:  r.FieldName,
		Exclusion: leakpath.Exclusion{
			Status:      statusFromString(r.Status),
			Description: r.Description,
		},
	}
	switch r.Kind {
	case "thread":
		rule.Kind = leakpath.ThreadExclusion
	case "static_field":
		rule.Kind = leakpath.StaticFieldExclusion
	default:
		rule.Kind = leakpath.InstanceFieldExclusion
	}
	return rule
}

func statusFromString(s string) leakpath.ExclusionStatus {
	switch s {
	case "weakly_reachable":
		return leakpath.WeaklyReachable
	case "never_reachable":
		return leakpath.NeverReachable
	default:
		return leakpath.AlwaysReachable
	}
}
