// Package domain contains persistence models for QBR metrics.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// DataSource records how a metric value was produced.
type DataSource string

const (
	DataSourceCollected   DataSource = "collected"
	DataSourceManual      DataSource = "manual"
	DataSourceImported    DataSource = "imported"
	DataSourcePlaceholder DataSource = "placeholder"
)

// Metric stores one numeric fact scoped to (period, organization, vendor).
// Vendor is nil for organization-wide metrics such as headcount or revenue;
// the nil partition has its own uniqueness rule, see the store.
type Metric struct {
	ID          snowflake.ID      `gorm:"primaryKey"`
	OrgID       int64             `gorm:"column:org_id;not null"`
	Vendor      *string           `gorm:"type:text"`
	Period      string            `gorm:"type:text;not null"`
	MetricName  string            `gorm:"column:metric_name;type:text;not null"`
	Value       decimal.Decimal   `gorm:"type:numeric(18,2);not null"`
	DataSource  DataSource        `gorm:"type:text;not null"`
	Note        string            `gorm:"type:text"`
	Metadata    datatypes.JSONMap `gorm:"type:jsonb"`
	CollectedAt time.Time         `gorm:"not null"`
	CreatedAt   time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt   time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Metric) TableName() string { return "qbr_metrics" }

// MetricValue is one named fact produced by a collector, before persistence.
type MetricValue struct {
	Name       string
	Value      decimal.Decimal
	DataSource DataSource
	Note       string
	Metadata   map[string]any
}
