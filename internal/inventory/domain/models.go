// Package domain contains the read-only device snapshot model consumed by
// the inventory collector. Snapshot rows are produced daily by an upstream
// sync job; this service never writes them.
package domain

import "time"

// Billing classification values resolved upstream when the snapshot row is
// produced. The collector treats them as already-decided input.
const (
	BillingStatusBillable = "billable"
	BillingStatusSpare    = "spare"
)

// DeviceTypeServer is the device type excluded from seat counts. The schema
// cannot distinguish virtualization hosts from physical servers, so the
// server type stands in for both.
const DeviceTypeServer = "server"

// DeviceSnapshot is one device observation for one vendor on one calendar day.
type DeviceSnapshot struct {
	Vendor        string    `gorm:"primaryKey;type:text"`
	DeviceID      string    `gorm:"primaryKey;column:device_id;type:text"`
	SnapshotDate  time.Time `gorm:"primaryKey;column:snapshot_date;type:date"`
	OrgName       string    `gorm:"column:org_name;type:text"`
	DisplayName   string    `gorm:"type:text"`
	LocationName  string    `gorm:"type:text"`
	DeviceType    string    `gorm:"type:text"`
	BillingStatus string    `gorm:"type:text"`
}

// TableName sets the database table name.
func (DeviceSnapshot) TableName() string { return "device_snapshots" }
