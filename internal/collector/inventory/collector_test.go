package inventory

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/qbr/internal/config"
	inventorydomain "github.com/smallbiznis/qbr/internal/inventory/domain"
	inventoryrepo "github.com/smallbiznis/qbr/internal/inventory/repository"
	metricsdomain "github.com/smallbiznis/qbr/internal/metrics/domain"
	"github.com/smallbiznis/qbr/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const testVendor = "ncentral"

func setupSnapshotDB(t *testing.T) *gorm.DB {
	t.Helper()
	dbConn, err := db.NewTest()
	require.NoError(t, err)
	require.NoError(t, dbConn.AutoMigrate(&inventorydomain.DeviceSnapshot{}))
	return dbConn
}

func seedDevice(t *testing.T, dbConn *gorm.DB, date time.Time, id, org, display, location, deviceType, billing string) {
	t.Helper()
	row := inventorydomain.DeviceSnapshot{
		Vendor:        testVendor,
		DeviceID:      id,
		SnapshotDate:  date,
		OrgName:       org,
		DisplayName:   display,
		LocationName:  location,
		DeviceType:    deviceType,
		BillingStatus: billing,
	}
	require.NoError(t, dbConn.Create(&row).Error)
}

func newTestCollector(dbConn *gorm.DB) *Collector {
	return &Collector{
		cfg: config.InventoryConfig{
			Vendor:       testVendor,
			ExcludedOrgs: []string{"Internal IT"},
		},
		snapshots: inventoryrepo.New(dbConn),
		log:       zap.NewNop(),
	}
}

func metricByName(t *testing.T, values []metricsdomain.MetricValue, name string) metricsdomain.MetricValue {
	t.Helper()
	for _, v := range values {
		if v.Name == name {
			return v
		}
	}
	t.Fatalf("metric %s not found", name)
	return metricsdomain.MetricValue{}
}

func TestCollectMetricsSeatExclusionUnion(t *testing.T) {
	dbConn := setupSnapshotDB(t)
	latest := time.Date(2024, 3, 28, 0, 0, 0, 0, time.UTC)
	stale := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)

	// An earlier snapshot in the same period must be ignored.
	seedDevice(t, dbConn, stale, "old-1", "Acme Corp", "ws-old", "HQ", "workstation", inventorydomain.BillingStatusBillable)

	// d1 is both a server and named spare: excluded once, not twice.
	seedDevice(t, dbConn, latest, "d1", "Acme Corp", "Spare SRV-01", "HQ", "server", inventorydomain.BillingStatusBillable)
	seedDevice(t, dbConn, latest, "d2", "Acme Corp", "SRV-02", "HQ", "server", inventorydomain.BillingStatusBillable)
	seedDevice(t, dbConn, latest, "d3", "Acme Corp", "ws-03", "Spare Office", "workstation", inventorydomain.BillingStatusSpare)
	seedDevice(t, dbConn, latest, "d4", "Internal IT", "ws-04", "HQ", "workstation", inventorydomain.BillingStatusBillable)
	for _, id := range []string{"d5", "d6", "d7", "d8", "d9", "d10"} {
		seedDevice(t, dbConn, latest, id, "Acme Corp", "ws-"+id, "HQ", "workstation", inventorydomain.BillingStatusBillable)
	}

	c := newTestCollector(dbConn)
	values, err := c.CollectMetrics(context.Background(), "2024-03")
	require.NoError(t, err)
	require.Len(t, values, 2)

	// 10 devices minus the union of {d1,d2} servers, {d1,d3} spares and {d4} excluded org = 6
	seats := metricByName(t, values, MetricSeatCount)
	assert.True(t, seats.Value.Equal(decimal.NewFromInt(6)), seats.Value.String())

	// billable status and not excluded-org: d1, d2, d5..d10
	billable := metricByName(t, values, MetricBillableEndpoints)
	assert.True(t, billable.Value.Equal(decimal.NewFromInt(8)), billable.Value.String())

	assert.Contains(t, values[0].Note, "2024-03-28")
}

func TestCollectMetricsNoSnapshotForPeriod(t *testing.T) {
	dbConn := setupSnapshotDB(t)
	seedDevice(t, dbConn, time.Date(2024, 3, 28, 0, 0, 0, 0, time.UTC), "d1", "Acme Corp", "ws-01", "HQ", "workstation", inventorydomain.BillingStatusBillable)

	c := newTestCollector(dbConn)

	// historical period with no snapshot: empty list, not an error and not zeros
	values, err := c.CollectMetrics(context.Background(), "2024-01")
	require.NoError(t, err)
	assert.Empty(t, values)
}

func TestCollectMetricsInvalidPeriod(t *testing.T) {
	c := newTestCollector(setupSnapshotDB(t))

	_, err := c.CollectMetrics(context.Background(), "not-a-period")
	assert.Error(t, err)
}
