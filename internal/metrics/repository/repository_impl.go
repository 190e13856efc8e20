package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/qbr/internal/clock"
	metricsdomain "github.com/smallbiznis/qbr/internal/metrics/domain"
	"github.com/smallbiznis/qbr/pkg/db"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type store struct {
	db    *gorm.DB
	genID *snowflake.Node
	clock clock.Clock
}

// New builds the gorm-backed metrics store.
func New(db *gorm.DB, genID *snowflake.Node, clk clock.Clock) metricsdomain.Store {
	return &store{db: db, genID: genID, clock: clk}
}

func (s *store) Upsert(ctx context.Context, period string, orgID int64, vendor *string, values []metricsdomain.MetricValue) error {
	now := s.clock.Now().UTC()
	conflict := buildConflictClause(s.db, vendor != nil)

	for _, value := range values {
		row := metricsdomain.Metric{
			ID:          s.genID.Generate(),
			OrgID:       orgID,
			Vendor:      vendor,
			Period:      period,
			MetricName:  value.Name,
			Value:       value.Value,
			DataSource:  value.DataSource,
			Note:        value.Note,
			Metadata:    datatypes.JSONMap(value.Metadata),
			CollectedAt: now,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := s.db.WithContext(ctx).Clauses(conflict).Create(&row).Error; err != nil {
			// The conflict clause absorbs collisions on the targeted
			// partition, so a duplicate-key error here means the row hit a
			// constraint the upsert does not cover.
			if db.IsDuplicateKeyErr(err) {
				return fmt.Errorf("upsert metric %s/%s: conflict outside the uniqueness partitions: %w", period, value.Name, err)
			}
			return fmt.Errorf("upsert metric %s/%s: %w", period, value.Name, err)
		}
	}
	return nil
}

// buildConflictClause targets one of the two uniqueness partitions: vendor
// present rows conflict on (period, metric_name, org_id, vendor), vendor
// absent rows on (period, metric_name, org_id). A single unique constraint
// over the nullable vendor column would let duplicate NULL-vendor rows
// through, so the table carries two partial unique indexes instead.
func buildConflictClause(db *gorm.DB, vendorScoped bool) clause.OnConflict {
	conflict := clause.OnConflict{
		DoUpdates: clause.AssignmentColumns([]string{
			"value", "data_source", "note", "metadata", "collected_at", "updated_at",
		}),
	}
	if vendorScoped {
		conflict.Columns = []clause.Column{
			{Name: "period"}, {Name: "metric_name"}, {Name: "org_id"}, {Name: "vendor"},
		}
	} else {
		conflict.Columns = []clause.Column{
			{Name: "period"}, {Name: "metric_name"}, {Name: "org_id"},
		}
	}

	// MySQL has neither partial indexes nor conflict targets; only the
	// dialects that do get the partition predicate.
	if db != nil && !strings.EqualFold(db.Dialector.Name(), "mysql") {
		predicate := "vendor IS NOT NULL"
		if !vendorScoped {
			predicate = "vendor IS NULL"
		}
		conflict.TargetWhere = clause.Where{Exprs: []clause.Expression{
			clause.Expr{SQL: predicate},
		}}
	}
	return conflict
}
