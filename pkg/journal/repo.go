package journal

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type IOrderEvent interface {
	Create(ctx context.Context, record *OrderEvent) (*OrderEvent, error)
	BulkCreate(ctx context.Context, records []*OrderEvent) ([]*OrderEvent, error)
}

type OrderEventSQLRepo struct {
	db *gorm.DB
}

func NewOrderEventSQLRepo(db *gorm.DB) *OrderEventSQLRepo {
	return &OrderEventSQLRepo{
		db: db,
	}
}

func (r *OrderEventSQLRepo) dbWithContext(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx)
}

func (r *OrderEventSQLRepo) Create(ctx context.Context, record *OrderEvent) (*OrderEvent, error) {
	return record, r.dbWithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(record).Error
}

// BulkCreate inserts a batch; replayed events are skipped on the event id so
// the consumer can re-deliver after a crash.
func (r *OrderEventSQLRepo) BulkCreate(ctx context.Context, records []*OrderEvent) ([]*OrderEvent, error) {
	if len(records) == 0 {
		return records, nil
	}
	return records, r.dbWithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(records).Error
}
