package remotestore

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/invoicedesk/internal/clock"
	"github.com/smallbiznis/invoicedesk/internal/invoice/domain"
	obscontext "github.com/smallbiznis/invoicedesk/internal/observability/context"
	"github.com/smallbiznis/invoicedesk/pkg/db"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Operation names attached to query logs.
const (
	opCount     = "count"
	opInsert    = "insert"
	opNextValue = "next_value"
	opCurrent   = "current"
)

// GormStore keeps invoices and per-key counters in a SQL database.
type GormStore struct {
	db    *gorm.DB
	genID *snowflake.Node
	clock clock.Clock
}

func NewGormStore(conn *gorm.DB, genID *snowflake.Node, clk clock.Clock) *GormStore {
	if clk == nil {
		clk = clock.SystemClock{}
	}
	return &GormStore{db: conn, genID: genID, clock: clk}
}

func (s *GormStore) Name() string { return "database" }

func (s *GormStore) Count(ctx context.Context, key domain.SequenceKey) (int64, error) {
	var count int64
	err := s.db.WithContext(obscontext.WithStoreOp(ctx, opCount)).
		Model(&InvoiceRow{}).
		Where("invoice_type = ? AND year = ?", string(key.Bucket), key.Year).
		Count(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}

// Insert stores the record. A row already present for the same number is
// treated as success so mirror retries stay idempotent.
func (s *GormStore) Insert(ctx context.Context, rec domain.InvoiceRecord) error {
	row := toRow(s.genID.Generate(), rec, s.clock.Now().UTC())
	err := s.db.WithContext(obscontext.WithStoreOp(ctx, opInsert)).Create(&row).Error
	if err != nil && db.IsDuplicateKeyErr(err) {
		return nil
	}
	return err
}

// NextValue sets the counter for key to max(current, floor) + 1 inside one
// transaction and returns it.
func (s *GormStore) NextValue(ctx context.Context, key domain.SequenceKey, floor int64) (int64, error) {
	if floor < 0 {
		floor = 0
	}
	now := s.clock.Now().UTC()

	var value int64
	err := s.db.WithContext(obscontext.WithStoreOp(ctx, opNextValue)).Transaction(func(tx *gorm.DB) error {
		row := SequenceRow{
			InvoiceType: string(key.Bucket),
			Year:        key.Year,
			CurrentVal:  floor + 1,
			UpdatedAt:   now,
		}
		err := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "invoice_type"}, {Name: "year"}},
			DoUpdates: clause.Assignments(map[string]any{
				"current_val": gorm.Expr(
					"CASE WHEN invoice_sequences.current_val >= ? THEN invoice_sequences.current_val + 1 ELSE ? END",
					floor, floor+1,
				),
				"updated_at": now,
			}),
		}).Create(&row).Error
		if err != nil {
			return err
		}

		return tx.Model(&SequenceRow{}).
			Where("invoice_type = ? AND year = ?", string(key.Bucket), key.Year).
			Select("current_val").
			Scan(&value).Error
	})
	if err != nil {
		return 0, err
	}
	return value, nil
}

// Current returns the stored counter without changing it.
func (s *GormStore) Current(ctx context.Context, key domain.SequenceKey) (int64, error) {
	var row SequenceRow
	err := s.db.WithContext(obscontext.WithStoreOp(ctx, opCurrent)).
		Where("invoice_type = ? AND year = ?", string(key.Bucket), key.Year).
		Limit(1).
		Find(&row).Error
	if err != nil {
		return 0, err
	}
	return row.CurrentVal, nil
}
