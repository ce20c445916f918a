package repository

import (
	"context"

	"github.com/shinyyama/tailor-backend/internal/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SequenceRepository hands out strictly increasing values per counter name.
type SequenceRepository interface {
	Next(ctx context.Context, name string) (uint64, error)
	SetDB(db *gorm.DB)
}

type sequenceRepository struct {
	dbHandle
}

func NewSequenceRepository(db *gorm.DB) SequenceRepository {
	r := &sequenceRepository{}
	r.SetDB(db)
	return r
}

func (r *sequenceRepository) Next(ctx context.Context, name string) (uint64, error) {
	db, err := r.conn(ctx)
	if err != nil {
		return 0, err
	}
	var next uint64
	err = db.Transaction(func(tx *gorm.DB) error {
		next, err = nextSequence(tx, name)
		return err
	})
	if err != nil {
		return 0, err
	}
	return next, nil
}

// nextSequence bumps the named counter on tx. The counter row stays locked
// until tx ends.
func nextSequence(tx *gorm.DB, name string) (uint64, error) {
	if err := tx.Clauses(clause.OnConflict{DoNothing: true}).
		Create(&model.Sequence{Name: name, Value: 0}).Error; err != nil {
		return 0, err
	}
	var seq model.Sequence
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("name = ?", name).
		First(&seq).Error; err != nil {
		return 0, err
	}
	seq.Value++
	if err := tx.Model(&model.Sequence{}).Where("name = ?", name).Update("value", seq.Value).Error; err != nil {
		return 0, err
	}
	return seq.Value, nil
}
