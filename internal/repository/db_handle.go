package repository

import (
	"context"
	"errors"
	"sync/atomic"

	"gorm.io/gorm"
)

var (
	ErrDBNotReady = errors.New("db not ready")
	ErrNotFound   = gorm.ErrRecordNotFound
)

// dbHandle lets the server start before MySQL is reachable; the connection is
// injected later through SetDB. It must not be copied after first use; repositories
// embed it and are always handled by pointer.
type dbHandle struct {
	db atomic.Pointer[gorm.DB]
}

func (h *dbHandle) SetDB(db *gorm.DB) {
	h.db.Store(db)
}

func (h *dbHandle) conn(ctx context.Context) (*gorm.DB, error) {
	db := h.db.Load()
	if db == nil {
		return nil, ErrDBNotReady
	}
	return db.WithContext(ctx), nil
}
