package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReposWaitForDB(t *testing.T) {
	set := NewGormSet(nil)
	ctx := context.Background()

	_, err := set.Orders.FindByID(ctx, 1)
	require.ErrorIs(t, err, ErrDBNotReady)
	_, err = set.Sequences.Next(ctx, "order")
	require.ErrorIs(t, err, ErrDBNotReady)
	_, err = set.Designs.Count(ctx)
	require.ErrorIs(t, err, ErrDBNotReady)
}
