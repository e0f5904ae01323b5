package outbox

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestUnconfiguredRepository(t *testing.T) {
	ctx := context.Background()
	var nilRepo *Repository
	for _, r := range []*Repository{nilRepo, New(nil)} {
		_, err := r.Insert(ctx, InsertParams{LeadID: uuid.New(), Kind: KindAutoAction})
		assert.ErrorIs(t, err, ErrNotConfigured)
		_, err = r.GetByID(ctx, uuid.New())
		assert.ErrorIs(t, err, ErrNotConfigured)
		_, err = r.ClaimDue(ctx, 10)
		assert.ErrorIs(t, err, ErrNotConfigured)
		_, err = r.RequeueStale(ctx, time.Minute)
		assert.ErrorIs(t, err, ErrNotConfigured)
		assert.ErrorIs(t, r.MarkSucceeded(ctx, uuid.New()), ErrNotConfigured)
		assert.ErrorIs(t, r.Release(ctx, uuid.New(), "boom"), ErrNotConfigured)
	}
}

func TestRecordTerminal(t *testing.T) {
	cases := map[Status]bool{
		StatusPending:    false,
		StatusEnqueued:   false,
		StatusProcessing: false,
		StatusSucceeded:  true,
		StatusFailed:     true,
	}
	for status, want := range cases {
		assert.Equal(t, want, Record{Status: status}.Terminal(), status)
	}
}
