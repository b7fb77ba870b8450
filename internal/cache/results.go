package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/opensource-finance/txguard/internal/domain"
)

func resultKey(txID string) string {
	return "result:" + txID
}

// GetRecord retrieves a cached validation record. Returns nil, nil on a miss.
func GetRecord(ctx context.Context, c domain.Cache, txID string) (*domain.ValidationRecord, error) {
	data, err := c.Get(ctx, resultKey(txID))
	if err != nil || data == nil {
		return nil, err
	}

	var rec domain.ValidationRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// SetRecord caches a validation record under its transaction id.
func SetRecord(ctx context.Context, c domain.Cache, rec *domain.ValidationRecord, ttl time.Duration) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return c.Set(ctx, resultKey(rec.Result.TransactionID), data, ttl)
}
