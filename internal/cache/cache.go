package cache

import (
	"context"
	"time"

	"tillpoint/internal/domain"
)

type CashUpCache interface {
	Get(ctx context.Context, shiftID string) (*domain.CashUpReport, bool, error)
	Set(ctx context.Context, shiftID string, report domain.CashUpReport, ttl time.Duration) error
}

type NoopCashUpCache struct{}

func (NoopCashUpCache) Get(_ context.Context, _ string) (*domain.CashUpReport, bool, error) {
	return nil, false, nil
}

func (NoopCashUpCache) Set(_ context.Context, _ string, _ domain.CashUpReport, _ time.Duration) error {
	return nil
}
