package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination for store list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// MarketRecordStore mirrors indexer creation/settlement events into local
// persistence so the feed can be served when the indexer is unreachable.
type MarketRecordStore interface {
	UpsertCreated(ctx context.Context, recs []MarketCreatedRecord) error
	UpsertSettled(ctx context.Context, recs []MarketSettledRecord) error
	GetByMarketID(ctx context.Context, marketID uint64) (MarketSummary, error)
	List(ctx context.Context, opts ListOpts) ([]MarketSummary, error)
	ListSettled(ctx context.Context, opts ListOpts) ([]MarketSummary, error)
	ListByCreator(ctx context.Context, creator string, opts ListOpts) ([]MarketSummary, error)
	Count(ctx context.Context) (int64, error)
}

// FeeStore persists fee-payment records with exact integer amounts.
type FeeStore interface {
	UpsertBatch(ctx context.Context, recs []FeeRecord) error
	ListByMarket(ctx context.Context, marketID uint64, opts ListOpts) ([]FeeRecord, error)
	ListBefore(ctx context.Context, before time.Time) ([]FeeRecord, error)
	// SumByMarket returns exact creator/platform totals computed in SQL.
	SumByMarket(ctx context.Context, marketID uint64) (FeeTotals, error)
	SumAll(ctx context.Context) (FeeTotals, error)
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}
