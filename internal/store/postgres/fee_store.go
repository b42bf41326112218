package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/trenchlabs/trenchd/internal/domain"
)

// FeeStore implements domain.FeeStore using PostgreSQL. Totals are summed in
// SQL over NUMERIC(78,0) columns, so they stay exact at any magnitude.
type FeeStore struct {
	pool *pgxpool.Pool
}

// NewFeeStore creates a FeeStore backed by the given connection pool.
func NewFeeStore(pool *pgxpool.Pool) *FeeStore {
	return &FeeStore{pool: pool}
}

// UpsertBatch inserts fee records, ignoring ones already present. Records are
// keyed by the indexer's event id, so re-fetching a page is idempotent.
func (s *FeeStore) UpsertBatch(ctx context.Context, recs []domain.FeeRecord) error {
	if len(recs) == 0 {
		return nil
	}

	const query = `
		INSERT INTO fees (
			id, market_id, creator, creator_fee, platform_fee,
			tx_hash, block_number, block_timestamp
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO NOTHING`

	batch := &pgx.Batch{}
	for _, r := range recs {
		batch.Queue(query,
			r.ID, r.MarketID, r.Creator,
			numeric(r.CreatorFee), numeric(r.PlatformFee),
			r.TxHash, r.BlockNumber, r.BlockTimestamp,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for i := range recs {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("postgres: upsert fee batch item %d: %w", i, err)
		}
	}
	return nil
}

const feeCols = `id, market_id, creator, creator_fee::text, platform_fee::text,
	tx_hash, block_number, block_timestamp`

func scanFee(row pgx.Row) (domain.FeeRecord, error) {
	var (
		r        domain.FeeRecord
		creator  *string
		platform *string
	)
	err := row.Scan(
		&r.ID, &r.MarketID, &r.Creator, &creator, &platform,
		&r.TxHash, &r.BlockNumber, &r.BlockTimestamp,
	)
	if err != nil {
		return domain.FeeRecord{}, err
	}
	if r.CreatorFee, err = parseNumeric(creator); err != nil {
		return domain.FeeRecord{}, fmt.Errorf("creator_fee: %w", err)
	}
	if r.PlatformFee, err = parseNumeric(platform); err != nil {
		return domain.FeeRecord{}, fmt.Errorf("platform_fee: %w", err)
	}
	return r, nil
}

// ListByMarket returns one market's fee records, newest first.
func (s *FeeStore) ListByMarket(ctx context.Context, marketID uint64, opts domain.ListOpts) ([]domain.FeeRecord, error) {
	query := `SELECT ` + feeCols + ` FROM fees WHERE market_id = $1 ORDER BY block_timestamp DESC`
	args := []any{marketID}
	argIdx := 2

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	return s.query(ctx, query, args)
}

// ListBefore returns every fee record older than the cutoff, oldest first,
// for the archiver.
func (s *FeeStore) ListBefore(ctx context.Context, before time.Time) ([]domain.FeeRecord, error) {
	query := `SELECT ` + feeCols + ` FROM fees WHERE block_timestamp < $1 ORDER BY block_timestamp ASC`
	return s.query(ctx, query, []any{before})
}

func (s *FeeStore) query(ctx context.Context, query string, args []any) ([]domain.FeeRecord, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list fees: %w", err)
	}
	defer rows.Close()

	var out []domain.FeeRecord
	for rows.Next() {
		r, err := scanFee(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan fee: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list fees rows: %w", err)
	}
	return out, nil
}

// SumByMarket returns exact creator/platform totals for one market.
func (s *FeeStore) SumByMarket(ctx context.Context, marketID uint64) (domain.FeeTotals, error) {
	const query = `
		SELECT COALESCE(SUM(creator_fee), 0)::text,
		       COALESCE(SUM(platform_fee), 0)::text
		FROM fees WHERE market_id = $1`
	return s.sum(ctx, query, []any{marketID})
}

// SumAll returns exact creator/platform totals over every record.
func (s *FeeStore) SumAll(ctx context.Context) (domain.FeeTotals, error) {
	const query = `
		SELECT COALESCE(SUM(creator_fee), 0)::text,
		       COALESCE(SUM(platform_fee), 0)::text
		FROM fees`
	return s.sum(ctx, query, nil)
}

func (s *FeeStore) sum(ctx context.Context, query string, args []any) (domain.FeeTotals, error) {
	var creatorText, platformText string
	if err := s.pool.QueryRow(ctx, query, args...).Scan(&creatorText, &platformText); err != nil {
		return domain.FeeTotals{}, fmt.Errorf("postgres: sum fees: %w", err)
	}

	creator, err := parseNumeric(&creatorText)
	if err != nil {
		return domain.FeeTotals{}, fmt.Errorf("postgres: creator total: %w", err)
	}
	platform, err := parseNumeric(&platformText)
	if err != nil {
		return domain.FeeTotals{}, fmt.Errorf("postgres: platform total: %w", err)
	}
	return domain.FeeTotals{CreatorTotal: creator, PlatformTotal: platform}, nil
}

// DeleteBefore removes fee records older than the cutoff after they have been
// archived. Returns the number of rows removed.
func (s *FeeStore) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM fees WHERE block_timestamp < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete fees before %s: %w", before.Format(time.RFC3339), err)
	}
	return tag.RowsAffected(), nil
}

// Compile-time interface check.
var _ domain.FeeStore = (*FeeStore)(nil)
