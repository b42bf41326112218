package postgres

import (
	"context"
	"fmt"
	"math/big"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/trenchlabs/trenchd/internal/domain"
)

// MarketRecordStore implements domain.MarketRecordStore using PostgreSQL.
// Amounts are stored as NUMERIC(78,0) and moved in and out as decimal
// strings so 18-decimal values never pass through a float.
type MarketRecordStore struct {
	pool *pgxpool.Pool
}

// NewMarketRecordStore creates a MarketRecordStore backed by the given
// connection pool.
func NewMarketRecordStore(pool *pgxpool.Pool) *MarketRecordStore {
	return &MarketRecordStore{pool: pool}
}

// UpsertCreated inserts or refreshes creation records in a single batch.
func (s *MarketRecordStore) UpsertCreated(ctx context.Context, recs []domain.MarketCreatedRecord) error {
	if len(recs) == 0 {
		return nil
	}

	const query = `
		INSERT INTO markets (
			market_id, creator, token_address, initial_price,
			settlement_time, created_at, created_tx, block_number, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
		ON CONFLICT (market_id) DO UPDATE SET
			creator         = EXCLUDED.creator,
			token_address   = EXCLUDED.token_address,
			initial_price   = EXCLUDED.initial_price,
			settlement_time = EXCLUDED.settlement_time,
			created_at      = EXCLUDED.created_at,
			created_tx      = EXCLUDED.created_tx,
			block_number    = EXCLUDED.block_number,
			updated_at      = NOW()`

	batch := &pgx.Batch{}
	for _, r := range recs {
		batch.Queue(query,
			r.MarketID, r.Creator, r.TokenAddress, numeric(r.InitialPrice),
			r.SettlementTime, r.BlockTimestamp, r.TxHash, r.BlockNumber,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for i := range recs {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("postgres: upsert created batch item %d: %w", i, err)
		}
	}
	return nil
}

// UpsertSettled marks existing rows as settled. Settlements for unknown
// markets insert a stub row so the settlement is never lost; the next
// creation upsert fills in the rest.
func (s *MarketRecordStore) UpsertSettled(ctx context.Context, recs []domain.MarketSettledRecord) error {
	if len(recs) == 0 {
		return nil
	}

	const query = `
		INSERT INTO markets (
			market_id, settled, final_price, winning_outcome, settled_tx, updated_at
		) VALUES ($1, TRUE, $2, $3, $4, NOW())
		ON CONFLICT (market_id) DO UPDATE SET
			settled         = TRUE,
			final_price     = EXCLUDED.final_price,
			winning_outcome = EXCLUDED.winning_outcome,
			settled_tx      = EXCLUDED.settled_tx,
			updated_at      = NOW()`

	batch := &pgx.Batch{}
	for _, r := range recs {
		batch.Queue(query, r.MarketID, numeric(r.FinalPrice), int16(r.WinningOutcome), r.TxHash)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for i := range recs {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("postgres: upsert settled batch item %d: %w", i, err)
		}
	}
	return nil
}

const summaryCols = `market_id, creator, token_address, initial_price::text,
	settlement_time, created_at, created_tx, settled,
	final_price::text, winning_outcome`

// scanSummary scans one row into a MarketSummary, decoding the NUMERIC
// amounts from their text form.
func scanSummary(row pgx.Row) (domain.MarketSummary, error) {
	var (
		m          domain.MarketSummary
		initial    *string
		finalPrice *string
		winning    *int16
	)
	err := row.Scan(
		&m.MarketID, &m.Creator, &m.TokenAddress, &initial,
		&m.SettlementTime, &m.CreatedAt, &m.TxHash, &m.Settled,
		&finalPrice, &winning,
	)
	if err != nil {
		return domain.MarketSummary{}, err
	}

	if m.InitialPrice, err = parseNumeric(initial); err != nil {
		return domain.MarketSummary{}, fmt.Errorf("initial_price: %w", err)
	}
	if m.FinalPrice, err = parseNumeric(finalPrice); err != nil {
		return domain.MarketSummary{}, fmt.Errorf("final_price: %w", err)
	}
	if winning != nil {
		o := domain.Outcome(*winning)
		m.WinningOutcome = &o
	}
	return m, nil
}

// GetByMarketID retrieves one market row.
func (s *MarketRecordStore) GetByMarketID(ctx context.Context, marketID uint64) (domain.MarketSummary, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+summaryCols+` FROM markets WHERE market_id = $1`, marketID)
	m, err := scanSummary(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.MarketSummary{}, domain.ErrNotFound
		}
		return domain.MarketSummary{}, fmt.Errorf("postgres: get market %d: %w", marketID, err)
	}
	return m, nil
}

// List returns market rows newest first.
func (s *MarketRecordStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.MarketSummary, error) {
	return s.list(ctx, "", nil, opts)
}

// ListSettled returns settled market rows newest first.
func (s *MarketRecordStore) ListSettled(ctx context.Context, opts domain.ListOpts) ([]domain.MarketSummary, error) {
	return s.list(ctx, "settled = TRUE", nil, opts)
}

// ListByCreator returns the creator's market rows newest first.
func (s *MarketRecordStore) ListByCreator(ctx context.Context, creator string, opts domain.ListOpts) ([]domain.MarketSummary, error) {
	return s.list(ctx, "LOWER(creator) = LOWER($1)", []any{creator}, opts)
}

func (s *MarketRecordStore) list(ctx context.Context, where string, args []any, opts domain.ListOpts) ([]domain.MarketSummary, error) {
	query := `SELECT ` + summaryCols + ` FROM markets`
	argIdx := len(args) + 1

	clauses := []string{}
	if where != "" {
		clauses = append(clauses, where)
	}
	if opts.Since != nil {
		clauses = append(clauses, fmt.Sprintf("created_at >= $%d", argIdx))
		args = append(args, *opts.Since)
		argIdx++
	}
	if opts.Until != nil {
		clauses = append(clauses, fmt.Sprintf("created_at <= $%d", argIdx))
		args = append(args, *opts.Until)
		argIdx++
	}
	for i, c := range clauses {
		if i == 0 {
			query += " WHERE " + c
		} else {
			query += " AND " + c
		}
	}

	query += " ORDER BY created_at DESC, market_id DESC"

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list markets: %w", err)
	}
	defer rows.Close()

	var out []domain.MarketSummary
	for rows.Next() {
		m, err := scanSummary(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan market: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list markets rows: %w", err)
	}
	return out, nil
}

// Count returns the total number of market rows.
func (s *MarketRecordStore) Count(ctx context.Context) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM markets").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("postgres: count markets: %w", err)
	}
	return count, nil
}

// numeric renders a big.Int for a NUMERIC(78,0) column. Nil maps to zero.
func numeric(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

// parseNumeric decodes the ::text projection of a NUMERIC column. NULL maps
// to nil.
func parseNumeric(s *string) (*big.Int, error) {
	if s == nil {
		return nil, nil
	}
	v, ok := new(big.Int).SetString(*s, 10)
	if !ok {
		return nil, fmt.Errorf("malformed numeric %q", *s)
	}
	return v, nil
}

// Compile-time interface check.
var _ domain.MarketRecordStore = (*MarketRecordStore)(nil)
