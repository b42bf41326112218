package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"time"

	"github.com/trenchlabs/trenchd/internal/domain"
)

// ---------------------------------------------------------------------------
// Narrow store interfaces required by the archiver.
//
// The archiver only needs the query methods it actually calls, not the full
// domain store interfaces. The Postgres stores satisfy these implicitly.
// ---------------------------------------------------------------------------

// FeeArchiveStore provides read/prune access to fee records for archival.
type FeeArchiveStore interface {
	// ListBefore returns all fee records with a block timestamp strictly
	// before the cutoff, oldest first.
	ListBefore(ctx context.Context, before time.Time) ([]domain.FeeRecord, error)

	// DeleteBefore removes fee records older than the cutoff, returning the
	// number of rows removed.
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

// MarketArchiveStore provides read access to settled markets for archival.
type MarketArchiveStore interface {
	ListSettled(ctx context.Context, opts domain.ListOpts) ([]domain.MarketSummary, error)
}

// feeLine is the JSONL shape of one archived fee record. Amounts stay as
// decimal strings.
type feeLine struct {
	ID             string `json:"id"`
	MarketID       uint64 `json:"market_id"`
	Creator        string `json:"creator"`
	CreatorFee     string `json:"creator_fee"`
	PlatformFee    string `json:"platform_fee"`
	TxHash         string `json:"tx_hash"`
	BlockNumber    uint64 `json:"block_number"`
	BlockTimestamp string `json:"block_timestamp"`
}

// settlementLine is the JSONL shape of one archived settled market.
type settlementLine struct {
	MarketID       uint64 `json:"market_id"`
	Creator        string `json:"creator"`
	TokenAddress   string `json:"token_address"`
	InitialPrice   string `json:"initial_price"`
	FinalPrice     string `json:"final_price"`
	WinningOutcome string `json:"winning_outcome"`
	SettledTx      string `json:"tx_hash"`
	CreatedAt      string `json:"created_at"`
}

// Archiver moves aged fee records and settled-market snapshots from the
// primary store into the object bucket as JSONL files partitioned by month.
//
// Fee rows are only pruned from Postgres after the upload has succeeded.
type Archiver struct {
	writer  domain.BlobWriter
	fees    FeeArchiveStore
	markets MarketArchiveStore
	audit   domain.AuditStore
}

// NewArchiver creates an Archiver. audit may be nil.
func NewArchiver(
	writer domain.BlobWriter,
	fees FeeArchiveStore,
	markets MarketArchiveStore,
	audit domain.AuditStore,
) *Archiver {
	return &Archiver{
		writer:  writer,
		fees:    fees,
		markets: markets,
		audit:   audit,
	}
}

// ArchiveFees uploads every fee record older than the cutoff to
// archive/fees/YYYY-MM.jsonl, then prunes the archived rows. Returns the
// number of records archived.
func (a *Archiver) ArchiveFees(ctx context.Context, before time.Time) (int64, error) {
	recs, err := a.fees.ListBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive fees query: %w", err)
	}
	if len(recs) == 0 {
		return 0, nil
	}

	lines := make([]feeLine, len(recs))
	for i, r := range recs {
		lines[i] = feeLine{
			ID:             r.ID,
			MarketID:       r.MarketID,
			Creator:        r.Creator,
			CreatorFee:     amountString(r.CreatorFee),
			PlatformFee:    amountString(r.PlatformFee),
			TxHash:         r.TxHash,
			BlockNumber:    r.BlockNumber,
			BlockTimestamp: r.BlockTimestamp.UTC().Format(time.RFC3339),
		}
	}

	buf, err := marshalJSONL(lines)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive fees marshal: %w", err)
	}

	path := archivePath("fees", before)
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive fees upload: %w", err)
	}

	pruned, err := a.fees.DeleteBefore(ctx, before)
	if err != nil {
		return int64(len(recs)), fmt.Errorf("s3blob: prune archived fees: %w", err)
	}

	count := int64(len(recs))
	a.logAudit(ctx, "archive.fees", map[string]any{
		"path":   path,
		"count":  count,
		"pruned": pruned,
		"before": before.Format(time.RFC3339),
	})
	return count, nil
}

// ArchiveSettlements uploads a snapshot of every settled market to
// archive/settlements/YYYY-MM.jsonl. Settled rows stay in Postgres; the
// snapshot exists for offline analysis.
func (a *Archiver) ArchiveSettlements(ctx context.Context, at time.Time) (int64, error) {
	markets, err := a.markets.ListSettled(ctx, domain.ListOpts{})
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive settlements query: %w", err)
	}
	if len(markets) == 0 {
		return 0, nil
	}

	lines := make([]settlementLine, len(markets))
	for i, m := range markets {
		outcome := ""
		if m.WinningOutcome != nil {
			outcome = m.WinningOutcome.String()
		}
		lines[i] = settlementLine{
			MarketID:       m.MarketID,
			Creator:        m.Creator,
			TokenAddress:   m.TokenAddress,
			InitialPrice:   amountString(m.InitialPrice),
			FinalPrice:     amountString(m.FinalPrice),
			WinningOutcome: outcome,
			SettledTx:      m.TxHash,
			CreatedAt:      m.CreatedAt.UTC().Format(time.RFC3339),
		}
	}

	buf, err := marshalJSONL(lines)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive settlements marshal: %w", err)
	}

	path := archivePath("settlements", at)
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive settlements upload: %w", err)
	}

	count := int64(len(markets))
	a.logAudit(ctx, "archive.settlements", map[string]any{
		"path":  path,
		"count": count,
	})
	return count, nil
}

func (a *Archiver) logAudit(ctx context.Context, event string, detail map[string]any) {
	if a.audit == nil {
		return
	}
	_ = a.audit.Log(ctx, event, detail)
}

// ---------------------------------------------------------------------------
// helpers
// ---------------------------------------------------------------------------

// archivePath builds the S3 key for an archive file, partitioned by the
// year-month of the cutoff time.
//
//	archive/fees/2026-01.jsonl
//	archive/settlements/2026-01.jsonl
func archivePath(kind string, at time.Time) string {
	return fmt.Sprintf("archive/%s/%s.jsonl", kind, at.Format("2006-01"))
}

func amountString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

// marshalJSONL serialises a slice of values as newline-delimited JSON (JSONL).
// Each element is marshalled as a single compact JSON line followed by '\n'.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}
