package ledger

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Ashar20/fusion-cross-chain-bridge-sub000/internal/escrow"
	"github.com/Ashar20/fusion-cross-chain-bridge-sub000/internal/secret"
	"github.com/Ashar20/fusion-cross-chain-bridge-sub000/internal/swap"
)

// PgStore persists swap records in Postgres. Amounts are stored as NUMERIC
// text to keep full integer precision in smallest units.
type PgStore struct {
	pool *pgxpool.Pool
}

func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

const swapsSchema = `
CREATE TABLE IF NOT EXISTS swaps (
    swap_id            UUID PRIMARY KEY,
    intent_id          UUID NOT NULL,
    bid_id             UUID NOT NULL,
    state              TEXT NOT NULL,
    hashlock           TEXT NOT NULL,
    secret             TEXT,
    source_chain       TEXT NOT NULL,
    source_ref         TEXT NOT NULL DEFAULT '',
    source_token       TEXT NOT NULL DEFAULT '',
    source_amount      NUMERIC NOT NULL,
    source_beneficiary TEXT NOT NULL,
    source_timelock    TIMESTAMPTZ NOT NULL,
    dest_chain         TEXT NOT NULL,
    dest_ref           TEXT NOT NULL DEFAULT '',
    dest_token         TEXT NOT NULL DEFAULT '',
    dest_amount        NUMERIC NOT NULL,
    dest_beneficiary   TEXT NOT NULL,
    dest_timelock      TIMESTAMPTZ NOT NULL,
    created_at         TIMESTAMPTZ NOT NULL,
    updated_at         TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS swaps_state_idx ON swaps (state);
`

// Migrate creates the swaps table if missing.
func (s *PgStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, swapsSchema); err != nil {
		return fmt.Errorf("failed to migrate swaps schema: %w", err)
	}
	return nil
}

func (s *PgStore) CreateSwap(ctx context.Context, rec *swap.Record) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO swaps (
			swap_id, intent_id, bid_id, state, hashlock, secret,
			source_chain, source_ref, source_token, source_amount, source_beneficiary, source_timelock,
			dest_chain, dest_ref, dest_token, dest_amount, dest_beneficiary, dest_timelock,
			created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20)`,
		rec.SwapID, rec.IntentID, rec.BidID, string(rec.State),
		rec.Hashlock.String(), hex.EncodeToString(rec.Secret),
		rec.Source.ChainID, string(rec.Source.Ref), rec.Source.Token,
		rec.Source.Amount.String(), rec.Source.Beneficiary, rec.Source.Timelock,
		rec.Dest.ChainID, string(rec.Dest.Ref), rec.Dest.Token,
		rec.Dest.Amount.String(), rec.Dest.Beneficiary, rec.Dest.Timelock,
		rec.CreatedAt, rec.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert swap: %w", err)
	}
	return nil
}

func (s *PgStore) UpdateSwap(ctx context.Context, rec *swap.Record) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE swaps SET
			state = $2, secret = $3,
			source_ref = $4, dest_ref = $5,
			updated_at = $6
		WHERE swap_id = $1`,
		rec.SwapID, string(rec.State), hex.EncodeToString(rec.Secret),
		string(rec.Source.Ref), string(rec.Dest.Ref), rec.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update swap: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return swap.ErrNotFound
	}
	return nil
}

func (s *PgStore) GetSwap(ctx context.Context, swapID uuid.UUID) (*swap.Record, error) {
	row := s.pool.QueryRow(ctx, selectSwap+` WHERE swap_id = $1`, swapID)
	rec, err := scanSwap(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, swap.ErrNotFound
	}
	return rec, err
}

func (s *PgStore) GetSwapByBid(ctx context.Context, bidID uuid.UUID) (*swap.Record, error) {
	row := s.pool.QueryRow(ctx, selectSwap+` WHERE bid_id = $1`, bidID)
	rec, err := scanSwap(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, swap.ErrNotFound
	}
	return rec, err
}

func (s *PgStore) ListActive(ctx context.Context) ([]*swap.Record, error) {
	rows, err := s.pool.Query(ctx, selectSwap+` WHERE state NOT IN ($1,$2,$3)`,
		string(swap.StateCompleted), string(swap.StateRefunded), string(swap.StateFailed))
	if err != nil {
		return nil, fmt.Errorf("failed to query active swaps: %w", err)
	}
	defer rows.Close()

	var out []*swap.Record
	for rows.Next() {
		rec, er := scanSwap(rows)
		if er != nil {
			return nil, er
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

const selectSwap = `
	SELECT swap_id, intent_id, bid_id, state, hashlock, secret,
		source_chain, source_ref, source_token, source_amount::TEXT, source_beneficiary, source_timelock,
		dest_chain, dest_ref, dest_token, dest_amount::TEXT, dest_beneficiary, dest_timelock,
		created_at, updated_at
	FROM swaps`

func scanSwap(row pgx.Row) (*swap.Record, error) {
	var (
		rec                    swap.Record
		state                  string
		hashlockHex, secretHex string
		srcRef, dstRef         string
		srcAmount, dstAmount   string
		createdAt, updatedAt   time.Time
	)
	err := row.Scan(
		&rec.SwapID, &rec.IntentID, &rec.BidID, &state, &hashlockHex, &secretHex,
		&rec.Source.ChainID, &srcRef, &rec.Source.Token, &srcAmount,
		&rec.Source.Beneficiary, &rec.Source.Timelock,
		&rec.Dest.ChainID, &dstRef, &rec.Dest.Token, &dstAmount,
		&rec.Dest.Beneficiary, &rec.Dest.Timelock,
		&createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	rec.State = swap.State(state)
	rec.Source.Ref = escrow.Ref(srcRef)
	rec.Dest.Ref = escrow.Ref(dstRef)
	rec.CreatedAt = createdAt
	rec.UpdatedAt = updatedAt

	rec.Hashlock, err = secret.HashlockFromHex(hashlockHex)
	if err != nil {
		return nil, fmt.Errorf("failed to parse stored hashlock: %w", err)
	}
	if secretHex != "" {
		rec.Secret, err = hex.DecodeString(secretHex)
		if err != nil {
			return nil, fmt.Errorf("failed to parse stored secret: %w", err)
		}
	}

	var ok bool
	rec.Source.Amount, ok = new(big.Int).SetString(srcAmount, 10)
	if !ok {
		return nil, fmt.Errorf("failed to parse source amount: %s", srcAmount)
	}
	rec.Dest.Amount, ok = new(big.Int).SetString(dstAmount, 10)
	if !ok {
		return nil, fmt.Errorf("failed to parse dest amount: %s", dstAmount)
	}
	return &rec, nil
}
