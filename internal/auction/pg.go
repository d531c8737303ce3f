package auction

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Ashar20/fusion-cross-chain-bridge-sub000/internal/swap"
)

// PgStore persists intents and bids in Postgres.
type PgStore struct {
	pool *pgxpool.Pool
}

func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

const auctionSchema = `
CREATE TABLE IF NOT EXISTS intents (
    intent_id           UUID PRIMARY KEY,
    maker_chain         TEXT NOT NULL,
    maker_token         TEXT NOT NULL DEFAULT '',
    taker_chain         TEXT NOT NULL,
    taker_token         TEXT NOT NULL DEFAULT '',
    maker_amount        NUMERIC NOT NULL,
    taker_amount        NUMERIC NOT NULL,
    counterparty        TEXT NOT NULL,
    deadline            TIMESTAMPTZ NOT NULL,
    allow_partial_fill  BOOLEAN NOT NULL,
    min_fill_amount     NUMERIC,
    premium_bips        BIGINT NOT NULL DEFAULT 0,
    auction_start       TIMESTAMPTZ NOT NULL,
    auction_window_ms   BIGINT NOT NULL DEFAULT 0,
    filled_amount       NUMERIC NOT NULL DEFAULT 0,
    cancelled           BOOLEAN NOT NULL DEFAULT FALSE,
    created_at          TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS bids (
    bid_id        UUID PRIMARY KEY,
    intent_id     UUID NOT NULL REFERENCES intents (intent_id),
    resolver_id   TEXT NOT NULL,
    input_amount  NUMERIC NOT NULL,
    output_amount NUMERIC NOT NULL,
    gas_estimate  NUMERIC NOT NULL DEFAULT 0,
    submitted_at  TIMESTAMPTZ NOT NULL,
    active        BOOLEAN NOT NULL
);
CREATE INDEX IF NOT EXISTS bids_intent_active_idx ON bids (intent_id) WHERE active;
`

func (s *PgStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, auctionSchema); err != nil {
		return fmt.Errorf("failed to migrate auction schema: %w", err)
	}
	return nil
}

func (s *PgStore) CreateIntent(ctx context.Context, intent *swap.Intent) error {
	var minFill *string
	if intent.MinFillAmount != nil {
		v := intent.MinFillAmount.String()
		minFill = &v
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO intents (
			intent_id, maker_chain, maker_token, taker_chain, taker_token,
			maker_amount, taker_amount, counterparty, deadline,
			allow_partial_fill, min_fill_amount, premium_bips,
			auction_start, auction_window_ms, filled_amount, cancelled, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)`,
		intent.ID, intent.MakerAsset.ChainID, intent.MakerAsset.Token,
		intent.TakerAsset.ChainID, intent.TakerAsset.Token,
		intent.MakerAmount.String(), intent.TakerAmount.String(),
		intent.CounterpartyAddress, intent.Deadline,
		intent.AllowPartialFill, minFill, intent.PremiumBips,
		intent.AuctionStart, intent.AuctionWindow.Milliseconds(),
		intent.FilledAmount.String(), intent.Cancelled, intent.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert intent: %w", err)
	}
	return nil
}

func (s *PgStore) UpdateIntent(ctx context.Context, intent *swap.Intent) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE intents SET filled_amount = $2, cancelled = $3 WHERE intent_id = $1`,
		intent.ID, intent.FilledAmount.String(), intent.Cancelled,
	)
	if err != nil {
		return fmt.Errorf("failed to update intent: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return swap.ErrIntentNotFound
	}
	return nil
}

func (s *PgStore) GetIntent(ctx context.Context, intentID uuid.UUID) (*swap.Intent, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT intent_id, maker_chain, maker_token, taker_chain, taker_token,
			maker_amount::TEXT, taker_amount::TEXT, counterparty, deadline,
			allow_partial_fill, min_fill_amount::TEXT, premium_bips,
			auction_start, auction_window_ms, filled_amount::TEXT, cancelled, created_at
		FROM intents WHERE intent_id = $1`, intentID)

	var (
		intent                     swap.Intent
		makerAmt, takerAmt, filled string
		minFill                    *string
		windowMs                   int64
	)
	err := row.Scan(
		&intent.ID, &intent.MakerAsset.ChainID, &intent.MakerAsset.Token,
		&intent.TakerAsset.ChainID, &intent.TakerAsset.Token,
		&makerAmt, &takerAmt, &intent.CounterpartyAddress, &intent.Deadline,
		&intent.AllowPartialFill, &minFill, &intent.PremiumBips,
		&intent.AuctionStart, &windowMs, &filled, &intent.Cancelled, &intent.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, swap.ErrIntentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan intent: %w", err)
	}

	intent.AuctionWindow = time.Duration(windowMs) * time.Millisecond
	var ok bool
	if intent.MakerAmount, ok = new(big.Int).SetString(makerAmt, 10); !ok {
		return nil, fmt.Errorf("failed to parse maker amount: %s", makerAmt)
	}
	if intent.TakerAmount, ok = new(big.Int).SetString(takerAmt, 10); !ok {
		return nil, fmt.Errorf("failed to parse taker amount: %s", takerAmt)
	}
	if intent.FilledAmount, ok = new(big.Int).SetString(filled, 10); !ok {
		return nil, fmt.Errorf("failed to parse filled amount: %s", filled)
	}
	if minFill != nil {
		if intent.MinFillAmount, ok = new(big.Int).SetString(*minFill, 10); !ok {
			return nil, fmt.Errorf("failed to parse min fill amount: %s", *minFill)
		}
	}
	return &intent, nil
}

func (s *PgStore) UpsertBid(ctx context.Context, bid *swap.Bid) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		UPDATE bids SET active = FALSE
		WHERE intent_id = $1 AND resolver_id = $2 AND active`,
		bid.IntentID, bid.ResolverID,
	)
	if err != nil {
		return fmt.Errorf("failed to supersede prior bid: %w", err)
	}

	gas := "0"
	if bid.GasEstimate != nil {
		gas = bid.GasEstimate.String()
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO bids (bid_id, intent_id, resolver_id, input_amount, output_amount, gas_estimate, submitted_at, active)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		bid.ID, bid.IntentID, bid.ResolverID,
		bid.InputAmount.String(), bid.OutputAmount.String(), gas,
		bid.SubmittedAt, bid.Active,
	)
	if err != nil {
		return fmt.Errorf("failed to insert bid: %w", err)
	}
	return tx.Commit(ctx)
}

func (s *PgStore) UpdateBid(ctx context.Context, bid *swap.Bid) error {
	tag, err := s.pool.Exec(ctx, `UPDATE bids SET active = $2 WHERE bid_id = $1`,
		bid.ID, bid.Active)
	if err != nil {
		return fmt.Errorf("failed to update bid: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("bid %s not found", bid.ID)
	}
	return nil
}

func (s *PgStore) ActiveBids(ctx context.Context, intentID uuid.UUID) ([]*swap.Bid, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT bid_id, intent_id, resolver_id, input_amount::TEXT, output_amount::TEXT,
			gas_estimate::TEXT, submitted_at, active
		FROM bids WHERE intent_id = $1 AND active`, intentID)
	if err != nil {
		return nil, fmt.Errorf("failed to query bids: %w", err)
	}
	defer rows.Close()

	var out []*swap.Bid
	for rows.Next() {
		var (
			bid             swap.Bid
			in, outAmt, gas string
		)
		if er := rows.Scan(&bid.ID, &bid.IntentID, &bid.ResolverID, &in, &outAmt, &gas,
			&bid.SubmittedAt, &bid.Active); er != nil {
			return nil, fmt.Errorf("failed to scan bid: %w", er)
		}
		var ok bool
		if bid.InputAmount, ok = new(big.Int).SetString(in, 10); !ok {
			return nil, fmt.Errorf("failed to parse input amount: %s", in)
		}
		if bid.OutputAmount, ok = new(big.Int).SetString(outAmt, 10); !ok {
			return nil, fmt.Errorf("failed to parse output amount: %s", outAmt)
		}
		if bid.GasEstimate, ok = new(big.Int).SetString(gas, 10); !ok {
			return nil, fmt.Errorf("failed to parse gas estimate: %s", gas)
		}
		out = append(out, &bid)
	}
	return out, rows.Err()
}

func (s *PgStore) DeactivateBids(ctx context.Context, intentID uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `UPDATE bids SET active = FALSE WHERE intent_id = $1 AND active`, intentID)
	if err != nil {
		return fmt.Errorf("failed to deactivate bids: %w", err)
	}
	return nil
}
