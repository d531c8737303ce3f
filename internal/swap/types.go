package swap

import (
	"math/big"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/Ashar20/fusion-cross-chain-bridge-sub000/internal/escrow"
	"github.com/Ashar20/fusion-cross-chain-bridge-sub000/internal/secret"
)

// Asset identifies a token or native asset on one chain. An empty Token
// means the chain's native asset.
type Asset struct {
	ChainID string `json:"chainId"`
	Token   string `json:"token"`
}

// Intent is a maker's signed request to exchange MakerAmount of MakerAsset
// for at least TakerAmount of TakerAsset. The floor rate implied by the two
// amounts decays upward-to-floor over the auction window (see PremiumBips).
type Intent struct {
	ID          uuid.UUID `json:"id"`
	MakerAsset  Asset     `json:"makerAsset"`
	TakerAsset  Asset     `json:"takerAsset"`
	MakerAmount *big.Int  `json:"makerAmount"`
	TakerAmount *big.Int  `json:"takerAmount"`

	// Counterparty address on the taker asset's chain.
	CounterpartyAddress string `json:"counterpartyAddress"`

	Deadline         time.Time `json:"deadline"`
	AllowPartialFill bool      `json:"allowPartialFill"`
	MinFillAmount    *big.Int  `json:"minFillAmount,omitempty"`

	// Dutch auction parameters: the acceptable rate starts PremiumBips above
	// the floor at AuctionStart and decays linearly to the floor over
	// AuctionWindow.
	PremiumBips   int64         `json:"premiumBips"`
	AuctionStart  time.Time     `json:"auctionStart"`
	AuctionWindow time.Duration `json:"auctionWindow"`

	// FilledAmount sums the maker-side input of every executed bid.
	FilledAmount *big.Int  `json:"filledAmount"`
	Cancelled    bool      `json:"cancelled"`
	CreatedAt    time.Time `json:"createdAt"`
}

// FloorRate is the minimum acceptable taker-per-maker exchange rate.
func (i *Intent) FloorRate() decimal.Decimal {
	return decimal.NewFromBigInt(i.TakerAmount, 0).
		Div(decimal.NewFromBigInt(i.MakerAmount, 0))
}

// Remaining is the unfilled maker-side amount.
func (i *Intent) Remaining() *big.Int {
	filled := i.FilledAmount
	if filled == nil {
		filled = big.NewInt(0)
	}
	return new(big.Int).Sub(i.MakerAmount, filled)
}

func (i *Intent) Expired(now time.Time) bool {
	return !now.Before(i.Deadline)
}

// Bid is a resolver's offer to fill (part of) an intent: take InputAmount of
// the maker asset, deliver OutputAmount of the taker asset.
type Bid struct {
	ID           uuid.UUID `json:"id"`
	IntentID     uuid.UUID `json:"intentId"`
	ResolverID   string    `json:"resolverId"`
	InputAmount  *big.Int  `json:"inputAmount"`
	OutputAmount *big.Int  `json:"outputAmount"`
	GasEstimate  *big.Int  `json:"gasEstimate"`
	SubmittedAt  time.Time `json:"submittedAt"`
	Active       bool      `json:"active"`
}

// Rate is the taker-per-maker exchange rate this bid offers.
func (b *Bid) Rate() decimal.Decimal {
	return decimal.NewFromBigInt(b.OutputAmount, 0).
		Div(decimal.NewFromBigInt(b.InputAmount, 0))
}

// NetOutput is the maker's output net of the gas-adjusted execution cost,
// the quantity SelectWinner maximizes.
func (b *Bid) NetOutput() *big.Int {
	gas := b.GasEstimate
	if gas == nil {
		gas = big.NewInt(0)
	}
	return new(big.Int).Sub(b.OutputAmount, gas)
}

// Leg is one side of a swap: the escrow reference plus the parameters it was
// created with, enough to re-drive any adapter call after a restart.
type Leg struct {
	ChainID     string     `json:"chainId"`
	Ref         escrow.Ref `json:"ref,omitempty"`
	Token       string     `json:"token"`
	Amount      *big.Int   `json:"amount"`
	Beneficiary string     `json:"beneficiary"`
	Timelock    time.Time  `json:"timelock"`
}

// Record is the authoritative ledger entry for one executed bid. Exactly one
// Record exists per executed bid; partial fills spawn independent records.
// Secret stays empty until the reveal finalizes on the first chain.
type Record struct {
	SwapID   uuid.UUID       `json:"swapId"`
	IntentID uuid.UUID       `json:"intentId"`
	BidID    uuid.UUID       `json:"bidId"`
	State    State           `json:"state"`
	Hashlock secret.Hashlock `json:"hashlock"`
	Secret   []byte          `json:"secret,omitempty"`

	Source Leg `json:"source"`
	Dest   Leg `json:"dest"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
