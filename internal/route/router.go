// Package route decides how a decrypted swap is settled: paid out of the
// pool in the same asset, or swapped through the concentrated-liquidity
// exchange first.
package route

import (
	"errors"
	"fmt"
	"time"

	"Mist/internal/ptb"
)

var (
	// ErrUnsupportedDirection is returned for routed swaps whose input is not the native asset.
	ErrUnsupportedDirection = errors.New("unsupported swap direction")

	// ErrZeroAmount is returned when the swap amount is zero.
	ErrZeroAmount = errors.New("swap amount is zero")
)

const (
	// NativeCoinType is the ledger's native asset.
	NativeCoinType = "0x2::sui::SUI"

	// DefaultFeeRate is the 0.3% tier.
	DefaultFeeRate = 3000

	// DefaultSwapTTL bounds how long a routed swap stays valid after submission.
	DefaultSwapTTL = 30 * time.Minute
)

// NormalizeCoinType returns the canonical form of a coin type, with
// full-length lowercase addresses at every nesting level.
func NormalizeCoinType(s string) (string, error) {
	t, err := ptb.ParseTypeTag(s)
	if err != nil {
		return "", err
	}

	return t.String(), nil
}

// Plan is a settlement plan: Passthrough or Routed.
type Plan interface {
	// OutputAmount is the guaranteed lower bound paid to the output stealth address.
	OutputAmount() uint64

	plan()
}

// Passthrough pays the output stealth address from the pool in the input asset.
type Passthrough struct {
	Amount uint64 // Amount is both the input and the output amount
}

// OutputAmount implements Plan.
func (p Passthrough) OutputAmount() uint64 { return p.Amount }

func (Passthrough) plan() {}

// Routed withdraws from the pool, swaps on the exchange and forwards the output.
type Routed struct {
	InputType      string    // InputType is the normalized input coin type
	OutputType     string    // OutputType is the normalized output coin type
	Amount         uint64    // Amount is the exact input amount
	FeeRate        uint64    // FeeRate selects the exchange pool
	MinAmountOut   uint64    // MinAmountOut is the worst acceptable output
	SqrtPriceLimit Uint128   // SqrtPriceLimit is the worst acceptable square-root price
	XToY           bool      // XToY is the swap direction within the pool
	Deadline       time.Time // Deadline is passed to the exchange
}

// OutputAmount implements Plan.
func (r Routed) OutputAmount() uint64 { return r.MinAmountOut }

func (Routed) plan() {}

// Router turns swap parameters into plans.
type Router struct {
	NativeType      string        // NativeType is the only supported routed input asset
	FeeRate         uint64        // FeeRate is the exchange fee tier
	MinAmountOut    uint64        // MinAmountOut is the configured output floor for routed swaps
	SwapTTL         time.Duration // SwapTTL caps the exchange deadline after now
	PassthroughOnly bool          // PassthroughOnly rejects cross-asset swaps when no exchange is configured
}

// NewRouter returns a router with the default native asset, fee tier and TTL.
func NewRouter(minAmountOut uint64) *Router {
	return &Router{
		NativeType:   NativeCoinType,
		FeeRate:      DefaultFeeRate,
		MinAmountOut: minAmountOut,
		SwapTTL:      DefaultSwapTTL,
	}
}

// Route decides the plan for swapping amount of in to out. Same-asset swaps
// pass through unchanged; anything else must start from the native asset.
func (r *Router) Route(in, out string, amount uint64, deadline, now time.Time) (Plan, error) {
	if amount == 0 {
		return nil, ErrZeroAmount
	}

	normIn, err := NormalizeCoinType(in)
	if err != nil {
		return nil, fmt.Errorf("input type:\n%w", err)
	}

	normOut, err := NormalizeCoinType(out)
	if err != nil {
		return nil, fmt.Errorf("output type:\n%w", err)
	}

	if normIn == normOut {
		return Passthrough{Amount: amount}, nil
	}

	if r.PassthroughOnly {
		return nil, fmt.Errorf("%w: no exchange configured for %s to %s", ErrUnsupportedDirection, normIn, normOut)
	}

	native, err := NormalizeCoinType(r.NativeType)
	if err != nil {
		return nil, fmt.Errorf("native type:\n%w", err)
	}

	if normIn != native {
		return nil, fmt.Errorf("%w: routed swaps must start from %s, got %s", ErrUnsupportedDirection, native, normIn)
	}

	if _, err := TickSpacing(r.FeeRate); err != nil {
		return nil, err
	}

	swapDeadline := now.Add(r.SwapTTL)
	if deadline.Before(swapDeadline) {
		swapDeadline = deadline
	}

	minOut := r.MinAmountOut
	if minOut == 0 {
		minOut = 1
	}

	return Routed{
		InputType:      normIn,
		OutputType:     normOut,
		Amount:         amount,
		FeeRate:        r.FeeRate,
		MinAmountOut:   minOut,
		SqrtPriceLimit: BoundaryLimit(true),
		XToY:           true,
		Deadline:       swapDeadline,
	}, nil
}
