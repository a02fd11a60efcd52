package route

import (
	"errors"
	"fmt"
)

// Price bounds of the concentrated-liquidity exchange, as Q64.64 square roots.
var (
	MinSqrtPrice = U128(4295048016)
	MaxSqrtPrice = MustUint128("79226673515401279992447579055")
)

// bpsDenominator is the basis-point scale.
const bpsDenominator = 10_000

// ErrUnknownFeeTier is returned for fee rates the exchange does not list.
var ErrUnknownFeeTier = errors.New("unknown fee tier")

// tickSpacings maps fee rates (in millionths) to tick spacing.
var tickSpacings = map[uint64]uint32{
	100:    1,
	500:    10,
	3000:   60,
	10_000: 200,
}

// TickSpacing returns the tick spacing of a fee tier.
func TickSpacing(feeRate uint64) (uint32, error) {
	s, ok := tickSpacings[feeRate]
	if !ok {
		return 0, fmt.Errorf("%w: %d", ErrUnknownFeeTier, feeRate)
	}

	return s, nil
}

// BoundaryLimit returns the most permissive price limit for a swap direction:
// one step inside the minimum for x→y, one step inside the maximum for y→x.
func BoundaryLimit(xToY bool) Uint128 {
	if xToY {
		return MinSqrtPrice.Add64(1)
	}

	return MaxSqrtPrice.Sub64(1)
}

// PriceLimitWithSlippage bounds the square-root price a swap may move to,
// bps basis points away from current in the trade direction. The result is
// rounded toward current and clamped inside the exchange bounds.
func PriceLimitWithSlippage(current Uint128, bps uint64, xToY bool) Uint128 {
	if bps > bpsDenominator {
		bps = bpsDenominator
	}

	if xToY {
		q, exact, ok := current.MulDiv(bpsDenominator-bps, bpsDenominator)
		if ok && !exact {
			q = q.Add64(1)
		}

		if !ok || q.Cmp(BoundaryLimit(true)) < 0 {
			return BoundaryLimit(true)
		}

		return q
	}

	q, _, ok := current.MulDiv(bpsDenominator+bps, bpsDenominator)
	if !ok || q.Cmp(BoundaryLimit(false)) > 0 {
		return BoundaryLimit(false)
	}

	return q
}
