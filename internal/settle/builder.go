// Package settle turns a routing plan into a signed settlement transaction
// and submits it, checking execution effects before reporting success.
package settle

import (
	"context"
	"errors"
	"fmt"

	"Mist/internal/ledger"
	"Mist/internal/ptb"
	"Mist/internal/route"
)

const (
	// DefaultGasBudget is the gas budget of settlement transactions.
	DefaultGasBudget = 100_000_000

	protocolModule = "mist_protocol"
	exchangeModule = "swap_router"

	// clockInitialVersion is the initial shared version of the clock object.
	clockInitialVersion = 1
)

// ErrPriceUnavailable is returned when the exchange pool price cannot be read
// or parsed. It says nothing about the intent itself.
var ErrPriceUnavailable = errors.New("exchange pool price unavailable")

// Objects names the on-chain objects settlement transactions touch.
type Objects struct {
	Package          ledger.ObjectID // Package is the privacy protocol package
	Registry         ledger.ObjectID // Registry is the nullifier registry
	Pool             ledger.ObjectID // Pool is the liquidity pool
	ExchangePackage  ledger.ObjectID // ExchangePackage is the CLMM exchange package
	ExchangeRegistry ledger.ObjectID // ExchangeRegistry is the exchange pool registry
	ExchangeVersion  ledger.ObjectID // ExchangeVersion is the exchange's versioned object
	ExchangePool     ledger.ObjectID // ExchangePool is the pool priced for slippage limits, optional
	Clock            ledger.ObjectID // Clock is the system clock, ledger.ClockID when zero
}

// Swap carries the authorized parameters of one intent.
type Swap struct {
	Intent           ledger.ObjectID // Intent is the intent being settled
	Nullifier        []byte          // Nullifier is revealed to the registry
	OutputStealth    ledger.Address  // OutputStealth receives the output
	RemainderStealth ledger.Address  // RemainderStealth receives any remainder
	RemainderAmount  uint64          // RemainderAmount is zero for exact swaps
}

// Reader resolves the objects a build needs.
type Reader interface {
	SharedVersion(ctx context.Context, id ledger.ObjectID) (uint64, error)
	GasCoin(ctx context.Context, owner ledger.Address, coinType string) (ledger.Coin, error)
	ReferenceGasPrice(ctx context.Context) (uint64, error)
}

// PriceReader reads the current square-root price of an exchange pool.
type PriceReader interface {
	PoolSqrtPrice(ctx context.Context, pool ledger.ObjectID) (string, error)
}

// Builder assembles settlement transactions for the processor account.
type Builder struct {
	ledger   Reader         // ledger resolves versions and gas
	objects  Objects        // objects are the protocol and exchange objects
	sender   ledger.Address // sender is the processor address
	budget   uint64         // budget is the gas budget
	prices   PriceReader    // prices is nil when routed swaps use the boundary limit
	slippage uint64         // slippage is the price tolerance in basis points
}

// NewBuilder creates a builder. A zero budget uses DefaultGasBudget.
func NewBuilder(reader Reader, objects Objects, sender ledger.Address, budget uint64) *Builder {
	if budget == 0 {
		budget = DefaultGasBudget
	}

	return &Builder{ledger: reader, objects: objects, sender: sender, budget: budget}
}

// SetPriceSlippage bounds routed swaps to bps basis points from the
// exchange pool's price at build time instead of the exchange boundary.
// It has no effect unless Objects.ExchangePool is set.
func (b *Builder) SetPriceSlippage(prices PriceReader, bps uint64) {
	b.prices = prices
	b.slippage = bps
}

// Build resolves current shared versions and gas, then returns the
// transaction settling swap according to plan. Versions are never cached.
func (b *Builder) Build(ctx context.Context, plan route.Plan, swap Swap) (*ptb.TransactionData, error) {
	tb := ptb.NewBuilder()

	registry, err := b.shared(ctx, tb, b.objects.Registry, true)
	if err != nil {
		return nil, err
	}

	pool, err := b.shared(ctx, tb, b.objects.Pool, true)
	if err != nil {
		return nil, err
	}

	intent, err := b.shared(ctx, tb, swap.Intent, true)
	if errors.Is(err, ledger.ErrObjectNotFound) {
		return nil, fmt.Errorf("%w:\n%w", ledger.ErrIntentGone, err)
	}

	if err != nil {
		return nil, err
	}

	nullifier := tb.PureBytes(swap.Nullifier)

	switch p := plan.(type) {
	case route.Passthrough:
		tb.MoveCall(b.objects.Package, protocolModule, "execute_swap", nil,
			registry, pool, intent, nullifier,
			tb.PureU64(p.Amount),
			tb.PureAddress(swap.OutputStealth),
			tb.PureU64(swap.RemainderAmount),
			tb.PureAddress(swap.RemainderStealth),
		)
	case route.Routed:
		if err := b.routed(ctx, tb, p, swap, registry, pool, intent, nullifier); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unknown plan %T", plan)
	}

	gas, err := b.ledger.GasCoin(ctx, b.sender, route.NativeCoinType)
	if err != nil {
		return nil, fmt.Errorf("select gas coin:\n%w", err)
	}

	price, err := b.ledger.ReferenceGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("reference gas price:\n%w", err)
	}

	return &ptb.TransactionData{
		Sender: b.sender,
		Gas: ptb.GasData{
			Payment: []ledger.ObjectRef{gas.Ref},
			Owner:   b.sender,
			Price:   price,
			Budget:  b.budget,
		},
		Kind: tb.Finish(),
	}, nil
}

// routed appends withdraw, exchange swap and transfer commands.
func (b *Builder) routed(ctx context.Context, tb *ptb.Builder, p route.Routed, swap Swap, registry, pool, intent, nullifier ptb.Argument) error {
	in, err := ptb.ParseTypeTag(p.InputType)
	if err != nil {
		return err
	}

	out, err := ptb.ParseTypeTag(p.OutputType)
	if err != nil {
		return err
	}

	coin := tb.MoveCall(b.objects.Package, protocolModule, "withdraw_for_swap", nil,
		registry, pool, intent, nullifier, tb.PureU64(p.Amount))

	exRegistry, err := b.shared(ctx, tb, b.objects.ExchangeRegistry, true)
	if err != nil {
		return err
	}

	versioned, err := b.shared(ctx, tb, b.objects.ExchangeVersion, false)
	if err != nil {
		return err
	}

	clockID := b.objects.Clock
	if clockID.IsZero() {
		clockID = ledger.ClockID
	}

	clock := tb.SharedObject(clockID, clockInitialVersion, false)

	limit, err := b.priceLimit(ctx, p)
	if err != nil {
		return err
	}

	swapped := tb.MoveCall(b.objects.ExchangePackage, exchangeModule, "swap_exact_input", []ptb.TypeTag{in, out},
		exRegistry,
		tb.PureU64(p.FeeRate),
		coin,
		tb.PureU64(p.MinAmountOut),
		tb.PureU128(limit.Hi, limit.Lo),
		tb.PureU64(uint64(p.Deadline.UnixMilli())),
		versioned,
		clock,
	)

	tb.TransferObjects([]ptb.Argument{swapped}, tb.PureAddress(swap.OutputStealth))

	return nil
}

// priceLimit returns the plan's limit, or one derived from the pool's current
// price when slippage is configured. The price is read fresh for every build.
func (b *Builder) priceLimit(ctx context.Context, p route.Routed) (route.Uint128, error) {
	if b.prices == nil || b.objects.ExchangePool.IsZero() {
		return p.SqrtPriceLimit, nil
	}

	raw, err := b.prices.PoolSqrtPrice(ctx, b.objects.ExchangePool)
	if err != nil {
		return route.Uint128{}, fmt.Errorf("%w:\n%w", ErrPriceUnavailable, err)
	}

	current, err := route.ParseUint128(raw)
	if err != nil {
		return route.Uint128{}, fmt.Errorf("%w: %q:\n%w", ErrPriceUnavailable, raw, err)
	}

	return route.PriceLimitWithSlippage(current, b.slippage, p.XToY), nil
}

// shared adds a shared object input at its current initial shared version.
func (b *Builder) shared(ctx context.Context, tb *ptb.Builder, id ledger.ObjectID, mutable bool) (ptb.Argument, error) {
	version, err := b.ledger.SharedVersion(ctx, id)
	if err != nil {
		return ptb.Argument{}, fmt.Errorf("resolve %s:\n%w", id.Short(), err)
	}

	return tb.SharedObject(id, version, mutable), nil
}
