package ledger

import (
	"context"
	"errors"
	"fmt"
)

// ErrNoGasCoin is returned when the sender owns no coin of the gas type.
var ErrNoGasCoin = errors.New("no gas coin available")

// Coin is an owned coin object.
type Coin struct {
	Ref      ObjectRef // Ref is the coin's object reference
	CoinType string    // CoinType is the coin's Move type argument
	Balance  uint64    // Balance is the coin value
}

// Coins lists the first page of coins of coinType owned by owner.
func (c *Client) Coins(ctx context.Context, owner Address, coinType string) ([]Coin, error) {
	var resp struct {
		Data []struct {
			CoinType     string   `json:"coinType"`
			CoinObjectID ObjectID `json:"coinObjectId"`
			Version      U64      `json:"version"`
			Digest       string   `json:"digest"`
			Balance      U64      `json:"balance"`
		} `json:"data"`
	}

	if err := c.call(ctx, "suix_getCoins", []any{owner.String(), coinType, nil, eventPageSize}, &resp); err != nil {
		return nil, err
	}

	coins := make([]Coin, 0, len(resp.Data))

	for _, d := range resp.Data {
		digest, err := decodeDigest(d.Digest)
		if err != nil {
			return nil, fmt.Errorf("coin %s:\n%w", d.CoinObjectID, err)
		}

		coins = append(coins, Coin{
			Ref:      ObjectRef{ID: d.CoinObjectID, Version: uint64(d.Version), Digest: digest},
			CoinType: d.CoinType,
			Balance:  uint64(d.Balance),
		})
	}

	return coins, nil
}

// GasCoin returns the owner's largest coin of coinType.
func (c *Client) GasCoin(ctx context.Context, owner Address, coinType string) (Coin, error) {
	coins, err := c.Coins(ctx, owner, coinType)
	if err != nil {
		return Coin{}, fmt.Errorf("list gas coins:\n%w", err)
	}

	if len(coins) == 0 {
		return Coin{}, fmt.Errorf("%w: %s", ErrNoGasCoin, owner)
	}

	best := coins[0]
	for _, c := range coins[1:] {
		if c.Balance > best.Balance {
			best = c
		}
	}

	return best, nil
}

// ReferenceGasPrice returns the current epoch's reference gas price.
func (c *Client) ReferenceGasPrice(ctx context.Context) (uint64, error) {
	var price U64
	if err := c.call(ctx, "suix_getReferenceGasPrice", nil, &price); err != nil {
		return 0, err
	}

	return uint64(price), nil
}
