package seal

import (
	"crypto/rand"
	"errors"
	"fmt"
)

// Shamir secret sharing over GF(256) with the AES reduction polynomial 0x11b.
// Each byte of the secret is shared independently; share i is the evaluation
// at x = i + 1.

var (
	errShareCount  = errors.New("invalid share count")
	errDuplicateX  = errors.New("duplicate share index")
	errShareLength = errors.New("share length mismatch")
)

func gfMul(a, b byte) byte {
	var res byte

	for b > 0 {
		if b&1 == 1 {
			res ^= a
		}

		carry := a & 0x80
		a <<= 1

		if carry != 0 {
			a ^= 0x1b
		}

		b >>= 1
	}

	return res
}

// gfInv returns a^254, the multiplicative inverse of a non-zero a.
func gfInv(a byte) byte {
	res := byte(1)
	n := byte(254)

	for n > 0 {
		if n&1 == 1 {
			res = gfMul(res, a)
		}

		a = gfMul(a, a)
		n >>= 1
	}

	return res
}

// share is one point of the per-byte polynomials.
type share struct {
	x byte
	y []byte
}

// splitSecret shares secret into n shares with the given threshold.
func splitSecret(secret []byte, n, threshold int) ([]share, error) {
	if threshold < 1 || n < threshold || n > 255 {
		return nil, fmt.Errorf("%w: n=%d threshold=%d", errShareCount, n, threshold)
	}

	// coeffs[j] holds the non-constant coefficients of the polynomial for byte j.
	coeffs := make([]byte, len(secret)*(threshold-1))
	if _, err := rand.Read(coeffs); err != nil {
		return nil, fmt.Errorf("sample coefficients:\n%w", err)
	}

	shares := make([]share, n)

	for i := range shares {
		x := byte(i + 1)
		y := make([]byte, len(secret))

		for j, s := range secret {
			// Horner evaluation from the highest coefficient down.
			acc := byte(0)
			for k := threshold - 2; k >= 0; k-- {
				acc = gfMul(acc, x) ^ coeffs[j*(threshold-1)+k]
			}

			y[j] = gfMul(acc, x) ^ s
		}

		shares[i] = share{x: x, y: y}
	}

	return shares, nil
}

// combineShares interpolates the shares at zero. Exactly threshold shares are
// expected; more shares of a consistent polynomial give the same result.
func combineShares(shares []share) ([]byte, error) {
	if len(shares) == 0 {
		return nil, errShareCount
	}

	size := len(shares[0].y)
	seen := make(map[byte]bool, len(shares))

	for _, s := range shares {
		if len(s.y) != size {
			return nil, errShareLength
		}

		if s.x == 0 || seen[s.x] {
			return nil, fmt.Errorf("%w: %d", errDuplicateX, s.x)
		}

		seen[s.x] = true
	}

	// Lagrange basis at zero: L_j(0) = prod_{m != j} x_m / (x_m - x_j).
	basis := make([]byte, len(shares))

	for j := range shares {
		num, den := byte(1), byte(1)

		for m := range shares {
			if m == j {
				continue
			}

			num = gfMul(num, shares[m].x)
			den = gfMul(den, shares[m].x^shares[j].x)
		}

		basis[j] = gfMul(num, gfInv(den))
	}

	secret := make([]byte, size)

	for i := range secret {
		var acc byte
		for j, s := range shares {
			acc ^= gfMul(s.y[i], basis[j])
		}

		secret[i] = acc
	}

	return secret, nil
}
