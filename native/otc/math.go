package otc

import "github.com/holiman/uint256"

func pow10(exp uint32) (*uint256.Int, error) {
	// 10^77 is the largest power of ten below 2^256.
	if exp > 77 {
		return nil, ErrOverflow
	}
	out := uint256.NewInt(1)
	ten := uint256.NewInt(10)
	for i := uint32(0); i < exp; i++ {
		out.Mul(out, ten)
	}
	return out, nil
}

// mulDiv computes a*b/div with a 256-bit intermediate, rounding down.
func mulDiv(a, b, div uint64) (uint64, error) {
	if div == 0 {
		return 0, ErrOverflow
	}
	prod := new(uint256.Int).Mul(uint256.NewInt(a), uint256.NewInt(b))
	prod.Div(prod, uint256.NewInt(div))
	if !prod.IsUint64() {
		return 0, ErrOverflow
	}
	return prod.Uint64(), nil
}

// mulDivCeil computes a*b/div with a 256-bit intermediate, rounding up.
func mulDivCeil(a, b, div uint64) (uint64, error) {
	if div == 0 {
		return 0, ErrOverflow
	}
	prod := new(uint256.Int).Mul(uint256.NewInt(a), uint256.NewInt(b))
	rem := new(uint256.Int)
	prod.DivMod(prod, uint256.NewInt(div), rem)
	if !rem.IsZero() {
		prod.AddUint64(prod, 1)
	}
	if !prod.IsUint64() {
		return 0, ErrOverflow
	}
	return prod.Uint64(), nil
}

// DiscountedUsd values tokenAmount (in asset minor units) at priceUsd (8
// decimals) and applies a basis-point discount, rounding down at each step.
func DiscountedUsd(tokenAmount, priceUsd uint64, decimals uint8, discountBps uint16) (uint64, error) {
	if discountBps > bpsDenominator {
		return 0, ErrDiscountOutOfRange
	}
	scale, err := pow10(uint32(decimals))
	if err != nil {
		return 0, err
	}
	usd := new(uint256.Int).Mul(uint256.NewInt(tokenAmount), uint256.NewInt(priceUsd))
	usd.Div(usd, scale)
	if !usd.IsUint64() {
		return 0, ErrOverflow
	}
	return mulDiv(usd.Uint64(), bpsDenominator-uint64(discountBps), bpsDenominator)
}

// usdToStableCeil converts an 8-decimal USD value to stable minor units,
// rounding up so the payer can never underpay.
func usdToStableCeil(usd uint64) (uint64, error) {
	return mulDivCeil(usd, stableScale, usdScale)
}

// usdToStableFloor converts an 8-decimal USD value to stable minor units,
// rounding down. Used for outbound commission so the desk never overpays.
func usdToStableFloor(usd uint64) (uint64, error) {
	return mulDiv(usd, stableScale, usdScale)
}

// usdToNativeCeil converts an 8-decimal USD value to native minor units at the
// given native/USD price, rounding up.
func usdToNativeCeil(usd, nativeUsdPrice uint64) (uint64, error) {
	if nativeUsdPrice == 0 {
		return 0, ErrNoPrice
	}
	return mulDivCeil(usd, nativeScale, nativeUsdPrice)
}

// usdToNativeFloor converts an 8-decimal USD value to native minor units,
// rounding down.
func usdToNativeFloor(usd, nativeUsdPrice uint64) (uint64, error) {
	if nativeUsdPrice == 0 {
		return 0, ErrNoPrice
	}
	return mulDiv(usd, nativeScale, nativeUsdPrice)
}

// commissionUsd computes the basis-point commission on an 8-decimal USD
// value, rounding down.
func commissionUsd(usd uint64, bps uint16) (uint64, error) {
	return mulDiv(usd, uint64(bps), bpsDenominator)
}

// checkPriceDeviation verifies |newPrice-oldPrice| stays within maxBps of
// oldPrice. A zero reference price or a zero bound disables the check.
func checkPriceDeviation(oldPrice, newPrice uint64, maxBps uint16) error {
	if oldPrice == 0 || maxBps == 0 {
		return nil
	}
	var diff uint64
	if newPrice > oldPrice {
		diff = newPrice - oldPrice
	} else {
		diff = oldPrice - newPrice
	}
	lhs := new(uint256.Int).Mul(uint256.NewInt(diff), uint256.NewInt(bpsDenominator))
	rhs := new(uint256.Int).Mul(uint256.NewInt(oldPrice), uint256.NewInt(uint64(maxBps)))
	if lhs.Gt(rhs) {
		return ErrPriceDeviation
	}
	return nil
}
