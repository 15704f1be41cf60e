package otc

import (
	"errors"
	"testing"
)

func TestDiscountedUsd(t *testing.T) {
	cases := []struct {
		name        string
		tokenAmount uint64
		priceUsd    uint64
		decimals    uint8
		discountBps uint16
		want        uint64
		wantErr     error
	}{
		{name: "no discount", tokenAmount: 1_000_000, priceUsd: 200_000_000, decimals: 6, want: 200_000_000},
		{name: "five percent", tokenAmount: 1_000_000, priceUsd: 200_000_000, decimals: 6, discountBps: 500, want: 190_000_000},
		{name: "floors each step", tokenAmount: 3, priceUsd: 100_000_001, decimals: 6, discountBps: 1, want: 299},
		{name: "eighteen decimals", tokenAmount: 2_000_000_000_000_000_000, priceUsd: 150_000_000, decimals: 18, want: 300_000_000},
		{name: "full discount", tokenAmount: 1_000_000, priceUsd: 200_000_000, decimals: 6, discountBps: 10_000, want: 0},
		{name: "discount above denominator rejected", tokenAmount: 1, priceUsd: 1, decimals: 0, discountBps: 10_001, wantErr: ErrDiscountOutOfRange},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := DiscountedUsd(tc.tokenAmount, tc.priceUsd, tc.decimals, tc.discountBps)
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("err = %v, want %v", err, tc.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.want {
				t.Fatalf("usd = %d, want %d", got, tc.want)
			}
		})
	}
}

func TestStableConversionRounding(t *testing.T) {
	// $1.90 converts exactly; one extra 8-decimal unit forces the payer up a
	// stable unit while the outbound side stays floored.
	exactCeil, err := usdToStableCeil(190_000_000)
	if err != nil {
		t.Fatalf("ceil: %v", err)
	}
	if exactCeil != 1_900_000 {
		t.Fatalf("exact ceil = %d, want 1900000", exactCeil)
	}
	upCeil, err := usdToStableCeil(190_000_001)
	if err != nil {
		t.Fatalf("ceil: %v", err)
	}
	if upCeil != 1_900_001 {
		t.Fatalf("ceil = %d, want 1900001", upCeil)
	}
	downFloor, err := usdToStableFloor(190_000_001)
	if err != nil {
		t.Fatalf("floor: %v", err)
	}
	if downFloor != 1_900_000 {
		t.Fatalf("floor = %d, want 1900000", downFloor)
	}
	if upCeil < downFloor {
		t.Fatalf("ceil %d below floor %d", upCeil, downFloor)
	}
}

func TestNativeConversionRounding(t *testing.T) {
	// $2.00 at $100/native is exactly 0.02 native.
	pay, err := usdToNativeCeil(200_000_000, 10_000_000_000)
	if err != nil {
		t.Fatalf("ceil: %v", err)
	}
	if pay != 20_000_000 {
		t.Fatalf("pay = %d, want 20000000", pay)
	}
	// An awkward price forces the ceil and floor apart by one unit.
	up, err := usdToNativeCeil(100_000_000, 30_000_000_000)
	if err != nil {
		t.Fatalf("ceil: %v", err)
	}
	down, err := usdToNativeFloor(100_000_000, 30_000_000_000)
	if err != nil {
		t.Fatalf("floor: %v", err)
	}
	if up != down+1 {
		t.Fatalf("ceil %d, floor %d, want one apart", up, down)
	}
	if _, err := usdToNativeCeil(1, 0); !errors.Is(err, ErrNoPrice) {
		t.Fatalf("zero price = %v, want ErrNoPrice", err)
	}
}

func TestCommissionUsdFloors(t *testing.T) {
	got, err := commissionUsd(360_000_000, 25)
	if err != nil {
		t.Fatalf("commission: %v", err)
	}
	if got != 900_000 {
		t.Fatalf("commission = %d, want 900000", got)
	}
	got, err = commissionUsd(399, 25)
	if err != nil {
		t.Fatalf("commission: %v", err)
	}
	if got != 0 {
		t.Fatalf("tiny commission = %d, want 0", got)
	}
}

func TestCheckPriceDeviation(t *testing.T) {
	if err := checkPriceDeviation(200_000_000, 210_000_000, 500); err != nil {
		t.Fatalf("exactly at bound: %v", err)
	}
	if err := checkPriceDeviation(200_000_000, 210_000_001, 500); !errors.Is(err, ErrPriceDeviation) {
		t.Fatalf("above bound = %v, want ErrPriceDeviation", err)
	}
	if err := checkPriceDeviation(200_000_000, 190_000_000, 500); err != nil {
		t.Fatalf("downward at bound: %v", err)
	}
	// A zero reference or a zero gate disables the check.
	if err := checkPriceDeviation(0, 999_999_999, 500); err != nil {
		t.Fatalf("zero reference: %v", err)
	}
	if err := checkPriceDeviation(200_000_000, 999_999_999, 0); err != nil {
		t.Fatalf("zero gate: %v", err)
	}
}

func TestMulDivOverflow(t *testing.T) {
	if _, err := mulDiv(1, 1, 0); !errors.Is(err, ErrOverflow) {
		t.Fatalf("zero divisor = %v, want ErrOverflow", err)
	}
	const maxU64 = ^uint64(0)
	if _, err := mulDiv(maxU64, maxU64, 1); !errors.Is(err, ErrOverflow) {
		t.Fatalf("overflowing result = %v, want ErrOverflow", err)
	}
	got, err := mulDiv(maxU64, maxU64, maxU64)
	if err != nil {
		t.Fatalf("wide intermediate: %v", err)
	}
	if got != maxU64 {
		t.Fatalf("got %d, want %d", got, maxU64)
	}
}
