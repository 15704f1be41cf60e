package otc

import (
	"errors"
	"testing"

	"otcdesk/core/pricing"
)

var (
	poolAddr    = newTestAddress(0x10)
	programAddr = newTestAddress(0x11)
	feedID      = newTestAddress(0x12)
)

func TestConvertFeedPrice(t *testing.T) {
	cases := []struct {
		name     string
		mantissa int64
		exponent int32
		want     uint64
		wantErr  error
	}{
		{name: "eight decimal sample", mantissa: 6_512_345_678, exponent: -8, want: 6_512_345_678},
		{name: "scales up", mantissa: 12_345, exponent: -2, want: 12_345_000_000},
		{name: "scales down", mantissa: 1_234_500_000_000, exponent: -12, want: 123_450_000},
		{name: "integer dollars", mantissa: 100, exponent: 0, want: 10_000_000_000},
		{name: "zero mantissa", mantissa: 0, exponent: -8, wantErr: ErrInvalidPrice},
		{name: "negative mantissa", mantissa: -5, exponent: -8, wantErr: ErrInvalidPrice},
		{name: "exponent out of range", mantissa: 1, exponent: 40, wantErr: ErrInvalidPrice},
		{name: "rounds to zero", mantissa: 1, exponent: -20, wantErr: ErrInvalidPrice},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := convertFeedPrice(tc.mantissa, tc.exponent)
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
				t.Fatalf("price = %d, want %d", got, tc.want)
			}
		})
	}
}

func TestPoolSpotPrice(t *testing.T) {
	// 1.0 token (6 decimals) against $2.00 stable prices the token at $2.00.
	got, err := poolSpotPrice(1_000_000, 2_000_000, 6)
	if err != nil {
		t.Fatalf("spot: %v", err)
	}
	if got != 200_000_000 {
		t.Fatalf("spot = %d, want 200000000", got)
	}
	if _, err := poolSpotPrice(0, 2_000_000, 6); !errors.Is(err, ErrInsufficientLiquidity) {
		t.Fatalf("empty token side = %v, want ErrInsufficientLiquidity", err)
	}
	if _, err := poolSpotPrice(1_000_000, 0, 6); !errors.Is(err, ErrInsufficientLiquidity) {
		t.Fatalf("empty quote side = %v, want ErrInsufficientLiquidity", err)
	}
}

func TestCurveSpotPrice(t *testing.T) {
	// 1 native unit at $100 against 100 tokens (6 decimals) prices the token
	// at $1.00.
	got, err := curveSpotPrice(100_000_000, 1_000_000_000, 10_000_000_000, 6)
	if err != nil {
		t.Fatalf("spot: %v", err)
	}
	if got != 100_000_000 {
		t.Fatalf("spot = %d, want 100000000", got)
	}
	if _, err := curveSpotPrice(100_000_000, 1_000_000_000, 0, 6); !errors.Is(err, ErrNoPrice) {
		t.Fatalf("no native price = %v, want ErrNoPrice", err)
	}
}

func TestEmaUpdate(t *testing.T) {
	// The first observation bootstraps the average.
	got, err := emaUpdate(0, 0, 200_000_000, 1_700_000_000)
	if err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	if got != 200_000_000 {
		t.Fatalf("bootstrap = %d, want spot", got)
	}
	// Thirty-one seconds of history weighs the average towards the last value.
	got, err = emaUpdate(200_000_000, 1_700_000_000, 210_000_000, 1_700_000_031)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if got != 200_312_500 {
		t.Fatalf("smoothed = %d, want 200312500", got)
	}
	// The history weight saturates at one hour.
	capped, err := emaUpdate(100, 1_700_000_000, 200, 1_700_000_000+10*emaWindowSecs)
	if err != nil {
		t.Fatalf("capped: %v", err)
	}
	want := (uint64(100)*emaWindowSecs + 200) / (emaWindowSecs + 1)
	if capped != want {
		t.Fatalf("capped = %d, want %d", capped, want)
	}
}

func configurePoolToken(t *testing.T, d *testDesk, kind PoolType) {
	t.Helper()
	d.registerToken(t, 6)
	if err := d.engine.SetTokenPoolConfig(ownerAddr, tokenAddr, poolAddr, kind, 1_000_000); err != nil {
		t.Fatalf("pool config: %v", err)
	}
	programs := PoolPrograms{}
	switch kind {
	case PoolCPMM:
		programs.CPMM = append(programs.CPMM, programAddr)
	case PoolCLMM:
		programs.CLMM = append(programs.CLMM, programAddr)
	case PoolBondingCurve:
		programs.BondingCurve = append(programs.BondingCurve, programAddr)
	}
	if err := d.engine.SetPoolPrograms(ownerAddr, programs); err != nil {
		t.Fatalf("pool programs: %v", err)
	}
}

func TestUpdatePriceFromPool(t *testing.T) {
	d := newTestDesk(t, InitDeskParams{})
	configurePoolToken(t, d, PoolCPMM)

	obs := PoolObservation{Pool: poolAddr, Program: programAddr, TokenReserve: 1_000_000, QuoteReserve: 2_000_000}
	if err := d.engine.UpdatePriceFromPool(tokenAddr, obs); err != nil {
		t.Fatalf("first update: %v", err)
	}
	token, _ := d.state.TokenGet(tokenAddr)
	if token.UsdPrice != 200_000_000 {
		t.Fatalf("bootstrap price = %d, want 200000000", token.UsdPrice)
	}

	if err := d.engine.UpdatePriceFromPool(tokenAddr, obs); !errors.Is(err, ErrUpdateTooFrequent) {
		t.Fatalf("rapid update = %v, want ErrUpdateTooFrequent", err)
	}

	d.advance(31)
	obs.QuoteReserve = 2_100_000
	if err := d.engine.UpdatePriceFromPool(tokenAddr, obs); err != nil {
		t.Fatalf("smoothed update: %v", err)
	}
	token, _ = d.state.TokenGet(tokenAddr)
	if token.UsdPrice != 200_312_500 {
		t.Fatalf("smoothed price = %d, want 200312500", token.UsdPrice)
	}

	// A 50% jump trips the TWAP deviation gate.
	d.advance(31)
	obs.QuoteReserve = 3_000_000
	if err := d.engine.UpdatePriceFromPool(tokenAddr, obs); !errors.Is(err, ErrTwapDeviation) {
		t.Fatalf("jump = %v, want ErrTwapDeviation", err)
	}
}

func TestUpdatePriceFromPoolRejectsUnknownVenues(t *testing.T) {
	d := newTestDesk(t, InitDeskParams{})
	configurePoolToken(t, d, PoolCPMM)

	wrongPool := PoolObservation{Pool: newTestAddress(0x99), Program: programAddr, TokenReserve: 1_000_000, QuoteReserve: 2_000_000}
	if err := d.engine.UpdatePriceFromPool(tokenAddr, wrongPool); !errors.Is(err, ErrPoolNotAllowed) {
		t.Fatalf("wrong pool = %v, want ErrPoolNotAllowed", err)
	}
	wrongProgram := PoolObservation{Pool: poolAddr, Program: newTestAddress(0x98), TokenReserve: 1_000_000, QuoteReserve: 2_000_000}
	if err := d.engine.UpdatePriceFromPool(tokenAddr, wrongProgram); !errors.Is(err, ErrPoolNotAllowed) {
		t.Fatalf("wrong program = %v, want ErrPoolNotAllowed", err)
	}
	thin := PoolObservation{Pool: poolAddr, Program: programAddr, TokenReserve: 1_000_000, QuoteReserve: 500_000}
	if err := d.engine.UpdatePriceFromPool(tokenAddr, thin); !errors.Is(err, ErrInsufficientLiquidity) {
		t.Fatalf("thin pool = %v, want ErrInsufficientLiquidity", err)
	}
}

func TestUpdatePriceFromBondingCurve(t *testing.T) {
	d := newTestDesk(t, InitDeskParams{})
	configurePoolToken(t, d, PoolBondingCurve)

	obs := CurveObservation{Curve: poolAddr, Program: programAddr, TokenReserve: 100_000_000, NativeReserve: 1_000_000_000}
	if err := d.engine.UpdatePriceFromBondingCurve(tokenAddr, obs); !errors.Is(err, ErrNoPrice) {
		t.Fatalf("no native price = %v, want ErrNoPrice", err)
	}
	if err := d.engine.SetPrices(ownerAddr, 10_000_000_000, 0); err != nil {
		t.Fatalf("set native price: %v", err)
	}
	if err := d.engine.UpdatePriceFromBondingCurve(tokenAddr, obs); err != nil {
		t.Fatalf("update: %v", err)
	}
	token, _ := d.state.TokenGet(tokenAddr)
	if token.UsdPrice != 100_000_000 {
		t.Fatalf("price = %d, want 100000000", token.UsdPrice)
	}
}

func TestUpdatePriceFromFeed(t *testing.T) {
	d := newTestDesk(t, InitDeskParams{})
	d.registerToken(t, 6)
	if err := d.engine.SetTokenOracleFeed(ownerAddr, tokenAddr, feedID); err != nil {
		t.Fatalf("set feed: %v", err)
	}

	d.feeds.Set(feedID, pricing.Sample{Mantissa: 200_000_000, Exponent: -8, PublishedAt: d.now})
	if err := d.engine.UpdatePriceFromFeed(tokenAddr); err != nil {
		t.Fatalf("update: %v", err)
	}
	token, _ := d.state.TokenGet(tokenAddr)
	if token.UsdPrice != 200_000_000 {
		t.Fatalf("price = %d, want 200000000", token.UsdPrice)
	}

	// A stale sample is rejected.
	d.feeds.Set(feedID, pricing.Sample{Mantissa: 201_000_000, Exponent: -8, PublishedAt: d.now - defaultMaxPriceAgeSecs - 1})
	if err := d.engine.UpdatePriceFromFeed(tokenAddr); !errors.Is(err, ErrStalePrice) {
		t.Fatalf("stale = %v, want ErrStalePrice", err)
	}

	// A 50% move against the default 5% gate is rejected.
	d.feeds.Set(feedID, pricing.Sample{Mantissa: 300_000_000, Exponent: -8, PublishedAt: d.now})
	if err := d.engine.UpdatePriceFromFeed(tokenAddr); !errors.Is(err, ErrPriceDeviation) {
		t.Fatalf("jump = %v, want ErrPriceDeviation", err)
	}
}

func TestUpdateNativePriceFromFeed(t *testing.T) {
	d := newTestDesk(t, InitDeskParams{})
	if err := d.engine.UpdateNativePriceFromFeed(); !errors.Is(err, ErrFeedNotConfigured) {
		t.Fatalf("unconfigured = %v, want ErrFeedNotConfigured", err)
	}
	if err := d.engine.SetFeeds(ownerAddr, feedID); err != nil {
		t.Fatalf("set feeds: %v", err)
	}
	d.feeds.Set(feedID, pricing.Sample{Mantissa: 10_000_000_000, Exponent: -8, PublishedAt: d.now})
	if err := d.engine.UpdateNativePriceFromFeed(); err != nil {
		t.Fatalf("update: %v", err)
	}
	if d.state.desk.NativeUsdPrice != 10_000_000_000 {
		t.Fatalf("native price = %d, want 10000000000", d.state.desk.NativeUsdPrice)
	}

	// A price outside the sanity band is rejected even from a live feed.
	d.feeds.Set(feedID, pricing.Sample{Mantissa: 1, Exponent: -8, PublishedAt: d.now})
	if err := d.engine.UpdateNativePriceFromFeed(); !errors.Is(err, ErrInvalidPrice) {
		t.Fatalf("tiny price = %v, want ErrInvalidPrice", err)
	}
}

func TestManualPriceBounds(t *testing.T) {
	d := newTestDesk(t, InitDeskParams{})
	d.registerToken(t, 6)
	if err := d.engine.SetManualPrice(ownerAddr, tokenAddr, 0); !errors.Is(err, ErrInvalidPrice) {
		t.Fatalf("zero price = %v, want ErrInvalidPrice", err)
	}
	if err := d.engine.SetManualPrice(ownerAddr, tokenAddr, maxManualPrice+1); !errors.Is(err, ErrInvalidPrice) {
		t.Fatalf("huge price = %v, want ErrInvalidPrice", err)
	}
	if err := d.engine.SetManualPrice(beneficiaryAddr, tokenAddr, 100); !errors.Is(err, ErrNotOwner) {
		t.Fatalf("non-owner = %v, want ErrNotOwner", err)
	}
	if err := d.engine.SetPrices(ownerAddr, minNativePrice-1, 0); !errors.Is(err, ErrInvalidPrice) {
		t.Fatalf("native below floor = %v, want ErrInvalidPrice", err)
	}
}

func TestConfigurePoolOracleBounds(t *testing.T) {
	d := newTestDesk(t, InitDeskParams{})
	d.registerToken(t, 6)
	if err := d.engine.ConfigurePoolOracle(ownerAddr, tokenAddr, 10, 500); !errors.Is(err, ErrUpdateIntervalRange) {
		t.Fatalf("short interval = %v, want ErrUpdateIntervalRange", err)
	}
	if err := d.engine.ConfigurePoolOracle(ownerAddr, tokenAddr, 60, maxTwapGateBps+1); !errors.Is(err, ErrTwapGateRange) {
		t.Fatalf("wide gate = %v, want ErrTwapGateRange", err)
	}
	if err := d.engine.ConfigurePoolOracle(ownerAddr, tokenAddr, 60, 400); err != nil {
		t.Fatalf("configure: %v", err)
	}
	token, _ := d.state.TokenGet(tokenAddr)
	if token.MinUpdateIntervalSecs != 60 || token.MaxTwapDeviationBps != 400 {
		t.Fatalf("config = %d/%d, want 60/400", token.MinUpdateIntervalSecs, token.MaxTwapDeviationBps)
	}
}
