package otc

import (
	"fmt"

	"github.com/holiman/uint256"

	"otcdesk/core/types"
)

// convertFeedPrice rescales a mantissa/exponent oracle sample to the 8-decimal
// USD fixed point. The exponent follows the usual oracle convention: a sample
// of 12345 with exponent -2 means 123.45 USD.
func convertFeedPrice(mantissa int64, exponent int32) (uint64, error) {
	if mantissa <= 0 {
		return 0, ErrInvalidPrice
	}
	shift := int64(usdDecimals) + int64(exponent)
	if shift > maxExponentShift || shift < -maxExponentShift {
		return 0, ErrInvalidPrice
	}
	value := uint256.NewInt(uint64(mantissa))
	if shift >= 0 {
		scale, err := pow10(uint32(shift))
		if err != nil {
			return 0, err
		}
		value.Mul(value, scale)
	} else {
		scale, err := pow10(uint32(-shift))
		if err != nil {
			return 0, err
		}
		value.Div(value, scale)
	}
	if !value.IsUint64() {
		return 0, ErrOverflow
	}
	price := value.Uint64()
	if price == 0 {
		return 0, ErrInvalidPrice
	}
	return price, nil
}

// poolSpotPrice derives the 8-decimal USD token price from constant-product or
// concentrated pool reserves where the quote side is a 6-decimal USD stable:
// price = quoteReserve * 10^8 * 10^decimals / (tokenReserve * 10^6).
func poolSpotPrice(tokenReserve, quoteReserve uint64, decimals uint8) (uint64, error) {
	if tokenReserve == 0 || quoteReserve == 0 {
		return 0, ErrInsufficientLiquidity
	}
	tokenScale, err := pow10(uint32(decimals))
	if err != nil {
		return 0, err
	}
	num := new(uint256.Int).Mul(uint256.NewInt(quoteReserve), uint256.NewInt(usdScale))
	num.Mul(num, tokenScale)
	den := new(uint256.Int).Mul(uint256.NewInt(tokenReserve), uint256.NewInt(stableScale))
	num.Div(num, den)
	if !num.IsUint64() {
		return 0, ErrOverflow
	}
	price := num.Uint64()
	if price == 0 {
		return 0, ErrInvalidPrice
	}
	return price, nil
}

// curveSpotPrice derives the 8-decimal USD token price from a single-sided
// bonding curve holding native currency against the token:
// price = nativeReserve * nativeUsd * 10^decimals / (tokenReserve * 10^9).
func curveSpotPrice(tokenReserve, nativeReserve, nativeUsdPrice uint64, decimals uint8) (uint64, error) {
	if tokenReserve == 0 || nativeReserve == 0 {
		return 0, ErrInsufficientLiquidity
	}
	if nativeUsdPrice == 0 {
		return 0, ErrNoPrice
	}
	tokenScale, err := pow10(uint32(decimals))
	if err != nil {
		return 0, err
	}
	num := new(uint256.Int).Mul(uint256.NewInt(nativeReserve), uint256.NewInt(nativeUsdPrice))
	num.Mul(num, tokenScale)
	den := new(uint256.Int).Mul(uint256.NewInt(tokenReserve), uint256.NewInt(nativeScale))
	num.Div(num, den)
	if !num.IsUint64() {
		return 0, ErrOverflow
	}
	price := num.Uint64()
	if price == 0 {
		return 0, ErrInvalidPrice
	}
	return price, nil
}

// emaUpdate folds a new spot observation into the exponential moving average.
// The weight of history saturates at one hour, so after a quiet hour a single
// observation contributes 1/3601 of the new value.
func emaUpdate(lastEma uint64, lastTimestamp int64, spot uint64, now int64) (uint64, error) {
	if lastEma == 0 || lastTimestamp == 0 {
		return spot, nil
	}
	elapsed := now - lastTimestamp
	if elapsed < 0 {
		elapsed = 0
	}
	weight := uint64(elapsed)
	if weight > emaWindowSecs {
		weight = emaWindowSecs
	}
	num := new(uint256.Int).Mul(uint256.NewInt(lastEma), uint256.NewInt(weight))
	num.Add(num, uint256.NewInt(spot))
	num.Div(num, uint256.NewInt(weight+1))
	if !num.IsUint64() {
		return 0, ErrOverflow
	}
	return num.Uint64(), nil
}

// PoolObservation is a caller-supplied snapshot of a two-sided pool: the pool
// account, the program that owns it, and the current reserves.
type PoolObservation struct {
	Pool         types.Address
	Program      types.Address
	TokenReserve uint64
	QuoteReserve uint64
}

// CurveObservation is a caller-supplied snapshot of a single-sided bonding
// curve holding native currency against the token.
type CurveObservation struct {
	Curve         types.Address
	Program       types.Address
	TokenReserve  uint64
	NativeReserve uint64
}

// SetPrices lets the owner publish the native currency USD price and adjust
// the shared staleness window.
func (e *Engine) SetPrices(caller types.Address, nativeUsdPrice uint64, maxPriceAgeSecs int64) error {
	desk, err := e.loadDesk()
	if err != nil {
		return err
	}
	if err := requireOwner(desk, caller); err != nil {
		return err
	}
	if nativeUsdPrice < minNativePrice || nativeUsdPrice > maxNativePrice {
		return fmt.Errorf("%w: native price %d", ErrInvalidPrice, nativeUsdPrice)
	}
	desk.NativeUsdPrice = nativeUsdPrice
	desk.PricesUpdatedAt = e.now()
	if maxPriceAgeSecs > 0 {
		desk.MaxPriceAgeSecs = maxPriceAgeSecs
	}
	if err := e.state.DeskPut(desk); err != nil {
		return err
	}
	e.emit(NewPricesUpdatedEvent(types.Address{}, nativeUsdPrice, desk.PricesUpdatedAt, "manual-native"))
	return nil
}

// SetManualPrice lets the owner pin a per-token USD price directly.
func (e *Engine) SetManualPrice(caller, asset types.Address, priceUsd uint64) error {
	desk, err := e.loadDesk()
	if err != nil {
		return err
	}
	if err := requireOwner(desk, caller); err != nil {
		return err
	}
	token, err := e.loadToken(asset)
	if err != nil {
		return err
	}
	if priceUsd == 0 || priceUsd > maxManualPrice {
		return fmt.Errorf("%w: manual price %d", ErrInvalidPrice, priceUsd)
	}
	now := e.now()
	token.UsdPrice = priceUsd
	token.PricesUpdatedAt = now
	if err := e.state.TokenPut(token); err != nil {
		return err
	}
	e.emit(NewPricesUpdatedEvent(asset, priceUsd, now, "manual"))
	return nil
}

// SetFeeds configures the oracle feed for the native currency price.
func (e *Engine) SetFeeds(caller, nativeFeedID types.Address) error {
	desk, err := e.loadDesk()
	if err != nil {
		return err
	}
	if err := requireOwner(desk, caller); err != nil {
		return err
	}
	desk.NativeFeedID = nativeFeedID
	return e.state.DeskPut(desk)
}

// SetTokenOracleFeed binds an oracle feed identifier to a registered token.
func (e *Engine) SetTokenOracleFeed(caller, asset, feedID types.Address) error {
	desk, err := e.loadDesk()
	if err != nil {
		return err
	}
	if err := requireOwner(desk, caller); err != nil {
		return err
	}
	token, err := e.loadToken(asset)
	if err != nil {
		return err
	}
	token.FeedID = feedID
	return e.state.TokenPut(token)
}

// SetTokenPoolConfig binds a pool to a registered token. Either the desk
// owner or the original registrant may configure the pool.
func (e *Engine) SetTokenPoolConfig(caller, asset, pool types.Address, poolType PoolType, minLiquidity uint64) error {
	desk, err := e.loadDesk()
	if err != nil {
		return err
	}
	token, err := e.loadToken(asset)
	if err != nil {
		return err
	}
	if caller != desk.Owner && caller != token.RegisteredBy {
		return ErrUnauthorized
	}
	if !poolType.Valid() {
		return ErrInvalidPoolType
	}
	token.PoolAddress = pool
	token.PoolType = poolType
	token.MinLiquidity = minLiquidity
	return e.state.TokenPut(token)
}

// ConfigurePoolOracle tunes the pool-oracle smoothing and rate limiting for a
// token.
func (e *Engine) ConfigurePoolOracle(caller, asset types.Address, minUpdateIntervalSecs int64, maxTwapDeviationBps uint16) error {
	desk, err := e.loadDesk()
	if err != nil {
		return err
	}
	if err := requireOwner(desk, caller); err != nil {
		return err
	}
	token, err := e.loadToken(asset)
	if err != nil {
		return err
	}
	if minUpdateIntervalSecs < minPoolUpdateSecs {
		return fmt.Errorf("%w: interval %ds", ErrUpdateIntervalRange, minUpdateIntervalSecs)
	}
	if maxTwapDeviationBps > maxTwapGateBps {
		return fmt.Errorf("%w: %d bps", ErrTwapGateRange, maxTwapDeviationBps)
	}
	token.MinUpdateIntervalSecs = minUpdateIntervalSecs
	token.MaxTwapDeviationBps = maxTwapDeviationBps
	return e.state.TokenPut(token)
}

// UpdatePriceFromFeed refreshes a token price from its configured oracle feed.
// Anyone may call it; the feed, staleness window and deviation gate keep the
// update honest.
func (e *Engine) UpdatePriceFromFeed(asset types.Address) error {
	if e == nil || e.feeds == nil {
		return errNilFeeds
	}
	desk, err := e.loadDesk()
	if err != nil {
		return err
	}
	token, err := e.loadToken(asset)
	if err != nil {
		return err
	}
	if token.FeedID.IsZero() {
		return ErrFeedNotConfigured
	}
	now := e.now()
	sample, err := e.feeds.Read([32]byte(token.FeedID))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNoPrice, err)
	}
	if now-sample.PublishedAt > desk.MaxPriceAgeSecs {
		return fmt.Errorf("%w: feed published %ds ago", ErrStalePrice, now-sample.PublishedAt)
	}
	price, err := convertFeedPrice(sample.Mantissa, sample.Exponent)
	if err != nil {
		return err
	}
	if err := checkPriceDeviation(token.UsdPrice, price, token.MaxTwapDeviationBps); err != nil {
		return err
	}
	token.UsdPrice = price
	token.PricesUpdatedAt = now
	if err := e.state.TokenPut(token); err != nil {
		return err
	}
	e.emit(NewPricesUpdatedEvent(asset, price, now, "feed"))
	return nil
}

// UpdateNativePriceFromFeed refreshes the native currency price from the desk
// feed. Anyone may call it.
func (e *Engine) UpdateNativePriceFromFeed() error {
	if e == nil || e.feeds == nil {
		return errNilFeeds
	}
	desk, err := e.loadDesk()
	if err != nil {
		return err
	}
	if desk.NativeFeedID.IsZero() {
		return ErrFeedNotConfigured
	}
	now := e.now()
	sample, err := e.feeds.Read([32]byte(desk.NativeFeedID))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNoPrice, err)
	}
	if now-sample.PublishedAt > desk.MaxPriceAgeSecs {
		return fmt.Errorf("%w: feed published %ds ago", ErrStalePrice, now-sample.PublishedAt)
	}
	price, err := convertFeedPrice(sample.Mantissa, sample.Exponent)
	if err != nil {
		return err
	}
	if price < minNativePrice || price > maxNativePrice {
		return fmt.Errorf("%w: native price %d", ErrInvalidPrice, price)
	}
	desk.NativeUsdPrice = price
	desk.PricesUpdatedAt = now
	if err := e.state.DeskPut(desk); err != nil {
		return err
	}
	e.emit(NewPricesUpdatedEvent(types.Address{}, price, now, "feed-native"))
	return nil
}

// UpdatePriceFromPool folds a pool reserve observation into the token price.
// The observation must come from the configured pool, an allow-listed program,
// clear the liquidity floor and the rate limit, and the resulting spot must
// stay within the TWAP deviation gate of the smoothed price.
func (e *Engine) UpdatePriceFromPool(asset types.Address, obs PoolObservation) error {
	desk, err := e.loadDesk()
	if err != nil {
		return err
	}
	token, err := e.loadToken(asset)
	if err != nil {
		return err
	}
	if token.PoolType != PoolCPMM && token.PoolType != PoolCLMM {
		return ErrFeedNotConfigured
	}
	if token.PoolAddress.IsZero() || obs.Pool != token.PoolAddress {
		return ErrPoolNotAllowed
	}
	if !desk.PoolPrograms.Allowed(token.PoolType, obs.Program) {
		return ErrPoolNotAllowed
	}
	now := e.now()
	if token.PricesUpdatedAt != 0 && now-token.PricesUpdatedAt < token.MinUpdateIntervalSecs {
		return ErrUpdateTooFrequent
	}
	if obs.QuoteReserve < token.MinLiquidity {
		return fmt.Errorf("%w: quote reserve %d below %d", ErrInsufficientLiquidity, obs.QuoteReserve, token.MinLiquidity)
	}
	spot, err := poolSpotPrice(obs.TokenReserve, obs.QuoteReserve, token.Decimals)
	if err != nil {
		return err
	}
	return e.applySmoothedPrice(token, spot, now)
}

// UpdatePriceFromBondingCurve folds a bonding curve observation into the token
// price. The native currency price must be fresh since the curve is priced in
// native terms.
func (e *Engine) UpdatePriceFromBondingCurve(asset types.Address, obs CurveObservation) error {
	desk, err := e.loadDesk()
	if err != nil {
		return err
	}
	token, err := e.loadToken(asset)
	if err != nil {
		return err
	}
	if token.PoolType != PoolBondingCurve {
		return ErrFeedNotConfigured
	}
	if token.PoolAddress.IsZero() || obs.Curve != token.PoolAddress {
		return ErrPoolNotAllowed
	}
	if !desk.PoolPrograms.Allowed(PoolBondingCurve, obs.Program) {
		return ErrPoolNotAllowed
	}
	now := e.now()
	if token.PricesUpdatedAt != 0 && now-token.PricesUpdatedAt < token.MinUpdateIntervalSecs {
		return ErrUpdateTooFrequent
	}
	if desk.NativeUsdPrice == 0 {
		return ErrNoPrice
	}
	if now-desk.PricesUpdatedAt > desk.MaxPriceAgeSecs {
		return fmt.Errorf("%w: native price %ds old", ErrStalePrice, now-desk.PricesUpdatedAt)
	}
	if obs.NativeReserve < token.MinLiquidity {
		return fmt.Errorf("%w: native reserve %d below %d", ErrInsufficientLiquidity, obs.NativeReserve, token.MinLiquidity)
	}
	spot, err := curveSpotPrice(obs.TokenReserve, obs.NativeReserve, desk.NativeUsdPrice, token.Decimals)
	if err != nil {
		return err
	}
	return e.applySmoothedPrice(token, spot, now)
}

func (e *Engine) applySmoothedPrice(token *TokenRegistry, spot uint64, now int64) error {
	smoothed, err := emaUpdate(token.EmaLastPrice, token.EmaLastTimestamp, spot, now)
	if err != nil {
		return err
	}
	if err := checkPriceDeviation(smoothed, spot, token.MaxTwapDeviationBps); err != nil {
		return fmt.Errorf("%w: spot %d vs smoothed %d", ErrTwapDeviation, spot, smoothed)
	}
	token.UsdPrice = smoothed
	token.EmaLastPrice = smoothed
	token.EmaLastTimestamp = now
	token.PricesUpdatedAt = now
	if err := e.state.TokenPut(token); err != nil {
		return err
	}
	e.emit(NewPricesUpdatedEvent(token.Asset, smoothed, now, "pool"))
	return nil
}
