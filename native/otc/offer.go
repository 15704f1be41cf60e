package otc

import (
	"fmt"

	"otcdesk/core/types"
)

// OfferParams carries the terms of a new offer. LockupDays of zero falls back
// to the desk default unlock delay.
type OfferParams struct {
	Asset                types.Address
	Beneficiary          types.Address
	TokenAmount          uint64
	DiscountBps          uint16
	LockupDays           uint32
	Currency             Currency
	MaxPriceDeviationBps uint16
	AgentCommissionBps   uint16
}

func (e *Engine) freshTokenPrice(desk *Desk, token *TokenRegistry, now int64) (uint64, error) {
	if token.UsdPrice == 0 {
		return 0, fmt.Errorf("%w: %s", ErrNoPrice, token.Asset.Hex())
	}
	if now-token.PricesUpdatedAt > desk.MaxPriceAgeSecs {
		return 0, fmt.Errorf("%w: token price %ds old", ErrStalePrice, now-token.PricesUpdatedAt)
	}
	return token.UsdPrice, nil
}

func (e *Engine) freshNativePrice(desk *Desk, now int64) (uint64, error) {
	if desk.NativeUsdPrice == 0 {
		return 0, fmt.Errorf("%w: native currency", ErrNoPrice)
	}
	if now-desk.PricesUpdatedAt > desk.MaxPriceAgeSecs {
		return 0, fmt.Errorf("%w: native price %ds old", ErrStalePrice, now-desk.PricesUpdatedAt)
	}
	return desk.NativeUsdPrice, nil
}

func quoteExpired(desk *Desk, offer *Offer, now int64) bool {
	return now > offer.CreatedAt+desk.QuoteExpirySecs
}

func (e *Engine) buildOffer(desk *Desk, token *TokenRegistry, params OfferParams, consignmentID uint64, approved bool, now int64) (*Offer, error) {
	if params.Beneficiary.IsZero() {
		return nil, fmt.Errorf("%w: beneficiary required", ErrUnauthorized)
	}
	if !params.Currency.Valid() {
		return nil, ErrUnsupportedCurrency
	}
	if params.TokenAmount == 0 {
		return nil, fmt.Errorf("%w: zero amount", ErrAmountOutOfRange)
	}
	if desk.MaxTokenPerOrder > 0 && params.TokenAmount > desk.MaxTokenPerOrder {
		return nil, fmt.Errorf("%w: amount %d above per-order cap", ErrAmountOutOfRange, params.TokenAmount)
	}
	if params.DiscountBps > bpsDenominator {
		return nil, fmt.Errorf("%w: %d bps", ErrDiscountOutOfRange, params.DiscountBps)
	}
	lockupSecs := int64(params.LockupDays) * secondsPerDay
	if lockupSecs > desk.MaxLockupSecs {
		return nil, fmt.Errorf("%w: %d days", ErrLockupTooLong, params.LockupDays)
	}
	if lockupSecs == 0 {
		lockupSecs = desk.DefaultUnlockDelaySecs
	} else if consignmentID == 0 && lockupSecs < desk.DefaultUnlockDelaySecs {
		// Standalone lockups sit in [default unlock delay, max lockup];
		// consignment offers answer to the lot's committed window instead.
		return nil, fmt.Errorf("%w: %d days", ErrLockupTooShort, params.LockupDays)
	}
	if params.AgentCommissionBps != 0 {
		if params.AgentCommissionBps < minNegotiatedCommissionBps || params.AgentCommissionBps > maxNegotiatedCommissionBps {
			return nil, fmt.Errorf("%w: %d bps", ErrCommissionOutOfRange, params.AgentCommissionBps)
		}
	}
	price, err := e.freshTokenPrice(desk, token, now)
	if err != nil {
		return nil, err
	}
	var nativePrice uint64
	if params.Currency == CurrencyNative {
		nativePrice, err = e.freshNativePrice(desk, now)
		if err != nil {
			return nil, err
		}
	}
	usd, err := DiscountedUsd(params.TokenAmount, price, token.Decimals, params.DiscountBps)
	if err != nil {
		return nil, err
	}
	if usd < desk.MinUsdAmount {
		return nil, fmt.Errorf("%w: %d below %d", ErrBelowMinUsd, usd, desk.MinUsdAmount)
	}
	offer := &Offer{
		ID:                   desk.NextOfferID,
		ConsignmentID:        consignmentID,
		Asset:                params.Asset,
		AssetDecimals:        token.Decimals,
		Beneficiary:          params.Beneficiary,
		TokenAmount:          params.TokenAmount,
		DiscountBps:          params.DiscountBps,
		CreatedAt:            now,
		UnlockTime:           now + lockupSecs,
		PriceUsd:             price,
		NativeUsdPrice:       nativePrice,
		MaxPriceDeviationBps: params.MaxPriceDeviationBps,
		Currency:             params.Currency,
		Approved:             approved,
		AgentCommissionBps:   params.AgentCommissionBps,
	}
	desk.NextOfferID++
	return offer, nil
}

// CreateOffer quotes a standalone deal against desk-owned inventory. Only the
// owner or agent may originate standalone offers and they are approved on
// creation.
func (e *Engine) CreateOffer(caller types.Address, params OfferParams) (*Offer, error) {
	desk, err := e.loadDesk()
	if err != nil {
		return nil, err
	}
	if err := requireUnpaused(desk); err != nil {
		return nil, err
	}
	if err := e.requireLedger(); err != nil {
		return nil, err
	}
	if caller != desk.Owner && (desk.Agent.IsZero() || caller != desk.Agent) {
		return nil, ErrUnauthorized
	}
	token, err := e.loadToken(params.Asset)
	if err != nil {
		return nil, err
	}
	if !token.Active {
		return nil, ErrTokenInactive
	}
	if e.ledger.Balance(DeskVault, params.Asset) < params.TokenAmount {
		return nil, fmt.Errorf("%w: desk inventory", ErrInsufficientInventory)
	}
	now := e.now()
	offer, err := e.buildOffer(desk, token, params, 0, true, now)
	if err != nil {
		return nil, err
	}
	if err := e.state.OfferPut(offer); err != nil {
		return nil, err
	}
	if err := e.state.DeskPut(desk); err != nil {
		return nil, err
	}
	e.emit(NewOfferCreatedEvent(offer))
	e.emit(NewOfferApprovedEvent(offer, caller))
	return offer.Clone(), nil
}

// CreateOfferFromConsignment quotes a deal carved from a consignment lot,
// reserving the token amount. Non-negotiable lots pin the terms and approve
// immediately; negotiable lots require explicit approval.
func (e *Engine) CreateOfferFromConsignment(caller types.Address, consignmentID uint64, params OfferParams) (*Offer, error) {
	desk, err := e.loadDesk()
	if err != nil {
		return nil, err
	}
	if err := requireUnpaused(desk); err != nil {
		return nil, err
	}
	cons, err := e.loadConsignment(consignmentID)
	if err != nil {
		return nil, err
	}
	if !cons.Active {
		return nil, ErrConsignmentInactive
	}
	if cons.Private && caller != cons.Consigner && !desk.CanApprove(caller) {
		return nil, ErrUnauthorized
	}
	params.Asset = cons.Asset
	token, err := e.loadToken(cons.Asset)
	if err != nil {
		return nil, err
	}
	if !token.Active {
		return nil, ErrTokenInactive
	}
	if params.TokenAmount > cons.RemainingAmount {
		return nil, fmt.Errorf("%w: %d remaining", ErrInsufficientInventory, cons.RemainingAmount)
	}
	if !cons.Fractionalized && params.TokenAmount != cons.RemainingAmount {
		return nil, fmt.Errorf("%w: lot is not fractionalized", ErrAmountOutOfRange)
	}
	if cons.MinDealAmount > 0 && params.TokenAmount < cons.MinDealAmount {
		return nil, fmt.Errorf("%w: below consignment minimum", ErrAmountOutOfRange)
	}
	if cons.MaxDealAmount > 0 && params.TokenAmount > cons.MaxDealAmount {
		return nil, fmt.Errorf("%w: above consignment maximum", ErrAmountOutOfRange)
	}
	approved := false
	if cons.Negotiable {
		if params.DiscountBps < cons.MinDiscountBps || params.DiscountBps > cons.MaxDiscountBps {
			return nil, fmt.Errorf("%w: outside consignment window", ErrDiscountOutOfRange)
		}
		if params.LockupDays < cons.MinLockupDays || params.LockupDays > cons.MaxLockupDays {
			return nil, fmt.Errorf("%w: outside consignment window", ErrLockupTooLong)
		}
		if params.AgentCommissionBps < minNegotiatedCommissionBps || params.AgentCommissionBps > maxNegotiatedCommissionBps {
			return nil, fmt.Errorf("%w: %d bps", ErrCommissionOutOfRange, params.AgentCommissionBps)
		}
	} else {
		if params.DiscountBps != cons.FixedDiscountBps || params.LockupDays != cons.FixedLockupDays {
			return nil, ErrNonNegotiableTerms
		}
		if params.AgentCommissionBps != 0 {
			return nil, fmt.Errorf("%w: commission not negotiable", ErrNonNegotiableTerms)
		}
		approved = true
	}
	if params.MaxPriceDeviationBps == 0 {
		params.MaxPriceDeviationBps = cons.MaxPriceVolatilityBps
	}
	now := e.now()
	offer, err := e.buildOffer(desk, token, params, consignmentID, approved, now)
	if err != nil {
		return nil, err
	}
	if !cons.Negotiable {
		// Fixed-term offers settle at the desk's peer-to-peer rate, frozen on
		// the offer for the audit trail.
		offer.AgentCommissionBps = desk.P2PCommissionBps
	}
	cons.RemainingAmount -= params.TokenAmount
	if cons.RemainingAmount == 0 {
		cons.Active = false
	}
	if err := e.state.ConsignmentPut(cons); err != nil {
		return nil, err
	}
	if err := e.state.OfferPut(offer); err != nil {
		return nil, err
	}
	if err := e.state.DeskPut(desk); err != nil {
		return nil, err
	}
	e.emit(NewOfferCreatedEvent(offer))
	if offer.Approved {
		e.emit(NewOfferApprovedEvent(offer, caller))
	}
	return offer.Clone(), nil
}

// ApproveOffer marks a pending offer payable. Only the agent or an approver
// may approve, and only while the quote is still live. The owner delegates
// approval and does not hold it directly.
func (e *Engine) ApproveOffer(caller types.Address, id uint64) error {
	desk, err := e.loadDesk()
	if err != nil {
		return err
	}
	if err := requireUnpaused(desk); err != nil {
		return err
	}
	if (desk.Agent.IsZero() || caller != desk.Agent) && !desk.IsApprover(caller) {
		return ErrNotApprover
	}
	offer, err := e.loadOffer(id)
	if err != nil {
		return err
	}
	if offer.Terminal() || offer.Paid {
		return ErrInvalidState
	}
	if offer.Approved {
		return ErrAlreadyApproved
	}
	now := e.now()
	if quoteExpired(desk, offer, now) {
		return ErrQuoteExpired
	}
	offer.Approved = true
	if err := e.state.OfferPut(offer); err != nil {
		return err
	}
	e.emit(NewOfferApprovedEvent(offer, caller))
	return nil
}

// CancelOffer abandons an unpaid offer and restores any consignment
// reservation. Desk operators may cancel at any time before payment; the
// beneficiary may cancel once the quote has expired.
func (e *Engine) CancelOffer(caller types.Address, id uint64) error {
	desk, err := e.loadDesk()
	if err != nil {
		return err
	}
	offer, err := e.loadOffer(id)
	if err != nil {
		return err
	}
	if offer.Terminal() || offer.Paid {
		return ErrInvalidState
	}
	now := e.now()
	if !desk.CanApprove(caller) {
		if caller != offer.Beneficiary {
			return ErrUnauthorized
		}
		if !quoteExpired(desk, offer, now) {
			return ErrQuoteNotExpired
		}
	}
	if err := e.restoreConsignment(offer); err != nil {
		return err
	}
	offer.Cancelled = true
	if err := e.state.OfferPut(offer); err != nil {
		return err
	}
	e.emit(NewOfferCancelledEvent(offer, "cancelled"))
	return nil
}

func (e *Engine) restoreConsignment(offer *Offer) error {
	if offer.ConsignmentID == 0 {
		return nil
	}
	cons, err := e.loadConsignment(offer.ConsignmentID)
	if err != nil {
		return err
	}
	cons.RemainingAmount += offer.TokenAmount
	// An exhausted lot comes back online when inventory returns to it.
	cons.Active = true
	return e.state.ConsignmentPut(cons)
}

// FulfillOfferStable settles an approved offer in the stable asset. The payer
// amount rounds up; commission, when a destination is supplied, rounds down.
func (e *Engine) FulfillOfferStable(caller types.Address, id uint64, commissionDest *types.Address) error {
	return e.fulfillOffer(caller, id, CurrencyStable, commissionDest)
}

// FulfillOfferNative settles an approved offer in the native currency at the
// price frozen when the offer was created.
func (e *Engine) FulfillOfferNative(caller types.Address, id uint64, commissionDest *types.Address) error {
	return e.fulfillOffer(caller, id, CurrencyNative, commissionDest)
}

func (e *Engine) fulfillOffer(caller types.Address, id uint64, currency Currency, commissionDest *types.Address) error {
	desk, err := e.loadDesk()
	if err != nil {
		return err
	}
	if err := requireUnpaused(desk); err != nil {
		return err
	}
	if err := e.requireLedger(); err != nil {
		return err
	}
	offer, err := e.loadOffer(id)
	if err != nil {
		return err
	}
	if offer.Terminal() || offer.Paid {
		return ErrInvalidState
	}
	if !offer.Approved {
		return ErrNotApproved
	}
	if offer.Currency != currency {
		return ErrUnsupportedCurrency
	}
	if desk.RestrictFulfill && caller != offer.Beneficiary && !desk.CanApprove(caller) {
		return ErrFulfillRestricted
	}
	now := e.now()
	if quoteExpired(desk, offer, now) {
		return ErrQuoteExpired
	}
	if e.ledger.Balance(DeskVault, offer.Asset) < offer.TokenAmount {
		return fmt.Errorf("%w: desk inventory", ErrInsufficientInventory)
	}
	// Commission may only route to the desk agent. Checked before any funds
	// move so a bad destination leaves the ledger untouched.
	if commissionDest != nil && !commissionDest.IsZero() {
		if desk.Agent.IsZero() || *commissionDest != desk.Agent {
			return fmt.Errorf("%w: commission destination is not the desk agent", ErrUnauthorized)
		}
	}
	// Re-check the live price against the frozen quote so a crashed market
	// cannot be settled at yesterday's discount.
	token, err := e.loadToken(offer.Asset)
	if err != nil {
		return err
	}
	if err := checkPriceDeviation(offer.PriceUsd, token.UsdPrice, offer.MaxPriceDeviationBps); err != nil {
		return err
	}
	usd, err := DiscountedUsd(offer.TokenAmount, offer.PriceUsd, offer.AssetDecimals, offer.DiscountBps)
	if err != nil {
		return err
	}
	var payAsset types.Address
	var payAmount uint64
	switch currency {
	case CurrencyStable:
		payAsset = desk.StableAsset
		payAmount, err = usdToStableCeil(usd)
	case CurrencyNative:
		payAsset = NativeAsset
		payAmount, err = usdToNativeCeil(usd, offer.NativeUsdPrice)
	default:
		return ErrUnsupportedCurrency
	}
	if err != nil {
		return err
	}
	if err := e.ledger.Transfer(caller, DeskVault, payAsset, payAmount); err != nil {
		return err
	}
	if err := e.payCommission(offer, usd, payAsset, commissionDest); err != nil {
		return err
	}
	offer.Paid = true
	offer.Payer = caller
	offer.AmountPaid = payAmount
	if err := e.state.OfferPut(offer); err != nil {
		return err
	}
	e.emit(NewOfferPaidEvent(offer))
	return nil
}

// payCommission pays the agent commission out of the settlement proceeds when
// a destination account is supplied. The caller has already verified the
// destination is the desk agent. Without a destination the commission is
// simply not carved out; the desk keeps the full amount.
func (e *Engine) payCommission(offer *Offer, usd uint64, payAsset types.Address, dest *types.Address) error {
	if dest == nil || dest.IsZero() {
		return nil
	}
	bps := offer.AgentCommissionBps
	if bps == 0 {
		return nil
	}
	cUsd, err := commissionUsd(usd, bps)
	if err != nil {
		return err
	}
	var amount uint64
	if offer.Currency == CurrencyStable {
		amount, err = usdToStableFloor(cUsd)
	} else {
		amount, err = usdToNativeFloor(cUsd, offer.NativeUsdPrice)
	}
	if err != nil {
		return err
	}
	if amount == 0 {
		return nil
	}
	if err := e.ledger.Transfer(DeskVault, *dest, payAsset, amount); err != nil {
		return err
	}
	e.emit(NewAgentCommissionPaidEvent(offer, *dest, amount, bps))
	return nil
}

// Claim releases the tokens to the beneficiary once the lockup elapses.
// Claiming settled tokens is allowed while paused.
func (e *Engine) Claim(caller types.Address, id uint64) error {
	if _, err := e.loadDesk(); err != nil {
		return err
	}
	if err := e.requireLedger(); err != nil {
		return err
	}
	offer, err := e.loadOffer(id)
	if err != nil {
		return err
	}
	if caller != offer.Beneficiary {
		return ErrUnauthorized
	}
	if offer.Terminal() {
		return ErrInvalidState
	}
	if !offer.Paid {
		return ErrNotPaid
	}
	now := e.now()
	if now < offer.UnlockTime {
		return fmt.Errorf("%w: unlocks at %d", ErrStillLocked, offer.UnlockTime)
	}
	if err := e.ledger.Transfer(DeskVault, offer.Beneficiary, offer.Asset, offer.TokenAmount); err != nil {
		return err
	}
	offer.Fulfilled = true
	if err := e.state.OfferPut(offer); err != nil {
		return err
	}
	e.emit(NewTokensClaimedEvent(offer))
	return nil
}

// EmergencyRefundStable returns a stable payment to the payer after the
// refund waiting period.
func (e *Engine) EmergencyRefundStable(caller types.Address, id uint64) error {
	return e.emergencyRefund(caller, id, CurrencyStable)
}

// EmergencyRefundNative returns a native payment to the payer after the
// refund waiting period.
func (e *Engine) EmergencyRefundNative(caller types.Address, id uint64) error {
	return e.emergencyRefund(caller, id, CurrencyNative)
}

func (e *Engine) emergencyRefund(caller types.Address, id uint64, currency Currency) error {
	desk, err := e.loadDesk()
	if err != nil {
		return err
	}
	if err := e.requireLedger(); err != nil {
		return err
	}
	if !desk.EmergencyRefundEnabled {
		return ErrRefundDisabled
	}
	offer, err := e.loadOffer(id)
	if err != nil {
		return err
	}
	if offer.Terminal() || !offer.Paid {
		return ErrInvalidState
	}
	if offer.Currency != currency {
		return ErrUnsupportedCurrency
	}
	if caller != offer.Payer && caller != offer.Beneficiary && !desk.CanApprove(caller) {
		return ErrUnauthorized
	}
	now := e.now()
	threshold := offer.CreatedAt + desk.EmergencyRefundDeadlineSecs
	if alt := offer.UnlockTime + refundUnlockGraceSecs; alt > threshold {
		threshold = alt
	}
	if now < threshold {
		return fmt.Errorf("%w: refundable at %d", ErrTooEarlyForRefund, threshold)
	}
	payAsset := desk.StableAsset
	if currency == CurrencyNative {
		payAsset = NativeAsset
	}
	if err := e.ledger.Transfer(DeskVault, offer.Payer, payAsset, offer.AmountPaid); err != nil {
		return err
	}
	if err := e.restoreConsignment(offer); err != nil {
		return err
	}
	offer.Cancelled = true
	if err := e.state.OfferPut(offer); err != nil {
		return err
	}
	e.emit(NewOfferCancelledEvent(offer, "emergency_refund"))
	return nil
}
