package otc

import (
	"strconv"

	"otcdesk/core/types"
)

const (
	EventTypePricesUpdated       = "otc.prices.updated"
	EventTypeLimitsUpdated       = "otc.limits.updated"
	EventTypePaused              = "otc.paused"
	EventTypeRestrictFulfill     = "otc.restrict_fulfill.updated"
	EventTypeConsignmentCreated  = "otc.consignment.created"
	EventTypeConsignmentWithdraw = "otc.consignment.withdrawn"
	EventTypeOfferCreated        = "otc.offer.created"
	EventTypeOfferApproved       = "otc.offer.approved"
	EventTypeOfferCancelled      = "otc.offer.cancelled"
	EventTypeOfferPaid           = "otc.offer.paid"
	EventTypeAgentCommissionPaid = "otc.offer.commission_paid"
	EventTypeTokensClaimed       = "otc.offer.claimed"
)

// NewPricesUpdatedEvent records a published price. A zero asset identifies
// the native currency price.
func NewPricesUpdatedEvent(asset types.Address, priceUsd uint64, at int64, source string) *types.Event {
	attrs := map[string]string{
		"priceUsd":  strconv.FormatUint(priceUsd, 10),
		"updatedAt": strconv.FormatInt(at, 10),
		"source":    source,
	}
	if !asset.IsZero() {
		attrs["asset"] = asset.Hex()
	} else {
		attrs["asset"] = "native"
	}
	return &types.Event{Type: EventTypePricesUpdated, Attributes: attrs}
}

// NewLimitsUpdatedEvent records the desk limits after an owner change.
func NewLimitsUpdatedEvent(d *Desk) *types.Event {
	attrs := make(map[string]string)
	if d != nil {
		attrs["minUsdAmount"] = strconv.FormatUint(d.MinUsdAmount, 10)
		attrs["maxTokenPerOrder"] = strconv.FormatUint(d.MaxTokenPerOrder, 10)
		attrs["quoteExpirySecs"] = strconv.FormatInt(d.QuoteExpirySecs, 10)
		attrs["maxPriceAgeSecs"] = strconv.FormatInt(d.MaxPriceAgeSecs, 10)
		attrs["maxLockupSecs"] = strconv.FormatInt(d.MaxLockupSecs, 10)
	}
	return &types.Event{Type: EventTypeLimitsUpdated, Attributes: attrs}
}

// NewPausedEvent records a pause toggle.
func NewPausedEvent(paused bool) *types.Event {
	return &types.Event{Type: EventTypePaused, Attributes: map[string]string{
		"paused": strconv.FormatBool(paused),
	}}
}

// NewRestrictFulfillEvent records a fulfillment restriction toggle.
func NewRestrictFulfillEvent(restricted bool) *types.Event {
	return &types.Event{Type: EventTypeRestrictFulfill, Attributes: map[string]string{
		"restricted": strconv.FormatBool(restricted),
	}}
}

// NewConsignmentCreatedEvent records a funded consignment lot.
func NewConsignmentCreatedEvent(c *Consignment) *types.Event {
	attrs := make(map[string]string)
	if c != nil {
		attrs["id"] = strconv.FormatUint(c.ID, 10)
		attrs["asset"] = c.Asset.Hex()
		attrs["consigner"] = c.Consigner.Hex()
		attrs["totalAmount"] = strconv.FormatUint(c.TotalAmount, 10)
		attrs["negotiable"] = strconv.FormatBool(c.Negotiable)
		attrs["createdAt"] = strconv.FormatInt(c.CreatedAt, 10)
	}
	return &types.Event{Type: EventTypeConsignmentCreated, Attributes: attrs}
}

// NewConsignmentWithdrawnEvent records the return of unreserved inventory.
func NewConsignmentWithdrawnEvent(c *Consignment, returned uint64) *types.Event {
	attrs := make(map[string]string)
	if c != nil {
		attrs["id"] = strconv.FormatUint(c.ID, 10)
		attrs["asset"] = c.Asset.Hex()
		attrs["consigner"] = c.Consigner.Hex()
		attrs["returnedAmount"] = strconv.FormatUint(returned, 10)
	}
	return &types.Event{Type: EventTypeConsignmentWithdraw, Attributes: attrs}
}

func offerAttrs(o *Offer) map[string]string {
	attrs := make(map[string]string)
	if o == nil {
		return attrs
	}
	attrs["id"] = strconv.FormatUint(o.ID, 10)
	attrs["asset"] = o.Asset.Hex()
	attrs["beneficiary"] = o.Beneficiary.Hex()
	attrs["tokenAmount"] = strconv.FormatUint(o.TokenAmount, 10)
	attrs["discountBps"] = strconv.FormatUint(uint64(o.DiscountBps), 10)
	attrs["priceUsd"] = strconv.FormatUint(o.PriceUsd, 10)
	attrs["currency"] = o.Currency.String()
	attrs["unlockTime"] = strconv.FormatInt(o.UnlockTime, 10)
	attrs["createdAt"] = strconv.FormatInt(o.CreatedAt, 10)
	if o.ConsignmentID != 0 {
		attrs["consignmentId"] = strconv.FormatUint(o.ConsignmentID, 10)
	}
	return attrs
}

// NewOfferCreatedEvent records a quoted offer.
func NewOfferCreatedEvent(o *Offer) *types.Event {
	attrs := offerAttrs(o)
	if o != nil {
		attrs["approved"] = strconv.FormatBool(o.Approved)
	}
	return &types.Event{Type: EventTypeOfferCreated, Attributes: attrs}
}

// NewOfferApprovedEvent records an approval and who granted it.
func NewOfferApprovedEvent(o *Offer, approver types.Address) *types.Event {
	attrs := offerAttrs(o)
	attrs["approver"] = approver.Hex()
	return &types.Event{Type: EventTypeOfferApproved, Attributes: attrs}
}

// NewOfferCancelledEvent records a cancellation or emergency refund.
func NewOfferCancelledEvent(o *Offer, reason string) *types.Event {
	attrs := offerAttrs(o)
	attrs["reason"] = reason
	return &types.Event{Type: EventTypeOfferCancelled, Attributes: attrs}
}

// NewOfferPaidEvent records a settlement payment.
func NewOfferPaidEvent(o *Offer) *types.Event {
	attrs := offerAttrs(o)
	if o != nil {
		attrs["payer"] = o.Payer.Hex()
		attrs["amountPaid"] = strconv.FormatUint(o.AmountPaid, 10)
	}
	return &types.Event{Type: EventTypeOfferPaid, Attributes: attrs}
}

// NewAgentCommissionPaidEvent records a commission payout.
func NewAgentCommissionPaidEvent(o *Offer, dest types.Address, amount uint64, bps uint16) *types.Event {
	attrs := offerAttrs(o)
	attrs["commissionDestination"] = dest.Hex()
	attrs["commissionAmount"] = strconv.FormatUint(amount, 10)
	attrs["commissionBps"] = strconv.FormatUint(uint64(bps), 10)
	return &types.Event{Type: EventTypeAgentCommissionPaid, Attributes: attrs}
}

// NewTokensClaimedEvent records the beneficiary taking delivery.
func NewTokensClaimedEvent(o *Offer) *types.Event {
	return &types.Event{Type: EventTypeTokensClaimed, Attributes: offerAttrs(o)}
}
