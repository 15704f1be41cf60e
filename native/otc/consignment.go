package otc

import (
	"fmt"

	"otcdesk/core/types"
)

// ConsignmentParams carries the terms of a new inventory lot.
type ConsignmentParams struct {
	Asset       types.Address
	TokenAmount uint64

	Negotiable       bool
	FixedDiscountBps uint16
	FixedLockupDays  uint32
	MinDiscountBps   uint16
	MaxDiscountBps   uint16
	MinLockupDays    uint32
	MaxLockupDays    uint32
	MinDealAmount    uint64
	MaxDealAmount    uint64

	Fractionalized        bool
	Private               bool
	MaxPriceVolatilityBps uint16
	MaxTimeToExecuteSecs  int64
}

func (e *Engine) validateConsignmentTerms(desk *Desk, params ConsignmentParams) error {
	if params.TokenAmount == 0 {
		return fmt.Errorf("%w: zero amount", ErrAmountOutOfRange)
	}
	if desk.MaxTokenPerOrder > 0 && params.TokenAmount > desk.MaxTokenPerOrder {
		return fmt.Errorf("%w: amount %d above per-order cap", ErrAmountOutOfRange, params.TokenAmount)
	}
	maxLockupDays := uint32(desk.MaxLockupSecs / secondsPerDay)
	if params.Negotiable {
		if params.MinDiscountBps > params.MaxDiscountBps || params.MaxDiscountBps >= bpsDenominator {
			return fmt.Errorf("%w: negotiable discount window", ErrDiscountOutOfRange)
		}
		if params.MinLockupDays > params.MaxLockupDays {
			return fmt.Errorf("%w: negotiable lockup window", ErrLockupTooLong)
		}
		if params.MaxLockupDays > maxLockupDays {
			return fmt.Errorf("%w: %d days", ErrLockupTooLong, params.MaxLockupDays)
		}
		if params.MinDealAmount > 0 && params.MaxDealAmount > 0 && params.MinDealAmount > params.MaxDealAmount {
			return fmt.Errorf("%w: deal window", ErrAmountOutOfRange)
		}
	} else {
		if params.FixedDiscountBps >= bpsDenominator {
			return fmt.Errorf("%w: fixed discount %d bps", ErrDiscountOutOfRange, params.FixedDiscountBps)
		}
		if params.FixedLockupDays > maxLockupDays {
			return fmt.Errorf("%w: %d days", ErrLockupTooLong, params.FixedLockupDays)
		}
	}
	return nil
}

// CreateConsignment escrows the consigner's tokens in the desk vault and
// records the lot. The transfer and the record share the caller's transaction
// boundary.
func (e *Engine) CreateConsignment(caller types.Address, params ConsignmentParams) (*Consignment, error) {
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
	if caller.IsZero() {
		return nil, ErrUnauthorized
	}
	token, err := e.loadToken(params.Asset)
	if err != nil {
		return nil, err
	}
	if !token.Active {
		return nil, ErrTokenInactive
	}
	if err := e.validateConsignmentTerms(desk, params); err != nil {
		return nil, err
	}
	if err := e.ledger.Transfer(caller, DeskVault, params.Asset, params.TokenAmount); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInsufficientInventory, err)
	}
	now := e.now()
	cons := &Consignment{
		ID:                    desk.NextConsignmentID,
		Asset:                 params.Asset,
		Consigner:             caller,
		TotalAmount:           params.TokenAmount,
		RemainingAmount:       params.TokenAmount,
		Negotiable:            params.Negotiable,
		FixedDiscountBps:      params.FixedDiscountBps,
		FixedLockupDays:       params.FixedLockupDays,
		MinDiscountBps:        params.MinDiscountBps,
		MaxDiscountBps:        params.MaxDiscountBps,
		MinLockupDays:         params.MinLockupDays,
		MaxLockupDays:         params.MaxLockupDays,
		MinDealAmount:         params.MinDealAmount,
		MaxDealAmount:         params.MaxDealAmount,
		Fractionalized:        params.Fractionalized,
		Private:               params.Private,
		MaxPriceVolatilityBps: params.MaxPriceVolatilityBps,
		MaxTimeToExecuteSecs:  params.MaxTimeToExecuteSecs,
		Active:                true,
		CreatedAt:             now,
	}
	desk.NextConsignmentID++
	if err := e.state.ConsignmentPut(cons); err != nil {
		return nil, err
	}
	if err := e.state.DeskPut(desk); err != nil {
		return nil, err
	}
	e.emit(NewConsignmentCreatedEvent(cons))
	return cons.Clone(), nil
}

// WithdrawConsignment returns the unreserved remainder of a lot to the
// consigner and deactivates it. Outstanding offers keep their reservations.
// Returning inventory is allowed while paused.
func (e *Engine) WithdrawConsignment(caller types.Address, id uint64) error {
	if _, err := e.loadDesk(); err != nil {
		return err
	}
	if err := e.requireLedger(); err != nil {
		return err
	}
	cons, err := e.loadConsignment(id)
	if err != nil {
		return err
	}
	if caller != cons.Consigner {
		return ErrUnauthorized
	}
	if !cons.Active {
		return ErrConsignmentInactive
	}
	remaining := cons.RemainingAmount
	if remaining > 0 {
		if err := e.ledger.Transfer(DeskVault, cons.Consigner, cons.Asset, remaining); err != nil {
			return err
		}
	}
	cons.RemainingAmount = 0
	cons.Active = false
	if err := e.state.ConsignmentPut(cons); err != nil {
		return err
	}
	e.emit(NewConsignmentWithdrawnEvent(cons, remaining))
	return nil
}

// DepositTokens moves desk-owned inventory into the vault for standalone
// offers.
func (e *Engine) DepositTokens(caller, asset types.Address, amount uint64) error {
	desk, err := e.loadDesk()
	if err != nil {
		return err
	}
	if err := requireOwner(desk, caller); err != nil {
		return err
	}
	if err := e.requireLedger(); err != nil {
		return err
	}
	if _, err := e.loadToken(asset); err != nil {
		return err
	}
	if amount == 0 {
		return fmt.Errorf("%w: zero amount", ErrAmountOutOfRange)
	}
	return e.ledger.Transfer(caller, DeskVault, asset, amount)
}

// WithdrawTokens returns desk-owned token inventory to the owner. Withdrawal
// of settled or surplus funds is allowed while paused.
func (e *Engine) WithdrawTokens(caller, asset types.Address, amount uint64) error {
	return e.withdrawFromVault(caller, asset, amount)
}

// WithdrawStable returns settled stable proceeds to the owner.
func (e *Engine) WithdrawStable(caller types.Address, amount uint64) error {
	desk, err := e.loadDesk()
	if err != nil {
		return err
	}
	return e.withdrawFromVault(caller, desk.StableAsset, amount)
}

// WithdrawNative returns settled native proceeds to the owner.
func (e *Engine) WithdrawNative(caller types.Address, amount uint64) error {
	return e.withdrawFromVault(caller, NativeAsset, amount)
}

func (e *Engine) withdrawFromVault(caller, asset types.Address, amount uint64) error {
	desk, err := e.loadDesk()
	if err != nil {
		return err
	}
	if err := requireOwner(desk, caller); err != nil {
		return err
	}
	if err := e.requireLedger(); err != nil {
		return err
	}
	if amount == 0 {
		return fmt.Errorf("%w: zero amount", ErrAmountOutOfRange)
	}
	return e.ledger.Transfer(DeskVault, desk.Owner, asset, amount)
}
