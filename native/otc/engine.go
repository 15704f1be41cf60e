package otc

import (
	"fmt"
	"time"

	"otcdesk/core/events"
	"otcdesk/core/pricing"
	"otcdesk/core/types"
)

// State is the storage contract the engine mutates. Implementations must
// return records the caller may mutate freely (clone-on-read) and persist
// whatever is handed to Put.
type State interface {
	DeskGet() (*Desk, bool)
	DeskPut(*Desk) error
	TokenGet(asset types.Address) (*TokenRegistry, bool)
	TokenPut(*TokenRegistry) error
	ConsignmentGet(id uint64) (*Consignment, bool)
	ConsignmentPut(*Consignment) error
	OfferGet(id uint64) (*Offer, bool)
	OfferPut(*Offer) error
}

// Ledger is the custody contract the engine settles through. Transfers must
// be atomic with the surrounding state transaction.
type Ledger interface {
	Transfer(from, to, asset types.Address, amount uint64) error
	Balance(account, asset types.Address) uint64
}

type deskEvent struct {
	evt *types.Event
}

func (e deskEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e deskEvent) Event() *types.Event { return e.evt }

// Engine wires the desk business logic with external state, custody and event
// emitters. All operations run against whatever state backend is configured,
// so callers decide the transaction boundary.
type Engine struct {
	state   State
	ledger  Ledger
	feeds   pricing.FeedReader
	emitter events.Emitter
	nowFn   func() int64
}

// NewEngine creates a desk engine with a no-op emitter. Callers can override
// the emitter via SetEmitter.
func NewEngine() *Engine {
	return &Engine{
		emitter: events.NoopEmitter{},
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state State) { e.state = state }

// SetLedger configures the custody ledger used for settlement transfers.
func (e *Engine) SetLedger(ledger Ledger) { e.ledger = ledger }

// SetFeedReader configures the oracle feed reader.
func (e *Engine) SetFeedReader(feeds pricing.FeedReader) { e.feeds = feeds }

// SetNowFunc overrides the time source used by the engine. Primarily intended
// for tests to provide deterministic timestamps.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

// SetEmitter configures the event emitter used by the engine. Passing nil
// resets the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

func (e *Engine) emit(event *types.Event) {
	if e == nil || e.emitter == nil || event == nil {
		return
	}
	e.emitter.Emit(deskEvent{evt: event})
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

func (e *Engine) loadDesk() (*Desk, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	desk, ok := e.state.DeskGet()
	if !ok {
		return nil, ErrDeskNotFound
	}
	return desk, nil
}

func (e *Engine) loadToken(asset types.Address) (*TokenRegistry, error) {
	token, ok := e.state.TokenGet(asset)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTokenNotRegistered, asset.Hex())
	}
	return token, nil
}

func (e *Engine) loadConsignment(id uint64) (*Consignment, error) {
	cons, ok := e.state.ConsignmentGet(id)
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrConsignmentNotFound, id)
	}
	return cons, nil
}

func (e *Engine) loadOffer(id uint64) (*Offer, error) {
	offer, ok := e.state.OfferGet(id)
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrOfferNotFound, id)
	}
	return offer, nil
}

func requireOwner(desk *Desk, caller types.Address) error {
	if desk == nil || caller.IsZero() || caller != desk.Owner {
		return ErrNotOwner
	}
	return nil
}

func requireUnpaused(desk *Desk) error {
	if desk != nil && desk.Paused {
		return ErrPaused
	}
	return nil
}

func (e *Engine) requireLedger() error {
	if e == nil || e.ledger == nil {
		return errNilLedger
	}
	return nil
}

// InitDeskParams carries the initial desk configuration. Zero values fall
// back to the documented defaults.
type InitDeskParams struct {
	StableAsset    types.Address
	StableDecimals uint8

	MinUsdAmount     uint64
	QuoteExpirySecs  int64
	MaxPriceAgeSecs  int64
	MaxTokenPerOrder uint64

	DefaultUnlockDelaySecs int64
	MaxLockupSecs          int64
	P2PCommissionBps       uint16

	EmergencyRefundEnabled      bool
	EmergencyRefundDeadlineSecs int64
}

// InitDesk creates the singleton desk record with the caller as owner.
func (e *Engine) InitDesk(caller types.Address, params InitDeskParams) (*Desk, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if caller.IsZero() {
		return nil, ErrUnauthorized
	}
	if _, ok := e.state.DeskGet(); ok {
		return nil, ErrDeskExists
	}
	if params.StableAsset.IsZero() {
		return nil, fmt.Errorf("%w: stable asset required", ErrUnsupportedCurrency)
	}
	if params.StableDecimals != requiredStableDecimals {
		return nil, ErrStableDecimals
	}
	quoteExpiry := params.QuoteExpirySecs
	if quoteExpiry == 0 {
		quoteExpiry = defaultQuoteExpirySecs
	}
	if quoteExpiry < minQuoteExpirySecs {
		return nil, fmt.Errorf("%w: %ds", ErrQuoteExpiryTooShort, quoteExpiry)
	}
	maxPriceAge := params.MaxPriceAgeSecs
	if maxPriceAge <= 0 {
		maxPriceAge = defaultMaxPriceAgeSecs
	}
	maxLockup := params.MaxLockupSecs
	if maxLockup <= 0 {
		maxLockup = defaultMaxLockupSecs
	}
	refundDeadline := params.EmergencyRefundDeadlineSecs
	if refundDeadline <= 0 {
		refundDeadline = defaultEmergencyDeadlineSecs
	}
	p2pBps := params.P2PCommissionBps
	if p2pBps == 0 {
		p2pBps = defaultP2PCommissionBps
	}
	if p2pBps > maxCommissionBps {
		return nil, fmt.Errorf("%w: p2p commission %d bps", ErrCommissionOutOfRange, p2pBps)
	}
	desk := &Desk{
		Owner:                       caller,
		StableAsset:                 params.StableAsset,
		StableDecimals:              params.StableDecimals,
		MinUsdAmount:                params.MinUsdAmount,
		QuoteExpirySecs:             quoteExpiry,
		MaxPriceAgeSecs:             maxPriceAge,
		MaxTokenPerOrder:            params.MaxTokenPerOrder,
		NextConsignmentID:           1,
		NextOfferID:                 1,
		DefaultUnlockDelaySecs:      params.DefaultUnlockDelaySecs,
		MaxLockupSecs:               maxLockup,
		P2PCommissionBps:            p2pBps,
		EmergencyRefundEnabled:      params.EmergencyRefundEnabled,
		EmergencyRefundDeadlineSecs: refundDeadline,
	}
	if err := e.state.DeskPut(desk); err != nil {
		return nil, err
	}
	return desk.Clone(), nil
}

// TransferOwner hands the desk to a new owner.
func (e *Engine) TransferOwner(caller, newOwner types.Address) error {
	desk, err := e.loadDesk()
	if err != nil {
		return err
	}
	if err := requireOwner(desk, caller); err != nil {
		return err
	}
	if newOwner.IsZero() {
		return fmt.Errorf("%w: new owner required", ErrUnauthorized)
	}
	desk.Owner = newOwner
	return e.state.DeskPut(desk)
}

// SetLimits adjusts the desk-wide sizing and timing limits. Zero values leave
// the existing setting untouched.
func (e *Engine) SetLimits(caller types.Address, minUsdAmount, maxTokenPerOrder uint64, quoteExpirySecs, maxPriceAgeSecs, maxLockupSecs, defaultUnlockDelaySecs int64) error {
	desk, err := e.loadDesk()
	if err != nil {
		return err
	}
	if err := requireOwner(desk, caller); err != nil {
		return err
	}
	if quoteExpirySecs != 0 {
		if quoteExpirySecs < minQuoteExpirySecs {
			return fmt.Errorf("%w: %ds", ErrQuoteExpiryTooShort, quoteExpirySecs)
		}
		desk.QuoteExpirySecs = quoteExpirySecs
	}
	if maxPriceAgeSecs > 0 {
		desk.MaxPriceAgeSecs = maxPriceAgeSecs
	}
	if maxLockupSecs > 0 {
		desk.MaxLockupSecs = maxLockupSecs
	}
	if defaultUnlockDelaySecs > 0 {
		desk.DefaultUnlockDelaySecs = defaultUnlockDelaySecs
	}
	desk.MinUsdAmount = minUsdAmount
	desk.MaxTokenPerOrder = maxTokenPerOrder
	if err := e.state.DeskPut(desk); err != nil {
		return err
	}
	e.emit(NewLimitsUpdatedEvent(desk))
	return nil
}

// SetAgent designates the desk agent. A zero address clears the agent.
func (e *Engine) SetAgent(caller, agent types.Address) error {
	desk, err := e.loadDesk()
	if err != nil {
		return err
	}
	if err := requireOwner(desk, caller); err != nil {
		return err
	}
	desk.Agent = agent
	return e.state.DeskPut(desk)
}

// SetApprover adds or removes an address from the approver set. Adding an
// existing approver is a no-op; the set holds at most 32 entries.
func (e *Engine) SetApprover(caller, approver types.Address, allowed bool) error {
	desk, err := e.loadDesk()
	if err != nil {
		return err
	}
	if err := requireOwner(desk, caller); err != nil {
		return err
	}
	if approver.IsZero() {
		return fmt.Errorf("%w: approver required", ErrUnauthorized)
	}
	if allowed {
		if desk.IsApprover(approver) {
			return nil
		}
		if len(desk.Approvers) >= maxApprovers {
			return ErrTooManyApprovers
		}
		desk.Approvers = append(desk.Approvers, approver)
	} else {
		filtered := desk.Approvers[:0]
		for _, existing := range desk.Approvers {
			if existing != approver {
				filtered = append(filtered, existing)
			}
		}
		desk.Approvers = filtered
	}
	return e.state.DeskPut(desk)
}

// Pause halts offer creation, approval and settlement.
func (e *Engine) Pause(caller types.Address) error { return e.setPaused(caller, true) }

// Unpause resumes normal operation.
func (e *Engine) Unpause(caller types.Address) error { return e.setPaused(caller, false) }

func (e *Engine) setPaused(caller types.Address, paused bool) error {
	desk, err := e.loadDesk()
	if err != nil {
		return err
	}
	if err := requireOwner(desk, caller); err != nil {
		return err
	}
	if desk.Paused == paused {
		return nil
	}
	desk.Paused = paused
	if err := e.state.DeskPut(desk); err != nil {
		return err
	}
	e.emit(NewPausedEvent(paused))
	return nil
}

// SetRestrictFulfill toggles whether only the beneficiary may pay an offer.
func (e *Engine) SetRestrictFulfill(caller types.Address, restricted bool) error {
	desk, err := e.loadDesk()
	if err != nil {
		return err
	}
	if err := requireOwner(desk, caller); err != nil {
		return err
	}
	desk.RestrictFulfill = restricted
	if err := e.state.DeskPut(desk); err != nil {
		return err
	}
	e.emit(NewRestrictFulfillEvent(restricted))
	return nil
}

// SetP2PCommission adjusts the desk commission applied to consignment offers
// without a negotiated rate.
func (e *Engine) SetP2PCommission(caller types.Address, bps uint16) error {
	desk, err := e.loadDesk()
	if err != nil {
		return err
	}
	if err := requireOwner(desk, caller); err != nil {
		return err
	}
	if bps > maxCommissionBps {
		return fmt.Errorf("%w: %d bps", ErrCommissionOutOfRange, bps)
	}
	desk.P2PCommissionBps = bps
	return e.state.DeskPut(desk)
}

// SetEmergencyRefund toggles the payer escape hatch and its waiting period.
func (e *Engine) SetEmergencyRefund(caller types.Address, enabled bool, deadlineSecs int64) error {
	desk, err := e.loadDesk()
	if err != nil {
		return err
	}
	if err := requireOwner(desk, caller); err != nil {
		return err
	}
	desk.EmergencyRefundEnabled = enabled
	if deadlineSecs > 0 {
		desk.EmergencyRefundDeadlineSecs = deadlineSecs
	}
	return e.state.DeskPut(desk)
}

// SetPoolPrograms replaces the per-pool-type program allow-lists.
func (e *Engine) SetPoolPrograms(caller types.Address, programs PoolPrograms) error {
	desk, err := e.loadDesk()
	if err != nil {
		return err
	}
	if err := requireOwner(desk, caller); err != nil {
		return err
	}
	desk.PoolPrograms = programs.Clone()
	return e.state.DeskPut(desk)
}

// RegisterToken adds an asset to the registry. Registration is permissionless;
// pricing configuration stays owner-gated.
func (e *Engine) RegisterToken(caller, asset types.Address, decimals uint8) (*TokenRegistry, error) {
	desk, err := e.loadDesk()
	if err != nil {
		return nil, err
	}
	if err := requireUnpaused(desk); err != nil {
		return nil, err
	}
	if caller.IsZero() || asset.IsZero() {
		return nil, fmt.Errorf("%w: caller and asset required", ErrUnauthorized)
	}
	if decimals > maxAssetDecimals {
		return nil, fmt.Errorf("%w: %d decimals", ErrAmountOutOfRange, decimals)
	}
	if _, ok := e.state.TokenGet(asset); ok {
		return nil, ErrTokenExists
	}
	token := &TokenRegistry{
		Asset:                 asset,
		Decimals:              decimals,
		Active:                true,
		RegisteredBy:          caller,
		MaxTwapDeviationBps:   defaultMaxTwapDeviationBps,
		MinUpdateIntervalSecs: defaultPoolUpdateIntervalSecs,
	}
	if err := e.state.TokenPut(token); err != nil {
		return nil, err
	}
	return token.Clone(), nil
}

// SetTokenActive lets the owner suspend or resume an asset.
func (e *Engine) SetTokenActive(caller, asset types.Address, active bool) error {
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
	token.Active = active
	return e.state.TokenPut(token)
}
