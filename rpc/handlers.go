package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"otcdesk/core/types"
	"otcdesk/native/otc"
	"otcdesk/storage"
)

type paramError struct{ err error }

func (p paramError) Error() string { return p.err.Error() }
func (p paramError) Unwrap() error { return p.err }

func badParams(format string, args ...any) error {
	return paramError{err: fmt.Errorf(format, args...)}
}

func decodeParams[T any](raw json.RawMessage) (T, error) {
	var out T
	if len(raw) == 0 {
		return out, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&out); err != nil {
		return out, badParams("invalid params: %v", err)
	}
	return out, nil
}

// parseAsset resolves an asset reference: a hex address or the literal
// "native".
func parseAsset(s string) (types.Address, error) {
	if strings.EqualFold(strings.TrimSpace(s), "native") {
		return otc.NativeAsset, nil
	}
	addr, err := types.ParseAddress(s)
	if err != nil {
		return addr, badParams("%v", err)
	}
	return addr, nil
}

var methods = map[string]methodSpec{
	// Queries.
	"otc_getDesk":          {handler: handleGetDesk},
	"otc_getToken":         {handler: handleGetToken},
	"otc_getConsignment":   {handler: handleGetConsignment},
	"otc_getOffer":         {handler: handleGetOffer},
	"otc_listOffers":       {handler: handleListOffers},
	"otc_listConsignments": {handler: handleListConsignments},
	"otc_getBalance":       {handler: handleGetBalance},
	"otc_recentEvents":     {handler: handleRecentEvents},

	// Permissionless operations. Capability checks live in the engine.
	"otc_registerToken":               {handler: handleRegisterToken, mutating: true},
	"otc_createConsignment":           {handler: handleCreateConsignment, mutating: true},
	"otc_withdrawConsignment":         {handler: handleWithdrawConsignment, mutating: true},
	"otc_createOfferFromConsignment":  {handler: handleCreateOfferFromConsignment, mutating: true},
	"otc_approveOffer":                {handler: handleApproveOffer, mutating: true},
	"otc_cancelOffer":                 {handler: handleCancelOffer, mutating: true},
	"otc_fulfillOfferStable":          {handler: handleFulfillOfferStable, mutating: true},
	"otc_fulfillOfferNative":          {handler: handleFulfillOfferNative, mutating: true},
	"otc_claim":                       {handler: handleClaim, mutating: true},
	"otc_emergencyRefundStable":       {handler: handleEmergencyRefundStable, mutating: true},
	"otc_emergencyRefundNative":       {handler: handleEmergencyRefundNative, mutating: true},
	"otc_updatePriceFromFeed":         {handler: handleUpdatePriceFromFeed, mutating: true},
	"otc_updateNativePriceFromFeed":   {handler: handleUpdateNativePriceFromFeed, mutating: true},
	"otc_updatePriceFromPool":         {handler: handleUpdatePriceFromPool, mutating: true},
	"otc_updatePriceFromBondingCurve": {handler: handleUpdatePriceFromBondingCurve, mutating: true},

	// Owner/admin operations, additionally gated by the bearer token.
	"otc_initDesk":            {handler: handleInitDesk, admin: true, mutating: true},
	"otc_transferOwner":       {handler: handleTransferOwner, admin: true, mutating: true},
	"otc_setLimits":           {handler: handleSetLimits, admin: true, mutating: true},
	"otc_setAgent":            {handler: handleSetAgent, admin: true, mutating: true},
	"otc_setApprover":         {handler: handleSetApprover, admin: true, mutating: true},
	"otc_pause":               {handler: handlePause, admin: true, mutating: true},
	"otc_unpause":             {handler: handleUnpause, admin: true, mutating: true},
	"otc_setRestrictFulfill":  {handler: handleSetRestrictFulfill, admin: true, mutating: true},
	"otc_setP2PCommission":    {handler: handleSetP2PCommission, admin: true, mutating: true},
	"otc_setEmergencyRefund":  {handler: handleSetEmergencyRefund, admin: true, mutating: true},
	"otc_setPoolPrograms":     {handler: handleSetPoolPrograms, admin: true, mutating: true},
	"otc_setFeeds":            {handler: handleSetFeeds, admin: true, mutating: true},
	"otc_setPrices":           {handler: handleSetPrices, admin: true, mutating: true},
	"otc_setManualPrice":      {handler: handleSetManualPrice, admin: true, mutating: true},
	"otc_setTokenOracleFeed":  {handler: handleSetTokenOracleFeed, admin: true, mutating: true},
	"otc_setTokenPoolConfig":  {handler: handleSetTokenPoolConfig, admin: true, mutating: true},
	"otc_configurePoolOracle": {handler: handleConfigurePoolOracle, admin: true, mutating: true},
	"otc_setTokenActive":      {handler: handleSetTokenActive, admin: true, mutating: true},
	"otc_createOffer":         {handler: handleCreateOffer, admin: true, mutating: true},
	"otc_depositTokens":       {handler: handleDepositTokens, admin: true, mutating: true},
	"otc_withdrawTokens":      {handler: handleWithdrawTokens, admin: true, mutating: true},
	"otc_withdrawStable":      {handler: handleWithdrawStable, admin: true, mutating: true},
	"otc_withdrawNative":      {handler: handleWithdrawNative, admin: true, mutating: true},
	"otc_creditAccount":       {handler: handleCreditAccount, admin: true, mutating: true},
}

func handleGetDesk(_ context.Context, s *Server, _ json.RawMessage) (any, error) {
	var desk *otc.Desk
	err := s.store.View(func(tx *storage.Tx) error {
		found, ok := tx.DeskGet()
		if !ok {
			return otc.ErrDeskNotFound
		}
		desk = found
		return nil
	})
	return desk, err
}

func handleGetToken(_ context.Context, s *Server, params json.RawMessage) (any, error) {
	p, err := decodeParams[struct {
		Asset types.Address `json:"asset"`
	}](params)
	if err != nil {
		return nil, err
	}
	var token *otc.TokenRegistry
	err = s.store.View(func(tx *storage.Tx) error {
		found, ok := tx.TokenGet(p.Asset)
		if !ok {
			return otc.ErrTokenNotRegistered
		}
		token = found
		return nil
	})
	return token, err
}

func handleGetConsignment(_ context.Context, s *Server, params json.RawMessage) (any, error) {
	p, err := decodeParams[struct {
		ID uint64 `json:"id"`
	}](params)
	if err != nil {
		return nil, err
	}
	var cons *otc.Consignment
	err = s.store.View(func(tx *storage.Tx) error {
		found, ok := tx.ConsignmentGet(p.ID)
		if !ok {
			return otc.ErrConsignmentNotFound
		}
		cons = found
		return nil
	})
	return cons, err
}

func handleGetOffer(_ context.Context, s *Server, params json.RawMessage) (any, error) {
	p, err := decodeParams[struct {
		ID uint64 `json:"id"`
	}](params)
	if err != nil {
		return nil, err
	}
	var offer *otc.Offer
	err = s.store.View(func(tx *storage.Tx) error {
		found, ok := tx.OfferGet(p.ID)
		if !ok {
			return otc.ErrOfferNotFound
		}
		offer = found
		return nil
	})
	return offer, err
}

func handleListOffers(_ context.Context, s *Server, params json.RawMessage) (any, error) {
	p, err := decodeParams[struct {
		Start uint64 `json:"start"`
		Limit int    `json:"limit"`
	}](params)
	if err != nil {
		return nil, err
	}
	if p.Limit <= 0 || p.Limit > 500 {
		p.Limit = 100
	}
	var offers []*otc.Offer
	err = s.store.View(func(tx *storage.Tx) error {
		offers, err = tx.Offers(p.Start, p.Limit)
		return err
	})
	return offers, err
}

func handleListConsignments(_ context.Context, s *Server, params json.RawMessage) (any, error) {
	p, err := decodeParams[struct {
		Start uint64 `json:"start"`
		Limit int    `json:"limit"`
	}](params)
	if err != nil {
		return nil, err
	}
	if p.Limit <= 0 || p.Limit > 500 {
		p.Limit = 100
	}
	var consignments []*otc.Consignment
	err = s.store.View(func(tx *storage.Tx) error {
		consignments, err = tx.Consignments(p.Start, p.Limit)
		return err
	})
	return consignments, err
}

func handleGetBalance(_ context.Context, s *Server, params json.RawMessage) (any, error) {
	p, err := decodeParams[struct {
		Account types.Address `json:"account"`
		Asset   string        `json:"asset"`
	}](params)
	if err != nil {
		return nil, err
	}
	asset, err := parseAsset(p.Asset)
	if err != nil {
		return nil, err
	}
	var balance uint64
	err = s.store.View(func(tx *storage.Tx) error {
		balance = tx.Balance(p.Account, asset)
		return nil
	})
	return map[string]uint64{"balance": balance}, err
}

func handleRecentEvents(ctx context.Context, s *Server, params json.RawMessage) (any, error) {
	p, err := decodeParams[struct {
		Limit int `json:"limit"`
	}](params)
	if err != nil {
		return nil, err
	}
	if s.journal == nil {
		return nil, badParams("audit journal not enabled")
	}
	return s.journal.Recent(ctx, p.Limit)
}

func handleRegisterToken(_ context.Context, s *Server, params json.RawMessage) (any, error) {
	p, err := decodeParams[struct {
		Caller   types.Address `json:"caller"`
		Asset    types.Address `json:"asset"`
		Decimals uint8         `json:"decimals"`
	}](params)
	if err != nil {
		return nil, err
	}
	var token *otc.TokenRegistry
	err = s.withEngine(func(eng *otc.Engine, _ *storage.Tx) error {
		token, err = eng.RegisterToken(p.Caller, p.Asset, p.Decimals)
		return err
	})
	return token, err
}

type consignmentParams struct {
	Caller                types.Address `json:"caller"`
	Asset                 types.Address `json:"asset"`
	TokenAmount           uint64        `json:"tokenAmount"`
	Negotiable            bool          `json:"negotiable"`
	FixedDiscountBps      uint16        `json:"fixedDiscountBps"`
	FixedLockupDays       uint32        `json:"fixedLockupDays"`
	MinDiscountBps        uint16        `json:"minDiscountBps"`
	MaxDiscountBps        uint16        `json:"maxDiscountBps"`
	MinLockupDays         uint32        `json:"minLockupDays"`
	MaxLockupDays         uint32        `json:"maxLockupDays"`
	MinDealAmount         uint64        `json:"minDealAmount"`
	MaxDealAmount         uint64        `json:"maxDealAmount"`
	Fractionalized        bool          `json:"fractionalized"`
	Private               bool          `json:"private"`
	MaxPriceVolatilityBps uint16        `json:"maxPriceVolatilityBps"`
	MaxTimeToExecuteSecs  int64         `json:"maxTimeToExecuteSecs"`
}

func handleCreateConsignment(_ context.Context, s *Server, params json.RawMessage) (any, error) {
	p, err := decodeParams[consignmentParams](params)
	if err != nil {
		return nil, err
	}
	var cons *otc.Consignment
	err = s.withEngine(func(eng *otc.Engine, _ *storage.Tx) error {
		cons, err = eng.CreateConsignment(p.Caller, otc.ConsignmentParams{
			Asset:                 p.Asset,
			TokenAmount:           p.TokenAmount,
			Negotiable:            p.Negotiable,
			FixedDiscountBps:      p.FixedDiscountBps,
			FixedLockupDays:       p.FixedLockupDays,
			MinDiscountBps:        p.MinDiscountBps,
			MaxDiscountBps:        p.MaxDiscountBps,
			MinLockupDays:         p.MinLockupDays,
			MaxLockupDays:         p.MaxLockupDays,
			MinDealAmount:         p.MinDealAmount,
			MaxDealAmount:         p.MaxDealAmount,
			Fractionalized:        p.Fractionalized,
			Private:               p.Private,
			MaxPriceVolatilityBps: p.MaxPriceVolatilityBps,
			MaxTimeToExecuteSecs:  p.MaxTimeToExecuteSecs,
		})
		return err
	})
	return cons, err
}

func handleWithdrawConsignment(_ context.Context, s *Server, params json.RawMessage) (any, error) {
	p, err := decodeParams[struct {
		Caller types.Address `json:"caller"`
		ID     uint64        `json:"id"`
	}](params)
	if err != nil {
		return nil, err
	}
	err = s.withEngine(func(eng *otc.Engine, _ *storage.Tx) error {
		return eng.WithdrawConsignment(p.Caller, p.ID)
	})
	return okResult(err)
}

type offerParams struct {
	Caller               types.Address `json:"caller"`
	Asset                types.Address `json:"asset"`
	Beneficiary          types.Address `json:"beneficiary"`
	TokenAmount          uint64        `json:"tokenAmount"`
	DiscountBps          uint16        `json:"discountBps"`
	LockupDays           uint32        `json:"lockupDays"`
	Currency             string        `json:"currency"`
	MaxPriceDeviationBps uint16        `json:"maxPriceDeviationBps"`
	AgentCommissionBps   uint16        `json:"agentCommissionBps"`
}

func (p offerParams) engineParams() (otc.OfferParams, error) {
	var currency otc.Currency
	switch strings.ToLower(strings.TrimSpace(p.Currency)) {
	case "native":
		currency = otc.CurrencyNative
	case "stable":
		currency = otc.CurrencyStable
	default:
		return otc.OfferParams{}, badParams("currency must be %q or %q", "native", "stable")
	}
	return otc.OfferParams{
		Asset:                p.Asset,
		Beneficiary:          p.Beneficiary,
		TokenAmount:          p.TokenAmount,
		DiscountBps:          p.DiscountBps,
		LockupDays:           p.LockupDays,
		Currency:             currency,
		MaxPriceDeviationBps: p.MaxPriceDeviationBps,
		AgentCommissionBps:   p.AgentCommissionBps,
	}, nil
}

func handleCreateOffer(_ context.Context, s *Server, params json.RawMessage) (any, error) {
	p, err := decodeParams[offerParams](params)
	if err != nil {
		return nil, err
	}
	engineParams, err := p.engineParams()
	if err != nil {
		return nil, err
	}
	var offer *otc.Offer
	err = s.withEngine(func(eng *otc.Engine, _ *storage.Tx) error {
		offer, err = eng.CreateOffer(p.Caller, engineParams)
		return err
	})
	return offer, err
}

func handleCreateOfferFromConsignment(_ context.Context, s *Server, params json.RawMessage) (any, error) {
	p, err := decodeParams[struct {
		offerParams
		ConsignmentID uint64 `json:"consignmentId"`
	}](params)
	if err != nil {
		return nil, err
	}
	engineParams, err := p.engineParams()
	if err != nil {
		return nil, err
	}
	var offer *otc.Offer
	err = s.withEngine(func(eng *otc.Engine, _ *storage.Tx) error {
		offer, err = eng.CreateOfferFromConsignment(p.Caller, p.ConsignmentID, engineParams)
		return err
	})
	return offer, err
}

func handleApproveOffer(_ context.Context, s *Server, params json.RawMessage) (any, error) {
	p, err := decodeParams[struct {
		Caller types.Address `json:"caller"`
		ID     uint64        `json:"id"`
	}](params)
	if err != nil {
		return nil, err
	}
	err = s.withEngine(func(eng *otc.Engine, _ *storage.Tx) error {
		return eng.ApproveOffer(p.Caller, p.ID)
	})
	return okResult(err)
}

func handleCancelOffer(_ context.Context, s *Server, params json.RawMessage) (any, error) {
	p, err := decodeParams[struct {
		Caller types.Address `json:"caller"`
		ID     uint64        `json:"id"`
	}](params)
	if err != nil {
		return nil, err
	}
	err = s.withEngine(func(eng *otc.Engine, _ *storage.Tx) error {
		return eng.CancelOffer(p.Caller, p.ID)
	})
	return okResult(err)
}

type fulfillParams struct {
	Caller                types.Address  `json:"caller"`
	ID                    uint64         `json:"id"`
	CommissionDestination *types.Address `json:"commissionDestination"`
}

func handleFulfillOfferStable(_ context.Context, s *Server, params json.RawMessage) (any, error) {
	p, err := decodeParams[fulfillParams](params)
	if err != nil {
		return nil, err
	}
	err = s.withEngine(func(eng *otc.Engine, _ *storage.Tx) error {
		return eng.FulfillOfferStable(p.Caller, p.ID, p.CommissionDestination)
	})
	return okResult(err)
}

func handleFulfillOfferNative(_ context.Context, s *Server, params json.RawMessage) (any, error) {
	p, err := decodeParams[fulfillParams](params)
	if err != nil {
		return nil, err
	}
	err = s.withEngine(func(eng *otc.Engine, _ *storage.Tx) error {
		return eng.FulfillOfferNative(p.Caller, p.ID, p.CommissionDestination)
	})
	return okResult(err)
}

func handleClaim(_ context.Context, s *Server, params json.RawMessage) (any, error) {
	p, err := decodeParams[struct {
		Caller types.Address `json:"caller"`
		ID     uint64        `json:"id"`
	}](params)
	if err != nil {
		return nil, err
	}
	err = s.withEngine(func(eng *otc.Engine, _ *storage.Tx) error {
		return eng.Claim(p.Caller, p.ID)
	})
	return okResult(err)
}

func handleEmergencyRefundStable(_ context.Context, s *Server, params json.RawMessage) (any, error) {
	p, err := decodeParams[struct {
		Caller types.Address `json:"caller"`
		ID     uint64        `json:"id"`
	}](params)
	if err != nil {
		return nil, err
	}
	err = s.withEngine(func(eng *otc.Engine, _ *storage.Tx) error {
		return eng.EmergencyRefundStable(p.Caller, p.ID)
	})
	return okResult(err)
}

func handleEmergencyRefundNative(_ context.Context, s *Server, params json.RawMessage) (any, error) {
	p, err := decodeParams[struct {
		Caller types.Address `json:"caller"`
		ID     uint64        `json:"id"`
	}](params)
	if err != nil {
		return nil, err
	}
	err = s.withEngine(func(eng *otc.Engine, _ *storage.Tx) error {
		return eng.EmergencyRefundNative(p.Caller, p.ID)
	})
	return okResult(err)
}

func handleUpdatePriceFromFeed(_ context.Context, s *Server, params json.RawMessage) (any, error) {
	p, err := decodeParams[struct {
		Asset types.Address `json:"asset"`
	}](params)
	if err != nil {
		return nil, err
	}
	err = s.withEngine(func(eng *otc.Engine, _ *storage.Tx) error {
		return eng.UpdatePriceFromFeed(p.Asset)
	})
	return okResult(err)
}

func handleUpdateNativePriceFromFeed(_ context.Context, s *Server, _ json.RawMessage) (any, error) {
	err := s.withEngine(func(eng *otc.Engine, _ *storage.Tx) error {
		return eng.UpdateNativePriceFromFeed()
	})
	return okResult(err)
}

func handleUpdatePriceFromPool(_ context.Context, s *Server, params json.RawMessage) (any, error) {
	p, err := decodeParams[struct {
		Asset        types.Address `json:"asset"`
		Pool         types.Address `json:"pool"`
		Program      types.Address `json:"program"`
		TokenReserve uint64        `json:"tokenReserve"`
		QuoteReserve uint64        `json:"quoteReserve"`
	}](params)
	if err != nil {
		return nil, err
	}
	err = s.withEngine(func(eng *otc.Engine, _ *storage.Tx) error {
		return eng.UpdatePriceFromPool(p.Asset, otc.PoolObservation{
			Pool:         p.Pool,
			Program:      p.Program,
			TokenReserve: p.TokenReserve,
			QuoteReserve: p.QuoteReserve,
		})
	})
	return okResult(err)
}

func handleUpdatePriceFromBondingCurve(_ context.Context, s *Server, params json.RawMessage) (any, error) {
	p, err := decodeParams[struct {
		Asset         types.Address `json:"asset"`
		Curve         types.Address `json:"curve"`
		Program       types.Address `json:"program"`
		TokenReserve  uint64        `json:"tokenReserve"`
		NativeReserve uint64        `json:"nativeReserve"`
	}](params)
	if err != nil {
		return nil, err
	}
	err = s.withEngine(func(eng *otc.Engine, _ *storage.Tx) error {
		return eng.UpdatePriceFromBondingCurve(p.Asset, otc.CurveObservation{
			Curve:         p.Curve,
			Program:       p.Program,
			TokenReserve:  p.TokenReserve,
			NativeReserve: p.NativeReserve,
		})
	})
	return okResult(err)
}

func handleInitDesk(_ context.Context, s *Server, params json.RawMessage) (any, error) {
	p, err := decodeParams[struct {
		Caller                      types.Address `json:"caller"`
		StableAsset                 types.Address `json:"stableAsset"`
		StableDecimals              uint8         `json:"stableDecimals"`
		MinUsdAmount                uint64        `json:"minUsdAmount"`
		QuoteExpirySecs             int64         `json:"quoteExpirySecs"`
		MaxPriceAgeSecs             int64         `json:"maxPriceAgeSecs"`
		MaxTokenPerOrder            uint64        `json:"maxTokenPerOrder"`
		DefaultUnlockDelaySecs      int64         `json:"defaultUnlockDelaySecs"`
		MaxLockupSecs               int64         `json:"maxLockupSecs"`
		P2PCommissionBps            uint16        `json:"p2pCommissionBps"`
		EmergencyRefundEnabled      bool          `json:"emergencyRefundEnabled"`
		EmergencyRefundDeadlineSecs int64         `json:"emergencyRefundDeadlineSecs"`
	}](params)
	if err != nil {
		return nil, err
	}
	var desk *otc.Desk
	err = s.withEngine(func(eng *otc.Engine, _ *storage.Tx) error {
		desk, err = eng.InitDesk(p.Caller, otc.InitDeskParams{
			StableAsset:                 p.StableAsset,
			StableDecimals:              p.StableDecimals,
			MinUsdAmount:                p.MinUsdAmount,
			QuoteExpirySecs:             p.QuoteExpirySecs,
			MaxPriceAgeSecs:             p.MaxPriceAgeSecs,
			MaxTokenPerOrder:            p.MaxTokenPerOrder,
			DefaultUnlockDelaySecs:      p.DefaultUnlockDelaySecs,
			MaxLockupSecs:               p.MaxLockupSecs,
			P2PCommissionBps:            p.P2PCommissionBps,
			EmergencyRefundEnabled:      p.EmergencyRefundEnabled,
			EmergencyRefundDeadlineSecs: p.EmergencyRefundDeadlineSecs,
		})
		return err
	})
	return desk, err
}

func handleTransferOwner(_ context.Context, s *Server, params json.RawMessage) (any, error) {
	p, err := decodeParams[struct {
		Caller   types.Address `json:"caller"`
		NewOwner types.Address `json:"newOwner"`
	}](params)
	if err != nil {
		return nil, err
	}
	err = s.withEngine(func(eng *otc.Engine, _ *storage.Tx) error {
		return eng.TransferOwner(p.Caller, p.NewOwner)
	})
	return okResult(err)
}

func handleSetLimits(_ context.Context, s *Server, params json.RawMessage) (any, error) {
	p, err := decodeParams[struct {
		Caller                 types.Address `json:"caller"`
		MinUsdAmount           uint64        `json:"minUsdAmount"`
		MaxTokenPerOrder       uint64        `json:"maxTokenPerOrder"`
		QuoteExpirySecs        int64         `json:"quoteExpirySecs"`
		MaxPriceAgeSecs        int64         `json:"maxPriceAgeSecs"`
		MaxLockupSecs          int64         `json:"maxLockupSecs"`
		DefaultUnlockDelaySecs int64         `json:"defaultUnlockDelaySecs"`
	}](params)
	if err != nil {
		return nil, err
	}
	err = s.withEngine(func(eng *otc.Engine, _ *storage.Tx) error {
		return eng.SetLimits(p.Caller, p.MinUsdAmount, p.MaxTokenPerOrder, p.QuoteExpirySecs, p.MaxPriceAgeSecs, p.MaxLockupSecs, p.DefaultUnlockDelaySecs)
	})
	return okResult(err)
}

func handleSetAgent(_ context.Context, s *Server, params json.RawMessage) (any, error) {
	p, err := decodeParams[struct {
		Caller types.Address `json:"caller"`
		Agent  types.Address `json:"agent"`
	}](params)
	if err != nil {
		return nil, err
	}
	err = s.withEngine(func(eng *otc.Engine, _ *storage.Tx) error {
		return eng.SetAgent(p.Caller, p.Agent)
	})
	return okResult(err)
}

func handleSetApprover(_ context.Context, s *Server, params json.RawMessage) (any, error) {
	p, err := decodeParams[struct {
		Caller   types.Address `json:"caller"`
		Approver types.Address `json:"approver"`
		Allowed  bool          `json:"allowed"`
	}](params)
	if err != nil {
		return nil, err
	}
	err = s.withEngine(func(eng *otc.Engine, _ *storage.Tx) error {
		return eng.SetApprover(p.Caller, p.Approver, p.Allowed)
	})
	return okResult(err)
}

func handlePause(_ context.Context, s *Server, params json.RawMessage) (any, error) {
	p, err := decodeParams[struct {
		Caller types.Address `json:"caller"`
	}](params)
	if err != nil {
		return nil, err
	}
	err = s.withEngine(func(eng *otc.Engine, _ *storage.Tx) error {
		return eng.Pause(p.Caller)
	})
	return okResult(err)
}

func handleUnpause(_ context.Context, s *Server, params json.RawMessage) (any, error) {
	p, err := decodeParams[struct {
		Caller types.Address `json:"caller"`
	}](params)
	if err != nil {
		return nil, err
	}
	err = s.withEngine(func(eng *otc.Engine, _ *storage.Tx) error {
		return eng.Unpause(p.Caller)
	})
	return okResult(err)
}

func handleSetRestrictFulfill(_ context.Context, s *Server, params json.RawMessage) (any, error) {
	p, err := decodeParams[struct {
		Caller     types.Address `json:"caller"`
		Restricted bool          `json:"restricted"`
	}](params)
	if err != nil {
		return nil, err
	}
	err = s.withEngine(func(eng *otc.Engine, _ *storage.Tx) error {
		return eng.SetRestrictFulfill(p.Caller, p.Restricted)
	})
	return okResult(err)
}

func handleSetP2PCommission(_ context.Context, s *Server, params json.RawMessage) (any, error) {
	p, err := decodeParams[struct {
		Caller types.Address `json:"caller"`
		Bps    uint16        `json:"bps"`
	}](params)
	if err != nil {
		return nil, err
	}
	err = s.withEngine(func(eng *otc.Engine, _ *storage.Tx) error {
		return eng.SetP2PCommission(p.Caller, p.Bps)
	})
	return okResult(err)
}

func handleSetEmergencyRefund(_ context.Context, s *Server, params json.RawMessage) (any, error) {
	p, err := decodeParams[struct {
		Caller       types.Address `json:"caller"`
		Enabled      bool          `json:"enabled"`
		DeadlineSecs int64         `json:"deadlineSecs"`
	}](params)
	if err != nil {
		return nil, err
	}
	err = s.withEngine(func(eng *otc.Engine, _ *storage.Tx) error {
		return eng.SetEmergencyRefund(p.Caller, p.Enabled, p.DeadlineSecs)
	})
	return okResult(err)
}

func handleSetPoolPrograms(_ context.Context, s *Server, params json.RawMessage) (any, error) {
	p, err := decodeParams[struct {
		Caller       types.Address   `json:"caller"`
		CPMM         []types.Address `json:"cpmm"`
		CLMM         []types.Address `json:"clmm"`
		BondingCurve []types.Address `json:"bondingCurve"`
	}](params)
	if err != nil {
		return nil, err
	}
	err = s.withEngine(func(eng *otc.Engine, _ *storage.Tx) error {
		return eng.SetPoolPrograms(p.Caller, otc.PoolPrograms{
			CPMM:         p.CPMM,
			CLMM:         p.CLMM,
			BondingCurve: p.BondingCurve,
		})
	})
	return okResult(err)
}

func handleSetFeeds(_ context.Context, s *Server, params json.RawMessage) (any, error) {
	p, err := decodeParams[struct {
		Caller       types.Address `json:"caller"`
		NativeFeedID types.Address `json:"nativeFeedId"`
	}](params)
	if err != nil {
		return nil, err
	}
	err = s.withEngine(func(eng *otc.Engine, _ *storage.Tx) error {
		return eng.SetFeeds(p.Caller, p.NativeFeedID)
	})
	return okResult(err)
}

func handleSetPrices(_ context.Context, s *Server, params json.RawMessage) (any, error) {
	p, err := decodeParams[struct {
		Caller          types.Address `json:"caller"`
		NativeUsdPrice  uint64        `json:"nativeUsdPrice"`
		MaxPriceAgeSecs int64         `json:"maxPriceAgeSecs"`
	}](params)
	if err != nil {
		return nil, err
	}
	err = s.withEngine(func(eng *otc.Engine, _ *storage.Tx) error {
		return eng.SetPrices(p.Caller, p.NativeUsdPrice, p.MaxPriceAgeSecs)
	})
	return okResult(err)
}

func handleSetManualPrice(_ context.Context, s *Server, params json.RawMessage) (any, error) {
	p, err := decodeParams[struct {
		Caller   types.Address `json:"caller"`
		Asset    types.Address `json:"asset"`
		PriceUsd uint64        `json:"priceUsd"`
	}](params)
	if err != nil {
		return nil, err
	}
	err = s.withEngine(func(eng *otc.Engine, _ *storage.Tx) error {
		return eng.SetManualPrice(p.Caller, p.Asset, p.PriceUsd)
	})
	return okResult(err)
}

func handleSetTokenOracleFeed(_ context.Context, s *Server, params json.RawMessage) (any, error) {
	p, err := decodeParams[struct {
		Caller types.Address `json:"caller"`
		Asset  types.Address `json:"asset"`
		FeedID types.Address `json:"feedId"`
	}](params)
	if err != nil {
		return nil, err
	}
	err = s.withEngine(func(eng *otc.Engine, _ *storage.Tx) error {
		return eng.SetTokenOracleFeed(p.Caller, p.Asset, p.FeedID)
	})
	return okResult(err)
}

func handleSetTokenPoolConfig(_ context.Context, s *Server, params json.RawMessage) (any, error) {
	p, err := decodeParams[struct {
		Caller       types.Address `json:"caller"`
		Asset        types.Address `json:"asset"`
		Pool         types.Address `json:"pool"`
		PoolType     string        `json:"poolType"`
		MinLiquidity uint64        `json:"minLiquidity"`
	}](params)
	if err != nil {
		return nil, err
	}
	poolType, err := parsePoolType(p.PoolType)
	if err != nil {
		return nil, err
	}
	err = s.withEngine(func(eng *otc.Engine, _ *storage.Tx) error {
		return eng.SetTokenPoolConfig(p.Caller, p.Asset, p.Pool, poolType, p.MinLiquidity)
	})
	return okResult(err)
}

func parsePoolType(s string) (otc.PoolType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return otc.PoolNone, nil
	case "cpmm":
		return otc.PoolCPMM, nil
	case "clmm":
		return otc.PoolCLMM, nil
	case "bonding_curve", "bondingcurve":
		return otc.PoolBondingCurve, nil
	default:
		return otc.PoolNone, badParams("unknown pool type %q", s)
	}
}

func handleConfigurePoolOracle(_ context.Context, s *Server, params json.RawMessage) (any, error) {
	p, err := decodeParams[struct {
		Caller                types.Address `json:"caller"`
		Asset                 types.Address `json:"asset"`
		MinUpdateIntervalSecs int64         `json:"minUpdateIntervalSecs"`
		MaxTwapDeviationBps   uint16        `json:"maxTwapDeviationBps"`
	}](params)
	if err != nil {
		return nil, err
	}
	err = s.withEngine(func(eng *otc.Engine, _ *storage.Tx) error {
		return eng.ConfigurePoolOracle(p.Caller, p.Asset, p.MinUpdateIntervalSecs, p.MaxTwapDeviationBps)
	})
	return okResult(err)
}

func handleSetTokenActive(_ context.Context, s *Server, params json.RawMessage) (any, error) {
	p, err := decodeParams[struct {
		Caller types.Address `json:"caller"`
		Asset  types.Address `json:"asset"`
		Active bool          `json:"active"`
	}](params)
	if err != nil {
		return nil, err
	}
	err = s.withEngine(func(eng *otc.Engine, _ *storage.Tx) error {
		return eng.SetTokenActive(p.Caller, p.Asset, p.Active)
	})
	return okResult(err)
}

func handleDepositTokens(_ context.Context, s *Server, params json.RawMessage) (any, error) {
	p, err := decodeParams[struct {
		Caller types.Address `json:"caller"`
		Asset  types.Address `json:"asset"`
		Amount uint64        `json:"amount"`
	}](params)
	if err != nil {
		return nil, err
	}
	err = s.withEngine(func(eng *otc.Engine, _ *storage.Tx) error {
		return eng.DepositTokens(p.Caller, p.Asset, p.Amount)
	})
	return okResult(err)
}

func handleWithdrawTokens(_ context.Context, s *Server, params json.RawMessage) (any, error) {
	p, err := decodeParams[struct {
		Caller types.Address `json:"caller"`
		Asset  types.Address `json:"asset"`
		Amount uint64        `json:"amount"`
	}](params)
	if err != nil {
		return nil, err
	}
	err = s.withEngine(func(eng *otc.Engine, _ *storage.Tx) error {
		return eng.WithdrawTokens(p.Caller, p.Asset, p.Amount)
	})
	return okResult(err)
}

func handleWithdrawStable(_ context.Context, s *Server, params json.RawMessage) (any, error) {
	p, err := decodeParams[struct {
		Caller types.Address `json:"caller"`
		Amount uint64        `json:"amount"`
	}](params)
	if err != nil {
		return nil, err
	}
	err = s.withEngine(func(eng *otc.Engine, _ *storage.Tx) error {
		return eng.WithdrawStable(p.Caller, p.Amount)
	})
	return okResult(err)
}

func handleWithdrawNative(_ context.Context, s *Server, params json.RawMessage) (any, error) {
	p, err := decodeParams[struct {
		Caller types.Address `json:"caller"`
		Amount uint64        `json:"amount"`
	}](params)
	if err != nil {
		return nil, err
	}
	err = s.withEngine(func(eng *otc.Engine, _ *storage.Tx) error {
		return eng.WithdrawNative(p.Caller, p.Amount)
	})
	return okResult(err)
}

func handleCreditAccount(_ context.Context, s *Server, params json.RawMessage) (any, error) {
	p, err := decodeParams[struct {
		Account types.Address `json:"account"`
		Asset   string        `json:"asset"`
		Amount  uint64        `json:"amount"`
	}](params)
	if err != nil {
		return nil, err
	}
	asset, err := parseAsset(p.Asset)
	if err != nil {
		return nil, err
	}
	err = s.store.InTransaction(func(tx *storage.Tx) error {
		return tx.Credit(p.Account, asset, p.Amount)
	})
	return okResult(err)
}

func okResult(err error) (any, error) {
	if err != nil {
		return nil, err
	}
	return map[string]bool{"ok": true}, nil
}
