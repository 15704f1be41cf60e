package otc

import (
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"otcdesk/core/types"
)

// Fixed-point conventions: USD values and prices carry 8 decimals, basis
// points use a 10_000 denominator, the stable settlement asset carries 6
// decimals and the native settlement currency 9.
const (
	usdDecimals    = 8
	usdScale       = 100_000_000
	bpsDenominator = 10_000
	stableScale    = 1_000_000
	nativeScale    = 1_000_000_000

	requiredStableDecimals = 6
	maxAssetDecimals       = 18

	maxApprovers       = 32
	minQuoteExpirySecs = 60

	defaultQuoteExpirySecs        = 300
	defaultMaxPriceAgeSecs        = 3600
	defaultMaxLockupSecs          = 365 * 24 * 3600
	defaultEmergencyDeadlineSecs  = 30 * 24 * 3600
	refundUnlockGraceSecs         = 30 * 24 * 3600
	defaultP2PCommissionBps       = 25
	defaultPoolUpdateIntervalSecs = 30
	defaultMaxTwapDeviationBps    = 500

	maxCommissionBps           = 500
	minNegotiatedCommissionBps = 25
	maxNegotiatedCommissionBps = 150

	// Manual per-token prices must sit in (0, $10,000] while the native
	// currency price must sit in [$0.01, $100,000].
	maxManualPrice    = 1_000_000_000_000
	minNativePrice    = 1_000_000
	maxNativePrice    = 10_000_000_000_000
	emaWindowSecs     = 3600
	maxExponentShift  = 38
	minPoolUpdateSecs = 30
	maxTwapGateBps    = 5000

	secondsPerDay = 24 * 3600
)

// Currency selects the settlement leg of an offer.
type Currency uint8

const (
	CurrencyNative Currency = iota
	CurrencyStable
)

// Valid reports whether the currency is a known settlement currency.
func (c Currency) Valid() bool {
	return c == CurrencyNative || c == CurrencyStable
}

// String implements fmt.Stringer for event attributes.
func (c Currency) String() string {
	switch c {
	case CurrencyNative:
		return "native"
	case CurrencyStable:
		return "stable"
	default:
		return "unknown"
	}
}

// PoolType tags the on-venue pool shape a token derives its price from.
type PoolType uint8

const (
	PoolNone PoolType = iota
	PoolCPMM
	PoolCLMM
	PoolBondingCurve
)

// Valid reports whether the pool type is one of the known variants.
func (p PoolType) Valid() bool { return p <= PoolBondingCurve }

// PoolPrograms is the per-pool-type allow-list of venue program identities a
// pool observation may originate from.
type PoolPrograms struct {
	CPMM         []types.Address `json:"cpmm"`
	CLMM         []types.Address `json:"clmm"`
	BondingCurve []types.Address `json:"bondingCurve"`
}

// Allowed reports whether program may serve pool observations of the given
// type. An empty list means no program has been allowed yet.
func (p PoolPrograms) Allowed(kind PoolType, program types.Address) bool {
	var list []types.Address
	switch kind {
	case PoolCPMM:
		list = p.CPMM
	case PoolCLMM:
		list = p.CLMM
	case PoolBondingCurve:
		list = p.BondingCurve
	default:
		return false
	}
	for _, allowed := range list {
		if allowed == program {
			return true
		}
	}
	return false
}

// Clone returns a deep copy of the allow-lists.
func (p PoolPrograms) Clone() PoolPrograms {
	out := PoolPrograms{}
	if len(p.CPMM) > 0 {
		out.CPMM = append([]types.Address(nil), p.CPMM...)
	}
	if len(p.CLMM) > 0 {
		out.CLMM = append([]types.Address(nil), p.CLMM...)
	}
	if len(p.BondingCurve) > 0 {
		out.BondingCurve = append([]types.Address(nil), p.BondingCurve...)
	}
	return out
}

// Desk is the singleton configuration and counter record for a deployment.
type Desk struct {
	Owner          types.Address `json:"owner"`
	Agent          types.Address `json:"agent"`
	StableAsset    types.Address `json:"stableAsset"`
	StableDecimals uint8         `json:"stableDecimals"`

	MinUsdAmount     uint64 `json:"minUsdAmount"`
	QuoteExpirySecs  int64  `json:"quoteExpirySecs"`
	MaxPriceAgeSecs  int64  `json:"maxPriceAgeSecs"`
	MaxTokenPerOrder uint64 `json:"maxTokenPerOrder"`

	RestrictFulfill bool            `json:"restrictFulfill"`
	Approvers       []types.Address `json:"approvers"`
	Paused          bool            `json:"paused"`

	NextConsignmentID uint64 `json:"nextConsignmentId"`
	NextOfferID       uint64 `json:"nextOfferId"`

	NativeFeedID    types.Address `json:"nativeFeedId"`
	NativeUsdPrice  uint64        `json:"nativeUsdPrice"`
	PricesUpdatedAt int64         `json:"pricesUpdatedAt"`

	DefaultUnlockDelaySecs int64  `json:"defaultUnlockDelaySecs"`
	MaxLockupSecs          int64  `json:"maxLockupSecs"`
	P2PCommissionBps       uint16 `json:"p2pCommissionBps"`

	EmergencyRefundEnabled      bool  `json:"emergencyRefundEnabled"`
	EmergencyRefundDeadlineSecs int64 `json:"emergencyRefundDeadlineSecs"`

	PoolPrograms PoolPrograms `json:"poolPrograms"`
}

// Clone returns a deep copy of the desk record.
func (d *Desk) Clone() *Desk {
	if d == nil {
		return nil
	}
	out := *d
	if len(d.Approvers) > 0 {
		out.Approvers = append([]types.Address(nil), d.Approvers...)
	}
	out.PoolPrograms = d.PoolPrograms.Clone()
	return &out
}

// IsApprover reports whether addr is in the approver set.
func (d *Desk) IsApprover(addr types.Address) bool {
	if d == nil {
		return false
	}
	for _, approver := range d.Approvers {
		if approver == addr {
			return true
		}
	}
	return false
}

// CanApprove reports whether addr may approve or cancel offers on behalf of
// the desk: the owner, the agent, or a member of the approver set.
func (d *Desk) CanApprove(addr types.Address) bool {
	if d == nil || addr.IsZero() {
		return false
	}
	return addr == d.Owner || (!d.Agent.IsZero() && addr == d.Agent) || d.IsApprover(addr)
}

// TokenRegistry is the per-asset pricing record.
type TokenRegistry struct {
	Asset        types.Address `json:"asset"`
	Decimals     uint8         `json:"decimals"`
	Active       bool          `json:"active"`
	RegisteredBy types.Address `json:"registeredBy"`

	FeedID types.Address `json:"feedId"`

	PoolAddress  types.Address `json:"poolAddress"`
	PoolType     PoolType      `json:"poolType"`
	MinLiquidity uint64        `json:"minLiquidity"`

	UsdPrice        uint64 `json:"usdPrice"`
	PricesUpdatedAt int64  `json:"pricesUpdatedAt"`

	EmaLastPrice          uint64 `json:"emaLastPrice"`
	EmaLastTimestamp      int64  `json:"emaLastTimestamp"`
	MaxTwapDeviationBps   uint16 `json:"maxTwapDeviationBps"`
	MinUpdateIntervalSecs int64  `json:"minUpdateIntervalSecs"`
}

// Clone returns a copy of the registry record.
func (t *TokenRegistry) Clone() *TokenRegistry {
	if t == nil {
		return nil
	}
	out := *t
	return &out
}

// Consignment is a seller-funded inventory lot offers can be carved from.
type Consignment struct {
	ID        uint64        `json:"id"`
	Asset     types.Address `json:"asset"`
	Consigner types.Address `json:"consigner"`

	TotalAmount     uint64 `json:"totalAmount"`
	RemainingAmount uint64 `json:"remainingAmount"`

	Negotiable       bool   `json:"negotiable"`
	FixedDiscountBps uint16 `json:"fixedDiscountBps"`
	FixedLockupDays  uint32 `json:"fixedLockupDays"`
	MinDiscountBps   uint16 `json:"minDiscountBps"`
	MaxDiscountBps   uint16 `json:"maxDiscountBps"`
	MinLockupDays    uint32 `json:"minLockupDays"`
	MaxLockupDays    uint32 `json:"maxLockupDays"`
	MinDealAmount    uint64 `json:"minDealAmount"`
	MaxDealAmount    uint64 `json:"maxDealAmount"`

	Fractionalized        bool   `json:"fractionalized"`
	Private               bool   `json:"private"`
	MaxPriceVolatilityBps uint16 `json:"maxPriceVolatilityBps"`
	MaxTimeToExecuteSecs  int64  `json:"maxTimeToExecuteSecs"`

	Active    bool  `json:"active"`
	CreatedAt int64 `json:"createdAt"`
}

// Clone returns a copy of the consignment record.
func (c *Consignment) Clone() *Consignment {
	if c == nil {
		return nil
	}
	out := *c
	return &out
}

// Offer is a single quoted deal. Price inputs are frozen at creation; terminal
// states are flags and records are never deleted.
type Offer struct {
	ID            uint64        `json:"id"`
	ConsignmentID uint64        `json:"consignmentId"`
	Asset         types.Address `json:"asset"`
	AssetDecimals uint8         `json:"assetDecimals"`
	Beneficiary   types.Address `json:"beneficiary"`

	TokenAmount uint64 `json:"tokenAmount"`
	DiscountBps uint16 `json:"discountBps"`
	CreatedAt   int64  `json:"createdAt"`
	UnlockTime  int64  `json:"unlockTime"`

	PriceUsd             uint64   `json:"priceUsd"`
	NativeUsdPrice       uint64   `json:"nativeUsdPrice"`
	MaxPriceDeviationBps uint16   `json:"maxPriceDeviationBps"`
	Currency             Currency `json:"currency"`

	Approved  bool `json:"approved"`
	Paid      bool `json:"paid"`
	Fulfilled bool `json:"fulfilled"`
	Cancelled bool `json:"cancelled"`

	Payer              types.Address `json:"payer"`
	AmountPaid         uint64        `json:"amountPaid"`
	AgentCommissionBps uint16        `json:"agentCommissionBps"`
}

// Clone returns a copy of the offer record.
func (o *Offer) Clone() *Offer {
	if o == nil {
		return nil
	}
	out := *o
	return &out
}

// Terminal reports whether the offer reached a final state.
func (o *Offer) Terminal() bool {
	if o == nil {
		return false
	}
	return o.Fulfilled || o.Cancelled
}

// DeskVault is the deterministic custody account holding consigned tokens and
// incoming settlement funds.
var DeskVault = deriveAccount("otcdesk/vault/v1")

// NativeAsset identifies the chain-native settlement currency in the custody
// ledger.
var NativeAsset = deriveAccount("otcdesk/native-asset/v1")

func deriveAccount(label string) types.Address {
	var addr types.Address
	copy(addr[:], ethcrypto.Keccak256([]byte(label)))
	return addr
}
