package otc

import "errors"

// Engine wiring errors. These indicate misconfiguration rather than a caller
// mistake and map to the internal RPC error code.
var (
	errNilState  = errors.New("otc engine: state not configured")
	errNilLedger = errors.New("otc engine: ledger not configured")
	errNilFeeds  = errors.New("otc engine: feed reader not configured")
)

// Validation errors: the request itself is malformed or outside configured
// bounds.
var (
	ErrStableDecimals       = errors.New("otc: stable asset must use 6 decimals")
	ErrAmountOutOfRange     = errors.New("otc: token amount out of range")
	ErrDiscountOutOfRange   = errors.New("otc: discount bps out of range")
	ErrLockupTooLong        = errors.New("otc: lockup exceeds maximum")
	ErrLockupTooShort       = errors.New("otc: lockup below default unlock delay")
	ErrBelowMinUsd          = errors.New("otc: usd value below desk minimum")
	ErrUnsupportedCurrency  = errors.New("otc: unsupported settlement currency")
	ErrCommissionOutOfRange = errors.New("otc: commission bps out of range")
	ErrTooManyApprovers     = errors.New("otc: approver set full")
	ErrInvalidPrice         = errors.New("otc: price out of bounds")
	ErrNonNegotiableTerms   = errors.New("otc: terms fixed by consignment")
	ErrInvalidPoolType      = errors.New("otc: invalid pool type")
	ErrQuoteExpiryTooShort  = errors.New("otc: quote expiry below minimum")
	ErrUpdateIntervalRange  = errors.New("otc: pool update interval out of range")
	ErrTwapGateRange        = errors.New("otc: twap deviation gate out of range")
)

// State errors: the entity exists but its lifecycle state forbids the
// transition.
var (
	ErrDeskExists            = errors.New("otc: desk already initialised")
	ErrDeskNotFound          = errors.New("otc: desk not initialised")
	ErrTokenExists           = errors.New("otc: token already registered")
	ErrTokenNotRegistered    = errors.New("otc: token not registered")
	ErrTokenInactive         = errors.New("otc: token inactive")
	ErrConsignmentNotFound   = errors.New("otc: consignment not found")
	ErrConsignmentInactive   = errors.New("otc: consignment inactive")
	ErrOfferNotFound         = errors.New("otc: offer not found")
	ErrInvalidState          = errors.New("otc: offer state forbids transition")
	ErrAlreadyApproved       = errors.New("otc: offer already approved")
	ErrNotApproved           = errors.New("otc: offer not approved")
	ErrNotPaid               = errors.New("otc: offer not paid")
	ErrQuoteExpired          = errors.New("otc: quote expired")
	ErrQuoteNotExpired       = errors.New("otc: quote not yet expired")
	ErrStillLocked           = errors.New("otc: tokens still locked")
	ErrPaused                = errors.New("otc: desk paused")
	ErrInsufficientInventory = errors.New("otc: insufficient inventory")
	ErrUpdateTooFrequent     = errors.New("otc: price update too frequent")
	ErrRefundDisabled        = errors.New("otc: emergency refund disabled")
	ErrTooEarlyForRefund     = errors.New("otc: too early for emergency refund")
)

// Authorization errors: the caller lacks the capability for the operation.
var (
	ErrNotOwner          = errors.New("otc: caller is not the desk owner")
	ErrNotApprover       = errors.New("otc: caller cannot approve offers")
	ErrFulfillRestricted = errors.New("otc: fulfillment restricted to beneficiary")
	ErrUnauthorized      = errors.New("otc: caller not authorized")
)

// Oracle errors: a price input is missing, stale or implausible.
var (
	ErrStalePrice            = errors.New("otc: price is stale")
	ErrNoPrice               = errors.New("otc: no price available")
	ErrPriceDeviation        = errors.New("otc: price deviation too large")
	ErrFeedNotConfigured     = errors.New("otc: oracle feed not configured")
	ErrPoolNotAllowed        = errors.New("otc: pool or pool program not allowed")
	ErrInsufficientLiquidity = errors.New("otc: pool liquidity below floor")
	ErrTwapDeviation         = errors.New("otc: spot deviates from smoothed price")
)

// ErrOverflow covers any fixed-point computation whose intermediate or final
// value leaves the uint64 range.
var ErrOverflow = errors.New("otc: arithmetic overflow")

// Error categories used by the RPC layer to pick a JSON-RPC error code.
const (
	CategoryValidation    = "validation"
	CategoryState         = "state"
	CategoryAuthorization = "authorization"
	CategoryOracle        = "oracle"
	CategoryArithmetic    = "arithmetic"
	CategoryInternal      = "internal"
)

var errorCategories = map[error]string{
	ErrStableDecimals:       CategoryValidation,
	ErrAmountOutOfRange:     CategoryValidation,
	ErrDiscountOutOfRange:   CategoryValidation,
	ErrLockupTooLong:        CategoryValidation,
	ErrLockupTooShort:       CategoryValidation,
	ErrBelowMinUsd:          CategoryValidation,
	ErrUnsupportedCurrency:  CategoryValidation,
	ErrCommissionOutOfRange: CategoryValidation,
	ErrTooManyApprovers:     CategoryValidation,
	ErrInvalidPrice:         CategoryValidation,
	ErrNonNegotiableTerms:   CategoryValidation,
	ErrInvalidPoolType:      CategoryValidation,
	ErrQuoteExpiryTooShort:  CategoryValidation,
	ErrUpdateIntervalRange:  CategoryValidation,
	ErrTwapGateRange:        CategoryValidation,

	ErrDeskExists:            CategoryState,
	ErrDeskNotFound:          CategoryState,
	ErrTokenExists:           CategoryState,
	ErrTokenNotRegistered:    CategoryState,
	ErrTokenInactive:         CategoryState,
	ErrConsignmentNotFound:   CategoryState,
	ErrConsignmentInactive:   CategoryState,
	ErrOfferNotFound:         CategoryState,
	ErrInvalidState:          CategoryState,
	ErrAlreadyApproved:       CategoryState,
	ErrNotApproved:           CategoryState,
	ErrNotPaid:               CategoryState,
	ErrQuoteExpired:          CategoryState,
	ErrQuoteNotExpired:       CategoryState,
	ErrStillLocked:           CategoryState,
	ErrPaused:                CategoryState,
	ErrInsufficientInventory: CategoryState,
	ErrUpdateTooFrequent:     CategoryState,
	ErrRefundDisabled:        CategoryState,
	ErrTooEarlyForRefund:     CategoryState,

	ErrNotOwner:          CategoryAuthorization,
	ErrNotApprover:       CategoryAuthorization,
	ErrFulfillRestricted: CategoryAuthorization,
	ErrUnauthorized:      CategoryAuthorization,

	ErrStalePrice:            CategoryOracle,
	ErrNoPrice:               CategoryOracle,
	ErrPriceDeviation:        CategoryOracle,
	ErrFeedNotConfigured:     CategoryOracle,
	ErrPoolNotAllowed:        CategoryOracle,
	ErrInsufficientLiquidity: CategoryOracle,
	ErrTwapDeviation:         CategoryOracle,

	ErrOverflow: CategoryArithmetic,
}

// Category classifies an engine error into one of the taxonomy buckets.
// Unknown errors are treated as internal.
func Category(err error) string {
	for sentinel, category := range errorCategories {
		if errors.Is(err, sentinel) {
			return category
		}
	}
	return CategoryInternal
}
