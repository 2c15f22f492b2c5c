package service

import (
	"errors"

	"github.com/fairyhunter13/coupon-groups/internal/model"
)

var (
	// ErrCodeNotFound is returned when a code does not resolve to an item
	ErrCodeNotFound = errors.New("coupon code not found")

	// ErrLimitExhausted is returned when an item has no redemptions left
	ErrLimitExhausted = errors.New("coupon usage limit exhausted")

	// ErrAlreadyRedeemed is returned when the user already redeemed a code from the same group
	ErrAlreadyRedeemed = errors.New("user already redeemed a coupon from this group")

	// ErrResourceUnavailable is returned when the key to extend is missing, foreign or frozen
	ErrResourceUnavailable = errors.New("key not found or frozen")

	// ErrNoEligibleResource is returned when the user has no active keys to extend
	ErrNoEligibleResource = errors.New("user has no active keys")

	// ErrDuplicateName is returned when a group name is already taken
	ErrDuplicateName = errors.New("coupon group name already exists")

	// ErrDuplicateCode is returned when a code already exists in any group
	ErrDuplicateCode = errors.New("coupon code already exists")

	// ErrExternalEffectFailed is returned when crediting or renewing failed; nothing was committed
	ErrExternalEffectFailed = errors.New("external effect failed")

	// ErrTemporarilyUnavailable is returned on lock timeouts and store faults; safe to retry
	ErrTemporarilyUnavailable = errors.New("store temporarily unavailable")

	// ErrGroupNotFound is returned when a group cannot be found
	ErrGroupNotFound = errors.New("coupon group not found")

	// ErrInvalidRequest is returned when request data is invalid or incomplete
	ErrInvalidRequest = errors.New("invalid request")

	// ErrWrongFlow is returned when a code is redeemed through the flow of the other reward kind
	ErrWrongFlow = errors.New("coupon reward does not match redemption flow")

	// ErrInvalidReward mirrors model.ErrInvalidReward for callers of this package
	ErrInvalidReward = model.ErrInvalidReward
)

// ErrorKind is the stable name of an error in the redemption result contract.
type ErrorKind string

const (
	KindCodeNotFound           ErrorKind = "CodeNotFound"
	KindLimitExhausted         ErrorKind = "LimitExhausted"
	KindAlreadyRedeemedInGroup ErrorKind = "AlreadyRedeemedInGroup"
	KindResourceUnavailable    ErrorKind = "ResourceUnavailable"
	KindNoEligibleResource     ErrorKind = "NoEligibleResource"
	KindDuplicateName          ErrorKind = "DuplicateName"
	KindDuplicateCode          ErrorKind = "DuplicateCode"
	KindExternalEffectFailed   ErrorKind = "ExternalEffectFailed"
	KindTemporarilyUnavailable ErrorKind = "TemporarilyUnavailable"
	KindInvalidRequest         ErrorKind = "InvalidRequest"
	KindStoreUnavailable       ErrorKind = "StoreUnavailable"
)

// Kind classifies err into the result taxonomy. Errors that are not one of
// the sentinels are reported as StoreUnavailable.
func Kind(err error) ErrorKind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrCodeNotFound), errors.Is(err, ErrWrongFlow), errors.Is(err, ErrInvalidReward):
		return KindCodeNotFound
	case errors.Is(err, ErrLimitExhausted):
		return KindLimitExhausted
	case errors.Is(err, ErrAlreadyRedeemed):
		return KindAlreadyRedeemedInGroup
	case errors.Is(err, ErrResourceUnavailable):
		return KindResourceUnavailable
	case errors.Is(err, ErrNoEligibleResource):
		return KindNoEligibleResource
	case errors.Is(err, ErrDuplicateName):
		return KindDuplicateName
	case errors.Is(err, ErrDuplicateCode):
		return KindDuplicateCode
	case errors.Is(err, ErrExternalEffectFailed):
		return KindExternalEffectFailed
	case errors.Is(err, ErrTemporarilyUnavailable):
		return KindTemporarilyUnavailable
	case errors.Is(err, ErrInvalidRequest), errors.Is(err, ErrGroupNotFound):
		return KindInvalidRequest
	default:
		return KindStoreUnavailable
	}
}

// IsRetryable reports whether the caller may retry the same request.
// Retrying is always safe: a redemption that already committed is rejected
// with ErrAlreadyRedeemed on replay.
func IsRetryable(err error) bool {
	switch Kind(err) {
	case KindExternalEffectFailed, KindTemporarilyUnavailable, KindStoreUnavailable:
		return true
	}
	return false
}

// IsRejection reports whether err is an expected business outcome rather
// than an infrastructure failure.
func IsRejection(err error) bool {
	switch Kind(err) {
	case KindCodeNotFound, KindLimitExhausted, KindAlreadyRedeemedInGroup,
		KindResourceUnavailable, KindNoEligibleResource:
		return true
	}
	return false
}
