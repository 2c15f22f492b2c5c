package model

import "time"

// EffectStatus is the state of a pending-effect journal entry.
type EffectStatus string

const (
	EffectPending   EffectStatus = "pending"
	EffectApplied   EffectStatus = "applied"
	EffectFailed    EffectStatus = "failed"
	EffectAbandoned EffectStatus = "abandoned"
)

// EffectJournalEntry records a remote renewal before it is attempted.
type EffectJournalEntry struct {
	ID          string       `json:"id"`
	GroupID     int64        `json:"group_id"`
	ItemID      int64        `json:"item_id"`
	UserID      int64        `json:"user_id"`
	ResourceID  string       `json:"resource_id"`
	NewExpiryMS int64        `json:"new_expiry_ms"`
	Status      EffectStatus `json:"status"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// Redemption is a successful redemption as seen by the coordinator.
type Redemption struct {
	GroupID      int64
	GroupName    string
	ItemID       int64
	Code         string
	UserID       int64
	RewardKind   RewardKind
	RewardAmount *int64
	Days         *int
	ResourceID   string
	NewExpiry    *int64
}

// RedemptionOffer is what an unlocked pre-check learns about a code.
type RedemptionOffer struct {
	GroupID    int64      `json:"group_id"`
	GroupName  string     `json:"group_name"`
	Code       string     `json:"code"`
	RewardKind RewardKind `json:"reward_kind"`
	Amount     *int64     `json:"amount,omitempty"`
	Days       *int       `json:"days,omitempty"`
	Keys       []Key      `json:"keys,omitempty"`
}

// RedemptionResult is the only shape callers of the redemption API see.
type RedemptionResult struct {
	Success      bool    `json:"success"`
	ErrorKind    *string `json:"error_kind"`
	RewardAmount *int64  `json:"reward_amount"`
	NewExpiry    *int64  `json:"new_expiry"`
}

// RedeemRequest is the DTO for redeeming a code.
type RedeemRequest struct {
	Code       string `json:"code" validate:"required,notblank,max=64"`
	UserID     int64  `json:"user_id" validate:"required,gt=0"`
	ResourceID string `json:"resource_id" validate:"max=255"`
}

// InspectRequest is the DTO for the unlocked pre-check.
type InspectRequest struct {
	Code   string `json:"code" validate:"required,notblank,max=64"`
	UserID int64  `json:"user_id" validate:"required,gt=0"`
}

// RedemptionEvent is published after a redemption commits.
type RedemptionEvent struct {
	GroupID      int64      `json:"group_id"`
	GroupName    string     `json:"group_name"`
	ItemID       int64      `json:"item_id"`
	Code         string     `json:"code"`
	UserID       int64      `json:"user_id"`
	RewardKind   RewardKind `json:"reward_kind"`
	RewardAmount *int64     `json:"reward_amount,omitempty"`
	Days         *int       `json:"days,omitempty"`
	ResourceID   string     `json:"resource_id,omitempty"`
	NewExpiry    *int64     `json:"new_expiry,omitempty"`
	RedeemedAt   time.Time  `json:"redeemed_at"`
}
