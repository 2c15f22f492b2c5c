package model

import (
	"errors"
	"time"
)

// ErrInvalidReward is returned when an item carries both or neither reward shape.
var ErrInvalidReward = errors.New("item must carry exactly one of amount or days")

// Reward is what a successful redemption grants. It is either a
// BalanceReward or an ExtensionReward.
type Reward interface {
	rewardKind() RewardKind
}

// RewardKind names the reward variant.
type RewardKind string

const (
	RewardBalance   RewardKind = "balance"
	RewardExtension RewardKind = "extension"
)

// BalanceReward credits the user's balance.
type BalanceReward struct {
	Amount int64
}

func (BalanceReward) rewardKind() RewardKind { return RewardBalance }

// ExtensionReward extends one of the user's keys by a number of days.
type ExtensionReward struct {
	Days int
}

func (ExtensionReward) rewardKind() RewardKind { return RewardExtension }

// KindOf returns the variant name of r.
func KindOf(r Reward) RewardKind {
	return r.rewardKind()
}

// NewReward builds the reward variant from the stored columns.
func NewReward(amount int64, days *int) (Reward, error) {
	hasAmount := amount > 0
	hasDays := days != nil && *days > 0
	switch {
	case hasAmount && !hasDays:
		return BalanceReward{Amount: amount}, nil
	case hasDays && !hasAmount:
		return ExtensionReward{Days: *days}, nil
	default:
		return nil, ErrInvalidReward
	}
}

// CouponGroupItem is one redeemable code.
type CouponGroupItem struct {
	ID         int64     `json:"id"`
	GroupID    int64     `json:"group_id"`
	Code       string    `json:"code"`
	Amount     int64     `json:"amount"`
	Days       *int      `json:"days"`
	UsageLimit int       `json:"usage_limit"`
	UsageCount int       `json:"usage_count"`
	IsUsed     bool      `json:"is_used"`
	CreatedAt  time.Time `json:"created_at"`
}

// Reward returns the item's reward variant.
func (i *CouponGroupItem) Reward() (Reward, error) {
	return NewReward(i.Amount, i.Days)
}

// Exhausted reports whether no redemptions remain.
func (i *CouponGroupItem) Exhausted() bool {
	return i.IsUsed || i.UsageCount >= i.UsageLimit
}

// NewItem is the input for adding a single item to a group.
type NewItem struct {
	GroupID    int64
	Code       string
	Reward     Reward
	UsageLimit int
}

// AddItemRequest is the DTO for adding one code to a group.
type AddItemRequest struct {
	Code       string `json:"code" validate:"required,notblank,max=64"`
	Amount     int64  `json:"amount" validate:"gte=0"`
	Days       int    `json:"days" validate:"gte=0"`
	UsageLimit int    `json:"usage_limit" validate:"required,gte=1"`
}

// IssueRequest is the DTO for bulk issuance.
type IssueRequest struct {
	Prefix     string `json:"prefix" validate:"required,notblank,max=32,codeprefix"`
	Count      int    `json:"count" validate:"required,gte=1,lte=1000"`
	Amount     int64  `json:"amount" validate:"gte=0"`
	Days       int    `json:"days" validate:"gte=0"`
	UsageLimit int    `json:"usage_limit" validate:"required,gte=1"`
}

// IssueResult lists the codes created and the ones skipped on collision.
type IssueResult struct {
	Created []string `json:"created"`
	Skipped []string `json:"skipped"`
}
