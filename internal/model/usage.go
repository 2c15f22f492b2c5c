package model

import "time"

// CouponGroupUsage is the receipt of one successful redemption.
// (GroupID, UserID) is unique.
type CouponGroupUsage struct {
	GroupID      int64     `json:"group_id"`
	UserID       int64     `json:"user_id"`
	CouponItemID int64     `json:"coupon_item_id"`
	UsedAt       time.Time `json:"used_at"`
}
