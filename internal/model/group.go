package model

import "time"

// MaxGroupNameLength is the longest display name a coupon group may have.
const MaxGroupNameLength = 20

// CouponGroup is a named batch of codes sharing a one-redemption-per-user policy.
type CouponGroup struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// GroupPage is one page of groups ordered newest-first.
type GroupPage struct {
	Groups      []CouponGroup `json:"groups"`
	Total       int           `json:"total"`
	Pages       int           `json:"pages"`
	CurrentPage int           `json:"current_page"`
}

// GroupStats is the operator view of how a group has been consumed.
type GroupStats struct {
	TotalCoupons     int `json:"total_coupons"`
	ActivatedCoupons int `json:"activated_coupons"`
	RemainingCoupons int `json:"remaining_coupons"`
	UniqueUsers      int `json:"unique_users"`
}

// GroupDetail is a group together with its stats and one page of items.
type GroupDetail struct {
	Group       CouponGroup       `json:"group"`
	Stats       GroupStats        `json:"stats"`
	UsageCount  int               `json:"usage_count"`
	Items       []CouponGroupItem `json:"items"`
	Pages       int               `json:"pages"`
	CurrentPage int               `json:"current_page"`
}

// CreateGroupRequest is the DTO for creating a coupon group.
type CreateGroupRequest struct {
	Name string `json:"name" validate:"required,notblank,max=20"`
}
