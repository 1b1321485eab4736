package models

import "time"

// Tier is a subscription plan.
type Tier string

const (
	TierBasic Tier = "basic"
	TierPro   Tier = "pro"
	TierGold  Tier = "gold"
)

// Valid reports whether t is a known tier.
func (t Tier) Valid() bool {
	return t == TierBasic || t == TierPro || t == TierGold
}

// SubscriptionStatus is a state of the billing period state machine.
type SubscriptionStatus string

const (
	StatusActive      SubscriptionStatus = "active"
	StatusGracePeriod SubscriptionStatus = "grace_period"
	StatusExpired     SubscriptionStatus = "expired"
	StatusCancelled   SubscriptionStatus = "cancelled"
)

// Capability is a vault operation gated by the subscription status.
type Capability string

const (
	CapabilityUpload Capability = "upload"
	CapabilityView   Capability = "view"
	CapabilityDelete Capability = "delete"
)

// VaultSubscription is one billing period of a user. Rows are never deleted;
// cancellation is a terminal status.
type VaultSubscription struct {
	ID                string
	UserID            string
	Tier              Tier
	StorageLimitBytes int64
	StorageUsedBytes  int64
	Status            SubscriptionStatus
	ReceiptMode       string
	ReceiptLabel      string
	SubscribedAt      time.Time
	ExpiresAt         time.Time
	GracePeriodEndsAt *time.Time
	CancelledAt       *time.Time
}

// AvailableBytes returns the remaining headroom, never negative.
func (s *VaultSubscription) AvailableBytes() int64 {
	if s.StorageUsedBytes >= s.StorageLimitBytes {
		return 0
	}
	return s.StorageLimitBytes - s.StorageUsedBytes
}
