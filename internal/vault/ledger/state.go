// Package ledger owns the subscription state machine and the billing events
// that move subscriptions between states.
package ledger

import (
	"time"

	"github.com/dmitrijs2005/gophvault/internal/common"
	"github.com/dmitrijs2005/gophvault/internal/models"
)

// DefaultGracePeriod applies when a subscription carries no explicit grace end.
const DefaultGracePeriod = 7 * 24 * time.Hour

// GraceEnd returns the moment the grace period of sub ends.
func GraceEnd(sub *models.VaultSubscription, defaultGrace time.Duration) time.Time {
	if sub.GracePeriodEndsAt != nil {
		return *sub.GracePeriodEndsAt
	}
	return sub.ExpiresAt.Add(defaultGrace)
}

// Recompute derives the status of sub at now. It only depends on its
// arguments, so repeated calls with the same now agree.
func Recompute(sub *models.VaultSubscription, now time.Time, defaultGrace time.Duration) models.SubscriptionStatus {
	switch {
	case sub.Status == models.StatusCancelled:
		return models.StatusCancelled
	case now.Before(sub.ExpiresAt):
		return models.StatusActive
	case now.Before(GraceEnd(sub, defaultGrace)):
		return models.StatusGracePeriod
	default:
		return models.StatusExpired
	}
}

var permissions = map[models.SubscriptionStatus]map[models.Capability]bool{
	models.StatusActive: {
		models.CapabilityUpload: true,
		models.CapabilityView:   true,
		models.CapabilityDelete: true,
	},
	models.StatusGracePeriod: {
		models.CapabilityView:   true,
		models.CapabilityDelete: true,
	},
}

// Permits reports whether status allows capability.
func Permits(status models.SubscriptionStatus, capability models.Capability) bool {
	return permissions[status][capability]
}

// RemediationFor returns the user-facing hint attached to an inactive status.
func RemediationFor(status models.SubscriptionStatus) string {
	switch status {
	case models.StatusGracePeriod:
		return "renew your subscription to upload new files"
	case models.StatusExpired:
		return "renew your subscription to access the vault"
	case models.StatusCancelled:
		return "purchase a new subscription to access the vault"
	default:
		return "purchase a subscription to use the vault"
	}
}

// CheckAccess recomputes the status of sub at now and returns
// *common.SubscriptionInactiveError when capability is not permitted.
// It never modifies sub.
func CheckAccess(sub *models.VaultSubscription, capability models.Capability, now time.Time, defaultGrace time.Duration) error {
	status := Recompute(sub, now, defaultGrace)
	if Permits(status, capability) {
		return nil
	}
	return &common.SubscriptionInactiveError{Status: string(status), Remediation: RemediationFor(status)}
}
