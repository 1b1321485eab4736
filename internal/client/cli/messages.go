package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/gophvault/internal/common"
	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
)

func success(format string, args ...any) string {
	return color.GreenString("✓") + " " + fmt.Sprintf(format, args...)
}

func hint(format string, args ...any) string {
	return color.CyanString("→") + " " + fmt.Sprintf(format, args...)
}

func bytesString(n int64) string {
	if n < 0 {
		n = 0
	}
	return humanize.IBytes(uint64(n))
}

// describeError renders a command error for the terminal.
func describeError(err error) string {
	var (
		quota    *common.QuotaExceededError
		inactive *common.SubscriptionInactiveError
		wrongPin *common.WrongPinError
		mismatch *common.DeviceMismatchError
		sio      *common.StorageIOError
		col      *common.CollisionError
	)

	fail := color.RedString("✗") + " "
	switch {
	case errors.Is(err, context.Canceled):
		return fail + "Cancelled"
	case errors.As(err, &quota):
		return fail + fmt.Sprintf("Not enough storage: %s needed, %s available\n", bytesString(quota.Required), bytesString(quota.Available)) +
			hint("Delete bundles or run %s", color.YellowString("subscribe <bigger tier>"))
	case errors.As(err, &inactive):
		return fail + fmt.Sprintf("Subscription is %s\n", inactive.Status) + hint("%s", inactive.Remediation)
	case errors.As(err, &wrongPin):
		return fail + "Incorrect PIN"
	case errors.As(err, &mismatch):
		return fail + "This bundle was hidden on another device and cannot be opened here"
	case errors.As(err, &col):
		return fail + "Could not pick a unique disguised name, try again"
	case errors.As(err, &sio):
		return fail + fmt.Sprintf("Storage %s failed, try again", sio.Op)
	case errors.Is(err, common.ErrorNotFound):
		return fail + "Not found"
	}
	return fail + err.Error()
}
