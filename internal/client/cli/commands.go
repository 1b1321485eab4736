package cli

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dmitrijs2005/gophvault/internal/common"
	"github.com/dmitrijs2005/gophvault/internal/filex"
	"github.com/dmitrijs2005/gophvault/internal/models"
	"github.com/dmitrijs2005/gophvault/internal/vault/ledger"
	"github.com/fatih/color"
)

var errUsage = errors.New("usage")

// Reveal decrypts a bundle and writes its files into a directory. Existing
// files are never overwritten.
func (a *App) Reveal(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("%w: reveal <id> [dir]", errUsage)
	}
	dir := "."
	if len(args) > 1 {
		dir = args[1]
	}

	pin, err := GetPIN(a.out, "Enter PIN: ")
	if err != nil {
		return err
	}
	defer common.WipeByteArray(pin)

	b, files, err := a.vault.Reveal(ctx, a.config.UserID, args[0], pin)
	if err != nil {
		return err
	}
	defer func() {
		for i := range files {
			common.WipeByteArray(files[i].Data)
		}
	}()

	dir, err = filex.EnsureDir(dir)
	if err != nil {
		return err
	}

	fmt.Fprintln(a.out, success("Revealed %q", b.RealName))
	for i, f := range files {
		path := filepath.Join(dir, outputName(f.Name, i))
		if err := filex.CreateFileExclusive(path, f.Data, 0o600); err != nil {
			if errors.Is(err, filex.ErrExists) {
				return fmt.Errorf("%w: %s already exists", common.ErrorValidation, path)
			}
			return err
		}
		fmt.Fprintf(a.out, "  %s %s\n", path, bytesString(int64(len(f.Data))))
	}
	return nil
}

// outputName keeps revealed files inside the target directory.
func outputName(name string, index int) string {
	base := filepath.Base(name)
	if base == "." || base == ".." || base == string(filepath.Separator) {
		return fmt.Sprintf("file-%d", index+1)
	}
	return base
}

// List prints the bundles of the current user. Real names are encrypted and
// only shown by reveal.
func (a *App) List(ctx context.Context) error {
	bundles, err := a.vault.List(ctx, a.config.UserID)
	if err != nil {
		return err
	}
	if len(bundles) == 0 {
		fmt.Fprintln(a.out, "No hidden bundles")
		return nil
	}

	w := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tDISGUISED AS\tTYPE\tFILES\tSIZE\tCREATED")
	for _, b := range bundles {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\n",
			b.ID, b.DisguisedName, b.DisguiseMimeType, b.FileCount, bytesString(b.TotalSizeBytes),
			b.CreatedAt.Local().Format(time.DateTime))
	}
	return w.Flush()
}

// Delete removes a bundle after confirmation.
func (a *App) Delete(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("%w: delete <id>", errUsage)
	}

	answer, err := GetSimpleText(a.reader, fmt.Sprintf("Delete bundle %s? [y/N]", args[0]), a.out)
	if err != nil {
		return err
	}
	if !strings.EqualFold(answer, "y") && !strings.EqualFold(answer, "yes") {
		fmt.Fprintln(a.out, "Aborted")
		return nil
	}

	if err := a.vault.Delete(ctx, a.config.UserID, args[0]); err != nil {
		return err
	}
	fmt.Fprintln(a.out, success("Deleted %s", args[0]))
	return nil
}

// Status prints the subscription and storage usage.
func (a *App) Status(ctx context.Context) error {
	st, err := a.vault.Status(ctx, a.config.UserID)
	if err != nil {
		return err
	}

	sub := st.Subscription
	if sub == nil {
		fmt.Fprintln(a.out, "No subscription")
		fmt.Fprintln(a.out, hint("Run %s to start one", color.YellowString("subscribe <tier>")))
		return nil
	}

	w := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Tier:\t%s\n", sub.Tier)
	fmt.Fprintf(w, "Status:\t%s\n", sub.Status)
	fmt.Fprintf(w, "Storage:\t%s of %s used, %s available\n",
		bytesString(sub.StorageUsedBytes), bytesString(sub.StorageLimitBytes), bytesString(sub.AvailableBytes()))
	fmt.Fprintf(w, "Expires:\t%s\n", sub.ExpiresAt.Local().Format(time.DateTime))
	if sub.Status == models.StatusGracePeriod && sub.GracePeriodEndsAt != nil {
		fmt.Fprintf(w, "Grace ends:\t%s\n", sub.GracePeriodEndsAt.Local().Format(time.DateTime))
	}
	fmt.Fprintf(w, "Bundles:\t%d (%s)\n", st.BundleCount, bytesString(st.StoredBytes))
	if err := w.Flush(); err != nil {
		return err
	}

	if sub.Status != models.StatusActive {
		fmt.Fprintln(a.out, hint("%s", ledger.RemediationFor(sub.Status)))
	}
	return nil
}

// Subscribe starts a new billing period. Without a payment processor the CLI
// records the purchase itself.
func (a *App) Subscribe(ctx context.Context, args []string) error {
	tier := models.TierBasic
	if len(args) > 0 {
		tier = models.Tier(strings.ToLower(args[0]))
	}

	sub, err := a.ledger.Purchase(ctx, ledger.PurchaseRequest{
		UserID:       a.config.UserID,
		Tier:         tier,
		ExpiresAt:    a.ledger.Now().Add(a.config.SubscriptionPeriod),
		ReceiptMode:  "local",
		ReceiptLabel: "cli",
	})
	if err != nil {
		return err
	}

	fmt.Fprintln(a.out, success("Subscribed to %s, %s, until %s",
		sub.Tier, bytesString(sub.StorageLimitBytes), sub.ExpiresAt.Local().Format(time.DateTime)))
	return nil
}

// Cancel ends the current subscription after confirmation.
func (a *App) Cancel(ctx context.Context) error {
	answer, err := GetSimpleText(a.reader, "Cancel the subscription? Hidden bundles become inaccessible. [y/N]", a.out)
	if err != nil {
		return err
	}
	if !strings.EqualFold(answer, "y") && !strings.EqualFold(answer, "yes") {
		fmt.Fprintln(a.out, "Aborted")
		return nil
	}

	if _, err := a.ledger.Cancel(ctx, a.config.UserID); err != nil {
		return err
	}
	fmt.Fprintln(a.out, success("Subscription cancelled"))
	return nil
}
