package notify

import (
	"fmt"
	"time"

	"github.com/Rhymond/go-money"

	"github.com/alanyoungcy/btcbasis/internal/domain"
)

// FormatUSD renders an amount as a USD display string, e.g. "$12,333.33".
func FormatUSD(c domain.Cents) string {
	return money.New(int64(c), money.USD).Display()
}

// InsufficientInventory builds the alert for a disposal that exceeded the
// tenant's open lots.
func InsufficientInventory(tenantID string, r *domain.CostBasisResult) (title, message string) {
	short := r.AmountRequested.Sub(r.AmountMatched)
	title = "Insufficient BTC inventory"
	message = fmt.Sprintf(
		"tenant %s disposal %s requested %s BTC, matched %s BTC (short %s BTC); matched cost basis %s",
		tenantID, r.DisposalID,
		r.AmountRequested.StringFixed(8), r.AmountMatched.StringFixed(8), short.StringFixed(8),
		FormatUSD(domain.CentsFromUSD(r.TotalCostBasisUSD)),
	)
	return title, message
}

// RateFetchFailed builds the alert for a day whose rate could not be fetched.
func RateFetchFailed(day time.Time, err error) (title, message string) {
	return "BTC rate fetch failed", fmt.Sprintf("%s: %v", domain.DayKey(day), err)
}

// ExportCompleted builds the notice for a finished allocation export.
func ExportCompleted(tenantID string, res domain.ExportResult) (title, message string) {
	return "Allocation export ready", fmt.Sprintf("tenant %s: %d records at %s", tenantID, res.Records, res.Path)
}
