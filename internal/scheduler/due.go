// Package scheduler decides which tracked products are due for a new price
// lookup and drives the periodic refresh check.
package scheduler

import (
	"sort"
	"strings"
	"time"
)

// DefaultUpdateInterval applies to products without a positive interval
const DefaultUpdateInterval = 12 * time.Hour

// ProductRefreshState is the refresh bookkeeping of one tracked product.
// LastScrapedAt is nil when the product was never scraped successfully.
type ProductRefreshState struct {
	ProductID           int64
	Name                string
	Category            string
	IsFrequent          bool
	UpdateIntervalHours int
	LastScrapedAt       *time.Time
}

// Interval returns the product's refresh cadence
func (p ProductRefreshState) Interval() time.Duration {
	if p.UpdateIntervalHours <= 0 {
		return DefaultUpdateInterval
	}
	return time.Duration(p.UpdateIntervalHours) * time.Hour
}

// IsDue reports whether p needs a new lookup at now
func IsDue(p ProductRefreshState, now time.Time) bool {
	if p.LastScrapedAt == nil {
		return true
	}
	return now.Sub(*p.LastScrapedAt) > p.Interval()
}

// ProductsDue returns the products due at now, frequent products first and
// then by name. The input is not modified.
func ProductsDue(products []ProductRefreshState, now time.Time) []ProductRefreshState {
	due := make([]ProductRefreshState, 0, len(products))
	for _, p := range products {
		if IsDue(p, now) {
			due = append(due, p)
		}
	}

	sort.SliceStable(due, func(i, j int) bool {
		if due[i].IsFrequent != due[j].IsFrequent {
			return due[i].IsFrequent
		}
		return strings.ToLower(due[i].Name) < strings.ToLower(due[j].Name)
	})
	return due
}
