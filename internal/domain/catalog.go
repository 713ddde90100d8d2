/**
 * @description
 * Static package catalog. Maps a purchasable package id to the credits and
 * tier label a completed checkout grants.
 *
 * @notes
 * - The catalog is built once at start-up and never mutated; it is the only
 *   state shared between concurrent webhook requests.
 */

package domain

import "strings"

// SubscriptionPrefix marks recurring packages.
const SubscriptionPrefix = "sub_"

// PackageEntitlement is what one purchase of a package is worth.
type PackageEntitlement struct {
	PhotoCredits int    `json:"photo_credits"`
	VideoCredits int    `json:"video_credits"`
	TierLabel    string `json:"tier_label"`
}

// Catalog is a read-only lookup table of package entitlements.
type Catalog struct {
	entries map[string]PackageEntitlement
}

// NewCatalog copies entries so later changes to the source map do not leak in.
func NewCatalog(entries map[string]PackageEntitlement) *Catalog {
	copied := make(map[string]PackageEntitlement, len(entries))
	for id, entitlement := range entries {
		copied[id] = entitlement
	}
	return &Catalog{entries: copied}
}

// DefaultCatalog holds the packages sold in the app.
var DefaultCatalog = NewCatalog(map[string]PackageEntitlement{
	"socialQuick":       {PhotoCredits: 5, VideoCredits: 0, TierLabel: "Social Quick"},
	"creatorPack":       {PhotoCredits: 30, VideoCredits: 0, TierLabel: "Creator Pack"},
	"professionalShoot": {PhotoCredits: 80, VideoCredits: 10, TierLabel: "Professional Shoot"},
	"agencyMaster":      {PhotoCredits: 200, VideoCredits: 50, TierLabel: "Agency / Master"},
	"sub_monthly_19":    {PhotoCredits: 30, VideoCredits: 0, TierLabel: "Starter Monthly"},
	"sub_monthly_49":    {PhotoCredits: 80, VideoCredits: 10, TierLabel: "Pro Monthly"},
	"sub_monthly_99":    {PhotoCredits: 200, VideoCredits: 50, TierLabel: "Elite Monthly"},
})

// Resolve returns the entitlement for packageID. A missing package is not an error.
func (c *Catalog) Resolve(packageID string) (PackageEntitlement, bool) {
	entitlement, ok := c.entries[packageID]
	return entitlement, ok
}

// IsSubscription reports whether packageID is a recurring package.
func (c *Catalog) IsSubscription(packageID string) bool {
	return strings.HasPrefix(packageID, SubscriptionPrefix)
}

// PackageIDs lists every known package id. Order is not stable.
func (c *Catalog) PackageIDs() []string {
	ids := make([]string, 0, len(c.entries))
	for id := range c.entries {
		ids = append(ids, id)
	}
	return ids
}
