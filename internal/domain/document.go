package domain

import "time"

// Document is the contract PDF tracked by a contract record.
// Identity is the contract id; URL is the canonical location.
type Document struct {
	// ContractID identifies the owning contract.
	ContractID string `json:"contract_id"`

	// OrganizationID is the tenant owning the contract.
	OrganizationID string `json:"organization_id"`

	// URL is the canonical location, empty when no PDF was stored yet.
	URL string `json:"url,omitempty"`

	// Size is the last known byte size of the canonical copy.
	Size int64 `json:"size"`

	// UpdatedAt is when the location was last changed.
	UpdatedAt time.Time `json:"updated_at"`
}

// HasLocation reports whether the document has a canonical URL.
func (d *Document) HasLocation() bool {
	return d != nil && d.URL != ""
}

// BelongsTo reports whether the document is owned by organizationID.
func (d *Document) BelongsTo(organizationID string) bool {
	return d != nil && d.OrganizationID == organizationID
}
