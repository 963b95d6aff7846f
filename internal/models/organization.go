package models

import "time"

// OrganizationStatus captures the standing of a recruiting organization.
type OrganizationStatus string

const (
	OrganizationActive      OrganizationStatus = "ACTIVE"
	OrganizationBlacklisted OrganizationStatus = "BLACKLISTED"
)

// Organization is a recruiting company registered with the placement office.
// Blacklisting is a sensitive action that only the dual-control workflow may
// perform.
type Organization struct {
	ID              string             `db:"id" json:"id"`
	Name            string             `db:"name" json:"name"`
	Status          OrganizationStatus `db:"status" json:"status"`
	BlacklistReason *string            `db:"blacklist_reason" json:"blacklist_reason,omitempty"`
	CreatedAt       time.Time          `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time          `db:"updated_at" json:"updated_at"`
}
