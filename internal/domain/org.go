package domain

import "time"

// DefaultOrgID is the organization agents land in when an orchestrator
// provisions without naming one.
const DefaultOrgID = "default"

type Organization struct {
	ID                   string     `json:"orgId"`
	Name                 string     `json:"name"`
	TokenHash            string     `json:"-"`
	DisclosureDisabled   bool       `json:"disclosureDisabled"`
	DisclosureDisabledAt *time.Time `json:"disclosureDisabledAt,omitempty"`
	DisclosureDisabledBy *string    `json:"disclosureDisabledBy,omitempty"`
	CreatedAt            time.Time  `json:"createdAt"`
}
