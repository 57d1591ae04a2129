package domain

import "time"

type ContactKind string

const (
	ContactPhone  ContactKind = "phone"
	ContactEmail  ContactKind = "email"
	ContactHandle ContactKind = "handle"
)

// ContactKindFor maps a channel to the registry kind its targets are filed under.
func ContactKindFor(c Channel) ContactKind {
	switch c {
	case ChannelEmail:
		return ContactEmail
	case ChannelLine:
		return ContactHandle
	default:
		return ContactPhone
	}
}

// DNCEntry is a do-not-contact registration. A nil OrgID applies platform-wide.
type DNCEntry struct {
	Target    string      `json:"target"`
	Kind      ContactKind `json:"kind"`
	OrgID     *string     `json:"orgId,omitempty"`
	Reason    string      `json:"reason,omitempty"`
	CreatedAt time.Time   `json:"createdAt"`
}

// ComplianceResult is the outcome of one compliance check. Check names the
// rule that refused the action.
type ComplianceResult struct {
	Allowed bool   `json:"allowed"`
	Check   string `json:"check,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

func Allow() ComplianceResult {
	return ComplianceResult{Allowed: true}
}

func Deny(check, reason string) ComplianceResult {
	return ComplianceResult{Check: check, Reason: reason}
}

// Err returns a *ComplianceError for a denial and nil otherwise.
func (r ComplianceResult) Err() error {
	if r.Allowed {
		return nil
	}
	return &ComplianceError{Check: r.Check, Reason: r.Reason}
}
