package domain

import (
	"fmt"
	"strconv"
)

// AuthError means the credential is missing, invalid, or out of scope for
// the requested operation.
type AuthError struct {
	Credential string
	Reason     string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authorization failed for credential %s: %s", e.Credential, e.Reason)
}

// SanitizationError rejects malformed or unsafe input before any side effect.
type SanitizationError struct {
	Field   string
	Message string
	Example string
}

func (e *SanitizationError) Error() string {
	if e.Example == "" {
		return e.Message
	}
	return e.Message + "\nExample payload: " + e.Example
}

// MissingField builds the error for an absent required field, carrying an
// example payload so the caller can fix the request without reading source.
func MissingField(field, example string) *SanitizationError {
	return &SanitizationError{
		Field:   field,
		Message: fmt.Sprintf("missing required field %q", field),
		Example: example,
	}
}

// RateLimitError reports the first ceiling an action would breach.
type RateLimitError struct {
	Limit   string
	Current float64
	Max     float64
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded: %s is %s, current usage is %s",
		e.Limit, formatAmount(e.Max), formatAmount(e.Current))
}

func formatAmount(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// ComplianceError carries the reason a compliance check refused an action.
type ComplianceError struct {
	Check  string
	Reason string
}

func (e *ComplianceError) Error() string {
	return "compliance check failed (" + e.Check + "): " + e.Reason
}

// ProvisioningError is returned after a failed provisioning saga has already
// been compensated. Its message is the original step error.
type ProvisioningError struct {
	AgentID         string
	Step            string
	Err             error
	CompensationErr error
}

func (e *ProvisioningError) Error() string {
	return e.Err.Error()
}

func (e *ProvisioningError) Unwrap() error {
	return e.Err
}

// ProviderError wraps a downstream provider failure that happened after the
// action passed gating. The attempt is recorded as a dead letter first.
type ProviderError struct {
	Capability   string
	DeadLetterID string
	Err          error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s provider failed: %v", e.Capability, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}
