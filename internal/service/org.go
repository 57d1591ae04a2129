package service

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/switchboard-labs/switchboard/internal/domain"
	"github.com/switchboard-labs/switchboard/internal/store"
	"go.uber.org/zap"
)

type CreateOrganizationResult struct {
	Organization *domain.Organization `json:"organization"`
	// Token is the plaintext organization credential, shown only here.
	Token string `json:"token"`
}

type OrganizationService struct {
	orgs   domain.OrganizationStore
	auth   *AuthResolver
	audit  *AuditLogger
	logger *zap.Logger
}

func NewOrganizationService(orgs domain.OrganizationStore, auth *AuthResolver, audit *AuditLogger, logger *zap.Logger) *OrganizationService {
	return &OrganizationService{orgs: orgs, auth: auth, audit: audit, logger: logger}
}

func newOrgID() string {
	return "org_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}

// Create registers an organization and issues its bearer credential.
func (s *OrganizationService) Create(ctx context.Context, auth *domain.AuthInfo, id, name string) (*CreateOrganizationResult, error) {
	if err := s.auth.RequireOrchestrator(auth); err != nil {
		return nil, err
	}
	example := `{"name": "Acme Support"}`
	name, err := requireText("name", name, maxNameLength, example)
	if err != nil {
		return nil, err
	}
	if id == "" {
		id = newOrgID()
	} else if !agentIDRe.MatchString(id) {
		return nil, &domain.SanitizationError{
			Field:   "orgId",
			Message: "invalid orgId " + id + ": use 1-64 letters, digits, '_' or '-'",
			Example: `{"orgId": "acme", "name": "Acme Support"}`,
		}
	}

	plaintext, err := generateSecret(OrgTokenPrefix)
	if err != nil {
		return nil, err
	}
	org := &domain.Organization{ID: id, Name: strings.TrimSpace(name), TokenHash: HashToken(plaintext)}
	if err := s.orgs.Create(ctx, org); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return nil, ErrOrganizationExists
		}
		return nil, err
	}

	s.audit.LogBestEffort(ctx, domain.AuditOrganizationCreated, auth.Actor(), org.ID, map[string]any{"name": org.Name})
	s.logger.Info("organization created", zap.String("org_id", org.ID))
	return &CreateOrganizationResult{Organization: org, Token: plaintext}, nil
}
