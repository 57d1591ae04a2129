package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/switchboard-labs/switchboard/internal/domain"
	"github.com/switchboard-labs/switchboard/internal/metrics"
	"github.com/switchboard-labs/switchboard/internal/saga"
	"github.com/switchboard-labs/switchboard/internal/store"
	"go.uber.org/zap"
)

const (
	defaultLanguage   = "en-US"
	defaultCountry    = "US"
	provisionSaga     = "provision"
	defaultTokenLabel = "default"
)

const provisionExample = `{"displayName": "Support Bot", "capabilities": {"phone": true, "email": true}}`

type ProvisionRequest struct {
	AgentID      string
	DisplayName  string
	OrgID        string
	Capabilities domain.Capabilities
	// CapabilitiesSet distinguishes an omitted capabilities field from one
	// with every capability off.
	CapabilitiesSet bool
	Country         string
	Language        string
	Greeting        string
	Voice           string
}

type ProvisionResult struct {
	AgentID        string                        `json:"agentId"`
	OrgID          string                        `json:"orgId"`
	DisplayName    string                        `json:"displayName"`
	SecurityToken  string                        `json:"securityToken"`
	PhoneNumber    *string                       `json:"phoneNumber,omitempty"`
	EmailAddress   *string                       `json:"emailAddress,omitempty"`
	WhatsAppNumber *string                       `json:"whatsappNumber,omitempty"`
	WhatsAppStatus domain.WhatsAppStatus         `json:"whatsappStatus"`
	Channels       map[string]domain.ChannelInfo `json:"channels"`
	GenderContext  *domain.GenderContext         `json:"genderContext,omitempty"`
}

type DeprovisionResult struct {
	AgentID        string             `json:"agentId"`
	Status         domain.AgentStatus `json:"status"`
	NumberReleased bool               `json:"numberReleased"`
	SenderReturned bool               `json:"whatsappSenderReturned"`
	TokensRevoked  int64              `json:"tokensRevoked"`
	Warnings       []string           `json:"warnings"`
}

type OnboardResult struct {
	Provisioning *ProvisionResult  `json:"provisioning"`
	NextSteps    []string          `json:"nextSteps"`
	Docs         map[string]string `json:"docs"`
}

// ProvisioningService creates and retires agents. Provisioning runs as a
// saga: each completed step registers its undo, and a failure rolls every
// completed step back before the error is returned.
type ProvisioningService struct {
	agents      domain.AgentStore
	orgs        domain.OrganizationStore
	auth        *AuthResolver
	tokens      *TokenManager
	pool        *PoolManager
	limiter     *Limiter
	audit       *AuditLogger
	emailDomain string
	metrics     *metrics.Metrics
	logger      *zap.Logger
	now         Clock
	sagaOpts    []saga.Option
}

func NewProvisioningService(agents domain.AgentStore, orgs domain.OrganizationStore, auth *AuthResolver, tokens *TokenManager, pool *PoolManager, limiter *Limiter, audit *AuditLogger, emailDomain string, m *metrics.Metrics, logger *zap.Logger) *ProvisioningService {
	return &ProvisioningService{
		agents:      agents,
		orgs:        orgs,
		auth:        auth,
		tokens:      tokens,
		pool:        pool,
		limiter:     limiter,
		audit:       audit,
		emailDomain: emailDomain,
		metrics:     m,
		logger:      logger,
		now:         utcNow,
	}
}

func (s *ProvisioningService) SetClock(c Clock) {
	s.now = c
}

// SetSagaOptions overrides the compensation timeout and retry policy.
func (s *ProvisioningService) SetSagaOptions(opts ...saga.Option) {
	s.sagaOpts = opts
}

func newAgentID() string {
	return "agt_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}

func (s *ProvisioningService) normalize(auth *domain.AuthInfo, req ProvisionRequest) (ProvisionRequest, error) {
	name, err := requireText("displayName", req.DisplayName, maxNameLength, provisionExample)
	if err != nil {
		return req, err
	}
	req.DisplayName = strings.TrimSpace(name)

	if !req.CapabilitiesSet {
		return req, domain.MissingField("capabilities", provisionExample)
	}
	if !req.Capabilities.Any() {
		return req, &domain.SanitizationError{
			Field:   "capabilities",
			Message: "at least one capability (phone, whatsapp, email, voiceAi) must be requested",
			Example: provisionExample,
		}
	}

	if req.AgentID == "" {
		req.AgentID = newAgentID()
	} else if err := validateAgentID(req.AgentID); err != nil {
		return req, err
	}

	switch {
	case auth.Tier == domain.TierOrganization && req.OrgID == "":
		req.OrgID = auth.OrgID
	case req.OrgID == "":
		req.OrgID = domain.DefaultOrgID
	}
	if err := s.auth.RequireOrgScope(auth, req.OrgID); err != nil {
		return req, err
	}

	if req.Language == "" {
		req.Language = defaultLanguage
	}
	if err := validateLanguage(req.Language); err != nil {
		return req, err
	}
	req.Country = strings.ToUpper(strings.TrimSpace(req.Country))
	if req.Country == "" {
		req.Country = defaultCountry
	}
	if req.Greeting, err = cleanText("greeting", req.Greeting, maxGreetingLength); err != nil {
		return req, err
	}
	if req.Voice, err = cleanText("voice", req.Voice, maxNameLength); err != nil {
		return req, err
	}
	return req, nil
}

// Provision creates an agent with the requested channel resources. Once the
// first resource is leased the saga runs detached from ctx's cancellation,
// so a disconnecting caller cannot leave a half-built agent behind.
func (s *ProvisioningService) Provision(ctx context.Context, auth *domain.AuthInfo, req ProvisionRequest) (*ProvisionResult, error) {
	if err := s.auth.RequireAdmin(auth); err != nil {
		return nil, err
	}
	req, err := s.normalize(auth, req)
	if err != nil {
		return nil, err
	}

	if _, err := s.orgs.GetByID(ctx, req.OrgID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrOrganizationNotFound
		}
		return nil, fmt.Errorf("load organization: %w", err)
	}
	exists, err := s.agents.Exists(ctx, req.AgentID)
	if err != nil {
		return nil, fmt.Errorf("check agent id: %w", err)
	}
	if exists {
		return nil, ErrAgentExists
	}
	if err := s.pool.CheckCapacity(ctx); err != nil {
		return nil, err
	}

	ctx = context.WithoutCancel(ctx)
	sg := saga.New(provisionSaga, s.logger, s.sagaOpts...)

	agent := &domain.Agent{
		ID:              req.AgentID,
		DisplayName:     req.DisplayName,
		OrgID:           req.OrgID,
		WhatsAppStatus:  domain.WhatsAppInactive,
		Language:        req.Language,
		Voice:           req.Voice,
		Greeting:        req.Greeting,
		VoiceAI:         req.Capabilities.VoiceAI,
		Status:          domain.AgentStatusActive,
		BlockedChannels: []string{},
		BillingTier:     domain.BillingTierFree,
	}
	if req.Capabilities.Email {
		email := strings.ToLower(agent.ID + "@" + s.emailDomain)
		agent.EmailAddress = &email
	}

	if req.Capabilities.Phone || req.Capabilities.VoiceAI {
		err := sg.Step(ctx, "lease_number", func(ctx context.Context) error {
			number, err := s.pool.SearchAndBuy(ctx, req.Country, domain.NumberCapabilities{SMS: true, Voice: true})
			if err != nil {
				return err
			}
			agent.PhoneNumber = &number
			return nil
		}, func(ctx context.Context) error {
			return s.pool.Release(ctx, *agent.PhoneNumber)
		})
		if err != nil {
			return nil, s.abort(ctx, sg, auth, agent.ID, err)
		}
		err = sg.Step(ctx, "configure_webhook", func(ctx context.Context) error {
			return s.pool.ConfigureWebhook(ctx, *agent.PhoneNumber, agent.ID)
		}, nil)
		if err != nil {
			return nil, s.abort(ctx, sg, auth, agent.ID, err)
		}
	}

	err = sg.Step(ctx, "create_agent", func(ctx context.Context) error {
		if err := s.agents.Create(ctx, agent); err != nil {
			if errors.Is(err, store.ErrConflict) {
				return ErrAgentExists
			}
			return err
		}
		return nil
	}, func(ctx context.Context) error {
		return s.agents.Delete(ctx, agent.ID)
	})
	if err != nil {
		return nil, s.abort(ctx, sg, auth, agent.ID, err)
	}

	if req.Capabilities.WhatsApp {
		var sender *domain.WhatsAppSender
		err := sg.Step(ctx, "assign_whatsapp", func(ctx context.Context) error {
			var err error
			sender, err = s.pool.AssignFromPool(ctx, agent.ID)
			return err
		}, func(ctx context.Context) error {
			if sender == nil {
				return nil
			}
			_, err := s.pool.ReturnToPool(ctx, agent.ID)
			return err
		})
		if err != nil {
			return nil, s.abort(ctx, sg, auth, agent.ID, err)
		}
		err = sg.Step(ctx, "record_whatsapp", func(ctx context.Context) error {
			status := domain.WhatsAppUnavailable
			if sender != nil {
				status = domain.WhatsAppActive
			}
			if err := s.agents.SetWhatsApp(ctx, agent.ID, sender, status); err != nil {
				return err
			}
			agent.WhatsAppStatus = status
			if sender != nil {
				agent.WhatsAppSenderID = &sender.SenderID
				agent.WhatsAppNumber = &sender.PhoneNumber
			}
			return nil
		}, nil)
		if err != nil {
			return nil, s.abort(ctx, sg, auth, agent.ID, err)
		}
	}

	err = sg.Step(ctx, "reserve_capacity", func(ctx context.Context) error {
		return s.pool.IncrementActive(ctx)
	}, func(ctx context.Context) error {
		return s.pool.DecrementActive(ctx)
	})
	if err != nil {
		return nil, s.abort(ctx, sg, auth, agent.ID, err)
	}

	var plaintext string
	err = sg.Step(ctx, "issue_token", func(ctx context.Context) error {
		raw, hash, err := s.tokens.Issue()
		if err != nil {
			return err
		}
		if _, err := s.tokens.Store(ctx, agent.ID, agent.OrgID, hash, defaultTokenLabel); err != nil {
			return err
		}
		plaintext = raw
		return nil
	}, func(ctx context.Context) error {
		_, err := s.tokens.RevokeAll(ctx, agent.ID)
		return err
	})
	if err != nil {
		return nil, s.abort(ctx, sg, auth, agent.ID, err)
	}

	err = sg.Step(ctx, "spending_limits", func(ctx context.Context) error {
		return s.limiter.InitDefaults(ctx, agent.ID)
	}, func(ctx context.Context) error {
		return s.limiter.DeleteLimits(ctx, agent.ID)
	})
	if err != nil {
		return nil, s.abort(ctx, sg, auth, agent.ID, err)
	}

	err = sg.Step(ctx, "audit", func(ctx context.Context) error {
		_, err := s.audit.Log(ctx, domain.AuditAgentProvisioned, auth.Actor(), agent.ID, map[string]any{
			"orgId":        agent.OrgID,
			"displayName":  agent.DisplayName,
			"capabilities": req.Capabilities,
			"phoneNumber":  agent.PhoneNumber,
			"whatsapp":     agent.WhatsAppStatus,
		})
		return err
	}, nil)
	if err != nil {
		return nil, s.abort(ctx, sg, auth, agent.ID, err)
	}

	s.metrics.SagaOutcome(provisionSaga, "completed")
	s.logger.Info("agent provisioned",
		zap.String("agent_id", agent.ID),
		zap.String("org_id", agent.OrgID),
		zap.Strings("steps", sg.Completed()))

	return &ProvisionResult{
		AgentID:        agent.ID,
		OrgID:          agent.OrgID,
		DisplayName:    agent.DisplayName,
		SecurityToken:  plaintext,
		PhoneNumber:    agent.PhoneNumber,
		EmailAddress:   agent.EmailAddress,
		WhatsAppNumber: agent.WhatsAppNumber,
		WhatsAppStatus: agent.WhatsAppStatus,
		Channels:       agent.StatusView().Channels,
		GenderContext:  domain.GenderContextFor(agent.Language),
	}, nil
}

// abort compensates every completed step and wraps the failure.
func (s *ProvisioningService) abort(ctx context.Context, sg *saga.Saga, auth *domain.AuthInfo, agentID string, err error) error {
	step := "unknown"
	cause := err
	var stepErr *saga.StepError
	if errors.As(err, &stepErr) {
		step = stepErr.Step
		cause = stepErr.Err
	}
	s.metrics.SagaStepFailed(provisionSaga, step)

	compErr := sg.Compensate(ctx)
	outcome := "compensated"
	if compErr != nil {
		outcome = "compensation_failed"
	}
	s.metrics.SagaOutcome(provisionSaga, outcome)
	s.logger.Error("provisioning failed",
		zap.String("agent_id", agentID),
		zap.String("step", step),
		zap.Error(cause),
		zap.NamedError("compensation_error", compErr))

	details := map[string]any{"step": step, "error": cause.Error()}
	if compErr != nil {
		details["compensationError"] = compErr.Error()
	}
	s.audit.LogBestEffort(ctx, domain.AuditAgentProvisionFailed, auth.Actor(), agentID, details)

	return &domain.ProvisioningError{AgentID: agentID, Step: step, Err: cause, CompensationErr: compErr}
}

// Deprovision retires an agent. Releasing the number, returning the sender,
// dropping limits and freeing capacity are best-effort and reported as
// warnings; revoking tokens and flipping the status are not.
func (s *ProvisioningService) Deprovision(ctx context.Context, auth *domain.AuthInfo, agentID string, releaseNumber bool) (*DeprovisionResult, error) {
	if err := s.auth.RequireAdmin(auth); err != nil {
		return nil, err
	}
	if agentID == "" {
		return nil, domain.MissingField("agentId", `{"agentId": "agt_0123456789ab", "releaseNumber": true}`)
	}
	agent, err := s.auth.RequireAgentInOrg(ctx, auth, agentID)
	if err != nil {
		return nil, err
	}
	if !agent.IsActive() {
		return nil, ErrAgentDeprovisioned
	}
	ctx = context.WithoutCancel(ctx)

	res := &DeprovisionResult{AgentID: agent.ID, Warnings: []string{}}
	warn := func(msg string, err error) {
		s.logger.Warn(msg, zap.String("agent_id", agent.ID), zap.Error(err))
		res.Warnings = append(res.Warnings, fmt.Sprintf("%s: %v", msg, err))
	}

	if releaseNumber && agent.PhoneNumber != nil {
		if err := s.pool.Release(ctx, *agent.PhoneNumber); err != nil {
			warn("phone number was not released", err)
		} else {
			res.NumberReleased = true
		}
	}

	returned, err := s.pool.ReturnToPool(ctx, agent.ID)
	if err != nil {
		warn("whatsapp sender was not returned", err)
	}
	res.SenderReturned = returned

	res.TokensRevoked, err = s.tokens.RevokeAll(ctx, agent.ID)
	if err != nil {
		return nil, fmt.Errorf("revoke tokens: %w", err)
	}

	if err := s.limiter.DeleteLimits(ctx, agent.ID); err != nil && !errors.Is(err, store.ErrNotFound) {
		warn("spending limits were not removed", err)
	}

	if err := s.agents.MarkDeprovisioned(ctx, agent.ID, s.now()); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrAgentDeprovisioned
		}
		return nil, fmt.Errorf("mark deprovisioned: %w", err)
	}
	res.Status = domain.AgentStatusDeprovisioned

	if err := s.pool.DecrementActive(ctx); err != nil {
		warn("agent pool counter was not decremented", err)
	}

	s.audit.LogBestEffort(ctx, domain.AuditAgentDeprovisioned, auth.Actor(), agent.ID, map[string]any{
		"numberReleased": res.NumberReleased,
		"senderReturned": res.SenderReturned,
		"tokensRevoked":  res.TokensRevoked,
		"warnings":       res.Warnings,
	})
	s.logger.Info("agent deprovisioned",
		zap.String("agent_id", agent.ID),
		zap.Int("warnings", len(res.Warnings)))
	return res, nil
}

// Onboard provisions an agent and returns the steps an operator takes next.
func (s *ProvisioningService) Onboard(ctx context.Context, auth *domain.AuthInfo, req ProvisionRequest) (*OnboardResult, error) {
	res, err := s.Provision(ctx, auth, req)
	if err != nil {
		return nil, err
	}

	steps := []string{
		"Store the securityToken now. It is shown only once; use POST /api/v1/agents/" + res.AgentID + "/regenerate-token to replace it.",
		"Send requests with the header 'Authorization: Bearer <securityToken>'.",
		"Check GET /api/v1/channel-status to confirm which channels are live.",
	}
	if res.PhoneNumber != nil {
		steps = append(steps, "Send a test SMS with POST /api/v1/send-message from "+*res.PhoneNumber+".")
	}
	if res.EmailAddress != nil {
		steps = append(steps, "Email is sent from "+*res.EmailAddress+"; use channel \"email\" in POST /api/v1/send-message.")
	}
	if res.WhatsAppStatus == domain.WhatsAppUnavailable {
		steps = append(steps, "No WhatsApp sender was free; WhatsApp stays unavailable until one is assigned.")
	}
	steps = append(steps, "Review your ceilings with POST /api/v1/agent-limits and spend with GET /api/v1/billing.")

	return &OnboardResult{
		Provisioning: res,
		NextSteps:    steps,
		Docs: map[string]string{
			"openapi":          "/api/v1/openapi.json",
			"integrationGuide": "/api/v1/integration-guide",
		},
	}, nil
}
