package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/switchboard-labs/switchboard/internal/buildconfig"
)

// Pinger is satisfied by *pgxpool.Pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

type routeDoc struct {
	Method  string
	Path    string
	Tier    string
	Summary string
	Example string
}

var apiRoutes = []routeDoc{
	{"GET", "/health", "public", "Service health and mode", ""},
	{"GET", "/openapi.json", "public", "This document", ""},
	{"GET", "/integration-guide", "public", "Markdown integration guide", ""},
	{"POST", "/send-message", "agent", "Send SMS, email, WhatsApp or LINE; the channel is inferred from 'to' when omitted", `{"to": "+14155550100", "body": "Your order shipped"}`},
	{"POST", "/make-call", "agent", "Place an outbound AI voice call", `{"to": "+14155550100", "greeting": "Hi, calling about your appointment"}`},
	{"POST", "/call-on-behalf", "agent", "Call a target, then bridge in the requester", `{"target": "+14155550100", "requesterPhone": "+12125550100", "requesterName": "Dana"}`},
	{"POST", "/send-voice-message", "agent", "Synthesize text and deliver it as a voice call", `{"to": "+14155550100", "text": "Your package arrives tomorrow"}`},
	{"POST", "/transfer-call", "agent", "Transfer a live call", `{"callSid": "CA0123", "to": "+12125550100"}`},
	{"GET", "/waiting-messages", "agent", "Fetch and acknowledge failed deliveries and inbound messages", ""},
	{"GET", "/channel-status", "agent", "Per-channel provisioning and block state", ""},
	{"POST", "/agent-settings", "agent", "Update display name, language, voice, greeting or blocked channels", `{"language": "es-MX", "blockedChannels": ["whatsapp"]}`},
	{"GET", "/usage", "agent", "Usage counts by channel and action type (?period=today|week|month|all)", ""},
	{"GET", "/billing", "agent", "Provider cost, billed cost and revenue (?period=today|week|month|all)", ""},
	{"POST", "/agent-limits", "agent", "Override rate and spend ceilings", `{"limits": {"maxActionsPerMinute": 20}}`},
	{"POST", "/billing/config", "agent", "Set billing tier, markup or billing email", `{"tier": "starter"}`},
	{"POST", "/provision", "admin", "Provision an agent and its channels", `{"displayName": "Support Bot", "capabilities": {"phone": true, "email": true}}`},
	{"POST", "/deprovision", "admin", "Retire an agent and release its resources", `{"agentId": "agt_0123456789ab"}`},
	{"POST", "/onboard", "admin", "Provision an agent and return next steps", `{"displayName": "Support Bot", "capabilities": ["phone", "email"]}`},
	{"GET", "/agents/{id}/tokens", "agent", "List an agent's tokens (metadata only)", ""},
	{"POST", "/agents/{id}/regenerate-token", "agent", "Revoke every token of the agent and issue a new one", `{"label": "rotated"}`},
	{"POST", "/organizations", "orchestrator", "Create an organization and its token", `{"orgId": "acme", "name": "Acme Support"}`},
	{"POST", "/compliance/dnc", "admin", "Add a do-not-contact entry", `{"target": "+14155550100", "kind": "phone", "reason": "opted out"}`},
	{"DELETE", "/compliance/dnc", "admin", "Remove a do-not-contact entry", `{"target": "+14155550100", "kind": "phone"}`},
	{"POST", "/compliance/disclosure", "admin", "Turn the AI disclosure off or on for an organization", `{"orgId": "acme", "disabled": true}`},
	{"GET", "/audit-log", "admin", "Audit entries, newest first (?eventType=&target=&limit=&before=)", ""},
	{"GET", "/pool", "orchestrator", "Agent pool and WhatsApp sender availability", ""},
	{"POST", "/webhooks/{agentId}/sms", "provider", "Inbound SMS; queued for waiting-messages", ""},
	{"POST", "/webhooks/{agentId}/voice", "provider", "Inbound call; logged and queued for waiting-messages", ""},
	{"POST", "/webhooks/{agentId}/voice/status", "provider", "Call status callback (CallSid, CallStatus)", ""},
}

func rawExample(s string) json.RawMessage {
	return json.RawMessage(s)
}

type MetaHandler struct {
	db       Pinger
	demo     bool
	provider string
	store    string
}

// NewMetaHandler serves the public endpoints. db may be nil when the gateway
// runs on the in-memory store.
func NewMetaHandler(db Pinger, demo bool, provider, store string) *MetaHandler {
	return &MetaHandler{db: db, demo: demo, provider: provider, store: store}
}

func (h *MetaHandler) mode() string {
	if h.demo {
		return "demo"
	}
	return "live"
}

func (h *MetaHandler) Health(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{
		"status":   "ok",
		"mode":     h.mode(),
		"provider": h.provider,
		"store":    h.store,
		"version":  buildconfig.Version(),
		"commit":   buildconfig.Commit(),
	}
	if d := buildconfig.BuildDate(); d != "" {
		body["buildDate"] = d
	}
	if h.db != nil {
		if err := h.db.Ping(r.Context()); err != nil {
			body["status"] = "error"
			body["error"] = err.Error()
			writeJSON(w, http.StatusServiceUnavailable, body)
			return
		}
	}
	writeJSON(w, http.StatusOK, body)
}

func (h *MetaHandler) OpenAPI(w http.ResponseWriter, r *http.Request) {
	paths := map[string]map[string]any{}
	for _, rt := range apiRoutes {
		op := map[string]any{
			"summary": rt.Summary,
			"tags":    []string{rt.Tier},
			"responses": map[string]any{
				"200": map[string]any{"description": "Success; the body carries \"success\": true"},
				"400": map[string]any{"description": "Invalid input; the error names the field and an example payload"},
				"403": map[string]any{"description": "Credential rejected, out of scope, or compliance refusal"},
				"429": map[string]any{"description": "A rate or spend ceiling was reached"},
			},
		}
		if rt.Tier != "public" && rt.Tier != "provider" {
			op["security"] = []map[string][]string{{"bearer": {}}}
		}
		if rt.Example != "" {
			op["requestBody"] = map[string]any{
				"content": map[string]any{
					"application/json": map[string]any{"example": rawExample(rt.Example)},
				},
			}
		}
		if paths[rt.Path] == nil {
			paths[rt.Path] = map[string]any{}
		}
		paths[rt.Path][strings.ToLower(rt.Method)] = op
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"openapi": "3.1.0",
		"info": map[string]any{
			"title":   "Switchboard API",
			"version": buildconfig.Version(),
		},
		"servers": []map[string]string{{"url": "/api/v1"}},
		"components": map[string]any{
			"securitySchemes": map[string]any{
				"bearer": map[string]string{"type": "http", "scheme": "bearer"},
			},
		},
		"paths": paths,
	})
}

func (h *MetaHandler) IntegrationGuide(w http.ResponseWriter, r *http.Request) {
	var b strings.Builder
	b.WriteString("# Switchboard integration guide\n\n")
	b.WriteString("All endpoints live under `/api/v1`. Send `Authorization: Bearer <token>` on every call except the public ones.\n\n")
	b.WriteString("## Credentials\n\n")
	b.WriteString("- **orchestrator**: the operator token. Full access.\n")
	b.WriteString("- **organization** (`sbo_...`): manages agents and compliance settings inside one organization.\n")
	b.WriteString("- **agent** (`sbk_...`): returned once by `/provision`. Acts as that agent only; `agentId` may be omitted.\n")
	b.WriteString("- **provider**: telephony callbacks under `/webhooks`. No bearer token; when a webhook secret is configured, send it as `X-Webhook-Secret` or `?token=`.\n\n")
	if h.demo {
		b.WriteString("This instance runs in demo mode: `demo-admin` is accepted as the orchestrator token and providers are simulated.\n\n")
	}
	b.WriteString("## Errors\n\n")
	b.WriteString("Errors are JSON `{\"error\": \"...\"}`. Missing fields come back as 400 with an example payload. ")
	b.WriteString("Rate and spend ceilings return 429 with `Retry-After`. Compliance refusals return 403 with the check that failed.\n\n")
	b.WriteString("## Endpoints\n\n")
	b.WriteString("| Method | Path | Credential | Description |\n|---|---|---|---|\n")
	for _, rt := range apiRoutes {
		fmt.Fprintf(&b, "| %s | `%s` | %s | %s |\n", rt.Method, rt.Path, rt.Tier, rt.Summary)
	}
	b.WriteString("\n## Examples\n\n")
	for _, rt := range apiRoutes {
		if rt.Example == "" {
			continue
		}
		fmt.Fprintf(&b, "`%s %s`\n\n```json\n%s\n```\n\n", rt.Method, rt.Path, rt.Example)
	}

	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(b.String()))
}
