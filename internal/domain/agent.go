package domain

import (
	"slices"
	"strings"
	"time"
)

type AgentStatus string

const (
	AgentStatusActive        AgentStatus = "active"
	AgentStatusDeprovisioned AgentStatus = "deprovisioned"
)

type WhatsAppStatus string

const (
	WhatsAppInactive    WhatsAppStatus = "inactive"
	WhatsAppActive      WhatsAppStatus = "active"
	WhatsAppUnavailable WhatsAppStatus = "unavailable"
)

type Channel string

const (
	ChannelSMS      Channel = "sms"
	ChannelEmail    Channel = "email"
	ChannelWhatsApp Channel = "whatsapp"
	ChannelLine     Channel = "line"
	ChannelVoice    Channel = "voice"
)

// BlockAllChannels in an agent's blocked set blocks every channel.
const BlockAllChannels = "*"

func ValidMessageChannel(c string) bool {
	switch Channel(c) {
	case ChannelSMS, ChannelEmail, ChannelWhatsApp, ChannelLine:
		return true
	}
	return false
}

func ValidChannel(c string) bool {
	return c == BlockAllChannels || ValidMessageChannel(c) || Channel(c) == ChannelVoice
}

type Agent struct {
	ID               string         `json:"agentId"`
	DisplayName      string         `json:"displayName"`
	OrgID            string         `json:"orgId"`
	PhoneNumber      *string        `json:"phoneNumber,omitempty"`
	WhatsAppSenderID *string        `json:"whatsappSenderId,omitempty"`
	WhatsAppNumber   *string        `json:"whatsappNumber,omitempty"`
	WhatsAppStatus   WhatsAppStatus `json:"whatsappStatus"`
	EmailAddress     *string        `json:"emailAddress,omitempty"`
	Language         string         `json:"language"`
	Voice            string         `json:"voice,omitempty"`
	Greeting         string         `json:"greeting,omitempty"`
	VoiceAI          bool           `json:"voiceAi"`
	Status           AgentStatus    `json:"status"`
	BlockedChannels  []string       `json:"blockedChannels"`
	BillingTier      BillingTier    `json:"billingTier"`
	MarkupPercent    *float64       `json:"markupPercent,omitempty"`
	BillingEmail     *string        `json:"billingEmail,omitempty"`
	CreatedAt        time.Time      `json:"createdAt"`
	UpdatedAt        time.Time      `json:"updatedAt"`
	DeprovisionedAt  *time.Time     `json:"deprovisionedAt,omitempty"`
}

func (a *Agent) IsActive() bool {
	return a.Status == AgentStatusActive
}

// IsChannelBlocked reports whether the channel is in the agent's blocked set,
// either by name or through the wildcard.
func (a *Agent) IsChannelBlocked(c Channel) bool {
	return slices.ContainsFunc(a.BlockedChannels, func(b string) bool {
		return b == BlockAllChannels || strings.EqualFold(b, string(c))
	})
}

// Capabilities is the canonical set of channel resources requested for an agent.
type Capabilities struct {
	Phone    bool `json:"phone"`
	WhatsApp bool `json:"whatsapp"`
	Email    bool `json:"email"`
	VoiceAI  bool `json:"voiceAi"`
}

func (c Capabilities) Any() bool {
	return c.Phone || c.WhatsApp || c.Email || c.VoiceAI
}

// AgentSettings is a partial update; nil fields are left unchanged.
type AgentSettings struct {
	DisplayName     *string
	Language        *string
	Voice           *string
	Greeting        *string
	BlockedChannels []string
	ReplaceBlocked  bool
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// ChannelStatus is the per-channel view returned by channel-status.
type ChannelStatus struct {
	AgentID         string                 `json:"agentId"`
	DisplayName     string                 `json:"displayName"`
	Status          AgentStatus            `json:"status"`
	Language        string                 `json:"language"`
	BlockedChannels []string               `json:"blockedChannels"`
	Channels        map[string]ChannelInfo `json:"channels"`
}

type ChannelInfo struct {
	Enabled bool   `json:"enabled"`
	Status  string `json:"status"`
	Address string `json:"address,omitempty"`
}

// StatusView renders the agent's channels. A channel is enabled when the
// agent holds its resource and the channel is not blocked.
func (a *Agent) StatusView() ChannelStatus {
	channels := map[string]ChannelInfo{}

	phone := deref(a.PhoneNumber)
	channels[string(ChannelSMS)] = channelInfo(phone != "" && !a.IsChannelBlocked(ChannelSMS), phone)
	channels[string(ChannelVoice)] = channelInfo(phone != "" && !a.IsChannelBlocked(ChannelVoice), phone)

	email := deref(a.EmailAddress)
	channels[string(ChannelEmail)] = channelInfo(email != "" && !a.IsChannelBlocked(ChannelEmail), email)

	wa := ChannelInfo{Status: string(a.WhatsAppStatus), Address: deref(a.WhatsAppNumber)}
	wa.Enabled = a.WhatsAppStatus == WhatsAppActive && !a.IsChannelBlocked(ChannelWhatsApp)
	if a.IsChannelBlocked(ChannelWhatsApp) {
		wa.Status = "blocked"
	}
	channels[string(ChannelWhatsApp)] = wa

	line := ChannelInfo{Enabled: !a.IsChannelBlocked(ChannelLine), Status: "active"}
	if !line.Enabled {
		line.Status = "blocked"
	}
	channels[string(ChannelLine)] = line

	blocked := a.BlockedChannels
	if blocked == nil {
		blocked = []string{}
	}
	return ChannelStatus{
		AgentID:         a.ID,
		DisplayName:     a.DisplayName,
		Status:          a.Status,
		Language:        a.Language,
		BlockedChannels: blocked,
		Channels:        channels,
	}
}

func channelInfo(enabled bool, address string) ChannelInfo {
	switch {
	case enabled:
		return ChannelInfo{Enabled: true, Status: "active", Address: address}
	case address == "":
		return ChannelInfo{Status: "not_provisioned"}
	default:
		return ChannelInfo{Status: "blocked", Address: address}
	}
}
