package voice

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/snarg/audiocast/internal/dialogue"
)

// Policy maps each dialogue role to a provider voice.
type Policy struct {
	Host  string `yaml:"host" json:"host"`
	Guest string `yaml:"guest" json:"guest"`
}

// VoiceFor returns the voice assigned to role.
func (p Policy) VoiceFor(role dialogue.Role) (string, error) {
	var v string
	switch role {
	case dialogue.RoleHost:
		v = p.Host
	case dialogue.RoleGuest:
		v = p.Guest
	default:
		return "", fmt.Errorf("no voice for role %q", role)
	}
	if v == "" {
		return "", fmt.Errorf("no voice configured for role %q", role)
	}
	return v, nil
}

// Merge returns p with empty entries filled from fallback.
func (p Policy) Merge(fallback Policy) Policy {
	if p.Host == "" {
		p.Host = fallback.Host
	}
	if p.Guest == "" {
		p.Guest = fallback.Guest
	}
	return p
}

// PolicyTable holds default policies per provider and base locale. The
// "*" locale applies to any locale without its own entry.
type PolicyTable map[string]map[string]Policy

// DefaultPolicies is the built-in table. ElevenLabs voices come from the
// premade library and speak every locale of the multilingual model; MiniMax
// system voices are chosen per language.
var DefaultPolicies = PolicyTable{
	"elevenlabs": {
		"*": {Host: "21m00Tcm4TlvDq8ikWAM", Guest: "pNInz6obpgDQGcFmaJgB"}, // Rachel, Adam
	},
	"minimax": {
		"*":  {Host: "presenter_female", Guest: "presenter_male"},
		"zh": {Host: "female-shaonv", Guest: "male-qn-qingse"},
		"en": {Host: "English_Graceful_Lady", Guest: "English_Trustworth_Man"},
		"ja": {Host: "Japanese_KindLady", Guest: "Japanese_IntellectualSenior"},
	},
}

// Lookup returns the policy for provider and locale, trying the base
// language and then "*".
func (t PolicyTable) Lookup(providerName, locale string) (Policy, bool) {
	byLocale, ok := t[providerName]
	if !ok {
		return Policy{}, false
	}
	if p, ok := byLocale[locale]; ok {
		return p, true
	}
	if i := strings.IndexAny(locale, "-_"); i > 0 {
		if p, ok := byLocale[strings.ToLower(locale[:i])]; ok {
			return p, true
		}
	}
	p, ok := byLocale["*"]
	return p, ok
}

// DefaultPolicy looks providerName and locale up in DefaultPolicies.
func DefaultPolicy(providerName, locale string) (Policy, bool) {
	return DefaultPolicies.Lookup(providerName, locale)
}

// LoadPolicyFile reads a YAML table shaped like DefaultPolicies:
//
//	elevenlabs:
//	  "*": {host: <voice>, guest: <voice>}
//	  es:  {host: <voice>, guest: <voice>}
//
// Entries override the built-in defaults; anything not mentioned is kept,
// and a missing role falls back to the provider's "*" entry.
func LoadPolicyFile(path string) (PolicyTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read voice policy: %w", err)
	}
	var overrides PolicyTable
	if err := yaml.Unmarshal(data, &overrides); err != nil {
		return nil, fmt.Errorf("parse voice policy %s: %w", path, err)
	}

	merged := make(PolicyTable, len(DefaultPolicies))
	for prov, byLocale := range DefaultPolicies {
		merged[prov] = make(map[string]Policy, len(byLocale))
		for loc, p := range byLocale {
			merged[prov][loc] = p
		}
	}
	for prov, byLocale := range overrides {
		if merged[prov] == nil {
			merged[prov] = make(map[string]Policy, len(byLocale))
		}
		for loc, p := range byLocale {
			base, ok := merged[prov][loc]
			if !ok {
				base = merged[prov]["*"]
			}
			merged[prov][loc] = p.Merge(base)
		}
	}
	return merged, nil
}
