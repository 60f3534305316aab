// Package agentsync reconciles assistants against an external agent
// catalog (§4.7): scope parsing, row-to-assistant mapping, and idempotent
// create/update/skip. Grounded on the teacher's sync scheduling pattern in
// pkg/cleanup/service.go (a periodic reconciliation loop against an
// external source of truth).
package agentsync

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// ScopeKind is the parsed form of AGENT_SYNC_SCOPE.
type ScopeKind int

const (
	ScopeNone ScopeKind = iota
	ScopeAll
	ScopeOrgs
)

// Scope is the parsed sync scope: either disabled, unrestricted, or
// restricted to a specific set of organization ids.
type Scope struct {
	Kind  ScopeKind
	OrgID []string
}

// ParseScope parses the AGENT_SYNC_SCOPE configuration value: "none",
// "all", or "org:<uuid>[,org:<uuid>...]".
func ParseScope(raw string) (Scope, error) {
	raw = strings.TrimSpace(raw)
	switch {
	case raw == "" || raw == "none":
		return Scope{Kind: ScopeNone}, nil
	case raw == "all":
		return Scope{Kind: ScopeAll}, nil
	case strings.HasPrefix(raw, "org:"):
		tokens := strings.Split(raw, ",")
		out := make([]string, 0, len(tokens))
		for _, tok := range tokens {
			tok = strings.TrimSpace(tok)
			if tok == "" {
				continue
			}
			if !strings.HasPrefix(tok, "org:") {
				return Scope{}, fmt.Errorf("agentsync: invalid scope token %q: expected org:<uuid>", tok)
			}
			id := strings.TrimPrefix(tok, "org:")
			if _, err := uuid.Parse(id); err != nil {
				return Scope{}, fmt.Errorf("agentsync: invalid org id %q: %w", id, err)
			}
			out = append(out, id)
		}
		if len(out) == 0 {
			return Scope{}, fmt.Errorf("agentsync: org scope requires at least one id")
		}
		return Scope{Kind: ScopeOrgs, OrgID: out}, nil
	default:
		return Scope{}, fmt.Errorf("agentsync: unrecognized scope %q", raw)
	}
}

// Matches reports whether orgID is in scope.
func (s Scope) Matches(orgID string) bool {
	switch s.Kind {
	case ScopeNone:
		return false
	case ScopeAll:
		return true
	case ScopeOrgs:
		for _, id := range s.OrgID {
			if id == orgID {
				return true
			}
		}
		return false
	default:
		return false
	}
}
