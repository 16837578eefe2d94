package application

import (
	"net/url"

	"gitlab.com/timkado/api/gatekeeper-relay/internal/adapters/config"
	"gitlab.com/timkado/api/gatekeeper-relay/internal/domain"
)

const (
	// DecisionPath is the HTTP route that applies operator decisions.
	DecisionPath = "/approve"

	decisionIDParam     = "user_id"
	decisionActionParam = "action"
)

// DecisionLinkBuilder renders the accept and reject links for a pending request.
type DecisionLinkBuilder struct {
	configProvider config.Provider
}

func NewDecisionLinkBuilder(configProvider config.Provider) *DecisionLinkBuilder {
	return &DecisionLinkBuilder{configProvider: configProvider}
}

// Links returns the link pair for id against the configured public base URL.
func (b *DecisionLinkBuilder) Links(id domain.ConnectionID) domain.LinkPair {
	base := b.configProvider.Get().Server.PublicBaseURL
	return domain.LinkPair{
		Accept: decisionURL(base, id, domain.DecisionAccept),
		Reject: decisionURL(base, id, domain.DecisionReject),
	}
}

func decisionURL(base string, id domain.ConnectionID, action domain.DecisionAction) string {
	q := url.Values{}
	q.Set(decisionIDParam, id.String())
	q.Set(decisionActionParam, string(action))
	return base + DecisionPath + "?" + q.Encode()
}
