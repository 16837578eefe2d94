package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"gitlab.com/timkado/api/gatekeeper-relay/internal/adapters/metrics"
	"gitlab.com/timkado/api/gatekeeper-relay/internal/application"
	"gitlab.com/timkado/api/gatekeeper-relay/internal/domain"
)

// DecisionApplier applies an operator decision to a pending join request.
type DecisionApplier interface {
	Decide(ctx context.Context, id domain.ConnectionID, action domain.DecisionAction) (domain.DecisionOutcome, error)
}

// PendingLister lists outstanding join requests.
type PendingLister interface {
	Pending() []domain.PendingRequest
}

// DecisionHandler serves the operator's decision links: GET /approve?user_id=<id>&action=ACCEPT|REJECT.
// Every outcome is rendered as an HTML page. A link for a request that was already
// resolved answers "not found" and never re-applies the decision.
func DecisionHandler(applier DecisionApplier, logger domain.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		rawAction := q.Get("action")
		rawID := q.Get("user_id")

		action, ok := domain.ParseDecisionAction(rawAction)
		if !ok {
			metrics.IncrementDecisionErrors(string(domain.ErrInvalidAction))
			logger.Warn(r.Context(), "Decision link with invalid action", "action", rawAction, "user_id", rawID, "error_code", domain.ErrInvalidAction)
			writePage(r.Context(), logger, w, http.StatusBadRequest, pageData{
				Level:   pageWarning,
				Title:   "Unknown action",
				Message: "The link asked for an action other than ACCEPT or REJECT. Nothing was changed.",
			})
			return
		}

		id, err := strconv.ParseUint(rawID, 10, 64)
		if err != nil || id == 0 {
			metrics.IncrementDecisionErrors(string(domain.ErrBadRequest))
			logger.Warn(r.Context(), "Decision link with invalid user_id", "user_id", rawID, "error_code", domain.ErrBadRequest)
			writePage(r.Context(), logger, w, http.StatusBadRequest, pageData{
				Level:   pageError,
				Title:   "Invalid link",
				Message: "The link does not identify a join request.",
			})
			return
		}

		outcome, err := applier.Decide(r.Context(), domain.ConnectionID(id), action)
		switch {
		case err == nil:
		case errors.Is(err, application.ErrRequestNotFound):
			logger.Info(r.Context(), "Decision link for unknown or resolved request", "user_id", id, "action", string(action), "error_code", domain.ErrNotFound)
			writePage(r.Context(), logger, w, http.StatusNotFound, pageData{
				Level:   pageError,
				Title:   "Request not found",
				Message: "This join request was already resolved, or the requester has left.",
			})
			return
		case errors.Is(err, application.ErrInvalidDecisionAction):
			writePage(r.Context(), logger, w, http.StatusBadRequest, pageData{
				Level:   pageWarning,
				Title:   "Unknown action",
				Message: "The link asked for an action other than ACCEPT or REJECT. Nothing was changed.",
			})
			return
		default:
			logger.Error(r.Context(), "Failed to apply decision", "user_id", id, "action", string(action), "error", err.Error())
			writePage(r.Context(), logger, w, http.StatusInternalServerError, pageData{
				Level:   pageError,
				Title:   "Something went wrong",
				Message: "The decision could not be applied. Please try again.",
			})
			return
		}

		verb := "approved"
		if outcome.Action == domain.DecisionReject {
			verb = "rejected"
		}
		message := fmt.Sprintf("%s has been %s.", outcome.DisplayName, verb)
		if !outcome.Delivered {
			message += " The requester could not be notified; they may have disconnected."
		}
		writePage(r.Context(), logger, w, http.StatusOK, pageData{
			Level:   pageSuccess,
			Title:   "Request " + verb,
			Message: message,
		})
	}
}

func writePage(ctx context.Context, logger domain.Logger, w http.ResponseWriter, status int, data pageData) {
	if err := renderPage(w, status, data); err != nil {
		logger.Error(ctx, "Failed to render decision page", "status", status, "error", err.Error())
	}
}

// PendingRequestsResponse is the body of GET /admin/pending.
type PendingRequestsResponse struct {
	Count   int                     `json:"count"`
	Pending []domain.PendingRequest `json:"pending"`
}

// PendingRequestsHandler lists outstanding join requests for operators.
func PendingRequestsHandler(lister PendingLister, logger domain.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		pending := lister.Pending()
		resp := PendingRequestsResponse{Count: len(pending), Pending: pending}
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-store")
		w.WriteHeader(http.StatusOK)
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			logger.Error(r.Context(), "Failed to encode /admin/pending response", "error", err.Error())
		}
	}
}

// DecisionHistory reads back journaled decisions.
type DecisionHistory interface {
	RecentDecisions(ctx context.Context, limit int64) ([]domain.DecisionOutcome, error)
}

// RecentDecisionsResponse is the body of GET /admin/decisions.
type RecentDecisionsResponse struct {
	Count     int                      `json:"count"`
	Decisions []domain.DecisionOutcome `json:"decisions"`
}

const defaultDecisionsLimit = 50

// RecentDecisionsHandler lists the newest journaled decisions; ?limit= caps the count.
func RecentDecisionsHandler(history DecisionHistory, logger domain.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := int64(defaultDecisionsLimit)
		if raw := r.URL.Query().Get("limit"); raw != "" {
			n, err := strconv.ParseInt(raw, 10, 64)
			if err != nil || n <= 0 {
				domain.NewErrorResponse(domain.ErrBadRequest, "Invalid limit", "limit must be a positive integer.").WriteJSON(w, http.StatusBadRequest)
				return
			}
			limit = n
		}

		decisions, err := history.RecentDecisions(r.Context(), limit)
		if err != nil {
			logger.Error(r.Context(), "Failed to read decision journal", "error", err.Error())
			domain.NewErrorResponse(domain.ErrInternal, "Decision journal unavailable", "").WriteJSON(w, http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-store")
		w.WriteHeader(http.StatusOK)
		if err := json.NewEncoder(w).Encode(RecentDecisionsResponse{Count: len(decisions), Decisions: decisions}); err != nil {
			logger.Error(r.Context(), "Failed to encode /admin/decisions response", "error", err.Error())
		}
	}
}
