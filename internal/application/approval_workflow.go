package application

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"gitlab.com/timkado/api/gatekeeper-relay/internal/adapters/config"
	"gitlab.com/timkado/api/gatekeeper-relay/internal/adapters/metrics"
	"gitlab.com/timkado/api/gatekeeper-relay/internal/domain"
	"gitlab.com/timkado/api/gatekeeper-relay/pkg/safego"
)

const (
	journalQueueSize      = 256
	journalWriteTimeout   = 5 * time.Second
	defaultSweepInterval  = 30 * time.Second
	defaultNotifyTimeout  = 15 * time.Second
	rejectCloseReason     = "join request rejected"
	notificationSucceeded = "success"
	notificationFailed    = "failure"
)

type journalOp struct {
	name string
	fn   func(ctx context.Context) error
}

// ApprovalWorkflow owns the pending request table and applies operator decisions.
// mu serializes every pending-table mutation together with the matching registry
// transition, so a request is resolved at most once.
type ApprovalWorkflow struct {
	logger         domain.Logger
	configProvider config.Provider
	registry       *ConnectionRegistry
	router         *BroadcastRouter
	links          *DecisionLinkBuilder
	notifier       domain.ApprovalNotifier
	journal        domain.DecisionJournal // nil disables the journal
	events         membershipEmitter

	mu      sync.Mutex
	pending map[domain.ConnectionID]domain.PendingRequest

	journalQueue chan journalOp
	wg           sync.WaitGroup
	now          func() time.Time
}

// NewApprovalWorkflow wires the workflow. journal and publisher may be nil.
func NewApprovalWorkflow(
	logger domain.Logger,
	configProvider config.Provider,
	registry *ConnectionRegistry,
	router *BroadcastRouter,
	links *DecisionLinkBuilder,
	notifier domain.ApprovalNotifier,
	journal domain.DecisionJournal,
	publisher domain.MembershipPublisher,
) *ApprovalWorkflow {
	return &ApprovalWorkflow{
		logger:         logger,
		configProvider: configProvider,
		registry:       registry,
		router:         router,
		links:          links,
		notifier:       notifier,
		journal:        journal,
		events: membershipEmitter{
			logger:     logger,
			publisher:  publisher,
			instanceID: func() string { return configProvider.Get().Server.InstanceID },
		},
		pending:      make(map[domain.ConnectionID]domain.PendingRequest),
		journalQueue: make(chan journalOp, journalQueueSize),
		now:          time.Now,
	}
}

// Start runs the journal writer and the expiry sweep until ctx is done.
func (w *ApprovalWorkflow) Start(ctx context.Context) {
	w.wg.Add(2)
	safego.Execute(ctx, w.logger, "DecisionJournalWriter", func() {
		defer w.wg.Done()
		w.runJournalWriter(ctx)
	})
	safego.Execute(ctx, w.logger, "PendingRequestSweeper", func() {
		defer w.wg.Done()
		w.runExpirySweep(ctx)
	})
}

// Wait blocks until the goroutines started by Start have returned.
func (w *ApprovalWorkflow) Wait() {
	w.wg.Wait()
}

// Admit approves id immediately under the open join policy and announces it to every
// approved member, the joiner included.
func (w *ApprovalWorkflow) Admit(ctx context.Context, id domain.ConnectionID, name string) error {
	name, err := normalizeDisplayName(name, w.configProvider.Get().Relay.MaxNameLength)
	if err != nil {
		return err
	}

	w.mu.Lock()
	if state, ok := w.registry.State(id); !ok || state != domain.StateUnauthenticated {
		w.mu.Unlock()
		return fmt.Errorf("admit %s from state %s: %w", id, state, ErrInvalidTransition)
	}
	if err := w.registry.SetDisplayName(id, name); err != nil {
		w.mu.Unlock()
		return err
	}
	if err := w.registry.TransitionState(id, domain.StateUnauthenticated, domain.StateApproved); err != nil {
		w.mu.Unlock()
		return err
	}
	w.router.BroadcastSystem(ctx, joinedNotice(name))
	w.mu.Unlock()

	w.logger.Info(ctx, "Connection admitted under open join policy", "connection_id", id, "display_name", name)
	w.events.emit(ctx, domain.MembershipJoined, id, name)
	return nil
}

// Submit records a join request for id, moves it to StatePendingApproval and
// dispatches the approval notice without waiting for it.
func (w *ApprovalWorkflow) Submit(ctx context.Context, id domain.ConnectionID, name string) (domain.LinkPair, error) {
	cfg := w.configProvider.Get()
	name, err := normalizeDisplayName(name, cfg.Relay.MaxNameLength)
	if err != nil {
		return domain.LinkPair{}, err
	}

	w.mu.Lock()
	if _, exists := w.pending[id]; exists {
		w.mu.Unlock()
		return domain.LinkPair{}, fmt.Errorf("submit join request for %s: %w", id, ErrRequestAlreadyPending)
	}
	if state, ok := w.registry.State(id); !ok || state != domain.StateUnauthenticated {
		w.mu.Unlock()
		return domain.LinkPair{}, fmt.Errorf("submit join request for %s from state %s: %w", id, state, ErrInvalidTransition)
	}
	if err := w.registry.SetDisplayName(id, name); err != nil {
		w.mu.Unlock()
		return domain.LinkPair{}, err
	}
	if err := w.registry.TransitionState(id, domain.StateUnauthenticated, domain.StatePendingApproval); err != nil {
		w.mu.Unlock()
		return domain.LinkPair{}, err
	}
	req := domain.PendingRequest{ConnectionID: id, RequesterName: name, CreatedAt: w.now().UTC()}
	w.pending[id] = req
	metrics.SetPendingRequests(len(w.pending))
	w.mu.Unlock()

	links := w.links.Links(id)
	w.logger.Info(ctx, "Join request pending operator approval", "connection_id", id, "display_name", name)

	w.dispatchNotice(ctx, domain.ApprovalNotice{
		OperatorContact: cfg.Approval.OperatorContact,
		RequesterName:   name,
		ConnectionID:    id,
		Links:           links,
		RequestedAt:     req.CreatedAt,
	})
	w.enqueueJournal(ctx, "RecordPending", func(c context.Context) error { return w.journal.RecordPending(c, req) })
	w.events.emit(ctx, domain.MembershipRequested, id, name)
	return links, nil
}

// Decide applies an operator decision to the pending request of id. A request is
// resolved at most once; later decisions fail with ErrRequestNotFound.
func (w *ApprovalWorkflow) Decide(ctx context.Context, id domain.ConnectionID, action domain.DecisionAction) (domain.DecisionOutcome, error) {
	if action != domain.DecisionAccept && action != domain.DecisionReject {
		metrics.IncrementDecisionErrors(string(domain.ErrInvalidAction))
		return domain.DecisionOutcome{}, fmt.Errorf("decide %q for %s: %w", action, id, ErrInvalidDecisionAction)
	}

	w.mu.Lock()
	req, ok := w.pending[id]
	if !ok {
		w.mu.Unlock()
		metrics.IncrementDecisionErrors(string(domain.ErrNotFound))
		return domain.DecisionOutcome{}, fmt.Errorf("decide %s for %s: %w", action, id, ErrRequestNotFound)
	}
	delete(w.pending, id)
	metrics.SetPendingRequests(len(w.pending))
	outcome, err := w.resolveLocked(ctx, req, action, domain.ResolvedByOperator)
	w.mu.Unlock()

	if err != nil {
		metrics.IncrementDecisionErrors(string(domain.ErrNotFound))
		return domain.DecisionOutcome{}, err
	}
	w.afterResolution(ctx, outcome)
	return outcome, nil
}

// Cancel drops the pending request of a connection that closed before a decision.
func (w *ApprovalWorkflow) Cancel(ctx context.Context, id domain.ConnectionID) bool {
	w.mu.Lock()
	_, ok := w.pending[id]
	if ok {
		delete(w.pending, id)
		metrics.SetPendingRequests(len(w.pending))
	}
	w.mu.Unlock()

	if ok {
		w.logger.Info(ctx, "Pending join request cancelled by connection close", "connection_id", id)
		w.enqueueJournal(ctx, "ForgetPending", func(c context.Context) error { return w.journal.ForgetPending(c, id) })
	}
	return ok
}

// Pending returns a snapshot of outstanding requests ordered by id.
func (w *ApprovalWorkflow) Pending() []domain.PendingRequest {
	w.mu.Lock()
	out := make([]domain.PendingRequest, 0, len(w.pending))
	for _, req := range w.pending {
		out = append(out, req)
	}
	w.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ConnectionID < out[j].ConnectionID })
	return out
}

// ExpireStale rejects every request older than the configured TTL and returns how many it resolved.
func (w *ApprovalWorkflow) ExpireStale(ctx context.Context) int {
	ttl := time.Duration(w.configProvider.Get().Approval.RequestTTLSeconds) * time.Second
	if ttl <= 0 {
		return 0
	}
	cutoff := w.now().UTC().Add(-ttl)

	var outcomes []domain.DecisionOutcome
	w.mu.Lock()
	for id, req := range w.pending {
		if !req.CreatedAt.Before(cutoff) {
			continue
		}
		delete(w.pending, id)
		outcome, err := w.resolveLocked(ctx, req, domain.DecisionReject, domain.ResolvedByExpiry)
		if err != nil {
			w.logger.Debug(ctx, "Expired request belonged to a connection already gone", "connection_id", id, "error", err.Error())
			continue
		}
		outcomes = append(outcomes, outcome)
	}
	metrics.SetPendingRequests(len(w.pending))
	w.mu.Unlock()

	for _, outcome := range outcomes {
		w.afterResolution(ctx, outcome)
	}
	return len(outcomes)
}

// resolveLocked applies action to a request already removed from the pending table.
// The caller holds w.mu.
func (w *ApprovalWorkflow) resolveLocked(ctx context.Context, req domain.PendingRequest, action domain.DecisionAction, source domain.ResolutionSource) (domain.DecisionOutcome, error) {
	id := req.ConnectionID
	conn, ok := w.registry.Connection(id)
	if !ok {
		return domain.DecisionOutcome{}, fmt.Errorf("resolve %s: %w", id, ErrRequestNotFound)
	}

	outcome := domain.DecisionOutcome{
		ConnectionID: id,
		DisplayName:  req.RequesterName,
		Action:       action,
		Source:       source,
		ResolvedAt:   w.now().UTC(),
	}

	switch action {
	case domain.DecisionAccept:
		if err := w.registry.TransitionState(id, domain.StatePendingApproval, domain.StateApproved); err != nil {
			return domain.DecisionOutcome{}, fmt.Errorf("accept %s: %w", id, errors.Join(ErrRequestNotFound, err))
		}
		outcome.Delivered = w.router.SendTo(ctx, id, conn, domain.NewApprovedFrame(req.RequesterName)) == nil
		w.router.BroadcastSystemExcept(ctx, id, joinedNotice(req.RequesterName))

	case domain.DecisionReject:
		if err := w.registry.TransitionState(id, domain.StatePendingApproval, domain.StateClosed); err != nil {
			return domain.DecisionOutcome{}, fmt.Errorf("reject %s: %w", id, errors.Join(ErrRequestNotFound, err))
		}
		outcome.Delivered = w.router.SendTo(ctx, id, conn, domain.NewRejectedFrame()) == nil
		if w.configProvider.Get().Relay.CloseOnReject {
			safego.Execute(context.WithoutCancel(ctx), w.logger, "CloseRejectedConnection", func() {
				if err := conn.Close(domain.StatusJoinRejected, rejectCloseReason); err != nil {
					w.logger.Debug(ctx, "Error closing rejected connection", "connection_id", id, "error", err.Error())
				}
			})
		}
	}
	return outcome, nil
}

func (w *ApprovalWorkflow) afterResolution(ctx context.Context, outcome domain.DecisionOutcome) {
	metrics.IncrementDecisions(string(outcome.Action), string(outcome.Source))
	w.logger.Info(ctx, "Join request resolved",
		"connection_id", outcome.ConnectionID,
		"display_name", outcome.DisplayName,
		"action", string(outcome.Action),
		"source", string(outcome.Source),
		"delivered", outcome.Delivered,
	)
	w.enqueueJournal(ctx, "RecordResolution", func(c context.Context) error { return w.journal.RecordResolution(c, outcome) })

	eventType := domain.MembershipJoined
	switch {
	case outcome.Action == domain.DecisionReject && outcome.Source == domain.ResolvedByExpiry:
		eventType = domain.MembershipExpired
	case outcome.Action == domain.DecisionReject:
		eventType = domain.MembershipRejected
	}
	w.events.emit(ctx, eventType, outcome.ConnectionID, outcome.DisplayName)
}

// dispatchNotice sends the approval notice in the background. Its context survives the
// requester's connection; failure leaves the request pending for manual resolution.
func (w *ApprovalWorkflow) dispatchNotice(ctx context.Context, notice domain.ApprovalNotice) {
	timeout := time.Duration(w.configProvider.Get().Approval.NotifyTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = defaultNotifyTimeout
	}
	bg := context.WithoutCancel(ctx)
	safego.Execute(bg, w.logger, "ApprovalNotifier-"+notice.ConnectionID.String(), func() {
		notifyCtx, cancel := context.WithTimeout(bg, timeout)
		defer cancel()
		if err := w.notifier.NotifyApprovalRequest(notifyCtx, notice); err != nil {
			metrics.IncrementNotifications(notificationFailed)
			w.logger.Error(bg, "Approval notification failed; request remains pending",
				"connection_id", notice.ConnectionID,
				"display_name", notice.RequesterName,
				"error_code", domain.ErrNotificationFailure,
				"error", err.Error(),
			)
			return
		}
		metrics.IncrementNotifications(notificationSucceeded)
		w.logger.Info(bg, "Approval notification sent", "connection_id", notice.ConnectionID, "operator", notice.OperatorContact)
	})
}

func (w *ApprovalWorkflow) enqueueJournal(ctx context.Context, name string, fn func(ctx context.Context) error) {
	if w.journal == nil {
		return
	}
	select {
	case w.journalQueue <- journalOp{name: name, fn: fn}:
	default:
		w.logger.Warn(ctx, "Decision journal queue full; dropping write", "operation", name)
	}
}

func (w *ApprovalWorkflow) runJournalWriter(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			w.drainJournal()
			return
		case op := <-w.journalQueue:
			w.writeJournal(context.WithoutCancel(ctx), op)
		}
	}
}

func (w *ApprovalWorkflow) drainJournal() {
	for {
		select {
		case op := <-w.journalQueue:
			w.writeJournal(context.Background(), op)
		default:
			return
		}
	}
}

func (w *ApprovalWorkflow) writeJournal(ctx context.Context, op journalOp) {
	writeCtx, cancel := context.WithTimeout(ctx, journalWriteTimeout)
	defer cancel()
	if err := op.fn(writeCtx); err != nil {
		w.logger.Warn(ctx, "Decision journal write failed", "operation", op.name, "error", err.Error())
	}
}

func (w *ApprovalWorkflow) runExpirySweep(ctx context.Context) {
	interval := time.Duration(w.configProvider.Get().Approval.SweepIntervalSeconds) * time.Second
	if interval <= 0 {
		interval = defaultSweepInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	w.logger.Info(ctx, "Pending request sweeper started", "interval", interval.String())

	for {
		select {
		case <-ctx.Done():
			w.logger.Info(context.Background(), "Pending request sweeper stopping")
			return
		case <-ticker.C:
			if n := w.ExpireStale(ctx); n > 0 {
				w.logger.Info(ctx, "Expired stale join requests", "count", n)
			}
		}
	}
}
