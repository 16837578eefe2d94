package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"gitlab.com/timkado/api/gatekeeper-relay/internal/adapters/config"
	"gitlab.com/timkado/api/gatekeeper-relay/internal/domain"
	"gitlab.com/timkado/api/gatekeeper-relay/pkg/rediskeys"
)

// DecisionLogLimit caps the resolved decision list per instance.
const DecisionLogLimit = 1000

const defaultJournalTTL = 24 * time.Hour

// DecisionJournalAdapter mirrors pending requests and resolved decisions into Redis
// for operators. The relay never reads it back to decide anything.
type DecisionJournalAdapter struct {
	redisClient *redis.Client
	logger      domain.Logger
	cfgProvider config.Provider
}

func NewDecisionJournalAdapter(redisClient *redis.Client, logger domain.Logger, cfgProvider config.Provider) *DecisionJournalAdapter {
	if redisClient == nil {
		panic("redisClient cannot be nil in NewDecisionJournalAdapter")
	}
	return &DecisionJournalAdapter{
		redisClient: redisClient,
		logger:      logger,
		cfgProvider: cfgProvider,
	}
}

func (a *DecisionJournalAdapter) instanceID() string {
	return a.cfgProvider.Get().Server.InstanceID
}

func (a *DecisionJournalAdapter) ttl() time.Duration {
	if s := a.cfgProvider.Get().Redis.JournalTTLSeconds; s > 0 {
		return time.Duration(s) * time.Second
	}
	return defaultJournalTTL
}

// RecordPending stores the request hash and adds its id to the instance index.
func (a *DecisionJournalAdapter) RecordPending(ctx context.Context, req domain.PendingRequest) error {
	instance := a.instanceID()
	key := rediskeys.PendingRequestKey(instance, uint64(req.ConnectionID))
	indexKey := rediskeys.PendingIndexKey(instance)
	ttl := a.ttl()

	pipe := a.redisClient.TxPipeline()
	pipe.HSet(ctx, key,
		"connection_id", req.ConnectionID.String(),
		"requester_name", req.RequesterName,
		"created_at", req.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	pipe.Expire(ctx, key, ttl)
	pipe.SAdd(ctx, indexKey, req.ConnectionID.String())
	pipe.Expire(ctx, indexKey, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		a.logger.Error(ctx, "Failed to journal pending request", "key", key, "error", err.Error())
		return fmt.Errorf("redis HSET/SADD for pending key '%s' failed: %w", key, err)
	}
	a.logger.Debug(ctx, "Journaled pending request", "key", key, "ttl", ttl.String())
	return nil
}

// RecordResolution removes the pending mirror and prepends the outcome to the capped decision log.
func (a *DecisionJournalAdapter) RecordResolution(ctx context.Context, outcome domain.DecisionOutcome) error {
	payload, err := json.Marshal(outcome)
	if err != nil {
		return fmt.Errorf("failed to marshal decision outcome for %s: %w", outcome.ConnectionID, err)
	}

	instance := a.instanceID()
	logKey := rediskeys.DecisionLogKey(instance)

	pipe := a.redisClient.TxPipeline()
	pipe.Del(ctx, rediskeys.PendingRequestKey(instance, uint64(outcome.ConnectionID)))
	pipe.SRem(ctx, rediskeys.PendingIndexKey(instance), outcome.ConnectionID.String())
	pipe.LPush(ctx, logKey, payload)
	pipe.LTrim(ctx, logKey, 0, DecisionLogLimit-1)
	pipe.Expire(ctx, logKey, a.ttl())
	if _, err := pipe.Exec(ctx); err != nil {
		a.logger.Error(ctx, "Failed to journal decision", "key", logKey, "connection_id", outcome.ConnectionID, "error", err.Error())
		return fmt.Errorf("redis LPUSH for decision log '%s' failed: %w", logKey, err)
	}
	return nil
}

// ForgetPending removes the mirror of a request whose connection closed before a decision.
func (a *DecisionJournalAdapter) ForgetPending(ctx context.Context, id domain.ConnectionID) error {
	instance := a.instanceID()
	key := rediskeys.PendingRequestKey(instance, uint64(id))

	pipe := a.redisClient.TxPipeline()
	pipe.Del(ctx, key)
	pipe.SRem(ctx, rediskeys.PendingIndexKey(instance), id.String())
	if _, err := pipe.Exec(ctx); err != nil {
		a.logger.Error(ctx, "Failed to forget pending request", "key", key, "error", err.Error())
		return fmt.Errorf("redis DEL for pending key '%s' failed: %w", key, err)
	}
	return nil
}

// RecentDecisions returns up to limit outcomes, newest first.
func (a *DecisionJournalAdapter) RecentDecisions(ctx context.Context, limit int64) ([]domain.DecisionOutcome, error) {
	if limit <= 0 {
		limit = DecisionLogLimit
	}
	raw, err := a.redisClient.LRange(ctx, rediskeys.DecisionLogKey(a.instanceID()), 0, limit-1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis LRANGE for decision log failed: %w", err)
	}
	out := make([]domain.DecisionOutcome, 0, len(raw))
	for _, item := range raw {
		var outcome domain.DecisionOutcome
		if err := json.Unmarshal([]byte(item), &outcome); err != nil {
			a.logger.Warn(ctx, "Skipping malformed decision log entry", "error", err.Error())
			continue
		}
		out = append(out, outcome)
	}
	return out, nil
}
