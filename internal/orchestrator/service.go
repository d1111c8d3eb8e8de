package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/dyluth/rota/internal/config"
	"github.com/dyluth/rota/internal/directory"
	"github.com/dyluth/rota/internal/engine"
	"github.com/dyluth/rota/internal/topology"
	"github.com/dyluth/rota/pkg/rotation"
	"github.com/google/uuid"
)

// Service loads state from the store, runs the engine or queue manager, and persists the result.
// It holds no per-request state; the store is the only synchronization point between callers.
type Service struct {
	store         rotation.Store
	topo          *topology.Topology
	dir           directory.Directory
	policy        engine.Policy
	maxRetries    int
	retryInterval time.Duration
	sandboxTTL    time.Duration
	newFrameID    func() string
}

// NewService wires a service from a validated configuration. dir may be nil, in which case no
// eligibility data is available and every occupant of an age-restricted position is flagged.
func NewService(store rotation.Store, topo *topology.Topology, dir directory.Directory, cfg *config.RotaConfig) *Service {
	s := &Service{
		store:         store,
		topo:          topo,
		dir:           dir,
		policy:        engine.DefaultPolicy(),
		maxRetries:    config.DefaultMaxRetries,
		retryInterval: config.DefaultRetryInterval,
		sandboxTTL:    config.DefaultSandboxTTL,
		newFrameID:    uuid.NewString,
	}

	if cfg != nil {
		if cfg.Policy != nil && cfg.Policy.RestrictedFromMinute != nil && cfg.Policy.EnforceRestricted != nil {
			s.policy = cfg.EnginePolicy()
		}
		if cfg.Storage != nil {
			if cfg.Storage.MaxRetries != nil {
				s.maxRetries = *cfg.Storage.MaxRetries
			}
			if cfg.Storage.RetryInterval > 0 {
				s.retryInterval = cfg.Storage.RetryInterval
			}
		}
		if cfg.Sandbox != nil && cfg.Sandbox.TTL > 0 {
			s.sandboxTTL = cfg.Sandbox.TTL
		}
	}

	return s
}

// Topology returns the position graph the service validates against.
func (s *Service) Topology() *topology.Topology {
	return s.topo
}

func (s *Service) ttl(scope rotation.Key) time.Duration {
	if scope.IsSandbox() {
		return s.sandboxTTL
	}
	return 0
}

func (s *Service) eligibility(ctx context.Context) (engine.Eligibility, error) {
	if s.dir == nil {
		return engine.Eligibility{}, nil
	}
	people, err := s.dir.ListActive(ctx)
	if err != nil {
		return engine.Eligibility{}, fmt.Errorf("failed to list personnel: %w", err)
	}
	return engine.Eligibility{
		Birthdates: directory.Birthdates(people),
		Allowed:    directory.Allowed(people),
	}, nil
}

// retry runs fn until it succeeds, fails with a non-retryable error, or the retry budget is spent.
// StorageUnavailable is always retried; OptimisticConflict only when retryConflicts is set.
func (s *Service) retry(ctx context.Context, scope rotation.Key, op string, retryConflicts bool, fn func() error) error {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = s.retryInterval
	eb.MaxElapsedTime = 0

	policy := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(s.maxRetries)), ctx)

	attempt := 0
	return backoff.RetryNotify(func() error {
		attempt++
		err := fn()
		switch {
		case err == nil:
			return nil
		case rotation.IsStorageUnavailable(err):
			return err
		case retryConflicts && rotation.IsOptimisticConflict(err):
			return err
		default:
			return backoff.Permanent(err)
		}
	}, policy, func(err error, wait time.Duration) {
		s.logEvent(scope, "storage_retry", map[string]interface{}{
			"operation": op,
			"attempt":   attempt,
			"kind":      rotation.KindName(err),
			"wait_ms":   wait.Milliseconds(),
		})
	})
}

func (s *Service) load(ctx context.Context, scope rotation.Key, op string) (*rotation.State, error) {
	var state *rotation.State
	err := s.retry(ctx, scope, op, false, func() error {
		var err error
		state, err = s.store.Get(ctx, scope)
		return err
	})
	if err != nil {
		return nil, err
	}
	state.Assignments.Normalize(s.topo.AllPositions())
	return state, nil
}

func (s *Service) reportAnomalies(scope rotation.Key, op string, anomalies []error) {
	for _, a := range anomalies {
		s.logEvent(scope, "invariant_violation", map[string]interface{}{
			"operation": op,
			"detail":    rotation.UserMessage(a),
		})
	}
}

// markChanged stamps every position whose occupant differs between prev and next.
func markChanged(state *rotation.State, prev, next rotation.Assignment, ms int64) {
	for pos, id := range next {
		if prev[pos] != id {
			state.SeatUpdatedAt[pos] = ms
		}
	}
}

// logEvent logs a structured event in JSON format.
func (s *Service) logEvent(scope rotation.Key, eventType string, data map[string]interface{}) {
	data["timestamp"] = time.Now().UTC().Format(time.RFC3339)
	data["level"] = "info"
	if eventType == "invariant_violation" || eventType == "storage_retry" {
		data["level"] = "warn"
	}
	data["component"] = "orchestrator"
	data["event_type"] = eventType
	data["scope"] = scope.String()

	jsonData, err := json.Marshal(data)
	if err != nil {
		log.Printf("[Orchestrator] Failed to marshal log event: %v", err)
		return
	}

	log.Println(string(jsonData))
}
