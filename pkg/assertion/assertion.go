package assertion

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/trading-ecosystem/chaos-coordinator/pkg/cerrors"
	"github.com/trading-ecosystem/chaos-coordinator/pkg/log"
	"github.com/trading-ecosystem/chaos-coordinator/pkg/scenario"
	"github.com/trading-ecosystem/chaos-coordinator/pkg/types"
)

// Evaluator decides one assertion kind. Evaluate polls read-only state until
// the condition is observed, the context deadline expires or cancellation
// fires; it never injects chaos itself.
type Evaluator interface {
	Evaluate(ctx context.Context, as scenario.Assertion) types.AssertionResult
}

// Registry holds the evaluator per assertion kind
type Registry struct {
	mu         sync.RWMutex
	evaluators map[string]Evaluator
}

// NewRegistry build a registry with the built-in evaluator kinds wired to
// the configured service endpoints
func NewRegistry(details types.CoordinatorDetails) *Registry {
	endpoints := map[string]string{}
	for service, ep := range details.Services {
		endpoints[service] = ep.BaseURL
	}
	fetcher := &httpFetcher{
		client:    &http.Client{Timeout: 10 * time.Second},
		endpoints: endpoints,
	}

	r := &Registry{evaluators: map[string]Evaluator{}}
	r.Register("system_health", &healthEvaluator{fetcher: fetcher, kind: "system_health", interval: details.PollInterval("system_health")})
	r.Register("system_recovery", &healthEvaluator{fetcher: fetcher, kind: "system_recovery", interval: details.PollInterval("system_recovery"), requireRecovery: true})
	r.Register("risk_alert", &riskAlertEvaluator{fetcher: fetcher, kind: "risk_alert", interval: details.PollInterval("risk_alert")})
	r.Register("alert_resolution", &riskAlertEvaluator{fetcher: fetcher, kind: "alert_resolution", interval: details.PollInterval("alert_resolution"), resolution: true})
	r.Register("trading_adaptation", &tradingAdaptationEvaluator{fetcher: fetcher, interval: details.PollInterval("trading_adaptation")})
	r.Register("price_divergence", &priceDivergenceEvaluator{fetcher: fetcher, interval: details.PollInterval("price_divergence")})
	r.Register("performance_recovery", &performanceEvaluator{fetcher: fetcher, interval: details.PollInterval("performance_recovery")})
	r.Register("audit_correlation", &auditCorrelationEvaluator{fetcher: fetcher, interval: details.PollInterval("audit_correlation")})
	r.Register("custom", &customEvaluator{fetcher: fetcher, interval: details.PollInterval("custom")})
	return r
}

// NewEmptyRegistry build a registry with no evaluators, used by tests and
// embedders that register their own kinds
func NewEmptyRegistry() *Registry {
	return &Registry{evaluators: map[string]Evaluator{}}
}

// Register binds an evaluator to an assertion kind
func (r *Registry) Register(kind string, e Evaluator) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.evaluators[kind] = e
}

// Get return the evaluator for the kind
func (r *Registry) Get(kind string) (Evaluator, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.evaluators[kind]
	if !ok {
		return nil, cerrors.Error{ErrorCode: cerrors.ErrorTypeAssertionFailed, Target: kind, Reason: fmt.Sprintf("no evaluator registered for assertion kind '%s'", kind)}
	}
	return e, nil
}

// checkFunc is one poll: condition observed, the evidence snapshot, and any
// transient observation error (transient errors keep the poll going)
type checkFunc func(ctx context.Context) (bool, map[string]interface{}, error)

// initialPollBudget bounds the single poll granted to assertions whose
// window has already elapsed at launch (within=0 semantics)
const initialPollBudget = 2 * time.Second

// pollUntil drives a checkFunc at a fixed cadence under the context
// deadline. The first poll always runs, even when the deadline has already
// passed, so zero-window assertions still get one observation.
func pollUntil(ctx context.Context, kind string, interval time.Duration, check checkFunc) types.AssertionResult {
	start := time.Now()
	var lastEvidence map[string]interface{}

	for first := true; ; first = false {
		checkCtx := ctx
		var cancel context.CancelFunc
		if first && ctx.Err() != nil {
			checkCtx, cancel = context.WithTimeout(context.Background(), initialPollBudget)
		}
		passed, evidence, err := check(checkCtx)
		if cancel != nil {
			cancel()
		}
		if evidence != nil {
			lastEvidence = evidence
		}
		if err != nil {
			log.Warnf("[Assertion]: %v poll failed, err: %v", kind, err)
		} else if passed {
			return types.AssertionResult{
				Kind:      kind,
				Passed:    true,
				Message:   "condition observed",
				Timestamp: time.Now(),
				Evidence:  evidence,
				Elapsed:   time.Since(start),
			}
		}

		select {
		case <-ctx.Done():
			return failedResult(ctx, kind, start, lastEvidence)
		case <-time.After(interval):
		}
	}
}

func failedResult(ctx context.Context, kind string, start time.Time, evidence map[string]interface{}) types.AssertionResult {
	message := "timeout"
	if ctx.Err() == context.Canceled {
		message = "canceled"
	}
	return types.AssertionResult{
		Kind:      kind,
		Passed:    false,
		Message:   message,
		Timestamp: time.Now(),
		Evidence:  evidence,
		Elapsed:   time.Since(start),
	}
}

// invalidResult short-circuits an assertion whose parameters cannot be used
func invalidResult(kind, reason string) types.AssertionResult {
	return types.AssertionResult{
		Kind:      kind,
		Passed:    false,
		Message:   reason,
		Timestamp: time.Now(),
	}
}

// httpFetcher is the shared read-only transport of the evaluators
type httpFetcher struct {
	client    *http.Client
	endpoints map[string]string
}

func (f *httpFetcher) endpoint(service string) (string, error) {
	base, ok := f.endpoints[service]
	if !ok || base == "" {
		return "", cerrors.Error{ErrorCode: cerrors.ErrorTypeAssertionFailed, Target: service, Reason: fmt.Sprintf("no endpoint configured for service '%s'", service)}
	}
	return base, nil
}

func (f *httpFetcher) getJSON(ctx context.Context, url string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return errors.Errorf("unexpected status %d from %s", resp.StatusCode, url)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrapf(err, "undecodable response from %s", url)
	}
	return nil
}

// stringParam reads a required string parameter
func stringParam(params map[string]scenario.Value, name string) (string, bool) {
	v, ok := params[name]
	if !ok {
		return "", false
	}
	return v.AsString()
}

func logEvaluation(kind string, as scenario.Assertion) {
	log.InfoWithValues("[Assertion]: Evaluating", logrus.Fields{
		"Kind":   kind,
		"Expect": as.Expect,
		"Within": as.Within.String(),
	})
}
