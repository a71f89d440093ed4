package health

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/eris-chaos/eris/pkg/log"
	"github.com/eris-chaos/eris/pkg/types"
	"github.com/prometheus/client_golang/api"
	promv1 "github.com/prometheus/client_golang/api/prometheus/v1"
	"github.com/prometheus/common/model"
)

// the steady-state signals, both over a trailing one minute window of the
// synthetic load generator's traffic
const (
	errorRateQuery = `sum(rate(loadgen_requests_total{status="failed"}[1m])) / sum(rate(loadgen_requests_total[1m]))`
	latencyQuery   = `histogram_quantile(0.95, rate(loadgen_response_time_seconds_bucket[1m]))`
)

// Querier runs one instant query against the metrics backend.
type Querier interface {
	Query(ctx context.Context, query string, ts time.Time) (model.Value, error)
}

type apiQuerier struct {
	api promv1.API
}

func (q apiQuerier) Query(ctx context.Context, query string, ts time.Time) (model.Value, error) {
	value, warnings, err := q.api.Query(ctx, query, ts)
	for _, warning := range warnings {
		log.Warnf("[Metrics]: Prometheus query warning: %v", warning)
	}
	return value, err
}

// Evaluator turns raw time-series values into steady-state and abort
// verdicts. Every check re-queries the backend; snapshots are never cached.
type Evaluator struct {
	querier Querier
}

// NewEvaluator builds an evaluator against the Prometheus HTTP API.
func NewEvaluator(prometheusURL string) (*Evaluator, error) {
	client, err := api.NewClient(api.Config{Address: prometheusURL})
	if err != nil {
		return nil, err
	}
	return &Evaluator{querier: apiQuerier{api: promv1.NewAPI(client)}}, nil
}

// NewEvaluatorWithQuerier builds an evaluator on a caller-supplied querier.
func NewEvaluatorWithQuerier(querier Querier) *Evaluator {
	return &Evaluator{querier: querier}
}

// Snapshot queries the current error rate and p95 latency. A query that
// fails, returns no data, or returns NaN resolves to 0.0 for that metric:
// monitoring unavailability must never block orchestration, it degrades
// toward a healthy reading and gets logged instead.
func (e *Evaluator) Snapshot(ctx context.Context) types.Snapshot {
	return types.Snapshot{
		ErrorRate:  e.queryScalar(ctx, errorRateQuery),
		LatencyP95: e.queryScalar(ctx, latencyQuery),
	}
}

// IsSteady checks the current snapshot against the steady-state bounds.
func (e *Evaluator) IsSteady(ctx context.Context, bounds types.SteadyState) (bool, types.Snapshot) {
	snapshot := e.Snapshot(ctx)
	healthy := snapshot.ErrorRate <= bounds.MaxErrorRate &&
		snapshot.LatencyP95 <= bounds.MaxLatencyP95
	return healthy, snapshot
}

// ShouldAbort checks the current snapshot against the abort bounds and, on
// breach, formats the triggering reason with the measured and threshold values.
func (e *Evaluator) ShouldAbort(ctx context.Context, bounds types.AbortConditions) (bool, string, types.Snapshot) {
	snapshot := e.Snapshot(ctx)

	if snapshot.ErrorRate > bounds.MaxErrorRate {
		reason := fmt.Sprintf("error rate %.2f exceeded abort threshold %.2f", snapshot.ErrorRate, bounds.MaxErrorRate)
		return true, reason, snapshot
	}
	if snapshot.LatencyP95 > bounds.MaxLatencyP95 {
		reason := fmt.Sprintf("p95 latency %.2fs exceeded abort threshold %.2fs", snapshot.LatencyP95, bounds.MaxLatencyP95)
		return true, reason, snapshot
	}
	return false, "", snapshot
}

func (e *Evaluator) queryScalar(ctx context.Context, query string) float64 {
	value, err := e.querier.Query(ctx, query, time.Now())
	if err != nil {
		log.Warnf("[Metrics]: Prometheus query failed, substituting 0.0, err: %v", err)
		return 0.0
	}

	result := extractScalar(value)
	if math.IsNaN(result) {
		log.Warnf("[Metrics]: Prometheus query returned NaN, substituting 0.0")
		return 0.0
	}
	return result
}

// extractScalar digs the single numeric value out of an instant query
// result, 0.0 when the result carries no samples
func extractScalar(value model.Value) float64 {
	switch v := value.(type) {
	case *model.Scalar:
		return float64(v.Value)
	case model.Vector:
		if len(v) == 0 {
			return 0.0
		}
		return float64(v[0].Value)
	default:
		return 0.0
	}
}
