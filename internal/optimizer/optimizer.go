// Package optimizer turns an unordered set of stops into a visit order.
package optimizer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/fieldtour/fieldtour/internal/geo"
	"github.com/fieldtour/fieldtour/internal/routing"
	"github.com/fieldtour/fieldtour/internal/tour"
)

// ErrOptimizationDegraded marks a result produced by the local heuristic
// after the delegated optimizer failed.
var ErrOptimizationDegraded = errors.New("delegated optimization unavailable, used local heuristic")

// DefaultTimeout bounds every delegated optimization call.
const DefaultTimeout = 15 * time.Second

// Strategy names the method that produced an order.
type Strategy string

// Strategies.
const (
	StrategyLocal     Strategy = "local"
	StrategyDelegated Strategy = "delegated"
)

// Result is the outcome of Optimize. Stops is always a complete, contiguously
// ordered copy of the input, even when Degraded is set.
type Result struct {
	Stops    []tour.Stop
	Strategy Strategy

	// Degraded is set when the delegate failed and the local heuristic was
	// used instead. Err then wraps ErrOptimizationDegraded and the cause.
	Degraded bool
	Err      error
}

// Recorder counts optimization runs. telemetry.PlanningMetrics satisfies it.
type Recorder interface {
	RecordOptimization(ctx context.Context, strategy string, degraded bool)
}

// Config holds optimizer configuration.
type Config struct {
	// Delegate computes orders remotely. Optional; without it the local
	// heuristic is always used.
	Delegate routing.TripOptimizer

	// Timeout for delegated calls (default: 15s).
	Timeout time.Duration

	// TwoOpt refines local orders with 2-opt.
	TwoOpt bool

	// Logger for optimizer operations.
	Logger zerolog.Logger

	// Metrics counts runs. Optional.
	Metrics Recorder
}

// Optimizer orders tour stops.
type Optimizer struct {
	delegate routing.TripOptimizer
	timeout  time.Duration
	twoOpt   bool
	logger   zerolog.Logger
	metrics  Recorder
}

// New creates an optimizer.
func New(cfg Config) *Optimizer {
	o := &Optimizer{
		delegate: cfg.Delegate,
		timeout:  cfg.Timeout,
		twoOpt:   cfg.TwoOpt,
		logger:   cfg.Logger,
		metrics:  cfg.Metrics,
	}
	if o.timeout <= 0 {
		o.timeout = DefaultTimeout
	}
	return o
}

// Optimize orders stops for a visit starting at start. It never fails: any
// delegate error, timeout or invalid answer falls back to the local
// heuristic and is reported through Result.Degraded. Statuses are untouched.
func (o *Optimizer) Optimize(ctx context.Context, start geo.Coordinate, stops []tour.Stop) Result {
	res := o.optimize(ctx, start, stops)
	if o.metrics != nil {
		o.metrics.RecordOptimization(ctx, string(res.Strategy), res.Degraded)
	}
	return res
}

func (o *Optimizer) optimize(ctx context.Context, start geo.Coordinate, stops []tour.Stop) Result {
	switch len(stops) {
	case 0:
		return Result{Stops: []tour.Stop{}, Strategy: StrategyLocal}
	case 1:
		only := stops[0]
		only.Order = 0
		return Result{Stops: []tour.Stop{only}, Strategy: StrategyLocal}
	}

	if o.delegate == nil {
		return Result{Stops: o.local(start, stops), Strategy: StrategyLocal}
	}

	ordered, err := o.delegated(ctx, start, stops)
	if err == nil {
		return Result{Stops: ordered, Strategy: StrategyDelegated}
	}

	o.logger.Warn().
		Err(err).
		Int("stops", len(stops)).
		Msg("delegated optimization failed, falling back to nearest neighbor")

	return Result{
		Stops:    o.local(start, stops),
		Strategy: StrategyLocal,
		Degraded: true,
		Err:      fmt.Errorf("%w: %w", ErrOptimizationDegraded, err),
	}
}

func (o *Optimizer) local(start geo.Coordinate, stops []tour.Stop) []tour.Stop {
	ordered := NearestNeighbor(start, stops)
	if o.twoOpt {
		ordered = ImproveTwoOpt(start, ordered)
	}
	return ordered
}

func (o *Optimizer) delegated(ctx context.Context, start geo.Coordinate, stops []tour.Stop) ([]tour.Stop, error) {
	callCtx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	points := lo.Map(stops, func(s tour.Stop, _ int) geo.Coordinate { return s.Position })

	// The call runs apart so a delegate that ignores ctx still cannot hold
	// the plan past the deadline.
	type answer struct {
		perm []int
		err  error
	}
	done := make(chan answer, 1)
	go func() {
		perm, err := o.delegate.OptimizeTrip(callCtx, routing.TripRequest{Start: start, Points: points})
		done <- answer{perm: perm, err: err}
	}()

	var perm []int
	select {
	case <-callCtx.Done():
		return nil, callCtx.Err()
	case a := <-done:
		if a.err != nil {
			return nil, a.err
		}
		perm = a.perm
	}
	if err := routing.ValidatePermutation(perm, len(stops)); err != nil {
		return nil, err
	}

	ordered := make([]tour.Stop, len(perm))
	for i, idx := range perm {
		ordered[i] = stops[idx]
		ordered[i].Order = i
	}
	return ordered, nil
}
