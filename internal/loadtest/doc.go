// Package loadtest runs a journey under a ramping virtual-user schedule.
//
// # Overview
//
// An Executor owns a set of virtual users (VUs). Each VU is a goroutine that
// calls Iterator.Iterate in a loop. Every 100ms a controller compares the
// number of active VUs with the schedule and starts or retires VUs to match:
//
//	cfg := loadtest.ConfigFromScenario(sc)
//	exec := loadtest.NewExecutor(cfg, journey, registry, prom, logger)
//	info, err := exec.Run(ctx)
//
// # Schedule
//
// The schedule is a list of stages. Within a stage the VU target moves
// linearly from the previous stage's target to the stage's own target; see
// TargetAt. The first stage starts from StartVUs.
//
// # Stopping
//
// A VU retired during a ramp-down finishes its current iteration. If it is
// still busy after GracefulRampDown its context is canceled. When the last
// stage ends every VU gets the same treatment bounded by GracefulStop.
// Interrupted iterations are counted separately and never reach the
// iterations metric.
//
// # Metrics
//
// The executor maintains vus, vus_max, iterations and iteration_duration in
// the run's metrics.Registry and mirrors VU count and iterations to the
// optional Prometheus collector.
package loadtest
