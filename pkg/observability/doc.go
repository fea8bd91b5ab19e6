/*
Package observability turns harness lifecycle events into Prometheus metrics.

Metrics owns a dedicated registry so several runs (or tests) never collide on the
global default. Wire it into a run through its hooks:

	m := observability.NewMetrics()
	h := lockstep.New(binaries, database, lockstep.WithLifecycleHooks(m.Hooks()))
	report := h.Run(ctx)
	m.ObserveRun(report)

The collected series can be served with Handler or dumped for the node_exporter
textfile collector with WriteTextfile.
*/
package observability
