/*
Package observability turns engine lifecycle hooks into Prometheus metrics and
structured log lines.

	reg := prometheus.NewRegistry()
	metrics := observability.NewMetrics(reg)
	hooks := metrics.Hooks().Merge(observability.LoggingHooks(logger))
	eng, _ := genie.New("flow.yaml", genie.WithLifecycleHooks(hooks))
	http.Handle("/metrics", observability.Handler(reg))
*/
package observability
