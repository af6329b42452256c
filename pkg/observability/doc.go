// Package observability provides structured logging, Prometheus metrics,
// health probes and OpenTelemetry tracing for the assessor service.
//
// # Structured Logging
//
//	logger := observability.NewLogger(observability.InfoLevel, os.Stdout)
//	logger.WithField("actor_id", id).Warn("audit append failed")
//
// # Prometheus Metrics
//
//	metrics := observability.NewMetrics(prometheus.NewRegistry())
//	metrics.RoleSwitchesTotal.WithLabelValues("role_switch", "success").Inc()
//	http.Handle("/metrics", metrics.Handler())
//
// # Health Checks
//
//	checker := observability.NewHealthChecker(db, redisClient)
//	observability.RegisterHealthRoutes(mux, checker)
//
// # Tracing
//
//	shutdown, err := observability.InitTracing(ctx, cfg, logger)
//	defer shutdown(ctx)
//	ctx, span := observability.StartSpan(ctx, "sessionstore.CreateImpersonationSession")
//	defer func() { observability.EndSpan(span, err) }()
package observability
