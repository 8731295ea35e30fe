// Package telemetry provides observability instrumentation for the compiler.
//
// The package integrates structured logging (zerolog), tracing
// (OpenTelemetry) and metrics (Prometheus) into a unified system for
// monitoring and debugging compile runs.
//
// Initialize telemetry at application startup:
//
//	cfg := telemetry.DefaultConfig()
//	cfg.ServiceVersion = "1.0.0"
//
//	tel, err := telemetry.NewTelemetry(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer tel.Shutdown(context.Background())
//
// Add telemetry to a context and retrieve the logger downstream:
//
//	ctx = tel.WithContext(ctx)
//	log := telemetry.FromContext(ctx).WithService("resolver")
//	log.Info("rendering configuration")
//
// Long-lived commands may expose Prometheus metrics over HTTP with
// StartMetricsServer; one-shot compiles record into the same registry and
// simply drop it at exit.
package telemetry
