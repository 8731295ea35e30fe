package telemetry_test

import (
	"context"

	"github.com/kie-chi/dnsbuilder/pkg/telemetry"
)

// Example_basicSetup demonstrates basic telemetry setup.
func Example_basicSetup() {
	// Create configuration
	cfg := telemetry.DefaultConfig()
	cfg.ServiceName = "dnsb"
	cfg.ServiceVersion = "1.0.0"

	// Initialize telemetry
	tel, err := telemetry.NewTelemetry(cfg)
	if err != nil {
		panic(err)
	}
	defer tel.Shutdown(context.Background())

	// Add telemetry to context
	ctx := tel.WithContext(context.Background())

	// Use telemetry
	logger := telemetry.FromContext(ctx)
	logger.Info("Compiler started")

	// Output can vary, so we don't specify output for this example
}

// Example_structuredLogging demonstrates structured logging features.
func Example_structuredLogging() {
	cfg := telemetry.DevelopmentConfig()
	cfg.Logging.Output = "stdout"

	tel, _ := telemetry.NewTelemetry(cfg)
	defer tel.Shutdown(context.Background())

	// Component-specific logger
	logger := tel.Logger.NewComponentLogger("builder")

	// Compile-run context fields
	logger = logger.WithRunID("run-123").WithStage("substitution").WithService("recursor")

	// Log at different levels
	logger.Debug("Resolving cross-service variables")
	logger.Info("Service compiled")

	// Output can vary, so we don't specify output for this example
}

// Example_compileMetrics demonstrates recording compile metrics.
func Example_compileMetrics() {
	cfg := telemetry.DefaultConfig()
	cfg.Metrics.Enabled = true

	tel, _ := telemetry.NewTelemetry(cfg)
	defer tel.Shutdown(context.Background())

	tel.Metrics.RecordCompileStarted("build")
	timer := telemetry.NewTimer()

	// ... compile ...

	tel.Metrics.RecordCompileCompleted("success", timer.Duration())
	tel.Metrics.RecordServiceCompiled("bind", "success")

	// Output can vary, so we don't specify output for this example
}
