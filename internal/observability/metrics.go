package observability

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/a7mdelbanna/clients-plus-gateway/internal/config"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
)

type AppMetrics struct {
	tokenRefreshCounter    metric.Int64Counter
	portalChallengeCounter metric.Int64Counter
	portalVerifyCounter    metric.Int64Counter
	connTransitionCounter  metric.Int64Counter
	storageOpCounter       metric.Int64Counter
}

var (
	metricsMu  sync.RWMutex
	appMetrics *AppMetrics
)

func InitMetrics(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*sdkmetric.MeterProvider, error) {
	if !cfg.OTELMetricsEnabled {
		mp := sdkmetric.NewMeterProvider()
		otel.SetMeterProvider(mp)
		logger.Info("otel metrics disabled")
		return mp, nil
	}

	opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(cfg.OTELExporterOTLPEndpoint)}
	if cfg.OTELExporterOTLPInsecure {
		opts = append(opts, otlpmetricgrpc.WithInsecure())
	}
	exporter, err := otlpmetricgrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create otlp metric exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			attribute.String("service.name", cfg.OTELServiceName),
			attribute.String("deployment.environment", cfg.OTELEnvironment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("create metric resource: %w", err)
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(cfg.OTELMetricsExportInterval))
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(reader),
	)
	otel.SetMeterProvider(mp)

	meter := mp.Meter("clients-plus-gateway")
	refreshCounter, err := meter.Int64Counter("session.token.refresh.attempts")
	if err != nil {
		return nil, err
	}
	challengeCounter, err := meter.Int64Counter("portal.challenge.events")
	if err != nil {
		return nil, err
	}
	verifyCounter, err := meter.Int64Counter("portal.verify.attempts")
	if err != nil {
		return nil, err
	}
	transitionCounter, err := meter.Int64Counter("realtime.connection.transitions")
	if err != nil {
		return nil, err
	}
	storageCounter, err := meter.Int64Counter("storage.operations")
	if err != nil {
		return nil, err
	}

	metricsMu.Lock()
	appMetrics = &AppMetrics{
		tokenRefreshCounter:    refreshCounter,
		portalChallengeCounter: challengeCounter,
		portalVerifyCounter:    verifyCounter,
		connTransitionCounter:  transitionCounter,
		storageOpCounter:       storageCounter,
	}
	metricsMu.Unlock()

	logger.Info("otel metrics initialized", "endpoint", cfg.OTELExporterOTLPEndpoint)
	return mp, nil
}

// RecordTokenRefresh counts a refresh attempt. trigger distinguishes reactive
// (401-driven), proactive (renewal ticker) and explicit refreshes.
func RecordTokenRefresh(trigger, status string) {
	metricsMu.RLock()
	m := appMetrics
	metricsMu.RUnlock()
	if m == nil {
		return
	}
	m.tokenRefreshCounter.Add(context.Background(), 1,
		metric.WithAttributes(
			attribute.String("trigger", trigger),
			attribute.String("status", status),
		),
	)
}

func RecordPortalChallenge(provider, status string) {
	metricsMu.RLock()
	m := appMetrics
	metricsMu.RUnlock()
	if m == nil {
		return
	}
	m.portalChallengeCounter.Add(context.Background(), 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("status", status),
		),
	)
}

func RecordPortalVerify(status string) {
	metricsMu.RLock()
	m := appMetrics
	metricsMu.RUnlock()
	if m == nil {
		return
	}
	m.portalVerifyCounter.Add(context.Background(), 1, metric.WithAttributes(attribute.String("status", status)))
}

func RecordConnectionTransition(from, to string) {
	metricsMu.RLock()
	m := appMetrics
	metricsMu.RUnlock()
	if m == nil {
		return
	}
	m.connTransitionCounter.Add(context.Background(), 1,
		metric.WithAttributes(
			attribute.String("from", from),
			attribute.String("to", to),
		),
	)
}

func RecordStorageOperation(ctx context.Context, tier, op, status string) {
	metricsMu.RLock()
	m := appMetrics
	metricsMu.RUnlock()
	if m == nil {
		return
	}
	m.storageOpCounter.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("tier", tier),
			attribute.String("operation", op),
			attribute.String("status", status),
		),
	)
}
