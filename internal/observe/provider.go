package observe

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// ProviderConfig configures the OpenTelemetry meter provider.
type ProviderConfig struct {
	// ServiceName is reserved for future resource attribution; the
	// Prometheus exporter bridge does not currently attach resource
	// labels to scraped series.
	ServiceName string
}

// InitProvider sets up a [sdkmetric.MeterProvider] backed by a Prometheus
// exporter and registers it as the global OTel meter provider, so that
// [otel.GetMeterProvider] (and therefore [DefaultMetrics]) picks it up.
// Metrics are scraped via the Prometheus exporter's registered
// [promhttp.Handler], mounted by the caller at /metrics.
//
// Returns a shutdown function that flushes and closes the exporter. Call it
// in a defer from main().
func InitProvider(ctx context.Context, cfg ProviderConfig) (shutdown func(context.Context) error, err error) {
	promExp, err := promexporter.New()
	if err != nil {
		return nil, err
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(promExp),
	)
	otel.SetMeterProvider(mp)

	return mp.Shutdown, nil
}

// MetricsHandler returns the Prometheus scrape endpoint handler. Mount it on
// a dedicated metrics listener, separate from the application's own HTTP
// server, so /metrics is never gated by application auth middleware.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
