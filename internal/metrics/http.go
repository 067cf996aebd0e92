package metrics

import (
	"fmt"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// httpInstruments are the ops API instruments, named under the metrics
// namespace.
type httpInstruments struct {
	requests metric.Int64Counter
	latency  metric.Float64Histogram
	inFlight metric.Int64UpDownCounter
}

// newHTTPInstruments registers the request counter, the latency histogram in
// seconds and the in-flight gauge on meter.
func newHTTPInstruments(meter metric.Meter, namespace string) (*httpInstruments, error) {
	i := &httpInstruments{}

	var err error
	if i.requests, err = meter.Int64Counter(
		fmt.Sprintf("%s_http_requests_total", namespace),
		metric.WithDescription("Total number of ops API requests"),
		metric.WithUnit("{request}"),
	); err != nil {
		return nil, err
	}
	if i.latency, err = meter.Float64Histogram(
		fmt.Sprintf("%s_http_request_duration_seconds", namespace),
		metric.WithDescription("Ops API request latency in seconds"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}
	if i.inFlight, err = meter.Int64UpDownCounter(
		fmt.Sprintf("%s_http_requests_in_flight", namespace),
		metric.WithDescription("Ops API requests currently being served"),
		metric.WithUnit("{request}"),
	); err != nil {
		return nil, err
	}
	return i, nil
}

// HTTPMetricsMiddleware records request count, latency and in-flight requests.
// Requests are labelled by route pattern (/v1/tenants/:tenant_id/keys), never
// by the raw path, so tenant identifiers do not become label values.
func HTTPMetricsMiddleware(meterProvider metric.MeterProvider, namespace string) gin.HandlerFunc {
	instruments, err := newHTTPInstruments(meterProvider.Meter(namespace), namespace)
	if err != nil {
		return func(c *gin.Context) {
			c.Next()
		}
	}

	return func(c *gin.Context) {
		ctx := c.Request.Context()
		start := time.Now()
		instruments.inFlight.Add(ctx, 1)

		c.Next()

		instruments.inFlight.Add(ctx, -1)
		attrs := metric.WithAttributes(
			attribute.String("method", c.Request.Method),
			attribute.String("route", routeLabel(c.FullPath())),
			attribute.String("status_code", strconv.Itoa(c.Writer.Status())),
		)
		instruments.requests.Add(ctx, 1, attrs)
		instruments.latency.Record(ctx, time.Since(start).Seconds(), attrs)
	}
}

// routeLabel returns "unmatched" for requests no route handled.
func routeLabel(fullPath string) string {
	if fullPath == "" {
		return "unmatched"
	}
	return fullPath
}
