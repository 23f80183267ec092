// Package sample builds demo OTLP payloads: a small multi-service trace and
// a few days of outcome points. The send-test client, the demo store and the
// end-to-end tests share them.
package sample

import (
	"time"

	commonpb "go.opentelemetry.io/proto/otlp/common/v1"
	metricspb "go.opentelemetry.io/proto/otlp/metrics/v1"
	resourcepb "go.opentelemetry.io/proto/otlp/resource/v1"
	tracepb "go.opentelemetry.io/proto/otlp/trace/v1"

	"github.com/tobert/tracestat/internal/storage"
	"github.com/tobert/tracestat/internal/usage"
)

// TraceID is the id of the trace returned by Trace.
var TraceID = []byte{0xde, 0xad, 0xbe, 0xef, 0xca, 0xfe, 0xba, 0xbe, 0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08}

// TraceIDHex is TraceID hex encoded, as storage indexes it.
const TraceIDHex = "deadbeefcafebabe0102030405060708"

// Projects are the demo projects outcome points are reported for.
var Projects = []usage.Project{
	{ID: "1", Slug: "frontend"},
	{ID: "2", Slug: "backend"},
	{ID: "3", Slug: "worker"},
}

func str(k, v string) *commonpb.KeyValue {
	return &commonpb.KeyValue{Key: k, Value: &commonpb.AnyValue{Value: &commonpb.AnyValue_StringValue{StringValue: v}}}
}

func integer(k string, v int64) *commonpb.KeyValue {
	return &commonpb.KeyValue{Key: k, Value: &commonpb.AnyValue{Value: &commonpb.AnyValue_IntValue{IntValue: v}}}
}

func spanID(b byte) []byte {
	return []byte{b, b, b, b, b, b, b, b}
}

func resource(service string) *resourcepb.Resource {
	return &resourcepb.Resource{Attributes: []*commonpb.KeyValue{
		str("service.name", service),
		str("deployment.environment", "development"),
	}}
}

func span(id, parent byte, name string, kind tracepb.Span_SpanKind, start time.Time, d time.Duration) *tracepb.Span {
	s := &tracepb.Span{
		TraceId:           TraceID,
		SpanId:            spanID(id),
		Name:              name,
		Kind:              kind,
		StartTimeUnixNano: uint64(start.UnixNano()),
		EndTimeUnixNano:   uint64(start.Add(d).UnixNano()),
		Status:            &tracepb.Status{Code: tracepb.Status_STATUS_CODE_OK},
	}
	if parent != 0 {
		s.ParentSpanId = spanID(parent)
	}
	return s
}

// Trace returns a trace starting at start: a frontend request fanning out to
// the backend, a failing worker job, and one span whose parent was never
// sent.
func Trace(start time.Time) []*tracepb.ResourceSpans {
	root := span(0x11, 0, "GET /api/users", tracepb.Span_SPAN_KIND_SERVER, start, 150*time.Millisecond)
	root.Attributes = []*commonpb.KeyValue{
		str("transaction.op", "http.server"),
		str("http.method", "GET"),
		integer("http.status_code", 200),
	}

	query := span(0x22, 0x11, "SELECT users", tracepb.Span_SPAN_KIND_CLIENT, start.Add(10*time.Millisecond), 90*time.Millisecond)
	query.Attributes = []*commonpb.KeyValue{str("transaction.op", "db.query"), str("db.system", "postgresql")}

	cache := span(0x33, 0x11, "cache.get users", tracepb.Span_SPAN_KIND_CLIENT, start.Add(2*time.Millisecond), 5*time.Millisecond)

	job := span(0x44, 0x22, "send welcome email", tracepb.Span_SPAN_KIND_CONSUMER, start.Add(110*time.Millisecond), 60*time.Millisecond)
	job.Status = &tracepb.Status{Code: tracepb.Status_STATUS_CODE_ERROR, Message: "smtp timeout"}
	job.Events = []*tracepb.Span_Event{{
		Name:         "exception",
		TimeUnixNano: uint64(start.Add(165 * time.Millisecond).UnixNano()),
		Attributes:   []*commonpb.KeyValue{str("exception.type", "TimeoutError"), str("exception.message", "smtp timeout")},
	}}

	orphan := span(0x55, 0x99, "late callback", tracepb.Span_SPAN_KIND_INTERNAL, start.Add(120*time.Millisecond), 20*time.Millisecond)

	return []*tracepb.ResourceSpans{
		{Resource: resource("frontend"), ScopeSpans: []*tracepb.ScopeSpans{{Spans: []*tracepb.Span{root, cache}}}},
		{Resource: resource("backend"), ScopeSpans: []*tracepb.ScopeSpans{{Spans: []*tracepb.Span{query}}}},
		{Resource: resource("worker"), ScopeSpans: []*tracepb.ScopeSpans{{Spans: []*tracepb.Span{job, orphan}}}},
	}
}

// Outcomes returns one point per day, project, category and outcome for the
// days before now. Quantities are deterministic so repeated runs agree.
func Outcomes(now time.Time, days int) []*metricspb.ResourceMetrics {
	categories := []usage.DataCategory{usage.CategoryError, usage.CategoryTransaction, usage.CategoryAttachment}
	outcomes := []usage.Outcome{usage.OutcomeAccepted, usage.OutcomeFiltered, usage.OutcomeDropped, usage.OutcomeInvalid}

	var points []*metricspb.NumberDataPoint
	for d := 0; d < days; d++ {
		at := now.Add(-time.Duration(d) * 24 * time.Hour)
		for pi, p := range Projects {
			for ci, c := range categories {
				for oi, o := range outcomes {
					base := int64((pi+1)*100 + ci*10 + d)
					quantity := base >> uint(oi)
					if c == usage.CategoryAttachment {
						quantity *= 1024
					}
					points = append(points, &metricspb.NumberDataPoint{
						TimeUnixNano: uint64(at.UnixNano()),
						Value:        &metricspb.NumberDataPoint_AsInt{AsInt: quantity},
						Attributes: []*commonpb.KeyValue{
							str("category", string(c)),
							str("outcome", string(o)),
							str("project", p.ID),
							str("project.slug", p.Slug),
							integer("times_seen", base>>uint(oi+1)+1),
						},
					})
				}
			}
		}
	}

	return []*metricspb.ResourceMetrics{{
		Resource: resource("tracestat-sendtest"),
		ScopeMetrics: []*metricspb.ScopeMetrics{{
			Metrics: []*metricspb.Metric{{
				Name: storage.OutcomeMetricName,
				Data: &metricspb.Metric_Sum{Sum: &metricspb.Sum{
					AggregationTemporality: metricspb.AggregationTemporality_AGGREGATION_TEMPORALITY_DELTA,
					DataPoints:             points,
				}},
			}},
		}},
	}}
}
