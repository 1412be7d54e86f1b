// Package tracing sets up OpenTelemetry tracing for pipeline runs. Stages
// open one span each; the exporter is chosen by configuration and defaults
// to none, in which case spans are dropped.
package tracing

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const tracerName = "github.com/raphaelgruber/escalate-go"

// Exporters.
const (
	ExporterNone   = "none"
	ExporterStdout = "stdout"
	ExporterOTLP   = "otlp"
)

// Config selects where spans go.
type Config struct {
	Exporter string `yaml:"exporter"`
	// Protocol is grpc or http/protobuf for the otlp exporter.
	Protocol   string  `yaml:"protocol"`
	Endpoint   string  `yaml:"endpoint"`
	Insecure   bool    `yaml:"insecure"`
	SampleRate float64 `yaml:"sample_rate"`

	ServiceName    string `yaml:"-"`
	ServiceVersion string `yaml:"-"`
}

// DefaultConfig disables tracing.
func DefaultConfig() Config {
	return Config{
		Exporter:    ExporterNone,
		Protocol:    "grpc",
		Endpoint:    "localhost:4317",
		Insecure:    true,
		SampleRate:  1.0,
		ServiceName: "escalate",
	}
}

// Validate checks the exporter and protocol names.
func (c Config) Validate() error {
	switch c.Exporter {
	case "", ExporterNone, ExporterStdout:
	case ExporterOTLP:
		switch c.Protocol {
		case "", "grpc", "http/protobuf":
		default:
			return fmt.Errorf("unknown otlp protocol %q (want grpc or http/protobuf)", c.Protocol)
		}
	default:
		return fmt.Errorf("unknown trace exporter %q", c.Exporter)
	}
	return nil
}

// Option adjusts Setup.
type Option func(*options)

type options struct {
	exporter sdktrace.SpanExporter
	writer   io.Writer
}

// WithExporter replaces the configured exporter (for testing).
func WithExporter(exp sdktrace.SpanExporter) Option {
	return func(o *options) { o.exporter = exp }
}

// WithWriter sets where the stdout exporter prints. Defaults to stderr so
// spans never mix with command output.
func WithWriter(w io.Writer) Option {
	return func(o *options) { o.writer = w }
}

// Setup installs the global tracer provider and returns its shutdown func,
// which flushes pending spans.
func Setup(ctx context.Context, cfg Config, opts ...Option) (func(context.Context) error, error) {
	o := options{writer: os.Stderr}
	for _, opt := range opts {
		opt(&o)
	}

	exp := o.exporter
	if exp == nil {
		if cfg.Exporter == "" || cfg.Exporter == ExporterNone {
			otel.SetTracerProvider(noop.NewTracerProvider())
			return func(context.Context) error { return nil }, nil
		}
		var err error
		exp, err = newExporter(ctx, cfg, o.writer)
		if err != nil {
			return nil, err
		}
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(newResource(cfg)),
		sdktrace.WithSampler(sampler(cfg.SampleRate)),
	)
	otel.SetTracerProvider(tp)
	return tp.Shutdown, nil
}

func newResource(cfg Config) *resource.Resource {
	name := cfg.ServiceName
	if name == "" {
		name = "escalate"
	}
	attrs := []attribute.KeyValue{semconv.ServiceName(name)}
	if cfg.ServiceVersion != "" {
		attrs = append(attrs, semconv.ServiceVersion(cfg.ServiceVersion))
	}
	return resource.NewWithAttributes(semconv.SchemaURL, attrs...)
}

func newExporter(ctx context.Context, cfg Config, w io.Writer) (sdktrace.SpanExporter, error) {
	var (
		exp sdktrace.SpanExporter
		err error
	)
	switch cfg.Exporter {
	case ExporterStdout:
		exp, err = stdouttrace.New(stdouttrace.WithWriter(w), stdouttrace.WithPrettyPrint())
	case ExporterOTLP:
		endpoint := stripScheme(cfg.Endpoint)
		if cfg.Protocol == "http/protobuf" {
			opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(endpoint)}
			if cfg.Insecure {
				opts = append(opts, otlptracehttp.WithInsecure())
			}
			exp, err = otlptracehttp.New(ctx, opts...)
		} else {
			opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(endpoint)}
			if cfg.Insecure {
				opts = append(opts, otlptracegrpc.WithInsecure())
			}
			exp, err = otlptracegrpc.New(ctx, opts...)
		}
	default:
		return nil, fmt.Errorf("unknown trace exporter %q", cfg.Exporter)
	}
	if err != nil {
		return nil, fmt.Errorf("create trace exporter: %w", err)
	}
	return exp, nil
}

func sampler(rate float64) sdktrace.Sampler {
	var s sdktrace.Sampler
	switch {
	case rate >= 1:
		s = sdktrace.AlwaysSample()
	case rate <= 0:
		s = sdktrace.NeverSample()
	default:
		s = sdktrace.TraceIDRatioBased(rate)
	}
	return sdktrace.ParentBased(s)
}

// stripScheme removes http:// or https://; the OTLP exporters want host:port.
func stripScheme(endpoint string) string {
	endpoint = strings.TrimPrefix(endpoint, "https://")
	return strings.TrimPrefix(endpoint, "http://")
}

// Start opens a span on the global tracer provider.
func Start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, name, trace.WithAttributes(attrs...))
}

// End records err on span, if any, and ends it.
func End(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
