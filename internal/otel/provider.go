// Package otel builds the OpenTelemetry log pipeline that session logs are
// exported through.
package otel

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutlog"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// DefaultServiceName names the exporting service when none is configured.
const DefaultServiceName = "missioncore"

// Config selects where records go. Output and Endpoint may both be set.
type Config struct {
	ServiceName  string
	Version      string
	BatchTimeout time.Duration
	Output       io.Writer
	Endpoint     string
	Insecure     bool
}

// Provider owns the log pipeline. A nil *Provider is valid and does nothing,
// so callers need not check whether export is enabled.
type Provider struct {
	logs *sdklog.LoggerProvider
}

// New builds a provider with one batch processor per configured output.
func New(ctx context.Context, cfg Config) (*Provider, error) {
	exporters, err := logExporters(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if len(exporters) == 0 {
		return nil, errors.New("otel: no log output or endpoint configured")
	}

	name := cfg.ServiceName
	if name == "" {
		name = DefaultServiceName
	}
	attrs := resource.WithAttributes(semconv.ServiceName(name))
	if cfg.Version != "" {
		attrs = resource.WithAttributes(semconv.ServiceName(name), semconv.ServiceVersion(cfg.Version))
	}
	res, err := resource.New(ctx, attrs)
	if err != nil {
		return nil, fmt.Errorf("otel: resource: %w", err)
	}

	var batch []sdklog.BatchProcessorOption
	if cfg.BatchTimeout > 0 {
		batch = append(batch, sdklog.WithExportTimeout(cfg.BatchTimeout))
	}
	opts := []sdklog.LoggerProviderOption{sdklog.WithResource(res)}
	for _, exp := range exporters {
		opts = append(opts, sdklog.WithProcessor(sdklog.NewBatchProcessor(exp, batch...)))
	}
	return &Provider{logs: sdklog.NewLoggerProvider(opts...)}, nil
}

func logExporters(ctx context.Context, cfg Config) ([]sdklog.Exporter, error) {
	var out []sdklog.Exporter
	if cfg.Output != nil {
		exp, err := stdoutlog.New(stdoutlog.WithWriter(cfg.Output))
		if err != nil {
			return nil, fmt.Errorf("otel: writer exporter: %w", err)
		}
		out = append(out, exp)
	}
	if cfg.Endpoint != "" {
		opts := []otlploghttp.Option{otlploghttp.WithEndpoint(cfg.Endpoint)}
		if cfg.Insecure {
			opts = append(opts, otlploghttp.WithInsecure())
		}
		exp, err := otlploghttp.New(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("otel: otlp exporter %s: %w", cfg.Endpoint, err)
		}
		out = append(out, exp)
	}
	return out, nil
}

// LoggerProvider feeds the otelslog bridge. Nil when export is off.
func (p *Provider) LoggerProvider() *sdklog.LoggerProvider {
	if p == nil {
		return nil
	}
	return p.logs
}

// Flush exports buffered records, typically when a session ends.
func (p *Provider) Flush(ctx context.Context) error {
	if p == nil {
		return nil
	}
	if err := p.logs.ForceFlush(ctx); err != nil {
		return fmt.Errorf("otel: flush: %w", err)
	}
	return nil
}

// Shutdown flushes and stops every processor.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p == nil {
		return nil
	}
	if err := p.logs.Shutdown(ctx); err != nil {
		return fmt.Errorf("otel: shutdown: %w", err)
	}
	return nil
}
