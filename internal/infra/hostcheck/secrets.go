package hostcheck

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/spf13/viper"
	"github.com/zricethezav/gitleaks/v8/config"
	"github.com/zricethezav/gitleaks/v8/detect"
	"github.com/zricethezav/gitleaks/v8/report"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// SecretScanner looks for leaked credentials in page source using the
// gitleaks default rule set.
type SecretScanner struct {
	detector *detect.Detector
	tracer   trace.Tracer
}

// NewSecretScanner builds a scanner over the embedded gitleaks config.
func NewSecretScanner(tracer trace.Tracer) (*SecretScanner, error) {
	detector, err := newDetector()
	if err != nil {
		return nil, err
	}
	return &SecretScanner{detector: detector, tracer: tracer}, nil
}

func newDetector() (*detect.Detector, error) {
	v := viper.New()
	v.SetConfigType("toml")
	if err := v.ReadConfig(bytes.NewBufferString(config.DefaultConfig)); err != nil {
		return nil, fmt.Errorf("failed to read embedded gitleaks config: %w", err)
	}

	var vc config.ViperConfig
	if err := v.Unmarshal(&vc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal gitleaks config: %w", err)
	}

	cfg, err := vc.Translate()
	if err != nil {
		return nil, fmt.Errorf("failed to translate gitleaks config: %w", err)
	}
	return detect.NewDetector(cfg), nil
}

// Scan returns the findings in r.
func (s *SecretScanner) Scan(ctx context.Context, r io.Reader) ([]report.Finding, error) {
	_, span := s.tracer.Start(ctx, "hostcheck.detect_secrets",
		trace.WithAttributes(attribute.Int("num_rules", len(s.detector.Config.Rules))))
	defer span.End()

	findings, err := s.detector.DetectReader(r, 32)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "detection failed")
		return nil, fmt.Errorf("secret detection: %w", err)
	}
	span.SetAttributes(attribute.Int("findings.count", len(findings)))
	return findings, nil
}
