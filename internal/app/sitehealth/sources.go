package sitehealth

import (
	"context"

	domain "github.com/sachin5713/unified-site-health-dashboard/internal/domain/sitehealth"
)

// StaticTargets is a fixed work list, usually loaded from configuration.
type StaticTargets []domain.Target

// Targets returns a copy of the list.
func (s StaticTargets) Targets(context.Context) ([]domain.Target, error) {
	return append([]domain.Target(nil), s...), nil
}

// StaticCredentials serves a fixed API key.
type StaticCredentials struct{ APIKey string }

// Credentials returns the configured key.
func (s StaticCredentials) Credentials(context.Context) (domain.Credentials, error) {
	return domain.Credentials{APIKey: s.APIKey}, nil
}
