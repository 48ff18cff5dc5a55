package mid

import (
	"context"
	"net/http"

	"github.com/sachin5713/unified-site-health-dashboard/internal/api/auth"
	"github.com/sachin5713/unified-site-health-dashboard/internal/api/errs"
	"github.com/sachin5713/unified-site-health-dashboard/pkg/web"
)

// Authenticate rejects requests without a valid bearer token.
func Authenticate(a *auth.Auth) web.MidFunc {
	m := func(next web.HandlerFunc) web.HandlerFunc {
		h := func(ctx context.Context, r *http.Request) web.Encoder {
			if err := a.Authenticate(r.Header.Get("Authorization")); err != nil {
				return errs.New(errs.Unauthenticated, err)
			}

			return next(ctx, r)
		}

		return h
	}

	return m
}

// Nonce rejects requests whose anti-forgery nonce is missing or expired.
func Nonce(a *auth.Auth) web.MidFunc {
	m := func(next web.HandlerFunc) web.HandlerFunc {
		h := func(ctx context.Context, r *http.Request) web.Encoder {
			if err := a.VerifyNonce(r.Header.Get(auth.NonceHeader)); err != nil {
				return errs.New(errs.PermissionDenied, err)
			}

			return next(ctx, r)
		}

		return h
	}

	return m
}
