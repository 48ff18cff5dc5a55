package pagespeed

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"syscall"

	"github.com/sachin5713/unified-site-health-dashboard/internal/domain/sitehealth"
)

// classifyTransportError maps a failed round trip to a probe error.
func classifyTransportError(err error) *sitehealth.ProbeError {
	kind := sitehealth.ProbeUnexpected

	var (
		netErr     net.Error
		dnsErr     *net.DNSError
		opErr      *net.OpError
		certErr    *tls.CertificateVerificationError
		recordErr  tls.RecordHeaderError
		unknownCA  x509.UnknownAuthorityError
		hostErr    x509.HostnameError
		invalidErr x509.CertificateInvalidError
	)

	switch {
	case errors.Is(err, context.DeadlineExceeded),
		errors.As(err, &netErr) && netErr.Timeout():
		kind = sitehealth.ProbeTimeout
	case errors.As(err, &dnsErr):
		kind = sitehealth.ProbeInvalidTarget
	case errors.As(err, &certErr),
		errors.As(err, &recordErr),
		errors.As(err, &unknownCA),
		errors.As(err, &hostErr),
		errors.As(err, &invalidErr):
		kind = sitehealth.ProbeTLS
	case errors.Is(err, syscall.ECONNREFUSED),
		errors.Is(err, syscall.EHOSTUNREACH),
		errors.Is(err, syscall.ENETUNREACH),
		errors.As(err, &opErr) && opErr.Op == "dial":
		kind = sitehealth.ProbeUnreachable
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF), errors.Is(err, syscall.ECONNRESET):
		kind = sitehealth.ProbeEmptyResponse
	}

	return sitehealth.NewProbeError(kind, 0, err.Error(), err)
}

// classifyStatus maps a non-200 response status to a probe error.
func classifyStatus(code int) *sitehealth.ProbeError {
	kind := sitehealth.ProbeHTTPStatus
	switch code {
	case http.StatusBadRequest:
		kind = sitehealth.ProbeInvalidTarget
	case http.StatusForbidden:
		kind = sitehealth.ProbeAuthInvalid
	case http.StatusNotFound:
		kind = sitehealth.ProbeNotFound
	case http.StatusTooManyRequests:
		kind = sitehealth.ProbeQuotaExceeded
	case http.StatusInternalServerError:
		kind = sitehealth.ProbeServerError
	}
	return sitehealth.NewProbeError(kind, code, "", nil)
}

// classifyAPIError maps an error object embedded in a 200 response.
func classifyAPIError(e *apiError) *sitehealth.ProbeError {
	msg := e.Message
	kind := sitehealth.ProbeUnexpected
	switch {
	case strings.Contains(msg, "Invalid URL"):
		kind = sitehealth.ProbeInvalidTarget
	case strings.Contains(msg, "not accessible"), strings.Contains(msg, "unreachable"):
		kind = sitehealth.ProbeUnreachable
	case strings.Contains(msg, "quota"):
		kind = sitehealth.ProbeQuotaExceeded
	}
	return sitehealth.NewProbeError(kind, e.Code, msg, errors.New(msg))
}
