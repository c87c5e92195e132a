package otg

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
)

// ErrorType classifies target failures so tool responses can tell an
// unreachable controller apart from a rejected configuration.
type ErrorType string

const (
	ErrorTypeTimeout   ErrorType = "timeout"
	ErrorTypeDNS       ErrorType = "dns"
	ErrorTypeConnect   ErrorType = "connect"
	ErrorTypeTLS       ErrorType = "tls"
	ErrorTypeHTTP      ErrorType = "http"
	ErrorTypeProtocol  ErrorType = "protocol"
	ErrorTypeCancelled ErrorType = "cancelled"
	ErrorTypeUnknown   ErrorType = "unknown"
)

// TargetError is a classified failure from a target operation.
type TargetError struct {
	Type    ErrorType
	Target  string
	Op      string
	Status  int
	Message string
	Err     error
}

func (e *TargetError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s %s: %s (HTTP %d): %s", e.Target, e.Op, e.Type, e.Status, e.Message)
	}
	return fmt.Sprintf("%s %s: %s: %s", e.Target, e.Op, e.Type, e.Message)
}

func (e *TargetError) Unwrap() error { return e.Err }

// classify wraps err with a TargetError carrying the failure category.
func classify(target, op string, err error) error {
	if err == nil {
		return nil
	}

	var targetErr *TargetError
	if errors.As(err, &targetErr) {
		return err
	}

	te := &TargetError{Target: target, Op: op, Message: err.Error(), Err: err}

	switch {
	case errors.Is(err, context.Canceled):
		te.Type = ErrorTypeCancelled
	case errors.Is(err, context.DeadlineExceeded):
		te.Type = ErrorTypeTimeout
	default:
		te.Type = classifyNetError(err)
	}
	return te
}

func classifyNetError(err error) ErrorType {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return ErrorTypeDNS
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		if urlErr.Timeout() {
			return ErrorTypeTimeout
		}
		return classifyNetError(urlErr.Err)
	}

	var certErr *tls.CertificateVerificationError
	var authErr x509.UnknownAuthorityError
	var hostErr x509.HostnameError
	var recordErr tls.RecordHeaderError
	if errors.As(err, &certErr) || errors.As(err, &authErr) ||
		errors.As(err, &hostErr) || errors.As(err, &recordErr) {
		return ErrorTypeTLS
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		if opErr.Timeout() {
			return ErrorTypeTimeout
		}
		return ErrorTypeConnect
	}

	if strings.Contains(err.Error(), "tls:") {
		return ErrorTypeTLS
	}
	return ErrorTypeUnknown
}

// httpError builds a TargetError for a non-2xx response, keeping the
// controller's body since OTG targets return useful validation detail.
func httpError(target, op string, status int, body []byte) *TargetError {
	msg := strings.TrimSpace(string(body))
	if msg == "" {
		msg = fmt.Sprintf("status %d", status)
	}
	return &TargetError{
		Type:    ErrorTypeHTTP,
		Target:  target,
		Op:      op,
		Status:  status,
		Message: msg,
	}
}
