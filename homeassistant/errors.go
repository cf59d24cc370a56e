package homeassistant

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/victorjacobs/hass-poller/sensor"
)

// RequestError is returned for every failed request. Kind tells the caller
// which class of failure occurred.
type RequestError struct {
	Kind       sensor.ErrorKind
	StatusCode int
	Err        error
}

func (e *RequestError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%v: HTTP %d", e.Kind, e.StatusCode)
	}
	return fmt.Sprintf("%v: %v", e.Kind, e.Err)
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

// KindOf returns the failure kind of err. Errors that did not come from this
// package are treated as network failures.
func KindOf(err error) sensor.ErrorKind {
	var reqErr *RequestError
	if errors.As(err, &reqErr) {
		return reqErr.Kind
	}
	return sensor.NetworkError
}

func statusError(statusCode int) *RequestError {
	var kind sensor.ErrorKind
	switch statusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		kind = sensor.AuthError
	case http.StatusNotFound:
		kind = sensor.NotFoundError
	default:
		kind = sensor.HTTPError
	}

	return &RequestError{
		Kind:       kind,
		StatusCode: statusCode,
		Err:        fmt.Errorf("got unexpected HTTP status: %d", statusCode),
	}
}

func decodeError(err error) *RequestError {
	return &RequestError{Kind: sensor.DecodeError, Err: err}
}

// net/http replaces the tls.RecordHeaderError with this plain error when an
// https URL points at a plain HTTP listener.
const plainHTTPResponse = "server gave HTTP response to HTTPS client"

// transportError classifies an error returned while sending the request or
// reading the response body. secure is set when the base URL uses https.
func transportError(err error, secure bool) *RequestError {
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.As(err, &netErr) && netErr.Timeout():
		return &RequestError{Kind: sensor.TimeoutError, Err: err}
	case isTLSError(err), secure && strings.Contains(err.Error(), plainHTTPResponse):
		return &RequestError{Kind: sensor.TLSError, Err: err}
	default:
		return &RequestError{Kind: sensor.NetworkError, Err: err}
	}
}

func isTLSError(err error) bool {
	var (
		verificationErr *tls.CertificateVerificationError
		unknownAuthErr  x509.UnknownAuthorityError
		hostnameErr     x509.HostnameError
		invalidErr      x509.CertificateInvalidError
		recordErr       tls.RecordHeaderError
		alertErr        tls.AlertError
	)
	return errors.As(err, &verificationErr) ||
		errors.As(err, &unknownAuthErr) ||
		errors.As(err, &hostnameErr) ||
		errors.As(err, &invalidErr) ||
		errors.As(err, &recordErr) ||
		errors.As(err, &alertErr)
}
