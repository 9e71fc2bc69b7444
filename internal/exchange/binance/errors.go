package binance

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"

	"trading-bot-backend/internal/core"
)

const (
	apiCodeTimestampOutside = -1021
	apiCodeInvalidSignature = -1022
	apiCodeNewOrderRejected = -2010
	apiCodeCancelRejected   = -2011
	apiCodeOrderNotFound    = -2013
	apiCodeAPIKeyFormat     = -2014
	apiCodeRejectedAPIKey   = -2015
)

type requestKind int

const (
	kindPublic requestKind = iota
	kindPrivateRead
	kindOrderWrite
	kindOrderCancel
)

var apiErrorMessageKinds = map[string]error{
	"duplicate order sent.":                                  core.ErrDuplicateOrder,
	"account has insufficient balance for requested action.": core.ErrInsufficientBalance,
	"balance is insufficient.":                               core.ErrInsufficientBalance,
	"unknown order sent.":                                    core.ErrOrderNotFound,
	"order does not exist.":                                  core.ErrOrderNotFound,
}

// TransportError wraps failures where no HTTP response was observed.
type TransportError struct {
	Method string
	Path   string
	Err    error
}

func (e *TransportError) Error() string {
	return "binance " + e.Method + " " + e.Path + ": " + e.Err.Error()
}

func (e *TransportError) Unwrap() []error {
	return []error{e.Err, core.ErrNetwork}
}

func (e *TransportError) Timeout() bool {
	if errors.Is(e.Err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(e.Err, &netErr) && netErr.Timeout()
}

func parseAPIError(status int, body []byte) APIError {
	var apiErr apiError
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Msg != "" {
		return APIError{Status: status, Code: apiErr.Code, Msg: apiErr.Msg}
	}
	msg := strings.TrimSpace(string(body))
	if msg == "" {
		msg = http.StatusText(status)
	}
	return APIError{Status: status, Msg: msg}
}

func classifyAPIError(kind requestKind, apiErr APIError) error {
	kinds := classifyAPIErrorKinds(kind, apiErr)
	errChain := make([]error, 0, 1+len(kinds))
	errChain = append(errChain, apiErr)
	errChain = append(errChain, kinds...)
	return errors.Join(errChain...)
}

func classifyAPIErrorKinds(kind requestKind, apiErr APIError) []error {
	kinds := make([]error, 0, 2)
	if kind == kindPublic {
		return appendErrorKind(kinds, core.ErrNetwork)
	}

	switch {
	case isAuthFailure(apiErr):
		kinds = appendErrorKind(kinds, core.ErrAuth)
	case apiErr.Status >= 500 || apiErr.Status == http.StatusTooManyRequests || apiErr.Status == http.StatusTeapot:
		kinds = appendErrorKind(kinds, core.ErrNetwork)
	case apiErr.Code == 0:
		kinds = appendErrorKind(kinds, core.ErrNetwork)
	case apiErr.Code == apiCodeOrderNotFound || (apiErr.Code == apiCodeCancelRejected && kind != kindOrderWrite):
		kinds = appendErrorKind(kinds, core.ErrOrderNotFound)
	case kind == kindOrderWrite:
		kinds = appendErrorKind(kinds, core.ErrOrderRejected)
	default:
		kinds = appendErrorKind(kinds, core.ErrAuth)
	}

	if k, ok := apiErrorMessageKinds[normalizeAPIErrorMsg(apiErr.Msg)]; ok {
		kinds = appendErrorKind(kinds, k)
	}
	return kinds
}

func isAuthFailure(apiErr APIError) bool {
	switch apiErr.Code {
	case apiCodeTimestampOutside, apiCodeInvalidSignature, apiCodeAPIKeyFormat, apiCodeRejectedAPIKey:
		return true
	}
	return apiErr.Status == http.StatusUnauthorized || apiErr.Status == http.StatusForbidden
}

// outcomeUnknown reports whether an order write may have executed despite
// the error. Binance documents 5xx as "execution status unknown".
func outcomeUnknown(err error) bool {
	var te *TransportError
	if errors.As(err, &te) {
		return true
	}
	if apiErr, ok := AsAPIError(err); ok {
		return apiErr.Status >= 500
	}
	return false
}

func appendErrorKind(kinds []error, kind error) []error {
	if kind == nil {
		return kinds
	}
	for _, existing := range kinds {
		if existing == kind {
			return kinds
		}
	}
	return append(kinds, kind)
}

func normalizeAPIErrorMsg(msg string) string {
	return strings.ToLower(strings.TrimSpace(msg))
}

func AsAPIError(err error) (APIError, bool) {
	if err == nil {
		return APIError{}, false
	}
	var apiErr APIError
	if !errors.As(err, &apiErr) {
		return APIError{}, false
	}
	return apiErr, true
}

func IsAPIErrorCode(err error, codes ...int) bool {
	apiErr, ok := AsAPIError(err)
	if !ok {
		return false
	}
	for _, code := range codes {
		if apiErr.Code == code {
			return true
		}
	}
	return false
}
