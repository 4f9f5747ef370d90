package connectors

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/clickstudio/connect-core/internal/core/domain"
)

// ErrorMessages maps vendor error codes to user-facing messages.
type ErrorMessages map[string]string

// OAuthErrorMessages covers the RFC 6749 error codes every vendor returns
// from its token endpoint.
var OAuthErrorMessages = ErrorMessages{
	"invalid_grant":         "authorization code or refresh token is invalid or expired",
	"redirect_uri_mismatch": "redirect URI does not match the one registered with the app",
	"invalid_token":         "access token is invalid or revoked",
	"invalid_client":        "client credentials were rejected",
	"unauthorized_client":   "app is not authorized for this grant type",
	"access_denied":         "user denied the authorization request",
	"invalid_request":       "request is missing a required parameter",
	"expired_token":         "access token has expired",
	"invalid_scope":         "requested scope is invalid or not approved for the app",
}

// Merge returns a copy of m overlaid with extra.
func (m ErrorMessages) Merge(extra ErrorMessages) ErrorMessages {
	out := make(ErrorMessages, len(m)+len(extra))
	for k, v := range m {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}

// vendorErrorBody extracts a code and description from the common error
// envelopes: {"error":"x","error_description":"y"}, Graph API
// {"error":{"message","code","type"}}, and {"error":{"code","message"}} as
// returned by TikTok and Google.
func vendorErrorBody(body []byte) (code, message string) {
	var envelope struct {
		Error            json.RawMessage `json:"error"`
		ErrorDescription string          `json:"error_description"`
		Message          string          `json:"message"`
		Detail           string          `json:"detail"`
		Title            string          `json:"title"`
		ServiceErrorCode json.Number     `json:"serviceErrorCode"`
		Errors           []struct {
			Code    json.RawMessage `json:"code"`
			Message string          `json:"message"`
		} `json:"errors"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return "", ""
	}

	if len(envelope.Error) > 0 {
		var s string
		if json.Unmarshal(envelope.Error, &s) == nil {
			return s, envelope.ErrorDescription
		}
		var obj struct {
			Code    json.RawMessage `json:"code"`
			Type    string          `json:"type"`
			Message string          `json:"message"`
		}
		if json.Unmarshal(envelope.Error, &obj) == nil {
			code := strings.Trim(string(obj.Code), `"`)
			if obj.Type != "" && (code == "" || code == "0") {
				code = obj.Type
			}
			return code, obj.Message
		}
	}

	if len(envelope.Errors) > 0 {
		e := envelope.Errors[0]
		return strings.Trim(string(e.Code), `"`), e.Message
	}

	msg := envelope.Message
	if msg == "" {
		msg = envelope.Detail
	}
	if msg == "" {
		msg = envelope.Title
	}
	return envelope.ServiceErrorCode.String(), msg
}

// newVendorError builds a VendorError from a non-2xx response.
func newVendorError(platform domain.Platform, status int, header http.Header, body []byte, messages ErrorMessages) *domain.VendorError {
	code, desc := vendorErrorBody(body)
	msg := desc
	if mapped, ok := messages[code]; ok {
		msg = mapped
	}
	if msg == "" {
		msg = http.StatusText(status)
	}
	return &domain.VendorError{
		Platform:   platform,
		StatusCode: status,
		Code:       code,
		Message:    msg,
		RetryAfter: parseRetryAfter(header, time.Now()),
		Body:       truncate(string(body), 2048),
	}
}

// fromRetrieveError converts an oauth2 token endpoint failure.
func fromRetrieveError(platform domain.Platform, err error, messages ErrorMessages) error {
	var re *oauth2.RetrieveError
	if !errors.As(err, &re) || re.Response == nil {
		return err
	}
	ve := newVendorError(platform, re.Response.StatusCode, re.Response.Header, re.Body, messages)
	if re.ErrorCode != "" {
		ve.Code = re.ErrorCode
		if mapped, ok := messages[re.ErrorCode]; ok {
			ve.Message = mapped
		} else if re.ErrorDescription != "" {
			ve.Message = re.ErrorDescription
		}
	}
	return ve
}

// parseRetryAfter reads a Retry-After header in seconds or HTTP-date form.
func parseRetryAfter(header http.Header, now time.Time) time.Duration {
	v := strings.TrimSpace(header.Get("Retry-After"))
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := t.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}

// asRateLimit converts an exhausted 429 into a RateLimitError.
func asRateLimit(platform domain.Platform, err error) error {
	var ve *domain.VendorError
	if errors.As(err, &ve) && ve.IsRateLimited() {
		return &domain.RateLimitError{Platform: platform, RetryAfter: ve.RetryAfter, Cause: err}
	}
	return err
}

// rateLimited returns the RateLimitError for an exhausted 429, or nil.
func rateLimited(platform domain.Platform, err error) *domain.RateLimitError {
	var rl *domain.RateLimitError
	if errors.As(err, &rl) {
		return rl
	}
	var ve *domain.VendorError
	if errors.As(err, &ve) && ve.IsRateLimited() {
		return &domain.RateLimitError{Platform: platform, RetryAfter: ve.RetryAfter, Cause: err}
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
