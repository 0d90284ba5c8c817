package apierror

import (
	"errors"
	"fmt"
	"net/http"
	"sort"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

type ErrorCode string

const (
	KYCBlocked              ErrorCode = "KYC_BLOCKED"
	KYCAlreadyApproved      ErrorCode = "KYC_ALREADY_APPROVED"
	KYCAlreadySubmitted     ErrorCode = "KYC_ALREADY_SUBMITTED"
	KYCFileSizeExceeded     ErrorCode = "KYC_FILE_SIZE_EXCEEDED"
	KYCInvalidFileType      ErrorCode = "KYC_INVALID_FILE_TYPE"
	KYCApplicationNotFound  ErrorCode = "KYC_APPLICATION_NOT_FOUND"
	KYCInvalidStatus        ErrorCode = "KYC_INVALID_STATUS"
	KYCValidationError      ErrorCode = "KYC_VALIDATION_ERROR"
	KYCMissingRequiredFiles ErrorCode = "KYC_MISSING_REQUIRED_FILES"
	KYCFileNotFound         ErrorCode = "KYC_FILE_NOT_FOUND"
	KYCInvalidReasonCode    ErrorCode = "KYC_INVALID_REASON_CODE"
	KYCCannotRevoke         ErrorCode = "KYC_CANNOT_REVOKE"
	KYCSubmitInProgress     ErrorCode = "KYC_SUBMIT_IN_PROGRESS"
	KYCUnauthorized         ErrorCode = "KYC_UNAUTHORIZED"
	KYCForbidden            ErrorCode = "KYC_FORBIDDEN"
	KYCServerError          ErrorCode = "KYC_SERVER_ERROR"

	ReportsInvalidLocale     ErrorCode = "REPORTS_INVALID_LOCALE"
	ReportsUnauthorized      ErrorCode = "REPORTS_UNAUTHORIZED"
	ReportsValidationError   ErrorCode = "REPORTS_VALIDATION_ERROR"
	ReportsInvalidReportType ErrorCode = "REPORTS_INVALID_REPORT_TYPE"
	ReportsServerError       ErrorCode = "REPORTS_SERVER_ERROR"

	SupportInvalidLocale       ErrorCode = "SUPPORT_INVALID_LOCALE"
	SupportValidationError     ErrorCode = "SUPPORT_VALIDATION_ERROR"
	SupportUnauthorized        ErrorCode = "SUPPORT_UNAUTHORIZED"
	SupportForbidden           ErrorCode = "SUPPORT_FORBIDDEN"
	SupportGuestFieldsRequired ErrorCode = "SUPPORT_GUEST_FIELDS_REQUIRED"
	SupportInvalidTicketType   ErrorCode = "SUPPORT_INVALID_TICKET_TYPE"
	SupportInvalidTicketID     ErrorCode = "SUPPORT_INVALID_TICKET_ID"
	SupportTicketNotFound      ErrorCode = "SUPPORT_TICKET_NOT_FOUND"
	SupportServerError         ErrorCode = "SUPPORT_SERVER_ERROR"

	AuthTokenRequired  ErrorCode = "BASE_AUTH_TOKEN_REQUIRED"
	InvalidAccessToken ErrorCode = "BASE_INVALID_ACCESS_TOKEN"
	TokenExpired       ErrorCode = "BASE_TOKEN_EXPIRED"
	TooManyRequests    ErrorCode = "TOO_MANY_REQUESTS"
)

const internalServerErrorMessage = "Internal server error"

var statusByCode = map[ErrorCode]int{
	KYCBlocked:              http.StatusLocked,
	KYCAlreadyApproved:      http.StatusBadRequest,
	KYCAlreadySubmitted:     http.StatusBadRequest,
	KYCFileSizeExceeded:     http.StatusBadRequest,
	KYCInvalidFileType:      http.StatusBadRequest,
	KYCApplicationNotFound:  http.StatusNotFound,
	KYCInvalidStatus:        http.StatusBadRequest,
	KYCValidationError:      http.StatusBadRequest,
	KYCMissingRequiredFiles: http.StatusBadRequest,
	KYCFileNotFound:         http.StatusNotFound,
	KYCInvalidReasonCode:    http.StatusBadRequest,
	KYCCannotRevoke:         http.StatusBadRequest,
	KYCSubmitInProgress:     http.StatusConflict,
	KYCUnauthorized:         http.StatusUnauthorized,
	KYCForbidden:            http.StatusForbidden,
	KYCServerError:          http.StatusInternalServerError,

	ReportsInvalidLocale:     http.StatusBadRequest,
	ReportsUnauthorized:      http.StatusUnauthorized,
	ReportsValidationError:   http.StatusBadRequest,
	ReportsInvalidReportType: http.StatusBadRequest,
	ReportsServerError:       http.StatusInternalServerError,

	SupportInvalidLocale:       http.StatusBadRequest,
	SupportValidationError:     http.StatusBadRequest,
	SupportUnauthorized:        http.StatusUnauthorized,
	SupportForbidden:           http.StatusForbidden,
	SupportGuestFieldsRequired: http.StatusBadRequest,
	SupportInvalidTicketType:   http.StatusBadRequest,
	SupportInvalidTicketID:     http.StatusBadRequest,
	SupportTicketNotFound:      http.StatusNotFound,
	SupportServerError:         http.StatusInternalServerError,

	AuthTokenRequired:  http.StatusUnauthorized,
	InvalidAccessToken: http.StatusUnauthorized,
	TokenExpired:       http.StatusUnauthorized,
	TooManyRequests:    http.StatusTooManyRequests,
}

type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

type APIError struct {
	Code    ErrorCode    `json:"code"`
	Message string       `json:"message"`
	Fields  []FieldError `json:"fields,omitempty"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *APIError) Status() int {
	return HTTPStatus(e.Code)
}

func New(code ErrorCode, message string) *APIError {
	return &APIError{Code: code, Message: message}
}

func WithFields(code ErrorCode, message string, fields ...FieldError) *APIError {
	return &APIError{Code: code, Message: message, Fields: fields}
}

// Validation turns an ozzo-validation result into an APIError carrying one field
// error per failed rule. Nested errors are reported with dotted json paths
// (context.source). Returns nil when err is nil.
func Validation(code ErrorCode, message string, err error) *APIError {
	if err == nil {
		return nil
	}
	var verrs validation.Errors
	if !errors.As(err, &verrs) {
		return WithFields(code, message, FieldError{Field: "body", Message: err.Error()})
	}
	return WithFields(code, message, flatten("", verrs)...)
}

func flatten(prefix string, verrs validation.Errors) []FieldError {
	keys := make([]string, 0, len(verrs))
	for k := range verrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var out []FieldError
	for _, k := range keys {
		path := k
		if prefix != "" {
			path = prefix + "." + k
		}
		var nested validation.Errors
		if errors.As(verrs[k], &nested) {
			out = append(out, flatten(path, nested)...)
			continue
		}
		out = append(out, FieldError{Field: path, Message: verrs[k].Error()})
	}
	return out
}

func HTTPStatus(code ErrorCode) int {
	if s, ok := statusByCode[code]; ok {
		return s
	}
	return http.StatusInternalServerError
}

func MapErrorToHTTPStatus(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return HTTPStatus(apiErr.Code)
	}
	return http.StatusInternalServerError
}

// Resolve returns the APIError carried by err, or a server error with the given
// code. In production the server error message never leaks internals.
func Resolve(err error, serverCode ErrorCode, production bool) *APIError {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	msg := internalServerErrorMessage
	if !production && err != nil {
		msg = err.Error()
	}
	return New(serverCode, msg)
}
