package errors

import (
	stderrors "errors"
	"net/http"

	"github.com/dl-alexandre/savegem/internal/logging"
	"github.com/dl-alexandre/savegem/internal/types"
	"github.com/dl-alexandre/savegem/internal/utils"
	"google.golang.org/api/googleapi"
)

type reasonRule struct {
	code      string
	retryable bool
	action    string
}

// reasonRules refine the HTTP status using the first Drive error reason
var reasonRules = map[string]reasonRule{
	"storageQuotaExceeded":        {utils.ErrCodeQuotaExceeded, false, "free up Drive storage before uploading saves"},
	"teamDriveFileLimitExceeded":  {utils.ErrCodeQuotaExceeded, false, "the shared drive holding the saves is full"},
	"userRateLimitExceeded":       {utils.ErrCodeRateLimited, true, "wait before retrying"},
	"rateLimitExceeded":           {utils.ErrCodeRateLimited, true, "wait before retrying"},
	"sharingRateLimitExceeded":    {utils.ErrCodeRateLimited, true, "wait before retrying"},
	"dailyLimitExceeded":          {utils.ErrCodeRateLimited, false, "quota resets within 24 hours"},
	"appNotAuthorizedToFile":      {utils.ErrCodePermissionDenied, false, "open the shared save folder once in the browser to grant access"},
	"insufficientFilePermissions": {utils.ErrCodePermissionDenied, false, "ask the owner of the game configuration for write access"},
}

func statusCode(status int) (string, bool) {
	switch {
	case status == http.StatusUnauthorized:
		return utils.ErrCodeAuthExpired, false
	case status == http.StatusForbidden:
		return utils.ErrCodePermissionDenied, false
	case status == http.StatusNotFound:
		return utils.ErrCodeFileNotFound, false
	case status == http.StatusBadRequest, status == http.StatusConflict:
		return utils.ErrCodeInvalidArgument, false
	case status == http.StatusTooManyRequests:
		return utils.ErrCodeRateLimited, true
	case status >= 500 && status <= 504:
		return utils.ErrCodeNetworkError, true
	default:
		return utils.ErrCodeUnknown, status >= 500
	}
}

// ClassifyGoogleAPIError turns an error from a Google API call into an
// *utils.AppError with a stable code, a retry hint and a suggested action.
func ClassifyGoogleAPIError(service string, err error, reqCtx *types.RequestContext, logger logging.Logger) error {
	var apiErr *googleapi.Error
	if !stderrors.As(err, &apiErr) {
		logger.Error("Request failed before reaching the API",
			logging.F("service", service),
			logging.F("error", err.Error()),
			logging.F("traceId", reqCtx.TraceID),
		)
		return utils.NewAppError(utils.NewCLIError(utils.ErrCodeNetworkError, err.Error()).
			WithRetryable(true).
			WithContext("traceId", reqCtx.TraceID).
			WithContext("service", service).
			Build())
	}

	code, retryable := statusCode(apiErr.Code)
	var action string
	var reason string
	if len(apiErr.Errors) > 0 {
		reason = apiErr.Errors[0].Reason
		if rule, ok := reasonRules[reason]; ok && apiErr.Code != http.StatusNotFound {
			code, retryable, action = rule.code, rule.retryable, rule.action
		}
	}

	builder := utils.NewCLIError(code, apiErr.Message).
		WithHTTPStatus(apiErr.Code).
		WithRetryable(retryable).
		WithContext("traceId", reqCtx.TraceID).
		WithContext("requestType", string(reqCtx.RequestType)).
		WithContext("service", service)
	if reason != "" {
		builder.WithDriveReason(reason)
	}

	switch code {
	case utils.ErrCodeAuthExpired:
		action = "run 'savegem auth login' to re-authenticate"
	case utils.ErrCodeFileNotFound:
		if len(reqCtx.InvolvedFileIDs) > 0 {
			builder.WithContext("fileIds", reqCtx.InvolvedFileIDs)
		}
		if len(reqCtx.InvolvedParentIDs) > 0 {
			builder.WithContext("parentIds", reqCtx.InvolvedParentIDs)
		}
		action = "check that the game configuration points at an existing Drive folder"
	case utils.ErrCodeNetworkError:
		builder.WithContext("serverError", true)
		action = "temporary server error, retrying"
	}
	if apiErr.Code == http.StatusConflict {
		builder.WithContext("conflict", true)
	}
	if action != "" {
		builder.WithContext("suggestedAction", action)
	}

	logger.Error("API error classified",
		logging.F("service", service),
		logging.F("httpStatus", apiErr.Code),
		logging.F("errorCode", code),
		logging.F("reason", reason),
		logging.F("retryable", retryable),
		logging.F("traceId", reqCtx.TraceID),
	)
	return utils.NewAppError(builder.Build())
}
