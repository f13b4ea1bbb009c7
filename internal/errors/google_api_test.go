package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/dl-alexandre/savegem/internal/logging"
	"github.com/dl-alexandre/savegem/internal/types"
	"github.com/dl-alexandre/savegem/internal/utils"
	"google.golang.org/api/googleapi"
)

func testReqCtx() *types.RequestContext {
	return &types.RequestContext{
		Profile:         "default",
		InvolvedFileIDs: []string{"file-1"},
		RequestType:     types.RequestTypeGetByID,
		TraceID:         "trace-1",
	}
}

func TestClassifyGoogleAPIError(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		wantCode  string
		retryable bool
	}{
		{"unauthorized", &googleapi.Error{Code: 401, Message: "expired"}, utils.ErrCodeAuthExpired, false},
		{"not found", &googleapi.Error{Code: 404, Message: "nope"}, utils.ErrCodeFileNotFound, false},
		{"rate limited", &googleapi.Error{Code: 429}, utils.ErrCodeRateLimited, true},
		{"server error", &googleapi.Error{Code: 503}, utils.ErrCodeNetworkError, true},
		{
			"quota",
			&googleapi.Error{Code: 403, Errors: []googleapi.ErrorItem{{Reason: "storageQuotaExceeded"}}},
			utils.ErrCodeQuotaExceeded,
			false,
		},
		{
			"user rate limit",
			&googleapi.Error{Code: 403, Errors: []googleapi.ErrorItem{{Reason: "userRateLimitExceeded"}}},
			utils.ErrCodeRateLimited,
			true,
		},
		{"wrapped", fmt.Errorf("list: %w", &googleapi.Error{Code: 404}), utils.ErrCodeFileNotFound, false},
		{"transport", stderrors.New("connection refused"), utils.ErrCodeNetworkError, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ClassifyGoogleAPIError("drive", tt.err, testReqCtx(), logging.NewNoOpLogger())

			var appErr *utils.AppError
			if !stderrors.As(err, &appErr) {
				t.Fatalf("expected *utils.AppError, got %T", err)
			}
			if appErr.CLIError.Code != tt.wantCode {
				t.Errorf("code = %s, want %s", appErr.CLIError.Code, tt.wantCode)
			}
			if appErr.CLIError.Retryable != tt.retryable {
				t.Errorf("retryable = %v, want %v", appErr.CLIError.Retryable, tt.retryable)
			}
			if appErr.CLIError.Context["traceId"] != "trace-1" {
				t.Errorf("traceId context missing: %v", appErr.CLIError.Context)
			}
		})
	}
}

func TestClassifyGoogleAPIError_NotFoundCarriesIDs(t *testing.T) {
	err := ClassifyGoogleAPIError("drive", &googleapi.Error{Code: 404}, testReqCtx(), logging.NewNoOpLogger())
	cliErr := utils.AsCLIError(err)

	ids, ok := cliErr.Context["fileIds"].([]string)
	if !ok || len(ids) != 1 || ids[0] != "file-1" {
		t.Errorf("fileIds context = %v", cliErr.Context["fileIds"])
	}
}

func TestClassifyGoogleAPIError_SuggestedAction(t *testing.T) {
	tests := []struct {
		name   string
		err    *googleapi.Error
		action string
	}{
		{"expired", &googleapi.Error{Code: 401}, "run 'savegem auth login' to re-authenticate"},
		{
			"folder not shared",
			&googleapi.Error{Code: 403, Errors: []googleapi.ErrorItem{{Reason: "appNotAuthorizedToFile"}}},
			"open the shared save folder once in the browser to grant access",
		},
		{"server", &googleapi.Error{Code: 502}, "temporary server error, retrying"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cliErr := utils.AsCLIError(ClassifyGoogleAPIError("drive", tt.err, testReqCtx(), logging.NewNoOpLogger()))
			if cliErr.Context["suggestedAction"] != tt.action {
				t.Errorf("suggestedAction = %v, want %q", cliErr.Context["suggestedAction"], tt.action)
			}
		})
	}
}
