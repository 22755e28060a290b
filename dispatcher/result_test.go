/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package dispatcher

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResult(t *testing.T) {
	tests := []struct {
		name        string
		res         Result[string]
		wantMessage string
		wantString  string
	}{
		{
			name:        "success",
			res:         Result[string]{Status: StatusSuccess, Value: "API response"},
			wantMessage: "",
			wantString:  "success: API response",
		},
		{
			name:        "penalty rejected",
			res:         Result[string]{Status: StatusPenaltyRejected},
			wantMessage: "penalty period: no API calls allowed",
			wantString:  "penalty period: no API calls allowed",
		},
		{
			name:        "executor failed",
			res:         Result[string]{Status: StatusExecutorFailed, Err: errors.New("timeout")},
			wantMessage: "API call failed: timeout",
			wantString:  "API call failed: timeout",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.wantMessage, tt.res.Message())
			require.Equal(t, tt.wantString, tt.res.String())
		})
	}
}

func TestStatus_String(t *testing.T) {
	require.Equal(t, "success", StatusSuccess.String())
	require.Equal(t, "penalty_rejected", StatusPenaltyRejected.String())
	require.Equal(t, "executor_failed", StatusExecutorFailed.String())
	require.Equal(t, "status(42)", Status(42).String())
}
