// Package testutil holds assertions shared by tokengate tests. Helpers
// take testing.TB and call t.Helper so failures point at the caller.
package testutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sserr "github.com/StricklySoft/tokengate/pkg/errors"
)

// RequireErrorCode stops the test unless err carries code.
func RequireErrorCode(t testing.TB, err error, code sserr.Code, msgAndArgs ...any) {
	t.Helper()
	require.Error(t, err, msgAndArgs...)
	e, ok := sserr.AsError(err)
	require.True(t, ok, "expected *errors.Error, got %T: %v", err, err)
	require.Equal(t, code, e.Code, "unexpected code for %v", err)
}

// AssertErrorCode records a failure unless err carries code.
func AssertErrorCode(t testing.TB, err error, code sserr.Code, msgAndArgs ...any) bool {
	t.Helper()
	if !assert.Error(t, err, msgAndArgs...) {
		return false
	}
	return assert.Equal(t, code, sserr.GetCode(err), "unexpected code for %v", err)
}
