package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorTypeChecks(t *testing.T) {
	assert.True(t, IsConfiguration(NewConfiguration("missing token")))
	assert.True(t, IsValidation(NewValidation("bad spec")))
	assert.True(t, IsTransient(NewTransient("connect timeout")))
	assert.True(t, IsExternal(NewExternal(2, "terraform apply failed")))

	assert.False(t, IsConfiguration(NewValidation("bad spec")))
	assert.False(t, IsValidation(stderrors.New("plain")))
}

func TestWrappedErrorsUnwrap(t *testing.T) {
	cause := stderrors.New("connection refused")
	err := Wrap(cause, ErrorTypeTransient, "ssh connect")

	assert.True(t, IsTransient(err))
	assert.True(t, stderrors.Is(err, cause))
	assert.Contains(t, err.Error(), "connection refused")
}

func TestWrappedErrorSurvivesFmtWrapping(t *testing.T) {
	err := fmt.Errorf("deploy web: %w", NewExternal(1, "git clone failed"))
	assert.True(t, IsExternal(err))
	assert.Equal(t, 1, ExitCode(err, 0))
}

func TestExitCodeFallback(t *testing.T) {
	assert.Equal(t, 7, ExitCode(stderrors.New("plain"), 7))
	assert.Equal(t, 3, ExitCode(NewExternal(3, "apply"), 1))
}

func TestMask(t *testing.T) {
	masked := Mask("git -c http.extraheader=\"Authorization: Bearer tok123\" fetch", "tok123")
	assert.NotContains(t, masked, "tok123")
	assert.Contains(t, masked, "***")

	// Empty secrets are ignored rather than corrupting the string.
	assert.Equal(t, "echo hi", Mask("echo hi", ""))
}
