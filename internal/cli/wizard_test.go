package cli

import (
	"errors"
	"testing"

	"github.com/charmbracelet/huh"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapWizardErr_UserAborted(t *testing.T) {
	t.Parallel()

	err := mapWizardErr(huh.ErrUserAborted)
	assert.ErrorIs(t, err, ErrWizardCancelled)
}

func TestMapWizardErr_OtherErrorsWrapped(t *testing.T) {
	t.Parallel()

	cause := errors.New("tty unavailable")
	err := mapWizardErr(cause)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrWizardCancelled)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "wizard:")
}
