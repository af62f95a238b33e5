package procname

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSetDoesNotError(t *testing.T) {
	// PR_SET_NAME exists only on Linux, the one platform this package
	// builds for, and it must always succeed for the current process.
	err := Set(DaemonName)
	assert.NoError(t, err)
}
