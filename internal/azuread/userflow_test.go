package azuread

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleConfigBlob = `
<html><script>
$Config={"urlGetCredentialType":"https://login.microsoftonline.com/GetCredentialType","urlPost":"https://login.microsoftonline.com/login","sFT":"token123","sCtx":"ctx456","apiCanary":"canary789","canary":"canaryABC","correlationId":"corr-1","sessionId":"sess-1","hpgact":"1800","hpgid":"80","country":"SE"};
</script></html>
`

func TestExtractLoginContext(t *testing.T) {
	flow, err := extractLoginContext(sampleConfigBlob)
	require.NoError(t, err)

	assert.Equal(t, "https://login.microsoftonline.com/GetCredentialType", flow.urlGetCredentialType)
	assert.Equal(t, "token123", flow.sFT)
	assert.Equal(t, "ctx456", flow.sCtx)
	assert.Equal(t, "corr-1", flow.correlationID)
}

func TestExtractLoginContextServiceException(t *testing.T) {
	blob := `$Config={"strServiceExceptionMessage":"account disabled"};`
	_, err := extractLoginContext(blob)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "account disabled")
}

func TestExtractLoginContextMissingBlob(t *testing.T) {
	_, err := extractLoginContext("<html>nothing here</html>")
	require.Error(t, err)
}

func TestRequiresMFA(t *testing.T) {
	assert.True(t, requiresMFA(`"authMethodId":"PhoneAppOTP","phoneAppOtpTypes":["SoftwareTokenBasedTOTP"]`))
	assert.False(t, requiresMFA(`"authMethodId":"Password"`))
}

func TestExtractCodeFromFragment(t *testing.T) {
	assert.Equal(t, "abc123", extractCodeFromFragment("http://localhost:1234/#code=abc123&state=xyz"))
	assert.Equal(t, "", extractCodeFromFragment("http://localhost:1234/#state=xyz"))
}
