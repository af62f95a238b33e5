package azuread

import "github.com/biometria-se/async-messaged/internal/message"

// ErrAuth is the sentinel every Entra ID flow failure wraps: a non-200
// response in the user flow, missing MFA configuration when MFA is
// required, or a token response lacking id_token/access_token.
var ErrAuth = message.ErrAuth
