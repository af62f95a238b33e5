package azuread

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
)

const cookieName = ".AspNetCore.Cookies"

// cookieExpiryMargin is subtracted from the cookie's own expiry so the
// cache always re-authenticates slightly before the cookie actually
// goes stale.
const cookieExpiryMargin = 600 * time.Second

var formActionPattern = regexp.MustCompile(`<form[^>]*action="([^"]+)"`)

// deliverViaCookie POSTs the final federated sign-in form to the URL in
// the form's own action attribute and turns the resulting session
// cookie into the access token.
func (c *Credential) deliverViaCookie(ctx context.Context, formHTML string) (azcore.AccessToken, error) {
	actionMatch := formActionPattern.FindStringSubmatch(formHTML)
	if actionMatch == nil {
		return azcore.AccessToken{}, fmt.Errorf("%w: could not find form action in sign-in response", ErrAuth)
	}

	actionURL := actionMatch[1]

	form := url.Values{
		"id_token":      {extractField(formHTML, "id_token")},
		"client_info":   {extractField(formHTML, "client_info")},
		"state":         {extractField(formHTML, "state")},
		"session_state": {extractField(formHTML, "session_state")},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, actionURL, strings.NewReader(form.Encode()))
	if err != nil {
		return azcore.AccessToken{}, fmt.Errorf("%w: building cookie delivery request: %v", ErrAuth, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.client.Do(req)
	if err != nil {
		return azcore.AccessToken{}, fmt.Errorf("%w: cookie delivery request failed: %v", ErrAuth, err)
	}
	defer resp.Body.Close()

	target, err := url.Parse(actionURL)
	if err != nil {
		return azcore.AccessToken{}, fmt.Errorf("%w: parsing form action URL: %v", ErrAuth, err)
	}

	for _, cookie := range c.client.Jar.Cookies(target) {
		if cookie.Name != cookieName {
			continue
		}
		expiresOn := cookie.Expires
		if expiresOn.IsZero() {
			expiresOn = time.Now().Add(defaultTokenLifetime)
		}
		return azcore.AccessToken{
			Token:     cookie.Value,
			ExpiresOn: expiresOn.Add(-cookieExpiryMargin),
		}, nil
	}

	return azcore.AccessToken{}, fmt.Errorf("%w: no %s cookie present after sign-in", ErrAuth, cookieName)
}
