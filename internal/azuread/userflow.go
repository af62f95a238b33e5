package azuread

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/pquerna/otp/totp"
)

const authorizeBase = "https://login.microsoftonline.com"

// loginContext carries the page state threaded through the multi-step
// interactive flow, extracted from each response's embedded
// Config={...} blob.
type loginContext struct {
	urlGetCredentialType string
	urlPost               string
	sFT                   string
	sCtx                  string
	apiCanary             string
	canary                string
	correlationID         string
	sessionID             string
	hpgact                string
	hpgid                 string
	country               string
}

// userFlow performs the interactive authorization-code-with-PKCE flow,
// including TOTP MFA when the account requires it.
func (c *Credential) userFlow(ctx context.Context, scope string) (azcore.AccessToken, error) {
	redirect := c.cfg.Redirect

	if redirect == "" && c.cfg.Initialize == "" {
		server, err := startLocalRedirectServer()
		if err != nil {
			return azcore.AccessToken{}, fmt.Errorf("%w: starting local redirect webserver: %v", ErrAuth, err)
		}
		defer server.Close()

		original := c.cfg.Redirect
		c.cfg.Redirect = server.RedirectURI()
		defer func() { c.cfg.Redirect = original }()
		redirect = c.cfg.Redirect

		return c.runInteractiveFlow(ctx, scope, redirect)
	}

	return c.runInteractiveFlow(ctx, scope, redirect)
}

func (c *Credential) runInteractiveFlow(ctx context.Context, scope, redirect string) (azcore.AccessToken, error) {
	if scope == "" {
		scope = "openid profile offline_access"
	}

	state, err := randomHex(16)
	if err != nil {
		return azcore.AccessToken{}, fmt.Errorf("%w: generating state: %v", ErrAuth, err)
	}
	nonce, err := randomHex(16)
	if err != nil {
		return azcore.AccessToken{}, fmt.Errorf("%w: generating nonce: %v", ErrAuth, err)
	}
	verifier, err := newPKCEVerifier()
	if err != nil {
		return azcore.AccessToken{}, fmt.Errorf("%w: generating PKCE verifier: %v", ErrAuth, err)
	}
	challenge := codeChallengeS256(verifier)

	authorizeURL := fmt.Sprintf("%s/%s/oauth2/v2.0/authorize?%s", authorizeBase, c.cfg.Tenant, url.Values{
		"response_type":         {"code"},
		"response_mode":         {"fragment"},
		"client_id":             {c.cfg.ClientID},
		"redirect_uri":          {redirect},
		"code_challenge_method": {"S256"},
		"code_challenge":        {challenge},
		"scope":                 {scope},
		"state":                 {state},
		"nonce":                 {nonce},
	}.Encode())

	body, err := c.getBody(ctx, authorizeURL)
	if err != nil {
		return azcore.AccessToken{}, err
	}

	flowCtx, err := extractLoginContext(body)
	if err != nil {
		return azcore.AccessToken{}, err
	}

	if err := c.postCredentialType(ctx, flowCtx); err != nil {
		return azcore.AccessToken{}, err
	}

	loginResp, err := c.postLogin(ctx, flowCtx)
	if err != nil {
		return azcore.AccessToken{}, err
	}

	if requiresMFA(loginResp) {
		if c.cfg.OTPSecret == "" {
			return azcore.AccessToken{}, fmt.Errorf("%w: account requires MFA but no otp_secret was configured", ErrAuth)
		}
		loginResp, err = c.performTOTP(ctx, flowCtx)
		if err != nil {
			return azcore.AccessToken{}, err
		}
	}

	code, err := c.confirmSignedIn(ctx, flowCtx, loginResp)
	if err != nil {
		return azcore.AccessToken{}, err
	}

	if c.cfg.Initialize != "" {
		return c.deliverViaCookie(ctx, loginResp)
	}

	return c.exchangeCode(ctx, code, verifier, redirect)
}

func (c *Credential) getBody(ctx context.Context, rawURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("%w: building request: %v", ErrAuth, err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: request to %s failed: %v", ErrAuth, rawURL, err)
	}
	defer resp.Body.Close()

	return readBodyExpect200(resp)
}

func readBodyExpect200(resp *http.Response) (string, error) {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: reading response body: %v", ErrAuth, err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: unexpected status %d from %s", ErrAuth, resp.StatusCode, resp.Request.URL)
	}
	return string(body), nil
}

var configBlobPattern = regexp.MustCompile(`(?s)\$Config\s*=\s*(\{.*?\});`)

// extractLoginContext pulls the fields used by later steps out of the
// page's embedded Config={...} JavaScript object literal. A full JS
// parser is unnecessary here: every field of interest is a simple
// quoted string assignment.
func extractLoginContext(html string) (*loginContext, error) {
	blobMatch := configBlobPattern.FindStringSubmatch(html)
	if blobMatch == nil {
		return nil, fmt.Errorf("%w: could not locate Config={...} blob in response", ErrAuth)
	}
	blob := blobMatch[1]

	if msg := extractField(blob, "strServiceExceptionMessage"); msg != "" {
		return nil, fmt.Errorf("%w: service exception: %s", ErrAuth, msg)
	}

	return &loginContext{
		urlGetCredentialType: extractField(blob, "urlGetCredentialType"),
		urlPost:              extractField(blob, "urlPost"),
		sFT:                  extractField(blob, "sFT"),
		sCtx:                 extractField(blob, "sCtx"),
		apiCanary:            extractField(blob, "apiCanary"),
		canary:               extractField(blob, "canary"),
		correlationID:        extractField(blob, "correlationId"),
		sessionID:            extractField(blob, "sessionId"),
		hpgact:               extractField(blob, "hpgact"),
		hpgid:                extractField(blob, "hpgid"),
		country:              extractField(blob, "country"),
	}, nil
}

func extractField(blob, field string) string {
	re := regexp.MustCompile(field + `"?\s*:\s*"([^"]*)"`)
	m := re.FindStringSubmatch(blob)
	if m == nil {
		return ""
	}
	return m[1]
}

func (c *Credential) postCredentialType(ctx context.Context, flow *loginContext) error {
	payload := fmt.Sprintf(`{"username":%q,"isOtherIdpSupported":true}`, c.cfg.Username)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, flow.urlGetCredentialType, strings.NewReader(payload))
	if err != nil {
		return fmt.Errorf("%w: building credential-type request: %v", ErrAuth, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: credential-type request failed: %v", ErrAuth, err)
	}
	defer resp.Body.Close()

	body, err := readBodyExpect200(resp)
	if err != nil {
		return err
	}

	if ft := extractField(body, "FlowToken"); ft != "" {
		flow.sFT = ft
	}
	if canary := extractField(body, "apiCanary"); canary != "" {
		flow.apiCanary = canary
	}
	return nil
}

func (c *Credential) postLogin(ctx context.Context, flow *loginContext) (string, error) {
	form := url.Values{
		"login":       {c.cfg.Username},
		"passwd":      {c.cfg.Password},
		"ctx":         {flow.sCtx},
		"flowToken":   {flow.sFT},
		"canary":      {flow.canary},
		"hpgrequestid": {flow.correlationID},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, flow.urlPost, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("%w: building login request: %v", ErrAuth, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: login request failed: %v", ErrAuth, err)
	}
	defer resp.Body.Close()

	return readBodyExpect200(resp)
}

func requiresMFA(body string) bool {
	return strings.Contains(body, "PhoneAppOTP") && strings.Contains(body, "SoftwareTokenBasedTOTP")
}

func (c *Credential) performTOTP(ctx context.Context, flow *loginContext) (string, error) {
	code, err := totp.GenerateCode(c.cfg.OTPSecret, time.Now())
	if err != nil {
		return "", fmt.Errorf("%w: generating TOTP code: %v", ErrAuth, err)
	}

	beginURL := strings.Replace(flow.urlPost, "/login", "/common/SAS/BeginAuth", 1)
	beginPayload := fmt.Sprintf(`{"AuthMethodId":"PhoneAppOTP","Method":"BeginAuth","ctx":%q,"flowToken":%q}`, flow.sCtx, flow.sFT)
	beginResp, err := c.postJSON(ctx, beginURL, beginPayload)
	if err != nil {
		return "", fmt.Errorf("%w: BeginAuth request failed: %v", ErrAuth, err)
	}
	if ft := extractField(beginResp, "FlowToken"); ft != "" {
		flow.sFT = ft
	}

	endURL := strings.Replace(flow.urlPost, "/login", "/common/SAS/EndAuth", 1)
	endPayload := fmt.Sprintf(`{"AuthMethodId":"PhoneAppOTP","Method":"EndAuth","ctx":%q,"flowToken":%q,"AdditionalAuthData":%q}`, flow.sCtx, flow.sFT, code)
	if _, err := c.postJSON(ctx, endURL, endPayload); err != nil {
		return "", fmt.Errorf("%w: EndAuth request failed: %v", ErrAuth, err)
	}

	return c.postLogin(ctx, flow)
}

func (c *Credential) postJSON(ctx context.Context, rawURL, payload string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, strings.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	return readBodyExpect200(resp)
}

// confirmSignedIn posts the "keep me signed in" form and extracts the
// authorization code from the resulting redirect's URL fragment.
func (c *Credential) confirmSignedIn(ctx context.Context, flow *loginContext, loginBody string) (string, error) {
	form := url.Values{
		"LoginOptions": {"1"},
		"ctx":          {flow.sCtx},
		"flowToken":    {flow.sFT},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, flow.urlPost, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("%w: building confirm request: %v", ErrAuth, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: confirm-signed-in request failed: %v", ErrAuth, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusFound && resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: unexpected status %d confirming sign-in", ErrAuth, resp.StatusCode)
	}

	location := resp.Header.Get("Location")
	code := extractCodeFromFragment(location)
	if code == "" {
		body, _ := readBodyExpect200(resp)
		code = extractCodeFromFragment(body)
	}
	if code == "" {
		return "", fmt.Errorf("%w: no authorization code found after sign-in", ErrAuth)
	}
	return code, nil
}

var codeFragmentPattern = regexp.MustCompile(`[#&?]code=([^&\s"']+)`)

func extractCodeFromFragment(s string) string {
	m := codeFragmentPattern.FindStringSubmatch(s)
	if m == nil {
		return ""
	}
	return m[1]
}

func (c *Credential) exchangeCode(ctx context.Context, code, verifier, redirect string) (azcore.AccessToken, error) {
	form := url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {code},
		"code_verifier": {verifier},
		"redirect_uri":  {redirect},
		"client_id":     {c.cfg.ClientID},
	}

	tokenURL := fmt.Sprintf("%s/%s/oauth2/v2.0/token", authorizeBase, c.cfg.Tenant)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return azcore.AccessToken{}, fmt.Errorf("%w: building token exchange request: %v", ErrAuth, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.client.Do(req)
	if err != nil {
		return azcore.AccessToken{}, fmt.Errorf("%w: token exchange request failed: %v", ErrAuth, err)
	}
	defer resp.Body.Close()

	body, err := readBodyExpect200(resp)
	if err != nil {
		return azcore.AccessToken{}, err
	}

	raw := extractField(body, "access_token")
	if raw == "" {
		raw = extractField(body, "id_token")
	}
	if raw == "" {
		return azcore.AccessToken{}, fmt.Errorf("%w: token exchange response carried neither id_token nor access_token", ErrAuth)
	}

	return azcore.AccessToken{Token: raw, ExpiresOn: expiresOnFromJWT(raw)}, nil
}
