package azuread

import (
	"net/http"
	"net/http/cookiejar"
	"time"
)

// httpFlowClient wraps the *http.Client used for every Entra ID HTTP
// call, carrying a cookie jar since the interactive user flow is a
// cookie-tracked multi-step browser simulation.
type httpFlowClient struct {
	*http.Client
}

func newHTTPFlowClient() *httpFlowClient {
	jar, _ := cookiejar.New(nil)
	return &httpFlowClient{
		Client: &http.Client{
			Timeout: 30 * time.Second,
			Jar:     jar,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				// The flow needs to inspect redirect responses itself
				// (the authorization code arrives in a 302 Location
				// fragment), so redirects are never followed
				// automatically.
				return http.ErrUseLastResponse
			},
		},
	}
}
