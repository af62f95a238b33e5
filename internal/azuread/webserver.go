package azuread

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"
)

// redirectServer is the ephemeral localhost HTTP server the credential
// starts when neither a redirect URI nor an initialize endpoint was
// supplied. It exists only to receive the single browser-less
// redirect response during the interactive flow; it never actually
// serves a real browser request, but its address is used as the
// redirect_uri the flow passes to Entra ID.
type redirectServer struct {
	listener net.Listener
	server   *http.Server
}

func startLocalRedirectServer() (*redirectServer, error) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, fmt.Errorf("binding local redirect listener: %w", err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	server := &http.Server{
		Handler:     mux,
		ReadTimeout: 500 * time.Millisecond,
	}

	rs := &redirectServer{listener: listener, server: server}
	go server.Serve(listener)

	return rs, nil
}

func (s *redirectServer) RedirectURI() string {
	return fmt.Sprintf("http://%s", s.listener.Addr().String())
}

func (s *redirectServer) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}
