package ngrok

import (
	"context"
	"fmt"
	"os"

	"audiosource/internal/config"

	"github.com/sirupsen/logrus"
	"golang.ngrok.com/ngrok/v2"
)

// Service exposes the local API through an ngrok tunnel, optionally
// behind OAuth. Useful for reaching a home library server remotely
// without port forwarding.
type Service struct {
	config *config.NgrokConfig
	agent  ngrok.Agent
	tunnel ngrok.EndpointForwarder
	logger *logrus.Logger
}

// NewService creates the tunnel service, or (nil, nil) when tunneling
// is disabled in config.
func NewService(cfg *config.NgrokConfig) (*Service, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	authToken := cfg.AuthToken
	if authToken == "" {
		authToken = os.Getenv("NGROK_AUTHTOKEN")
	}
	if authToken == "" {
		return nil, fmt.Errorf("ngrok auth token not found; set NGROK_AUTHTOKEN or ngrok.auth_token")
	}

	agent, err := ngrok.NewAgent(ngrok.WithAuthtoken(authToken))
	if err != nil {
		return nil, fmt.Errorf("failed to create ngrok agent: %w", err)
	}

	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	return &Service{
		config: cfg,
		agent:  agent,
		logger: logger,
	}, nil
}

// StartTunnel forwards a public endpoint to the local address.
func (s *Service) StartTunnel(ctx context.Context, localAddress string) error {
	if s == nil {
		return nil
	}

	var endpointOpts []ngrok.EndpointOption
	if s.config.Domain != "" {
		endpointOpts = append(endpointOpts, ngrok.WithURL(s.config.Domain))
	}
	if s.config.EnableAuth {
		trafficPolicy := fmt.Sprintf(`
on_http_request:
  - actions:
      - type: oauth
        config:
          provider: %s
`, s.config.AuthProvider)
		endpointOpts = append(endpointOpts, ngrok.WithTrafficPolicy(trafficPolicy))
	}

	tunnel, err := s.agent.Forward(ctx, ngrok.WithUpstream(localAddress), endpointOpts...)
	if err != nil {
		return fmt.Errorf("failed to create ngrok tunnel: %w", err)
	}
	s.tunnel = tunnel

	s.logger.WithFields(logrus.Fields{
		"public_url": tunnel.URL().String(),
		"upstream":   localAddress,
		"oauth":      s.config.EnableAuth,
	}).Info("Ngrok tunnel active")
	return nil
}

// GetPublicURL returns the public URL of the tunnel.
func (s *Service) GetPublicURL() string {
	if s == nil || s.tunnel == nil {
		return ""
	}
	return s.tunnel.URL().String()
}

// Stop closes the tunnel.
func (s *Service) Stop() error {
	if s == nil || s.tunnel == nil {
		return nil
	}
	s.logger.Info("Stopping ngrok tunnel")
	return s.tunnel.Close()
}

// Wait blocks until the tunnel closes.
func (s *Service) Wait() {
	if s == nil || s.tunnel == nil {
		return
	}
	<-s.tunnel.Done()
}
