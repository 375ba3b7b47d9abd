package oauth

import "net/http"

// Service bundles the two vendor drivers with the shared pending-request
// registry, giving callers (the thin command surface and the management
// HTTP handlers) one object to hold.
type Service struct {
	Antigravity *AntigravityDriver
	Qwen        *QwenDriver
	registry    *Registry
}

// NewService wires both vendor drivers against a shared HTTP client.
func NewService(client *http.Client) *Service {
	return &Service{
		Antigravity: NewAntigravityDriver(client),
		Qwen:        NewQwenDriver(client),
		registry:    NewRegistry(),
	}
}

// Registry exposes the pending-request registry to HTTP handlers.
func (s *Service) Registry() *Registry {
	return s.registry
}

// Driver resolves the vendor driver implementing the shared refresh surface.
func (s *Service) Driver(provider string) Driver {
	switch provider {
	case "antigravity":
		return s.Antigravity
	case "qwen":
		return s.Qwen
	default:
		return nil
	}
}
