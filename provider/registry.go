package provider

import "fmt"

// Registry maps a provider name (e.g. "anthropic", "openai", "bedrock") to
// the Client that serves it. The Generation Driver resolves providerName
// through a Registry before issuing a request.
type Registry struct {
	clients map[string]Client
}

// NewRegistry builds an empty Registry.
func NewRegistry() *Registry {
	return &Registry{clients: make(map[string]Client)}
}

// Register associates name with client, overwriting any prior registration.
func (r *Registry) Register(name string, client Client) {
	r.clients[name] = client
}

// Lookup returns the Client registered for name.
func (r *Registry) Lookup(name string) (Client, error) {
	c, ok := r.clients[name]
	if !ok {
		return nil, &UnknownProviderError{Name: name}
	}
	return c, nil
}

// UnknownProviderError is raised by Lookup when name has no registered
// Client.
type UnknownProviderError struct {
	Name string
}

func (e *UnknownProviderError) Error() string {
	return fmt.Sprintf("provider: unknown provider %q", e.Name)
}
