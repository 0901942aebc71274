package translator

import "fmt"

// New resolves service to a concrete backend configured from creds.
func New(service Service, creds Credentials, opts ...Option) (Backend, error) {
	switch service {
	case ServiceDeepL:
		backend, err := NewNeuralMT(creds, opts...)
		if err != nil {
			return nil, err
		}
		return backend, nil
	case ServiceChatGPT:
		backend, err := NewChatCompletion(creds, opts...)
		if err != nil {
			return nil, err
		}
		return backend, nil
	default:
		return nil, fmt.Errorf("unknown translation service %d", int(service))
	}
}
