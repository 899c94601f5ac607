package port

import "context"

// Generator is a text-generation backend.
type Generator interface {
	// Generate produces text for prompt under the given role context
	// (system prompt).
	Generate(ctx context.Context, prompt, roleContext string) (string, error)

	// ModelName returns the name of the model.
	ModelName() string
}
