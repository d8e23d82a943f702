// Package embedding turns text into vectors for the context store.
package embedding

import "context"

// Embedder embeds a single text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Name() string
}
