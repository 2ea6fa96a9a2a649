// Package image provides image generation for pipeline stages.
//
// The pipeline only needs a URL for a generated image; the Generator
// interface keeps the actual image API behind a single method so tests
// and examples can script it.
package image

import "context"

// Generator produces an image for a prompt and returns its URL.
// The URL may be an HTTP location or a base64 data URL depending on
// the backing API.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// GeneratorFunc adapts a function to the Generator interface.
type GeneratorFunc func(ctx context.Context, prompt string) (string, error)

// Generate implements Generator.
func (f GeneratorFunc) Generate(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}
