// Package vlm defines the vision-language provider contract used for scene
// analysis. One JPEG frame goes in, one short natural-language description
// comes out.
package vlm

import "context"

// Describer produces a scene description for a single frame.
type Describer interface {
	// Describe blocks until the frame is described or ctx is done.
	// jpeg must be a complete JPEG image.
	Describe(ctx context.Context, jpeg []byte) (string, error)
}
