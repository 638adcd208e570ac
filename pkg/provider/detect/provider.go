// Package detect defines the object-detection provider contract used by the
// frame annotation path.
package detect

import "context"

// Box is a pixel-coordinate bounding box. X and Y are the top-left corner.
type Box struct {
	X      int
	Y      int
	Width  int
	Height int
}

// Detection is one detected object in a frame.
type Detection struct {
	Label      string
	Confidence float64
	Box        Box
}

// Detector finds objects in a single JPEG frame.
type Detector interface {
	// Detect blocks until the frame is processed or ctx is done. The
	// returned slice may be empty when nothing was found.
	Detect(ctx context.Context, jpeg []byte) ([]Detection, error)
}
