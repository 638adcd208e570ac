// Package httpdet provides an object detector backed by a detection server's
// REST API (POST /detect with a multipart JPEG, JSON detections back). Any
// YOLO-style inference server exposing this shape works.
package httpdet

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/halcyoncraft/sightline/pkg/provider/detect"
)

// Compile-time assertion that Detector implements detect.Detector.
var _ detect.Detector = (*Detector)(nil)

// Option is a functional option for configuring a Detector.
type Option func(*Detector)

// WithHTTPClient replaces the HTTP client used for detection requests.
func WithHTTPClient(c *http.Client) Option {
	return func(d *Detector) {
		d.httpClient = c
	}
}

// WithMinConfidence drops detections below the given confidence before they
// are returned. Defaults to 0 (keep everything the server reports).
func WithMinConfidence(min float64) Option {
	return func(d *Detector) {
		d.minConfidence = min
	}
}

// Detector implements detect.Detector against a REST detection endpoint.
// It is safe for concurrent use.
type Detector struct {
	serverURL     string
	minConfidence float64
	httpClient    *http.Client
}

// New creates a Detector that connects to the detection server at serverURL
// (e.g., "http://localhost:9090"). serverURL must be non-empty.
func New(serverURL string, opts ...Option) (*Detector, error) {
	if serverURL == "" {
		return nil, errors.New("httpdet: serverURL must not be empty")
	}
	d := &Detector{
		serverURL:  strings.TrimRight(serverURL, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
	for _, o := range opts {
		o(d)
	}
	return d, nil
}

// wireDetection mirrors one entry of the server's JSON response.
type wireDetection struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
	X          int     `json:"x"`
	Y          int     `json:"y"`
	Width      int     `json:"width"`
	Height     int     `json:"height"`
}

// Detect implements detect.Detector.
func (d *Detector) Detect(ctx context.Context, jpeg []byte) ([]detect.Detection, error) {
	if len(jpeg) == 0 {
		return nil, errors.New("httpdet: empty frame")
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", "frame.jpg")
	if err != nil {
		return nil, fmt.Errorf("httpdet: create form file: %w", err)
	}
	if _, err := fw.Write(jpeg); err != nil {
		return nil, fmt.Errorf("httpdet: write frame: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("httpdet: close multipart writer: %w", err)
	}

	endpoint := d.serverURL + "/detect"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &body)
	if err != nil {
		return nil, fmt.Errorf("httpdet: create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("httpdet: http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("httpdet: server returned HTTP %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("httpdet: read response body: %w", err)
	}

	var result struct {
		Detections []wireDetection `json:"detections"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("httpdet: parse JSON response: %w", err)
	}

	out := make([]detect.Detection, 0, len(result.Detections))
	for _, w := range result.Detections {
		if w.Confidence < d.minConfidence {
			continue
		}
		out = append(out, detect.Detection{
			Label:      w.Label,
			Confidence: w.Confidence,
			Box: detect.Box{
				X:      w.X,
				Y:      w.Y,
				Width:  w.Width,
				Height: w.Height,
			},
		})
	}
	return out, nil
}
