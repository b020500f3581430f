// Package recognizer talks to a face embedding server.
package recognizer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kozaktomas/face-id/internal/facematch"
	"github.com/kozaktomas/face-id/internal/imageio"
)

const (
	defaultURL     = "http://localhost:8000"
	defaultTimeout = 2 * time.Minute
)

// Client detects faces and computes their embeddings on the embedding server.
// It implements facematch.Detector.
type Client struct {
	baseURL      string
	client       *http.Client
	maxImageSize int
	logger       *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.client = hc
		}
	}
}

// WithMaxImageSize downscales images larger than size pixels before upload.
// Face boxes are mapped back to the original image coordinates. 0 disables downscaling.
func WithMaxImageSize(size int) Option {
	return func(c *Client) { c.maxImageSize = size }
}

// WithLogger sets a logger for debug output.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewClient creates a new embedding server client
func NewClient(baseURL string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = defaultURL
	}
	c := &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{Timeout: defaultTimeout},
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FaceDetection represents a single detected face
type FaceDetection struct {
	FaceIndex int       `json:"face_index"`
	Dim       int       `json:"dim"`
	Embedding []float32 `json:"embedding"`
	BBox      []float64 `json:"bbox"` // [x1, y1, x2, y2]
	DetScore  float64   `json:"det_score"`
}

// FaceResponse represents the response from the face embedding endpoint
type FaceResponse struct {
	FacesCount int             `json:"faces_count"`
	Faces      []FaceDetection `json:"faces"`
	Model      string          `json:"model"`
}

// postMultipartImage posts the image as the "file" form field with a Content-Type
// detected from its magic bytes.
func (c *Client) postMultipartImage(ctx context.Context, endpoint string, imageData []byte) ([]byte, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="image"`)
	h.Set("Content-Type", detectMIMEType(imageData))
	part, err := writer.CreatePart(h)
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}

	if _, err := part.Write(imageData); err != nil {
		return nil, fmt.Errorf("failed to write image data: %w", err)
	}

	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, &buf)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(body))
	}

	return body, nil
}

// detectMIMEType detects the MIME type from image data
func detectMIMEType(data []byte) string {
	if len(data) < 8 {
		return "application/octet-stream"
	}
	// JPEG: FF D8 FF
	if data[0] == 0xFF && data[1] == 0xD8 && data[2] == 0xFF {
		return "image/jpeg"
	}
	// PNG: 89 50 4E 47 0D 0A 1A 0A
	if data[0] == 0x89 && data[1] == 0x50 && data[2] == 0x4E && data[3] == 0x47 {
		return "image/png"
	}
	// BMP: 42 4D
	if data[0] == 0x42 && data[1] == 0x4D {
		return "image/bmp"
	}
	// WebP: 52 49 46 46 ... 57 45 42 50
	if len(data) >= 12 && data[0] == 0x52 && data[1] == 0x49 && data[2] == 0x46 && data[3] == 0x46 &&
		data[8] == 0x57 && data[9] == 0x45 && data[10] == 0x42 && data[11] == 0x50 {
		return "image/webp"
	}
	return "application/octet-stream"
}

// ComputeFaceEmbeddings detects faces and computes their embeddings
func (c *Client) ComputeFaceEmbeddings(ctx context.Context, imageData []byte) (*FaceResponse, error) {
	body, err := c.postMultipartImage(ctx, "/embed/face", imageData)
	if err != nil {
		return nil, err
	}

	var faceResp FaceResponse
	if err := json.Unmarshal(body, &faceResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	return &faceResp, nil
}

// Detect implements facematch.Detector. Faces keep the server's order.
func (c *Client) Detect(ctx context.Context, img *facematch.Image) ([]facematch.Face, error) {
	upload, scaleX, scaleY, err := imageio.Downscale(img, c.maxImageSize)
	if err != nil {
		return nil, err
	}
	if len(upload.Data) == 0 {
		return nil, errors.New("empty image data")
	}

	resp, err := c.ComputeFaceEmbeddings(ctx, upload.Data)
	if err != nil {
		return nil, err
	}
	c.logger.Debug("faces detected",
		zap.String("path", img.Path),
		zap.Int("faces", len(resp.Faces)),
		zap.String("model", resp.Model),
		zap.Float64("scale_x", scaleX),
		zap.Float64("scale_y", scaleY),
	)

	faces := make([]facematch.Face, 0, len(resp.Faces))
	for i, f := range resp.Faces {
		box, err := facematch.BBoxFromSlice(f.BBox)
		if err != nil {
			return nil, fmt.Errorf("face %d: %w", i, err)
		}
		if len(f.Embedding) == 0 {
			return nil, fmt.Errorf("face %d: empty embedding returned", i)
		}
		emb := make(facematch.Embedding, len(f.Embedding))
		for j, v := range f.Embedding {
			emb[j] = float64(v)
		}
		faces = append(faces, facematch.Face{
			Box:       box.ScaleXY(scaleX, scaleY),
			Embedding: emb,
			Score:     f.DetScore,
		})
	}
	return faces, nil
}
