// Package client talks to a facerec server over HTTP.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"mime/multipart"
	"net/http"
	"net/url"

	"gonum.org/v1/gonum/floats"
)

// APIError is returned for responses outside the 2xx range.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("facerec: status %d: %s", e.StatusCode, e.Message)
}

// FaceRecognizer is a client for the classify, embed and upload_classifier endpoints.
type FaceRecognizer struct {
	client              *http.Client
	classifyURL         string
	embedURL            string
	uploadClassifierURL string
}

// New resolves the endpoint URLs against baseURL, e.g. "http://127.0.0.1:5000/".
func New(baseURL string) (*FaceRecognizer, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("facerec: parsing base url: %w", err)
	}
	endpoint := func(name string) string {
		return base.ResolveReference(&url.URL{Path: name}).String()
	}
	return &FaceRecognizer{
		client:              http.DefaultClient,
		classifyURL:         endpoint("classify"),
		embedURL:            endpoint("embed"),
		uploadClassifierURL: endpoint("upload_classifier"),
	}, nil
}

// WithHTTPClient replaces the default HTTP client.
func (r *FaceRecognizer) WithHTTPClient(client *http.Client) *FaceRecognizer {
	r.client = client
	return r
}

func (r *FaceRecognizer) Embed(ctx context.Context, image []byte) (embedding []float64, err error) {
	err = r.post(ctx, r.embedURL, "image", "image", image, &embedding)
	return
}

func (r *FaceRecognizer) Classify(ctx context.Context, image []byte) (label string, err error) {
	err = r.post(ctx, r.classifyURL, "image", "image", image, &label)
	return
}

// UploadClassifier replaces the server's classifier and returns its confirmation message.
func (r *FaceRecognizer) UploadClassifier(ctx context.Context, classifier []byte) (message string, err error) {
	err = r.post(ctx, r.uploadClassifierURL, "model", "classifier", classifier, &message)
	return
}

func (r *FaceRecognizer) post(ctx context.Context, endpoint, field, fileName string, content []byte, result any) error {
	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	part, err := form.CreateFormFile(field, fileName)
	if err != nil {
		return err
	}
	if _, err := part.Write(content); err != nil {
		return err
	}
	if err := form.Close(); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", form.FormDataContentType())

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("facerec: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return apiError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("facerec: decoding response: %w", err)
	}
	return nil
}

func apiError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var body struct {
		Error string `json:"error"`
	}
	message := string(data)
	if json.Unmarshal(data, &body) == nil && body.Error != "" {
		message = body.Error
	}
	return &APIError{StatusCode: resp.StatusCode, Message: message}
}

// Distance is the Euclidean distance between two embeddings. Embeddings of
// different lengths are infinitely far apart.
func Distance(a, b []float64) float64 {
	if len(a) != len(b) {
		return math.Inf(1)
	}
	return floats.Distance(a, b, 2)
}
