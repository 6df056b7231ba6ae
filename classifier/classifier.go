package classifier

import (
	"errors"
	"fmt"
	"image"

	"facerec/event"

	"gonum.org/v1/gonum/floats"
)

var log = event.Log

var (
	// ErrLabelMismatch is returned when the model output does not line up with the label list.
	ErrLabelMismatch = errors.New("classifier: model output does not match labels")
	// ErrNoClasses is returned when a classifier file carries no label list.
	ErrNoClasses = errors.New("classifier: no classes in model metadata")
)

// Model is a trained network mapping a preprocessed input to one score per label.
type Model interface {
	Forward(device Device, input []float32) ([]float32, error)
	Close() error
}

// Preprocessing turns an aligned face image into the flat model input.
type Preprocessing func(img image.Image) []float32

// Classifier pairs a model with its preprocessing, labels and device.
type Classifier struct {
	device        Device
	model         Model
	preprocessing Preprocessing
	labels        []string
}

func New(model Model, preprocessing Preprocessing, labels []string, device Device) *Classifier {
	return &Classifier{
		device:        device,
		model:         model,
		preprocessing: preprocessing,
		labels:        labels,
	}
}

// Classify returns the label with the highest model score. Ties go to the first label.
func (c *Classifier) Classify(img image.Image) (string, error) {
	input := c.preprocessing(img)
	output, err := c.model.Forward(c.device, input)
	if err != nil {
		return "", fmt.Errorf("classifier: forward pass: %w", err)
	}
	if len(output) == 0 {
		return "", fmt.Errorf("%w: empty output", ErrLabelMismatch)
	}
	scores := make([]float64, len(output))
	for i, v := range output {
		scores[i] = float64(v)
	}
	idx := floats.MaxIdx(scores)
	if idx >= len(c.labels) {
		return "", fmt.Errorf("%w: index %d with %d labels", ErrLabelMismatch, idx, len(c.labels))
	}
	return c.labels[idx], nil
}

// To binds the classifier to device and returns it for chaining.
func (c *Classifier) To(device Device) *Classifier {
	c.device = device
	return c
}

func (c *Classifier) Device() Device {
	return c.device
}

// Labels returns a copy of the label list in output order.
func (c *Classifier) Labels() []string {
	return append([]string(nil), c.labels...)
}

func (c *Classifier) Close() error {
	return c.model.Close()
}
