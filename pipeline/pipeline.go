package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"sync/atomic"
	"time"

	"facerec/classifier"
	"facerec/event"
	"facerec/utils"
)

var log = event.Log

var (
	ErrNoFace   = errors.New("no face detected")
	ErrNotReady = errors.New("classifier not loaded")
)

// Status describes the classifier currently in use.
type Status struct {
	Ready    bool
	Device   classifier.Device
	Labels   []string
	Sha512   string
	LoadedAt time.Time
}

type loaded struct {
	classifier *classifier.Classifier
	sha512     string
	loadedAt   time.Time
}

// Pipeline owns the face detector and the current classifier. Model calls are
// limited to a fixed number of concurrent slots.
type Pipeline struct {
	detector Detector
	device   classifier.Device
	cropSize int
	slots    chan struct{}

	current     atomic.Pointer[loaded]
	retireMutex sync.Mutex
}

func New(detector Detector, device classifier.Device, cropSize, concurrency int) *Pipeline {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Pipeline{
		detector: detector,
		device:   device,
		cropSize: cropSize,
		slots:    make(chan struct{}, concurrency),
	}
}

func (p *Pipeline) Device() classifier.Device {
	return p.device
}

// Embed returns the embedding of the largest face in img.
func (p *Pipeline) Embed(ctx context.Context, img image.Image) ([]float32, error) {
	rgb := utils.ToRGB(img)
	if err := p.acquire(ctx); err != nil {
		return nil, err
	}
	defer p.release()

	face, err := p.detect(rgb)
	if err != nil {
		return nil, err
	}
	return face.Descriptor, nil
}

// Classify aligns the largest face in img and returns the current classifier's label for it.
func (p *Pipeline) Classify(ctx context.Context, img image.Image) (string, error) {
	if p.current.Load() == nil {
		return "", ErrNotReady
	}
	rgb := utils.ToRGB(img)
	if err := p.acquire(ctx); err != nil {
		return "", err
	}
	defer p.release()

	// Loaded again while holding a slot so it cannot be closed underneath us.
	state := p.current.Load()
	if state == nil {
		return "", ErrNotReady
	}
	face, err := p.detect(rgb)
	if err != nil {
		return "", err
	}
	aligned, ok := utils.CropResize(rgb, face.Rectangle, p.cropSize)
	if !ok {
		return "", fmt.Errorf("%w: face %v outside image %v", ErrNoFace, face.Rectangle, rgb.Bounds())
	}
	return state.classifier.Classify(aligned)
}

// SetClassifier swaps in c and closes the previous classifier once no request uses it.
func (p *Pipeline) SetClassifier(c *classifier.Classifier, sha512 string) {
	previous := p.current.Swap(&loaded{
		classifier: c,
		sha512:     sha512,
		loadedAt:   time.Now(),
	})
	if previous != nil {
		p.retire(previous.classifier)
	}
}

func (p *Pipeline) Status() Status {
	state := p.current.Load()
	if state == nil {
		return Status{Device: p.device}
	}
	return Status{
		Ready:    true,
		Device:   state.classifier.Device(),
		Labels:   state.classifier.Labels(),
		Sha512:   state.sha512,
		LoadedAt: state.loadedAt,
	}
}

// Close releases the detector and the current classifier.
func (p *Pipeline) Close() {
	if state := p.current.Swap(nil); state != nil {
		p.retire(state.classifier)
	}
	p.detector.Close()
}

func (p *Pipeline) detect(img image.Image) (Face, error) {
	data, err := utils.EncodeJPEG(img)
	if err != nil {
		return Face{}, fmt.Errorf("encoding image: %w", err)
	}
	faces, err := p.detector.Detect(data)
	if err != nil {
		return Face{}, fmt.Errorf("detecting faces: %w", err)
	}
	if len(faces) == 0 {
		return Face{}, ErrNoFace
	}
	if len(faces) > 1 {
		log.Debugf("pipeline: %d faces detected, using the largest", len(faces))
	}
	return largest(faces), nil
}

func (p *Pipeline) acquire(ctx context.Context) error {
	select {
	case p.slots <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Pipeline) release() {
	<-p.slots
}

// retire waits for every slot, so no inference still holds c, then closes it.
func (p *Pipeline) retire(c *classifier.Classifier) {
	p.retireMutex.Lock()
	defer p.retireMutex.Unlock()

	for i := 0; i < cap(p.slots); i++ {
		p.slots <- struct{}{}
	}
	if err := c.Close(); err != nil {
		log.Warnf("pipeline: closing previous classifier: %s", err)
	}
	for i := 0; i < cap(p.slots); i++ {
		<-p.slots
	}
}
