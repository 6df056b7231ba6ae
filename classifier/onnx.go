package classifier

import (
	"encoding/json"
	"fmt"
	"strconv"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

// Custom metadata keys read from the classifier model.
const (
	MetadataClasses   = "classes"
	MetadataImageSize = "image_size"
	MetadataMean      = "mean"
	MetadataStd       = "std"
)

// Metadata describes how to feed a classifier model and how to read its output.
type Metadata struct {
	Classes   []string
	ImageSize int
	Mean      [3]float32
	Std       [3]float32
}

// ONNXModel runs a classifier network through onnxruntime. Sessions are created
// lazily, one per device.
type ONNXModel struct {
	path        string
	inputName   string
	outputName  string
	inputShape  ort.Shape
	outputShape ort.Shape

	mutex    sync.Mutex
	sessions map[Device]*ort.DynamicAdvancedSession
}

// Load deserializes the classifier stored at path. The result is bound to the CPU;
// use To to move it.
func Load(path string) (*Classifier, error) {
	inputs, outputs, err := ort.GetInputOutputInfo(path)
	if err != nil {
		return nil, fmt.Errorf("classifier: reading %s: %w", path, err)
	}
	if len(inputs) != 1 || len(outputs) == 0 {
		return nil, fmt.Errorf("classifier: %s has %d inputs and %d outputs, want 1 and at least 1", path, len(inputs), len(outputs))
	}

	meta, err := readMetadata(path)
	if err != nil {
		return nil, err
	}

	model := &ONNXModel{
		path:        path,
		inputName:   inputs[0].Name,
		outputName:  outputs[0].Name,
		inputShape:  ort.NewShape(1, 3, int64(meta.ImageSize), int64(meta.ImageSize)),
		outputShape: outputShape(outputs[0].Dimensions, len(meta.Classes)),
		sessions:    map[Device]*ort.DynamicAdvancedSession{},
	}
	log.Debugf("classifier: %s input %s%v, output %s%v, %d classes", path, model.inputName, model.inputShape, model.outputName, model.outputShape, len(meta.Classes))

	return New(model, NewPreprocessing(meta.ImageSize, meta.Mean, meta.Std), meta.Classes, CPU), nil
}

func (m *ONNXModel) Forward(device Device, input []float32) ([]float32, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	session, err := m.session(device)
	if err != nil {
		return nil, err
	}
	inputTensor, err := ort.NewTensor(m.inputShape, input)
	if err != nil {
		return nil, fmt.Errorf("creating input tensor: %w", err)
	}
	defer inputTensor.Destroy()

	outputTensor, err := ort.NewEmptyTensor[float32](m.outputShape)
	if err != nil {
		return nil, fmt.Errorf("creating output tensor: %w", err)
	}
	defer outputTensor.Destroy()

	if err := session.Run([]ort.ArbitraryTensor{inputTensor}, []ort.ArbitraryTensor{outputTensor}); err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}
	return append([]float32(nil), outputTensor.GetData()...), nil
}

func (m *ONNXModel) Close() error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	var firstErr error
	for device, session := range m.sessions {
		if err := session.Destroy(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(m.sessions, device)
	}
	return firstErr
}

func (m *ONNXModel) session(device Device) (*ort.DynamicAdvancedSession, error) {
	if session, ok := m.sessions[device]; ok {
		return session, nil
	}
	options, err := sessionOptions(device)
	if err != nil {
		return nil, err
	}
	defer options.Destroy()

	session, err := ort.NewDynamicAdvancedSession(m.path, []string{m.inputName}, []string{m.outputName}, options)
	if err != nil {
		return nil, fmt.Errorf("creating %s session: %w", device, err)
	}
	m.sessions[device] = session
	return session, nil
}

func readMetadata(path string) (Metadata, error) {
	md, err := ort.GetModelMetadata(path)
	if err != nil {
		return Metadata{}, fmt.Errorf("classifier: reading metadata of %s: %w", path, err)
	}
	defer md.Destroy()
	return parseMetadata(md.LookupCustomMetadataMap)
}

// parseMetadata builds Metadata from the model's custom metadata map.
func parseMetadata(lookup func(key string) (string, bool, error)) (Metadata, error) {
	meta := Metadata{
		ImageSize: 160,
		Mean:      [3]float32{0.5, 0.5, 0.5},
		Std:       [3]float32{0.5, 0.5, 0.5},
	}

	classes, ok, err := lookup(MetadataClasses)
	if err != nil {
		return meta, fmt.Errorf("classifier: reading %s: %w", MetadataClasses, err)
	}
	if !ok {
		return meta, ErrNoClasses
	}
	if err := json.Unmarshal([]byte(classes), &meta.Classes); err != nil {
		return meta, fmt.Errorf("classifier: parsing %s: %w", MetadataClasses, err)
	}
	if len(meta.Classes) == 0 {
		return meta, ErrNoClasses
	}

	if v, ok, err := lookup(MetadataImageSize); err != nil {
		return meta, fmt.Errorf("classifier: reading %s: %w", MetadataImageSize, err)
	} else if ok {
		size, err := strconv.Atoi(v)
		if err != nil || size <= 0 {
			return meta, fmt.Errorf("classifier: invalid %s %q", MetadataImageSize, v)
		}
		meta.ImageSize = size
	}

	for key, target := range map[string]*[3]float32{MetadataMean: &meta.Mean, MetadataStd: &meta.Std} {
		v, ok, err := lookup(key)
		if err != nil {
			return meta, fmt.Errorf("classifier: reading %s: %w", key, err)
		}
		if !ok {
			continue
		}
		if err := json.Unmarshal([]byte(v), target); err != nil {
			return meta, fmt.Errorf("classifier: parsing %s: %w", key, err)
		}
	}
	for _, s := range meta.Std {
		if s == 0 {
			return meta, fmt.Errorf("classifier: %s must not contain zeros", MetadataStd)
		}
	}
	return meta, nil
}

// outputShape resolves dynamic dimensions of the model output: the batch is 1 and
// any other unknown dimension falls back to one score per class.
func outputShape(dims ort.Shape, classes int) ort.Shape {
	if len(dims) == 0 {
		return ort.NewShape(1, int64(classes))
	}
	shape := make([]int64, len(dims))
	for i, d := range dims {
		switch {
		case d > 0:
			shape[i] = d
		case i == 0:
			shape[i] = 1
		default:
			return ort.NewShape(1, int64(classes))
		}
	}
	return ort.NewShape(shape...)
}
