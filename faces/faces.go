package faces

import (
	"fmt"

	"facerec/event"
	"facerec/pipeline"

	"github.com/Kagami/go-face"
)

var log = event.Log

// Recognizer detects, aligns and embeds faces with dlib through go-face.
type Recognizer struct {
	rec    *face.Recognizer
	useCNN bool
}

// NewRecognizer loads the dlib models from modelsDir. useCNN selects the CNN face
// detector instead of HOG.
func NewRecognizer(modelsDir string, useCNN bool) (*Recognizer, error) {
	rec, err := face.NewRecognizer(modelsDir)
	if err != nil {
		return nil, fmt.Errorf("faces: loading models from %s: %w", modelsDir, err)
	}
	log.Infof("faces: loaded models from %s (cnn: %t)", modelsDir, useCNN)
	return &Recognizer{rec: rec, useCNN: useCNN}, nil
}

func (r *Recognizer) Detect(jpegData []byte) (found []pipeline.Face, err error) {
	var faces []face.Face
	if r.useCNN {
		faces, err = r.rec.RecognizeCNN(jpegData)
	} else {
		faces, err = r.rec.Recognize(jpegData)
	}
	if err != nil {
		return nil, err
	}
	for _, cur := range faces {
		desc := [128]float32(cur.Descriptor)
		found = append(found, pipeline.Face{
			Rectangle:  cur.Rectangle,
			Descriptor: desc[:],
		})
	}
	return found, nil
}

func (r *Recognizer) Close() {
	r.rec.Close()
}
