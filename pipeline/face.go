package pipeline

import "image"

// Face is a detected face: its bounding box in the source image and its embedding.
type Face struct {
	Rectangle  image.Rectangle
	Descriptor []float32
}

// Detector finds, aligns and embeds the faces of a JPEG image.
type Detector interface {
	Detect(jpegData []byte) ([]Face, error)
	Close()
}

// largest returns the face with the biggest bounding box; the first one wins ties.
func largest(faces []Face) Face {
	best := faces[0]
	for _, f := range faces[1:] {
		if area(f.Rectangle) > area(best.Rectangle) {
			best = f
		}
	}
	return best
}

func area(r image.Rectangle) int {
	return r.Dx() * r.Dy()
}
