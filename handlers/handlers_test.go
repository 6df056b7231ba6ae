package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"facerec/classifier"
	"facerec/db"
	"facerec/models"
	"facerec/pipeline"
	"facerec/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type fakeDetector struct {
	faces []pipeline.Face
}

func (d *fakeDetector) Detect(jpegData []byte) ([]pipeline.Face, error) {
	return d.faces, nil
}

func (d *fakeDetector) Close() {}

// oneHot always scores the first label highest.
type oneHot struct {
	size int
}

func (m oneHot) Forward(device classifier.Device, input []float32) ([]float32, error) {
	output := make([]float32, m.size)
	output[0] = 1
	return output, nil
}

func (m oneHot) Close() error {
	return nil
}

func noPreprocessing(img image.Image) []float32 {
	return nil
}

// loadLabels accepts files starting with a line of the form "labels:alice,bob".
func loadLabels(path string) (*classifier.Classifier, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	first, _, _ := strings.Cut(string(data), "\n")
	list, ok := strings.CutPrefix(first, "labels:")
	if !ok || list == "" {
		return nil, errors.New("not a classifier")
	}
	labels := strings.Split(list, ",")
	return classifier.New(oneHot{size: len(labels)}, noPreprocessing, labels, classifier.CPU), nil
}

type testServer struct {
	router   http.Handler
	pipeline *pipeline.Pipeline
	storage  *storage.DiskStorage
}

func newTestServer(t *testing.T, detector *fakeDetector, conn *gorm.DB, configure ...func(*Options)) *testServer {
	t.Helper()
	p := pipeline.New(detector, classifier.CPU, 160, 1)
	disk := storage.NewDiskStorage(filepath.Join(t.TempDir(), "assets"))
	opts := Options{
		Pipeline:       p,
		Storage:        disk,
		ClassifierFile: "classifier.pkl",
		Loader:         loadLabels,
		DB:             conn,
	}
	for _, f := range configure {
		f(&opts)
	}
	h := New(opts)
	return &testServer{router: NewRouter(h, false), pipeline: p, storage: disk}
}

func (s *testServer) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func oneFace() *fakeDetector {
	return &fakeDetector{faces: []pipeline.Face{{
		Rectangle:  image.Rect(8, 8, 56, 56),
		Descriptor: []float32{0.25, -0.5, 1},
	}}}
}

func pngImage(t *testing.T) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 64, 64))
	for y := 0; y < 64; y++ {
		for x := 0; x < 64; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: uint8(x * 4), G: uint8(y * 4), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func uploadRequest(t *testing.T, path, field string, content []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile(field, "upload")
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), "body: %s", w.Body.String())
	return v
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, oneFace(), nil)
	w := s.do(httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, w.Code)
	body := decode[map[string]any](t, w)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, false, body["classifier_loaded"])
	assert.Equal(t, "cpu", body["device"])
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestEmbed(t *testing.T) {
	s := newTestServer(t, oneFace(), nil)

	first := s.do(uploadRequest(t, "/embed", "image", pngImage(t)))
	require.Equal(t, http.StatusOK, first.Code, first.Body.String())
	assert.Equal(t, []float32{0.25, -0.5, 1}, decode[[]float32](t, first))

	second := s.do(uploadRequest(t, "/embed", "image", pngImage(t)))
	require.Equal(t, http.StatusOK, second.Code)
	assert.Equal(t, first.Body.String(), second.Body.String())
}

func TestEmbed_NoFace(t *testing.T) {
	s := newTestServer(t, &fakeDetector{}, nil)
	w := s.do(uploadRequest(t, "/embed", "image", pngImage(t)))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, pipeline.ErrNoFace.Error(), decode[Response](t, w).Error)
}

func TestRecognition_BadRequests(t *testing.T) {
	s := newTestServer(t, oneFace(), nil)
	tests := []struct {
		name string
		req  *http.Request
	}{
		{"embed wrong field", uploadRequest(t, "/embed", "photo", pngImage(t))},
		{"embed not an image", uploadRequest(t, "/embed", "image", []byte("hello"))},
		{"classify wrong field", uploadRequest(t, "/classify", "file", pngImage(t))},
		{"classify no body", httptest.NewRequest(http.MethodPost, "/classify", nil)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.do(tt.req)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.NotEmpty(t, decode[Response](t, w).Error)
		})
	}
}

func TestClassify_NotReady(t *testing.T) {
	s := newTestServer(t, oneFace(), nil)
	w := s.do(uploadRequest(t, "/classify", "image", pngImage(t)))

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, pipeline.ErrNotReady.Error(), decode[Response](t, w).Error)

	w = s.do(httptest.NewRequest(http.MethodGet, "/classifier", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestClassify_NoFace(t *testing.T) {
	s := newTestServer(t, &fakeDetector{}, nil)
	s.pipeline.SetClassifier(classifier.New(oneHot{size: 1}, noPreprocessing, []string{"alice"}, classifier.CPU), "")

	w := s.do(uploadRequest(t, "/classify", "image", pngImage(t)))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestUploadClassifier_ThenClassify(t *testing.T) {
	s := newTestServer(t, oneFace(), nil)
	s.pipeline.SetClassifier(classifier.New(oneHot{size: 2}, noPreprocessing, []string{"alice", "bob"}, classifier.CPU), "")

	w := s.do(uploadRequest(t, "/classify", "image", pngImage(t)))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "alice", decode[string](t, w))

	content := []byte("labels:carol,dave")
	w = s.do(uploadRequest(t, "/upload_classifier", "model", content))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, UploadedMessage, decode[string](t, w))

	onDisk, err := os.ReadFile(s.storage.GetFullPath("classifier.pkl"))
	require.NoError(t, err)
	assert.Equal(t, content, onDisk)

	for i := 0; i < 3; i++ {
		w = s.do(uploadRequest(t, "/classify", "image", pngImage(t)))
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "carol", decode[string](t, w))
	}

	w = s.do(httptest.NewRequest(http.MethodGet, "/classifier", nil))
	require.Equal(t, http.StatusOK, w.Code)
	info := decode[ClassifierResponse](t, w)
	assert.Equal(t, []string{"carol", "dave"}, info.Labels)
	assert.Equal(t, "cpu", info.Device)
	assert.Len(t, info.Sha512, 128)
	assert.Empty(t, info.Uploads)
}

func TestUploadClassifier_Malformed(t *testing.T) {
	s := newTestServer(t, oneFace(), nil)
	w := s.do(uploadRequest(t, "/upload_classifier", "model", []byte("labels:alice,bob")))
	require.Equal(t, http.StatusOK, w.Code)

	garbage := []byte("\x00\x01 definitely not a model")
	w = s.do(uploadRequest(t, "/upload_classifier", "model", garbage))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, decode[Response](t, w).Error, "not a classifier")

	onDisk, err := os.ReadFile(s.storage.GetFullPath("classifier.pkl"))
	require.NoError(t, err)
	assert.Equal(t, garbage, onDisk)

	w = s.do(uploadRequest(t, "/classify", "image", pngImage(t)))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "alice", decode[string](t, w))
}

func TestUploadClassifier_MissingFile(t *testing.T) {
	s := newTestServer(t, oneFace(), nil)
	w := s.do(uploadRequest(t, "/upload_classifier", "classifier", []byte("labels:a")))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, int64(-1), s.storage.GetSize("classifier.pkl"))
}

func TestUploadClassifier_LargerThanImageLimit(t *testing.T) {
	s := newTestServer(t, oneFace(), nil, func(o *Options) {
		o.MaxUploadSize = 64 << 10
	})
	content := append([]byte("labels:big,model\n"), bytes.Repeat([]byte{0xAB}, 1<<20)...)

	w := s.do(uploadRequest(t, "/upload_classifier", "model", content))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, int64(len(content)), s.storage.GetSize("classifier.pkl"))

	w = s.do(uploadRequest(t, "/classify", "image", pngImage(t)))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "big", decode[string](t, w))
}

func TestUploads_TooLarge(t *testing.T) {
	s := newTestServer(t, oneFace(), nil, func(o *Options) {
		o.MaxUploadSize = 64 << 10
		o.MaxModelSize = 1 << 10
	})
	tests := []struct {
		name string
		req  *http.Request
	}{
		{"image", uploadRequest(t, "/embed", "image", bytes.Repeat([]byte{1}, 128<<10))},
		{"model", uploadRequest(t, "/upload_classifier", "model", append([]byte("labels:a\n"), bytes.Repeat([]byte{1}, 4<<10)...))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.do(tt.req)
			assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
			assert.Contains(t, decode[Response](t, w).Error, "exceeds")
		})
	}
	assert.Equal(t, int64(-1), s.storage.GetSize("classifier.pkl"))
}

func TestUploadClassifier_History(t *testing.T) {
	conn, err := db.Open("", filepath.Join(t.TempDir(), "facerec.db"))
	require.NoError(t, err)
	require.NoError(t, models.Init(conn))
	s := newTestServer(t, oneFace(), conn)

	require.Equal(t, http.StatusOK, s.do(uploadRequest(t, "/upload_classifier", "model", []byte("labels:a,b,c"))).Code)
	require.Equal(t, http.StatusInternalServerError, s.do(uploadRequest(t, "/upload_classifier", "model", []byte("junk"))).Code)

	w := s.do(httptest.NewRequest(http.MethodGet, "/classifier", nil))
	require.Equal(t, http.StatusOK, w.Code)
	info := decode[ClassifierResponse](t, w)
	assert.Equal(t, []string{"a", "b", "c"}, info.Labels)
	require.Len(t, info.Uploads, 2)
	assert.Equal(t, models.UploadFailed, info.Uploads[0].Status)
	assert.Equal(t, int64(4), info.Uploads[0].Size)
	assert.Equal(t, models.UploadLoaded, info.Uploads[1].Status)
	assert.Equal(t, 3, info.Uploads[1].Labels)
}

func Test_statusFor(t *testing.T) {
	assert.Equal(t, http.StatusServiceUnavailable, statusFor(pipeline.ErrNotReady))
	assert.Equal(t, http.StatusRequestEntityTooLarge, statusFor(fmt.Errorf("%w: 1 KiB", ErrTooLarge)))
	assert.Equal(t, http.StatusBadRequest, statusFor(ErrMissingFile))
	assert.Equal(t, http.StatusInternalServerError, statusFor(pipeline.ErrNoFace))
	assert.Equal(t, http.StatusInternalServerError, statusFor(classifier.ErrLabelMismatch))
	assert.Equal(t, http.StatusInternalServerError, statusFor(errors.New("boom")))
}
