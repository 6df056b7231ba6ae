package config

import (
	"net"
	"os"
	"strconv"
	"strings"
)

// Config holds the process settings. It is read once at startup and passed to
// the components that need it.
type Config struct {
	Address              string // CLI --address
	Port                 int    // CLI --port
	ComputingDevice      string // "cuda" requests the accelerator, anything else means cpu
	ClassifierPath       string
	FaceModelsDir        string // dlib models used by go-face
	FaceDetectCNN        bool   // Use the CNN face detector instead of HOG. Slower, better at angles
	FaceCropSize         int    // Side of the aligned face crop handed to the classifier
	OnnxRuntimeLib       string // Path to the onnxruntime shared library, platform default if empty
	InferenceConcurrency int
	MaxUploadSize        int // Image uploads
	MaxModelSize         int // Classifier uploads, unlimited if 0
	DebugMode            bool
	LogLevel             string
	TLSDomains           string // e.g. "example.com,example2.com"
	// The classifier file is mirrored to S3 when a bucket is configured
	S3Bucket    string
	S3Prefix    string
	S3Region    string
	S3Endpoint  string
	S3AccessKey string
	S3SecretKey string
	MySQLDSN    string // MySQL will be used if this is set
	SQLiteFile  string // SQLite will be used if MySQLDSN is not configured and this is set
}

// Default returns the settings used when nothing is configured.
func Default() Config {
	return Config{
		Address:              "0.0.0.0",
		Port:                 5000,
		ComputingDevice:      "cpu",
		ClassifierPath:       "assets/classifier.pkl",
		FaceModelsDir:        "assets/models",
		FaceCropSize:         160,
		InferenceConcurrency: 1,
		MaxUploadSize:        32 << 20,
		LogLevel:             "info",
		S3Region:             "us-east-1",
	}
}

// FromEnv returns the defaults overridden by the process environment.
func FromEnv() Config {
	c := Default()
	readEnvString("COMPUTING_DEVICE", &c.ComputingDevice)
	readEnvString("CLASSIFIER_PATH", &c.ClassifierPath)
	readEnvString("FACE_MODELS_DIR", &c.FaceModelsDir)
	readEnvBool("FACE_DETECT_CNN", &c.FaceDetectCNN)
	readEnvInt("FACE_CROP_SIZE", &c.FaceCropSize)
	readEnvString("ONNXRUNTIME_LIB", &c.OnnxRuntimeLib)
	readEnvInt("INFERENCE_CONCURRENCY", &c.InferenceConcurrency)
	readEnvInt("MAX_UPLOAD_SIZE", &c.MaxUploadSize)
	readEnvInt("MAX_MODEL_SIZE", &c.MaxModelSize)
	readEnvBool("DEBUG_MODE", &c.DebugMode)
	readEnvString("LOG_LEVEL", &c.LogLevel)
	readEnvString("TLS_DOMAINS", &c.TLSDomains)
	readEnvString("CLASSIFIER_S3_BUCKET", &c.S3Bucket)
	readEnvString("CLASSIFIER_S3_PREFIX", &c.S3Prefix)
	readEnvString("S3_REGION", &c.S3Region)
	readEnvString("S3_ENDPOINT", &c.S3Endpoint)
	readEnvString("S3_ACCESS_KEY", &c.S3AccessKey)
	readEnvString("S3_SECRET_KEY", &c.S3SecretKey)
	readEnvString("MYSQL_DSN", &c.MySQLDSN)
	readEnvString("SQLITE_FILE", &c.SQLiteFile)

	if c.InferenceConcurrency < 1 {
		c.InferenceConcurrency = 1
	}
	if c.MaxModelSize < 0 {
		c.MaxModelSize = 0
	}
	if c.FaceCropSize < 1 {
		c.FaceCropSize = Default().FaceCropSize
	}
	return c
}

// BindAddress joins the address and port flags.
func (c Config) BindAddress() string {
	return net.JoinHostPort(c.Address, strconv.Itoa(c.Port))
}

func (c Config) S3Enabled() bool {
	return c.S3Bucket != ""
}

func (c Config) DatabaseEnabled() bool {
	return c.MySQLDSN != "" || c.SQLiteFile != ""
}

func readEnvString(name string, value *string) {
	v := os.Getenv(name)
	if v == "" {
		return
	}
	*value = v
}

func readEnvBool(name string, value *bool) {
	v := strings.ToLower(os.Getenv(name))
	if v == "true" || v == "1" || v == "yes" || v == "on" {
		*value = true
	} else if v == "false" || v == "0" || v == "no" || v == "off" {
		*value = false
	}
}

func readEnvInt(name string, value *int) {
	v := os.Getenv(name)
	if v == "" {
		return
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return
	}
	*value = i
}
