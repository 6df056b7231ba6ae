package classifier

import (
	"fmt"

	ort "github.com/yalue/onnxruntime_go"
)

type Device string

const (
	CPU  Device = "cpu"
	CUDA Device = "cuda"
)

// cudaProbe reports why the CUDA execution provider cannot be used, or nil.
var cudaProbe = probeCUDA

// InitRuntime loads the onnxruntime shared library. An empty libPath keeps the platform default.
func InitRuntime(libPath string) error {
	if libPath != "" {
		ort.SetSharedLibraryPath(libPath)
	}
	if ort.IsInitialized() {
		return nil
	}
	if err := ort.InitializeEnvironment(); err != nil {
		return fmt.Errorf("classifier: initializing onnxruntime: %w", err)
	}
	return nil
}

func DestroyRuntime() {
	if !ort.IsInitialized() {
		return
	}
	if err := ort.DestroyEnvironment(); err != nil {
		log.Warnf("classifier: destroying onnxruntime: %s", err)
	}
}

// SelectDevice maps the configured device name to a Device. "cuda" falls back to
// the CPU when the CUDA execution provider is not available.
func SelectDevice(name string) Device {
	if name != string(CUDA) {
		return CPU
	}
	if err := cudaProbe(); err != nil {
		log.Warnf("classifier: cuda not available, falling back to cpu (%s)", err)
		return CPU
	}
	return CUDA
}

func probeCUDA() error {
	options, err := sessionOptions(CUDA)
	if err != nil {
		return err
	}
	return options.Destroy()
}

// sessionOptions returns onnxruntime session options targeting device.
func sessionOptions(device Device) (*ort.SessionOptions, error) {
	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("creating session options: %w", err)
	}
	if device != CUDA {
		return options, nil
	}
	cudaOptions, err := ort.NewCUDAProviderOptions()
	if err != nil {
		options.Destroy()
		return nil, fmt.Errorf("creating cuda provider options: %w", err)
	}
	defer cudaOptions.Destroy()
	if err := cudaOptions.Update(map[string]string{"device_id": "0"}); err != nil {
		options.Destroy()
		return nil, fmt.Errorf("configuring cuda provider: %w", err)
	}
	if err := options.AppendExecutionProviderCUDA(cudaOptions); err != nil {
		options.Destroy()
		return nil, fmt.Errorf("appending cuda provider: %w", err)
	}
	return options, nil
}
