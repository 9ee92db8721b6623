package engine

type ApplicationConfig struct {
	// The application name used in logs.
	Name string
	// ConfigPath is watched for changes while the engine runs. Empty disables reloading.
	ConfigPath string
	// TargetFPS caps the frame rate, zero runs unbounded.
	TargetFPS uint32
	// MaxFrames stops the main loop after that many frames, zero runs until stopped.
	MaxFrames uint64
}
