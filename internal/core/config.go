package core

// EngineConfig holds the settings a backend needs to build its
// execution environment.
type EngineConfig struct {
	MemoryLimitMB int // heap cap for the environment, 0 keeps the engine default
}
