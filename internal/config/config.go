// Package config provides configuration management for the Kinescore Agent.
// Configuration is loaded from environment variables with sensible defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

const (
	// Default values
	DefaultPort     = 8797
	DefaultLogLevel = "info"
	DefaultDataDir  = ".kinescore"

	// Environment variable names
	EnvPort     = "KINESCORE_PORT"
	EnvLogLevel = "KINESCORE_LOG_LEVEL"
	EnvDataDir  = "KINESCORE_DATA_DIR"

	// Detector environment variable names
	EnvDetectorPython    = "KINESCORE_DETECTOR_PYTHON"
	EnvDetectorModule    = "KINESCORE_DETECTOR_MODULE"
	EnvDetectorSampleFPS = "KINESCORE_DETECTOR_SAMPLE_FPS"

	// Analysis environment variable names
	EnvCourseDistanceM = "KINESCORE_COURSE_DISTANCE_M"
	EnvFFprobePath     = "KINESCORE_FFPROBE_PATH"

	// API environment variable names
	EnvAuthToken = "KINESCORE_AUTH_TOKEN"

	// Run without the system tray
	EnvHeadless = "KINESCORE_HEADLESS"

	// Database filename
	DBFilename = "kinescore.db"

	// Detector defaults
	DefaultDetectorModule        = "kinescore_pose_detector"
	DefaultDetectorSampleFPS     = 0 // every frame
	DefaultDetectorTimeoutDoctor = 30  // seconds
	DefaultDetectorTimeoutPose   = 900 // 15 minutes

	// Analysis defaults
	DefaultCourseDistanceM = 10.0
)

// Config defines the application configuration interface
type Config interface {
	Port() int
	LogLevel() string
	DataDir() string
	DBPath() string
	ArtifactsDir() string
	DetectorPython() string
	DetectorModule() string
	DetectorSampleFPS() float64
	DetectorTimeoutDoctor() time.Duration
	DetectorTimeoutPose() time.Duration
	CourseDistanceM() float64
	FFprobePath() string
	AuthToken() string
	Headless() bool
}

// EnvConfig reads configuration from environment variables
type EnvConfig struct {
	port     int
	logLevel string
	dataDir  string

	detectorPython    string
	detectorModule    string
	detectorSampleFPS float64

	courseDistanceM float64
	ffprobePath     string
	authToken       string
	headless        bool
}

// New creates a new EnvConfig with defaults and environment variable overrides
func New() (*EnvConfig, error) {
	cfg := &EnvConfig{
		port:              DefaultPort,
		logLevel:          DefaultLogLevel,
		dataDir:           defaultDataDir(),
		detectorSampleFPS: DefaultDetectorSampleFPS,
		courseDistanceM:   DefaultCourseDistanceM,
	}

	// Override port from environment
	if p := os.Getenv(EnvPort); p != "" {
		port, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", EnvPort, err)
		}
		if port < 1 || port > 65535 {
			return nil, fmt.Errorf("invalid %s: port must be between 1 and 65535", EnvPort)
		}
		cfg.port = port
	}

	// Override log level from environment
	if ll := os.Getenv(EnvLogLevel); ll != "" {
		cfg.logLevel = ll
	}

	// Override data directory from environment
	if dd := os.Getenv(EnvDataDir); dd != "" {
		cfg.dataDir = dd
	}

	cfg.detectorPython = os.Getenv(EnvDetectorPython)

	if dm := os.Getenv(EnvDetectorModule); dm != "" {
		cfg.detectorModule = dm
	}

	if fps := os.Getenv(EnvDetectorSampleFPS); fps != "" {
		v, err := strconv.ParseFloat(fps, 64)
		if err != nil || v < 0 {
			return nil, fmt.Errorf("invalid %s: %q", EnvDetectorSampleFPS, fps)
		}
		cfg.detectorSampleFPS = v
	}

	if cd := os.Getenv(EnvCourseDistanceM); cd != "" {
		v, err := strconv.ParseFloat(cd, 64)
		if err != nil || v <= 0 {
			return nil, fmt.Errorf("invalid %s: %q", EnvCourseDistanceM, cd)
		}
		cfg.courseDistanceM = v
	}

	cfg.ffprobePath = os.Getenv(EnvFFprobePath)
	cfg.authToken = os.Getenv(EnvAuthToken)

	switch os.Getenv(EnvHeadless) {
	case "", "0", "false":
	default:
		cfg.headless = true
	}

	return cfg, nil
}

// Port returns the HTTP server port
func (c *EnvConfig) Port() int {
	return c.port
}

// LogLevel returns the log level (debug, info, warn, error)
func (c *EnvConfig) LogLevel() string {
	return c.logLevel
}

// DataDir returns the data directory path
func (c *EnvConfig) DataDir() string {
	return c.dataDir
}

// DBPath returns the full path to the SQLite database file
func (c *EnvConfig) DBPath() string {
	return filepath.Join(c.dataDir, DBFilename)
}

// ArtifactsDir returns the directory for detector outputs and reports
func (c *EnvConfig) ArtifactsDir() string {
	return filepath.Join(c.dataDir, "artifacts")
}

func (c *EnvConfig) DetectorPython() string {
	return c.detectorPython
}

func (c *EnvConfig) DetectorModule() string {
	if c.detectorModule != "" {
		return c.detectorModule
	}
	return DefaultDetectorModule
}

// DetectorSampleFPS returns the landmark sampling rate; 0 means every frame
func (c *EnvConfig) DetectorSampleFPS() float64 {
	return c.detectorSampleFPS
}

func (c *EnvConfig) DetectorTimeoutDoctor() time.Duration {
	return time.Duration(DefaultDetectorTimeoutDoctor) * time.Second
}

func (c *EnvConfig) DetectorTimeoutPose() time.Duration {
	return time.Duration(DefaultDetectorTimeoutPose) * time.Second
}

// CourseDistanceM returns the configured shuttle course length in meters
func (c *EnvConfig) CourseDistanceM() float64 {
	return c.courseDistanceM
}

// FFprobePath returns an explicit ffprobe binary path, empty for PATH lookup
func (c *EnvConfig) FFprobePath() string {
	return c.ffprobePath
}

// AuthToken returns the bearer token for the local API, empty if unset
func (c *EnvConfig) AuthToken() string {
	return c.authToken
}

// Headless reports whether the agent should run without a system tray
func (c *EnvConfig) Headless() bool {
	return c.headless
}

// defaultDataDir returns the default data directory path
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		// Fallback to current directory if home is not available
		return DefaultDataDir
	}
	return filepath.Join(home, DefaultDataDir)
}

// Version information (set at build time via ldflags)
var (
	Version   = "0.1.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)
