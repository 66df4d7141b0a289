package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/ppecam/ppecam/pkg/nn"
)

type Config struct {
	PersonDetectorURL  string   `json:"personDetectorURL"`  // Upstream person detection endpoint
	PPEDetectorURL     string   `json:"ppeDetectorURL"`     // Upstream PPE detection endpoint
	Vocabulary         string   `json:"vocabulary"`         // "sitesafety", "cleanroom", or path to a vocabulary JSON file
	RequiredClasses    []string `json:"requiredClasses"`    // Optional override of the vocabulary's required set
	MinConfidence      float32  `json:"minConfidence"`      // Detections below this are discarded (default 0.5)
	PresenceConfidence float32  `json:"presenceConfidence"` // Person confidence that counts as "subject present" in live mode (default 0.6)
	MissedFrameLimit   int      `json:"missedFrameLimit"`   // Consecutive empty live samples before auto-stop (default 5)
	SampleIntervalMS   int      `json:"sampleIntervalMS"`   // Live sampling period in milliseconds (default 500)
	FileSampleCount    int      `json:"fileSampleCount"`    // Number of frames sampled from an uploaded video (default 10)
	JPEGQuality        int      `json:"jpegQuality"`        // Quality of the re-encoded sample frames (default 80)
	DetectTimeoutMS    int      `json:"detectTimeoutMS"`    // Timeout per detector call (default 30000)
	MaxUploadMB        int64    `json:"maxUploadMB"`        // Reject uploads larger than this (default 100)
	HTTPPort           string   `json:"httpPort"`           // Monitor API listen address (default ":8088")
	RelayPort          string   `json:"relayPort"`          // Relay listen address (default ":8089")
	CameraDevice       int      `json:"cameraDevice"`       // Capture device index for live mode
}

func Default() *Config {
	return &Config{
		Vocabulary:         "sitesafety",
		MinConfidence:      nn.DefaultMinConfidence,
		PresenceConfidence: 0.6,
		MissedFrameLimit:   5,
		SampleIntervalMS:   500,
		FileSampleCount:    10,
		JPEGQuality:        80,
		DetectTimeoutMS:    30000,
		MaxUploadMB:        100,
		HTTPPort:           ":8088",
		RelayPort:          ":8089",
	}
}

func LoadConfig(filename string) (*Config, error) {
	cfg := Default()
	if filename == "" {
		filename = "ppecam.json"
		if _, err := os.Stat(filename); err != nil {
			// No config file is fine, we run on defaults
			return cfg, nil
		}
	}
	raw, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("Error loading %v: %w", filename, err)
	}
	if err := json.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("Error loading %v as JSON: %w", filename, err)
	}
	return cfg, nil
}

// LoadVocabulary resolves the configured vocabulary, applying the required
// class override if present.
func (c *Config) LoadVocabulary() (*nn.Vocabulary, error) {
	var v *nn.Vocabulary
	var err error
	switch c.Vocabulary {
	case "", "sitesafety":
		v = nn.SiteSafetyVocabulary()
	case "cleanroom":
		v = nn.CleanRoomVocabulary()
	default:
		v, err = nn.LoadVocabulary(c.Vocabulary)
		if err != nil {
			return nil, err
		}
	}
	if len(c.RequiredClasses) != 0 {
		v.Required = c.RequiredClasses
		if err := v.Validate(); err != nil {
			return nil, err
		}
	}
	return v, nil
}
