package config

import (
	"os"
	"path/filepath"
	"sync"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	DefaultConfigPath string = "config.json"
	DefaultBaseModel  string = "yolo11n.yaml"
)

type TrainingConfig struct {
	DatasetPath string `json:"dataset_path"`
	Epochs      int    `json:"epochs"`
	Batch       int    `json:"batch"`
	ImageSize   int    `json:"image_size"`
	Device      string `json:"device"`
}

type AnalysisConfig struct {
	FilePath   string  `json:"file_path"`
	Confidence float64 `json:"confidence"`
}

type WeightsConfig struct {
	Path       string `json:"path"`
	UseWeights bool   `json:"use_weights"`
}

// Config holds the settings the window restores on the next start.
type Config struct {
	mu sync.RWMutex

	Training TrainingConfig `json:"training"`
	Analysis AnalysisConfig `json:"analysis"`
	Weights  WeightsConfig  `json:"weights"`
}

func (c *Config) GetTraining() TrainingConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Training
}

func (c *Config) SetTraining(t TrainingConfig) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Training = t
}

func (c *Config) GetAnalysis() AnalysisConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Analysis
}

func (c *Config) SetAnalysis(a AnalysisConfig) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Analysis = a
}

func (c *Config) GetWeights() WeightsConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Weights
}

func (c *Config) SetWeights(w WeightsConfig) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Weights = w
}

func (c *Config) Save(path string) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")

	return enc.Encode(c)
}

func (c *Config) SaveByDefault() error {
	return c.Save(DefaultConfigPath)
}

// LoadConfigFile reads path over the defaults. A missing or unreadable file
// yields the defaults.
func LoadConfigFile(path string) *Config {
	cfg := NewDefaultConfig()

	f, err := os.Open(path)
	if err != nil {
		return cfg
	}
	defer f.Close()

	loaded := NewDefaultConfig()
	if err := json.NewDecoder(f).Decode(loaded); err != nil {
		return cfg
	}

	return loaded
}

func NewDefaultConfig() *Config {
	exeDir := ExeDir()

	return &Config{
		Training: TrainingConfig{
			DatasetPath: filepath.Join(exeDir, "dataset", "data.yaml"),
			Epochs:      1,
			Batch:       8,
			ImageSize:   320,
			Device:      "cpu",
		},
		Analysis: AnalysisConfig{
			FilePath:   filepath.Join(exeDir, "cars examples", "1.PNG"),
			Confidence: 0.1,
		},
	}
}

// ExeDir is the directory holding the running binary, or "." when it cannot
// be resolved.
func ExeDir() string {
	exe, err := os.Executable()
	if err != nil {
		return "."
	}
	return filepath.Dir(exe)
}
