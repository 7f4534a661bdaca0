package config

import (
	"encoding/json"
	"path/filepath"

	"github.com/Noofbiz/contourgraph/datasets"
	"github.com/Noofbiz/contourgraph/features"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
)

// Config holds the dataset builder configuration
type Config struct {
	Paths          PathsConfig          `json:"paths"`
	Dataset        DatasetConfig        `json:"dataset"`
	Sequences      SequencesConfig      `json:"sequences"`
	Backbone       BackboneConfig       `json:"backbone"`
	OnlineTraining OnlineTrainingConfig `json:"online_training"`
}

// PathsConfig holds the input and output roots
type PathsConfig struct {
	Contours     string `json:"contours"`
	Images       string `json:"images"`
	Translations string `json:"translations"`
	Processed    string `json:"processed"`
	Weights      string `json:"weights"`
}

// DatasetConfig holds graph construction parameters
type DatasetConfig struct {
	// Layer is the backbone depth whose activations become node features.
	Layer int `json:"layer"`
	K     int `json:"k"`
	// Offset is subtracted from the scaled coordinates when mapping a contour
	// point to a feature map cell. It depends on the backbone and Layer.
	Offset         int    `json:"offset"`
	WeightsPattern string `json:"weights_pattern"`
	Workers        int    `json:"workers"`
	CacheSize      int    `json:"cache_size"`
	Force          bool   `json:"force"`
}

// SequencesConfig holds the train/val/skip lists
type SequencesConfig struct {
	Train []string `json:"train"`
	Val   []string `json:"val"`
	Skip  []string `json:"skip"`
	// Unlisted is the split of sequences named in no list: train, val or skip.
	Unlisted string `json:"unlisted"`
}

// BackboneConfig selects where the backbone runs
type BackboneConfig struct {
	Device string `json:"device"`
}

// OnlineTrainingConfig holds the external training command
type OnlineTrainingConfig struct {
	Command []string `json:"command"`
	EnvVar  string   `json:"env_var"`
	Dir     string   `json:"dir"`
}

// Default returns a configuration with default values
func Default() *Config {
	return &Config{
		Paths: PathsConfig{
			Contours:     "data/Contours",
			Images:       "data/JPEGImages/480p",
			Translations: "data/Translations",
			Processed:    "data/processed",
			Weights:      "models",
		},
		Dataset: DatasetConfig{
			Layer:          30,
			K:              32,
			Offset:         features.DefaultOffset,
			WeightsPattern: datasets.SequencePlaceholder + "_epoch-24.gob",
			Workers:        1,
			CacheSize:      datasets.DefaultCacheSize,
		},
		Sequences: SequencesConfig{
			Unlisted: datasets.Train.String(),
		},
		OnlineTraining: OnlineTrainingConfig{
			EnvVar: datasets.DefaultTrainerEnv,
		},
	}
}

// Load reads a JSON configuration on top of the defaults
func Load(fs afero.Fs, filename string) (*Config, error) {
	data, err := afero.ReadFile(fs, filename)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config file")
	}

	c := Default()
	if err := json.Unmarshal(data, c); err != nil {
		return nil, errors.Wrap(err, "failed to parse config file")
	}

	return c, nil
}

// Save writes the configuration as JSON
func (c *Config) Save(fs afero.Fs, filename string) error {
	if err := fs.MkdirAll(filepath.Dir(filename), 0755); err != nil {
		return errors.Wrap(err, "failed to create config directory")
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to marshal config")
	}

	return errors.Wrap(afero.WriteFile(fs, filename, data, 0644), "failed to write config file")
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	for _, p := range []struct{ name, value string }{
		{"contours", c.Paths.Contours},
		{"images", c.Paths.Images},
		{"translations", c.Paths.Translations},
		{"processed", c.Paths.Processed},
		{"weights", c.Paths.Weights},
	} {
		if p.value == "" {
			return errors.Errorf("paths.%s cannot be empty", p.name)
		}
	}

	if c.Dataset.Layer < 1 {
		return errors.New("dataset.layer must be positive")
	}

	if c.Dataset.K < 1 {
		return errors.New("dataset.k must be positive")
	}

	if c.Dataset.Offset < 0 {
		return errors.New("dataset.offset cannot be negative")
	}

	if c.Dataset.WeightsPattern == "" {
		return errors.New("dataset.weights_pattern cannot be empty")
	}

	if c.Dataset.Workers < 0 {
		return errors.New("dataset.workers cannot be negative")
	}

	_, err := c.Partition()
	return err
}

// Partition builds the sequence partition.
func (c *Config) Partition() (*datasets.Partition, error) {
	unlisted, err := datasets.ParseSplit(c.Sequences.Unlisted)
	if err != nil {
		return nil, errors.Wrap(err, "sequences.unlisted")
	}
	p := datasets.NewPartition(c.Sequences.Train, c.Sequences.Val, c.Sequences.Skip, unlisted)
	if err := p.Validate(); err != nil {
		return nil, errors.Wrap(err, "sequences")
	}
	return p, nil
}

// Layout describes the raw input trees on fs.
func (c *Config) Layout(fs afero.Fs) *datasets.Layout {
	return &datasets.Layout{
		Fs:           fs,
		Contours:     c.Paths.Contours,
		Images:       c.Paths.Images,
		Translations: c.Paths.Translations,
	}
}

// Options returns the dataset options of split. Store, Trainer and
// LoadExtractor are left for the caller.
func (c *Config) Options(fs afero.Fs, split datasets.Split) (datasets.Options, error) {
	p, err := c.Partition()
	if err != nil {
		return datasets.Options{}, err
	}
	return datasets.Options{
		Layout:         c.Layout(fs),
		Partition:      p,
		Split:          split,
		K:              c.Dataset.K,
		Mapper:         features.Mapper{Offset: c.Dataset.Offset},
		Fs:             fs,
		WeightsDir:     c.Paths.Weights,
		WeightsPattern: c.Dataset.WeightsPattern,
		Workers:        c.Dataset.Workers,
		Force:          c.Dataset.Force,
	}, nil
}
