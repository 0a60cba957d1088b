package cli

import (
	"context"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/mosaicviz/mosaic/pkg/cache"
	"github.com/mosaicviz/mosaic/pkg/errors"
	"github.com/mosaicviz/mosaic/pkg/export"
	"github.com/mosaicviz/mosaic/pkg/grid"
	"github.com/mosaicviz/mosaic/pkg/layout"
	"github.com/mosaicviz/mosaic/pkg/pipeline"
)

// defaultConfigFile is looked up in the working directory when --config
// is not given. A missing default file is not an error.
const defaultConfigFile = "mosaic.toml"

// fileConfig is the TOML configuration surface. Every value has a
// working default; flags override file values.
type fileConfig struct {
	Grid    gridConfig    `toml:"grid"`
	Select  selectConfig  `toml:"select"`
	Density densityConfig `toml:"density"`
	Layout  layoutConfig  `toml:"layout"`
	Export  exportConfig  `toml:"export"`
	Cache   cacheConfig   `toml:"cache"`
}

type gridConfig struct {
	Resolutions []int   `toml:"resolutions"`
	Margin      float64 `toml:"margin"`
}

type selectConfig struct {
	Policy string `toml:"policy"`
}

type densityConfig struct {
	Norm string `toml:"norm"`
}

type layoutConfig struct {
	BaseSize   float64 `toml:"base_size"`
	FloorSize  float64 `toml:"floor_size"`
	Spacing    float64 `toml:"spacing"`
	Pitch      float64 `toml:"pitch"`
	Resolution int     `toml:"resolution"`
}

type exportConfig struct {
	Dir             string `toml:"dir"`
	MaxDocumentMB   int    `toml:"max_document_mb"`
	ExamplesPerCell int    `toml:"examples_per_cell"`
	Compress        bool   `toml:"compress"`
}

type cacheConfig struct {
	Backend       string `toml:"backend"` // file (default), redis, none
	Dir           string `toml:"dir"`
	RedisAddr     string `toml:"redis_addr"`
	RedisPassword string `toml:"redis_password"`
	RedisDB       int    `toml:"redis_db"`
}

// loadConfig reads the TOML config. An explicit path must exist; the
// default path is optional.
func loadConfig(path string) (fileConfig, error) {
	var cfg fileConfig
	explicit := path != ""
	if !explicit {
		path = defaultConfigFile
	}

	meta, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		if os.IsNotExist(err) && !explicit {
			return cfg, nil
		}
		return cfg, errors.Wrap(errors.ErrCodeInvalidConfig, err, "reading config %s", path)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return cfg, errors.New(errors.ErrCodeInvalidConfig,
			"unknown config key %q in %s", undecoded[0].String(), path)
	}
	return cfg, nil
}

// pipelineOptions maps the file config onto pipeline options. Zero
// values stay zero; pipeline.ValidateAndSetDefaults fills the rest.
func (c fileConfig) pipelineOptions(input string) pipeline.Options {
	return pipeline.Options{
		Input: input,
		Grid: grid.Config{
			Resolutions: c.Grid.Resolutions,
			Margin:      c.Grid.Margin,
		},
		Policy:           grid.Policy(c.Select.Policy),
		Norm:             grid.NormMethod(c.Density.Norm),
		LayoutResolution: c.Layout.Resolution,
		Layout: layout.Config{
			BaseSize:  c.Layout.BaseSize,
			FloorSize: c.Layout.FloorSize,
			Spacing:   c.Layout.Spacing,
			Pitch:     c.Layout.Pitch,
		},
		Export: export.Options{
			Dir:             c.Export.Dir,
			MaxDocumentMB:   c.Export.MaxDocumentMB,
			ExamplesPerCell: c.Export.ExamplesPerCell,
			Compress:        c.Export.Compress,
		},
	}
}

// openCache creates the configured cache backend.
func (c cacheConfig) open(ctx context.Context) (cache.Cache, error) {
	switch c.Backend {
	case "", "file":
		dir, err := c.cacheDir()
		if err != nil {
			return nil, err
		}
		return cache.NewFileCache(dir)
	case "redis":
		return cache.NewRedisCache(ctx, cache.RedisConfig{
			Addr:     c.RedisAddr,
			Password: c.RedisPassword,
			DB:       c.RedisDB,
			Prefix:   "mosaic:",
		})
	case "none":
		return cache.NewNullCache(), nil
	default:
		return nil, errors.New(errors.ErrCodeInvalidConfig,
			"unknown cache backend %q (want file, redis, or none)", c.Backend)
	}
}

// cacheDir resolves the file cache directory, defaulting to the user
// cache directory.
func (c cacheConfig) cacheDir() (string, error) {
	if c.Dir != "" {
		return c.Dir, nil
	}
	base, err := os.UserCacheDir()
	if err != nil {
		return "", errors.Wrap(errors.ErrCodeInvalidPath, err, "resolving cache directory")
	}
	return filepath.Join(base, "mosaic"), nil
}
