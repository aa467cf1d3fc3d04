// Package config assembles a fully wired simplepool service from
// environment variables.
package config

import (
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/ilyakaznacheev/cleanenv"

	"github.com/tendant/simple-pool/pkg/simplepool"
	"github.com/tendant/simple-pool/pkg/simplepool/fingerprint"
	"github.com/tendant/simple-pool/pkg/simplepool/idalloc"
	"github.com/tendant/simple-pool/pkg/simplepool/storage/fs"
	"github.com/tendant/simple-pool/pkg/simplepool/store/jsonstore"
)

// Config represents server configuration for the pool service
type Config struct {
	Port string `env:"POOL_PORT" env-default:"8080"`

	// DataDir holds the JSON documents: approved.json, pending.json,
	// status.json and fingerprints.json. Media files live in MediaDir,
	// defaulting to DataDir/media.
	DataDir  string `env:"POOL_DATA_DIR" env-default:"./data"`
	MediaDir string `env:"POOL_MEDIA_DIR"`

	ModerationEnabled bool `env:"POOL_MODERATION_ENABLED" env-default:"true"`

	ImageThreshold float64 `env:"POOL_IMAGE_THRESHOLD" env-default:"0.90"`
	TextThreshold  float64 `env:"POOL_TEXT_THRESHOLD" env-default:"1.0"`

	// SystemContributorID is the reserved contributor for
	// moderator-originated content, excluded from contributor stats.
	SystemContributorID string `env:"POOL_SYSTEM_CONTRIBUTOR_ID" env-default:"system"`

	StoreMaxConcurrent int64 `env:"POOL_STORE_MAX_CONCURRENT" env-default:"5"`
}

// Load reads the configuration from the environment
func Load() (*Config, error) {
	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("read configuration: %w", err)
	}
	if cfg.MediaDir == "" {
		cfg.MediaDir = filepath.Join(cfg.DataDir, "media")
	}
	return &cfg, nil
}

// BuildService wires the file-backed store, media backend, allocator and
// fingerprint index into a service.
func (c *Config) BuildService(logger *slog.Logger) (simplepool.Service, error) {
	if logger == nil {
		logger = slog.Default()
	}

	store := jsonstore.New(jsonstore.Config{
		MaxConcurrent: c.StoreMaxConcurrent,
		Logger:        logger,
	})

	media, err := fs.New(fs.Config{BaseDir: c.MediaDir})
	if err != nil {
		return nil, fmt.Errorf("create media store: %w", err)
	}

	approvedPath := filepath.Join(c.DataDir, "approved.json")
	pendingPath := filepath.Join(c.DataDir, "pending.json")

	alloc := idalloc.New(store, idalloc.Config{
		ApprovedPath:        approvedPath,
		PendingPath:         pendingPath,
		StatusPath:          filepath.Join(c.DataDir, "status.json"),
		SystemContributorID: c.SystemContributorID,
		Logger:              logger,
	})

	index := fingerprint.New(store, media, fingerprint.Config{
		Path:   filepath.Join(c.DataDir, "fingerprints.json"),
		Logger: logger,
	})

	return simplepool.New(
		simplepool.WithCollectionStore(store),
		simplepool.WithMediaStore(media),
		simplepool.WithAllocator(alloc),
		simplepool.WithFingerprintIndex(index),
		simplepool.WithCollectionPaths(approvedPath, pendingPath),
		simplepool.WithModeration(c.ModerationEnabled),
		simplepool.WithThresholds(simplepool.Thresholds{Image: c.ImageThreshold, Text: c.TextThreshold}),
		simplepool.WithEventSink(simplepool.NewLoggingEventSink(logger)),
		simplepool.WithLogger(logger),
	)
}
