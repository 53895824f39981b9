// Package config loads flowcore runtime settings. Values start from
// defaults, are overridden by an optional YAML file and finally by
// FLOWCORE_* environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Storage drivers.
const (
	StorageMemory   = "memory"
	StorageSQLite   = "sqlite"
	StoragePostgres = "postgres"
)

// Blob drivers.
const (
	BlobMemory     = "memory"
	BlobFilesystem = "fs"
	BlobS3         = "s3"
)

// Missing-entity policies applied when a reload finds no canonical copy.
const (
	MissingStrict      = "strict"
	MissingReturnLocal = "return_local"
)

// Storage selects the repository backend.
type Storage struct {
	Driver      string `yaml:"driver"`
	SQLitePath  string `yaml:"sqlite_path"`
	PostgresDSN string `yaml:"postgres_dsn"`
}

// S3 holds S3 / MinIO connection settings. Credentials come from the
// default AWS chain unless AccessKeyID is set.
type S3 struct {
	Bucket          string `yaml:"bucket"`
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	PathStyle       bool   `yaml:"path_style"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
}

// Blob selects where json data node values and job archives are written.
type Blob struct {
	Driver string `yaml:"driver"`
	FSRoot string `yaml:"fs_root"`
	S3     S3     `yaml:"s3"`
}

// Log configures the CLI logger.
type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Reload configures the reloader.
type Reload struct {
	MissingEntity string `yaml:"missing_entity"`
}

// Extensions toggles optional managers.
type Extensions struct {
	ExtendedEdition  bool   `yaml:"extended_edition"`
	JobArchivePrefix string `yaml:"job_archive_prefix"`
}

// Config is the full runtime configuration.
type Config struct {
	Storage      Storage    `yaml:"storage"`
	Blob         Blob       `yaml:"blob"`
	Log          Log        `yaml:"log"`
	Reload       Reload     `yaml:"reload"`
	Extensions   Extensions `yaml:"extensions"`
	Workers      int        `yaml:"workers"`
	NotifyBuffer int        `yaml:"notify_buffer"`
}

// Default returns the configuration used when nothing is overridden.
func Default() Config {
	return Config{
		Storage:      Storage{Driver: StorageMemory, SQLitePath: "flowcore.db"},
		Blob:         Blob{Driver: BlobMemory, FSRoot: "./blobdata", S3: S3{Region: "us-east-1"}},
		Log:          Log{Level: "info", Format: "text"},
		Reload:       Reload{MissingEntity: MissingStrict},
		Extensions:   Extensions{JobArchivePrefix: "jobs"},
		Workers:      4,
		NotifyBuffer: 64,
	}
}

// Load builds a Config from defaults, the YAML file at path (skipped when
// path is empty or the file does not exist) and the environment.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		// #nosec G304 -- path is operator supplied
		raw, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(raw, &cfg); err != nil {
				return Config{}, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}
	if err := applyEnv(&cfg, os.LookupEnv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	str("FLOWCORE_STORAGE_DRIVER", &cfg.Storage.Driver)
	str("FLOWCORE_SQLITE_PATH", &cfg.Storage.SQLitePath)
	str("FLOWCORE_POSTGRES_DSN", &cfg.Storage.PostgresDSN)
	str("FLOWCORE_BLOB_DRIVER", &cfg.Blob.Driver)
	str("FLOWCORE_BLOB_FS_ROOT", &cfg.Blob.FSRoot)
	str("FLOWCORE_BLOB_S3_BUCKET", &cfg.Blob.S3.Bucket)
	str("FLOWCORE_BLOB_S3_REGION", &cfg.Blob.S3.Region)
	str("FLOWCORE_BLOB_S3_ENDPOINT", &cfg.Blob.S3.Endpoint)
	str("FLOWCORE_LOG_LEVEL", &cfg.Log.Level)
	str("FLOWCORE_LOG_FORMAT", &cfg.Log.Format)
	str("FLOWCORE_RELOAD_MISSING_ENTITY", &cfg.Reload.MissingEntity)
	str("FLOWCORE_JOB_ARCHIVE_PREFIX", &cfg.Extensions.JobArchivePrefix)
	if v, ok := lookup("FLOWCORE_BLOB_S3_PATH_STYLE"); ok && v != "" {
		cfg.Blob.S3.PathStyle = strings.EqualFold(v, "true")
	}
	if v, ok := lookup("FLOWCORE_EXTENDED_EDITION"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("FLOWCORE_EXTENDED_EDITION: %w", err)
		}
		cfg.Extensions.ExtendedEdition = b
	}
	for key, dst := range map[string]*int{"FLOWCORE_WORKERS": &cfg.Workers, "FLOWCORE_NOTIFY_BUFFER": &cfg.NotifyBuffer} {
		if v, ok := lookup(key); ok && v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			*dst = n
		}
	}
	return nil
}

// Validate rejects unknown drivers and policies.
func (c Config) Validate() error {
	var errs []error
	switch c.Storage.Driver {
	case StorageMemory, StorageSQLite, StoragePostgres:
	default:
		errs = append(errs, fmt.Errorf("unknown storage driver %q", c.Storage.Driver))
	}
	switch c.Blob.Driver {
	case BlobMemory, BlobFilesystem:
	case BlobS3:
		if c.Blob.S3.Bucket == "" {
			errs = append(errs, errors.New("blob.s3.bucket required for s3 driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown blob driver %q", c.Blob.Driver))
	}
	switch c.Reload.MissingEntity {
	case MissingStrict, MissingReturnLocal:
	default:
		errs = append(errs, fmt.Errorf("unknown missing entity policy %q", c.Reload.MissingEntity))
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("unknown log format %q", c.Log.Format))
	}
	if c.Workers < 1 {
		errs = append(errs, fmt.Errorf("workers must be positive, got %d", c.Workers))
	}
	if c.NotifyBuffer < 0 {
		errs = append(errs, fmt.Errorf("notify_buffer must not be negative, got %d", c.NotifyBuffer))
	}
	return errors.Join(errs...)
}
