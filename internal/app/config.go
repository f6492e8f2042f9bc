package app

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mathscrap/mathscrap-backend/internal/logger"
	"github.com/mathscrap/mathscrap-backend/internal/utils"
)

// Config holds the runtime tunables. Values come from an optional YAML file
// (CONFIG_FILE) with environment variables taking precedence.
type Config struct {
	Port           string        `yaml:"port"`
	MaxImages      int           `yaml:"max_images"`
	UploadDir      string        `yaml:"upload_dir"`
	OcrConfidence  float64       `yaml:"ocr_confidence_threshold"`
	OcrTimeout     time.Duration `yaml:"ocr_timeout"`
	ExplainTimeout time.Duration `yaml:"explain_timeout"`
}

type fileConfig struct {
	Port           string  `yaml:"port"`
	MaxImages      int     `yaml:"max_images"`
	UploadDir      string  `yaml:"upload_dir"`
	OcrConfidence  float64 `yaml:"ocr_confidence_threshold"`
	OcrTimeoutSec  int     `yaml:"ocr_timeout_seconds"`
	ExplainTimeout int     `yaml:"explain_timeout_seconds"`
}

func LoadConfig(log *logger.Logger) (Config, error) {
	cfg := Config{
		Port:           "8080",
		MaxImages:      5,
		UploadDir:      "uploads",
		OcrConfidence:  0.6,
		OcrTimeout:     60 * time.Second,
		ExplainTimeout: 90 * time.Second,
	}

	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config file: %w", err)
		}
		var fc fileConfig
		if err := yaml.Unmarshal(raw, &fc); err != nil {
			return cfg, fmt.Errorf("parse config file: %w", err)
		}
		if fc.Port != "" {
			cfg.Port = fc.Port
		}
		if fc.MaxImages > 0 {
			cfg.MaxImages = fc.MaxImages
		}
		if fc.UploadDir != "" {
			cfg.UploadDir = fc.UploadDir
		}
		if fc.OcrConfidence > 0 {
			cfg.OcrConfidence = fc.OcrConfidence
		}
		if fc.OcrTimeoutSec > 0 {
			cfg.OcrTimeout = time.Duration(fc.OcrTimeoutSec) * time.Second
		}
		if fc.ExplainTimeout > 0 {
			cfg.ExplainTimeout = time.Duration(fc.ExplainTimeout) * time.Second
		}
	}

	cfg.Port = utils.GetEnv("PORT", cfg.Port, log)
	cfg.MaxImages = utils.GetEnvAsInt("MAX_IMAGES", cfg.MaxImages, log)
	cfg.UploadDir = utils.GetEnv("UPLOAD_DIR", cfg.UploadDir, log)
	cfg.OcrConfidence = utils.GetEnvAsFloat("OCR_CONFIDENCE_THRESHOLD", cfg.OcrConfidence, log)
	if v := utils.GetEnvAsInt("OCR_TIMEOUT_SECONDS", 0, log); v > 0 {
		cfg.OcrTimeout = time.Duration(v) * time.Second
	}
	if v := utils.GetEnvAsInt("EXPLAIN_TIMEOUT_SECONDS", 0, log); v > 0 {
		cfg.ExplainTimeout = time.Duration(v) * time.Second
	}

	return cfg, nil
}
