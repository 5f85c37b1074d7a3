package infra

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv string
	Port   string

	// Dataset layout on disk.
	DataDir      string
	ManifestsDir string
	ImagesDir    string
	ActorsFile   string
	ProgressFile string

	// Vision evaluation (OpenAI-compatible chat completions).
	OpenAIAPIKey  string
	OpenAIModel   string
	OpenAIBaseURL string

	// Image generation (Replicate).
	ReplicateAPIToken string
	ReplicateModel    string
	ReplicateBaseURL  string

	// Object storage.
	S3Bucket        string
	S3Region        string
	S3Endpoint      string
	S3PublicBaseURL string

	// Balancing targets. Percentages are expressed in points (65 means 65%).
	TargetTotal        int
	TargetComposition  map[string]float64
	TolerancePoints    float64
	TotalSlack         int
	AspectRatio        string
	CompositeThumbSize int
	CompositeColumns   int
	CompositeQuality   int
	VisionMaxAttempts  int

	AllowedOrigins []string

	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
}

// LoadConfig loads configuration from environment variables and applies
// defaults where needed. Credentials are not required here: read-only surfaces
// (listing actors, computing plans from stored evaluations) work without them,
// and the callers that do need them validate via the Require* helpers.
func LoadConfig() (*Config, error) {
	dataDir := getEnv("DATA_DIR", "./data")
	cfg := &Config{
		AppEnv: getEnv("APP_ENV", "development"),
		Port:   getEnv("PORT", "8080"),

		DataDir:      dataDir,
		ManifestsDir: getEnv("MANIFESTS_DIR", dataDir+"/manifests"),
		ImagesDir:    getEnv("IMAGES_DIR", dataDir+"/images"),
		ActorsFile:   getEnv("ACTORS_FILE", dataDir+"/actors.json"),
		ProgressFile: getEnv("PROGRESS_FILE", dataDir+"/balance_progress.json"),

		OpenAIAPIKey:  os.Getenv("OPENAI_API_KEY"),
		OpenAIModel:   getEnv("OPENAI_MODEL", "gpt-4o"),
		OpenAIBaseURL: getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),

		ReplicateAPIToken: os.Getenv("REPLICATE_API_TOKEN"),
		ReplicateModel:    getEnv("REPLICATE_MODEL", "black-forest-labs/flux-kontext-pro"),
		ReplicateBaseURL:  getEnv("REPLICATE_BASE_URL", "https://api.replicate.com/v1"),

		S3Bucket:        os.Getenv("S3_BUCKET"),
		S3Region:        getEnv("S3_REGION", "us-east-1"),
		S3Endpoint:      os.Getenv("S3_ENDPOINT"),
		S3PublicBaseURL: os.Getenv("S3_PUBLIC_BASE_URL"),

		TargetTotal: getEnvInt("TARGET_TOTAL_IMAGES", 20),
		TargetComposition: map[string]float64{
			"photorealistic":      getEnvFloat("TARGET_PCT_PHOTOREALISTIC", 65),
			"monochrome-stylized": getEnvFloat("TARGET_PCT_MONOCHROME", 20),
			"color-stylized":      getEnvFloat("TARGET_PCT_COLOR", 15),
		},
		TolerancePoints:    getEnvFloat("TOLERANCE_POINTS", 10),
		TotalSlack:         getEnvInt("TOTAL_SLACK", 1),
		AspectRatio:        getEnv("ASPECT_RATIO", "1:1"),
		CompositeThumbSize: getEnvInt("COMPOSITE_THUMB_SIZE", 200),
		CompositeColumns:   getEnvInt("COMPOSITE_COLUMNS", 5),
		CompositeQuality:   getEnvInt("COMPOSITE_JPEG_QUALITY", 85),
		VisionMaxAttempts:  getEnvInt("VISION_MAX_ATTEMPTS", 3),

		AllowedOrigins: splitList(getEnv("ALLOWED_ORIGINS", "http://localhost:5173")),

		HTTPReadTimeout:  time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout: time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 120)),
		HTTPIdleTimeout:  time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
	}

	if cfg.TargetTotal <= 0 {
		return nil, fmt.Errorf("TARGET_TOTAL_IMAGES must be positive, got %d", cfg.TargetTotal)
	}

	return cfg, nil
}

// RequireEvaluationCredentials validates the settings needed to call the
// vision evaluator.
func (c *Config) RequireEvaluationCredentials() error {
	if strings.TrimSpace(c.OpenAIAPIKey) == "" {
		return errors.New("OPENAI_API_KEY is required")
	}
	return nil
}

// RequireExecutionCredentials validates the settings needed to generate
// replacement images. Object storage is optional: without S3_BUCKET the
// generated images stay on the local filesystem only.
func (c *Config) RequireExecutionCredentials() error {
	if strings.TrimSpace(c.ReplicateAPIToken) == "" {
		return errors.New("REPLICATE_API_TOKEN is required")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
