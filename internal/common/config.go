package common

import (
	"image"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration
type Config struct {
	Paths PathsConfig
	Mail  MailConfig
	OCR   OCRConfig
	Batch BatchConfig

	// IgnoredTaxIDs are our own CNPJs, excluded from matching.
	IgnoredTaxIDs []string
}

// PathsConfig holds the directory layout the pipeline works over
type PathsConfig struct {
	BoletosDir  string
	InvoicesDir string
	MergedDir   string
	OutputDir   string
	RosterPath  string
	LedgerPath  string
	ReportPath  string
}

// MailConfig holds email dispatch configuration
type MailConfig struct {
	APIKey string
	From   string
}

// OCRConfig holds crop-OCR fallback configuration
type OCRConfig struct {
	Page    int
	DPI     int
	Scale   int
	Lang    string
	Timeout time.Duration
	Crop    image.Rectangle
}

// BatchConfig holds worker pool configuration
type BatchConfig struct {
	Workers    int
	JobTimeout time.Duration
}

// LoadConfig loads configuration from environment variables
func LoadConfig() *Config {
	return &Config{
		Paths: PathsConfig{
			BoletosDir:  getEnv("BOLETOS_DIR", ""),
			InvoicesDir: getEnv("NOTAS_DIR", ""),
			MergedDir:   getEnv("MERGED_DIR", "./faturamento"),
			OutputDir:   getEnv("OUTPUT_DIR", "./saida"),
			RosterPath:  getEnv("ROSTER_PATH", ""),
			LedgerPath:  getEnv("LEDGER_PATH", "./faturamento.db"),
			ReportPath:  getEnv("REPORT_PATH", "./relatorio.xlsx"),
		},
		Mail: MailConfig{
			APIKey: getEnv("RESEND_API_KEY", ""),
			From:   getEnv("RESEND_FROM_EMAIL", ""),
		},
		OCR: OCRConfig{
			Page:    getEnvAsInt("OCR_PAGE", 0),
			DPI:     getEnvAsInt("OCR_DPI", 300),
			Scale:   getEnvAsInt("OCR_SCALE", 2),
			Lang:    getEnv("OCR_LANG", "por"),
			Timeout: getEnvAsDuration("OCR_TIMEOUT", 30*time.Second),
			Crop:    getEnvAsRect("OCR_CROP", image.Rect(77, 232, 170, 245)),
		},
		Batch: BatchConfig{
			Workers:    getEnvAsInt("WORKERS", 4),
			JobTimeout: getEnvAsDuration("JOB_TIMEOUT", 2*time.Minute),
		},
		IgnoredTaxIDs: getEnvAsList("IGNORED_TAX_IDS"),
	}
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// getEnvAsList splits a comma-separated variable, dropping empty items.
func getEnvAsList(key string) []string {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	var items []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}

// getEnvAsRect parses "x0,y0,x1,y1" into a rectangle.
func getEnvAsRect(key string, defaultValue image.Rectangle) image.Rectangle {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parts := strings.Split(value, ",")
	if len(parts) != 4 {
		return defaultValue
	}
	coords := make([]int, 4)
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return defaultValue
		}
		coords[i] = n
	}
	return image.Rect(coords[0], coords[1], coords[2], coords[3])
}

// Validate validates the loaded configuration. Mail settings are only
// required when the run will actually send email.
func (c *Config) Validate(sending bool) error {
	if c.Paths.BoletosDir == "" {
		return NewAppError("CONFIG_ERROR", "BOLETOS_DIR is required", ErrInvalidInput)
	}
	if c.Paths.InvoicesDir == "" {
		return NewAppError("CONFIG_ERROR", "NOTAS_DIR is required", ErrInvalidInput)
	}
	if sending {
		if c.Paths.RosterPath == "" {
			return NewAppError("CONFIG_ERROR", "ROSTER_PATH is required when sending", ErrInvalidInput)
		}
		if c.Mail.APIKey == "" {
			return NewAppError("CONFIG_ERROR", "RESEND_API_KEY is required when sending", ErrInvalidInput)
		}
		if c.Mail.From == "" {
			return NewAppError("CONFIG_ERROR", "RESEND_FROM_EMAIL is required when sending", ErrInvalidInput)
		}
	}
	return nil
}
