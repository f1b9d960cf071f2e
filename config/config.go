// Package config has the configuration for the ndc-unii pipeline and viewer server
package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
)

// Environment is the deployment environment the binary runs in
type Environment string

const (
	EnvDevelopment Environment = "dev"
	EnvStaging     Environment = "staging"
	EnvProduction  Environment = "prod"
	EnvTest        Environment = "test"
)

// String returns the environment name
func (e Environment) String() string {
	return string(e)
}

// ParseEnvironment maps an ENV value, including the long aliases, to an Environment
func ParseEnvironment(value string) (Environment, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "dev", "development":
		return EnvDevelopment, nil
	case "staging":
		return EnvStaging, nil
	case "prod", "production":
		return EnvProduction, nil
	case "test":
		return EnvTest, nil
	}
	return EnvDevelopment, fmt.Errorf("ENV must be one of: dev, staging, prod, test, got: %s", value)
}

// DefaultReleaseURL is the RxNorm Current Prescribable Content archive
const DefaultReleaseURL = "https://download.nlm.nih.gov/rxnorm/RxNorm_full_prescribe_current.zip"

// Config holds all application configuration
type Config struct {
	Env               Environment
	LogLevel          string
	LogDir            string
	LogRetentionWeeks int   // Number of weeks to keep log files
	MaxLogFileSize    int64 // Maximum log file size in bytes

	RRFDir            string   // Directory holding RXNCONSO.RRF, RXNREL.RRF and RXNSAT.RRF
	ReleaseURL        string   // Where to fetch the release archive when RRF files are missing
	SkipDownload      bool     // Fail instead of downloading when RRF files are missing
	OutputPath        string   // Canonical mapping file
	WebDataDir        string   // Bucket, index and search files
	BucketSize        int      // NDC prefix length used for bucketing
	MaxTraversalDepth int      // Relationship hops followed from a drug concept
	ExcludedSCDC      []string // Clinical drug components dropped from traversal

	Port           string
	Address        string
	MaxRequestBody int64 // Maximum request body size in bytes
	MaxHeaderSize  int64 // Maximum header size in bytes
	RefreshCron    string
}

// Load loads and validates configuration from environment variables.
// A .env file in the working directory is read first when present.
func Load() (*Config, error) {
	// Missing .env is fine, the environment alone is enough
	_ = godotenv.Load()

	env, err := ParseEnvironment(getEnvWithDefault("ENV", string(EnvDevelopment)))
	if err != nil {
		return nil, fmt.Errorf("configuration validation failed: invalid ENV: %w", err)
	}

	cfg := &Config{
		Env:               env,
		LogLevel:          getEnvWithDefault("LOG_LEVEL", "info"),
		LogDir:            getEnvWithDefault("LOG_DIR", "logs"),
		LogRetentionWeeks: getIntEnvWithDefault("LOG_RETENTION_WEEKS", 4),         // 4 weeks default
		MaxLogFileSize:    getInt64EnvWithDefault("MAX_LOG_FILE_SIZE", 104857600), // 100MB default

		RRFDir:            getEnvWithDefault("RRF_DIR", "RxNorm_full_prescribe_current/rrf"),
		ReleaseURL:        getEnvWithDefault("RELEASE_URL", DefaultReleaseURL),
		SkipDownload:      getBoolEnvWithDefault("SKIP_DOWNLOAD", false),
		OutputPath:        getEnvWithDefault("OUTPUT_PATH", "ndc_unii_rxnorm.json"),
		WebDataDir:        getEnvWithDefault("WEB_DATA_DIR", "web/data"),
		BucketSize:        getIntEnvWithDefault("BUCKET_SIZE", 3),
		MaxTraversalDepth: getIntEnvWithDefault("MAX_TRAVERSAL_DEPTH", 4),
		ExcludedSCDC:      splitList(getEnvWithDefault("EXCLUDED_SCDC", "1364431")),

		Port:           getEnvWithDefault("PORT", "8080"),
		Address:        getEnvWithDefault("ADDRESS", "127.0.0.1"),
		MaxRequestBody: getInt64EnvWithDefault("MAX_REQUEST_BODY", 1048576), // 1MB default
		MaxHeaderSize:  getInt64EnvWithDefault("MAX_HEADER_SIZE", 1048576),  // 1MB default
		RefreshCron:    getEnvWithDefault("REFRESH_CRON", "0 6 * * 1"),     // Mondays 06:00
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Validate validates all configuration values. It is exported so that CLI flag
// overrides can be checked again after being applied.
func Validate(cfg *Config) error {
	if err := validateEnv(cfg.Env); err != nil {
		return fmt.Errorf("invalid ENV: %w", err)
	}

	if err := validateLogLevel(cfg.LogLevel); err != nil {
		return fmt.Errorf("invalid LOG_LEVEL: %w", err)
	}

	if err := validateLogRetentionWeeks(cfg.LogRetentionWeeks); err != nil {
		return fmt.Errorf("invalid LOG_RETENTION_WEEKS: %w", err)
	}

	if err := validateMaxLogFileSize(cfg.MaxLogFileSize); err != nil {
		return fmt.Errorf("invalid MAX_LOG_FILE_SIZE: %w", err)
	}

	if strings.TrimSpace(cfg.RRFDir) == "" {
		return fmt.Errorf("invalid RRF_DIR: RRF_DIR cannot be empty")
	}

	if strings.TrimSpace(cfg.OutputPath) == "" {
		return fmt.Errorf("invalid OUTPUT_PATH: OUTPUT_PATH cannot be empty")
	}

	if strings.TrimSpace(cfg.WebDataDir) == "" {
		return fmt.Errorf("invalid WEB_DATA_DIR: WEB_DATA_DIR cannot be empty")
	}

	if err := validateBucketSize(cfg.BucketSize); err != nil {
		return fmt.Errorf("invalid BUCKET_SIZE: %w", err)
	}

	if err := validateTraversalDepth(cfg.MaxTraversalDepth); err != nil {
		return fmt.Errorf("invalid MAX_TRAVERSAL_DEPTH: %w", err)
	}

	if err := validatePort(cfg.Port); err != nil {
		return fmt.Errorf("invalid PORT: %w", err)
	}

	if err := validateAddress(cfg.Address); err != nil {
		return fmt.Errorf("invalid ADDRESS: %w", err)
	}

	if err := validateSizeLimit(cfg.MaxRequestBody, "MAX_REQUEST_BODY"); err != nil {
		return fmt.Errorf("invalid MAX_REQUEST_BODY: %w", err)
	}

	if err := validateSizeLimit(cfg.MaxHeaderSize, "MAX_HEADER_SIZE"); err != nil {
		return fmt.Errorf("invalid MAX_HEADER_SIZE: %w", err)
	}

	if _, err := cron.ParseStandard(cfg.RefreshCron); err != nil {
		return fmt.Errorf("invalid REFRESH_CRON: %w", err)
	}

	return nil
}

// validatePort validates the PORT environment variable
func validatePort(port string) error {
	if port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}

	portNum, err := strconv.Atoi(port)
	if err != nil {
		return fmt.Errorf("PORT must be a valid number: %w", err)
	}

	// 0 asks the kernel for an ephemeral port
	if portNum < 0 || portNum > 65535 {
		return fmt.Errorf("PORT must be between 0 and 65535")
	}

	if portNum > 0 && portNum < 1024 {
		return fmt.Errorf("PORT %d is privileged (less than 1024), use ports 1024-65535", portNum)
	}

	return nil
}

// validateAddress validates the ADDRESS environment variable
func validateAddress(address string) error {
	if address == "" {
		return fmt.Errorf("ADDRESS cannot be empty")
	}

	if address == "127.0.0.1" || address == "::1" || address == "localhost" {
		return nil
	}

	ip := net.ParseIP(address)
	if ip == nil {
		return fmt.Errorf("ADDRESS must be a valid IP address or 'localhost', got: %s", address)
	}

	if !ip.IsLoopback() && !ip.IsPrivate() && !ip.IsUnspecified() {
		return fmt.Errorf("ADDRESS %s is a public IP, consider using private network ranges for security", address)
	}

	return nil
}

// validateEnv validates the ENV environment variable
func validateEnv(env Environment) error {
	if env == "" {
		return fmt.Errorf("ENV cannot be empty")
	}

	validEnvs := []Environment{EnvDevelopment, EnvStaging, EnvProduction, EnvTest}
	for _, validEnv := range validEnvs {
		if env == validEnv {
			return nil
		}
	}

	return fmt.Errorf("ENV must be one of: %v, got: %s", validEnvs, env)
}

// validateLogLevel validates the LOG_LEVEL environment variable
func validateLogLevel(logLevel string) error {
	if logLevel == "" {
		return fmt.Errorf("LOG_LEVEL cannot be empty")
	}

	validLevels := []string{"debug", "info", "warn", "error"}
	logLevel = strings.ToLower(logLevel)

	for _, level := range validLevels {
		if logLevel == level {
			return nil
		}
	}

	return fmt.Errorf("LOG_LEVEL must be one of: %v, got: %s", validLevels, logLevel)
}

// validateSizeLimit validates size limit configuration values
func validateSizeLimit(size int64, configName string) error {
	if size <= 0 {
		return fmt.Errorf("%s must be positive, got: %d", configName, size)
	}

	if size > 100*1024*1024 { // 100MB
		return fmt.Errorf("%s is too large (max 100MB), got: %d bytes", configName, size)
	}

	return nil
}

// validateLogRetentionWeeks validates the LOG_RETENTION_WEEKS environment variable
func validateLogRetentionWeeks(weeks int) error {
	if weeks <= 0 {
		return fmt.Errorf("LOG_RETENTION_WEEKS must be positive, got: %d", weeks)
	}

	if weeks > 52 { // 1 year maximum
		return fmt.Errorf("LOG_RETENTION_WEEKS is too large (max 52 weeks), got: %d", weeks)
	}

	return nil
}

// validateMaxLogFileSize validates the MAX_LOG_FILE_SIZE environment variable
func validateMaxLogFileSize(size int64) error {
	if size <= 0 {
		return fmt.Errorf("MAX_LOG_FILE_SIZE must be positive, got: %d", size)
	}

	// Minimum 1MB, maximum 1GB
	if size < 1024*1024 {
		return fmt.Errorf("MAX_LOG_FILE_SIZE is too small (min 1MB), got: %d bytes", size)
	}

	if size > 1024*1024*1024 {
		return fmt.Errorf("MAX_LOG_FILE_SIZE is too large (max 1GB), got: %d bytes", size)
	}

	return nil
}

// validateBucketSize validates the BUCKET_SIZE environment variable
func validateBucketSize(size int) error {
	if size < 1 || size > 11 {
		return fmt.Errorf("BUCKET_SIZE must be between 1 and 11 digits, got: %d", size)
	}
	return nil
}

// validateTraversalDepth validates the MAX_TRAVERSAL_DEPTH environment variable
func validateTraversalDepth(depth int) error {
	if depth < 1 {
		return fmt.Errorf("MAX_TRAVERSAL_DEPTH must be positive, got: %d", depth)
	}

	if depth > 16 {
		return fmt.Errorf("MAX_TRAVERSAL_DEPTH is too large (max 16), got: %d", depth)
	}

	return nil
}

// getEnvWithDefault gets an environment variable with a default value
func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getIntEnvWithDefault gets an environment variable as int with a default value
func getIntEnvWithDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getInt64EnvWithDefault gets an environment variable as int64 with a default value
func getInt64EnvWithDefault(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getBoolEnvWithDefault gets an environment variable as bool with a default value
func getBoolEnvWithDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// splitList splits a comma separated value, dropping empty items
func splitList(value string) []string {
	var items []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}

// GetEnvVars returns a list of all expected environment variables
func GetEnvVars() []string {
	return []string{
		"ENV",
		"LOG_LEVEL",
		"LOG_DIR",
		"LOG_RETENTION_WEEKS",
		"MAX_LOG_FILE_SIZE",
		"RRF_DIR",
		"RELEASE_URL",
		"SKIP_DOWNLOAD",
		"OUTPUT_PATH",
		"WEB_DATA_DIR",
		"BUCKET_SIZE",
		"MAX_TRAVERSAL_DEPTH",
		"EXCLUDED_SCDC",
		"PORT",
		"ADDRESS",
		"MAX_REQUEST_BODY",
		"MAX_HEADER_SIZE",
		"REFRESH_CRON",
	}
}
