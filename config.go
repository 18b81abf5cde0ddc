package sanalpos_soap

import (
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
)

// Environment represents the gateway environment (sandbox or production).
type Environment string

const (
	EnvSandbox    Environment = "sandbox"
	EnvProduction Environment = "production"
)

// Config holds the merchant credentials and settings needed to talk to the
// virtual-POS SOAP gateway. It is loaded once at startup and shared read-only
// by every request; request input never flows into it.
type Config struct {
	// ClientCode is the merchant account code assigned by the gateway.
	ClientCode string

	// Username authenticates the merchant API user.
	Username string

	// Password authenticates the merchant API user.
	Password string

	// GUID is the merchant session GUID issued by the gateway. It enters
	// every request signature, so a wrong value fails every signed call.
	GUID string

	// SuccessURL receives the gateway's callback after a successful 3-D
	// Secure authentication.
	SuccessURL string

	// ErrorURL receives the gateway's callback after a failed 3-D Secure
	// authentication.
	ErrorURL string

	// Env selects sandbox or production endpoints.
	Env Environment

	// BaseURL optionally overrides the gateway base URL.
	// When empty, the URL is derived from Env.
	BaseURL string

	// Timeout bounds each remote call. Zero means 30 seconds.
	Timeout time.Duration
}

// Validate checks that the required configuration fields are present and
// well-formed.
func (c Config) Validate() error {
	if c.ClientCode == "" {
		return fmt.Errorf("sanalpos_soap: ClientCode is required")
	}
	if c.Username == "" {
		return fmt.Errorf("sanalpos_soap: Username is required")
	}
	if c.Password == "" {
		return fmt.Errorf("sanalpos_soap: Password is required")
	}
	if _, err := uuid.Parse(c.GUID); err != nil {
		return fmt.Errorf("sanalpos_soap: GUID must be a valid RFC 4122 identifier: %w", err)
	}
	for name, raw := range map[string]string{"SuccessURL": c.SuccessURL, "ErrorURL": c.ErrorURL} {
		if raw == "" {
			return fmt.Errorf("sanalpos_soap: %s is required", name)
		}
		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("sanalpos_soap: %s must be an absolute URL", name)
		}
	}
	return nil
}

// DefaultBaseURL returns the gateway base URL for the configured environment.
func (c Config) DefaultBaseURL() string {
	if c.BaseURL != "" {
		return c.BaseURL
	}
	if c.Env == EnvProduction {
		return "https://pos.sanalodeme.com.tr"
	}
	return "https://test-pos.sanalodeme.com.tr"
}

// timeout returns the effective per-call timeout.
func (c Config) timeout() time.Duration {
	if c.Timeout > 0 {
		return c.Timeout
	}
	return 30 * time.Second
}

// LoadConfigFromEnv creates a Config from environment variables:
//
//	SANALPOS_CLIENT_CODE  – merchant account code (required)
//	SANALPOS_USERNAME     – API username (required)
//	SANALPOS_PASSWORD     – API password (required)
//	SANALPOS_GUID         – merchant session GUID (required)
//	SANALPOS_SUCCESS_URL  – 3-D Secure success callback URL (required)
//	SANALPOS_ERROR_URL    – 3-D Secure error callback URL (required)
//	SANALPOS_ENV          – "sandbox" (default) or "production"
//	SANALPOS_BASE_URL     – optional gateway base URL override
func LoadConfigFromEnv() Config {
	return configFromEnv()
}

// LoadConfigFromDotEnv loads environment variables from a .env file and then
// reads the Config from them. If the file does not exist it silently falls
// back to the current process environment.
func LoadConfigFromDotEnv(filenames ...string) Config {
	// godotenv.Load does NOT override existing env vars.
	_ = godotenv.Load(filenames...)
	return configFromEnv()
}

func configFromEnv() Config {
	env := EnvSandbox
	if os.Getenv("SANALPOS_ENV") == "production" {
		env = EnvProduction
	}

	return Config{
		ClientCode: os.Getenv("SANALPOS_CLIENT_CODE"),
		Username:   os.Getenv("SANALPOS_USERNAME"),
		Password:   os.Getenv("SANALPOS_PASSWORD"),
		GUID:       os.Getenv("SANALPOS_GUID"),
		SuccessURL: os.Getenv("SANALPOS_SUCCESS_URL"),
		ErrorURL:   os.Getenv("SANALPOS_ERROR_URL"),
		Env:        env,
		BaseURL:    os.Getenv("SANALPOS_BASE_URL"),
	}
}
