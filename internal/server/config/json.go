package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/flagx"
	"github.com/dmitrijs2005/authkeeper/internal/timex"
)

// JsonConfig is the on-disk shape of the server configuration. Durations
// accept "15m"-style strings or integer nanoseconds. Pointer fields tell
// "absent" apart from an explicit false/zero.
type JsonConfig struct {
	HTTPAddr                         string         `json:"http_addr"`
	DatabaseDSN                      string         `json:"database_dsn"`
	SecretKey                        string         `json:"secret_key"`
	LogLevel                         string         `json:"log_level"`
	AccessTokenValidityDuration      timex.Duration `json:"access_token_validity_duration"`
	RefreshTokenValidityDuration     timex.Duration `json:"refresh_token_validity_duration"`
	VerificationCodeValidityDuration timex.Duration `json:"verification_code_validity_duration"`
	BcryptCost                       int            `json:"bcrypt_cost"`
	RequireEmailVerification         *bool          `json:"require_email_verification"`
	SMTPAddr                         string         `json:"smtp_addr"`
	SMTPUser                         string         `json:"smtp_user"`
	SMTPPassword                     string         `json:"smtp_password"`
	MailFrom                         string         `json:"mail_from"`
	SESRegion                        string         `json:"ses_region"`
	SESAccessKey                     string         `json:"ses_access_key"`
	SESSecretKey                     string         `json:"ses_secret_key"`
	SESBaseEndpoint                  string         `json:"ses_base_endpoint"`
	RedisAddr                        string         `json:"redis_addr"`
	RedisPassword                    string         `json:"redis_password"`
	RedisDB                          *int           `json:"redis_db"`
	ResendLimit                      int            `json:"resend_limit"`
	ResendWindow                     timex.Duration `json:"resend_window"`
	VerifyAttemptLimit               int            `json:"verify_attempt_limit"`
	CleanupInterval                  timex.Duration `json:"cleanup_interval"`
	CleanupRetention                 timex.Duration `json:"cleanup_retention"`
}

// parseJson overlays values from the file named by -c/-config onto config.
// Only fields present in the file replace what is already there. An
// unreadable file or invalid JSON panics.
func parseJson(config *Config, args []string) {
	path := flagx.ConfigPath(args)
	if path == "" {
		return
	}

	file, err := os.ReadFile(path)
	if err != nil {
		panic(err)
	}

	c := &JsonConfig{}
	if err := json.Unmarshal(file, c); err != nil {
		panic(err)
	}

	setString(&config.HTTPAddr, c.HTTPAddr)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.SecretKey, c.SecretKey)
	setString(&config.LogLevel, c.LogLevel)
	setDuration(&config.AccessTokenValidityDuration, c.AccessTokenValidityDuration)
	setDuration(&config.RefreshTokenValidityDuration, c.RefreshTokenValidityDuration)
	setDuration(&config.VerificationCodeValidityDuration, c.VerificationCodeValidityDuration)
	if c.BcryptCost != 0 {
		config.BcryptCost = c.BcryptCost
	}
	if c.RequireEmailVerification != nil {
		config.RequireEmailVerification = *c.RequireEmailVerification
	}
	setString(&config.SMTPAddr, c.SMTPAddr)
	setString(&config.SMTPUser, c.SMTPUser)
	setString(&config.SMTPPassword, c.SMTPPassword)
	setString(&config.MailFrom, c.MailFrom)
	setString(&config.SESRegion, c.SESRegion)
	setString(&config.SESAccessKey, c.SESAccessKey)
	setString(&config.SESSecretKey, c.SESSecretKey)
	setString(&config.SESBaseEndpoint, c.SESBaseEndpoint)
	setString(&config.RedisAddr, c.RedisAddr)
	setString(&config.RedisPassword, c.RedisPassword)
	if c.RedisDB != nil {
		config.RedisDB = *c.RedisDB
	}
	if c.ResendLimit != 0 {
		config.ResendLimit = c.ResendLimit
	}
	setDuration(&config.ResendWindow, c.ResendWindow)
	if c.VerifyAttemptLimit != 0 {
		config.VerifyAttemptLimit = c.VerifyAttemptLimit
	}
	setDuration(&config.CleanupInterval, c.CleanupInterval)
	setDuration(&config.CleanupRetention, c.CleanupRetention)
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, v timex.Duration) {
	if v.Duration != 0 {
		*dst = v.Duration
	}
}
