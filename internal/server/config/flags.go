package config

import (
	"flag"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/flagx"
)

// parseFlags populates selected server Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string   HTTP bind address (e.g., ":8080")
//	-d string   PostgreSQL DSN
//	-s string   JWT HMAC secret key
//	-l string   log level
//	-t int      access token validity, minutes
//	-r int      refresh token validity, minutes
//	-v int      verification code validity, minutes
//	-b int      bcrypt cost
//	-m string   SMTP address host:port
//	-f string   mail sender address
//	-e string   SES region (enables SES delivery)
//	-k string   Redis address
//	-n bool     require email verification before login
//
// Duration flags are accepted as integers in minutes. Parse errors panic.
func parseFlags(config *Config, args []string) {
	args = flagx.FilterArgs(args, []string{"-a", "-d", "-s", "-l", "-t", "-r", "-v", "-b", "-m", "-f", "-e", "-k", "-n"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.HTTPAddr, "a", config.HTTPAddr, "address and port to run server")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.SecretKey, "s", config.SecretKey, "secret key")
	fs.StringVar(&config.LogLevel, "l", config.LogLevel, "log level")

	accessTokenValidityDuration := fs.Int("t", int(config.AccessTokenValidityDuration.Minutes()), "access token validity (in minutes)")
	refreshTokenValidityDuration := fs.Int("r", int(config.RefreshTokenValidityDuration.Minutes()), "refresh token validity (in minutes)")
	verificationCodeValidityDuration := fs.Int("v", int(config.VerificationCodeValidityDuration.Minutes()), "verification code validity (in minutes)")

	fs.IntVar(&config.BcryptCost, "b", config.BcryptCost, "bcrypt cost")
	fs.StringVar(&config.SMTPAddr, "m", config.SMTPAddr, "SMTP address")
	fs.StringVar(&config.MailFrom, "f", config.MailFrom, "mail sender")
	fs.StringVar(&config.SESRegion, "e", config.SESRegion, "SES region")
	fs.StringVar(&config.RedisAddr, "k", config.RedisAddr, "Redis address")
	fs.BoolVar(&config.RequireEmailVerification, "n", config.RequireEmailVerification, "require email verification")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	config.AccessTokenValidityDuration = time.Duration(*accessTokenValidityDuration) * time.Minute
	config.RefreshTokenValidityDuration = time.Duration(*refreshTokenValidityDuration) * time.Minute
	config.VerificationCodeValidityDuration = time.Duration(*verificationCodeValidityDuration) * time.Minute
}
