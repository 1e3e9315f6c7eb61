package core

import (
	"log"
	"net"
	"net/mail"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Conf is the process-wide configuration, loaded once at start-up.
var Conf = NewConfig()

type (
	ServerConfig struct {
		Address                   string
		DebugHost                 string
		ShutdownTimeout           time.Duration
		JWTExpirationDelta        time.Duration
		JWTRefreshExpirationDelta time.Duration
	}

	DatabaseConfig struct {
		Engine        string
		Host          string
		Port          int
		Name          string
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		DisableTLS    bool
	}

	TwilioConfig struct {
		AccountSid         string
		AuthToken          string
		From               string
		DefaultCountryCode string
	}

	StorageConfig struct {
		Driver          string // memory | s3
		Bucket          string
		Region          string
		Endpoint        string
		AccessKeyID     string
		SecretAccessKey string
		PublicBaseURL   string
	}

	LifecycleConfig struct {
		GraceDays     int
		FinalizeEvery time.Duration
		ArchiveEvery  time.Duration
	}

	Config struct {
		Env             string
		Debug           bool
		TestMode        bool
		AppName         string
		Build           string
		SecretKey       string
		FrontendBaseURL string

		defaultFromEmail string

		PasswordResetTimeoutDelta time.Duration
		InvitationTTL             time.Duration

		SendgridApiKey string
		RollbarToken   string
		NatsURL        string

		Server    ServerConfig
		Database  DatabaseConfig
		Twilio    TwilioConfig
		Storage   StorageConfig
		Lifecycle LifecycleConfig
	}
)

// NewConfig reads the configuration from the environment (and optional dotenv file) on top of the defaults.
func NewConfig() *Config {
	v := viper.New()

	// defaults
	v.SetTypeByDefaultValue(true)
	v.SetDefault("debug", true)
	v.SetDefault("testMode", false)
	v.SetDefault("appName", "EventSoft")
	v.SetDefault("build", "develop")
	v.SetDefault("secretKey", "k8#q2v!z7m@1w^r4t9b$e6n0y&u3p5s*c(h)j-l=x+d%f")
	v.SetDefault("frontendBaseURL", "http://localhost:3000")
	v.SetDefault("defaultFromEmail", "EventSoft <noreply@localhost>")
	v.SetDefault("passwordResetTimeoutDelta", 3*24*time.Hour)
	v.SetDefault("invitation.ttl", 72*time.Hour)
	v.SetDefault("sendgridApiKey", "")
	v.SetDefault("rollbarToken", "")
	v.SetDefault("nats.url", "")

	v.SetDefault("server.address", "0.0.0.0:8000")
	v.SetDefault("server.debugHost", "0.0.0.0:4000")
	v.SetDefault("server.shutdownTimeout", 5*time.Second)
	v.SetDefault("server.jwtExpirationDelta", 24*time.Hour)
	v.SetDefault("server.jwtRefreshExpirationDelta", 7*24*time.Hour)

	v.SetDefault("database.engine", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "eventsoft")
	v.SetDefault("database.user", "eventsoft")
	v.SetDefault("database.password", "")
	v.SetDefault("database.adminUser", "")
	v.SetDefault("database.adminPassword", "")
	v.SetDefault("database.disableTLS", true)

	v.SetDefault("twilio.accountSid", "")
	v.SetDefault("twilio.authToken", "")
	v.SetDefault("twilio.from", "")
	v.SetDefault("twilio.defaultCountryCode", "+57")

	v.SetDefault("storage.driver", "memory")
	v.SetDefault("storage.bucket", "eventsoft")
	v.SetDefault("storage.region", "auto")
	v.SetDefault("storage.endpoint", "")
	v.SetDefault("storage.accessKeyId", "")
	v.SetDefault("storage.secretAccessKey", "")
	v.SetDefault("storage.publicBaseURL", "")

	v.SetDefault("lifecycle.graceDays", 30)
	v.SetDefault("lifecycle.finalizeEvery", time.Hour)
	v.SetDefault("lifecycle.archiveEvery", time.Hour)

	env := strings.ToUpper(os.Getenv("ENV")) // DEV (local; default), TEST, QA, PROD
	switch env {
	case "":
		env = "DEV"
	case "TEST":
		v.SetDefault("testMode", true)
	case "QA", "PROD":
		v.SetDefault("debug", false)
	}
	v.SetEnvPrefix(env)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join(Getwd(), "config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}
	v.AutomaticEnv()

	return &Config{
		Env:                       env,
		Debug:                     v.GetBool("debug"),
		TestMode:                  v.GetBool("testMode"),
		AppName:                   v.GetString("appName"),
		Build:                     v.GetString("build"),
		SecretKey:                 v.GetString("secretKey"),
		FrontendBaseURL:           v.GetString("frontendBaseURL"),
		defaultFromEmail:          v.GetString("defaultFromEmail"),
		PasswordResetTimeoutDelta: v.GetDuration("passwordResetTimeoutDelta"),
		InvitationTTL:             v.GetDuration("invitation.ttl"),
		SendgridApiKey:            v.GetString("sendgridApiKey"),
		RollbarToken:              v.GetString("rollbarToken"),
		NatsURL:                   v.GetString("nats.url"),
		Server: ServerConfig{
			Address:                   v.GetString("server.address"),
			DebugHost:                 v.GetString("server.debugHost"),
			ShutdownTimeout:           v.GetDuration("server.shutdownTimeout"),
			JWTExpirationDelta:        v.GetDuration("server.jwtExpirationDelta"),
			JWTRefreshExpirationDelta: v.GetDuration("server.jwtRefreshExpirationDelta"),
		},
		Database: DatabaseConfig{
			Engine:        v.GetString("database.engine"),
			Host:          v.GetString("database.host"),
			Port:          v.GetInt("database.port"),
			Name:          v.GetString("database.name"),
			User:          v.GetString("database.user"),
			Password:      v.GetString("database.password"),
			AdminUser:     v.GetString("database.adminUser"),
			AdminPassword: v.GetString("database.adminPassword"),
			DisableTLS:    v.GetBool("database.disableTLS"),
		},
		Twilio: TwilioConfig{
			AccountSid:         v.GetString("twilio.accountSid"),
			AuthToken:          v.GetString("twilio.authToken"),
			From:               v.GetString("twilio.from"),
			DefaultCountryCode: v.GetString("twilio.defaultCountryCode"),
		},
		Storage: StorageConfig{
			Driver:          v.GetString("storage.driver"),
			Bucket:          v.GetString("storage.bucket"),
			Region:          v.GetString("storage.region"),
			Endpoint:        v.GetString("storage.endpoint"),
			AccessKeyID:     v.GetString("storage.accessKeyId"),
			SecretAccessKey: v.GetString("storage.secretAccessKey"),
			PublicBaseURL:   v.GetString("storage.publicBaseURL"),
		},
		Lifecycle: LifecycleConfig{
			GraceDays:     v.GetInt("lifecycle.graceDays"),
			FinalizeEvery: v.GetDuration("lifecycle.finalizeEvery"),
			ArchiveEvery:  v.GetDuration("lifecycle.archiveEvery"),
		},
	}
}

func (c *Config) DefaultFromEmail() mail.Address {
	addr, err := mail.ParseAddress(c.defaultFromEmail)
	if err != nil {
		return mail.Address{Address: c.defaultFromEmail}
	}
	return *addr
}

func (c DatabaseConfig) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}
