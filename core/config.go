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

// Conf holds the app configuration loaded at startup.
var Conf = NewConfig()

type (
	Config struct {
		Env                string
		AppName            string
		Build              string
		Debug              bool
		TestMode           bool
		SecretKey          string
		FrontendBaseURL    string
		RollbarToken       string
		SendgridApiKey     string
		EmailNotifications bool
		defaultFromEmail   string

		Server    ServerConfig
		Database  DatabaseConfig
		Scheduler SchedulerConfig
	}

	ServerConfig struct {
		Host                      string
		Address                   string
		DebugAddress              string
		ShutdownTimeout           time.Duration
		JWTExpirationDelta        time.Duration
		JWTRefreshExpirationDelta time.Duration
		PasswordResetTimeoutDelta time.Duration
		DisableRequestLogs        bool
	}

	DatabaseConfig struct {
		Engine        string // postgres | sqlite
		Host          string
		Port          int
		Name          string
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		DisableTLS    bool
		Path          string // sqlite only
		MaxOpenConns  int
	}

	SchedulerConfig struct {
		Disabled       bool
		ReconcileEvery time.Duration
	}
)

func (conf *Config) DefaultFromEmail() mail.Address {
	addr, err := mail.ParseAddress(conf.defaultFromEmail)
	if err != nil {
		return mail.Address{Name: conf.AppName, Address: conf.defaultFromEmail}
	}
	if addr.Name == "" {
		addr.Name = conf.AppName
	}
	return *addr
}

func (db DatabaseConfig) Address() string {
	if db.Port == 0 {
		return db.Host
	}
	return net.JoinHostPort(db.Host, strconv.Itoa(db.Port))
}

func (db DatabaseConfig) IsSQLite() bool {
	return db.Engine == "sqlite"
}

// NewConfig reads the configuration from the environment.
// ENV selects the environment (DEV by default) and its variables prefix, e.g. PROD_DATABASE_HOST.
func NewConfig() *Config {
	v := viper.New()

	// defaults
	v.SetTypeByDefaultValue(true)
	v.SetDefault("debug", true)
	v.SetDefault("appName", "Giggles")
	v.SetDefault("build", "dev")
	v.SetDefault("secretKey", "t1j&0=8c#v!d0u@3l$e)k9h8q4mz%_w7u2g+b6y-sx^r5ocpna")
	v.SetDefault("frontendBaseURL", "http://localhost:3000")
	v.SetDefault("defaultFromEmail", "noreply@localhost")
	v.SetDefault("rollbarToken", "")
	v.SetDefault("sendgridApiKey", "")
	v.SetDefault("emailNotifications", true)

	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.address", ":8000")
	v.SetDefault("server.debugAddress", ":4000")
	v.SetDefault("server.shutdownTimeout", 5*time.Second)
	v.SetDefault("server.jwtExpirationDelta", 7*24*time.Hour)
	v.SetDefault("server.jwtRefreshExpirationDelta", 4*time.Hour)
	v.SetDefault("server.passwordResetTimeoutDelta", 3*24*time.Hour)
	v.SetDefault("server.disableRequestLogs", false)

	v.SetDefault("database.engine", "sqlite")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "giggles")
	v.SetDefault("database.user", "")
	v.SetDefault("database.password", "")
	v.SetDefault("database.adminUser", "")
	v.SetDefault("database.adminPassword", "")
	v.SetDefault("database.disableTLS", true)
	v.SetDefault("database.path", "giggles.db")
	v.SetDefault("database.maxOpenConns", 10)

	v.SetDefault("scheduler.disabled", false)
	v.SetDefault("scheduler.reconcileEvery", 24*time.Hour)

	env := strings.ToUpper(os.Getenv("ENV")) // DEV (local; default), TEST, QA, PROD
	if env == "" {
		env = "DEV"
		if strings.HasSuffix(os.Args[0], ".test") {
			env = "TEST"
		}
	}
	v.SetEnvPrefix(env)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join("config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}
	v.AutomaticEnv()

	return &Config{
		Env:                env,
		AppName:            v.GetString("appName"),
		Build:              v.GetString("build"),
		Debug:              v.GetBool("debug"),
		TestMode:           env == "TEST",
		SecretKey:          v.GetString("secretKey"),
		FrontendBaseURL:    v.GetString("frontendBaseURL"),
		RollbarToken:       v.GetString("rollbarToken"),
		SendgridApiKey:     v.GetString("sendgridApiKey"),
		EmailNotifications: v.GetBool("emailNotifications"),
		defaultFromEmail:   v.GetString("defaultFromEmail"),
		Server: ServerConfig{
			Host:                      v.GetString("server.host"),
			Address:                   v.GetString("server.address"),
			DebugAddress:              v.GetString("server.debugAddress"),
			ShutdownTimeout:           v.GetDuration("server.shutdownTimeout"),
			JWTExpirationDelta:        v.GetDuration("server.jwtExpirationDelta"),
			JWTRefreshExpirationDelta: v.GetDuration("server.jwtRefreshExpirationDelta"),
			PasswordResetTimeoutDelta: v.GetDuration("server.passwordResetTimeoutDelta"),
			DisableRequestLogs:        v.GetBool("server.disableRequestLogs"),
		},
		Database: DatabaseConfig{
			Engine:        strings.ToLower(v.GetString("database.engine")),
			Host:          v.GetString("database.host"),
			Port:          v.GetInt("database.port"),
			Name:          v.GetString("database.name"),
			User:          v.GetString("database.user"),
			Password:      v.GetString("database.password"),
			AdminUser:     v.GetString("database.adminUser"),
			AdminPassword: v.GetString("database.adminPassword"),
			DisableTLS:    v.GetBool("database.disableTLS"),
			Path:          v.GetString("database.path"),
			MaxOpenConns:  v.GetInt("database.maxOpenConns"),
		},
		Scheduler: SchedulerConfig{
			Disabled:       v.GetBool("scheduler.disabled"),
			ReconcileEvery: v.GetDuration("scheduler.reconcileEvery"),
		},
	}
}
