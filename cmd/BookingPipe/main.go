package main

import (
	"errors"
	"flag"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"google.golang.org/api/option"

	"github.com/BTreeMap/BookingPipe/internal/api"
	"github.com/BTreeMap/BookingPipe/internal/lockfile"
	"github.com/BTreeMap/BookingPipe/internal/notify"
	"github.com/BTreeMap/BookingPipe/internal/store"
	"github.com/BTreeMap/BookingPipe/internal/twiliowhatsapp"
	"github.com/BTreeMap/BookingPipe/internal/util"
	"github.com/BTreeMap/BookingPipe/internal/whatsapp"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for BookingPipe state data
	DefaultStateDir = "/var/lib/bookingpipe"
	// DefaultWhatsAppDBFileName is the whatsmeow device store
	DefaultWhatsAppDBFileName = "whatsmeow.db"
	// DefaultAppDBFileName is the SQLite record sink
	DefaultAppDBFileName = "bookingpipe.db"
)

// logLevel is shared by the default handler so it can be changed after the
// environment has been read.
var logLevel = new(slog.LevelVar)

func main() {
	initializeLogger()

	config := loadEnvironmentConfig()
	setLogLevel(config.LogLevel)

	flags, err := parseCommandLineFlags(flag.CommandLine, os.Args[1:], config)
	if err != nil {
		slog.Error("Failed to parse command line flags", "error", err)
		os.Exit(2)
	}

	if err := ensureDirectoriesExist(flags); err != nil {
		slog.Error("Failed to create required directories", "error", err)
		os.Exit(1)
	}

	lock, err := lockfile.AcquireLock(*flags.stateDir)
	if err != nil {
		var lockErr *lockfile.LockError
		if errors.As(err, &lockErr) {
			slog.Error("BookingPipe is already running", "error", lockErr)
		} else {
			slog.Error("Failed to lock state directory", "error", err)
		}
		os.Exit(1)
	}
	defer lock.Release()

	waOpts := buildWhatsAppOptions(flags, config)
	twOpts := buildTwilioOptions(config)
	storeOpts := buildStoreOptions(flags, config)
	apiOpts := buildAPIOptions(flags, config)

	slog.Info("Bootstrapping BookingPipe with configured modules")
	slog.Debug("Module options counts", "whatsapp", len(waOpts), "twilio", len(twOpts), "store", len(storeOpts), "api", len(apiOpts))
	if err := api.Run(waOpts, twOpts, storeOpts, apiOpts); err != nil {
		slog.Error("BookingPipe failed to run", "error", err)
		lock.Release()
		os.Exit(1)
	}
	slog.Info("BookingPipe exited successfully")
}

// Config holds environment configuration
type Config struct {
	StateDir         string
	WhatsAppDBDSN    string
	ApplicationDBDSN string
	APIAddr          string
	AdminAddr        string
	Gateway          string
	AdminNumber      string
	LogLevel         string

	TwilioAccountSID string
	TwilioAuthToken  string
	TwilioFromNumber string
	TwilioWebhookURL string

	SheetsSpreadsheetID   string
	SheetsCredentialsFile string
	SheetsRange           string

	RedisAddr     string
	RedisPassword string
	SessionTTL    time.Duration

	SendGridAPIKey    string
	SendGridFromEmail string
	AdminEmail        string

	HumanizeReplies bool
	TypingDelayMin  time.Duration
	TypingDelayMax  time.Duration
}

// Flags holds command line flag values
type Flags struct {
	qrOutput      *string
	numeric       *bool
	stateDir      *string
	whatsappDBDSN *string
	appDBDSN      *string
	apiAddr       *string
	adminAddr     *string
	gateway       *string
	adminNumber   *string
}

// initializeLogger sets up structured logging; the level starts at debug.
func initializeLogger() {
	logLevel.Set(slog.LevelDebug)
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)
}

// setLogLevel applies LOG_LEVEL; unknown values keep the current level.
func setLogLevel(level string) {
	if level == "" {
		return
	}
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		slog.Warn("Invalid LOG_LEVEL, keeping current level", "value", level, "current", logLevel.Level())
		return
	}
	logLevel.Set(l)
}

func defaultWhatsAppDSN(stateDir string) string {
	return "file:" + filepath.Join(stateDir, DefaultWhatsAppDBFileName) + "?_foreign_keys=on"
}

func defaultAppDSN(stateDir string) string {
	return filepath.Join(stateDir, DefaultAppDBFileName)
}

// loadEnvironmentConfig loads configuration from environment variables and .env file
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	} else {
		slog.Debug("successfully loaded .env file")
	}

	config := Config{
		StateDir:      os.Getenv("BOOKINGPIPE_STATE_DIR"),
		WhatsAppDBDSN: os.Getenv("WHATSAPP_DB_DSN"),
		APIAddr:       os.Getenv("API_ADDR"),
		AdminAddr:     os.Getenv("ADMIN_ADDR"),
		Gateway:       strings.ToLower(strings.TrimSpace(os.Getenv("GATEWAY"))),
		AdminNumber:   os.Getenv("ADMIN_NUMBER"),
		LogLevel:      os.Getenv("LOG_LEVEL"),

		TwilioAccountSID: os.Getenv("TWILIO_ACCOUNT_SID"),
		TwilioAuthToken:  os.Getenv("TWILIO_AUTH_TOKEN"),
		TwilioFromNumber: os.Getenv("TWILIO_FROM_NUMBER"),
		TwilioWebhookURL: os.Getenv("TWILIO_WEBHOOK_URL"),

		SheetsSpreadsheetID:   os.Getenv("SHEETS_SPREADSHEET_ID"),
		SheetsCredentialsFile: os.Getenv("SHEETS_CREDENTIALS_FILE"),
		SheetsRange:           os.Getenv("SHEETS_RANGE"),

		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		SessionTTL:    util.ParseDurationEnv("SESSION_TTL", 0),

		SendGridAPIKey:    os.Getenv("SENDGRID_API_KEY"),
		SendGridFromEmail: os.Getenv("SENDGRID_FROM_EMAIL"),
		AdminEmail:        os.Getenv("ADMIN_EMAIL"),

		HumanizeReplies: util.ParseBoolEnv("HUMANIZE_REPLIES", true),
		TypingDelayMin:  util.ParseDurationEnv("TYPING_DELAY_MIN", 1500*time.Millisecond),
		TypingDelayMax:  util.ParseDurationEnv("TYPING_DELAY_MAX", 3500*time.Millisecond),
	}

	if config.StateDir == "" {
		config.StateDir = DefaultStateDir
		slog.Debug("No BOOKINGPIPE_STATE_DIR set, using default", "default_state_dir", config.StateDir)
	}

	// DATABASE_DSN is preferred; DATABASE_URL is accepted for platforms that inject it.
	config.ApplicationDBDSN = os.Getenv("DATABASE_DSN")
	if config.ApplicationDBDSN == "" {
		config.ApplicationDBDSN = os.Getenv("DATABASE_URL")
	}
	if config.ApplicationDBDSN == "" {
		config.ApplicationDBDSN = defaultAppDSN(config.StateDir)
		slog.Debug("No application database DSN provided, defaulting to SQLite", "sqlite_path", config.ApplicationDBDSN)
	}
	if config.WhatsAppDBDSN == "" {
		config.WhatsAppDBDSN = defaultWhatsAppDSN(config.StateDir)
		slog.Debug("No WhatsApp database DSN provided, defaulting to SQLite", "sqlite_dsn", config.WhatsAppDBDSN)
	}

	slog.Debug("environment variables loaded",
		"BOOKINGPIPE_STATE_DIR", config.StateDir,
		"WHATSAPP_DB_DSN_SET", config.WhatsAppDBDSN != "",
		"DATABASE_DSN_SET", config.ApplicationDBDSN != "",
		"API_ADDR", config.APIAddr,
		"ADMIN_ADDR", config.AdminAddr,
		"GATEWAY", config.Gateway,
		"ADMIN_NUMBER_SET", config.AdminNumber != "",
		"SHEETS_SET", config.SheetsSpreadsheetID != "",
		"REDIS_SET", config.RedisAddr != "",
		"SENDGRID_SET", config.SendGridAPIKey != "",
		"HUMANIZE_REPLIES", config.HumanizeReplies)

	return config
}

// parseCommandLineFlags parses args with environment defaults. When only the
// state directory is overridden, default database paths follow it.
func parseCommandLineFlags(fs *flag.FlagSet, args []string, config Config) (Flags, error) {
	flags := Flags{
		qrOutput:      fs.String("qr-output", "", "path to write login QR code"),
		numeric:       fs.Bool("numeric-code", false, "use numeric login code instead of QR code"),
		stateDir:      fs.String("state-dir", config.StateDir, "state directory for BookingPipe data (overrides $BOOKINGPIPE_STATE_DIR)"),
		whatsappDBDSN: fs.String("whatsapp-db-dsn", config.WhatsAppDBDSN, "WhatsApp device store DSN (overrides $WHATSAPP_DB_DSN)"),
		appDBDSN:      fs.String("app-db-dsn", config.ApplicationDBDSN, "booking record DSN (overrides $DATABASE_DSN or $DATABASE_URL)"),
		apiAddr:       fs.String("api-addr", config.APIAddr, "API server address (overrides $API_ADDR)"),
		adminAddr:     fs.String("admin-addr", config.AdminAddr, "operator API address for bookings, slots and metrics (overrides $ADMIN_ADDR)"),
		gateway:       fs.String("gateway", config.Gateway, "chat gateway: whatsapp or twilio (overrides $GATEWAY)"),
		adminNumber:   fs.String("admin-number", config.AdminNumber, "number notified of new bookings (overrides $ADMIN_NUMBER)"),
	}
	if err := fs.Parse(args); err != nil {
		return Flags{}, err
	}

	if *flags.stateDir != config.StateDir {
		if *flags.whatsappDBDSN == defaultWhatsAppDSN(config.StateDir) {
			*flags.whatsappDBDSN = defaultWhatsAppDSN(*flags.stateDir)
		}
		if *flags.appDBDSN == defaultAppDSN(config.StateDir) {
			*flags.appDBDSN = defaultAppDSN(*flags.stateDir)
		}
		slog.Debug("Database paths follow state directory", "state_dir", *flags.stateDir)
	}

	slog.Debug("flags parsed",
		"qrOutput", *flags.qrOutput,
		"numeric", *flags.numeric,
		"stateDir", *flags.stateDir,
		"whatsappDBDSN_set", *flags.whatsappDBDSN != "",
		"appDBDSN_set", *flags.appDBDSN != "",
		"apiAddr", *flags.apiAddr,
		"adminAddr", *flags.adminAddr,
		"gateway", *flags.gateway)

	return flags, nil
}

// ensureDirectoriesExist creates the state directory and the parent
// directories of file-based databases.
func ensureDirectoriesExist(flags Flags) error {
	if err := os.MkdirAll(*flags.stateDir, 0755); err != nil {
		return err
	}
	for _, dsn := range []string{*flags.whatsappDBDSN, *flags.appDBDSN} {
		if dsn == "" || store.DetectDSNType(dsn) == "postgres" {
			continue
		}
		path := strings.TrimPrefix(dsn, "file:")
		if i := strings.IndexByte(path, '?'); i >= 0 {
			path = path[:i]
		}
		if path == "" || path == ":memory:" {
			continue
		}
		dir := filepath.Dir(path)
		slog.Debug("Creating directory for file-based database", "dir", dir)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return nil
}

// buildWhatsAppOptions constructs WhatsApp configuration options
func buildWhatsAppOptions(flags Flags, config Config) []whatsapp.Option {
	var waOpts []whatsapp.Option
	if *flags.qrOutput != "" {
		waOpts = append(waOpts, whatsapp.WithQRCodeOutput(*flags.qrOutput))
	}
	if *flags.numeric {
		waOpts = append(waOpts, whatsapp.WithNumericCode())
	}
	if *flags.whatsappDBDSN != "" {
		waOpts = append(waOpts, whatsapp.WithDBDSN(*flags.whatsappDBDSN))
	}
	if config.LogLevel != "" {
		waOpts = append(waOpts, whatsapp.WithLogLevel(strings.ToUpper(config.LogLevel)))
	}
	return waOpts
}

// buildTwilioOptions constructs Twilio configuration options
func buildTwilioOptions(config Config) []twiliowhatsapp.Option {
	var twOpts []twiliowhatsapp.Option
	if config.TwilioAccountSID != "" {
		twOpts = append(twOpts, twiliowhatsapp.WithAccountSID(config.TwilioAccountSID))
	}
	if config.TwilioAuthToken != "" {
		twOpts = append(twOpts, twiliowhatsapp.WithAuthToken(config.TwilioAuthToken))
	}
	if config.TwilioFromNumber != "" {
		twOpts = append(twOpts, twiliowhatsapp.WithFromWhats(config.TwilioFromNumber))
	}
	return twOpts
}

// buildStoreOptions constructs record sink options. A spreadsheet, when
// configured, takes precedence over the database DSN.
func buildStoreOptions(flags Flags, config Config) []store.Option {
	var storeOpts []store.Option
	if config.SheetsSpreadsheetID != "" {
		var clientOpts []option.ClientOption
		if config.SheetsCredentialsFile != "" {
			clientOpts = append(clientOpts, option.WithCredentialsFile(config.SheetsCredentialsFile))
		}
		slog.Debug("Configuring Google Sheets record sink", "range", config.SheetsRange, "credentials_file_set", config.SheetsCredentialsFile != "")
		storeOpts = append(storeOpts, store.WithSheets(config.SheetsSpreadsheetID, config.SheetsRange, clientOpts...))
	}
	if *flags.appDBDSN != "" {
		if store.DetectDSNType(*flags.appDBDSN) == "postgres" {
			slog.Debug("Detected PostgreSQL DSN, configuring PostgreSQL store", "dsn_type", "postgresql", "dsn_set", true)
			storeOpts = append(storeOpts, store.WithPostgresDSN(*flags.appDBDSN))
		} else {
			slog.Debug("Detected SQLite DSN, configuring SQLite store", "dsn_type", "sqlite", "db_path", *flags.appDBDSN)
			storeOpts = append(storeOpts, store.WithSQLiteDSN(*flags.appDBDSN))
		}
	}
	return storeOpts
}

// buildAPIOptions constructs API server and conversation options
func buildAPIOptions(flags Flags, config Config) []api.Option {
	var apiOpts []api.Option
	if *flags.apiAddr != "" {
		apiOpts = append(apiOpts, api.WithAddr(*flags.apiAddr))
	}
	if *flags.adminAddr != "" {
		apiOpts = append(apiOpts, api.WithAdminAddr(*flags.adminAddr))
	}
	if *flags.gateway != "" {
		apiOpts = append(apiOpts, api.WithGateway(*flags.gateway))
	}
	if *flags.adminNumber != "" {
		apiOpts = append(apiOpts, api.WithAdminNumber(*flags.adminNumber))
	}
	if config.RedisAddr != "" {
		apiOpts = append(apiOpts, api.WithRedis(config.RedisAddr, config.RedisPassword))
	}
	if config.SessionTTL > 0 {
		apiOpts = append(apiOpts, api.WithSessionTTL(config.SessionTTL))
	}
	if config.SendGridAPIKey != "" {
		apiOpts = append(apiOpts, api.WithEmailNotifications(notify.EmailConfig{
			APIKey:    config.SendGridAPIKey,
			FromEmail: config.SendGridFromEmail,
			ToEmail:   config.AdminEmail,
		}))
	}
	if config.TwilioWebhookURL != "" {
		apiOpts = append(apiOpts, api.WithTwilioWebhookURL(config.TwilioWebhookURL))
	}
	apiOpts = append(apiOpts, api.WithHumanizedReplies(config.HumanizeReplies, config.TypingDelayMin, config.TypingDelayMax))
	return apiOpts
}
