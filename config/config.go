package config

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"mailblast/models"
)

var (
	DB        *gorm.DB
	AppConfig Config
	envLoaded bool
)

type RedisConfig struct {
	Enabled  bool   `json:"enabled"`
	Address  string `json:"address"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

// SMTPConfig is the default outbound transport used when no rotated
// account has capacity left.
type SMTPConfig struct {
	Host       string `json:"host"`
	Port       int    `json:"port"`
	Username   string `json:"username"`
	Password   string `json:"-"`
	Encryption string `json:"encryption"`
	FromEmail  string `json:"from_email"`
	FromName   string `json:"from_name"`
}

// IMAPConfig points at the mailbox that receives delivery status
// notifications for the bounce worker.
type IMAPConfig struct {
	Enabled  bool   `json:"enabled"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"-"`
	Mailbox  string `json:"mailbox"`
}

type Config struct {
	Environment     string      `json:"environment"`
	ServerPort      string      `json:"server_port"`
	EncryptionKey   string      `json:"-"`
	SentryDSN       string      `json:"-"`
	TrackingBaseURL string      `json:"tracking_base_url"`
	ProbeHeloName   string      `json:"probe_helo_name"`
	ProbeFromEmail  string      `json:"probe_from_email"`
	DBHost          string      `json:"db_host"`
	DBPort          string      `json:"db_port"`
	DBUser          string      `json:"db_user"`
	DBPassword      string      `json:"-"`
	DBName          string      `json:"db_name"`
	DBSSLMode       string      `json:"db_ssl_mode"`
	DBMaxIdleConns  int         `json:"db_max_idle_conns"`
	DBMaxOpenConns  int         `json:"db_max_open_conns"`
	RateLimitVerify int         `json:"rate_limit_verify"`
	Redis           RedisConfig `json:"redis"`
	DefaultSMTP     SMTPConfig  `json:"default_smtp"`
	BounceMailbox   IMAPConfig  `json:"bounce_mailbox"`
}

func init() {
	// Try to load .env file, but don't fail if it doesn't exist
	_ = godotenv.Load()
	envLoaded = true
}

func LoadConfig() error {
	AppConfig = Config{
		Environment:     getEnv("ENVIRONMENT", "development"),
		ServerPort:      getEnv("SERVER_PORT", "5000"),
		EncryptionKey:   getEnv("ENCRYPTION_KEY", ""),
		SentryDSN:       getEnv("SENTRY_DSN", ""),
		TrackingBaseURL: getEnv("TRACKING_BASE_URL", "http://localhost:5000"),
		ProbeHeloName:   getEnv("PROBE_HELO_NAME", "verify.mailblast.local"),
		ProbeFromEmail:  getEnv("PROBE_FROM_EMAIL", "probe@mailblast.local"),
		DBHost:          getEnv("DB_HOST", "localhost"),
		DBPort:          getEnv("DB_PORT", "5432"),
		DBUser:          getEnv("DB_USER", "postgres"),
		DBPassword:      getEnv("DB_PASSWORD", ""),
		DBName:          getEnv("DB_NAME", "mailblast"),
		DBSSLMode:       getEnv("DB_SSL_MODE", "disable"),
		DBMaxIdleConns:  getEnvAsInt("DB_MAX_IDLE_CONNS", 10),
		DBMaxOpenConns:  getEnvAsInt("DB_MAX_OPEN_CONNS", 100),
		RateLimitVerify: getEnvAsInt("RATE_LIMIT_VERIFY", 30),
		Redis: RedisConfig{
			Enabled:  getEnv("REDIS_ENABLED", "") == "true",
			Address:  getEnv("REDIS_ADDRESS", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		DefaultSMTP: SMTPConfig{
			Host:       getEnv("SMTP_HOST", ""),
			Port:       getEnvAsInt("SMTP_PORT", 587),
			Username:   getEnv("SMTP_USERNAME", ""),
			Password:   getEnv("SMTP_PASSWORD", ""),
			Encryption: getEnv("SMTP_ENCRYPTION", "STARTTLS"),
			FromEmail:  getEnv("SMTP_FROM_EMAIL", ""),
			FromName:   getEnv("SMTP_FROM_NAME", ""),
		},
		BounceMailbox: IMAPConfig{
			Enabled:  getEnv("BOUNCE_IMAP_ENABLED", "") == "true",
			Host:     getEnv("BOUNCE_IMAP_HOST", ""),
			Port:     getEnvAsInt("BOUNCE_IMAP_PORT", 993),
			Username: getEnv("BOUNCE_IMAP_USERNAME", ""),
			Password: getEnv("BOUNCE_IMAP_PASSWORD", ""),
			Mailbox:  getEnv("BOUNCE_IMAP_MAILBOX", "INBOX"),
		},
	}

	// Validate required configurations
	if AppConfig.DBPassword == "" {
		return fmt.Errorf("DB_PASSWORD is required")
	}
	if AppConfig.EncryptionKey == "" {
		return fmt.Errorf("ENCRYPTION_KEY is required")
	}
	if len(AppConfig.EncryptionKey) != 32 {
		return fmt.Errorf("ENCRYPTION_KEY must be exactly 32 bytes")
	}

	logConfig()
	return nil
}

func ConnectDB() error {
	log.Println("Attempting to connect to database...")

	dsn := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		AppConfig.DBHost,
		AppConfig.DBPort,
		AppConfig.DBUser,
		AppConfig.DBPassword,
		AppConfig.DBName,
		AppConfig.DBSSLMode,
	)
	log.Println("Using connection string:", maskPassword(dsn))

	var err error
	DB, err = gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := DB.DB()
	if err != nil {
		return fmt.Errorf("failed to get DB instance: %w", err)
	}

	sqlDB.SetMaxIdleConns(AppConfig.DBMaxIdleConns)
	sqlDB.SetMaxOpenConns(AppConfig.DBMaxOpenConns)
	sqlDB.SetConnMaxLifetime(time.Hour)
	sqlDB.SetConnMaxIdleTime(30 * time.Minute)

	if err := sqlDB.Ping(); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	log.Println("✅ Successfully connected to the database")
	log.Println("🔄 Starting database migration...")
	if err := migrateDB(DB); err != nil {
		return fmt.Errorf("database migration failed: %w", err)
	}
	log.Println("✅ Database migration completed")
	return nil
}

// Helper functions
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	if !envLoaded && fallback == "" {
		log.Printf("⚠️ Environment variable %s not found and no fallback provided", key)
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	var value int
	_, err := fmt.Sscanf(valueStr, "%d", &value)
	if err != nil {
		return fallback
	}
	return value
}

func maskPassword(dsn string) string {
	const passwordMarker = "password="
	startIdx := strings.Index(dsn, passwordMarker)
	if startIdx == -1 {
		return dsn
	}

	startIdx += len(passwordMarker)
	endIdx := strings.IndexAny(dsn[startIdx:], " ")
	if endIdx == -1 {
		return dsn[:startIdx] + "*****"
	}
	return dsn[:startIdx] + "*****" + dsn[startIdx+endIdx:]
}

func logConfig() {
	log.Println("🔧 Loaded configuration:")
	log.Printf("Environment: %s", AppConfig.Environment)
	log.Printf("Server Port: %s", AppConfig.ServerPort)
	log.Printf("Database: %s@%s:%s/%s",
		AppConfig.DBUser,
		AppConfig.DBHost,
		AppConfig.DBPort,
		AppConfig.DBName)
	log.Printf("Redis: enabled(%t), Bounce mailbox: enabled(%t)",
		AppConfig.Redis.Enabled,
		AppConfig.BounceMailbox.Enabled)
}

func migrateDB(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.Contact{},
		&models.ContactList{},
		&models.ContactTag{},
		&models.ContactCustomField{},
		&models.Campaign{},
		&models.CampaignLog{},
		&models.TrackingEvent{},
		&models.SMTPAccount{},
		&models.BlacklistEntry{},
		&models.Unsubscribe{},
		&models.VerificationJob{},
		&models.VerificationRecord{},
	)
}
