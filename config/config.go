package config

import (
	"log"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/joho/godotenv"
)

type Config struct {
	Port          int      `env:"PORT" envDefault:"8080"`
	Dsn           string   `env:"DSN" envDefault:"postgres://localhost:5432/safestreet?sslmode=disable"`
	JwtSecret     string   `env:"JWT_SECRET"`
	JwtExpires    string   `env:"JWT_EXPIRES" envDefault:"24h"`
	AdminEmails   []string `env:"ADMIN_EMAILS" envSeparator:","`
	RunMigrations bool     `env:"RUN_MIGRATIONS" envDefault:"true"`
	DBMaxConns    int32    `env:"DB_MAX_CONNS" envDefault:"25"`
	DBMinConns    int32    `env:"DB_MIN_CONNS" envDefault:"5"`

	CloudinaryCloudName string `env:"CLOUDINARY_CLOUD_NAME"`
	CloudinaryAPIKey    string `env:"CLOUDINARY_API_KEY"`
	CloudinaryAPISecret string `env:"CLOUDINARY_API_SECRET"`
	ImageBucket         string `env:"IMAGE_BUCKET" envDefault:"reports"`
	PreviewWidth        int    `env:"PREVIEW_WIDTH" envDefault:"300"`
	PreviewHeight       int    `env:"PREVIEW_HEIGHT" envDefault:"300"`

	StadiaAPIKey       string        `env:"STADIA_API_KEY"`
	GeocodeConcurrency int           `env:"GEOCODE_CONCURRENCY" envDefault:"8"`
	RedisURL           string        `env:"REDIS_URL"`
	GeocodeCacheTTL    time.Duration `env:"GEOCODE_CACHE_TTL" envDefault:"168h"`

	ClassifierURL         string        `env:"CLASSIFIER_URL"`
	DetectorURL           string        `env:"DETECTOR_URL"`
	DetectorCallbackToken string        `env:"DETECTOR_CALLBACK_TOKEN"`
	ExternalCallTimeout   time.Duration `env:"EXTERNAL_CALL_TIMEOUT" envDefault:"30s"`
	SubmissionIdleTTL     time.Duration `env:"SUBMISSION_IDLE_TTL" envDefault:"24h"`

	// CompensateOrphanedImages deletes the stored image when record creation fails.
	CompensateOrphanedImages bool  `env:"COMPENSATE_ORPHANED_IMAGES" envDefault:"false"`
	MaxUploadBytes           int64 `env:"MAX_UPLOAD_BYTES" envDefault:"10485760"`
	MaxImageDimension        int   `env:"MAX_IMAGE_DIMENSION" envDefault:"1920"`

	KafkaBrokers []string `env:"KAFKA_BROKERS" envSeparator:","`
	KafkaTopic   string   `env:"KAFKA_TOPIC" envDefault:"report-events"`
}

func New() *Config {
	if loadErr := godotenv.Load(".env"); loadErr != nil {
		log.Printf("[Env]: unable to load .env file %v", loadErr)
	}

	var cfg Config

	if parseErr := env.Parse(&cfg); parseErr != nil {
		log.Printf("[Env]: failed to parse environment variables: %v", parseErr)
	}

	return &cfg
}

// IsAdminEmail reports whether accounts registered with email get the admin role.
func (c *Config) IsAdminEmail(email string) bool {
	for _, e := range c.AdminEmails {
		if strings.EqualFold(strings.TrimSpace(e), email) {
			return true
		}
	}
	return false
}
