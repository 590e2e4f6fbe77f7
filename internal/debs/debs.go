package deps

import (
	"log"

	"github.com/bwise1/safestreet/config"
	"github.com/bwise1/safestreet/internal/aggregator"
	"github.com/bwise1/safestreet/internal/cache"
	"github.com/bwise1/safestreet/internal/db"
	"github.com/bwise1/safestreet/internal/events"
	"github.com/bwise1/safestreet/internal/http/classifier"
	"github.com/bwise1/safestreet/internal/http/detector"
	stadiamaps "github.com/bwise1/safestreet/internal/http/stadia_maps"
	"github.com/bwise1/safestreet/internal/imagery"
	"github.com/bwise1/safestreet/internal/store"
	"github.com/bwise1/safestreet/util/storage"
	"github.com/bwise1/safestreet/util/websockets"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Dependencies struct {
	DB         *db.DB
	Store      *store.Store
	Cloudinary *storage.Cloudinary
	Geocoder   aggregator.Geocoder
	Locator    *stadiamaps.Client
	Classifier *classifier.Client
	Detector   *detector.Client
	Normalizer *imagery.Normalizer
	WebSocket  *websockets.WebSocketManager
	Events     events.Publisher

	redis *cache.RedisCache
	kafka *events.KafkaPublisher
}

func New(cfg *config.Config) *Dependencies {
	database, err := db.New(cfg.Dsn, db.PoolOptions{
		MaxConns: cfg.DBMaxConns,
		MinConns: cfg.DBMinConns,
	})
	if err != nil {
		log.Panicln("failed to connect to database", "error", err)
	}

	cloudinary, err := storage.NewCloudinary(cfg)
	if err != nil {
		log.Panicln("failed to initialize object storage", "error", err)
	}

	websocket := websockets.NewWebSocketManager()

	deps := Dependencies{
		DB:         database,
		Store:      store.New(database),
		Cloudinary: cloudinary,
		Classifier: classifier.NewClient(cfg.ClassifierURL, cfg.ExternalCallTimeout),
		Detector:   detector.NewClient(cfg.DetectorURL, cfg.ExternalCallTimeout),
		Normalizer: imagery.NewNormalizer(cfg.MaxImageDimension),
		WebSocket:  websocket,
	}

	stadia := stadiamaps.NewClient(cfg.StadiaAPIKey, cfg.ExternalCallTimeout)
	deps.Locator = stadia

	var geocoder aggregator.Geocoder = stadia
	if cfg.RedisURL != "" {
		redisCache, err := cache.NewRedisCache(cfg.RedisURL)
		if err != nil {
			log.Printf("[Cache] redis unavailable, geocoding uncached: %v", err)
		} else {
			deps.redis = redisCache
			geocoder = cache.NewCachedGeocoder(geocoder, redisCache, cfg.GeocodeCacheTTL)
		}
	}
	deps.Geocoder = geocoder

	publishers := events.Multi{websocket}
	if len(cfg.KafkaBrokers) > 0 {
		deps.kafka = events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		publishers = append(publishers, deps.kafka)
	}
	deps.Events = publishers

	return &deps
}

func (d *Dependencies) Pool() *pgxpool.Pool {
	return d.DB.Pool()
}

// Close releases every connection held by the dependencies.
func (d *Dependencies) Close() {
	if d.kafka != nil {
		if err := d.kafka.Close(); err != nil {
			log.Printf("[Events] closing kafka writer: %v", err)
		}
	}
	if d.redis != nil {
		if err := d.redis.Close(); err != nil {
			log.Printf("[Cache] closing redis: %v", err)
		}
	}
	d.DB.Close()
}
