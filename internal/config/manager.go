package config

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hkloudou/storefront/internal/storage"
	"github.com/hkloudou/storefront/internal/xsync"
	"github.com/redis/go-redis/v9"
)

// SettingKey is the Redis key holding the JSON Setting
const SettingKey = "storefront.setting"

// ErrSettingNotFound is returned by Load when SettingKey is absent
var ErrSettingNotFound = errors.New(SettingKey + " not found in Redis")

// Manager manages runtime settings stored in Redis
type Manager struct {
	rdb    *redis.Client
	flight xsync.SingleFlight[*Setting]
}

// NewManager creates a new setting manager
func NewManager(rdb *redis.Client) *Manager {
	return &Manager{
		rdb:    rdb,
		flight: xsync.NewSingleFlight[*Setting](),
	}
}

// Setting describes where blog documents are stored
type Setting struct {
	Name      string `json:"Name"`
	Storage   string `json:"Storage"`   // "memory" | "file" | "oss"
	Bucket    string `json:"Bucket"`    // OSS bucket
	Endpoint  string `json:"Endpoint"`  // OSS endpoint
	AccessKey string `json:"AccessKey"` // OSS access key
	SecretKey string `json:"SecretKey"` // OSS secret key
	Internal  bool   `json:"Internal"`  // Use the OSS internal endpoint
	BasePath  string `json:"BasePath"`  // Root directory for file storage
	AESPwd    string `json:"AESPwd"`    // Encrypt stored documents when set
}

// Load reads the setting. Concurrent loads share one Redis round trip.
func (m *Manager) Load(ctx context.Context) (*Setting, error) {
	return m.flight.Do(SettingKey, func() (*Setting, error) {
		return m.load(ctx)
	})
}

func (m *Manager) load(ctx context.Context) (*Setting, error) {
	data, err := m.rdb.Get(ctx, SettingKey).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, ErrSettingNotFound
		}
		return nil, fmt.Errorf("failed to read setting from Redis: %w", err)
	}

	var s Setting
	if err := json.Unmarshal([]byte(data), &s); err != nil {
		return nil, fmt.Errorf("failed to parse setting: %w", err)
	}
	return &s, nil
}

// Save writes the setting
func (m *Manager) Save(ctx context.Context, s *Setting) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal setting: %w", err)
	}
	if err := m.rdb.Set(ctx, SettingKey, string(data), 0).Err(); err != nil {
		return fmt.Errorf("failed to save setting to Redis: %w", err)
	}
	return nil
}

// CreateStorage builds the storage backend the setting describes
func (s *Setting) CreateStorage() (storage.Storage, error) {
	switch s.Storage {
	case "memory", "":
		return storage.NewMemoryStorage(s.Name), nil

	case "file":
		return storage.NewFileStorage(storage.FileConfig{
			Name:     s.Name,
			BasePath: s.BasePath,
			AESKey:   s.AESPwd,
		})

	case "oss":
		return storage.NewOSSStorage(storage.OSSConfig{
			Endpoint:  s.Endpoint,
			Bucket:    s.Bucket,
			AccessKey: s.AccessKey,
			SecretKey: s.SecretKey,
			AESKey:    s.AESPwd,
			Internal:  s.Internal,
		})

	default:
		return nil, fmt.Errorf("unknown storage type: %s", s.Storage)
	}
}

// DefaultSetting keeps blog posts in memory
func DefaultSetting() *Setting {
	return &Setting{
		Name:    "storefront",
		Storage: "memory",
	}
}
