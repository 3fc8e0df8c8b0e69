package server

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"tbot/internal/rewards"
)

type Config struct {
	Port            string             `mapstructure:"port"`
	FileLog         string             `mapstructure:"file_log"`
	BotToken        string             `mapstructure:"bot_token"`
	Store           string             `mapstructure:"store"` // postgres, mongo, memory
	DbDsn           string             `mapstructure:"db_dsn"`
	MongoUri        string             `mapstructure:"mongo_uri"`
	MongoDatabase   string             `mapstructure:"mongo_database"`
	RedisAddr       string             `mapstructure:"redis_addr"`
	RedisPassword   string             `mapstructure:"redis_password"`
	RateLimit       uint               `mapstructure:"rate_limit"` // Requests per second per ip
	AllowOrigins    []string           `mapstructure:"allow_origins"`
	StoreTimeout    time.Duration      `mapstructure:"store_timeout"`
	TelegramTimeout time.Duration      `mapstructure:"telegram_timeout"`
	Queue           string             `mapstructure:"queue"` // asynq, pool
	WorkerSpeed     int                `mapstructure:"worker_speed"`
	WorkerQueue     int                `mapstructure:"worker_queue"`
	TaskChats       map[string]int64   `mapstructure:"task_chats"`
	PrizeTables     map[string][]int64 `mapstructure:"prize_tables"`
}

var GlobalConfig Config
var PathFile string

// ConfigLoad reads the config file named by the first argument (./config.json by default),
// overlays the environment and sets up the logger.
func ConfigLoad() {
	if len(os.Args) > 1 {
		PathFile = os.Args[1]
	} else {
		PathFile = "./config.json"
	}
	loadEnv()

	cfg, err := LoadConfig(PathFile)
	if err != nil {
		panic(err)
	}
	GlobalConfig = cfg

	SetLogger(GlobalConfig.FileLog)
}

// LoadConfig builds the configuration from defaults, an optional JSON file and the environment.
func LoadConfig(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("json")
		if err := v.ReadInConfig(); err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("read %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if cfg.BotToken == "" {
		return Config{}, errors.New("bot_token is not set")
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", "8000")
	v.SetDefault("file_log", "")
	v.SetDefault("bot_token", "")
	v.SetDefault("store", "memory")
	v.SetDefault("db_dsn", "")
	v.SetDefault("mongo_uri", "mongodb://localhost:27017")
	v.SetDefault("mongo_database", "tbot")
	v.SetDefault("redis_addr", "")
	v.SetDefault("redis_password", "")
	v.SetDefault("rate_limit", 100)
	v.SetDefault("allow_origins", []string{"https://web.telegram.org"})
	v.SetDefault("store_timeout", 5*time.Second)
	v.SetDefault("telegram_timeout", 5*time.Second)
	v.SetDefault("queue", "pool")
	v.SetDefault("worker_speed", 4)
	v.SetDefault("worker_queue", 1024)
}

// Settings is the view of the config the rewards backend needs.
func (c Config) Settings() rewards.Settings {
	// viper lowercases map keys, task ids are upper case
	chats := make(map[string]int64, len(c.TaskChats))
	for task, chat := range c.TaskChats {
		chats[strings.ToUpper(task)] = chat
	}
	return rewards.Settings{
		BotToken:        c.BotToken,
		Store:           c.Store,
		DbDsn:           c.DbDsn,
		MongoUri:        c.MongoUri,
		MongoDatabase:   c.MongoDatabase,
		RedisAddr:       c.RedisAddr,
		RedisPassword:   c.RedisPassword,
		StoreTimeout:    c.StoreTimeout,
		TelegramTimeout: c.TelegramTimeout,
		Queue:           c.Queue,
		WorkerSpeed:     c.WorkerSpeed,
		WorkerQueue:     c.WorkerQueue,
		TaskChats:       chats,
		PrizeTables:     c.PrizeTables,
	}
}

func loadEnv() {
	env := os.Getenv("APP_ENV")
	if "" == env {
		env = "development"
	}

	godotenv.Load(".env." + env + ".local")

	if "test" != env {
		godotenv.Load(".env.local")
	}
	godotenv.Load(".env." + env)
	godotenv.Load()
}
