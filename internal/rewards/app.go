package rewards

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"tbot/internal/initdata"
	"tbot/internal/ledger"
	"tbot/internal/store"
	"tbot/internal/telegram"
	"tbot/internal/worker"
)

// Settings is the part of the configuration the rewards backend is built from.
type Settings struct {
	BotToken        string
	Store           string // postgres, mongo or memory
	DbDsn           string
	MongoUri        string
	MongoDatabase   string
	RedisAddr       string
	RedisPassword   string
	StoreTimeout    time.Duration
	TelegramTimeout time.Duration
	Queue           string // asynq or pool
	WorkerSpeed     int
	WorkerQueue     int
	TaskChats       map[string]int64
	PrizeTables     map[string][]int64
}

type App struct {
	Rdb     *redis.Client
	Db      *gorm.DB
	Mdb     *mongo.Client
	Aqc     *asynq.Client
	Pool    *worker.Pool
	Bot     *telegram.Bot
	Service *Service
	Log     Logger
}

type AppWorker struct {
	Db  *gorm.DB
	Aqs *asynq.Server
}

func Init(s Settings, log Logger) (*App, error) {
	verifier, err := initdata.NewVerifier(s.BotToken)
	if err != nil {
		return nil, err
	}
	app := &App{Log: log}
	rules := ledger.Default()
	opts := []Option{WithLogger(log), WithStoreTimeout(s.StoreTimeout)}

	if len(s.PrizeTables) > 0 {
		tables := make(map[ledger.Kind][]int64, len(s.PrizeTables))
		for game, amounts := range s.PrizeTables {
			tables[ledger.Kind(game)] = amounts
		}
		if err := ValidatePrizeTables(rules, tables); err != nil {
			return nil, err
		}
		opts = append(opts, WithPrizeTables(tables))
	}

	if s.RedisAddr != "" {
		app.Rdb = setupRedis(s)
		opts = append(opts, WithLocker(store.NewRedisLocker(app.Rdb, 10*time.Second)))
	}

	var st store.Store
	switch s.Store {
	case "postgres":
		if app.Db, err = setupDb(s.DbDsn); err != nil {
			return nil, err
		}
		st = store.NewGormStore(app.Db)
	case "mongo":
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		app.Mdb, err = store.ConnectMongo(ctx, s.MongoUri)
		cancel()
		if err != nil {
			return nil, fmt.Errorf("connect mongo: %w", err)
		}
		st = store.NewMongoStore(app.Mdb.Database(s.MongoDatabase))
	case "memory", "":
		st = store.NewMemoryStore()
		log.Warn("Using the in-memory store, records are lost on restart")
	default:
		return nil, fmt.Errorf("unknown store %q", s.Store)
	}

	switch s.Queue {
	case "asynq":
		if s.RedisAddr == "" {
			return nil, errors.New("queue asynq needs redis_addr")
		}
		app.Aqc = setupAsynqClient(s)
		opts = append(opts, WithPublisher(AsynqPublisher{Client: app.Aqc}))
	default:
		app.Pool = worker.NewPool(s.WorkerSpeed, s.WorkerQueue)
		var sink HistorySink = LogHistory{Log: log}
		if app.Db != nil {
			sink = GormHistory{Db: app.Db}
		}
		opts = append(opts, WithPublisher(PoolPublisher{Pool: app.Pool, Sink: sink, Log: log}))
	}

	if len(s.TaskChats) > 0 {
		if app.Bot, err = telegram.NewBot(s.BotToken); err != nil {
			return nil, fmt.Errorf("telegram bot: %w", err)
		}
		opts = append(opts, WithTaskChecker(telegram.NewMembershipChecker(app.Bot, s.TaskChats, s.TelegramTimeout)))
	}

	app.Service = NewService(verifier, rules, st, opts...)
	return app, nil
}

// Close releases connections and drains the history pool.
func (a *App) Close(ctx context.Context) {
	if a.Pool != nil {
		_ = a.Pool.Close(ctx)
	}
	if a.Aqc != nil {
		_ = a.Aqc.Close()
	}
	if a.Mdb != nil {
		_ = a.Mdb.Disconnect(ctx)
	}
	if a.Rdb != nil {
		_ = a.Rdb.Close()
	}
	if a.Db != nil {
		if db, err := a.Db.DB(); err == nil {
			_ = db.Close()
		}
	}
}

func InitWorker(s Settings) (*AppWorker, error) {
	if s.RedisAddr == "" {
		return nil, errors.New("the history worker needs redis_addr")
	}
	db, err := setupDb(s.DbDsn)
	if err != nil {
		return nil, err
	}
	return &AppWorker{
		Db:  db,
		Aqs: setupAsynqServer(s, QueueHistory),
	}, nil
}

func setupRedis(s Settings) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     s.RedisAddr,
		Password: s.RedisPassword,
		DB:       0,
	})
}

func setupDb(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to the db: %w", err)
	}
	err = db.AutoMigrate(
		&store.RewardRecord{},
		&RewardTx{},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return db, nil
}

func setupAsynqClient(s Settings) *asynq.Client {
	return asynq.NewClient(asynq.RedisClientOpt{
		Addr:     s.RedisAddr,
		Password: s.RedisPassword,
	})
}

func setupAsynqServer(s Settings, queue string) *asynq.Server {
	return asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:     s.RedisAddr,
			Password: s.RedisPassword,
		},
		asynq.Config{
			Concurrency: s.WorkerSpeed,
			Queues: map[string]int{
				queue:     6,
				"default": 3,
			},
		},
	)
}
