package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	ratelimit "github.com/JGLTechnologies/gin-rate-limit"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"

	"tbot/internal/api"
	"tbot/internal/api/middleware"
	"tbot/internal/rewards"
)

var App *rewards.App
var AppWorker *rewards.AppWorker

func keyFunc(c *gin.Context) string {
	return c.ClientIP()
}

func errorHandler(c *gin.Context, info ratelimit.Info) {
	c.String(429, "Too many requests. Try again in "+time.Until(info.ResetTime).String())
}

// NewRouter mounts the mini-app endpoints on a gin engine.
func NewRouter(app *rewards.App, cfg Config) *gin.Engine {
	router := gin.Default()
	router.RedirectTrailingSlash = false
	router.RedirectFixedPath = false

	limit := cfg.RateLimit
	if limit == 0 {
		limit = 100
	}
	var store ratelimit.Store
	if app.Rdb != nil {
		store = ratelimit.RedisStore(&ratelimit.RedisOptions{
			RedisClient: app.Rdb,
			Rate:        time.Second,
			Limit:       limit,
		})
	} else {
		store = ratelimit.InMemoryStore(&ratelimit.InMemoryOptions{
			Rate:  time.Second,
			Limit: limit,
		})
	}
	mw := ratelimit.RateLimiter(store, &ratelimit.Options{
		ErrorHandler: errorHandler,
		KeyFunc:      keyFunc,
	})

	origins := cfg.AllowOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	router.Use(middleware.RequestID())
	router.Use(cors.New(cors.Config{
		AllowOrigins:  origins,
		AllowHeaders:  []string{"Origin", "Content-Type", "X-Requested-With", middleware.RequestIDHeader},
		ExposeHeaders: []string{"Content-Length", middleware.RequestIDHeader},
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		MaxAge:        24 * time.Hour,
	}))
	router.Use(func(c *gin.Context) {
		c.Set("app", app)
	})
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.POST("/tbot_handler", mw, api.TbotHandler)
	router.POST("/.netlify/functions/tbot_handler", mw, api.TbotHandler)
	return router
}

func ApiInit() { // Run Api Server
	ConfigLoad()
	var err error
	App, err = rewards.Init(GlobalConfig.Settings(), &Logger)
	if err != nil {
		Logger.Error(fmt.Sprintf("Failed to init rewards backend: %v", err))
		log.Fatal("Failed to init rewards backend: ", err)
	}

	srv := &http.Server{
		Addr:    ":" + GlobalConfig.Port,
		Handler: NewRouter(App, GlobalConfig),
	}
	go func() {
		Logger.Info(fmt.Sprintf("[ Rewards backend is up and listening to :%s ]", GlobalConfig.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Failed to run rewards backend on :%s: %v", GlobalConfig.Port, err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	Logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		Logger.Error(fmt.Sprintf("Server forced to shutdown: %v", err))
	}
	App.Close(ctx)
}

func WorkerInit() { // Run history worker
	ConfigLoad()
	var err error
	AppWorker, err = rewards.InitWorker(GlobalConfig.Settings())
	if err != nil {
		log.Fatal("Failed to init history worker: ", err)
	}
	mux := asynq.NewServeMux()
	mux.Handle(rewards.TypeRewardHistory, rewards.HandleRewardHistory(rewards.GormHistory{Db: AppWorker.Db}))
	Logger.Info("[ History worker is up ]")
	if err := AppWorker.Aqs.Run(mux); err != nil {
		log.Fatal("Failed to run history worker: ", err)
	}
}
