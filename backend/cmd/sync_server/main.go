package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"github.com/IBM/sarama"
	"github.com/gin-gonic/gin"
	_ "github.com/go-sql-driver/mysql"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/viper"

	"syncServer/backend/internal/cache"
	"syncServer/backend/internal/engine"
	"syncServer/backend/internal/httpapi/handlers"
	"syncServer/backend/internal/httpapi/middleware"
	"syncServer/backend/internal/store"
	"syncServer/backend/internal/ws"
)

type SyncConfig struct {
	Running struct {
		Port int `mapstructure:"Port"`
	} `mapstructure:"Running"`
	Storage struct {
		// "mysql" 或 "memory"（memory 仅供本地联调，单进程）
		Backend string `mapstructure:"backend"`
	} `mapstructure:"Storage"`
	Mysql struct {
		DSN string `mapstructure:"dsn"`
	} `mapstructure:"Mysql"`
	Redis struct {
		Addr     string `mapstructure:"addr"`
		Password string `mapstructure:"password"`
	} `mapstructure:"Redis"`
	Kafka struct {
		Brokers []string `mapstructure:"brokers"`
		Topic   string   `mapstructure:"topic"`
	} `mapstructure:"Kafka"`
}

func initConfig() (*SyncConfig, error) {
	cfg := &SyncConfig{}
	v := viper.New()
	v.SetConfigName("syncConfig")
	v.SetConfigType("yaml")
	// 兼容从项目根目录或 backend 目录启动
	v.AddConfigPath("./backend/config")
	v.AddConfigPath("./config")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func main() {
	cfg, err := initConfig()
	if err != nil {
		log.Fatalf("init config failed: %v", err)
	}
	log.Printf("config: %+v", cfg)

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
	})
	if err = rdb.Ping(context.Background()).Err(); err != nil {
		log.Fatalf("Failed to connect to redis: %v", err)
	}
	defer rdb.Close()

	// === 初始化 Kafka Producer ===
	kafkaCfg := sarama.NewConfig()
	// SyncProducer 必须开启 Return.Successes
	kafkaCfg.Producer.Return.Successes = true
	kafkaCfg.Producer.RequiredAcks = sarama.WaitForLocal
	producer, err := sarama.NewSyncProducer(cfg.Kafka.Brokers, kafkaCfg)
	if err != nil {
		log.Fatalf("Failed to connect kafka: %v", err)
	}
	defer producer.Close()

	// === 存储后端 ===
	var backend engine.Store
	switch cfg.Storage.Backend {
	case "memory":
		backend = store.NewMemoryStore()
	default:
		// 建表建索引失败是致命错误（schema 不对后面全是错的）
		gormDB, err := store.InitMySQL(cfg.Mysql.DSN)
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		if err := store.Migrate(gormDB); err != nil {
			log.Fatalf("Failed to migrate schema: %v", err)
		}
		db, err := sql.Open("mysql", cfg.Mysql.DSN)
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		defer db.Close()
		backend = store.NewMySQLStore(db)
	}

	watcherCache := cache.NewRedisWatchers(rdb)
	hub := ws.NewHub(watcherCache)

	kafkaSem := engine.NewSemaphoreControl()
	wsSem := engine.NewSemaphoreControl()

	// Kafka 本地队列 + worker 重试发送
	kafkaDispatcher := engine.NewKafkaDispatcher(
		producer,
		cfg.Kafka.Topic,
		kafkaSem,
		engine.KafkaDispatcherOptions{
			QueueSize:   10_000,
			Workers:     4,
			MaxRetry:    3,
			BaseBackoff: 50 * time.Millisecond,
			MaxBackoff:  1 * time.Second,
		},
	)

	svc := engine.NewSyncService(backend)
	// fed 监听器：本实例 ws 广播 + kafka 同步流
	svc.ListenForFed(hub)
	svc.ListenForFed(kafkaDispatcher)

	manager := ws.NewManager(hub, svc, wsSem)
	handler := handlers.NewHandler(svc, watcherCache)

	r := gin.New()
	// 中间件
	r.Use(gin.Logger())
	r.Use(gin.Recovery())

	// 路由
	syncit := r.Group("/syncit")
	// actor（modifier）从 Authorization 或 ?actor= 提取，写入 context
	syncit.Use(middleware.ActorMiddleware())
	handler.Register(syncit)
	syncit.GET("/ws", manager.WebSocketConnect)

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"message": "ok",
		})
	})

	port := cfg.Running.Port
	_ = r.Run(fmt.Sprintf(":%d", port))
}
