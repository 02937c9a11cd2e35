package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/metapresshq/metapress/internal/blogservice"
	"github.com/metapresshq/metapress/internal/commentservice"
	"github.com/metapresshq/metapress/internal/common"
	"github.com/metapresshq/metapress/internal/feedservice"
	"github.com/metapresshq/metapress/internal/mailservice"
	"github.com/metapresshq/metapress/internal/userservice"
)

type application struct {
	config         *Config
	logger         *slog.Logger
	cache          *common.Cache
	codec          *common.IDCodec
	broker         *common.MessageBroker
	blogService    *blogservice.BlogService
	commentService *commentservice.CommentService
	userService    *userservice.UserService
	feedService    *feedservice.FeedService
	mailService    *mailservice.MailService
}

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	cfg, err := loadConfig(".env")
	if err != nil {
		logger.Error("failed to load configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	db, err := common.NewDB(common.DBConfig{
		Host:         cfg.DBHost,
		Port:         cfg.DBPort,
		User:         cfg.DBUser,
		Password:     cfg.DBPassword,
		Name:         cfg.DBName,
		MaxOpenConns: 10,
		MaxIdleConns: 5,
		MaxIdleTime:  15 * time.Minute,
	})
	if err != nil {
		logger.Error("failed to connect to the database", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer db.Close()

	cache, err := common.NewCache(fmt.Sprintf("%s:%s", cfg.RedisHost, cfg.RedisPort), cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		logger.Error("failed to connect to the cache", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer cache.Close()

	URI := fmt.Sprintf("amqp://%s:%s@%s:%s/", cfg.MQUser, cfg.MQPassword, cfg.MQHost, cfg.MQPort)
	broker, err := common.NewMessageBroker(URI)
	if err != nil {
		logger.Error("failed to connect to the message broker", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer broker.Close()

	err = common.SetupMailExchange(broker)
	if err != nil {
		logger.Error("failed to setup the mail exchange", slog.String("error", err.Error()))
		os.Exit(1)
	}

	assets, err := common.NewCloudinaryStore(cfg.CloudinaryName, cfg.CloudinaryKey, cfg.CloudinarySecret)
	if err != nil {
		logger.Error("failed to initialize the asset store", slog.String("error", err.Error()))
		os.Exit(1)
	}

	codec, err := common.NewIDCodec(cfg.IDSalt)
	if err != nil {
		logger.Error("failed to initialize the id codec", slog.String("error", err.Error()))
		os.Exit(1)
	}

	blogService := blogservice.NewBlogService(db, cache, assets, codec, logger)

	app := &application{
		config:         cfg,
		logger:         logger,
		cache:          cache,
		codec:          codec,
		broker:         broker,
		blogService:    blogService,
		commentService: commentservice.NewCommentService(db, cache, codec, logger),
		userService:    userservice.NewUserService(db, cache, codec, blogService, logger),
		feedService:    feedservice.NewFeedService(blogService, cache, logger),
		mailService:    mailservice.NewMailService(broker, cfg.MailHost, cfg.MailUser, cfg.MailPassword, cfg.MailSender, cfg.MailPort, logger),
	}

	warmCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := app.userService.WarmUsernameFilter(warmCtx); err != nil {
		logger.Warn("failed to warm the username filter", slog.String("error", err.Error()))
	}
	cancel()

	go app.mailService.HandleContactMessages(cfg.MailRecipient)
	go app.mailService.HandleNewsletterSignups()

	err = app.serve(cfg.Port)
	if err != nil {
		logger.Error("failed to start the server", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
