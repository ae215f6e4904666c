package main

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/azamatbayev/auth-service/internal/adapter"
	"github.com/azamatbayev/auth-service/internal/auth"
	"github.com/azamatbayev/auth-service/internal/config"
	"github.com/azamatbayev/auth-service/internal/mailer"
	"github.com/azamatbayev/auth-service/internal/repository"
	"github.com/azamatbayev/auth-service/internal/usecase"
	"github.com/go-redis/redis/v8"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

func main() {
	// Initialize logger
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("can't initialize zap logger: %v", err)
	}
	defer logger.Sync()

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}

	// Connect to MongoDB
	mongoClient, err := mongo.Connect(context.Background(), options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		logger.Fatal("Failed to connect to MongoDB", zap.Error(err))
	}
	defer func() {
		if err = mongoClient.Disconnect(context.Background()); err != nil {
			logger.Error("Failed to disconnect MongoDB", zap.Error(err))
		}
	}()
	db := mongoClient.Database(cfg.MongoDatabase)

	// Connect to Redis
	redisClient := redis.NewClient(&redis.Options{
		Addr: cfg.RedisAddr,
	})
	if _, err = redisClient.Ping(context.Background()).Result(); err != nil {
		logger.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer redisClient.Close()

	// Select mail driver
	var mail mailer.Mailer
	switch cfg.MailerDriver {
	case "mailersend":
		mail = mailer.NewMailerSendService(cfg.MailerSendAPIKey, cfg.SenderEmail, cfg.SenderName, logger)
	default:
		mail = mailer.NewSMTPMailerService(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword, cfg.SenderEmail, cfg.SenderName, logger)
	}

	userRepo := repository.NewUserRepository(db, redisClient, logger)
	tokens := auth.NewJWT(cfg.JWTSecret, cfg.TokenTTL)
	authUsecase := usecase.NewAuthUsecase(userRepo, mail, tokens, cfg.SenderName)
	authHandler := adapter.NewAuthHandler(authUsecase, logger, cfg.CookieSecure, int(cfg.TokenTTL.Seconds()))

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: adapter.NewRouter(authHandler),
	}

	logger.Info("Starting Auth Service", zap.Int("port", cfg.Port))
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatal("Failed to serve HTTP", zap.Error(err))
	}
}
