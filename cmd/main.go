package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"

	"github.com/Dosada05/field-booking-system/auth"
	"github.com/Dosada05/field-booking-system/config"
	"github.com/Dosada05/field-booking-system/db"
	"github.com/Dosada05/field-booking-system/events"
	"github.com/Dosada05/field-booking-system/limits"
	"github.com/Dosada05/field-booking-system/models"
	"github.com/Dosada05/field-booking-system/repositories"
	"github.com/Dosada05/field-booking-system/scheduler"
	"github.com/Dosada05/field-booking-system/services"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Доступ контролируется токеном, не Origin.
		return true
	},
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("Configuration loaded")

	database, err := db.Connect(cfg.DatabaseURL, logger, db.Options{
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: cfg.DBConnMaxLifetime,
	})
	if err != nil {
		logger.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer database.Close()
	logger.Info("Database connection established")

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		logger.Error("failed to connect to redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer redisClient.Close()
	logger.Info("Redis connection established")

	// Репозитории
	slotRepo := repositories.NewPostgresSlotRepository(database)
	reservationRepo := repositories.NewPostgresReservationRepository(database)
	matchRepo := repositories.NewPostgresMatchRepository(database)
	rosterRepo := repositories.NewPostgresRosterRepository(database)
	userRepo := repositories.NewPostgresUserRepository(database)
	teamRepo := repositories.NewPostgresTeamRepository(database)
	fieldRepo := repositories.NewPostgresFieldRepository(database)
	txRunner := repositories.NewSQLTxRunner(database)
	logger.Info("Repositories initialized")

	// Шина событий: лог-подписчик и websocket-хаб комнат матчей
	hub := events.NewHub(logger)
	bus := events.NewBus(logger, []events.Subscriber{
		events.NewLogSubscriber(logger),
		hub,
	})

	limiter := limits.NewRedisDailyLimiter(redisClient, logger)
	tokens := auth.NewTokenManager(cfg.JWTSecretKey, 24*time.Hour)

	// Сервисы
	slotService := services.NewSlotService(slotRepo)
	reservationService := services.NewReservationService(
		reservationRepo, slotRepo, txRunner, slotService, limiter, bus, logger,
		services.ReservationConfig{
			ConfirmationWindow: cfg.ConfirmationWindow,
			DailyCap:           cfg.DailyReservationCap,
		},
	)
	rosterService := services.NewRosterService(rosterRepo, reservationRepo, matchRepo)
	matchService := services.NewMatchService(
		matchRepo, slotRepo, fieldRepo, rosterRepo, userRepo, teamRepo,
		slotService, bus, logger,
	)
	matchmakingService := services.NewMatchmakingService(
		matchRepo, slotRepo, fieldRepo, rosterRepo, userRepo, logger,
	)
	logger.Info("Services initialized")

	rootCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go hub.Run()
	go bus.Run(rootCtx)

	// Планировщик фоновых задач жизненного цикла
	sched := scheduler.New(reservationService, slotService, matchService, matchRepo,
		scheduler.Intervals{
			ReservationExpiry: cfg.ReservationExpiryInterval,
			SlotPruning:       cfg.SlotPruningInterval,
			MatchAutoCancel:   cfg.MatchAutoCancelInterval,
			MatchAutoConfirm:  cfg.MatchAutoConfirmInterval,
			MatchRebalance:    cfg.MatchRebalanceInterval,
		}, logger)
	go func() {
		if err := sched.Run(rootCtx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("scheduler stopped", slog.Any("error", err))
		}
	}()

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := database.PingContext(r.Context()); err != nil {
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	// Живые события матча: клиент подключается к комнате и получает всё,
	// что публикует ядро (вход/выход игроков, подтверждение, счёт).
	router.Get("/ws/matches/{matchID}", func(w http.ResponseWriter, r *http.Request) {
		if _, err := claimsFromRequest(tokens, r); err != nil {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		matchID, err := strconv.Atoi(chi.URLParam(r, "matchID"))
		if err != nil || matchID <= 0 {
			http.Error(w, "invalid match id", http.StatusBadRequest)
			return
		}
		if _, err := matchService.GetByID(r.Context(), matchID); err != nil {
			http.Error(w, "match not found", http.StatusNotFound)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Error("websocket upgrade failed", slog.Any("error", err))
			return
		}
		hub.Attach(conn, matchID)
	})

	// Рекомендации по истории подключившегося пользователя.
	router.Get("/matches/suggestions", func(w http.ResponseWriter, r *http.Request) {
		claims, err := claimsFromRequest(tokens, r)
		if err != nil {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		recs, err := matchmakingService.Suggestions(r.Context(), claims.UserID, 0)
		if err != nil {
			http.Error(w, "failed to build suggestions", http.StatusInternalServerError)
			return
		}
		writeJSON(w, recs, logger)
	})

	// Поиск брони по человекочитаемому коду (RES-XXXXXXXX).
	router.Get("/reservations/{code}", func(w http.ResponseWriter, r *http.Request) {
		claims, err := claimsFromRequest(tokens, r)
		if err != nil {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		reservation, err := reservationService.GetByReference(r.Context(), chi.URLParam(r, "code"))
		if err != nil {
			if errors.Is(err, services.ErrReservationNotFound) {
				http.Error(w, "reservation not found", http.StatusNotFound)
				return
			}
			http.Error(w, "failed to load reservation", http.StatusInternalServerError)
			return
		}
		actor := &models.User{ID: claims.UserID, Role: claims.Role}
		if !services.CanAccessReservation(actor, reservation) {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		writeJSON(w, reservation, logger)
	})

	// Состав матча.
	router.Get("/matches/{matchID}/roster", func(w http.ResponseWriter, r *http.Request) {
		if _, err := claimsFromRequest(tokens, r); err != nil {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		matchID, err := strconv.Atoi(chi.URLParam(r, "matchID"))
		if err != nil || matchID <= 0 {
			http.Error(w, "invalid match id", http.StatusBadRequest)
			return
		}
		entries, err := rosterService.ListMembers(r.Context(), services.MatchParent(matchID))
		if err != nil {
			if errors.Is(err, services.ErrMatchNotFound) {
				http.Error(w, "match not found", http.StatusNotFound)
				return
			}
			http.Error(w, "failed to list roster", http.StatusInternalServerError)
			return
		}
		writeJSON(w, entries, logger)
	})

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:      router,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
		ErrorLog:     slog.NewLogLogger(logger.Handler(), slog.LevelError),
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("starting server", slog.String("address", server.Addr))
		serverErrors <- server.ListenAndServe()
	}()

	// Ожидание сигнала завершения
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		} else {
			logger.Info("server stopped gracefully")
		}
	case sig := <-quit:
		logger.Info("shutdown signal received", slog.String("signal", sig.String()))
		cancel()

		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancelShutdown()

		logger.Info("shutting down server", slog.Duration("timeout", 15*time.Second))
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("graceful shutdown failed", slog.Any("error", err))
			if closeErr := server.Close(); closeErr != nil {
				logger.Error("failed to force close server", slog.Any("error", closeErr))
			}
			os.Exit(1)
		}
	}

	logger.Info("application stopped")
}

func claimsFromRequest(tokens *auth.TokenManager, r *http.Request) (*auth.Claims, error) {
	header := r.Header.Get("Authorization")
	tokenString := strings.TrimPrefix(header, "Bearer ")
	if tokenString == "" || tokenString == header {
		// Для websocket-клиентов из браузера заголовок недоступен.
		tokenString = r.URL.Query().Get("token")
	}
	if tokenString == "" {
		return nil, auth.ErrInvalidToken
	}
	return tokens.Parse(tokenString)
}

func writeJSON(w http.ResponseWriter, payload any, logger *slog.Logger) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Error("failed to encode response", slog.Any("error", err))
	}
}
