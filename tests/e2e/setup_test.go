//go:build e2e
// +build e2e

// Package e2e runs the full service against real PostgreSQL and RabbitMQ
// containers: registration, login, direct messaging over WebSocket, and
// conversation history.
package e2e

import (
	"bufio"
	"context"
	"database/sql"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"testing"
	"time"

	"pairchat/internal/handler"
	"pairchat/internal/messaging"
	"pairchat/internal/middleware"
	"pairchat/internal/repository/postgres"
	"pairchat/internal/service"
	"pairchat/internal/websocket"

	"github.com/go-chi/chi/v5"
	_ "github.com/lib/pq"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

var (
	testServer *http.Server
	testHub    *websocket.Hub
	testDB     *sql.DB
	backplane  *messaging.Backplane
	baseURL    string
	wsURL      string
)

// TestMain sets up the E2E test environment
func TestMain(m *testing.M) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	cleanup, err := setupTestEnvironment(ctx)
	if err != nil {
		log.Fatalf("failed to setup test environment: %v", err)
	}

	code := m.Run()

	cleanup()
	os.Exit(code)
}

// setupTestEnvironment starts PostgreSQL, RabbitMQ, and the chat server
func setupTestEnvironment(ctx context.Context) (func(), error) {
	var cleanups []func()
	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}

	pgCleanup, connStr, err := startPostgres(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to start PostgreSQL: %w", err)
	}
	cleanups = append(cleanups, pgCleanup)

	testDB, err = sql.Open("postgres", connStr)
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	cleanups = append(cleanups, func() { testDB.Close() })

	if err := runMigrations(testDB); err != nil {
		cleanup()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	mqCleanup, mqURL, err := startRabbitMQ(ctx)
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("failed to start RabbitMQ: %w", err)
	}
	cleanups = append(cleanups, mqCleanup)

	mqCtx, mqCancel := context.WithTimeout(ctx, 30*time.Second)
	backplane, err = messaging.NewBackplaneWithRetry(mqCtx, mqURL)
	mqCancel()
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	cleanups = append(cleanups, func() { backplane.Close() })

	serverCleanup, err := setupChatServer(testDB, backplane)
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("failed to setup chat server: %w", err)
	}
	cleanups = append(cleanups, serverCleanup)

	return cleanup, nil
}

// streamContainerLogs forwards container logs to stdout with a prefix
func streamContainerLogs(ctx context.Context, container testcontainers.Container, prefix string) {
	go func() {
		reader, err := container.Logs(ctx)
		if err != nil {
			log.Printf("[%s] failed to get logs: %v", prefix, err)
			return
		}
		defer reader.Close()

		scanner := bufio.NewScanner(reader)
		for scanner.Scan() {
			log.Printf("[%s] %s", prefix, scanner.Text())
		}
		if err := scanner.Err(); err != nil && err != io.EOF {
			log.Printf("[%s] log reader error: %v", prefix, err)
		}
	}()
}

func startPostgres(ctx context.Context) (func(), string, error) {
	req := testcontainers.ContainerRequest{
		Image:        "postgres:15-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "testdb",
		},
		WaitingFor: wait.ForAll(
			wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
			wait.ForListeningPort("5432/tcp"),
		).WithDeadline(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return nil, "", err
	}
	streamContainerLogs(ctx, container, "PostgreSQL")

	host, err := container.Host(ctx)
	if err != nil {
		container.Terminate(ctx)
		return nil, "", err
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		container.Terminate(ctx)
		return nil, "", err
	}

	connStr := fmt.Sprintf("postgres://test:test@%s:%s/testdb?sslmode=disable", host, port.Port())
	time.Sleep(2 * time.Second)

	return func() { container.Terminate(ctx) }, connStr, nil
}

func startRabbitMQ(ctx context.Context) (func(), string, error) {
	req := testcontainers.ContainerRequest{
		Image:        "rabbitmq:3.12-management-alpine",
		ExposedPorts: []string{"5672/tcp"},
		Env: map[string]string{
			"RABBITMQ_DEFAULT_USER": "guest",
			"RABBITMQ_DEFAULT_PASS": "guest",
		},
		WaitingFor: wait.ForAll(
			wait.ForLog("Server startup complete"),
			wait.ForListeningPort("5672/tcp"),
		).WithDeadline(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return nil, "", err
	}
	streamContainerLogs(ctx, container, "RabbitMQ")

	host, err := container.Host(ctx)
	if err != nil {
		container.Terminate(ctx)
		return nil, "", err
	}
	port, err := container.MappedPort(ctx, "5672")
	if err != nil {
		container.Terminate(ctx)
		return nil, "", err
	}

	url := fmt.Sprintf("amqp://guest:guest@%s:%s/", host, port.Port())
	time.Sleep(2 * time.Second)

	return func() { container.Terminate(ctx) }, url, nil
}

// runMigrations creates the database schema
func runMigrations(db *sql.DB) error {
	schema := `
		CREATE EXTENSION IF NOT EXISTS "pgcrypto";

		CREATE TABLE IF NOT EXISTS users (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			username VARCHAR(50) UNIQUE NOT NULL CHECK (length(username) >= 3),
			email VARCHAR(255) UNIQUE NOT NULL CHECK (email ~* '^[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}$'),
			password_hash VARCHAR(255) NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP NOT NULL,
			last_login_at TIMESTAMP
		);

		CREATE TABLE IF NOT EXISTS sessions (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			token VARCHAR(255) UNIQUE NOT NULL,
			expires_at TIMESTAMP NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP NOT NULL
		);

		CREATE TABLE IF NOT EXISTS messages (
			id BIGSERIAL PRIMARY KEY,
			room_key VARCHAR(120) NOT NULL,
			sender VARCHAR(50) NOT NULL,
			content TEXT NOT NULL CHECK (length(content) > 0),
			content_type VARCHAR(10) NOT NULL CHECK (content_type IN ('TEXT', 'IMAGE', 'VIDEO', 'LINK')),
			image_width INTEGER,
			image_height INTEGER,
			video_length INTEGER,
			video_source VARCHAR(50),
			sent_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_messages_room_sent ON messages (room_key, sent_at DESC, id DESC);
	`
	_, err := db.Exec(schema)
	return err
}

// setupChatServer wires the real service stack against the containers
func setupChatServer(db *sql.DB, backplane *messaging.Backplane) (func(), error) {
	userRepo := postgres.NewUserRepository(db)
	messageRepo := postgres.NewMessageRepository(db)
	sessionRepo, err := postgres.NewSessionRepository(db)
	if err != nil {
		return nil, fmt.Errorf("failed to create session repository: %w", err)
	}

	testHub = websocket.NewHub()

	authService := service.NewAuthService(userRepo, sessionRepo)
	dispatch := service.NewDispatchService(messageRepo, testHub, backplane)

	consumerCtx, consumerCancel := context.WithCancel(context.Background())
	relayConsumer := messaging.NewRelayConsumer(backplane, testHub)
	if err := relayConsumer.Start(consumerCtx); err != nil {
		consumerCancel()
		return nil, fmt.Errorf("failed to start relay consumer: %w", err)
	}

	authHandler := handler.NewAuthHandler(authService)
	historyHandler := handler.NewHistoryHandler(dispatch, authService)
	wsHandler := handler.NewWebSocketHandler(testHub, dispatch, authService, []string{"*"})

	r := chi.NewRouter()
	r.Use(middleware.CORS([]string{"*"}))

	r.Get("/health", handler.Health)
	r.Get("/health/ready", handler.Ready(db, backplane))

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/auth/register", authHandler.Register)
		r.Post("/auth/login", authHandler.Login)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(sessionRepo))
			r.Get("/auth/me", authHandler.Me)
			r.Post("/auth/logout", authHandler.Logout)
			r.Get("/messages/{peer}", historyHandler.GetMessages)
		})
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.Auth(sessionRepo))
		r.Get("/ws/chat", wsHandler.HandleConnection)
	})

	testPort := 18080
	baseURL = fmt.Sprintf("http://localhost:%d", testPort)
	wsURL = fmt.Sprintf("ws://localhost:%d", testPort)

	testServer = &http.Server{
		Addr:    fmt.Sprintf(":%d", testPort),
		Handler: r,
	}

	go func() {
		if err := testServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("server error: %v", err)
		}
	}()

	// Wait for the server to come up
	maxRetries := 20
	for i := 0; i < maxRetries; i++ {
		resp, err := http.Get(baseURL + "/health")
		if err == nil && resp.StatusCode == http.StatusOK {
			resp.Body.Close()
			break
		}
		if resp != nil {
			resp.Body.Close()
		}
		if i == maxRetries-1 {
			return nil, fmt.Errorf("server did not start in time after %d attempts", maxRetries)
		}
		time.Sleep(500 * time.Millisecond)
	}

	cleanup := func() {
		consumerCancel()
		testHub.Shutdown()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		testServer.Shutdown(ctx)
	}

	return cleanup, nil
}
