//go:build integration

package integration

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	goredis "github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/BradenHooton/loginpopup/internal/database"
	"github.com/BradenHooton/loginpopup/internal/repositories"
)

// TestDB manages a PostgreSQL testcontainer with migrations applied
type TestDB struct {
	Container  testcontainers.Container
	ConnString string
	Pool       *pgxpool.Pool
	DB         *database.DB
}

// SetupTestDatabase starts postgres, runs the embedded migrations and returns TestDB
func SetupTestDatabase(ctx context.Context) (*TestDB, error) {
	container, err := postgres.RunContainer(ctx,
		testcontainers.WithImage("postgres:16-alpine"),
		postgres.WithDatabase("loginpopup"),
		postgres.WithUsername("postgres"),
		postgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to start postgres container: %w", err)
	}

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, fmt.Errorf("failed to get connection string: %w", err)
	}

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		_ = container.Terminate(ctx)
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// Goose needs a database/sql handle; pgx's stdlib adapter shares the pool
	goose.SetLogger(log.New(nil, "", 0))
	sqlDB := stdlib.OpenDBFromPool(pool)
	defer sqlDB.Close()
	if err := database.Migrate(ctx, sqlDB, "up"); err != nil {
		pool.Close()
		_ = container.Terminate(ctx)
		return nil, err
	}

	return &TestDB{
		Container:  container,
		ConnString: connStr,
		Pool:       pool,
		DB:         database.Wrap(pool, nil),
	}, nil
}

// Teardown stops the container and closes the connection pool
func (db *TestDB) Teardown(ctx context.Context) error {
	if db.Pool != nil {
		db.Pool.Close()
	}
	if db.Container != nil {
		return db.Container.Terminate(ctx)
	}
	return nil
}

// CleanupTables truncates all tables for test isolation
func (db *TestDB) CleanupTables(ctx context.Context) error {
	tables := []string{
		"login_nonces",
		"second_factors",
		"popup_nonces",
		"login_attempts",
		"users",
	}

	for _, table := range tables {
		if _, err := db.Pool.Exec(ctx, fmt.Sprintf("TRUNCATE TABLE %s CASCADE", table)); err != nil {
			return fmt.Errorf("failed to truncate table %s: %w", table, err)
		}
	}
	return nil
}

// TestRedis manages a Redis testcontainer
type TestRedis struct {
	Container *tcredis.RedisContainer
	Client    *goredis.Client
}

// SetupTestRedis starts redis and connects a client to it
func SetupTestRedis(ctx context.Context) (*TestRedis, error) {
	container, err := tcredis.RunContainer(ctx, testcontainers.WithImage("redis:7-alpine"))
	if err != nil {
		return nil, fmt.Errorf("failed to start redis container: %w", err)
	}

	url, err := container.ConnectionString(ctx)
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, fmt.Errorf("failed to get redis url: %w", err)
	}

	client, err := repositories.NewRedisClient(ctx, url)
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, err
	}

	return &TestRedis{Container: container, Client: client}, nil
}

// Teardown closes the client and stops the container
func (r *TestRedis) Teardown(ctx context.Context) error {
	if r.Client != nil {
		_ = r.Client.Close()
	}
	if r.Container != nil {
		return r.Container.Terminate(ctx)
	}
	return nil
}
