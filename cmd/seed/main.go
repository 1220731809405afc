package main

import (
	"context"
	"fmt"
	"log"

	"go.uber.org/zap"

	"github.com/spec-kit/support-chat/internal/auth"
	"github.com/spec-kit/support-chat/internal/config"
	"github.com/spec-kit/support-chat/internal/domain"
	"github.com/spec-kit/support-chat/internal/observability"
	"github.com/spec-kit/support-chat/internal/persistence"
	"github.com/spec-kit/support-chat/internal/repository"
)

type seedUser struct {
	username string
	role     domain.Role
}

var seedUsers = []seedUser{
	{username: "supervisor", role: domain.RoleSupervisor},
	{username: "agent1", role: domain.RoleAgent},
	{username: "agent2", role: domain.RoleAgent},
	{username: "customer1", role: domain.RoleCustomer},
	{username: "customer2", role: domain.RoleCustomer},
	{username: "customer3", role: domain.RoleCustomer},
}

const seedPassword = "password123"

// seed creates demo accounts in Postgres and prints an access token for each.
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx := context.Background()
	if cfg.Postgres.DSN == "" {
		logger.Fatal("POSTGRES_DSN is required to seed users")
	}
	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	if err := persistence.RunMigrations(ctx, pg.PoolHandle(), logger); err != nil {
		logger.Fatal("failed to run migrations", zap.Error(err))
	}

	users := repository.NewUserRepository(pg.PoolHandle())
	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTLMinutes)

	for _, su := range seedUsers {
		hash, err := auth.HashPassword(seedPassword, cfg.Auth.BcryptCost)
		if err != nil {
			logger.Fatal("hash password", zap.Error(err))
		}
		user := &domain.User{
			Username:     su.username,
			Email:        su.username + "@example.com",
			PasswordHash: hash,
			Role:         su.role,
		}
		if err := users.Create(ctx, user); err != nil {
			logger.Fatal("create user", zap.String("username", su.username), zap.Error(err))
		}
		token, expiresAt, err := tokens.GenerateToken(user.ID)
		if err != nil {
			logger.Fatal("sign token", zap.String("username", su.username), zap.Error(err))
		}
		fmt.Printf("%-10s %-10s %s (expires %s)\n", su.role, su.username, token, expiresAt.Format("2006-01-02 15:04"))
	}
}
