// Command clientctl registers service clients allowed to call the exchange
// endpoint when client authentication is enforced.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"

	"go.uber.org/zap"

	"github.com/engify/obo-gateway/internal/auth"
	"github.com/engify/obo-gateway/internal/config"
	"github.com/engify/obo-gateway/internal/domain"
	"github.com/engify/obo-gateway/internal/observability"
	"github.com/engify/obo-gateway/internal/persistence"
	"github.com/engify/obo-gateway/internal/repository"
)

func main() {
	clientID := flag.String("client-id", "", "client identifier used in client_id")
	name := flag.String("name", "", "human-readable client name")
	secret := flag.String("secret", "", "client secret, stored bcrypt-hashed")
	flag.Parse()

	if *clientID == "" || *secret == "" {
		log.Fatal("both -client-id and -secret are required")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if cfg.Postgres.DSN == "" {
		log.Fatal("POSTGRES_DSN is required to register clients")
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx := context.Background()
	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	hash, err := auth.HashSecret(*secret, cfg.Auth.BcryptCost)
	if err != nil {
		logger.Fatal("failed to hash secret", zap.Error(err))
	}

	client := &domain.ServiceClient{
		ClientID:   *clientID,
		Name:       *name,
		SecretHash: hash,
		Active:     true,
	}
	if err := repository.NewClientRepository(pg.PoolHandle()).Create(ctx, client); err != nil {
		logger.Fatal("failed to register client", zap.Error(err))
	}

	fmt.Printf("registered client %s (id %s)\n", client.ClientID, client.ID)
}
