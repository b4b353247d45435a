package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/drone-bridge/drone-bridge-server/internal/config"
	"github.com/drone-bridge/drone-bridge-server/internal/models"
	"github.com/drone-bridge/drone-bridge-server/internal/storage"
	"github.com/drone-bridge/drone-bridge-server/pkg/crypto"
)

const usage = `Usage: bridge-admin [-config FILE] COMMAND ARGS

Commands:
  create-user EMAIL USERNAME PASSWORD   create an admin console user
  create-credential NAME SECRET         provision a bridge credential
  list-credentials                      list provisioned credentials
`

func main() {
	var configFile string
	flag.StringVar(&configFile, "config", "config/bridge-server.yml", "path to configuration file")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load(configFile)
	if err != nil {
		log.Fatal().Err(err).Str("file", configFile).Msg("Failed to load configuration")
	}

	store, err := storage.NewPostgresStore(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	switch args[0] {
	case "create-user":
		if len(args) != 4 {
			flag.Usage()
			os.Exit(2)
		}
		createUser(ctx, store, args[1], args[2], args[3])

	case "create-credential":
		if len(args) != 3 {
			flag.Usage()
			os.Exit(2)
		}
		createCredential(ctx, store, args[1], args[2])

	case "list-credentials":
		listCredentials(ctx, store)

	default:
		flag.Usage()
		os.Exit(2)
	}
}

func createUser(ctx context.Context, store storage.Store, email, username, password string) {
	hash, err := crypto.HashPassword(password)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to hash password")
	}

	user := &models.User{
		Email:        strings.ToLower(email),
		Username:     username,
		PasswordHash: hash,
		IsAdmin:      true,
		IsActive:     true,
	}

	if err := store.CreateUser(ctx, user); err != nil {
		log.Fatal().Err(err).Msg("Failed to create user")
	}

	fmt.Printf("Created user %s (%s)\n", user.Email, user.ID)
}

func createCredential(ctx context.Context, store storage.Store, name, secret string) {
	cred := &models.Credential{
		Name:       name,
		SecretHash: crypto.SecretHash(secret),
		IsActive:   true,
	}

	if err := store.CreateCredential(ctx, cred); err != nil {
		log.Fatal().Err(err).Msg("Failed to create credential")
	}

	fmt.Printf("Created credential %s (%s)\n", cred.Name, cred.ID)
}

func listCredentials(ctx context.Context, store storage.Store) {
	creds, err := store.ListCredentials(ctx, false)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to list credentials")
	}

	for _, c := range creds {
		status := "active"
		if !c.IsActive {
			status = "inactive"
		}
		fmt.Printf("%s  %-20s %s\n", c.ID, c.Name, status)
	}
}
