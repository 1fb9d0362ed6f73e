package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"github.com/joho/godotenv"

	"notary-payments/internal/config"
	"notary-payments/internal/logger"
	"notary-payments/internal/storage"
)

func main() {
	envFlag := flag.String("env", "dev", "Environment (dev, test, prod)")
	envFileFlag := flag.String("env-file", "", "Path to .env file")
	timeoutFlag := flag.Duration("timeout", 30*time.Second, "Migration timeout")
	flag.Parse()

	log := logger.NewLogger()
	defer log.Close()

	loadEnv(log, *envFlag, *envFileFlag)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("CONFIG", "Invalid configuration: "+err.Error())
	}
	if cfg.Database.Backend != "mysql" {
		log.Fatal("MIGRATE", "STORAGE_BACKEND is "+cfg.Database.Backend+", nothing to migrate")
	}

	// Migrate explicitly below rather than on connect.
	dbCfg := cfg.Database
	dbCfg.AutoMigrate = false

	store, err := storage.NewMySQLStore(dbCfg, log)
	if err != nil {
		log.Fatal("DATABASE", "Failed to connect: "+err.Error())
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), *timeoutFlag)
	defer cancel()

	if err := store.Migrate(ctx); err != nil {
		log.Fatal("MIGRATE", "Migration failed: "+err.Error())
	}
	log.LogProcess("MIGRATE", fmt.Sprintf("Schema up to date on %s:%s/%s", dbCfg.Host, dbCfg.Port, dbCfg.Database))
}

// loadEnv tries the explicit file, then .env.<env>, then .env.
func loadEnv(log *logger.Logger, env, envFile string) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err == nil {
			log.Info("ENV", "Loaded environment from "+envFile)
			return
		}
	}

	envSpecificFile := fmt.Sprintf(".env.%s", env)
	if err := godotenv.Load(envSpecificFile); err == nil {
		log.Info("ENV", "Loaded environment from "+envSpecificFile)
		return
	}

	if err := godotenv.Load(); err == nil {
		log.Info("ENV", "Loaded environment from .env")
		return
	}

	log.Warn("ENV", "No .env file found, using system environment variables")
}
