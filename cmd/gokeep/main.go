package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sukryu/GoKeep/pkg/application"
	"github.com/sukryu/GoKeep/pkg/domain"
	"github.com/sukryu/GoKeep/pkg/utils"
)

func main() {
	var (
		engine     string
		directory  string
		configPath string
	)
	flag.StringVar(&engine, "engine", "btree", "Storage engine (btree or lsmtree)")
	flag.StringVar(&directory, "dir", "data_dir", "Data directory")
	flag.StringVar(&configPath, "config", "", "Optional YAML config file")
	flag.Parse()

	logger := utils.NewSimpleLogger()

	dbConfig := domain.DefaultDatabaseConfig()
	if configPath != "" {
		loaded, err := domain.LoadConfig(configPath)
		if err != nil {
			logger.Error(fmt.Sprintf("Failed to load config: %v", err))
			os.Exit(1)
		}
		dbConfig = loaded
	} else {
		dbConfig.Engine = domain.EngineType(engine)
		dbConfig.Directory = directory
	}

	db, err := domain.NewDatabase(dbConfig, logger)
	if err != nil {
		logger.Error(fmt.Sprintf("Failed to initialize database: %v", err))
		os.Exit(1)
	}
	defer db.Close()

	cmdHandler := application.NewCommandHandler(db, logger)
	queryHandler := application.NewQueryHandler(db, logger)

	ctx := context.Background()

	cmdHandler.ExecuteCommandAsync(ctx, &application.PutCommand{Key: "user1", Value: "Alice"})
	cmdHandler.ExecuteCommandAsync(ctx, &application.PutCommand{Key: "user2", Value: "Bob"})
	cmdHandler.Wait()

	resultChan := queryHandler.ExecuteQueryAsync(ctx, &application.GetValueQuery{Key: "user1"})
	res := <-resultChan
	if res.Err != nil {
		logger.Error(fmt.Sprintf("Failed to query user1: %v", res.Err))
	} else {
		fmt.Printf("user1: %s\n", res.Result)
	}

	if dbConfig.Engine == domain.EngineLSMTree {
		matches, err := db.FuzzyGet("user", 1)
		if err != nil {
			logger.Error(fmt.Sprintf("Fuzzy search failed: %v", err))
		} else {
			for _, e := range matches {
				fmt.Printf("fuzzy match: %s=%s\n", e.Key, e.Value)
			}
		}
	} else {
		if _, err := db.FuzzyGet("user", 1); err != nil {
			logger.Warn(fmt.Sprintf("Fuzzy search unavailable: %v", err))
		}
	}

	statusResult, err := queryHandler.ExecuteQuery(ctx, &application.GetStatusQuery{})
	if err != nil {
		logger.Error(fmt.Sprintf("Failed to query status: %v", err))
	} else {
		status := statusResult.(domain.DatabaseStatus)
		fmt.Printf("Database Status: Engine=%s, Ready=%v\n", status.Engine, status.Ready)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	logger.Info("Shutting down GoKeep...")
	cmdHandler.Wait()
	queryHandler.Wait()
}
