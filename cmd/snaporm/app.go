package main

import (
	"time"

	"github.com/MarcoPoloResearchLab/snaporm/internal/config"
	"github.com/MarcoPoloResearchLab/snaporm/internal/database"
	"github.com/MarcoPoloResearchLab/snaporm/internal/library"
	"github.com/MarcoPoloResearchLab/snaporm/internal/logging"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// application carries the configuration shared by every subcommand.
type application struct {
	cfgFile string
	viper   *viper.Viper
}

// environment is an opened database plus the library service built on it.
type environment struct {
	config  config.AppConfig
	logger  *zap.Logger
	db      *gorm.DB
	service *library.Service
}

func (a *application) setupFlags(cmd *cobra.Command) {
	a.viper = config.NewViper()
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&a.cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().String("database-path", defaults.GetString("database.path"), "SQLite database path")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("log-encoding", defaults.GetString("log.encoding"), "Log encoding (json, console)")

	a.bindFlag(cmd, "database.path", "database-path")
	a.bindFlag(cmd, "log.level", "log-level")
	a.bindFlag(cmd, "log.encoding", "log-encoding")
}

func (a *application) bindFlag(cmd *cobra.Command, key, flag string) {
	if err := a.viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func (a *application) initConfig() error {
	if a.cfgFile == "" {
		return nil
	}
	a.viper.SetConfigFile(a.cfgFile)
	return a.viper.ReadInConfig()
}

// open loads configuration, prepares the schema and builds the library service.
func (a *application) open() (*environment, error) {
	appConfig, err := config.Load(a.viper)
	if err != nil {
		return nil, err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel, appConfig.LogEncoding)
	if err != nil {
		return nil, err
	}

	db, err := database.OpenSQLite(appConfig.DatabasePath, logger, database.Options{
		Models:     library.Models(),
		Migrations: library.Migrations(),
	})
	if err != nil {
		return nil, err
	}

	service, err := library.NewService(library.ServiceConfig{
		Database:   db,
		Clock:      time.Now,
		IDProvider: library.NewUUIDProvider(),
		Logger:     logger,
	})
	if err != nil {
		closeDatabase(db)
		return nil, err
	}

	return &environment{config: appConfig, logger: logger, db: db, service: service}, nil
}

func (r *environment) Close() error {
	defer r.logger.Sync() //nolint:errcheck
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func closeDatabase(db *gorm.DB) {
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
