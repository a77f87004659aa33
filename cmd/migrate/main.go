package main

import (
	"flag"

	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"go.uber.org/zap"

	"github.com/quantbay/optexec/config"
	"github.com/quantbay/optexec/pkg/infra"
	"github.com/quantbay/optexec/pkg/logging"
)

func main() {
	var configFile string
	flag.StringVar(&configFile, "config-file", "", "Specify config file path")
	flag.Parse()

	cfg, err := config.Load(configFile)
	if err != nil {
		panic(err)
	}
	logging.Init(logging.INFO, cfg.LogDev)
	defer logging.Sync()

	mgTool := infra.GetMigrateTool()
	if err := mgTool.Migrate("file://migrations", cfg.JournalDB.MigrationConnURL); err != nil {
		zap.S().Fatalf("migrate: %v", err)
	}
}
