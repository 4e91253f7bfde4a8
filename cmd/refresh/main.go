package main

import (
	"context"
	"log"
	"os"

	"github.com/classmap/refreshd/internal"
	"github.com/classmap/refreshd/internal/service"
	"github.com/classmap/refreshd/internal/settings"
	"github.com/classmap/refreshd/internal/store"
	"github.com/classmap/refreshd/internal/util"

	_ "modernc.org/sqlite"
)

// One-shot refresh run for hosts that bring their own scheduler. Exits
// non-zero if a generator step or the push fails; "no changes" is a
// zero exit.
func main() {
	internal.InitializeConfiguration()
	if exists, _ := util.PathExists(internal.DotEnvPath); exists {
		settings.ReadDotenv(internal.DotEnvPath)
	}
	settings.Settings = settings.NewSettings()

	rdb := store.InitDatabase(true)
	defer rdb.Close()
	rwdb := store.InitDatabase(false)
	defer rwdb.Close()
	store.RunMigrations(rwdb, internal.MigrationsDir)

	script, err := service.ReadRefreshScript(settings.Settings.ScriptPath)
	if err != nil {
		log.Fatal("err reading refresh script: ", err)
	}

	runStore := store.NewRunSQLiteStore(rdb, rwdb)
	publisher := service.NewGitPublisher(
		settings.Settings.RepositoryDir,
		script.Artifacts,
		script.Publish,
	)
	queue := service.NewRunQueue(
		runStore,
		publisher,
		settings.Settings.RepositoryDir,
		settings.Settings.ScriptPath,
		1,
	)

	run, err := runStore.CreateRun(context.Background(), store.TriggerManual)
	if err != nil {
		log.Fatal("err creating run: ", err)
	}

	if err := queue.ProcessOnce(context.Background(), run); err != nil {
		log.Println("refresh run failed: ", err)
		os.Exit(1)
	}
}
