package main

import (
	"log"
	"time"

	"github.com/classmap/refreshd/internal"
	"github.com/classmap/refreshd/internal/handler"
	"github.com/classmap/refreshd/internal/service"
	"github.com/classmap/refreshd/internal/settings"
	"github.com/classmap/refreshd/internal/store"
	"github.com/classmap/refreshd/internal/util"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	_ "modernc.org/sqlite"
)

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

	scheduler := service.NewScheduler()
	defer scheduler.Shutdown()

	// validate the refresh script before accepting any triggers; the
	// queue re-reads it per run to pick up edits
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
		internal.Config.QueueSize,
	)
	refreshSvc := service.NewRefreshService(
		runStore,
		queue,
		scheduler,
		settings.Settings.ScheduleUTC,
	)
	refreshSvc.StartQueue()
	defer refreshSvc.Shutdown()

	if _, err := refreshSvc.ScheduleDailyRefresh(); err != nil {
		log.Fatal(err)
	}
	if _, err := refreshSvc.ScheduleRetentionSweep(
		time.Duration(internal.Config.RunRetentionDays),
	); err != nil {
		log.Fatal(err)
	}
	scheduler.Start()

	e := setupEcho()
	h := handler.NewRunHandler(refreshSvc)
	handler.SetupRunRoutes(e, h, settings.Settings.TriggerKey)

	internal.GracefulShutdown(e, settings.Settings.Port)
}

func setupEcho() *echo.Echo {
	e := echo.New()
	e.HTTPErrorHandler = handler.ErrorHandler
	e.Use(
		middleware.CORSWithConfig(internal.GetCORSConfig()),
		middleware.RateLimiterWithConfig(internal.GetRateLimiterConfig()),
	)
	return e
}
