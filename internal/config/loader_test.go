package config_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/smartystreets/goconvey/convey"

	"github.com/FHFHockey-dev/fhfhockey.com-sub000/internal/config"
)

var configEnvVars = []string{ //nolint:gochecknoglobals // test fixture
	"SUST_CONFIG", "SUST_STORE_DRIVER", "SUST_STORE_DSN", "SUST_SEASON_ID",
	"SUST_WORKER_COUNT", "SUST_RUN_INTERVAL", "SUST_INCREMENTAL", "SUST_LOCK_TIMEOUT",
}

func clearConfigEnvVars() {
	for _, k := range configEnvVars {
		_ = os.Unsetenv(k)
	}
}

func createTempConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestConfigLoader(t *testing.T) {
	convey.Convey("Given a config loader", t, func() {
		ctx := context.Background()
		clearConfigEnvVars()
		defer clearConfigEnvVars()

		convey.Convey("When loading config with defaults only", func() {
			cfg, err := config.Load(ctx)

			convey.So(err, convey.ShouldBeNil)
			convey.So(cfg.StoreDriver, convey.ShouldEqual, config.StoreMemory)
			convey.So(cfg.SeasonID, convey.ShouldEqual, 20242025)
			convey.So(cfg.RunInterval, convey.ShouldEqual, 0)
		})

		convey.Convey("When loading config with environment variables", func() {
			_ = os.Setenv("SUST_STORE_DRIVER", "sqlite")
			_ = os.Setenv("SUST_STORE_DSN", "/tmp/scores.db")
			_ = os.Setenv("SUST_SEASON_ID", "20232024")
			_ = os.Setenv("SUST_WORKER_COUNT", "4")
			_ = os.Setenv("SUST_RUN_INTERVAL", "15m")
			_ = os.Setenv("SUST_INCREMENTAL", "true")

			cfg, err := config.Load(ctx)

			convey.So(err, convey.ShouldBeNil)
			convey.So(cfg.StoreDriver, convey.ShouldEqual, config.StoreSQLite)
			convey.So(cfg.StoreDSN, convey.ShouldEqual, "/tmp/scores.db")
			convey.So(cfg.SeasonID, convey.ShouldEqual, 20232024)
			convey.So(cfg.WorkerCount, convey.ShouldEqual, 4)
			convey.So(cfg.RunInterval, convey.ShouldEqual, 15*time.Minute)
			convey.So(cfg.Incremental, convey.ShouldBeTrue)
		})

		convey.Convey("When loading config with a YAML file and env overrides", func() {
			path := createTempConfigFile(t, `
store_driver: postgres
store_dsn: "postgres://localhost/hockey"
season_id: 20222023
worker_count: 8
lock_timeout: 2s
`)
			_ = os.Setenv("SUST_CONFIG", path)
			_ = os.Setenv("SUST_WORKER_COUNT", "2")

			cfg, err := config.Load(ctx)

			convey.So(err, convey.ShouldBeNil)
			convey.So(cfg.StoreDriver, convey.ShouldEqual, config.StorePostgres)
			convey.So(cfg.SeasonID, convey.ShouldEqual, 20222023)
			convey.So(cfg.LockTimeout, convey.ShouldEqual, 2*time.Second)
			convey.So(cfg.WorkerCount, convey.ShouldEqual, 2)
			convey.So(cfg.AssignTiers, convey.ShouldBeTrue)
		})

		convey.Convey("When loading config with invalid YAML file", func() {
			_ = os.Setenv("SUST_CONFIG", createTempConfigFile(t, `invalid: yaml: content: [`))

			cfg, err := config.Load(ctx)

			convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
			convey.So(cfg, convey.ShouldBeNil)
		})

		convey.Convey("When loading config with non-existent file", func() {
			_ = os.Setenv("SUST_CONFIG", filepath.Join(t.TempDir(), "missing.yaml"))

			cfg, err := config.Load(ctx)

			convey.So(err, convey.ShouldNotBeNil)
			convey.So(cfg, convey.ShouldBeNil)
		})

		convey.Convey("When loading config with invalid numeric environment variables", func() {
			_ = os.Setenv("SUST_WORKER_COUNT", "not_a_number")

			cfg, err := config.Load(ctx)

			convey.So(err, convey.ShouldNotBeNil)
			convey.So(cfg, convey.ShouldBeNil)
		})

		convey.Convey("When the loaded values fail validation", func() {
			_ = os.Setenv("SUST_STORE_DRIVER", "postgres")

			cfg, err := config.Load(ctx)

			convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
			convey.So(cfg, convey.ShouldBeNil)
		})
	})
}

func TestWatch(t *testing.T) {
	convey.Convey("Given a watched scoring config file", t, func() {
		path := createTempConfigFile(t, "model_version: 1\n")
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		var calls atomic.Int32
		done := make(chan error, 1)
		go func() {
			done <- config.Watch(ctx, path, func(context.Context) { calls.Add(1) })
		}()

		convey.Convey("A write triggers the callback", func() {
			deadline := time.Now().Add(2 * time.Second)
			for calls.Load() == 0 && time.Now().Before(deadline) {
				_ = os.WriteFile(path, []byte("model_version: 2\n"), 0o600)
				time.Sleep(50 * time.Millisecond)
			}
			convey.So(calls.Load(), convey.ShouldBeGreaterThan, 0)

			cancel()
			convey.So(<-done, convey.ShouldBeNil)
		})

		convey.Convey("A rename over the file triggers the callback and later writes still do", func() {
			renameOver := func(content string) {
				tmp := path + ".tmp"
				_ = os.WriteFile(tmp, []byte(content), 0o600)
				_ = os.Rename(tmp, path)
			}
			waitAbove := func(n int32, save func()) int32 {
				deadline := time.Now().Add(2 * time.Second)
				for calls.Load() <= n && time.Now().Before(deadline) {
					save()
					time.Sleep(50 * time.Millisecond)
				}
				return calls.Load()
			}

			first := waitAbove(0, func() { renameOver("model_version: 2\n") })
			convey.So(first, convey.ShouldBeGreaterThan, 0)

			second := waitAbove(first, func() { renameOver("model_version: 3\n") })
			convey.So(second, convey.ShouldBeGreaterThan, first)

			third := waitAbove(second, func() { _ = os.WriteFile(path, []byte("model_version: 4\n"), 0o600) })
			convey.So(third, convey.ShouldBeGreaterThan, second)

			cancel()
			convey.So(<-done, convey.ShouldBeNil)
		})

		convey.Convey("Changes to sibling files are ignored", func() {
			time.Sleep(100 * time.Millisecond)
			before := calls.Load()
			_ = os.WriteFile(filepath.Join(filepath.Dir(path), "other.yaml"), []byte("x: 1\n"), 0o600)
			time.Sleep(200 * time.Millisecond)
			convey.So(calls.Load(), convey.ShouldEqual, before)

			cancel()
			convey.So(<-done, convey.ShouldBeNil)
		})
	})

	convey.Convey("Watching a missing file fails", t, func() {
		err := config.Watch(context.Background(), filepath.Join(t.TempDir(), "nope.yaml"), func(context.Context) {})
		convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
	})
}
