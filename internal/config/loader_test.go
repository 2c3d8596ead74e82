package config_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/okian/tnvs/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfigLoader(t *testing.T) {
	convey.Convey("Given a config loader", t, func() {
		ctx := context.Background()
		// Point the dotenv layer at a file that does not exist unless a case writes one.
		dir := t.TempDir()
		setenv("TNVS_ENV_FILE", filepath.Join(dir, "missing.env"))
		convey.Reset(clearConfigEnvVars)

		convey.Convey("When loading config with defaults only", func() {
			cfg, err := config.Load(ctx)

			convey.Convey("Then it should load successfully with defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg, convey.ShouldNotBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
				convey.So(cfg.QueueSize, convey.ShouldEqual, 10_000)
				convey.So(cfg.CommissionFloor, convey.ShouldEqual, "5.00")
			})
		})

		convey.Convey("When loading config with environment variables", func() {
			setenv("TNVS_ADDR", ":8080")
			setenv("TNVS_QUEUE_SIZE", "500")
			setenv("TNVS_WORKER_COUNT", "3")
			setenv("TNVS_COMMISSION_FLOOR", "0")
			setenv("TNVS_RATE_CACHE_TTL", "90s")

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should override defaults with env vars", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
				convey.So(cfg.QueueSize, convey.ShouldEqual, 500)
				convey.So(cfg.WorkerCount, convey.ShouldEqual, 3)
				convey.So(cfg.CommissionFloor, convey.ShouldEqual, "0")
				convey.So(cfg.RateCacheTTL, convey.ShouldEqual, 90*time.Second)
			})
		})

		convey.Convey("When loading config with YAML file", func() {
			yamlContent := `
addr: ":9090"
worker_count: 4
probation_days: 14
withholding_rates:
  corporate: "2.5"
payout_method_fees:
  e_wallet: "15.00"
tiers:
  - tier: tier_1
    rate_percentage: "1.5"
  - tier: tier_2
    rate_percentage: "2.5"
    min_performance_score: 80
  - tier: tier_3
    rate_percentage: "3.5"
    min_performance_score: 90
    effective_from: "2025-01-01"
operators:
  - id: op-1
    region: NCR
    tier: tier_1
`
			path := writeFile(dir, "tnvs.yaml", yamlContent)
			setenv("TNVS_CONFIG", path)

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should load from YAML file", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9090")
				convey.So(cfg.WorkerCount, convey.ShouldEqual, 4)
				convey.So(cfg.ProbationDays, convey.ShouldEqual, 14)
				convey.So(cfg.WithholdingRates["corporate"], convey.ShouldEqual, "2.5")
				convey.So(cfg.WithholdingRates["individual"], convey.ShouldEqual, "1")
				convey.So(cfg.PayoutMethodFees["e_wallet"], convey.ShouldEqual, "15.00")
				convey.So(len(cfg.Operators), convey.ShouldEqual, 1)
			})

			convey.Convey("Then the tier list replaces the defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(len(cfg.Tiers), convey.ShouldEqual, 3)
				convey.So(cfg.Tiers[1].MinTenureMonths, convey.ShouldEqual, 0)
				rates, rerr := cfg.RateConfigs()
				convey.So(rerr, convey.ShouldBeNil)
				convey.So(rates[2].RatePercentage.String(), convey.ShouldEqual, "3.5")
				convey.So(rates[2].EffectiveFrom.Year(), convey.ShouldEqual, 2025)
			})
		})

		convey.Convey("When loading config with both file and environment variables", func() {
			path := writeFile(dir, "tnvs.yaml", "addr: \":9090\"\nqueue_size: 300\n")
			setenv("TNVS_CONFIG", path)
			setenv("TNVS_ADDR", ":8080")

			cfg, err := config.Load(ctx)

			convey.Convey("Then environment variables should override file values", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
				convey.So(cfg.QueueSize, convey.ShouldEqual, 300)
			})
		})

		convey.Convey("When a dotenv file is present", func() {
			envPath := writeFile(dir, "tnvs.env", "TNVS_STORE_BACKEND=sqlite\nTNVS_STORE_DSN=file:tnvs.db\n")
			setenv("TNVS_ENV_FILE", envPath)

			cfg, err := config.Load(ctx)

			convey.Convey("Then its values are applied", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.StoreBackend, convey.ShouldEqual, "sqlite")
				convey.So(cfg.StoreDSN, convey.ShouldEqual, "file:tnvs.db")
			})
		})

		convey.Convey("When loading config with invalid YAML file", func() {
			path := writeFile(dir, "bad.yaml", `invalid: yaml: content: [`)
			setenv("TNVS_CONFIG", path)

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return a load error", func() {
				convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with non-existent file", func() {
			setenv("TNVS_CONFIG", filepath.Join(dir, "nope.yaml"))

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return an error", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with an unknown store backend", func() {
			setenv("TNVS_STORE_BACKEND", "oracle")

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return a validation error", func() {
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
				convey.So(err.Error(), convey.ShouldContainSubstring, "store_backend")
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with invalid numeric environment variables", func() {
			setenv("TNVS_QUEUE_SIZE", "invalid")

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return an error", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})
	})
}

func writeFile(dir, name, content string) string {
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		panic(err)
	}
	return path
}

func setenv(key, value string) {
	_ = os.Setenv(key, value)
}

// clearConfigEnvVars removes every TNVS_ variable, including those godotenv set.
func clearConfigEnvVars() {
	for _, kv := range os.Environ() {
		if key, _, ok := strings.Cut(kv, "="); ok && strings.HasPrefix(key, "TNVS_") {
			_ = os.Unsetenv(key)
		}
	}
}
