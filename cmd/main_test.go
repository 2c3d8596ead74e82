package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/okian/tnvs/internal/domain/metric"
	"github.com/smartystreets/goconvey/convey"
)

const operatorsYAML = `worker_count: 1
queue_size: 8
operators:
  - id: op-1
    region: NCR
    type: individual
    tier: tier_1
    tenure_months: 12
    payment_consistency: 0.96
    utilization_percentile: 80
`

func clearEnv() {
	for _, kv := range os.Environ() {
		if name, _, _ := strings.Cut(kv, "="); strings.HasPrefix(name, "TNVS_") {
			_ = os.Unsetenv(name)
		}
	}
}

func run(args ...string) (string, error) {
	var out, errOut bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func writeFile(dir, name, content string) string {
	path := filepath.Join(dir, name)
	convey.So(os.WriteFile(path, []byte(content), 0o600), convey.ShouldBeNil)
	return path
}

func bestMetrics() map[string]float64 {
	set := map[string]float64{}
	for _, d := range metric.Definitions() {
		switch d.Kind {
		case metric.Rating:
			set[d.Name] = 5
		case metric.InvertedRate:
			set[d.Name] = 0
		default:
			set[d.Name] = 1
		}
	}
	return set
}

func TestRootCommand(t *testing.T) {
	convey.Convey("Given the root command", t, func() {
		root := newRootCmd()

		convey.Convey("Then every subcommand is registered", func() {
			names := []string{}
			for _, c := range root.Commands() {
				names = append(names, c.Name())
			}
			for _, want := range []string{"serve", "migrate", "score", "ledger", "export", "payouts"} {
				convey.So(names, convey.ShouldContain, want)
			}
		})
	})
}

func TestScoreCommand(t *testing.T) {
	convey.Convey("Given a config that seeds one operator", t, func() {
		clearEnv()
		convey.Reset(clearEnv)
		dir := t.TempDir()
		cfgPath := writeFile(dir, "tnvs.yaml", operatorsYAML)

		convey.Convey("When a best-case submission is scored", func() {
			raw, err := json.Marshal(map[string]any{
				"operator_id": "op-1", "period": "2025-06", "frequency": "monthly", "metrics": bestMetrics(),
			})
			convey.So(err, convey.ShouldBeNil)
			file := writeFile(dir, "metrics.json", string(raw))

			out, err := run("--config", cfgPath, "score", "--file", file)

			convey.Convey("Then the breakdown and tier are printed", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(out, convey.ShouldContainSubstring, "vehicle_utilization")
				convey.So(out, convey.ShouldContainSubstring, "tier tier_3")
			})
		})

		convey.Convey("When the operator is unknown", func() {
			file := writeFile(dir, "metrics.json", `{"operator_id":"op-x","period":"2025-06","frequency":"monthly","metrics":{}}`)
			_, err := run("--config", cfgPath, "score", "--file", file)

			convey.Convey("Then the command fails", func() {
				convey.So(err, convey.ShouldNotBeNil)
			})
		})

		convey.Convey("When --file is missing", func() {
			_, err := run("--config", cfgPath, "score")

			convey.Convey("Then cobra rejects the call", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(err.Error(), convey.ShouldContainSubstring, "file")
			})
		})
	})
}

func TestMigrateCommand(t *testing.T) {
	convey.Convey("Given the memory store", t, func() {
		clearEnv()
		convey.Reset(clearEnv)

		convey.Convey("When migrate runs", func() {
			_, err := run("migrate")

			convey.Convey("Then there is nothing to migrate", func() {
				convey.So(errors.Is(err, errMemoryStore), convey.ShouldBeTrue)
			})
		})
	})

	convey.Convey("Given a sqlite store", t, func() {
		clearEnv()
		convey.Reset(clearEnv)
		_ = os.Setenv("TNVS_STORE_BACKEND", "sqlite")
		_ = os.Setenv("TNVS_STORE_DSN", filepath.Join(t.TempDir(), "tnvs.db"))

		convey.Convey("When migrate runs twice", func() {
			first, err1 := run("migrate")
			second, err2 := run("migrate")

			convey.Convey("Then only the first run changes the schema", func() {
				convey.So(err1, convey.ShouldBeNil)
				convey.So(first, convey.ShouldContainSubstring, "schema migrated from version 0 to")
				convey.So(err2, convey.ShouldBeNil)
				convey.So(second, convey.ShouldContainSubstring, "schema already at version")
			})
		})
	})
}

func TestLedgerCommands(t *testing.T) {
	convey.Convey("Given a seeded operator without transactions", t, func() {
		clearEnv()
		convey.Reset(clearEnv)
		dir := t.TempDir()
		cfgPath := writeFile(dir, "tnvs.yaml", operatorsYAML)

		convey.Convey("When the ledger is printed", func() {
			out, err := run("--config", cfgPath, "ledger", "--operator", "op-1")

			convey.Convey("Then the summary shows an empty wallet", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(out, convey.ShouldContainSubstring, "op-1: 0 transactions, balance 0.00")
			})
		})

		convey.Convey("When the ledger is exported", func() {
			path := filepath.Join(dir, "ledger.parquet")
			out, err := run("--config", cfgPath, "export", "--operator", "op-1", "--out", path)

			convey.Convey("Then an empty Parquet file is written", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(out, convey.ShouldContainSubstring, "wrote 0 transactions")
				_, statErr := os.Stat(path)
				convey.So(statErr, convey.ShouldBeNil)
			})
		})

		convey.Convey("When payouts are processed", func() {
			out, err := run("--config", cfgPath, "payouts", "process")

			convey.Convey("Then an empty batch is reported", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(out, convey.ShouldContainSubstring, "completed 0, failed 0, skipped 0")
			})
		})
	})
}
