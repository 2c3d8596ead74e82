package main

import (
	"encoding/json"
	"fmt"
	"os"

	service "github.com/okian/tnvs/internal/app"
	"github.com/okian/tnvs/internal/domain/model"
	"github.com/okian/tnvs/internal/report"
	"github.com/spf13/cobra"
)

// scoreFile is the JSON document read by `tnvs score`.
type scoreFile struct {
	OperatorID string             `json:"operator_id"`
	Period     string             `json:"period"`
	Frequency  string             `json:"frequency"`
	Metrics    map[string]float64 `json:"metrics"`
}

func readScoreFile(path string) (model.MetricSubmission, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return model.MetricSubmission{}, err
	}
	var f scoreFile
	if err := json.Unmarshal(raw, &f); err != nil {
		return model.MetricSubmission{}, fmt.Errorf("parse %s: %w", path, err)
	}
	return model.MetricSubmission{
		OperatorID: f.OperatorID,
		Period:     f.Period,
		Frequency:  model.Frequency(f.Frequency),
		Metrics:    model.MetricSet(f.Metrics),
	}, nil
}

func newScoreCmd(c *cli) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "score",
		Short: "Score one metric submission and print the breakdown",
		Long: `Score the submission in --file, store the result and print the per-metric
and per-category breakdown. The file holds operator_id, period, frequency
and a metrics object.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sub, err := readScoreFile(file)
			if err != nil {
				return err
			}
			return c.withService(cmd.Context(), func(svc *service.Service) error {
				res, err := svc.ScoreMetrics(cmd.Context(), sub)
				if err != nil {
					return err
				}
				return report.WriteScore(cmd.OutOrStdout(), res)
			})
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "metric submission JSON file")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}
