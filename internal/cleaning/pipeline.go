package cleaning

import (
	"time"

	"go.uber.org/zap"

	"github.com/urbanytics/urbanytics/internal/dataset"
)

// Stage is one pure filtering step of the cleaning pipeline. Apply takes a
// snapshot table and returns a new, narrowed table; it never mutates its
// input, so each stage is independently testable.
type Stage struct {
	Name  string
	Apply func(t *dataset.Table) *dataset.Table
}

// StageResult records the row delta of one executed stage.
type StageResult struct {
	Stage   string `json:"stage"`
	Before  int    `json:"before"`
	After   int    `json:"after"`
	Removed int    `json:"removed"`
}

// Report summarizes a full pipeline run.
type Report struct {
	InitialRows int           `json:"initial_rows"`
	FinalRows   int           `json:"final_rows"`
	Stages      []StageResult `json:"stages"`
	Elapsed     time.Duration `json:"elapsed"`
}

// TotalRemoved returns the number of rows dropped across all stages.
func (r Report) TotalRemoved() int {
	return r.InitialRows - r.FinalRows
}

// Run executes the stages strictly in order, logging the row delta of each.
// Statistical stages see the table as narrowed by all prior stages, so for a
// fixed input the output and every intermediate count are reproducible.
func Run(t *dataset.Table, stages []Stage) (*dataset.Table, Report) {
	start := time.Now()
	report := Report{InitialRows: t.NumRows()}

	for _, stage := range stages {
		before := t.NumRows()
		t = stage.Apply(t)
		after := t.NumRows()

		report.Stages = append(report.Stages, StageResult{
			Stage:   stage.Name,
			Before:  before,
			After:   after,
			Removed: before - after,
		})
		zap.L().Info("cleaning stage complete",
			zap.String("stage", stage.Name),
			zap.Int("before", before),
			zap.Int("after", after),
			zap.Int("removed", before-after),
		)
	}

	report.FinalRows = t.NumRows()
	report.Elapsed = time.Since(start)
	zap.L().Info("cleaning pipeline complete",
		zap.Int("initial_rows", report.InitialRows),
		zap.Int("final_rows", report.FinalRows),
		zap.Int("removed", report.TotalRemoved()),
		zap.Duration("elapsed", report.Elapsed),
	)
	return t, report
}
