package database

import (
	"context"
	"fmt"
	"time"

	"github.com/emmatufvesson/relAI/internal/models"
)

// Cycle is one row of the history table
type Cycle struct {
	RunID       string    `json:"run_id"`
	Seq         int64     `json:"seq"`
	StartedAt   time.Time `json:"started_at"`
	ElapsedMs   float64   `json:"elapsed_ms"`
	Stage       string    `json:"stage"`
	Error       string    `json:"error,omitempty"`
	Device      string    `json:"device,omitempty"`
	Format      string    `json:"format,omitempty"`
	Model       string    `json:"model,omitempty"`
	TopLabel    string    `json:"top_label,omitempty"`
	TopScore    float64   `json:"top_score"`
	PersonCount int       `json:"person_count"`
	TotalMs     float64   `json:"total_ms"`
}

// CycleFromReport flattens a report into a history row
func CycleFromReport(report *models.CycleReport) Cycle {
	c := Cycle{
		RunID:     report.RunID,
		Seq:       int64(report.Seq),
		StartedAt: report.StartedAt,
		ElapsedMs: float64(report.Elapsed) / float64(time.Millisecond),
		Stage:     string(report.Stage),
		Error:     report.Error,
	}
	if report.Capture != nil {
		c.Device = report.Capture.Device
		c.Format = report.Capture.Format
	}
	if report.Inference != nil {
		c.Model = report.Inference.Model
		c.TotalMs = report.Inference.TotalMs
	}
	if report.Result != nil {
		c.TopLabel = report.Result.TopLabel
		c.TopScore = report.Result.TopScore
		c.PersonCount = report.Result.PersonCount
	}
	return c
}

func (d *Database) Name() string { return "postgres" }

// Record stores one cycle
func (d *Database) Record(ctx context.Context, report *models.CycleReport) error {
	c := CycleFromReport(report)

	_, err := d.DB.ExecContext(ctx,
		`INSERT INTO cycles (run_id, seq, started_at, elapsed_ms, stage, error, device, format, model, top_label, top_score, person_count, total_ms)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
			ON CONFLICT (run_id) DO NOTHING`,
		c.RunID,
		c.Seq,
		c.StartedAt,
		c.ElapsedMs,
		c.Stage,
		c.Error,
		c.Device,
		c.Format,
		c.Model,
		c.TopLabel,
		c.TopScore,
		c.PersonCount,
		c.TotalMs,
	)
	if err != nil {
		return fmt.Errorf("failed to insert cycle: %w", err)
	}
	return nil
}

// RecentCycles returns the newest cycles first
func (d *Database) RecentCycles(ctx context.Context, limit int) ([]Cycle, error) {
	rows, err := d.DB.QueryContext(ctx, `
		SELECT run_id, seq, started_at, elapsed_ms, stage, error, device, format, model, top_label, top_score, person_count, total_ms
		FROM cycles
		ORDER BY started_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query cycles: %w", err)
	}
	defer rows.Close()

	cycles := []Cycle{}
	for rows.Next() {
		var c Cycle
		err := rows.Scan(
			&c.RunID,
			&c.Seq,
			&c.StartedAt,
			&c.ElapsedMs,
			&c.Stage,
			&c.Error,
			&c.Device,
			&c.Format,
			&c.Model,
			&c.TopLabel,
			&c.TopScore,
			&c.PersonCount,
			&c.TotalMs,
		)
		if err != nil {
			return nil, err
		}
		cycles = append(cycles, c)
	}

	return cycles, rows.Err()
}
