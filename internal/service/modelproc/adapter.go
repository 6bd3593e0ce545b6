package modelproc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"time"

	"MarketPulse/internal/domain/models"
	drepo "MarketPulse/internal/domain/repository"
	applogger "MarketPulse/pkg/logger"
)

// Adapter bridges to one external forecasting process family by spawning a
// companion process per invocation. Any deviation from the wire protocol
// (timeout, non-zero exit, an error payload, unparsable output) surfaces as
// models.ErrModelUnavailable so the dispatcher can fall back.
type Adapter struct {
	model   models.Model
	command string
	args    []string
	timeout time.Duration
	l       *applogger.Logger
}

func NewAdapter(model models.Model, command string, args []string, timeout time.Duration, l *applogger.Logger) *Adapter {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Adapter{model: model, command: command, args: args, timeout: timeout, l: l}
}

func (a *Adapter) Name() models.Model { return a.model }

func (a *Adapter) Run(ctx context.Context, series []models.HistoryPoint, horizonDays int, params map[string]any) (*models.ForecastResult, error) {
	runCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	req := wireRequest{Series: encodeSeries(series), HorizonDays: horizonDays, Params: params}
	input, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("%w: encode request: %v", models.ErrModelUnavailable, err)
	}

	// CommandContext kills the process when the timeout elapses.
	cmd := exec.CommandContext(runCtx, a.command, a.args...)
	cmd.Stdin = bytes.NewReader(append(input, '\n'))
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	runErr := cmd.Run()
	elapsed := time.Since(start)

	if runCtx.Err() == context.DeadlineExceeded {
		if a.l != nil {
			a.l.Warn("model timed out",
				applogger.String("model", string(a.model)),
				applogger.Duration("elapsed_ms", elapsed))
		}
		return nil, fmt.Errorf("%w: %s timed out after %s", models.ErrModelUnavailable, a.model, a.timeout)
	}
	if runErr != nil {
		if a.l != nil {
			a.l.Warn("model process failed",
				applogger.String("model", string(a.model)),
				applogger.String("stderr", stderr.String()),
				applogger.Error(runErr))
		}
		return nil, fmt.Errorf("%w: %s exited: %v", models.ErrModelUnavailable, a.model, runErr)
	}

	return a.decode(stdout.Bytes())
}

func (a *Adapter) decode(out []byte) (*models.ForecastResult, error) {
	var resp wireResponse
	if err := json.Unmarshal(bytes.TrimSpace(out), &resp); err != nil {
		return nil, fmt.Errorf("%w: %s protocol violation: %v", models.ErrModelUnavailable, a.model, err)
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("%w: %s reported: %s", models.ErrModelUnavailable, a.model, resp.Error)
	}
	if len(resp.Path) == 0 {
		return nil, fmt.Errorf("%w: %s returned empty path", models.ErrModelUnavailable, a.model)
	}
	path, ok := decodePath(resp.Path)
	if !ok {
		return nil, fmt.Errorf("%w: %s returned malformed path dates", models.ErrModelUnavailable, a.model)
	}

	return &models.ForecastResult{
		Model:       a.model,
		GeneratedAt: time.Now(),
		Path:        path,
		DataPoints:  resp.DataPoints,
		Summary: models.ForecastSummary{
			HistoricalMean: resp.Summary.HistoricalMean,
			HistoricalStd:  resp.Summary.HistoricalStd,
			Trend:          resp.Summary.ForecastTrend,
			Confidence:     resp.Summary.Confidence,
		},
	}, nil
}

var _ drepo.ModelRunner = (*Adapter)(nil)
