package actions

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"kernelboard/internal/apperr"
	"kernelboard/internal/config"
	"kernelboard/internal/tracer"
	"kernelboard/internal/util"
	"kernelboard/model"
)

// Runner drives the CI execution backend: it dispatches a workflow run for
// one target, then polls until the run leaves the queue and returns its
// collected log text. The backend is opaque; this is its whole protocol.
type Runner struct {
	client      *http.Client
	dispatchURL string
	token       string
	pollEvery   time.Duration
}

type dispatchRequest struct {
	Target        string `json:"target"`
	Code          string `json:"code"`
	ReferenceCode string `json:"referenceCode"`
	FileName      string `json:"fileName"`
}

type dispatchResponse struct {
	RunID string `json:"runId"`
}

type runStatus struct {
	Status string `json:"status"` // queued | running | completed | failed
	Logs   string `json:"logs"`
}

func NewRunner(cfg *config.RunnerConfig) (*Runner, error) {
	if cfg.CI_DISPATCH_URL == "" {
		return nil, fmt.Errorf("KEY: CI_DISPATCH_URL is empty")
	}
	return &Runner{
		client:      &http.Client{Timeout: 30 * time.Second},
		dispatchURL: cfg.CI_DISPATCH_URL,
		token:       cfg.CI_TOKEN,
		pollEvery:   time.Duration(cfg.CI_POLL_SECONDS) * time.Second,
	}, nil
}

func (r *Runner) Run(ctx context.Context, job model.RunJob) (string, error) {

	ctx, span := tracer.GetTracer().Start(ctx, "CI/Run")
	defer span.End()

	runID, err := r.dispatch(ctx, job)
	if err != nil {
		util.RecordSpanError(span, err)
		return "", fmt.Errorf("%w: dispatch: %v", apperr.ErrRunnerFailed, err)
	}

	out, err := r.awaitRun(ctx, runID)
	if err != nil {
		util.RecordSpanError(span, err)
		return "", err
	}
	return out, nil
}

func (r *Runner) dispatch(ctx context.Context, job model.RunJob) (string, error) {
	body, err := json.Marshal(dispatchRequest{
		Target:        string(job.Target),
		Code:          job.Code,
		ReferenceCode: job.ReferenceCode,
		FileName:      job.FileName,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.dispatchURL+"/runs", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if r.token != "" {
		req.Header.Set("Authorization", "Bearer "+r.token)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted && resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("dispatch returned %s", resp.Status)
	}

	var dr dispatchResponse
	if err := json.NewDecoder(resp.Body).Decode(&dr); err != nil {
		return "", err
	}
	if dr.RunID == "" {
		return "", fmt.Errorf("dispatch response carried no run id")
	}
	return dr.RunID, nil
}

// awaitRun polls until the run finishes. A failed run still returns its logs:
// the score extractor decides whether anything usable came out.
func (r *Runner) awaitRun(ctx context.Context, runID string) (string, error) {
	ticker := time.NewTicker(r.pollEvery)
	defer ticker.Stop()

	for {
		status, err := r.getStatus(ctx, runID)
		if err != nil {
			return "", fmt.Errorf("%w: poll: %v", apperr.ErrRunnerFailed, err)
		}

		switch status.Status {
		case "completed", "failed":
			return status.Logs, nil
		}

		select {
		case <-ctx.Done():
			return "", fmt.Errorf("%w: %v", apperr.ErrRunnerFailed, ctx.Err())
		case <-ticker.C:
		}
	}
}

func (r *Runner) getStatus(ctx context.Context, runID string) (*runStatus, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.dispatchURL+"/runs/"+runID, nil)
	if err != nil {
		return nil, err
	}
	if r.token != "" {
		req.Header.Set("Authorization", "Bearer "+r.token)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("status endpoint returned %s", resp.Status)
	}

	var st runStatus
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		return nil, err
	}
	return &st, nil
}
