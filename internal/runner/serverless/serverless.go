package serverless

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

// Runner invokes the serverless GPU backend: one synchronous HTTP call per
// run, response body is the raw output.
type Runner struct {
	client *http.Client
	url    string
	token  string
}

type invokeRequest struct {
	Target        string `json:"target"`
	Code          string `json:"code"`
	ReferenceCode string `json:"referenceCode"`
	FileName      string `json:"fileName"`
}

func NewRunner(cfg *config.RunnerConfig) (*Runner, error) {
	if cfg.SERVERLESS_URL == "" {
		return nil, fmt.Errorf("KEY: SERVERLESS_URL is empty")
	}
	return &Runner{
		// serverless cold starts plus the run itself can take minutes
		client: &http.Client{Timeout: 10 * time.Minute},
		url:    cfg.SERVERLESS_URL,
		token:  cfg.SERVERLESS_TOKEN,
	}, nil
}

func (r *Runner) Run(ctx context.Context, job model.RunJob) (string, error) {

	ctx, span := tracer.GetTracer().Start(ctx, "Serverless/Run")
	defer span.End()

	body, err := json.Marshal(invokeRequest{
		Target:        string(job.Target),
		Code:          job.Code,
		ReferenceCode: job.ReferenceCode,
		FileName:      job.FileName,
	})
	if err != nil {
		util.RecordSpanError(span, err)
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewReader(body))
	if err != nil {
		util.RecordSpanError(span, err)
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if r.token != "" {
		req.Header.Set("Authorization", "Bearer "+r.token)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		util.RecordSpanError(span, err)
		return "", fmt.Errorf("%w: invoke: %v", apperr.ErrRunnerFailed, err)
	}
	defer resp.Body.Close()

	out, err := io.ReadAll(resp.Body)
	if err != nil {
		util.RecordSpanError(span, err)
		return "", fmt.Errorf("%w: read response: %v", apperr.ErrRunnerFailed, err)
	}

	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("%w: backend returned %s", apperr.ErrRunnerFailed, resp.Status)
		util.RecordSpanError(span, err)
		return "", err
	}

	return string(out), nil
}
