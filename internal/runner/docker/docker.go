package docker

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/moby/moby/api/types/container"
	"github.com/moby/moby/api/types/mount"
	"github.com/moby/moby/api/types/network"
	"github.com/moby/moby/client"

	"kernelboard/internal/apperr"
	"kernelboard/internal/config"
	"kernelboard/internal/tracer"
	"kernelboard/internal/util"
	"kernelboard/model"
)

// Runner executes a submission in a local container for self-hosted targets.
// The job workdir is bind mounted at /job; the harness inside the image reads
// kernel + reference files from there and writes its log to /job/output.log.
type Runner struct {
	docker     *client.Client
	image      string
	cpuQuota   int64
	memBytes   int64
	runTimeout time.Duration
}

const outputFile = "output.log"

func NewRunner(cfg *config.RunnerConfig) (*Runner, error) {
	dc, err := NewDockerClient()
	if err != nil {
		return nil, fmt.Errorf("unable to initialise docker")
	}
	return &Runner{
		docker:     dc,
		image:      cfg.CONTAINER_IMAGE,
		cpuQuota:   int64(cfg.CONTAINER_CPU_QUOTA),
		memBytes:   int64(cfg.CONTAINER_MEM_BYTES),
		runTimeout: time.Duration(cfg.CONTAINER_RUN_SECOND) * time.Second,
	}, nil
}

func (r *Runner) Run(ctx context.Context, job model.RunJob) (string, error) {

	ctx, span := tracer.GetTracer().Start(ctx, "Docker/Run")
	defer span.End()

	workDir, err := r.prepareWorkDir(job)
	if err != nil {
		util.RecordSpanError(span, err)
		return "", fmt.Errorf("%w: %v", apperr.ErrRunnerFailed, err)
	}
	defer os.RemoveAll(workDir)

	id, err := r.createContainer(ctx, job, workDir)
	if err != nil {
		util.RecordSpanError(span, err)
		return "", fmt.Errorf("%w: create: %v", apperr.ErrRunnerFailed, err)
	}
	defer r.removeContainer(ctx, id)

	if _, err := r.docker.ContainerStart(ctx, id, client.ContainerStartOptions{}); err != nil {
		util.RecordSpanError(span, err)
		return "", fmt.Errorf("%w: start: %v", apperr.ErrRunnerFailed, err)
	}

	if err := r.wait(ctx, id); err != nil {
		util.RecordSpanError(span, err)
		return "", err
	}

	out, err := os.ReadFile(filepath.Join(workDir, outputFile))
	if err != nil {
		util.RecordSpanError(span, err)
		return "", fmt.Errorf("%w: run produced no output file", apperr.ErrRunnerFailed)
	}
	return string(out), nil
}

func (r *Runner) prepareWorkDir(job model.RunJob) (string, error) {
	workDir, err := os.MkdirTemp("", "kernelboard-run-*")
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(filepath.Join(workDir, job.FileName), []byte(job.Code), 0o644); err != nil {
		os.RemoveAll(workDir)
		return "", err
	}
	if err := os.WriteFile(filepath.Join(workDir, "reference.py"), []byte(job.ReferenceCode), 0o644); err != nil {
		os.RemoveAll(workDir)
		return "", err
	}
	return workDir, nil
}

func (r *Runner) createContainer(ctx context.Context, job model.RunJob, workDir string) (string, error) {
	pl := int64(32)
	hostCfg := &container.HostConfig{
		NetworkMode: container.NetworkMode(network.NetworkNone),
		Resources: container.Resources{
			CPUPeriod: 100000,
			CPUQuota:  r.cpuQuota,
			Memory:    r.memBytes,
			PidsLimit: &pl,
		},
		Tmpfs: map[string]string{
			"/tmp": "rw,exec,nosuid,mode=0777,size=67108864",
		},
		Mounts: []mount.Mount{
			{
				Type:   mount.TypeBind,
				Source: workDir,
				Target: "/job",
			},
		},
	}
	cfg := &container.Config{
		Image: r.image,
		User:  "1000:1000",
		Env: []string{
			"KERNEL_FILE=/job/" + job.FileName,
			"REFERENCE_FILE=/job/reference.py",
			"OUTPUT_FILE=/job/" + outputFile,
			"TARGET=" + string(job.Target),
		},
		WorkingDir: "/job",
	}

	created, err := r.docker.ContainerCreate(ctx, client.ContainerCreateOptions{
		Config:           cfg,
		HostConfig:       hostCfg,
		NetworkingConfig: &network.NetworkingConfig{},
	})
	if err != nil {
		return "", err
	}
	return created.ID, nil
}

func (r *Runner) wait(ctx context.Context, id string) error {
	res := r.docker.ContainerWait(ctx, id, client.ContainerWaitOptions{
		Condition: container.WaitConditionNotRunning,
	})

	select {
	case err := <-res.Error:
		return fmt.Errorf("%w: wait: %v", apperr.ErrRunnerFailed, err)
	case <-res.Result:
		return nil
	case <-time.After(r.runTimeout):
		return fmt.Errorf("%w: run exceeded %s", apperr.ErrRunnerFailed, r.runTimeout)
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", apperr.ErrRunnerFailed, ctx.Err())
	}
}

func (r *Runner) removeContainer(ctx context.Context, id string) {
	timeout := 0
	r.docker.ContainerStop(ctx, id, client.ContainerStopOptions{Timeout: &timeout})
	r.docker.ContainerRemove(ctx, id, client.ContainerRemoveOptions{Force: true})
}
