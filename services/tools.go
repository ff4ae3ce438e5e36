package services

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/resoul/shortsgen/config"
)

const probeTimeout = 10 * time.Second

// ToolRunner abstracts the external binaries the pipeline shells out to,
// so they can be swapped or mocked in tests. Implementations must honour
// context cancellation by terminating the invocation.
type ToolRunner interface {
	// FetchMedia downloads the media at url to destPath using the
	// downloader binary.
	FetchMedia(ctx context.Context, url, destPath string) error
	// Transcode runs the media processor binary with the given arguments.
	Transcode(ctx context.Context, args ...string) error
	// Probe returns the media duration in seconds.
	Probe(ctx context.Context, path string) (float64, error)
}

// ExecToolRunner invokes ffmpeg, ffprobe and yt-dlp as subprocesses. Each
// invocation runs in its own process group and the whole group is killed on
// cancellation, so tool children never outlive the job.
type ExecToolRunner struct {
	cfg config.ToolsConfig
}

func NewExecToolRunner(cfg config.ToolsConfig) *ExecToolRunner {
	return &ExecToolRunner{cfg: cfg}
}

func (r *ExecToolRunner) FetchMedia(ctx context.Context, url, destPath string) error {
	return r.run(ctx, r.cfg.YtdlpPath,
		"--no-playlist",
		"--merge-output-format", "mp4",
		"-o", destPath,
		url,
	)
}

func (r *ExecToolRunner) Transcode(ctx context.Context, args ...string) error {
	return r.run(ctx, r.cfg.FfmpegPath, append([]string{"-y", "-loglevel", "error"}, args...)...)
}

func (r *ExecToolRunner) Probe(ctx context.Context, path string) (float64, error) {
	probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	cmd := exec.CommandContext(probeCtx, r.cfg.FfprobePath,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)

	out, err := cmd.Output()
	if err != nil {
		if probeCtx.Err() != nil {
			return 0, fmt.Errorf("ffprobe timed out: %w", probeCtx.Err())
		}
		return 0, fmt.Errorf("ffprobe execution failed: %w", err)
	}

	return parseProbeDuration(string(out)), nil
}

func (r *ExecToolRunner) run(ctx context.Context, bin string, args ...string) error {
	runCtx, cancel := context.WithTimeout(ctx, r.cfg.MaxDuration())
	defer cancel()

	cmd := exec.CommandContext(runCtx, bin, args...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}

	output, err := cmd.CombinedOutput()
	if err != nil {
		if runCtx.Err() != nil {
			return fmt.Errorf("%s terminated: %w", bin, runCtx.Err())
		}
		return fmt.Errorf("%s execution failed: %w\nOutput: %s", bin, err, string(output))
	}

	return nil
}

// parseProbeDuration mirrors ffprobe's nokey output; empty or malformed
// output falls back to a nominal clip length rather than failing the job.
func parseProbeDuration(out string) float64 {
	trimmed := strings.TrimSpace(out)
	if trimmed == "" {
		return 4.0
	}

	duration, err := strconv.ParseFloat(trimmed, 64)
	if err != nil {
		return 4.0
	}
	return duration
}
