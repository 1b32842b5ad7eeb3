// Package media drives ffprobe and ffmpeg for probing, stream-copy trimming
// and manifest concatenation.
package media

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"ai-video-cutter/internal/metrics"
	"ai-video-cutter/internal/types"
	"ai-video-cutter/log"
	apperrors "ai-video-cutter/pkg/errors"

	"go.uber.org/zap"
)

// maxErrOutput bounds how much tool output is carried in an error.
const maxErrOutput = 2048

// Runner executes an external program and returns its stdout.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ExecRunner runs programs with os/exec. WaitDelay bounds how long a killed
// process may hold its pipes open after the context ends.
type ExecRunner struct {
	WaitDelay time.Duration
}

func (r ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.WaitDelay = r.WaitDelay
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return stdout.Bytes(), fmt.Errorf("%s: %w: %s", name, err, tail(stderr.String()))
	}
	return stdout.Bytes(), nil
}

// Tool implements types.MediaTool.
type Tool struct {
	ffmpeg  string
	ffprobe string
	runner  Runner
	metrics *metrics.Collector
}

type Option func(*Tool)

func WithRunner(r Runner) Option {
	return func(t *Tool) { t.runner = r }
}

func WithMetrics(c *metrics.Collector) Option {
	return func(t *Tool) { t.metrics = c }
}

func NewTool(ffmpegPath, ffprobePath string, opts ...Option) *Tool {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	t := &Tool{
		ffmpeg:  ffmpegPath,
		ffprobe: ffprobePath,
		runner:  ExecRunner{WaitDelay: 5 * time.Second},
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

var _ types.MediaTool = (*Tool)(nil)

// ProbeDuration returns the container duration in seconds. It never falls
// back to a default.
func (t *Tool) ProbeDuration(ctx context.Context, path string) (float64, error) {
	out, err := t.runner.Run(ctx, t.ffprobe,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)
	if err != nil {
		err = t.toolError(ctx, apperrors.CodeProbeFailed, "Probe failed", "file: "+path, err)
		t.metrics.ToolInvocation("probe", err)
		return 0, err
	}

	raw := strings.TrimSpace(string(out))
	seconds, perr := strconv.ParseFloat(raw, 64)
	if perr != nil || seconds < 0 || math.IsInf(seconds, 0) || math.IsNaN(seconds) {
		reason := fmt.Errorf("unparsable duration %q", raw)
		if perr == nil && seconds < 0 {
			reason = fmt.Errorf("negative duration %q", raw)
		}
		err = apperrors.WrapWithDetail(apperrors.CodeProbeFailed, "Probe failed", "file: "+path, reason)
		t.metrics.ToolInvocation("probe", err)
		return 0, err
	}

	t.metrics.ToolInvocation("probe", nil)
	return seconds, nil
}

// Extract trims r out of sourcePath into destPath with stream copy. An
// existing destination is refused.
func (t *Tool) Extract(ctx context.Context, sourcePath string, r types.CutRange, destPath string) error {
	detail := fmt.Sprintf("range %s of %s", r, sourcePath)
	if _, err := os.Stat(destPath); err == nil {
		err = apperrors.WrapWithDetail(apperrors.CodeExtractionFailed, "Extraction failed", detail,
			fmt.Errorf("destination %s already exists", destPath))
		t.metrics.ToolInvocation("extract", err)
		return err
	}

	_, err := t.runner.Run(ctx, t.ffmpeg,
		"-hide_banner", "-loglevel", "error",
		"-n",
		"-ss", formatSeconds(r.Start),
		"-to", formatSeconds(r.End),
		"-i", sourcePath,
		"-c", "copy",
		"-avoid_negative_ts", "make_zero",
		destPath,
	)
	if err == nil {
		err = checkOutput(destPath)
	}
	if err != nil {
		err = t.toolError(ctx, apperrors.CodeExtractionFailed, "Extraction failed", detail, err)
		t.metrics.ToolInvocation("extract", err)
		return err
	}

	t.metrics.ToolInvocation("extract", nil)
	return nil
}

// Concat joins the files listed in manifestPath into destPath.
func (t *Tool) Concat(ctx context.Context, manifestPath string, destPath string) error {
	_, err := t.runner.Run(ctx, t.ffmpeg,
		"-hide_banner", "-loglevel", "error",
		"-n",
		"-f", "concat",
		"-safe", "0",
		"-i", manifestPath,
		"-c", "copy",
		destPath,
	)
	if err == nil {
		err = checkOutput(destPath)
	}
	if err != nil {
		err = t.toolError(ctx, apperrors.CodeAssemblyFailed, "Concatenation failed", "manifest: "+manifestPath, err)
		t.metrics.ToolInvocation("concat", err)
		return err
	}

	t.metrics.ToolInvocation("concat", nil)
	return nil
}

// toolError classifies a failed invocation. A finished context means the
// tool was killed, which is reported as a timeout.
func (t *Tool) toolError(ctx context.Context, code int, message, detail string, cause error) error {
	if ctxErr := apperrors.FromContext(ctx, message); ctxErr != nil {
		log.GetLogger().Warn("[Media] tool interrupted", zap.String("detail", detail), zap.Error(cause))
		return apperrors.WrapWithDetail(code, message, detail, ctxErr)
	}
	log.GetLogger().Error("[Media] tool failed", zap.String("detail", detail), zap.Error(cause))
	return apperrors.WrapWithDetail(code, message, detail, cause)
}

func checkOutput(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("output missing: %w", err)
	}
	if info.Size() == 0 {
		return fmt.Errorf("output %s is empty", path)
	}
	return nil
}

func formatSeconds(seconds float64) string {
	return strconv.FormatFloat(seconds, 'f', 3, 64)
}

func tail(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > maxErrOutput {
		return "..." + s[len(s)-maxErrOutput:]
	}
	return s
}
