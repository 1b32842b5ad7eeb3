// Package assembler turns a timeline of cut ranges into one output file.
package assembler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"ai-video-cutter/internal/types"
	"ai-video-cutter/log"
	apperrors "ai-video-cutter/pkg/errors"

	"go.uber.org/zap"
)

const manifestName = "concat_list.txt"

// Assembler extracts every range into a job-scoped scratch directory and
// joins the pieces. A call either publishes a complete output file or leaves
// nothing behind.
type Assembler struct {
	tool     types.MediaTool
	workRoot string
}

func New(tool types.MediaTool, workRoot string) *Assembler {
	return &Assembler{tool: tool, workRoot: workRoot}
}

// Assemble writes the ranges of timeline, in order, to outputPath and returns
// it. An existing outputPath is refused.
func (a *Assembler) Assemble(ctx context.Context, jobID, sourcePath string, timeline types.Timeline, outputPath string) (string, error) {
	if timeline.Len() == 0 {
		return "", apperrors.New(apperrors.CodeInvalidRange, "No cut ranges to assemble")
	}
	if _, err := os.Stat(outputPath); err == nil {
		return "", failed(jobID, fmt.Errorf("output %s already exists", outputPath))
	}
	if err := os.MkdirAll(a.workRoot, 0o755); err != nil {
		return "", failed(jobID, fmt.Errorf("create work root: %w", err))
	}

	workDir, err := os.MkdirTemp(a.workRoot, "job-"+jobID+"-*")
	if err != nil {
		return "", failed(jobID, fmt.Errorf("create job directory: %w", err))
	}
	defer func() {
		if rmErr := os.RemoveAll(workDir); rmErr != nil {
			log.GetLogger().Warn("[Assembler] remove job directory failed",
				zap.String("job_id", jobID), zap.String("dir", workDir), zap.Error(rmErr))
		}
	}()

	ext := filepath.Ext(sourcePath)
	if ext == "" {
		ext = ".mp4"
	}

	segments := make([]string, 0, timeline.Len())
	for i, r := range timeline.Ranges() {
		if err := apperrors.FromContext(ctx, "segment extraction"); err != nil {
			return "", failed(jobID, err)
		}
		segment := filepath.Join(workDir, fmt.Sprintf("segment_%03d%s", i, ext))
		if err := a.tool.Extract(ctx, sourcePath, r, segment); err != nil {
			return "", failed(jobID, fmt.Errorf("segment %d %s: %w", i, r, err))
		}
		segments = append(segments, segment)
		log.GetLogger().Debug("[Assembler] segment extracted",
			zap.String("job_id", jobID), zap.Int("index", i), zap.String("range", r.String()))
	}

	staged := segments[0]
	if len(segments) > 1 {
		manifest := filepath.Join(workDir, manifestName)
		if err := writeManifest(manifest, segments); err != nil {
			return "", failed(jobID, err)
		}
		joinedExt := filepath.Ext(outputPath)
		if joinedExt == "" {
			joinedExt = ext
		}
		staged = filepath.Join(workDir, "joined"+joinedExt)
		if err := a.tool.Concat(ctx, manifest, staged); err != nil {
			return "", failed(jobID, fmt.Errorf("concat %d segments: %w", len(segments), err))
		}
	}

	if err := publish(staged, outputPath); err != nil {
		return "", failed(jobID, err)
	}

	log.GetLogger().Info("[Assembler] output assembled",
		zap.String("job_id", jobID),
		zap.Int("segments", len(segments)),
		zap.Float64("seconds", timeline.Total()),
		zap.String("output", outputPath))
	return outputPath, nil
}

func failed(jobID string, cause error) error {
	return apperrors.WrapWithDetail(apperrors.CodeAssemblyFailed, "Assembly failed", "job_id: "+jobID, cause)
}

// writeManifest writes a concat demuxer list with one quoted absolute path
// per line.
func writeManifest(path string, segments []string) error {
	var b strings.Builder
	for _, segment := range segments {
		abs, err := filepath.Abs(segment)
		if err != nil {
			return fmt.Errorf("resolve segment path: %w", err)
		}
		b.WriteString("file ")
		b.WriteString(quoteManifestPath(abs))
		b.WriteByte('\n')
	}
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	return nil
}

// quoteManifestPath single-quotes p; embedded quotes become '\''.
func quoteManifestPath(p string) string {
	return "'" + strings.ReplaceAll(p, "'", `'\''`) + "'"
}

// publish moves staged to dest without ever replacing an existing file. A
// hard link is tried first; when the directories are on different devices
// the file is copied into an exclusively created destination.
func publish(staged, dest string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	err := os.Link(staged, dest)
	if err == nil {
		return nil
	}
	if errors.Is(err, fs.ErrExist) {
		return fmt.Errorf("output %s already exists", dest)
	}
	return copyExclusive(staged, dest)
}

func copyExclusive(src, dest string) (err error) {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open staged output: %w", err)
	}
	defer in.Close()

	out, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}
	defer func() {
		if err != nil {
			_ = os.Remove(dest)
		}
	}()

	if _, err = io.Copy(out, in); err != nil {
		_ = out.Close()
		return fmt.Errorf("copy output: %w", err)
	}
	if err = out.Sync(); err != nil {
		_ = out.Close()
		return fmt.Errorf("sync output: %w", err)
	}
	if err = out.Close(); err != nil {
		return fmt.Errorf("close output: %w", err)
	}
	return nil
}
