package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"runtime"
	"time"

	"ai-video-cutter/config"
	"ai-video-cutter/internal/appdirs"
	"ai-video-cutter/internal/deps"
	"ai-video-cutter/internal/media"
	"ai-video-cutter/log"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	root := newRootCmd()
	root.SetOut(os.Stdout)
	root.SetErr(os.Stderr)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "video-cutter",
		Short:         "Upload a video, discuss cuts with a language model, export the result",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newServeCmd(), newProbeCmd(), newDoctorCmd(), newVersionCmd())
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			printVersion(cmd.OutOrStdout())
		},
	}
}

func printVersion(w io.Writer) {
	fmt.Fprintf(w, "version: %s\ncommit: %s\ndate: %s\n", version, commit, date)
}

func newDoctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Print runtime paths and media tool status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := config.LoadOrCreateConfig(); err != nil {
				return err
			}
			states := deps.ResolveDependencyInventory(mediaPaths(config.Conf.Media))
			printDiagnose(cmd.OutOrStdout(), states)
			return deps.CheckDependency(states)
		},
	}
}

func printDiagnose(w io.Writer, states []deps.DependencyState) {
	fmt.Fprintf(w, "runtime: %s/%s\n", runtime.GOOS, runtime.GOARCH)
	printVersion(w)

	if wd, err := os.Getwd(); err == nil {
		fmt.Fprintf(w, "working_dir: %s\n", wd)
	} else {
		fmt.Fprintf(w, "working_dir: <error: %v>\n", err)
	}

	if configPath, err := config.ResolveConfigPath(); err == nil {
		fmt.Fprintf(w, "config: %s\n", configPath)
	}
	if logPath, err := log.ResolveLogFilePath(); err == nil {
		fmt.Fprintf(w, "log: %s\n", logPath)
	}
	if dirs, err := appdirs.Resolve(); err == nil {
		fmt.Fprintf(w, "uploads: %s\n", appdirs.UploadRootFor(dirs))
		fmt.Fprintf(w, "processed: %s\n", appdirs.ProcessedRootFor(dirs))
		fmt.Fprintf(w, "database: %s\n", appdirs.DBPathFor(dirs))
	} else {
		fmt.Fprintf(w, "paths: <error: %v>\n", err)
	}
	fmt.Fprintf(w, "worker_mode: %s\n", config.Conf.App.WorkerMode)
	fmt.Fprintf(w, "llm: %s (%s)\n", config.Conf.Llm.Provider, config.Conf.Llm.Model)
	fmt.Fprintln(w)
	fmt.Fprintln(w, deps.FormatDependencyReport(states))
}

func newProbeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "probe <file>",
		Short: "Print the duration of a video file in seconds",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := config.LoadOrCreateConfig(); err != nil {
				return err
			}
			timeout, _ := cmd.Flags().GetDuration("timeout")
			states := deps.ResolveDependencyInventory(mediaPaths(config.Conf.Media))
			tool := media.NewTool(
				deps.Resolved(states, "ffmpeg", config.Conf.Media.FfmpegPath),
				deps.Resolved(states, "ffprobe", config.Conf.Media.FfprobePath),
			)

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			seconds, err := tool.ProbeDuration(ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%.3f\n", seconds)
			return nil
		},
	}
	cmd.Flags().Duration("timeout", time.Minute, "Probe timeout")
	return cmd
}

func mediaPaths(m config.Media) deps.MediaPaths {
	return deps.MediaPaths{Ffmpeg: m.FfmpegPath, Ffprobe: m.FfprobePath}
}
