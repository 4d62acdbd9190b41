package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jward/modelsync"
	"github.com/jward/modelsync/internal/watch"
)

var loadCmd = &cobra.Command{
	Use:   "load [path]",
	Short: "Load a project and print a summary of its model",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := openProject(cmd.Context(), args)
		if err != nil {
			return outputError(cmd, "load", err)
		}
		defer p.Close()
		res := CLISummary{Project: p.engine.Summary()}
		if p.global != nil {
			g := p.global.Summary()
			res.Global = &g
		}
		return outputResult(cmd, CLIResult{Command: "load", Results: res})
	},
}

var flagPartition string

var dumpCmd = &cobra.Command{
	Use:   "dump [path]",
	Short: "Print a partition of the model as an indented tree",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := openProject(cmd.Context(), args)
		if err != nil {
			return outputError(cmd, "dump", err)
		}
		defer p.Close()
		out, err := p.engine.Dump(flagPartition)
		if err != nil {
			return outputError(cmd, "dump", err)
		}
		return outputResult(cmd, CLIResult{Command: "dump", Results: CLIDump{Partition: flagPartition, Tree: out}})
	},
}

func init() {
	dumpCmd.Flags().StringVar(&flagPartition, "partition", modelsync.PartitionMain, "partition: main|unloaded|orphan")
}

// errInconsistent makes check and verify exit non-zero after printing.
var errInconsistent = errors.New("model and files disagree")

var checkCmd = &cobra.Command{
	Use:   "check [path]",
	Short: "Compare the loaded model with a fresh scan of the files",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := openProject(cmd.Context(), args)
		if err != nil {
			return outputError(cmd, "check", err)
		}
		defer p.Close()
		report := p.engine.CheckConsistency()
		problems := make([]CLIProblem, 0, len(report.Problems))
		for _, pr := range report.Problems {
			problems = append(problems, CLIProblem{Kind: string(pr.Kind), File: pr.File, Source: sourceString(pr.Source), Detail: pr.Detail})
		}
		if err := outputResult(cmd, CLIResult{Command: "check", Results: problems}); err != nil {
			return err
		}
		if !report.OK() {
			errorHandled = true
			return errInconsistent
		}
		return nil
	},
}

var verifyCmd = &cobra.Command{
	Use:   "verify [path]",
	Short: "List files whose saved form would differ from the disk",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := openProject(cmd.Context(), args)
		if err != nil {
			return outputError(cmd, "verify", err)
		}
		defer p.Close()
		mismatches, err := p.engine.Verify(p.cfg.VolatileComponents)
		if err != nil {
			return outputError(cmd, "verify", err)
		}
		out := make([]CLIMismatch, 0, len(mismatches))
		for _, m := range mismatches {
			out = append(out, CLIMismatch{File: m.File, Kind: m.Kind})
		}
		if err := outputResult(cmd, CLIResult{Command: "verify", Results: out}); err != nil {
			return err
		}
		if len(out) > 0 {
			errorHandled = true
			return errInconsistent
		}
		return nil
	},
}

var saveCmd = &cobra.Command{
	Use:   "save [path]",
	Short: "Load a project and write every file back in canonical form",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := openProject(cmd.Context(), args)
		if err != nil {
			return outputError(cmd, "save", err)
		}
		defer p.Close()
		res, err := p.engine.SaveAll(cmd.Context())
		if err != nil {
			return outputError(cmd, "save", err)
		}
		return outputResult(cmd, CLIResult{Command: "save", Results: CLISave{
			Written:   nonNil(res.Written),
			Deleted:   nonNil(res.Deleted),
			Unchanged: res.Unchanged,
		}})
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch [path]",
	Short: "Reload the model whenever its files change",
	Long:  "Loads the project, then reloads the affected part of the model after each quiet period of file changes until interrupted.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := openProject(cmd.Context(), args)
		if err != nil {
			return outputError(cmd, "watch", err)
		}
		defer p.Close()
		p.logger.Info("watching", "root", p.root)
		err = p.engine.Watch(cmd.Context(), watch.WithLogger(p.logger))
		if errors.Is(err, cmd.Context().Err()) {
			return nil
		}
		return outputError(cmd, "watch", fmt.Errorf("watch: %w", err))
	},
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
