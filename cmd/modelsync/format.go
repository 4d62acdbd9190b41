package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/jward/modelsync"
)

// formatSummaryText formats a scope summary as readable text.
func formatSummaryText(w io.Writer, title string, s modelsync.Summary) {
	fmt.Fprintln(w, title)
	fmt.Fprintln(w, strings.Repeat("=", len(title)))
	fmt.Fprintf(w, "Root: %s\n", s.Root)
	fmt.Fprintf(w, "Files: %d\n", s.Files)
	if !s.Global {
		fmt.Fprintf(w, "Modules: %s\n", strings.Join(s.Modules, ", "))
		if len(s.UnloadedModules) > 0 {
			fmt.Fprintf(w, "Unloaded: %s\n", strings.Join(s.UnloadedModules, ", "))
		}
		fmt.Fprintf(w, "Orphans: %d\n", s.Orphans)
	}
	if len(s.Counts) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Entities:")
		kinds := make([]string, 0, len(s.Counts))
		for kind := range s.Counts {
			kinds = append(kinds, kind)
		}
		sort.Strings(kinds)
		for _, kind := range kinds {
			fmt.Fprintf(w, "  %s: %d\n", kind, s.Counts[kind])
		}
	}
}

// formatProblemsText formats consistency problems as aligned columns.
func formatProblemsText(w io.Writer, problems []CLIProblem) {
	if len(problems) == 0 {
		fmt.Fprintln(w, "consistent")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "KIND\tFILE\tSOURCE\tDETAIL")
	for _, p := range problems {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", p.Kind, p.File, p.Source, p.Detail)
	}
	tw.Flush()
}

// formatMismatchesText formats verify results as aligned columns.
func formatMismatchesText(w io.Writer, mismatches []CLIMismatch) {
	if len(mismatches) == 0 {
		fmt.Fprintln(w, "up to date")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "KIND\tFILE")
	for _, m := range mismatches {
		fmt.Fprintf(tw, "%s\t%s\n", m.Kind, m.File)
	}
	tw.Flush()
}

// formatSaveText lists written and deleted files.
func formatSaveText(w io.Writer, s CLISave) {
	for _, f := range s.Written {
		fmt.Fprintf(w, "wrote %s\n", f)
	}
	for _, f := range s.Deleted {
		fmt.Fprintf(w, "deleted %s\n", f)
	}
	fmt.Fprintf(w, "%d unchanged\n", s.Unchanged)
}

// outputResultText dispatches to the appropriate text formatter based on the
// result type.
func outputResultText(w io.Writer, result CLIResult) error {
	switch v := result.Results.(type) {
	case CLISummary:
		formatSummaryText(w, "Project", v.Project)
		if v.Global != nil {
			fmt.Fprintln(w)
			formatSummaryText(w, "Global", *v.Global)
		}
	case CLIDump:
		fmt.Fprint(w, v.Tree)
	case []CLIProblem:
		formatProblemsText(w, v)
	case []CLIMismatch:
		formatMismatchesText(w, v)
	case CLISave:
		formatSaveText(w, v)
	case nil:
	default:
		return fmt.Errorf("unsupported result type for text format: %T", v)
	}
	return nil
}

// outputResult writes result to the command's stdout in the selected format.
func outputResult(cmd *cobra.Command, result CLIResult) error {
	if flagFormat == "text" {
		return outputResultText(cmd.OutOrStdout(), result)
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

// outputError writes an error in the selected format and returns it so RunE
// can propagate it to Cobra. In JSON mode the error is written to stdout as a
// CLIResult envelope. In text mode it goes to stderr.
func outputError(cmd *cobra.Command, command string, err error) error {
	errorHandled = true
	if flagFormat == "text" {
		fmt.Fprintf(cmd.ErrOrStderr(), "Error: %s\n", err)
		return err
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	_ = enc.Encode(CLIResult{Command: command, Error: err.Error()})
	return err
}

// validFormats lists accepted values for --format.
var validFormats = []string{"json", "text"}

// validateFormat checks that the --format flag value is recognized.
func validateFormat(format string) error {
	for _, f := range validFormats {
		if format == f {
			return nil
		}
	}
	return fmt.Errorf("invalid format %q: must be %s", format, strings.Join(validFormats, " or "))
}
