// Command triage runs the lead triage engine over a saved quiz submission.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dallylee/pt-authority-hub-landing/internal/triage"
)

func main() {
	if err := newRootCmd(os.Stdin, os.Stdout).Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(stdin io.Reader, stdout io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:           "triage",
		Short:         "Score and diagnose PT Authority Hub quiz answers offline",
		SilenceUsage:  true,
	}
	root.SetOut(stdout)
	root.AddCommand(newScoreCmd(stdin))
	return root
}

func newScoreCmd(stdin io.Reader) *cobra.Command {
	var (
		wantsUpload bool
		output      string
	)

	cmd := &cobra.Command{
		Use:   "score [file|-]",
		Short: "Triage a JSON answers document read from a file or stdin",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if output != "json" && output != "text" {
				return fmt.Errorf("unknown output %q (use json or text)", output)
			}

			src := "-"
			if len(args) == 1 {
				src = args[0]
			}
			answers, err := readAnswers(src, stdin)
			if err != nil {
				return err
			}

			result := triage.Result{
				Score:     triage.ComputeTriageScore(answers),
				Diagnosis: triage.InferBottleneck(answers, wantsUpload || answers.WantsToUpload()),
			}

			if output == "json" {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(result)
			}
			return writeText(cmd.OutOrStdout(), result)
		},
	}

	cmd.Flags().BoolVar(&wantsUpload, "wants-upload", false, "treat the prospect as sharing training data")
	cmd.Flags().StringVarP(&output, "output", "o", "text", "output format: json or text")
	return cmd
}

func readAnswers(src string, stdin io.Reader) (triage.LeadAnswers, error) {
	var r io.Reader = stdin
	if src != "-" {
		f, err := os.Open(src)
		if err != nil {
			return triage.LeadAnswers{}, err
		}
		defer f.Close()
		r = f
	}

	var answers triage.LeadAnswers
	if err := json.NewDecoder(r).Decode(&answers); err != nil {
		return triage.LeadAnswers{}, fmt.Errorf("decode answers: %w", err)
	}
	return answers, nil
}

func writeText(w io.Writer, r triage.Result) error {
	var b strings.Builder
	fmt.Fprintf(&b, "Score:      %d\n", r.Score.Score)
	fmt.Fprintf(&b, "Segment:    %s\n", r.Segment)
	fmt.Fprintf(&b, "Fit risk:   %t\n", r.FitRisk)
	fmt.Fprintf(&b, "Bottleneck: %s (%s)\n", r.Bottleneck, r.Confidence)
	for _, reason := range r.Reasons {
		fmt.Fprintf(&b, "  - %s\n", reason)
	}
	_, err := io.WriteString(w, b.String())
	return err
}
