package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/stemsi/lessonflow/internal/engine"
	"golang.org/x/term"
)

var previewCmd = &cobra.Command{
	Use:   "preview <file.json>",
	Short: "Print the sections, gates and cut-points of a lesson document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		premium, _ := cmd.Flags().GetBool("premium")
		raw, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		color := term.IsTerminal(int(os.Stdout.Fd()))
		return preview(cmd.OutOrStdout(), raw, premium, color)
	},
}

func init() {
	previewCmd.Flags().Bool("premium", false, "Include premium pages")
}

func preview(w io.Writer, raw []byte, premium, color bool) error {
	doc, err := engine.ParseDocument(raw)
	if err != nil {
		return err
	}
	blocks, err := engine.Assemble(doc, engine.AssembleOptions{Premium: premium})
	if err != nil {
		return err
	}

	p := painter{color: color}
	fmt.Fprintln(w, p.bold(doc.Title))
	if doc.AudioURL != "" {
		fmt.Fprintln(w, "audio:", doc.AudioURL)
	}
	fmt.Fprintln(w)

	sections := engine.Segment(blocks)
	for _, sec := range sections {
		header := fmt.Sprintf("[%s] %s", sec.Type, sec.ID)
		switch {
		case sec.IsGate():
			header = p.yellow(header)
		case sec.Visible():
			header = p.green(header)
		default:
			header = p.dim(header + " (locked by " + sec.PrecedingQuizID + ")")
		}
		fmt.Fprintln(w, header)
		for i, b := range sec.Blocks {
			fmt.Fprintf(w, "  %3d  %-14s %s\n", sec.Start+i, b.Type, b.ID)
		}
	}

	tl := engine.BuildTimeline(sections)
	if len(tl.CutPoints) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, p.bold("cut-points"))
		for _, cp := range tl.CutPoints {
			fmt.Fprintf(w, "  %s  %s\n", engine.FormatTime(cp.Time), cp.GatingSectionID)
		}
	}
	return nil
}

// painter adds ANSI colours when writing to a terminal.
type painter struct{ color bool }

func (p painter) wrap(code, s string) string {
	if !p.color {
		return s
	}
	return "\033[" + code + "m" + s + "\033[0m"
}

func (p painter) bold(s string) string   { return p.wrap("1", s) }
func (p painter) green(s string) string  { return p.wrap("32", s) }
func (p painter) yellow(s string) string { return p.wrap("33", s) }
func (p painter) dim(s string) string    { return p.wrap("2", s) }
