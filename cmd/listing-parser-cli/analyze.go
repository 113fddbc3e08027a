package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/spherical-ai/spherical/libs/listing-parser/pkg/magicparse"
)

// maxLineBytes bounds one line of batch input.
const maxLineBytes = 1 << 20

func newAnalyzeCmd() *cobra.Command {
	var (
		file  string
		title string
		html  bool
		raw   bool
	)

	cmd := &cobra.Command{
		Use:   "analyze [text]",
		Short: "Analyze one classified ad",
		Long: `Analyze extracts a structured listing draft from one ad.

The ad is taken from the argument, from --file, or from stdin when neither is
given. With --html the input is treated as description markup.`,
		Example: `  listing-parser-cli analyze "רכב טויוטה קורולה 2017, יד 1, 050-1234567"
  listing-parser-cli analyze --file ad.html --html --title "Toyota Corolla"
  cat ad.txt | listing-parser-cli analyze --kb knowledge.yaml --json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			input, err := readInput(args, file, cmd.InOrStdin())
			if err != nil {
				return err
			}
			req := magicparse.AnalyzeRequest{Title: title}
			if html {
				req.HTML = input
			} else {
				req.Text = input
			}
			if raw {
				useKB := false
				req.UseKnowledgeBase = &useKB
			}

			resp, err := analyzeOne(ctx, req)
			if err != nil {
				return err
			}

			if outputJSON {
				return writeJSON(cmd.OutOrStdout(), resp)
			}
			ui := NewUI(cmd.OutOrStdout(), false, noColor)
			defer ui.Close()
			renderResult(ui, resp)
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "read the ad from a file")
	cmd.Flags().StringVar(&title, "title", "", "listing title, placed on the first line")
	cmd.Flags().BoolVar(&html, "html", false, "treat the input as HTML")
	cmd.Flags().BoolVar(&raw, "no-kb", false, "skip knowledge-base corrections")

	return cmd
}

func analyzeOne(ctx context.Context, req magicparse.AnalyzeRequest) (*magicparse.AnalyzeResponse, error) {
	if serverURL != "" {
		return remoteClient().Analyze(ctx, req)
	}

	rt, err := localRuntime(ctx)
	if err != nil {
		return nil, err
	}
	defer rt.Close()
	return rt.Service.Analyze(ctx, req)
}

func newBatchCmd() *cobra.Command {
	var (
		input     string
		output    string
		chunkSize int
	)

	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Analyze a file of ads",
		Long: `Batch analyzes many ads and writes one JSON result per line.

Input is read from --input or stdin. Each non-empty line is either an
analyze request object ({"text": ..., "html": ..., "title": ...}) or plain
ad text. Results keep input order; lines that fail carry an "error".`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			in := cmd.InOrStdin()
			if input != "" && input != "-" {
				f, err := os.Open(input)
				if err != nil {
					return fmt.Errorf("open input: %w", err)
				}
				defer f.Close()
				in = f
			}
			reqs, err := readBatch(in)
			if err != nil {
				return err
			}
			if len(reqs) == 0 {
				return errors.New("no ads in input")
			}

			out := cmd.OutOrStdout()
			if output != "" && output != "-" {
				f, err := os.Create(output)
				if err != nil {
					return fmt.Errorf("create output: %w", err)
				}
				defer f.Close()
				out = f
			}

			ui := NewUI(cmd.ErrOrStderr(), outputJSON, noColor)
			bar := ui.ProgressBar("Analyzing", int64(len(reqs)))
			tick := func() {
				if bar != nil {
					bar.Increment()
				}
			}

			var lines []batchLine
			if serverURL != "" {
				lines, err = batchRemote(ctx, reqs, chunkSize, tick)
			} else {
				lines, err = batchLocal(ctx, reqs, tick)
			}
			if bar != nil && err != nil {
				bar.Abort(false)
			}
			ui.Close()
			if err != nil {
				return err
			}

			failed, err := writeBatch(out, lines)
			if err != nil {
				return err
			}
			ui.Success("Analyzed %d ads (%d failed)", len(lines)-failed, failed)
			return nil
		},
	}

	cmd.Flags().StringVarP(&input, "input", "i", "", "input file (default: stdin)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default: stdout)")
	cmd.Flags().IntVar(&chunkSize, "chunk-size", 100, "items per request with --server")

	return cmd
}

// batchLine is one line of batch output. Item counts non-blank input lines
// from 1.
type batchLine struct {
	Item     int                         `json:"item"`
	Response *magicparse.AnalyzeResponse `json:"response,omitempty"`
	Error    string                      `json:"error,omitempty"`
}

func batchLocal(ctx context.Context, reqs []magicparse.AnalyzeRequest, tick func()) ([]batchLine, error) {
	rt, err := localRuntime(ctx)
	if err != nil {
		return nil, err
	}
	defer rt.Close()

	result, err := rt.Service.AnalyzeBatch(ctx, reqs, tick)
	if err != nil {
		return nil, err
	}
	lines := make([]batchLine, len(reqs))
	for i, resp := range result.Responses {
		lines[i] = batchLine{Item: i + 1, Response: resp}
	}
	for _, itemErr := range result.Errors {
		lines[itemErr.Index].Error = itemErr.Err.Error()
	}
	return lines, nil
}

func batchRemote(ctx context.Context, reqs []magicparse.AnalyzeRequest, chunkSize int, tick func()) ([]batchLine, error) {
	if chunkSize <= 0 {
		chunkSize = 100
	}
	client := remoteClient()
	lines := make([]batchLine, len(reqs))

	for start := 0; start < len(reqs); start += chunkSize {
		end := min(start+chunkSize, len(reqs))
		resp, err := client.AnalyzeBatch(ctx, magicparse.BatchRequest{Items: reqs[start:end]})
		if err != nil {
			return nil, fmt.Errorf("analyze items %d-%d: %w", start+1, end, err)
		}
		for i := start; i < end; i++ {
			lines[i] = batchLine{Item: i + 1}
			if j := i - start; j < len(resp.Results) {
				lines[i].Response = resp.Results[j]
			}
			tick()
		}
		for _, itemErr := range resp.Errors {
			lines[start+itemErr.Index].Error = itemErr.Error
		}
	}
	return lines, nil
}

func writeBatch(w io.Writer, lines []batchLine) (failed int, err error) {
	bw := bufio.NewWriter(w)
	enc := json.NewEncoder(bw)
	enc.SetEscapeHTML(false)
	for _, l := range lines {
		if l.Error != "" {
			failed++
		}
		if err := enc.Encode(l); err != nil {
			return failed, fmt.Errorf("write result: %w", err)
		}
	}
	return failed, bw.Flush()
}

// readInput returns the ad from the argument, the file, or r, in that order.
func readInput(args []string, file string, r io.Reader) (string, error) {
	if len(args) > 0 {
		return args[0], nil
	}
	if file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			return "", fmt.Errorf("read %s: %w", file, err)
		}
		return string(data), nil
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("read stdin: %w", err)
	}
	return string(data), nil
}

// readBatch parses batch input: one request object or plain ad per line.
// Blank lines are skipped.
func readBatch(r io.Reader) ([]magicparse.AnalyzeRequest, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)

	var reqs []magicparse.AnalyzeRequest
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		if line[0] != '{' {
			reqs = append(reqs, magicparse.AnalyzeRequest{Text: string(line)})
			continue
		}
		var req magicparse.AnalyzeRequest
		if err := json.Unmarshal(line, &req); err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		reqs = append(reqs, req)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read input: %w", err)
	}
	return reqs, nil
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// renderResult prints an analysis for people.
func renderResult(ui *UI, resp *magicparse.AnalyzeResponse) {
	r := resp.Result

	ui.Section("Listing")
	if r.Title != "" {
		ui.KeyValue("Title", r.Title)
	}
	ui.KeyValue("Category", fmt.Sprintf("%s (%s)", r.CategoryLabel, r.Category))
	ui.KeyValue("Condition", fmt.Sprintf("%s (%s)", r.ConditionLabel, r.Condition))
	if r.Price != nil {
		ui.KeyValue("Price", formatPrice(*r.Price))
	}
	if r.Make != "" || r.Model != "" {
		ui.KeyValue("Vehicle", strings.TrimSpace(r.Make+" "+r.Model))
	}
	if r.Year != nil {
		ui.KeyValue("Year", *r.Year)
	}
	if r.Hand != nil {
		ui.KeyValue("Hand", *r.Hand)
	}
	if r.Kilometrage != nil {
		ui.KeyValue("Kilometrage", *r.Kilometrage)
	}
	if r.ContactInfo != "" {
		ui.KeyValue("Contact", strings.Join(r.Phones, ", "))
	}
	if len(r.Highlights) > 0 {
		ui.KeyValue("Highlights", strings.Join(r.Highlights, ", "))
	}

	if len(r.Attributes) > 0 {
		ui.Section("Attributes")
		rows := make([][]string, 0, len(r.Attributes))
		for _, a := range r.Attributes {
			rows = append(rows, []string{a.Key, a.Value, a.Unit})
		}
		ui.Table([]string{"Key", "Value", "Unit"}, rows)
	}

	if len(r.MissingFields) > 0 {
		ui.Section("Missing")
		for _, f := range r.MissingFields {
			ui.Step("%s", f)
		}
	}
	for _, w := range r.Warnings {
		ui.Warning("%s", w)
	}

	ui.Section("Analysis")
	ui.KeyValue("ID", resp.ID)
	if r.KnowledgeVersion != "" {
		ui.KeyValue("Knowledge", r.KnowledgeVersion)
	}
	ui.KeyValue("Cached", resp.Cached)
	ui.KeyValue("Latency", FormatDuration(time.Duration(resp.LatencyMs)*time.Millisecond))
}

func formatPrice(p float64) string {
	s := strconv.FormatFloat(p, 'f', -1, 64)
	whole, frac, _ := strings.Cut(s, ".")
	var b strings.Builder
	for i, c := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(c)
	}
	if frac != "" {
		b.WriteString("." + frac)
	}
	return b.String() + " ₪"
}
