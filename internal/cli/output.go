package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/dl-alexandre/savegem/internal/types"
	"github.com/dl-alexandre/savegem/internal/utils"
	"github.com/google/uuid"
	"github.com/olekukonko/tablewriter"
)

// OutputWriter prints command results either as the JSON envelope or as a
// table
type OutputWriter struct {
	format   types.OutputFormat
	quiet    bool
	verbose  bool
	stdout   io.Writer
	stderr   io.Writer
	warnings []types.CLIWarning
}

func NewOutputWriter(format types.OutputFormat, quiet, verbose bool) *OutputWriter {
	return &OutputWriter{
		format:   format,
		quiet:    quiet,
		verbose:  verbose,
		stdout:   os.Stdout,
		stderr:   os.Stderr,
		warnings: []types.CLIWarning{},
	}
}

func (w *OutputWriter) AddWarning(code, message, severity string) {
	w.warnings = append(w.warnings, types.CLIWarning{
		Code:     code,
		Message:  message,
		Severity: severity,
	})
}

// WriteSuccess writes data under command
func (w *OutputWriter) WriteSuccess(command string, data interface{}) error {
	if w.format == types.OutputFormatJSON {
		return w.writeJSON(w.envelope(command, data, nil))
	}
	return w.writeTable(command, data)
}

// WriteError writes cliErr and returns it as an error so RunE can hand it
// back to Execute for the exit code
func (w *OutputWriter) WriteError(command string, cliErr types.CLIError) error {
	if w.format == types.OutputFormatJSON {
		if err := w.writeJSON(w.envelope(command, nil, []types.CLIError{cliErr})); err != nil {
			return err
		}
	} else {
		fmt.Fprintf(w.stderr, "Error: %s\n", cliErr.Message)
	}
	return &reportedError{utils.NewAppError(cliErr)}
}

func (w *OutputWriter) envelope(command string, data interface{}, errs []types.CLIError) types.CLIOutput {
	if errs == nil {
		errs = []types.CLIError{}
	}
	return types.CLIOutput{
		SchemaVersion: utils.SchemaVersion,
		TraceID:       uuid.New().String(),
		Command:       command,
		Data:          data,
		Warnings:      w.warnings,
		Errors:        errs,
	}
}

func (w *OutputWriter) writeJSON(output types.CLIOutput) error {
	encoder := json.NewEncoder(w.stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(output)
}

func (w *OutputWriter) writeTable(command string, data interface{}) error {
	for _, warning := range w.warnings {
		w.Log("Warning: %s", warning.Message)
	}
	switch v := data.(type) {
	case types.TableRenderer:
		return w.renderTable(v)
	case types.TableRenderable:
		return w.renderTable(v.AsTableRenderer())
	case map[string]interface{}:
		return w.writeKeyValues(v)
	default:
		return w.writeJSON(w.envelope(command, data, nil))
	}
}

func (w *OutputWriter) renderTable(renderer types.TableRenderer) error {
	rows := renderer.Rows()
	if len(rows) == 0 {
		if !w.quiet {
			fmt.Fprintln(w.stdout, renderer.EmptyMessage())
		}
		return nil
	}

	table := w.newTable(renderer.Headers())
	table.AppendBulk(rows)
	table.Render()
	return nil
}

func (w *OutputWriter) writeKeyValues(data map[string]interface{}) error {
	table := w.newTable([]string{"Key", "Value"})
	for _, key := range sortedKeys(data) {
		table.Append([]string{key, fmt.Sprint(data[key])})
	}
	table.Render()
	return nil
}

func (w *OutputWriter) newTable(headers []string) *tablewriter.Table {
	table := tablewriter.NewWriter(w.stdout)
	table.SetHeader(headers)
	table.SetBorder(false)
	table.SetAutoWrapText(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	return table
}

// Log writes to stderr unless quiet
func (w *OutputWriter) Log(format string, args ...interface{}) {
	if !w.quiet {
		fmt.Fprintf(w.stderr, format+"\n", args...)
	}
}

func (w *OutputWriter) Verbose(format string, args ...interface{}) {
	if w.verbose {
		fmt.Fprintf(w.stderr, "[VERBOSE] "+format+"\n", args...)
	}
}

// reportedError marks an error that WriteError already printed
type reportedError struct {
	*utils.AppError
}

func (e *reportedError) Unwrap() error {
	return e.AppError
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
