// Package cli renders command output for Kensaku as text tables or JSON.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/olekukonko/tablewriter"

	"github.com/hyperjump/kensaku/internal/importer"
	"github.com/hyperjump/kensaku/internal/models"
)

// OutputFormat is the format for command output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

// ParseOutputFormat validates a --output flag value.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch OutputFormat(s) {
	case OutputText, "":
		return OutputText, nil
	case OutputJSON:
		return OutputJSON, nil
	}
	return "", fmt.Errorf("unknown output format %q; use text or json", s)
}

// Status is the summary printed by the status command.
type Status struct {
	Records        int64    `json:"records"`
	Documents      uint64   `json:"documents"`
	SourceHandler  string   `json:"source_handler,omitempty"`
	ContentTypes   []string `json:"content_types,omitempty"`
	DiskUsageBytes *int64   `json:"disk_usage_bytes,omitempty"`
}

// RenderTable writes rows as an ASCII table.
func RenderTable(w io.Writer, headers []string, rows [][]string) error {
	table := tablewriter.NewWriter(w)
	table.Header(headers)
	if err := table.Bulk(rows); err != nil {
		return err
	}
	return table.Render()
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func refRows(refs []models.ContentRef) [][]string {
	rows := make([][]string, len(refs))
	for i, ref := range refs {
		rows[i] = []string{strconv.Itoa(i + 1), ref.ContentType, strconv.FormatInt(ref.ContentID, 10)}
	}
	return rows
}

// WriteSearchResults writes a search response to w in the given format.
func WriteSearchResults(w io.Writer, response *models.SearchResponse, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, response)
	}
	for _, n := range response.Errors {
		fmt.Fprintf(w, "error [%s]: %s\n", n.Field, n.Message)
	}
	for _, n := range response.Warnings {
		fmt.Fprintf(w, "warning [%s]: %s\n", n.Field, n.Message)
	}
	fmt.Fprintf(w, "\nFound %d results in %dms\n\n", len(response.Results), response.QueryTime)
	if len(response.Results) == 0 {
		return nil
	}
	return RenderTable(w, []string{"#", "Content Type", "Content ID"}, refRows(response.Results))
}

// WriteUserContent writes a user's content listing.
func WriteUserContent(w io.Writer, userID int64, refs []models.ContentRef, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, map[string]any{"user_id": userID, "results": refs})
	}
	fmt.Fprintf(w, "\n%d items by user %d\n\n", len(refs), userID)
	if len(refs) == 0 {
		return nil
	}
	return RenderTable(w, []string{"#", "Content Type", "Content ID"}, refRows(refs))
}

// WriteImportResult writes per-step import counts.
func WriteImportResult(w io.Writer, res *importer.Result, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, res)
	}
	rows := make([][]string, 0, len(importer.Steps)+1)
	for _, step := range importer.Steps {
		rows = append(rows, []string{step, strconv.Itoa(res.Imported[step])})
	}
	rows = append(rows, []string{"skipped", strconv.Itoa(res.Skipped)})
	fmt.Fprintf(w, "\nImport %s: %d items in %s\n\n", res.RunID, res.Total(), res.Duration)
	return RenderTable(w, []string{"Step", "Items"}, rows)
}

// WriteStatus writes index and storage counters.
func WriteStatus(w io.Writer, st *Status, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, st)
	}
	rows := [][]string{
		{"records", strconv.FormatInt(st.Records, 10)},
		{"documents", strconv.FormatUint(st.Documents, 10)},
	}
	if st.SourceHandler != "" {
		rows = append(rows, []string{"source_handler", st.SourceHandler})
	}
	if st.DiskUsageBytes != nil {
		rows = append(rows, []string{"disk_usage_bytes", strconv.FormatInt(*st.DiskUsageBytes, 10)})
	}
	return RenderTable(w, []string{"Key", "Value"}, rows)
}
