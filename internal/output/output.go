// Package output renders scan and ping results as a table, JSON or YAML.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"gopkg.in/yaml.v3"

	"github.com/anstrom/pingscan/internal/profiles"
	"github.com/anstrom/pingscan/internal/results"
	"github.com/anstrom/pingscan/internal/scan"
	"github.com/anstrom/pingscan/internal/services"
)

// Format selects how results are written.
type Format string

const (
	FormatTable Format = "table"
	FormatJSON  Format = "json"
	FormatYAML  Format = "yaml"
)

// Formats lists the supported formats.
var Formats = []Format{FormatTable, FormatJSON, FormatYAML}

// ParseFormat validates a format name.
func ParseFormat(name string) (Format, error) {
	f := Format(strings.ToLower(strings.TrimSpace(name)))
	switch f {
	case FormatTable, FormatJSON, FormatYAML:
		return f, nil
	case "yml":
		return FormatYAML, nil
	}
	return "", fmt.Errorf("unsupported output format %q (use table, json or yaml)", name)
}

// Document is the serialised form of a snapshot.
type Document struct {
	Results   results.Table                `json:"results" yaml:"results"`
	Hosts     map[string]results.HostState `json:"hosts" yaml:"hosts"`
	Summary   results.Summary              `json:"summary" yaml:"summary"`
	Progress  results.Progress             `json:"progress" yaml:"progress"`
	Finalized bool                         `json:"finalized" yaml:"finalized"`
}

// NewDocument builds a Document from a snapshot.
func NewDocument(snap *results.Snapshot) Document {
	return Document{
		Results:   snap.Table,
		Hosts:     snap.Hosts,
		Summary:   snap.Summary(),
		Progress:  snap.Progress(),
		Finalized: snap.Finalized,
	}
}

// WriteSnapshot writes a scan snapshot in the given format.
func WriteSnapshot(w io.Writer, format Format, snap *results.Snapshot) error {
	if snap == nil {
		return fmt.Errorf("no results to write")
	}
	switch format {
	case FormatJSON:
		return writeJSON(w, NewDocument(snap))
	case FormatYAML:
		return writeYAML(w, NewDocument(snap))
	case FormatTable, "":
		return writeSnapshotTable(w, snap)
	}
	return fmt.Errorf("unsupported output format %q", format)
}

// WritePings writes ping results in the given format.
func WritePings(w io.Writer, format Format, pings []scan.PingResult) error {
	switch format {
	case FormatJSON:
		return writeJSON(w, pings)
	case FormatYAML:
		return writeYAML(w, pings)
	case FormatTable, "":
		return writePingTable(w, pings)
	}
	return fmt.Errorf("unsupported output format %q", format)
}

// WriteProfiles writes scan profiles in the given format.
func WriteProfiles(w io.Writer, format Format, list []*profiles.Profile) error {
	switch format {
	case FormatJSON:
		return writeJSON(w, list)
	case FormatYAML:
		return writeYAML(w, list)
	case FormatTable, "":
		return writeProfileTable(w, list)
	}
	return fmt.Errorf("unsupported output format %q", format)
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeYAML(w io.Writer, v interface{}) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}

func writeSnapshotTable(w io.Writer, snap *results.Snapshot) error {
	table := tablewriter.NewWriter(w)
	table.Header("Address", "Host", "Protocol", "Port", "State", "Duration", "Failure")

	plan := snap.Plan()
	for _, addr := range snap.Addresses() {
		host, _ := snap.Host(addr)
		for _, e := range plan.Entries() {
			for _, port := range e.Ports {
				slot, _ := snap.Slot(addr, e.Protocol, port)
				row := []string{addr, string(host), string(e.Protocol), formatPort(port)}
				row = append(row, slotColumns(slot)...)
				if err := table.Append(row); err != nil {
					return err
				}
			}
		}
	}
	if err := table.Render(); err != nil {
		return err
	}

	sum, progress := snap.Summary(), snap.Progress()
	_, err := fmt.Fprintf(w, "\n%d hosts: %d up, %d down, %d unknown (%d/%d probes completed)\n",
		len(snap.Hosts), sum.Up, sum.Down, sum.Unknown, progress.Completed, progress.Total)
	return err
}

func writePingTable(w io.Writer, pings []scan.PingResult) error {
	table := tablewriter.NewWriter(w)
	table.Header("Address", "Result", "Duration", "Failure")

	var ok int
	for _, p := range pings {
		result := "failed"
		switch {
		case p.Pending:
			result = "pending"
		case p.Succeeded:
			result = "ok"
			ok++
		}
		failure := ""
		if p.Failure != nil {
			failure = string(*p.Failure)
		}
		if err := table.Append([]string{p.Address, result, formatDuration(p.Duration), failure}); err != nil {
			return err
		}
	}
	if err := table.Render(); err != nil {
		return err
	}

	_, err := fmt.Fprintf(w, "\n%d/%d addresses answered\n", ok, len(pings))
	return err
}

func slotColumns(slot results.Slot) []string {
	o, ok := slot.Outcome()
	if !ok {
		return []string{"pending", "", ""}
	}
	failure := ""
	if o.Failure != nil {
		failure = string(*o.Failure)
	}
	return []string{string(o.State), formatDuration(o.Duration), failure}
}

func formatPort(port int) string {
	if port == services.NoPort {
		return "-"
	}
	return strconv.Itoa(port)
}

func formatDuration(d *time.Duration) string {
	if d == nil {
		return ""
	}
	return d.Round(time.Microsecond).String()
}

func writeProfileTable(w io.Writer, list []*profiles.Profile) error {
	table := tablewriter.NewWriter(w)
	table.Header("Name", "Services", "Timeout", "Built-in", "Description")

	for _, p := range list {
		timeout := ""
		if p.Timeout > 0 {
			timeout = p.Timeout.String()
		}
		builtIn := "no"
		if p.BuiltIn {
			builtIn = "yes"
		}
		row := []string{p.Name, formatServices(p.Services), timeout, builtIn, p.Description}
		if err := table.Append(row); err != nil {
			return err
		}
	}
	return table.Render()
}

// formatServices renders a service map as "icmp; tcp 22,80" in protocol
// order.
func formatServices(specs map[string]string) string {
	if len(specs) == 0 {
		return "all (defaults)"
	}
	parts := make([]string, 0, len(specs))
	for _, proto := range services.Protocols {
		spec, ok := specs[string(proto)]
		if !ok {
			continue
		}
		switch {
		case proto == services.ICMP:
			parts = append(parts, string(proto))
		case spec == "":
			parts = append(parts, string(proto)+" defaults")
		default:
			parts = append(parts, string(proto)+" "+spec)
		}
	}
	return strings.Join(parts, "; ")
}
