package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/srg/blescan/internal/eventbus"
	"github.com/srg/blescan/internal/gatt"
	"github.com/srg/blescan/internal/session"
)

// palette colors terminal output; a disabled palette renders plain text.
type palette struct {
	service *color.Color
	attr    *color.Color
	value   *color.Color
	muted   *color.Color
	good    *color.Color
	bad     *color.Color
}

func newPalette(enabled bool) *palette {
	p := &palette{
		service: color.New(color.FgCyan, color.Bold),
		attr:    color.New(color.FgWhite),
		value:   color.New(color.FgGreen),
		muted:   color.New(color.FgHiBlack),
		good:    color.New(color.FgGreen),
		bad:     color.New(color.FgRed),
	}
	for _, c := range []*color.Color{p.service, p.attr, p.value, p.muted, p.good, p.bad} {
		if enabled {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return p
}

// outputPalette colors output only for terminals, honoring NO_COLOR.
func outputPalette(w io.Writer) *palette {
	return newPalette(isTerminal(w) && !color.NoColor)
}

// truncate shortens s to at most limit runes, marking the cut with "...".
func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit-3]) + "..."
}

func renderPeripheralTable(w io.Writer, peripherals []session.PeripheralSummary, now time.Time) error {
	if len(peripherals) == 0 {
		_, err := fmt.Fprintln(w, "No devices discovered")
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tID\tRSSI\tSTATE\tSERVICES\tLAST SEEN")

	for _, p := range peripherals {
		name := p.Name
		if name == "" {
			name = "-"
		}
		lastSeen := "-"
		if !p.LastSeen.IsZero() {
			lastSeen = now.Sub(p.LastSeen).Truncate(time.Second).String() + " ago"
		}
		fmt.Fprintf(tw, "%s\t%s\t%d dBm\t%s\t%s\t%s\n",
			truncate(name, 20), p.ID, p.RSSI, p.State, truncate(strings.Join(p.Services, ","), 30), lastSeen)
	}
	return tw.Flush()
}

type peripheralJSON struct {
	ID          string   `json:"id"`
	Name        string   `json:"name,omitempty"`
	RSSI        int      `json:"rssi"`
	Connectable bool     `json:"connectable"`
	State       string   `json:"state"`
	Services    []string `json:"services"`
	LastError   string   `json:"last_error,omitempty"`
	LastSeen    string   `json:"last_seen,omitempty"` // RFC3339
}

func toPeripheralJSON(p session.PeripheralSummary) peripheralJSON {
	entry := peripheralJSON{
		ID:          p.ID,
		Name:        p.Name,
		RSSI:        p.RSSI,
		Connectable: p.Connectable,
		State:       p.State.String(),
		Services:    p.Services,
	}
	if entry.Services == nil {
		entry.Services = []string{}
	}
	if p.LastError != nil {
		entry.LastError = p.LastError.Error()
	}
	if !p.LastSeen.IsZero() {
		entry.LastSeen = p.LastSeen.Format(time.RFC3339)
	}
	return entry
}

func renderPeripheralJSON(w io.Writer, peripherals []session.PeripheralSummary) error {
	out := make([]peripheralJSON, 0, len(peripherals))
	for _, p := range peripherals {
		out = append(out, toPeripheralJSON(p))
	}
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(out)
}

// renderTree prints the attribute tree one node per line, indented by level:
//
//	Heart Rate [180d]
//	  Heart Rate Measurement [2a37] = 0648
//	    Client Characteristic Configuration [2902] = 0100
func renderTree(w io.Writer, p session.PeripheralSummary, tree *gatt.Tree, colors *palette) error {
	header := p.ID
	if p.Name != "" {
		header = fmt.Sprintf("%s (%s)", p.Name, p.ID)
	}
	if _, err := fmt.Fprintln(w, header); err != nil {
		return err
	}
	if tree.ChildCount(gatt.Root) == 0 {
		_, err := fmt.Fprintln(w, "  no services discovered")
		return err
	}

	var err error
	tree.Walk(func(depth int, n gatt.Node) bool {
		if err != nil {
			return false
		}
		var line strings.Builder
		line.WriteString(strings.Repeat("  ", depth+1))

		name := tree.DisplayValue(n.ID, gatt.ColumnName)
		if n.Kind == gatt.KindService {
			line.WriteString(colors.service.Sprint(name))
		} else {
			line.WriteString(colors.attr.Sprint(name))
		}
		if name != n.UUID {
			line.WriteString(colors.muted.Sprintf(" [%s]", n.UUID))
		}
		if n.Value != nil {
			line.WriteString(" = ")
			line.WriteString(colors.value.Sprint(formatValue(tree.DisplayValue(n.ID, gatt.ColumnValue))))
		}
		_, err = fmt.Fprintln(w, line.String())
		return true
	})
	return err
}

func formatValue(hexValue string) string {
	if hexValue == "" {
		return "(empty)"
	}
	return hexValue
}

type exploreJSON struct {
	Peripheral peripheralJSON `json:"peripheral"`
	Services   *gatt.Tree     `json:"services"`
}

func renderTreeJSON(w io.Writer, p session.PeripheralSummary, tree *gatt.Tree) error {
	out := exploreJSON{
		Peripheral: toPeripheralJSON(p),
		Services:   tree,
	}
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(out)
}

// describeEvent renders one bus event for --watch output. ok is false for
// events not worth a line.
func describeEvent(e eventbus.Event, colors *palette) (line string, ok bool) {
	switch ev := e.(type) {
	case eventbus.HardwareEnabled:
		return colors.good.Sprint("radio ready"), true
	case eventbus.HardwareDisabled:
		return colors.bad.Sprintf("radio unavailable (%s)", ev.State), true
	case eventbus.ScanStarted:
		return "scan started", true
	case eventbus.ScanStopped:
		return "scan stopped", true
	case eventbus.PeripheralDiscovered:
		name := ev.Name
		if name == "" {
			name = "-"
		}
		if ev.New {
			return fmt.Sprintf("%s %s %s %d dBm", colors.good.Sprint("+"), ev.Peripheral, name, ev.RSSI), true
		}
		return fmt.Sprintf("%s %s %s %d dBm", colors.muted.Sprint("~"), ev.Peripheral, name, ev.RSSI), true
	case eventbus.Connected:
		return fmt.Sprintf("%s connected", ev.Peripheral), true
	case eventbus.ConnectFailed:
		return colors.bad.Sprintf("%s connect failed: %v", ev.Peripheral, ev.Err), true
	case eventbus.Disconnected:
		if ev.Err != nil {
			return colors.bad.Sprintf("%s disconnected: %v", ev.Peripheral, ev.Err), true
		}
		return fmt.Sprintf("%s disconnected", ev.Peripheral), true
	}
	return "", false
}
