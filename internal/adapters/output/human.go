package output

import (
	"fmt"
	"io"
	"strconv"

	"github.com/pterm/pterm"

	"github.com/mikey-austin/np_relay/internal/core"
	"github.com/mikey-austin/np_relay/pkg/np"
)

// HumanPrinter prints human-readable output, to stdout unless Out is set.
type HumanPrinter struct {
	Out io.Writer
}

// Print renders human output.
func (p HumanPrinter) Print(v any) error {
	w := writerOrStdout(p.Out)
	switch data := v.(type) {
	case core.NowPlayingResult:
		return printNowPlaying(w, data)
	case core.ProbeResult:
		return printProbe(w, data)
	case core.StationsResult:
		return printStations(w, data)
	case core.CheckResult:
		return printCheck(w, data)
	default:
		_, err := fmt.Fprintln(w, "ok")
		return err
	}
}

func renderTable(w io.Writer, rows pterm.TableData) error {
	table, err := pterm.DefaultTable.WithHasHeader().WithData(rows).Srender()
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, table)
	return err
}

func printNowPlaying(w io.Writer, result core.NowPlayingResult) error {
	rows := pterm.TableData{{"STATION", "STATUS", "TRACK", "LISTENERS", "BITRATE", "PROTOCOL", "NOTE"}}
	for _, outcome := range result.Outcomes {
		rows = append(rows, []string{
			outcome.Station.Label(),
			formatStatus(outcome.Result),
			formatTrack(outcome.Result),
			formatListeners(outcome.Result),
			formatBitrate(outcome.Result.StreamMeta.BitrateKbps),
			outcome.Protocol.String(),
			outcome.ErrorText(),
		})
	}
	return renderTable(w, rows)
}

func printProbe(w io.Writer, result core.ProbeResult) error {
	outcome := result.Outcome
	meta := outcome.Result.StreamMeta
	lines := [][2]string{
		{"url", outcome.Station.BaseURL},
		{"protocol", outcome.Protocol.String()},
		{"state", outcome.State.String()},
		{"status", formatStatus(outcome.Result)},
		{"track", formatTrack(outcome.Result)},
		{"listeners", formatListeners(outcome.Result)},
		{"bitrate", formatBitrate(meta.BitrateKbps)},
		{"format", meta.Format},
		{"server", meta.ServerName},
		{"genre", meta.Genre},
		{"error", outcome.ErrorText()},
	}
	for _, line := range lines {
		if line[1] == "" {
			continue
		}
		if _, err := fmt.Fprintf(w, "%-10s %s\n", line[0]+":", line[1]); err != nil {
			return err
		}
	}
	return nil
}

func printStations(w io.Writer, result core.StationsResult) error {
	if len(result.Stations) == 0 {
		_, err := fmt.Fprintln(w, "(none)")
		return err
	}
	rows := pterm.TableData{{"ID", "NAME", "URL", "PROTOCOL", "MOUNT"}}
	for _, station := range result.Stations {
		rows = append(rows, []string{
			station.ID,
			station.Name,
			station.BaseURL,
			station.ProtocolHint.String(),
			station.MountPoint,
		})
	}
	return renderTable(w, rows)
}

func printCheck(w io.Writer, result core.CheckResult) error {
	state := "not running"
	if result.Running {
		state = "running"
	}
	_, err := fmt.Fprintln(w, state)
	return err
}

func formatStatus(result np.NowPlayingResult) string {
	if result.IsOnline {
		return "online"
	}
	return "offline"
}

func formatTrack(result np.NowPlayingResult) string {
	if !result.IsOnline {
		return ""
	}
	track := result.CurrentTrack
	text := track.Text
	if text == "" {
		text = "(unknown)"
	}
	if track.DurationSeconds > 0 {
		return fmt.Sprintf("%s [%s / %s]", text, formatSeconds(track.ElapsedSeconds), formatSeconds(track.DurationSeconds))
	}
	if track.ElapsedSeconds > 0 {
		return fmt.Sprintf("%s [%s]", text, formatSeconds(track.ElapsedSeconds))
	}
	return text
}

func formatListeners(result np.NowPlayingResult) string {
	if !result.IsOnline {
		return ""
	}
	out := strconv.Itoa(result.Listeners.Current)
	if result.Listeners.Unique != nil {
		out += fmt.Sprintf(" (%d unique)", *result.Listeners.Unique)
	}
	return out
}

func formatBitrate(kbps *int) string {
	if kbps == nil {
		return ""
	}
	return fmt.Sprintf("%d kbps", *kbps)
}

func formatSeconds(secs int) string {
	if secs <= 0 {
		return "0:00"
	}
	if secs >= 3600 {
		return fmt.Sprintf("%d:%02d:%02d", secs/3600, (secs%3600)/60, secs%60)
	}
	return fmt.Sprintf("%d:%02d", secs/60, secs%60)
}
