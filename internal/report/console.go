package report

import (
	"fmt"
	"io"

	"github.com/fatih/color"

	"cbcflip/internal/flip"
)

var (
	good = color.New(color.FgGreen)
	bad  = color.New(color.FgRed)
	warn = color.New(color.FgYellow)
	info = color.New(color.FgCyan)
)

// WriteConsole prints a human-readable summary of every run.
func WriteConsole(w io.Writer, r *Results) {
	for _, run := range r.Runs {
		info.Fprintf(w, "\n[*] %s (run %s)\n", run.Target, run.RunID)
		for _, p := range run.Positions {
			fmt.Fprintf(w, "[+] Byte %d: old=%s, new=%s, offset=%d, expected=%s\n", p.Index, p.Old, p.New, p.Offset, p.Expected)
			if len(p.Candidates) == 0 {
				bad.Fprintf(w, "[-] Byte %d: none of 256 candidates produced a response containing %q\n", p.Index, run.Success)
				continue
			}
			warn.Fprintf(w, "[!] Found %d candidate(s) whose response contained %q:\n", len(p.Candidates), run.Success)
			for _, c := range p.Candidates {
				fmt.Fprintf(w, "    candidate=%s, status=%d, resp=%q\n", c.Value, c.Status, c.Snippet)
				fmt.Fprintf(w, "       session=%s\n", c.Token)
			}
			if p.Chosen != "" {
				fmt.Fprintf(w, "[+] Byte %d: chose candidate=%s\n", p.Index, p.Chosen)
			}
		}
		switch run.State {
		case flip.Finalized:
			good.Fprintf(w, "[+] All differing bytes done after %d requests\n", run.Requests)
			if run.FinalStatus != 0 || run.FinalBody != "" {
				fmt.Fprintf(w, "[+] Final status code: %d\n", run.FinalStatus)
				fmt.Fprintf(w, "[+] Final response:\n%s\n", run.FinalBody)
			}
			good.Fprintln(w, "[!] The final tampered session (base64) is:")
			fmt.Fprintln(w, run.FinalToken)
		default:
			bad.Fprintf(w, "[-] Run %s: %s\n", run.State, run.Error)
			if run.FinalToken != "" {
				fmt.Fprintf(w, "[-] Last committed session (base64): %s\n", run.FinalToken)
			}
		}
	}
}
