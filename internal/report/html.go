package report

import (
	"fmt"
	"html"
	"sort"
	"strings"

	"cbcflip/internal/flip"
)

func RenderHTML(r *Results) string {
	var b strings.Builder
	b.WriteString("<!doctype html><html><head><meta charset=\"utf-8\"><meta name=\"color-scheme\" content=\"light dark\"><title>cbcflip report</title>")
	b.WriteString(`<style>
body{font-family:ui-sans-serif,system-ui,-apple-system,Segoe UI,Roboto,Helvetica,Arial,sans-serif;margin:24px;background:#ffffff;color:#111}
.h{font-weight:700;margin:0 0 8px 0}
.card{border:1px solid #eee;border-radius:8px;padding:12px;margin:12px 0;background:#fff}
.badge{display:inline-block;padding:2px 8px;border-radius:999px;font-size:12px;margin-left:8px}
.pass{background:#e6ffed;color:#006644}
.fail{background:#ffebe6;color:#bf2600}
.inc{background:#e6f7ff;color:#0747a6}
.section{margin-top:16px;padding-top:8px;border-top:1px solid #f0f0f0}
table{border-collapse:collapse;width:100%;font-size:14px}
th{text-align:left;border-bottom:1px solid #ddd}
td{padding:6px 4px;vertical-align:top}
code{word-break:break-all}
@media (prefers-color-scheme: dark){
  body{background:#0b0b0b;color:#e6e6e6}
  .card{border-color:#2a2a2a;background:#121212}
  .section{border-top-color:#1a1a1a}
  .pass{background:#003d1f;color:#8dffb3}
  .fail{background:#3d0000;color:#ffb3b3}
  .inc{background:#002b4d;color:#8dccff}
}
@media print{
  body{margin:8mm}
  .card{page-break-inside:avoid}
}
</style>`)
	b.WriteString("</head><body>")
	b.WriteString("<h1 class=\"h\">cbcflip report</h1>")
	b.WriteString(fmt.Sprintf("<div>Generated: %s</div>", r.GeneratedAt.Format(timeLayout)))

	var done, aborted int
	for _, run := range r.Runs {
		if run.State == flip.Finalized { done++ } else { aborted++ }
	}
	b.WriteString(fmt.Sprintf("<div class=\"section\"><div class=\"h\">Overall: <span class=\"badge pass\">FINALIZED %d</span> <span class=\"badge fail\">NOT FINALIZED %d</span></div></div>", done, aborted))
	for _, n := range r.Notes {
		b.WriteString("<div>" + html.EscapeString(n) + "</div>")
	}

	for _, run := range r.Runs {
		cl := "fail"
		if run.State == flip.Finalized { cl = "pass" }
		b.WriteString("<div class=card>")
		b.WriteString(fmt.Sprintf("<div class=h>%s <span class=\"badge %s\">%s</span> <span class=\"badge inc\">%d requests</span></div>",
			html.EscapeString(run.Target), cl, run.State, run.Requests))
		b.WriteString(fmt.Sprintf("<div>Run: <code>%s</code> &middot; cookie <code>%s</code> &middot; block %d &middot; %s</div>",
			html.EscapeString(run.RunID), html.EscapeString(run.Cookie), run.BlockSize, html.EscapeString(run.Layout)))
		b.WriteString(fmt.Sprintf("<div>Success substring: <code>%s</code></div>", html.EscapeString(run.Success)))
		if len(run.Params) > 0 {
			b.WriteString("<div>Params: <code>" + html.EscapeString(formatParams(run.Params)) + "</code></div>")
		}
		if run.Error != "" {
			b.WriteString("<div class=\"badge fail\">" + html.EscapeString(run.Error) + "</div>")
		}
		if len(run.Positions) > 0 {
			b.WriteString("<table class=section><thead><tr><th>Byte</th><th>Offset</th><th>Old</th><th>New</th><th>Expected</th><th>Chosen</th><th>Candidates</th></tr></thead><tbody>")
			for _, p := range run.Positions {
				b.WriteString(fmt.Sprintf("<tr><td>%d</td><td>%d</td><td>%s</td><td>%s</td><td>%s</td><td>%s</td><td>", p.Index, p.Offset, p.Old, p.New, p.Expected, choose(p.Chosen == "", "-", p.Chosen)))
				for _, c := range p.Candidates {
					b.WriteString(fmt.Sprintf("<div>%s &middot; %d &middot; <code>%s</code></div>", c.Value, c.Status, html.EscapeString(c.Snippet)))
				}
				b.WriteString("</td></tr>")
			}
			b.WriteString("</tbody></table>")
		}
		if run.FinalToken != "" {
			b.WriteString("<div class=section><div class=h>Final token</div><code>" + html.EscapeString(run.FinalToken) + "</code></div>")
		}
		if run.FinalStatus != 0 || run.FinalBody != "" {
			b.WriteString(fmt.Sprintf("<div class=section><div class=h>Final response (status %d)</div><pre style=\"white-space:pre-wrap\">%s</pre></div>", run.FinalStatus, html.EscapeString(run.FinalBody)))
		}
		b.WriteString("</div>")
	}
	b.WriteString("</body></html>")
	return b.String()
}

const timeLayout = "2006-01-02 15:04:05 MST"

func formatParams(p map[string][]string) string {
	keys := make([]string, 0, len(p))
	for k := range p { keys = append(keys, k) }
	sort.Strings(keys)
	var parts []string
	for _, k := range keys {
		for _, v := range p[k] { parts = append(parts, k+"="+v) }
	}
	return strings.Join(parts, " ")
}

func choose[T any](cond bool, a, b T) T {
	if cond { return a }
	return b
}
