package report

import (
	"encoding/json"
	"os"
	"time"
)

func WriteJSONToFile(r *Results, path string) error {
	b, err := json.MarshalIndent(r, "", "  ")
	if err != nil { return err }
	return os.WriteFile(path, b, 0o644)
}

// MergeJSONFiles concatenates the runs and notes of several JSON reports.
func MergeJSONFiles(paths []string) (*Results, error) {
	out := Results{GeneratedAt: time.Now().UTC()}
	for _, p := range paths {
		b, err := os.ReadFile(p)
		if err != nil { return nil, err }
		var r Results
		if err := json.Unmarshal(b, &r); err != nil { return nil, err }
		out.Runs = append(out.Runs, r.Runs...)
		out.Notes = append(out.Notes, r.Notes...)
	}
	return &out, nil
}
