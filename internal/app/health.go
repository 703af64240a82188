package app

import (
	"strings"

	"github.com/agis/gridcal/internal/contract"
)

type healthResult struct {
	Ready     bool
	Degraded  bool
	NextSteps []string
	Notes     []string
}

// buildHealth summarizes doctor checks. A failing file, database or parse
// check means no command can read events; unresolved records only degrade.
func buildHealth(checks []contract.DoctorCheck, derr error, path string) healthResult {
	res := healthResult{Ready: true}

	status := func(name string) (string, bool) {
		for _, c := range checks {
			if strings.EqualFold(strings.TrimSpace(c.Name), name) {
				return strings.ToLower(strings.TrimSpace(c.Status)), true
			}
		}
		return "", false
	}

	fileStatus, hasFile := status("source_file")
	dbStatus, hasDB := status("source_db")
	switch {
	case !hasFile && !hasDB:
		res.Ready = false
		res.NextSteps = append(res.NextSteps, "Point --source (or GRIDCAL_SOURCE) at an existing .json, .yaml, .ics or .db file.")
	case hasFile && fileStatus != "ok", hasDB && dbStatus != "ok":
		res.Ready = false
		res.NextSteps = append(res.NextSteps, "Check that "+path+" exists and is readable.")
	}
	if st, ok := status("source_parse"); ok && st != "ok" {
		res.Ready = false
		res.NextSteps = append(res.NextSteps, "Fix the syntax errors reported by source_parse.")
	}
	if st, ok := status("source_table"); ok && st != "ok" {
		res.Ready = false
		res.NextSteps = append(res.NextSteps, "Create an events table with id, title, start, end and all_day columns.")
	}
	if st, ok := status("source_records"); ok && st != "ok" {
		res.Degraded = true
		res.Notes = append(res.Notes, "Some records cannot be resolved and are skipped; --strict turns them into errors.")
		res.NextSteps = append(res.NextSteps, "List the skipped records with: `gridcal events list --from -365d --to +365d --plain`")
	}
	if st, ok := status("layout_config"); ok && st != "ok" {
		res.Ready = false
		res.NextSteps = append(res.NextSteps, "Fix the [layout] table or the --start-hour/--end-hour/--row-height flags.")
	}

	if res.Ready {
		res.NextSteps = append(res.NextSteps, "Verify the layout with: `gridcal day --json`")
	}
	if derr != nil && !res.Ready {
		res.Notes = append(res.Notes, derr.Error())
	}
	return res
}
