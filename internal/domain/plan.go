package domain

// Script names. Each maps to a file <name>.sql in the query set.
const (
	ScriptTagMaximal   = "10_tag_maximal_events"
	ScriptCleanup      = "11_cleanup"
	ScriptMatchReport  = "qa_match_report"
	SpeciesCodesScript = "species_codes"
)

// ProcessPlan is the ordered list of scripts run by the process command.
type ProcessPlan struct {
	// Steps run once each, in order, before the species loop.
	Steps []string
	// PerSpecies runs once per species code with the code as its only parameter.
	PerSpecies string
	// SpeciesQuery returns the distinct species codes, ordered.
	SpeciesQuery string
	Cleanup      string
	Report       string
}

// DefaultPlan returns the plan that references observations to the stream
// network and tags maximal events.
func DefaultPlan() ProcessPlan {
	return ProcessPlan{
		Steps: []string{
			"01_clean-fishobs",
			"02_clean-wdic",
			"03_create-prelim-table",
			"04_add-waterbodies",
			"05_add-streams-100m-lookup",
			"06_add-streams-100m-closest",
			"07_add-streams-100m-500m",
			"08_create-outputs",
			"09_create-events-vw",
		},
		PerSpecies:   ScriptTagMaximal,
		SpeciesQuery: SpeciesCodesScript,
		Cleanup:      ScriptCleanup,
		Report:       ScriptMatchReport,
	}
}

// Scripts returns every script name the plan references.
func (p ProcessPlan) Scripts() []string {
	names := make([]string, 0, len(p.Steps)+4)
	names = append(names, p.Steps...)
	return append(names, p.SpeciesQuery, p.PerSpecies, p.Cleanup, p.Report)
}
