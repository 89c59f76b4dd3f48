package domain

import (
	"fmt"
	"io"
	"strings"
	"time"
)

// MatchReportRow is one line of the QA match report.
type MatchReportRow struct {
	MatchType      string `json:"match_type"`
	DistinctEvents int64  `json:"n_distinct_events"`
	Observations   int64  `json:"n_observations"`
}

// RunSummary describes a finished command run.
type RunSummary struct {
	Command    string           `json:"command"`
	StartedAt  time.Time        `json:"started_at"`
	FinishedAt time.Time        `json:"finished_at"`
	Steps      []string         `json:"steps"`
	Species    []string         `json:"species,omitempty"`
	Cleanup    bool             `json:"cleanup"`
	Report     []MatchReportRow `json:"report,omitempty"`
}

const (
	matchTypeWidth = 65
	countWidth     = 15
)

// reportSeparator is 98 dashes, the width of a fully padded row.
var reportSeparator = strings.Repeat("-", 98)

// FormatMatchReport writes the match report as fixed-width columns separated
// by "| ". Values longer than their column are written in full.
func FormatMatchReport(w io.Writer, rows []MatchReportRow) error {
	if _, err := fmt.Fprintln(w, reportLine("match_type", "n_distinct_events", "n_observations")); err != nil {
		return err
	}
	if _, err := fmt.Fprintln(w, reportSeparator); err != nil {
		return err
	}
	for _, r := range rows {
		line := reportLine(r.MatchType, fmt.Sprint(r.DistinctEvents), fmt.Sprint(r.Observations))
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}

func reportLine(matchType, events, observations string) string {
	return fmt.Sprintf("%-*s| %-*s| %-*s",
		matchTypeWidth, matchType,
		countWidth, events,
		countWidth, observations,
	)
}
