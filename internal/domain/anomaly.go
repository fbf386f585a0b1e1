package domain

import (
	"fmt"
	"sort"
	"time"
)

// AnomalyResult is everything the anomaly join produces for one file.
type AnomalyResult struct {
	Records     []AnomalyRecord
	Findings    []Finding // missing_timestamps and baseline_missing
	MajorEvents []MajorEvent
}

// ComputeAnomalies joins accepted observations against the baseline index
// and derives the file's coverage diagnostics over grid, the file's complete
// hourly span.
//
// The grid must come from the file's parseable timestamps before value
// filtering, not from the accepted observations: a boundary hour whose every
// reading was rejected still belongs to the span, and its silence must
// surface as coverage findings rather than quietly shrinking the range.
//
// The join is inner: an observation with no baseline entry contributes no
// record, but is counted into a per-(site, item) baseline_missing finding.
// Each (site, item) with fewer distinct hours than the grid gets one
// missing_timestamps finding, and grid hours absent from every station's
// accepted observations become major events. Coverage is computed before the
// join so baseline availability cannot masquerade as network silence.
func ComputeAnomalies(file string, obs []Observation, grid []time.Time, idx *BaselineIndex) AnomalyResult {
	var res AnomalyResult
	if len(grid) == 0 {
		return res
	}

	// Per-group distinct hours, and the network-wide union of hours.
	groupHours := make(map[siteItem]map[time.Time]bool)
	networkHours := make(map[time.Time]bool)
	for _, o := range obs {
		t := o.Time.Truncate(time.Hour)
		key := siteItem{o.Site, o.Item}
		if groupHours[key] == nil {
			groupHours[key] = make(map[time.Time]bool)
		}
		groupHours[key][t] = true
		networkHours[t] = true
	}

	for _, key := range sortedSiteItems(groupHours) {
		if missing := len(grid) - len(groupHours[key]); missing > 0 {
			res.Findings = append(res.Findings, Finding{
				File: file, Site: key.Site, Item: key.Item,
				Kind:   FindingMissingTimestamps,
				Detail: fmt.Sprintf("%d hours missing", missing),
			})
		}
	}

	for _, t := range grid {
		if !networkHours[t] {
			res.MajorEvents = append(res.MajorEvents, MajorEvent{
				File: file, Time: t, Event: MajorEventDescription,
			})
		}
	}

	missCounts := make(map[siteItem]int)
	for _, o := range obs {
		expected, ok := idx.Lookup(o.Item, o.Site, o.Time)
		if !ok {
			missCounts[siteItem{o.Site, o.Item}]++
			continue
		}
		res.Records = append(res.Records, AnomalyRecord{
			Time:    o.Time,
			Site:    o.Site,
			Item:    o.Item,
			Anomaly: o.Value - expected,
		})
	}

	for _, key := range sortedSiteItems(missCounts) {
		res.Findings = append(res.Findings, Finding{
			File: file, Site: key.Site, Item: key.Item,
			Kind:   FindingBaselineMissing,
			Detail: fmt.Sprintf("%d observations with no baseline entry", missCounts[key]),
		})
	}

	sort.Slice(res.Records, func(i, j int) bool {
		a, b := res.Records[i], res.Records[j]
		if a.Site != b.Site {
			return a.Site < b.Site
		}
		if a.Item != b.Item {
			return a.Item < b.Item
		}
		return a.Time.Before(b.Time)
	})

	return res
}
