package domain

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// maxRangeExamples caps how many out-of-range example rows are reported per
// item so a single broken instrument cannot flood the report.
const maxRangeExamples = 5

type siteItem struct {
	Site string
	Item string
}

func sortedSiteItems[T any](m map[siteItem]T) []siteItem {
	keys := make([]siteItem, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Site != keys[j].Site {
			return keys[i].Site < keys[j].Site
		}
		return keys[i].Item < keys[j].Item
	})
	return keys
}

// ValidateAndClean filters raw rows into accepted observations and records
// one finding per defect class. The checks are independent: every class is
// collected even when an earlier one already rejected rows elsewhere in the
// file.
//
// Rows with unparseable timestamps are dropped without individual findings;
// their absence surfaces later through missing_timestamps and major-event
// detection. Items absent from specs pass through without range checking.
func ValidateAndClean(file string, rows []RawRow, specs map[string]ItemSpec) ([]Observation, []Finding) {
	var findings []Finding

	nullCounts := make(map[siteItem]int)
	type candidate struct {
		row   RawRow
		value float64
	}
	var parsed []candidate

	for _, row := range rows {
		if !row.TimeValid {
			continue
		}
		if strings.TrimSpace(row.Value) == "" {
			nullCounts[siteItem{row.Site, row.Item}]++
			continue
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(row.Value), 64)
		if err != nil {
			findings = append(findings, Finding{
				File: file, Site: row.Site, Item: row.Item,
				Kind:   FindingInvalidText,
				Detail: fmt.Sprintf("value: %q", row.Value),
			})
			continue
		}
		parsed = append(parsed, candidate{row: row, value: v})
	}

	for _, key := range sortedSiteItems(nullCounts) {
		findings = append(findings, Finding{
			File: file, Site: key.Site, Item: key.Item,
			Kind:   FindingNullValue,
			Detail: fmt.Sprintf("%d records with empty value", nullCounts[key]),
		})
	}

	// Range check per item; the example cap is per item, not per station.
	rangeExamples := make(map[string]int)
	clean := make([]Observation, 0, len(parsed))
	for _, c := range parsed {
		spec, known := specs[c.row.Item]
		if known && (c.value < spec.Min || c.value > spec.Max) {
			if rangeExamples[c.row.Item] < maxRangeExamples {
				rangeExamples[c.row.Item]++
				findings = append(findings, Finding{
					File: file, Site: c.row.Site, Item: c.row.Item,
					Kind:   FindingOutOfRange,
					Detail: fmt.Sprintf("value: %g (limit: %g~%g)", c.value, spec.Min, spec.Max),
				})
			}
			continue
		}
		clean = append(clean, Observation{
			Time:  c.row.Time,
			Site:  c.row.Site,
			Item:  c.row.Item,
			Value: c.value,
		})
	}

	return clean, findings
}
