// Package dataset holds the persisted activity dataset, the merge that folds a fresh harvest
// into it and the stores it is saved to.
package dataset

import (
	"math"
	"sort"
	"time"
)

// Activity is one activity row of a runner. Distance is in miles and is nil when the page
// showed something that could not be read as a distance.
type Activity struct {
	Date     string   `json:"date"`
	Distance *float64 `json:"distance"`
	Type     string   `json:"type"`
	Duration string   `json:"duration"`
	Pace     string   `json:"pace"`
}

// NotAvailable is stored for duration and pace when the detail page did not show them.
const NotAvailable = "N/A"

// Miles is a convenience for building activities with a known distance.
func Miles(v float64) *float64 {
	return &v
}

func (a Activity) equal(b Activity) bool {
	if a.Date != b.Date || a.Type != b.Type || a.Duration != b.Duration || a.Pace != b.Pace {
		return false
	}
	if a.Distance == nil || b.Distance == nil {
		return a.Distance == nil && b.Distance == nil
	}
	return *a.Distance == *b.Distance
}

type Stats struct {
	TotalActivities int      `json:"totalActivities"`
	TotalDistance   float64  `json:"totalDistance"`
	ActivityTypes   []string `json:"activityTypes"`
}

type Runner struct {
	Name       string     `json:"name"`
	Stats      Stats      `json:"stats"`
	Activities []Activity `json:"activities"`
}

type Metadata struct {
	LastUpdated     string `json:"lastUpdated"`
	TotalRunners    int    `json:"totalRunners"`
	TotalActivities int    `json:"totalActivities"`
}

// Dataset is the document written at the end of every run.
type Dataset struct {
	Runners  map[string]Runner `json:"runners"`
	Metadata Metadata          `json:"metadata"`
}

// LastUpdatedLayout is the layout of Metadata.LastUpdated.
const LastUpdatedLayout = "2006-01-02T15:04:05.000000"

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// ComputeStats derives the stats of a runner from its activities.
func ComputeStats(activities []Activity) Stats {
	total := 0.0
	types := map[string]struct{}{}
	for _, a := range activities {
		if a.Distance != nil {
			total += *a.Distance
		}
		types[a.Type] = struct{}{}
	}

	sortedTypes := make([]string, 0, len(types))
	for t := range types {
		sortedTypes = append(sortedTypes, t)
	}
	sort.Strings(sortedTypes)

	return Stats{
		TotalActivities: len(activities),
		TotalDistance:   round2(total),
		ActivityTypes:   sortedTypes,
	}
}

// SortActivities orders activities by ascending date string, keeping the relative order of
// activities on the same date.
func SortActivities(activities []Activity) {
	sort.SliceStable(activities, func(i, j int) bool {
		return activities[i].Date < activities[j].Date
	})
}

// Build assembles a dataset from the activities of every runner, keyed by display name.
// The input slices are not modified.
func Build(byRunner map[string][]Activity, now time.Time) Dataset {
	out := Dataset{
		Runners: make(map[string]Runner, len(byRunner)),
	}
	total := 0
	for name, activities := range byRunner {
		sorted := make([]Activity, len(activities))
		copy(sorted, activities)
		SortActivities(sorted)

		out.Runners[name] = Runner{
			Name:       name,
			Stats:      ComputeStats(sorted),
			Activities: sorted,
		}
		total += len(sorted)
	}
	out.Metadata = Metadata{
		LastUpdated:     now.Format(LastUpdatedLayout),
		TotalRunners:    len(out.Runners),
		TotalActivities: total,
	}
	return out
}

// RunnerNames returns the display names in the dataset in alphabetical order.
func (d Dataset) RunnerNames() []string {
	names := make([]string, 0, len(d.Runners))
	for name := range d.Runners {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
