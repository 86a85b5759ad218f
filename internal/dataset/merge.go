package dataset

import (
	"fmt"
	"time"

	"runharvest/internal/normalize"
	"runharvest/internal/telemetry"
)

const (
	report_merge        = "merge"
	report_merge_runner = "merge.runner"
)

// MonthSet is the set of months requested in a run, those are replaced wholesale by a merge.
type MonthSet map[time.Month]struct{}

func NewMonthSet(months ...time.Month) MonthSet {
	set := make(MonthSet, len(months))
	for _, m := range months {
		set[m] = struct{}{}
	}
	return set
}

func (s MonthSet) Has(month int) bool {
	_, ok := s[time.Month(month)]
	return ok
}

// Merge folds a fresh harvest into the prior dataset.
//
// Without incremental mode, or without a prior dataset, the result is built from fresh
// alone. In incremental mode runners only present in prior are carried over untouched. For
// runners in both, prior activities in scanned months are replaced by the fresh ones and
// prior activities from every other month are kept. Prior dates are canonicalized first,
// records whose month still cannot be derived are kept and reported. A prior record equal to
// a fresh one is superseded by it, which makes merging the same harvest twice a no-op.
func Merge(prior *Dataset, fresh map[string][]Activity, scanned MonthSet, incremental bool, now time.Time, tel telemetry.API) Dataset {
	tel = telemetry.NewScopedAPI("dataset", tel)

	merged := make(map[string][]Activity, len(fresh))
	for name, activities := range fresh {
		merged[name] = activities
	}

	if !incremental {
		return Build(merged, now)
	}
	if prior == nil {
		tel.ReportWarning(report_merge, fmt.Errorf("incremental merge without a prior dataset, writing fresh data only"))
		return Build(merged, now)
	}

	for name, runner := range prior.Runners {
		freshActivities, ok := fresh[name]
		if !ok {
			merged[name] = runner.Activities
			continue
		}
		merged[name] = mergeRunner(name, runner.Activities, freshActivities, scanned, tel)
	}
	return Build(merged, now)
}

func mergeRunner(name string, prior, fresh []Activity, scanned MonthSet, tel telemetry.API) []Activity {
	kept := make([]Activity, 0, len(prior)+len(fresh))
	replaced := 0
	for _, a := range prior {
		if date, ok := normalize.Canonicalize(a.Date); ok {
			a.Date = date
		}
		if containsActivity(fresh, a) {
			replaced++
			continue
		}

		month, ok := normalize.MonthNumber(a.Date)
		if !ok {
			tel.ReportWarning(report_merge_runner, fmt.Errorf("cannot derive month of %q, keeping it", a.Date), name)
			kept = append(kept, a)
			continue
		}
		if scanned.Has(month) {
			replaced++
			continue
		}
		kept = append(kept, a)
	}
	tel.ReportDebug("merged runner", name, "kept", len(kept), "replaced", replaced, "fresh", len(fresh))
	return append(kept, fresh...)
}

func containsActivity(list []Activity, a Activity) bool {
	for _, candidate := range list {
		if candidate.equal(a) {
			return true
		}
	}
	return false
}
