package telemetry

// API is how packages report problems and progress. Production code logs through SlogAPI,
// tests hand in a Recorder and assert on what was reported.
type API interface {
	// ReportBroken marks a component as broken in a way someone should fix.
	//
	// id names the component, not the failing line: a detail page that could not be read
	// is `extractor.read-detail`, with the activity index and error as params. Ids are
	// lowercase, underscores join words in a component name and dashes join the method
	// part. Under a ScopedAPI the package prefix is added for you.
	ReportBroken(id string, params ...any)

	// ReportWarning is for something worth a look that is not a failure by itself, like a
	// skipped month or an unknown distance unit.
	ReportWarning(id string, params ...any)

	// ReportDebug is verbose detail, dropped unless the log level is debug.
	ReportDebug(msg string, params ...any)

	// ReportCount records the value of a counter at this moment. Successive values are
	// samples, not increments.
	ReportCount(id string, count int64)
}

// ScopedAPI prefixes every id (and debug message) with "<namespace>:".
type ScopedAPI struct {
	namespace string
	inner     API
}

func NewScopedAPI(namespace string, inner API) ScopedAPI {
	return ScopedAPI{namespace: namespace, inner: inner}
}

func (s ScopedAPI) scope(id string) string {
	return s.namespace + ":" + id
}

func (s ScopedAPI) ReportBroken(id string, params ...any) {
	s.inner.ReportBroken(s.scope(id), params...)
}

func (s ScopedAPI) ReportWarning(id string, params ...any) {
	s.inner.ReportWarning(s.scope(id), params...)
}

func (s ScopedAPI) ReportDebug(msg string, params ...any) {
	s.inner.ReportDebug(s.scope(msg), params...)
}

func (s ScopedAPI) ReportCount(id string, count int64) {
	s.inner.ReportCount(s.scope(id), count)
}
