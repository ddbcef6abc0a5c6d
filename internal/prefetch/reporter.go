package prefetch

import "log"

// Reporter receives prefetch failures. Prefetch never returns them to callers.
type Reporter interface {
	ReportPrefetchFailure(key string, err error)
}

// ReporterFunc adapts a function to Reporter
type ReporterFunc func(key string, err error)

func (f ReporterFunc) ReportPrefetchFailure(key string, err error) {
	f(key, err)
}

// LogReporter writes failures through the standard logger, or Logger when set
type LogReporter struct {
	Logger *log.Logger
}

func (r LogReporter) ReportPrefetchFailure(key string, err error) {
	if r.Logger != nil {
		r.Logger.Printf("[Prefetch] fetch %q failed: %v", key, err)
		return
	}
	log.Printf("[Prefetch] fetch %q failed: %v", key, err)
}

type multiReporter []Reporter

func (m multiReporter) ReportPrefetchFailure(key string, err error) {
	for _, r := range m {
		r.ReportPrefetchFailure(key, err)
	}
}

// Reporters fans a failure out to every non-nil reporter
func Reporters(rs ...Reporter) Reporter {
	out := make(multiReporter, 0, len(rs))
	for _, r := range rs {
		if r != nil {
			out = append(out, r)
		}
	}
	return out
}
