package unenroll

import (
	"log/slog"
)

// OutcomeSink receives every outcome as soon as it is produced.
type OutcomeSink interface {
	Write(RowOutcome) error
	Flush() error
}

// Reporter accumulates outcomes and emits the run summary.
type Reporter struct {
	logger *slog.Logger
	sink   OutcomeSink

	unenrolled []string
	counts     map[OutcomeKind]int
	total      int
	sinkFailed bool
}

// NewReporter creates a Reporter. sink may be nil.
func NewReporter(logger *slog.Logger, sink OutcomeSink) *Reporter {
	return &Reporter{
		logger: logger,
		sink:   sink,
		counts: make(map[OutcomeKind]int, len(OutcomeKinds)),
	}
}

// Record adds one outcome. A failing sink is reported once and then
// bypassed; it never affects the run.
func (r *Reporter) Record(o RowOutcome) {
	r.total++
	r.counts[o.Kind]++
	if o.Kind == OutcomeUnenrolled {
		r.unenrolled = append(r.unenrolled, o.PairLabel())
	}

	if r.sink == nil || r.sinkFailed {
		return
	}
	if err := r.sink.Write(o); err != nil {
		r.sinkFailed = true
		r.logger.Warn("outcome report write failed, report disabled for this run", "line", o.Row.Line, "error", err)
	}
}

// Summary returns the accumulated summary.
func (r *Reporter) Summary() Summary {
	counts := make(map[OutcomeKind]int, len(OutcomeKinds))
	for _, k := range OutcomeKinds {
		counts[k] = r.counts[k]
	}
	return Summary{
		Unenrolled: append([]string(nil), r.unenrolled...),
		Counts:     counts,
		Total:      r.total,
	}
}

// Finish flushes the sink and logs the final summary line.
func (r *Reporter) Finish() Summary {
	if r.sink != nil && !r.sinkFailed {
		if err := r.sink.Flush(); err != nil {
			r.logger.Warn("outcome report flush failed", "error", err)
		}
	}

	s := r.Summary()

	attrs := []any{"users_unenrolled", s.Unenrolled, "rows", s.Total}
	for _, k := range OutcomeKinds {
		attrs = append(attrs, k.String(), s.Counts[k])
	}
	r.logger.Info("following users have been unenrolled successfully from the following courses", attrs...)

	return s
}
