package planning

// Recorder receives engine observations. See metrics/prom.go for the
// Prometheus implementation.
type Recorder interface {
	ObserveConfirmItem(outcome ConfirmOutcome)
	ObserveCacheLookup(hit bool)
}

type nopRecorder struct{}

func (nopRecorder) ObserveConfirmItem(ConfirmOutcome) {}
func (nopRecorder) ObserveCacheLookup(bool)           {}

func recorderOrNop(r Recorder) Recorder {
	if r == nil {
		return nopRecorder{}
	}
	return r
}
