package journal

// NoopRecorder is a no-op implementation used when the journal is disabled.
type NoopRecorder struct{}

func NewNoopRecorder() *NoopRecorder { return &NoopRecorder{} }

func (n *NoopRecorder) RecordGate(_ GateEvent) error     { return nil }
func (n *NoopRecorder) RecordSignal(_ SignalEvent) error { return nil }
func (n *NoopRecorder) RecordEntry(_ EntryEvent) error   { return nil }
func (n *NoopRecorder) RecordExit(_ ExitEvent) error     { return nil }
func (n *NoopRecorder) RecordCycle(_ CycleEvent) error   { return nil }
func (n *NoopRecorder) Close() error                     { return nil }
