package metrics

// NoopProvider returns instruments that perform no work. It is the default
// provider wherever none is configured.
type NoopProvider struct{}

// NewNoopProvider constructs a Provider that discards all measurements.
func NewNoopProvider() NoopProvider { return NoopProvider{} }

func (NoopProvider) Counter(string) Counter             { return noopInstrument{} }
func (NoopProvider) UpDownCounter(string) UpDownCounter { return noopInstrument{} }
func (NoopProvider) Histogram(string) Histogram         { return noopInstrument{} }

type noopInstrument struct{}

func (noopInstrument) Add(int64)      {}
func (noopInstrument) Record(float64) {}
