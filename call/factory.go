package call

import (
	"runtime/debug"
	"time"

	"go.uber.org/zap"

	"github.com/aponysus/simplecall/circuit"
	"github.com/aponysus/simplecall/classify"
	"github.com/aponysus/simplecall/observe"
)

// Factory holds the defaults shared by the handles and batches it creates.
type Factory struct {
	conditions     classify.ConditionSet
	profiles       *classify.Registry
	dispatcher     Dispatcher
	observer       observe.Observer
	logger         *zap.Logger
	breakers       *circuit.Registry
	clock          func() time.Time
	maxConcurrency int
	recoverPanics  bool
}

// FactoryOptions configures a Factory.
type FactoryOptions struct {
	// Conditions is the default condition set copied into every new handle.
	Conditions classify.ConditionSet
	// Profiles resolves Handle.Profile names. Defaults to the builtin profiles.
	Profiles *classify.Registry
	// Dispatcher is the default completion context. Defaults to Inline.
	Dispatcher Dispatcher
	Observer   observe.Observer
	Logger     *zap.Logger
	// Breakers guards executions per request target. Nil disables the guard.
	Breakers *circuit.Registry
	Clock    func() time.Time
	// MaxConcurrency bounds in-flight handles per batch dispatch. Zero is unbounded.
	MaxConcurrency int
	// RecoverPanics recovers and logs panics raised by user callbacks.
	RecoverPanics bool
}

// FactoryOption configures a Factory.
type FactoryOption func(*FactoryOptions)

// NewFactory creates a Factory with default options.
func NewFactory(opts ...FactoryOption) *Factory {
	var cfg FactoryOptions
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return NewFactoryFromOptions(cfg)
}

// NewFactoryFromOptions creates a Factory from a config struct.
func NewFactoryFromOptions(opts FactoryOptions) *Factory {
	f := &Factory{
		conditions:     opts.Conditions,
		profiles:       opts.Profiles,
		dispatcher:     opts.Dispatcher,
		observer:       opts.Observer,
		logger:         opts.Logger,
		breakers:       opts.Breakers,
		clock:          opts.Clock,
		maxConcurrency: opts.MaxConcurrency,
		recoverPanics:  opts.RecoverPanics,
	}

	if f.profiles == nil {
		f.profiles = classify.NewRegistry()
		classify.RegisterBuiltins(f.profiles)
	}
	if f.dispatcher == nil {
		f.dispatcher = Inline
	}
	if f.observer == nil {
		f.observer = observe.NoopObserver{}
	}
	if f.logger == nil {
		f.logger = zap.NewNop()
	}
	if f.clock == nil {
		f.clock = time.Now
	}
	if f.maxConcurrency < 0 {
		f.maxConcurrency = 0
	}

	return f
}

// WithConditions sets the default condition set.
func WithConditions(conds ...classify.Condition) FactoryOption {
	return func(o *FactoryOptions) {
		o.Conditions = classify.NewConditionSet(conds...)
	}
}

// WithConditionSet sets the default condition set.
func WithConditionSet(set classify.ConditionSet) FactoryOption {
	return func(o *FactoryOptions) {
		o.Conditions = set
	}
}

// WithProfiles sets the condition profile registry.
func WithProfiles(r *classify.Registry) FactoryOption {
	return func(o *FactoryOptions) {
		o.Profiles = r
	}
}

// WithDispatcher sets the default completion context.
func WithDispatcher(d Dispatcher) FactoryOption {
	return func(o *FactoryOptions) {
		o.Dispatcher = d
	}
}

// WithObserver sets the observer.
func WithObserver(obs observe.Observer) FactoryOption {
	return func(o *FactoryOptions) {
		o.Observer = obs
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) FactoryOption {
	return func(o *FactoryOptions) {
		o.Logger = l
	}
}

// WithBreakers enables circuit breaking with the given registry.
func WithBreakers(r *circuit.Registry) FactoryOption {
	return func(o *FactoryOptions) {
		o.Breakers = r
	}
}

// WithClock sets the clock used for observer records.
func WithClock(f func() time.Time) FactoryOption {
	return func(o *FactoryOptions) {
		o.Clock = f
	}
}

// WithMaxConcurrency bounds in-flight handles per batch dispatch.
func WithMaxConcurrency(n int) FactoryOption {
	return func(o *FactoryOptions) {
		o.MaxConcurrency = n
	}
}

// WithRecoverPanics sets whether to recover panics raised by user callbacks.
func WithRecoverPanics(recover bool) FactoryOption {
	return func(o *FactoryOptions) {
		o.RecoverPanics = recover
	}
}

// Conditions returns a copy of the default condition set.
func (f *Factory) Conditions() classify.ConditionSet { return f.conditions.Clone() }

func (f *Factory) Profiles() *classify.Registry { return f.profiles }

func (f *Factory) Logger() *zap.Logger { return f.logger }

func (f *Factory) Observer() observe.Observer { return f.observer }

func orDefault(f *Factory) *Factory {
	if f == nil {
		return DefaultFactory()
	}
	return f
}

// guard runs fn, recovering and logging a panic when the factory is configured to.
func (f *Factory) guard(log *zap.Logger, component, id string, fn func()) {
	if !f.recoverPanics {
		fn()
		return
	}
	defer func() {
		if r := recover(); r != nil {
			err := &PanicError{Component: component, ID: id, Value: r, Stack: debug.Stack()}
			log.Warn("recovered panic in callback",
				zap.Error(err),
				zap.ByteString("stack", err.Stack),
			)
		}
	}()
	fn()
}
