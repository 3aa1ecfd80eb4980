package observe

import "context"

// BaseObserver implements Observer with no-op methods.
//
// Users can embed BaseObserver to implement only the callbacks they need.
type BaseObserver struct{}

func (BaseObserver) OnStart(context.Context, CallInfo)        {}
func (BaseObserver) OnOutcome(context.Context, CallRecord)    {}
func (BaseObserver) OnSuppressed(context.Context, CallRecord) {}
func (BaseObserver) OnCancel(context.Context, CancelEvent)    {}
func (BaseObserver) OnBatch(context.Context, BatchRecord)     {}

// MultiObserver fans out events to multiple observers.
type MultiObserver struct {
	Observers []Observer
}

func (m MultiObserver) OnStart(ctx context.Context, info CallInfo) {
	for _, o := range m.Observers {
		if o != nil {
			o.OnStart(ctx, info)
		}
	}
}

func (m MultiObserver) OnOutcome(ctx context.Context, rec CallRecord) {
	for _, o := range m.Observers {
		if o != nil {
			o.OnOutcome(ctx, rec)
		}
	}
}

func (m MultiObserver) OnSuppressed(ctx context.Context, rec CallRecord) {
	for _, o := range m.Observers {
		if o != nil {
			o.OnSuppressed(ctx, rec)
		}
	}
}

func (m MultiObserver) OnCancel(ctx context.Context, ev CancelEvent) {
	for _, o := range m.Observers {
		if o != nil {
			o.OnCancel(ctx, ev)
		}
	}
}

func (m MultiObserver) OnBatch(ctx context.Context, rec BatchRecord) {
	for _, o := range m.Observers {
		if o != nil {
			o.OnBatch(ctx, rec)
		}
	}
}
