package observe

import "context"

// NoopObserver implements Observer with no-op methods.
type NoopObserver struct{}

func (NoopObserver) OnStart(context.Context, CallInfo)        {}
func (NoopObserver) OnOutcome(context.Context, CallRecord)    {}
func (NoopObserver) OnSuppressed(context.Context, CallRecord) {}
func (NoopObserver) OnCancel(context.Context, CancelEvent)    {}
func (NoopObserver) OnBatch(context.Context, BatchRecord)     {}
