package call

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/aponysus/simplecall/classify"
	"github.com/aponysus/simplecall/observe"
)

func TestNewFactory_Defaults(t *testing.T) {
	f := NewFactory()

	assert.Equal(t, 0, f.Conditions().Len())
	assert.Equal(t, Inline, f.dispatcher)
	assert.IsType(t, observe.NoopObserver{}, f.Observer())
	require.NotNil(t, f.Logger())
	assert.NotNil(t, f.clock)
	assert.Equal(t, []string{classify.ProfileNone, classify.ProfileNull, classify.ProfileStrict}, f.Profiles().Names())
}

func TestNewFactory_Options(t *testing.T) {
	profiles := classify.NewRegistry()
	profiles.Register("lists", classify.NewConditionSet(classify.EmptyCollection))
	logger := zap.NewExample()
	loop := NewLoop(1)

	f := NewFactory(
		WithConditions(classify.NullResponse),
		WithProfiles(profiles),
		WithDispatcher(loop),
		WithLogger(logger),
		WithMaxConcurrency(-3),
		WithRecoverPanics(true),
	)

	assert.True(t, f.Conditions().Has(classify.NullResponse))
	assert.Same(t, profiles, f.Profiles())
	assert.Same(t, loop, f.dispatcher)
	assert.Same(t, logger, f.Logger())
	assert.Equal(t, 0, f.maxConcurrency)
	assert.True(t, f.recoverPanics)
}

func TestNewFactoryFromOptions_ConditionSet(t *testing.T) {
	set := classify.NewConditionSet(classify.NullResponse, classify.EmptyCollection)
	f := NewFactoryFromOptions(FactoryOptions{Conditions: set, MaxConcurrency: 4})

	assert.Equal(t, set, f.Conditions())
	assert.Equal(t, 4, f.maxConcurrency)

	g := NewFactory(WithConditionSet(set), nil)
	assert.Equal(t, set, g.Conditions())
}

func TestDefaultFactory(t *testing.T) {
	f := DefaultFactory()
	require.NotNil(t, f)
	assert.Same(t, f, DefaultFactory())

	// Ignored once initialized.
	SetGlobal(NewFactory())
	assert.Same(t, f, DefaultFactory())
}
