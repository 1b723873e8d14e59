package decision

import (
	"context"
	"testing"

	"flowengine/internal/domain"
	"flowengine/internal/flowtype"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

func testRegistry(t *testing.T) *flowtype.Registry {
	t.Helper()
	r := flowtype.NewRegistry()
	noop := func(ctx context.Context, cf *domain.ChildFlow, in datatypes.JSON) domain.PhaseResult {
		return domain.CompletedResult(nil)
	}
	require.NoError(t, r.Register(domain.FlowTypeDiscovery, []flowtype.PhaseDescriptor{
		{Name: "data_import", Handler: noop},
		{Name: "field_mapping", Handler: noop},
		{Name: "report_generation", Handler: noop},
	}))
	return r
}

func TestCompletedProceedsToNextPhase(t *testing.T) {
	p := NewRuleBasedProvider(testRegistry(t), 3)

	d, err := p.Decide(context.Background(), domain.FlowTypeDiscovery, "data_import", domain.CompletedResult(nil), 0)
	require.NoError(t, err)

	assert.Equal(t, domain.ActionProceed, d.Action)
	assert.Equal(t, "field_mapping", d.NextPhase)
	assert.False(t, d.Immediate)
}

func TestCompletedTerminalPhaseFinishesSequence(t *testing.T) {
	p := NewRuleBasedProvider(testRegistry(t), 3)

	d, err := p.Decide(context.Background(), domain.FlowTypeDiscovery, "report_generation", domain.CompletedResult(nil), 0)
	require.NoError(t, err)

	assert.Equal(t, domain.ActionProceed, d.Action)
	assert.Equal(t, "", d.NextPhase)
}

func TestAwaitingBackgroundAlwaysPauses(t *testing.T) {
	// The contract forbids FAIL while a background operation is in flight,
	// even with the retry budget long exhausted.
	p := NewRuleBasedProvider(testRegistry(t), 3)

	d, err := p.Decide(context.Background(), domain.FlowTypeDiscovery, "data_import",
		domain.AwaitingBackgroundResult("background_generation"), 99)
	require.NoError(t, err)

	assert.Equal(t, domain.ActionPause, d.Action)
}

func TestErroredRetriesUntilCeiling(t *testing.T) {
	p := NewRuleBasedProvider(testRegistry(t), 2)
	errored := domain.ErroredResult("boom")

	d, err := p.Decide(context.Background(), domain.FlowTypeDiscovery, "data_import", errored, 0)
	require.NoError(t, err)
	assert.Equal(t, domain.ActionRetry, d.Action)

	d, err = p.Decide(context.Background(), domain.FlowTypeDiscovery, "data_import", errored, 1)
	require.NoError(t, err)
	assert.Equal(t, domain.ActionRetry, d.Action)

	d, err = p.Decide(context.Background(), domain.FlowTypeDiscovery, "data_import", errored, 2)
	require.NoError(t, err)
	assert.Equal(t, domain.ActionFail, d.Action)
}

func TestUnknownPhaseFailsNeverCompletes(t *testing.T) {
	p := NewRuleBasedProvider(testRegistry(t), 3)

	d, err := p.Decide(context.Background(), domain.FlowTypeDiscovery, "bogus_phase", domain.CompletedResult(nil), 0)
	require.NoError(t, err)

	assert.Equal(t, domain.ActionFail, d.Action)
}

func TestUnregisteredFlowTypeIsHardError(t *testing.T) {
	p := NewRuleBasedProvider(testRegistry(t), 3)

	_, err := p.Decide(context.Background(), "nope", "data_import", domain.CompletedResult(nil), 0)
	assert.ErrorIs(t, err, domain.ErrInvalidFlowType)
}

func TestImmediateContinuationFlag(t *testing.T) {
	p := NewRuleBasedProvider(testRegistry(t), 3)

	result := domain.CompletedResult(datatypes.JSON([]byte(`{"auto_continue":true}`)))
	d, err := p.Decide(context.Background(), domain.FlowTypeDiscovery, "data_import", result, 0)
	require.NoError(t, err)

	assert.True(t, d.Immediate)
}

func TestDeterminism(t *testing.T) {
	p := NewRuleBasedProvider(testRegistry(t), 3)
	result := domain.ErroredResult("boom")

	first, err := p.Decide(context.Background(), domain.FlowTypeDiscovery, "field_mapping", result, 1)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := p.Decide(context.Background(), domain.FlowTypeDiscovery, "field_mapping", result, 1)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}
