package plugin

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/usefultools/toolbox/internal/domain/fault"
)

func TestTracker_HappyPath(t *testing.T) {
	t.Parallel()

	var seen []Phase
	tr, err := newTracker("json", func(id string, p Phase) {
		assert.Equal(t, "json", id)
		seen = append(seen, p)
	})
	require.NoError(t, err)
	defer tr.stop()

	assert.Equal(t, PhaseIdle, tr.Phase())
	for _, e := range []string{eventResolve, eventDownload, eventExtract, eventCommit, eventDone} {
		tr.advance(e)
	}

	assert.Equal(t, []Phase{PhaseResolving, PhaseDownloading, PhaseExtracting, PhaseCommitting, PhaseInstalled}, seen)
}

func TestTracker_FailAnnotatesPhase(t *testing.T) {
	t.Parallel()

	tr, err := newTracker("json", nil)
	require.NoError(t, err)
	defer tr.stop()

	tr.advance(eventResolve)
	tr.advance(eventDownload)

	got := tr.fail(fault.New(fault.KindTransport, "connection reset"))
	assert.Equal(t, PhaseFailed, tr.Phase())
	assert.Equal(t, PhaseDownloading, tr.progress.FailedIn)
	assert.Equal(t, string(PhaseDownloading), fault.StepOf(got))
	assert.True(t, fault.IsKind(got, fault.KindTransport))
	assert.Error(t, tr.progress.Err)
}

func TestTracker_FailKeepsExistingStep(t *testing.T) {
	t.Parallel()

	tr, err := newTracker("json", nil)
	require.NoError(t, err)
	defer tr.stop()

	tr.advance(eventResolve)
	got := tr.fail(fault.New(fault.KindNotFound, "no latest").WithStep("latest-tag"))

	assert.Equal(t, "latest-tag", fault.StepOf(got))
	assert.Equal(t, PhaseResolving, tr.progress.FailedIn)
}

func TestTracker_FailWrapsForeignErrors(t *testing.T) {
	t.Parallel()

	tr, err := newTracker("json", nil)
	require.NoError(t, err)
	defer tr.stop()

	tr.advance(eventResolve)
	tr.advance(eventDownload)
	tr.advance(eventExtract)
	tr.advance(eventCommit)

	cause := errors.New("disk full")
	got := tr.fail(cause)

	assert.True(t, fault.IsKind(got, fault.KindIO))
	assert.Equal(t, string(PhaseCommitting), fault.StepOf(got))
	assert.ErrorIs(t, got, cause)
}

func TestTracker_FailUsesRecordedFailure(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		events    []string
		wantPhase Phase
		wantStep  string
	}{
		{name: "idle has no failed transition", events: nil, wantPhase: PhaseIdle, wantStep: string(PhaseIdle)},
		{name: "resolving", events: []string{eventResolve}, wantPhase: PhaseFailed, wantStep: string(PhaseResolving)},
		{name: "extracting", events: []string{eventResolve, eventDownload, eventExtract}, wantPhase: PhaseFailed, wantStep: string(PhaseExtracting)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			tr, err := newTracker("json", nil)
			require.NoError(t, err)
			defer tr.stop()

			for _, e := range tt.events {
				tr.advance(e)
			}

			cause := fault.New(fault.KindDecode, "bad bundle")
			got := tr.fail(cause)

			assert.Equal(t, tt.wantPhase, tr.Phase())
			assert.Equal(t, tt.wantStep, fault.StepOf(got))
			assert.True(t, fault.IsKind(got, fault.KindDecode))
			if tt.wantPhase == PhaseFailed {
				assert.Equal(t, Phase(tt.wantStep), tr.progress.FailedIn)
				assert.Same(t, cause, tr.progress.Err)
			}
		})
	}
}
