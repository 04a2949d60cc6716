package plugin

import (
	"errors"

	"github.com/felixgeelhaar/statekit"

	"github.com/usefultools/toolbox/internal/domain/fault"
)

// Phase is a step of a single install.
type Phase string

const (
	PhaseIdle        Phase = "idle"
	PhaseResolving   Phase = "resolving"
	PhaseDownloading Phase = "downloading"
	PhaseExtracting  Phase = "extracting"
	PhaseCommitting  Phase = "committing"
	PhaseInstalled   Phase = "installed"
	PhaseFailed      Phase = "failed"
)

// Events driving the install machine.
const (
	eventResolve  = "RESOLVE"
	eventDownload = "DOWNLOAD"
	eventExtract  = "EXTRACT"
	eventCommit   = "COMMIT"
	eventDone     = "DONE"
	eventFail     = "FAIL"
)

// PhaseObserver is called after every phase change of an install.
type PhaseObserver func(id string, phase Phase)

// installProgress is the statekit context of one install.
type installProgress struct {
	ID       string
	FailedIn Phase
	Err      error
}

// tracker walks one install through its phases.
type tracker struct {
	interp   *statekit.Interpreter[installProgress]
	progress *installProgress
	observe  PhaseObserver
}

func newTracker(id string, observe PhaseObserver) (*tracker, error) {
	progress := &installProgress{ID: id}

	machine, err := statekit.NewMachine[installProgress]("plugin-install").
		WithInitial(statekit.StateID(PhaseIdle)).
		WithContext(*progress).
		WithAction("recordFailure", func(_ *installProgress, event statekit.Event) {
			if payload, ok := event.Payload.(map[string]interface{}); ok {
				if phase, ok := payload["phase"].(Phase); ok {
					progress.FailedIn = phase
				}
				if err, ok := payload["error"].(error); ok {
					progress.Err = err
				}
			}
		}).
		State(statekit.StateID(PhaseIdle)).
		On(eventResolve).Target(statekit.StateID(PhaseResolving)).Done().
		State(statekit.StateID(PhaseResolving)).
		On(eventDownload).Target(statekit.StateID(PhaseDownloading)).
		On(eventFail).Target(statekit.StateID(PhaseFailed)).Done().
		State(statekit.StateID(PhaseDownloading)).
		On(eventExtract).Target(statekit.StateID(PhaseExtracting)).
		On(eventFail).Target(statekit.StateID(PhaseFailed)).Done().
		State(statekit.StateID(PhaseExtracting)).
		On(eventCommit).Target(statekit.StateID(PhaseCommitting)).
		On(eventFail).Target(statekit.StateID(PhaseFailed)).Done().
		State(statekit.StateID(PhaseCommitting)).
		On(eventDone).Target(statekit.StateID(PhaseInstalled)).
		On(eventFail).Target(statekit.StateID(PhaseFailed)).Done().
		State(statekit.StateID(PhaseInstalled)).Done().
		State(statekit.StateID(PhaseFailed)).
		OnEntry("recordFailure").Done().
		Build()
	if err != nil {
		return nil, err
	}

	t := &tracker{
		interp:   statekit.NewInterpreter(machine),
		progress: progress,
		observe:  observe,
	}
	t.interp.Start()
	return t, nil
}

// Phase returns the current phase.
func (t *tracker) Phase() Phase {
	return Phase(t.interp.State().Value)
}

func (t *tracker) advance(event string) {
	t.interp.Send(statekit.Event{Type: statekit.EventType(event)})
	t.notify()
}

// fail moves the machine to failed and returns the recorded failure
// annotated with the phase it failed in, unless it already names a step.
// Phases without a failed transition keep the current phase and err.
func (t *tracker) fail(err error) error {
	phase := t.Phase()
	t.progress.FailedIn, t.progress.Err = "", nil
	t.interp.Send(statekit.Event{
		Type:    eventFail,
		Payload: map[string]interface{}{"phase": phase, "error": err},
	})
	t.notify()

	failedIn, cause := t.progress.FailedIn, t.progress.Err
	if cause == nil {
		failedIn, cause = phase, err
	}

	var fe *fault.Error
	if !errors.As(cause, &fe) {
		return fault.Wrap(fault.KindIO, cause, "install failed").WithStep(string(failedIn))
	}
	if fault.StepOf(cause) == "" {
		return fe.WithStep(string(failedIn))
	}
	return cause
}

func (t *tracker) stop() {
	t.interp.Stop()
}

func (t *tracker) notify() {
	if t.observe != nil {
		t.observe(t.progress.ID, t.Phase())
	}
}
