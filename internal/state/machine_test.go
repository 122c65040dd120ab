package state

import "testing"

func TestHappyPathTransitions(t *testing.T) {
	m := New("T1", "", nil)
	if m.Current() != StateReceived {
		t.Fatalf("expected initial state RECEIVED, got %s", m.Current())
	}

	steps := []struct {
		trigger Trigger
		want    State
	}{
		{TriggerStartValidating, StateValidating},
		{TriggerFetchDocuments, StateFetchingDocuments},
		{TriggerSaveDocuments, StateDocumentsSaved},
		{TriggerStartFiltering, StateFiltering},
		{TriggerStartAI, StateAIProcessing},
		{TriggerPrepareExport, StateReadyForExport},
		{TriggerStartExporting, StateExporting},
		{TriggerComplete, StateCompleted},
	}
	for _, step := range steps {
		if err := m.Fire(step.trigger); err != nil {
			t.Fatalf("fire %s: %v", step.trigger, err)
		}
		if m.Current() != step.want {
			t.Fatalf("after %s: expected %s, got %s", step.trigger, step.want, m.Current())
		}
	}
}

func TestScrapingPathTransitions(t *testing.T) {
	m := New("T1", StateFetchingDocuments, nil)

	for _, trigger := range []Trigger{TriggerDocumentsNotFound, TriggerStartScraping, TriggerFinishScraping} {
		if err := m.Fire(trigger); err != nil {
			t.Fatalf("fire %s: %v", trigger, err)
		}
	}
	if m.Current() != StateDocumentsSaved {
		t.Fatalf("expected DOCUMENTS_SAVED, got %s", m.Current())
	}
}

func TestIllegalTransitionRejected(t *testing.T) {
	m := New("T1", StateReceived, nil)
	if err := m.Fire(TriggerComplete); err == nil {
		t.Fatal("expected error firing complete from RECEIVED")
	}
	if m.Current() != StateReceived {
		t.Fatalf("state changed on rejected trigger: %s", m.Current())
	}
}

func TestUnknownTriggerRejected(t *testing.T) {
	m := New("T1", StateReceived, nil)
	if err := m.Fire(Trigger("bogus")); err == nil {
		t.Fatal("expected error for unknown trigger")
	}
}

func TestEncounterErrorFromAnyState(t *testing.T) {
	for _, initial := range []State{StateReceived, StateFiltering, StateExporting} {
		m := New("T1", initial, nil)
		if err := m.Fire(TriggerEncounterError); err != nil {
			t.Fatalf("encounter_error from %s: %v", initial, err)
		}
		if m.Current() != StateError {
			t.Fatalf("expected ERROR from %s, got %s", initial, m.Current())
		}
	}
}

func TestTerminalStates(t *testing.T) {
	terminal := []State{
		StateValidationFailed, StateDocumentsFetchFailed, StateRejectedFilter,
		StateRejectedAI, StateCompleted, StateExportFailed, StateError,
	}
	for _, s := range terminal {
		if !Terminal(s) {
			t.Errorf("expected %s to be terminal", s)
		}
	}
	for _, s := range []State{StateReceived, StateFiltering, StateDocumentsSaved} {
		if Terminal(s) {
			t.Errorf("expected %s to be non-terminal", s)
		}
	}
}
