// Package state implements the per-tender lifecycle state machine. The
// machine only validates and applies transitions in memory; persisting the
// resulting state is the caller's job, so that every transition is written
// before the next stage runs.
package state

import (
	"fmt"
	"log/slog"
)

// State is a tender lifecycle state as stored in tenders.state.
type State string

const (
	StateReceived             State = "RECEIVED"
	StateValidating           State = "VALIDATING"
	StateValidationFailed     State = "VALIDATION_FAILED"
	StateFetchingDocuments    State = "FETCHING_DOCUMENTS"
	StateDocumentsNotFound    State = "DOCUMENTS_NOT_FOUND"
	StateScrapingDocuments    State = "SCRAPING_DOCUMENTS"
	StateDocumentsFetchFailed State = "DOCUMENTS_FETCH_FAILED"
	StateDocumentsSaved       State = "DOCUMENTS_SAVED"
	StateFiltering            State = "FILTERING"
	StateRejectedFilter       State = "REJECTED_FILTER"
	StateAIProcessing         State = "AI_PROCESSING"
	StateRejectedAI           State = "REJECTED_AI"
	StateReadyForExport       State = "READY_FOR_EXPORT"
	StateExporting            State = "EXPORTING"
	StateCompleted            State = "COMPLETED"
	StateExportFailed         State = "EXPORT_FAILED"
	StateError                State = "ERROR"
)

// Trigger names a transition between two states.
type Trigger string

const (
	TriggerStartValidating      Trigger = "start_validating"
	TriggerFailValidation       Trigger = "fail_validation"
	TriggerFetchDocuments       Trigger = "fetch_documents"
	TriggerDocumentsNotFound    Trigger = "documents_not_found"
	TriggerSaveDocuments        Trigger = "save_documents"
	TriggerStartScraping        Trigger = "start_scraping"
	TriggerFailScraping         Trigger = "fail_scraping"
	TriggerFinishScraping       Trigger = "finish_scraping"
	TriggerStartFiltering       Trigger = "start_filtering"
	TriggerRejectAfterFiltering Trigger = "reject_after_filtering"
	TriggerStartAI              Trigger = "start_ai"
	TriggerRejectAfterAI        Trigger = "reject_after_ai"
	TriggerPrepareExport        Trigger = "prepare_export"
	TriggerStartExporting       Trigger = "start_exporting"
	TriggerComplete             Trigger = "complete"
	TriggerFailExport           Trigger = "fail_export"
	TriggerEncounterError       Trigger = "encounter_error"
)

type transition struct {
	from State
	to   State
}

// transitions is the full legal transition table. TriggerEncounterError is
// handled separately as a wildcard.
var transitions = map[Trigger]transition{
	TriggerStartValidating:      {StateReceived, StateValidating},
	TriggerFailValidation:       {StateValidating, StateValidationFailed},
	TriggerFetchDocuments:       {StateValidating, StateFetchingDocuments},
	TriggerDocumentsNotFound:    {StateFetchingDocuments, StateDocumentsNotFound},
	TriggerSaveDocuments:        {StateFetchingDocuments, StateDocumentsSaved},
	TriggerStartScraping:        {StateDocumentsNotFound, StateScrapingDocuments},
	TriggerFailScraping:         {StateScrapingDocuments, StateDocumentsFetchFailed},
	TriggerFinishScraping:       {StateScrapingDocuments, StateDocumentsSaved},
	TriggerStartFiltering:       {StateDocumentsSaved, StateFiltering},
	TriggerRejectAfterFiltering: {StateFiltering, StateRejectedFilter},
	TriggerStartAI:              {StateFiltering, StateAIProcessing},
	TriggerRejectAfterAI:        {StateAIProcessing, StateRejectedAI},
	TriggerPrepareExport:        {StateAIProcessing, StateReadyForExport},
	TriggerStartExporting:       {StateReadyForExport, StateExporting},
	TriggerComplete:             {StateExporting, StateCompleted},
	TriggerFailExport:           {StateExporting, StateExportFailed},
}

var terminalStates = map[State]bool{
	StateValidationFailed:     true,
	StateDocumentsFetchFailed: true,
	StateRejectedFilter:       true,
	StateRejectedAI:           true,
	StateCompleted:            true,
	StateExportFailed:         true,
	StateError:                true,
}

// Terminal reports whether the orchestrator performs no further
// transitions from s in normal operation.
func Terminal(s State) bool {
	return terminalStates[s]
}

// Machine tracks the current state of one tender.
type Machine struct {
	tenderID string
	current  State
	logger   *slog.Logger
}

// New seeds a machine from the persisted state; new tenders start at
// RECEIVED.
func New(tenderID string, initial State, logger *slog.Logger) *Machine {
	if initial == "" {
		initial = StateReceived
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Machine{tenderID: tenderID, current: initial, logger: logger}
}

// Current returns the machine's current state.
func (m *Machine) Current() State {
	return m.current
}

// Fire applies the named trigger, or returns an error when the trigger is
// not legal from the current state. Each successful transition logs entry
// into the destination state.
func (m *Machine) Fire(t Trigger) error {
	if t == TriggerEncounterError {
		m.enter(StateError)
		return nil
	}

	tr, ok := transitions[t]
	if !ok {
		return fmt.Errorf("unknown trigger %q", t)
	}
	if tr.from != m.current {
		return fmt.Errorf("trigger %q not allowed from state %q", t, m.current)
	}

	m.enter(tr.to)
	return nil
}

func (m *Machine) enter(s State) {
	m.current = s
	m.logger.Info("tender entered state", "tender_id", m.tenderID, "state", string(s))
}
