// Package model provides fitted-state tracking and versioned JSON persistence
// shared by the estimators of this module.
package model

import (
	"sync"

	"github.com/YuminosukeSato/ebmgo/pkg/errors"
)

// StateManager tracks whether an estimator has been fitted, together with the
// data dimensions seen during fitting. It is safe for concurrent use.
type StateManager struct {
	mu sync.RWMutex

	fitted    bool
	nFeatures int
	nSamples  int
	nClasses  int
}

// NewStateManager creates an unfitted StateManager.
func NewStateManager() *StateManager {
	return &StateManager{}
}

// IsFitted returns whether the model has been fitted.
func (s *StateManager) IsFitted() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.fitted
}

// SetFitted marks the model as fitted with the given dimensions. nClasses is
// negative for regression.
func (s *StateManager) SetFitted(nFeatures, nSamples, nClasses int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fitted = true
	s.nFeatures = nFeatures
	s.nSamples = nSamples
	s.nClasses = nClasses
}

// Reset returns to the unfitted state.
func (s *StateManager) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fitted = false
	s.nFeatures, s.nSamples, s.nClasses = 0, 0, 0
}

// Dimensions returns the number of features, samples and classes seen
// during fitting.
func (s *StateManager) Dimensions() (nFeatures, nSamples, nClasses int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nFeatures, s.nSamples, s.nClasses
}

// RequireFitted returns a NotFittedError naming modelName and method when
// the model has not been fitted.
func (s *StateManager) RequireFitted(modelName, method string) error {
	if !s.IsFitted() {
		return errors.NewNotFittedError(modelName, method)
	}
	return nil
}

// State is a serializable snapshot of a StateManager.
type State struct {
	Fitted    bool `json:"fitted"`
	NFeatures int  `json:"n_features,omitempty"`
	NSamples  int  `json:"n_samples,omitempty"`
	NClasses  int  `json:"n_classes,omitempty"`
}

// GetState returns the current state.
func (s *StateManager) GetState() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return State{Fitted: s.fitted, NFeatures: s.nFeatures, NSamples: s.nSamples, NClasses: s.nClasses}
}

// SetState restores a snapshot.
func (s *StateManager) SetState(state State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fitted = state.Fitted
	s.nFeatures = state.NFeatures
	s.nSamples = state.NSamples
	s.nClasses = state.NClasses
}
