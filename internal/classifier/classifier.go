// Package classifier defines the opaque query-intent classifier the
// Candidate Assembler's QueryAnalysis step depends on, and the allow-list
// that keeps its output robust against a misbehaving or upgraded backend.
package classifier

import (
	"context"
	"log/slog"
)

// Intent is one of the fixed query-intent labels QueryAnalysis can carry.
type Intent string

const (
	IntentReference    Intent = "reference"
	IntentReminder     Intent = "reminder"
	IntentLearning     Intent = "learning"
	IntentDecisionLog  Intent = "decision_log"
	IntentContext      Intent = "context"
	IntentAction       Intent = "action"
	IntentArchive      Intent = "archive"
	IntentTemplate     Intent = "template"
	intentFallback     Intent = IntentReference
)

var validIntents = map[string]bool{
	string(IntentReference):   true,
	string(IntentReminder):    true,
	string(IntentLearning):    true,
	string(IntentDecisionLog): true,
	string(IntentContext):     true,
	string(IntentAction):      true,
	string(IntentArchive):     true,
	string(IntentTemplate):    true,
}

// Classifier assigns an intent label to a query. The engine never trusts
// its raw return value directly — see Normalize — because the classifier is
// an opaque, swappable collaborator (an LLM call, a small local model, or a
// hand-written heuristic) and its output shape is not the engine's to
// control.
type Classifier interface {
	ClassifyIntent(ctx context.Context, text string) (string, error)
}

// Normalize maps any string to a valid Intent, falling back to
// IntentReference (and logging at Warn) for anything outside the fixed
// enum. This is the intent-enum-robustness rule: a classifier upgrade that
// starts returning a new label never breaks QueryAnalysis, it just degrades
// to the safest default intent.
func Normalize(raw string, logger *slog.Logger) Intent {
	if validIntents[raw] {
		return Intent(raw)
	}
	if logger != nil {
		logger.Warn("classifier: intent outside known enum, defaulting to reference", "raw", raw)
	}
	return intentFallback
}

// NoopClassifier always reports IntentReference. Used when no classifier
// backend is configured; Normalize's fallback already handles its output,
// so callers can treat a configured classifier and this default identically.
type NoopClassifier struct{}

// ClassifyIntent always returns "reference".
func (NoopClassifier) ClassifyIntent(context.Context, string) (string, error) {
	return string(IntentReference), nil
}
