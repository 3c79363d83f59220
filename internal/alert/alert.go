// Package alert pushes real-time notices about HOT leads to the coach.
package alert

import (
	"context"
	"errors"
	"fmt"
)

// LeadAlert summarises a lead worth an immediate follow-up.
type LeadAlert struct {
	LeadID      string
	Email       string
	FirstName   string
	Score       int
	Segment     string
	Bottleneck  string
	Confidence  string
	MainGoal    string
	StartTiming string
	Budget      string
}

// Alerter delivers a lead alert to one channel.
type Alerter interface {
	Alert(ctx context.Context, a LeadAlert) error
}

// Multi fans an alert out to every configured alerter.
type Multi []Alerter

// Alert delivers to all alerters and joins their errors.
func (m Multi) Alert(ctx context.Context, a LeadAlert) error {
	var err error
	for _, alerter := range m {
		if alerter == nil {
			continue
		}
		err = errors.Join(err, alerter.Alert(ctx, a))
	}
	return err
}

func (a LeadAlert) displayName() string {
	if a.FirstName != "" {
		return a.FirstName
	}
	return a.Email
}

// Summary is the one-line text used by channels without rich formatting.
func (a LeadAlert) Summary() string {
	return fmt.Sprintf("HOT lead: %s (%s) scored %d. Bottleneck %s (%s confidence). Start: %s, budget: %s.",
		a.displayName(), a.Email, a.Score, a.Bottleneck, a.Confidence, orDash(a.StartTiming), orDash(a.Budget))
}

func orDash(v string) string {
	if v == "" {
		return "-"
	}
	return v
}
