// Package triage scores quiz submissions and diagnoses the factor most likely
// limiting a prospect's progress. Every function in the package is pure and
// safe for concurrent use.
package triage

import "strings"

// LeadAnswers is the flat set of quiz answers submitted by a prospect.
// Absent fields are empty strings and contribute nothing.
type LeadAnswers struct {
	Email                string `json:"email"`
	MainGoal             string `json:"main_goal,omitempty"`
	Location             string `json:"location,omitempty"`
	StartTiming          string `json:"start_timing,omitempty"`
	BiggestBlocker       string `json:"biggest_blocker,omitempty"`
	TrainingDaysCurrent  string `json:"training_days_current,omitempty"`
	TimeCommitmentWeekly string `json:"time_commitment_weekly,omitempty"`
	MonthlyInvestment    string `json:"monthly_investment,omitempty"`
	CoachingPreference   string `json:"coaching_preference,omitempty"`
	Constraints          string `json:"constraints,omitempty"`
	WantsUpload          string `json:"wants_upload,omitempty"`
}

// Quiz answer values recognised by the scorer and classifier.
const (
	StartThisWeek        = "This Week"
	StartTwoThreeWeeks   = "2-3 Weeks"
	StartFourSixWeeks    = "4-6 Weeks"
	StartJustResearching = "Just Researching"

	BudgetSixHundredPlus  = "£600+"
	BudgetThreeToSix      = "£300-600"
	BudgetOneFiftyToThree = "£150-300"
	BudgetUnderOneFifty   = "Under £150"
	BudgetNotSure         = "Not Sure"

	HoursFivePlus  = "5+ hours"
	HoursThreeFive = "3-5 hours"
	HoursTwoThree  = "2-3 hours"
	HoursOneTwo    = "1-2 hours"

	DaysZeroOne  = "0-1 days"
	DaysTwoThree = "2-3 days"
	DaysFourFive = "4-5 days"
	DaysSixPlus  = "6+ days"

	PreferenceNotSure        = "Not Sure"
	PreferenceInPersonLondon = "In-Person (London)"

	BlockerResultsNotHappening = "Results Not Happening"
	BlockerConflictingAdvice   = "Conflicting Advice"
	BlockerCantStayConsistent  = "Can't Stay Consistent"
	BlockerTimeConstraints     = "Time Constraints"
	BlockerNutrition           = "Nutrition Consistency"
	BlockerLowEnergy           = "Low Energy/Recovery/Stress"

	GoalLoseFat = "Lose Fat"

	ConstraintPastInjury   = "Past Injury"
	ConstraintCurrentIssue = "Current Issue"

	UploadYes = "Yes"
)

var dashReplacer = strings.NewReplacer("–", "-", "—", "-", "’", "'")

// normalize folds typographic dashes and apostrophes into their ASCII form so
// that "2–3 Weeks" and "2-3 Weeks" match the same table entry.
func normalize(value string) string {
	return strings.TrimSpace(dashReplacer.Replace(value))
}

// WantsToUpload reports whether the prospect said they will share training data.
func (a LeadAnswers) WantsToUpload() bool {
	return normalize(a.WantsUpload) == UploadYes
}

func (a LeadAnswers) normalized() LeadAnswers {
	return LeadAnswers{
		Email:                strings.TrimSpace(a.Email),
		MainGoal:             normalize(a.MainGoal),
		Location:             strings.TrimSpace(a.Location),
		StartTiming:          normalize(a.StartTiming),
		BiggestBlocker:       normalize(a.BiggestBlocker),
		TrainingDaysCurrent:  normalize(a.TrainingDaysCurrent),
		TimeCommitmentWeekly: normalize(a.TimeCommitmentWeekly),
		MonthlyInvestment:    normalize(a.MonthlyInvestment),
		CoachingPreference:   normalize(a.CoachingPreference),
		Constraints:          normalize(a.Constraints),
		WantsUpload:          normalize(a.WantsUpload),
	}
}
