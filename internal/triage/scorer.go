package triage

import "strings"

var (
	startTimingWeights = map[string]int{
		StartThisWeek:        25,
		StartTwoThreeWeeks:   18,
		StartFourSixWeeks:    10,
		StartJustResearching: 0,
	}

	budgetWeights = map[string]int{
		BudgetSixHundredPlus:  25,
		BudgetThreeToSix:      18,
		BudgetOneFiftyToThree: 10,
		BudgetUnderOneFifty:   3,
		BudgetNotSure:         5,
	}

	timeCommitmentWeights = map[string]int{
		HoursFivePlus:  10,
		HoursThreeFive: 8,
		HoursTwoThree:  5,
		HoursOneTwo:    2,
	}

	trainingDaysWeights = map[string]int{
		DaysFourFive: 6,
		DaysSixPlus:  5,
		DaysTwoThree: 4,
		DaysZeroOne:  3,
	}
)

const (
	coachingNotSurePoints = 6
	coachingChosenPoints  = 10
	londonFitPoints       = 5
	uploadIntentPoints    = 6

	hotScoreThreshold  = 70
	warmScoreThreshold = 40
)

// ComputeTriageScore sums the fixed per-answer weights and derives the lead
// segment. It never fails: unknown or missing answers add zero.
func ComputeTriageScore(answers LeadAnswers) Score {
	a := answers.normalized()

	score := startTimingWeights[a.StartTiming] +
		budgetWeights[a.MonthlyInvestment] +
		timeCommitmentWeights[a.TimeCommitmentWeekly] +
		trainingDaysWeights[a.TrainingDaysCurrent]

	switch a.CoachingPreference {
	case "":
	case PreferenceNotSure:
		score += coachingNotSurePoints
	default:
		score += coachingChosenPoints
	}

	fitRisk := false
	if a.CoachingPreference == PreferenceInPersonLondon {
		if inLondon(a.Location) {
			score += londonFitPoints
		} else {
			fitRisk = true
		}
	}

	if a.WantsUpload == UploadYes {
		score += uploadIntentPoints
	}

	return Score{
		Score:   score,
		Segment: segmentFor(a, score, fitRisk),
		FitRisk: fitRisk,
	}
}

func segmentFor(a LeadAnswers, score int, fitRisk bool) Segment {
	if fitRisk && a.CoachingPreference == PreferenceInPersonLondon && !inLondon(a.Location) {
		return SegmentDisqualified
	}
	if score >= hotScoreThreshold && a.StartTiming != StartJustResearching && hasBuyingSignal(a) {
		return SegmentHot
	}
	if score >= warmScoreThreshold && score < hotScoreThreshold {
		return SegmentWarm
	}
	return SegmentNurture
}

// hasBuyingSignal corroborates a high score with a real budget, or with an
// unsure budget paired with the most urgent start.
func hasBuyingSignal(a LeadAnswers) bool {
	switch a.MonthlyInvestment {
	case BudgetThreeToSix, BudgetSixHundredPlus:
		return true
	case BudgetNotSure:
		return a.StartTiming == StartThisWeek
	}
	return false
}

func inLondon(location string) bool {
	return strings.Contains(strings.ToLower(location), "london")
}
