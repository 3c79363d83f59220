package triage

import (
	"sort"
	"strings"
)

const (
	injuryPoints = 10

	highConfidenceGap   = 3
	mediumConfidenceGap = 2

	secondaryReasonPrefix  = "Secondary factor: "
	uploadConfidenceReason = "Confidence increased: client providing training data for review"
)

var (
	injuryReasons = []string{
		"Past injury or current physical issue reported",
		"Programming must be adapted around the constraint before progressing",
	}

	assessmentReasons = []string{
		"Not enough information to identify a single limiting factor",
		"A full assessment call is recommended to pinpoint the bottleneck",
	}
)

// bucket accumulates classifier points for one bottleneck category.
type bucket struct {
	category Bottleneck
	points   int
	reasons  []string
}

func (b *bucket) add(points int, reason string) {
	b.points += points
	b.reasons = append(b.reasons, reason)
}

// InferBottleneck diagnoses the limiting factor from the quiz answers.
// Injury constraints short-circuit every other rule. When wantsUpload is set a
// LOW confidence result is raised to MEDIUM.
func InferBottleneck(answers LeadAnswers, wantsUpload bool) Diagnosis {
	a := answers.normalized()

	if strings.Contains(a.Constraints, ConstraintPastInjury) || strings.Contains(a.Constraints, ConstraintCurrentIssue) {
		return Diagnosis{
			Bottleneck: BottleneckInjury,
			Confidence: ConfidenceHigh,
			Reasons:    append([]string(nil), injuryReasons...),
			Breakdown:  map[Bottleneck]int{BottleneckInjury: injuryPoints},
		}
	}

	// Declaration order is the tie-break order.
	buckets := []*bucket{
		{category: BottleneckTraining},
		{category: BottleneckConsistency},
		{category: BottleneckNutrition},
		{category: BottleneckRecovery},
	}
	training, consistency, nutrition, recovery := buckets[0], buckets[1], buckets[2], buckets[3]

	switch a.BiggestBlocker {
	case BlockerResultsNotHappening:
		training.add(5, "Reported results plateau despite training")
	case BlockerConflictingAdvice:
		training.add(5, "Confusion from conflicting training advice")
	case BlockerCantStayConsistent:
		consistency.add(5, "Self-identified consistency as main barrier")
	case BlockerTimeConstraints:
		consistency.add(3, "Time constraints making it hard to train consistently")
		training.add(2, "Limited time means training sessions must be highly efficient")
	case BlockerNutrition:
		nutrition.add(6, "Nutrition consistency identified as main blocker")
	case BlockerLowEnergy:
		recovery.add(6, "Energy, recovery, or stress issues reported")
	}

	if a.TrainingDaysCurrent == DaysZeroOne {
		consistency.add(2, "Very low training frequency (0-1 days/week)")
	}
	if (a.TrainingDaysCurrent == DaysFourFive || a.TrainingDaysCurrent == DaysSixPlus) && a.BiggestBlocker == BlockerLowEnergy {
		recovery.add(2, "High training volume paired with recovery issues")
	}
	if a.MainGoal == GoalLoseFat && (a.BiggestBlocker == BlockerResultsNotHappening || a.BiggestBlocker == BlockerNutrition) {
		nutrition.add(2, "Fat loss goal with nutrition-related challenges")
	}

	breakdown := make(map[Bottleneck]int, len(buckets))
	for _, b := range buckets {
		breakdown[b.category] = b.points
	}

	ranked := rank(buckets)
	best, runnerUp := ranked[0], ranked[1]
	diff := best.points - runnerUp.points

	confidence := ConfidenceLow
	switch {
	case diff >= highConfidenceGap:
		confidence = ConfidenceHigh
	case diff == mediumConfidenceGap:
		confidence = ConfidenceMedium
	}

	var (
		bottleneck Bottleneck
		reasons    []string
	)
	if best.points > 0 {
		bottleneck = best.category
		reasons = append(reasons, best.reasons...)
		if diff <= mediumConfidenceGap && runnerUp.points > 0 && len(runnerUp.reasons) > 0 {
			reasons = append(reasons, secondaryReasonPrefix+runnerUp.reasons[0])
		}
	} else {
		bottleneck = BottleneckAssessmentNeeded
		reasons = append(reasons, assessmentReasons...)
	}

	if confidence == ConfidenceLow && wantsUpload {
		confidence = ConfidenceMedium
		reasons = append(reasons, uploadConfidenceReason)
	}

	if len(reasons) > MaxReasons {
		reasons = reasons[:MaxReasons]
	}

	return Diagnosis{
		Bottleneck: bottleneck,
		Confidence: confidence,
		Reasons:    reasons,
		Breakdown:  breakdown,
	}
}

// rank orders buckets by points, highest first. Equal buckets keep their
// input order.
func rank(buckets []*bucket) []*bucket {
	ranked := append([]*bucket(nil), buckets...)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].points > ranked[j].points
	})
	return ranked
}
