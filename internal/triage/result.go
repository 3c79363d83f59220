package triage

// Segment is the priority bucket used to route follow-up effort.
type Segment string

const (
	SegmentHot          Segment = "HOT"
	SegmentWarm         Segment = "WARM"
	SegmentNurture      Segment = "NURTURE"
	SegmentDisqualified Segment = "DISQUALIFIED"
)

// Bottleneck is the single factor judged most likely to limit progress.
type Bottleneck string

const (
	BottleneckInjury           Bottleneck = "INJURY_CONSTRAINTS"
	BottleneckTraining         Bottleneck = "TRAINING"
	BottleneckConsistency      Bottleneck = "CONSISTENCY"
	BottleneckNutrition        Bottleneck = "NUTRITION"
	BottleneckRecovery         Bottleneck = "RECOVERY"
	BottleneckAssessmentNeeded Bottleneck = "ASSESSMENT_NEEDED"
)

// Confidence grades how clearly the winning bottleneck stood out.
type Confidence string

const (
	ConfidenceLow    Confidence = "LOW"
	ConfidenceMedium Confidence = "MEDIUM"
	ConfidenceHigh   Confidence = "HIGH"
)

// MaxReasons caps the justification list returned with a diagnosis.
const MaxReasons = 3

// Score is the outcome of ComputeTriageScore.
type Score struct {
	Score   int     `json:"score"`
	Segment Segment `json:"segment"`
	FitRisk bool    `json:"fit_risk"`
}

// Diagnosis is the outcome of InferBottleneck.
type Diagnosis struct {
	Bottleneck Bottleneck         `json:"bottleneck"`
	Confidence Confidence         `json:"confidence"`
	Reasons    []string           `json:"reasons"`
	Breakdown  map[Bottleneck]int `json:"breakdown"`
}

// Result combines the score and the diagnosis for one submission.
type Result struct {
	Score
	Diagnosis
}

// Triage runs the scorer and the classifier over the same answers. Upload
// intent for the classifier is taken from the wants_upload answer.
func Triage(answers LeadAnswers) Result {
	return Result{
		Score:     ComputeTriageScore(answers),
		Diagnosis: InferBottleneck(answers, answers.WantsToUpload()),
	}
}
