package domain

// Trigger is a classified signal in visitor text suggesting human attention
// is warranted. Exactly one trigger (or TriggerNone) is computed per visitor
// turn; it is consumed immediately and never persisted.
type Trigger string

const (
	TriggerNone             Trigger = "none"
	TriggerRecruiter        Trigger = "recruiter_detected"
	TriggerAvailability     Trigger = "availability_question"
	TriggerSalary           Trigger = "salary_question"
	TriggerResumeRequest    Trigger = "resume_request"
	TriggerContactRequest   Trigger = "contact_request"
	TriggerHighInterest     Trigger = "high_interest"
	TriggerDeepTechnical    Trigger = "deep_technical"
	TriggerPredictiveSignal Trigger = "predictive_signal"
)

// IsNone reports whether no intervention signal was detected.
func (t Trigger) IsNone() bool {
	return t == TriggerNone || t == ""
}
