package domain

import "fmt"

// DefaultAlertThreshold is the standard deviation above which a reading alerts.
const DefaultAlertThreshold = 0.5

// AlertSubject is the subject line attached to every deviation alert.
const AlertSubject = "Standard deviation alert"

// Alert flags a valid reading whose standard deviation exceeded the threshold.
type Alert struct {
	Date    string  `json:"date"`
	StdDev  float64 `json:"std_dev"`
	Subject string  `json:"subject"`
	Message string  `json:"message"`
}

// AlertEvaluator decides whether a validated reading is anomalous.
type AlertEvaluator struct {
	Threshold float64
}

// NewAlertEvaluator returns an evaluator using DefaultAlertThreshold.
func NewAlertEvaluator() AlertEvaluator {
	return AlertEvaluator{Threshold: DefaultAlertThreshold}
}

// Evaluate returns an alert when the record's standard deviation is
// strictly greater than the threshold.
func (e AlertEvaluator) Evaluate(rec ValidatedRecord) (Alert, bool) {
	if rec.StdDev <= e.Threshold {
		return Alert{}, false
	}
	date := rec.DateKey()
	return Alert{
		Date:    date,
		StdDev:  rec.StdDev,
		Subject: AlertSubject,
		Message: fmt.Sprintf("Alert: standard deviation of %s detected on %s. Check the data.", formatNumber(rec.StdDev), date),
	}, true
}
