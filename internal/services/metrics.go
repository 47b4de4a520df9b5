package services

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// submissionsTotal counts mutation outcomes by operation and result
	// (ok, duplicate, rejected, error).
	submissionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "goals_submissions_total",
			Help: "Submit, edit and delete outcomes.",
		},
		[]string{"op", "result"},
	)

	// completionsTotal counts archived goals.
	completionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "goals_completions_total",
			Help: "Goals completed and archived.",
		},
	)

	// duplicatesTotal counts suppressed duplicates by kind.
	duplicatesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "goals_duplicates_total",
			Help: "Requests rejected as duplicates.",
		},
		[]string{"kind"},
	)
)

func init() {
	prometheus.MustRegister(submissionsTotal, completionsTotal, duplicatesTotal)
}

// observe records the outcome of one mutation.
func observe(op string, err error) {
	switch {
	case err == nil:
		submissionsTotal.WithLabelValues(op, "ok").Inc()
	case IsDuplicate(err):
		submissionsTotal.WithLabelValues(op, "duplicate").Inc()
		duplicatesTotal.WithLabelValues(duplicateKind(err)).Inc()
	case errors.Is(err, ErrUnauthenticated), errors.Is(err, ErrInvalidInput),
		errors.Is(err, ErrInvalidQuantity), errors.Is(err, ErrPartNotFound),
		errors.Is(err, ErrSubmissionNotFound), errors.Is(err, ErrPartInactive):
		submissionsTotal.WithLabelValues(op, "rejected").Inc()
	default:
		submissionsTotal.WithLabelValues(op, "error").Inc()
	}
}

func duplicateKind(err error) string {
	switch {
	case errors.Is(err, ErrDuplicateKey):
		return "key"
	case errors.Is(err, ErrDuplicateRecent):
		return "recent"
	case errors.Is(err, ErrDuplicateEdit):
		return "edit"
	default:
		return "deleted"
	}
}
