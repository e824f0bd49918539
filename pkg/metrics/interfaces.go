package metrics

import (
	"time"

	"github.com/mfreeman451/clientradar/pkg/models"
)

// QueryStore keeps the most recent store query timings.
type QueryStore interface {
	Observe(name string, d time.Duration, at time.Time)
	Samples() []models.QuerySample
	Len() int
}
