package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestObserveBackend(t *testing.T) {
	before := testutil.ToFloat64(BackendRequestsTotal.WithLabelValues("history", OutcomeError))

	ObserveBackend("history", errors.New("down"), 20*time.Millisecond)

	after := testutil.ToFloat64(BackendRequestsTotal.WithLabelValues("history", OutcomeError))
	assert.Equal(t, before+1, after)
}

func TestRecordSubmission(t *testing.T) {
	before := testutil.ToFloat64(SubmissionsTotal.WithLabelValues(OutcomeSuccess))

	RecordSubmission(nil)

	assert.Equal(t, before+1, testutil.ToFloat64(SubmissionsTotal.WithLabelValues(OutcomeSuccess)))
}
