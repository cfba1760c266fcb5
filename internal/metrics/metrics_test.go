package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics(t *testing.T) {
	// Register should be safe to call multiple times
	Register()
	Register()

	before := testutil.ToFloat64(httpRequests.WithLabelValues("test_endpoint", "200"))
	assert.NotPanics(t, func() {
		IncHTTP("test_endpoint", 200)
	})
	assert.Equal(t, before+1, testutil.ToFloat64(httpRequests.WithLabelValues("test_endpoint", "200")))

	IncBooking("created")
	assert.GreaterOrEqual(t, testutil.ToFloat64(bookingChanges.WithLabelValues("created")), 1.0)

	IncReminder("sent")
	IncSync("completed")
	assert.GreaterOrEqual(t, testutil.ToFloat64(reminders.WithLabelValues("sent")), 1.0)
	assert.GreaterOrEqual(t, testutil.ToFloat64(syncTasks.WithLabelValues("completed")), 1.0)

	SetOnline(false)
	assert.Equal(t, 0.0, testutil.ToFloat64(online))
	SetOnline(true)
	assert.Equal(t, 1.0, testutil.ToFloat64(online))
}
