package supervisor

import (
	"testing"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	// Queue and pool goroutines must all exit when their owners stop.
	// opencensus starts a background worker in package init (via the
	// genai dependency) that can never be stopped, so ignore it.
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start"),
	)
}
