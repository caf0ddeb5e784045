package notifier

import (
	"testing"

	"github.com/tiroq/screencap/internal/channel"
	"github.com/tiroq/screencap/internal/shotsignal"
	"github.com/tiroq/screencap/testutil"
)

func newTestNotifier() (*Notifier, *shotsignal.Center, *testutil.EventRecorder) {
	center := shotsignal.NewCenter()
	events := testutil.NewEventRecorder()
	return New(center, events), center, events
}

func TestEverySignalIsForwardedWithoutPayload(t *testing.T) {
	n, center, events := newTestNotifier()
	n.StartDetection()

	for i := 0; i < 5; i++ {
		center.Post(shotsignal.UserDidTakeScreenshot, "test")
	}

	got := events.Events()
	testutil.AssertEqual(t, 5, len(got), "forwarded events")
	for _, ev := range got {
		testutil.AssertEqual(t, channel.MethodOnScreenshotTaken, ev.Method, "event method")
		testutil.AssertTrue(t, ev.Arguments == nil, "event has no payload")
	}
}

func TestStartDetectionIsIdempotent(t *testing.T) {
	n, center, events := newTestNotifier()
	n.StartDetection()
	n.StartDetection()

	testutil.AssertEqual(t, 1, center.ObserverCount(shotsignal.UserDidTakeScreenshot), "registrations")

	center.Post(shotsignal.UserDidTakeScreenshot, "test")
	testutil.AssertEqual(t, 1, events.Count(), "forwarded events")
}

func TestStopDetectionUnregisters(t *testing.T) {
	n, center, events := newTestNotifier()
	n.StopDetection()
	n.StartDetection()
	n.StopDetection()
	n.StopDetection()

	testutil.AssertEqual(t, 0, center.ObserverCount(shotsignal.UserDidTakeScreenshot), "registrations")
	testutil.AssertFalse(t, n.IsActive(), "notifier active")

	center.Post(shotsignal.UserDidTakeScreenshot, "test")
	testutil.AssertEqual(t, 0, events.Count(), "forwarded events")
}

func TestOtherNotificationsIgnored(t *testing.T) {
	n, center, events := newTestNotifier()
	n.StartDetection()

	center.Post("SomethingElse", "test")
	testutil.AssertEqual(t, 0, events.Count(), "forwarded events")
}

func TestRestartAfterStop(t *testing.T) {
	n, center, events := newTestNotifier()
	n.StartDetection()
	n.StopDetection()
	n.StartDetection()

	center.Post(shotsignal.UserDidTakeScreenshot, "test")
	testutil.AssertEqual(t, 1, events.Count(), "forwarded events")
	testutil.AssertEqual(t, 2, n.Status().Activations, "activations")
}

func TestHandleMethodCall(t *testing.T) {
	n, _, _ := newTestNotifier()

	got, err := n.HandleMethodCall(&channel.MethodCall{Method: channel.MethodStartDetection})
	testutil.AssertNoError(t, err, "startDetection")
	testutil.AssertEqual(t, true, got, "startDetection result")
	testutil.AssertTrue(t, n.IsActive(), "active after startDetection")

	got, err = n.HandleMethodCall(&channel.MethodCall{Method: channel.MethodStopDetection})
	testutil.AssertNoError(t, err, "stopDetection")
	testutil.AssertEqual(t, true, got, "stopDetection result")

	for _, method := range []string{channel.MethodGetSdkVersion, "bogus"} {
		_, err = n.HandleMethodCall(&channel.MethodCall{Method: method})
		testutil.AssertErrorIs(t, err, channel.ErrNotImplemented, method)
	}
}

func TestDetachStopsDetection(t *testing.T) {
	n, center, _ := newTestNotifier()
	n.StartDetection()
	n.Detach()

	testutil.AssertEqual(t, 0, center.ObserverCount(shotsignal.UserDidTakeScreenshot), "registrations")
}
