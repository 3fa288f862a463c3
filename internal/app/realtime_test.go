package app

import "testing"

// Persistent uplink failures must reach the frontend: the first one
// immediately, then spaced repeats while the condition lasts.
func TestSendFailureSurfacing(t *testing.T) {
	r := NewRealtimeAdapter(nil, nil)

	if !r.recordSendFailure() {
		t.Fatal("first failure not surfaced")
	}
	surfaced := 0
	for i := 0; i < sendFailureRepeat*2; i++ {
		if r.recordSendFailure() {
			surfaced++
		}
	}
	if surfaced != 2 {
		t.Errorf("surfaced %d repeat failures over %d, want 2", surfaced, sendFailureRepeat*2)
	}
}

func TestSendSuccessResetsFailureCount(t *testing.T) {
	r := NewRealtimeAdapter(nil, nil)

	r.recordSendFailure()
	r.recordSendFailure()
	r.recordSendSuccess()

	if !r.recordSendFailure() {
		t.Error("failure after recovery not surfaced as first")
	}
}
