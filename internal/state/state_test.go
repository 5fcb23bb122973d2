package state_test

import (
	"testing"
	"time"

	"github.com/opsconcierge/opsconcierge/internal/state"
)

const concierge = "ConciergeAgent"

func TestActiveDefaultsForUnknownUser(t *testing.T) {
	m := state.NewManager(concierge, time.Hour)

	if got := m.Active("nobody"); got != concierge {
		t.Errorf("Active() = %q, want %q", got, concierge)
	}
}

func TestSetActiveSticks(t *testing.T) {
	m := state.NewManager(concierge, time.Hour)

	m.SetActive("u1", "AzureVMAgent")
	if got := m.Active("u1"); got != "AzureVMAgent" {
		t.Errorf("Active() = %q, want %q", got, "AzureVMAgent")
	}

	st := m.Get("u1")
	if st == nil {
		t.Fatal("Get() = nil after SetActive")
	}
	if st.MessageCount != 1 {
		t.Errorf("MessageCount = %d, want 1", st.MessageCount)
	}
}

func TestClear(t *testing.T) {
	m := state.NewManager(concierge, time.Hour)
	m.SetActive("u1", "AzureVMAgent")

	if !m.Clear("u1") {
		t.Error("Clear() existing user = false, want true")
	}
	if got := m.Active("u1"); got != concierge {
		t.Errorf("Active() after Clear = %q, want %q", got, concierge)
	}
	if m.Clear("u1") {
		t.Error("Clear() unknown user = true, want false")
	}
}

func TestStatsDistribution(t *testing.T) {
	m := state.NewManager(concierge, time.Hour)
	m.SetActive("u1", "AzureVMAgent")
	m.SetActive("u2", "AzureVMAgent")
	m.SetActive("u3", concierge)

	stats := m.Stats()
	if stats.ActiveUsers != 3 {
		t.Errorf("ActiveUsers = %d, want 3", stats.ActiveUsers)
	}
	if stats.AgentDistribution["AzureVMAgent"] != 2 {
		t.Errorf("AzureVMAgent count = %d, want 2", stats.AgentDistribution["AzureVMAgent"])
	}
	if stats.AgentDistribution[concierge] != 1 {
		t.Errorf("%s count = %d, want 1", concierge, stats.AgentDistribution[concierge])
	}
}

func TestSweepExpiresIdleSessions(t *testing.T) {
	m := state.NewManager(concierge, time.Minute)
	m.SetActive("u1", "AzureVMAgent")

	if removed := m.Sweep(time.Now().UTC()); removed != 0 {
		t.Errorf("Sweep() at present removed %d, want 0", removed)
	}
	if removed := m.Sweep(time.Now().UTC().Add(2 * time.Minute)); removed != 1 {
		t.Errorf("Sweep() past timeout removed %d, want 1", removed)
	}
}
