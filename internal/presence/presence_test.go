package presence

import (
	"context"
	"testing"

	"github.com/voipbridge/voipbridge/internal/database/models"
)

// fakeUserStore holds one user keyed by extension and records status writes.
type fakeUserStore struct {
	user    *models.VoIPUser
	updates []string
}

func (s *fakeUserStore) FindByExtension(_ context.Context, extension string) (*models.VoIPUser, error) {
	if s.user != nil && s.user.Extension == extension {
		return s.user, nil
	}
	return nil, nil
}

func (s *fakeUserStore) UpdateStatus(_ context.Context, _ int64, status string) error {
	s.updates = append(s.updates, status)
	s.user.Status = status
	return nil
}

func TestExtensionFromPeer(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"PJSIP/7001", "7001"},
		{"SIP/7002", "7002"},
		{"7003", "7003"},
		{"", ""},
	}

	for _, tt := range tests {
		if got := ExtensionFromPeer(tt.in); got != tt.want {
			t.Errorf("ExtensionFromPeer(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestExtensionFromChannel(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"PJSIP/7001-00000abc", "7001"},
		{"SIP/7002-0000000f", "7002"},
		{"PJSIP/7003", "7003"},
		{"no-slash", ""},
		{"", ""},
	}

	for _, tt := range tests {
		if got := ExtensionFromChannel(tt.in); got != tt.want {
			t.Errorf("ExtensionFromChannel(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFromPeerStatus(t *testing.T) {
	tests := []struct {
		in     string
		want   string
		wantOK bool
	}{
		{"Reachable", models.StatusAvailable, true},
		{"Registered", models.StatusAvailable, true},
		{"Unreachable", models.StatusOffline, true},
		{"Unregistered", models.StatusOffline, true},
		{"Lagged", models.StatusAway, true},
		{"Busy", models.StatusBusy, true},
		{"Rejected", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		got, ok := FromPeerStatus(tt.in)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("FromPeerStatus(%q) = (%q, %v), want (%q, %v)",
				tt.in, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestFromChannelState(t *testing.T) {
	tests := []struct {
		in     string
		want   string
		wantOK bool
	}{
		{"0", models.StatusAvailable, true},
		{"1", models.StatusBusy, true},
		{"4", models.StatusBusy, true},
		{"6", models.StatusBusy, true},
		{"7", "", false},
		{"Ring", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		got, ok := FromChannelState(tt.in)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("FromChannelState(%q) = (%q, %v), want (%q, %v)",
				tt.in, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestFromNotification(t *testing.T) {
	tests := []struct {
		event    string
		explicit string
		want     string
		wantOK   bool
	}{
		{"call_start", "", models.StatusBusy, true},
		{"call_ringing", "", models.StatusBusy, true},
		{"call_connected", "", models.StatusBusy, true},
		{"call_end", "", models.StatusAvailable, true},
		{"call_hangup", "", models.StatusAvailable, true},
		{"call_completed", "", models.StatusAvailable, true},
		{"user_online", "", models.StatusAvailable, true},
		{"user_offline", "", models.StatusOffline, true},
		{"call_start", models.StatusAway, models.StatusAway, true},
		{"made_up_event", "", "", false},
	}

	for _, tt := range tests {
		got, ok := FromNotification(tt.event, tt.explicit)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("FromNotification(%q, %q) = (%q, %v), want (%q, %v)",
				tt.event, tt.explicit, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestApply(t *testing.T) {
	ctx := context.Background()

	t.Run("status change writes store", func(t *testing.T) {
		store := &fakeUserStore{user: &models.VoIPUser{
			ID: 5, Extension: "7001", Status: models.StatusOffline,
		}}
		engine := NewEngine(store)

		tr, err := engine.Apply(ctx, "7001", models.StatusAvailable)
		if err != nil {
			t.Fatalf("Apply() error: %v", err)
		}
		if tr == nil || !tr.Changed {
			t.Fatalf("Transition = %+v, want changed", tr)
		}
		if tr.Old != models.StatusOffline || tr.New != models.StatusAvailable {
			t.Errorf("transition %q -> %q, want offline -> available", tr.Old, tr.New)
		}
		if len(store.updates) != 1 {
			t.Errorf("got %d status writes, want 1", len(store.updates))
		}
	})

	t.Run("same status skips write", func(t *testing.T) {
		store := &fakeUserStore{user: &models.VoIPUser{
			ID: 5, Extension: "7001", Status: models.StatusBusy,
		}}
		engine := NewEngine(store)

		tr, err := engine.Apply(ctx, "7001", models.StatusBusy)
		if err != nil {
			t.Fatalf("Apply() error: %v", err)
		}
		if tr == nil || tr.Changed {
			t.Fatalf("Transition = %+v, want unchanged", tr)
		}
		if len(store.updates) != 0 {
			t.Errorf("got %d status writes, want 0", len(store.updates))
		}
	})

	t.Run("unknown extension", func(t *testing.T) {
		engine := NewEngine(&fakeUserStore{})

		tr, err := engine.Apply(ctx, "9999", models.StatusAvailable)
		if err != nil {
			t.Fatalf("Apply() error: %v", err)
		}
		if tr != nil {
			t.Fatalf("Transition = %+v, want nil for unknown extension", tr)
		}
	})
}
