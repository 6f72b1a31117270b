package guard

import (
	"errors"
	"testing"

	"github.com/fixflow/fixflow/internal/domain"
)

func TestCheckPolicy(t *testing.T) {
	tests := []struct {
		name    string
		policy  domain.FilPolicy
		level   domain.FilLevel
		blocked bool
	}{
		{
			name:    "empty policy allows everything",
			policy:  domain.FilPolicy{},
			level:   domain.Fil3,
			blocked: false,
		},
		{
			name:    "explicit block wins",
			policy:  domain.FilPolicy{Block: []domain.FilLevel{domain.Fil3}},
			level:   domain.Fil3,
			blocked: true,
		},
		{
			name: "block wins even when allowed",
			policy: domain.FilPolicy{
				Allow: []domain.FilLevel{domain.Fil2},
				Block: []domain.FilLevel{domain.Fil2},
			},
			level:   domain.Fil2,
			blocked: true,
		},
		{
			name:    "allow list restricts to members",
			policy:  domain.FilPolicy{Allow: []domain.FilLevel{domain.Fil0, domain.Fil1}},
			level:   domain.Fil2,
			blocked: true,
		},
		{
			name:    "allow list member passes",
			policy:  domain.FilPolicy{Allow: []domain.FilLevel{domain.Fil0, domain.Fil1}},
			level:   domain.Fil1,
			blocked: false,
		},
		{
			name:    "unblocked level passes with block-only policy",
			policy:  domain.FilPolicy{Block: []domain.FilLevel{domain.Fil3}},
			level:   domain.Fil0,
			blocked: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			profile := domain.AgentProfile{Name: "AUDITOR", FilPolicy: tt.policy}
			err := CheckPolicy(profile, tt.level)
			if tt.blocked {
				var fb *domain.FilBlockedError
				if !errors.As(err, &fb) {
					t.Fatalf("CheckPolicy = %v, want FilBlockedError", err)
				}
				if fb.Agent != "AUDITOR" || fb.Level != tt.level {
					t.Errorf("FilBlockedError = {%s %s}, want {AUDITOR %s}", fb.Agent, fb.Level, tt.level)
				}
			} else if err != nil {
				t.Fatalf("CheckPolicy = %v, want nil", err)
			}
		})
	}
}

func TestCheckPolicyIsPure(t *testing.T) {
	profile := domain.AgentProfile{
		Name:      "EXECUTOR",
		FilPolicy: domain.FilPolicy{Block: []domain.FilLevel{domain.Fil3}},
	}

	// Repeated evaluation must give the same answer: the check reads no
	// shared state, so a blocked task can never succeed by retrying.
	for i := 0; i < 3; i++ {
		if err := CheckPolicy(profile, domain.Fil3); err == nil {
			t.Fatalf("call %d: blocked level passed", i)
		}
		if err := CheckPolicy(profile, domain.Fil0); err != nil {
			t.Fatalf("call %d: allowed level rejected: %v", i, err)
		}
	}
}
