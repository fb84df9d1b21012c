package capability

import (
	"testing"

	"github.com/chranama/llm-server-sub001/pkg/policy"
)

func TestResolve_DefaultsToTrueWhenAbsent(t *testing.T) {
	effective, denials := Resolve(nil, nil, nil, "m1")
	if len(denials) != 0 {
		t.Errorf("expected no denials, got %+v", denials)
	}
	_ = effective
}

func TestCheck_DeploymentDenied(t *testing.T) {
	ok, denial := Check("generate", map[string]bool{"generate": false}, nil, nil, "m1")
	if ok {
		t.Fatal("expected denial")
	}
	if denial.Kind != DeploymentDenied {
		t.Errorf("Kind = %v, want DeploymentDenied", denial.Kind)
	}
}

func TestCheck_ModelDenied(t *testing.T) {
	ok, denial := Check("extract", nil, map[string]bool{"extract": false}, nil, "m1")
	if ok {
		t.Fatal("expected denial")
	}
	if denial.Kind != ModelOrPolicyDenied {
		t.Errorf("Kind = %v, want ModelOrPolicyDenied", denial.Kind)
	}
}

func TestCheck_PolicyDeniedExtract(t *testing.T) {
	snap := policy.Load("") // start from an OK snapshot, then force denial below
	snap.OK = false

	ok, denial := Check("extract", nil, nil, snap, "m1")
	if ok {
		t.Fatal("expected policy denial")
	}
	if denial.Kind != ModelOrPolicyDenied {
		t.Errorf("Kind = %v, want ModelOrPolicyDenied", denial.Kind)
	}
}

func TestCheck_PolicyScopedToOtherModelHasNoEffect(t *testing.T) {
	snap := &policy.Snapshot{OK: false, ModelID: "other-model"}
	ok, _ := Check("extract", nil, nil, snap, "m1")
	if !ok {
		t.Fatal("expected policy scoped to a different model to have no effect")
	}
}

func TestCheck_DeploymentPrecedesModelDenial(t *testing.T) {
	// Both deployment and model deny "extract" — deployment's denial must win
	// so the pipeline returns capability_disabled (501), not _not_supported (400).
	ok, denial := Check("extract",
		map[string]bool{"extract": false},
		map[string]bool{"extract": false},
		nil, "m1")
	if ok {
		t.Fatal("expected denial")
	}
	if denial.Kind != DeploymentDenied {
		t.Errorf("Kind = %v, want DeploymentDenied (deployment takes precedence)", denial.Kind)
	}
}
