// Package capability resolves the effective capability set for a request
// (C4): a pure function of deployment flags, a model's declared
// capabilities, and the current policy snapshot.
package capability

import (
	"github.com/chranama/llm-server-sub001/pkg/policy"
)

// DenialKind distinguishes why a capability was denied, which determines the
// HTTP status the pipeline returns (spec.md §4.1).
type DenialKind int

const (
	// NoDenial means the capability is granted.
	NoDenial DenialKind = iota
	// DeploymentDenied maps to capability_disabled (501).
	DeploymentDenied
	// ModelOrPolicyDenied maps to capability_not_supported (400).
	ModelOrPolicyDenied
)

// Denial describes why a single capability was denied.
type Denial struct {
	Kind       DenialKind
	Capability string
}

// Resolve computes deployment AND model AND policy for every capability
// named in deployment or model (falling back to true when a map is missing
// an entry), per spec.md §4.1. Only "extract" is policy-scoped today; policy
// never grants, only revokes, and only applies when AppliesTo(modelID) is
// true. The second return value carries a Denial per denied capability, so
// callers checking one specific capability (C12's admission step) can look
// it up without re-deriving deployment-vs-model-or-policy precedence.
func Resolve(deployment, model map[string]bool, snapshot *policy.Snapshot, modelID string) (map[string]bool, map[string]Denial) {
	names := unionKeys(deployment, model)

	effective := make(map[string]bool, len(names))
	denials := make(map[string]Denial)

	for _, name := range names {
		dep := valueOr(deployment, name, true)
		mod := valueOr(model, name, true)

		pol := true
		if name == "extract" && snapshot != nil && snapshot.AppliesTo(modelID) {
			pol = snapshot.OK
		}

		val := dep && mod && pol
		effective[name] = val

		if !val {
			kind := ModelOrPolicyDenied
			if !dep {
				kind = DeploymentDenied
			}
			denials[name] = Denial{Kind: kind, Capability: name}
		}
	}

	return effective, denials
}

// Check resolves a single named capability against the given inputs,
// returning (granted=true, nil) or (false, *Denial) with the HTTP-status-
// determining Kind per spec.md §4.1 and §4.8 step 3.
func Check(capabilityName string, deployment, model map[string]bool, snapshot *policy.Snapshot, modelID string) (bool, *Denial) {
	if _, inDeployment := deployment[capabilityName]; !inDeployment {
		if _, inModel := model[capabilityName]; !inModel {
			// Named in neither map: both default to true, so add that default
			// explicitly to have Resolve evaluate the name.
			withName := make(map[string]bool, len(model)+1)
			for k, v := range model {
				withName[k] = v
			}
			withName[capabilityName] = true
			model = withName
		}
	}
	effective, denials := Resolve(deployment, model, snapshot, modelID)
	if effective[capabilityName] {
		return true, nil
	}
	d := denials[capabilityName]
	return false, &d
}

func unionKeys(a, b map[string]bool) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	var names []string
	for k := range a {
		if _, ok := seen[k]; !ok {
			seen[k] = struct{}{}
			names = append(names, k)
		}
	}
	for k := range b {
		if _, ok := seen[k]; !ok {
			seen[k] = struct{}{}
			names = append(names, k)
		}
	}
	return names
}

func valueOr(m map[string]bool, key string, fallback bool) bool {
	if m == nil {
		return fallback
	}
	v, ok := m[key]
	if !ok {
		return fallback
	}
	return v
}
