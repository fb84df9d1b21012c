// Package policy loads the external policy decision artifact (C5): a small
// JSON file an operator-controlled process may rewrite at any time. It is
// fail-closed — any read or parse error denies every capability the policy
// could mention (currently just extract).
package policy

import (
	"encoding/json"
	"fmt"
	"os"
)

// Snapshot is the current state of the policy decision file (spec.md §3).
type Snapshot struct {
	OK            bool
	ModelID       string
	EnableExtract *bool
	SourcePath    string
	Error         string
}

// decisionFile mirrors the JSON shape documented in spec.md §6.
type decisionFile struct {
	OK             *bool  `json:"ok"`
	Status         string `json:"status"`
	EnableExtract  *bool  `json:"enable_extract"`
	ModelID        string `json:"model_id"`
	ContractErrors int    `json:"contract_errors"`
}

// Error codes reproduced verbatim from the Python original
// (load_policy_decision_from_env()), since spec.md names the shape but not
// the literal strings.
const (
	ErrMissing     = "policy_decision_missing"
	ErrParsePrefix = "policy_decision_parse_error:"
	ErrNotOK       = "policy_decision_not_ok"
)

// Load reads path and evaluates it into a Snapshot. An empty path means no
// policy is configured: this is treated as an always-ok, model-agnostic
// snapshot (no file to fail on). Load is called on every capability
// computation (spec.md §4.1/§5.1: no TTL cache, the file is small and local).
func Load(path string) *Snapshot {
	if path == "" {
		return &Snapshot{OK: true}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return &Snapshot{OK: false, SourcePath: path, Error: ErrMissing}
	}

	var df decisionFile
	if err := json.Unmarshal(data, &df); err != nil {
		return &Snapshot{OK: false, SourcePath: path, Error: ErrParsePrefix + err.Error()}
	}

	ok := true
	if df.OK != nil {
		ok = *df.OK
	}

	denied := !ok || df.Status == "deny" || df.ContractErrors > 0 || (df.EnableExtract != nil && !*df.EnableExtract)

	snap := &Snapshot{
		OK:            !denied,
		ModelID:       df.ModelID,
		EnableExtract: df.EnableExtract,
		SourcePath:    path,
	}
	if denied {
		snap.Error = ErrNotOK
		f := false
		snap.EnableExtract = &f
	}
	return snap
}

// AppliesTo reports whether this snapshot constrains modelID: a snapshot
// with no ModelID is model-agnostic and applies to every model.
func (s *Snapshot) AppliesTo(modelID string) bool {
	return s == nil || s.ModelID == "" || s.ModelID == modelID
}

// String implements error-free debug formatting for logs.
func (s *Snapshot) String() string {
	return fmt.Sprintf("policy{ok=%v model=%q error=%q}", s.OK, s.ModelID, s.Error)
}
