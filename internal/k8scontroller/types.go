// Package k8scontroller implements the SimulationRun CRD controller: given a CR
// naming a script ConfigMap and a target generation count, it drives a slimgo run
// to completion and writes status (generation reached, coalesced, mutation count)
// back onto the CR — the same read-reconcile-patch-status shape
// intelligence/antibody-controller.go uses for its Antibody CRD, adapted from a
// promotion-gating state machine to a run-to-completion one.
package k8scontroller

import (
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
)

// SimulationRunSpec names the script to run and how far to advance it, per
// SPEC_FULL.md §2.2's "CR naming a script ConfigMap and target generation count".
type SimulationRunSpec struct {
	// ScriptConfigMap is the name of a ConfigMap in the same namespace holding the
	// Eidos script to run under the key "script.txt".
	ScriptConfigMap string `json:"scriptConfigMap"`
	// TargetGeneration is the generation the run should reach before the CR is
	// considered complete.
	TargetGeneration int64 `json:"targetGeneration"`
	// Seed seeds the run's RNG (spec §6's -seed flag); zero means
	// process-entropy-seeded.
	Seed int64 `json:"seed,omitempty"`
	// MutrunCountOverride pins the chromosome's initial mutation-run count
	// (spec §6's -M flag) instead of letting the experimenter choose one.
	MutrunCountOverride int `json:"mutrunCountOverride,omitempty"`
	// ModelType is "WF" or "nonWF"; empty defaults to "WF".
	ModelType string `json:"modelType,omitempty"`
}

// SimulationRunStatus mirrors AntibodyStatus's Conditions-plus-scalar-fields shape.
type SimulationRunStatus struct {
	Phase              string              `json:"phase,omitempty"`
	ObservedGeneration int64               `json:"observedGeneration,omitempty"`
	TargetGeneration   int64               `json:"targetGeneration,omitempty"`
	Coalesced          bool                `json:"coalesced,omitempty"`
	MutationCount      int                 `json:"mutationCount,omitempty"`
	Message            string              `json:"message,omitempty"`
	LastUpdate         metav1.Time         `json:"lastUpdate,omitempty"`
	Conditions         []metav1.Condition  `json:"conditions,omitempty"`
}

// Phase values for SimulationRunStatus.Phase.
const (
	PhasePending   = "Pending"
	PhaseRunning   = "Running"
	PhaseCompleted = "Completed"
	PhaseFailed    = "Failed"
)

// SimulationRun is the custom resource a slimgo run is driven from.
type SimulationRun struct {
	metav1.TypeMeta   `json:",inline"`
	metav1.ObjectMeta `json:"metadata,omitempty"`
	Spec              SimulationRunSpec   `json:"spec"`
	Status            SimulationRunStatus `json:"status,omitempty"`
}

// SimulationRunList is the standard list wrapper controller-runtime's client
// expects to be able to List against.
type SimulationRunList struct {
	metav1.TypeMeta `json:",inline"`
	metav1.ListMeta `json:"metadata,omitempty"`
	Items           []SimulationRun `json:"items"`
}

// DeepCopyObject implements runtime.Object, required for SimulationRun to satisfy
// client.Object. The corpus's own Antibody CRD relies on a controller-gen
// generated zz_generated.deepcopy.go file that is not part of the retrieved
// source; this package has no code generator available to run, so the copies are
// hand-written instead.
func (r *SimulationRun) DeepCopyObject() runtime.Object {
	if r == nil {
		return nil
	}
	out := *r
	out.ObjectMeta = *r.ObjectMeta.DeepCopy()
	if r.Status.Conditions != nil {
		out.Status.Conditions = make([]metav1.Condition, len(r.Status.Conditions))
		copy(out.Status.Conditions, r.Status.Conditions)
	}
	return &out
}

// DeepCopyObject implements runtime.Object for SimulationRunList.
func (l *SimulationRunList) DeepCopyObject() runtime.Object {
	if l == nil {
		return nil
	}
	out := *l
	out.ListMeta = *l.ListMeta.DeepCopy()
	if l.Items != nil {
		out.Items = make([]SimulationRun, len(l.Items))
		for i := range l.Items {
			out.Items[i] = *l.Items[i].DeepCopyObject().(*SimulationRun)
		}
	}
	return &out
}
