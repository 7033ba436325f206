package k8scontroller

import (
	"context"
	"errors"
	"testing"

	"k8s.io/apimachinery/pkg/runtime"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/client/fake"
)

type stubRunner struct {
	result RunResult
	err    error
}

func (s stubRunner) Run(ctx context.Context, spec SimulationRunSpec) (RunResult, error) {
	return s.result, s.err
}

func newTestScheme(t *testing.T) *runtime.Scheme {
	t.Helper()
	scheme := runtime.NewScheme()
	if err := AddToScheme(scheme); err != nil {
		t.Fatalf("AddToScheme: %v", err)
	}
	return scheme
}

func TestReconcilePendingThenCompletes(t *testing.T) {
	scheme := newTestScheme(t)
	run := &SimulationRun{}
	run.Name = "demo"
	run.Namespace = "default"
	run.Spec = SimulationRunSpec{ScriptConfigMap: "demo-script", TargetGeneration: 100}

	c := fake.NewClientBuilder().WithScheme(scheme).WithObjects(run).WithStatusSubresource(run).Build()
	r := &Reconciler{Client: c, Scheme: scheme, Runner: stubRunner{result: RunResult{GenerationReached: 100, Coalesced: true, MutationCount: 42}}}

	req := ctrl.Request{NamespacedName: NamespacedName("default", "demo")}

	// First reconcile: CR has no phase yet, moves to Pending and requeues.
	res, err := r.Reconcile(context.Background(), req)
	if err != nil {
		t.Fatalf("first Reconcile: %v", err)
	}
	if !res.Requeue {
		t.Fatalf("expected requeue after setting Pending phase")
	}

	got := &SimulationRun{}
	if err := c.Get(context.Background(), req.NamespacedName, got); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status.Phase != PhasePending {
		t.Fatalf("phase = %q, want %q", got.Status.Phase, PhasePending)
	}

	// Second reconcile: runs to completion.
	if _, err := r.Reconcile(context.Background(), req); err != nil {
		t.Fatalf("second Reconcile: %v", err)
	}

	got = &SimulationRun{}
	if err := c.Get(context.Background(), req.NamespacedName, got); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status.Phase != PhaseCompleted {
		t.Fatalf("phase = %q, want %q", got.Status.Phase, PhaseCompleted)
	}
	if got.Status.ObservedGeneration != 100 || !got.Status.Coalesced || got.Status.MutationCount != 42 {
		t.Fatalf("status = %+v, unexpected values", got.Status)
	}
}

func TestReconcileRunFailureSetsFailedPhase(t *testing.T) {
	scheme := newTestScheme(t)
	run := &SimulationRun{}
	run.Name = "broken"
	run.Namespace = "default"
	run.Spec = SimulationRunSpec{ScriptConfigMap: "broken-script", TargetGeneration: 10}
	run.Status.Phase = PhaseRunning

	c := fake.NewClientBuilder().WithScheme(scheme).WithObjects(run).WithStatusSubresource(run).Build()
	r := &Reconciler{Client: c, Scheme: scheme, Runner: stubRunner{err: errors.New("script syntax error")}}

	req := ctrl.Request{NamespacedName: NamespacedName("default", "broken")}
	if _, err := r.Reconcile(context.Background(), req); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}

	got := &SimulationRun{}
	if err := c.Get(context.Background(), req.NamespacedName, got); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status.Phase != PhaseFailed {
		t.Fatalf("phase = %q, want %q", got.Status.Phase, PhaseFailed)
	}
}

func TestReconcileSkipsTerminalPhases(t *testing.T) {
	scheme := newTestScheme(t)
	run := &SimulationRun{}
	run.Name = "done"
	run.Namespace = "default"
	run.Status.Phase = PhaseCompleted

	c := fake.NewClientBuilder().WithScheme(scheme).WithObjects(run).WithStatusSubresource(run).Build()
	r := &Reconciler{Client: c, Scheme: scheme, Runner: stubRunner{}}

	req := ctrl.Request{NamespacedName: NamespacedName("default", "done")}
	res, err := r.Reconcile(context.Background(), req)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if res.Requeue {
		t.Fatalf("completed CR should not requeue")
	}
}
