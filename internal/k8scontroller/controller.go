package k8scontroller

import (
	"context"
	"fmt"
	"time"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/types"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/client"

	"github.com/MesserLab/slimgo/internal/telemetry"
)

// RunResult is what a Runner reports after driving a simulation to (or toward)
// its target generation.
type RunResult struct {
	GenerationReached int64
	Coalesced         bool
	MutationCount     int
}

// Runner drives a slimgo run described by a SimulationRunSpec to completion. The
// scripting interpreter and the generation cycle driver that actually execute a
// run are external collaborators to this controller (spec §1), exactly as
// FitnessEvaluator is external to AntibodyController — the controller only
// reads/writes CRD state around a call to Runner.
type Runner interface {
	Run(ctx context.Context, spec SimulationRunSpec) (RunResult, error)
}

// Reconciler drives SimulationRun CRs, adapted from AntibodyController's
// Client/Scheme pair plus its read-reconcile-patch-status shape
// (EvaluateAndUpdate → updateAntibodyStatus → evaluatePromotion), collapsed here
// into a single run-to-completion state machine (Pending → Running →
// Completed/Failed) since a simulation run has no promotion/shadow/canary
// lifecycle to gate.
type Reconciler struct {
	Client client.Client
	Scheme *runtime.Scheme
	Runner Runner
}

// Reconcile implements controller-runtime's reconcile.Reconciler.
func (r *Reconciler) Reconcile(ctx context.Context, req ctrl.Request) (ctrl.Result, error) {
	log := telemetry.Named("k8scontroller")

	run := &SimulationRun{}
	if err := r.Client.Get(ctx, req.NamespacedName, run); err != nil {
		if client.IgnoreNotFound(err) == nil {
			return ctrl.Result{}, nil
		}
		return ctrl.Result{}, fmt.Errorf("fetch simulationrun %s: %w", req.NamespacedName, err)
	}

	switch run.Status.Phase {
	case PhaseCompleted, PhaseFailed:
		return ctrl.Result{}, nil

	case "":
		run.Status.Phase = PhasePending
		run.Status.TargetGeneration = run.Spec.TargetGeneration
		if err := r.patchStatus(ctx, run); err != nil {
			return ctrl.Result{}, err
		}
		return ctrl.Result{Requeue: true}, nil
	}

	if run.Status.Phase == PhasePending {
		run.Status.Phase = PhaseRunning
		if err := r.patchStatus(ctx, run); err != nil {
			return ctrl.Result{}, err
		}
	}

	result, err := r.Runner.Run(ctx, run.Spec)
	now := metav1.NewTime(time.Now())
	run.Status.LastUpdate = now

	if err != nil {
		run.Status.Phase = PhaseFailed
		run.Status.Message = err.Error()
		run.Status.Conditions = []metav1.Condition{{
			Type:               "Completed",
			Status:             metav1.ConditionFalse,
			LastTransitionTime: now,
			Reason:             "RunFailed",
			Message:            err.Error(),
		}}
		if patchErr := r.patchStatus(ctx, run); patchErr != nil {
			return ctrl.Result{}, patchErr
		}
		log.Sugar().Errorw("simulation run failed", "name", req.NamespacedName, "error", err)
		return ctrl.Result{}, nil
	}

	run.Status.ObservedGeneration = result.GenerationReached
	run.Status.Coalesced = result.Coalesced
	run.Status.MutationCount = result.MutationCount
	run.Status.Conditions = []metav1.Condition{{
		Type:               "Completed",
		Status:             metav1.ConditionTrue,
		LastTransitionTime: now,
		Reason:             "TargetGenerationReached",
		Message:            fmt.Sprintf("reached generation %d (%d mutations tracked)", result.GenerationReached, result.MutationCount),
	}}
	if result.GenerationReached >= run.Spec.TargetGeneration {
		run.Status.Phase = PhaseCompleted
	}
	if err := r.patchStatus(ctx, run); err != nil {
		return ctrl.Result{}, err
	}

	log.Sugar().Infow("simulation run reconciled", "name", req.NamespacedName, "phase", run.Status.Phase, "generation", result.GenerationReached)
	return ctrl.Result{}, nil
}

func (r *Reconciler) patchStatus(ctx context.Context, run *SimulationRun) error {
	if err := r.Client.Status().Update(ctx, run); err != nil {
		return fmt.Errorf("update simulationrun %s/%s status: %w", run.Namespace, run.Name, err)
	}
	return nil
}

// SetupWithManager wires the Reconciler into mgr, watching SimulationRun CRs.
func (r *Reconciler) SetupWithManager(mgr ctrl.Manager) error {
	return ctrl.NewControllerManagedBy(mgr).
		For(&SimulationRun{}).
		Complete(r)
}

// NamespacedName is a convenience constructor mirroring types.NamespacedName's use
// in antibody-controller.go's EvaluateAndUpdate.
func NamespacedName(namespace, name string) types.NamespacedName {
	return types.NamespacedName{Namespace: namespace, Name: name}
}
