package k8scontroller

import (
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/runtime/schema"
)

// GroupVersion is the API group/version SimulationRun is registered under.
var GroupVersion = schema.GroupVersion{Group: "slimgo.messerlab.io", Version: "v1"}

// SchemeBuilder collects the types this package contributes to a runtime.Scheme,
// mirroring the kubebuilder-generated groupversion_info.go every real CRD package
// carries (the corpus's own Antibody type skips this step entirely, relying on a
// scheme wired up elsewhere that this retrieval pack doesn't include).
var SchemeBuilder = runtime.NewSchemeBuilder(addKnownTypes)

// AddToScheme adds SimulationRun and SimulationRunList to scheme.
var AddToScheme = SchemeBuilder.AddToScheme

func addKnownTypes(scheme *runtime.Scheme) error {
	scheme.AddKnownTypes(GroupVersion, &SimulationRun{}, &SimulationRunList{})
	return nil
}
