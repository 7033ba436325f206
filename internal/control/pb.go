// Package control implements the gRPC SimulationControl service: a thin remote
// adapter over a still-single-threaded, single-process cycle.Driver, grounded on
// intelligence/evolution_server.go's EvolutionServer shape (validate request,
// convert, call a domain collaborator, convert back, status/codes error mapping)
// and federation/federation_server.go's server setup (grpc.NewServer, unary logging
// interceptor, signal-driven graceful shutdown).
package control

// The corpus's service definitions (federation/pb, intelligence's generated
// package) are protoc output this build has no protoc available to regenerate for
// a new service, so SimulationControl's request/response types are hand-written
// plain structs instead, carried over the wire by jsonCodec (codec.go) registered
// under grpc's default "proto" content-subtype name. This keeps the real
// google.golang.org/grpc server/client machinery (ServiceDesc registration,
// interceptors, status codes) while sidestepping protoc-gen-go codegen — see
// DESIGN.md.

// StepRequest asks the engine to advance the simulation by Generations cycles.
type StepRequest struct {
	Generations int64 `json:"generations"`
}

// StepResponse reports the generation reached after a Step call completes.
type StepResponse struct {
	Generation int64 `json:"generation"`
}

// StatusRequest has no fields; GetStatus always reports the whole engine.
type StatusRequest struct{}

// StatusResponse is a snapshot of engine-wide state, independent of any one
// subpopulation.
type StatusResponse struct {
	Generation         int64  `json:"generation"`
	ModelType          string `json:"model_type"`
	SubpopulationCount int    `json:"subpopulation_count"`
	TotalIndividuals   int    `json:"total_individuals"`
	TrackedMutations   int    `json:"tracked_mutations"`
	MutrunCount        int    `json:"mutrun_count"`
	SubstitutionCount  int    `json:"substitution_count"`
}

// PopulationSnapshotRequest restricts the response to one subpopulation; a zero
// SubpopulationID reports every subpopulation.
type PopulationSnapshotRequest struct {
	SubpopulationID int32 `json:"subpopulation_id"`
}

// SubpopulationSnapshot summarizes one subpopulation's demographic state.
type SubpopulationSnapshot struct {
	ID              int32   `json:"id"`
	ParentalSize    int     `json:"parental_size"`
	ChildCount      int     `json:"child_count"`
	SexRatio        float64 `json:"sex_ratio"`
	SelfingFraction float64 `json:"selfing_fraction"`
	CloningFraction float64 `json:"cloning_fraction"`
}

// PopulationSnapshotResponse carries one entry per matched subpopulation.
type PopulationSnapshotResponse struct {
	Generation     int64                   `json:"generation"`
	Subpopulations []SubpopulationSnapshot `json:"subpopulations"`
}

// CheckpointMode selects whether a Checkpoint RPC saves the engine's current
// state to Path or restores it from Path, replacing the live population.
type CheckpointMode int32

const (
	CheckpointSave CheckpointMode = iota
	CheckpointRestore
)

// CheckpointRequest drives a Checkpoint RPC. Format is "slim-text" or
// "slim-binary"; any other name is rejected;
// Nonce is required (and checked against the replay guard) when Mode is
// CheckpointRestore, per SPEC_FULL.md §2.2's "reject replayed checkpoint-restore
// requests".
type CheckpointRequest struct {
	Mode   CheckpointMode `json:"mode"`
	Path   string         `json:"path"`
	Format string         `json:"format"`
	Nonce  string         `json:"nonce"`
}

// CheckpointResponse reports the generation present in the engine after the
// checkpoint operation completes (for a restore, the generation read back from the
// loaded dump).
type CheckpointResponse struct {
	Generation int64 `json:"generation"`
}
