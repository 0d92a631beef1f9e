package merge

// Patch is a host-defined payload for one parameter. The merger never looks inside it.
type Patch any

// Model is the capability surface a host runtime exposes for merging.
type Model interface {
	// Clone returns an independent copy whose patch state can be changed
	// without affecting the receiver.
	Clone() (Model, error)
	// PatchesFor returns a patch per parameter key starting with namespace.
	// Keys keep the namespace.
	PatchesFor(namespace string) (map[string]Patch, error)
	// ApplyPatches layers patches onto the receiver so that each affected
	// parameter becomes baseWeight*current + patchWeight*patch.
	ApplyPatches(patches map[string]Patch, baseWeight, patchWeight float64) error
}
