package kv

// Check asserts that a key is at a given versionstamp at commit time. An
// empty Versionstamp asserts that the key is absent.
type Check struct {
	Key          Key
	Versionstamp string
}

type mutationKind int

const (
	mutationSet mutationKind = iota
	mutationDelete
)

type mutation struct {
	kind  mutationKind
	key   Key
	value []byte
}

// AtomicOperation groups checks and mutations that commit all-or-nothing.
// Mutations apply in the order they were added.
type AtomicOperation struct {
	checks    []Check
	mutations []mutation
}

func NewAtomic() *AtomicOperation {
	return &AtomicOperation{}
}

func (op *AtomicOperation) Check(checks ...Check) *AtomicOperation {
	op.checks = append(op.checks, checks...)
	return op
}

func (op *AtomicOperation) Set(key Key, value []byte) *AtomicOperation {
	op.mutations = append(op.mutations, mutation{kind: mutationSet, key: key, value: value})
	return op
}

func (op *AtomicOperation) Delete(key Key) *AtomicOperation {
	op.mutations = append(op.mutations, mutation{kind: mutationDelete, key: key})
	return op
}

// Empty reports whether the operation has no mutations.
func (op *AtomicOperation) Empty() bool {
	return op == nil || len(op.mutations) == 0
}

type encodedCheck struct {
	key          []byte
	versionstamp string
}

type encodedMutation struct {
	kind  mutationKind
	key   []byte
	value []byte
}

func (op *AtomicOperation) encode() ([]encodedCheck, []encodedMutation, error) {
	checks := make([]encodedCheck, 0, len(op.checks))
	for _, c := range op.checks {
		enc, err := c.Key.Encode()
		if err != nil {
			return nil, nil, err
		}
		checks = append(checks, encodedCheck{key: enc, versionstamp: c.Versionstamp})
	}
	mutations := make([]encodedMutation, 0, len(op.mutations))
	for _, m := range op.mutations {
		enc, err := m.key.Encode()
		if err != nil {
			return nil, nil, err
		}
		mutations = append(mutations, encodedMutation{kind: m.kind, key: enc, value: m.value})
	}
	return checks, mutations, nil
}
