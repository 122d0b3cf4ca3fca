package ledgerstore

import (
	"context"
	"errors"
)

// ErrFirestoreNotConfigured is returned by every Firestore operation. The
// "firestore" backend is a recognized configuration choice (§6) for forward
// compatibility with a managed deployment, but this repository does not
// vendor the Firestore cloud SDK (out of scope per §1 — "the concrete
// vendor SDKs ... for the persistent storage drivers" are external
// collaborators the core only talks to through the Store interface). A real
// deployment wires a genuine adapter behind this same interface; until then
// selecting this backend fails fast and loudly rather than silently
// behaving like an in-memory store.
var ErrFirestoreNotConfigured = errors.New("ledgerstore: firestore backend requires a cloud adapter not vendored in this build")

// Firestore is a placeholder Store satisfying the interface so the backend
// enum in configuration (§6) type-checks and round-trips cleanly; every
// method returns ErrFirestoreNotConfigured.
type Firestore struct{}

// NewFirestore returns a Firestore placeholder store.
func NewFirestore() *Firestore { return &Firestore{} }

func (f *Firestore) Put(context.Context, string, []byte) error { return ErrFirestoreNotConfigured }
func (f *Firestore) Get(context.Context, string) ([]byte, bool, error) {
	return nil, false, ErrFirestoreNotConfigured
}
func (f *Firestore) Update(context.Context, string, Mutator) ([]byte, error) {
	return nil, ErrFirestoreNotConfigured
}
func (f *Firestore) AppendEvent(context.Context, string, []byte) error {
	return ErrFirestoreNotConfigured
}
func (f *Firestore) Events(context.Context, string) ([][]byte, error) {
	return nil, ErrFirestoreNotConfigured
}
