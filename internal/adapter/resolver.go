package adapter

import "sessiongrep/internal/session"

// refIndex maps low-level fragment owners back to enumerated sessions, for
// stores whose fragments carry no session identity of their own. It is
// built once per run from the adapter's own enumeration, never from
// content. A fragment that does not resolve is orphaned and dropped, not
// guessed into an existing session; partial stores are expected while a
// live agent is writing.
type refIndex struct {
	refs map[string]session.Ref
}

func newRefIndex() *refIndex {
	return &refIndex{refs: make(map[string]session.Ref)}
}

func (ix *refIndex) add(ownerID string, ref session.Ref) {
	ix.refs[ownerID] = ref
}

func (ix *refIndex) resolve(ownerID string) (session.Ref, bool) {
	ref, ok := ix.refs[ownerID]
	return ref, ok
}
