package auth

// May reports whether a holder of held may perform an action requiring
// required, defined as required being a subset of held. It is a pure
// predicate; denial is expressed by the caller as ErrForbidden.
func May(held, required Set) bool {
	for p := range required {
		if !held.Has(p) {
			return false
		}
	}
	return true
}

// Delegation computes the required set for a delegating mutation: the
// permissions being affected plus the fixed anchor for the operation
// (PermissionAdd for grants, InviteWrite for invite creation, and so on).
// An actor can therefore never hand out or touch a capability it does not
// itself hold.
func Delegation(affected Set, anchor Permission) Set {
	required := affected.Clone()
	required[anchor] = struct{}{}
	return required
}
