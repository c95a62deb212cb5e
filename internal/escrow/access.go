package escrow

// Access control: a single transferable owner plus a revocable admin set.
// The owner is always implicitly an admin. Admins may mark attendance and
// update metadata; everything else privileged is owner-only.

// Owner returns the current owner address.
func (l *Ledger) Owner() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.owner
}

// Admins returns a copy of the admin set in grant order.
func (l *Ledger) Admins() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.admins))
	copy(out, l.admins)
	return out
}

// IsAdmin reports whether addr is the owner or a member of the admin set.
func (l *Ledger) IsAdmin(addr string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.isAdmin(addr)
}

// isAdmin is the lock-free variant used inside operations.
func (l *Ledger) isAdmin(addr string) bool {
	if addr == "" {
		return false
	}
	if addr == l.owner {
		return true
	}
	for _, a := range l.admins {
		if a == addr {
			return true
		}
	}
	return false
}

// Grant appends each address to the admin set. Membership is not checked
// first, so granting the same address twice leaves two entries; IsAdmin is
// existence-based so duplicates are harmless, but each one needs its own
// Revoke to evict. An empty address anywhere in the batch fails the whole
// call without changes.
func (l *Ledger) Grant(caller string, addrs []string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if caller != l.owner {
		return ErrNotOwner
	}
	for _, addr := range addrs {
		if addr == "" {
			return ErrZeroAddress
		}
	}

	for _, addr := range addrs {
		l.admins = append(l.admins, addr)
		l.emit(Notification{Kind: NoteAdminGranted, Address: addr})
	}
	return nil
}

// Revoke removes the first matching entry for each address using an
// unordered swap-remove. Addresses with no matching entry are silently
// skipped.
func (l *Ledger) Revoke(caller string, addrs []string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if caller != l.owner {
		return ErrNotOwner
	}

	for _, addr := range addrs {
		for i, a := range l.admins {
			if a == addr {
				last := len(l.admins) - 1
				l.admins[i] = l.admins[last]
				l.admins = l.admins[:last]
				l.emit(Notification{Kind: NoteAdminRevoked, Address: addr})
				break
			}
		}
	}
	return nil
}

// TransferOwnership hands the event to a new non-empty owner address.
func (l *Ledger) TransferOwnership(caller, newOwner string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if caller != l.owner {
		return ErrNotOwner
	}
	if newOwner == "" {
		return ErrZeroAddress
	}

	l.owner = newOwner
	l.emit(Notification{Kind: NoteOwnerTransferred, Address: newOwner})
	return nil
}
