package domain

// Zero overwrites b with zeros so key material does not linger in memory.
func Zero(b []byte) {
	clear(b)
}

// Wipe zeroes the plaintext DEK held by k, if any.
func (k *TenantKey) Wipe() {
	if k == nil {
		return
	}
	Zero(k.Key)
	k.Key = nil
}
