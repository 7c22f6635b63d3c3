package credentials

// KeyDerivations reports how many times the store ran the key derivation.
func (s *FileStore) KeyDerivations() int {
	s.keyMu.Lock()
	defer s.keyMu.Unlock()
	return s.derivations
}
