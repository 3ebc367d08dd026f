package conversation

const MaxCountedIDs = maxCountedIDs

// CountedLen reports how many message ids are remembered for unread de-duplication.
func (s *Store) CountedLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.counted)
}
