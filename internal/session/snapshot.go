package session

import (
	"encoding/json"
	"fmt"
)

// snapshotVersion is bumped when the serialized session shape changes.
const snapshotVersion = 1

type storeSnapshot struct {
	Version  int                 `json:"version"`
	Sessions map[string]*Session `json:"sessions"`
}

// Export encodes one session.
func (st *Store) Export(id string) ([]byte, error) {
	s, ok := st.Get(id)
	if !ok {
		return nil, fmt.Errorf("exporting session %s: %w", id, ErrUnknownSession)
	}
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("encoding session %s: %w", id, err)
	}
	return data, nil
}

// Import decodes one exported session and stores it, replacing any live
// session with the same id.
func (st *Store) Import(data []byte) (*Session, error) {
	s, err := decodeSession(data)
	if err != nil {
		return nil, err
	}
	st.mu.Lock()
	st.sessions[s.ID] = &entry{s: s}
	st.mu.Unlock()
	return s.Clone(), nil
}

// Serialize encodes every live session.
func (st *Store) Serialize() ([]byte, error) {
	snap := storeSnapshot{Version: snapshotVersion, Sessions: make(map[string]*Session)}
	for _, s := range st.List() {
		snap.Sessions[s.ID] = s
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("encoding sessions: %w", err)
	}
	return data, nil
}

// Hydrate replaces the live sessions with the ones in data, as produced by
// Serialize. The store is left untouched when data does not decode.
func (st *Store) Hydrate(data []byte) error {
	var snap storeSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("decoding sessions: %w", err)
	}
	if snap.Version != snapshotVersion {
		return fmt.Errorf("unsupported session snapshot version %d", snap.Version)
	}
	sessions := make(map[string]*entry, len(snap.Sessions))
	for id, s := range snap.Sessions {
		if s == nil {
			continue
		}
		if s.ID == "" {
			s.ID = id
		}
		normalize(s)
		sessions[s.ID] = &entry{s: s}
	}
	st.mu.Lock()
	st.sessions = sessions
	st.mu.Unlock()
	return nil
}

func decodeSession(data []byte) (*Session, error) {
	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decoding session: %w", err)
	}
	if s.ID == "" {
		return nil, fmt.Errorf("decoding session: missing id")
	}
	normalize(&s)
	return &s, nil
}

// normalize clamps indexes of a decoded session so that the set and step
// invariants hold even for hand-edited snapshots.
func normalize(s *Session) {
	if s.Status == "" {
		s.Status = StatusActive
	}
	for i := range s.Steps {
		st := &s.Steps[i]
		sets := st.Target.SetCount()
		st.Target.Sets = sets
		if len(st.Performed) > sets {
			st.Performed = st.Performed[:sets]
		}
		if st.Performed == nil {
			st.Performed = []SetRecord{}
		}
		st.CurrentSet = min(len(st.Performed), sets-1)
	}
	switch {
	case len(s.Steps) == 0:
		s.StepIndex = 0
	case s.StepIndex < 0:
		s.StepIndex = 0
	case s.StepIndex > len(s.Steps)-1:
		s.StepIndex = len(s.Steps) - 1
	}
}
