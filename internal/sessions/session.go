package sessions

import (
	"sync"
	"time"
)

// State é a etapa da conversa em que o usuário está.
type State int

const (
	Idle State = iota
	AwaitingTerm
	AwaitingDeleteTarget
)

func (s State) String() string {
	switch s {
	case AwaitingTerm:
		return "awaiting_term"
	case AwaitingDeleteTarget:
		return "awaiting_delete_target"
	default:
		return "idle"
	}
}

type entry struct {
	state State
	since time.Time
}

// Store guarda o estado da conversa de cada usuário em memória.
type Store struct {
	mu    sync.RWMutex // protege o acesso concorrente ao mapa
	users map[int64]entry
	ttl   time.Duration
	now   func() time.Time
}

// New cria um Store. Com ttl > 0, estados mais antigos que ttl voltam a Idle.
func New(ttl time.Duration) *Store {
	return &Store{users: make(map[int64]entry), ttl: ttl, now: time.Now}
}

// Set armazena o estado do usuário. Idle remove a entrada.
func (s *Store) Set(userID int64, state State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if state == Idle {
		delete(s.users, userID)
		return
	}
	s.users[userID] = entry{state: state, since: s.now()}
}

// Get recupera o estado do usuário. Usuário sem entrada está em Idle.
func (s *Store) Get(userID int64) State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.users[userID]
	if !ok || s.expired(e) {
		return Idle
	}
	return e.state
}

// Delete volta o usuário para Idle.
func (s *Store) Delete(userID int64) {
	s.Set(userID, Idle)
}

// GetAndClearIf remove o estado se ele for o esperado e informa se removeu.
func (s *Store) GetAndClearIf(userID int64, want State) bool {
	s.mu.Lock() // precisa de Lock pois pode deletar
	defer s.mu.Unlock()

	e, ok := s.users[userID]
	if !ok || e.state != want || s.expired(e) {
		return false
	}
	delete(s.users, userID)
	return true
}

// Len conta os usuários fora de Idle.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, e := range s.users {
		if !s.expired(e) {
			n++
		}
	}
	return n
}

func (s *Store) expired(e entry) bool {
	return s.ttl > 0 && s.now().Sub(e.since) > s.ttl
}
