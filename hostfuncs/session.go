package hostfuncs

import (
	"sync"

	"github.com/reglet-dev/reglet-lambda/domain/entities"
	"github.com/reglet-dev/reglet-lambda/domain/errors"
	"github.com/reglet-dev/reglet-lambda/domain/ports"
)

// DefaultMaxOpenResponses caps the responses one instance may hold open.
const DefaultMaxOpenResponses = 16

// Session is the per-instance response table. Handles are never reused
// within a Session and are meaningless outside it.
type Session struct {
	recorder ports.Recorder
	open     map[uint32]*entities.InboundResponse
	offsets  map[uint32]int
	denials  []string
	mu       sync.Mutex
	limit    int
	reserved int
	next     uint32
	requests int
}

// NewSession creates an empty Session allowing at most limit open responses.
// A non-positive limit uses DefaultMaxOpenResponses.
func NewSession(limit int, recorder ports.Recorder) *Session {
	if limit <= 0 {
		limit = DefaultMaxOpenResponses
	}
	if recorder == nil {
		recorder = ports.NopRecorder{}
	}
	return &Session{
		recorder: recorder,
		open:     make(map[uint32]*entities.InboundResponse),
		offsets:  make(map[uint32]int),
		limit:    limit,
		next:     1,
	}
}

// Register stores resp and assigns its handle.
func (s *Session) Register(resp *entities.InboundResponse) (uint32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.open)+s.reserved >= s.limit {
		return 0, &errors.TooManySessionsError{Limit: s.limit}
	}
	return s.store(resp), nil
}

// Reserve claims a slot for a response that is still in flight, so the
// limit is enforced before any request leaves the host. The returned
// Reservation must be either committed or released.
func (s *Session) Reserve() (*Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.open)+s.reserved >= s.limit {
		return nil, &errors.TooManySessionsError{Limit: s.limit}
	}
	s.reserved++
	return &Reservation{session: s}, nil
}

func (s *Session) store(resp *entities.InboundResponse) uint32 {
	handle := s.next
	s.next++
	resp.Handle = handle
	s.open[handle] = resp
	s.recorder.HandlesOpen(1)
	return handle
}

// Reservation is a slot claimed by Reserve.
type Reservation struct {
	session *Session
	done    bool
}

// Commit stores resp in the reserved slot and returns its handle.
func (r *Reservation) Commit(resp *entities.InboundResponse) uint32 {
	s := r.session
	s.mu.Lock()
	defer s.mu.Unlock()

	if !r.done {
		r.done = true
		s.reserved--
	}
	return s.store(resp)
}

// Release gives the slot back. It is a no-op after Commit.
func (r *Reservation) Release() {
	s := r.session
	s.mu.Lock()
	defer s.mu.Unlock()

	if !r.done {
		r.done = true
		s.reserved--
	}
}

// Get returns the open response for handle.
func (s *Session) Get(handle uint32) (*entities.InboundResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	resp, ok := s.open[handle]
	if !ok {
		return nil, &errors.InvalidHandleError{Handle: handle}
	}
	return resp, nil
}

// ReadBody returns up to n bytes of the body following the previous read.
// An empty slice means the body is exhausted.
func (s *Session) ReadBody(handle uint32, n int) ([]byte, error) {
	chunk, err := s.PeekBody(handle, n)
	if err != nil {
		return nil, err
	}
	return chunk, s.AdvanceBody(handle, len(chunk))
}

// PeekBody returns up to n unread body bytes without consuming them.
func (s *Session) PeekBody(handle uint32, n int) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	resp, ok := s.open[handle]
	if !ok {
		return nil, &errors.InvalidHandleError{Handle: handle}
	}
	off := s.offsets[handle]
	end := len(resp.Body)
	if n >= 0 && n < end-off {
		end = off + n
	}
	return resp.Body[off:end], nil
}

// AdvanceBody marks n more body bytes as read.
func (s *Session) AdvanceBody(handle uint32, n int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	resp, ok := s.open[handle]
	if !ok {
		return &errors.InvalidHandleError{Handle: handle}
	}
	s.offsets[handle] = min(s.offsets[handle]+n, len(resp.Body))
	return nil
}

// Close releases handle. Closing a handle that was already closed is a
// no-op; a handle this Session never issued is an error.
func (s *Session) Close(handle uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.open[handle]; ok {
		delete(s.open, handle)
		delete(s.offsets, handle)
		s.recorder.HandlesOpen(-1)
		return nil
	}
	if handle == 0 || handle >= s.next {
		return &errors.InvalidHandleError{Handle: handle}
	}
	return nil
}

// CloseAll releases every open handle and returns how many there were.
func (s *Session) CloseAll() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.open)
	clear(s.open)
	clear(s.offsets)
	if n > 0 {
		s.recorder.HandlesOpen(-n)
	}
	return n
}

// Open returns the number of open handles.
func (s *Session) Open() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.open)
}

func (s *Session) recordDenial(rawURL string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.denials = append(s.denials, rawURL)
}

func (s *Session) countRequest() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests++
}

// FirstDenial returns the first destination the policy refused in this Session.
func (s *Session) FirstDenial() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.denials) == 0 {
		return "", false
	}
	return s.denials[0], true
}

// Denials returns every refused destination, in order.
func (s *Session) Denials() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.denials))
	copy(out, s.denials)
	return out
}

// Requests returns the number of send attempts, denied ones included.
func (s *Session) Requests() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests
}
