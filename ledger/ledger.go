package ledger

import (
	"sync"

	"go.uber.org/zap"
)

// Record is the in-memory form of one ledger row.
type Record struct {
	OwnerID  string
	RoleID   string
	GiftedTo []string
	Boosts   int
}

// Clone returns a deep copy of the record.
func (r Record) Clone() Record {
	out := r
	out.GiftedTo = append([]string(nil), r.GiftedTo...)
	return out
}

// Store is the durable backing for the ledger.
type Store interface {
	Put(Record) error
	Delete(ownerID string) error
	ListAll() ([]Record, error)
}

// Service caches the full ledger in memory. The cache is authoritative:
// reads and writes hit the cache synchronously, persistence happens in
// the background and failures are logged rather than surfaced.
type Service struct {
	store Store
	log   *zap.Logger

	mu    sync.RWMutex
	cache map[string]Record

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex

	queueMu sync.Mutex
	queues  map[string][]func()
	busy    map[string]bool

	persists sync.WaitGroup
}

// New loads the full ledger from the store into memory.
func New(store Store, log *zap.Logger) (*Service, error) {
	records, err := store.ListAll()
	if err != nil {
		return nil, err
	}

	cache := make(map[string]Record, len(records))
	for _, record := range records {
		cache[record.OwnerID] = record
	}

	log.Info("Loaded role ledger.", zap.Int("records", len(cache)))

	return &Service{
		store:  store,
		log:    log,
		cache:  cache,
		locks:  make(map[string]*sync.Mutex),
		queues: make(map[string][]func()),
		busy:   make(map[string]bool),
	}, nil
}

// Read returns a copy of the record for the given owner, if any.
func (s *Service) Read(ownerID string) (Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.cache[ownerID]
	if !ok {
		return Record{}, false
	}
	return record.Clone(), true
}

// All returns a copy of every record in the ledger.
func (s *Service) All() []Record {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := make([]Record, 0, len(s.cache))
	for _, record := range s.cache {
		records = append(records, record.Clone())
	}
	return records
}

// Write updates the cache and persists the record in the background.
func (s *Service) Write(record Record) {
	s.mu.Lock()
	s.cache[record.OwnerID] = record.Clone()
	s.mu.Unlock()

	s.enqueuePersist(record.OwnerID, func() {
		if err := s.store.Put(record); err != nil {
			s.log.Error(
				"Failed to persist ledger record; cache remains authoritative until restart.",
				zap.String("owner", record.OwnerID),
				zap.Error(err),
			)
		}
	})
}

// Erase removes the record from the cache and the store.
func (s *Service) Erase(ownerID string) {
	s.mu.Lock()
	delete(s.cache, ownerID)
	s.mu.Unlock()

	s.enqueuePersist(ownerID, func() {
		if err := s.store.Delete(ownerID); err != nil {
			s.log.Error(
				"Failed to delete ledger record; cache remains authoritative until restart.",
				zap.String("owner", ownerID),
				zap.Error(err),
			)
		}
	})
}

// enqueuePersist runs job after every previously enqueued persist for
// the same owner has finished. An erase must never be overtaken by an
// earlier in-flight write, or the store would resurrect the record.
func (s *Service) enqueuePersist(ownerID string, job func()) {
	s.persists.Add(1)

	s.queueMu.Lock()
	s.queues[ownerID] = append(s.queues[ownerID], job)
	if !s.busy[ownerID] {
		s.busy[ownerID] = true
		go s.drainPersists(ownerID)
	}
	s.queueMu.Unlock()
}

func (s *Service) drainPersists(ownerID string) {
	for {
		s.queueMu.Lock()
		jobs := s.queues[ownerID]
		if len(jobs) == 0 {
			delete(s.queues, ownerID)
			delete(s.busy, ownerID)
			s.queueMu.Unlock()
			return
		}
		job := jobs[0]
		s.queues[ownerID] = jobs[1:]
		s.queueMu.Unlock()

		job()
		s.persists.Done()
	}
}

// Locked runs fn while holding the mutex for the given owner. All
// mutations of a single owner's record go through here so concurrent
// commands can't race past quota checks.
func (s *Service) Locked(ownerID string, fn func()) {
	s.locksMu.Lock()
	lock, ok := s.locks[ownerID]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[ownerID] = lock
	}
	s.locksMu.Unlock()

	lock.Lock()
	defer lock.Unlock()
	fn()
}

// Flush blocks until all background persists have completed.
func (s *Service) Flush() {
	s.persists.Wait()
}
