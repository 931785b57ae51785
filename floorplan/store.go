package floorplan

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"sync"
	"time"

	json "github.com/goccy/go-json"
)

// Store owns the per-network and per-floor metadata shared by the web layer
// and the render workers. Getters return copies.
type Store struct {
	mu       sync.RWMutex
	networks map[string]*Network
	floors   map[FloorKey]*Floor
	order    map[string][]string // network id -> floor names in registration order
	locks    *FloorLocks
}

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{
		networks: make(map[string]*Network),
		floors:   make(map[FloorKey]*Floor),
		order:    make(map[string][]string),
		locks:    NewFloorLocks(),
	}
}

// PutNetwork registers or renames a network
func (s *Store) PutNetwork(id, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n, ok := s.networks[id]; ok {
		n.Name = name
		return
	}
	s.networks[id] = &Network{ID: id, Name: name}
}

// Network returns a copy of the network record
func (s *Store) Network(id string) (Network, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.networks[id]
	if !ok {
		return Network{}, false
	}
	return *n, true
}

// Networks returns all networks sorted by name
func (s *Store) Networks() []Network {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]Network, 0, len(s.networks))
	for _, n := range s.networks {
		result = append(result, *n)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Name != result[j].Name {
			return result[i].Name < result[j].Name
		}
		return result[i].ID < result[j].ID
	})
	return result
}

// HasNetwork reports whether floor metadata exists for the network
func (s *Store) HasNetwork(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.networks[id]
	return ok
}

// MarkReceived stamps the time a batch for the network was last accepted
func (s *Store) MarkReceived(id string, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n, ok := s.networks[id]; ok {
		n.LastReceived = at
	}
}

// PutFloor registers a floor, creating its network when missing. An existing
// floor keeps its filename and last update so a re-sync does not lose the
// annotated image.
func (s *Store) PutFloor(f Floor) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.networks[f.NetworkID]; !ok {
		s.networks[f.NetworkID] = &Network{ID: f.NetworkID, Name: f.NetworkID}
	}
	key := f.Key()
	if existing, ok := s.floors[key]; ok {
		existing.Width = f.Width
		existing.Height = f.Height
		if existing.Filename == "" {
			existing.Filename = f.Filename
		}
		return
	}
	rec := f
	s.floors[key] = &rec
	s.order[f.NetworkID] = append(s.order[f.NetworkID], f.Name)
}

// Floor returns a copy of the floor record
func (s *Store) Floor(key FloorKey) (Floor, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.floors[key]
	if !ok {
		return Floor{}, false
	}
	return *f, true
}

// Floors returns copies of the network's floors in registration order
func (s *Store) Floors(networkID string) []Floor {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := s.order[networkID]
	result := make([]Floor, 0, len(names))
	for _, name := range names {
		if f, ok := s.floors[FloorKey{NetworkID: networkID, Floor: name}]; ok {
			result = append(result, *f)
		}
	}
	return result
}

// CommitRender records a successful render of the floor
func (s *Store) CommitRender(key FloorKey, filename string, imgW, imgH int, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.floors[key]
	if !ok {
		return fmt.Errorf("floor %s not registered", key)
	}
	f.Filename = filename
	f.ImageWidth = imgW
	f.ImageHeight = imgH
	f.LastUpdate = at
	return nil
}

// LockFloor blocks until the caller holds the floor exclusively and returns
// the matching unlock function.
func (s *Store) LockFloor(key FloorKey) func() {
	return s.locks.Lock(key)
}

// FloorLocks hands out one mutex per floor key
type FloorLocks struct {
	mu    sync.Mutex
	locks map[FloorKey]*sync.Mutex
}

// NewFloorLocks creates an empty lock set
func NewFloorLocks() *FloorLocks {
	return &FloorLocks{locks: make(map[FloorKey]*sync.Mutex)}
}

// Lock acquires the mutex for key and returns its unlock function
func (l *FloorLocks) Lock(key FloorKey) func() {
	l.mu.Lock()
	m, ok := l.locks[key]
	if !ok {
		m = &sync.Mutex{}
		l.locks[key] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock
}

// storeFile is the persisted form of a Store
type storeFile struct {
	Networks []Network `json:"networks"`
	Floors   []Floor   `json:"floors"`
}

// Save writes networks and floors to path as JSON
func (s *Store) Save(path string) error {
	s.mu.RLock()
	var sf storeFile
	for _, n := range s.networks {
		sf.Networks = append(sf.Networks, *n)
	}
	sort.Slice(sf.Networks, func(i, j int) bool { return sf.Networks[i].ID < sf.Networks[j].ID })
	for _, n := range sf.Networks {
		for _, name := range s.order[n.ID] {
			sf.Floors = append(sf.Floors, *s.floors[FloorKey{NetworkID: n.ID, Floor: name}])
		}
	}
	s.mu.RUnlock()

	data, err := json.MarshalIndent(sf, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling store: %w", err)
	}
	return WriteAtomic(path, func(f io.Writer) error {
		_, err := f.Write(data)
		return err
	})
}

// LoadStore reads a store written by Save. A missing file yields an empty store.
func LoadStore(path string) (*Store, error) {
	st := NewStore()
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return st, nil
	}
	if err != nil {
		return nil, fmt.Errorf("opening store %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("reading store %s: %w", path, err)
	}
	var sf storeFile
	if err := json.Unmarshal(data, &sf); err != nil {
		return nil, fmt.Errorf("parsing store %s: %w", path, err)
	}
	for _, n := range sf.Networks {
		st.PutNetwork(n.ID, n.Name)
		st.MarkReceived(n.ID, n.LastReceived)
	}
	for _, fl := range sf.Floors {
		st.PutFloor(fl)
	}
	return st, nil
}
