package policy

import (
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/halyard-sh/halyard/internal/fileutil"
	halerr "github.com/halyard-sh/halyard/pkg/errors"
)

// Store persists the global policy document and whole-document
// per-wallet overrides. Resolution is all-or-nothing: a wallet with an
// override uses every field from it, everything else uses the global
// document. No field-level merging.
type Store struct {
	mu   sync.RWMutex
	path string
	doc  document
}

type document struct {
	Default Policy            `yaml:"default" json:"default"`
	Wallets map[string]Policy `yaml:"wallets,omitempty" json:"wallets,omitempty"`
}

// NewStore loads the policy file at path, falling back to defaults when
// the file does not exist yet.
func NewStore(path string) (*Store, error) {
	s := &Store{path: path, doc: document{Default: Default()}}

	data, err := os.ReadFile(path) //nolint:gosec // path comes from the data dir
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, halerr.Wrap(err, "reading policy file")
	}
	if err := yaml.Unmarshal(data, &s.doc); err != nil {
		return nil, halerr.Wrap(halerr.ErrConfigInvalid, "parsing policy file: %v", err)
	}
	return s, nil
}

// Effective returns the complete policy in force for wallet. An empty
// wallet name selects the global document.
func (s *Store) Effective(wallet string) Policy {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if wallet != "" {
		if p, ok := s.doc.Wallets[wallet]; ok {
			return p
		}
	}
	return s.doc.Default
}

// HasOverride reports whether wallet carries its own policy document.
func (s *Store) HasOverride(wallet string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.doc.Wallets[wallet]
	return ok
}

// Update replaces the document for the given scope wholesale and
// persists the result. An empty wallet name replaces the global
// document.
func (s *Store) Update(wallet string, p Policy) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if wallet == "" {
		s.doc.Default = p
	} else {
		if s.doc.Wallets == nil {
			s.doc.Wallets = make(map[string]Policy)
		}
		s.doc.Wallets[wallet] = p
	}
	return s.saveLocked()
}

// RemoveOverride deletes wallet's override so it falls back to the
// global document. Removing a nonexistent override is a no-op.
func (s *Store) RemoveOverride(wallet string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.doc.Wallets[wallet]; !ok {
		return nil
	}
	delete(s.doc.Wallets, wallet)
	return s.saveLocked()
}

func (s *Store) saveLocked() error {
	data, err := yaml.Marshal(&s.doc)
	if err != nil {
		return halerr.Wrap(err, "encoding policy file")
	}
	if err := fileutil.WriteAtomic(s.path, data, fileutil.PrivateFileMode); err != nil {
		return halerr.Wrap(err, "writing policy file")
	}
	return nil
}
