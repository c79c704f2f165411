// Package session persists PIN search progress per target so an
// interrupted campaign resumes where it stopped.
package session

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Redfern89/reaver-redfern89/internal/pin"
)

const fileExt = ".wpc"

// Record is the saved progress for one target.
type Record struct {
	Target    string        `yaml:"target"`
	ESSID     string        `yaml:"essid,omitempty"`
	P1Index   int           `yaml:"p1_index"`
	P2Index   int           `yaml:"p2_index"`
	KeyStatus pin.KeyStatus `yaml:"key_status"`
	PIN       string        `yaml:"pin,omitempty"`
	UpdatedAt time.Time     `yaml:"updated_at"`

	// Trial order of a half whose queue was reordered by a forced PIN.
	P1Order []uint16 `yaml:"p1_order,omitempty,flow"`
	P2Order []uint16 `yaml:"p2_order,omitempty,flow"`
}

// Store keeps one file per target in Dir. Records older than MaxAge are
// treated as absent; zero MaxAge never expires them.
type Store struct {
	Dir    string
	MaxAge time.Duration

	now func() time.Time
}

func NewStore(dir string, maxAge time.Duration) *Store {
	return &Store{Dir: dir, MaxAge: maxAge, now: time.Now}
}

// Path returns the session file for target.
func (s *Store) Path(target net.HardwareAddr) string {
	name := strings.ToUpper(strings.ReplaceAll(target.String(), ":", ""))
	return filepath.Join(s.Dir, name+fileExt)
}

// Save writes rec atomically. Saving the same record twice leaves the same
// file content apart from the timestamp.
func (s *Store) Save(target net.HardwareAddr, rec Record) error {
	rec.Target = target.String()
	rec.UpdatedAt = s.now().UTC().Truncate(time.Second)

	data, err := yaml.Marshal(&rec)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return fmt.Errorf("create session dir: %w", err)
	}

	path := s.Path(target)
	tmp, err := os.CreateTemp(s.Dir, filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("create session file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write session file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync session file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close session file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace session file: %w", err)
	}
	return nil
}

// Restore loads the record for target. ok is false when there is no
// record or it is stale.
func (s *Store) Restore(target net.HardwareAddr) (rec Record, ok bool, err error) {
	data, err := os.ReadFile(s.Path(target))
	if errors.Is(err, os.ErrNotExist) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, fmt.Errorf("read session file: %w", err)
	}
	if err := yaml.Unmarshal(data, &rec); err != nil {
		return Record{}, false, fmt.Errorf("decode session file %s: %w", s.Path(target), err)
	}
	if rec.P1Index < 0 || rec.P1Index > pin.P1Size || rec.P2Index < 0 || rec.P2Index > pin.P2Size ||
		(rec.P1Order != nil && len(rec.P1Order) != pin.P1Size) ||
		(rec.P2Order != nil && len(rec.P2Order) != pin.P2Size) {
		return Record{}, false, fmt.Errorf("session file %s: %w", s.Path(target), pin.ErrIndexRange)
	}
	if s.MaxAge > 0 && s.now().Sub(rec.UpdatedAt) > s.MaxAge {
		return rec, false, nil
	}
	return rec, true, nil
}

// Remove deletes the record for target, if any.
func (s *Store) Remove(target net.HardwareAddr) error {
	err := os.Remove(s.Path(target))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}
