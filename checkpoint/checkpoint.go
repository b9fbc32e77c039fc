// Package checkpoint saves and restores substitution model state in a
// bolt database.
package checkpoint

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/op/go-logging"
	bolt "go.etcd.io/bbolt"

	"bitbucket.org/Davydov/ctmc/parameter"
	"bitbucket.org/Davydov/ctmc/substmodel"
)

// log is the global logging variable.
var log = logging.MustGetLogger("checkpoint")

// MAIN is the bucket name for all checkpoints.
var MAIN = []byte("main")

// ErrModelMismatch is returned when a checkpoint belongs to a different
// model.
var ErrModelMismatch = errors.New("checkpoint: model mismatch")

// Model is anything with named parameters and frequencies, e.g.
// substmodel.Model.
type Model interface {
	Name() string
	Parameters() parameter.FloatParameters
	Frequencies() substmodel.Frequencies
	SetFrequencies([]float64) error
}

// Data stores the state of a model.
type Data struct {
	Model       string
	Parameters  map[string]float64
	Frequencies []float64
	Iter        int
	Final       bool
}

// FromModel creates checkpoint data for the current state of m.
func FromModel(m Model, iter int, final bool) *Data {
	return &Data{
		Model:       m.Name(),
		Parameters:  m.Parameters().Map(),
		Frequencies: m.Frequencies(),
		Iter:        iter,
		Final:       final,
	}
}

// Apply sets parameters and frequencies of m from the checkpoint.
func (d *Data) Apply(m Model) error {
	if d.Model != m.Name() {
		return fmt.Errorf("%w: checkpoint is for %s, not %s", ErrModelMismatch, d.Model, m.Name())
	}
	if err := m.Parameters().SetMap(d.Parameters); err != nil {
		return err
	}
	if len(d.Frequencies) > 0 {
		if err := m.SetFrequencies(d.Frequencies); err != nil {
			return err
		}
	}
	return nil
}

// IO saves checkpoints under a key, but not more often than every
// given number of seconds.
type IO struct {
	db      *bolt.DB
	key     []byte
	last    time.Time
	seconds float64
}

// NewIO creates a new IO.
func NewIO(db *bolt.DB, key []byte, seconds float64) *IO {
	return &IO{
		db:      db,
		key:     key,
		seconds: seconds,
	}
}

// Save saves checkpoint to the database.
func (s *IO) Save(data *Data) error {
	// even if saving fails, we do not want to retry too often
	s.SetNow()
	dataB, err := json.Marshal(data)
	if err != nil {
		log.Error("Error serializing checkpoint", err)
		return err
	}
	err = SaveData(s.db, s.key, dataB)
	if err != nil {
		log.Error("Error saving checkpoint", err)
	}
	return err
}

// Load returns the saved checkpoint or nil if there is none.
func (s *IO) Load() (*Data, error) {
	var data *Data

	b, err := LoadData(s.db, s.key)
	if err != nil || b == nil {
		return nil, err
	}

	if err := json.Unmarshal(b, &data); err != nil {
		return nil, err
	}
	if data == nil || (len(data.Parameters) == 0 && len(data.Frequencies) == 0) {
		return nil, nil
	}

	if data.Final {
		log.Noticef("Found final checkpoint for %s (iter=%v)", data.Model, data.Iter)
	} else {
		log.Noticef("Found checkpoint for %s (iter=%v)", data.Model, data.Iter)
	}

	return data, nil
}

// Old returns true if the last checkpoint was saved too long ago.
func (s *IO) Old() bool {
	return time.Since(s.last).Seconds() > s.seconds
}

// SetNow sets last checkpoint time to now.
func (s *IO) SetNow() {
	s.last = time.Now()
}

// SaveData saves values in bolt database.
func SaveData(db *bolt.DB, key []byte, data []byte) error {
	if db == nil {
		return nil
	}
	return db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(MAIN)
		if err != nil {
			return err
		}
		return b.Put(key, data)
	})
}

// LoadData loads data from bolt database.
func LoadData(db *bolt.DB, key []byte) ([]byte, error) {
	var data []byte
	if db == nil {
		return nil, nil
	}
	err := db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(MAIN)
		if b == nil {
			return nil
		}
		// the value is only valid during the transaction
		if v := b.Get(key); v != nil {
			data = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return data, nil
}

// Keys returns keys of all saved checkpoints.
func Keys(db *bolt.DB) ([]string, error) {
	var keys []string
	err := db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(MAIN)
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, _ []byte) error {
			keys = append(keys, string(k))
			return nil
		})
	})
	return keys, err
}
