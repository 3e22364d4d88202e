package session

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
)

// Slot errors. These are local programming errors: they propagate to the
// caller of the slot API and never corrupt the store.
var (
	// ErrUnknownSlot is returned for names not declared in the
	// assistant definition.
	ErrUnknownSlot = errors.New("unknown slot")
	// ErrSlotNotExtractable is returned when the extraction path writes
	// a slot that only actions may set.
	ErrSlotNotExtractable = errors.New("slot is not extractable")
	// ErrSlotNotFilled is returned when confirming a slot with no value.
	ErrSlotNotFilled = errors.New("slot is not filled")
)

// Slot is a named, typed piece of conversation state.
type Slot struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	// Extractable slots may be written by the NLU extraction path.
	Extractable bool `json:"extractable"`
	// Value is the current payload; nil means unfilled.
	Value any `json:"value,omitempty"`
	// InitialValue is restored on session reset.
	InitialValue any `json:"initialValue,omitempty"`
	// Confirmed is an explicit user affirmation flag, independent of
	// the value being present.
	Confirmed bool `json:"confirmed,omitempty"`
}

// Filled reports whether the slot holds a value.
func (s *Slot) Filled() bool {
	return s.Value != nil
}

// SlotStore is the typed key-value container of one session. Mutations
// are synchronous and have no side effects beyond the store itself; the
// caller (Session) owns synchronization.
type SlotStore struct {
	slots map[string]*Slot
}

// NewSlotStore builds a store from slot declarations. Values start at
// each declaration's initial value.
func NewSlotStore(decls []Slot) *SlotStore {
	slots := make(map[string]*Slot, len(decls))
	for _, d := range decls {
		s := d
		s.Value = d.InitialValue
		s.Confirmed = false
		slots[s.Name] = &s
	}
	return &SlotStore{slots: slots}
}

// Get returns the slot value; ok is false when the value is absent.
func (ss *SlotStore) Get(name string) (value any, ok bool) {
	slot, exists := ss.slots[name]
	if !exists || slot.Value == nil {
		return nil, false
	}
	return slot.Value, true
}

// Set writes a slot value through the action path. A new value clears
// any prior confirmation.
func (ss *SlotStore) Set(name string, value any) error {
	slot, ok := ss.slots[name]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownSlot, name)
	}
	slot.Value = value
	slot.Confirmed = false
	return nil
}

// SetExtracted writes a slot value through the text-extraction path.
// Non-extractable slots reject the write.
func (ss *SlotStore) SetExtracted(name string, value any) error {
	slot, ok := ss.slots[name]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownSlot, name)
	}
	if !slot.Extractable {
		return fmt.Errorf("%w: %q", ErrSlotNotExtractable, name)
	}
	slot.Value = value
	slot.Confirmed = false
	return nil
}

// Unset clears a slot value and its confirmation flag.
func (ss *SlotStore) Unset(name string) error {
	slot, ok := ss.slots[name]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownSlot, name)
	}
	slot.Value = nil
	slot.Confirmed = false
	return nil
}

// IsFilled reports whether the named slot holds a value. Unknown names
// report false.
func (ss *SlotStore) IsFilled(name string) bool {
	slot, ok := ss.slots[name]
	return ok && slot.Filled()
}

// IsConfirmed reports whether the named slot has been explicitly
// confirmed by the user.
func (ss *SlotStore) IsConfirmed(name string) bool {
	slot, ok := ss.slots[name]
	return ok && slot.Confirmed
}

// Confirm marks a filled slot as user-confirmed.
func (ss *SlotStore) Confirm(name string) error {
	slot, ok := ss.slots[name]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownSlot, name)
	}
	if !slot.Filled() {
		return fmt.Errorf("%w: %q", ErrSlotNotFilled, name)
	}
	slot.Confirmed = true
	return nil
}

// Has reports whether the name is declared.
func (ss *SlotStore) Has(name string) bool {
	_, ok := ss.slots[name]
	return ok
}

// Names returns the declared slot names in sorted order.
func (ss *SlotStore) Names() []string {
	names := make([]string, 0, len(ss.slots))
	for name := range ss.slots {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Lookup returns the slot declaration and state for name, or nil.
func (ss *SlotStore) Lookup(name string) *Slot {
	return ss.slots[name]
}

// Reset restores every slot to its initial value and clears
// confirmations.
func (ss *SlotStore) Reset() {
	for _, slot := range ss.slots {
		slot.Value = slot.InitialValue
		slot.Confirmed = false
	}
}

// Clone returns a deep copy of the store. Slot values are copied by
// reference; handlers must treat stored values as immutable.
func (ss *SlotStore) Clone() *SlotStore {
	slots := make(map[string]*Slot, len(ss.slots))
	for name, slot := range ss.slots {
		s := *slot
		slots[name] = &s
	}
	return &SlotStore{slots: slots}
}

// Fingerprint hashes the current slot values. Two stores with identical
// values share a fingerprint; the workflow engine uses this to detect
// steps that loop without progress.
func (ss *SlotStore) Fingerprint() string {
	h := sha256.New()
	for _, name := range ss.Names() {
		slot := ss.slots[name]
		h.Write([]byte(name))
		if slot.Value != nil {
			data, err := json.Marshal(slot.Value)
			if err != nil {
				data = []byte(fmt.Sprintf("%v", slot.Value))
			}
			h.Write(data)
		}
		if slot.Confirmed {
			h.Write([]byte{1})
		}
	}
	return hex.EncodeToString(h.Sum(nil))
}

// MarshalJSON serializes the store as a name-keyed object.
func (ss *SlotStore) MarshalJSON() ([]byte, error) {
	return json.Marshal(ss.slots)
}

// UnmarshalJSON restores the store from its JSON form.
func (ss *SlotStore) UnmarshalJSON(data []byte) error {
	slots := make(map[string]*Slot)
	if err := json.Unmarshal(data, &slots); err != nil {
		return err
	}
	ss.slots = slots
	return nil
}
