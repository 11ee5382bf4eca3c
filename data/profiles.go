package data

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/giygas/dosecurve-api/interfaces"
	"github.com/giygas/dosecurve-api/pharmacokinetics"
)

var ErrNotFound = errors.New("not found")

const profileKeyPrefix = "doses:"

// Profiles persists each profile's raw dose list as JSON in a DoseStore
type Profiles struct {
	store interfaces.DoseStore
}

func NewProfiles(store interfaces.DoseStore) *Profiles {
	return &Profiles{store: store}
}

func profileKey(id string) string {
	return profileKeyPrefix + id
}

// Load returns the stored entries, or ErrNotFound for an unknown profile
func (p *Profiles) Load(ctx context.Context, id string) ([]pharmacokinetics.RawDose, error) {
	value, found, err := p.store.Get(ctx, profileKey(id))
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrNotFound
	}

	return decodeDoses(id, value)
}

// Save replaces the stored entries. An empty list is stored as one blank
// entry so a profile always has a row to edit.
func (p *Profiles) Save(ctx context.Context, id string, doses []pharmacokinetics.RawDose) ([]pharmacokinetics.RawDose, error) {
	doses, encoded, err := encodeDoses(doses)
	if err != nil {
		return nil, err
	}
	if err := p.store.Set(ctx, profileKey(id), encoded); err != nil {
		return nil, err
	}
	return doses, nil
}

// Update applies edit to the stored entries of an existing profile and saves
// the result, with no other write to the profile in between. Errors returned
// by edit are passed through unchanged. edit may run more than once.
func (p *Profiles) Update(ctx context.Context, id string,
	edit func([]pharmacokinetics.RawDose) ([]pharmacokinetics.RawDose, error)) ([]pharmacokinetics.RawDose, error) {
	var saved []pharmacokinetics.RawDose

	found, err := p.store.Update(ctx, profileKey(id), func(current string) (string, error) {
		doses, err := decodeDoses(id, current)
		if err != nil {
			return "", err
		}

		next, err := edit(doses)
		if err != nil {
			return "", err
		}

		next, encoded, err := encodeDoses(next)
		if err != nil {
			return "", err
		}
		saved = next
		return encoded, nil
	})
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrNotFound
	}
	return saved, nil
}

func decodeDoses(id, value string) ([]pharmacokinetics.RawDose, error) {
	var doses []pharmacokinetics.RawDose
	if err := json.Unmarshal([]byte(value), &doses); err != nil {
		return nil, fmt.Errorf("corrupt dose list for profile %s: %w", id, err)
	}
	if doses == nil {
		doses = []pharmacokinetics.RawDose{}
	}
	return doses, nil
}

func encodeDoses(doses []pharmacokinetics.RawDose) ([]pharmacokinetics.RawDose, string, error) {
	if len(doses) == 0 {
		doses = []pharmacokinetics.RawDose{{}}
	}

	encoded, err := json.Marshal(doses)
	if err != nil {
		return nil, "", fmt.Errorf("failed to encode dose list: %w", err)
	}
	return doses, string(encoded), nil
}

// Exists reports whether the profile is stored
func (p *Profiles) Exists(ctx context.Context, id string) (bool, error) {
	_, found, err := p.store.Get(ctx, profileKey(id))
	return found, err
}

// Delete removes the profile, returning ErrNotFound when it does not exist
func (p *Profiles) Delete(ctx context.Context, id string) error {
	found, err := p.Exists(ctx, id)
	if err != nil {
		return err
	}
	if !found {
		return ErrNotFound
	}
	return p.store.Delete(ctx, profileKey(id))
}
