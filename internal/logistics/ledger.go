package logistics

import (
	"errors"
	"fmt"

	"github.com/fowlengine/missioncore/pkg/core"
)

// ErrInsufficientStock is returned when a zone cannot cover a ledger entry.
var ErrInsufficientStock = errors.New("insufficient stock")

// ErrUnknownZone is returned for ledger calls on a zone not in the layout.
var ErrUnknownZone = errors.New("unknown zone")

func (g *Graph) zone(id core.ZoneID) (*core.Zone, error) {
	z := g.registry.Zone(id)
	if z == nil {
		return nil, fmt.Errorf("%w: %d", ErrUnknownZone, id)
	}
	return z, nil
}

// Reserve holds amount of a zone's unreserved stock for a fire mission.
func (g *Graph) Reserve(id core.ZoneID, amount float64) error {
	z, err := g.zone(id)
	if err != nil {
		return err
	}
	if z.Available() < amount {
		return fmt.Errorf("%w: zone %q has %v unreserved, needs %v", ErrInsufficientStock, z.Name, z.Available(), amount)
	}
	z.Reserved += amount
	return nil
}

// Release returns a reservation to the zone's unreserved stock.
func (g *Graph) Release(id core.ZoneID, amount float64) {
	z := g.registry.Zone(id)
	if z == nil {
		return
	}
	z.Reserved -= amount
	if z.Reserved < epsilon {
		z.Reserved = 0
	}
}

// Debit consumes a reservation: the stock leaves the zone for good.
func (g *Graph) Debit(id core.ZoneID, amount float64) error {
	z, err := g.zone(id)
	if err != nil {
		return err
	}
	if z.Storage < amount-epsilon {
		return fmt.Errorf("%w: zone %q stores %v, needs %v", ErrInsufficientStock, z.Name, z.Storage, amount)
	}
	z.Storage -= amount
	if z.Storage < 0 {
		z.Storage = 0
	}
	z.Reserved -= amount
	if z.Reserved < epsilon {
		z.Reserved = 0
	}
	return nil
}

// Spend takes amount straight from unreserved stock.
func (g *Graph) Spend(id core.ZoneID, amount float64) error {
	z, err := g.zone(id)
	if err != nil {
		return err
	}
	if z.Available() < amount {
		return fmt.Errorf("%w: zone %q has %v unreserved, needs %v", ErrInsufficientStock, z.Name, z.Available(), amount)
	}
	z.Storage -= amount
	return nil
}
