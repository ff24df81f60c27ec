//go:build test

package testutils

import (
	"github.com/go-ble/ble"
)

// AdvertisementBuilder builds go-ble advertisements for transport tests.
type AdvertisementBuilder struct {
	adv *fakeAdvertisement
}

// fakeAdvertisement implements ble.Advertisement. Methods the transport never
// calls fall through to the nil embedded interface and panic if used.
type fakeAdvertisement struct {
	ble.Advertisement

	name      string
	address   string
	rssi      int
	services  []ble.UUID
	overflow  []ble.UUID
	manufData []byte
}

func (a *fakeAdvertisement) LocalName() string           { return a.name }
func (a *fakeAdvertisement) Addr() ble.Addr              { return ble.NewAddr(a.address) }
func (a *fakeAdvertisement) RSSI() int                   { return a.rssi }
func (a *fakeAdvertisement) Services() []ble.UUID        { return a.services }
func (a *fakeAdvertisement) OverflowService() []ble.UUID { return a.overflow }
func (a *fakeAdvertisement) ManufacturerData() []byte    { return a.manufData }
func (a *fakeAdvertisement) Connectable() bool           { return true }

// NewAdvertisementBuilder starts an advertisement with RSSI -60.
func NewAdvertisementBuilder() *AdvertisementBuilder {
	return &AdvertisementBuilder{adv: &fakeAdvertisement{rssi: -60}}
}

func (b *AdvertisementBuilder) WithName(name string) *AdvertisementBuilder {
	b.adv.name = name
	return b
}

func (b *AdvertisementBuilder) WithAddress(addr string) *AdvertisementBuilder {
	b.adv.address = addr
	return b
}

func (b *AdvertisementBuilder) WithRSSI(rssi int) *AdvertisementBuilder {
	b.adv.rssi = rssi
	return b
}

// WithServices adds service UUIDs in short ("180D") or full form.
func (b *AdvertisementBuilder) WithServices(uuids ...string) *AdvertisementBuilder {
	for _, u := range uuids {
		b.adv.services = append(b.adv.services, ble.MustParse(u))
	}
	return b
}

// WithOverflowServices adds UUIDs advertised in the overflow area.
func (b *AdvertisementBuilder) WithOverflowServices(uuids ...string) *AdvertisementBuilder {
	for _, u := range uuids {
		b.adv.overflow = append(b.adv.overflow, ble.MustParse(u))
	}
	return b
}

func (b *AdvertisementBuilder) WithManufacturerData(data []byte) *AdvertisementBuilder {
	b.adv.manufData = data
	return b
}

func (b *AdvertisementBuilder) Build() ble.Advertisement {
	adv := *b.adv
	return &adv
}

// CreateMockAdvertisement is a shorthand for the common name/address/services case.
func CreateMockAdvertisement(name, address string, services ...string) ble.Advertisement {
	return NewAdvertisementBuilder().WithName(name).WithAddress(address).WithServices(services...).Build()
}
