package goble

import (
	"strings"
	"unicode"

	"github.com/go-ble/ble"
	"github.com/srg/bleread/internal/device"
)

// PeripheralFromAdvertisement converts a go-ble advertisement into the
// transport-neutral peripheral identity. Services listed in the overflow area
// count as advertised.
func PeripheralFromAdvertisement(adv ble.Advertisement) device.Peripheral {
	p := device.Peripheral{
		ID:   adv.Addr().String(),
		Name: adv.LocalName(),
		RSSI: adv.RSSI(),
	}
	if p.Name == "" {
		p.Name = nameFromManufacturerData(adv.ManufacturerData())
	}

	seen := make(map[string]struct{})
	for _, list := range [][]ble.UUID{adv.Services(), adv.OverflowService()} {
		for _, u := range list {
			id := device.IdentifierFromBLE(u)
			if id.IsZero() {
				continue
			}
			if _, dup := seen[id.String()]; dup {
				continue
			}
			seen[id.String()] = struct{}{}
			p.Services = append(p.Services, id)
		}
	}
	return p
}

// nameFromManufacturerData returns the first printable ASCII run of at least
// three characters containing a letter. Many peripherals that omit a local
// name embed one there.
func nameFromManufacturerData(data []byte) string {
	if len(data) < 4 {
		return ""
	}
	for i := 0; i < len(data)-3; i++ {
		if !isReadableASCII(data[i]) {
			continue
		}
		j := i
		for j < len(data) && j < i+32 && isReadableASCII(data[j]) {
			j++
		}
		if name := strings.TrimSpace(string(data[i:j])); isValidName(name) {
			return name
		}
		i = j
	}
	return ""
}

func isReadableASCII(b byte) bool {
	return b >= 32 && b <= 126
}

func isValidName(name string) bool {
	if len(name) < 3 || len(name) > 32 {
		return false
	}
	return strings.IndexFunc(name, unicode.IsLetter) >= 0
}
