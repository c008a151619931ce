package dongle

import (
	"strings"

	"go.bug.st/serial/enumerator"
)

// USB signature of the dongle.
const (
	VendorID  = "03EB"
	ProductID = "FABE"
)

// Candidate is a serial device which may be a dongle.
type Candidate struct {
	Device       string
	VID          string
	PID          string
	SerialNumber string
	Product      string
}

// IsFable tells if the candidate looks like a Fable dongle, by USB
// IDs or by product name.
func (c Candidate) IsFable() bool {
	if strings.EqualFold(c.VID, VendorID) && strings.EqualFold(c.PID, ProductID) {
		return true
	}
	return strings.Contains(c.Product, "Fable ")
}

// Enumerator lists serial devices.
type Enumerator interface {
	Candidates() ([]Candidate, error)
}

// EnumeratorFunc is the func form of Enumerator.
type EnumeratorFunc func() ([]Candidate, error)

// Candidates implements Enumerator.
func (f EnumeratorFunc) Candidates() ([]Candidate, error) {
	return f()
}

// StaticDevices enumerates fixed device names, e.g. from configuration.
type StaticDevices []string

// Candidates implements Enumerator. Fixed devices are trusted to be dongles.
func (s StaticDevices) Candidates() ([]Candidate, error) {
	candidates := make([]Candidate, 0, len(s))
	for _, dev := range s {
		candidates = append(candidates, Candidate{Device: dev, VID: VendorID, PID: ProductID})
	}
	return candidates, nil
}

// USBEnumerator lists USB serial ports of the host.
type USBEnumerator struct{}

// Candidates implements Enumerator.
func (USBEnumerator) Candidates() ([]Candidate, error) {
	ports, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, err
	}
	var candidates []Candidate
	for _, port := range ports {
		if !port.IsUSB {
			continue
		}
		candidates = append(candidates, Candidate{
			Device:       port.Name,
			VID:          port.VID,
			PID:          port.PID,
			SerialNumber: port.SerialNumber,
			Product:      port.Product,
		})
	}
	return candidates, nil
}

// Dongles lists the candidates of all enumerators which look like dongles,
// without duplicates.
func Dongles(enumerators ...Enumerator) ([]Candidate, error) {
	var found []Candidate
	seen := make(map[string]bool)
	var lastErr error
	for _, e := range enumerators {
		candidates, err := e.Candidates()
		if err != nil {
			lastErr = err
			continue
		}
		for _, c := range candidates {
			if c.IsFable() && !seen[c.Device] {
				seen[c.Device] = true
				found = append(found, c)
			}
		}
	}
	if len(found) == 0 {
		return nil, lastErr
	}
	return found, nil
}
