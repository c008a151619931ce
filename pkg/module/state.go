package module

import (
	"fmt"
	"strings"
)

// Info is the decoded register file snapshot a module reports about
// itself, e.g. the dongle when it is attached.
type Info struct {
	SerialID        string
	Type            Type
	FirmwareVersion int
	HardwareVersion int
	RadioChannel    int
	RadioID         int
	BoothMode       int
	ResetCount      int
	OnTime          int // seconds
	ButtonCount     int
	VCCErrors       int
	NRFSPIErrors    int
	Name            string

	// Joint only.
	ChargeTime   int
	HighLoadTime int

	// Dongle only.
	BLESPIErrors  int
	BLECommErrors int
}

func le16(data []byte, addr byte) int {
	return int(data[addr]) + 256*int(data[addr+1])
}

// DecodeInfo decodes a raw register dump of at least SharedStateSize bytes.
func DecodeInfo(data []byte) (*Info, error) {
	if len(data) < SharedStateSize {
		return nil, fmt.Errorf("state too short: %d bytes", len(data))
	}
	info := &Info{
		SerialID:        string(data[AddrSerialNumber : AddrSerialNumber+SerialLength]),
		Type:            Type(data[AddrType]),
		FirmwareVersion: int(data[AddrFirmware]),
		HardwareVersion: int(data[AddrHardware]),
		RadioChannel:    int(data[AddrRadioChannel]),
		RadioID:         int(data[AddrRadioID]),
		BoothMode:       int(data[AddrBoothMode]),
		ResetCount:      le16(data, AddrResetCount),
		OnTime:          10 * le16(data, AddrOnTime),
		ButtonCount:     le16(data, AddrButtonPress),
		VCCErrors:       le16(data, AddrVoltage3V3Err),
		NRFSPIErrors:    le16(data, AddrNRF24SPIErr),
		Name:            strings.TrimRight(string(data[AddrName:AddrName+NameLength]), "\x00 "),
	}
	switch info.Type {
	case TypeDongle:
		if len(data) >= DongleStateSize {
			info.BLESPIErrors = le16(data, AddrDongleBLESPIErr)
			info.BLECommErrors = le16(data, AddrDongleBLECommErr)
		}
	case TypeJoint:
		if len(data) >= int(AddrJointHighLoadTime)+2 {
			info.ChargeTime = le16(data, AddrJointChargeTime)
			info.HighLoadTime = le16(data, AddrJointHighLoadTime)
		}
	}
	return info, nil
}

// String implements fmt.Stringer.
func (i *Info) String() string {
	return fmt.Sprintf("%s %s fw=%d hw=%d radio=%d/%d name=%q",
		i.Type, i.SerialID, i.FirmwareVersion, i.HardwareVersion, i.RadioChannel, i.RadioID, i.Name)
}
