package pdmsg

// PDO is a generic Power Data Object. Based on its type, it should be
// converted to a specific PDO type to allow extracting further fields.
type PDO uint32

// Type returns the type of the power data object.
func (o PDO) Type() PDOType {
	h := (o >> 30) & 0b11
	if h == 0b11 {
		return PDOType((((o >> 28) & 0b11) << 3) | 0b100 | h)
	}
	return PDOType(h)
}

// PDOType represents the type of a power data object.
type PDOType uint8

// Power data object types.
const (
	PDOTypeFixedSupply    PDOType = 0b00
	PDOTypeBattery        PDOType = 0b01
	PDOTypeVariableSupply PDOType = 0b10
	PDOTypePPS            PDOType = 0b00111 // augmented PDO, PPS flavor
	PDOTypeEPRAVS         PDOType = 0b01111 // augmented PDO, EPR AVS flavor
)

// MinMillivolts returns the minimum acceptable voltage of o in millivolts,
// regardless of its concrete type. FixedSupplyPDO has no range so its single
// voltage is returned for both Min and Max.
func (o PDO) MinMillivolts() uint16 {
	switch o.Type() {
	case PDOTypeFixedSupply:
		return FixedSupplyPDO(o).Voltage()
	case PDOTypeBattery:
		return BatteryPDO(o).MinVoltage()
	case PDOTypeVariableSupply:
		return VariableSupplyPDO(o).MinVoltage()
	case PDOTypePPS:
		return PPSPDO(o).MinVoltage()
	default:
		return 0
	}
}

// MaxMillivolts returns the maximum acceptable voltage of o in millivolts.
func (o PDO) MaxMillivolts() uint16 {
	switch o.Type() {
	case PDOTypeFixedSupply:
		return FixedSupplyPDO(o).Voltage()
	case PDOTypeBattery:
		return BatteryPDO(o).MaxVoltage()
	case PDOTypeVariableSupply:
		return VariableSupplyPDO(o).MaxVoltage()
	case PDOTypePPS:
		return PPSPDO(o).MaxVoltage()
	default:
		return 0
	}
}

// FixedSupplyPDO represents a Fixed Supply Power Data Object.
type FixedSupplyPDO uint32

// Fixed supply PDO flag bits, per USB-PD §6.4.1.2.
const (
	fixedFlagDualRole     = 1 << 29
	fixedFlagUSBSuspend   = 1 << 28
	fixedFlagUnconstraint = 1 << 27
	fixedFlagUSBComm      = 1 << 26
	fixedFlagDataSwap     = 1 << 25
)

// NewFixedSupplyPDO returns a new blank FixedSupplyPDO.
func NewFixedSupplyPDO() FixedSupplyPDO {
	return FixedSupplyPDO(0)
}

// Voltage returns voltage in millivolts.
func (o FixedSupplyPDO) Voltage() uint16 {
	return uint16(((o >> 10) & (1<<10 - 1)) * 50)
}

// SetVoltage will round the given voltage down to a multiple of 50mV.
func (o *FixedSupplyPDO) SetVoltage(v uint16) {
	*o = (*o & ^((FixedSupplyPDO(1)<<10 - 1) << 10)) | ((FixedSupplyPDO(v)/50)&(1<<10-1))<<10
}

// MaxCurrent returns maximum current in milliamps.
func (o FixedSupplyPDO) MaxCurrent() uint16 {
	return uint16((o & (1<<10 - 1)) * 10)
}

// SetMaxCurrent will round the given current down to a multiple of 10mA.
func (o *FixedSupplyPDO) SetMaxCurrent(v uint16) {
	*o = (*o & ^(FixedSupplyPDO(1)<<10 - 1)) | (FixedSupplyPDO(v)/10)&(1<<10-1)
}

// DualRoleCapable returns true if the sender of this PDO (as the first PDO
// of a SOURCE_CAP message) advertises dual-role power capability.
func (o FixedSupplyPDO) DualRoleCapable() bool {
	return o&fixedFlagDualRole != 0
}

// DataSwapCapable returns true if the sender advertises data-role swap
// support on the first PDO of a SOURCE_CAP message.
func (o FixedSupplyPDO) DataSwapCapable() bool {
	return o&fixedFlagDataSwap != 0
}

// SetDualRoleCapable sets the dual-role power flag.
func (o *FixedSupplyPDO) SetDualRoleCapable(v bool) {
	o.setFlag(fixedFlagDualRole, v)
}

// SetDataSwapCapable sets the data-role swap flag.
func (o *FixedSupplyPDO) SetDataSwapCapable(v bool) {
	o.setFlag(fixedFlagDataSwap, v)
}

// SetUSBCommunicationsCapable sets the USB communications capable flag.
func (o *FixedSupplyPDO) SetUSBCommunicationsCapable(v bool) {
	o.setFlag(fixedFlagUSBComm, v)
}

func (o *FixedSupplyPDO) setFlag(bit FixedSupplyPDO, v bool) {
	if v {
		*o |= bit
	} else {
		*o &^= bit
	}
}

// VariableSupplyPDO represents a Variable Supply (non-battery) Power Data
// Object.
type VariableSupplyPDO uint32

// MinVoltage returns the minimum voltage in millivolts.
func (o VariableSupplyPDO) MinVoltage() uint16 {
	return uint16(((o >> 10) & (1<<10 - 1)) * 50)
}

// SetMinVoltage sets the minimum voltage in millivolts, rounded to 50mV.
func (o *VariableSupplyPDO) SetMinVoltage(v uint16) {
	*o = (*o & ^((VariableSupplyPDO(1)<<10 - 1) << 10)) | ((VariableSupplyPDO(v)/50)&(1<<10-1))<<10
}

// MaxVoltage returns the maximum voltage in millivolts.
func (o VariableSupplyPDO) MaxVoltage() uint16 {
	return uint16(((o >> 20) & (1<<10 - 1)) * 50)
}

// SetMaxVoltage sets the maximum voltage in millivolts, rounded to 50mV.
func (o *VariableSupplyPDO) SetMaxVoltage(v uint16) {
	*o = (*o & ^((VariableSupplyPDO(1)<<10 - 1) << 20)) | ((VariableSupplyPDO(v)/50)&(1<<10-1))<<20
}

// MaxCurrent returns the maximum current in milliamps.
func (o VariableSupplyPDO) MaxCurrent() uint16 {
	return uint16((o & (1<<10 - 1)) * 10)
}

// SetMaxCurrent sets the maximum current in milliamps, rounded to 10mA.
func (o *VariableSupplyPDO) SetMaxCurrent(v uint16) {
	*o = (*o & ^(VariableSupplyPDO(1)<<10 - 1)) | (VariableSupplyPDO(v)/10)&(1<<10-1)
}

// BatteryPDO represents a Battery Supply Power Data Object.
type BatteryPDO uint32

// MinVoltage returns the minimum voltage in millivolts.
func (o BatteryPDO) MinVoltage() uint16 {
	return uint16(((o >> 10) & (1<<10 - 1)) * 50)
}

// SetMinVoltage sets the minimum voltage in millivolts, rounded to 50mV.
func (o *BatteryPDO) SetMinVoltage(v uint16) {
	*o = (*o & ^((BatteryPDO(1)<<10 - 1) << 10)) | ((BatteryPDO(v)/50)&(1<<10-1))<<10
}

// MaxVoltage returns the maximum voltage in millivolts.
func (o BatteryPDO) MaxVoltage() uint16 {
	return uint16(((o >> 20) & (1<<10 - 1)) * 50)
}

// SetMaxVoltage sets the maximum voltage in millivolts, rounded to 50mV.
func (o *BatteryPDO) SetMaxVoltage(v uint16) {
	*o = (*o & ^((BatteryPDO(1)<<10 - 1) << 20)) | ((BatteryPDO(v)/50)&(1<<10-1))<<20
}

// MaxPower returns the maximum power in milliwatts.
func (o BatteryPDO) MaxPower() uint16 {
	return uint16((o & (1<<10 - 1)) * 250)
}

// SetMaxPower sets the maximum power in milliwatts, rounded to 250mW.
func (o *BatteryPDO) SetMaxPower(v uint16) {
	*o = (*o & ^(BatteryPDO(1)<<10 - 1)) | (BatteryPDO(v)/250)&(1<<10-1)
}

// PPSPDO represents a Programmable Power Supply (augmented) Power Data
// Object.
type PPSPDO uint32

// NewPPSPDO returns a new blank programmable power supply power data
// object.
func NewPPSPDO() PPSPDO {
	return PPSPDO(0b11) << 30
}

// MinVoltage returns minimum voltage in millivolts.
func (o PPSPDO) MinVoltage() uint16 {
	return ((uint16(o) >> 8) & (uint16(1)<<8 - 1)) * 100
}

// SetMinVoltage sets the minimum voltage in millivolts. The voltage will be
// rounded down to a multiple of 100mV.
func (o *PPSPDO) SetMinVoltage(v uint16) {
	*o = (*o & ^((PPSPDO(1)<<8 - 1) << 8)) | PPSPDO((v/100)&(1<<8-1))<<8
}

// MaxVoltage returns maximum voltage in millivolts.
func (o PPSPDO) MaxVoltage() uint16 {
	return (uint16(o>>17) & (uint16(1)<<8 - 1)) * 100
}

// SetMaxVoltage sets the maximum voltage in millivolts. The voltage will be
// rounded down to a multiple of 100mV.
func (o *PPSPDO) SetMaxVoltage(v uint16) {
	*o = (*o & ^((PPSPDO(1)<<8 - 1) << 17)) | PPSPDO((v/100)&(1<<8-1))<<17
}

// MaxCurrent returns maximum current in milliamps.
func (o PPSPDO) MaxCurrent() uint16 {
	return (uint16(o) & (uint16(1)<<7 - 1)) * 50
}

// SetMaxCurrent sets the maximum current in milliamps. The current will be
// rounded down to a multiple of 50mA.
func (o *PPSPDO) SetMaxCurrent(c uint16) {
	*o = (*o & ^(PPSPDO(1)<<8 - 1)) | PPSPDO((c/50)&(1<<7-1))
}

// IsPowerLimited returns true if the power limited flag is set.
func (o PPSPDO) IsPowerLimited() bool {
	return o&(1<<27) != 0
}
