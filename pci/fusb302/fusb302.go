// Package fusb302 implements tpm.PortController for the FUSB302 Type-C
// port controller from ON Semiconductor, talking over an I2C bus conforming
// to periph.io/x/conn/v3/i2c.Bus.
//
// The register map and FIFO framing are carried over from the teacher's
// tcpcdriver/fusb302 driver; SetCC/SetPolarity/SetVCONN/SetVBUS/SetRoles are
// new, since the teacher's driver only ever ran its chip in pure
// hardware-toggle mode and never exposed direct termination control.
package fusb302

import (
	"periph.io/x/conn/v3/i2c"

	tpm "github.com/typec-tpm/tpm"
	"github.com/typec-tpm/tpm/pdmsg"
)

// MPN identifies a manufacturer part number, which determines the I2C
// address.
type MPN uint8

// I2CAddress returns the I2C address of the FUSB302.
func (m MPN) I2CAddress() uint8 {
	return uint8(m)
}

// Manufacturer part numbers.
const (
	FUSB302BUCX   MPN = 0b100010
	FUSB302BMPX   MPN = 0b100010
	FUSB302VMPX   MPN = 0b100010
	FUSB302B01MPX MPN = 0b100011
	FUSB302B10MPX MPN = 0b100100
	FUSB302B11MPX MPN = 0b100101
)

const msgQueueSize = 10

// FUSB302 is a tpm.PortController backed by an FUSB302 over I2C. It also
// implements tpm.Toggler (the chip's own CC-toggle state machine) and keeps
// a small internal queue of decoded messages that the caller drains with
// Receive after observing tpm.EventRx from PollEvent.
type FUSB302 struct {
	bus  i2c.Bus
	addr uint16

	intA uint8 // latched interrupt-A bits not yet consumed by PollEvent

	cc1, cc2 tpm.CCStatus
	polarity tpm.Polarity

	msgs chan pdmsg.Message

	buf [pdmsg.MaxMessageBytes + 10]byte
}

// New creates a controller driving the chip at mpn's address over bus. bus
// must run at 1MHz or slower, per the datasheet.
func New(bus i2c.Bus, mpn MPN) *FUSB302 {
	return &FUSB302{
		bus:  bus,
		addr: uint16(mpn.I2CAddress()),
		msgs: make(chan pdmsg.Message, msgQueueSize),
	}
}

func (f *FUSB302) write(r uint8, d byte) error {
	f.buf[0] = r
	f.buf[1] = d
	return f.bus.Tx(f.addr, f.buf[:2], nil)
}

func (f *FUSB302) read(r uint8) (byte, error) {
	f.buf[0] = r
	err := f.bus.Tx(f.addr, f.buf[:1], f.buf[1:2])
	return f.buf[1], err
}

func (f *FUSB302) writeMany(r uint8, d []byte) error {
	f.buf[0] = r
	copy(f.buf[1:], d)
	return f.bus.Tx(f.addr, f.buf[:len(d)+1], nil)
}

func (f *FUSB302) readMany(r uint8, d []byte) error {
	f.buf[0] = r
	err := f.bus.Tx(f.addr, f.buf[:1], f.buf[1:len(d)+1])
	if err == nil {
		copy(d, f.buf[1:len(d)+1])
	}
	return err
}

// Init resets the chip, powers up every block and arms auto-retry; it is
// called once, by tcpm.Init.
func (f *FUSB302) Init() error {
	if err := f.write(regReset, regResetSWReset); err != nil {
		return err
	}
	if err := f.write(regControl1, 0b100); err != nil { // flush rx FIFO
		return err
	}
FlushQueue:
	for {
		select {
		case <-f.msgs:
		default:
			break FlushQueue
		}
	}
	if err := f.write(regPower, regPowerPwrAll); err != nil {
		return err
	}
	if err := f.write(regControl3, 0b111); err != nil { // auto retry
		return err
	}
	f.cc1, f.cc2 = tpm.CCOpen, tpm.CCOpen
	return nil
}

// VBUSPresent reports whether the VBUS comparator currently reads above
// vSafe5V.
func (f *FUSB302) VBUSPresent() (bool, error) {
	s, err := f.read(regStatus0)
	if err != nil {
		return false, err
	}
	return s&regStatus0VBusOK != 0, nil
}

// SetCC drives the local termination directly, bypassing the chip's
// autonomous toggle state machine (callers that want hardware toggling use
// StartToggling instead).
func (f *FUSB302) SetCC(cc tpm.CCStatus) error {
	if err := f.write(regControl2, 0); err != nil { // stop any running toggle
		return err
	}
	switch cc {
	case tpm.CCOpen:
		return f.write(regSwitches0, 0)
	case tpm.CCRd:
		return f.write(regSwitches0, regSwitches0CC1PdEn|regSwitches0CC2PdEn)
	default:
		level := hostCurrentBits(cc)
		if err := f.write(regControl0, level); err != nil {
			return err
		}
		return f.write(regSwitches0, regSwitches0CC1PuEn|regSwitches0CC2PuEn)
	}
}

func hostCurrentBits(cc tpm.CCStatus) byte {
	switch cc {
	case tpm.CCRp1A5:
		return 0b10 << regControl0HostCurPos
	case tpm.CCRp3A0:
		return 0b11 << regControl0HostCurPos
	default:
		return 0b01 << regControl0HostCurPos
	}
}

// CC returns the last CC pair observed via Alert's TogDone/BC_LVL handling
// (see PollEvent), since reading the comparator synchronously outside a
// toggle cycle would require sequencing MEASURE across both lines.
func (f *FUSB302) CC() (cc1, cc2 tpm.CCStatus, err error) {
	return f.cc1, f.cc2, nil
}

// SetPolarity selects which CC line TX/RX and BMC are routed to.
func (f *FUSB302) SetPolarity(p tpm.Polarity) error {
	f.polarity = p
	meas := byte(regSwitches0MeasCC1)
	tx := byte(regSwitches1TxCC1En)
	if p == tpm.PolarityCC2 {
		meas = regSwitches0MeasCC2
		tx = regSwitches1TxCC2En
	}
	if err := f.write(regSwitches1, regSwitches1SpecRev1|regSwitches1AutoGCRC|tx); err != nil {
		return err
	}
	return f.write(regSwitches0, meas|regSwitches0CC1PdEn|regSwitches0CC2PdEn)
}

// SetVCONN enables or disables VCONN sourcing on the inactive CC line.
func (f *FUSB302) SetVCONN(on bool) error {
	r, err := f.read(regSwitches0)
	if err != nil {
		return err
	}
	vconnBit := byte(regSwitches0VconnCC2)
	if f.polarity == tpm.PolarityCC2 {
		vconnBit = regSwitches0VconnCC1
	}
	if on {
		r |= vconnBit
	} else {
		r &^= vconnBit
	}
	return f.write(regSwitches0, r)
}

// SetVBUS is a no-op on the FUSB302 itself: VBUS sourcing/sinking is done
// by external FETs the chip does not control. Embedders that wire a gate
// driver do so outside this driver; see DESIGN.md.
func (f *FUSB302) SetVBUS(on, charge bool) error {
	return nil
}

// SetPDRx enables or disables BMC reception by clearing or setting the RX
// FIFO flush bit in CONTROL1.
func (f *FUSB302) SetPDRx(on bool) error {
	r, err := f.read(regControl1)
	if err != nil {
		return err
	}
	if on {
		r &^= regControl1RxFlush
	} else {
		r |= regControl1RxFlush
	}
	return f.write(regControl1, r)
}

// SetRoles has nothing further to apply to the FUSB302 itself (it has no
// data-role pin); the state machine tracks roles for protocol purposes.
func (f *FUSB302) SetRoles(attached bool, role tpm.PowerRole, data pdmsg.DataRole) error {
	return nil
}

// PDTransmit sends m (or a hard-reset signal) at the given revision.
func (f *FUSB302) PDTransmit(typ pdmsg.TransmitType, m pdmsg.Message, rev pdmsg.Revision) error {
	if typ == pdmsg.TransmitHardReset {
		return f.sendHardReset()
	}
	return f.tx(m)
}

func (f *FUSB302) tx(m pdmsg.Message) error {
	if err := f.write(regControl0Flush, 0b01100100); err != nil {
		return err
	}
	buf := make([]byte, 9+pdmsg.MaxMessageBytes)
	copy(buf, []byte{fifoTokenSync1, fifoTokenSync1, fifoTokenSync1, fifoTokenSync2})
	mlen := m.ToBytes(buf[5:])
	buf[4] = fifoTokenPackSym | mlen
	copy(buf[5+mlen:], []byte{fifoTokenJamCRC, fifoTokenEOP, fifoTokenTxOff, fifoTokenTxOn})
	plen := 9 + mlen
	return f.writeMany(regFIFOs, buf[:plen])
}

func (f *FUSB302) sendHardReset() error {
	r, err := f.read(regControl3)
	if err != nil {
		return err
	}
	return f.write(regControl3, r|regControl3SendHardReset)
}

// StartToggling implements tpm.Toggler using the chip's autonomous CC
// toggle state machine.
func (f *FUSB302) StartToggling(pt tpm.PortType, initialCC tpm.CCStatus) error {
	mode := byte(0b01 << regControl2ModePos) // SNK
	switch pt {
	case tpm.PortTypeSource:
		mode = 0b10 << regControl2ModePos
	case tpm.PortTypeDRP:
		mode = 0b11 << regControl2ModePos
	}
	return f.write(regControl2, mode|regControl2ToggleEn)
}

// EnterLowPowerMode implements tpm.LowPowerController by gating the
// internal oscillator and bandgap when the port is idle and not mid-PD.
func (f *FUSB302) EnterLowPowerMode(attached, pdCapable bool) error {
	if attached || pdCapable {
		return f.write(regPower, regPowerPwrAll)
	}
	return f.write(regPower, regPowerPwrBandgapADC)
}

// Receive drains one decoded message, if any is queued. Callers observe
// tpm.EventRx from PollEvent and then call Receive in a loop, handing each
// result to (*tcpm.Port).PDReceive. Receive is not part of the
// tpm.PortController interface.
func (f *FUSB302) Receive() (pdmsg.Message, bool) {
	select {
	case m := <-f.msgs:
		return m, true
	default:
		return pdmsg.Message{}, false
	}
}

func (f *FUSB302) rx(m *pdmsg.Message) (bool, error) {
	reg, err := f.read(regStatus1)
	if err != nil {
		return false, err
	}
	if reg&regStatus1RxEmpty != 0 {
		return false, nil
	}
	buf := make([]byte, pdmsg.MaxMessageBytes+4)
	if err := f.readMany(regFIFOs, buf[:3]); err != nil {
		return false, err
	}
	m.Header = uint16(buf[2])<<8 | uint16(buf[1])
	l := m.DataObjectCount()
	if l > 0 {
		if err := f.readMany(regFIFOs, buf[:l*4+4]); err != nil {
			return false, err
		}
		for i := uint8(0); i < l; i++ {
			s := i * 4
			m.Data[i] = uint32(buf[s]) | uint32(buf[s+1])<<8 | uint32(buf[s+2])<<16 | uint32(buf[s+3])<<24
		}
	} else {
		if err := f.readMany(regFIFOs, buf[:4]); err != nil { // discard CRC
			return false, err
		}
	}
	return true, nil
}

// PollEvent services pending interrupts and translates them into the
// tpm.Event bitmask the policy engine's facade expects.
func (f *FUSB302) PollEvent() (tpm.Event, error) {
	var e tpm.Event

	regs := make([]byte, 7)
	if err := f.readMany(regStatus0A, regs); err != nil {
		return 0, err
	}
	status0A, status1A, intA, intT, status0 := regs[0], regs[1], regs[2], regs[6], regs[4]
	intA |= f.intA
	f.intA = 0

	if intA&regInterruptASoftReset != 0 && status0A&regStatus0ARxSoftReset != 0 {
		e.Add(tpm.EventHardReset)
	}
	if intA&regInterruptAHardReset != 0 && status0A&regStatus0ARxHardReset != 0 {
		e.Add(tpm.EventHardReset)
	}

	// An ordinary send completes with TxSuccess (GoodCRC received); a hard
	// reset send completes with HardSent. Either unblocks transmit's
	// spin-poll wait (§5).
	if intA&regInterruptATxSuccess != 0 || intA&regInterruptAHardSent != 0 {
		e.Add(tpm.EventTxComplete)
	}

	if intA&regInterruptATogDone != 0 {
		var pol uint8
		var meas uint8
		switch (status1A >> regStatus1ATogSSPos) & regStatus1ATogSSMask {
		case regStatus1ATogSSSnk1, regStatus1ATogSSSrc1:
			pol = regSwitches1TxCC1En
			meas = regSwitches0MeasCC1
			f.polarity = tpm.PolarityCC1
		case regStatus1ATogSSSnk2, regStatus1ATogSSSrc2:
			pol = regSwitches1TxCC2En
			meas = regSwitches0MeasCC2
			f.polarity = tpm.PolarityCC2
		}
		if pol != 0 {
			f.write(regSwitches1, regSwitches1SpecRev1|regSwitches1AutoGCRC|pol) //nolint:errcheck
			f.write(regSwitches0, meas|regSwitches0CC1PdEn|regSwitches0CC2PdEn)   //nolint:errcheck
			level := bcLevelToCC(status0 & 0b11)
			if f.polarity == tpm.PolarityCC1 {
				f.cc1, f.cc2 = level, tpm.CCOpen
			} else {
				f.cc1, f.cc2 = tpm.CCOpen, level
			}
			e.Add(tpm.EventCCChange)
		}
	}

	if intT&regInterruptVBusOK != 0 {
		e.Add(tpm.EventVBUSChange)
	}

	if intT&regInterruptCRCChk != 0 {
		for {
			var msg pdmsg.Message
			ok, err := f.rx(&msg)
			if err != nil {
				return e, err
			}
			if !ok {
				break
			}
			if !msg.IsData() && msg.Type() == pdmsg.TypeGoodCRC {
				continue
			}
			select {
			case f.msgs <- msg:
			default:
			}
		}
		e.Add(tpm.EventRx)
	}

	return e, nil
}

// bcLevelToCC maps the BC_LVL bits (valid while acting as a sink during an
// autonomous toggle) onto the Rp advertisement level the partner presents.
func bcLevelToCC(bcLvl byte) tpm.CCStatus {
	switch bcLvl {
	case 1:
		return tpm.CCRpDefault
	case 2:
		return tpm.CCRp1A5
	case 3:
		return tpm.CCRp3A0
	default:
		return tpm.CCRd
	}
}

const (
	regSwitches0         = 0x02
	regSwitches0VconnCC2 = 1 << 7
	regSwitches0VconnCC1 = 1 << 6
	regSwitches0MeasCC2  = 1 << 3
	regSwitches0MeasCC1  = 1 << 2
	regSwitches0CC2PuEn  = 1 << 7
	regSwitches0CC1PuEn  = 1 << 6
	regSwitches0CC2PdEn  = 1 << 1
	regSwitches0CC1PdEn  = 1 << 0

	regSwitches1         = 0x03
	regSwitches1SpecRev1 = 1 << 6
	regSwitches1AutoGCRC = 1 << 2
	regSwitches1TxCC2En  = 1 << 1
	regSwitches1TxCC1En  = 1 << 0

	regControl0          = 0x06
	regControl0Flush     = 0x06
	regControl0HostCurPos = 2

	regControl1         = 0x07
	regControl1RxFlush  = 1 << 2

	regControl2          = 0x08
	regControl2ToggleEn  = 1 << 0
	regControl2ModePos   = 1

	regControl3              = 0x09
	regControl3SendHardReset = 1 << 6

	regPower              = 0x0B
	regPowerPwrAll        = 0xF
	regPowerPwrBandgapADC = 0x1

	regReset        = 0x0C
	regResetSWReset = 1 << 0

	regStatus0A            = 0x3C
	regStatus0ARxSoftReset = 1 << 1
	regStatus0ARxHardReset = 1 << 0

	regStatus1A = 0x3D

	regStatus1ATogSSSrc1 = 0b011
	regStatus1ATogSSSrc2 = 0b100
	regStatus1ATogSSSnk1 = 0b101
	regStatus1ATogSSSnk2 = 0b110
	regStatus1ATogSSPos  = 3
	regStatus1ATogSSMask = 0x7

	regInterruptA          = 0x3E
	regInterruptATogDone   = 1 << 6
	regInterruptARetryFail = 1 << 4
	regInterruptAHardSent  = 1 << 3
	regInterruptATxSuccess = 1 << 2
	regInterruptASoftReset = 1 << 1
	regInterruptAHardReset = 1 << 0

	regStatus0       = 0x40
	regStatus0VBusOK = 1 << 7

	regStatus1        = 0x41
	regStatus1RxEmpty = 1 << 5

	regInterrupt       = 0x42
	regInterruptVBusOK = 1 << 7
	regInterruptCRCChk = 1 << 4

	regFIFOs = 0x43

	fifoTokenTxOn    = 0xA1
	fifoTokenSync1   = 0x12
	fifoTokenSync2   = 0x13
	fifoTokenPackSym = 0x80
	fifoTokenJamCRC  = 0xFF
	fifoTokenEOP     = 0x14
	fifoTokenTxOff   = 0xFE
)
