// Package pdmsg defines types to encode and decode USB Power Delivery
// messages, power data objects (PDOs) and request data objects (RDOs).
//
// Decoding of extended messages is not supported.
package pdmsg

import "errors"

const (
	// MaxDataObjects is the maximum number of data objects that can be stored in
	// a message, as set by the standard.
	MaxDataObjects = 7

	// MaxMessageBytes is the maximum number of bytes in a message which includes
	// the header and the data objects.
	MaxMessageBytes = 2 + 4*MaxDataObjects // 2 bytes header, and 7 data objects, each 32 bits (4 bytes)
)

// ErrShortBuffer is returned by FromBytes when b is too short to hold a
// complete header plus the data object count it claims.
var ErrShortBuffer = errors.New("pdmsg: buffer too short for message")

// Message represents a power delivery message.
type Message struct {
	Header uint16

	// Data varies depending on the type of the message. For TypeSourceCap and
	// TypeSinkCap, the data element should be converted to PDO, and further to
	// a specific PDO type based on PDO.Type(). For TypeRequest, Data[0] should
	// be converted to RequestDO.
	//
	// Size of Data is fixed to the maximum allowable message size, to ensure no
	// heap allocations are necessary. To find out how many actual elements are
	// used, use DataObjectCount().
	Data [MaxDataObjects]uint32
}

// ToBytes serializes the message to a byte slice and returns the number of
// bytes written. b must be at least MaxMessageBytes long.
func (m Message) ToBytes(b []byte) uint8 {
	b[0] = byte(m.Header & 0xff)
	b[1] = byte((m.Header >> 8) & 0xff)
	c := m.DataObjectCount()
	for i, d := range m.Data[:c] {
		b[2+i*4] = byte(d & 0xff)
		b[3+i*4] = byte((d >> 8) & 0xff)
		b[4+i*4] = byte((d >> 16) & 0xff)
		b[5+i*4] = byte((d >> 24) & 0xff)
	}
	return 2 + c*4
}

// FromBytes decodes a wire-format message out of b. It returns
// ErrShortBuffer if b does not hold a full header plus the number of data
// objects the header claims.
func FromBytes(b []byte) (Message, error) {
	if len(b) < 2 {
		return Message{}, ErrShortBuffer
	}
	var m Message
	m.Header = uint16(b[0]) | uint16(b[1])<<8
	c := m.DataObjectCount()
	if len(b) < 2+int(c)*4 {
		return Message{}, ErrShortBuffer
	}
	for i := 0; i < int(c); i++ {
		o := 2 + i*4
		m.Data[i] = uint32(b[o]) | uint32(b[o+1])<<8 | uint32(b[o+2])<<16 | uint32(b[o+3])<<24
	}
	return m, nil
}

// IsExtended returns true if the message has its extended flag set.
func (m Message) IsExtended() bool {
	return m.Header&(1<<15) != 0
}

// SetExtended sets the extended flag in the message.
func (m *Message) SetExtended(e bool) {
	var b uint16
	if e {
		b = 1 << 15
	}
	m.Header = (m.Header & ^(uint16(1) << 15)) | b
}

// ID returns the message ID.
func (m Message) ID() uint8 {
	return uint8((m.Header >> 9) & 0b111)
}

// SetID sets the message ID.
func (m *Message) SetID(id uint8) {
	m.Header = (m.Header & ^(uint16(0b111) << 9)) | (uint16(id) << 9)
}

// DataObjectCount returns the number of data objects in the message.
func (m Message) DataObjectCount() uint8 {
	return uint8((m.Header >> 12) & 0b111)
}

// SetDataObjectCount sets the number of data objects in the message.
func (m *Message) SetDataObjectCount(n uint8) {
	m.Header = (m.Header & ^(uint16(0b111) << 12)) | (uint16(n) << 12)
}

// IsData returns true if the message is a data message, otherwise it's a
// control message.
func (m Message) IsData() bool {
	return m.DataObjectCount() > 0
}

// Type returns the message type. As data and control messages share the
// same numeric values for some types, the caller must check IsData in
// addition to Type to determine the message's real identity.
func (m Message) Type() Type {
	return Type(m.Header & 0b11111)
}

// SetType sets the message type.
func (m *Message) SetType(t Type) {
	m.Header = (m.Header & ^uint16(0b11111)) | uint16(t)
}

// Type represents the PD message type. For control messages, the value is
// equivalent to the control message ID in the PD spec.
type Type uint8

// Control message types.
const (
	TypeGoodCRC         Type = 0b00001
	TypeGotoMin         Type = 0b00010
	TypeAccept          Type = 0b00011
	TypeReject          Type = 0b00100
	TypePing            Type = 0b00101
	TypePSReady         Type = 0b00110
	TypeGetSourceCap    Type = 0b00111
	TypeGetSinkCap      Type = 0b01000
	TypeDRSwap          Type = 0b01001
	TypePRSwap          Type = 0b01010
	TypeVCONNSwap       Type = 0b01011
	TypeWait            Type = 0b01100
	TypeSoftReset       Type = 0b01101
	TypeNotSupported    Type = 0b01110
	TypeGetSourceCapExt Type = 0b01111
	TypeGetStatus       Type = 0b10000
	TypeFRSwap          Type = 0b10001
	TypeGetPPSStatus    Type = 0b10010
	TypeGetCountryCodes Type = 0b10011
)

// Data message types.
const (
	TypeSourceCap Type = 0b00001
	TypeRequest   Type = 0b00010
	TypeSinkCap   Type = 0b00100
)

// Revision returns the power delivery revision number of the message.
func (m Message) Revision() Revision {
	return Revision((m.Header >> 6) & 0b11)
}

// SetRevision sets the power delivery revision number of the message.
func (m *Message) SetRevision(r Revision) {
	m.Header = (m.Header & ^(uint16(0b11) << 6)) | uint16(r<<6)
}

// Revision represents the power delivery revision number of a message.
type Revision uint8

// Power delivery revision numbers.
const (
	Revision10 Revision = 0b00
	Revision20 Revision = 0b01
	Revision30 Revision = 0b10

	// MaxRevision is the highest revision this codec negotiates down from.
	MaxRevision = Revision30
)

// PowerRole returns the power role of the sender of the message.
func (m Message) PowerRole() PowerRole {
	return PowerRole((m.Header >> 8) & 1)
}

// SetPowerRole sets the power role of the sender of the message.
func (m *Message) SetPowerRole(r PowerRole) {
	m.Header = (m.Header & ^(uint16(1) << 8)) | (uint16(r) << 8)
}

// PowerRole represents the power role of the sender of a message.
type PowerRole uint8

// Power roles of the sender of a message.
const (
	PowerRoleSink   PowerRole = 0
	PowerRoleSource PowerRole = 1
)

// DataRole returns the data role of the sender of the message.
func (m Message) DataRole() DataRole {
	return DataRole((m.Header >> 5) & 1)
}

// SetDataRole sets the data role of the sender of the message.
func (m *Message) SetDataRole(r DataRole) {
	m.Header = (m.Header & ^(uint16(1) << 5)) | uint16(r<<5)
}

// DataRole represents the data role of the sender of a message.
type DataRole uint8

// Data roles of the sender of a message.
const (
	DataRoleUFP DataRole = 0 // device / sink-side data role
	DataRoleDFP DataRole = 1 // host / source-side data role
)

// TransmitType distinguishes the kind of frame a PortController is asked to
// put on the wire. SOP' / SOP'' (cable-plug) messaging and BIST are outside
// this spec's scope; only SOP and hard reset are modeled.
type TransmitType uint8

const (
	TransmitSOP       TransmitType = iota // ordinary SOP message to the port partner
	TransmitHardReset                     // hard reset signaling
)

// TransmitStatus is the outcome reported by tx_complete.
type TransmitStatus uint8

const (
	TransmitSuccess   TransmitStatus = iota
	TransmitDiscarded                // a collision caused the frame to be discarded; retry
	TransmitFailed                   // auto-retries exhausted
)
