package query

// PacketKind tells what a Packet carries.
type PacketKind uint8

const (
	// RecordPacket carries one record.
	RecordPacket PacketKind = iota

	// LastPacket is the terminal sentinel: no further record follows.
	LastPacket

	// ErrorPacket is a terminal failure. Records sent before it stand.
	ErrorPacket
)

func (k PacketKind) String() string {
	switch k {
	case RecordPacket:
		return "record"
	case LastPacket:
		return "last"
	case ErrorPacket:
		return "error"
	default:
		return "unknown"
	}
}

// Packet is one element of a record stream. Every stream ends with exactly
// one terminal packet, either LastPacket or ErrorPacket.
type Packet struct {
	Kind   PacketKind
	Record Record
	Err    error
}

// NewRecordPacket returns a packet carrying the record.
func NewRecordPacket(r Record) Packet {
	return Packet{Kind: RecordPacket, Record: r}
}

// NewLastPacket returns the terminal sentinel.
func NewLastPacket() Packet {
	return Packet{Kind: LastPacket}
}

// NewErrorPacket returns a terminal failure.
func NewErrorPacket(err error) Packet {
	return Packet{Kind: ErrorPacket, Err: err}
}

// IsTerminal returns true for the last packet of a stream.
func (p Packet) IsTerminal() bool {
	return p.Kind == LastPacket || p.Kind == ErrorPacket
}
