package wire

// Tuning knobs shared by the codec and the layers above it (spec.md §6).
const (
	// MaxMessagesPerPacket bounds how many application messages a single
	// UDP datagram carries.
	MaxMessagesPerPacket = 8

	// MaxProposalSetSize bounds the number of distinct proposal values an
	// LA Message may carry.
	MaxProposalSetSize = 1000
)
