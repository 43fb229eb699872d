package audio

// Audio class codes.
const (
	ClassAudio = 0x01

	SubclassAudioControl   = 0x01
	SubclassAudioStreaming = 0x02

	// ProtocolIPVersion2 marks a UAC2 interface.
	ProtocolIPVersion2 = 0x20
)

// Interface numbers of the headset function.
const (
	InterfaceControl = 0
	InterfaceSpeaker = 1
	InterfaceMic     = 2
)

// Entity IDs of the audio function topology.
const (
	EntitySpeakerInputTerminal  = 0x01
	EntitySpeakerFeatureUnit    = 0x02
	EntitySpeakerOutputTerminal = 0x03
	EntityClock                 = 0x04
	EntityMicInputTerminal      = 0x11
	EntityMicFeatureUnit        = 0x12
	EntityMicOutputTerminal     = 0x13
)

// Class-specific request codes.
const (
	RequestCur   = 0x01
	RequestRange = 0x02
	RequestMem   = 0x03
)

// Clock source control selectors.
const (
	ClockControlSamFreq  = 0x01
	ClockControlClkValid = 0x02
)

// Terminal control selectors.
const (
	TerminalControlCopyProtect = 0x01
	TerminalControlConnector   = 0x02
)

// Feature unit control selectors.
const (
	FeatureControlMute   = 0x01
	FeatureControlVolume = 0x02
)

// Channel numbers of a feature unit control.
const (
	ChannelMaster = 0
	ChannelLeft   = 1
	ChannelRight  = 2

	// NumChannels includes the master channel.
	NumChannels = 3
)

// Parameter block sizes.
const (
	Cur1Size = 1
	Cur2Size = 2
	Cur4Size = 4

	// Range blocks carry wNumSubRanges followed by MIN/MAX/RES triples.
	Range2SubrangeSize = 6
	Range4SubrangeSize = 12

	// ConnectorSize is the channel cluster returned by CONNECTOR GET_CUR.
	ConnectorSize = 6
)

// Streaming endpoints.
const (
	EndpointSpeakerOut = 0x01
	EndpointMicIn      = 0x81

	// EndpointMaxPacketSize covers one millisecond at the highest rate plus
	// one spare frame.
	EndpointMaxPacketSize = 192
)

// SampleBytes is the size of one 16-bit sample on the USB side.
const SampleBytes = 2
