package fixed

// Gain table bounds in dB. Entries are spaced GainStepDB apart.
const (
	GainMinDB  = -40
	GainMaxDB  = 40
	GainStepDB = 2
)

// VolumeUnit is the UAC2 volume resolution: 1/256 dB per count.
const VolumeUnit = 256

// gainTable holds 10^(dB/20) in Q8.24 for GainMinDB..GainMaxDB.
var gainTable = [...]int32{
	167772,     // -40 dB
	211213,     // -38 dB
	265901,     // -36 dB
	334749,     // -34 dB
	421425,     // -32 dB
	530542,     // -30 dB
	667913,     // -28 dB
	840853,     // -26 dB
	1058571,    // -24 dB
	1332662,    // -22 dB
	1677722,    // -20 dB
	2112126,    // -18 dB
	2659010,    // -16 dB
	3347495,    // -14 dB
	4214246,    // -12 dB
	5305422,    // -10 dB
	6679130,    // -8 dB
	8408526,    // -6 dB
	10585708,   // -4 dB
	13326616,   // -2 dB
	16777216,   // 0 dB
	21121264,   // +2 dB
	26590095,   // +4 dB
	33474947,   // +6 dB
	42142461,   // +8 dB
	53054215,   // +10 dB
	66791300,   // +12 dB
	84085265,   // +14 dB
	105857077,  // +16 dB
	133266164,  // +18 dB
	167772160,  // +20 dB
	211212636,  // +22 dB
	265900954,  // +24 dB
	334749468,  // +26 dB
	421424612,  // +28 dB
	530542154,  // +30 dB
	667912999,  // +32 dB
	840852648,  // +34 dB
	1058570766, // +36 dB
	1332661637, // +38 dB
	1677721600, // +40 dB
}

// GainTableLen is the number of gain table entries.
const GainTableLen = len(gainTable)

// GainIndex quantizes a volume in 1/256 dB to a gain table index. Volumes
// outside the table saturate to its ends.
func GainIndex(volume int16) int {
	db := int(volume) / VolumeUnit
	idx := (db - GainMinDB) / GainStepDB
	if idx < 0 {
		return 0
	}
	if idx >= GainTableLen {
		return GainTableLen - 1
	}
	return idx
}

// Gain returns the Q8.24 linear gain at idx, clamped to the table.
func Gain(idx int) int32 {
	if idx < 0 {
		idx = 0
	}
	if idx >= GainTableLen {
		idx = GainTableLen - 1
	}
	return gainTable[idx]
}

// VolumeGain returns the Q8.24 linear gain for a volume in 1/256 dB.
func VolumeGain(volume int16) int32 {
	return gainTable[GainIndex(volume)]
}

// DB converts whole decibels to UAC2 volume units.
func DB(db int) int16 {
	return int16(db * VolumeUnit)
}

// ToDB converts UAC2 volume units to decibels.
func ToDB(volume int16) float64 {
	return float64(volume) / VolumeUnit
}
