// Package fixed implements the saturating fixed-point arithmetic used by the
// headset audio path.
//
// Three formats appear:
//
//   - Q1.31: 32-bit samples as read from the I2S bus
//   - Q1.15: 16-bit PCM as carried over USB
//   - Q8.24: linear gain factors, 1.0 == [One8p24]
//
// Products are formed in 64 bits and narrowed with explicit saturation so a
// loud sample clips to full scale rather than wrapping to the opposite sign.
//
// The gain table maps whole decibels in 2 dB steps from -40 dB to +40 dB to
// Q8.24 factors. [GainIndex] quantizes a UAC2 volume (1/256 dB units) onto
// the table, clamping at both ends.
package fixed
