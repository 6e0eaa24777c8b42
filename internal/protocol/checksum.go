package protocol

// headerLen is the length of the transport header preceding every command body.
const headerLen = 8

// Checksum returns the additive checksum of b.
func Checksum(b []byte) byte {
	var sum byte
	for _, v := range b {
		sum += v
	}
	return sum
}

// sealPacket writes the checksum of the command body into the final byte.
func sealPacket(p []byte) []byte {
	last := len(p) - 1
	p[last] = Checksum(p[headerLen:last])
	return p
}

// VerifyChecksum reports whether p carries a valid trailing checksum.
func VerifyChecksum(p []byte) bool {
	if len(p) <= headerLen {
		return false
	}
	last := len(p) - 1
	return p[last] == Checksum(p[headerLen:last])
}
