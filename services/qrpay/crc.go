package qrpay

const (
	crcPoly = 0x1021
	crcInit = 0xFFFF
)

// CRC16 computes CRC-16/CCITT-FALSE over the bytes of s.
func CRC16(s string) uint16 {
	crc := uint16(crcInit)
	for i := 0; i < len(s); i++ {
		crc ^= uint16(s[i]) << 8
		for bit := 0; bit < 8; bit++ {
			if crc&0x8000 != 0 {
				crc = crc<<1 ^ crcPoly
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}
