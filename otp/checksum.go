package otp

// CRC13239 as used by the OTP slot mechanism: reflected polynomial
// 0x8408, initial register 0xFFFF, no final XOR.
const crcPolynomial = 0x8408

// CrcOkResidual is the remainder of recomputing the checksum over a
// frame that ends with its own correctly computed checksum.
const CrcOkResidual = 0xF0B8

// CalculateCrc computes the CRC13239 checksum of data.
func CalculateCrc(data []byte) uint16 {
	crc := uint16(0xFFFF)
	for _, b := range data {
		crc ^= uint16(b)
		for i := 0; i < 8; i++ {
			lsb := crc & 1
			crc >>= 1
			if lsb == 1 {
				crc ^= crcPolynomial
			}
		}
	}
	return crc
}

// CheckCrc verifies a frame that ends in its little-endian 2-byte
// checksum.
func CheckCrc(data []byte) bool {
	return CalculateCrc(data) == CrcOkResidual
}

// AppendCrc appends the little-endian checksum of data, producing a
// frame for which CheckCrc holds.
func AppendCrc(data []byte) []byte {
	crc := CalculateCrc(data)
	return append(data, byte(crc), byte(crc>>8))
}
