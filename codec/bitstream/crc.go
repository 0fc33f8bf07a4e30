package bitstream

// Frame checksum parameters: CRC-8 with polynomial x^8+x^2+x+1 (0x07),
// initial value 0xFF, no reflection, no output xor.
const (
	crcPoly byte = 0x07
	crcInit byte = 0xFF
)

var crcTable = makeCRCTable()

func makeCRCTable() [256]byte {
	var t [256]byte
	for i := range t {
		c := byte(i)
		for b := 0; b < 8; b++ {
			if c&0x80 != 0 {
				c = c<<1 ^ crcPoly
			} else {
				c <<= 1
			}
		}
		t[i] = c
	}
	return t
}

// Checksum returns the CRC-8 of data.
func Checksum(data []byte) byte {
	c := crcInit
	for _, b := range data {
		c = crcTable[c^b]
	}
	return c
}
