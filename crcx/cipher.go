package crcx

// baseKey is the fixed 16-byte key the reference implementation XORs
// against the address-derived IV before streaming. It happens to equal
// the well-known FIPS-197 AES-128 test key; this implementation is not AES
// and the coincidence is not exploited, just reproduced.
var baseKey = [16]byte{
	0x2B, 0x7E, 0x15, 0x16, 0x28, 0xAE, 0xD2, 0xA6,
	0xAB, 0xF7, 0x15, 0x88, 0x09, 0xCF, 0x4F, 0x3C,
}

func rotl1(b byte) byte {
	return b<<1 | b>>7
}

// deriveKey folds an 8-nibble address-derived IV into baseKey, producing
// the per-call keystream seed used by XORCrypt.
func deriveKey(address uint32) [16]byte {
	var iv [8]byte
	for i := 0; i < 8; i++ {
		iv[i] = byte((address >> (uint(i) * 4)) & 0xFF)
	}
	key := baseKey
	for i := 0; i < 16; i++ {
		key[i] ^= iv[i%8]
	}
	return key
}

// XORCrypt runs the reference stream cipher over data in place: bytes
// equal to 0xFF pass through untouched (and do not advance the
// keystream), every other byte is XORed against the current keystream
// byte, which is then rotated left by one bit. Calling it twice with the
// same address restores the original data as long as no byte enciphers to
// 0xFF; such a byte passes through the second call unchanged and leaves
// its keystream byte unrotated, so the round trip does not hold for it.
func XORCrypt(address uint32, data []byte) {
	key := deriveKey(address)
	for i := range data {
		if data[i] == 0xFF {
			continue
		}
		k := i % 16
		data[i] ^= key[k]
		key[k] = rotl1(key[k])
	}
}
