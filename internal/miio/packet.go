// Package miio implements the Xiaomi miIO LAN protocol used by Yeelight and
// Mi Home lighting devices: UDP datagrams with a fixed 32-byte header and an
// AES-128-CBC encrypted JSON-RPC payload, keyed from the per-device token.
package miio

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/md5"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
)

// Protocol constants.
const (
	magic      = 0x2131
	headerSize = 32
)

// Packet decode errors.
var (
	ErrShortPacket  = errors.New("packet shorter than header")
	ErrBadMagic     = errors.New("bad packet magic")
	ErrBadChecksum  = errors.New("packet checksum mismatch")
	ErrBadPadding   = errors.New("bad payload padding")
	ErrTokenFormat  = errors.New("token must be 32 hex characters")
	ErrEmptyPayload = errors.New("packet has no payload")
)

// token is the 16-byte shared secret extracted from the Mi Home account.
type token [16]byte

// parseToken decodes the hex token from the configuration file.
func parseToken(s string) (token, error) {
	var t token
	if len(s) != 32 {
		return t, ErrTokenFormat
	}
	raw, err := hex.DecodeString(s)
	if err != nil {
		return t, fmt.Errorf("%w: %v", ErrTokenFormat, err)
	}
	copy(t[:], raw)
	return t, nil
}

// key derives the AES key and IV from the token:
// key = md5(token), iv = md5(key || token).
func (t token) key() (key, iv [16]byte) {
	key = md5.Sum(t[:])
	iv = md5.Sum(append(key[:], t[:]...))
	return key, iv
}

// packet is one decoded miIO datagram.
type packet struct {
	DeviceID uint32
	Stamp    uint32
	Payload  []byte // decrypted JSON, empty for hello/ack packets
}

// helloPacket returns the 32-byte discovery handshake datagram. The device
// answers with its device ID and current stamp, both required to address
// later packets.
func helloPacket() []byte {
	buf := make([]byte, headerSize)
	binary.BigEndian.PutUint16(buf[0:2], magic)
	binary.BigEndian.PutUint16(buf[2:4], headerSize)
	for i := 4; i < headerSize; i++ {
		buf[i] = 0xff
	}
	return buf
}

// encode builds an encrypted datagram for the given payload. The checksum
// is the md5 of the whole packet with the token standing in for the
// checksum field.
func (p packet) encode(t token) ([]byte, error) {
	enc, err := encrypt(p.Payload, t)
	if err != nil {
		return nil, err
	}

	total := headerSize + len(enc)
	buf := make([]byte, total)
	binary.BigEndian.PutUint16(buf[0:2], magic)
	binary.BigEndian.PutUint16(buf[2:4], uint16(total))
	// buf[4:8] stays zero for a regular packet
	binary.BigEndian.PutUint32(buf[8:12], p.DeviceID)
	binary.BigEndian.PutUint32(buf[12:16], p.Stamp)
	copy(buf[16:32], t[:])
	copy(buf[32:], enc)

	sum := md5.Sum(buf)
	copy(buf[16:32], sum[:])
	return buf, nil
}

// decodePacket parses and decrypts a received datagram. Hello responses
// carry no payload; their checksum field holds the device token and is not
// verified.
func decodePacket(data []byte, t token) (packet, error) {
	if len(data) < headerSize {
		return packet{}, ErrShortPacket
	}
	if binary.BigEndian.Uint16(data[0:2]) != magic {
		return packet{}, ErrBadMagic
	}

	length := int(binary.BigEndian.Uint16(data[2:4]))
	if length > len(data) {
		return packet{}, ErrShortPacket
	}
	data = data[:length]

	p := packet{
		DeviceID: binary.BigEndian.Uint32(data[8:12]),
		Stamp:    binary.BigEndian.Uint32(data[12:16]),
	}

	if length == headerSize {
		return p, nil
	}

	var sum [16]byte
	copy(sum[:], data[16:32])

	check := make([]byte, length)
	copy(check, data)
	copy(check[16:32], t[:])
	if md5.Sum(check) != sum {
		return packet{}, ErrBadChecksum
	}

	payload, err := decrypt(data[headerSize:], t)
	if err != nil {
		return packet{}, err
	}
	p.Payload = payload
	return p, nil
}

func encrypt(plain []byte, t token) ([]byte, error) {
	key, iv := t.key()
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, err
	}

	padded := pkcs7Pad(plain, aes.BlockSize)
	out := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv[:]).CryptBlocks(out, padded)
	return out, nil
}

func decrypt(enc []byte, t token) ([]byte, error) {
	if len(enc) == 0 {
		return nil, ErrEmptyPayload
	}
	if len(enc)%aes.BlockSize != 0 {
		return nil, ErrBadPadding
	}

	key, iv := t.key()
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, err
	}

	out := make([]byte, len(enc))
	cipher.NewCBCDecrypter(block, iv[:]).CryptBlocks(out, enc)
	return pkcs7Unpad(out, aes.BlockSize)
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	n := blockSize - len(data)%blockSize
	return append(data, bytes.Repeat([]byte{byte(n)}, n)...)
}

func pkcs7Unpad(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 || len(data)%blockSize != 0 {
		return nil, ErrBadPadding
	}
	n := int(data[len(data)-1])
	if n == 0 || n > blockSize || n > len(data) {
		return nil, ErrBadPadding
	}
	for _, b := range data[len(data)-n:] {
		if int(b) != n {
			return nil, ErrBadPadding
		}
	}
	return data[:len(data)-n], nil
}
