package xrouter

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"fmt"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
)

const (
	hashSize      = 32
	signatureSize = 64
	pubkeySize    = 33
)

// Packet is a decoded XRouter wire message.
type Packet struct {
	Command     Command
	UTXOTxHash  [hashSize]byte
	UTXOVout    uint32
	Args        []string
	Signature   [signatureSize]byte
	Pubkey      [pubkeySize]byte
	signedRange []byte // raw bytes covered by the signature, cached by Decode
}

// Encode appends command, the UTXO preamble (for authenticated kinds) and
// the NUL-terminated string arguments, append-only. The caller passes a
// zero hash/vout for commands it does not yet know the stake UTXO for.
func Encode(cmd Command, utxoTxHash [hashSize]byte, utxoVout uint32, args ...string) []byte {
	var buf bytes.Buffer
	var cmdBuf [2]byte
	binary.LittleEndian.PutUint16(cmdBuf[:], uint16(cmd))
	buf.Write(cmdBuf[:])

	if cmd.IsAuthenticated() {
		buf.Write(utxoTxHash[:])
		var voutBuf [4]byte
		binary.LittleEndian.PutUint32(voutBuf[:], utxoVout)
		buf.Write(voutBuf[:])
	}

	for _, a := range args {
		buf.WriteString(a)
		buf.WriteByte(0)
	}
	return buf.Bytes()
}

// SigningDigest returns the digest covering command through the last
// argument, i.e. everything Sign/Verify operate over.
func SigningDigest(buf []byte) [32]byte {
	return sha256.Sum256(buf)
}

// Sign appends a 64-byte compact R||S signature and the 33-byte compressed
// pubkey to buf, covering buf's entire current contents: the signature
// covers the bytes from command through the last argument.
func Sign(buf []byte, priv *secp256k1.PrivateKey) []byte {
	digest := SigningDigest(buf)
	sig := ecdsa.Sign(priv, digest[:])

	out := make([]byte, len(buf), len(buf)+signatureSize+pubkeySize)
	copy(out, buf)

	r, s := sig.R(), sig.S()
	rb, sb := r.Bytes(), s.Bytes()
	var rsbuf [signatureSize]byte
	copy(rsbuf[:32], rb[:])
	copy(rsbuf[32:], sb[:])
	out = append(out, rsbuf[:]...)
	out = append(out, priv.PubKey().SerializeCompressed()...)
	return out
}

// cstring reads a NUL-terminated string starting at off. It fails with
// ErrMalformedPacket if no terminator is found within bounds.
func cstring(buf []byte, off int) (string, int, error) {
	for i := off; i < len(buf); i++ {
		if buf[i] == 0 {
			return string(buf[off:i]), i + 1, nil
		}
	}
	return "", 0, ErrMalformedPacket
}

// Decode parses a wire body into a Packet. It fails with ErrMalformedPacket
// if the buffer is shorter than the minimum header for the command kind, or
// if any expected string lacks a terminator within bounds.
func Decode(buf []byte) (*Packet, error) {
	if len(buf) < 2 {
		return nil, ErrMalformedPacket
	}
	cmd := Command(binary.LittleEndian.Uint16(buf[:2]))
	off := 2

	p := &Packet{Command: cmd}

	authenticated := cmd.IsAuthenticated()
	tailSize := 0
	if authenticated {
		if len(buf) < off+hashSize+4 {
			return nil, ErrMalformedPacket
		}
		copy(p.UTXOTxHash[:], buf[off:off+hashSize])
		off += hashSize
		p.UTXOVout = binary.LittleEndian.Uint32(buf[off : off+4])
		off += 4
		tailSize = signatureSize + pubkeySize
	}

	if len(buf) < off+tailSize {
		return nil, ErrMalformedPacket
	}
	argsEnd := len(buf) - tailSize
	p.signedRange = buf[:argsEnd]

	for off < argsEnd {
		s, next, err := cstring(buf[:argsEnd], off)
		if err != nil {
			return nil, err
		}
		p.Args = append(p.Args, s)
		off = next
	}
	if off != argsEnd {
		return nil, ErrMalformedPacket
	}

	if authenticated {
		copy(p.Signature[:], buf[argsEnd:argsEnd+signatureSize])
		copy(p.Pubkey[:], buf[argsEnd+signatureSize:argsEnd+signatureSize+pubkeySize])
	}

	return p, nil
}

// Verify recomputes the digest over the signed range and checks the
// signature against the embedded pubkey. It returns false on any failure,
// including a malformed embedded pubkey.
func Verify(p *Packet) bool {
	if !p.Command.IsAuthenticated() {
		return false
	}
	pub, err := secp256k1.ParsePubKey(p.Pubkey[:])
	if err != nil {
		return false
	}
	r := new(secp256k1.ModNScalar)
	s := new(secp256k1.ModNScalar)
	if r.SetByteSlice(p.Signature[:32]) {
		return false // overflow
	}
	if s.SetByteSlice(p.Signature[32:]) {
		return false
	}
	sig := ecdsa.NewSignature(r, s)
	digest := SigningDigest(p.signedRange)
	return sig.Verify(digest[:], pub)
}

// PubkeyHash160 is a placeholder name kept for readability at call sites;
// it delegates to the shared hash160 helper in blockreq.go.
func (p *Packet) PubkeyHash160() ([20]byte, error) {
	return hash160(p.Pubkey[:])
}

func (p *Packet) String() string {
	return fmt.Sprintf("Packet{cmd=%s args=%v}", p.Command, p.Args)
}
