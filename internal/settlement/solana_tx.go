package settlement

import (
	"crypto/ed25519"
	"encoding/binary"
)

// buildSignedTransferTx serializes and signs a minimal legacy Solana
// transaction carrying one System Program transfer instruction, matching
// the wire format a Solana validator's sendTransaction RPC expects:
// a compact array of signatures followed by the signed message (header,
// account keys, recent blockhash, instructions).
func buildSignedTransferTx(signer ed25519.PrivateKey, from, to [32]byte, lamports uint64, blockhash [32]byte) []byte {
	message := buildTransferMessage(from, to, lamports, blockhash)
	signature := ed25519.Sign(signer, message)

	var out []byte
	out = append(out, encodeCompactU16(1)...) // one required signature
	out = append(out, signature...)
	out = append(out, message...)
	return out
}

func buildTransferMessage(from, to [32]byte, lamports uint64, blockhash [32]byte) []byte {
	var msg []byte

	// Message header: 1 signer, 0 readonly-signed, 1 readonly-unsigned
	// (the system program account is readonly and unsigned).
	msg = append(msg, 1, 0, 1)

	accountKeys := [][32]byte{from, to, systemProgramID}
	msg = append(msg, encodeCompactU16(uint16(len(accountKeys)))...)
	for _, k := range accountKeys {
		msg = append(msg, k[:]...)
	}

	msg = append(msg, blockhash[:]...)

	// One instruction: program index 2 (system program), accounts [0, 1].
	msg = append(msg, encodeCompactU16(1)...)
	msg = append(msg, 2)                        // program_id_index
	msg = append(msg, encodeCompactU16(2)...)    // account indices count
	msg = append(msg, 0, 1)                      // from, to

	data := encodeTransferInstruction(lamports)
	msg = append(msg, encodeCompactU16(uint16(len(data)))...)
	msg = append(msg, data...)

	return msg
}

// encodeTransferInstruction builds the System Program Transfer
// instruction's borsh-encoded payload: a 4-byte little-endian variant
// index followed by an 8-byte little-endian lamports amount.
func encodeTransferInstruction(lamports uint64) []byte {
	buf := make([]byte, 12)
	binary.LittleEndian.PutUint32(buf[0:4], transferInstructionIndex)
	binary.LittleEndian.PutUint64(buf[4:12], lamports)
	return buf
}

// encodeCompactU16 implements Solana's shortvec length-prefix encoding:
// 7 bits per byte, high bit set on every byte but the last.
func encodeCompactU16(n uint16) []byte {
	var out []byte
	for {
		b := byte(n & 0x7f)
		n >>= 7
		if n != 0 {
			out = append(out, b|0x80)
		} else {
			out = append(out, b)
			break
		}
	}
	return out
}
