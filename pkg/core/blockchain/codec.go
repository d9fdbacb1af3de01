package blockchain

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math/big"

	"github.com/dynamiccoin/dmcd/pkg/core/types"
)

// Compact record layout, all integers big-endian:
//
//	chain work      12 bytes unsigned
//	height           4 bytes signed
//	has reward       4 bytes, 0 or 1
//	reward           8 bytes signed units, zero when absent
//	has supply       4 bytes, 0 or 1
//	chain supply    12 bytes unsigned, zero when absent
//	header          80 bytes
const (
	chainWorkBytes   = 12
	chainSupplyBytes = 12

	offHeight    = chainWorkBytes
	offHasReward = offHeight + 4
	offReward    = offHasReward + 4
	offHasSupply = offReward + 8
	offSupply    = offHasSupply + 4
	offHeader    = offSupply + chainSupplyBytes

	// CompactRecordSize is the encoded size of every record.
	CompactRecordSize = offHeader + types.HeaderSize
)

var (
	ErrEncodingOverflow = errors.New("value exceeds its compact encoding budget")
	ErrMalformedRecord  = errors.New("malformed compact record")
)

// SerializeCompact writes the fixed-size compact encoding of r to w.
func (r *ChainRecord) SerializeCompact(w io.Writer) error {
	b, err := r.CompactBytes()
	if err != nil {
		return err
	}
	_, err = w.Write(b)
	return err
}

// CompactBytes returns the compact encoding of r. Chain work or supply that
// is negative or wider than 96 bits fails with ErrEncodingOverflow.
func (r *ChainRecord) CompactBytes() ([]byte, error) {
	b := make([]byte, CompactRecordSize)
	if r.ChainWork == nil {
		return nil, fmt.Errorf("%w: chain work is missing", ErrMalformedRecord)
	}
	if err := putUnsigned(b[:offHeight], r.ChainWork); err != nil {
		return nil, fmt.Errorf("chain work: %w", err)
	}
	binary.BigEndian.PutUint32(b[offHeight:], uint32(r.Height))
	if r.Reward != nil {
		binary.BigEndian.PutUint32(b[offHasReward:], 1)
		binary.BigEndian.PutUint64(b[offReward:], uint64(*r.Reward))
	}
	if r.ChainSupply != nil {
		binary.BigEndian.PutUint32(b[offHasSupply:], 1)
		if err := putUnsigned(b[offSupply:offHeader], r.ChainSupply); err != nil {
			return nil, fmt.Errorf("chain supply: %w", err)
		}
	}
	var hdr bytes.Buffer
	if err := r.Header.Serialize(&hdr); err != nil {
		return nil, err
	}
	copy(b[offHeader:], hdr.Bytes())
	return b, nil
}

// DeserializeCompact reads one compact record from rd.
func DeserializeCompact(rd io.Reader) (*ChainRecord, error) {
	b := make([]byte, CompactRecordSize)
	if _, err := io.ReadFull(rd, b); err != nil {
		return nil, err
	}
	return RecordFromCompact(b)
}

// RecordFromCompact decodes a compact record. Decoding is strict: flags must
// be 0 or 1 and the value of an absent field must be all zero, so every
// accepted input re-encodes to the same bytes.
func RecordFromCompact(b []byte) (*ChainRecord, error) {
	if len(b) != CompactRecordSize {
		return nil, fmt.Errorf("%w: %d bytes, want %d", ErrMalformedRecord, len(b), CompactRecordSize)
	}
	r := &ChainRecord{
		ChainWork: new(big.Int).SetBytes(b[:offHeight]),
		Height:    int32(binary.BigEndian.Uint32(b[offHeight:])),
	}

	present, err := readFlag(b[offHasReward:offReward], b[offReward:offHasSupply], "reward")
	if err != nil {
		return nil, err
	}
	if present {
		v := types.CoinFromUnits(int64(binary.BigEndian.Uint64(b[offReward:])))
		r.Reward = &v
	}

	present, err = readFlag(b[offHasSupply:offSupply], b[offSupply:offHeader], "chain supply")
	if err != nil {
		return nil, err
	}
	if present {
		r.ChainSupply = new(big.Int).SetBytes(b[offSupply:offHeader])
	}

	if err := r.Header.Deserialize(bytes.NewReader(b[offHeader:])); err != nil {
		return nil, fmt.Errorf("%w: header: %v", ErrMalformedRecord, err)
	}
	return r, nil
}

// putUnsigned stores v big-endian in all of dst, so a 12-byte field holds
// values up to 2^96-1. Encoders that write a two's complement magnitude keep
// a sign bit and stop at 2^95-1; both read back the same for values below.
func putUnsigned(dst []byte, v *big.Int) error {
	if v.Sign() < 0 {
		return fmt.Errorf("%w: negative value %s", ErrEncodingOverflow, v)
	}
	if v.BitLen() > len(dst)*8 {
		return fmt.Errorf("%w: %s needs %d bits, have %d", ErrEncodingOverflow, v, v.BitLen(), len(dst)*8)
	}
	v.FillBytes(dst)
	return nil
}

func readFlag(flag, value []byte, field string) (bool, error) {
	switch binary.BigEndian.Uint32(flag) {
	case 0:
		for _, c := range value {
			if c != 0 {
				return false, fmt.Errorf("%w: absent %s has non-zero value", ErrMalformedRecord, field)
			}
		}
		return false, nil
	case 1:
		return true, nil
	default:
		return false, fmt.Errorf("%w: %s flag %d", ErrMalformedRecord, field, binary.BigEndian.Uint32(flag))
	}
}
