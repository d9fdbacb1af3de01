// Package checkpoint reads and writes trusted chain record snapshots so a
// node can start from a recent block instead of genesis.
//
// File format, one item per line:
//
//	TXT CHECKPOINTS 1
//	<signature count, always 0>
//	<record count>
//	<base64 compact record>...
package checkpoint

import (
	"bufio"
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"slices"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/dynamiccoin/dmcd/pkg/core/blockchain"
	"github.com/dynamiccoin/dmcd/pkg/core/types"
)

const magic = "TXT CHECKPOINTS 1"

// StartupSafety is subtracted from the requested time in Before so that a
// clock slightly off, or a block stamped early, still finds a checkpoint
// behind it.
const StartupSafety = 7 * 24 * time.Hour

var (
	ErrFormat   = errors.New("malformed checkpoint file")
	ErrSigned   = errors.New("signed checkpoint files are not supported")
	ErrEmpty    = errors.New("checkpoint file has no records")
	ErrMismatch = errors.New("block conflicts with checkpoint")
)

// Manager answers questions about a loaded checkpoint set.
type Manager struct {
	records  []*blockchain.ChainRecord // ascending block time
	byHeight map[int32]types.Hash
	dataHash types.Hash
}

// Load parses a checkpoint file.
func Load(r io.Reader) (*Manager, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	sc := bufio.NewScanner(bytes.NewReader(data))
	line := func() (string, bool) {
		if !sc.Scan() {
			return "", false
		}
		return strings.TrimSpace(sc.Text()), true
	}

	if l, ok := line(); !ok || l != magic {
		return nil, fmt.Errorf("%w: missing header", ErrFormat)
	}
	sigs, err := readCount(line)
	if err != nil {
		return nil, err
	}
	if sigs != 0 {
		return nil, fmt.Errorf("%w: %d signatures", ErrSigned, sigs)
	}
	n, err := readCount(line)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, ErrEmpty
	}
	// Every record takes at least one full base64 line.
	if n > len(data)/base64.StdEncoding.EncodedLen(blockchain.CompactRecordSize) {
		return nil, fmt.Errorf("%w: %d records claimed in %d bytes", ErrFormat, n, len(data))
	}

	m := &Manager{
		records:  make([]*blockchain.ChainRecord, 0, n),
		byHeight: make(map[int32]types.Hash, n),
		dataHash: chainhash.HashH(data),
	}
	for i := 0; i < n; i++ {
		l, ok := line()
		if !ok {
			return nil, fmt.Errorf("%w: %d of %d records present", ErrFormat, i, n)
		}
		raw, err := base64.StdEncoding.DecodeString(l)
		if err != nil {
			return nil, fmt.Errorf("%w: record %d: %v", ErrFormat, i, err)
		}
		rec, err := blockchain.RecordFromCompact(raw)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		m.records = append(m.records, rec)
		m.byHeight[rec.Height] = rec.Hash()
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	sort.SliceStable(m.records, func(i, j int) bool {
		return m.records[i].Header.Timestamp.Before(m.records[j].Header.Timestamp)
	})
	return m, nil
}

func readCount(line func() (string, bool)) (int, error) {
	l, ok := line()
	if !ok {
		return 0, fmt.Errorf("%w: truncated", ErrFormat)
	}
	n, err := strconv.Atoi(l)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: bad count %q", ErrFormat, l)
	}
	return n, nil
}

// Write encodes records in the checkpoint file format.
func Write(w io.Writer, records []*blockchain.ChainRecord) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintln(bw, magic)
	fmt.Fprintln(bw, 0)
	fmt.Fprintln(bw, len(records))
	for _, rec := range records {
		raw, err := rec.CompactBytes()
		if err != nil {
			return fmt.Errorf("checkpoint at height %d: %w", rec.Height, err)
		}
		fmt.Fprintln(bw, base64.StdEncoding.EncodeToString(raw))
	}
	return bw.Flush()
}

// Before returns the newest checkpoint stamped before t minus StartupSafety,
// or the oldest checkpoint if none is that old.
func (m *Manager) Before(t time.Time) *blockchain.ChainRecord {
	limit := t.Add(-StartupSafety)
	i := sort.Search(len(m.records), func(i int) bool {
		return !m.records[i].Header.Timestamp.Before(limit)
	})
	if i == 0 {
		return m.records[0]
	}
	return m.records[i-1]
}

// Check fails if a checkpoint exists at height and names a different block.
func (m *Manager) Check(hash types.Hash, height int32) error {
	want, ok := m.byHeight[height]
	if !ok || want == hash {
		return nil
	}
	return fmt.Errorf("%w: height %d is %s, got %s", ErrMismatch, height, want, hash)
}

// DataHash is the SHA-256 of the file as loaded, for comparing sets.
func (m *Manager) DataHash() types.Hash { return m.dataHash }

// Records returns the checkpoints in ascending time order.
func (m *Manager) Records() []*blockchain.ChainRecord {
	return append([]*blockchain.ChainRecord(nil), m.records...)
}

// Collect walks back from head and returns, oldest first, every record whose
// height is a multiple of interval. The walk ends at genesis or at the first
// ancestor that is not stored.
func Collect(get func(types.Hash) (*blockchain.ChainRecord, error), head *blockchain.ChainRecord, interval int32) ([]*blockchain.ChainRecord, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("checkpoint interval must be positive, got %d", interval)
	}
	var out []*blockchain.ChainRecord
	for rec := head; ; {
		if rec.Height%interval == 0 {
			out = append(out, rec)
		}
		if rec.Height == 0 {
			break
		}
		prev, err := rec.Prev(get)
		if errors.Is(err, blockchain.ErrRecordNotFound) {
			break
		}
		if err != nil {
			return nil, err
		}
		rec = prev
	}
	slices.Reverse(out)
	return out, nil
}
