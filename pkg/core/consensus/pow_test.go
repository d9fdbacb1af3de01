package consensus

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/btcsuite/btcd/blockchain"
	"github.com/btcsuite/btcd/wire"
)

func TestCalcWork(t *testing.T) {
	tests := []struct {
		name string
		bits uint32
		want *big.Int
	}{
		{"bitcoin genesis", 0x1d00ffff, big.NewInt(0x100010001)},
		{"dmc pow limit", 0x1e00ffff, big.NewInt(16777472)},
		{"regtest limit", 0x207fffff, big.NewInt(2)},
		{"zero target", 0, big.NewInt(0)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CalcWork(tt.bits); got.Cmp(tt.want) != 0 {
				t.Errorf("CalcWork(%#x) = %s, want %s", tt.bits, got, tt.want)
			}
		})
	}
}

func TestCalcWorkMonotonic(t *testing.T) {
	// A harder (smaller) target always represents more work.
	easy := CalcWork(0x1e00ffff)
	hard := CalcWork(0x1d00ffff)
	if hard.Cmp(easy) <= 0 {
		t.Fatalf("work(0x1d00ffff)=%s should exceed work(0x1e00ffff)=%s", hard, easy)
	}
}

func TestCheckProofOfWork(t *testing.T) {
	limit := blockchain.CompactToBig(0x207fffff)
	h := &wire.BlockHeader{Version: 1, Bits: 0x207fffff, Timestamp: time.Unix(1469916001, 0)}
	if err := SolveHeader(context.Background(), h); err != nil {
		t.Fatalf("SolveHeader failed: %v", err)
	}
	if err := CheckProofOfWork(h, limit); err != nil {
		t.Fatalf("solved header rejected: %v", err)
	}

	// Claiming an easier target than the network allows.
	easier := *h
	easier.Bits = 0x2100ffff
	if err := CheckProofOfWork(&easier, limit); !errors.Is(err, ErrInvalidTarget) {
		t.Errorf("error = %v, want ErrInvalidTarget", err)
	}

	zero := *h
	zero.Bits = 0
	if err := CheckProofOfWork(&zero, limit); !errors.Is(err, ErrInvalidTarget) {
		t.Errorf("error = %v, want ErrInvalidTarget", err)
	}

	// A target of 1 cannot be met by any realistic hash.
	hard := *h
	hard.Bits = 0x03000001
	if err := CheckProofOfWork(&hard, limit); !errors.Is(err, ErrHighHash) {
		t.Errorf("error = %v, want ErrHighHash", err)
	}
}

func TestSolveHeaderCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// Unreachable target: the search has to stop on the context.
	h := &wire.BlockHeader{Version: 1, Bits: 0x03000001, Timestamp: time.Unix(1469916001, 0)}
	if err := SolveHeader(ctx, h); !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
}
