package oracle

import (
	"context"

	"github.com/ethereum/go-ethereum/rpc"

	"github.com/dynamiccoin/dmcd/pkg/core/types"
)

// RPCFeed queries a JSON-RPC price service. The service exposes a single
// method, "price", taking a unix timestamp and answering {time, price} with
// the price in thousandths of a USD.
type RPCFeed struct {
	client *rpc.Client
}

type priceResult struct {
	Time  int64 `json:"time"`
	Price int64 `json:"price"`
}

// DialFeed connects to the price service at url.
func DialFeed(ctx context.Context, url string) (*RPCFeed, error) {
	c, err := rpc.DialContext(ctx, url)
	if err != nil {
		return nil, err
	}
	return &RPCFeed{client: c}, nil
}

func (f *RPCFeed) Price(ctx context.Context, ts int64) (Quote, error) {
	var res priceResult
	if err := f.client.CallContext(ctx, &res, "price", ts); err != nil {
		return Quote{}, err
	}
	return Quote{Time: res.Time, Price: types.Fiat(res.Price)}, nil
}

func (f *RPCFeed) Close() {
	f.client.Close()
}
