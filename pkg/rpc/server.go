package rpc

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/julienschmidt/httprouter"
	"github.com/rs/cors"

	"github.com/dynamiccoin/dmcd/pkg/config"
	"github.com/dynamiccoin/dmcd/pkg/core/blockchain"
	"github.com/dynamiccoin/dmcd/pkg/core/reward"
	"github.com/dynamiccoin/dmcd/pkg/core/types"
	"github.com/dynamiccoin/dmcd/pkg/oracle"
)

// Server is the read-only HTTP API over the chain head and reward engine.
type Server struct {
	params *config.NetworkParams
	chain  reward.ChainReader
	engine *reward.Engine
	log    log.Logger
}

func NewServer(params *config.NetworkParams, chain reward.ChainReader, engine *reward.Engine) *Server {
	return &Server{
		params: params,
		chain:  chain,
		engine: engine,
		log:    log.New("module", "http"),
	}
}

// Handler returns the routes wrapped in a permissive CORS policy.
func (s *Server) Handler() http.Handler {
	router := httprouter.New()
	router.GET("/status", s.handleStatus)
	router.GET("/supply", s.handleSupply)
	router.GET("/marketcap", s.handleMarketCap)
	router.GET("/reward", s.handleReward)
	router.GET("/price", s.handlePrice)
	router.GET("/targetprice", s.handleTargetPrice)
	router.GET("/record/:hash", s.handleRecord)

	return cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet},
	}).Handler(router)
}

// Serve listens on addr until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()
	s.log.Info("HTTP server started", "addr", ln.Addr())
	if err := srv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

type statusResponse struct {
	Network   string `json:"network"`
	Height    int32  `json:"height"`
	Hash      string `json:"hash"`
	Time      int64  `json:"time"`
	ChainWork string `json:"chainwork"`
}

// GET /status
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	head, err := s.chain.Head()
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, statusResponse{
		Network:   s.params.Name,
		Height:    head.Height,
		Hash:      head.Hash().String(),
		Time:      head.Header.Timestamp.Unix(),
		ChainWork: head.ChainWork.String(),
	})
}

// GET /supply
func (s *Server) handleSupply(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	supply, err := s.engine.TotalSupply()
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, map[string]types.Coin{"supply": supply})
}

// GET /marketcap
func (s *Server) handleMarketCap(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	mcap, err := s.engine.MarketCap(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, map[string]types.Fiat{"marketcap": mcap})
}

// GET /reward
func (s *Server) handleReward(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	current, err := s.engine.CurrentReward()
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, map[string]types.Coin{"reward": current})
}

type priceResponse struct {
	Time  int64      `json:"time"`
	Price types.Fiat `json:"price"`
	Stale bool       `json:"stale,omitempty"`
}

// GET /price
func (s *Server) handlePrice(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	q, err := s.engine.CurrentPrice(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, priceResponse{Time: q.Time, Price: q.Price, Stale: q.Stale})
}

// GET /targetprice
func (s *Server) handleTargetPrice(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	target, err := s.engine.CurrentTargetPrice()
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, map[string]types.Fiat{"targetprice": target})
}

type recordResponse struct {
	Hash      string      `json:"hash"`
	Height    int32       `json:"height"`
	ChainWork string      `json:"chainwork"`
	Reward    *types.Coin `json:"reward"`
	Supply    *string     `json:"supply"`
	Compact   string      `json:"compact"`
}

// GET /record/:hash
func (s *Server) handleRecord(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	hash, err := types.HashFromHex(ps.ByName("hash"))
	if err != nil {
		http.Error(w, "invalid block hash", http.StatusBadRequest)
		return
	}
	rec, err := s.chain.Get(hash)
	if err != nil {
		s.writeError(w, err)
		return
	}
	raw, err := rec.CompactBytes()
	if err != nil {
		s.writeError(w, err)
		return
	}
	resp := recordResponse{
		Hash:      rec.Hash().String(),
		Height:    rec.Height,
		ChainWork: rec.ChainWork.String(),
		Reward:    rec.Reward,
		Compact:   base64.StdEncoding.EncodeToString(raw),
	}
	if rec.ChainSupply != nil {
		supply := rec.ChainSupply.String()
		resp.Supply = &supply
	}
	writeJSON(w, resp)
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, blockchain.ErrRecordNotFound):
		status = http.StatusNotFound
	case errors.Is(err, blockchain.ErrSupplyIndeterminate), errors.Is(err, reward.ErrIndeterminateReward):
		status = http.StatusConflict
	case errors.Is(err, oracle.ErrUnavailable):
		status = http.StatusServiceUnavailable
	default:
		s.log.Warn("HTTP request failed", "err", err)
	}
	http.Error(w, err.Error(), status)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
