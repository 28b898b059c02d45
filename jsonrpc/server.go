package jsonrpc

import (
	"context"
	"encoding/hex"
	"errors"
	"net/http"
	"time"

	"github.com/creachadair/jrpc2"
	"github.com/creachadair/jrpc2/handler"
	"github.com/creachadair/jrpc2/jhttp"

	"weave/block"
	"weave/consensus"
	"weave/exception"
	"weave/logx"
)

// JSON-RPC method name constants
const (
	MethodSubmitBlock    = "graph.submitblock"
	MethodGetBlockStatus = "graph.getblockstatus"
	MethodGetBlockclique = "graph.getblockclique"
	MethodGetBestParents = "graph.getbestparents"
	MethodGetLatestFinal = "graph.getlatestfinal"
	MethodHealthCheck    = "health.check"
)

// Server exposes the consensus worker over HTTP JSON-RPC.
type Server struct {
	addr   string
	worker *consensus.Worker
	srv    *http.Server
}

func NewServer(addr string, worker *consensus.Worker) *Server {
	return &Server{addr: addr, worker: worker}
}

func (s *Server) Start() {
	jh := jhttp.NewBridge(s.buildMethodMap(), &jhttp.BridgeOptions{Server: &jrpc2.ServerOptions{}})
	mux := http.NewServeMux()
	mux.Handle("/", jh)
	s.srv = &http.Server{Addr: s.addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	exception.SafeGo("jsonrpc-server", func() {
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logx.Error("JSONRPC", "RPC server stopped: ", err)
		}
	})
	logx.Info("JSONRPC", "RPC server listening on ", s.addr)
}

func (s *Server) Stop() {
	if s.srv != nil {
		_ = s.srv.Close()
	}
}

func (s *Server) buildMethodMap() handler.Map {
	return handler.Map{
		MethodSubmitBlock:    handler.New(s.rpcSubmitBlock),
		MethodGetBlockStatus: handler.New(s.rpcGetBlockStatus),
		MethodGetBlockclique: handler.New(s.rpcGetBlockclique),
		MethodGetBestParents: handler.New(s.rpcGetBestParents),
		MethodGetLatestFinal: handler.New(s.rpcGetLatestFinal),
		MethodHealthCheck:    handler.New(s.rpcHealthCheck),
	}
}

func (s *Server) rpcSubmitBlock(ctx context.Context, p submitBlockParams) (*submitBlockResult, error) {
	raw, err := hex.DecodeString(p.Block)
	if err != nil {
		return nil, jrpc2.Errorf(jrpc2.InvalidParams, "block is not valid hex")
	}
	b, err := block.Unmarshal(raw)
	if err != nil {
		return nil, jrpc2.Errorf(jrpc2.InvalidParams, "corrupt block encoding")
	}
	id, err := s.worker.SubmitAndWait(b)
	if err != nil {
		if errors.Is(err, consensus.ErrQueueFull) || errors.Is(err, consensus.ErrShutdown) {
			return nil, jrpc2.Errorf(jrpc2.InternalError, "%v", err)
		}
		return nil, jrpc2.Errorf(jrpc2.InvalidRequest, "%v", err)
	}
	st := s.worker.GetStatus(id)
	return &submitBlockResult{Id: id.String(), Status: st.State.String()}, nil
}

func (s *Server) rpcGetBlockStatus(ctx context.Context, p getBlockStatusParams) (*blockStatusResult, error) {
	id, err := parseBlockId(p.Id)
	if err != nil {
		return nil, jrpc2.Errorf(jrpc2.InvalidParams, "%v", err)
	}
	st := s.worker.GetStatus(id)
	out := &blockStatusResult{Id: p.Id, Status: st.State.String()}
	if st.State == consensus.DISCARDED {
		out.Reason = st.Reason.String()
	}
	return out, nil
}

func (s *Server) rpcGetBlockclique(ctx context.Context) (*blockcliqueResult, error) {
	var members []block.BlockId
	var fitness uint64
	err := s.worker.WithGraph(func(g *consensus.BlockGraph) {
		members = g.Blockclique()
		fitness = g.BlockcliqueFitness()
	})
	if err != nil {
		return nil, jrpc2.Errorf(jrpc2.InternalError, "%v", err)
	}
	return &blockcliqueResult{Members: formatIds(members), Fitness: fitness}, nil
}

func (s *Server) rpcGetBestParents(ctx context.Context) (*bestParentsResult, error) {
	return &bestParentsResult{Parents: formatIds(s.worker.BestParents())}, nil
}

func (s *Server) rpcGetLatestFinal(ctx context.Context) (*latestFinalResult, error) {
	out := &latestFinalResult{}
	err := s.worker.WithGraph(func(g *consensus.BlockGraph) {
		for _, sl := range g.LatestFinalSlots() {
			out.Slots = append(out.Slots, slotView{Period: sl.Period, Thread: sl.Thread})
		}
	})
	if err != nil {
		return nil, jrpc2.Errorf(jrpc2.InternalError, "%v", err)
	}
	return out, nil
}

func (s *Server) rpcHealthCheck(ctx context.Context) (*healthResult, error) {
	return &healthResult{Status: "ok"}, nil
}
