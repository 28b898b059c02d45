package jsonrpc

import (
	"encoding/hex"
	"errors"

	"weave/block"
)

type submitBlockParams struct {
	Block string `json:"block"`
}

type submitBlockResult struct {
	Id     string `json:"id"`
	Status string `json:"status"`
}

type getBlockStatusParams struct {
	Id string `json:"id"`
}

type blockStatusResult struct {
	Id     string `json:"id"`
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
}

type blockcliqueResult struct {
	Members []string `json:"members"`
	Fitness uint64   `json:"fitness"`
}

type bestParentsResult struct {
	Parents []string `json:"parents"`
}

type slotView struct {
	Period uint64 `json:"period"`
	Thread uint8  `json:"thread"`
}

type latestFinalResult struct {
	Slots []slotView `json:"slots"`
}

type healthResult struct {
	Status string `json:"status"`
}

func parseBlockId(s string) (block.BlockId, error) {
	var id block.BlockId
	raw, err := hex.DecodeString(s)
	if err != nil || len(raw) != len(id) {
		return id, errors.New("id must be 32 hex-encoded bytes")
	}
	copy(id[:], raw)
	return id, nil
}

func formatIds(ids []block.BlockId) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}
