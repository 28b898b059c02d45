package bootstrap

import (
	"encoding/binary"
	"errors"

	"weave/block"
)

var ErrCorruptSnapshot = errors.New("corrupt bootstrap snapshot")

// Graph is the minimal consistent state a joining node needs: final blocks
// in slot order, then active blocks parent-before-child, plus the declared
// blockclique fitness used as a replay checksum.
type Graph struct {
	FinalBlocks        []*block.Block
	ActiveBlocks       []*block.Block
	BlockcliqueFitness uint64
}

// Marshal produces the deterministic wire form of the snapshot. Blocks use
// the canonical block codec, length-prefixed, so the encoding round-trips
// byte-exact.
func (g *Graph) Marshal() []byte {
	buf := make([]byte, 0, 4096)
	var u64 [8]byte
	binary.BigEndian.PutUint64(u64[:], g.BlockcliqueFitness)
	buf = append(buf, u64[:]...)
	for _, section := range [][]*block.Block{g.FinalBlocks, g.ActiveBlocks} {
		var u32 [4]byte
		binary.BigEndian.PutUint32(u32[:], uint32(len(section)))
		buf = append(buf, u32[:]...)
		for _, b := range section {
			enc := b.Marshal()
			binary.BigEndian.PutUint32(u32[:], uint32(len(enc)))
			buf = append(buf, u32[:]...)
			buf = append(buf, enc...)
		}
	}
	return buf
}

func Unmarshal(data []byte) (*Graph, error) {
	if len(data) < 8 {
		return nil, ErrCorruptSnapshot
	}
	g := &Graph{BlockcliqueFitness: binary.BigEndian.Uint64(data[:8])}
	off := 8
	for section := 0; section < 2; section++ {
		if off+4 > len(data) {
			return nil, ErrCorruptSnapshot
		}
		count := binary.BigEndian.Uint32(data[off : off+4])
		off += 4
		blocks := make([]*block.Block, 0, count)
		for i := uint32(0); i < count; i++ {
			if off+4 > len(data) {
				return nil, ErrCorruptSnapshot
			}
			n := int(binary.BigEndian.Uint32(data[off : off+4]))
			off += 4
			if off+n > len(data) {
				return nil, ErrCorruptSnapshot
			}
			b, err := block.Unmarshal(data[off : off+n])
			if err != nil {
				return nil, err
			}
			off += n
			blocks = append(blocks, b)
		}
		if section == 0 {
			g.FinalBlocks = blocks
		} else {
			g.ActiveBlocks = blocks
		}
	}
	if off != len(data) {
		return nil, ErrCorruptSnapshot
	}
	return g, nil
}
