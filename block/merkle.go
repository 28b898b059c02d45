package block

import "golang.org/x/crypto/blake2b"

// OperationRoot computes the merkle root over the body's operation ids.
// Odd levels duplicate the last node. An empty body hashes to all zeroes.
func OperationRoot(ops []OperationId) [32]byte {
	if len(ops) == 0 {
		return [32]byte{}
	}
	level := make([][32]byte, len(ops))
	for i, op := range ops {
		level[i] = blake2b.Sum256(op[:])
	}
	for len(level) > 1 {
		if len(level)%2 == 1 {
			level = append(level, level[len(level)-1])
		}
		next := make([][32]byte, len(level)/2)
		for i := 0; i < len(level); i += 2 {
			var cat [64]byte
			copy(cat[:32], level[i][:])
			copy(cat[32:], level[i+1][:])
			next[i/2] = blake2b.Sum256(cat[:])
		}
		level = next
	}
	return level[0]
}
