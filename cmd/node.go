package cmd

import (
	"encoding/hex"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"weave/block"
	"weave/config"
	"weave/consensus"
	"weave/events"
	"weave/interfaces"
	"weave/jsonrpc"
	"weave/logx"
	"weave/monitoring"
	"weave/selection"
	"weave/store"
)

var (
	nodeGenesisPath string
	nodeTuningPath  string
	nodeDbPath      string
	nodeRPCAddr     string
	nodeMetricsAddr string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the consensus node",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runNode()
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().StringVar(&nodeGenesisPath, "genesis", "config/genesis.yml", "Genesis config file")
	runCmd.Flags().StringVar(&nodeTuningPath, "tuning", "", "Optional consensus.ini tuning file")
	runCmd.Flags().StringVar(&nodeDbPath, "db", "data/blocks.db", "Block store path")
	runCmd.Flags().StringVar(&nodeRPCAddr, "rpc", ":8899", "JSON-RPC listen address")
	runCmd.Flags().StringVar(&nodeMetricsAddr, "metrics", ":9100", "Prometheus listen address")
}

func runNode() error {
	cfg, err := config.LoadConsensusConfig(nodeGenesisPath, nodeTuningPath)
	if err != nil {
		return err
	}
	gen, err := config.LoadGenesisConfig(nodeGenesisPath)
	if err != nil {
		return err
	}

	genesis, err := buildGenesisBlocks(cfg, gen)
	if err != nil {
		return err
	}
	selector, err := buildSelector(gen)
	if err != nil {
		return err
	}

	bs, err := store.Open(nodeDbPath)
	if err != nil {
		return err
	}
	defer bs.Close()

	if err := monitoring.InitMetrics(); err != nil {
		return err
	}
	monitoring.StartMetricsServer(nodeMetricsAddr)

	deps := consensus.Deps{
		Selector: selector,
		Fitness:  selection.WeightedFitness(selector),
		Notifier: events.NewNotifier(cfg.NotificationBacklog),
		Store:    bs,
	}
	graph, err := consensus.NewBlockGraph(cfg, deps, genesis)
	if err != nil {
		return err
	}

	deps.Notifier.ForwardPool(&logPool{})

	worker := consensus.NewWorker(graph)
	worker.Start()
	defer worker.Stop()

	rpc := jsonrpc.NewServer(nodeRPCAddr, worker)
	rpc.Start()
	defer rpc.Stop()

	logx.Info("NODE", fmt.Sprintf("Node running: threads=%d t0=%dms rpc=%s", cfg.ThreadCount, cfg.T0Ms, nodeRPCAddr))

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logx.Info("NODE", "Shutting down")
	return nil
}

// logPool stands in for the operation pool until one is attached: it keeps
// the finalized subscription drained and logs progress.
type logPool struct{}

func (logPool) OnFinalized(h *block.BlockHeader, ops []block.OperationId) {
	logx.Info("NODE", fmt.Sprintf("Finalized %s with %d operations", h.Slot, len(ops)))
}

func (logPool) OnBlockcliqueChanged(members []block.BlockId) {
	logx.Debug("NODE", fmt.Sprintf("Blockclique now has %d members", len(members)))
}

// buildGenesisBlocks derives the per-thread genesis blocks from the genesis
// keys. A single key is reused across threads.
func buildGenesisBlocks(cfg *config.ConsensusConfig, gen *config.GenesisConfig) ([]*block.Block, error) {
	paths := gen.GenesisKeyPaths
	if len(paths) != 1 && len(paths) != int(cfg.ThreadCount) {
		return nil, fmt.Errorf("need 1 or %d genesis keys, got %d", cfg.ThreadCount, len(paths))
	}
	out := make([]*block.Block, cfg.ThreadCount)
	for t := uint8(0); t < cfg.ThreadCount; t++ {
		path := paths[0]
		if len(paths) > 1 {
			path = paths[t]
		}
		key, err := config.LoadEd25519PrivKey(path)
		if err != nil {
			return nil, err
		}
		out[t] = block.Genesis(t, key)
	}
	return out, nil
}

func buildSelector(gen *config.GenesisConfig) (interfaces.Selector, error) {
	if len(gen.Stakers) == 0 {
		logx.Warn("NODE", "No stakers configured, accepting every producer")
		return selection.AnySelector{}, nil
	}
	ss := selection.NewStakeSelector()
	for _, st := range gen.Stakers {
		pub, err := hex.DecodeString(st.PubKey)
		if err != nil || len(pub) != 32 {
			return nil, fmt.Errorf("staker pubkey %q is not 32 hex bytes", st.PubKey)
		}
		ss.AddStaker(pub, st.Weight)
	}
	return ss, nil
}
