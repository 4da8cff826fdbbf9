// Package node wires the ledger daemon: storage, ledger state, escrow
// vault, host account book, batch processor and RPC server.
package node

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/Klingon-tech/klingnet-ledger/config"
	"github.com/Klingon-tech/klingnet-ledger/internal/escrow"
	"github.com/Klingon-tech/klingnet-ledger/internal/host"
	"github.com/Klingon-tech/klingnet-ledger/internal/ledger"
	klog "github.com/Klingon-tech/klingnet-ledger/internal/log"
	"github.com/Klingon-tech/klingnet-ledger/internal/rpc"
	"github.com/Klingon-tech/klingnet-ledger/internal/storage"
	"github.com/Klingon-tech/klingnet-ledger/internal/wallet"
	"github.com/Klingon-tech/klingnet-ledger/pkg/types"
)

// Node is a running ledger instance.
type Node struct {
	cfg    *config.Config
	params *config.Params

	db        storage.DB
	state     *ledger.State
	vault     *escrow.Vault
	book      *host.Book
	processor *ledger.Processor
	rpcServer *rpc.Server

	logger zerolog.Logger
}

// New builds a node from configuration. State, escrow and host accounts
// share one database under prefixed keyspaces.
func New(cfg *config.Config) (*Node, error) {
	if err := klog.Init(cfg.Log.Level, cfg.Log.JSON, cfg.Log.File); err != nil {
		return nil, fmt.Errorf("init logging: %w", err)
	}

	if cfg.Network == config.Testnet {
		types.SetAddressHRP(types.TestnetHRP)
	} else {
		types.SetAddressHRP(types.MainnetHRP)
	}

	params, err := loadParams(cfg)
	if err != nil {
		return nil, err
	}

	db, err := storage.NewBadger(cfg.LedgerDir())
	if err != nil {
		return nil, fmt.Errorf("open ledger database: %w", err)
	}

	n := &Node{
		cfg:    cfg,
		params: params,
		db:     db,
		logger: klog.WithComponent("node"),
	}

	ledgerDB := storage.NewPrefixDB(db, []byte("l/"))
	escrowDB := storage.NewPrefixDB(db, []byte("e/"))
	hostDB := storage.NewPrefixDB(db, []byte("h/"))

	n.state, err = ledger.Open(ledgerDB, params.InitialFeeBase)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("open ledger state: %w", err)
	}

	self := params.LedgerAddress()
	n.vault, err = escrow.OpenVault(escrowDB, self, klog.Escrow)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("open escrow vault: %w", err)
	}

	n.book = host.OpenBook(hostDB, self, klog.Host)
	if err := n.book.ApplyAlloc(params.Alloc); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply alloc: %w", err)
	}

	n.processor = ledger.NewProcessor(n.state, params, n.vault, n.book, db, self, klog.Ledger)

	if cfg.RPC.Enabled {
		addr := fmt.Sprintf("%s:%d", cfg.RPC.Addr, cfg.RPC.Port)
		n.rpcServer = rpc.New(addr, n.processor, n.state, n.vault, n.book, params, cfg.RPC)
		if cfg.Wallet.Enabled {
			ks, err := wallet.NewKeystore(cfg.KeystoreDir())
			if err != nil {
				db.Close()
				return nil, fmt.Errorf("open keystore: %w", err)
			}
			n.rpcServer.SetKeystore(ks)
		}
	}

	return n, nil
}

// loadParams resolves protocol parameters: an explicit params file wins,
// otherwise network defaults apply.
func loadParams(cfg *config.Config) (*config.Params, error) {
	if cfg.ParamsFile != "" {
		params, err := config.LoadParams(cfg.ParamsFile)
		if err != nil {
			return nil, err
		}
		return params, nil
	}
	return config.DefaultParams(cfg.Network), nil
}

// Start brings the node online.
func (n *Node) Start() error {
	n.logger.Info().
		Str("network", string(n.cfg.Network)).
		Str("ledger", n.params.LedgerName).
		Str("chain_id", n.params.ChainID.String()).
		Uint64("fee_base", n.state.FeeBase()).
		Msg("ledger node starting")

	if n.rpcServer != nil {
		if err := n.rpcServer.Start(); err != nil {
			return err
		}
		n.logger.Info().Str("addr", n.rpcServer.Addr()).Msg("RPC server listening")
	}
	return nil
}

// Stop shuts the node down, flushing the database.
func (n *Node) Stop() {
	if n.rpcServer != nil {
		if err := n.rpcServer.Stop(); err != nil {
			n.logger.Error().Err(err).Msg("RPC shutdown")
		}
	}
	if err := n.db.Close(); err != nil {
		n.logger.Error().Err(err).Msg("database close")
	}
	n.logger.Info().Msg("ledger node stopped")
}

// RPCAddr returns the bound RPC address, or "" when RPC is disabled.
func (n *Node) RPCAddr() string {
	if n.rpcServer == nil {
		return ""
	}
	return n.rpcServer.Addr()
}

// Processor exposes the batch processor (used by tests and tooling).
func (n *Node) Processor() *ledger.Processor {
	return n.processor
}
