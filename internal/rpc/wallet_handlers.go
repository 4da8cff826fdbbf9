package rpc

import (
	"fmt"

	"github.com/Klingon-tech/klingnet-ledger/internal/wallet"
)

// walletDisabled is returned when no keystore is configured.
func walletDisabled() *Error {
	return &Error{Code: CodeNotFound, Message: "wallet RPC disabled (no keystore configured)"}
}

// handleWalletCreate creates a new wallet and returns its mnemonic and
// first receiving address. The mnemonic is shown exactly once.
func (s *Server) handleWalletCreate(req *Request) (interface{}, *Error) {
	if s.keystore == nil {
		return nil, walletDisabled()
	}
	var params WalletCreateParam
	if errp := parseParams(req, &params); errp != nil {
		return nil, errp
	}
	if params.Name == "" || params.Password == "" {
		return nil, &Error{Code: CodeInvalidParams, Message: "name and password required"}
	}

	mnemonic, err := wallet.GenerateMnemonic()
	if err != nil {
		return nil, &Error{Code: CodeInternalError, Message: err.Error()}
	}
	addr, errp := s.setupWallet(params.Name, params.Password, mnemonic)
	if errp != nil {
		return nil, errp
	}
	return WalletCreateResult{Mnemonic: mnemonic, Address: addr}, nil
}

// handleWalletImport restores a wallet from an existing mnemonic.
func (s *Server) handleWalletImport(req *Request) (interface{}, *Error) {
	if s.keystore == nil {
		return nil, walletDisabled()
	}
	var params WalletImportParam
	if errp := parseParams(req, &params); errp != nil {
		return nil, errp
	}
	if params.Name == "" || params.Password == "" {
		return nil, &Error{Code: CodeInvalidParams, Message: "name and password required"}
	}
	if !wallet.ValidateMnemonic(params.Mnemonic) {
		return nil, &Error{Code: CodeInvalidParams, Message: "invalid mnemonic"}
	}

	addr, errp := s.setupWallet(params.Name, params.Password, params.Mnemonic)
	if errp != nil {
		return nil, errp
	}
	return WalletImportResult{Address: addr}, nil
}

// setupWallet encrypts the seed, stores the wallet file and derives the
// first external address.
func (s *Server) setupWallet(name, password, mnemonic string) (string, *Error) {
	seed, err := wallet.SeedFromMnemonic(mnemonic, "")
	if err != nil {
		return "", &Error{Code: CodeInternalError, Message: err.Error()}
	}
	if err := s.keystore.Create(name, seed, []byte(password), wallet.DefaultParams()); err != nil {
		return "", &Error{Code: CodeInvalidParams, Message: err.Error()}
	}

	master, err := wallet.NewMasterKey(seed)
	if err != nil {
		return "", &Error{Code: CodeInternalError, Message: err.Error()}
	}
	key, err := master.DeriveAddress(0, wallet.ChangeExternal, 0)
	if err != nil {
		return "", &Error{Code: CodeInternalError, Message: err.Error()}
	}
	addr := key.Address().String()

	if err := s.keystore.AddAccount(name, wallet.AccountEntry{
		Index:   0,
		Change:  wallet.ChangeExternal,
		Name:    "Default",
		Address: addr,
	}); err != nil {
		return "", &Error{Code: CodeInternalError, Message: err.Error()}
	}
	if err := s.keystore.SetExternalIndex(name, 1); err != nil {
		return "", &Error{Code: CodeInternalError, Message: err.Error()}
	}
	return addr, nil
}

// handleWalletList returns the names of all wallets in the keystore.
func (s *Server) handleWalletList(req *Request) (interface{}, *Error) {
	if s.keystore == nil {
		return nil, walletDisabled()
	}
	names, err := s.keystore.List()
	if err != nil {
		return nil, &Error{Code: CodeInternalError, Message: err.Error()}
	}
	return WalletListResult{Wallets: names}, nil
}

// handleWalletNewAddress derives the next external address for a wallet.
func (s *Server) handleWalletNewAddress(req *Request) (interface{}, *Error) {
	if s.keystore == nil {
		return nil, walletDisabled()
	}
	var params WalletNewAddressParam
	if errp := parseParams(req, &params); errp != nil {
		return nil, errp
	}

	seed, err := s.keystore.Load(params.Name, []byte(params.Password))
	if err != nil {
		return nil, &Error{Code: CodeInvalidParams, Message: err.Error()}
	}
	master, err := wallet.NewMasterKey(seed)
	if err != nil {
		return nil, &Error{Code: CodeInternalError, Message: err.Error()}
	}

	index, err := s.keystore.GetExternalIndex(params.Name)
	if err != nil {
		return nil, &Error{Code: CodeInternalError, Message: err.Error()}
	}
	key, err := master.DeriveAddress(0, wallet.ChangeExternal, index)
	if err != nil {
		return nil, &Error{Code: CodeInternalError, Message: err.Error()}
	}
	addr := key.Address().String()

	if err := s.keystore.AddAccount(params.Name, wallet.AccountEntry{
		Index:   index,
		Change:  wallet.ChangeExternal,
		Name:    fmt.Sprintf("Address %d", index),
		Address: addr,
	}); err != nil {
		return nil, &Error{Code: CodeInternalError, Message: err.Error()}
	}
	if err := s.keystore.IncrementExternalIndex(params.Name); err != nil {
		return nil, &Error{Code: CodeInternalError, Message: err.Error()}
	}

	return WalletAddressResult{Index: index, Address: addr}, nil
}

// handleWalletListAddresses returns all derived accounts for a wallet.
func (s *Server) handleWalletListAddresses(req *Request) (interface{}, *Error) {
	if s.keystore == nil {
		return nil, walletDisabled()
	}
	var params struct {
		Name string `json:"name"`
	}
	if errp := parseParams(req, &params); errp != nil {
		return nil, errp
	}

	accounts, err := s.keystore.ListAccounts(params.Name)
	if err != nil {
		return nil, &Error{Code: CodeInvalidParams, Message: err.Error()}
	}

	entries := make([]WalletAccountEntry, len(accounts))
	for i, a := range accounts {
		entries[i] = WalletAccountEntry{
			Index:   a.Index,
			Change:  a.Change,
			Name:    a.Name,
			Address: a.Address,
		}
	}
	return WalletAddressListResult{Accounts: entries}, nil
}
