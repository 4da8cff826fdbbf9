package rpc

// JSON-RPC 2.0 error codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
	CodeNotFound       = -32000
	CodeBatchRejected  = -32001
)

// Request is a JSON-RPC 2.0 request.
type Request struct {
	JSONRPC string      `json:"jsonrpc"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params"`
	ID      interface{} `json:"id"`
}

// Response is a JSON-RPC 2.0 response.
type Response struct {
	JSONRPC string      `json:"jsonrpc"`
	Result  interface{} `json:"result,omitempty"`
	Error   *Error      `json:"error,omitempty"`
	ID      interface{} `json:"id"`
}

// Error is a JSON-RPC 2.0 error object.
type Error struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// ── Ledger param/result types ───────────────────────────────────────────

// ClaimParam is the wire form of a deposit claim. Signatures are hex.
type ClaimParam struct {
	Input     uint64   `json:"input"`
	Price     uint64   `json:"price"`
	Deposits  []uint64 `json:"deposits"`
	Signature string   `json:"signature"`
}

// TransferParam is the wire form of a transfer. Input ids of 0 mean
// "no input"; addresses are bech32.
type TransferParam struct {
	Input0      uint64 `json:"input0"`
	Input1      uint64 `json:"input1"`
	Destination string `json:"destination"`
	Change      string `json:"change"`
	Amount      uint64 `json:"amount"`
	Price       uint64 `json:"price"`
	Signature   string `json:"signature"`
}

// WithdrawalParam is the wire form of a withdrawal.
type WithdrawalParam struct {
	Input     uint64 `json:"input"`
	Price     uint64 `json:"price"`
	Signature string `json:"signature"`
}

// SubmitBatchParam is used by ledger_submitBatch.
type SubmitBatchParam struct {
	Claim       *ClaimParam       `json:"claim,omitempty"`
	Transfers   []TransferParam   `json:"transfers"`
	Withdrawals []WithdrawalParam `json:"withdrawals"`
}

// SubmitBatchResult is returned by ledger_submitBatch.
type SubmitBatchResult struct {
	Committed bool   `json:"committed"`
	FeeBase   uint64 `json:"fee_base"`
}

// LedgerInfoResult is returned by ledger_getInfo.
type LedgerInfoResult struct {
	ChainID       string `json:"chain_id"`
	LedgerName    string `json:"ledger_name"`
	FeeBase       uint64 `json:"fee_base"`
	OutputCount   uint64 `json:"output_count"`
	NextOutputID  uint64 `json:"next_output_id"`
	DepositCount  uint64 `json:"deposit_count"`
	NextDepositID uint64 `json:"next_deposit_id"`
	SlotCap       uint64 `json:"slot_cap"`
}

// IDParam is used by endpoints that take a single numeric id.
type IDParam struct {
	ID uint64 `json:"id"`
}

// OutputResult is returned by utxo_get.
type OutputResult struct {
	ID     uint64 `json:"id"`
	Owner  string `json:"owner"`
	Amount uint64 `json:"amount"`
}

// ChunkParam is used by bitmap_getChunk.
type ChunkParam struct {
	Index uint64 `json:"index"`
}

// ChunkResult is returned by bitmap_getChunk. Mask is the 32-byte chunk
// hex-encoded, little bit first within each byte.
type ChunkResult struct {
	Index uint64 `json:"index"`
	Mask  string `json:"mask"`
}

// ── Escrow param/result types ───────────────────────────────────────────

// DepositParam is used by escrow_deposit. The payment is debited from the
// owner's host account.
type DepositParam struct {
	Owner   string `json:"owner"`
	Payment uint64 `json:"payment"`
	Bounty  uint64 `json:"bounty"`
}

// DepositResult describes one escrow record.
type DepositResult struct {
	ID     uint64 `json:"id"`
	Amount uint64 `json:"amount"`
	Bounty uint64 `json:"bounty"`
	Owner  string `json:"owner"`
}

// ── Host param/result types ─────────────────────────────────────────────

// AddressParam is used by host_getBalance.
type AddressParam struct {
	Address string `json:"address"`
}

// BalanceResult is returned by host_getBalance.
type BalanceResult struct {
	Address string `json:"address"`
	Balance uint64 `json:"balance"`
}

// ── Wallet param/result types ───────────────────────────────────────────

// WalletCreateParam is used by wallet_create.
type WalletCreateParam struct {
	Name     string `json:"name"`
	Password string `json:"password"`
}

// WalletImportParam is used by wallet_import.
type WalletImportParam struct {
	Name     string `json:"name"`
	Password string `json:"password"`
	Mnemonic string `json:"mnemonic"`
}

// WalletNewAddressParam is used by wallet_newAddress.
type WalletNewAddressParam struct {
	Name     string `json:"name"`
	Password string `json:"password"`
}

// WalletCreateResult is returned by wallet_create.
type WalletCreateResult struct {
	Mnemonic string `json:"mnemonic"`
	Address  string `json:"address"`
}

// WalletImportResult is returned by wallet_import.
type WalletImportResult struct {
	Address string `json:"address"`
}

// WalletListResult is returned by wallet_list.
type WalletListResult struct {
	Wallets []string `json:"wallets"`
}

// WalletAddressResult is returned by wallet_newAddress.
type WalletAddressResult struct {
	Index   uint32 `json:"index"`
	Address string `json:"address"`
}

// WalletAccountEntry describes a wallet account in RPC results.
type WalletAccountEntry struct {
	Index   uint32 `json:"index"`
	Change  uint32 `json:"change"` // 0=external, 1=internal
	Name    string `json:"name"`
	Address string `json:"address"`
}

// WalletAddressListResult is returned by wallet_listAddresses.
type WalletAddressListResult struct {
	Accounts []WalletAccountEntry `json:"accounts"`
}
