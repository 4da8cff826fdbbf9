// Klingnet ledger command-line client.
//
// Queries a running klingnet-ledgerd over JSON-RPC and builds, signs and
// submits batches from a local wallet.
package main

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"golang.org/x/term"

	"github.com/Klingon-tech/klingnet-ledger/config"
	"github.com/Klingon-tech/klingnet-ledger/internal/ledger"
	"github.com/Klingon-tech/klingnet-ledger/internal/rpc"
	"github.com/Klingon-tech/klingnet-ledger/internal/rpcclient"
	"github.com/Klingon-tech/klingnet-ledger/internal/wallet"
	"github.com/Klingon-tech/klingnet-ledger/pkg/crypto"
	"github.com/Klingon-tech/klingnet-ledger/pkg/types"
)

func keystoreDir(dataDir, network string) string {
	return filepath.Join(dataDir, network, "keystore")
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	// Parse global flags that appear before the subcommand.
	rpcURL := "http://127.0.0.1:8545"
	dataDir := config.DefaultDataDir()
	network := "mainnet"
	paramsFile := ""

	args := os.Args[1:]
	for len(args) > 0 {
		switch {
		case args[0] == "--rpc" && len(args) > 1:
			rpcURL = args[1]
			args = args[2:]
		case strings.HasPrefix(args[0], "--rpc="):
			rpcURL = args[0][len("--rpc="):]
			args = args[1:]
		case args[0] == "--datadir" && len(args) > 1:
			dataDir = args[1]
			args = args[2:]
		case strings.HasPrefix(args[0], "--datadir="):
			dataDir = args[0][len("--datadir="):]
			args = args[1:]
		case args[0] == "--network" && len(args) > 1:
			network = args[1]
			args = args[2:]
		case strings.HasPrefix(args[0], "--network="):
			network = args[0][len("--network="):]
			args = args[1:]
		case args[0] == "--params" && len(args) > 1:
			paramsFile = args[1]
			args = args[2:]
		case strings.HasPrefix(args[0], "--params="):
			paramsFile = args[0][len("--params="):]
			args = args[1:]
		default:
			goto dispatch
		}
	}

dispatch:
	// Set address HRP based on network.
	if network == "testnet" {
		types.SetAddressHRP(types.TestnetHRP)
	} else {
		types.SetAddressHRP(types.MainnetHRP)
	}

	if len(args) == 0 {
		usage()
		os.Exit(1)
	}

	ksDir := keystoreDir(dataDir, network)
	client := rpcclient.New(rpcURL)
	cmd := args[0]
	cmdArgs := args[1:]

	switch cmd {
	case "status":
		cmdStatus(client)
	case "utxo":
		cmdUTXO(client, cmdArgs)
	case "chunk":
		cmdChunk(client, cmdArgs)
	case "balance":
		cmdBalance(client, cmdArgs)
	case "deposit":
		cmdDeposit(client, cmdArgs)
	case "deposit-info":
		cmdDepositInfo(client, cmdArgs)
	case "transfer":
		cmdTransfer(client, cmdArgs, ksDir, network, paramsFile)
	case "withdraw":
		cmdWithdraw(client, cmdArgs, ksDir, network, paramsFile)
	case "claim":
		cmdClaim(client, cmdArgs, ksDir, network, paramsFile)
	case "wallet":
		cmdWallet(client, cmdArgs)
	case "help", "--help", "-h":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, `Klingnet ledger CLI

Usage:
  ledger-cli [global flags] <command> [args]

Global flags:
  --rpc <url>         RPC endpoint (default http://127.0.0.1:8545)
  --datadir <dir>     Data directory (default platform-specific)
  --network <name>    mainnet or testnet (default mainnet)
  --params <file>     Protocol params JSON (default network built-ins)

Query commands:
  status                          Ledger info and fee base
  utxo <id>                       Look up an output by id
  chunk <index>                   Claimed-deposit bitmap chunk
  balance <address>               Host account balance
  deposit-info <id>               Escrow record by id

State-changing commands:
  deposit <owner> <payment> <bounty>
                                  Escrow a payment from a host account
  transfer --wallet <name> --index <n> --input0 <id> [--input1 <id>]
           --to <addr> --amount <n> --price <n> [--change <addr>]
                                  Sign and submit a transfer batch
  withdraw --wallet <name> --index <n> --input <id> --price <n>
                                  Sign and submit a withdrawal batch
  claim    --wallet <name> --index <n> --input <id> --price <n>
           --deposits <id,id,...> Sign and submit a deposit claim

Wallet commands (served by the node):
  wallet create <name>            Create a wallet, print its mnemonic
  wallet import <name>            Restore a wallet from a mnemonic
  wallet list                     List wallets
  wallet newaddress <name>        Derive the next receiving address
  wallet addresses <name>         List derived addresses
`)
}

// ── Query commands ──────────────────────────────────────────────────────

func cmdStatus(client *rpcclient.Client) {
	var info rpc.LedgerInfoResult
	if err := client.Call("ledger_getInfo", nil, &info); err != nil {
		fatal("ledger_getInfo: %v", err)
	}
	fmt.Printf("Ledger:        %s\n", info.LedgerName)
	fmt.Printf("Chain ID:      %s\n", info.ChainID)
	fmt.Printf("Fee base:      %d\n", info.FeeBase)
	fmt.Printf("Outputs:       %d (next id %d)\n", info.OutputCount, info.NextOutputID)
	fmt.Printf("Deposits:      %d unclaimed (next id %d)\n", info.DepositCount, info.NextDepositID)
	fmt.Printf("Slot cap:      %d\n", info.SlotCap)
}

func cmdUTXO(client *rpcclient.Client, args []string) {
	if len(args) != 1 {
		fatal("usage: utxo <id>")
	}
	id := parseUint(args[0], "id")
	var out rpc.OutputResult
	if err := client.Call("utxo_get", rpc.IDParam{ID: id}, &out); err != nil {
		fatal("utxo_get: %v", err)
	}
	fmt.Printf("Output %d\n", out.ID)
	fmt.Printf("  Owner:  %s\n", out.Owner)
	fmt.Printf("  Amount: %d\n", out.Amount)
}

func cmdChunk(client *rpcclient.Client, args []string) {
	if len(args) != 1 {
		fatal("usage: chunk <index>")
	}
	index := parseUint(args[0], "index")
	var chunk rpc.ChunkResult
	if err := client.Call("bitmap_getChunk", rpc.ChunkParam{Index: index}, &chunk); err != nil {
		fatal("bitmap_getChunk: %v", err)
	}
	fmt.Printf("Chunk %d: %s\n", chunk.Index, chunk.Mask)
}

func cmdBalance(client *rpcclient.Client, args []string) {
	if len(args) != 1 {
		fatal("usage: balance <address>")
	}
	var result rpc.BalanceResult
	if err := client.Call("host_getBalance", rpc.AddressParam{Address: args[0]}, &result); err != nil {
		fatal("host_getBalance: %v", err)
	}
	fmt.Printf("%s: %d\n", result.Address, result.Balance)
}

func cmdDeposit(client *rpcclient.Client, args []string) {
	if len(args) != 3 {
		fatal("usage: deposit <owner> <payment> <bounty>")
	}
	params := rpc.DepositParam{
		Owner:   args[0],
		Payment: parseUint(args[1], "payment"),
		Bounty:  parseUint(args[2], "bounty"),
	}
	var rec rpc.DepositResult
	if err := client.Call("escrow_deposit", params, &rec); err != nil {
		fatal("escrow_deposit: %v", err)
	}
	fmt.Printf("Deposit %d escrowed\n", rec.ID)
	fmt.Printf("  Amount: %d\n", rec.Amount)
	fmt.Printf("  Bounty: %d\n", rec.Bounty)
	fmt.Printf("  Owner:  %s\n", rec.Owner)
}

func cmdDepositInfo(client *rpcclient.Client, args []string) {
	if len(args) != 1 {
		fatal("usage: deposit-info <id>")
	}
	id := parseUint(args[0], "id")
	var rec rpc.DepositResult
	if err := client.Call("escrow_getDeposit", rpc.IDParam{ID: id}, &rec); err != nil {
		fatal("escrow_getDeposit: %v", err)
	}
	fmt.Printf("Deposit %d\n", rec.ID)
	fmt.Printf("  Amount: %d\n", rec.Amount)
	fmt.Printf("  Bounty: %d\n", rec.Bounty)
	fmt.Printf("  Owner:  %s\n", rec.Owner)
}

// ── Batch commands ──────────────────────────────────────────────────────

// batchFlags holds the common signing flags of transfer/withdraw/claim.
type batchFlags struct {
	wallet string
	index  uint32
	values map[string]string
}

func parseBatchFlags(args []string) *batchFlags {
	f := &batchFlags{values: make(map[string]string)}
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if !strings.HasPrefix(arg, "--") {
			fatal("unexpected argument %q", arg)
		}
		name, value, ok := strings.Cut(arg[2:], "=")
		if !ok {
			if i+1 >= len(args) {
				fatal("flag --%s requires a value", name)
			}
			i++
			value = args[i]
		}
		f.values[name] = value
	}
	f.wallet = f.values["wallet"]
	if f.wallet == "" {
		fatal("--wallet is required")
	}
	if idx, ok := f.values["index"]; ok {
		f.index = uint32(parseUint(idx, "index"))
	}
	return f
}

func (f *batchFlags) uint(name string, required bool) uint64 {
	v, ok := f.values[name]
	if !ok {
		if required {
			fatal("--%s is required", name)
		}
		return 0
	}
	return parseUint(v, name)
}

func (f *batchFlags) address(name string) (types.Address, bool) {
	v, ok := f.values[name]
	if !ok {
		return types.Address{}, false
	}
	addr, err := types.ParseAddress(v)
	if err != nil {
		fatal("--%s: %v", name, err)
	}
	return addr, true
}

// openSigner unlocks the wallet and derives the signing key at the
// requested external index.
func openSigner(ksDir, name string, index uint32) crypto.Signer {
	ks, err := wallet.NewKeystore(ksDir)
	if err != nil {
		fatal("open keystore: %v", err)
	}
	password, err := readPassword(fmt.Sprintf("Password for wallet %q: ", name))
	if err != nil {
		fatal("read password: %v", err)
	}
	seed, err := ks.Load(name, password)
	if err != nil {
		fatal("unlock wallet: %v", err)
	}
	master, err := wallet.NewMasterKey(seed)
	if err != nil {
		fatal("derive master key: %v", err)
	}
	key, err := master.DeriveAddress(0, wallet.ChangeExternal, index)
	if err != nil {
		fatal("derive key %d: %v", index, err)
	}
	signer, err := key.Signer()
	if err != nil {
		fatal("derive signer: %v", err)
	}
	return signer
}

// verifierFor builds the signing-digest verifier for the target instance.
func verifierFor(network, paramsFile string) *ledger.Verifier {
	var params *config.Params
	if paramsFile != "" {
		p, err := config.LoadParams(paramsFile)
		if err != nil {
			fatal("load params: %v", err)
		}
		params = p
	} else {
		params = config.DefaultParams(config.NetworkType(network))
	}
	return ledger.NewVerifier(params.DomainSeparator())
}

func cmdTransfer(client *rpcclient.Client, args []string, ksDir, network, paramsFile string) {
	f := parseBatchFlags(args)
	to, ok := f.address("to")
	if !ok {
		fatal("--to is required")
	}

	signer := openSigner(ksDir, f.wallet, f.index)
	change, hasChange := f.address("change")
	if !hasChange {
		change = signer.Address()
	}

	t := &ledger.Transfer{
		Input0:      f.uint("input0", true),
		Input1:      f.uint("input1", false),
		Destination: to,
		Change:      change,
		Amount:      f.uint("amount", true),
		Price:       f.uint("price", true),
	}
	v := verifierFor(network, paramsFile)
	if err := v.SignTransfer(signer, t); err != nil {
		fatal("sign: %v", err)
	}

	submitBatch(client, rpc.SubmitBatchParam{
		Transfers: []rpc.TransferParam{{
			Input0:      t.Input0,
			Input1:      t.Input1,
			Destination: t.Destination.String(),
			Change:      t.Change.String(),
			Amount:      t.Amount,
			Price:       t.Price,
			Signature:   fmt.Sprintf("%x", t.Signature),
		}},
	})
}

func cmdWithdraw(client *rpcclient.Client, args []string, ksDir, network, paramsFile string) {
	f := parseBatchFlags(args)
	signer := openSigner(ksDir, f.wallet, f.index)

	w := &ledger.Withdrawal{
		Input: f.uint("input", true),
		Price: f.uint("price", true),
	}
	v := verifierFor(network, paramsFile)
	if err := v.SignWithdrawal(signer, w); err != nil {
		fatal("sign: %v", err)
	}

	submitBatch(client, rpc.SubmitBatchParam{
		Withdrawals: []rpc.WithdrawalParam{{
			Input:     w.Input,
			Price:     w.Price,
			Signature: fmt.Sprintf("%x", w.Signature),
		}},
	})
}

func cmdClaim(client *rpcclient.Client, args []string, ksDir, network, paramsFile string) {
	f := parseBatchFlags(args)
	depositsArg, ok := f.values["deposits"]
	if !ok {
		fatal("--deposits is required")
	}
	var deposits []uint64
	for _, part := range strings.Split(depositsArg, ",") {
		deposits = append(deposits, parseUint(strings.TrimSpace(part), "deposits"))
	}

	signer := openSigner(ksDir, f.wallet, f.index)
	c := &ledger.Claim{
		Input:    f.uint("input", true),
		Price:    f.uint("price", true),
		Deposits: deposits,
	}
	v := verifierFor(network, paramsFile)
	if err := v.SignClaim(signer, c); err != nil {
		fatal("sign: %v", err)
	}

	submitBatch(client, rpc.SubmitBatchParam{
		Claim: &rpc.ClaimParam{
			Input:     c.Input,
			Price:     c.Price,
			Deposits:  c.Deposits,
			Signature: fmt.Sprintf("%x", c.Signature),
		},
	})
}

func submitBatch(client *rpcclient.Client, params rpc.SubmitBatchParam) {
	var result rpc.SubmitBatchResult
	if err := client.Call("ledger_submitBatch", params, &result); err != nil {
		fatal("ledger_submitBatch: %v", err)
	}
	fmt.Printf("Batch committed (fee base now %d)\n", result.FeeBase)
}

// ── Wallet commands ─────────────────────────────────────────────────────

func cmdWallet(client *rpcclient.Client, args []string) {
	if len(args) == 0 {
		fatal("usage: wallet <create|import|list|newaddress|addresses> [name]")
	}
	sub := args[0]
	subArgs := args[1:]

	switch sub {
	case "create":
		if len(subArgs) != 1 {
			fatal("usage: wallet create <name>")
		}
		password := mustReadPassword("New wallet password: ")
		var result rpc.WalletCreateResult
		err := client.Call("wallet_create", rpc.WalletCreateParam{
			Name:     subArgs[0],
			Password: string(password),
		}, &result)
		if err != nil {
			fatal("wallet_create: %v", err)
		}
		fmt.Printf("Wallet created. First address: %s\n\n", result.Address)
		fmt.Printf("Recovery mnemonic (write this down, shown once):\n  %s\n", result.Mnemonic)

	case "import":
		if len(subArgs) != 1 {
			fatal("usage: wallet import <name>")
		}
		fmt.Fprint(os.Stderr, "Mnemonic: ")
		var mnemonic string
		readLine(&mnemonic)
		password := mustReadPassword("New wallet password: ")
		var result rpc.WalletImportResult
		err := client.Call("wallet_import", rpc.WalletImportParam{
			Name:     subArgs[0],
			Password: string(password),
			Mnemonic: strings.TrimSpace(mnemonic),
		}, &result)
		if err != nil {
			fatal("wallet_import: %v", err)
		}
		fmt.Printf("Wallet imported. First address: %s\n", result.Address)

	case "list":
		var result rpc.WalletListResult
		if err := client.Call("wallet_list", struct{}{}, &result); err != nil {
			fatal("wallet_list: %v", err)
		}
		if len(result.Wallets) == 0 {
			fmt.Println("No wallets.")
			return
		}
		for _, name := range result.Wallets {
			fmt.Println(name)
		}

	case "newaddress":
		if len(subArgs) != 1 {
			fatal("usage: wallet newaddress <name>")
		}
		password := mustReadPassword("Wallet password: ")
		var result rpc.WalletAddressResult
		err := client.Call("wallet_newAddress", rpc.WalletNewAddressParam{
			Name:     subArgs[0],
			Password: string(password),
		}, &result)
		if err != nil {
			fatal("wallet_newAddress: %v", err)
		}
		fmt.Printf("Address %d: %s\n", result.Index, result.Address)

	case "addresses":
		if len(subArgs) != 1 {
			fatal("usage: wallet addresses <name>")
		}
		var result rpc.WalletAddressListResult
		err := client.Call("wallet_listAddresses", map[string]string{"name": subArgs[0]}, &result)
		if err != nil {
			fatal("wallet_listAddresses: %v", err)
		}
		for _, a := range result.Accounts {
			fmt.Printf("%4d  %s  %s\n", a.Index, a.Address, a.Name)
		}

	default:
		fatal("unknown wallet command: %s", sub)
	}
}

// ── Helpers ─────────────────────────────────────────────────────────────

func parseUint(s, what string) uint64 {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		fatal("invalid %s %q", what, s)
	}
	return v
}

func readLine(out *string) {
	scanner := bufio.NewScanner(os.Stdin)
	if !scanner.Scan() {
		fatal("read input: %v", scanner.Err())
	}
	*out = scanner.Text()
}

func readPassword(prompt string) ([]byte, error) {
	fmt.Fprint(os.Stderr, prompt)
	password, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(os.Stderr) // newline after hidden input
	if err != nil {
		return nil, err
	}
	return password, nil
}

func mustReadPassword(prompt string) []byte {
	password, err := readPassword(prompt)
	if err != nil {
		fatal("read password: %v", err)
	}
	return password
}

func fatal(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}
