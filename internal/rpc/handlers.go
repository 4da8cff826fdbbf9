package rpc

import (
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/Klingon-tech/klingnet-ledger/internal/escrow"
	"github.com/Klingon-tech/klingnet-ledger/internal/ledger"
	"github.com/Klingon-tech/klingnet-ledger/pkg/types"
)

// handleLedgerGetInfo returns instance identity and current ledger counters.
func (s *Server) handleLedgerGetInfo(req *Request) (interface{}, *Error) {
	outputCount, err := s.state.OutputCount()
	if err != nil {
		return nil, &Error{Code: CodeInternalError, Message: err.Error()}
	}
	depositCount, err := s.vault.Count()
	if err != nil {
		return nil, &Error{Code: CodeInternalError, Message: err.Error()}
	}
	return LedgerInfoResult{
		ChainID:       s.params.ChainID.String(),
		LedgerName:    s.params.LedgerName,
		FeeBase:       s.state.FeeBase(),
		OutputCount:   outputCount,
		NextOutputID:  s.state.NextID(),
		DepositCount:  depositCount,
		NextDepositID: s.vault.NextID(),
		SlotCap:       s.params.SlotCap,
	}, nil
}

// handleLedgerSubmitBatch decodes and executes one batch.
func (s *Server) handleLedgerSubmitBatch(req *Request) (interface{}, *Error) {
	var params SubmitBatchParam
	if errp := parseParams(req, &params); errp != nil {
		return nil, errp
	}

	batch, errp := decodeBatch(&params)
	if errp != nil {
		return nil, errp
	}

	if err := s.proc.Execute(batch); err != nil {
		return nil, batchError(err)
	}
	return SubmitBatchResult{Committed: true, FeeBase: s.state.FeeBase()}, nil
}

// handleUTXOGet returns the output at an id.
func (s *Server) handleUTXOGet(req *Request) (interface{}, *Error) {
	var params IDParam
	if errp := parseParams(req, &params); errp != nil {
		return nil, errp
	}
	out, err := s.state.GetOutput(params.ID)
	if err != nil {
		if errors.Is(err, ledger.ErrUnknownOrSpent) {
			return nil, &Error{Code: CodeNotFound, Message: err.Error()}
		}
		return nil, &Error{Code: CodeInternalError, Message: err.Error()}
	}
	return OutputResult{ID: out.ID, Owner: out.Owner.String(), Amount: out.Amount}, nil
}

// handleBitmapGetChunk returns one 256-bit claimed-deposit mask.
func (s *Server) handleBitmapGetChunk(req *Request) (interface{}, *Error) {
	var params ChunkParam
	if errp := parseParams(req, &params); errp != nil {
		return nil, errp
	}
	chunk, err := s.state.BitmapChunk(params.Index)
	if err != nil {
		return nil, &Error{Code: CodeInternalError, Message: err.Error()}
	}
	return ChunkResult{Index: params.Index, Mask: hex.EncodeToString(chunk[:])}, nil
}

// handleEscrowDeposit debits the owner's host account and escrows the
// payment. The debit is refunded if the vault rejects the deposit.
func (s *Server) handleEscrowDeposit(req *Request) (interface{}, *Error) {
	var params DepositParam
	if errp := parseParams(req, &params); errp != nil {
		return nil, errp
	}
	owner, err := types.ParseAddress(params.Owner)
	if err != nil {
		return nil, &Error{Code: CodeInvalidParams, Message: fmt.Sprintf("invalid owner: %v", err)}
	}

	if err := s.book.Debit(owner, params.Payment); err != nil {
		return nil, &Error{Code: CodeBatchRejected, Message: err.Error()}
	}
	rec, err := s.vault.Deposit(owner, params.Payment, params.Bounty)
	if err != nil {
		if crErr := s.book.Credit(owner, params.Payment); crErr != nil {
			s.logger.Error().Err(crErr).Str("owner", owner.String()).Msg("deposit refund failed")
		}
		return nil, &Error{Code: CodeBatchRejected, Message: err.Error()}
	}
	return depositResult(rec), nil
}

// handleEscrowGetDeposit returns the unclaimed record at an id.
func (s *Server) handleEscrowGetDeposit(req *Request) (interface{}, *Error) {
	var params IDParam
	if errp := parseParams(req, &params); errp != nil {
		return nil, errp
	}
	rec, err := s.vault.Get(params.ID)
	if err != nil {
		if errors.Is(err, escrow.ErrUnknownDeposit) {
			return nil, &Error{Code: CodeNotFound, Message: err.Error()}
		}
		return nil, &Error{Code: CodeInternalError, Message: err.Error()}
	}
	return depositResult(rec), nil
}

// handleHostGetBalance returns a host account balance.
func (s *Server) handleHostGetBalance(req *Request) (interface{}, *Error) {
	var params AddressParam
	if errp := parseParams(req, &params); errp != nil {
		return nil, errp
	}
	addr, err := types.ParseAddress(params.Address)
	if err != nil {
		return nil, &Error{Code: CodeInvalidParams, Message: fmt.Sprintf("invalid address: %v", err)}
	}
	balance, err := s.book.Balance(addr)
	if err != nil {
		return nil, &Error{Code: CodeInternalError, Message: err.Error()}
	}
	return BalanceResult{Address: addr.String(), Balance: balance}, nil
}

// decodeBatch converts wire params into a ledger batch.
func decodeBatch(params *SubmitBatchParam) (*ledger.Batch, *Error) {
	batch := &ledger.Batch{}

	if c := params.Claim; c != nil {
		sig, errp := decodeSignature("claim", c.Signature)
		if errp != nil {
			return nil, errp
		}
		batch.Claim = &ledger.Claim{
			Input:     c.Input,
			Price:     c.Price,
			Deposits:  c.Deposits,
			Signature: sig,
		}
	}

	batch.Transfers = make([]ledger.Transfer, len(params.Transfers))
	for i, t := range params.Transfers {
		dest, err := types.ParseAddress(t.Destination)
		if err != nil {
			return nil, &Error{Code: CodeInvalidParams, Message: fmt.Sprintf("transfer %d destination: %v", i, err)}
		}
		change, err := types.ParseAddress(t.Change)
		if err != nil {
			return nil, &Error{Code: CodeInvalidParams, Message: fmt.Sprintf("transfer %d change: %v", i, err)}
		}
		sig, errp := decodeSignature(fmt.Sprintf("transfer %d", i), t.Signature)
		if errp != nil {
			return nil, errp
		}
		batch.Transfers[i] = ledger.Transfer{
			Input0:      t.Input0,
			Input1:      t.Input1,
			Destination: dest,
			Change:      change,
			Amount:      t.Amount,
			Price:       t.Price,
			Signature:   sig,
		}
	}

	batch.Withdrawals = make([]ledger.Withdrawal, len(params.Withdrawals))
	for i, w := range params.Withdrawals {
		sig, errp := decodeSignature(fmt.Sprintf("withdrawal %d", i), w.Signature)
		if errp != nil {
			return nil, errp
		}
		batch.Withdrawals[i] = ledger.Withdrawal{
			Input:     w.Input,
			Price:     w.Price,
			Signature: sig,
		}
	}

	return batch, nil
}

func decodeSignature(what, sigHex string) ([]byte, *Error) {
	sig, err := hex.DecodeString(sigHex)
	if err != nil {
		return nil, &Error{Code: CodeInvalidParams, Message: fmt.Sprintf("%s signature: %v", what, err)}
	}
	return sig, nil
}

func depositResult(rec escrow.Record) DepositResult {
	return DepositResult{
		ID:     rec.ID,
		Amount: rec.Amount,
		Bounty: rec.Bounty,
		Owner:  rec.Owner.String(),
	}
}

// batchError maps a batch rejection onto a JSON-RPC error. Taxonomy errors
// become CodeBatchRejected so clients can distinguish a rejected batch from
// a server fault.
func batchError(err error) *Error {
	for _, sentinel := range []error{
		ledger.ErrUnknownOrSpent,
		ledger.ErrUnauthorized,
		ledger.ErrAlreadyClaimed,
		ledger.ErrInsufficientClaimFunds,
		ledger.ErrInsufficientInput,
		ledger.ErrSlotCapacity,
		ledger.ErrReentrantCall,
		ledger.ErrUnknownDeposit,
		escrow.ErrNotLedgerCaller,
	} {
		if errors.Is(err, sentinel) {
			return &Error{Code: CodeBatchRejected, Message: err.Error()}
		}
	}
	return &Error{Code: CodeInternalError, Message: err.Error()}
}
