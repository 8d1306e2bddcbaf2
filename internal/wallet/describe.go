package wallet

import (
	"math/big"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/shopspring/decimal"
)

// Transfer is a System Program transfer found in a transaction.
type Transfer struct {
	From     solana.PublicKey
	To       solana.PublicKey
	Lamports uint64
}

// Summary is what an Approver is shown before signing.
type Summary struct {
	FeePayer     solana.PublicKey
	Instructions int
	Transfers    []Transfer
}

// TotalSOL returns the sum of all transfers in SOL.
func (s Summary) TotalSOL() decimal.Decimal {
	total := decimal.Zero
	for _, t := range s.Transfers {
		total = total.Add(decimal.NewFromBigInt(new(big.Int).SetUint64(t.Lamports), -9))
	}
	return total
}

// Describe extracts the fee payer and native transfers from tx.
// Instructions that do not decode as a System transfer are counted but
// otherwise skipped.
func Describe(tx *solana.Transaction) Summary {
	msg := tx.Message

	var s Summary
	if len(msg.AccountKeys) > 0 {
		s.FeePayer = msg.AccountKeys[0]
	}
	s.Instructions = len(msg.Instructions)

	for i := range msg.Instructions {
		if t, ok := decodeTransfer(&msg, &msg.Instructions[i]); ok {
			s.Transfers = append(s.Transfers, t)
		}
	}
	return s
}

func decodeTransfer(msg *solana.Message, ix *solana.CompiledInstruction) (Transfer, bool) {
	program, err := msg.Program(ix.ProgramIDIndex)
	if err != nil || !program.Equals(solana.SystemProgramID) {
		return Transfer{}, false
	}
	for _, idx := range ix.Accounts {
		if int(idx) >= len(msg.AccountKeys) {
			return Transfer{}, false
		}
	}

	accounts, err := ix.ResolveInstructionAccounts(msg)
	if err != nil {
		return Transfer{}, false
	}
	inst, err := system.DecodeInstruction(accounts, ix.Data)
	if err != nil {
		return Transfer{}, false
	}

	transfer, ok := inst.Impl.(*system.Transfer)
	if !ok || transfer.Lamports == nil || len(transfer.AccountMetaSlice) < 2 {
		return Transfer{}, false
	}
	return Transfer{
		From:     transfer.GetFundingAccount().PublicKey,
		To:       transfer.GetRecipientAccount().PublicKey,
		Lamports: *transfer.Lamports,
	}, true
}
