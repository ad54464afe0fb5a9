package chain

import (
	"context"
	"fmt"
	"math"
	"math/big"
	"strconv"
	"time"

	"github.com/nspcc-dev/neo-go/pkg/config/netmode"
	"github.com/nspcc-dev/neo-go/pkg/core/transaction"
	"github.com/nspcc-dev/neo-go/pkg/smartcontract"
	"github.com/nspcc-dev/neo-go/pkg/util"
	"github.com/nspcc-dev/neo-go/pkg/wallet"

	"github.com/R3E-Network/cause_registry/internal/app/domain/cause"
	"github.com/R3E-Network/cause_registry/internal/app/metrics"
	"github.com/R3E-Network/cause_registry/internal/logging"
)

// GASHash is the script hash of the native GAS token.
var GASHash = util.Uint160{
	0xcf, 0x76, 0xe2, 0x8b, 0xd0, 0x06, 0x2c, 0x4a, 0x47, 0x8e,
	0xe3, 0x55, 0x61, 0x01, 0x13, 0x19, 0xf3, 0xcf, 0xa4, 0xd2,
}

const defaultValidBlocks = 100

// NEP17Forwarder pays donations out on chain with a NEP-17 transfer signed
// by the registry's custodial account. The donation's cause id travels as
// the transfer data argument. It does not charge the donor; the runtime
// wraps it in a gasbank.CustodyForwarder that debits the donor's balance
// first.
type NEP17Forwarder struct {
	client       *Client
	account      *wallet.Account
	token        util.Uint160
	validBlocks  uint32
	pollInterval time.Duration
	waitTimeout  time.Duration
	log          *logging.Logger
}

// NEP17Option configures a NEP17Forwarder.
type NEP17Option func(*NEP17Forwarder)

// WithWait sets how often and how long to wait for the transfer to execute.
func WithWait(pollInterval, timeout time.Duration) NEP17Option {
	return func(f *NEP17Forwarder) {
		if pollInterval > 0 {
			f.pollInterval = pollInterval
		}
		if timeout > 0 {
			f.waitTimeout = timeout
		}
	}
}

// WithValidBlocks sets how many blocks a transfer stays valid for.
func WithValidBlocks(n uint32) NEP17Option {
	return func(f *NEP17Forwarder) {
		if n > 0 {
			f.validBlocks = n
		}
	}
}

func NewNEP17Forwarder(client *Client, account *wallet.Account, token util.Uint160, log *logging.Logger, opts ...NEP17Option) *NEP17Forwarder {
	if log == nil {
		log = logging.New("chain", "info", "json")
	}
	f := &NEP17Forwarder{
		client:       client,
		account:      account,
		token:        token,
		validBlocks:  defaultValidBlocks,
		pollInterval: DefaultPollInterval,
		waitTimeout:  DefaultTxWaitTimeout,
		log:          log,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Sender returns the custodial account donations are paid from.
func (f *NEP17Forwarder) Sender() util.Uint160 {
	return f.account.ScriptHash()
}

// Forward transfers t.Amount of the token to t.To and waits for the
// transaction to execute. The receipt reference is the transaction hash.
func (f *NEP17Forwarder) Forward(ctx context.Context, t cause.Transfer) (cause.Receipt, error) {
	start := time.Now()
	hash, err := f.transfer(ctx, t)
	metrics.RecordForward("nep17", time.Since(start), err == nil)
	if err != nil {
		return cause.Receipt{}, err
	}

	f.log.WithContext(ctx).
		WithField("cause_id", t.CauseID).
		WithField("to", cause.FormatAddress(t.To)).
		WithField("amount", t.Amount).
		WithField("tx_hash", hash).
		Info("nep17 payout executed")
	return cause.Receipt{Reference: hash}, nil
}

func (f *NEP17Forwarder) transfer(ctx context.Context, t cause.Transfer) (string, error) {
	if t.Amount == 0 || t.Amount > math.MaxInt64 {
		return "", fmt.Errorf("transfer amount %d out of range", t.Amount)
	}
	from := f.account.ScriptHash()

	script, err := smartcontract.CreateCallWithAssertScript(f.token, "transfer",
		from, t.To, int64(t.Amount), int64(t.CauseID))
	if err != nil {
		return "", fmt.Errorf("build transfer script: %w", err)
	}

	signer := Signer{Account: "0x" + from.StringLE(), Scopes: "CalledByEntry"}
	dryRun, err := f.client.InvokeScript(ctx, script, []Signer{signer})
	if err != nil {
		return "", fmt.Errorf("transfer simulation failed: %w", err)
	}
	if dryRun.State != "HALT" {
		return "", fmt.Errorf("transfer simulation faulted: %s", dryRun.Exception)
	}
	sysFee, err := strconv.ParseInt(dryRun.GasConsumed, 10, 64)
	if err != nil {
		return "", fmt.Errorf("parse gas consumed %q: %w", dryRun.GasConsumed, err)
	}

	height, err := f.client.GetBlockCount(ctx)
	if err != nil {
		return "", fmt.Errorf("get block count: %w", err)
	}

	tx := transaction.New(script, sysFee)
	tx.ValidUntilBlock = height + f.validBlocks
	tx.Signers = []transaction.Signer{{Account: from, Scopes: transaction.CalledByEntry}}
	tx.Scripts = []transaction.Witness{{VerificationScript: f.account.Contract.Script}}

	netFee, err := f.client.CalculateNetworkFee(ctx, tx)
	if err != nil {
		return "", fmt.Errorf("calculate network fee: %w", err)
	}
	tx.NetworkFee = netFee

	if err := f.account.SignTx(netmode.Magic(f.client.NetworkID()), tx); err != nil {
		return "", fmt.Errorf("sign transfer: %w", err)
	}

	hash, err := f.client.SendRawTransaction(ctx, tx)
	if err != nil {
		return "", fmt.Errorf("broadcast transfer: %w", err)
	}

	wctx, cancel := context.WithTimeout(ctx, f.waitTimeout)
	defer cancel()
	appLog, err := f.client.WaitForApplicationLog(wctx, hash, f.pollInterval)
	if err != nil {
		return "", fmt.Errorf("wait for transfer %s: %w", hash, err)
	}
	if len(appLog.Executions) == 0 {
		return "", fmt.Errorf("transfer %s: empty application log", hash)
	}
	exec := appLog.Executions[0]
	if exec.VMState != "HALT" {
		return "", fmt.Errorf("transfer %s failed with state %s: %s", hash, exec.VMState, exec.Exception)
	}
	if err := f.checkTransferNotification(exec, t); err != nil {
		return "", fmt.Errorf("transfer %s: %w", hash, err)
	}
	return hash, nil
}

// checkTransferNotification verifies the token emitted a Transfer to the
// payout address for the full amount.
func (f *NEP17Forwarder) checkTransferNotification(exec Execution, t cause.Transfer) error {
	want := "0x" + f.token.StringLE()
	for _, n := range exec.Notifications {
		if n.EventName != "Transfer" || n.Contract != want {
			continue
		}
		items, err := ParseArray(n.State)
		if err != nil || len(items) != 3 {
			continue
		}
		to, err := ParseHash160(items[1])
		if err != nil || !to.Equals(t.To) {
			continue
		}
		amount, err := ParseInteger(items[2])
		if err != nil || amount.Cmp(new(big.Int).SetUint64(t.Amount)) != 0 {
			continue
		}
		return nil
	}
	return fmt.Errorf("no Transfer notification to %s for %d", cause.FormatAddress(t.To), t.Amount)
}

// Balance returns the token balance of the custodial account.
func (f *NEP17Forwarder) Balance(ctx context.Context) (*big.Int, error) {
	res, err := f.client.InvokeFunction(ctx, "0x"+f.token.StringLE(), "balanceOf",
		[]ContractParam{NewHash160Param("0x" + f.account.ScriptHash().StringLE())})
	if err != nil {
		return nil, err
	}
	if res.State != "HALT" || len(res.Stack) == 0 {
		return nil, fmt.Errorf("balanceOf faulted: %s", res.Exception)
	}
	return ParseInteger(res.Stack[0])
}
