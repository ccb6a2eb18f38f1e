package deployer

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/Bidon15/dcipctl/internal/artifacts"
	"github.com/Bidon15/dcipctl/internal/config"
	"github.com/Bidon15/dcipctl/internal/signer"
	"github.com/Bidon15/dcipctl/internal/testchain"
)

var tokenArgs = []any{
	common.HexToAddress("0x6725F303b657a9451d8BA641348b6761A6CC7a17"),
	common.HexToAddress("0xDCDb52F336Ed4E0577F2Ab6b298269aaf20A1EC1"),
	common.HexToAddress("0xd3EaF9906a4FeE2d4334044559DF0579Fa65F253"),
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func loadArtifact(t *testing.T, name string) *artifacts.Artifact {
	t.Helper()
	a, err := artifacts.NewStore(testchain.WriteArtifacts(t, t.TempDir())).Load(name)
	require.NoError(t, err)
	return a
}

func newSimDeployer(t *testing.T, c *testchain.Chain, cfg Config) *Deployer {
	t.Helper()
	s := signer.NewLocalSigner(c.Key, c.ChainID)
	if cfg.PollInterval == 0 {
		cfg.PollInterval = 5 * time.Millisecond
	}
	return New(c.Client, NewKeySender(c.Client, s), cfg, discardLogger())
}

func TestDeploy_Simulated(t *testing.T) {
	c := testchain.New(t)
	d := newSimDeployer(t, c, Config{})
	ctx := context.Background()

	res, err := d.Deploy(ctx, loadArtifact(t, "DCIP"), tokenArgs...)
	require.NoError(t, err)
	assert.NotEqual(t, common.Address{}, res.Address)
	assert.Equal(t, c.Address, res.From)
	assert.NotZero(t, res.BlockNumber)
	assert.NotZero(t, res.GasUsed)

	code, err := c.Client.CodeAt(ctx, res.Address, nil)
	require.NoError(t, err)
	assert.NotEmpty(t, code)
}

func TestDeploy_TwiceGivesDistinctAddresses(t *testing.T) {
	c := testchain.New(t)
	d := newSimDeployer(t, c, Config{})
	a := loadArtifact(t, "DCIP")

	first, err := d.Deploy(context.Background(), a, tokenArgs...)
	require.NoError(t, err)
	second, err := d.Deploy(context.Background(), a, tokenArgs...)
	require.NoError(t, err)

	assert.NotEqual(t, first.Address, second.Address)
	assert.NotEqual(t, first.TxHash, second.TxHash)
}

func TestDeploy_WaitsForConfirmations(t *testing.T) {
	c := testchain.New(t)
	d := newSimDeployer(t, c, Config{Confirmations: 3})

	res, err := d.Deploy(context.Background(), loadArtifact(t, "Presale"))
	require.NoError(t, err)

	head, err := c.Client.BlockNumber(context.Background())
	require.NoError(t, err)
	assert.GreaterOrEqual(t, head, res.BlockNumber+3)
}

func TestDeploy_DryRunRevertSendsNothing(t *testing.T) {
	c := testchain.New(t)
	d := newSimDeployer(t, c, Config{})
	ctx := context.Background()

	_, err := d.Deploy(ctx, loadArtifact(t, "Reverter"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrReverted)

	var revert *RevertError
	require.True(t, errors.As(err, &revert))
	assert.True(t, revert.DryRun)
	assert.Equal(t, testchain.RevertReason, revert.Reason)
	assert.Equal(t, common.Hash{}, revert.TxHash)

	nonce, err := c.Client.PendingNonceAt(ctx, c.Address)
	require.NoError(t, err)
	assert.Zero(t, nonce)
}

func TestDeploy_OnChainRevertReason(t *testing.T) {
	c := testchain.New(t)
	d := newSimDeployer(t, c, Config{SkipDryRun: true})

	_, err := d.Deploy(context.Background(), loadArtifact(t, "Reverter"))
	require.Error(t, err)

	var revert *RevertError
	require.True(t, errors.As(err, &revert))
	assert.False(t, revert.DryRun)
	assert.NotEqual(t, common.Hash{}, revert.TxHash)
	assert.Equal(t, testchain.RevertReason, revert.Reason)
	assert.Contains(t, err.Error(), "boom")
}

func TestDryRun(t *testing.T) {
	c := testchain.New(t)
	d := newSimDeployer(t, c, Config{})

	assert.NoError(t, d.DryRun(context.Background(), loadArtifact(t, "DCIP"), tokenArgs...))
	assert.ErrorIs(t, d.DryRun(context.Background(), loadArtifact(t, "Reverter")), ErrReverted)
	assert.ErrorIs(t, d.DryRun(context.Background(), loadArtifact(t, "DCIP")), artifacts.ErrArgs)
}

func newMockDeployer(t *testing.T, cfg Config) (*Deployer, *testchain.MockClient) {
	t.Helper()
	client := new(testchain.MockClient)
	s, err := signer.NewFromHex(testchain.DevKey, big.NewInt(97))
	require.NoError(t, err)

	cfg.PollInterval = time.Millisecond
	return New(client, NewKeySender(client, s), cfg, discardLogger()), client
}

func TestDeploy_TimeoutBlocks(t *testing.T) {
	d, client := newMockDeployer(t, Config{SkipDryRun: true, TimeoutBlocks: 5, Gas: 100_000})

	client.On("SuggestGasPrice", mock.Anything).Return(big.NewInt(1_000_000_000), nil)
	client.On("PendingNonceAt", mock.Anything, mock.Anything).Return(uint64(0), nil)
	client.On("SendTransaction", mock.Anything, mock.Anything).Return(nil)
	client.On("TransactionReceipt", mock.Anything, mock.Anything).Return(nil, ethereum.NotFound)
	client.On("BlockNumber", mock.Anything).Return(uint64(100), nil).Times(3)
	client.On("BlockNumber", mock.Anything).Return(uint64(106), nil)

	_, err := d.Deploy(context.Background(), loadArtifact(t, "Presale"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTimeout)
	client.AssertNumberOfCalls(t, "SendTransaction", 1)
}

func TestDeploy_StalledNode(t *testing.T) {
	d, client := newMockDeployer(t, Config{
		SkipDryRun:    true,
		TimeoutBlocks: 5,
		Gas:           100_000,
		BlockTime:     2 * time.Millisecond,
		WaitSlack:     10 * time.Millisecond,
	})

	client.On("SuggestGasPrice", mock.Anything).Return(big.NewInt(1_000_000_000), nil)
	client.On("PendingNonceAt", mock.Anything, mock.Anything).Return(uint64(0), nil)
	client.On("SendTransaction", mock.Anything, mock.Anything).Return(nil)
	client.On("TransactionReceipt", mock.Anything, mock.Anything).Return(nil, ethereum.NotFound)
	client.On("BlockNumber", mock.Anything).Return(uint64(100), nil)

	_, err := d.Deploy(context.Background(), loadArtifact(t, "Presale"))
	require.ErrorIs(t, err, ErrTimeout)
	assert.Contains(t, err.Error(), "not included within 20ms")
	client.AssertNumberOfCalls(t, "SendTransaction", 1)
}

func TestDeploy_StalledConfirmations(t *testing.T) {
	d, client := newMockDeployer(t, Config{
		SkipDryRun:    true,
		Confirmations: 3,
		Gas:           100_000,
		BlockTime:     2 * time.Millisecond,
		WaitSlack:     10 * time.Millisecond,
	})

	receipt := &types.Receipt{
		Status:          types.ReceiptStatusSuccessful,
		BlockNumber:     big.NewInt(100),
		ContractAddress: common.HexToAddress("0x0000000000000000000000000000000000000d1c"),
	}
	client.On("SuggestGasPrice", mock.Anything).Return(big.NewInt(1_000_000_000), nil)
	client.On("PendingNonceAt", mock.Anything, mock.Anything).Return(uint64(0), nil)
	client.On("SendTransaction", mock.Anything, mock.Anything).Return(nil)
	client.On("TransactionReceipt", mock.Anything, mock.Anything).Return(receipt, nil)
	client.On("BlockNumber", mock.Anything).Return(uint64(100), nil)

	_, err := d.Deploy(context.Background(), loadArtifact(t, "Presale"))
	require.ErrorIs(t, err, ErrTimeout)
	assert.Contains(t, err.Error(), "block 103 not reached")
}

func TestDeploy_ContextCancelled(t *testing.T) {
	d, client := newMockDeployer(t, Config{SkipDryRun: true, Gas: 100_000})

	client.On("SuggestGasPrice", mock.Anything).Return(big.NewInt(1_000_000_000), nil)
	client.On("PendingNonceAt", mock.Anything, mock.Anything).Return(uint64(0), nil)
	client.On("SendTransaction", mock.Anything, mock.Anything).Return(nil)
	client.On("TransactionReceipt", mock.Anything, mock.Anything).Return(nil, ethereum.NotFound)
	client.On("BlockNumber", mock.Anything).Return(uint64(1), nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := d.Deploy(ctx, loadArtifact(t, "Presale"))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

type rpcDataError struct {
	msg  string
	data string
}

func (e *rpcDataError) Error() string          { return e.msg }
func (e *rpcDataError) ErrorCode() int         { return 3 }
func (e *rpcDataError) ErrorData() interface{} { return e.data }

// Error("boom")
const boomData = "0x08c379a0" +
	"0000000000000000000000000000000000000000000000000000000000000020" +
	"0000000000000000000000000000000000000000000000000000000000000004" +
	"626f6f6d00000000000000000000000000000000000000000000000000000000"

func TestDeploy_RevertedReceiptReplaysAtParentBlock(t *testing.T) {
	d, client := newMockDeployer(t, Config{SkipDryRun: true, Gas: 100_000})

	client.On("SuggestGasPrice", mock.Anything).Return(big.NewInt(1_000_000_000), nil)
	client.On("PendingNonceAt", mock.Anything, mock.Anything).Return(uint64(0), nil)
	client.On("SendTransaction", mock.Anything, mock.Anything).Return(nil)
	client.On("BlockNumber", mock.Anything).Return(uint64(41), nil)
	client.On("TransactionReceipt", mock.Anything, mock.Anything).Return(&types.Receipt{
		Status:      types.ReceiptStatusFailed,
		BlockNumber: big.NewInt(42),
	}, nil)
	client.On("CallContract", mock.Anything, mock.Anything, big.NewInt(41)).
		Return(nil, &rpcDataError{msg: "execution reverted: boom", data: boomData})

	_, err := d.Deploy(context.Background(), loadArtifact(t, "Presale"))

	var revert *RevertError
	require.True(t, errors.As(err, &revert))
	assert.Equal(t, "boom", revert.Reason)
	assert.False(t, revert.DryRun)
	client.AssertExpectations(t)
}

func TestDeploy_GasEstimationFallback(t *testing.T) {
	d, client := newMockDeployer(t, Config{SkipDryRun: true})

	client.On("SuggestGasPrice", mock.Anything).Return(big.NewInt(1_000_000_000), nil)
	client.On("EstimateGas", mock.Anything, mock.Anything).Return(uint64(0), errors.New("estimation failed"))
	client.On("PendingNonceAt", mock.Anything, mock.Anything).Return(uint64(7), nil)
	client.On("SendTransaction", mock.Anything, mock.MatchedBy(func(tx *types.Transaction) bool {
		return tx.Gas() == DefaultGasLimit && tx.Nonce() == 7 && tx.To() == nil
	})).Return(nil)
	client.On("BlockNumber", mock.Anything).Return(uint64(1), nil)
	client.On("TransactionReceipt", mock.Anything, mock.Anything).Return(&types.Receipt{
		Status:          types.ReceiptStatusSuccessful,
		BlockNumber:     big.NewInt(2),
		ContractAddress: common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3"),
	}, nil)

	res, err := d.Deploy(context.Background(), loadArtifact(t, "Presale"))
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3"), res.Address)
	client.AssertExpectations(t)
}

func TestGasPrice(t *testing.T) {
	tests := []struct {
		name       string
		configured *big.Int
		suggested  *big.Int
		want       *big.Int
	}{
		{name: "floor", suggested: big.NewInt(1_000_000_000), want: big.NewInt(2_000_000_000)},
		{name: "boosted", suggested: big.NewInt(10_000_000_000), want: big.NewInt(15_000_000_000)},
		{name: "configured", configured: big.NewInt(5), want: big.NewInt(5)},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			d, client := newMockDeployer(t, Config{GasPrice: tc.configured})
			if tc.suggested != nil {
				client.On("SuggestGasPrice", mock.Anything).Return(tc.suggested, nil)
			}

			got, err := d.gasPrice(context.Background())
			require.NoError(t, err)
			assert.Equal(t, 0, tc.want.Cmp(got), "got %s", got)
		})
	}
}

func TestNew_Defaults(t *testing.T) {
	d := New(nil, nil, Config{Confirmations: -1}, nil)
	assert.Equal(t, DefaultTimeoutBlocks, d.cfg.TimeoutBlocks)
	assert.Equal(t, 0, d.cfg.Confirmations)
	assert.Equal(t, DefaultPollInterval, d.cfg.PollInterval)
	assert.Equal(t, DefaultBlockTime, d.cfg.BlockTime)
	assert.Equal(t, config.DefaultNetworkCheckTimeout, d.cfg.WaitSlack)
	assert.Equal(t, DefaultTimeoutBlocks*DefaultBlockTime+config.DefaultNetworkCheckTimeout, d.cfg.waitBudget(DefaultTimeoutBlocks))
}

func TestConfigFromProfile(t *testing.T) {
	p := &config.NetworkProfile{
		NetworkID:     "97",
		Confirmations: 10,
		TimeoutBlocks: 200,
		SkipDryRun:    true,
		GasPrice:      "10000000000",

		NetworkCheckTimeout: 5 * time.Second,
	}
	cfg := ConfigFromProfile(p)
	assert.Equal(t, 10, cfg.Confirmations)
	assert.Equal(t, 200, cfg.TimeoutBlocks)
	assert.True(t, cfg.SkipDryRun)
	assert.Equal(t, "10000000000", cfg.GasPrice.String())
	assert.Equal(t, DefaultPollInterval, cfg.PollInterval)
	assert.Equal(t, DefaultBlockTime, cfg.BlockTime)
	assert.Equal(t, 5*time.Second, cfg.WaitSlack)

	local := ConfigFromProfile(&config.NetworkProfile{NetworkID: config.WildcardNetworkID})
	assert.Equal(t, DefaultLocalPollInterval, local.PollInterval)
	assert.Nil(t, local.GasPrice)
}

func TestNodeSender(t *testing.T) {
	raw := new(testchain.MockRaw)
	node := common.HexToAddress("0x90F8bf6A479f320ead074411a4B0e7944Ea8c9C1")
	txHash := common.HexToHash("0x01")

	raw.On("CallContext", mock.Anything, mock.Anything, "eth_accounts", mock.Anything).
		Run(func(args mock.Arguments) {
			*args.Get(1).(*[]common.Address) = []common.Address{node}
		}).Return(nil)
	raw.On("CallContext", mock.Anything, mock.Anything, "eth_sendTransaction", mock.Anything).
		Run(func(args mock.Arguments) {
			params := args.Get(3).([]any)
			require.Len(t, params, 1)
			sent := params[0].(sendTxArgs)
			assert.Equal(t, node, sent.From)
			assert.Equal(t, uint64(21000), uint64(sent.Gas))
			*args.Get(1).(*common.Hash) = txHash
		}).Return(nil)

	s, err := NewNodeSender(context.Background(), raw)
	require.NoError(t, err)
	assert.Equal(t, node, s.From())

	got, err := s.Send(context.Background(), Creation{Gas: 21000, Data: []byte{0x60}})
	require.NoError(t, err)
	assert.Equal(t, txHash, got)
}

func TestNodeSender_NoAccounts(t *testing.T) {
	raw := new(testchain.MockRaw)
	raw.On("CallContext", mock.Anything, mock.Anything, "eth_accounts", mock.Anything).Return(nil)

	_, err := NewNodeSender(context.Background(), raw)
	assert.ErrorIs(t, err, ErrNoAccounts)

	_, err = NewNodeSender(context.Background(), nil)
	assert.ErrorIs(t, err, ErrNoAccounts)
}
