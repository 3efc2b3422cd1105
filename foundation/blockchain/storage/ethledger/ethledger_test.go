package ethledger

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/ardanlabs/powchain/foundation/blockchain/chain"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testContract = "0x5FbDB2315678afecb367f032d93F642f64180aa3"
	testKey      = "0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcaf784d7bf4f2ff80"
	testAccount  = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"
	testChainID  = 1337
)

var record = chain.BlockData{
	Index:     4,
	TimeStamp: 1700000000,
	Payload:   `{"amount":5,"ngo":"Shelter"}`,
	PrevHash:  "00f1c3",
	Hash:      "00a9b2",
	Nonce:     311,
}

func TestGetBlockDecode(t *testing.T) {
	parsed, err := parseABI()
	require.NoError(t, err)

	// Build the bytes a node would return for getBlock.
	res, err := parsed.Methods["getBlock"].Outputs.Pack(
		new(big.Int).SetUint64(record.Index),
		new(big.Int).SetUint64(record.TimeStamp),
		record.Payload,
		record.PrevHash,
		record.Hash,
		new(big.Int).SetUint64(record.Nonce),
	)
	require.NoError(t, err)

	out, err := parsed.Unpack("getBlock", res)
	require.NoError(t, err)

	got, err := decodeBlock(out)
	require.NoError(t, err)
	assert.Equal(t, record, got)
}

func TestAddBlockEncode(t *testing.T) {
	parsed, err := parseABI()
	require.NoError(t, err)

	data, err := encodeAddBlock(parsed, record)
	require.NoError(t, err)

	method := parsed.Methods["addBlock"]
	require.Equal(t, method.ID, data[:4])

	args, err := method.Inputs.Unpack(data[4:])
	require.NoError(t, err)

	got, err := decodeBlock(args)
	require.NoError(t, err)
	assert.Equal(t, record, got)
}

func TestDecodeBlockRejectsBadValues(t *testing.T) {
	_, err := decodeBlock([]any{big.NewInt(1)})
	assert.Error(t, err)

	tooBig := new(big.Int).Lsh(big.NewInt(1), 70)
	_, err = decodeBlock([]any{tooBig, big.NewInt(0), "", "", "", big.NewInt(0)})
	assert.Error(t, err)

	_, err = decodeBlock([]any{big.NewInt(0), big.NewInt(0), 7, "", "", big.NewInt(0)})
	assert.Error(t, err)
}

func TestNewValidatesConfig(t *testing.T) {
	ctx := context.Background()

	_, err := New(ctx, Config{URL: "http://127.0.0.1:7545", ContractAddress: "not-an-address"})
	assert.Error(t, err)

	_, err = New(ctx, Config{
		URL:             "http://127.0.0.1:7545",
		ContractAddress: testContract,
		PrivateKey:      "zz",
	})
	assert.Error(t, err)

	l, err := New(ctx, Config{
		URL:             "http://127.0.0.1:7545",
		ContractAddress: testContract,
		PrivateKey:      testKey,
	})
	require.NoError(t, err)
	assert.Equal(t, testAccount, l.from.Hex())
	require.NoError(t, l.Close())
}

// =============================================================================

// fakeNode answers the eth JSON-RPC methods the ledger uses and keeps the
// contract's blocks in memory.
type fakeNode struct {
	abi abi.ABI

	mu           sync.Mutex
	blocks       []chain.BlockData
	pending      map[common.Hash]chain.BlockData
	receipts     map[common.Hash]*types.Receipt
	nonces       []uint64
	receiptPolls int
	missingPolls int  // Receipt lookups answered with null per transaction.
	revert       bool // Mine every transaction with a failed status.
}

func newFakeNode(t *testing.T) (*fakeNode, *Ledger) {
	t.Helper()

	parsed, err := parseABI()
	require.NoError(t, err)

	fn := fakeNode{
		abi:      parsed,
		pending:  make(map[common.Hash]chain.BlockData),
		receipts: make(map[common.Hash]*types.Receipt),
	}

	srv := rpc.NewServer()
	require.NoError(t, srv.RegisterName("eth", &fn))

	hs := httptest.NewServer(srv)
	t.Cleanup(func() {
		hs.Close()
		srv.Stop()
	})

	l, err := New(t.Context(), Config{
		URL:             hs.URL,
		ContractAddress: testContract,
		PrivateKey:      testKey,
		ReceiptPoll:     5 * time.Millisecond,
	})
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })

	return &fn, l
}

func (fn *fakeNode) ChainId() *hexutil.Big {
	return (*hexutil.Big)(big.NewInt(testChainID))
}

func (fn *fakeNode) GetTransactionCount(account common.Address, block string) (hexutil.Uint64, error) {
	if account != common.HexToAddress(testAccount) || block != "pending" {
		return 0, fmt.Errorf("unexpected nonce query %s %s", account.Hex(), block)
	}

	fn.mu.Lock()
	defer fn.mu.Unlock()

	return hexutil.Uint64(len(fn.nonces)), nil
}

func (fn *fakeNode) GasPrice() *hexutil.Big {
	return (*hexutil.Big)(big.NewInt(1_000_000_000))
}

func (fn *fakeNode) EstimateGas(args map[string]any) hexutil.Uint64 {
	return 300_000
}

func (fn *fakeNode) SendRawTransaction(raw hexutil.Bytes) (common.Hash, error) {
	var tx types.Transaction
	if err := tx.UnmarshalBinary(raw); err != nil {
		return common.Hash{}, err
	}

	from, err := types.Sender(types.LatestSignerForChainID(big.NewInt(testChainID)), &tx)
	if err != nil {
		return common.Hash{}, err
	}
	if from != common.HexToAddress(testAccount) || tx.To() == nil || *tx.To() != common.HexToAddress(testContract) {
		return common.Hash{}, fmt.Errorf("unexpected transaction from %s to %v", from.Hex(), tx.To())
	}

	method, err := fn.abi.MethodById(tx.Data())
	if err != nil || method.Name != "addBlock" {
		return common.Hash{}, fmt.Errorf("unexpected call data: %v", err)
	}

	args, err := method.Inputs.Unpack(tx.Data()[4:])
	if err != nil {
		return common.Hash{}, err
	}

	blockData, err := decodeBlock(args)
	if err != nil {
		return common.Hash{}, err
	}

	fn.mu.Lock()
	defer fn.mu.Unlock()

	fn.nonces = append(fn.nonces, tx.Nonce())
	fn.pending[tx.Hash()] = blockData

	return tx.Hash(), nil
}

func (fn *fakeNode) GetTransactionReceipt(hash common.Hash) (*types.Receipt, error) {
	fn.mu.Lock()
	defer fn.mu.Unlock()

	fn.receiptPolls++

	if r, exists := fn.receipts[hash]; exists {
		return r, nil
	}

	blockData, exists := fn.pending[hash]
	if !exists {
		return nil, errors.New("unknown transaction")
	}

	if fn.receiptPolls%(fn.missingPolls+1) != 0 {
		return nil, nil
	}

	status := types.ReceiptStatusSuccessful
	if fn.revert {
		status = types.ReceiptStatusFailed
	} else {
		fn.blocks = append(fn.blocks, blockData)
	}
	delete(fn.pending, hash)

	r := types.Receipt{
		Status:            status,
		CumulativeGasUsed: 21_000,
		GasUsed:           21_000,
		TxHash:            hash,
		Logs:              []*types.Log{},
	}
	fn.receipts[hash] = &r

	return &r, nil
}

func (fn *fakeNode) Call(args map[string]any, block string) (hexutil.Bytes, error) {
	input, ok := args["input"].(string)
	if !ok {
		return nil, errors.New("missing input")
	}

	data, err := hexutil.Decode(input)
	if err != nil {
		return nil, err
	}

	method, err := fn.abi.MethodById(data)
	if err != nil {
		return nil, err
	}

	fn.mu.Lock()
	defer fn.mu.Unlock()

	switch method.Name {
	case "getBlockCount":
		return method.Outputs.Pack(big.NewInt(int64(len(fn.blocks))))

	case "getBlock":
		in, err := method.Inputs.Unpack(data[4:])
		if err != nil {
			return nil, err
		}

		i := in[0].(*big.Int).Int64()
		if i >= int64(len(fn.blocks)) {
			return nil, errors.New("execution reverted: index out of range")
		}

		b := fn.blocks[i]
		return method.Outputs.Pack(
			new(big.Int).SetUint64(b.Index),
			new(big.Int).SetUint64(b.TimeStamp),
			b.Payload,
			b.PrevHash,
			b.Hash,
			new(big.Int).SetUint64(b.Nonce),
		)
	}

	return nil, fmt.Errorf("unexpected method %s", method.Name)
}

func (fn *fakeNode) state() (nonces []uint64, polls int) {
	fn.mu.Lock()
	defer fn.mu.Unlock()

	return append([]uint64(nil), fn.nonces...), fn.receiptPolls
}

// =============================================================================

func TestSaveAndLoadOverRPC(t *testing.T) {
	fn, l := newFakeNode(t)
	fn.missingPolls = 2

	records := []chain.BlockData{
		{Index: 0, TimeStamp: 1700000000, Payload: `{"type":"genesis"}`, PrevHash: chain.GenesisPrevHash, Hash: "00aa", Nonce: 9},
		{Index: 1, TimeStamp: 1700000001, Payload: `{"amount":12345678901234567891}`, PrevHash: "00aa", Hash: "00bb", Nonce: 311},
		{Index: 2, TimeStamp: 1700000002, Payload: `{"amount":0.1}`, PrevHash: "00bb", Hash: "00cc", Nonce: 7},
	}

	empty, err := l.Load(t.Context())
	require.NoError(t, err)
	assert.Empty(t, empty)

	for _, r := range records {
		require.NoError(t, l.Save(t.Context(), r))
	}

	nonces, polls := fn.state()
	assert.Equal(t, []uint64{0, 1, 2}, nonces)
	assert.Equal(t, 3*(fn.missingPolls+1), polls, "receipt lookups should be retried until mined")

	got, err := l.Load(t.Context())
	require.NoError(t, err)
	assert.Equal(t, records, got)
}

func TestSaveReverted(t *testing.T) {
	fn, l := newFakeNode(t)
	fn.revert = true

	err := l.Save(t.Context(), record)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reverted")

	got, err := l.Load(t.Context())
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSaveWaitCancelled(t *testing.T) {
	fn, l := newFakeNode(t)
	fn.missingPolls = 1_000_000

	ctx, cancel := context.WithTimeout(t.Context(), 50*time.Millisecond)
	defer cancel()

	err := l.Save(ctx, record)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
