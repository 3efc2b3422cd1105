// Package ethledger implements chain storage on top of a ledger contract
// deployed to an Ethereum compatible node, such as a local Ganache or anvil
// instance. Blocks are written with addBlock transactions and read back with
// the getBlockCount and getBlock view calls.
package ethledger

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ardanlabs/powchain/foundation/blockchain/chain"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
)

// contractABI describes the subset of the ledger contract used by this
// package.
const contractABI = `[
	{
		"type": "function",
		"name": "getBlockCount",
		"stateMutability": "view",
		"inputs": [],
		"outputs": [{"name": "", "type": "uint256"}]
	},
	{
		"type": "function",
		"name": "getBlock",
		"stateMutability": "view",
		"inputs": [{"name": "index", "type": "uint256"}],
		"outputs": [
			{"name": "index", "type": "uint256"},
			{"name": "timestamp", "type": "uint256"},
			{"name": "data", "type": "string"},
			{"name": "previousHash", "type": "string"},
			{"name": "hash", "type": "string"},
			{"name": "nonce", "type": "uint256"}
		]
	},
	{
		"type": "function",
		"name": "addBlock",
		"stateMutability": "nonpayable",
		"inputs": [
			{"name": "index", "type": "uint256"},
			{"name": "timestamp", "type": "uint256"},
			{"name": "data", "type": "string"},
			{"name": "previousHash", "type": "string"},
			{"name": "hash", "type": "string"},
			{"name": "nonce", "type": "uint256"}
		],
		"outputs": []
	}
]`

// Config represents the information required to reach the ledger contract.
type Config struct {
	URL             string        // JSON-RPC endpoint of the node.
	ContractAddress string        // Address of the deployed ledger contract.
	PrivateKey      string        // Hex encoded key used to sign addBlock transactions.
	ReceiptPoll     time.Duration // Interval between receipt checks, defaults to 500ms.
}

// Ledger represents the storage implementation backed by the ledger
// contract. This implements the chain.Storage interface.
type Ledger struct {
	client   *ethclient.Client
	abi      abi.ABI
	contract common.Address
	key      *ecdsa.PrivateKey
	from     common.Address
	poll     time.Duration

	// Transactions from one account must be sent one at a time so each
	// picks up the right account nonce.
	mu sync.Mutex
}

// New constructs a Ledger value for use. Dialing an HTTP endpoint doesn't
// contact the node, the first Load or Save does.
func New(ctx context.Context, cfg Config) (*Ledger, error) {
	if !common.IsHexAddress(cfg.ContractAddress) {
		return nil, fmt.Errorf("invalid contract address %q", cfg.ContractAddress)
	}

	key, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.PrivateKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("parsing private key: %w", err)
	}

	parsed, err := parseABI()
	if err != nil {
		return nil, err
	}

	client, err := ethclient.DialContext(ctx, cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", cfg.URL, err)
	}

	poll := cfg.ReceiptPoll
	if poll <= 0 {
		poll = 500 * time.Millisecond
	}

	l := Ledger{
		client:   client,
		abi:      parsed,
		contract: common.HexToAddress(cfg.ContractAddress),
		key:      key,
		from:     crypto.PubkeyToAddress(key.PublicKey),
		poll:     poll,
	}

	return &l, nil
}

// Close releases the connection to the node.
func (l *Ledger) Close() error {
	l.client.Close()
	return nil
}

// Load reads every block recorded by the contract in order.
func (l *Ledger) Load(ctx context.Context) ([]chain.BlockData, error) {
	out, err := l.call(ctx, "getBlockCount")
	if err != nil {
		return nil, err
	}

	if len(out) != 1 {
		return nil, fmt.Errorf("getBlockCount: got %d values, exp 1", len(out))
	}

	count, err := toUint64(out[0])
	if err != nil {
		return nil, fmt.Errorf("getBlockCount: %w", err)
	}

	blocks := make([]chain.BlockData, 0, count)
	for i := range count {
		out, err := l.call(ctx, "getBlock", new(big.Int).SetUint64(i))
		if err != nil {
			return nil, err
		}

		blockData, err := decodeBlock(out)
		if err != nil {
			return nil, fmt.Errorf("getBlock %d: %w", i, err)
		}
		blocks = append(blocks, blockData)
	}

	return blocks, nil
}

// Save sends an addBlock transaction and waits for it to be mined.
func (l *Ledger) Save(ctx context.Context, blockData chain.BlockData) error {
	data, err := encodeAddBlock(l.abi, blockData)
	if err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	chainID, err := l.client.ChainID(ctx)
	if err != nil {
		return fmt.Errorf("chain id: %w", err)
	}

	nonce, err := l.client.PendingNonceAt(ctx, l.from)
	if err != nil {
		return fmt.Errorf("account nonce: %w", err)
	}

	gasPrice, err := l.client.SuggestGasPrice(ctx)
	if err != nil {
		return fmt.Errorf("gas price: %w", err)
	}

	msg := ethereum.CallMsg{
		From: l.from,
		To:   &l.contract,
		Data: data,
	}
	gas, err := l.client.EstimateGas(ctx, msg)
	if err != nil {
		return fmt.Errorf("estimate gas: %w", err)
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		GasPrice: gasPrice,
		Gas:      gas,
		To:       &l.contract,
		Value:    big.NewInt(0),
		Data:     data,
	})

	signedTx, err := types.SignTx(tx, types.LatestSignerForChainID(chainID), l.key)
	if err != nil {
		return fmt.Errorf("signing transaction: %w", err)
	}

	if err := l.client.SendTransaction(ctx, signedTx); err != nil {
		return fmt.Errorf("sending transaction: %w", err)
	}

	receipt, err := l.waitMined(ctx, signedTx.Hash())
	if err != nil {
		return fmt.Errorf("waiting for tx %s: %w", signedTx.Hash().Hex(), err)
	}

	if receipt.Status != types.ReceiptStatusSuccessful {
		return fmt.Errorf("tx %s reverted", signedTx.Hash().Hex())
	}

	return nil
}

// =============================================================================

// call performs a read only contract call and unpacks the result.
func (l *Ledger) call(ctx context.Context, method string, args ...any) ([]any, error) {
	data, err := l.abi.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: packing: %w", method, err)
	}

	msg := ethereum.CallMsg{
		From: l.from,
		To:   &l.contract,
		Data: data,
	}

	res, err := l.client.CallContract(ctx, msg, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", method, err)
	}

	out, err := l.abi.Unpack(method, res)
	if err != nil {
		return nil, fmt.Errorf("%s: unpacking: %w", method, err)
	}

	return out, nil
}

// waitMined polls for the transaction receipt until it exists.
func (l *Ledger) waitMined(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	ticker := time.NewTicker(l.poll)
	defer ticker.Stop()

	for {
		receipt, err := l.client.TransactionReceipt(ctx, hash)
		if err == nil {
			return receipt, nil
		}

		if !errors.Is(err, ethereum.NotFound) {
			return nil, err
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// =============================================================================

func parseABI() (abi.ABI, error) {
	parsed, err := abi.JSON(strings.NewReader(contractABI))
	if err != nil {
		return abi.ABI{}, fmt.Errorf("parsing ledger abi: %w", err)
	}

	return parsed, nil
}

// encodeAddBlock packs the call data for the addBlock transaction.
func encodeAddBlock(parsed abi.ABI, blockData chain.BlockData) ([]byte, error) {
	data, err := parsed.Pack("addBlock",
		new(big.Int).SetUint64(blockData.Index),
		new(big.Int).SetUint64(blockData.TimeStamp),
		blockData.Payload,
		blockData.PrevHash,
		blockData.Hash,
		new(big.Int).SetUint64(blockData.Nonce),
	)
	if err != nil {
		return nil, fmt.Errorf("addBlock: packing: %w", err)
	}

	return data, nil
}

// decodeBlock converts the unpacked getBlock values into a block record.
func decodeBlock(values []any) (chain.BlockData, error) {
	if len(values) != 6 {
		return chain.BlockData{}, fmt.Errorf("got %d values, exp 6", len(values))
	}

	index, err := toUint64(values[0])
	if err != nil {
		return chain.BlockData{}, fmt.Errorf("index: %w", err)
	}

	timestamp, err := toUint64(values[1])
	if err != nil {
		return chain.BlockData{}, fmt.Errorf("timestamp: %w", err)
	}

	nonce, err := toUint64(values[5])
	if err != nil {
		return chain.BlockData{}, fmt.Errorf("nonce: %w", err)
	}

	var strs [3]string
	for i := range strs {
		s, ok := values[2+i].(string)
		if !ok {
			return chain.BlockData{}, fmt.Errorf("value %d: got %T, exp string", 2+i, values[2+i])
		}
		strs[i] = s
	}

	blockData := chain.BlockData{
		Index:     index,
		TimeStamp: timestamp,
		Payload:   strs[0],
		PrevHash:  strs[1],
		Hash:      strs[2],
		Nonce:     nonce,
	}

	return blockData, nil
}

func toUint64(v any) (uint64, error) {
	n, ok := v.(*big.Int)
	if !ok {
		return 0, fmt.Errorf("got %T, exp *big.Int", v)
	}

	if !n.IsUint64() {
		return 0, fmt.Errorf("value %s out of range", n)
	}

	return n.Uint64(), nil
}
