package xrouter

import (
	"context"
	"encoding/json"
)

// RPCConnector implements Connector by delegating every call to a JSON-RPC
// node, with per-chain method names supplied by the caller. This is the
// concrete connector exercised by the registry, dispatcher and tests; it
// generalizes across chains whose JSON-RPC method names differ (bitcoind-
// style vs. an Ethereum-style client) without duplicating the HTTP plumbing.
type RPCConnector struct {
	Client  *RPCClient
	Methods RPCMethodSet
}

// RPCMethodSet names the underlying node's RPC methods for each Connector
// operation, so the same RPCConnector works for bitcoind-family nodes
// (NewBitcoinConnector) and Ethereum-family nodes (NewEthereumConnector).
type RPCMethodSet struct {
	BlockCount              string
	BlockHash               string
	Block                   string
	Transaction             string
	AllBlocks                string
	AllTransactions          string
	Balance                 string
	BalanceUpdate           string
	TransactionsBloomFilter string
	SendTransaction         string
}

// BitcoinMethods is the standard bitcoind-family RPC method naming.
var BitcoinMethods = RPCMethodSet{
	BlockCount:              "getblockcount",
	BlockHash:               "getblockhash",
	Block:                   "getblock",
	Transaction:             "getrawtransaction",
	AllBlocks:               "getallblocks",
	AllTransactions:         "getalltransactions",
	Balance:                 "getreceivedbyaddress",
	BalanceUpdate:           "getbalanceupdate",
	TransactionsBloomFilter: "gettransactionsbloomfilter",
	SendTransaction:         "sendrawtransaction",
}

// EthereumMethods maps the Connector surface onto geth-style eth_* RPCs.
// SendTransaction here only relays an already-signed raw transaction; it
// never signs one itself, and no payment accounting happens in this layer.
var EthereumMethods = RPCMethodSet{
	BlockCount:              "eth_blockNumber",
	BlockHash:               "eth_getBlockByNumber",
	Block:                   "eth_getBlockByHash",
	Transaction:             "eth_getTransactionByHash",
	AllBlocks:               "eth_getAllBlocks", // operator-side extension, not a standard geth method
	AllTransactions:         "eth_getAllTransactions",
	Balance:                 "eth_getBalance",
	BalanceUpdate:           "eth_getBalanceUpdate",
	TransactionsBloomFilter: "eth_getLogs",
	SendTransaction:         "eth_sendRawTransaction",
}

// NewBitcoinConnector builds an RPCConnector for a bitcoind-family node.
func NewBitcoinConnector(ip, port, user, password string) *RPCConnector {
	return &RPCConnector{Client: NewRPCClient(ip, port, user, password), Methods: BitcoinMethods}
}

// NewEthereumConnector builds an RPCConnector for a geth-family node.
func NewEthereumConnector(ip, port, user, password string) *RPCConnector {
	return &RPCConnector{Client: NewRPCClient(ip, port, user, password), Methods: EthereumMethods}
}

func decodeResult(raw json.RawMessage, err error) (interface{}, error) {
	if err != nil {
		return nil, err
	}
	var v interface{}
	if len(raw) == 0 {
		return nil, nil
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return v, nil
}

func (c *RPCConnector) GetBlockCount(ctx context.Context) (interface{}, error) {
	return decodeResult(c.Client.Call(ctx, c.Methods.BlockCount, nil))
}

func (c *RPCConnector) GetBlockHash(ctx context.Context, blockID string) (interface{}, error) {
	return decodeResult(c.Client.Call(ctx, c.Methods.BlockHash, []interface{}{blockID}))
}

func (c *RPCConnector) GetBlock(ctx context.Context, blockHash string) (interface{}, error) {
	return decodeResult(c.Client.Call(ctx, c.Methods.Block, []interface{}{blockHash}))
}

func (c *RPCConnector) GetTransaction(ctx context.Context, hash string) (interface{}, error) {
	return decodeResult(c.Client.Call(ctx, c.Methods.Transaction, []interface{}{hash}))
}

func (c *RPCConnector) GetAllBlocks(ctx context.Context, number int) (interface{}, error) {
	return decodeResult(c.Client.Call(ctx, c.Methods.AllBlocks, []interface{}{number}))
}

func (c *RPCConnector) GetAllTransactions(ctx context.Context, account string, number int) (interface{}, error) {
	return decodeResult(c.Client.Call(ctx, c.Methods.AllTransactions, []interface{}{account, number}))
}

func (c *RPCConnector) GetBalance(ctx context.Context, account string) (interface{}, error) {
	return decodeResult(c.Client.Call(ctx, c.Methods.Balance, []interface{}{account}))
}

func (c *RPCConnector) GetBalanceUpdate(ctx context.Context, account string, number int) (interface{}, error) {
	return decodeResult(c.Client.Call(ctx, c.Methods.BalanceUpdate, []interface{}{account, number}))
}

func (c *RPCConnector) GetTransactionsBloomFilter(ctx context.Context, number int, serializedFilter []byte) (interface{}, error) {
	return decodeResult(c.Client.Call(ctx, c.Methods.TransactionsBloomFilter, []interface{}{number, serializedFilter}))
}

func (c *RPCConnector) SendTransaction(ctx context.Context, hex string) (interface{}, error) {
	return decodeResult(c.Client.Call(ctx, c.Methods.SendTransaction, []interface{}{hex}))
}

var _ Connector = (*RPCConnector)(nil)
