package ledger

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"multitrack/logger"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
)

// WalletLedger hands unsigned LensHub calls to a wallet over JSON-RPC
// (eth_sendTransaction). The wallet signs and broadcasts; the returned
// transaction hash is the pending reference.
type WalletLedger struct {
	rpcURL     string
	from       string
	contracts  Contracts
	httpClient *http.Client

	mu     sync.Mutex
	client *rpc.Client
}

// NewWalletLedger creates a ledger that sends through the wallet at rpcURL
// from the account from.
func NewWalletLedger(rpcURL, from string, contracts Contracts) *WalletLedger {
	return &WalletLedger{
		rpcURL:    rpcURL,
		from:      from,
		contracts: contracts,
		httpClient: &http.Client{
			// the wallet may wait on the user to approve
			Timeout: 5 * time.Minute,
		},
	}
}

func (w *WalletLedger) Publish(ctx context.Context, req PostRequest) (Pending, error) {
	data, err := EncodePost(req)
	if err != nil {
		return Pending{}, fmt.Errorf("prepare post: %w", err)
	}
	return w.send(ctx, "post", data)
}

func (w *WalletLedger) PublishComment(ctx context.Context, req CommentRequest) (Pending, error) {
	data, err := EncodeComment(req)
	if err != nil {
		return Pending{}, fmt.Errorf("prepare comment: %w", err)
	}
	return w.send(ctx, "comment", data)
}

func (w *WalletLedger) Collect(ctx context.Context, req CollectRequest) (Pending, error) {
	data, err := EncodeCollect(req)
	if err != nil {
		return Pending{}, fmt.Errorf("prepare collect: %w", err)
	}
	return w.send(ctx, "collect", data)
}

// Close releases the RPC connection.
func (w *WalletLedger) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.client != nil {
		w.client.Close()
		w.client = nil
	}
}

func (w *WalletLedger) dial(ctx context.Context) (*rpc.Client, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.client != nil {
		return w.client, nil
	}
	client, err := rpc.DialOptions(ctx, w.rpcURL, rpc.WithHTTPClient(w.httpClient))
	if err != nil {
		return nil, err
	}
	w.client = client
	return client, nil
}

type txArgs struct {
	From *common.Address `json:"from,omitempty"`
	To   common.Address  `json:"to"`
	Data hexutil.Bytes   `json:"data"`
}

func (w *WalletLedger) send(ctx context.Context, fn string, data []byte) (Pending, error) {
	if w.contracts.LensHub == "" {
		return Pending{}, fmt.Errorf("lens hub: %w", ErrUnresolvedContract)
	}
	to, err := parseAddress("lensHub", w.contracts.LensHub)
	if err != nil {
		return Pending{}, err
	}
	args := txArgs{To: to, Data: data}
	if w.from != "" {
		from, err := parseAddress("from", w.from)
		if err != nil {
			return Pending{}, err
		}
		args.From = &from
	}

	client, err := w.dial(ctx)
	if err != nil {
		return Pending{}, fmt.Errorf("wallet unreachable: %w", err)
	}

	logger.Info("[WalletLedger] 发送交易", logger.String("function", fn), logger.String("to", w.contracts.LensHub))
	var hash string
	if err := client.CallContext(ctx, &hash, "eth_sendTransaction", args); err != nil {
		var rpcErr rpc.Error
		if errors.As(err, &rpcErr) {
			logger.Warn("[WalletLedger] 交易被拒绝", logger.String("function", fn), logger.Int("code", rpcErr.ErrorCode()), logger.ErrorField(err))
			return Pending{}, fmt.Errorf("wallet rpc error %d: %w", rpcErr.ErrorCode(), err)
		}
		return Pending{}, fmt.Errorf("send %s: %w", fn, err)
	}
	if hash == "" {
		return Pending{}, fmt.Errorf("wallet returned no transaction hash")
	}
	logger.Info("[WalletLedger] 交易已提交", logger.String("function", fn), logger.String("tx", hash))
	return Pending{Ref: hash}, nil
}
