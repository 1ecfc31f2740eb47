package gateway

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	json "github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/mfields/tradeshell/internal/instrument"
	"github.com/mfields/tradeshell/internal/orders"
	"github.com/mfields/tradeshell/internal/quotes"
	"github.com/mfields/tradeshell/pkg/config"
	"github.com/mfields/tradeshell/pkg/logger"
)

const (
	pingInterval     = 30 * time.Second
	handshakeTimeout = 10 * time.Second
	requestTimeout   = 30 * time.Second
	eventBuffer      = 512
)

// frame is the JSON envelope exchanged with the broker bridge. Push
// frames carry no ReqID; request/response round trips are correlated
// by it.
type frame struct {
	Type  string          `json:"type"`
	ReqID int64           `json:"req_id,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
	Error string          `json:"error,omitempty"`
}

// WS is the live Gateway over a websocket bridge. Outbound traffic is
// paced by a token bucket so bursts of commands cannot trip the broker's
// request limits.
type WS struct {
	cfg     config.GatewayConfig
	logger  *logger.Logger
	limiter *rate.Limiter

	conn      *websocket.Conn
	connMu    sync.Mutex
	connected bool

	pending   map[int64]chan frame
	pendingMu sync.Mutex
	nextReq   atomic.Int64

	orderID atomic.Int64

	stopCh chan struct{}
	wg     sync.WaitGroup

	ticks       chan quotes.Tick
	accountVals chan AccountValue
	pnl         chan PnLUpdate
	pnlSingle   chan PnLSingleUpdate
	status      chan orders.StatusUpdate
	fills       chan orders.Fill
	commissions chan orders.CommissionReport
	errs        chan APIError
	news        chan NewsBulletin
	disconnects chan error
}

// NewWS builds the live gateway client. Connect must be called before
// any request method.
func NewWS(cfg config.GatewayConfig, log *logger.Logger) *WS {
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 40
	}
	return &WS{
		cfg:     cfg,
		logger:  log,
		limiter: rate.NewLimiter(rate.Limit(rps), rps),
		pending: make(map[int64]chan frame),

		ticks:       make(chan quotes.Tick, eventBuffer),
		accountVals: make(chan AccountValue, eventBuffer),
		pnl:         make(chan PnLUpdate, eventBuffer),
		pnlSingle:   make(chan PnLSingleUpdate, eventBuffer),
		status:      make(chan orders.StatusUpdate, eventBuffer),
		fills:       make(chan orders.Fill, eventBuffer),
		commissions: make(chan orders.CommissionReport, eventBuffer),
		errs:        make(chan APIError, eventBuffer),
		news:        make(chan NewsBulletin, eventBuffer),
		disconnects: make(chan error, 8),
	}
}

// Connect dials the bridge, performs the startup handshake (client id
// and account), and starts the read and ping loops. A fresh call after
// a disconnect reuses the same event channels.
func (w *WS) Connect(ctx context.Context) error {
	w.connMu.Lock()
	if w.connected {
		w.connMu.Unlock()
		return nil
	}

	url := fmt.Sprintf("ws://%s:%d/api", w.cfg.Host, w.cfg.Port)
	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		w.connMu.Unlock()
		return fmt.Errorf("dial gateway: %w", err)
	}

	hello := map[string]any{
		"client_id": w.cfg.ClientID,
		"account":   w.cfg.AccountID,
	}
	data, _ := json.Marshal(hello)
	if err := conn.WriteJSON(frame{Type: "hello", Data: data}); err != nil {
		conn.Close()
		w.connMu.Unlock()
		return fmt.Errorf("gateway handshake: %w", err)
	}

	var ack frame
	conn.SetReadDeadline(time.Now().Add(handshakeTimeout))
	if err := conn.ReadJSON(&ack); err != nil {
		conn.Close()
		w.connMu.Unlock()
		return fmt.Errorf("gateway handshake: %w", err)
	}
	conn.SetReadDeadline(time.Time{})
	if ack.Error != "" {
		conn.Close()
		w.connMu.Unlock()
		return fmt.Errorf("gateway refused connection: %s", ack.Error)
	}

	var welcome struct {
		NextOrderID int64 `json:"next_order_id"`
	}
	if err := json.Unmarshal(ack.Data, &welcome); err != nil || welcome.NextOrderID == 0 {
		conn.Close()
		w.connMu.Unlock()
		return fmt.Errorf("gateway handshake: missing order id seed")
	}
	w.orderID.Store(welcome.NextOrderID)

	w.conn = conn
	w.connected = true
	w.stopCh = make(chan struct{})
	w.connMu.Unlock()

	w.wg.Add(2)
	go w.readLoop()
	go w.pingLoop()

	w.logger.WithFields(map[string]interface{}{
		"host":      w.cfg.Host,
		"port":      w.cfg.Port,
		"client_id": w.cfg.ClientID,
	}).Info("Gateway connected")
	return nil
}

func (w *WS) Close() error {
	w.connMu.Lock()
	if !w.connected {
		w.connMu.Unlock()
		return nil
	}
	close(w.stopCh)
	w.conn.Close()
	w.conn = nil
	w.connected = false
	w.connMu.Unlock()

	w.wg.Wait()
	w.failPending(fmt.Errorf("gateway closed"))
	return nil
}

// NextOrderID hands out broker order ids from the seed received at
// handshake time.
func (w *WS) NextOrderID() int64 {
	return w.orderID.Add(1) - 1
}

func (w *WS) readLoop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.stopCh:
			return
		default:
		}

		w.connMu.Lock()
		conn := w.conn
		w.connMu.Unlock()
		if conn == nil {
			return
		}

		var f frame
		if err := conn.ReadJSON(&f); err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				w.handleDisconnect(nil)
				return
			}
			select {
			case <-w.stopCh:
			default:
				w.handleDisconnect(fmt.Errorf("gateway read: %w", err))
			}
			return
		}

		if f.ReqID != 0 {
			w.resolve(f)
			continue
		}
		w.dispatch(f)
	}
}

func (w *WS) pingLoop() {
	defer w.wg.Done()

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stopCh:
			return
		case <-ticker.C:
			w.connMu.Lock()
			conn := w.conn
			if conn != nil {
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
					w.connMu.Unlock()
					w.handleDisconnect(fmt.Errorf("gateway ping: %w", err))
					return
				}
			}
			w.connMu.Unlock()
		}
	}
}

// dispatch routes a push frame to its event stream. Streams are buffered;
// a full stream drops the event rather than stalling the read loop.
func (w *WS) dispatch(f frame) {
	switch f.Type {
	case "tick":
		var t quotes.Tick
		if json.Unmarshal(f.Data, &t) == nil {
			select {
			case w.ticks <- t:
			default:
			}
		}
	case "account_value":
		var v AccountValue
		if json.Unmarshal(f.Data, &v) == nil {
			w.accountVals <- v
		}
	case "pnl":
		var p PnLUpdate
		if json.Unmarshal(f.Data, &p) == nil {
			w.pnl <- p
		}
	case "pnl_single":
		var p PnLSingleUpdate
		if json.Unmarshal(f.Data, &p) == nil {
			w.pnlSingle <- p
		}
	case "order_status":
		var s orders.StatusUpdate
		if json.Unmarshal(f.Data, &s) == nil {
			w.status <- s
		}
	case "fill":
		var fl orders.Fill
		if json.Unmarshal(f.Data, &fl) == nil {
			w.fills <- fl
		}
	case "commission":
		var c orders.CommissionReport
		if json.Unmarshal(f.Data, &c) == nil {
			w.commissions <- c
		}
	case "error":
		var e APIError
		if json.Unmarshal(f.Data, &e) == nil {
			w.errs <- e
		}
	case "news":
		var n NewsBulletin
		if json.Unmarshal(f.Data, &n) == nil {
			w.news <- n
		}
	default:
		w.logger.WithFields(map[string]interface{}{
			"type": f.Type,
		}).Debug("Unhandled gateway frame")
	}
}

func (w *WS) handleDisconnect(err error) {
	w.connMu.Lock()
	wasConnected := w.connected
	w.connected = false
	if w.conn != nil {
		w.conn.Close()
		w.conn = nil
	}
	w.connMu.Unlock()

	w.failPending(fmt.Errorf("gateway disconnected"))

	if wasConnected {
		select {
		case w.disconnects <- err:
		default:
		}
	}
}

func (w *WS) resolve(f frame) {
	w.pendingMu.Lock()
	ch, ok := w.pending[f.ReqID]
	if ok {
		delete(w.pending, f.ReqID)
	}
	w.pendingMu.Unlock()
	if ok {
		ch <- f
	}
}

func (w *WS) failPending(err error) {
	w.pendingMu.Lock()
	for id, ch := range w.pending {
		delete(w.pending, id)
		ch <- frame{Error: err.Error()}
	}
	w.pendingMu.Unlock()
}

// request sends one frame and blocks for the correlated response.
func (w *WS) request(ctx context.Context, typ string, payload any) (frame, error) {
	if err := w.limiter.Wait(ctx); err != nil {
		return frame{}, err
	}

	reqID := w.nextReq.Add(1)
	ch := make(chan frame, 1)
	w.pendingMu.Lock()
	w.pending[reqID] = ch
	w.pendingMu.Unlock()

	var data json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return frame{}, fmt.Errorf("encode %s: %w", typ, err)
		}
		data = b
	}

	if err := w.send(frame{Type: typ, ReqID: reqID, Data: data}); err != nil {
		w.pendingMu.Lock()
		delete(w.pending, reqID)
		w.pendingMu.Unlock()
		return frame{}, err
	}

	timer := time.NewTimer(requestTimeout)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return frame{}, ctx.Err()
	case <-timer.C:
		return frame{}, fmt.Errorf("%s: gateway timeout", typ)
	case resp := <-ch:
		if resp.Error != "" {
			return frame{}, fmt.Errorf("%s: %s", typ, resp.Error)
		}
		return resp, nil
	}
}

// notify sends one frame without waiting for a response.
func (w *WS) notify(ctx context.Context, typ string, payload any) error {
	if err := w.limiter.Wait(ctx); err != nil {
		return err
	}
	var data json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode %s: %w", typ, err)
		}
		data = b
	}
	return w.send(frame{Type: typ, Data: data})
}

func (w *WS) send(f frame) error {
	w.connMu.Lock()
	defer w.connMu.Unlock()
	if w.conn == nil {
		return fmt.Errorf("not connected")
	}
	return w.conn.WriteJSON(f)
}

func (w *WS) Qualify(ctx context.Context, cs []instrument.Contract) ([]instrument.Contract, error) {
	resp, err := w.request(ctx, "qualify", map[string]any{"contracts": cs})
	if err != nil {
		return nil, err
	}
	var out struct {
		Contracts []instrument.Contract `json:"contracts"`
	}
	if err := json.Unmarshal(resp.Data, &out); err != nil {
		return nil, fmt.Errorf("decode qualify response: %w", err)
	}
	if len(out.Contracts) != len(cs) {
		return nil, fmt.Errorf("qualify: got %d contracts for %d requested", len(out.Contracts), len(cs))
	}
	return out.Contracts, nil
}

func (w *WS) SubscribeQuote(ctx context.Context, c instrument.Contract) error {
	return w.notify(ctx, "subscribe", map[string]any{"contract": c})
}

func (w *WS) UnsubscribeQuote(ctx context.Context, c instrument.Contract) error {
	return w.notify(ctx, "unsubscribe", map[string]any{"contract": c})
}

func (w *WS) PlaceOrder(ctx context.Context, c instrument.Contract, o orders.Order) (*orders.Trade, error) {
	resp, err := w.request(ctx, "place_order", map[string]any{"contract": c, "order": o})
	if err != nil {
		return nil, err
	}
	var tr orders.Trade
	if err := json.Unmarshal(resp.Data, &tr); err != nil {
		return nil, fmt.Errorf("decode trade: %w", err)
	}
	return &tr, nil
}

func (w *WS) PreviewOrder(ctx context.Context, c instrument.Contract, o orders.Order) (*orders.MarginEstimate, error) {
	resp, err := w.request(ctx, "preview_order", map[string]any{"contract": c, "order": o})
	if err != nil {
		return nil, err
	}
	var m orders.MarginEstimate
	if err := json.Unmarshal(resp.Data, &m); err != nil {
		return nil, fmt.Errorf("decode margin estimate: %w", err)
	}
	return &m, nil
}

func (w *WS) CancelOrder(ctx context.Context, orderID int64) error {
	_, err := w.request(ctx, "cancel_order", map[string]any{"order_id": orderID})
	return err
}

func (w *WS) Positions(ctx context.Context) ([]Position, error) {
	resp, err := w.request(ctx, "positions", nil)
	if err != nil {
		return nil, err
	}
	var out struct {
		Positions []Position `json:"positions"`
	}
	if err := json.Unmarshal(resp.Data, &out); err != nil {
		return nil, fmt.Errorf("decode positions: %w", err)
	}
	return out.Positions, nil
}

func (w *WS) OpenTrades(ctx context.Context) ([]orders.Trade, error) {
	resp, err := w.request(ctx, "open_trades", nil)
	if err != nil {
		return nil, err
	}
	var out struct {
		Trades []orders.Trade `json:"trades"`
	}
	if err := json.Unmarshal(resp.Data, &out); err != nil {
		return nil, fmt.Errorf("decode open trades: %w", err)
	}
	return out.Trades, nil
}

func (w *WS) RequestAccountSummary(ctx context.Context) error {
	return w.notify(ctx, "account_summary", nil)
}

func (w *WS) RequestPnL(ctx context.Context, account string) error {
	return w.notify(ctx, "pnl", map[string]any{"account": account})
}

func (w *WS) RequestPnLSingle(ctx context.Context, account string, conID int64) error {
	return w.notify(ctx, "pnl_single", map[string]any{"account": account, "con_id": conID})
}

func (w *WS) CancelPnLSingle(ctx context.Context, conID int64) error {
	return w.notify(ctx, "cancel_pnl_single", map[string]any{"con_id": conID})
}

func (w *WS) SubscribeNews(ctx context.Context, enabled bool) error {
	return w.notify(ctx, "news", map[string]any{"enabled": enabled})
}

func (w *WS) Ticks() <-chan quotes.Tick                   { return w.ticks }
func (w *WS) AccountValues() <-chan AccountValue          { return w.accountVals }
func (w *WS) PnL() <-chan PnLUpdate                       { return w.pnl }
func (w *WS) PnLSingle() <-chan PnLSingleUpdate           { return w.pnlSingle }
func (w *WS) OrderStatus() <-chan orders.StatusUpdate     { return w.status }
func (w *WS) Fills() <-chan orders.Fill                   { return w.fills }
func (w *WS) Commissions() <-chan orders.CommissionReport { return w.commissions }
func (w *WS) Errors() <-chan APIError                     { return w.errs }
func (w *WS) News() <-chan NewsBulletin                   { return w.news }
func (w *WS) Disconnects() <-chan error                   { return w.disconnects }

var _ Gateway = (*WS)(nil)
