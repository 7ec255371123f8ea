package platform

import (
	"context"
	"crypto/sha1"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// Timing constants grounded on the teacher's internal/bot/network.go.
const (
	writeWait                 = 10 * time.Second
	pongWait                  = 60 * time.Second
	pingPeriod                = 25 * time.Second
	loginTimeout              = 30 * time.Second
	maxHeartbeatFailures       = 3
	heartbeatResponseDeadline = 60 * time.Second
)

// Notification is a server-pushed event the Bot's dispatcher consumes
// in FIFO order (spec §5). Kind mirrors the teacher's
// strings.Contains-on-MessageType dispatch in handleNotify, narrowed
// to the handful of event kinds this spec's Bot cares about.
type Notification struct {
	Kind NotificationKind
	Raw  []byte
}

type NotificationKind int

const (
	NotifyUnknown NotificationKind = iota
	NotifyKickout
	NotifyItems
	NotifyTrading
	NotifyPlayingSessionState
	NotifyLoginKey
	NotifyMachineAuth
)

// LoginParams is the input to Login (spec §4.5's "issues login with
// (login, password|sessionKey, authCode, twoFactorCode, sentryHash,
// shouldRememberPassword=true, cellId)").
type LoginParams struct {
	Login             string
	Password          string
	SessionKey        []byte
	AuthCode          string
	TwoFactorCode     string
	SentryHash        []byte
	CellID            int32
}

// LoginResult carries the server's verdict and, on success, the
// session identity the web bootstrap needs.
type LoginResult struct {
	Code          string // "OK", "AccountLogonDenied", "NeedTwoFactor", "InvalidPassword", "LoggedInElsewhere", ...
	SteamID       uint64
	Universe      int32
	WebAPINonce   string
	CellID        int32
}

// Client is one session against the platform. It owns the websocket
// connection, the read loop, the heartbeat, and the pending-call
// registry. Grounded on the teacher's Network type in network.go.
type Client struct {
	conn    *websocket.Conn
	writeMu sync.Mutex

	calls *callRegistry

	onNotify func(Notification)

	disconnectOnce     sync.Once
	disconnectReason   atomic.Value // DisconnectReason
	lastHeartbeatAt    atomic.Int64
	serverTimeDelta    atomic.Int64

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewClient constructs a Client bound to onNotify for pushed events.
// The connection itself is established by Connect.
func NewClient(onNotify func(Notification)) *Client {
	return &Client{
		calls:    newCallRegistry(),
		onNotify: onNotify,
		done:     make(chan struct{}),
	}
}

// Connect dials the platform's websocket endpoint and starts the read
// and ping loops. On success the Client is usable for Login and RPCs;
// on failure it returns a *connectError carrying a DisconnectReason.
func (c *Client) Connect(ctx context.Context, url string, headers http.Header) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, url, headers)
	if err != nil {
		return &connectError{reason: DisconnectReadError, cause: err}
	}
	c.conn = conn
	c.ctx, c.cancel = context.WithCancel(context.Background())

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	go c.readLoop()
	go c.pingLoop()
	return nil
}

func (c *Client) pingLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.writeMu.Lock()
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			err := c.conn.WriteMessage(websocket.PingMessage, nil)
			c.writeMu.Unlock()
			if err != nil {
				c.disconnectWithReason(DisconnectPingFailed, err)
				return
			}
		case <-c.ctx.Done():
			return
		}
	}
}

func (c *Client) readLoop() {
	defer close(c.done)
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			c.disconnectWithReason(DisconnectReadError, err)
			return
		}
		e, err := decodeEnvelope(data)
		if err != nil {
			continue // spec §7: parse errors are a soft failure, logged upstream
		}
		if e.Type == "" || c.calls.resolve(e) {
			continue
		}
		c.handleNotify(e)
	}
}

func (c *Client) handleNotify(e envelope) {
	var kind NotificationKind
	switch {
	case strings.Contains(e.Type, "Kickout"):
		kind = NotifyKickout
	case strings.Contains(e.Type, "Item"):
		kind = NotifyItems
	case strings.Contains(e.Type, "Trading"):
		kind = NotifyTrading
	case strings.Contains(e.Type, "PlayingSessionState"):
		kind = NotifyPlayingSessionState
	case strings.Contains(e.Type, "LoginKey"):
		kind = NotifyLoginKey
	case strings.Contains(e.Type, "MachineAuth"):
		kind = NotifyMachineAuth
	default:
		kind = NotifyUnknown
	}
	if c.onNotify != nil {
		c.onNotify(Notification{Kind: kind, Raw: e.Payload})
	}
}

func (c *Client) disconnectWithReason(reason DisconnectReason, cause error) {
	c.disconnectOnce.Do(func() {
		c.disconnectReason.Store(reason)
		c.calls.cancelAll()
		if c.cancel != nil {
			c.cancel()
		}
	})
}

// GetDisconnectReason returns the reason the session ended, if it has.
func (c *Client) GetDisconnectReason() DisconnectReason {
	v := c.disconnectReason.Load()
	if v == nil {
		return DisconnectUnknown
	}
	return v.(DisconnectReason)
}

// SetDisconnectReason records reason without tearing the connection
// down itself, for in-band server result codes (e.g. LogOn's
// "InvalidPassword") that the caller, not the transport, decides
// should end the session.
func (c *Client) SetDisconnectReason(reason DisconnectReason) {
	c.disconnectOnce.Do(func() {
		c.disconnectReason.Store(reason)
	})
}

// Done is closed once the read loop exits.
func (c *Client) Done() <-chan struct{} { return c.done }

// Close gracefully tears down the session: sends a close frame,
// cancels every pending call, and stops the background loops.
func (c *Client) Close() error {
	c.disconnectWithReason(DisconnectClosed, nil)
	c.writeMu.Lock()
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(writeWait))
	c.writeMu.Unlock()
	return c.conn.Close()
}

// Login issues the logon RPC (spec §4.5) with up to loginTimeout to
// respond. A non-OK code is not itself an error: the caller (the Bot
// state machine) interprets codes like NeedTwoFactor or
// InvalidPassword per spec and decides whether to retry.
func (c *Client) Login(ctx context.Context, p LoginParams) (LoginResult, error) {
	ctx, cancel := context.WithTimeout(ctx, loginTimeout)
	defer cancel()

	req := struct {
		Login         string `msgpack:"login,omitempty"`
		Password      string `msgpack:"password,omitempty"`
		SessionKey    []byte `msgpack:"session_key,omitempty"`
		AuthCode      string `msgpack:"auth_code,omitempty"`
		TwoFactorCode string `msgpack:"two_factor_code,omitempty"`
		SentryHash    []byte `msgpack:"sentry_hash,omitempty"`
		RememberPass  bool   `msgpack:"remember_password"`
		CellID        int32  `msgpack:"cell_id"`
	}{
		Login:        p.Login,
		Password:     p.Password,
		SessionKey:   p.SessionKey,
		AuthCode:     p.AuthCode,
		TwoFactorCode: p.TwoFactorCode,
		SentryHash:   p.SentryHash,
		RememberPass: true,
		CellID:       p.CellID,
	}

	var resp LoginResult
	if err := c.call(ctx, "LogOn", req, &resp); err != nil {
		if ctx.Err() != nil {
			c.disconnectWithReason(DisconnectLoginTimeout, err)
		} else {
			c.disconnectWithReason(DisconnectLoginFailed, err)
		}
		return LoginResult{}, &connectError{reason: c.GetDisconnectReason(), cause: err}
	}
	return resp, nil
}

// AcceptNewLoginKey acknowledges a pushed login-key callback (spec
// §4.5: "persist the received session key immediately and
// acknowledge").
func (c *Client) AcceptNewLoginKey(ctx context.Context, jobID uint64) error {
	req := struct {
		JobID uint64 `msgpack:"job_id"`
	}{JobID: jobID}
	return c.call(ctx, "LoginKeyAck", req, nil)
}

// MachineAuthUpdate is the decoded payload of a NotifyMachineAuth
// notification (spec §4.5's updateMachineAuth callback).
type MachineAuthUpdate struct {
	JobID  uint64 `msgpack:"job_id"`
	Bytes  []byte `msgpack:"bytes"`
	Offset int64  `msgpack:"offset"`
}

// SentryUpdateResult is the full sentry file after applying an update,
// plus the reply fields spec §4.5 requires the client to send back.
type SentryUpdateResult struct {
	FileContents []byte
	Hash         [sha1.Size]byte
}

// ApplySentryUpdate appends the given bytes at offset to the current
// sentry file and computes the SHA-1 over the resulting whole file
// (spec §4.5 and §9: "the exact SHA-1-of-full-file semantics ... is
// followed verbatim").
func ApplySentryUpdate(current []byte, offset int64, add []byte) SentryUpdateResult {
	need := offset + int64(len(add))
	if int64(len(current)) < need {
		grown := make([]byte, need)
		copy(grown, current)
		current = grown
	}
	copy(current[offset:], add)
	return SentryUpdateResult{FileContents: current, Hash: sha1.Sum(current)}
}

// SendMachineAuthResponse replies to a machine-auth callback with the
// fields spec §4.5 names: jobId, fileName, bytesWritten, fileSize,
// offset, OK, zeroLastError, oneTimePassword, sentryFileHash.
func (c *Client) SendMachineAuthResponse(ctx context.Context, jobID uint64, fileName string, bytesWritten int, fileSize int64, offset int64, hash [sha1.Size]byte) error {
	req := struct {
		JobID           uint64 `msgpack:"job_id"`
		FileName        string `msgpack:"file_name"`
		BytesWritten    int    `msgpack:"bytes_written"`
		FileSize        int64  `msgpack:"file_size"`
		Offset          int64  `msgpack:"offset"`
		OK              bool   `msgpack:"ok"`
		ZeroLastError   bool   `msgpack:"zero_last_error"`
		OneTimePassword string `msgpack:"one_time_password"`
		SentryFileHash  []byte `msgpack:"sentry_file_hash"`
	}{
		JobID: jobID, FileName: fileName, BytesWritten: bytesWritten,
		FileSize: fileSize, Offset: offset, OK: true, ZeroLastError: true,
		SentryFileHash: hash[:],
	}
	return c.call(ctx, "MachineAuthResponse", req, nil)
}

// PlayGames reports the given app-ids (plus an optional custom name)
// as currently being played. appearOffline asks the platform to keep
// this session's persona state hidden while still reporting the
// played app-ids (spec §3's FarmOffline: presence-only, never a farm
// suppressor). Fire-and-forget per spec §6.
func (c *Client) PlayGames(ctx context.Context, appIDs []int64, customName string, appearOffline bool) error {
	req := struct {
		AppIDs        []int64 `msgpack:"app_ids"`
		CustomName    string  `msgpack:"custom_name,omitempty"`
		AppearOffline bool    `msgpack:"appear_offline,omitempty"`
	}{AppIDs: appIDs, CustomName: customName, AppearOffline: appearOffline}
	return c.call(ctx, "PlayGames", req, nil)
}

// FreeLicenseResult is the reply to RequestFreeLicense.
type FreeLicenseResult struct {
	GrantedApps     []int64 `msgpack:"granted_apps"`
	GrantedPackages []int64 `msgpack:"granted_packages"`
}

func (c *Client) RequestFreeLicense(ctx context.Context, appID int64) (FreeLicenseResult, error) {
	req := struct {
		AppID int64 `msgpack:"app_id"`
	}{AppID: appID}
	var resp FreeLicenseResult
	err := c.call(ctx, "RequestFreeLicense", req, &resp)
	return resp, err
}

// RedeemKeyResult is the reply to RedeemKey (spec §6).
type RedeemKeyResult struct {
	PurchaseResult string   `msgpack:"purchase_result"`
	Items          []string `msgpack:"items"`
}

func (c *Client) RedeemKey(ctx context.Context, key string) (RedeemKeyResult, error) {
	req := struct {
		Key string `msgpack:"key"`
	}{Key: key}
	var resp RedeemKeyResult
	err := c.call(ctx, "RedeemKey", req, &resp)
	if err != nil {
		return RedeemKeyResult{}, err
	}
	return resp, nil
}

func (c *Client) RequestWebAPIUserNonce(ctx context.Context) (string, error) {
	var resp struct {
		Nonce string `msgpack:"nonce"`
	}
	err := c.call(ctx, "RequestWebAPIUserNonce", struct{}{}, &resp)
	return resp.Nonce, err
}

// OfflineMessage is one queued message flushed on login when
// handleOfflineMessages is set (spec §3).
type OfflineMessage struct {
	SenderID uint64 `msgpack:"sender_id"`
	Body     string `msgpack:"body"`
}

func (c *Client) RequestOfflineMessages(ctx context.Context) ([]OfflineMessage, error) {
	var resp struct {
		Messages []OfflineMessage `msgpack:"messages"`
	}
	err := c.call(ctx, "RequestOfflineMessages", struct{}{}, &resp)
	return resp.Messages, err
}

// StartHeartbeat runs the periodic liveness check (distinct from the
// transport-level ping/pong): it sends an application-level heartbeat
// RPC and disconnects after maxHeartbeatFailures consecutive failures,
// clearing pending calls at the second failure to shed load before
// giving up. Grounded on the teacher's StartHeartbeat in network.go.
func (c *Client) StartHeartbeat(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	failures := 0
	for {
		select {
		case <-ticker.C:
			hbCtx, cancel := context.WithTimeout(ctx, heartbeatResponseDeadline)
			err := c.call(hbCtx, "Heartbeat", struct{}{}, nil)
			cancel()
			if err != nil {
				failures++
				if failures == 2 {
					c.calls.cancelAll()
				}
				if failures >= maxHeartbeatFailures {
					c.disconnectWithReason(DisconnectHeartbeatTimeout, err)
					return
				}
				continue
			}
			failures = 0
			c.lastHeartbeatAt.Store(time.Now().Unix())
		case <-c.ctx.Done():
			return
		case <-ctx.Done():
			return
		}
	}
}

func (c *Client) PendingCallCount() int { return c.calls.count() }

// ServerTimeDelta returns the server-minus-local clock skew in seconds
// last recorded by syncServerTime. Nothing in this module calls
// syncServerTime or reads the delta, so it stays 0 and 2FA codes are
// derived from local time.
func (c *Client) ServerTimeDelta() int64 { return c.serverTimeDelta.Load() }

func (c *Client) syncServerTime(serverUnix int64) {
	c.serverTimeDelta.Store(serverUnix - time.Now().Unix())
}
