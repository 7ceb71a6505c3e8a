package miio

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/minghan/handwave/internal/device"
)

// Port is the UDP port miIO devices listen on.
const Port = 54321

// handshakeTTL is how long a handshake's device ID and stamp stay usable
// before a fresh hello is required. Devices reject packets whose stamp has
// drifted too far.
const handshakeTTL = 2 * time.Minute

// Client controls one miIO device over the LAN. It implements
// device.Controller. Calls are serialized internally; the cache and
// dispatcher also never overlap requests to one device.
type Client struct {
	addr  string
	token token

	mu        sync.Mutex
	deviceID  uint32
	stamp     uint32
	stampTime time.Time
	reqID     int64
}

// NewClient creates a client for the device at ip with the given hex token.
func NewClient(ip, hexToken string) (*Client, error) {
	t, err := parseToken(hexToken)
	if err != nil {
		return nil, err
	}
	return &Client{
		addr:  net.JoinHostPort(ip, strconv.Itoa(Port)),
		token: t,
	}, nil
}

// rpcRequest is the JSON-RPC body carried in a miIO packet.
type rpcRequest struct {
	ID     int64 `json:"id"`
	Method string `json:"method"`
	Params []any `json:"params"`
}

// rpcResponse is the device's answer.
type rpcResponse struct {
	ID     int64           `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// GetState queries power, brightness, and color temperature in one call.
// Depending on firmware, numeric properties come back as strings or
// numbers, so both are accepted.
func (c *Client) GetState(ctx context.Context) (device.State, error) {
	var props []any
	if err := c.call(ctx, "get_prop", []any{"power", "bright", "ct"}, &props); err != nil {
		return device.State{}, err
	}
	if len(props) < 3 {
		return device.State{}, fmt.Errorf("get_prop returned %d values, want 3", len(props))
	}

	return device.State{
		Power:      fmt.Sprint(props[0]) == "on",
		Brightness: asInt(props[1]),
		ColorTemp:  asInt(props[2]),
	}, nil
}

func asInt(v any) int {
	switch x := v.(type) {
	case float64:
		return int(x)
	case string:
		n, _ := strconv.Atoi(x)
		return n
	default:
		return 0
	}
}

// SetPower turns the device on or off.
func (c *Client) SetPower(ctx context.Context, on bool) error {
	arg := "off"
	if on {
		arg = "on"
	}
	return c.callOK(ctx, "set_power", []any{arg})
}

// SetBrightness sets the absolute brightness. The hardware floor is 1;
// a requested 0 is sent as 1 with the device left powered.
func (c *Client) SetBrightness(ctx context.Context, level int) error {
	if level < 1 {
		level = 1
	}
	if level > 100 {
		level = 100
	}
	return c.callOK(ctx, "set_bright", []any{level})
}

// SetColorTemp sets the color temperature in Kelvin with a smooth 500ms
// transition, matching the Yeelight set_ct_abx contract.
func (c *Client) SetColorTemp(ctx context.Context, kelvin int) error {
	kelvin = device.ClampColorTemp(kelvin)
	return c.callOK(ctx, "set_ct_abx", []any{kelvin, "smooth", 500})
}

// callOK performs a call whose result is the single string "ok".
func (c *Client) callOK(ctx context.Context, method string, params []any) error {
	var result []string
	if err := c.call(ctx, method, params, &result); err != nil {
		return err
	}
	if len(result) == 0 || result[0] != "ok" {
		return fmt.Errorf("%s: device answered %v", method, result)
	}
	return nil
}

// call sends one JSON-RPC request and decodes the result field into out.
// The socket deadline follows the context deadline, and failures are
// classified into the device error taxonomy.
func (c *Client) call(ctx context.Context, method string, params []any, out any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	conn, err := net.Dial("udp", c.addr)
	if err != nil {
		return fmt.Errorf("%w: %v", device.ErrUnreachable, err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		if err := conn.SetDeadline(deadline); err != nil {
			return fmt.Errorf("%w: setting socket deadline: %v", device.ErrUnreachable, err)
		}
	}

	if err := c.ensureHandshake(conn); err != nil {
		return err
	}

	c.reqID++
	body, err := json.Marshal(rpcRequest{
		ID:     c.reqID,
		Method: method,
		Params: params,
	})
	if err != nil {
		return err
	}

	// Stamp advances with wall time since the handshake.
	stamp := c.stamp + uint32(time.Since(c.stampTime)/time.Second)

	req := packet{
		DeviceID: c.deviceID,
		Stamp:    stamp,
		Payload:  body,
	}
	data, err := req.encode(c.token)
	if err != nil {
		return err
	}

	if _, err := conn.Write(data); err != nil {
		return classify(err)
	}

	buf := make([]byte, 4096)
	n, err := conn.Read(buf)
	if err != nil {
		return classify(err)
	}

	resp, err := decodePacket(buf[:n], c.token)
	if err != nil {
		if errors.Is(err, ErrBadChecksum) {
			return fmt.Errorf("%w: %v", device.ErrBadToken, err)
		}
		return err
	}

	var rpc rpcResponse
	if err := json.Unmarshal(resp.Payload, &rpc); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if rpc.Error != nil {
		return fmt.Errorf("device error %d: %s", rpc.Error.Code, rpc.Error.Message)
	}
	if out != nil && rpc.Result != nil {
		if err := json.Unmarshal(rpc.Result, out); err != nil {
			return fmt.Errorf("decode result: %w", err)
		}
	}
	return nil
}

// ensureHandshake performs the hello exchange if the cached device ID and
// stamp are missing or expired. Caller must hold c.mu.
func (c *Client) ensureHandshake(conn net.Conn) error {
	if c.deviceID != 0 && time.Since(c.stampTime) < handshakeTTL {
		return nil
	}

	if _, err := conn.Write(helloPacket()); err != nil {
		return classify(err)
	}

	buf := make([]byte, headerSize)
	n, err := conn.Read(buf)
	if err != nil {
		return classify(err)
	}

	hello, err := decodePacket(buf[:n], c.token)
	if err != nil {
		return err
	}

	c.deviceID = hello.DeviceID
	c.stamp = hello.Stamp
	c.stampTime = time.Now()
	return nil
}

// classify maps transport errors onto the device error taxonomy.
func classify(err error) error {
	if ne, ok := err.(net.Error); ok && ne.Timeout() {
		return fmt.Errorf("%w: %v", device.ErrTimeout, err)
	}
	return fmt.Errorf("%w: %v", device.ErrUnreachable, err)
}
