package room

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/davecgh/go-spew/spew"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/eljojo/civic/messages"
	"github.com/eljojo/civic/types"
	"github.com/eljojo/civic/utilities"
	"github.com/sirupsen/logrus"
)

// ErrStreamTruncated is returned when a stream ends without its final response.
var ErrStreamTruncated = errors.New("stream ended before done")

// MQTTConfig configures the MQTT dialer.
type MQTTConfig struct {
	Broker   string // e.g. tcp://localhost:1883
	Username string
	Password string
	ClientID string        // random when empty
	Timeout  time.Duration // per request, idle; 30s when zero
}

// MQTTDialer reaches rooms through an MQTT broker with a request/response
// convention: requests go to room/<key>/rpc, responses come back on
// room/<key>/rpc/reply/<clientID>.
type MQTTDialer struct {
	cfg MQTTConfig
}

// NewMQTTDialer creates a dialer.
func NewMQTTDialer(cfg MQTTConfig) *MQTTDialer {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &MQTTDialer{cfg: cfg}
}

// RequestTopic is where requests for the room at addr are published.
// Keys are base64url so they never contain topic separators or wildcards.
func RequestTopic(addr types.Address) string {
	return "room/" + base64.RawURLEncoding.EncodeToString(addr.FeedID().PublicKey()) + "/rpc"
}

// ReplyTopic is where responses for clientID are published.
func ReplyTopic(addr types.Address, clientID string) string {
	return RequestTopic(addr) + "/reply/" + clientID
}

// Dial connects to the broker and subscribes to our reply topic.
func (d *MQTTDialer) Dial(ctx context.Context, addr types.Address) (Conn, error) {
	clientID := d.cfg.ClientID
	if clientID == "" {
		clientID = "civic-" + randomHex(6)
	}

	c := &mqttConn{
		requestTopic: RequestTopic(addr),
		replyTopic:   ReplyTopic(addr, clientID),
		timeout:      d.cfg.Timeout,
		pending:      utilities.NewCorrelator[messages.RPCResponse](d.cfg.Timeout),
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(d.cfg.Broker)
	opts.SetClientID(clientID)
	opts.SetUsername(d.cfg.Username)
	opts.SetPassword(d.cfg.Password)
	opts.SetAutoReconnect(false)
	opts.SetConnectTimeout(d.cfg.Timeout)
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		logrus.Warnf("room MQTT connection lost: %v", err)
		c.pending.Close()
	}
	c.client = mqtt.NewClient(opts)

	if err := wait(ctx, c.client.Connect(), d.cfg.Timeout); err != nil {
		c.pending.Close()
		return nil, fmt.Errorf("mqtt connect %s: %w", d.cfg.Broker, err)
	}
	if err := wait(ctx, c.client.Subscribe(c.replyTopic, 1, c.handleReply), d.cfg.Timeout); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("subscribe %s: %w", c.replyTopic, err)
	}
	return c, nil
}

type mqttConn struct {
	client       mqtt.Client
	requestTopic string
	replyTopic   string
	timeout      time.Duration
	pending      *utilities.Correlator[messages.RPCResponse]
	nextID       atomic.Uint64
	closed       atomic.Bool
}

func (c *mqttConn) handleReply(_ mqtt.Client, msg mqtt.Message) {
	var resp messages.RPCResponse
	if err := json.Unmarshal(msg.Payload(), &resp); err != nil {
		logrus.Debugf("room reply is not JSON: %v", err)
		return
	}
	if err := resp.Validate(); err != nil {
		logrus.Debugf("room reply dropped: %v", err)
		return
	}
	if logrus.IsLevelEnabled(logrus.TraceLevel) {
		logrus.Tracef("room reply %s", spew.Sdump(resp))
	}
	c.pending.Receive(resp.ID, resp, resp.Done || resp.Error != "")
}

// call publishes a request and returns the channel its responses arrive on.
func (c *mqttConn) call(ctx context.Context, method string, args any) (<-chan utilities.Result[messages.RPCResponse], error) {
	if c.closed.Load() {
		return nil, errors.New("connection closed")
	}

	req := messages.RPCRequest{
		ID:      fmt.Sprintf("%s-%d", method, c.nextID.Add(1)),
		Method:  method,
		ReplyTo: c.replyTopic,
	}
	if args != nil {
		raw, err := json.Marshal(args)
		if err != nil {
			return nil, err
		}
		req.Args = raw
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	replies := c.pending.Expect(req.ID)
	if err := wait(ctx, c.client.Publish(c.requestTopic, 1, false, payload), c.timeout); err != nil {
		c.pending.Fail(req.ID, err)
		return nil, fmt.Errorf("publish %s: %w", method, err)
	}
	return replies, nil
}

// single waits for the one response of a non-streaming call.
func single(ctx context.Context, replies <-chan utilities.Result[messages.RPCResponse], out any) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case r, ok := <-replies:
		if !ok {
			return ErrStreamTruncated
		}
		if r.Err != nil {
			return r.Err
		}
		if err := r.Response.Err(); err != nil {
			return err
		}
		return r.Response.Decode(out)
	}
}

func (c *mqttConn) Metadata(ctx context.Context) (string, error) {
	replies, err := c.call(ctx, messages.MethodMetadata, nil)
	if err != nil {
		return "", err
	}
	var meta messages.RoomMetadata
	if err := single(ctx, replies, &meta); err != nil {
		return "", err
	}
	return meta.Name, nil
}

func (c *mqttConn) ListAliases(ctx context.Context, id types.FeedID) ([]string, error) {
	args := messages.AliasListArgs{ID: id.String()}
	if err := args.Validate(); err != nil {
		return nil, err
	}
	replies, err := c.call(ctx, messages.MethodListAliases, args)
	if err != nil {
		return nil, err
	}
	var list messages.AliasList
	if err := single(ctx, replies, &list); err != nil {
		return nil, err
	}
	return list.Aliases, nil
}

func (c *mqttConn) Members(ctx context.Context) (MemberStream, error) {
	replies, err := c.call(ctx, messages.MethodMembers, nil)
	if err != nil {
		return nil, err
	}
	return &mqttMemberStream{replies: replies}, nil
}

func (c *mqttConn) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	c.pending.Close()
	if c.client.IsConnected() {
		c.client.Unsubscribe(c.replyTopic).WaitTimeout(time.Second)
		c.client.Disconnect(250)
	}
	return nil
}

type mqttMemberStream struct {
	replies <-chan utilities.Result[messages.RPCResponse]
	done    bool
}

func (s *mqttMemberStream) Next(ctx context.Context) ([]types.FeedID, bool, error) {
	for !s.done {
		var r utilities.Result[messages.RPCResponse]
		var ok bool
		select {
		case <-ctx.Done():
			return nil, false, ctx.Err()
		case r, ok = <-s.replies:
		}
		if !ok {
			return nil, false, ErrStreamTruncated
		}
		if r.Err != nil {
			return nil, false, r.Err
		}
		if err := r.Response.Err(); err != nil {
			return nil, false, err
		}
		s.done = r.Response.Done
		if len(r.Response.Data) == 0 {
			continue
		}

		var batch messages.MemberBatch
		if err := r.Response.Decode(&batch); err != nil {
			return nil, false, err
		}
		if err := batch.Validate(); err != nil {
			return nil, false, err
		}
		ids := make([]types.FeedID, 0, len(batch.Members))
		for _, m := range batch.Members {
			ids = append(ids, types.FeedID(m.ID))
		}
		return ids, true, nil
	}
	return nil, false, nil
}

// wait blocks on an MQTT token, honouring ctx and timeout.
func wait(ctx context.Context, token mqtt.Token, timeout time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-token.Done():
		return token.Error()
	case <-time.After(timeout):
		return utilities.ErrTimeout
	}
}

func randomHex(n int) string {
	b := make([]byte, n)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
