package rpc

import (
	"net/rpc"
	"strconv"
	"time"

	"github.com/go-faster/errors"

	"keytone/emu"
)

type Client struct {
	client *rpc.Client
}

// NewClient connects to the simulator listening on port, retrying for a
// while in case it's still starting.
func NewClient(port int) (*Client, error) {
	var (
		client *rpc.Client
		err    error
	)
	const maxretries = 5
	for i := range maxretries {
		client, err = rpc.DialHTTP("tcp", "localhost:"+strconv.Itoa(port))
		if err == nil {
			break
		}
		modRPC.WarnZ("dial tcp failed").Error("err", err).Int("retry", i).End()
		time.Sleep(250 * time.Millisecond)
	}

	if err != nil {
		return nil, errors.Wrap(err, "dial failed max retries")
	}

	return &Client{client: client}, nil
}

func (c *Client) Close() error {
	modRPC.DebugZ("closing rpc client").End()
	return c.client.Close()
}

func (c *Client) Press(key byte) error   { return call(c.client, "sim.Press", key) }
func (c *Client) Release(key byte) error { return call(c.client, "sim.Release", key) }
func (c *Client) Stop() error            { return call(c.client, "sim.Stop", nil) }

func (c *Client) Tap(key byte, hold time.Duration) error {
	return call(c.client, "sim.Tap", TapArgs{Key: key, Hold: hold})
}

func (c *Client) State() (emu.State, error) {
	return request[emu.State](c.client, "sim.State", nil)
}

func call(client *rpc.Client, funcname string, args any) error {
	_, err := request[struct{}](client, funcname, args)
	return err
}

func request[T any](client *rpc.Client, funcname string, args any) (T, error) {
	if args == nil {
		args = &struct{}{}
	}
	var reply T
	if err := client.Call(funcname, args, &reply); err != nil {
		return reply, errors.Wrapf(err, "rpc call %s", funcname)
	}
	return reply, nil
}
