package rpc

import (
	"io"
	"net"
	"net/http"
	"net/rpc"
	"strconv"
	"time"

	"keytone/emu"
)

// Sim is the part of the simulator exposed over RPC.
type Sim interface {
	Press(sym byte) error
	Release(sym byte) error
	Tap(sym byte, hold time.Duration) error
	State() emu.State
	Stop()
}

type TapArgs struct {
	Key  byte
	Hold time.Duration
}

type simProxy struct {
	sim Sim
}

func (sp *simProxy) Press(key byte, _ *struct{}) error   { return sp.sim.Press(key) }
func (sp *simProxy) Release(key byte, _ *struct{}) error { return sp.sim.Release(key) }
func (sp *simProxy) Tap(args TapArgs, _ *struct{}) error { return sp.sim.Tap(args.Key, args.Hold) }
func (sp *simProxy) Stop(_ *struct{}, _ *struct{}) error { sp.sim.Stop(); return nil }

func (sp *simProxy) State(_ *struct{}, reply *emu.State) error {
	*reply = sp.sim.State()
	return nil
}

type Server struct {
	io.Closer
}

func NewServer(port int, sim Sim) (*Server, error) {
	srv := rpc.NewServer()
	if err := srv.RegisterName("sim", &simProxy{sim: sim}); err != nil {
		panic("failed to register RPC server: " + err.Error())
	}
	mux := http.NewServeMux()
	mux.Handle(rpc.DefaultRPCPath, srv)

	l, err := net.Listen("tcp", "localhost:"+strconv.Itoa(port))
	if err != nil {
		return nil, err
	}

	modRPC.InfoZ("rpc server listening").Int("port", port).End()
	go http.Serve(l, mux)
	return &Server{Closer: l}, nil
}
