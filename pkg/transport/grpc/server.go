package grpc

import (
    "context"
    "crypto/tls"
    "net"
    "sync"
    "time"

    "google.golang.org/grpc"
    "google.golang.org/grpc/credentials"
    "google.golang.org/grpc/health"
    healthpb "google.golang.org/grpc/health/grpc_health_v1"
    "google.golang.org/grpc/keepalive"

    "github.com/amirimatin/go-nnagent/pkg/observability/tracing"
    "github.com/amirimatin/go-nnagent/pkg/transport"
)

const serviceName = "nnagent.v1.Control"

// Server implements transport.ControlServer over gRPC using a JSON codec.
type Server struct {
    bind   string
    tlsCfg *tls.Config

    mu     sync.Mutex
    lis    net.Listener
    srv    *grpc.Server
    health *health.Server
}

func NewServer(bind string) *Server { return &Server{bind: bind} }

// UseTLS enables TLS for the gRPC server using the provided config.
func (s *Server) UseTLS(cfg *tls.Config) *Server { s.tlsCfg = cfg; return s }

type empty struct{}
type statusBlob struct {
    Data []byte `json:"data"`
}

// controlServer defines the methods exposed by the service.
type controlServer interface {
    GetStatus(ctx context.Context, in *empty) (*statusBlob, error)
    Launch(ctx context.Context, in *transport.LaunchRequest) (*transport.Ack, error)
    Kill(ctx context.Context, in *transport.KillRequest) (*transport.Ack, error)
    Signal(ctx context.Context, in *transport.SignalRequest) (*transport.Ack, error)
}

type controlImpl struct{ h transport.Handlers }

func (c *controlImpl) GetStatus(ctx context.Context, _ *empty) (*statusBlob, error) {
    if c.h.Status == nil { return &statusBlob{}, nil }
    ctx, span := tracing.StartSpan(ctx, "grpc.status")
    b, err := c.h.Status(ctx)
    span.End(err)
    if err != nil { return nil, err }
    return &statusBlob{Data: b}, nil
}

func (c *controlImpl) Launch(ctx context.Context, in *transport.LaunchRequest) (*transport.Ack, error) {
    if in == nil { in = &transport.LaunchRequest{} }
    return call(ctx, "grpc.launch", c.h.Launch, *in)
}

func (c *controlImpl) Kill(ctx context.Context, in *transport.KillRequest) (*transport.Ack, error) {
    if in == nil { in = &transport.KillRequest{} }
    return call(ctx, "grpc.kill", c.h.Kill, *in)
}

func (c *controlImpl) Signal(ctx context.Context, in *transport.SignalRequest) (*transport.Ack, error) {
    if in == nil { in = &transport.SignalRequest{} }
    return call(ctx, "grpc.signal", c.h.Signal, *in)
}

// call runs a handler and folds its error into the Ack so that clients see
// the same shape as over HTTP.
func call[Req any](ctx context.Context, name string, fn func(context.Context, Req) (transport.Ack, error), req Req) (*transport.Ack, error) {
    if fn == nil { return &transport.Ack{Error: "not implemented"}, nil }
    ctx, span := tracing.StartSpan(ctx, name)
    out, err := fn(ctx, req)
    span.End(err)
    if err != nil {
        out.Accepted = false
        if out.Error == "" { out.Error = err.Error() }
    }
    return &out, nil
}

// Service descriptor and handlers (hand-written, no codegen required)
var _Control_serviceDesc = grpc.ServiceDesc{
    ServiceName: serviceName,
    HandlerType: (*controlServer)(nil),
    Methods: []grpc.MethodDesc{
        {MethodName: "GetStatus", Handler: _Control_GetStatus_Handler},
        {MethodName: "Launch", Handler: _Control_Launch_Handler},
        {MethodName: "Kill", Handler: _Control_Kill_Handler},
        {MethodName: "Signal", Handler: _Control_Signal_Handler},
    },
}

func _Control_GetStatus_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
    in := new(empty)
    if err := dec(in); err != nil { return nil, err }
    if interceptor == nil { return srv.(controlServer).GetStatus(ctx, in) }
    info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/GetStatus"}
    handler := func(ctx context.Context, req any) (any, error) {
        return srv.(controlServer).GetStatus(ctx, req.(*empty))
    }
    return interceptor(ctx, in, info, handler)
}

func _Control_Launch_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
    in := new(transport.LaunchRequest)
    if err := dec(in); err != nil { return nil, err }
    if interceptor == nil { return srv.(controlServer).Launch(ctx, in) }
    info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/Launch"}
    handler := func(ctx context.Context, req any) (any, error) {
        return srv.(controlServer).Launch(ctx, req.(*transport.LaunchRequest))
    }
    return interceptor(ctx, in, info, handler)
}

func _Control_Kill_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
    in := new(transport.KillRequest)
    if err := dec(in); err != nil { return nil, err }
    if interceptor == nil { return srv.(controlServer).Kill(ctx, in) }
    info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/Kill"}
    handler := func(ctx context.Context, req any) (any, error) {
        return srv.(controlServer).Kill(ctx, req.(*transport.KillRequest))
    }
    return interceptor(ctx, in, info, handler)
}

func _Control_Signal_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
    in := new(transport.SignalRequest)
    if err := dec(in); err != nil { return nil, err }
    if interceptor == nil { return srv.(controlServer).Signal(ctx, in) }
    info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/Signal"}
    handler := func(ctx context.Context, req any) (any, error) {
        return srv.(controlServer).Signal(ctx, req.(*transport.SignalRequest))
    }
    return interceptor(ctx, in, info, handler)
}

func (s *Server) Start(ctx context.Context, h transport.Handlers) error {
    lis, err := net.Listen("tcp", s.bind)
    if err != nil { return err }
    // Force JSON codec to avoid requiring protobuf types
    opts := []grpc.ServerOption{
        grpc.ForceServerCodec(jsonCodec{}),
        grpc.KeepaliveEnforcementPolicy(keepalive.EnforcementPolicy{MinTime: 5 * time.Second, PermitWithoutStream: true}),
    }
    if s.tlsCfg != nil { opts = append(opts, grpc.Creds(credentials.NewTLS(s.tlsCfg))) }
    srv := grpc.NewServer(opts...)
    hs := health.NewServer()
    healthpb.RegisterHealthServer(srv, hs)
    hs.SetServingStatus(serviceName, healthpb.HealthCheckResponse_SERVING)
    srv.RegisterService(&_Control_serviceDesc, &controlImpl{h: h})

    s.mu.Lock()
    s.lis, s.srv, s.health = lis, srv, hs
    s.mu.Unlock()

    go func() {
        <-ctx.Done()
        sctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
        defer cancel()
        _ = s.Stop(sctx)
    }()
    go func() { _ = srv.Serve(lis) }()
    return nil
}

// Addr returns the bound address once started, else the configured one.
func (s *Server) Addr() string {
    s.mu.Lock(); defer s.mu.Unlock()
    if s.lis != nil { return s.lis.Addr().String() }
    return s.bind
}

func (s *Server) Stop(ctx context.Context) error {
    s.mu.Lock()
    srv, hs := s.srv, s.health
    s.srv, s.health, s.lis = nil, nil, nil
    s.mu.Unlock()
    if srv == nil { return nil }
    hs.Shutdown()
    ch := make(chan struct{})
    go func() { srv.GracefulStop(); close(ch) }()
    select {
    case <-ch:
    case <-ctx.Done():
        srv.Stop()
    }
    return nil
}

var _ transport.ControlServer = (*Server)(nil)
