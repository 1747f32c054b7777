package turnoverrpc

import (
	"context"

	"google.golang.org/grpc"
)

// ServiceName is the fully qualified gRPC service name
const ServiceName = "turnover.TurnoverService"

// TurnoverServiceServer is the server API for the turnover service
type TurnoverServiceServer interface {
	GetActiveYear(context.Context, *AccountRequest) (*YearResponse, error)
	EnsureActiveYear(context.Context, *AccountRequest) (*YearResponse, error)
	CreateYear(context.Context, *YearRequest) (*YearResponse, error)
	ListYears(context.Context, *AccountRequest) (*ListYearsResponse, error)
	PrepareTurnover(context.Context, *AccountRequest) (*PrepareTurnoverResponse, error)
	ValidateTurnover(context.Context, *TurnoverRequest) (*ValidateTurnoverResponse, error)
	ExecuteTurnover(context.Context, *TurnoverRequest) (*ExecuteTurnoverResponse, error)
	ResumeTurnover(context.Context, *HistoryRequest) (*ExecuteTurnoverResponse, error)
	CancelTurnover(context.Context, *HistoryRequest) (*CancelTurnoverResponse, error)
	GetTurnoverHistory(context.Context, *AccountRequest) (*TurnoverHistoryResponse, error)
	CreateSnapshot(context.Context, *YearRequest) (*SnapshotResponse, error)
	GetSnapshot(context.Context, *YearRequest) (*SnapshotResponse, error)
	ListSnapshots(context.Context, *AccountRequest) (*ListSnapshotsResponse, error)
	FilterSnapshot(context.Context, *FilterSnapshotRequest) (*FilterSnapshotResponse, error)
}

func fullMethod(name string) string {
	return "/" + ServiceName + "/" + name
}

func unary[Req, Resp any](name string, call func(TurnoverServiceServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(TurnoverServiceServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod(name)}
			handler := func(ctx context.Context, req interface{}) (interface{}, error) {
				return call(srv.(TurnoverServiceServer), ctx, req.(*Req))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

// ServiceDesc describes the turnover service for grpc.Server
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*TurnoverServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("GetActiveYear", TurnoverServiceServer.GetActiveYear),
		unary("EnsureActiveYear", TurnoverServiceServer.EnsureActiveYear),
		unary("CreateYear", TurnoverServiceServer.CreateYear),
		unary("ListYears", TurnoverServiceServer.ListYears),
		unary("PrepareTurnover", TurnoverServiceServer.PrepareTurnover),
		unary("ValidateTurnover", TurnoverServiceServer.ValidateTurnover),
		unary("ExecuteTurnover", TurnoverServiceServer.ExecuteTurnover),
		unary("ResumeTurnover", TurnoverServiceServer.ResumeTurnover),
		unary("CancelTurnover", TurnoverServiceServer.CancelTurnover),
		unary("GetTurnoverHistory", TurnoverServiceServer.GetTurnoverHistory),
		unary("CreateSnapshot", TurnoverServiceServer.CreateSnapshot),
		unary("GetSnapshot", TurnoverServiceServer.GetSnapshot),
		unary("ListSnapshots", TurnoverServiceServer.ListSnapshots),
		unary("FilterSnapshot", TurnoverServiceServer.FilterSnapshot),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "turnover",
}

// RegisterTurnoverServiceServer registers srv on s
func RegisterTurnoverServiceServer(s grpc.ServiceRegistrar, srv TurnoverServiceServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// ============================================================================
// Client
// ============================================================================

// TurnoverServiceClient calls the turnover service over a client connection
type TurnoverServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewTurnoverServiceClient(cc grpc.ClientConnInterface) *TurnoverServiceClient {
	return &TurnoverServiceClient{cc: cc}
}

func invoke[Req, Resp any](ctx context.Context, cc grpc.ClientConnInterface, method string, in *Req, opts []grpc.CallOption) (*Resp, error) {
	out := new(Resp)
	opts = append([]grpc.CallOption{CallOption()}, opts...)
	if err := cc.Invoke(ctx, fullMethod(method), in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *TurnoverServiceClient) GetActiveYear(ctx context.Context, in *AccountRequest, opts ...grpc.CallOption) (*YearResponse, error) {
	return invoke[AccountRequest, YearResponse](ctx, c.cc, "GetActiveYear", in, opts)
}

func (c *TurnoverServiceClient) EnsureActiveYear(ctx context.Context, in *AccountRequest, opts ...grpc.CallOption) (*YearResponse, error) {
	return invoke[AccountRequest, YearResponse](ctx, c.cc, "EnsureActiveYear", in, opts)
}

func (c *TurnoverServiceClient) CreateYear(ctx context.Context, in *YearRequest, opts ...grpc.CallOption) (*YearResponse, error) {
	return invoke[YearRequest, YearResponse](ctx, c.cc, "CreateYear", in, opts)
}

func (c *TurnoverServiceClient) ListYears(ctx context.Context, in *AccountRequest, opts ...grpc.CallOption) (*ListYearsResponse, error) {
	return invoke[AccountRequest, ListYearsResponse](ctx, c.cc, "ListYears", in, opts)
}

func (c *TurnoverServiceClient) PrepareTurnover(ctx context.Context, in *AccountRequest, opts ...grpc.CallOption) (*PrepareTurnoverResponse, error) {
	return invoke[AccountRequest, PrepareTurnoverResponse](ctx, c.cc, "PrepareTurnover", in, opts)
}

func (c *TurnoverServiceClient) ValidateTurnover(ctx context.Context, in *TurnoverRequest, opts ...grpc.CallOption) (*ValidateTurnoverResponse, error) {
	return invoke[TurnoverRequest, ValidateTurnoverResponse](ctx, c.cc, "ValidateTurnover", in, opts)
}

func (c *TurnoverServiceClient) ExecuteTurnover(ctx context.Context, in *TurnoverRequest, opts ...grpc.CallOption) (*ExecuteTurnoverResponse, error) {
	return invoke[TurnoverRequest, ExecuteTurnoverResponse](ctx, c.cc, "ExecuteTurnover", in, opts)
}

func (c *TurnoverServiceClient) ResumeTurnover(ctx context.Context, in *HistoryRequest, opts ...grpc.CallOption) (*ExecuteTurnoverResponse, error) {
	return invoke[HistoryRequest, ExecuteTurnoverResponse](ctx, c.cc, "ResumeTurnover", in, opts)
}

func (c *TurnoverServiceClient) CancelTurnover(ctx context.Context, in *HistoryRequest, opts ...grpc.CallOption) (*CancelTurnoverResponse, error) {
	return invoke[HistoryRequest, CancelTurnoverResponse](ctx, c.cc, "CancelTurnover", in, opts)
}

func (c *TurnoverServiceClient) GetTurnoverHistory(ctx context.Context, in *AccountRequest, opts ...grpc.CallOption) (*TurnoverHistoryResponse, error) {
	return invoke[AccountRequest, TurnoverHistoryResponse](ctx, c.cc, "GetTurnoverHistory", in, opts)
}

func (c *TurnoverServiceClient) CreateSnapshot(ctx context.Context, in *YearRequest, opts ...grpc.CallOption) (*SnapshotResponse, error) {
	return invoke[YearRequest, SnapshotResponse](ctx, c.cc, "CreateSnapshot", in, opts)
}

func (c *TurnoverServiceClient) GetSnapshot(ctx context.Context, in *YearRequest, opts ...grpc.CallOption) (*SnapshotResponse, error) {
	return invoke[YearRequest, SnapshotResponse](ctx, c.cc, "GetSnapshot", in, opts)
}

func (c *TurnoverServiceClient) ListSnapshots(ctx context.Context, in *AccountRequest, opts ...grpc.CallOption) (*ListSnapshotsResponse, error) {
	return invoke[AccountRequest, ListSnapshotsResponse](ctx, c.cc, "ListSnapshots", in, opts)
}

func (c *TurnoverServiceClient) FilterSnapshot(ctx context.Context, in *FilterSnapshotRequest, opts ...grpc.CallOption) (*FilterSnapshotResponse, error) {
	return invoke[FilterSnapshotRequest, FilterSnapshotResponse](ctx, c.cc, "FilterSnapshot", in, opts)
}
