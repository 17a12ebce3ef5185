package telemetryv1

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	DataService_ServiceName          = "rhythm.v1.DataService"
	DataService_PushSamples_FullName = "/rhythm.v1.DataService/PushSamples"
	DataService_Analyze_FullName     = "/rhythm.v1.DataService/Analyze"
)

// DataServiceClient - клиентский API сервиса приёма и анализа пульса
type DataServiceClient interface {
	PushSamples(ctx context.Context, opts ...grpc.CallOption) (DataService_PushSamplesClient, error)
	Analyze(ctx context.Context, in *AnalyzeRequest, opts ...grpc.CallOption) (*AnalyzeResponse, error)
}

type dataServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewDataServiceClient(cc grpc.ClientConnInterface) DataServiceClient {
	return &dataServiceClient{cc}
}

func withCodec(opts []grpc.CallOption) []grpc.CallOption {
	return append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
}

func (c *dataServiceClient) PushSamples(ctx context.Context, opts ...grpc.CallOption) (DataService_PushSamplesClient, error) {
	stream, err := c.cc.NewStream(ctx, &DataService_ServiceDesc.Streams[0], DataService_PushSamples_FullName, withCodec(opts)...)
	if err != nil {
		return nil, err
	}
	return &dataServicePushSamplesClient{stream}, nil
}

func (c *dataServiceClient) Analyze(ctx context.Context, in *AnalyzeRequest, opts ...grpc.CallOption) (*AnalyzeResponse, error) {
	out := new(AnalyzeResponse)
	if err := c.cc.Invoke(ctx, DataService_Analyze_FullName, in, out, withCodec(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}

type DataService_PushSamplesClient interface {
	Send(*Sample) error
	Recv() (*Ack, error)
	grpc.ClientStream
}

type dataServicePushSamplesClient struct {
	grpc.ClientStream
}

func (x *dataServicePushSamplesClient) Send(m *Sample) error {
	return x.ClientStream.SendMsg(m)
}

func (x *dataServicePushSamplesClient) Recv() (*Ack, error) {
	m := new(Ack)
	if err := x.ClientStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

// DataServiceServer - серверная часть сервиса
type DataServiceServer interface {
	PushSamples(DataService_PushSamplesServer) error
	Analyze(context.Context, *AnalyzeRequest) (*AnalyzeResponse, error)
}

// UnimplementedDataServiceServer встраивается в реализации для совместимости
type UnimplementedDataServiceServer struct{}

func (UnimplementedDataServiceServer) PushSamples(DataService_PushSamplesServer) error {
	return status.Error(codes.Unimplemented, "method PushSamples not implemented")
}

func (UnimplementedDataServiceServer) Analyze(context.Context, *AnalyzeRequest) (*AnalyzeResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method Analyze not implemented")
}

func RegisterDataServiceServer(s grpc.ServiceRegistrar, srv DataServiceServer) {
	s.RegisterService(&DataService_ServiceDesc, srv)
}

type DataService_PushSamplesServer interface {
	Send(*Ack) error
	Recv() (*Sample, error)
	grpc.ServerStream
}

type dataServicePushSamplesServer struct {
	grpc.ServerStream
}

func (x *dataServicePushSamplesServer) Send(m *Ack) error {
	return x.ServerStream.SendMsg(m)
}

func (x *dataServicePushSamplesServer) Recv() (*Sample, error) {
	m := new(Sample)
	if err := x.ServerStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

func _DataService_PushSamples_Handler(srv interface{}, stream grpc.ServerStream) error {
	return srv.(DataServiceServer).PushSamples(&dataServicePushSamplesServer{stream})
}

func _DataService_Analyze_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(AnalyzeRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(DataServiceServer).Analyze(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: DataService_Analyze_FullName,
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(DataServiceServer).Analyze(ctx, req.(*AnalyzeRequest))
	}
	return interceptor(ctx, in, info, handler)
}

var DataService_ServiceDesc = grpc.ServiceDesc{
	ServiceName: DataService_ServiceName,
	HandlerType: (*DataServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Analyze",
			Handler:    _DataService_Analyze_Handler,
		},
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "PushSamples",
			Handler:       _DataService_PushSamples_Handler,
			ServerStreams: true,
			ClientStreams: true,
		},
	},
	Metadata: "rhythm/v1/rhythm.proto",
}
