package grpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// Messages are structpb.Struct values so the services need no generated code.
// Binary fields travel as base64 strings.

type unaryFunc func(s *GRPCServer, ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)

const (
	vaultServiceName   = "gophvault.VaultService"
	billingServiceName = "gophvault.BillingService"
)

func unary(service, name string, fn unaryFunc) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
			req := new(structpb.Struct)
			if err := dec(req); err != nil {
				return nil, err
			}
			s := srv.(*GRPCServer)
			call := func(ctx context.Context, r interface{}) (interface{}, error) {
				resp, err := fn(s, ctx, r.(*structpb.Struct))
				if err != nil {
					return nil, toStatus(err)
				}
				return resp, nil
			}
			if interceptor == nil {
				return call(ctx, req)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + service + "/" + name}
			return interceptor(ctx, req, info, call)
		},
	}
}

// vaultServer is the handler type of the vault service.
type vaultServer interface {
	hide(req *structpb.Struct, stream grpc.ServerStream) error
}

// billingServer is the handler type of the billing service.
type billingServer interface {
	purchase(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

var vaultServiceDesc = grpc.ServiceDesc{
	ServiceName: vaultServiceName,
	HandlerType: (*vaultServer)(nil),
	Methods: []grpc.MethodDesc{
		unary(vaultServiceName, "Reveal", (*GRPCServer).reveal),
		unary(vaultServiceName, "Delete", (*GRPCServer).delete),
		unary(vaultServiceName, "List", (*GRPCServer).list),
		unary(vaultServiceName, "Status", (*GRPCServer).status),
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Hide",
			ServerStreams: true,
			Handler: func(srv interface{}, stream grpc.ServerStream) error {
				req := new(structpb.Struct)
				if err := stream.RecvMsg(req); err != nil {
					return err
				}
				return toStatus(srv.(*GRPCServer).hide(req, stream))
			},
		},
	},
	Metadata: "gophvault/vault.proto",
}

var billingServiceDesc = grpc.ServiceDesc{
	ServiceName: billingServiceName,
	HandlerType: (*billingServer)(nil),
	Methods: []grpc.MethodDesc{
		unary(billingServiceName, "Purchase", (*GRPCServer).purchase),
		unary(billingServiceName, "ChangeTier", (*GRPCServer).changeTier),
		unary(billingServiceName, "Renew", (*GRPCServer).renew),
		unary(billingServiceName, "Cancel", (*GRPCServer).cancel),
	},
	Metadata: "gophvault/billing.proto",
}
