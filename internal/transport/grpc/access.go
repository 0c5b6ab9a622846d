package transportgrpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/arklim/labsys-access/internal/core/domain"
	grpcinterceptors "github.com/arklim/labsys-access/internal/transport/grpc/interceptors"
	"github.com/arklim/labsys-access/internal/usecase"
)

const accessServiceName = "lab.access.v1.AccessService"

// Full method names served by AccessServer.
const (
	MethodWhoAmI    = "/" + accessServiceName + "/WhoAmI"
	MethodCheckRole = "/" + accessServiceName + "/CheckRole"
)

// WhoAmIRequest is empty; the caller's bearer token travels in metadata.
type WhoAmIRequest struct{}

// IdentityResponse describes the authenticated caller.
type IdentityResponse struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	Name   string `json:"name"`
	Role   string `json:"role"`
}

// CheckRoleRequest lists the roles an operation admits.
type CheckRoleRequest struct {
	Roles []string `json:"roles"`
}

// CheckRoleResponse reports whether the caller holds one of the requested roles.
type CheckRoleResponse struct {
	Allowed bool   `json:"allowed"`
	Role    string `json:"role"`
}

// AccessServer lets other lab services resolve a forwarded bearer token and
// check role membership without holding the signing secret.
type AccessServer struct{}

// NewAccessServer constructs AccessServer.
func NewAccessServer() *AccessServer {
	return &AccessServer{}
}

// WhoAmI returns the identity resolved by the auth interceptor.
func (s *AccessServer) WhoAmI(ctx context.Context, _ *WhoAmIRequest) (*IdentityResponse, error) {
	identity, ok := grpcinterceptors.IdentityFromContext(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "authentication required")
	}
	return &IdentityResponse{
		UserID: identity.ID,
		Email:  identity.Email,
		Name:   identity.Name,
		Role:   string(identity.Role),
	}, nil
}

// CheckRole applies plain role membership; there is no role hierarchy.
func (s *AccessServer) CheckRole(ctx context.Context, req *CheckRoleRequest) (*CheckRoleResponse, error) {
	identity, ok := grpcinterceptors.IdentityFromContext(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "authentication required")
	}
	if req == nil || len(req.Roles) == 0 {
		return nil, status.Error(codes.InvalidArgument, "roles are required")
	}

	roles := make([]domain.Role, 0, len(req.Roles))
	for _, raw := range req.Roles {
		role, err := domain.ParseRole(raw)
		if err != nil {
			return nil, status.Errorf(codes.InvalidArgument, "unknown role %q", raw)
		}
		roles = append(roles, role)
	}

	err := usecase.Authorize(identity, domain.NewRoleSet(roles...))
	return &CheckRoleResponse{Allowed: err == nil, Role: string(identity.Role)}, nil
}

// AccessServiceServer is the contract registered under lab.access.v1.AccessService.
type AccessServiceServer interface {
	WhoAmI(context.Context, *WhoAmIRequest) (*IdentityResponse, error)
	CheckRole(context.Context, *CheckRoleRequest) (*CheckRoleResponse, error)
}

// RegisterAccessServiceServer registers srv on s.
func RegisterAccessServiceServer(s grpc.ServiceRegistrar, srv AccessServiceServer) {
	s.RegisterService(&accessServiceDesc, srv)
}

var accessServiceDesc = grpc.ServiceDesc{
	ServiceName: accessServiceName,
	HandlerType: (*AccessServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "WhoAmI", Handler: whoAmIHandler},
		{MethodName: "CheckRole", Handler: checkRoleHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "lab/access/v1/access.json",
}

func whoAmIHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(WhoAmIRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(AccessServiceServer).WhoAmI(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: MethodWhoAmI}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(AccessServiceServer).WhoAmI(ctx, req.(*WhoAmIRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func checkRoleHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(CheckRoleRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(AccessServiceServer).CheckRole(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: MethodCheckRole}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(AccessServiceServer).CheckRole(ctx, req.(*CheckRoleRequest))
	}
	return interceptor(ctx, in, info, handler)
}
