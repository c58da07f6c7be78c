package handler

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"docmanager/internal/domain"
	"docmanager/internal/service"
)

// LedgerServiceName полное имя gRPC-сервиса чтения версий
const LedgerServiceName = "docmanager.v1.VersionLedger"

// LedgerServer read-only доступ к журналу версий.
// Запросы и ответы передаются как google.protobuf.Struct.
type LedgerServer interface {
	GetCurrentVersion(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetVersion(context.Context, *structpb.Struct) (*structpb.Struct, error)
	CountVersions(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

func unaryLedgerHandler(call func(LedgerServer, context.Context, *structpb.Struct) (*structpb.Struct, error), method string) func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	return func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(LedgerServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{
			Server:     srv,
			FullMethod: "/" + LedgerServiceName + "/" + method,
		}
		return interceptor(ctx, in, info, func(ctx context.Context, req interface{}) (interface{}, error) {
			return call(srv.(LedgerServer), ctx, req.(*structpb.Struct))
		})
	}
}

var LedgerServiceDesc = grpc.ServiceDesc{
	ServiceName: LedgerServiceName,
	HandlerType: (*LedgerServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetCurrentVersion", Handler: unaryLedgerHandler(LedgerServer.GetCurrentVersion, "GetCurrentVersion")},
		{MethodName: "GetVersion", Handler: unaryLedgerHandler(LedgerServer.GetVersion, "GetVersion")},
		{MethodName: "CountVersions", Handler: unaryLedgerHandler(LedgerServer.CountVersions, "CountVersions")},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "docmanager/v1/ledger.proto",
}

func RegisterLedgerServer(s grpc.ServiceRegistrar, srv LedgerServer) {
	s.RegisterService(&LedgerServiceDesc, srv)
}

type LedgerGRPCHandler struct {
	ledger *service.VersionLedger
	logger *zap.Logger
}

func NewLedgerGRPCHandler(ledger *service.VersionLedger, logger *zap.Logger) *LedgerGRPCHandler {
	return &LedgerGRPCHandler{
		ledger: ledger,
		logger: logger.With(zap.String("handler", "ledger_grpc")),
	}
}

// grpcCode сопоставляет вид ошибки с кодом gRPC
func grpcCode(kind domain.ErrorKind) codes.Code {
	switch kind {
	case domain.KindValidation, domain.KindUnknownTypeCode:
		return codes.InvalidArgument
	case domain.KindDuplicateTitle, domain.KindDuplicateContent:
		return codes.AlreadyExists
	case domain.KindConcurrencyViolation:
		return codes.Aborted
	case domain.KindOwnerNotFound, domain.KindNotFound:
		return codes.NotFound
	case domain.KindStorageUnavailable, domain.KindEntropyUnavailable:
		return codes.Unavailable
	}
	return codes.Internal
}

func (h *LedgerGRPCHandler) statusError(method string, err error) error {
	code := grpcCode(domain.KindOf(err))
	if code == codes.Internal {
		h.logger.Error("grpc request failed", zap.String("method", method), zap.Error(err))
		return status.Error(code, "internal error")
	}
	return status.Error(code, err.Error())
}

func documentID(in *structpb.Struct) (uuid.UUID, error) {
	raw := in.GetFields()["document_id"].GetStringValue()
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, status.Errorf(codes.InvalidArgument, "invalid document_id %q", raw)
	}
	return id, nil
}

func versionStruct(v *domain.DocumentVersion) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "failed to encode version: %v", err)
	}
	var fields map[string]interface{}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, status.Errorf(codes.Internal, "failed to encode version: %v", err)
	}
	return structpb.NewStruct(fields)
}

func (h *LedgerGRPCHandler) GetCurrentVersion(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	id, err := documentID(in)
	if err != nil {
		return nil, err
	}

	v, err := h.ledger.GetCurrent(ctx, id)
	if err != nil {
		return nil, h.statusError("GetCurrentVersion", err)
	}
	return versionStruct(v)
}

func (h *LedgerGRPCHandler) GetVersion(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	id, err := documentID(in)
	if err != nil {
		return nil, err
	}
	number, ok := in.GetFields()["version_number"]
	if !ok {
		return nil, status.Error(codes.InvalidArgument, "version_number is required")
	}
	n := number.GetNumberValue()
	if n != float64(int(n)) {
		return nil, status.Error(codes.InvalidArgument, fmt.Sprintf("version_number must be an integer, got %v", n))
	}

	v, err := h.ledger.GetVersion(ctx, id, int(n))
	if err != nil {
		return nil, h.statusError("GetVersion", err)
	}
	return versionStruct(v)
}

func (h *LedgerGRPCHandler) CountVersions(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	id, err := documentID(in)
	if err != nil {
		return nil, err
	}

	count, err := h.ledger.Count(ctx, id)
	if err != nil {
		return nil, h.statusError("CountVersions", err)
	}
	latest, err := h.ledger.LatestNumber(ctx, id)
	if err != nil {
		return nil, h.statusError("CountVersions", err)
	}
	return structpb.NewStruct(map[string]interface{}{
		"document_id":    id.String(),
		"count":          count,
		"latest_version": latest,
	})
}
