package handler

import (
	"context"
	"net"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	"docmanager/internal/domain"
)

func dialLedger(t *testing.T, env *testEnv) *grpc.ClientConn {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	RegisterLedgerServer(srv, NewLedgerGRPCHandler(env.ledger, zaptest.NewLogger(t)))
	go srv.Serve(lis)
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func invoke(t *testing.T, conn *grpc.ClientConn, method string, req map[string]interface{}) (*structpb.Struct, error) {
	t.Helper()
	in, err := structpb.NewStruct(req)
	require.NoError(t, err)
	out := new(structpb.Struct)
	err = conn.Invoke(context.Background(), "/"+LedgerServiceName+"/"+method, in, out)
	return out, err
}

func TestLedgerGRPC(t *testing.T) {
	env := newTestEnv(t)
	acme := env.owner(t, "acme")
	created := env.createDocument(t, acme, "Lease", "v1")
	docID := created.Document.ID.String()

	_, _, err := env.ledger.AddVersion(context.Background(), created.Document.ID, domain.AddVersionParams{
		File:       &domain.FileUpload{Filename: "contract.txt", Data: []byte("v2")},
		SetCurrent: true,
	})
	require.NoError(t, err)

	conn := dialLedger(t, env)

	out, err := invoke(t, conn, "GetCurrentVersion", map[string]interface{}{"document_id": docID})
	require.NoError(t, err)
	assert.Equal(t, float64(2), out.GetFields()["version_number"].GetNumberValue())
	assert.True(t, out.GetFields()["is_current"].GetBoolValue())

	out, err = invoke(t, conn, "GetVersion", map[string]interface{}{"document_id": docID, "version_number": 1})
	require.NoError(t, err)
	assert.False(t, out.GetFields()["is_current"].GetBoolValue())
	assert.Equal(t, "contract.txt", out.GetFields()["original_filename"].GetStringValue())

	out, err = invoke(t, conn, "CountVersions", map[string]interface{}{"document_id": docID})
	require.NoError(t, err)
	assert.Equal(t, float64(2), out.GetFields()["count"].GetNumberValue())
	assert.Equal(t, float64(2), out.GetFields()["latest_version"].GetNumberValue())
}

func TestLedgerGRPCErrors(t *testing.T) {
	env := newTestEnv(t)
	conn := dialLedger(t, env)

	_, err := invoke(t, conn, "GetCurrentVersion", map[string]interface{}{"document_id": "nope"})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = invoke(t, conn, "GetVersion", map[string]interface{}{"document_id": uuid.NewString()})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = invoke(t, conn, "GetVersion", map[string]interface{}{"document_id": uuid.NewString(), "version_number": 1.5})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = invoke(t, conn, "GetCurrentVersion", map[string]interface{}{"document_id": uuid.NewString()})
	assert.Equal(t, codes.NotFound, status.Code(err))

	_, err = invoke(t, conn, "CountVersions", map[string]interface{}{"document_id": uuid.NewString()})
	assert.Equal(t, codes.NotFound, status.Code(err))
}

func TestGRPCCode(t *testing.T) {
	assert.Equal(t, codes.AlreadyExists, grpcCode(domain.KindDuplicateContent))
	assert.Equal(t, codes.Aborted, grpcCode(domain.KindConcurrencyViolation))
	assert.Equal(t, codes.Unavailable, grpcCode(domain.KindStorageUnavailable))
	assert.Equal(t, codes.Internal, grpcCode(""))
}
