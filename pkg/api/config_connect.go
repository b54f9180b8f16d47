package api

import (
	"context"
	"net/http"
	"strings"

	"connectrpc.com/connect"
)

const (
	// ConfigServiceName is the fully-qualified name of the ConfigService service.
	ConfigServiceName = "scopewise.v1.ConfigService"

	ConfigServicePutScopeTypeProcedure       = "/scopewise.v1.ConfigService/PutScopeType"
	ConfigServiceGetScopeTypeProcedure       = "/scopewise.v1.ConfigService/GetScopeType"
	ConfigServicePutCustomFunctionProcedure  = "/scopewise.v1.ConfigService/PutCustomFunction"
	ConfigServiceGetEvaluationOrderProcedure = "/scopewise.v1.ConfigService/GetEvaluationOrder"
)

// ConfigServiceHandler is implemented by the scope type and custom function
// configuration service.
type ConfigServiceHandler interface {
	PutScopeType(context.Context, *connect.Request[PutScopeTypeRequest]) (*connect.Response[ScopeTypeResponse], error)
	GetScopeType(context.Context, *connect.Request[GetScopeTypeRequest]) (*connect.Response[ScopeTypeResponse], error)
	PutCustomFunction(context.Context, *connect.Request[PutCustomFunctionRequest]) (*connect.Response[PutCustomFunctionResponse], error)
	GetEvaluationOrder(context.Context, *connect.Request[GetEvaluationOrderRequest]) (*connect.Response[GetEvaluationOrderResponse], error)
}

// NewConfigServiceHandler builds an HTTP handler from the service implementation.
func NewConfigServiceHandler(svc ConfigServiceHandler, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append([]connect.HandlerOption{connect.WithCodec(Codec{})}, opts...)
	mux := http.NewServeMux()
	mux.Handle(ConfigServicePutScopeTypeProcedure, connect.NewUnaryHandler(ConfigServicePutScopeTypeProcedure, svc.PutScopeType, opts...))
	mux.Handle(ConfigServiceGetScopeTypeProcedure, connect.NewUnaryHandler(ConfigServiceGetScopeTypeProcedure, svc.GetScopeType, opts...))
	mux.Handle(ConfigServicePutCustomFunctionProcedure, connect.NewUnaryHandler(ConfigServicePutCustomFunctionProcedure, svc.PutCustomFunction, opts...))
	mux.Handle(ConfigServiceGetEvaluationOrderProcedure, connect.NewUnaryHandler(ConfigServiceGetEvaluationOrderProcedure, svc.GetEvaluationOrder, opts...))
	return "/" + ConfigServiceName + "/", mux
}

// ConfigServiceClient is a client for the scopewise.v1.ConfigService service.
type ConfigServiceClient interface {
	ConfigServiceHandler
}

type configServiceClient struct {
	putScopeType       *connect.Client[PutScopeTypeRequest, ScopeTypeResponse]
	getScopeType       *connect.Client[GetScopeTypeRequest, ScopeTypeResponse]
	putCustomFunction  *connect.Client[PutCustomFunctionRequest, PutCustomFunctionResponse]
	getEvaluationOrder *connect.Client[GetEvaluationOrderRequest, GetEvaluationOrderResponse]
}

// NewConfigServiceClient constructs a client for the scopewise.v1.ConfigService service.
func NewConfigServiceClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) ConfigServiceClient {
	baseURL = strings.TrimRight(baseURL, "/")
	opts = append([]connect.ClientOption{connect.WithCodec(Codec{})}, opts...)
	return &configServiceClient{
		putScopeType:       connect.NewClient[PutScopeTypeRequest, ScopeTypeResponse](httpClient, baseURL+ConfigServicePutScopeTypeProcedure, opts...),
		getScopeType:       connect.NewClient[GetScopeTypeRequest, ScopeTypeResponse](httpClient, baseURL+ConfigServiceGetScopeTypeProcedure, opts...),
		putCustomFunction:  connect.NewClient[PutCustomFunctionRequest, PutCustomFunctionResponse](httpClient, baseURL+ConfigServicePutCustomFunctionProcedure, opts...),
		getEvaluationOrder: connect.NewClient[GetEvaluationOrderRequest, GetEvaluationOrderResponse](httpClient, baseURL+ConfigServiceGetEvaluationOrderProcedure, opts...),
	}
}

func (c *configServiceClient) PutScopeType(ctx context.Context, req *connect.Request[PutScopeTypeRequest]) (*connect.Response[ScopeTypeResponse], error) {
	return c.putScopeType.CallUnary(ctx, req)
}

func (c *configServiceClient) GetScopeType(ctx context.Context, req *connect.Request[GetScopeTypeRequest]) (*connect.Response[ScopeTypeResponse], error) {
	return c.getScopeType.CallUnary(ctx, req)
}

func (c *configServiceClient) PutCustomFunction(ctx context.Context, req *connect.Request[PutCustomFunctionRequest]) (*connect.Response[PutCustomFunctionResponse], error) {
	return c.putCustomFunction.CallUnary(ctx, req)
}

func (c *configServiceClient) GetEvaluationOrder(ctx context.Context, req *connect.Request[GetEvaluationOrderRequest]) (*connect.Response[GetEvaluationOrderResponse], error) {
	return c.getEvaluationOrder.CallUnary(ctx, req)
}
