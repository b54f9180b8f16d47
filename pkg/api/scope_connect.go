package api

import (
	"context"
	"net/http"
	"strings"

	"connectrpc.com/connect"
)

const (
	// ScopeServiceName is the fully-qualified name of the ScopeService service.
	ScopeServiceName = "scopewise.v1.ScopeService"

	ScopeServiceCalculateProcedure      = "/scopewise.v1.ScopeService/Calculate"
	ScopeServiceCreateScopeProcedure    = "/scopewise.v1.ScopeService/CreateScope"
	ScopeServiceGetScopeProcedure       = "/scopewise.v1.ScopeService/GetScope"
	ScopeServiceSaveItemProcedure       = "/scopewise.v1.ScopeService/SaveItem"
	ScopeServiceDeleteItemProcedure     = "/scopewise.v1.ScopeService/DeleteItem"
	ScopeServiceRecalculateProcedure    = "/scopewise.v1.ScopeService/Recalculate"
	ScopeServiceRecalculateAllProcedure = "/scopewise.v1.ScopeService/RecalculateAll"
)

// ScopeServiceHandler is implemented by the scope calculation service.
type ScopeServiceHandler interface {
	Calculate(context.Context, *connect.Request[CalculateRequest]) (*connect.Response[CalculateResponse], error)
	CreateScope(context.Context, *connect.Request[CreateScopeRequest]) (*connect.Response[ScopeResponse], error)
	GetScope(context.Context, *connect.Request[GetScopeRequest]) (*connect.Response[ScopeResponse], error)
	SaveItem(context.Context, *connect.Request[SaveItemRequest]) (*connect.Response[SaveItemResponse], error)
	DeleteItem(context.Context, *connect.Request[DeleteItemRequest]) (*connect.Response[ScopeResponse], error)
	Recalculate(context.Context, *connect.Request[RecalculateRequest]) (*connect.Response[ScopeResponse], error)
	RecalculateAll(context.Context, *connect.Request[RecalculateAllRequest]) (*connect.Response[RecalculateAllResponse], error)
}

// NewScopeServiceHandler builds an HTTP handler from the service implementation.
// It returns the path on which to mount the handler and the handler itself.
func NewScopeServiceHandler(svc ScopeServiceHandler, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append([]connect.HandlerOption{connect.WithCodec(Codec{})}, opts...)
	mux := http.NewServeMux()
	mux.Handle(ScopeServiceCalculateProcedure, connect.NewUnaryHandler(ScopeServiceCalculateProcedure, svc.Calculate, opts...))
	mux.Handle(ScopeServiceCreateScopeProcedure, connect.NewUnaryHandler(ScopeServiceCreateScopeProcedure, svc.CreateScope, opts...))
	mux.Handle(ScopeServiceGetScopeProcedure, connect.NewUnaryHandler(ScopeServiceGetScopeProcedure, svc.GetScope, opts...))
	mux.Handle(ScopeServiceSaveItemProcedure, connect.NewUnaryHandler(ScopeServiceSaveItemProcedure, svc.SaveItem, opts...))
	mux.Handle(ScopeServiceDeleteItemProcedure, connect.NewUnaryHandler(ScopeServiceDeleteItemProcedure, svc.DeleteItem, opts...))
	mux.Handle(ScopeServiceRecalculateProcedure, connect.NewUnaryHandler(ScopeServiceRecalculateProcedure, svc.Recalculate, opts...))
	mux.Handle(ScopeServiceRecalculateAllProcedure, connect.NewUnaryHandler(ScopeServiceRecalculateAllProcedure, svc.RecalculateAll, opts...))
	return "/" + ScopeServiceName + "/", mux
}

// ScopeServiceClient is a client for the scopewise.v1.ScopeService service.
type ScopeServiceClient interface {
	ScopeServiceHandler
}

type scopeServiceClient struct {
	calculate      *connect.Client[CalculateRequest, CalculateResponse]
	createScope    *connect.Client[CreateScopeRequest, ScopeResponse]
	getScope       *connect.Client[GetScopeRequest, ScopeResponse]
	saveItem       *connect.Client[SaveItemRequest, SaveItemResponse]
	deleteItem     *connect.Client[DeleteItemRequest, ScopeResponse]
	recalculate    *connect.Client[RecalculateRequest, ScopeResponse]
	recalculateAll *connect.Client[RecalculateAllRequest, RecalculateAllResponse]
}

// NewScopeServiceClient constructs a client for the scopewise.v1.ScopeService
// service. The URL is the base URL of the server, without a trailing slash.
func NewScopeServiceClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) ScopeServiceClient {
	baseURL = strings.TrimRight(baseURL, "/")
	opts = append([]connect.ClientOption{connect.WithCodec(Codec{})}, opts...)
	return &scopeServiceClient{
		calculate:      connect.NewClient[CalculateRequest, CalculateResponse](httpClient, baseURL+ScopeServiceCalculateProcedure, opts...),
		createScope:    connect.NewClient[CreateScopeRequest, ScopeResponse](httpClient, baseURL+ScopeServiceCreateScopeProcedure, opts...),
		getScope:       connect.NewClient[GetScopeRequest, ScopeResponse](httpClient, baseURL+ScopeServiceGetScopeProcedure, opts...),
		saveItem:       connect.NewClient[SaveItemRequest, SaveItemResponse](httpClient, baseURL+ScopeServiceSaveItemProcedure, opts...),
		deleteItem:     connect.NewClient[DeleteItemRequest, ScopeResponse](httpClient, baseURL+ScopeServiceDeleteItemProcedure, opts...),
		recalculate:    connect.NewClient[RecalculateRequest, ScopeResponse](httpClient, baseURL+ScopeServiceRecalculateProcedure, opts...),
		recalculateAll: connect.NewClient[RecalculateAllRequest, RecalculateAllResponse](httpClient, baseURL+ScopeServiceRecalculateAllProcedure, opts...),
	}
}

func (c *scopeServiceClient) Calculate(ctx context.Context, req *connect.Request[CalculateRequest]) (*connect.Response[CalculateResponse], error) {
	return c.calculate.CallUnary(ctx, req)
}

func (c *scopeServiceClient) CreateScope(ctx context.Context, req *connect.Request[CreateScopeRequest]) (*connect.Response[ScopeResponse], error) {
	return c.createScope.CallUnary(ctx, req)
}

func (c *scopeServiceClient) GetScope(ctx context.Context, req *connect.Request[GetScopeRequest]) (*connect.Response[ScopeResponse], error) {
	return c.getScope.CallUnary(ctx, req)
}

func (c *scopeServiceClient) SaveItem(ctx context.Context, req *connect.Request[SaveItemRequest]) (*connect.Response[SaveItemResponse], error) {
	return c.saveItem.CallUnary(ctx, req)
}

func (c *scopeServiceClient) DeleteItem(ctx context.Context, req *connect.Request[DeleteItemRequest]) (*connect.Response[ScopeResponse], error) {
	return c.deleteItem.CallUnary(ctx, req)
}

func (c *scopeServiceClient) Recalculate(ctx context.Context, req *connect.Request[RecalculateRequest]) (*connect.Response[ScopeResponse], error) {
	return c.recalculate.CallUnary(ctx, req)
}

func (c *scopeServiceClient) RecalculateAll(ctx context.Context, req *connect.Request[RecalculateAllRequest]) (*connect.Response[RecalculateAllResponse], error) {
	return c.recalculateAll.CallUnary(ctx, req)
}
