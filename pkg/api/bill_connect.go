package api

import (
	"context"
	"net/http"
	"strings"

	"connectrpc.com/connect"
)

const (
	// BillServiceName is the fully-qualified name of the BillService service.
	BillServiceName = "scopewise.v1.BillService"

	BillServiceCreateBillProcedure       = "/scopewise.v1.BillService/CreateBill"
	BillServiceGetBillProcedure          = "/scopewise.v1.BillService/GetBill"
	BillServiceRefreshBillProcedure      = "/scopewise.v1.BillService/RefreshBill"
	BillServiceGetBillableScopeProcedure = "/scopewise.v1.BillService/GetBillableScope"
)

// BillServiceHandler is implemented by the billing rollup service.
type BillServiceHandler interface {
	CreateBill(context.Context, *connect.Request[CreateBillRequest]) (*connect.Response[BillResponse], error)
	GetBill(context.Context, *connect.Request[GetBillRequest]) (*connect.Response[BillResponse], error)
	RefreshBill(context.Context, *connect.Request[RefreshBillRequest]) (*connect.Response[BillResponse], error)
	GetBillableScope(context.Context, *connect.Request[GetBillableScopeRequest]) (*connect.Response[GetBillableScopeResponse], error)
}

// NewBillServiceHandler builds an HTTP handler from the service implementation.
func NewBillServiceHandler(svc BillServiceHandler, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append([]connect.HandlerOption{connect.WithCodec(Codec{})}, opts...)
	mux := http.NewServeMux()
	mux.Handle(BillServiceCreateBillProcedure, connect.NewUnaryHandler(BillServiceCreateBillProcedure, svc.CreateBill, opts...))
	mux.Handle(BillServiceGetBillProcedure, connect.NewUnaryHandler(BillServiceGetBillProcedure, svc.GetBill, opts...))
	mux.Handle(BillServiceRefreshBillProcedure, connect.NewUnaryHandler(BillServiceRefreshBillProcedure, svc.RefreshBill, opts...))
	mux.Handle(BillServiceGetBillableScopeProcedure, connect.NewUnaryHandler(BillServiceGetBillableScopeProcedure, svc.GetBillableScope, opts...))
	return "/" + BillServiceName + "/", mux
}

// BillServiceClient is a client for the scopewise.v1.BillService service.
type BillServiceClient interface {
	BillServiceHandler
}

type billServiceClient struct {
	createBill       *connect.Client[CreateBillRequest, BillResponse]
	getBill          *connect.Client[GetBillRequest, BillResponse]
	refreshBill      *connect.Client[RefreshBillRequest, BillResponse]
	getBillableScope *connect.Client[GetBillableScopeRequest, GetBillableScopeResponse]
}

// NewBillServiceClient constructs a client for the scopewise.v1.BillService service.
func NewBillServiceClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) BillServiceClient {
	baseURL = strings.TrimRight(baseURL, "/")
	opts = append([]connect.ClientOption{connect.WithCodec(Codec{})}, opts...)
	return &billServiceClient{
		createBill:       connect.NewClient[CreateBillRequest, BillResponse](httpClient, baseURL+BillServiceCreateBillProcedure, opts...),
		getBill:          connect.NewClient[GetBillRequest, BillResponse](httpClient, baseURL+BillServiceGetBillProcedure, opts...),
		refreshBill:      connect.NewClient[RefreshBillRequest, BillResponse](httpClient, baseURL+BillServiceRefreshBillProcedure, opts...),
		getBillableScope: connect.NewClient[GetBillableScopeRequest, GetBillableScopeResponse](httpClient, baseURL+BillServiceGetBillableScopeProcedure, opts...),
	}
}

func (c *billServiceClient) CreateBill(ctx context.Context, req *connect.Request[CreateBillRequest]) (*connect.Response[BillResponse], error) {
	return c.createBill.CallUnary(ctx, req)
}

func (c *billServiceClient) GetBill(ctx context.Context, req *connect.Request[GetBillRequest]) (*connect.Response[BillResponse], error) {
	return c.getBill.CallUnary(ctx, req)
}

func (c *billServiceClient) RefreshBill(ctx context.Context, req *connect.Request[RefreshBillRequest]) (*connect.Response[BillResponse], error) {
	return c.refreshBill.CallUnary(ctx, req)
}

func (c *billServiceClient) GetBillableScope(ctx context.Context, req *connect.Request[GetBillableScopeRequest]) (*connect.Response[GetBillableScopeResponse], error) {
	return c.getBillableScope.CallUnary(ctx, req)
}
