package plugin

import (
	"context"
	"encoding/json"

	"github.com/hashicorp/go-plugin"
	"google.golang.org/grpc"
	"google.golang.org/grpc/encoding"
)

const (
	codecName   = "json"
	serviceName = "rosterd.plugin.DynamicRoster"
)

// jsonCodec lets the service run over gRPC without generated protobuf types
type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }
func (jsonCodec) Name() string                       { return codecName }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

type metadataRequest struct{}

type contactsRequest struct {
	Owner    string            `json:"owner"`
	Settings map[string]string `json:"settings,omitempty"`
}

type contactsResponse struct {
	Contacts []Contact `json:"contacts"`
}

type lookupRequest struct {
	Owner    string            `json:"owner"`
	Settings map[string]string `json:"settings,omitempty"`
	JID      string            `json:"jid"`
}

type lookupResponse struct {
	Contact *Contact `json:"contact,omitempty"`
}

type extraResponse struct {
	Extra *Extra `json:"extra,omitempty"`
}

type storeExtraRequest struct {
	Owner    string            `json:"owner"`
	Settings map[string]string `json:"settings,omitempty"`
	Extra    Extra             `json:"extra"`
}

type empty struct{}

func unary[Req any](method string, call func(ctx context.Context, impl DynamicRoster, req *Req) (any, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			req := new(Req)
			if err := dec(req); err != nil {
				return nil, err
			}
			impl := srv.(DynamicRoster)
			if interceptor == nil {
				return call(ctx, impl, req)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/" + method}
			return interceptor(ctx, req, info, func(ctx context.Context, r any) (any, error) {
				return call(ctx, impl, r.(*Req))
			})
		},
	}
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*DynamicRoster)(nil),
	Methods: []grpc.MethodDesc{
		unary("Metadata", func(ctx context.Context, impl DynamicRoster, _ *metadataRequest) (any, error) {
			md, err := impl.Metadata(ctx)
			if err != nil {
				return nil, err
			}
			return &md, nil
		}),
		unary("Contacts", func(ctx context.Context, impl DynamicRoster, req *contactsRequest) (any, error) {
			contacts, err := impl.Contacts(ctx, req.Owner, req.Settings)
			if err != nil {
				return nil, err
			}
			return &contactsResponse{Contacts: contacts}, nil
		}),
		unary("Lookup", func(ctx context.Context, impl DynamicRoster, req *lookupRequest) (any, error) {
			c, err := impl.Lookup(ctx, req.Owner, req.Settings, req.JID)
			if err != nil {
				return nil, err
			}
			return &lookupResponse{Contact: c}, nil
		}),
		unary("Extra", func(ctx context.Context, impl DynamicRoster, req *lookupRequest) (any, error) {
			e, err := impl.Extra(ctx, req.Owner, req.Settings, req.JID)
			if err != nil {
				return nil, err
			}
			return &extraResponse{Extra: e}, nil
		}),
		unary("StoreExtra", func(ctx context.Context, impl DynamicRoster, req *storeExtraRequest) (any, error) {
			if err := impl.StoreExtra(ctx, req.Owner, req.Settings, req.Extra); err != nil {
				return nil, err
			}
			return &empty{}, nil
		}),
	},
	Metadata: "rosterd/plugin",
}

// grpcClient is the host side of the connection
type grpcClient struct {
	conn *grpc.ClientConn
}

func (c *grpcClient) invoke(ctx context.Context, method string, req, resp any) error {
	return c.conn.Invoke(ctx, "/"+serviceName+"/"+method, req, resp, grpc.CallContentSubtype(codecName))
}

func (c *grpcClient) Metadata(ctx context.Context) (Metadata, error) {
	var md Metadata
	err := c.invoke(ctx, "Metadata", &metadataRequest{}, &md)
	return md, err
}

func (c *grpcClient) Contacts(ctx context.Context, owner string, settings map[string]string) ([]Contact, error) {
	var resp contactsResponse
	if err := c.invoke(ctx, "Contacts", &contactsRequest{Owner: owner, Settings: settings}, &resp); err != nil {
		return nil, err
	}
	return resp.Contacts, nil
}

func (c *grpcClient) Lookup(ctx context.Context, owner string, settings map[string]string, jid string) (*Contact, error) {
	var resp lookupResponse
	if err := c.invoke(ctx, "Lookup", &lookupRequest{Owner: owner, Settings: settings, JID: jid}, &resp); err != nil {
		return nil, err
	}
	return resp.Contact, nil
}

func (c *grpcClient) Extra(ctx context.Context, owner string, settings map[string]string, jid string) (*Extra, error) {
	var resp extraResponse
	if err := c.invoke(ctx, "Extra", &lookupRequest{Owner: owner, Settings: settings, JID: jid}, &resp); err != nil {
		return nil, err
	}
	return resp.Extra, nil
}

func (c *grpcClient) StoreExtra(ctx context.Context, owner string, settings map[string]string, extra Extra) error {
	return c.invoke(ctx, "StoreExtra", &storeExtraRequest{Owner: owner, Settings: settings, Extra: extra}, &empty{})
}

// GRPCPlugin is the go-plugin glue for DynamicRoster
type GRPCPlugin struct {
	plugin.NetRPCUnsupportedPlugin
	Impl DynamicRoster
}

// GRPCServer registers the implementation on the plugin's gRPC server
func (p *GRPCPlugin) GRPCServer(broker *plugin.GRPCBroker, s *grpc.Server) error {
	s.RegisterService(&serviceDesc, p.Impl)
	return nil
}

// GRPCClient returns a DynamicRoster talking to the plugin process
func (p *GRPCPlugin) GRPCClient(ctx context.Context, broker *plugin.GRPCBroker, c *grpc.ClientConn) (interface{}, error) {
	return &grpcClient{conn: c}, nil
}
