package inference

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/danielpatrickdp/driftguard/internal/patch"
	"github.com/danielpatrickdp/driftguard/internal/validate"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

const maxRetries = 2 // max 2 retries = 3 total attempts

// #region method
// The inference service exposes a single generic Predict method. Requests and
// responses are google.protobuf.Struct, so no generated stubs are needed on
// this side of the boundary.
const predictMethod = "/driftguard.InferenceService/Predict"

// #endregion method

// #region invoker
// invoker is the subset of grpc.ClientConn used by the client.
// Injected in tests to avoid a live connection.
type invoker interface {
	Invoke(ctx context.Context, method string, args, reply any, opts ...grpc.CallOption) error
}

// #endregion invoker

// #region client-struct
// Client wraps the gRPC connection to the model inference service.
type Client struct {
	conn *grpc.ClientConn
	inv  invoker
}

// #endregion client-struct

// #region constructor
// NewClient connects to the inference gRPC server.
func NewClient(addr string) (*Client, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("grpc dial %s: %w", addr, err)
	}
	return &Client{conn: conn, inv: conn}, nil
}

// NewClientWithInvoker creates a Client with an injected invoker.
// Used for testing without a real gRPC connection.
func NewClientWithInvoker(inv invoker) *Client {
	return &Client{inv: inv}
}

// #endregion constructor

// #region close
// Close shuts down the gRPC connection.
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

// #endregion close

// #region predict
// Predict scores a batch of inputs. When cfg is non-nil the serialized patch
// configuration rides along so the service can score under the candidate
// transformation.
func (c *Client) Predict(ctx context.Context, inputs [][]float64, cfg *patch.Configuration) ([]float64, error) {
	req, err := buildRequest(inputs, cfg)
	if err != nil {
		return nil, err
	}

	var resp *structpb.Struct
	for attempt := 0; ; attempt++ {
		resp = &structpb.Struct{}
		err = c.inv.Invoke(ctx, predictMethod, req, resp)
		if err == nil {
			break
		}
		if attempt >= maxRetries || status.Code(err) != codes.Unavailable {
			return nil, fmt.Errorf("predict rpc: %w", err)
		}
	}
	return parseScores(resp, len(inputs))
}

// AsPredictFunc adapts the client to the validation boundary.
func (c *Client) AsPredictFunc() validate.PredictFunc {
	return c.Predict
}

// #endregion predict

// #region request
func buildRequest(inputs [][]float64, cfg *patch.Configuration) (*structpb.Struct, error) {
	rows := make([]any, len(inputs))
	for i, row := range inputs {
		vals := make([]any, len(row))
		for j, v := range row {
			vals[j] = v
		}
		rows[i] = vals
	}

	fields := map[string]any{"inputs": rows}
	if cfg != nil {
		cfgJSON, err := json.Marshal(cfg)
		if err != nil {
			return nil, fmt.Errorf("marshal configuration: %w", err)
		}
		var cfgMap map[string]any
		if err := json.Unmarshal(cfgJSON, &cfgMap); err != nil {
			return nil, fmt.Errorf("decode configuration: %w", err)
		}
		fields["configuration"] = cfgMap
	}

	req, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	return req, nil
}

// #endregion request

// #region response
func parseScores(resp *structpb.Struct, want int) ([]float64, error) {
	field, ok := resp.Fields["scores"]
	if !ok {
		return nil, fmt.Errorf("predict response missing scores field")
	}
	list := field.GetListValue()
	if list == nil {
		return nil, fmt.Errorf("predict response scores is not a list")
	}
	if len(list.Values) != want {
		return nil, fmt.Errorf("predict returned %d scores for %d inputs", len(list.Values), want)
	}

	scores := make([]float64, len(list.Values))
	for i, v := range list.Values {
		nv, ok := v.Kind.(*structpb.Value_NumberValue)
		if !ok {
			return nil, fmt.Errorf("score %d is not numeric", i)
		}
		scores[i] = nv.NumberValue
	}
	return scores, nil
}

// #endregion response
