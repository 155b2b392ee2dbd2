package shared

import (
	"net/rpc"

	"github.com/hashicorp/go-plugin"

	"github.com/scan-io-git/warden/internal/findings"
)

// Frame is the contract served by out-of-process frame plugins.
type Frame interface {
	Describe() (FrameDescription, error)
	Setup(req FrameSetupRequest) (bool, error)
	Scan(req FrameScanRequest) (FrameScanResponse, error)
}

// FrameDescription is the static description a plugin advertises.
type FrameDescription struct {
	ID                string
	Name              string
	IsBlocker         bool
	MinimumTriageLane string
	RequiresFrames    []string
	RequiresConfig    []string
	RequiresContext   []string
	Priority          int
	Batch             bool // the plugin accepts several files per Scan call
}

// FrameSetupRequest passes the frame settings, encoded as JSON, and the project root.
type FrameSetupRequest struct {
	Root     string
	Settings []byte
	CIMode   bool
}

// PluginFile is a file shipped to a plugin.
type PluginFile struct {
	Path     string
	Content  string
	Language string
	Lane     string
	Context  string
}

// FrameScanRequest represents a single scan call.
type FrameScanRequest struct {
	Files []PluginFile
}

type FrameScanResponse struct {
	Findings []findings.Finding
	Metadata map[string]string
}

type FrameRPCClient struct{ client *rpc.Client }

func (g *FrameRPCClient) Describe() (FrameDescription, error) {
	var resp FrameDescription
	err := g.client.Call("Plugin.Describe", new(interface{}), &resp)
	return resp, err
}

func (g *FrameRPCClient) Setup(req FrameSetupRequest) (bool, error) {
	var resp bool
	if err := g.client.Call("Plugin.Setup", req, &resp); err != nil {
		return false, err
	}
	return resp, nil
}

func (g *FrameRPCClient) Scan(req FrameScanRequest) (FrameScanResponse, error) {
	var resp FrameScanResponse
	err := g.client.Call("Plugin.Scan", req, &resp)
	return resp, err
}

type FrameRPCServer struct {
	Impl Frame
}

func (s *FrameRPCServer) Describe(_ interface{}, resp *FrameDescription) error {
	var err error
	*resp, err = s.Impl.Describe()
	return err
}

func (s *FrameRPCServer) Setup(req FrameSetupRequest, resp *bool) error {
	var err error
	*resp, err = s.Impl.Setup(req)
	return err
}

func (s *FrameRPCServer) Scan(req FrameScanRequest, resp *FrameScanResponse) error {
	var err error
	*resp, err = s.Impl.Scan(req)
	return err
}

type FramePlugin struct {
	Impl Frame
}

func (p *FramePlugin) Server(*plugin.MuxBroker) (interface{}, error) {
	return &FrameRPCServer{Impl: p.Impl}, nil
}

func (FramePlugin) Client(b *plugin.MuxBroker, c *rpc.Client) (interface{}, error) {
	return &FrameRPCClient{client: c}, nil
}
