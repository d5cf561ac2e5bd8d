// Package clients provides HTTP clients for the land registry API.
package clients

import (
	"bytes"
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ruteri/land-registry/api"
	"github.com/ruteri/land-registry/cryptoutils"
	"github.com/ruteri/land-registry/interfaces"
)

// APIError is a non-2xx response from the server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.StatusCode, e.Message)
}

// LandClient implements api.LandProvider and api.AdminProvider over HTTP.
// With a signing key set, every mutating request is signed and the caller is
// the key's address; otherwise Caller is sent unauthenticated.
type LandClient struct {
	ServerAddr string
	Caller     common.Address
	HTTPClient *http.Client

	key *ecdsa.PrivateKey
}

func NewLandClient(serverAddr string) *LandClient {
	return &LandClient{
		ServerAddr: strings.TrimSuffix(serverAddr, "/"),
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// WithKey makes the client sign requests with key.
func (c *LandClient) WithKey(key *ecdsa.PrivateKey) *LandClient {
	c.key = key
	c.Caller = crypto.PubkeyToAddress(key.PublicKey)
	return c
}

func (c *LandClient) Collection() (*api.CollectionResponse, error) {
	var resp api.CollectionResponse
	return &resp, c.do(http.MethodGet, "/api/collection", nil, &resp)
}

func (c *LandClient) Mint(metadata string) (*api.MintResponse, error) {
	var resp api.MintResponse
	return &resp, c.do(http.MethodPost, "/api/lands", api.MintRequest{Metadata: metadata}, &resp)
}

func (c *LandClient) Parcel(id interfaces.ParcelID) (*api.ParcelResponse, error) {
	var resp api.ParcelResponse
	return &resp, c.do(http.MethodGet, "/api/lands/"+id.String(), nil, &resp)
}

func (c *LandClient) Parcels(listedOnly bool) ([]api.ParcelResponse, error) {
	var resp []api.ParcelResponse
	path := "/api/lands"
	if listedOnly {
		path += "?listed=true"
	}
	return resp, c.do(http.MethodGet, path, nil, &resp)
}

func (c *LandClient) Owner(id interfaces.ParcelID) (common.Address, error) {
	var resp api.OwnerResponse
	err := c.do(http.MethodGet, "/api/lands/"+id.String()+"/owner", nil, &resp)
	return resp.Owner, err
}

func (c *LandClient) Owners(id interfaces.ParcelID) ([]common.Address, error) {
	var resp api.OwnersResponse
	err := c.do(http.MethodGet, "/api/lands/"+id.String()+"/owners", nil, &resp)
	return resp.Owners, err
}

func (c *LandClient) TokenURI(id interfaces.ParcelID) (string, error) {
	var resp api.URIResponse
	err := c.do(http.MethodGet, "/api/lands/"+id.String()+"/uri", nil, &resp)
	return resp.URI, err
}

func (c *LandClient) Total() (uint64, error) {
	var resp api.TotalResponse
	err := c.do(http.MethodGet, "/api/lands/total", nil, &resp)
	return resp.Total, err
}

func (c *LandClient) Purchase(id interfaces.ParcelID, amount *hexutil.Big) (*api.ParcelResponse, error) {
	var resp api.ParcelResponse
	return &resp, c.do(http.MethodPost, "/api/lands/"+id.String()+"/purchase", api.PurchaseRequest{Amount: amount}, &resp)
}

func (c *LandClient) Resell(id interfaces.ParcelID, price *hexutil.Big) (*api.ParcelResponse, error) {
	var resp api.ParcelResponse
	return &resp, c.do(http.MethodPost, "/api/lands/"+id.String()+"/resell", api.ResellRequest{Price: price}, &resp)
}

func (c *LandClient) Account(addr common.Address) (*api.AccountResponse, error) {
	var resp api.AccountResponse
	return &resp, c.do(http.MethodGet, "/api/accounts/"+addr.Hex(), nil, &resp)
}

func (c *LandClient) Events(since uint64) (*api.EventsResponse, error) {
	var resp api.EventsResponse
	query := url.Values{"since": {strconv.FormatUint(since, 10)}}
	return &resp, c.do(http.MethodGet, "/api/events?"+query.Encode(), nil, &resp)
}

func (c *LandClient) Credit(addr common.Address, amount *hexutil.Big) (*api.AccountResponse, error) {
	var resp api.AccountResponse
	return &resp, c.do(http.MethodPost, "/api/admin/accounts/"+addr.Hex()+"/credit", api.CreditRequest{Amount: amount}, &resp)
}

func (c *LandClient) Checkpoint() (*api.CheckpointResponse, error) {
	var resp api.CheckpointResponse
	return &resp, c.do(http.MethodPost, "/api/admin/checkpoint", nil, &resp)
}

func (c *LandClient) do(method, path string, body, out any) error {
	var payload []byte
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("could not encode request: %w", err)
		}
		payload = data
	}

	req, err := http.NewRequest(method, c.ServerAddr+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Caller != (common.Address{}) {
		req.Header.Set(api.CallerHeader, c.Caller.Hex())
	}
	if c.key != nil && method != http.MethodGet {
		ts := time.Now().Unix()
		sig, err := cryptoutils.SignRequest(c.key, method, req.URL.Path, ts, payload)
		if err != nil {
			return err
		}
		req.Header.Set(api.SignatureHeader, sig)
		req.Header.Set(api.TimestampHeader, strconv.FormatInt(ts, 10))
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("could not reach %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
		var apiErr api.ErrorResponse
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error != "" {
			return &APIError{StatusCode: resp.StatusCode, Message: apiErr.Error}
		}
		return &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(data))}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("could not parse response from %s: %w", path, err)
	}
	return nil
}

var (
	_ api.LandProvider  = (*LandClient)(nil)
	_ api.AdminProvider = (*LandClient)(nil)
)
