package source

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/status-im/dict-cache/schema"
)

// HTTPConfig configures the HTTP source
type HTTPConfig struct {
	// URL is the endpoint answering batched key lookups.
	URL string

	// MaxRetries bounds retry attempts per request.
	MaxRetries int

	// RequestTimeout is the total per-attempt timeout.
	RequestTimeout time.Duration

	// RequestsPerSecond throttles outgoing lookups; zero disables the limiter.
	RequestsPerSecond float64

	// Burst is the limiter burst size.
	Burst int
}

// DefaultHTTPConfig returns default HTTP source options
func DefaultHTTPConfig(url string) HTTPConfig {
	return HTTPConfig{
		URL:            url,
		MaxRetries:     3,
		RequestTimeout: 30 * time.Second,
		Burst:          1,
	}
}

// HTTPSource loads rows from a JSON endpoint. One POST resolves one batch of
// keys; the response carries blocks of columns, key columns first, in schema
// order.
type HTTPSource struct {
	cfg     HTTPConfig
	sch     *schema.Schema
	client  *retryablehttp.Client
	limiter *rate.Limiter
	logger  *zap.Logger
}

// NewHTTPSource builds an HTTP source for the given schema
func NewHTTPSource(sch *schema.Schema, cfg HTTPConfig, logger *zap.Logger) (*HTTPSource, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("http source url must not be empty")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	client := retryablehttp.NewClient()
	client.RetryMax = cfg.MaxRetries
	client.HTTPClient.Timeout = cfg.RequestTimeout
	client.Logger = nil

	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}

	return &HTTPSource{cfg: cfg, sch: sch, client: client, limiter: limiter, logger: logger}, nil
}

// SupportsSelectiveLoad implements Source
func (s *HTTPSource) SupportsSelectiveLoad() bool { return true }

type httpRequest struct {
	IDs  []uint64 `json:"ids,omitempty"`
	Keys [][]any  `json:"keys,omitempty"`
}

type httpBlock struct {
	Columns [][]any `json:"columns"`
}

type httpResponse struct {
	Blocks []httpBlock `json:"blocks"`
}

// LoadIDs implements Source
func (s *HTTPSource) LoadIDs(ctx context.Context, ids []uint64) (Stream, error) {
	return s.load(ctx, httpRequest{IDs: ids})
}

// LoadKeys implements Source
func (s *HTTPSource) LoadKeys(ctx context.Context, keyColumns []schema.Column, rows []int) (Stream, error) {
	tuples := make([][]any, len(rows))
	for i, row := range rows {
		tuple := make([]any, len(keyColumns))
		for c, col := range keyColumns {
			if row >= len(col) {
				return nil, fmt.Errorf("key row %d out of range (%d rows)", row, len(col))
			}
			tuple[c] = col[row]
		}
		tuples[i] = tuple
	}
	return s.load(ctx, httpRequest{Keys: tuples})
}

func (s *HTTPSource) load(ctx context.Context, reqBody httpRequest) (Stream, error) {
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter wait: %w", err)
		}
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("encode source request: %w", err)
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, s.cfg.URL, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("source request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("source returned status %d", resp.StatusCode)
	}

	var decoded httpResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode source response: %w", err)
	}
	s.logger.Debug("source request completed",
		zap.Int("blocks", len(decoded.Blocks)),
		zap.Duration("duration", time.Since(start)))

	blocks := make([]*Block, 0, len(decoded.Blocks))
	for i := range decoded.Blocks {
		block, err := s.toBlock(&decoded.Blocks[i])
		if err != nil {
			return nil, err
		}
		blocks = append(blocks, block)
	}
	return NewBlocksStream(blocks...), nil
}

// toBlock coerces JSON values into the typed columns the block scan expects
func (s *HTTPSource) toBlock(raw *httpBlock) (*Block, error) {
	keyTypes := s.sch.KeyTypes()
	expected := len(keyTypes) + len(s.sch.Attributes)
	if len(raw.Columns) != expected {
		return nil, fmt.Errorf("source block has %d columns, schema expects %d", len(raw.Columns), expected)
	}
	columns := make([]schema.Column, expected)
	for c, rawCol := range raw.Columns {
		var t schema.AttributeType
		if c < len(keyTypes) {
			t = keyTypes[c]
		} else {
			t = s.sch.Attributes[c-len(keyTypes)].Type
		}
		col := make(schema.Column, len(rawCol))
		for i, v := range rawCol {
			coerced, err := coerceJSONValue(t, v)
			if err != nil {
				return nil, fmt.Errorf("column %d row %d: %w", c, i, err)
			}
			col[i] = coerced
		}
		columns[c] = col
	}
	return &Block{Columns: columns}, nil
}

func coerceJSONValue(t schema.AttributeType, v any) (any, error) {
	switch t {
	case schema.TypeString, schema.TypeFixedString:
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("expected string, got %T", v)
		}
		return s, nil
	case schema.TypeBool:
		b, ok := v.(bool)
		if !ok {
			return nil, fmt.Errorf("expected bool, got %T", v)
		}
		return b, nil
	case schema.TypeUUID:
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("expected uuid string, got %T", v)
		}
		return uuid.Parse(s)
	}

	f, ok := v.(float64)
	if !ok {
		return nil, fmt.Errorf("expected number, got %T", v)
	}
	switch t {
	case schema.TypeInt8:
		return int8(f), nil
	case schema.TypeInt16:
		return int16(f), nil
	case schema.TypeInt32:
		return int32(f), nil
	case schema.TypeInt64, schema.TypeDecimal:
		return int64(f), nil
	case schema.TypeUInt8:
		return uint8(f), nil
	case schema.TypeUInt16:
		return uint16(f), nil
	case schema.TypeUInt32:
		return uint32(f), nil
	case schema.TypeUInt64:
		return uint64(f), nil
	case schema.TypeFloat32:
		return float32(f), nil
	case schema.TypeFloat64:
		return f, nil
	}
	return nil, fmt.Errorf("cannot coerce value of type %s", t)
}
