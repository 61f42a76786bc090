package xpulsar

import (
	"sync/atomic"
	"time"

	"github.com/omeyang/xresilience/pkg/observability/xlog"
	"github.com/omeyang/xresilience/pkg/observability/xmetrics"

	"github.com/apache/pulsar-client-go/pulsar"
)

// clientOptions 包含 Pulsar 客户端的配置选项。
type clientOptions struct {
	Tracer                     Tracer
	Observer                   xmetrics.Observer
	Logger                     xlog.Logger
	ConnectionTimeout          time.Duration
	OperationTimeout           time.Duration
	MaxConnectionsPerBroker    int
	Authentication             pulsar.Authentication
	TLSTrustCertsFilePath      string
	TLSAllowInsecureConnection bool
}

func defaultOptions() *clientOptions {
	return &clientOptions{
		Tracer:                  NoopTracer{},
		Observer:                xmetrics.NoopObserver{},
		Logger:                  xlog.Discard(),
		ConnectionTimeout:       10 * time.Second,
		OperationTimeout:        30 * time.Second,
		MaxConnectionsPerBroker: 1,
	}
}

// Option 定义 Pulsar 客户端的配置选项函数类型。
type Option func(*clientOptions)

// WithTracer 设置链路追踪器。
func WithTracer(tracer Tracer) Option {
	return func(o *clientOptions) {
		if tracer != nil {
			o.Tracer = tracer
		}
	}
}

// WithObserver 设置统一观测接口。
func WithObserver(observer xmetrics.Observer) Option {
	return func(o *clientOptions) {
		if observer != nil {
			o.Observer = observer
		}
	}
}

// WithLogger 设置消费循环日志。
func WithLogger(logger xlog.Logger) Option {
	return func(o *clientOptions) {
		if logger != nil {
			o.Logger = logger
		}
	}
}

// WithConnectionTimeout 设置连接超时时间。
func WithConnectionTimeout(d time.Duration) Option {
	return func(o *clientOptions) {
		if d > 0 {
			o.ConnectionTimeout = d
		}
	}
}

// WithOperationTimeout 设置操作超时时间。
func WithOperationTimeout(d time.Duration) Option {
	return func(o *clientOptions) {
		if d > 0 {
			o.OperationTimeout = d
		}
	}
}

// WithMaxConnectionsPerBroker 设置每个 Broker 的最大连接数。
func WithMaxConnectionsPerBroker(n int) Option {
	return func(o *clientOptions) {
		if n > 0 {
			o.MaxConnectionsPerBroker = n
		}
	}
}

// WithAuthentication 设置认证方式。
func WithAuthentication(auth pulsar.Authentication) Option {
	return func(o *clientOptions) {
		o.Authentication = auth
	}
}

// WithTLS 设置 TLS 配置。
func WithTLS(trustCertsFilePath string, allowInsecure bool) Option {
	return func(o *clientOptions) {
		o.TLSTrustCertsFilePath = trustCertsFilePath
		o.TLSAllowInsecureConnection = allowInsecure
	}
}

// Client Pulsar 客户端，创建的 Producer / Consumer 共享追踪与观测配置。
type Client struct {
	client  pulsar.Client
	options *clientOptions
	closed  atomic.Bool
}

// NewClient 创建 Pulsar 客户端实例。
// url 是 Pulsar 服务地址，如 "pulsar://localhost:6650"。
func NewClient(url string, opts ...Option) (*Client, error) {
	if url == "" {
		return nil, ErrEmptyURL
	}

	options := defaultOptions()
	for _, opt := range opts {
		opt(options)
	}

	clientOptions := pulsar.ClientOptions{
		URL:                        url,
		ConnectionTimeout:          options.ConnectionTimeout,
		OperationTimeout:           options.OperationTimeout,
		MaxConnectionsPerBroker:    options.MaxConnectionsPerBroker,
		TLSTrustCertsFilePath:      options.TLSTrustCertsFilePath,
		TLSAllowInsecureConnection: options.TLSAllowInsecureConnection,
	}
	if options.Authentication != nil {
		clientOptions.Authentication = options.Authentication
	}

	client, err := pulsar.NewClient(clientOptions)
	if err != nil {
		return nil, err
	}
	return &Client{client: client, options: options}, nil
}

// Client 返回底层的 pulsar.Client。
func (c *Client) Client() pulsar.Client {
	return c.client
}

// CreateProducer 创建带追踪注入的生产者。
func (c *Client) CreateProducer(options pulsar.ProducerOptions) (*Producer, error) {
	if c.closed.Load() {
		return nil, ErrClosed
	}
	producer, err := c.client.CreateProducer(options)
	if err != nil {
		return nil, err
	}
	return WrapProducer(producer, c.options.Tracer, c.options.Observer)
}

// Subscribe 创建带追踪提取的消费者。
func (c *Client) Subscribe(options pulsar.ConsumerOptions) (*Consumer, error) {
	if c.closed.Load() {
		return nil, ErrClosed
	}
	consumer, err := c.client.Subscribe(options)
	if err != nil {
		return nil, err
	}
	return WrapConsumer(consumer, topicFromConsumerOptions(options),
		WithConsumerTracer(c.options.Tracer),
		WithConsumerObserver(c.options.Observer),
		WithConsumerLogger(c.options.Logger),
	)
}

// Close 关闭客户端。重复调用 Close 安全返回 ErrClosed。
func (c *Client) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return ErrClosed
	}
	c.client.Close()
	return nil
}

func topicFromConsumerOptions(opts pulsar.ConsumerOptions) string {
	if opts.Topic != "" {
		return opts.Topic
	}
	if len(opts.Topics) == 1 {
		return opts.Topics[0]
	}
	if len(opts.Topics) > 1 {
		return "multi"
	}
	if opts.TopicsPattern != "" {
		return "pattern"
	}
	return ""
}
