package gamenet

import (
	"math"
	"time"

	"github.com/pkg/errors"
)

// Default configuration values.
const (
	// DefaultMaxConnections is the default number of simultaneous server connections.
	DefaultMaxConnections = 100
	// DefaultAcceptInterval is how often a full server re-checks for a free slot.
	DefaultAcceptInterval = 100 * time.Millisecond
	// DefaultSendBufferSize is the default number of frames a connection can queue for sending.
	DefaultSendBufferSize = 16
	// DefaultReceiveBufferSize is the default number of received frames a consumer can hold.
	DefaultReceiveBufferSize = 16
	// DefaultMaxMessageSize is the default largest frame, header included (16KiB).
	DefaultMaxMessageSize = 16 * 1024
	// DefaultMaxConnectionID is the default value after which connection ids wrap.
	DefaultMaxConnectionID = math.MaxInt32
	// DefaultDialTimeout bounds client connection attempts.
	DefaultDialTimeout = 5 * time.Second
)

// ErrInvalidOption is returned when an option value cannot be used.
var ErrInvalidOption = errors.New("invalid option")

// options holds the configuration shared by Server and Client.
// Server-only fields are ignored by the client.
type options struct {
	logger  Logger
	metrics *Metrics

	sendBufferSize    int           // frames queued for writing per connection
	receiveBufferSize int           // frames held by the consumer per connection
	maxMessageSize    int           // largest frame including the length header
	noDelay           bool          // disable Nagle's algorithm
	readTimeout       time.Duration // per-frame read deadline, 0 disables it

	// Server only.
	listenHost      string
	maxConnections  int
	acceptInterval  time.Duration
	acceptBurst     int
	maxConnectionID int

	// Client only.
	dialTimeout time.Duration
}

// Option is a function that configures a Server or a Client.
type Option func(*options)

// checkOptions validates and sets default values for options.
func checkOptions(opts *options) error {
	if opts.logger == nil {
		opts.logger = defaultLogger()
	}

	if opts.sendBufferSize <= 0 {
		opts.sendBufferSize = DefaultSendBufferSize
	}

	if opts.receiveBufferSize <= 0 {
		opts.receiveBufferSize = DefaultReceiveBufferSize
	}

	if opts.maxMessageSize <= 0 {
		opts.maxMessageSize = DefaultMaxMessageSize
	}
	if opts.maxMessageSize <= HeaderSize || opts.maxMessageSize > MaxFrameSize {
		return errors.Wrapf(ErrInvalidOption, "max message size %d not in (%d, %d]",
			opts.maxMessageSize, HeaderSize, MaxFrameSize)
	}

	if opts.readTimeout < 0 {
		opts.readTimeout = 0
	}

	if opts.maxConnections <= 0 {
		opts.maxConnections = DefaultMaxConnections
	}

	if opts.acceptInterval <= 0 {
		opts.acceptInterval = DefaultAcceptInterval
	}

	if opts.acceptBurst <= 0 {
		opts.acceptBurst = opts.maxConnections
	}

	if opts.maxConnectionID <= 0 {
		opts.maxConnectionID = DefaultMaxConnectionID
	}
	if opts.maxConnectionID < opts.maxConnections {
		return errors.Wrapf(ErrInvalidOption, "max connection id %d below connection cap %d",
			opts.maxConnectionID, opts.maxConnections)
	}

	if opts.dialTimeout <= 0 {
		opts.dialTimeout = DefaultDialTimeout
	}

	return nil
}

func newOptions(opt []Option) (options, error) {
	var opts options
	for _, o := range opt {
		o(&opts)
	}
	return opts, checkOptions(&opts)
}

// LoggerOption returns an Option that sets the logger.
// If not set, the default slog logger will be used.
func LoggerOption(logger Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// MetricsOption returns an Option that records transport activity in m.
func MetricsOption(m *Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}

// SendBufferSizeOption sets how many outgoing frames a connection can queue.
// Send fails with ErrBufferFull once they are all in use.
func SendBufferSizeOption(size int) Option {
	return func(o *options) {
		o.sendBufferSize = size
	}
}

// ReceiveBufferSizeOption sets how many received frames the consumer can hold
// before the read loop of that connection waits for a Release.
func ReceiveBufferSizeOption(size int) Option {
	return func(o *options) {
		o.receiveBufferSize = size
	}
}

// MaxMessageSizeOption sets the largest frame, length header included.
// It cannot exceed MaxFrameSize.
func MaxMessageSizeOption(size int) Option {
	return func(o *options) {
		o.maxMessageSize = size
	}
}

// NoDelayOption controls Nagle's algorithm on every socket.
func NoDelayOption(noDelay bool) Option {
	return func(o *options) {
		o.noDelay = noDelay
	}
}

// ReadTimeoutOption disconnects peers that send nothing for the given duration.
// Zero disables the deadline.
func ReadTimeoutOption(timeout time.Duration) Option {
	return func(o *options) {
		o.readTimeout = timeout
	}
}

// ListenHostOption sets the host the server binds to. Empty means all interfaces.
func ListenHostOption(host string) Option {
	return func(o *options) {
		o.listenHost = host
	}
}

// MaxConnectionsOption caps the number of simultaneous server connections.
func MaxConnectionsOption(n int) Option {
	return func(o *options) {
		o.maxConnections = n
	}
}

// AcceptIntervalOption sets the accept pacing interval and how often a full
// server polls for a free slot.
func AcceptIntervalOption(d time.Duration) Option {
	return func(o *options) {
		o.acceptInterval = d
	}
}

// AcceptBurstOption sets how many connections can be accepted back to back
// before pacing applies. It defaults to the connection cap.
func AcceptBurstOption(n int) Option {
	return func(o *options) {
		o.acceptBurst = n
	}
}

// MaxConnectionIDOption sets the value after which connection ids wrap to 1.
func MaxConnectionIDOption(n int) Option {
	return func(o *options) {
		o.maxConnectionID = n
	}
}

// DialTimeoutOption bounds a client connection attempt.
func DialTimeoutOption(d time.Duration) Option {
	return func(o *options) {
		o.dialTimeout = d
	}
}
