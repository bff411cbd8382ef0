package gamenet

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func TestCheckOptions_DefaultValues(t *testing.T) {
	var opts options
	if err := checkOptions(&opts); err != nil {
		t.Fatalf("checkOptions failed: %v", err)
	}

	if opts.logger == nil {
		t.Error("logger not defaulted")
	}
	if opts.maxConnections != DefaultMaxConnections {
		t.Errorf("maxConnections = %d, want %d", opts.maxConnections, DefaultMaxConnections)
	}
	if opts.acceptInterval != 100*time.Millisecond {
		t.Errorf("acceptInterval = %v, want 100ms", opts.acceptInterval)
	}
	if opts.acceptBurst != DefaultMaxConnections {
		t.Errorf("acceptBurst = %d, want %d", opts.acceptBurst, DefaultMaxConnections)
	}
	if opts.sendBufferSize != 16 || opts.receiveBufferSize != 16 {
		t.Errorf("buffer sizes = %d/%d, want 16/16", opts.sendBufferSize, opts.receiveBufferSize)
	}
	if opts.maxMessageSize != 16*1024 {
		t.Errorf("maxMessageSize = %d, want 16384", opts.maxMessageSize)
	}
	if opts.maxConnectionID != DefaultMaxConnectionID {
		t.Errorf("maxConnectionID = %d, want %d", opts.maxConnectionID, DefaultMaxConnectionID)
	}
	if opts.noDelay {
		t.Error("noDelay should default to false")
	}
	if opts.readTimeout != 0 {
		t.Errorf("readTimeout = %v, want 0", opts.readTimeout)
	}
	if opts.dialTimeout != DefaultDialTimeout {
		t.Errorf("dialTimeout = %v, want %v", opts.dialTimeout, DefaultDialTimeout)
	}
}

func TestCheckOptions_MaxMessageSizeBounds(t *testing.T) {
	for _, size := range []int{HeaderSize, MaxFrameSize + 1} {
		opts := options{maxMessageSize: size}
		if err := checkOptions(&opts); !errors.Is(err, ErrInvalidOption) {
			t.Errorf("size %d: expected ErrInvalidOption, got %v", size, err)
		}
	}

	opts := options{maxMessageSize: MaxFrameSize}
	if err := checkOptions(&opts); err != nil {
		t.Errorf("MaxFrameSize rejected: %v", err)
	}
}

func TestOptions_MultipleOptions(t *testing.T) {
	logger := &mockLogger{}
	metrics := NewMetrics(prometheus.NewRegistry(), "test", "server")

	opts, err := newOptions([]Option{
		LoggerOption(logger),
		MetricsOption(metrics),
		SendBufferSizeOption(4),
		ReceiveBufferSizeOption(8),
		MaxMessageSizeOption(4096),
		NoDelayOption(true),
		ReadTimeoutOption(time.Second),
		ListenHostOption("127.0.0.1"),
		MaxConnectionsOption(10),
		AcceptIntervalOption(time.Millisecond),
		AcceptBurstOption(3),
		MaxConnectionIDOption(1000),
		DialTimeoutOption(time.Minute),
	})
	if err != nil {
		t.Fatalf("newOptions failed: %v", err)
	}

	if opts.logger != logger {
		t.Error("logger not set")
	}
	if opts.metrics != metrics {
		t.Error("metrics not set")
	}
	if opts.sendBufferSize != 4 || opts.receiveBufferSize != 8 {
		t.Errorf("buffer sizes = %d/%d", opts.sendBufferSize, opts.receiveBufferSize)
	}
	if opts.maxMessageSize != 4096 {
		t.Errorf("maxMessageSize = %d, want 4096", opts.maxMessageSize)
	}
	if !opts.noDelay {
		t.Error("noDelay not set")
	}
	if opts.readTimeout != time.Second {
		t.Errorf("readTimeout = %v", opts.readTimeout)
	}
	if opts.listenHost != "127.0.0.1" {
		t.Errorf("listenHost = %s", opts.listenHost)
	}
	if opts.maxConnections != 10 || opts.acceptBurst != 3 || opts.maxConnectionID != 1000 {
		t.Errorf("server options = %d/%d/%d", opts.maxConnections, opts.acceptBurst, opts.maxConnectionID)
	}
	if opts.acceptInterval != time.Millisecond {
		t.Errorf("acceptInterval = %v", opts.acceptInterval)
	}
	if opts.dialTimeout != time.Minute {
		t.Errorf("dialTimeout = %v", opts.dialTimeout)
	}
}
