package messenger

import (
	"reflect"
	"sync"
	"unicode/utf16"

	"github.com/pkg/errors"

	"github.com/Zereker/gamenet"
	"github.com/Zereker/gamenet/serial"
)

// MaxPayloadSize is the largest envelope a handler encodes.
const MaxPayloadSize = gamenet.MaxFrameSize - gamenet.HeaderSize

// Config describes a registered message type.
type Config struct {
	Type reflect.Type
	// Name is the string the hash is computed from.
	Name string
	Hash uint16
	// IsUser marks messages that count as user traffic for idle detection.
	IsUser bool
}

// RegisterOption adjusts a message registration.
type RegisterOption func(*Config)

// Named overrides the hashed name, which defaults to the package path and
// type name joined by a dot. Use it to match peers written in other languages.
func Named(name string) RegisterOption {
	return func(c *Config) {
		c.Name = name
	}
}

// CountAsUserTraffic makes a system message count as user activity.
func CountAsUserTraffic() RegisterOption {
	return func(c *Config) {
		c.IsUser = true
	}
}

// Registry maps message types to their hashes. It must be populated before
// traffic flows; lookups are safe for concurrent use.
type Registry struct {
	types   *serial.Registry
	writers *serial.WriterPool

	mu     sync.RWMutex
	byType map[reflect.Type]*Config
	byHash map[uint16]*Config
}

// NewRegistry creates a registry bound to types and registers the system
// messages AuthMessage, PingMessage, PongMessage and KickMessage.
func NewRegistry(types *serial.Registry) (*Registry, error) {
	r := &Registry{
		types:   types,
		writers: serial.NewWriterPool(types, MaxPayloadSize),
		byType:  make(map[reflect.Type]*Config),
		byHash:  make(map[uint16]*Config),
	}

	for _, fn := range []func(*Registry) error{
		func(r *Registry) error { return RegisterSystem[AuthMessage](r) },
		func(r *Registry) error { return RegisterSystem[PingMessage](r) },
		func(r *Registry) error { return RegisterSystem[PongMessage](r) },
		func(r *Registry) error { return RegisterSystem[KickMessage](r) },
	} {
		if err := fn(r); err != nil {
			return nil, errors.Wrap(err, "register system messages")
		}
	}
	return r, nil
}

// Types returns the serial registry message bodies are encoded with.
func (r *Registry) Types() *serial.Registry {
	return r.types
}

// RegisterUser registers an application message. Its body must be encodable
// by the serial registry: either registered there already, or a type whose
// pointer implements serial.Serializable, which is registered on the fly.
func RegisterUser[T any](r *Registry, opts ...RegisterOption) error {
	return register[T](r, true, opts, func() error {
		if serial.IsRegistered[T](r.types) {
			return nil
		}
		if _, err := serial.RegisterIfSerializable[T](r.types); err != nil {
			return err
		}
		if !serial.IsRegistered[T](r.types) {
			return errors.Wrapf(serial.ErrUnregisteredType, "message %s", reflect.TypeFor[T]())
		}
		return nil
	})
}

// RegisterSystem registers a protocol message that does not count as user
// traffic unless CountAsUserTraffic is given.
func RegisterSystem[T any, PT interface {
	*T
	serial.Serializable
}](r *Registry, opts ...RegisterOption) error {
	return register[T](r, false, opts, func() error {
		if serial.IsRegistered[T](r.types) {
			return nil
		}
		return serial.RegisterCustom[T, PT](r.types)
	})
}

// register records T once its name and hash are known to be free. The body
// type is added to the serial registry by ensureBody only after those checks,
// so a rejected message leaves no trace there.
func register[T any](r *Registry, user bool, opts []RegisterOption, ensureBody func() error) error {
	t := reflect.TypeFor[T]()
	cfg := &Config{Type: t, Name: fullName(t), IsUser: user}
	for _, o := range opts {
		o(cfg)
	}
	if cfg.Name == "" {
		return errors.Errorf("messenger: %s has no name, use Named", t)
	}
	cfg.Hash = Hash(cfg.Name)

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byType[t]; exists {
		return errors.Wrapf(ErrAlreadyRegistered, "%s", t)
	}
	if other, exists := r.byHash[cfg.Hash]; exists {
		return errors.Wrapf(ErrHashCollision, "%s and %s both hash to %#04x", cfg.Name, other.Name, cfg.Hash)
	}
	if err := ensureBody(); err != nil {
		return err
	}

	r.byType[t] = cfg
	r.byHash[cfg.Hash] = cfg
	return nil
}

// ConfigOf returns the registration of type t.
func (r *Registry) ConfigOf(t reflect.Type) (Config, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cfg, ok := r.byType[t]
	if !ok {
		return Config{}, false
	}
	return *cfg, true
}

// ConfigByHash returns the registration with the given hash.
func (r *Registry) ConfigByHash(hash uint16) (Config, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cfg, ok := r.byHash[hash]
	if !ok {
		return Config{}, false
	}
	return *cfg, true
}

func configFor[T any](r *Registry) (Config, error) {
	t := reflect.TypeFor[T]()
	cfg, ok := r.ConfigOf(t)
	if !ok {
		return Config{}, errors.Wrapf(ErrNotRegistered, "%s", t)
	}
	return cfg, nil
}

// Hash computes the 16-bit type hash of a message name: starting from 23,
// every UTF-16 code unit c folds in as h = h*31 + c with 32-bit wrapping, and
// the low 16 bits are kept.
func Hash(name string) uint16 {
	h := int32(23)
	for _, c := range utf16.Encode([]rune(name)) {
		h = h*31 + int32(c)
	}
	return uint16(h & 0xFFFF)
}

func fullName(t reflect.Type) string {
	if t.Name() == "" {
		return ""
	}
	if t.PkgPath() == "" {
		return t.Name()
	}
	return t.PkgPath() + "." + t.Name()
}
