package payload

import (
	"encoding/gob"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// Envelope pairs a payload with the fate of the medium carrying it.
type Envelope struct {
	Payload Payload

	// DeleteOnLoad tells the loader to remove the medium once decoded.
	DeleteOnLoad bool
}

// Register makes the concrete type of p known to the codec.
// Register the same form (pointer or value) that implements Payload.
func Register(p Payload) { gob.Register(p) }

// SerializationError is returned when a payload cannot be encoded.
type SerializationError struct {
	Type string
	Err  error
}

func (e *SerializationError) Error() string {
	return fmt.Sprintf("cannot serialize payload %s: %v", e.Type, e.Err)
}

func (e *SerializationError) Unwrap() error { return e.Err }

// DeserializationError is returned when a medium holds no decodable envelope.
type DeserializationError struct {
	Err error
}

func (e *DeserializationError) Error() string {
	return fmt.Sprintf("cannot deserialize envelope: %v", e.Err)
}

func (e *DeserializationError) Unwrap() error { return e.Err }

// Encode writes env to w.
func Encode(w io.Writer, env *Envelope) error {
	if err := gob.NewEncoder(w).Encode(env); err != nil {
		return &SerializationError{Type: TypeName(env.Payload), Err: err}
	}
	return nil
}

// Decode reads one envelope from r.
func Decode(r io.Reader) (*Envelope, error) {
	env := new(Envelope)
	if err := gob.NewDecoder(r).Decode(env); err != nil {
		return nil, &DeserializationError{Err: err}
	}
	return env, nil
}

// TypeName returns the Go type name of p.
func TypeName(p Payload) string {
	if p == nil {
		return "<nil>"
	}
	return fmt.Sprintf("%T", p)
}

// Describe renders the captured state of p as YAML.
func Describe(p Payload) (string, error) {
	out, err := yaml.Marshal(p)
	if err != nil {
		return "", err
	}
	return string(out), nil
}
