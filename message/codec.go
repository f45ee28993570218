package message

import (
	"github.com/fxamacker/cbor/v2"
	"github.com/pkg/errors"
)

var (
	ErrUnknownKind = errors.New("unknown message kind")
	ErrNilMessage  = errors.New("nil message")
)

// envelope 线上格式: [kind, from, payload]
type envelope struct {
	_       struct{} `cbor:",toarray"`
	Kind    Kind
	From    string
	Payload cbor.RawMessage
}

var encMode cbor.EncMode

func init() {
	opts := cbor.CoreDetEncOptions()
	em, err := opts.EncMode()
	if err != nil {
		panic(err)
	}
	encMode = em
}

// Encode 编码消息。from 为发送方对外地址，接收方据此识别消息来源。
func Encode(from string, msg Message) ([]byte, error) {
	if msg == nil {
		return nil, ErrNilMessage
	}
	payload, err := encMode.Marshal(msg)
	if err != nil {
		return nil, errors.Wrapf(err, "encode %s payload", msg.Kind())
	}
	data, err := encMode.Marshal(&envelope{Kind: msg.Kind(), From: from, Payload: payload})
	if err != nil {
		return nil, errors.Wrapf(err, "encode %s envelope", msg.Kind())
	}
	return data, nil
}

// Decode 解码消息，返回发送方地址与消息
func Decode(data []byte) (string, Message, error) {
	var env envelope
	if err := cbor.Unmarshal(data, &env); err != nil {
		return "", nil, errors.Wrap(err, "decode envelope")
	}
	msg, ok := New(env.Kind)
	if !ok {
		return "", nil, errors.Wrapf(ErrUnknownKind, "kind %d", uint8(env.Kind))
	}
	if err := cbor.Unmarshal(env.Payload, msg); err != nil {
		return "", nil, errors.Wrapf(err, "decode %s payload", env.Kind)
	}
	return env.From, msg, nil
}
